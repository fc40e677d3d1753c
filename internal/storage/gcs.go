package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type GCSStore struct {
	client *gcs.Client
	bucket string
}

func NewGCSStore(ctx context.Context, bucket, credentialsPath string, opts ...option.ClientOption) (*GCSStore, error) {
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (s *GCSStore) Upload(ctx context.Context, path string, body io.Reader, opts UploadOptions) error {
	obj := s.client.Bucket(s.bucket).Object(path).If(gcs.Conditions{DoesNotExist: true})
	w := obj.NewWriter(ctx)
	w.ContentType = opts.ContentType
	w.CacheControl = cacheControlHeader(opts.CacheControl)

	if _, err := io.Copy(w, body); err != nil {
		w.Close()
		return classifyGCSError(err, path)
	}
	if err := w.Close(); err != nil {
		return classifyGCSError(err, path)
	}
	return nil
}

func (s *GCSStore) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(path).NewReader(ctx)
	if err != nil {
		return nil, classifyGCSError(err, path)
	}
	return r, nil
}

// Remove deletes every path; objects that are already gone are not an error.
func (s *GCSStore) Remove(ctx context.Context, paths ...string) error {
	var errs []error
	for _, p := range paths {
		err := s.client.Bucket(s.bucket).Object(p).Delete(ctx)
		if err == nil || errors.Is(err, gcs.ErrObjectNotExist) {
			continue
		}
		errs = append(errs, classifyGCSError(err, p))
	}
	return errors.Join(errs...)
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func classifyGCSError(err error, path string) error {
	switch {
	case errors.Is(err, gcs.ErrBucketNotExist):
		return fmt.Errorf("%w: %v", ErrNotConfigured, err)
	case errors.Is(err, gcs.ErrObjectNotExist):
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusPreconditionFailed:
			return fmt.Errorf("%w: %s", ErrAlreadyExists, path)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrNotConfigured, err)
		}
	}
	return err
}
