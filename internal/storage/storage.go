// Package storage holds attachment blobs behind a small BlobStore interface.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"task-calendar/backend/internal/config"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNotConfigured means the bucket or its access policy is missing.
	ErrNotConfigured = errors.New("storage is not configured")
	ErrAlreadyExists = errors.New("object already exists")
	ErrNotFound      = errors.New("object not found")
)

type UploadOptions struct {
	ContentType  string
	CacheControl string
}

// BlobStore never overwrites: uploading to an existing path fails with
// ErrAlreadyExists.
type BlobStore interface {
	Upload(ctx context.Context, path string, body io.Reader, opts UploadOptions) error
	Download(ctx context.Context, path string) (io.ReadCloser, error)
	Remove(ctx context.Context, paths ...string) error
}

// New builds the backend selected by cfg.Storage.Backend. A Supabase backend
// without a project URL is returned as Unconfigured so the service still
// starts and reports setup_required on attachment calls.
func New(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (BlobStore, error) {
	switch cfg.Storage.Backend {
	case "supabase":
		if cfg.Auth.SupabaseURL == "" {
			log.Warn("SUPABASE_URL is empty; attachments are disabled")
			return Unconfigured{}, nil
		}
		key := cfg.Storage.ServiceKey
		if key == "" {
			key = cfg.Auth.SupabaseAnonKey
		}
		return NewSupabaseStore(cfg.Auth.SupabaseURL, cfg.Auth.SupabaseAnonKey, key, cfg.Storage.Bucket), nil
	case "gcs":
		return NewGCSStore(ctx, cfg.Storage.Bucket, cfg.Storage.CredentialsPath)
	case "local":
		return NewLocalStore(cfg.Storage.LocalDir)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

// Unconfigured fails every call with ErrNotConfigured.
type Unconfigured struct{}

func (Unconfigured) Upload(context.Context, string, io.Reader, UploadOptions) error {
	return ErrNotConfigured
}

func (Unconfigured) Download(context.Context, string) (io.ReadCloser, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) Remove(context.Context, ...string) error {
	return ErrNotConfigured
}

// IsSetupMessage reports whether a backend error message means the bucket or
// its row-level security policy has not been created yet.
func IsSetupMessage(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "row-level security") ||
		strings.Contains(m, "bucket not found") ||
		strings.Contains(m, "not found")
}

func cacheControlHeader(v string) string {
	if v == "" {
		return ""
	}
	if strings.Contains(v, "=") {
		return v
	}
	return "max-age=" + v
}
