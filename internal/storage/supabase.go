package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SupabaseStore talks to the Supabase Storage REST API.
type SupabaseStore struct {
	baseURL    string
	apiKey     string
	authKey    string
	bucket     string
	httpClient *http.Client
}

func NewSupabaseStore(baseURL, apiKey, authKey, bucket string) *SupabaseStore {
	if !strings.HasPrefix(baseURL, "http") {
		baseURL = "https://" + baseURL
	}
	return &SupabaseStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		authKey: authKey,
		bucket:  bucket,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type storageError struct {
	StatusCode string `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

func (s *SupabaseStore) objectURL(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, url.PathEscape(s.bucket), strings.Join(segments, "/"))
}

func (s *SupabaseStore) makeRequest(ctx context.Context, method, endpoint string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.authKey)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

func (s *SupabaseStore) Upload(ctx context.Context, path string, body io.Reader, opts UploadOptions) error {
	headers := map[string]string{
		"Content-Type": opts.ContentType,
		"x-upsert":     "false",
	}
	if cc := cacheControlHeader(opts.CacheControl); cc != "" {
		headers["Cache-Control"] = cc
	}

	resp, err := s.makeRequest(ctx, http.MethodPost, s.objectURL(path), body, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 400 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	se := readStorageError(resp)
	if resp.StatusCode == http.StatusConflict || se.StatusCode == "409" || se.Error == "Duplicate" {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, path)
	}
	if IsSetupMessage(se.Message) || IsSetupMessage(se.Error) {
		return fmt.Errorf("%w: %s", ErrNotConfigured, se.Message)
	}
	return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, se.Message)
}

func (s *SupabaseStore) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	resp, err := s.makeRequest(ctx, http.MethodGet, s.objectURL(path), nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 400 {
		return resp.Body, nil
	}
	defer resp.Body.Close()

	se := readStorageError(resp)
	msg := strings.ToLower(se.Message + " " + se.Error)
	switch {
	case strings.Contains(msg, "bucket not found") || strings.Contains(msg, "row-level security"):
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, se.Message)
	case resp.StatusCode == http.StatusNotFound || strings.Contains(msg, "not found"):
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return nil, fmt.Errorf("download failed with status %d: %s", resp.StatusCode, se.Message)
}

func (s *SupabaseStore) Remove(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	payload, err := json.Marshal(map[string][]string{"prefixes": paths})
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/storage/v1/object/%s", s.baseURL, url.PathEscape(s.bucket))
	resp, err := s.makeRequest(ctx, http.MethodDelete, endpoint, bytes.NewReader(payload), map[string]string{
		"Content-Type": "application/json",
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 400 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	se := readStorageError(resp)
	if IsSetupMessage(se.Message) {
		return fmt.Errorf("%w: %s", ErrNotConfigured, se.Message)
	}
	return fmt.Errorf("remove failed with status %d: %s", resp.StatusCode, se.Message)
}

func readStorageError(resp *http.Response) storageError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var se storageError
	if err := json.Unmarshal(raw, &se); err != nil || (se.Message == "" && se.Error == "") {
		se.Message = strings.TrimSpace(string(raw))
	}
	if se.Message == "" {
		se.Message = se.Error
	}
	return se
}
