package services_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"task-calendar/backend/internal/database"
	"task-calendar/backend/internal/storage"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	pool, err := database.NewDatabasePool(&database.PoolConfig{
		Driver:   "sqlite",
		DSN:      ":memory:",
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	require.NoError(t, pool.Migrate())
	t.Cleanup(func() { pool.Close() })
	return pool.DB
}

func strPtr(s string) *string { return &s }

// fakeBlobStore records every call so tests can assert what reached storage.
type fakeBlobStore struct {
	mu          sync.Mutex
	objects     map[string][]byte
	uploads     []string
	removes     [][]string
	uploadErr   error
	removeErr   error
	downloadErr error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (f *fakeBlobStore) Upload(ctx context.Context, path string, body io.Reader, opts storage.UploadOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, path)
	if f.uploadErr != nil {
		return f.uploadErr
	}
	if _, ok := f.objects[path]; ok {
		return storage.ErrAlreadyExists
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.objects[path] = data
	return nil
}

func (f *fakeBlobStore) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	data, ok := f.objects[path]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBlobStore) Remove(ctx context.Context, paths ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removes = append(f.removes, append([]string(nil), paths...))
	if f.removeErr != nil {
		return f.removeErr
	}
	for _, p := range paths {
		delete(f.objects, p)
	}
	return nil
}

func (f *fakeBlobStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads) + len(f.removes)
}

type fakeCleanupQueue struct {
	paths   [][]string
	reasons []string
	err     error
}

func (q *fakeCleanupQueue) EnqueueBlobCleanup(ctx context.Context, paths []string, reason string) error {
	q.paths = append(q.paths, paths)
	q.reasons = append(q.reasons, reason)
	return q.err
}

var errBoom = errors.New("boom")
