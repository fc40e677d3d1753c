package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"task-calendar/backend/internal/logger"
	"task-calendar/backend/internal/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	removed [][]string
	err     error
}

func (f *fakeStore) Upload(context.Context, string, io.Reader, storage.UploadOptions) error {
	return nil
}

func (f *fakeStore) Download(context.Context, string) (io.ReadCloser, error) {
	return nil, storage.ErrNotFound
}

func (f *fakeStore) Remove(ctx context.Context, paths ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, paths)
	return f.err
}

func setup(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func newTestWorker(client *redis.Client) *Worker {
	return NewWorker(WorkerConfig{
		RedisClient:  client,
		PollInterval: 100 * time.Millisecond,
		RetryBase:    time.Minute,
		Logger:       logger.Discard(),
	})
}

func TestJobQueue_EnqueueBlobCleanup(t *testing.T) {
	client, _ := setup(t)
	q := NewJobQueue(client, 5)
	ctx := context.Background()

	require.NoError(t, q.EnqueueBlobCleanup(ctx, []string{"u/t/1_a.png"}, "remove attachment"))
	require.NoError(t, q.EnqueueBlobCleanup(ctx, nil, "nothing"))

	size, err := q.GetQueueSize(ctx, DefaultQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	raw, err := client.LIndex(ctx, DefaultQueue, 0).Result()
	require.NoError(t, err)
	var job Job
	require.NoError(t, json.Unmarshal([]byte(raw), &job))
	assert.Equal(t, JobTypeBlobCleanup, job.Type)
	assert.Equal(t, 5, job.MaxTries)

	var payload BlobCleanupPayload
	require.NoError(t, json.Unmarshal(job.Payload, &payload))
	assert.Equal(t, []string{"u/t/1_a.png"}, payload.Paths)
}

func TestWorker_ProcessesBlobCleanup(t *testing.T) {
	client, _ := setup(t)
	q := NewJobQueue(client, 3)
	store := &fakeStore{}
	w := newTestWorker(client)
	w.RegisterHandler(JobTypeBlobCleanup, NewBlobCleanupHandler(store))

	require.NoError(t, q.EnqueueBlobCleanup(context.Background(), []string{"a", "b"}, "test"))
	require.NoError(t, w.processNextJob())

	assert.Equal(t, [][]string{{"a", "b"}}, store.removed)
}

func TestWorker_RetryThenDead(t *testing.T) {
	client, _ := setup(t)
	ctx := context.Background()
	q := NewJobQueue(client, 2)
	store := &fakeStore{err: errors.New("storage down")}
	w := newTestWorker(client)
	w.RegisterHandler(JobTypeBlobCleanup, NewBlobCleanupHandler(store))

	require.NoError(t, q.EnqueueBlobCleanup(ctx, []string{"a"}, "test"))
	require.NoError(t, w.processNextJob())

	sizes, err := q.Sizes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sizes["pending"])
	assert.Equal(t, int64(1), sizes["delayed"])

	moved, err := w.PromoteDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, moved, "retry is not due yet")

	moved, err = w.PromoteDue(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	require.NoError(t, w.processNextJob())

	sizes, err = q.Sizes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sizes["delayed"])
	assert.Equal(t, int64(1), sizes["dead"])
	assert.Len(t, store.removed, 2)
}

func TestWorker_UnknownJobGoesToDeadQueue(t *testing.T) {
	client, _ := setup(t)
	ctx := context.Background()
	q := NewJobQueue(client, 3)
	w := newTestWorker(client)

	require.NoError(t, q.Enqueue(ctx, DefaultQueue, JobType("mystery"), map[string]string{}))
	require.NoError(t, w.processNextJob())

	sizes, err := q.Sizes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sizes["dead"])
}

func TestWorker_StartStop(t *testing.T) {
	client, _ := setup(t)
	q := NewJobQueue(client, 3)
	store := &fakeStore{}
	w := newTestWorker(client)
	w.RegisterHandler(JobTypeBlobCleanup, NewBlobCleanupHandler(store))

	w.Start(2)
	require.NoError(t, q.EnqueueBlobCleanup(context.Background(), []string{"x"}, "test"))

	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.removed) == 1
	}, 2*time.Second, 20*time.Millisecond)

	w.Stop()
}

func TestEnqueueAt_FutureIsDelayed(t *testing.T) {
	client, _ := setup(t)
	ctx := context.Background()
	q := NewJobQueue(client, 3)

	require.NoError(t, q.EnqueueAt(ctx, DefaultQueue, JobTypeBlobCleanup, BlobCleanupPayload{Paths: []string{"p"}}, time.Now().Add(time.Hour)))

	sizes, err := q.Sizes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sizes["pending"])
	assert.Equal(t, int64(1), sizes["delayed"])
}
