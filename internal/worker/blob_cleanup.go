package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"task-calendar/backend/internal/storage"
)

type BlobCleanupPayload struct {
	Paths  []string `json:"paths"`
	Reason string   `json:"reason"`
}

// EnqueueBlobCleanup schedules deletion of blobs whose removal failed inline.
func (q *JobQueue) EnqueueBlobCleanup(ctx context.Context, paths []string, reason string) error {
	if len(paths) == 0 {
		return nil
	}
	return q.Enqueue(ctx, DefaultQueue, JobTypeBlobCleanup, BlobCleanupPayload{Paths: paths, Reason: reason})
}

func NewBlobCleanupHandler(store storage.BlobStore) JobHandler {
	return func(ctx context.Context, job *Job) error {
		var p BlobCleanupPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("invalid blob cleanup payload: %w", err)
		}
		if len(p.Paths) == 0 {
			return nil
		}
		return store.Remove(ctx, p.Paths...)
	}
}
