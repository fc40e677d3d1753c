// Package worker runs background jobs from Redis lists. Jobs that must wait
// (retries with backoff) sit in a sorted set until they are due.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type JobType string

const (
	JobTypeBlobCleanup JobType = "blob_cleanup"
)

const (
	DefaultQueue = "blob_cleanup"
	delayedSet   = "delayed_jobs"
	deadQueue    = "dead_queue"
)

var jobsProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "worker_jobs_processed_total",
		Help: "Background jobs by type and outcome",
	},
	[]string{"type", "result"},
)

type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Queue     string          `json:"queue"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	MaxTries  int             `json:"max_tries"`
	CreatedAt time.Time       `json:"created_at"`
	ProcessAt time.Time       `json:"process_at"`
}

type JobHandler func(ctx context.Context, job *Job) error

type Worker struct {
	client       *redis.Client
	handlers     map[JobType]JobHandler
	queues       []string
	pollInterval time.Duration
	retryBase    time.Duration
	log          logrus.FieldLogger
	mu           sync.RWMutex
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

type WorkerConfig struct {
	RedisClient  *redis.Client
	PollInterval time.Duration
	Queues       []string
	// RetryBase is the first retry delay; each further attempt doubles it.
	RetryBase time.Duration
	Logger    logrus.FieldLogger
}

func NewWorker(config WorkerConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.RetryBase <= 0 {
		config.RetryBase = time.Minute
	}
	if len(config.Queues) == 0 {
		config.Queues = []string{DefaultQueue}
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}

	return &Worker{
		client:       config.RedisClient,
		handlers:     make(map[JobType]JobHandler),
		queues:       config.Queues,
		pollInterval: config.PollInterval,
		retryBase:    config.RetryBase,
		log:          config.Logger.WithField("component", "worker"),
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (w *Worker) RegisterHandler(jobType JobType, handler JobHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

func (w *Worker) Start(concurrency int) {
	w.log.WithField("concurrency", concurrency).Info("starting worker")

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop()
	}

	w.wg.Add(1)
	go w.promoteLoop()
}

func (w *Worker) Stop() {
	w.log.Info("stopping worker")
	w.cancel()
	w.wg.Wait()
	w.log.Info("worker stopped")
}

func (w *Worker) workerLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			if err := w.processNextJob(); err != nil && w.ctx.Err() == nil {
				w.log.WithError(err).Error("error processing job")
				time.Sleep(time.Second)
			}
		}
	}
}

func (w *Worker) promoteLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.PromoteDue(w.ctx, time.Now()); err != nil && w.ctx.Err() == nil {
				w.log.WithError(err).Warn("failed to promote delayed jobs")
			}
		}
	}
}

// PromoteDue moves delayed jobs whose time has come onto their queue. ZREM
// decides which replica moves a job, so each job is promoted once.
func (w *Worker) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	members, err := w.client.ZRangeByScore(ctx, delayedSet, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, m := range members {
		removed, err := w.client.ZRem(ctx, delayedSet, m).Result()
		if err != nil {
			return moved, err
		}
		if removed == 0 {
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(m), &job); err != nil {
			w.log.WithError(err).Error("dropping undecodable delayed job")
			continue
		}
		if err := w.client.RPush(ctx, job.queueOrDefault(), m).Err(); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

func (w *Worker) processNextJob() error {
	result, err := w.client.BLPop(w.ctx, w.pollInterval, w.queues...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("failed to pop job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.Queue == "" {
		job.Queue = result[0]
	}

	return w.executeJob(&job)
}

func (w *Worker) executeJob(job *Job) error {
	w.mu.RLock()
	handler, exists := w.handlers[job.Type]
	w.mu.RUnlock()

	log := w.log.WithFields(logrus.Fields{"job_id": job.ID, "job_type": job.Type})

	if !exists {
		jobsProcessed.WithLabelValues(string(job.Type), "unhandled").Inc()
		return w.moveToDeadQueue(job, fmt.Errorf("no handler registered for job type: %s", job.Type))
	}

	ctx, cancel := context.WithTimeout(w.ctx, 30*time.Second)
	defer cancel()

	err := handler(ctx, job)
	if err != nil {
		job.Attempts++
		if job.Attempts < job.MaxTries {
			jobsProcessed.WithLabelValues(string(job.Type), "retry").Inc()
			log.WithError(err).WithField("attempt", job.Attempts).Warn("job failed, retrying")
			return w.retryJob(job)
		}

		jobsProcessed.WithLabelValues(string(job.Type), "dead").Inc()
		log.WithError(err).WithField("attempts", job.Attempts).Error("job failed permanently")
		return w.moveToDeadQueue(job, err)
	}

	jobsProcessed.WithLabelValues(string(job.Type), "ok").Inc()
	log.Debug("job completed")
	return nil
}

func (w *Worker) retryJob(job *Job) error {
	delay := w.retryBase * time.Duration(1<<(job.Attempts-1))
	job.ProcessAt = time.Now().Add(delay)
	return schedule(w.ctx, w.client, job)
}

func (w *Worker) moveToDeadQueue(job *Job, jobErr error) error {
	deadJob := map[string]interface{}{
		"original_job": job,
		"error":        jobErr.Error(),
		"failed_at":    time.Now(),
	}

	deadJobData, err := json.Marshal(deadJob)
	if err != nil {
		return fmt.Errorf("failed to marshal dead job: %w", err)
	}

	return w.client.RPush(w.ctx, deadQueue, deadJobData).Err()
}

func (j *Job) queueOrDefault() string {
	if j.Queue == "" {
		return DefaultQueue
	}
	return j.Queue
}

// schedule pushes a due job onto its queue, or parks a future one in the delayed set.
func schedule(ctx context.Context, client *redis.Client, job *Job) error {
	jobData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if job.ProcessAt.After(time.Now()) {
		return client.ZAdd(ctx, delayedSet, redis.Z{
			Score:  float64(job.ProcessAt.UnixMilli()),
			Member: jobData,
		}).Err()
	}
	return client.RPush(ctx, job.queueOrDefault(), jobData).Err()
}
