package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"task-calendar/backend/internal/cache"
	"task-calendar/backend/internal/models"
	"task-calendar/backend/internal/repositories"

	"github.com/gofrs/uuid"
	"github.com/sirupsen/logrus"
)

const (
	taskListTTL = 5 * time.Minute
	taskTTL     = 10 * time.Minute
)

// CachedTaskService serves reads from cache and drops the whole workspace's
// entries on every write. A read only stores its result when no write to the
// same workspace happened while it was loading.
type CachedTaskService struct {
	taskService TaskService
	cache       cache.Cache
	log         logrus.FieldLogger

	mu          sync.Mutex
	generations map[uuid.UUID]uint64
}

func NewCachedTaskService(taskService TaskService, cacheInstance cache.Cache, log logrus.FieldLogger) *CachedTaskService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CachedTaskService{
		taskService: taskService,
		cache:       cacheInstance,
		log:         log,
		generations: make(map[uuid.UUID]uint64),
	}
}

func workspacePrefix(workspaceID uuid.UUID) string {
	return fmt.Sprintf("ws:%s:", workspaceID)
}

func taskListKey(workspaceID uuid.UUID, order repositories.TaskOrder) string {
	return fmt.Sprintf("ws:%s:tasks:%d", workspaceID, order)
}

func taskKey(workspaceID, id uuid.UUID) string {
	return fmt.Sprintf("ws:%s:task:%s", workspaceID, id)
}

func (s *CachedTaskService) CreateTask(ctx context.Context, scope Scope, input TaskFields) (*models.Task, error) {
	task, err := s.taskService.CreateTask(ctx, scope, input)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, scope.WorkspaceID)
	return task, nil
}

func (s *CachedTaskService) GetTask(ctx context.Context, scope Scope, id uuid.UUID) (*models.Task, error) {
	key := taskKey(scope.WorkspaceID, id)

	var cached models.Task
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	gen := s.generation(scope.WorkspaceID)
	task, err := s.taskService.GetTask(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	s.setIfCurrent(ctx, scope.WorkspaceID, gen, key, task, taskTTL)
	return task, nil
}

func (s *CachedTaskService) UpdateTask(ctx context.Context, scope Scope, id uuid.UUID, patch TaskFields) (*models.Task, error) {
	task, err := s.taskService.UpdateTask(ctx, scope, id, patch)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, scope.WorkspaceID)
	return task, nil
}

func (s *CachedTaskService) DeleteTask(ctx context.Context, scope Scope, id uuid.UUID) error {
	if err := s.taskService.DeleteTask(ctx, scope, id); err != nil {
		return err
	}
	s.invalidate(ctx, scope.WorkspaceID)
	return nil
}

func (s *CachedTaskService) ToggleStatus(ctx context.Context, scope Scope, id uuid.UUID) (*models.Task, error) {
	task, err := s.taskService.ToggleStatus(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, scope.WorkspaceID)
	return task, nil
}

func (s *CachedTaskService) MoveToColumn(ctx context.Context, scope Scope, id uuid.UUID, status models.TaskStatus) (*models.Task, error) {
	task, err := s.taskService.MoveToColumn(ctx, scope, id, status)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, scope.WorkspaceID)
	return task, nil
}

func (s *CachedTaskService) ListTasks(ctx context.Context, scope Scope, order repositories.TaskOrder) ([]models.Task, error) {
	key := taskListKey(scope.WorkspaceID, order)

	var cached []models.Task
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	gen := s.generation(scope.WorkspaceID)
	tasks, err := s.taskService.ListTasks(ctx, scope, order)
	if err != nil {
		return nil, err
	}
	s.setIfCurrent(ctx, scope.WorkspaceID, gen, key, tasks, taskListTTL)
	return tasks, nil
}

// Warm loads both list orders for a workspace, typically right after sign-in.
func (s *CachedTaskService) Warm(ctx context.Context, scope Scope) error {
	for _, order := range []repositories.TaskOrder{repositories.OrderByDueDate, repositories.OrderByKanban} {
		gen := s.generation(scope.WorkspaceID)
		tasks, err := s.taskService.ListTasks(ctx, scope, order)
		if err != nil {
			return err
		}
		s.setIfCurrent(ctx, scope.WorkspaceID, gen, taskListKey(scope.WorkspaceID, order), tasks, taskListTTL)
	}
	return nil
}

func (s *CachedTaskService) GetCacheStats() map[string]interface{} {
	return s.cache.Stats()
}

func (s *CachedTaskService) generation(workspaceID uuid.UUID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[workspaceID]
}

// setIfCurrent stores value only if the workspace generation is still gen.
// The second check covers an invalidate that ran during the Set itself.
func (s *CachedTaskService) setIfCurrent(ctx context.Context, workspaceID uuid.UUID, gen uint64, key string, value interface{}, ttl time.Duration) {
	if s.generation(workspaceID) != gen {
		return
	}
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		s.log.WithError(err).WithField("key", key).Debug("cache set failed")
		return
	}
	if s.generation(workspaceID) != gen {
		if err := s.cache.Delete(ctx, key); err != nil {
			s.log.WithError(err).WithField("key", key).Warn("cache delete failed")
		}
	}
}

func (s *CachedTaskService) invalidate(ctx context.Context, workspaceID uuid.UUID) {
	s.mu.Lock()
	s.generations[workspaceID]++
	s.mu.Unlock()

	if err := s.cache.DeletePrefix(ctx, workspacePrefix(workspaceID)); err != nil {
		s.log.WithError(err).WithField("workspace_id", workspaceID.String()).Warn("cache invalidation failed")
	}
}
