package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"task-calendar/backend/internal/models"
	"task-calendar/backend/internal/repositories"
	"task-calendar/backend/internal/scheduling"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// TaskFields is both the create input and the update patch. A nil field is
// left untouched; an empty string clears a nullable field.
type TaskFields struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
	DueDate     *string `json:"due_date"`
	StartDate   *string `json:"start_date"`
	EndDate     *string `json:"end_date"`
	StartTime   *string `json:"start_time"`
	EndTime     *string `json:"end_time"`
}

func (f TaskFields) empty() bool {
	return f == TaskFields{}
}

type TaskService interface {
	CreateTask(ctx context.Context, scope Scope, input TaskFields) (*models.Task, error)
	GetTask(ctx context.Context, scope Scope, id uuid.UUID) (*models.Task, error)
	UpdateTask(ctx context.Context, scope Scope, id uuid.UUID, patch TaskFields) (*models.Task, error)
	DeleteTask(ctx context.Context, scope Scope, id uuid.UUID) error
	ToggleStatus(ctx context.Context, scope Scope, id uuid.UUID) (*models.Task, error)
	MoveToColumn(ctx context.Context, scope Scope, id uuid.UUID, status models.TaskStatus) (*models.Task, error)
	ListTasks(ctx context.Context, scope Scope, order repositories.TaskOrder) ([]models.Task, error)
}

// AttachmentCascade removes a task's attachments before the task row goes.
type AttachmentCascade interface {
	RemoveAllForTask(ctx context.Context, scope Scope, taskID uuid.UUID) error
}

type TaskServiceImpl struct {
	tasks       repositories.TaskRepository
	attachments AttachmentCascade
}

func NewTaskService(tasks repositories.TaskRepository, attachments AttachmentCascade) *TaskServiceImpl {
	return &TaskServiceImpl{tasks: tasks, attachments: attachments}
}

func (s *TaskServiceImpl) CreateTask(ctx context.Context, scope Scope, input TaskFields) (*models.Task, error) {
	if err := scope.check(); err != nil {
		return nil, err
	}
	if input.Title == nil {
		return nil, &ValidationError{Field: "title", Message: "제목을 입력해주세요."}
	}

	task := &models.Task{
		WorkspaceID: scope.WorkspaceID,
		UserID:      scope.UserID,
		Status:      models.StatusTodo,
	}
	medium := models.PriorityMedium
	task.Priority = &medium

	if _, err := applyFields(task, input); err != nil {
		return nil, err
	}
	if task.Priority == nil {
		task.Priority = &medium
	}
	if err := validateSchedule(task); err != nil {
		return nil, err
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

func (s *TaskServiceImpl) GetTask(ctx context.Context, scope Scope, id uuid.UUID) (*models.Task, error) {
	if err := scope.check(); err != nil {
		return nil, err
	}
	task, err := s.tasks.FindByID(ctx, scope.WorkspaceID, id)
	if err != nil {
		return nil, taskError(err)
	}
	return task, nil
}

func (s *TaskServiceImpl) UpdateTask(ctx context.Context, scope Scope, id uuid.UUID, patch TaskFields) (*models.Task, error) {
	current, err := s.GetTask(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if patch.empty() {
		return current, nil
	}

	merged := *current
	changes, err := applyFields(&merged, patch)
	if err != nil {
		return nil, err
	}
	if err := validateSchedule(&merged); err != nil {
		return nil, err
	}

	updated, err := s.tasks.Update(ctx, scope.WorkspaceID, id, changes)
	if err != nil {
		return nil, taskError(err)
	}
	return updated, nil
}

func (s *TaskServiceImpl) DeleteTask(ctx context.Context, scope Scope, id uuid.UUID) error {
	if _, err := s.GetTask(ctx, scope, id); err != nil {
		return err
	}
	if s.attachments != nil {
		if err := s.attachments.RemoveAllForTask(ctx, scope, id); err != nil {
			return fmt.Errorf("remove attachments: %w", err)
		}
	}
	if err := s.tasks.Delete(ctx, scope.WorkspaceID, id); err != nil {
		return taskError(err)
	}
	return nil
}

func (s *TaskServiceImpl) ToggleStatus(ctx context.Context, scope Scope, id uuid.UUID) (*models.Task, error) {
	task, err := s.GetTask(ctx, scope, id)
	if err != nil {
		return nil, err
	}

	next := models.StatusDone
	if task.Status == models.StatusDone {
		next = models.StatusTodo
	}

	updated, err := s.tasks.Update(ctx, scope.WorkspaceID, id, map[string]interface{}{"status": string(next)})
	if err != nil {
		return nil, taskError(err)
	}
	return updated, nil
}

func (s *TaskServiceImpl) MoveToColumn(ctx context.Context, scope Scope, id uuid.UUID, status models.TaskStatus) (*models.Task, error) {
	if !status.Valid() {
		return nil, &ValidationError{Field: "status", Message: "올바르지 않은 상태입니다."}
	}
	if _, err := s.GetTask(ctx, scope, id); err != nil {
		return nil, err
	}

	maxOrder, err := s.tasks.MaxKanbanOrder(ctx, scope.WorkspaceID, status, id)
	if err != nil {
		return nil, fmt.Errorf("kanban order: %w", err)
	}

	updated, err := s.tasks.Update(ctx, scope.WorkspaceID, id, map[string]interface{}{
		"status":       string(status),
		"kanban_order": maxOrder + 1,
	})
	if err != nil {
		return nil, taskError(err)
	}
	return updated, nil
}

func (s *TaskServiceImpl) ListTasks(ctx context.Context, scope Scope, order repositories.TaskOrder) ([]models.Task, error) {
	if err := scope.check(); err != nil {
		return nil, err
	}
	tasks, err := s.tasks.List(ctx, scope.WorkspaceID, order)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func taskError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrTaskNotFound
	}
	return err
}

// applyFields copies the non-nil fields of f onto task and returns the
// column updates they amount to.
func applyFields(task *models.Task, f TaskFields) (map[string]interface{}, error) {
	changes := make(map[string]interface{})

	if f.Title != nil {
		title := strings.TrimSpace(*f.Title)
		if title == "" {
			return nil, &ValidationError{Field: "title", Message: "제목을 입력해주세요."}
		}
		task.Title = title
		changes["title"] = title
	}

	if f.Description != nil {
		desc := strings.TrimSpace(*f.Description)
		if desc == "" {
			task.Description = nil
			changes["description"] = nil
		} else {
			task.Description = &desc
			changes["description"] = desc
		}
	}

	if f.Status != nil {
		status := models.TaskStatus(*f.Status)
		if !status.Valid() {
			return nil, &ValidationError{Field: "status", Message: "올바르지 않은 상태입니다."}
		}
		task.Status = status
		changes["status"] = string(status)
	}

	if f.Priority != nil {
		if *f.Priority == "" {
			task.Priority = nil
			changes["priority"] = nil
		} else {
			p := models.TaskPriority(*f.Priority)
			if !p.Valid() {
				return nil, &ValidationError{Field: "priority", Message: "올바르지 않은 우선순위입니다."}
			}
			task.Priority = &p
			changes["priority"] = string(p)
		}
	}

	dates := []struct {
		column string
		in     *string
		dst    **string
	}{
		{"due_date", f.DueDate, &task.DueDate},
		{"start_date", f.StartDate, &task.StartDate},
		{"end_date", f.EndDate, &task.EndDate},
	}
	for _, d := range dates {
		if d.in == nil {
			continue
		}
		if err := setNullable(d.column, *d.in, d.dst, changes, scheduling.NormalizeDate); err != nil {
			return nil, err
		}
	}

	times := []struct {
		column string
		in     *string
		dst    **string
	}{
		{"start_time", f.StartTime, &task.StartTime},
		{"end_time", f.EndTime, &task.EndTime},
	}
	for _, tm := range times {
		if tm.in == nil {
			continue
		}
		if err := setNullable(tm.column, *tm.in, tm.dst, changes, scheduling.NormalizeClock); err != nil {
			return nil, err
		}
	}

	return changes, nil
}

func setNullable(column, in string, dst **string, changes map[string]interface{}, normalize func(string) (string, error)) error {
	in = strings.TrimSpace(in)
	if in == "" {
		*dst = nil
		changes[column] = nil
		return nil
	}
	v, err := normalize(in)
	if err != nil {
		return newValidationError(column, err)
	}
	*dst = &v
	changes[column] = v
	return nil
}

func validateSchedule(task *models.Task) error {
	if err := scheduling.ValidateDateOrder(deref(task.StartDate), deref(task.EndDate)); err != nil {
		return newValidationError("end_date", err)
	}
	if err := scheduling.ValidateTimeOrder(deref(task.StartTime), deref(task.EndTime)); err != nil {
		return newValidationError("end_time", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
