package models

import (
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type TaskStatus string

const (
	StatusBacklog    TaskStatus = "backlog"
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
)

// BoardColumns is the left-to-right column order of the kanban board.
var BoardColumns = []TaskStatus{StatusBacklog, StatusTodo, StatusInProgress, StatusDone}

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusBacklog, StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task dates are calendar days ("2006-01-02") and times are wall-clock
// minutes ("15:04"); both are stored as text so ordering stays lexical.
type Task struct {
	ID          uuid.UUID     `json:"id" gorm:"primaryKey;type:uuid"`
	WorkspaceID uuid.UUID     `json:"workspace_id" gorm:"type:uuid;not null;index:idx_tasks_workspace_status,priority:1"`
	UserID      uuid.UUID     `json:"user_id" gorm:"type:uuid;not null"`
	Title       string        `json:"title" gorm:"not null"`
	Description *string       `json:"description"`
	Status      TaskStatus    `json:"status" gorm:"type:varchar(20);not null;default:'todo';index:idx_tasks_workspace_status,priority:2"`
	Priority    *TaskPriority `json:"priority" gorm:"type:varchar(10)"`
	DueDate     *string       `json:"due_date" gorm:"type:varchar(10)"`
	StartDate   *string       `json:"start_date" gorm:"type:varchar(10)"`
	EndDate     *string       `json:"end_date" gorm:"type:varchar(10)"`
	StartTime   *string       `json:"start_time" gorm:"type:varchar(8)"`
	EndTime     *string       `json:"end_time" gorm:"type:varchar(8)"`
	KanbanOrder int           `json:"kanban_order" gorm:"not null;default:0"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func (Task) TableName() string {
	return "tasks"
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID.IsNil() {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		t.ID = id
	}
	return nil
}

// CalendarStart is the first day the task occupies: start_date, or the
// legacy due_date for tasks created before date ranges existed.
func (t *Task) CalendarStart() *string {
	if t.StartDate != nil && *t.StartDate != "" {
		return t.StartDate
	}
	if t.DueDate != nil && *t.DueDate != "" {
		return t.DueDate
	}
	return nil
}

// Due returns the due date, or "" when the task has none.
func (t *Task) Due() string {
	if t.DueDate == nil {
		return ""
	}
	return strings.TrimSpace(*t.DueDate)
}
