// Package repositories is the relational store: one repository per table,
// each query scoped by the caller's workspace where the table has one.
package repositories

import (
	"context"

	"task-calendar/backend/internal/models"

	"github.com/gofrs/uuid"
)

type TaskOrder int

const (
	// OrderByDueDate sorts by due date ascending with undated tasks last.
	OrderByDueDate TaskOrder = iota
	// OrderByKanban sorts by kanban_order ascending.
	OrderByKanban
)

type WorkspaceRepository interface {
	FindByUser(ctx context.Context, userID uuid.UUID) (*models.Workspace, error)
	FindByKey(ctx context.Context, key string) (*models.Workspace, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error)
	Create(ctx context.Context, ws *models.Workspace) error
}

type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	FindByID(ctx context.Context, workspaceID, id uuid.UUID) (*models.Task, error)
	List(ctx context.Context, workspaceID uuid.UUID, order TaskOrder) ([]models.Task, error)
	Update(ctx context.Context, workspaceID, id uuid.UUID, fields map[string]interface{}) (*models.Task, error)
	Delete(ctx context.Context, workspaceID, id uuid.UUID) error
	// MaxKanbanOrder is the highest kanban_order in a column, ignoring
	// excludeID; zero for an empty column.
	MaxKanbanOrder(ctx context.Context, workspaceID uuid.UUID, status models.TaskStatus, excludeID uuid.UUID) (int, error)
}

type AttachmentRepository interface {
	Create(ctx context.Context, a *models.Attachment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Attachment, error)
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]models.Attachment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
