package repositories

import (
	"context"

	"task-calendar/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type GormWorkspaceRepository struct {
	db *gorm.DB
}

func NewWorkspaceRepository(db *gorm.DB) *GormWorkspaceRepository {
	return &GormWorkspaceRepository{db: db}
}

func (r *GormWorkspaceRepository) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Workspace, error) {
	return r.first(ctx, "user_id = ?", userID)
}

func (r *GormWorkspaceRepository) FindByKey(ctx context.Context, key string) (*models.Workspace, error) {
	return r.first(ctx, "workspace_key = ?", key)
}

func (r *GormWorkspaceRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *GormWorkspaceRepository) Create(ctx context.Context, ws *models.Workspace) error {
	return r.db.WithContext(ctx).Create(ws).Error
}

func (r *GormWorkspaceRepository) first(ctx context.Context, query string, arg interface{}) (*models.Workspace, error) {
	var ws models.Workspace
	if err := r.db.WithContext(ctx).Where(query, arg).First(&ws).Error; err != nil {
		return nil, err
	}
	return &ws, nil
}
