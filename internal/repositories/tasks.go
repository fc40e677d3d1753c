package repositories

import (
	"context"
	"database/sql"

	"task-calendar/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type GormTaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *GormTaskRepository {
	return &GormTaskRepository{db: db}
}

func (r *GormTaskRepository) Create(ctx context.Context, task *models.Task) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *GormTaskRepository) FindByID(ctx context.Context, workspaceID, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	err := r.db.WithContext(ctx).
		Where("id = ? AND workspace_id = ?", id, workspaceID).
		First(&task).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *GormTaskRepository) List(ctx context.Context, workspaceID uuid.UUID, order TaskOrder) ([]models.Task, error) {
	q := r.db.WithContext(ctx).Where("workspace_id = ?", workspaceID)
	switch order {
	case OrderByKanban:
		q = q.Order("kanban_order ASC").Order("created_at ASC")
	default:
		q = q.Order("due_date IS NULL").Order("due_date ASC").Order("created_at ASC")
	}

	var tasks []models.Task
	if err := q.Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *GormTaskRepository) Update(ctx context.Context, workspaceID, id uuid.UUID, fields map[string]interface{}) (*models.Task, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ? AND workspace_id = ?", id, workspaceID).
		Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.FindByID(ctx, workspaceID, id)
}

func (r *GormTaskRepository) Delete(ctx context.Context, workspaceID, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND workspace_id = ?", id, workspaceID).
		Delete(&models.Task{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormTaskRepository) MaxKanbanOrder(ctx context.Context, workspaceID uuid.UUID, status models.TaskStatus, excludeID uuid.UUID) (int, error) {
	var max sql.NullInt64
	err := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Select("MAX(kanban_order)").
		Where("workspace_id = ? AND status = ? AND id <> ?", workspaceID, status, excludeID).
		Row().
		Scan(&max)
	if err != nil {
		return 0, err
	}
	return int(max.Int64), nil
}
