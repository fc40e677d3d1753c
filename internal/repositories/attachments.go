package repositories

import (
	"context"

	"task-calendar/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type GormAttachmentRepository struct {
	db *gorm.DB
}

func NewAttachmentRepository(db *gorm.DB) *GormAttachmentRepository {
	return &GormAttachmentRepository{db: db}
}

func (r *GormAttachmentRepository) Create(ctx context.Context, a *models.Attachment) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *GormAttachmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Attachment, error) {
	var a models.Attachment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *GormAttachmentRepository) ListByTask(ctx context.Context, taskID uuid.UUID) ([]models.Attachment, error) {
	var out []models.Attachment
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormAttachmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Attachment{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
