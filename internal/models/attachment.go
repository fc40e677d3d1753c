package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type Attachment struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	TaskID      uuid.UUID `json:"task_id" gorm:"type:uuid;not null;index"`
	UserID      uuid.UUID `json:"user_id" gorm:"type:uuid;not null"`
	FileName    string    `json:"file_name" gorm:"not null"`
	FileSize    int64     `json:"file_size" gorm:"not null"`
	FileType    string    `json:"file_type" gorm:"not null"`
	StoragePath string    `json:"storage_path" gorm:"not null;uniqueIndex"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Attachment) TableName() string {
	return "task_attachments"
}

func (a *Attachment) BeforeCreate(tx *gorm.DB) error {
	if a.ID.IsNil() {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		a.ID = id
	}
	return nil
}
