package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// Workspace is a private task space. Workspaces created through the
// key-based login flow have no owning user.
type Workspace struct {
	ID           uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	UserID       *uuid.UUID `json:"user_id,omitempty" gorm:"type:uuid;uniqueIndex:idx_workspaces_user_id"`
	Name         string     `json:"name" gorm:"not null"`
	WorkspaceKey string     `json:"workspace_key" gorm:"not null;uniqueIndex:idx_workspaces_key"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (Workspace) TableName() string {
	return "workspaces"
}

func (w *Workspace) BeforeCreate(tx *gorm.DB) error {
	if w.ID.IsNil() {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		w.ID = id
	}
	return nil
}
