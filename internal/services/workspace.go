package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"task-calendar/backend/internal/identity"
	"task-calendar/backend/internal/models"
	"task-calendar/backend/internal/repositories"

	"github.com/gofrs/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type WorkspaceService interface {
	// EnsureWorkspace returns the user's workspace, creating it on first
	// sign-in. At most one insert is attempted per call.
	EnsureWorkspace(ctx context.Context, user models.User) (*models.Workspace, error)
	LoginWithKey(ctx context.Context, key string) (*models.Workspace, error)
	CreateWithKey(ctx context.Context, name, key string) (*models.Workspace, error)
	GetWorkspace(ctx context.Context, id uuid.UUID) (*models.Workspace, error)
}

type WorkspaceServiceImpl struct {
	repo   repositories.WorkspaceRepository
	log    logrus.FieldLogger
	newKey func() (uuid.UUID, error)
}

func NewWorkspaceService(repo repositories.WorkspaceRepository, log logrus.FieldLogger) *WorkspaceServiceImpl {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WorkspaceServiceImpl{repo: repo, log: log, newKey: uuid.NewV4}
}

func (s *WorkspaceServiceImpl) EnsureWorkspace(ctx context.Context, user models.User) (*models.Workspace, error) {
	if user.ID.IsNil() {
		return nil, &ValidationError{Field: "user", Message: "user id is required"}
	}

	ws, err := s.repo.FindByUser(ctx, user.ID)
	if err == nil {
		workspaceProvisioning.WithLabelValues("existing").Inc()
		return ws, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		workspaceProvisioning.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrWorkspaceProvisioning, err)
	}

	key, err := s.newKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkspaceProvisioning, err)
	}

	userID := user.ID
	ws = &models.Workspace{
		UserID:       &userID,
		Name:         identity.WorkspaceName(identity.DeriveNickname(user)),
		WorkspaceKey: key.String(),
	}

	insertErr := s.repo.Create(ctx, ws)
	if insertErr == nil {
		workspaceProvisioning.WithLabelValues("created").Inc()
		s.log.WithFields(logrus.Fields{
			"user_id":      user.ID.String(),
			"workspace_id": ws.ID.String(),
		}).Info("workspace created")
		return ws, nil
	}

	// A concurrent first sign-in may have inserted the row already.
	s.log.WithError(insertErr).WithField("user_id", user.ID.String()).Warn("workspace insert failed, looking up again")
	existing, err := s.repo.FindByUser(ctx, user.ID)
	if err == nil {
		workspaceProvisioning.WithLabelValues("raced").Inc()
		return existing, nil
	}

	workspaceProvisioning.WithLabelValues("error").Inc()
	return nil, fmt.Errorf("%w: %v", ErrWorkspaceProvisioning, insertErr)
}

func (s *WorkspaceServiceImpl) LoginWithKey(ctx context.Context, key string) (*models.Workspace, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, &ValidationError{Field: "workspace_key", Message: "워크스페이스 키를 입력해주세요."}
	}

	ws, err := s.repo.FindByKey(ctx, key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWorkspaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find workspace by key: %w", err)
	}
	return ws, nil
}

func (s *WorkspaceServiceImpl) CreateWithKey(ctx context.Context, name, key string) (*models.Workspace, error) {
	name = strings.TrimSpace(name)
	key = strings.TrimSpace(key)
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "워크스페이스 이름을 입력해주세요."}
	}
	if key == "" {
		return nil, &ValidationError{Field: "workspace_key", Message: "워크스페이스 키를 입력해주세요."}
	}

	ws := &models.Workspace{Name: name, WorkspaceKey: key}
	if err := s.repo.Create(ctx, ws); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrWorkspaceKeyTaken
		}
		return nil, fmt.Errorf("%w: %v", ErrWorkspaceProvisioning, err)
	}
	return ws, nil
}

func (s *WorkspaceServiceImpl) GetWorkspace(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	ws, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWorkspaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find workspace: %w", err)
	}
	return ws, nil
}
