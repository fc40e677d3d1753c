package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"task-calendar/backend/internal/logger"
	"task-calendar/backend/internal/models"
	"task-calendar/backend/internal/services"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type mockWorkspaceRepo struct {
	mu          sync.Mutex
	byUser      map[uuid.UUID]*models.Workspace
	byKey       map[string]*models.Workspace
	findErr     error
	createErr   error
	raceWinner  *models.Workspace
	findCalls   int
	createCalls int
}

func newMockWorkspaceRepo() *mockWorkspaceRepo {
	return &mockWorkspaceRepo{
		byUser: make(map[uuid.UUID]*models.Workspace),
		byKey:  make(map[string]*models.Workspace),
	}
}

func (m *mockWorkspaceRepo) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findCalls++
	if m.findErr != nil {
		return nil, m.findErr
	}
	if ws, ok := m.byUser[userID]; ok {
		return ws, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockWorkspaceRepo) FindByKey(ctx context.Context, key string) (*models.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws, ok := m.byKey[key]; ok {
		return ws, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockWorkspaceRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ws := range m.byKey {
		if ws.ID == id {
			return ws, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockWorkspaceRepo) Create(ctx context.Context, ws *models.Workspace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.raceWinner != nil {
		m.byUser[*m.raceWinner.UserID] = m.raceWinner
		return gorm.ErrDuplicatedKey
	}
	if m.createErr != nil {
		return m.createErr
	}
	if _, taken := m.byKey[ws.WorkspaceKey]; taken {
		return gorm.ErrDuplicatedKey
	}
	ws.ID = uuid.Must(uuid.NewV4())
	if ws.UserID != nil {
		m.byUser[*ws.UserID] = ws
	}
	m.byKey[ws.WorkspaceKey] = ws
	return nil
}

func newUser(email string, metadata map[string]interface{}) models.User {
	return models.User{ID: uuid.Must(uuid.NewV4()), Email: email, Metadata: metadata}
}

func TestEnsureWorkspace_CreatesOnceAndIsIdempotent(t *testing.T) {
	repo := newMockWorkspaceRepo()
	svc := services.NewWorkspaceService(repo, logger.Discard())
	ctx := context.Background()
	user := newUser("a@x.com", nil)

	first, err := svc.EnsureWorkspace(ctx, user)
	require.NoError(t, err)
	second, err := svc.EnsureWorkspace(ctx, user)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, repo.createCalls)
	assert.Equal(t, "a의 워크스페이스", first.Name)
	assert.Equal(t, user.ID, *first.UserID)

	_, err = uuid.FromString(first.WorkspaceKey)
	assert.NoError(t, err, "workspace key should be a uuid")
}

func TestEnsureWorkspace_NicknamePrecedence(t *testing.T) {
	tests := []struct {
		name     string
		user     models.User
		expected string
	}{
		{"nickname", newUser("a@x.com", map[string]interface{}{"nickname": "지민", "full_name": "Kim Jimin"}), "지민의 워크스페이스"},
		{"oauth full name", newUser("a@x.com", map[string]interface{}{"full_name": "Kim Jimin"}), "Kim Jimin의 워크스페이스"},
		{"oauth name", newUser("a@x.com", map[string]interface{}{"name": "jimin"}), "jimin의 워크스페이스"},
		{"email", newUser("hello@x.com", nil), "hello의 워크스페이스"},
		{"fallback", newUser("", nil), "사용자의 워크스페이스"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := services.NewWorkspaceService(newMockWorkspaceRepo(), logger.Discard())
			ws, err := svc.EnsureWorkspace(context.Background(), tt.user)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ws.Name)
		})
	}
}

func TestEnsureWorkspace_ConcurrentInsertReturnsWinner(t *testing.T) {
	repo := newMockWorkspaceRepo()
	user := newUser("a@x.com", nil)
	winnerID := user.ID
	repo.raceWinner = &models.Workspace{ID: uuid.Must(uuid.NewV4()), UserID: &winnerID, Name: "a의 워크스페이스", WorkspaceKey: "k"}

	svc := services.NewWorkspaceService(repo, logger.Discard())
	ws, err := svc.EnsureWorkspace(context.Background(), user)

	require.NoError(t, err)
	assert.Equal(t, repo.raceWinner.ID, ws.ID)
	assert.Equal(t, 1, repo.createCalls, "insert must not be retried")
	assert.Equal(t, 2, repo.findCalls)
}

func TestEnsureWorkspace_InsertFailureSurfaces(t *testing.T) {
	repo := newMockWorkspaceRepo()
	repo.createErr = errors.New("connection reset")

	svc := services.NewWorkspaceService(repo, logger.Discard())
	_, err := svc.EnsureWorkspace(context.Background(), newUser("a@x.com", nil))

	assert.ErrorIs(t, err, services.ErrWorkspaceProvisioning)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 1, repo.createCalls)
}

func TestEnsureWorkspace_LookupFailureDoesNotInsert(t *testing.T) {
	repo := newMockWorkspaceRepo()
	repo.findErr = errors.New("db down")

	svc := services.NewWorkspaceService(repo, logger.Discard())
	_, err := svc.EnsureWorkspace(context.Background(), newUser("a@x.com", nil))

	assert.ErrorIs(t, err, services.ErrWorkspaceProvisioning)
	assert.Equal(t, 0, repo.createCalls)
}

func TestEnsureWorkspace_RequiresUserID(t *testing.T) {
	svc := services.NewWorkspaceService(newMockWorkspaceRepo(), logger.Discard())
	_, err := svc.EnsureWorkspace(context.Background(), models.User{Email: "a@x.com"})
	assert.True(t, services.IsValidation(err))
}

func TestWorkspaceKeyFlows(t *testing.T) {
	repo := newMockWorkspaceRepo()
	svc := services.NewWorkspaceService(repo, logger.Discard())
	ctx := context.Background()

	created, err := svc.CreateWithKey(ctx, " 팀 ", "team-key")
	require.NoError(t, err)
	assert.Equal(t, "팀", created.Name)
	assert.Nil(t, created.UserID)

	_, err = svc.CreateWithKey(ctx, "other", "team-key")
	assert.ErrorIs(t, err, services.ErrWorkspaceKeyTaken)

	_, err = svc.CreateWithKey(ctx, "", "k2")
	assert.True(t, services.IsValidation(err))

	found, err := svc.LoginWithKey(ctx, "team-key")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = svc.LoginWithKey(ctx, "missing")
	assert.ErrorIs(t, err, services.ErrWorkspaceNotFound)

	_, err = svc.LoginWithKey(ctx, "  ")
	assert.True(t, services.IsValidation(err))

	byID, err := svc.GetWorkspace(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "팀", byID.Name)

	_, err = svc.GetWorkspace(ctx, uuid.Must(uuid.NewV4()))
	assert.ErrorIs(t, err, services.ErrWorkspaceNotFound)
}
