package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"task-calendar/backend/internal/identity"
	"task-calendar/backend/internal/logger"
	"task-calendar/backend/internal/middleware"
	"task-calendar/backend/internal/models"
	"task-calendar/backend/internal/repositories"
	"task-calendar/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func strPtr(s string) *string { return &s }

// MockTaskService keeps tasks in memory and fails on demand.
type MockTaskService struct {
	tasks       []models.Task
	err         error
	lastScope   services.Scope
	lastOrder   repositories.TaskOrder
	lastFields  services.TaskFields
	lastStatus  models.TaskStatus
	deletedIDs  []uuid.UUID
	toggleCalls int
}

func (m *MockTaskService) find(id uuid.UUID) (*models.Task, error) {
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			t := m.tasks[i]
			return &t, nil
		}
	}
	return nil, services.ErrTaskNotFound
}

func (m *MockTaskService) CreateTask(ctx context.Context, scope services.Scope, input services.TaskFields) (*models.Task, error) {
	m.lastScope, m.lastFields = scope, input
	if m.err != nil {
		return nil, m.err
	}
	task := models.Task{ID: uuid.Must(uuid.NewV4()), WorkspaceID: scope.WorkspaceID, UserID: scope.UserID, Status: models.StatusTodo}
	if input.Title != nil {
		task.Title = *input.Title
	}
	m.tasks = append(m.tasks, task)
	return &task, nil
}

func (m *MockTaskService) GetTask(ctx context.Context, scope services.Scope, id uuid.UUID) (*models.Task, error) {
	m.lastScope = scope
	if m.err != nil {
		return nil, m.err
	}
	return m.find(id)
}

func (m *MockTaskService) UpdateTask(ctx context.Context, scope services.Scope, id uuid.UUID, patch services.TaskFields) (*models.Task, error) {
	m.lastScope, m.lastFields = scope, patch
	if m.err != nil {
		return nil, m.err
	}
	task, err := m.find(id)
	if err != nil {
		return nil, err
	}
	if patch.Title != nil {
		task.Title = *patch.Title
	}
	return task, nil
}

func (m *MockTaskService) DeleteTask(ctx context.Context, scope services.Scope, id uuid.UUID) error {
	m.lastScope = scope
	if m.err != nil {
		return m.err
	}
	if _, err := m.find(id); err != nil {
		return err
	}
	m.deletedIDs = append(m.deletedIDs, id)
	return nil
}

func (m *MockTaskService) ToggleStatus(ctx context.Context, scope services.Scope, id uuid.UUID) (*models.Task, error) {
	m.toggleCalls++
	if m.err != nil {
		return nil, m.err
	}
	task, err := m.find(id)
	if err != nil {
		return nil, err
	}
	if task.Status == models.StatusDone {
		task.Status = models.StatusTodo
	} else {
		task.Status = models.StatusDone
	}
	return task, nil
}

func (m *MockTaskService) MoveToColumn(ctx context.Context, scope services.Scope, id uuid.UUID, status models.TaskStatus) (*models.Task, error) {
	m.lastStatus = status
	if m.err != nil {
		return nil, m.err
	}
	if !status.Valid() {
		return nil, &services.ValidationError{Field: "status", Message: "올바르지 않은 상태입니다."}
	}
	task, err := m.find(id)
	if err != nil {
		return nil, err
	}
	task.Status = status
	return task, nil
}

func (m *MockTaskService) ListTasks(ctx context.Context, scope services.Scope, order repositories.TaskOrder) ([]models.Task, error) {
	m.lastScope, m.lastOrder = scope, order
	if m.err != nil {
		return nil, m.err
	}
	return m.tasks, nil
}

// MockWorkspaceService resolves a single workspace.
type MockWorkspaceService struct {
	workspace   *models.Workspace
	ensureErr   error
	loginErr    error
	createErr   error
	ensureCalls int
	lastKey     string
}

func (m *MockWorkspaceService) EnsureWorkspace(ctx context.Context, user models.User) (*models.Workspace, error) {
	m.ensureCalls++
	if m.ensureErr != nil {
		return nil, m.ensureErr
	}
	return m.workspace, nil
}

func (m *MockWorkspaceService) LoginWithKey(ctx context.Context, key string) (*models.Workspace, error) {
	m.lastKey = key
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	if strings.TrimSpace(key) == "" {
		return nil, &services.ValidationError{Field: "workspace_key", Message: "워크스페이스 키를 입력해주세요."}
	}
	if key != m.workspace.WorkspaceKey {
		return nil, services.ErrWorkspaceNotFound
	}
	return m.workspace, nil
}

func (m *MockWorkspaceService) CreateWithKey(ctx context.Context, name, key string) (*models.Workspace, error) {
	m.lastKey = key
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &models.Workspace{ID: uuid.Must(uuid.NewV4()), Name: name, WorkspaceKey: key}, nil
}

func (m *MockWorkspaceService) GetWorkspace(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	if m.workspace == nil || m.workspace.ID != id {
		return nil, services.ErrWorkspaceNotFound
	}
	return m.workspace, nil
}

// MockAttachmentService records what the handlers pass down.
type MockAttachmentService struct {
	attachments  []models.Attachment
	content      string
	err          error
	removeResult services.RemoveResult
	lastUpload   services.FileUpload
	uploadedBody string
}

func (m *MockAttachmentService) Upload(ctx context.Context, scope services.Scope, taskID uuid.UUID, file services.FileUpload) (*models.Attachment, error) {
	m.lastUpload = file
	if file.Body != nil {
		b, _ := io.ReadAll(file.Body)
		m.uploadedBody = string(b)
	}
	if m.err != nil {
		return nil, m.err
	}
	att := models.Attachment{
		ID:       uuid.Must(uuid.NewV4()),
		TaskID:   taskID,
		UserID:   scope.UserID,
		FileName: file.Name,
		FileSize: file.Size,
		FileType: file.ContentType,
	}
	m.attachments = append(m.attachments, att)
	return &att, nil
}

func (m *MockAttachmentService) Remove(ctx context.Context, scope services.Scope, id uuid.UUID) (services.RemoveResult, error) {
	if m.err != nil {
		return services.RemoveResult{}, m.err
	}
	return m.removeResult, nil
}

func (m *MockAttachmentService) Download(ctx context.Context, scope services.Scope, id uuid.UUID) (*models.Attachment, io.ReadCloser, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	for i := range m.attachments {
		if m.attachments[i].ID == id {
			return &m.attachments[i], io.NopCloser(strings.NewReader(m.content)), nil
		}
	}
	return nil, nil, services.ErrAttachmentNotFound
}

func (m *MockAttachmentService) List(ctx context.Context, scope services.Scope, taskID uuid.UUID) ([]models.Attachment, error) {
	if m.err != nil {
		return nil, m.err
	}
	var list []models.Attachment
	for _, a := range m.attachments {
		if a.TaskID == taskID {
			list = append(list, a)
		}
	}
	return list, nil
}

func (m *MockAttachmentService) RemoveAllForTask(ctx context.Context, scope services.Scope, taskID uuid.UUID) error {
	return m.err
}

// mockScope stands in for RequireWorkspace.
func mockScope(scope services.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyScope, scope)
		c.Next()
	}
}

func mockSession(session *identity.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeySession, session)
		c.Next()
	}
}

func newScope() services.Scope {
	return services.Scope{WorkspaceID: uuid.Must(uuid.NewV4()), UserID: uuid.Must(uuid.NewV4())}
}

func newTestRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(handlers...)
	return router
}

func performJSON(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func testSession() *identity.Session {
	return &identity.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Unix(1893456000, 0),
		User: models.User{
			ID:       uuid.Must(uuid.NewV4()),
			Email:    "kim@example.com",
			Metadata: map[string]interface{}{"nickname": "kim"},
		},
	}
}

var testLog = logger.Discard()
