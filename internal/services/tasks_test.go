package services_test

import (
	"context"
	"strings"
	"testing"

	"task-calendar/backend/internal/logger"
	"task-calendar/backend/internal/models"
	"task-calendar/backend/internal/repositories"
	"task-calendar/backend/internal/scheduling"
	"task-calendar/backend/internal/services"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/suite"
)

type TaskServiceTestSuite struct {
	suite.Suite
	ctx     context.Context
	service *services.TaskServiceImpl
	store   *fakeBlobStore
	atts    *services.AttachmentServiceImpl
	scope   services.Scope
	other   services.Scope
}

func (suite *TaskServiceTestSuite) SetupTest() {
	db := setupTestDB(suite.T())
	suite.ctx = context.Background()

	workspaces := repositories.NewWorkspaceRepository(db)
	tasks := repositories.NewTaskRepository(db)

	suite.scope = suite.newScope(workspaces, "mine")
	suite.other = suite.newScope(workspaces, "theirs")

	suite.store = newFakeBlobStore()
	suite.atts = services.NewAttachmentService(repositories.NewAttachmentRepository(db), tasks, suite.store, logger.Discard())
	suite.service = services.NewTaskService(tasks, suite.atts)
}

func (suite *TaskServiceTestSuite) newScope(repo repositories.WorkspaceRepository, key string) services.Scope {
	userID := uuid.Must(uuid.NewV4())
	ws := &models.Workspace{UserID: &userID, Name: key, WorkspaceKey: key}
	suite.Require().NoError(repo.Create(context.Background(), ws))
	return services.Scope{WorkspaceID: ws.ID, UserID: userID}
}

func (suite *TaskServiceTestSuite) create(fields services.TaskFields) *models.Task {
	task, err := suite.service.CreateTask(suite.ctx, suite.scope, fields)
	suite.Require().NoError(err)
	return task
}

func (suite *TaskServiceTestSuite) TestCreateTask_Defaults() {
	task := suite.create(services.TaskFields{Title: strPtr("  장보기 ")})

	suite.False(task.ID.IsNil())
	suite.Equal("장보기", task.Title)
	suite.Equal(models.StatusTodo, task.Status)
	suite.Require().NotNil(task.Priority)
	suite.Equal(models.PriorityMedium, *task.Priority)
	suite.Equal(0, task.KanbanOrder)
	suite.Equal(suite.scope.WorkspaceID, task.WorkspaceID)
	suite.Equal(suite.scope.UserID, task.UserID)
	suite.False(task.CreatedAt.IsZero())
}

func (suite *TaskServiceTestSuite) TestCreateTask_Validation() {
	tests := []struct {
		name   string
		fields services.TaskFields
		field  string
	}{
		{"missing title", services.TaskFields{}, "title"},
		{"blank title", services.TaskFields{Title: strPtr("   ")}, "title"},
		{"bad status", services.TaskFields{Title: strPtr("t"), Status: strPtr("pending")}, "status"},
		{"bad priority", services.TaskFields{Title: strPtr("t"), Priority: strPtr("urgent")}, "priority"},
		{"bad date", services.TaskFields{Title: strPtr("t"), DueDate: strPtr("2024/01/01")}, "due_date"},
		{"bad time", services.TaskFields{Title: strPtr("t"), StartTime: strPtr("25:00")}, "start_time"},
		{"end before start date", services.TaskFields{Title: strPtr("t"), StartDate: strPtr("2024-01-03"), EndDate: strPtr("2024-01-01")}, "end_date"},
		{"end time equal start", services.TaskFields{Title: strPtr("t"), StartTime: strPtr("10:00"), EndTime: strPtr("10:00")}, "end_time"},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			_, err := suite.service.CreateTask(suite.ctx, suite.scope, tt.fields)
			suite.Require().Error(err)
			var ve *services.ValidationError
			suite.Require().ErrorAs(err, &ve)
			suite.Equal(tt.field, ve.Field)
		})
	}

	_, err := suite.service.CreateTask(suite.ctx, suite.scope, services.TaskFields{
		Title: strPtr("t"), StartTime: strPtr("11:00"), EndTime: strPtr("10:00"),
	})
	suite.ErrorIs(err, scheduling.ErrEndTimeNotAfterStart)
}

func (suite *TaskServiceTestSuite) TestCreateTask_NormalizesSchedule() {
	task := suite.create(services.TaskFields{
		Title:     strPtr("회의"),
		StartDate: strPtr("2024-01-01"),
		EndDate:   strPtr("2024-01-01"),
		StartTime: strPtr("09:00:00"),
		EndTime:   strPtr("10:30"),
	})

	suite.Equal("09:00", *task.StartTime)
	suite.Equal("10:30", *task.EndTime)
	suite.Equal("2024-01-01", *task.EndDate)
}

func (suite *TaskServiceTestSuite) TestUpdateTask_PartialAndClear() {
	task := suite.create(services.TaskFields{
		Title:       strPtr("원래"),
		Description: strPtr("설명"),
		DueDate:     strPtr("2024-05-01"),
	})

	updated, err := suite.service.UpdateTask(suite.ctx, suite.scope, task.ID, services.TaskFields{
		Description: strPtr(""),
		Status:      strPtr("in_progress"),
	})
	suite.Require().NoError(err)

	suite.Equal("원래", updated.Title)
	suite.Nil(updated.Description)
	suite.Equal(models.StatusInProgress, updated.Status)
	suite.Require().NotNil(updated.DueDate)
	suite.Equal("2024-05-01", *updated.DueDate)

	same, err := suite.service.UpdateTask(suite.ctx, suite.scope, task.ID, services.TaskFields{})
	suite.Require().NoError(err)
	suite.Equal(updated.Status, same.Status)
}

func (suite *TaskServiceTestSuite) TestUpdateTask_RevalidatesMergedResult() {
	task := suite.create(services.TaskFields{
		Title:     strPtr("t"),
		StartTime: strPtr("09:00"),
		EndTime:   strPtr("10:00"),
	})

	_, err := suite.service.UpdateTask(suite.ctx, suite.scope, task.ID, services.TaskFields{StartTime: strPtr("11:00")})
	suite.ErrorIs(err, scheduling.ErrEndTimeNotAfterStart)

	_, err = suite.service.UpdateTask(suite.ctx, suite.scope, task.ID, services.TaskFields{Title: strPtr("")})
	suite.True(services.IsValidation(err))

	reloaded, err := suite.service.GetTask(suite.ctx, suite.scope, task.ID)
	suite.Require().NoError(err)
	suite.Equal("09:00", *reloaded.StartTime)
	suite.Equal("t", reloaded.Title)
}

func (suite *TaskServiceTestSuite) TestWorkspaceIsolation() {
	task := suite.create(services.TaskFields{Title: strPtr("t")})

	_, err := suite.service.GetTask(suite.ctx, suite.other, task.ID)
	suite.ErrorIs(err, services.ErrTaskNotFound)

	_, err = suite.service.UpdateTask(suite.ctx, suite.other, task.ID, services.TaskFields{Title: strPtr("x")})
	suite.ErrorIs(err, services.ErrTaskNotFound)

	err = suite.service.DeleteTask(suite.ctx, suite.other, task.ID)
	suite.ErrorIs(err, services.ErrTaskNotFound)

	list, err := suite.service.ListTasks(suite.ctx, suite.other, repositories.OrderByDueDate)
	suite.Require().NoError(err)
	suite.Empty(list)

	_, err = suite.service.ListTasks(suite.ctx, services.Scope{}, repositories.OrderByDueDate)
	suite.ErrorIs(err, services.ErrNoWorkspace)
}

func (suite *TaskServiceTestSuite) TestToggleStatus() {
	task := suite.create(services.TaskFields{Title: strPtr("t"), Status: strPtr("backlog")})

	toggled, err := suite.service.ToggleStatus(suite.ctx, suite.scope, task.ID)
	suite.Require().NoError(err)
	suite.Equal(models.StatusDone, toggled.Status)

	toggled, err = suite.service.ToggleStatus(suite.ctx, suite.scope, task.ID)
	suite.Require().NoError(err)
	suite.Equal(models.StatusTodo, toggled.Status)
}

func (suite *TaskServiceTestSuite) TestMoveToColumn_AppendsToEnd() {
	a := suite.create(services.TaskFields{Title: strPtr("a")})
	b := suite.create(services.TaskFields{Title: strPtr("b")})
	c := suite.create(services.TaskFields{Title: strPtr("c")})

	moved, err := suite.service.MoveToColumn(suite.ctx, suite.scope, a.ID, models.StatusInProgress)
	suite.Require().NoError(err)
	suite.Equal(models.StatusInProgress, moved.Status)
	suite.Equal(1, moved.KanbanOrder, "empty column starts at 1")

	moved, err = suite.service.MoveToColumn(suite.ctx, suite.scope, b.ID, models.StatusInProgress)
	suite.Require().NoError(err)
	suite.Equal(2, moved.KanbanOrder)

	moved, err = suite.service.MoveToColumn(suite.ctx, suite.scope, c.ID, models.StatusInProgress)
	suite.Require().NoError(err)
	suite.Equal(3, moved.KanbanOrder)

	// Re-dropping the last card excludes itself from the max.
	moved, err = suite.service.MoveToColumn(suite.ctx, suite.scope, c.ID, models.StatusInProgress)
	suite.Require().NoError(err)
	suite.Equal(3, moved.KanbanOrder)

	// Other workspaces do not affect the order.
	otherTask, err := suite.service.CreateTask(suite.ctx, suite.other, services.TaskFields{Title: strPtr("x")})
	suite.Require().NoError(err)
	moved, err = suite.service.MoveToColumn(suite.ctx, suite.other, otherTask.ID, models.StatusInProgress)
	suite.Require().NoError(err)
	suite.Equal(1, moved.KanbanOrder)

	list, err := suite.service.ListTasks(suite.ctx, suite.scope, repositories.OrderByKanban)
	suite.Require().NoError(err)
	var column []models.Task
	for _, col := range scheduling.Board(list) {
		if col.Status == models.StatusInProgress {
			column = col.Tasks
		}
	}
	suite.Require().Len(column, 3)
	suite.Equal([]string{"a", "b", "c"}, []string{column[0].Title, column[1].Title, column[2].Title})

	_, err = suite.service.MoveToColumn(suite.ctx, suite.scope, a.ID, models.TaskStatus("archived"))
	suite.True(services.IsValidation(err))
}

func (suite *TaskServiceTestSuite) TestListTasks_DueDateOrder() {
	suite.create(services.TaskFields{Title: strPtr("none")})
	suite.create(services.TaskFields{Title: strPtr("late"), DueDate: strPtr("2024-02-01")})
	suite.create(services.TaskFields{Title: strPtr("early"), DueDate: strPtr("2024-01-01")})

	list, err := suite.service.ListTasks(suite.ctx, suite.scope, repositories.OrderByDueDate)
	suite.Require().NoError(err)
	suite.Require().Len(list, 3)
	suite.Equal("early", list[0].Title)
	suite.Equal("late", list[1].Title)
	suite.Equal("none", list[2].Title)
}

func (suite *TaskServiceTestSuite) TestDeleteTask_CascadesAttachments() {
	task := suite.create(services.TaskFields{Title: strPtr("t")})

	att, err := suite.atts.Upload(suite.ctx, suite.scope, task.ID, services.FileUpload{
		Name: "a.pdf", Size: 3, ContentType: "application/pdf", Body: strings.NewReader("pdf"),
	})
	suite.Require().NoError(err)

	suite.Require().NoError(suite.service.DeleteTask(suite.ctx, suite.scope, task.ID))

	_, err = suite.service.GetTask(suite.ctx, suite.scope, task.ID)
	suite.ErrorIs(err, services.ErrTaskNotFound)
	suite.Require().Len(suite.store.removes, 1)
	suite.Equal([]string{att.StoragePath}, suite.store.removes[0])
	suite.Empty(suite.store.objects)

	err = suite.service.DeleteTask(suite.ctx, suite.scope, task.ID)
	suite.ErrorIs(err, services.ErrTaskNotFound)
}

func TestTaskServiceTestSuite(t *testing.T) {
	suite.Run(t, new(TaskServiceTestSuite))
}
