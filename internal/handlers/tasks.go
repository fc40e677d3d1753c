package handlers

import (
	"net/http"

	"task-calendar/backend/internal/models"
	"task-calendar/backend/internal/repositories"
	"task-calendar/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type TaskHandler struct {
	taskService services.TaskService
	log         logrus.FieldLogger
}

func NewTaskHandler(taskService services.TaskService, log logrus.FieldLogger) *TaskHandler {
	return &TaskHandler{taskService: taskService, log: log}
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	scope, ok := scopeOrAbort(c)
	if !ok {
		return
	}

	var input services.TaskFields
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.taskService.CreateTask(c.Request.Context(), scope, input)
	if err != nil {
		handleTaskError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) GetTaskByID(c *gin.Context) {
	scope, ok := scopeOrAbort(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	task, err := h.taskService.GetTask(c.Request.Context(), scope, id)
	if err != nil {
		handleTaskError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// GetTasks lists the workspace's tasks; ?order=kanban switches from the
// default due-date order.
func (h *TaskHandler) GetTasks(c *gin.Context) {
	scope, ok := scopeOrAbort(c)
	if !ok {
		return
	}

	order := repositories.OrderByDueDate
	switch c.DefaultQuery("order", "due_date") {
	case "due_date":
	case "kanban":
		order = repositories.OrderByKanban
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "order must be due_date or kanban"})
		return
	}

	tasks, err := h.taskService.ListTasks(c.Request.Context(), scope, order)
	if err != nil {
		handleTaskError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tasks": tasks,
		"total": len(tasks),
	})
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	scope, ok := scopeOrAbort(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var patch services.TaskFields
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.taskService.UpdateTask(c.Request.Context(), scope, id, patch)
	if err != nil {
		handleTaskError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	scope, ok := scopeOrAbort(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.taskService.DeleteTask(c.Request.Context(), scope, id); err != nil {
		handleTaskError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TaskHandler) ToggleStatus(c *gin.Context) {
	scope, ok := scopeOrAbort(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	task, err := h.taskService.ToggleStatus(c.Request.Context(), scope, id)
	if err != nil {
		handleTaskError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) MoveToColumn(c *gin.Context) {
	scope, ok := scopeOrAbort(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var input struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.taskService.MoveToColumn(c.Request.Context(), scope, id, models.TaskStatus(input.Status))
	if err != nil {
		handleTaskError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, task)
}
