package handlers

import (
	"net/http"
	"time"

	"task-calendar/backend/internal/models"
	"task-calendar/backend/internal/repositories"
	"task-calendar/backend/internal/scheduling"
	"task-calendar/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// taskView is a task with the schedule figures the views display.
type taskView struct {
	models.Task
	Duration string `json:"duration,omitempty"`
	MultiDay bool   `json:"multi_day"`
	SpanDays int    `json:"span_days,omitempty"`
}

func newTaskView(t models.Task) taskView {
	v := taskView{Task: t}
	if minutes, ok := scheduling.Duration(deref(t.StartTime), deref(t.EndTime)); ok {
		v.Duration = scheduling.FormatDuration(minutes)
	}
	v.MultiDay = scheduling.IsMultiDay(deref(t.StartDate), deref(t.EndDate))
	if days, ok := scheduling.DateSpan(deref(t.StartDate), deref(t.EndDate)); ok {
		v.SpanDays = days
	}
	return v
}

func newTaskViews(tasks []models.Task) []taskView {
	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, newTaskView(t))
	}
	return views
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ViewHandler serves the read-only projections behind the dashboard, the
// calendar and the kanban board.
type ViewHandler struct {
	taskService services.TaskService
	location    *time.Location
	now         func() time.Time
	log         logrus.FieldLogger
}

func NewViewHandler(taskService services.TaskService, location *time.Location, log logrus.FieldLogger) *ViewHandler {
	if location == nil {
		location = time.UTC
	}
	return &ViewHandler{taskService: taskService, location: location, now: time.Now, log: log}
}

// day reads a YYYY-MM-DD query parameter, defaulting to today in the
// configured zone.
func (h *ViewHandler) day(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		now := h.now().In(h.location)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), true
	}
	d, ok := scheduling.ParseDate(raw)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": scheduling.ErrInvalidDate.Error(), "field": name})
		return time.Time{}, false
	}
	return d, true
}

func (h *ViewHandler) list(c *gin.Context, order repositories.TaskOrder) ([]models.Task, bool) {
	scope, ok := scopeOrAbort(c)
	if !ok {
		return nil, false
	}
	tasks, err := h.taskService.ListTasks(c.Request.Context(), scope, order)
	if err != nil {
		handleTaskError(c, h.log, err)
		return nil, false
	}
	return tasks, true
}

func (h *ViewHandler) Dashboard(c *gin.Context) {
	today, ok := h.day(c, "today")
	if !ok {
		return
	}
	tasks, ok := h.list(c, repositories.OrderByDueDate)
	if !ok {
		return
	}

	buckets := scheduling.Buckets(tasks, today)
	c.JSON(http.StatusOK, gin.H{
		"today":     today.Format(scheduling.DateLayout),
		"overdue":   newTaskViews(buckets.Overdue),
		"due_today": newTaskViews(buckets.Today),
		"upcoming":  newTaskViews(buckets.Upcoming),
	})
}

func (h *ViewHandler) Calendar(c *gin.Context) {
	day, ok := h.day(c, "date")
	if !ok {
		return
	}
	tasks, ok := h.list(c, repositories.OrderByDueDate)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"date":  day.Format(scheduling.DateLayout),
		"tasks": newTaskViews(scheduling.TasksOn(tasks, day)),
	})
}

func (h *ViewHandler) Board(c *gin.Context) {
	tasks, ok := h.list(c, repositories.OrderByKanban)
	if !ok {
		return
	}

	type column struct {
		Status models.TaskStatus `json:"status"`
		Tasks  []taskView        `json:"tasks"`
	}
	board := scheduling.Board(tasks)
	columns := make([]column, 0, len(board))
	for _, col := range board {
		columns = append(columns, column{Status: col.Status, Tasks: newTaskViews(col.Tasks)})
	}
	c.JSON(http.StatusOK, gin.H{"columns": columns})
}
