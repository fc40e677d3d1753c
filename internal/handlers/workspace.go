package handlers

import (
	"net/http"

	"task-calendar/backend/internal/middleware"
	"task-calendar/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// workspaceCookieMaxAge keeps a key login for thirty days.
const workspaceCookieMaxAge = 30 * 24 * 60 * 60

type WorkspaceHandler struct {
	workspaces services.WorkspaceService
	cookies    CookieOptions
	log        logrus.FieldLogger
}

func NewWorkspaceHandler(workspaces services.WorkspaceService, cookies CookieOptions, log logrus.FieldLogger) *WorkspaceHandler {
	return &WorkspaceHandler{workspaces: workspaces, cookies: cookies, log: log}
}

type WorkspaceLoginRequest struct {
	WorkspaceKey string `json:"workspace_key"`
}

type CreateWorkspaceRequest struct {
	Name         string `json:"name"`
	WorkspaceKey string `json:"workspace_key"`
}

// Login opens an existing workspace by its key and remembers it in a cookie.
func (h *WorkspaceHandler) Login(c *gin.Context) {
	var req WorkspaceLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ws, err := h.workspaces.LoginWithKey(c.Request.Context(), req.WorkspaceKey)
	if err != nil {
		handleTaskError(c, h.log, err)
		return
	}

	h.cookies.set(c, middleware.WorkspaceCookie, ws.WorkspaceKey, workspaceCookieMaxAge)
	c.JSON(http.StatusOK, gin.H{"workspace": ws})
}

func (h *WorkspaceHandler) Create(c *gin.Context) {
	var req CreateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ws, err := h.workspaces.CreateWithKey(c.Request.Context(), req.Name, req.WorkspaceKey)
	if err != nil {
		handleTaskError(c, h.log, err)
		return
	}

	middleware.RequestLogger(c, h.log).WithField("workspace_id", ws.ID.String()).Info("workspace created with key")
	h.cookies.set(c, middleware.WorkspaceCookie, ws.WorkspaceKey, workspaceCookieMaxAge)
	c.JSON(http.StatusCreated, gin.H{"workspace": ws})
}

// Current returns the workspace the request resolved to.
func (h *WorkspaceHandler) Current(c *gin.Context) {
	scope, ok := scopeOrAbort(c)
	if !ok {
		return
	}

	ws, err := h.workspaces.GetWorkspace(c.Request.Context(), scope.WorkspaceID)
	if err != nil {
		handleTaskError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workspace": ws})
}

func (h *WorkspaceHandler) Logout(c *gin.Context) {
	h.cookies.clear(c, middleware.WorkspaceCookie)
	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}
