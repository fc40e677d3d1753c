package handlers

import (
	"errors"
	"net/http"

	"task-calendar/backend/internal/middleware"
	"task-calendar/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// handleTaskError maps service errors onto status codes and user-facing
// messages. Unexpected errors are logged and hidden behind a generic 500.
func handleTaskError(c *gin.Context, log logrus.FieldLogger, err error) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		middleware.RequestLogger(c, log).WithError(err).Debug("validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Message, "field": ve.Field})
	case errors.Is(err, services.ErrTaskNotFound),
		errors.Is(err, services.ErrAttachmentNotFound),
		errors.Is(err, services.ErrWorkspaceNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundMessage(err)})
	case errors.Is(err, services.ErrWorkspaceKeyTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrStorageNotConfigured),
		errors.Is(err, services.ErrDatabaseNotConfigured):
		middleware.RequestLogger(c, log).WithError(err).Error("backend setup required")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "setup_required": true})
	case errors.Is(err, services.ErrUploadFailed),
		errors.Is(err, services.ErrMetadataSaveFailed):
		middleware.RequestLogger(c, log).WithError(err).Error("attachment upload failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNoWorkspace):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "로그인이 필요합니다."})
	default:
		middleware.RequestLogger(c, log).WithError(err).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process request"})
	}
}

func notFoundMessage(err error) string {
	for _, known := range []error{services.ErrTaskNotFound, services.ErrAttachmentNotFound, services.ErrWorkspaceNotFound} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return services.ErrTaskNotFound.Error()
}

func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.FromString(c.Param(name))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundMessage(services.ErrTaskNotFound)})
		return uuid.Nil, false
	}
	return id, true
}

func scopeOrAbort(c *gin.Context) (services.Scope, bool) {
	scope, ok := middleware.ScopeFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "로그인이 필요합니다."})
		return services.Scope{}, false
	}
	return scope, true
}
