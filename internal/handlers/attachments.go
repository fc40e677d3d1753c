package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"task-calendar/backend/internal/middleware"
	"task-calendar/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// multipartOverhead is the slack allowed on top of the file size for the
// multipart envelope.
const multipartOverhead = 1 << 20

type AttachmentHandler struct {
	attachments services.AttachmentService
	maxFileSize int64
	log         logrus.FieldLogger
}

func NewAttachmentHandler(attachments services.AttachmentService, maxFileSize int64, log logrus.FieldLogger) *AttachmentHandler {
	if maxFileSize <= 0 {
		maxFileSize = services.DefaultMaxFileSize
	}
	return &AttachmentHandler{attachments: attachments, maxFileSize: maxFileSize, log: log}
}

func (h *AttachmentHandler) Upload(c *gin.Context) {
	scope, ok := scopeOrAbort(c)
	if !ok {
		return
	}
	taskID, ok := paramID(c, "id")
	if !ok {
		return
	}

	limit := h.maxFileSize + multipartOverhead
	if c.Request.ContentLength > limit {
		handleTaskError(c, h.log, services.ErrFileTooLarge)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	header, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			handleTaskError(c, h.log, services.ErrFileTooLarge)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	}

	att, err := h.attachments.Upload(c.Request.Context(), scope, taskID, services.FileUpload{
		Name:        header.Filename,
		Size:        header.Size,
		ContentType: contentType,
		Body:        file,
	})
	if err != nil {
		handleTaskError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, att)
}

func (h *AttachmentHandler) List(c *gin.Context) {
	scope, ok := scopeOrAbort(c)
	if !ok {
		return
	}
	taskID, ok := paramID(c, "id")
	if !ok {
		return
	}

	list, err := h.attachments.List(c.Request.Context(), scope, taskID)
	if err != nil {
		handleTaskError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attachments": list})
}

func (h *AttachmentHandler) Download(c *gin.Context) {
	scope, ok := scopeOrAbort(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "attachment_id")
	if !ok {
		return
	}

	att, body, err := h.attachments.Download(c.Request.Context(), scope, id)
	if err != nil {
		handleTaskError(c, h.log, err)
		return
	}
	defer body.Close()

	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": att.FileName}))
	c.Header("Content-Length", strconv.FormatInt(att.FileSize, 10))
	c.Header("Content-Type", att.FileType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, body); err != nil {
		middleware.RequestLogger(c, h.log).WithError(err).Warn("attachment download interrupted")
	}
}

func (h *AttachmentHandler) Remove(c *gin.Context) {
	scope, ok := scopeOrAbort(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "attachment_id")
	if !ok {
		return
	}

	result, err := h.attachments.Remove(c.Request.Context(), scope, id)
	if err != nil {
		handleTaskError(c, h.log, err)
		return
	}

	resp := gin.H{"deleted": true}
	if result.BlobError != nil {
		resp["warning"] = fmt.Sprintf("파일 삭제가 지연되었습니다: %v", result.BlobError)
	}
	c.JSON(http.StatusOK, resp)
}
