package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"task-calendar/backend/internal/models"
	"task-calendar/backend/internal/repositories"
	"task-calendar/backend/internal/storage"

	"github.com/gofrs/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const DefaultMaxFileSize int64 = 10 << 20

var (
	ErrFileTypeNotAllowed = &ValidationError{Field: "file", Message: "허용되지 않는 파일 형식입니다. (jpg, png, gif, pdf, doc, docx만 가능)"}
	ErrFileTooLarge       = &ValidationError{Field: "file", Message: "파일 크기는 10MB를 초과할 수 없습니다."}
)

var allowedFileTypes = map[string]bool{
	"image/jpeg":         true,
	"image/png":          true,
	"image/gif":          true,
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

func IsAllowedFileType(contentType string) bool {
	return allowedFileTypes[contentType]
}

type FileUpload struct {
	Name        string
	Size        int64
	ContentType string
	Body        io.Reader
}

// RemoveResult carries the blob delete failure, if any. The metadata row is
// gone either way and the blob is queued for cleanup.
type RemoveResult struct {
	BlobError error
}

// CleanupQueue retries blob deletes in the background.
type CleanupQueue interface {
	EnqueueBlobCleanup(ctx context.Context, paths []string, reason string) error
}

type AttachmentService interface {
	Upload(ctx context.Context, scope Scope, taskID uuid.UUID, file FileUpload) (*models.Attachment, error)
	Remove(ctx context.Context, scope Scope, id uuid.UUID) (RemoveResult, error)
	Download(ctx context.Context, scope Scope, id uuid.UUID) (*models.Attachment, io.ReadCloser, error)
	List(ctx context.Context, scope Scope, taskID uuid.UUID) ([]models.Attachment, error)
	RemoveAllForTask(ctx context.Context, scope Scope, taskID uuid.UUID) error
}

type AttachmentServiceImpl struct {
	repo         repositories.AttachmentRepository
	tasks        repositories.TaskRepository
	store        storage.BlobStore
	cleanup      CleanupQueue
	log          logrus.FieldLogger
	maxSize      int64
	cacheControl string
	now          func() time.Time
	token        func() (string, error)
}

type AttachmentOption func(*AttachmentServiceImpl)

func WithMaxFileSize(n int64) AttachmentOption {
	return func(s *AttachmentServiceImpl) {
		if n > 0 {
			s.maxSize = n
		}
	}
}

func WithCacheControl(v string) AttachmentOption {
	return func(s *AttachmentServiceImpl) { s.cacheControl = v }
}

func WithCleanupQueue(q CleanupQueue) AttachmentOption {
	return func(s *AttachmentServiceImpl) { s.cleanup = q }
}

func NewAttachmentService(repo repositories.AttachmentRepository, tasks repositories.TaskRepository, store storage.BlobStore, log logrus.FieldLogger, opts ...AttachmentOption) *AttachmentServiceImpl {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &AttachmentServiceImpl{
		repo:         repo,
		tasks:        tasks,
		store:        store,
		log:          log,
		maxSize:      DefaultMaxFileSize,
		cacheControl: "3600",
		now:          time.Now,
		token:        randomToken,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AttachmentServiceImpl) Upload(ctx context.Context, scope Scope, taskID uuid.UUID, file FileUpload) (*models.Attachment, error) {
	if !IsAllowedFileType(file.ContentType) {
		return nil, ErrFileTypeNotAllowed
	}
	if file.Size > s.maxSize {
		return nil, ErrFileTooLarge
	}
	if err := s.checkTask(ctx, scope, taskID); err != nil {
		return nil, err
	}

	token, err := s.token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	path := fmt.Sprintf("%s/%s/%d_%s%s",
		scope.UserID, taskID, s.now().UnixMilli(), token, fileExtension(file.Name))

	err = s.store.Upload(ctx, path, file.Body, storage.UploadOptions{
		ContentType:  file.ContentType,
		CacheControl: s.cacheControl,
	})
	if err != nil {
		attachmentOps.WithLabelValues("upload", "blob_error").Inc()
		if errors.Is(err, storage.ErrNotConfigured) {
			return nil, ErrStorageNotConfigured
		}
		s.log.WithError(err).WithField("path", path).Error("attachment upload failed")
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	att := &models.Attachment{
		TaskID:      taskID,
		UserID:      scope.UserID,
		FileName:    file.Name,
		FileSize:    file.Size,
		FileType:    file.ContentType,
		StoragePath: path,
	}
	if err := s.repo.Create(ctx, att); err != nil {
		attachmentOps.WithLabelValues("upload", "metadata_error").Inc()
		s.log.WithError(err).WithField("path", path).Error("attachment metadata insert failed, removing blob")
		if rmErr := s.store.Remove(ctx, path); rmErr != nil {
			s.queueCleanup(ctx, []string{path}, "orphaned upload", rmErr)
		}
		if isSchemaMissing(err) {
			return nil, ErrDatabaseNotConfigured
		}
		return nil, fmt.Errorf("%w: %v", ErrMetadataSaveFailed, err)
	}

	attachmentOps.WithLabelValues("upload", "ok").Inc()
	return att, nil
}

func (s *AttachmentServiceImpl) Remove(ctx context.Context, scope Scope, id uuid.UUID) (RemoveResult, error) {
	att, err := s.find(ctx, scope, id)
	if err != nil {
		return RemoveResult{}, err
	}

	var result RemoveResult
	if err := s.store.Remove(ctx, att.StoragePath); err != nil {
		attachmentOps.WithLabelValues("remove", "blob_error").Inc()
		result.BlobError = err
		s.queueCleanup(ctx, []string{att.StoragePath}, "attachment removed", err)
	}

	if err := s.repo.Delete(ctx, att.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return result, ErrAttachmentNotFound
		}
		return result, fmt.Errorf("delete attachment: %w", err)
	}

	attachmentOps.WithLabelValues("remove", "ok").Inc()
	return result, nil
}

func (s *AttachmentServiceImpl) Download(ctx context.Context, scope Scope, id uuid.UUID) (*models.Attachment, io.ReadCloser, error) {
	att, err := s.find(ctx, scope, id)
	if err != nil {
		return nil, nil, err
	}

	body, err := s.store.Download(ctx, att.StoragePath)
	switch {
	case errors.Is(err, storage.ErrNotConfigured):
		return nil, nil, ErrStorageNotConfigured
	case errors.Is(err, storage.ErrNotFound):
		return nil, nil, ErrAttachmentNotFound
	case err != nil:
		return nil, nil, fmt.Errorf("download attachment: %w", err)
	}
	return att, body, nil
}

func (s *AttachmentServiceImpl) List(ctx context.Context, scope Scope, taskID uuid.UUID) ([]models.Attachment, error) {
	if err := s.checkTask(ctx, scope, taskID); err != nil {
		return nil, err
	}
	list, err := s.repo.ListByTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return list, nil
}

// RemoveAllForTask deletes blobs in one batch, then the rows. A failed blob
// batch is queued and does not block the row deletes.
func (s *AttachmentServiceImpl) RemoveAllForTask(ctx context.Context, scope Scope, taskID uuid.UUID) error {
	list, err := s.List(ctx, scope, taskID)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return nil
	}

	paths := make([]string, 0, len(list))
	for _, a := range list {
		paths = append(paths, a.StoragePath)
	}
	if err := s.store.Remove(ctx, paths...); err != nil {
		s.queueCleanup(ctx, paths, "task deleted", err)
	}

	for _, a := range list {
		if err := s.repo.Delete(ctx, a.ID); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("delete attachment %s: %w", a.ID, err)
		}
	}
	return nil
}

func (s *AttachmentServiceImpl) checkTask(ctx context.Context, scope Scope, taskID uuid.UUID) error {
	if err := scope.check(); err != nil {
		return err
	}
	if _, err := s.tasks.FindByID(ctx, scope.WorkspaceID, taskID); err != nil {
		return taskError(err)
	}
	return nil
}

// find loads an attachment and checks its task belongs to the scope.
func (s *AttachmentServiceImpl) find(ctx context.Context, scope Scope, id uuid.UUID) (*models.Attachment, error) {
	att, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAttachmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find attachment: %w", err)
	}
	if err := s.checkTask(ctx, scope, att.TaskID); err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return nil, ErrAttachmentNotFound
		}
		return nil, err
	}
	return att, nil
}

func (s *AttachmentServiceImpl) queueCleanup(ctx context.Context, paths []string, reason string, cause error) {
	log := s.log.WithError(cause).WithField("paths", paths)
	if s.cleanup == nil {
		log.Warn("blob delete failed")
		return
	}
	if err := s.cleanup.EnqueueBlobCleanup(ctx, paths, reason); err != nil {
		log.WithField("enqueue_error", err.Error()).Error("blob delete failed and could not be queued")
		return
	}
	log.Warn("blob delete failed, queued for cleanup")
}

// isSchemaMissing matches insert failures caused by a missing table or
// access policy rather than by the row itself.
func isSchemaMissing(err error) bool {
	m := strings.ToLower(err.Error())
	return strings.Contains(m, "row-level security") ||
		strings.Contains(m, "no such table") ||
		(strings.Contains(m, "relation") && strings.Contains(m, "does not exist"))
}

// fileExtension returns the lower-cased suffix from the last dot. A leading
// dot, as in ".bashrc", does not start an extension.
func fileExtension(name string) string {
	i := strings.LastIndex(name, ".")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(name[i:])
}

const tokenAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func randomToken() (string, error) {
	var b strings.Builder
	alphabet := big.NewInt(int64(len(tokenAlphabet)))
	for i := 0; i < 8; i++ {
		n, err := rand.Int(rand.Reader, alphabet)
		if err != nil {
			return "", err
		}
		b.WriteByte(tokenAlphabet[n.Int64()])
	}
	return b.String(), nil
}
