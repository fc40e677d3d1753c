package services

import (
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
)

var (
	ErrTaskNotFound          = errors.New("할 일을 찾을 수 없습니다.")
	ErrWorkspaceNotFound     = errors.New("워크스페이스를 찾을 수 없습니다.")
	ErrWorkspaceKeyTaken     = errors.New("이미 사용 중인 워크스페이스 키입니다.")
	ErrWorkspaceProvisioning = errors.New("워크스페이스 생성 중 오류가 발생했습니다.")
	ErrAttachmentNotFound    = errors.New("첨부파일을 찾을 수 없습니다.")
	ErrStorageNotConfigured  = errors.New("스토리지 설정이 필요합니다. 관리자에게 문의하세요.")
	ErrUploadFailed          = errors.New("스토리지 업로드 실패")
	ErrMetadataSaveFailed    = errors.New("메타데이터 저장 실패")
	ErrDatabaseNotConfigured = errors.New("데이터베이스 설정이 필요합니다. 관리자에게 문의하세요.")
	ErrNoWorkspace           = errors.New("no workspace selected")
)

// ValidationError is a rejected input; Message is shown to the user as is.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func newValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: err.Error(), Err: err}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Scope is the caller's session context: the workspace every task query is
// confined to and the user recorded as author.
type Scope struct {
	WorkspaceID uuid.UUID
	UserID      uuid.UUID
}

func (s Scope) check() error {
	if s.WorkspaceID.IsNil() {
		return ErrNoWorkspace
	}
	return nil
}
