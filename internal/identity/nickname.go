package identity

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"task-calendar/backend/internal/models"
)

const DefaultNickname = "사용자"

var (
	ErrNicknameTooShort     = errors.New("닉네임은 최소 2자 이상이어야 합니다")
	ErrNicknameTooLong      = errors.New("닉네임은 최대 20자까지 가능합니다")
	ErrNicknameInvalidChars = errors.New("한글, 영문, 숫자만 사용 가능합니다")
	ErrNicknameDoubleSpace  = errors.New("연속된 공백은 사용할 수 없습니다")
)

var (
	nicknamePattern = regexp.MustCompile(`^[가-힣a-zA-Z0-9\s]+$`)
	doubleSpace     = regexp.MustCompile(`\s{2,}`)
)

// ValidateNickname applies the sign-up rules. Length counts characters, not bytes.
func ValidateNickname(nickname string) error {
	n := utf8.RuneCountInString(nickname)
	switch {
	case n < 2:
		return ErrNicknameTooShort
	case n > 20:
		return ErrNicknameTooLong
	case !nicknamePattern.MatchString(nickname):
		return ErrNicknameInvalidChars
	case doubleSpace.MatchString(nickname):
		return ErrNicknameDoubleSpace
	}
	return nil
}

// DeriveNickname picks the display name for a first workspace: the sign-up
// nickname, then the OAuth profile name, then the e-mail local part.
func DeriveNickname(u models.User) string {
	for _, key := range []string{"nickname", "full_name", "name"} {
		if v := u.MetadataString(key); v != "" {
			return v
		}
	}
	if local := u.EmailLocalPart(); local != "" {
		return local
	}
	return DefaultNickname
}

func WorkspaceName(nickname string) string {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		nickname = DefaultNickname
	}
	return nickname + "의 워크스페이스"
}
