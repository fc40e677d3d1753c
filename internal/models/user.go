package models

import (
	"strings"

	"github.com/gofrs/uuid"
)

// User is an identity owned by the external identity service. It is never
// persisted by this service.
type User struct {
	ID       uuid.UUID              `json:"id"`
	Email    string                 `json:"email"`
	Metadata map[string]interface{} `json:"user_metadata,omitempty"`
}

func (u *User) MetadataString(key string) string {
	if u.Metadata == nil {
		return ""
	}
	v, _ := u.Metadata[key].(string)
	return strings.TrimSpace(v)
}

// EmailLocalPart returns the part of the address before '@'.
func (u *User) EmailLocalPart() string {
	local, _, _ := strings.Cut(u.Email, "@")
	return strings.TrimSpace(local)
}
