package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the profile projection the call layer needs: enough to resolve a
// caller's display name and avatar when ringing a callee.
type User struct {
	UserID      uuid.UUID `json:"user_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarKey   string    `json:"avatar_key,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
