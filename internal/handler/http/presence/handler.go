// Package presence exposes the heartbeat endpoints the push fallback relies
// on: a user with a fresh heartbeat is rung over their realtime socket, a
// stale one over push.
package presence

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"wavelink-backend/pkg/response"
)

// PresenceStore tracks user liveness.
type PresenceStore interface {
	Heartbeat(ctx context.Context, userID uuid.UUID) error
	SetUserOffline(ctx context.Context, userID uuid.UUID) error
	IsUserOnline(ctx context.Context, userID uuid.UUID) (bool, error)
}

// Handler handles presence HTTP requests
type Handler struct {
	store PresenceStore
}

// NewHandler creates a new presence handler
func NewHandler(store PresenceStore) *Handler {
	return &Handler{store: store}
}

// Heartbeat refreshes the current user's presence TTL
// POST /v1/presence/heartbeat
func (h *Handler) Heartbeat(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.store.Heartbeat(c.Request.Context(), userID); err != nil {
		response.InternalError(c, "Failed to record heartbeat")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"online": true})
}

// Offline marks the current user offline immediately
// DELETE /v1/presence
func (h *Handler) Offline(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.store.SetUserOffline(c.Request.Context(), userID); err != nil {
		response.InternalError(c, "Failed to clear presence")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"online": false})
}

func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	val, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, false
	}
	userID, ok := val.(uuid.UUID)
	if !ok {
		response.InternalError(c, "Invalid user ID")
		return uuid.Nil, false
	}
	return userID, true
}
