// Package push exposes device token registration so offline callees can
// still be rung.
package push

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	redisrepo "wavelink-backend/internal/repository/redis"
	"wavelink-backend/pkg/response"
)

// TokenStore persists device push tokens.
type TokenStore interface {
	Register(ctx context.Context, userID uuid.UUID, token redisrepo.PushToken) error
	Unregister(ctx context.Context, userID uuid.UUID, token redisrepo.PushToken) error
}

// Handler handles push token HTTP requests
type Handler struct {
	tokens TokenStore
}

// NewHandler creates a new push token handler
func NewHandler(tokens TokenStore) *Handler {
	return &Handler{tokens: tokens}
}

// TokenRequest registers or removes one device token.
type TokenRequest struct {
	Platform string `json:"platform" binding:"required,oneof=fcm apns"`
	Token    string `json:"token" binding:"required"`
}

// Register stores a device token for the current user
// POST /v1/push/tokens
func (h *Handler) Register(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	token := redisrepo.PushToken{Platform: req.Platform, Token: req.Token}
	if err := h.tokens.Register(c.Request.Context(), userID, token); err != nil {
		response.InternalError(c, "Failed to register push token")
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"registered": true})
}

// Unregister removes a device token for the current user
// DELETE /v1/push/tokens
func (h *Handler) Unregister(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	token := redisrepo.PushToken{Platform: req.Platform, Token: req.Token}
	if err := h.tokens.Unregister(c.Request.Context(), userID, token); err != nil {
		response.InternalError(c, "Failed to unregister push token")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"unregistered": true})
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
