// Package profile exposes the read-only profile projections call UIs need.
package profile

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"wavelink-backend/internal/service/profile"
	"wavelink-backend/pkg/response"
)

// Handler handles profile HTTP requests
type Handler struct {
	profileService *profile.Service
}

// NewHandler creates a new profile handler
func NewHandler(profileService *profile.Service) *Handler {
	return &Handler{profileService: profileService}
}

// Get returns a user's display profile with a short-lived avatar URL
// GET /v1/users/:id/profile
func (h *Handler) Get(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return
	}

	user, err := h.profileService.Get(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	avatarURL, err := h.profileService.AvatarURL(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"user_id":      user.UserID,
		"username":     user.Username,
		"display_name": user.DisplayName,
		"avatar_url":   avatarURL,
	})
}
