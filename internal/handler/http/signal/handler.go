// Package signal exposes the signaling relay over HTTP. Clients POST their
// SDP and ICE payloads here instead of pushing them over the socket, so the
// server can stamp the sender identity before fan-out.
package signal

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"wavelink-backend/internal/domain"
	"wavelink-backend/internal/service/relay"
	"wavelink-backend/pkg/response"
)

// Handler handles signaling relay HTTP requests
type Handler struct {
	relayService *relay.Service
}

// NewHandler creates a new signal handler
func NewHandler(relayService *relay.Service) *Handler {
	return &Handler{relayService: relayService}
}

// RelayRequest is one signaling message to fan out.
type RelayRequest struct {
	ChatID   string `json:"chat_id" binding:"required,uuid"`
	CallType string `json:"call_type" binding:"required"`
	To       string `json:"to,omitempty"`

	Type          string  `json:"type" binding:"required"`
	SDP           string  `json:"sdp,omitempty"`
	Candidate     string  `json:"candidate,omitempty"`
	SDPMid        *string `json:"sdp_mid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdp_mline_index,omitempty"`
	DisplayName   string  `json:"display_name,omitempty"`
}

// Relay publishes a signaling message onto the call's broadcast channel
// POST /v1/signal
func (h *Handler) Relay(c *gin.Context) {
	var req RelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	callerIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return
	}
	callerID, ok := callerIDVal.(uuid.UUID)
	if !ok {
		response.InternalError(c, "Invalid user ID")
		return
	}

	chatID, err := uuid.Parse(req.ChatID)
	if err != nil {
		response.ValidationError(c, "Invalid chat ID")
		return
	}

	var to *uuid.UUID
	if req.To != "" {
		target, err := uuid.Parse(req.To)
		if err != nil {
			response.ValidationError(c, "Invalid target ID")
			return
		}
		to = &target
	}

	err = h.relayService.Relay(c.Request.Context(), &relay.Input{
		CallerID: callerID,
		To:       to,
		ChatID:   chatID,
		CallType: domain.CallType(req.CallType),
		Message: domain.SignalMessage{
			Type:          req.Type,
			SDP:           req.SDP,
			Candidate:     req.Candidate,
			SDPMid:        req.SDPMid,
			SDPMLineIndex: req.SDPMLineIndex,
			DisplayName:   req.DisplayName,
		},
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{"relayed": true})
}
