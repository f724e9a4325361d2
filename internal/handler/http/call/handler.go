// Package call exposes call lifecycle endpoints: starting a call rings the
// callees and opens its history record; outcome reports close it; decline
// and cancel propagate pre-answer teardown through personal channels.
package call

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"wavelink-backend/internal/domain"
	"wavelink-backend/internal/service/history"
	"wavelink-backend/internal/service/notify"
	"wavelink-backend/pkg/response"
)

// Handler handles call lifecycle HTTP requests
type Handler struct {
	historyService *history.Service
	notifyService  *notify.Service
}

// NewHandler creates a new call handler
func NewHandler(historyService *history.Service, notifyService *notify.Service) *Handler {
	return &Handler{
		historyService: historyService,
		notifyService:  notifyService,
	}
}

// StartCallRequest initiates a call and rings the callees.
type StartCallRequest struct {
	ChatID    string   `json:"chat_id" binding:"required,uuid"`
	CallType  string   `json:"call_type" binding:"required"`
	CalleeIDs []string `json:"callee_ids" binding:"required,min=1"`
}

// Start opens a call record and rings every callee
// POST /v1/calls
func (h *Handler) Start(c *gin.Context) {
	var req StartCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	callerID, ok := currentUserID(c)
	if !ok {
		return
	}

	chatID, err := uuid.Parse(req.ChatID)
	if err != nil {
		response.ValidationError(c, "Invalid chat ID")
		return
	}

	calleeIDs := make([]uuid.UUID, len(req.CalleeIDs))
	for i, idStr := range req.CalleeIDs {
		id, err := uuid.Parse(idStr)
		if err != nil {
			response.ValidationError(c, "Invalid callee ID: "+idStr)
			return
		}
		calleeIDs[i] = id
	}

	callType := domain.CallType(req.CallType)
	call, err := h.historyService.Start(c.Request.Context(), callerID, chatID, callType)
	if err != nil {
		response.FromError(c, err)
		return
	}

	// Ring after the record exists; a failed ring still leaves a missed call
	// behind, which is what the callee's history should show.
	for _, calleeID := range calleeIDs {
		if err := h.notifyService.Ring(c.Request.Context(), call.CallID, callerID, calleeID, chatID, callType); err != nil {
			response.FromError(c, err)
			return
		}
	}

	response.Success(c, http.StatusCreated, call)
}

// OutcomeRequest closes a call record.
type OutcomeRequest struct {
	Outcome         string `json:"outcome" binding:"required"`
	DurationSeconds int    `json:"duration_seconds"`
}

// RecordOutcome finalizes a call with its outcome
// POST /v1/calls/:id/outcome
func (h *Handler) RecordOutcome(c *gin.Context) {
	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return
	}

	var req OutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	if _, ok := currentUserID(c); !ok {
		return
	}

	duration := time.Duration(req.DurationSeconds) * time.Second
	if err := h.historyService.RecordOutcome(c.Request.Context(), callID, req.Outcome, duration); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"recorded": true})
}

// Join records the current user entering a call
// POST /v1/calls/:id/join
func (h *Handler) Join(c *gin.Context) {
	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.historyService.Join(c.Request.Context(), callID, userID); err != nil {
		response.FromError(c, err)
		return
	}
	if err := h.historyService.Activate(c.Request.Context(), callID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"joined": true})
}

// Leave records the current user leaving a call
// POST /v1/calls/:id/leave
func (h *Handler) Leave(c *gin.Context) {
	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.historyService.Leave(c.Request.Context(), callID, userID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"left": true})
}

// List returns the current user's call history
// GET /v1/calls
func (h *Handler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	calls, err := h.historyService.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"calls": calls})
}

// Get returns one call record
// GET /v1/calls/:id
func (h *Handler) Get(c *gin.Context) {
	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	call, err := h.historyService.Get(c.Request.Context(), userID, callID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, call)
}

// InviteRequest rings another user into an ongoing call.
type InviteRequest struct {
	ChatID   string `json:"chat_id" binding:"required,uuid"`
	CalleeID string `json:"callee_id" binding:"required,uuid"`
	CallType string `json:"call_type" binding:"required"`
}

// Invite rings one more callee for an existing call
// POST /v1/calls/:id/invite
func (h *Handler) Invite(c *gin.Context) {
	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return
	}

	var req InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	chatID, _ := uuid.Parse(req.ChatID)
	calleeID, _ := uuid.Parse(req.CalleeID)

	if err := h.notifyService.Ring(c.Request.Context(), callID, userID, calleeID, chatID, domain.CallType(req.CallType)); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"invited": true})
}

// DeclineRequest rejects an incoming call before answering.
type DeclineRequest struct {
	CallID   string `json:"call_id" binding:"required,uuid"`
	ChatID   string `json:"chat_id" binding:"required,uuid"`
	CallerID string `json:"caller_id" binding:"required,uuid"`
	CallType string `json:"call_type" binding:"required"`
}

// Decline notifies the caller that the current user rejected the call
// POST /v1/calls/decline
func (h *Handler) Decline(c *gin.Context) {
	var req DeclineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	callID, _ := uuid.Parse(req.CallID)
	chatID, _ := uuid.Parse(req.ChatID)
	callerID, _ := uuid.Parse(req.CallerID)

	if err := h.notifyService.Decline(c.Request.Context(), callID, userID, callerID, chatID, domain.CallType(req.CallType)); err != nil {
		response.FromError(c, err)
		return
	}

	// A declined call never connected; close its record right away.
	if err := h.historyService.RecordOutcome(c.Request.Context(), callID, domain.OutcomeDeclined, 0); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"declined": true})
}

// CancelRequest withdraws an unanswered outgoing call.
type CancelRequest struct {
	CallID   string `json:"call_id" binding:"required,uuid"`
	ChatID   string `json:"chat_id" binding:"required,uuid"`
	CalleeID string `json:"callee_id" binding:"required,uuid"`
	CallType string `json:"call_type" binding:"required"`
}

// Cancel notifies a callee that the caller hung up before they answered
// POST /v1/calls/cancel
func (h *Handler) Cancel(c *gin.Context) {
	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	callID, _ := uuid.Parse(req.CallID)
	chatID, _ := uuid.Parse(req.ChatID)
	calleeID, _ := uuid.Parse(req.CalleeID)

	if err := h.notifyService.Cancel(c.Request.Context(), callID, userID, calleeID, chatID, domain.CallType(req.CallType)); err != nil {
		response.FromError(c, err)
		return
	}

	// Cancelled before anyone answered: the callee's history shows a miss.
	if err := h.historyService.RecordOutcome(c.Request.Context(), callID, domain.OutcomeMissed, 0); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"cancelled": true})
}

// currentUserID pulls the authenticated user from the request context and
// writes the error response itself when it is missing.
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
