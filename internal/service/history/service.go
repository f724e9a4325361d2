// Package history persists call attempts and their outcomes. It is a sink:
// live call state never reads from it, so a storage outage degrades history
// without touching in-flight calls.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"

	"wavelink-backend/internal/domain"
	apperrors "wavelink-backend/pkg/errors"
	"wavelink-backend/pkg/metrics"
)

// CallStore is the persistence surface the history service needs.
type CallStore interface {
	Create(ctx context.Context, call *domain.Call) error
	UpdateStatus(ctx context.Context, callID uuid.UUID, status string) error
	Finish(ctx context.Context, callID uuid.UUID, outcome string, duration int) error
	GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error)
	GetUserCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Call, error)
	AddParticipant(ctx context.Context, callID, userID uuid.UUID) error
	RemoveParticipant(ctx context.Context, callID, userID uuid.UUID) error
}

// MembershipChecker verifies chat membership before a call record is created.
type MembershipChecker interface {
	IsMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error)
}

// Service manages call history records.
type Service struct {
	store   CallStore
	members MembershipChecker
	metrics *metrics.Metrics
}

// NewService creates a history service
func NewService(store CallStore, members MembershipChecker, m *metrics.Metrics) *Service {
	return &Service{store: store, members: members, metrics: m}
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Start records a new call attempt in ringing state and returns its record.
// The caller must be a member of the chat the call runs in.
func (s *Service) Start(ctx context.Context, callerID, chatID uuid.UUID, callType domain.CallType) (*domain.Call, error) {
	if !callType.Valid() {
		return nil, apperrors.New(apperrors.ErrCodeInvalidCallType, "Invalid call type")
	}

	ok, err := s.members.IsMember(ctx, chatID, callerID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to verify chat membership", err)
	}
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeNotChatMember, "Not authorized for this chat")
	}

	call := &domain.Call{
		CallID:    uuid.New(),
		ChatID:    chatID,
		CallerID:  callerID,
		CallType:  callType,
		Status:    domain.CallStatusRinging,
		StartedAt: time.Now().UTC(),
	}

	if err := s.store.Create(ctx, call); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to record call", err)
	}
	if err := s.store.AddParticipant(ctx, call.CallID, callerID); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to record caller participation", err)
	}

	return call, nil
}

// Activate flips a ringing call to active once a peer connects.
func (s *Service) Activate(ctx context.Context, callID uuid.UUID) error {
	if err := s.store.UpdateStatus(ctx, callID, domain.CallStatusActive); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to update call status", err)
	}
	return nil
}

// RecordOutcome closes a call record with its final outcome. duration is the
// connected time in seconds; zero for calls that never connected.
func (s *Service) RecordOutcome(ctx context.Context, callID uuid.UUID, outcome string, duration time.Duration) error {
	switch outcome {
	case domain.OutcomeCompleted, domain.OutcomeMissed, domain.OutcomeDeclined, domain.OutcomeFailed:
	default:
		return apperrors.New(apperrors.ErrCodeValidation, "Unknown call outcome")
	}

	seconds := int(duration / time.Second)
	if err := s.store.Finish(ctx, callID, outcome, seconds); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to finish call record", err)
	}

	if s.metrics != nil {
		callType := ""
		if call, err := s.store.GetByID(ctx, callID); err == nil {
			callType = string(call.CallType)
		}
		s.metrics.RecordCallOutcome(outcome, callType, duration)
	}
	return nil
}

// Join records a participant entering a call.
func (s *Service) Join(ctx context.Context, callID, userID uuid.UUID) error {
	if err := s.store.AddParticipant(ctx, callID, userID); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to record participant", err)
	}
	return nil
}

// Leave records a participant leaving a call.
func (s *Service) Leave(ctx context.Context, callID, userID uuid.UUID) error {
	if err := s.store.RemoveParticipant(ctx, callID, userID); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to record departure", err)
	}
	return nil
}

// Get returns a single call record. Only chat members may read it.
func (s *Service) Get(ctx context.Context, requesterID, callID uuid.UUID) (*domain.Call, error) {
	call, err := s.store.GetByID(ctx, callID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeCallNotFound, "Call not found", err)
	}

	ok, err := s.members.IsMember(ctx, call.ChatID, requesterID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to verify chat membership", err)
	}
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeNotChatMember, "Not authorized for this chat")
	}

	return call, nil
}

// List returns a page of the user's call history, most recent first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Call, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	calls, err := s.store.GetUserCalls(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to load call history", err)
	}
	return calls, nil
}
