// Package notify handles pre-session call signaling on personal channels:
// ringing a callee, and propagating decline/cancel before any call session
// exists on the other side.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wavelink-backend/internal/broker"
	"wavelink-backend/internal/domain"
	redisrepo "wavelink-backend/internal/repository/redis"
	apperrors "wavelink-backend/pkg/errors"
	"wavelink-backend/pkg/logger"
	"wavelink-backend/pkg/metrics"
	"wavelink-backend/pkg/push"
)

// ProfileResolver resolves a user to display data for the ringing UI.
type ProfileResolver interface {
	DisplayName(ctx context.Context, userID uuid.UUID) (string, error)
}

// PresenceChecker reports whether a user has a live realtime connection.
type PresenceChecker interface {
	IsUserOnline(ctx context.Context, userID uuid.UUID) (bool, error)
}

// TokenSource lists a user's registered push device tokens.
type TokenSource interface {
	GetTokens(ctx context.Context, userID uuid.UUID) ([]redisrepo.PushToken, error)
}

// Service publishes call notifications on personal channels.
type Service struct {
	pub      broker.Publisher
	profiles ProfileResolver
	presence PresenceChecker
	tokens   TokenSource
	push     *push.Service
	metrics  *metrics.Metrics
}

// NewService creates a notify service. presence, tokens, and pushService may
// be nil; the push fallback is then disabled.
func NewService(pub broker.Publisher, profiles ProfileResolver, presence PresenceChecker, tokens TokenSource, pushService *push.Service, m *metrics.Metrics) *Service {
	return &Service{
		pub:      pub,
		profiles: profiles,
		presence: presence,
		tokens:   tokens,
		push:     pushService,
		metrics:  m,
	}
}

// Ring delivers an incoming-call notification on the callee's personal
// channel. If the callee has no live presence, a best-effort push is sent so
// the device can still surface the ring.
func (s *Service) Ring(ctx context.Context, callID, callerID, calleeID, chatID uuid.UUID, callType domain.CallType) error {
	if !callType.Valid() {
		return apperrors.New(apperrors.ErrCodeInvalidCallType, "Invalid call type")
	}

	event := domain.NotifyIncomingCall
	if callType.IsGroup() {
		event = domain.NotifyIncomingGroupCall
	}

	callerName := ""
	if s.profiles != nil {
		name, err := s.profiles.DisplayName(ctx, callerID)
		if err != nil {
			// The ring must go out even if the profile lookup fails; the
			// client falls back to rendering the caller ID.
			logger.Warn("caller profile lookup failed",
				zap.String("caller_id", callerID.String()),
				zap.Error(err))
		} else {
			callerName = name
		}
	}

	notification := domain.CallNotification{
		Event:      event,
		CallID:     callID,
		ChatID:     chatID,
		CallerID:   callerID,
		CallerName: callerName,
		CallType:   callType,
		Timestamp:  time.Now().UTC(),
	}

	if err := s.publish(ctx, calleeID, &notification); err != nil {
		return err
	}

	s.maybePush(ctx, calleeID, &notification)
	return nil
}

// Decline publishes a call-declined event back onto the caller's personal
// channel. No call session ever exists for a declined call.
func (s *Service) Decline(ctx context.Context, callID, declinerID, callerID, chatID uuid.UUID, callType domain.CallType) error {
	return s.publish(ctx, callerID, &domain.CallNotification{
		Event:     domain.NotifyCallDeclined,
		CallID:    callID,
		ChatID:    chatID,
		CallerID:  declinerID,
		CallType:  callType,
		Timestamp: time.Now().UTC(),
	})
}

// Cancel tells a callee the caller gave up before the call was answered.
func (s *Service) Cancel(ctx context.Context, callID, callerID, calleeID, chatID uuid.UUID, callType domain.CallType) error {
	return s.publish(ctx, calleeID, &domain.CallNotification{
		Event:     domain.NotifyCallCancelled,
		CallID:    callID,
		ChatID:    chatID,
		CallerID:  callerID,
		CallType:  callType,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Service) publish(ctx context.Context, userID uuid.UUID, n *domain.CallNotification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to encode notification", err)
	}

	msg := &broker.Message{
		Channel: domain.PersonalChannel(userID),
		Event:   n.Event,
		Payload: payload,
	}

	if err := s.pub.Publish(ctx, msg); err != nil {
		return apperrors.Wrap(apperrors.ErrCodePublishFailed, "Failed to publish notification", err)
	}

	return nil
}

// maybePush sends the ring as a push notification when the callee is not
// reachable over a realtime connection. Failures are logged, never returned.
func (s *Service) maybePush(ctx context.Context, calleeID uuid.UUID, n *domain.CallNotification) {
	if s.push == nil || s.presence == nil || s.tokens == nil {
		return
	}

	online, err := s.presence.IsUserOnline(ctx, calleeID)
	if err == nil && online {
		return
	}

	tokens, err := s.tokens.GetTokens(ctx, calleeID)
	if err != nil || len(tokens) == 0 {
		return
	}

	byPlatform := make(map[string][]push.Target)
	for _, t := range tokens {
		byPlatform[t.Platform] = append(byPlatform[t.Platform], push.Target{Platform: t.Platform, Token: t.Token})
	}

	title := "Incoming call"
	if n.CallType.IsGroup() {
		title = "Incoming group call"
	}
	body := "Someone is calling you"
	if n.CallerName != "" {
		body = n.CallerName + " is calling you"
	}

	payload := &push.Notification{
		Title: title,
		Body:  body,
		Data: map[string]string{
			"call_id":   n.CallID.String(),
			"chat_id":   n.ChatID.String(),
			"caller_id": n.CallerID.String(),
			"call_type": string(n.CallType),
		},
	}

	for platform, targets := range byPlatform {
		sent, failed := s.push.SendToTargets(ctx, targets, payload)
		if s.metrics == nil {
			continue
		}
		for i := 0; i < sent; i++ {
			s.metrics.RecordPushSent(platform)
		}
		for i := 0; i < failed; i++ {
			s.metrics.RecordPushFailed(platform)
		}
	}
}
