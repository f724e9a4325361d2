// Package relay implements the authenticated signaling relay. It is the only
// component allowed to publish on call channels; everything it publishes
// carries a server-verified sender identity.
package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wavelink-backend/internal/broker"
	"wavelink-backend/internal/domain"
	apperrors "wavelink-backend/pkg/errors"
	"wavelink-backend/pkg/logger"
	"wavelink-backend/pkg/metrics"
)

// MembershipChecker answers whether a user belongs to a chat/room.
type MembershipChecker interface {
	IsMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error)
}

// Service validates, stamps, and republishes signaling messages.
type Service struct {
	members MembershipChecker
	pub     broker.Publisher
	metrics *metrics.Metrics
}

// NewService creates a new relay service. metrics may be nil in tests.
func NewService(members MembershipChecker, pub broker.Publisher, m *metrics.Metrics) *Service {
	return &Service{
		members: members,
		pub:     pub,
		metrics: m,
	}
}

// Input is one relay request. CallerID must come from the authenticated
// session, never from the request body: the relay stamps it into the
// published envelope so receivers can trust `from`.
type Input struct {
	CallerID uuid.UUID
	To       *uuid.UUID
	ChatID   uuid.UUID
	CallType domain.CallType
	Message  domain.SignalMessage
}

// Relay validates in and publishes the stamped envelope on the call channel.
// Rejections map to 400 (malformed type/tag), 403 (non-member), and publish
// failures to 500; the caller retries by re-invoking, never automatically.
func (s *Service) Relay(ctx context.Context, in *Input) error {
	if !in.CallType.Valid() {
		s.reject("invalid_call_type")
		return apperrors.New(apperrors.ErrCodeInvalidCallType, "Invalid call type")
	}

	if !domain.KnownSignalType(in.Message.Type) {
		s.reject("invalid_signal_type")
		return apperrors.New(apperrors.ErrCodeInvalidSignal, "Unrecognized signaling message type")
	}

	member, err := s.members.IsMember(ctx, in.ChatID, in.CallerID)
	if err != nil {
		s.reject("membership_lookup_failed")
		return apperrors.Wrap(apperrors.ErrCodeInternal, "Membership lookup failed", err)
	}
	if !member {
		s.reject("not_a_member")
		return apperrors.New(apperrors.ErrCodeNotChatMember, "Not authorized for this chat")
	}

	envelope := domain.SignalingEnvelope{
		From:      in.CallerID, // server-stamped; any sender hint in the body is discarded
		To:        in.To,
		Message:   in.Message,
		Timestamp: time.Now().UTC(),
	}

	payload, err := json.Marshal(&envelope)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to encode envelope", err)
	}

	channel := domain.ChannelName(in.CallType, in.ChatID)
	msg := &broker.Message{
		Channel: channel,
		Event:   domain.SignalEvent,
		Payload: payload,
	}

	if err := s.pub.Publish(ctx, msg); err != nil {
		logger.Error("signal publish failed",
			zap.String("channel", channel),
			zap.String("signal_type", in.Message.Type),
			zap.Error(err))
		s.reject("publish_failed")
		return apperrors.Wrap(apperrors.ErrCodePublishFailed, "Failed to publish signal", err)
	}

	if s.metrics != nil {
		s.metrics.RecordSignalRelayed(in.Message.Type, string(in.CallType))
	}

	logger.Debug("signal relayed",
		zap.String("channel", channel),
		zap.String("signal_type", in.Message.Type),
		zap.String("from", in.CallerID.String()))

	return nil
}

func (s *Service) reject(reason string) {
	if s.metrics != nil {
		s.metrics.RecordSignalRejected(reason)
	}
}
