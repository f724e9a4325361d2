// Package call is the WebRTC call engine: peer sessions over pion, a 1:1
// controller, and a full-mesh group controller. It is deliberately standalone;
// coupling to the realtime and HTTP layers goes through the interfaces in
// this file only.
package call

import (
	"context"
	"time"

	"github.com/google/uuid"

	"wavelink-backend/internal/domain"
)

// Subscription delivers the signaling envelopes published on one call
// channel. Envelopes arrive for every participant; callers filter with
// domain.SignalingEnvelope.AddressedTo.
type Subscription interface {
	Envelopes() <-chan *domain.SignalingEnvelope
	Close() error
}

// SendRequest is one outbound signaling message. The sender identity is not
// part of the request: the relay stamps it from the authenticated session.
type SendRequest struct {
	ChatID   uuid.UUID
	CallType domain.CallType
	To       *uuid.UUID
	Message  domain.SignalMessage
}

// Signaler carries signaling between the engine and the rest of the system:
// subscriptions for inbound envelopes, relayed sends for outbound ones.
type Signaler interface {
	Subscribe(ctx context.Context, callType domain.CallType, chatID uuid.UUID) (Subscription, error)
	Send(ctx context.Context, req *SendRequest) error
}

// Notifier handles the pre-session leg of a call: opening the record and
// ringing the callees, and propagating decline/cancel when no peer session
// exists yet on the far side.
type Notifier interface {
	StartCall(ctx context.Context, chatID uuid.UUID, callType domain.CallType, calleeIDs []uuid.UUID) (*domain.Call, error)
	Invite(ctx context.Context, callID, calleeID, chatID uuid.UUID, callType domain.CallType) error
	Decline(ctx context.Context, n *domain.CallNotification) error
	Cancel(ctx context.Context, callID, calleeID, chatID uuid.UUID, callType domain.CallType) error
}

// NotificationSubscription delivers personal-channel call notifications.
type NotificationSubscription interface {
	Notifications() <-chan *domain.CallNotification
	Close() error
}

// NotificationSource subscribes to the current user's personal channel.
type NotificationSource interface {
	SubscribePersonal(ctx context.Context) (NotificationSubscription, error)
}

// HistorySink records call lifecycle facts. Best-effort from the engine's
// point of view: a failed report never tears down a live call.
type HistorySink interface {
	RecordOutcome(ctx context.Context, callID uuid.UUID, outcome string, duration time.Duration) error
	Join(ctx context.Context, callID uuid.UUID) error
	Leave(ctx context.Context, callID uuid.UUID) error
}
