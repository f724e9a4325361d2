package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wavelink-backend/internal/call"
	"wavelink-backend/internal/domain"
	apperrors "wavelink-backend/pkg/errors"
	"wavelink-backend/pkg/logger"
)

// Bridge wires the call engine to the backend: signaling subscriptions ride
// the WebSocket hub, while everything outbound (signals, call lifecycle,
// decline/cancel) goes through the HTTP API so the server stamps identity.
// It satisfies call.Signaler, call.Notifier, call.NotificationSource and
// call.HistorySink.
type Bridge struct {
	ws      *Client
	http    *http.Client
	baseURL string
	token   string
	selfID  uuid.UUID
}

// NewBridge builds a Bridge over an established WebSocket client. baseURL is
// the API root without a trailing slash, e.g. "https://api.example.com".
func NewBridge(ws *Client, baseURL, token string, selfID uuid.UUID) *Bridge {
	return &Bridge{
		ws:      ws,
		http:    &http.Client{Timeout: 15 * time.Second},
		baseURL: baseURL,
		token:   token,
		selfID:  selfID,
	}
}

var (
	_ call.Signaler           = (*Bridge)(nil)
	_ call.Notifier           = (*Bridge)(nil)
	_ call.NotificationSource = (*Bridge)(nil)
	_ call.HistorySink        = (*Bridge)(nil)
)

// relayRequest mirrors the relay endpoint's body: channel coordinates plus
// the signal payload flattened alongside them.
type relayRequest struct {
	ChatID   string `json:"chat_id"`
	CallType string `json:"call_type"`
	To       string `json:"to,omitempty"`

	Type          string  `json:"type"`
	SDP           string  `json:"sdp,omitempty"`
	Candidate     string  `json:"candidate,omitempty"`
	SDPMid        *string `json:"sdp_mid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdp_mline_index,omitempty"`
	DisplayName   string  `json:"display_name,omitempty"`
}

// Send relays one signaling message through POST /v1/signal.
func (b *Bridge) Send(ctx context.Context, req *call.SendRequest) error {
	body := relayRequest{
		ChatID:        req.ChatID.String(),
		CallType:      string(req.CallType),
		Type:          req.Message.Type,
		SDP:           req.Message.SDP,
		Candidate:     req.Message.Candidate,
		SDPMid:        req.Message.SDPMid,
		SDPMLineIndex: req.Message.SDPMLineIndex,
		DisplayName:   req.Message.DisplayName,
	}
	if req.To != nil {
		body.To = req.To.String()
	}
	return b.post(ctx, "/v1/signal", body, nil)
}

// Subscribe joins the call channel and adapts its broadcast stream to
// signaling envelopes.
func (b *Bridge) Subscribe(ctx context.Context, callType domain.CallType, chatID uuid.UUID) (call.Subscription, error) {
	sub, err := b.ws.Subscribe(ctx, domain.ChannelName(callType, chatID))
	if err != nil {
		return nil, err
	}

	s := &signalSubscription{sub: sub, ch: make(chan *domain.SignalingEnvelope, 64)}
	go s.pump()
	return s, nil
}

type signalSubscription struct {
	sub *ChannelSubscription
	ch  chan *domain.SignalingEnvelope
}

func (s *signalSubscription) pump() {
	defer close(s.ch)
	for ev := range s.sub.Events() {
		if ev.Event != domain.SignalEvent {
			continue
		}
		var env domain.SignalingEnvelope
		if err := json.Unmarshal(ev.Payload, &env); err != nil {
			logger.Warn("malformed signaling payload", zap.Error(err))
			continue
		}
		s.ch <- &env
	}
}

func (s *signalSubscription) Envelopes() <-chan *domain.SignalingEnvelope { return s.ch }
func (s *signalSubscription) Close() error                               { return s.sub.Close() }

// SubscribePersonal joins the user's own notification channel.
func (b *Bridge) SubscribePersonal(ctx context.Context) (call.NotificationSubscription, error) {
	sub, err := b.ws.Subscribe(ctx, domain.PersonalChannel(b.selfID))
	if err != nil {
		return nil, err
	}

	n := &notificationSubscription{sub: sub, ch: make(chan *domain.CallNotification, 16)}
	go n.pump()
	return n, nil
}

type notificationSubscription struct {
	sub *ChannelSubscription
	ch  chan *domain.CallNotification
}

func (s *notificationSubscription) pump() {
	defer close(s.ch)
	for ev := range s.sub.Events() {
		var n domain.CallNotification
		if err := json.Unmarshal(ev.Payload, &n); err != nil {
			logger.Warn("malformed notification payload", zap.Error(err))
			continue
		}
		if n.Event == "" {
			n.Event = ev.Event
		}
		s.ch <- &n
	}
}

func (s *notificationSubscription) Notifications() <-chan *domain.CallNotification { return s.ch }
func (s *notificationSubscription) Close() error                                   { return s.sub.Close() }

// StartCall opens the call record and rings the callees.
func (b *Bridge) StartCall(ctx context.Context, chatID uuid.UUID, callType domain.CallType, calleeIDs []uuid.UUID) (*domain.Call, error) {
	ids := make([]string, len(calleeIDs))
	for i, id := range calleeIDs {
		ids[i] = id.String()
	}

	var started domain.Call
	err := b.post(ctx, "/v1/calls", map[string]any{
		"chat_id":    chatID.String(),
		"call_type":  string(callType),
		"callee_ids": ids,
	}, &started)
	if err != nil {
		return nil, err
	}
	return &started, nil
}

// Invite rings one more callee into an existing call.
func (b *Bridge) Invite(ctx context.Context, callID, calleeID, chatID uuid.UUID, callType domain.CallType) error {
	return b.post(ctx, fmt.Sprintf("/v1/calls/%s/invite", callID), map[string]any{
		"chat_id":   chatID.String(),
		"callee_id": calleeID.String(),
		"call_type": string(callType),
	}, nil)
}

// Decline rejects an incoming call before answering it.
func (b *Bridge) Decline(ctx context.Context, n *domain.CallNotification) error {
	return b.post(ctx, "/v1/calls/decline", map[string]any{
		"call_id":   n.CallID.String(),
		"chat_id":   n.ChatID.String(),
		"caller_id": n.CallerID.String(),
		"call_type": string(n.CallType),
	}, nil)
}

// Cancel withdraws an unanswered outgoing call.
func (b *Bridge) Cancel(ctx context.Context, callID, calleeID, chatID uuid.UUID, callType domain.CallType) error {
	return b.post(ctx, "/v1/calls/cancel", map[string]any{
		"call_id":   callID.String(),
		"chat_id":   chatID.String(),
		"callee_id": calleeID.String(),
		"call_type": string(callType),
	}, nil)
}

// RecordOutcome finalizes the call record.
func (b *Bridge) RecordOutcome(ctx context.Context, callID uuid.UUID, outcome string, duration time.Duration) error {
	return b.post(ctx, fmt.Sprintf("/v1/calls/%s/outcome", callID), map[string]any{
		"outcome":          outcome,
		"duration_seconds": int(duration / time.Second),
	}, nil)
}

// Join records this user entering the call.
func (b *Bridge) Join(ctx context.Context, callID uuid.UUID) error {
	return b.post(ctx, fmt.Sprintf("/v1/calls/%s/join", callID), struct{}{}, nil)
}

// Leave records this user leaving the call.
func (b *Bridge) Leave(ctx context.Context, callID uuid.UUID) error {
	return b.post(ctx, fmt.Sprintf("/v1/calls/%s/leave", callID), struct{}{}, nil)
}

// apiEnvelope is the server's standard response wrapper.
type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (b *Bridge) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.token)

	resp, err := b.http.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeServiceUnavailable, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeServiceUnavailable, "failed to read response", err)
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal,
			fmt.Sprintf("unexpected response (HTTP %d)", resp.StatusCode), err)
	}

	if !env.Success {
		if env.Error != nil {
			return apperrors.New(apperrors.ErrorCode(env.Error.Code), env.Error.Message)
		}
		return apperrors.New(apperrors.ErrCodeInternal, fmt.Sprintf("request failed (HTTP %d)", resp.StatusCode))
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return apperrors.Wrap(apperrors.ErrCodeInternal, "failed to decode response data", err)
		}
	}
	return nil
}
