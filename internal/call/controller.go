package call

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"wavelink-backend/internal/domain"
	"wavelink-backend/pkg/constants"
	"wavelink-backend/pkg/logger"
)

// State is the lifecycle state of a call controller.
type State string

const (
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateEnded      State = "ended"
)

// Callbacks surface controller events to the UI layer. All fields optional.
type Callbacks struct {
	OnStateChange func(state State)
	OnRemoteTrack func(track *webrtc.TrackRemote)
	OnDuration    func(elapsed time.Duration)
	OnEnded       func(outcome string)
}

// EngineConfig wires an Engine to the rest of the system.
type EngineConfig struct {
	SelfID      uuid.UUID
	DisplayName string
	Signaler    Signaler
	Notifier    Notifier
	History     HistorySink
	Media       Provider
	WebRTC      webrtc.Configuration
	// RingTimeout bounds how long an outgoing call rings unanswered.
	RingTimeout time.Duration
}

// Engine creates call controllers. One engine per authenticated user.
type Engine struct {
	selfID      uuid.UUID
	displayName string
	sig         Signaler
	notifier    Notifier
	history     HistorySink
	media       Provider
	webrtcCfg   webrtc.Configuration
	ringTimeout time.Duration
}

// NewEngine creates a call engine
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Media == nil {
		cfg.Media = TrackProvider{}
	}
	if cfg.RingTimeout <= 0 {
		cfg.RingTimeout = constants.UnansweredCallTimeout
	}
	return &Engine{
		selfID:      cfg.SelfID,
		displayName: cfg.DisplayName,
		sig:         cfg.Signaler,
		notifier:    cfg.Notifier,
		history:     cfg.History,
		media:       cfg.Media,
		webrtcCfg:   cfg.WebRTC,
		ringTimeout: cfg.RingTimeout,
	}
}

// Controller runs one 1:1 call from ring to teardown.
type Controller struct {
	engine   *Engine
	callID   uuid.UUID
	chatID   uuid.UUID
	callType domain.CallType
	remoteID uuid.UUID
	caller   bool

	sub    Subscription
	peer   *Peer
	stream *Stream
	cb     Callbacks

	mu          sync.Mutex
	state       State
	connectedAt time.Time
	endSent     bool

	ringTimer  *time.Timer
	cancelRecv context.CancelFunc
	done       chan struct{}
}

// Dial starts an outgoing 1:1 call: opens the record, rings the callee, and
// sends the offer. The returned controller is in StateConnecting; if the
// callee never answers, the call ends itself with a missed outcome after the
// engine's ring timeout.
func (e *Engine) Dial(ctx context.Context, chatID, calleeID uuid.UUID, callType domain.CallType, cb Callbacks) (*Controller, error) {
	stream, _, err := AcquireWithFallback(ctx, e.media, ConstraintsFor(callType))
	if err != nil {
		return nil, err
	}

	record, err := e.notifier.StartCall(ctx, chatID, callType, []uuid.UUID{calleeID})
	if err != nil {
		stream.Close()
		return nil, err
	}

	c := &Controller{
		engine:   e,
		callID:   record.CallID,
		chatID:   chatID,
		callType: callType,
		remoteID: calleeID,
		caller:   true,
		stream:   stream,
		cb:       cb,
		state:    StateConnecting,
		done:     make(chan struct{}),
	}

	if err := c.open(ctx); err != nil {
		stream.Close()
		return nil, err
	}

	if err := c.peer.CreateOffer(); err != nil {
		c.teardown(domain.OutcomeFailed, false)
		return nil, err
	}

	c.ringTimer = time.AfterFunc(e.ringTimeout, c.onRingTimeout)

	return c, nil
}

// Answer accepts an incoming 1:1 call from its ring notification. The caller's
// offer is waiting on the call channel (or arrives shortly); the controller
// answers it and connects.
func (e *Engine) Answer(ctx context.Context, n *domain.CallNotification, cb Callbacks) (*Controller, error) {
	stream, _, err := AcquireWithFallback(ctx, e.media, ConstraintsFor(n.CallType))
	if err != nil {
		return nil, err
	}

	c := &Controller{
		engine:   e,
		callID:   n.CallID,
		chatID:   n.ChatID,
		callType: n.CallType,
		remoteID: n.CallerID,
		stream:   stream,
		cb:       cb,
		state:    StateConnecting,
		done:     make(chan struct{}),
	}

	if err := c.open(ctx); err != nil {
		stream.Close()
		return nil, err
	}

	if err := e.history.Join(ctx, n.CallID); err != nil {
		logger.Warn("failed to record call join",
			zap.String("call_id", n.CallID.String()),
			zap.Error(err))
	}

	// Ask the caller to (re)send the offer in case it was published before
	// our subscription was live.
	c.send(domain.SignalMessage{Type: domain.SignalTypeUserJoined, DisplayName: e.displayName})

	return c, nil
}

// open subscribes to the call channel, builds the peer session, and starts
// the receive loop.
func (c *Controller) open(ctx context.Context) error {
	sub, err := c.engine.sig.Subscribe(ctx, c.callType, c.chatID)
	if err != nil {
		return err
	}
	c.sub = sub

	peer, err := NewPeer(c.engine.webrtcCfg, c.stream, PeerEvents{
		OnSignal:      c.send,
		OnTrack:       c.cb.OnRemoteTrack,
		OnStateChange: c.onPeerState,
	})
	if err != nil {
		sub.Close()
		return err
	}
	c.peer = peer

	recvCtx, cancel := context.WithCancel(context.Background())
	c.cancelRecv = cancel
	go c.recvLoop(recvCtx)

	return nil
}

// send relays one signaling message to the remote participant.
func (c *Controller) send(msg domain.SignalMessage) {
	remoteID := c.remoteID
	err := c.engine.sig.Send(context.Background(), &SendRequest{
		ChatID:   c.chatID,
		CallType: c.callType,
		To:       &remoteID,
		Message:  msg,
	})
	if err != nil {
		logger.Warn("signal send failed",
			zap.String("call_id", c.callID.String()),
			zap.String("signal_type", msg.Type),
			zap.Error(err))
	}
}

func (c *Controller) recvLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-c.sub.Envelopes():
			if !ok {
				return
			}
			if !env.AddressedTo(c.engine.selfID) {
				continue
			}
			c.dispatch(env)
		}
	}
}

func (c *Controller) dispatch(env *domain.SignalingEnvelope) {
	c.mu.Lock()
	ended := c.state == StateEnded
	c.mu.Unlock()
	if ended {
		return
	}

	switch env.Message.Type {
	case domain.SignalTypeOffer:
		if err := c.peer.HandleOffer(env.Message.SDP); err != nil {
			logger.Warn("offer handling failed",
				zap.String("call_id", c.callID.String()),
				zap.Error(err))
		}

	case domain.SignalTypeAnswer:
		if err := c.peer.HandleAnswer(env.Message.SDP); err != nil {
			logger.Warn("answer handling failed",
				zap.String("call_id", c.callID.String()),
				zap.Error(err))
		}

	case domain.SignalTypeICE:
		if err := c.peer.HandleRemoteCandidate(env.Message); err != nil {
			logger.Debug("ice candidate rejected",
				zap.String("call_id", c.callID.String()),
				zap.Error(err))
		}

	case domain.SignalTypeUserJoined:
		// The callee is live; the caller re-offers so the exchange cannot be
		// lost to a subscribe race. A duplicate answer on the far side is a
		// no-op by the peer's stale-answer guard.
		if c.caller {
			if err := c.peer.CreateOffer(); err != nil {
				logger.Warn("re-offer failed",
					zap.String("call_id", c.callID.String()),
					zap.Error(err))
			}
		}

	case domain.SignalTypeUserLeft, domain.SignalTypeEndCall:
		c.remoteEnded()
	}
}

func (c *Controller) onPeerState(state webrtc.PeerConnectionState) {
	switch state {
	case webrtc.PeerConnectionStateConnected:
		c.markConnected()
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
		// Terminal: a dropped transport ends the call rather than limping
		// through silent reconnect attempts.
		c.teardown(domain.OutcomeFailed, true)
	}
}

func (c *Controller) markConnected() {
	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateConnected
	c.connectedAt = time.Now()
	if c.ringTimer != nil {
		c.ringTimer.Stop()
	}
	c.mu.Unlock()

	if c.cb.OnStateChange != nil {
		c.cb.OnStateChange(StateConnected)
	}
	if c.cb.OnDuration != nil {
		go c.durationLoop()
	}
}

func (c *Controller) durationLoop() {
	ticker := time.NewTicker(constants.CallDurationTick)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.cb.OnDuration(c.Duration())
		}
	}
}

func (c *Controller) onRingTimeout() {
	c.mu.Lock()
	stillRinging := c.state == StateConnecting
	c.mu.Unlock()
	if !stillRinging {
		return
	}

	logger.Info("call unanswered, giving up",
		zap.String("call_id", c.callID.String()))

	if err := c.engine.notifier.Cancel(context.Background(), c.callID, c.remoteID, c.chatID, c.callType); err != nil {
		logger.Warn("cancel notification failed",
			zap.String("call_id", c.callID.String()),
			zap.Error(err))
	}
	c.teardown(domain.OutcomeMissed, false)
}

// remoteEnded handles the far side hanging up.
func (c *Controller) remoteEnded() {
	c.mu.Lock()
	wasConnected := c.state == StateConnected
	c.mu.Unlock()

	outcome := domain.OutcomeCompleted
	if !wasConnected {
		outcome = domain.OutcomeMissed
	}
	c.teardown(outcome, false)
}

// Hangup ends the call from this side. Exactly one end-call signal goes out
// no matter how many times or from how many paths teardown is reached.
func (c *Controller) Hangup() {
	c.mu.Lock()
	wasConnected := c.state == StateConnected
	c.mu.Unlock()

	outcome := domain.OutcomeCompleted
	if !wasConnected {
		outcome = domain.OutcomeMissed
		if c.caller {
			if err := c.engine.notifier.Cancel(context.Background(), c.callID, c.remoteID, c.chatID, c.callType); err != nil {
				logger.Warn("cancel notification failed",
					zap.String("call_id", c.callID.String()),
					zap.Error(err))
			}
		}
	}
	c.teardown(outcome, true)
}

// teardown is the single exit path. Idempotent: the first caller wins, later
// calls return immediately.
func (c *Controller) teardown(outcome string, sendEnd bool) {
	c.mu.Lock()
	if c.state == StateEnded {
		c.mu.Unlock()
		return
	}
	duration := time.Duration(0)
	if !c.connectedAt.IsZero() {
		duration = time.Since(c.connectedAt)
	}
	c.state = StateEnded
	shouldSendEnd := sendEnd && !c.endSent
	if shouldSendEnd {
		c.endSent = true
	}
	if c.ringTimer != nil {
		c.ringTimer.Stop()
	}
	c.mu.Unlock()

	if shouldSendEnd {
		c.send(domain.SignalMessage{Type: domain.SignalTypeEndCall})
	}

	close(c.done)
	if c.cancelRecv != nil {
		c.cancelRecv()
	}
	if c.sub != nil {
		c.sub.Close()
	}
	if c.peer != nil {
		c.peer.Close()
	}
	if c.stream != nil {
		c.stream.Close()
	}

	ctx := context.Background()
	if err := c.engine.history.RecordOutcome(ctx, c.callID, outcome, duration); err != nil {
		logger.Warn("failed to record call outcome",
			zap.String("call_id", c.callID.String()),
			zap.String("outcome", outcome),
			zap.Error(err))
	}
	if err := c.engine.history.Leave(ctx, c.callID); err != nil {
		logger.Debug("failed to record call leave",
			zap.String("call_id", c.callID.String()),
			zap.Error(err))
	}

	if c.cb.OnStateChange != nil {
		c.cb.OnStateChange(StateEnded)
	}
	if c.cb.OnEnded != nil {
		c.cb.OnEnded(outcome)
	}
}

// ToggleMute flips the local audio flag. Returns true when now muted.
func (c *Controller) ToggleMute() bool {
	enabled := c.stream.SetAudioEnabled(!c.stream.AudioEnabled())
	return !enabled
}

// ToggleVideo flips the local video flag. Returns true when video is now off.
func (c *Controller) ToggleVideo() bool {
	enabled := c.stream.SetVideoEnabled(!c.stream.VideoEnabled())
	return !enabled
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CallID returns the persisted call record ID.
func (c *Controller) CallID() uuid.UUID { return c.callID }

// Duration returns connected time so far, zero before connection.
func (c *Controller) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectedAt.IsZero() {
		return 0
	}
	return time.Since(c.connectedAt)
}
