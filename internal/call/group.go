package call

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"wavelink-backend/internal/domain"
	apperrors "wavelink-backend/pkg/errors"
	"wavelink-backend/pkg/logger"
)

// GroupEvents surface group call activity to the UI layer.
type GroupEvents struct {
	OnPeerJoined  func(userID uuid.UUID, displayName string)
	OnPeerLeft    func(userID uuid.UUID)
	OnRemoteTrack func(userID uuid.UUID, track *webrtc.TrackRemote)
	OnEnded       func(outcome string)
}

// GroupController runs one full-mesh group call: every participant holds a
// peer session with every other participant.
//
// When two participants discover each other at the same time, both could
// offer and produce two connections. The tie-break: the participant with the
// lexicographically smaller user ID initiates; the other waits for the offer.
// An offer arriving from a peer we have no session with is always accepted,
// since it means the remote won the tie-break.
type GroupController struct {
	engine   *Engine
	callID   uuid.UUID
	chatID   uuid.UUID
	callType domain.CallType

	sub    Subscription
	stream *Stream
	events GroupEvents

	mu       sync.Mutex
	peers    map[uuid.UUID]*Peer
	roster   map[uuid.UUID]string
	joinedAt time.Time
	ended    bool

	cancelRecv context.CancelFunc
	done       chan struct{}
}

// StartGroup opens a group call record, rings the callees, and joins the
// mesh as its first participant.
func (e *Engine) StartGroup(ctx context.Context, chatID uuid.UUID, callType domain.CallType, calleeIDs []uuid.UUID, events GroupEvents) (*GroupController, error) {
	if !callType.IsGroup() {
		return nil, apperrors.New(apperrors.ErrCodeInvalidCallType, "Not a group call type")
	}

	record, err := e.notifier.StartCall(ctx, chatID, callType, calleeIDs)
	if err != nil {
		return nil, err
	}

	return e.joinMesh(ctx, record.CallID, chatID, callType, events)
}

// JoinGroup enters an existing group call from its ring notification.
func (e *Engine) JoinGroup(ctx context.Context, n *domain.CallNotification, events GroupEvents) (*GroupController, error) {
	if !n.CallType.IsGroup() {
		return nil, apperrors.New(apperrors.ErrCodeInvalidCallType, "Not a group call type")
	}
	return e.joinMesh(ctx, n.CallID, n.ChatID, n.CallType, events)
}

func (e *Engine) joinMesh(ctx context.Context, callID, chatID uuid.UUID, callType domain.CallType, events GroupEvents) (*GroupController, error) {
	stream, _, err := AcquireWithFallback(ctx, e.media, ConstraintsFor(callType))
	if err != nil {
		return nil, err
	}

	sub, err := e.sig.Subscribe(ctx, callType, chatID)
	if err != nil {
		stream.Close()
		return nil, err
	}

	g := &GroupController{
		engine:   e,
		callID:   callID,
		chatID:   chatID,
		callType: callType,
		sub:      sub,
		stream:   stream,
		events:   events,
		peers:    make(map[uuid.UUID]*Peer),
		roster:   make(map[uuid.UUID]string),
		joinedAt: time.Now(),
		done:     make(chan struct{}),
	}

	if err := e.history.Join(ctx, callID); err != nil {
		logger.Warn("failed to record group join",
			zap.String("call_id", callID.String()),
			zap.Error(err))
	}

	recvCtx, cancel := context.WithCancel(context.Background())
	g.cancelRecv = cancel
	go g.recvLoop(recvCtx)

	// Announce ourselves; everyone already in the mesh reacts by connecting
	// (or waiting for our offer, depending on the tie-break) and re-announces
	// so we learn the roster.
	g.broadcast(domain.SignalMessage{Type: domain.SignalTypeUserJoined, DisplayName: e.displayName})

	return g, nil
}

func (g *GroupController) recvLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-g.sub.Envelopes():
			if !ok {
				return
			}
			if !env.AddressedTo(g.engine.selfID) {
				continue
			}
			g.dispatch(env)
		}
	}
}

func (g *GroupController) dispatch(env *domain.SignalingEnvelope) {
	g.mu.Lock()
	ended := g.ended
	g.mu.Unlock()
	if ended {
		return
	}

	from := env.From

	switch env.Message.Type {
	case domain.SignalTypeUserJoined:
		g.handleUserJoined(from, env.Message.DisplayName, env.To == nil)

	case domain.SignalTypeOffer:
		// A fresh offer means the remote initiated; accept even if we have
		// no session yet (they won the tie-break, or re-offered).
		peer, err := g.ensurePeer(from)
		if err != nil {
			return
		}
		if err := peer.HandleOffer(env.Message.SDP); err != nil {
			logger.Warn("group offer handling failed",
				zap.String("from", from.String()),
				zap.Error(err))
		}

	case domain.SignalTypeAnswer:
		if peer := g.getPeer(from); peer != nil {
			if err := peer.HandleAnswer(env.Message.SDP); err != nil {
				logger.Warn("group answer handling failed",
					zap.String("from", from.String()),
					zap.Error(err))
			}
		}

	case domain.SignalTypeICE:
		if peer := g.getPeer(from); peer != nil {
			if err := peer.HandleRemoteCandidate(env.Message); err != nil {
				logger.Debug("group ice candidate rejected",
					zap.String("from", from.String()),
					zap.Error(err))
			}
		}

	case domain.SignalTypeUserLeft, domain.SignalTypeEndCall:
		g.removePeer(from)
	}
}

// handleUserJoined seeds the mesh connection to a newly announced peer.
// announced distinguishes a broadcast join (reply with our own announce so
// the newcomer learns the roster) from the targeted re-announce reply.
func (g *GroupController) handleUserJoined(from uuid.UUID, displayName string, announced bool) {
	g.mu.Lock()
	_, known := g.roster[from]
	g.roster[from] = displayName
	g.mu.Unlock()

	if !known && g.events.OnPeerJoined != nil {
		g.events.OnPeerJoined(from, displayName)
	}

	if announced {
		// Targeted reply so the newcomer sees us without a broadcast storm.
		target := from
		g.sendTo(&target, domain.SignalMessage{Type: domain.SignalTypeUserJoined, DisplayName: g.engine.displayName})
	}

	g.maybeConnect(from)
}

// maybeConnect opens a peer session toward from when this side wins the
// tie-break: the lexicographically smaller user ID initiates the offer.
func (g *GroupController) maybeConnect(from uuid.UUID) {
	if strings.Compare(g.engine.selfID.String(), from.String()) >= 0 {
		return
	}

	g.mu.Lock()
	_, exists := g.peers[from]
	g.mu.Unlock()
	if exists {
		return
	}

	peer, err := g.ensurePeer(from)
	if err != nil {
		return
	}
	if err := peer.CreateOffer(); err != nil {
		logger.Warn("group offer creation failed",
			zap.String("to", from.String()),
			zap.Error(err))
	}
}

// ensurePeer returns the session toward userID, creating it when absent.
func (g *GroupController) ensurePeer(userID uuid.UUID) (*Peer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ended {
		return nil, apperrors.New(apperrors.ErrCodeInternal, "Group call has ended")
	}
	if peer, ok := g.peers[userID]; ok {
		return peer, nil
	}

	target := userID
	peer, err := NewPeer(g.engine.webrtcCfg, g.stream, PeerEvents{
		OnSignal: func(msg domain.SignalMessage) {
			g.sendTo(&target, msg)
		},
		OnTrack: func(track *webrtc.TrackRemote) {
			if g.events.OnRemoteTrack != nil {
				g.events.OnRemoteTrack(userID, track)
			}
		},
		OnStateChange: func(state webrtc.PeerConnectionState) {
			if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateDisconnected {
				// A dead mesh edge drops only that participant.
				g.removePeer(userID)
			}
		},
	})
	if err != nil {
		logger.Error("group peer creation failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil, err
	}

	g.peers[userID] = peer
	return peer, nil
}

func (g *GroupController) getPeer(userID uuid.UUID) *Peer {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peers[userID]
}

// removePeer closes the session toward userID and drops them from the roster.
func (g *GroupController) removePeer(userID uuid.UUID) {
	g.mu.Lock()
	peer, ok := g.peers[userID]
	if ok {
		delete(g.peers, userID)
	}
	_, inRoster := g.roster[userID]
	delete(g.roster, userID)
	g.mu.Unlock()

	if peer != nil {
		peer.Close()
	}
	if inRoster && g.events.OnPeerLeft != nil {
		g.events.OnPeerLeft(userID)
	}
}

// broadcast sends a message to every participant on the call channel.
func (g *GroupController) broadcast(msg domain.SignalMessage) {
	g.sendTo(nil, msg)
}

func (g *GroupController) sendTo(target *uuid.UUID, msg domain.SignalMessage) {
	err := g.engine.sig.Send(context.Background(), &SendRequest{
		ChatID:   g.chatID,
		CallType: g.callType,
		To:       target,
		Message:  msg,
	})
	if err != nil {
		logger.Warn("group signal send failed",
			zap.String("call_id", g.callID.String()),
			zap.String("signal_type", msg.Type),
			zap.Error(err))
	}
}

// Invite rings another user into the ongoing group call.
func (g *GroupController) Invite(ctx context.Context, calleeID uuid.UUID) error {
	return g.engine.notifier.Invite(ctx, g.callID, calleeID, g.chatID, g.callType)
}

// Participants returns the current roster (excluding self).
func (g *GroupController) Participants() map[uuid.UUID]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[uuid.UUID]string, len(g.roster))
	for id, name := range g.roster {
		out[id] = name
	}
	return out
}

// SessionCount returns the number of live peer sessions.
func (g *GroupController) SessionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.peers)
}

// ToggleMute flips the local audio flag, as in the 1:1 controller.
func (g *GroupController) ToggleMute() bool {
	enabled := g.stream.SetAudioEnabled(!g.stream.AudioEnabled())
	return !enabled
}

// ToggleVideo flips the local video flag.
func (g *GroupController) ToggleVideo() bool {
	enabled := g.stream.SetVideoEnabled(!g.stream.VideoEnabled())
	return !enabled
}

// Leave exits the mesh: announces departure, closes every peer session, and
// records this participant's outcome. Idempotent.
func (g *GroupController) Leave() {
	g.mu.Lock()
	if g.ended {
		g.mu.Unlock()
		return
	}
	g.ended = true
	peers := g.peers
	g.peers = make(map[uuid.UUID]*Peer)
	hadPeers := len(peers) > 0
	duration := time.Since(g.joinedAt)
	g.mu.Unlock()

	g.broadcast(domain.SignalMessage{Type: domain.SignalTypeUserLeft})

	close(g.done)
	g.cancelRecv()
	g.sub.Close()
	for _, peer := range peers {
		peer.Close()
	}
	g.stream.Close()

	outcome := domain.OutcomeCompleted
	if !hadPeers {
		outcome = domain.OutcomeMissed
	}

	ctx := context.Background()
	if err := g.engine.history.Leave(ctx, g.callID); err != nil {
		logger.Debug("failed to record group leave",
			zap.String("call_id", g.callID.String()),
			zap.Error(err))
	}
	if err := g.engine.history.RecordOutcome(ctx, g.callID, outcome, duration); err != nil {
		logger.Warn("failed to record group outcome",
			zap.String("call_id", g.callID.String()),
			zap.Error(err))
	}

	if g.events.OnEnded != nil {
		g.events.OnEnded(outcome)
	}
}
