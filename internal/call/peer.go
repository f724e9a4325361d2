package call

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"wavelink-backend/internal/domain"
	apperrors "wavelink-backend/pkg/errors"
)

// PeerEvents are the callbacks a Peer fires. All fields are optional.
// OnSignal emits the outbound signaling a remote peer needs (offer, answer,
// ICE candidates); the owner is responsible for relaying it.
type PeerEvents struct {
	OnSignal      func(msg domain.SignalMessage)
	OnTrack       func(track *webrtc.TrackRemote)
	OnStateChange func(state webrtc.PeerConnectionState)
}

// Peer is one WebRTC session with a single remote participant. It tracks the
// offer/answer exchange so that out-of-order and duplicate signaling cannot
// corrupt the underlying connection:
//
//   - an answer arriving when no local offer is outstanding is dropped
//     (duplicate or stale answers are no-ops, not errors)
//   - ICE candidates arriving before the remote description are queued and
//     flushed once it lands
type Peer struct {
	pc     *webrtc.PeerConnection
	events PeerEvents

	mu                sync.Mutex
	pendingCandidates []webrtc.ICECandidateInit
	remoteSet         bool
	closed            bool
}

// DefaultWebRTCConfig is the engine's peer connection configuration.
func DefaultWebRTCConfig(stunServers []string) webrtc.Configuration {
	if len(stunServers) == 0 {
		stunServers = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunServers}},
	}
}

// NewPeer creates a peer session with the local stream's tracks attached.
func NewPeer(config webrtc.Configuration, stream *Stream, events PeerEvents) (*Peer, error) {
	pc, err := webrtc.NewPeerConnection(config)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to create peer connection", err)
	}

	p := &Peer{pc: pc, events: events}

	if stream != nil {
		for _, track := range stream.Tracks() {
			if _, err := pc.AddTrack(track); err != nil {
				pc.Close()
				return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to attach local track", err)
			}
		}
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		p.emit(domain.SignalMessage{
			Type:          domain.SignalTypeICE,
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		})
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if p.events.OnTrack != nil {
			p.events.OnTrack(track)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if p.events.OnStateChange != nil {
			p.events.OnStateChange(state)
		}
	})

	return p, nil
}

func (p *Peer) emit(msg domain.SignalMessage) {
	if p.events.OnSignal != nil {
		p.events.OnSignal(msg)
	}
}

// CreateOffer starts the exchange from this side and emits the offer.
func (p *Peer) CreateOffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return apperrors.New(apperrors.ErrCodeInternal, "Peer session is closed")
	}

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to create offer", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to set local offer", err)
	}

	p.emit(domain.SignalMessage{Type: domain.SignalTypeOffer, SDP: offer.SDP})
	return nil
}

// HandleOffer applies a remote offer, flushes any queued candidates, and
// emits the answer.
func (p *Peer) HandleOffer(sdp string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}

	err := p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInvalidSignal, "Failed to apply remote offer", err)
	}
	p.flushCandidatesLocked()

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to create answer", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to set local answer", err)
	}

	p.emit(domain.SignalMessage{Type: domain.SignalTypeAnswer, SDP: answer.SDP})
	return nil
}

// HandleAnswer applies a remote answer. Answers arriving when no local offer
// is outstanding are silently ignored: the remote may have sent a duplicate,
// or the session already progressed past it.
func (p *Peer) HandleAnswer(sdp string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}

	if p.pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		return nil
	}

	err := p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInvalidSignal, "Failed to apply remote answer", err)
	}
	p.flushCandidatesLocked()
	return nil
}

// HandleRemoteCandidate applies a remote ICE candidate, queueing it when the
// remote description has not arrived yet.
func (p *Peer) HandleRemoteCandidate(msg domain.SignalMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}

	init := webrtc.ICECandidateInit{
		Candidate:     msg.Candidate,
		SDPMid:        msg.SDPMid,
		SDPMLineIndex: msg.SDPMLineIndex,
	}

	if !p.remoteSet {
		p.pendingCandidates = append(p.pendingCandidates, init)
		return nil
	}

	if err := p.pc.AddICECandidate(init); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInvalidSignal, "Failed to add ICE candidate", err)
	}
	return nil
}

// flushCandidatesLocked drains the queue after the remote description lands.
func (p *Peer) flushCandidatesLocked() {
	p.remoteSet = true
	for _, candidate := range p.pendingCandidates {
		// Individual candidate failures are survivable; the rest of the
		// queue may still complete connectivity.
		p.pc.AddICECandidate(candidate)
	}
	p.pendingCandidates = nil
}

// PendingCandidates reports how many candidates wait for the remote
// description.
func (p *Peer) PendingCandidates() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pendingCandidates)
}

// SignalingState exposes the underlying signaling state.
func (p *Peer) SignalingState() webrtc.SignalingState {
	return p.pc.SignalingState()
}

// ConnectionState exposes the underlying connection state.
func (p *Peer) ConnectionState() webrtc.PeerConnectionState {
	return p.pc.ConnectionState()
}

// Close tears the session down. Safe to call more than once.
func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.pendingCandidates = nil
	p.mu.Unlock()

	return p.pc.Close()
}
