package call

import (
	"context"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wavelink-backend/internal/domain"
)

// signalCollector captures a peer's outbound signaling for assertions.
type signalCollector struct {
	mu   sync.Mutex
	msgs []domain.SignalMessage
}

func (c *signalCollector) collect(msg domain.SignalMessage) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
}

func (c *signalCollector) firstOfType(t string) (domain.SignalMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.msgs {
		if m.Type == t {
			return m, true
		}
	}
	return domain.SignalMessage{}, false
}

func newTestPeer(t *testing.T, out *signalCollector) *Peer {
	t.Helper()

	stream, err := TrackProvider{}.Acquire(context.Background(), Constraints{Audio: true})
	require.NoError(t, err)

	events := PeerEvents{}
	if out != nil {
		events.OnSignal = out.collect
	}

	peer, err := NewPeer(webrtc.Configuration{}, stream, events)
	require.NoError(t, err)
	t.Cleanup(func() { peer.Close() })

	return peer
}

func TestOfferAnswerExchange(t *testing.T) {
	outA := &signalCollector{}
	outB := &signalCollector{}
	peerA := newTestPeer(t, outA)
	peerB := newTestPeer(t, outB)

	require.NoError(t, peerA.CreateOffer())
	assert.Equal(t, webrtc.SignalingStateHaveLocalOffer, peerA.SignalingState())

	offer, ok := outA.firstOfType(domain.SignalTypeOffer)
	require.True(t, ok, "offer must be emitted")
	require.NotEmpty(t, offer.SDP)

	require.NoError(t, peerB.HandleOffer(offer.SDP))
	assert.Equal(t, webrtc.SignalingStateStable, peerB.SignalingState())

	answer, ok := outB.firstOfType(domain.SignalTypeAnswer)
	require.True(t, ok, "answer must be emitted")

	require.NoError(t, peerA.HandleAnswer(answer.SDP))
	assert.Equal(t, webrtc.SignalingStateStable, peerA.SignalingState())
}

func TestDuplicateAnswerIsNoOp(t *testing.T) {
	outA := &signalCollector{}
	outB := &signalCollector{}
	peerA := newTestPeer(t, outA)
	peerB := newTestPeer(t, outB)

	require.NoError(t, peerA.CreateOffer())
	offer, _ := outA.firstOfType(domain.SignalTypeOffer)
	require.NoError(t, peerB.HandleOffer(offer.SDP))
	answer, _ := outB.firstOfType(domain.SignalTypeAnswer)
	require.NoError(t, peerA.HandleAnswer(answer.SDP))

	// The session is stable; replaying the answer must change nothing.
	require.NoError(t, peerA.HandleAnswer(answer.SDP))
	require.NoError(t, peerA.HandleAnswer(answer.SDP))
	assert.Equal(t, webrtc.SignalingStateStable, peerA.SignalingState())
}

func TestAnswerWithoutOfferIsIgnored(t *testing.T) {
	peer := newTestPeer(t, nil)

	// A stray answer before any offer was made must not error or change state.
	require.NoError(t, peer.HandleAnswer("v=0\r\n"))
	assert.Equal(t, webrtc.SignalingStateStable, peer.SignalingState())
}

func TestEarlyCandidatesAreQueuedUntilRemoteDescription(t *testing.T) {
	outA := &signalCollector{}
	peerA := newTestPeer(t, outA)
	peerB := newTestPeer(t, nil)

	mid := "0"
	var index uint16
	candidate := domain.SignalMessage{
		Type:          domain.SignalTypeICE,
		Candidate:     "candidate:1 1 UDP 2122252543 127.0.0.1 54321 typ host",
		SDPMid:        &mid,
		SDPMLineIndex: &index,
	}

	require.NoError(t, peerB.HandleRemoteCandidate(candidate))
	require.NoError(t, peerB.HandleRemoteCandidate(candidate))
	assert.Equal(t, 2, peerB.PendingCandidates(), "candidates before the remote description are queued, not dropped")

	require.NoError(t, peerA.CreateOffer())
	offer, _ := outA.firstOfType(domain.SignalTypeOffer)
	require.NoError(t, peerB.HandleOffer(offer.SDP))

	assert.Equal(t, 0, peerB.PendingCandidates(), "queue drains once the remote description lands")
}

func TestCloseIsIdempotent(t *testing.T) {
	peer := newTestPeer(t, nil)

	require.NoError(t, peer.Close())
	require.NoError(t, peer.Close())
	require.NoError(t, peer.Close())
}

func TestClosedPeerIgnoresSignals(t *testing.T) {
	outA := &signalCollector{}
	peerA := newTestPeer(t, outA)
	peerB := newTestPeer(t, nil)

	require.NoError(t, peerA.CreateOffer())
	offer, _ := outA.firstOfType(domain.SignalTypeOffer)

	require.NoError(t, peerB.Close())
	require.NoError(t, peerB.HandleOffer(offer.SDP))
	require.NoError(t, peerB.HandleAnswer(offer.SDP))
	require.NoError(t, peerB.HandleRemoteCandidate(domain.SignalMessage{Type: domain.SignalTypeICE}))
}
