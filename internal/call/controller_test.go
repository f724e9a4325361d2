package call

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wavelink-backend/internal/domain"
)

func TestDialTimesOutWhenUnanswered(t *testing.T) {
	h := newEngineHarness()
	caller := h.engineFor(uuid.New(), "alice", 100*time.Millisecond)

	var endedOutcome atomic.Value
	ended := make(chan struct{})

	ctrl, err := caller.Dial(context.Background(), uuid.New(), uuid.New(), domain.CallTypeAudio, Callbacks{
		OnEnded: func(outcome string) {
			endedOutcome.Store(outcome)
			close(ended)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, StateConnecting, ctrl.State())

	select {
	case <-ended:
	case <-time.After(3 * time.Second):
		t.Fatal("unanswered call never ended")
	}

	assert.Equal(t, domain.OutcomeMissed, endedOutcome.Load())
	assert.Equal(t, StateEnded, ctrl.State())
	assert.Equal(t, 1, h.notifier.cancelCount(), "caller withdraws the ring exactly once")
	assert.Equal(t, []string{domain.OutcomeMissed}, h.history.outcomesFor(ctrl.CallID()))

	// Timeout teardown is not a hangup; nobody answered, so there is no
	// session to end.
	assert.Equal(t, 0, h.bus.sentOfType(domain.SignalTypeEndCall))
}

func TestHangupSendsExactlyOneEndCall(t *testing.T) {
	h := newEngineHarness()
	caller := h.engineFor(uuid.New(), "alice", time.Minute)

	ctrl, err := caller.Dial(context.Background(), uuid.New(), uuid.New(), domain.CallTypeAudio, Callbacks{})
	require.NoError(t, err)

	ctrl.Hangup()
	ctrl.Hangup()
	ctrl.Hangup()

	assert.Equal(t, 1, h.bus.sentOfType(domain.SignalTypeEndCall))
	assert.Equal(t, StateEnded, ctrl.State())
	assert.Len(t, h.history.outcomesFor(ctrl.CallID()), 1, "outcome recorded once")
}

func TestRemoteEndCallTearsDown(t *testing.T) {
	h := newEngineHarness()
	callerID := uuid.New()
	calleeID := uuid.New()
	caller := h.engineFor(callerID, "alice", time.Minute)

	chatID := uuid.New()
	ended := make(chan string, 1)

	ctrl, err := caller.Dial(context.Background(), chatID, calleeID, domain.CallTypeAudio, Callbacks{
		OnEnded: func(outcome string) { ended <- outcome },
	})
	require.NoError(t, err)

	// The callee hangs up before the connection establishes.
	calleeSig := h.bus.signalerFor(calleeID)
	require.NoError(t, calleeSig.Send(context.Background(), &SendRequest{
		ChatID:   chatID,
		CallType: domain.CallTypeAudio,
		Message:  domain.SignalMessage{Type: domain.SignalTypeEndCall},
	}))

	select {
	case outcome := <-ended:
		assert.Equal(t, domain.OutcomeMissed, outcome)
	case <-time.After(3 * time.Second):
		t.Fatal("remote end-call never tore the controller down")
	}

	assert.Equal(t, StateEnded, ctrl.State())
}

func TestSignalingHandshakeOverBus(t *testing.T) {
	h := newEngineHarness()
	callerID := uuid.New()
	calleeID := uuid.New()
	caller := h.engineFor(callerID, "alice", time.Minute)
	callee := h.engineFor(calleeID, "bob", time.Minute)

	chatID := uuid.New()

	callerCtrl, err := caller.Dial(context.Background(), chatID, calleeID, domain.CallTypeAudio, Callbacks{})
	require.NoError(t, err)
	defer callerCtrl.Hangup()

	notification := &domain.CallNotification{
		Event:    domain.NotifyIncomingCall,
		CallID:   callerCtrl.CallID(),
		ChatID:   chatID,
		CallerID: callerID,
		CallType: domain.CallTypeAudio,
	}

	calleeCtrl, err := callee.Answer(context.Background(), notification, Callbacks{})
	require.NoError(t, err)
	defer calleeCtrl.Hangup()

	// The callee announces itself, the caller re-offers, the callee answers.
	require.Eventually(t, func() bool {
		return h.bus.sentOfType(domain.SignalTypeAnswer) >= 1
	}, 5*time.Second, 20*time.Millisecond, "offer/answer exchange must complete")

	assert.GreaterOrEqual(t, h.bus.sentOfType(domain.SignalTypeOffer), 1)
	assert.Contains(t, h.history.joinedCalls(), notification.CallID, "callee joins the call record")
}

func TestToggleMuteRoundTrip(t *testing.T) {
	h := newEngineHarness()
	caller := h.engineFor(uuid.New(), "alice", time.Minute)

	ctrl, err := caller.Dial(context.Background(), uuid.New(), uuid.New(), domain.CallTypeAudio, Callbacks{})
	require.NoError(t, err)
	defer ctrl.Hangup()

	assert.True(t, ctrl.ToggleMute(), "first toggle mutes")
	assert.False(t, ctrl.ToggleMute(), "second toggle unmutes")
}

func TestTeardownReleasesMedia(t *testing.T) {
	h := newEngineHarness()
	caller := h.engineFor(uuid.New(), "alice", time.Minute)

	ctrl, err := caller.Dial(context.Background(), uuid.New(), uuid.New(), domain.CallTypeAudio, Callbacks{})
	require.NoError(t, err)

	acquired, released := h.media.counts()
	require.Equal(t, 1, acquired)
	require.Equal(t, 0, released)

	ctrl.Hangup()

	_, released = h.media.counts()
	assert.Equal(t, 1, released, "hangup releases the capture stream")
}
