package call

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wavelink-backend/internal/domain"
)

// orderedIDs returns n UUIDs in ascending string order so tie-break
// expectations are deterministic.
func orderedIDs(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if ids[j].String() < ids[i].String() {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}
	return ids
}

func TestGroupMeshForms(t *testing.T) {
	h := newEngineHarness()
	ids := orderedIDs(3)
	chatID := uuid.New()

	engineA := h.engineFor(ids[0], "alice", time.Minute)
	engineB := h.engineFor(ids[1], "bob", time.Minute)
	engineC := h.engineFor(ids[2], "carol", time.Minute)

	groupA, err := engineA.StartGroup(context.Background(), chatID, domain.CallTypeGroupAudio, []uuid.UUID{ids[1], ids[2]}, GroupEvents{})
	require.NoError(t, err)
	defer groupA.Leave()

	notification := &domain.CallNotification{
		Event:    domain.NotifyIncomingGroupCall,
		CallID:   groupA.callID,
		ChatID:   chatID,
		CallerID: ids[0],
		CallType: domain.CallTypeGroupAudio,
	}

	groupB, err := engineB.JoinGroup(context.Background(), notification, GroupEvents{})
	require.NoError(t, err)
	defer groupB.Leave()

	groupC, err := engineC.JoinGroup(context.Background(), notification, GroupEvents{})
	require.NoError(t, err)
	defer groupC.Leave()

	// Full mesh: every participant ends up with a session to both others,
	// and the tie-break prevents duplicate sessions per pair.
	require.Eventually(t, func() bool {
		return groupA.SessionCount() == 2 && groupB.SessionCount() == 2 && groupC.SessionCount() == 2
	}, 5*time.Second, 20*time.Millisecond, "mesh must converge to N-1 sessions each")

	// Three pairs, one offerer per pair: A→B, A→C, B→C. Re-offers are
	// possible, but only lower-ID sides ever create them.
	h.bus.mu.Lock()
	offerers := make(map[uuid.UUID]bool)
	for _, s := range h.bus.log {
		if s.Req.Message.Type == domain.SignalTypeOffer {
			offerers[s.From] = true
		}
	}
	h.bus.mu.Unlock()
	assert.False(t, offerers[ids[2]], "the highest ID never initiates an offer")
}

func TestGroupRosterTracksJoins(t *testing.T) {
	h := newEngineHarness()
	ids := orderedIDs(2)
	chatID := uuid.New()

	engineA := h.engineFor(ids[0], "alice", time.Minute)
	engineB := h.engineFor(ids[1], "bob", time.Minute)

	joined := make(chan uuid.UUID, 4)
	groupA, err := engineA.StartGroup(context.Background(), chatID, domain.CallTypeGroupVideo, []uuid.UUID{ids[1]}, GroupEvents{
		OnPeerJoined: func(userID uuid.UUID, displayName string) {
			joined <- userID
		},
	})
	require.NoError(t, err)
	defer groupA.Leave()

	notification := &domain.CallNotification{
		Event:    domain.NotifyIncomingGroupCall,
		CallID:   groupA.callID,
		ChatID:   chatID,
		CallerID: ids[0],
		CallType: domain.CallTypeGroupVideo,
	}

	groupB, err := engineB.JoinGroup(context.Background(), notification, GroupEvents{})
	require.NoError(t, err)
	defer groupB.Leave()

	select {
	case userID := <-joined:
		assert.Equal(t, ids[1], userID)
	case <-time.After(3 * time.Second):
		t.Fatal("join announcement never surfaced")
	}

	require.Eventually(t, func() bool {
		participants := groupA.Participants()
		return participants[ids[1]] == "bob"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestGroupLeaveNotifiesOthers(t *testing.T) {
	h := newEngineHarness()
	ids := orderedIDs(2)
	chatID := uuid.New()

	engineA := h.engineFor(ids[0], "alice", time.Minute)
	engineB := h.engineFor(ids[1], "bob", time.Minute)

	left := make(chan uuid.UUID, 1)
	groupA, err := engineA.StartGroup(context.Background(), chatID, domain.CallTypeGroupAudio, []uuid.UUID{ids[1]}, GroupEvents{
		OnPeerLeft: func(userID uuid.UUID) { left <- userID },
	})
	require.NoError(t, err)
	defer groupA.Leave()

	notification := &domain.CallNotification{
		Event:    domain.NotifyIncomingGroupCall,
		CallID:   groupA.callID,
		ChatID:   chatID,
		CallerID: ids[0],
		CallType: domain.CallTypeGroupAudio,
	}

	groupB, err := engineB.JoinGroup(context.Background(), notification, GroupEvents{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return groupA.SessionCount() == 1
	}, 3*time.Second, 20*time.Millisecond)

	groupB.Leave()

	select {
	case userID := <-left:
		assert.Equal(t, ids[1], userID)
	case <-time.After(3 * time.Second):
		t.Fatal("departure never surfaced")
	}

	require.Eventually(t, func() bool {
		return groupA.SessionCount() == 0
	}, 3*time.Second, 20*time.Millisecond, "dead mesh edge must be dropped")
}

func TestGroupLeaveIsIdempotent(t *testing.T) {
	h := newEngineHarness()
	engine := h.engineFor(uuid.New(), "alice", time.Minute)

	group, err := engine.StartGroup(context.Background(), uuid.New(), domain.CallTypeGroupAudio, []uuid.UUID{uuid.New()}, GroupEvents{})
	require.NoError(t, err)

	group.Leave()
	group.Leave()
	group.Leave()

	assert.Len(t, h.history.outcomesFor(group.callID), 1)
}

func TestGroupRejectsNonGroupCallType(t *testing.T) {
	h := newEngineHarness()
	engine := h.engineFor(uuid.New(), "alice", time.Minute)

	_, err := engine.StartGroup(context.Background(), uuid.New(), domain.CallTypeVideo, []uuid.UUID{uuid.New()}, GroupEvents{})
	require.Error(t, err)
}

func TestGroupInviteRingsCallee(t *testing.T) {
	h := newEngineHarness()
	engine := h.engineFor(uuid.New(), "alice", time.Minute)

	group, err := engine.StartGroup(context.Background(), uuid.New(), domain.CallTypeGroupAudio, []uuid.UUID{uuid.New()}, GroupEvents{})
	require.NoError(t, err)
	defer group.Leave()

	newcomer := uuid.New()
	require.NoError(t, group.Invite(context.Background(), newcomer))

	h.notifier.mu.Lock()
	invites := append([]uuid.UUID(nil), h.notifier.invites...)
	h.notifier.mu.Unlock()
	assert.Equal(t, []uuid.UUID{newcomer}, invites)
}
