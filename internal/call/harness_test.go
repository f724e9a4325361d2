package call

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"wavelink-backend/internal/domain"
)

// signalBus is an in-memory stand-in for the relay plus broker: Send stamps
// the sender and fans the envelope out to every subscription on the channel.
type signalBus struct {
	mu   sync.Mutex
	subs map[string][]*busSubscription
	log  []*stampedSend
}

type stampedSend struct {
	From uuid.UUID
	Req  SendRequest
}

func newSignalBus() *signalBus {
	return &signalBus{subs: make(map[string][]*busSubscription)}
}

// sentOfType returns how many messages of the given signal type were sent.
func (b *signalBus) sentOfType(signalType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.log {
		if s.Req.Message.Type == signalType {
			n++
		}
	}
	return n
}

func (b *signalBus) signalerFor(userID uuid.UUID) Signaler {
	return &busSignaler{bus: b, from: userID}
}

type busSignaler struct {
	bus  *signalBus
	from uuid.UUID
}

func (s *busSignaler) Subscribe(ctx context.Context, callType domain.CallType, chatID uuid.UUID) (Subscription, error) {
	sub := &busSubscription{
		bus:     s.bus,
		channel: domain.ChannelName(callType, chatID),
		ch:      make(chan *domain.SignalingEnvelope, 64),
	}
	s.bus.mu.Lock()
	s.bus.subs[sub.channel] = append(s.bus.subs[sub.channel], sub)
	s.bus.mu.Unlock()
	return sub, nil
}

func (s *busSignaler) Send(ctx context.Context, req *SendRequest) error {
	env := &domain.SignalingEnvelope{
		From:      s.from,
		To:        req.To,
		Message:   req.Message,
		Timestamp: time.Now(),
	}
	channel := domain.ChannelName(req.CallType, req.ChatID)

	s.bus.mu.Lock()
	s.bus.log = append(s.bus.log, &stampedSend{From: s.from, Req: *req})
	subs := append([]*busSubscription(nil), s.bus.subs[channel]...)
	s.bus.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- env:
		default:
		}
	}
	return nil
}

type busSubscription struct {
	bus     *signalBus
	channel string
	ch      chan *domain.SignalingEnvelope
	once    sync.Once
}

func (s *busSubscription) Envelopes() <-chan *domain.SignalingEnvelope { return s.ch }

func (s *busSubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		subs := s.bus.subs[s.channel]
		for i, sub := range subs {
			if sub == s {
				s.bus.subs[s.channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		s.bus.mu.Unlock()
	})
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	started  []*domain.Call
	invites  []uuid.UUID
	cancels  []uuid.UUID
	declines []*domain.CallNotification
}

func (f *fakeNotifier) StartCall(ctx context.Context, chatID uuid.UUID, callType domain.CallType, calleeIDs []uuid.UUID) (*domain.Call, error) {
	call := &domain.Call{
		CallID:    uuid.New(),
		ChatID:    chatID,
		CallType:  callType,
		Status:    domain.CallStatusRinging,
		StartedAt: time.Now(),
	}
	f.mu.Lock()
	f.started = append(f.started, call)
	f.mu.Unlock()
	return call, nil
}

func (f *fakeNotifier) Invite(ctx context.Context, callID, calleeID, chatID uuid.UUID, callType domain.CallType) error {
	f.mu.Lock()
	f.invites = append(f.invites, calleeID)
	f.mu.Unlock()
	return nil
}

func (f *fakeNotifier) Decline(ctx context.Context, n *domain.CallNotification) error {
	f.mu.Lock()
	f.declines = append(f.declines, n)
	f.mu.Unlock()
	return nil
}

func (f *fakeNotifier) Cancel(ctx context.Context, callID, calleeID, chatID uuid.UUID, callType domain.CallType) error {
	f.mu.Lock()
	f.cancels = append(f.cancels, callID)
	f.mu.Unlock()
	return nil
}

func (f *fakeNotifier) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cancels)
}

type fakeHistory struct {
	mu       sync.Mutex
	outcomes map[uuid.UUID][]string
	joins    []uuid.UUID
	leaves   []uuid.UUID
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{outcomes: make(map[uuid.UUID][]string)}
}

func (f *fakeHistory) RecordOutcome(ctx context.Context, callID uuid.UUID, outcome string, duration time.Duration) error {
	f.mu.Lock()
	f.outcomes[callID] = append(f.outcomes[callID], outcome)
	f.mu.Unlock()
	return nil
}

func (f *fakeHistory) Join(ctx context.Context, callID uuid.UUID) error {
	f.mu.Lock()
	f.joins = append(f.joins, callID)
	f.mu.Unlock()
	return nil
}

func (f *fakeHistory) Leave(ctx context.Context, callID uuid.UUID) error {
	f.mu.Lock()
	f.leaves = append(f.leaves, callID)
	f.mu.Unlock()
	return nil
}

func (f *fakeHistory) outcomesFor(callID uuid.UUID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.outcomes[callID]...)
}

func (f *fakeHistory) joinedCalls() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.joins...)
}

// countingProvider wraps real sample tracks with acquire/release counters.
type countingProvider struct {
	mu       sync.Mutex
	acquired int
	released int
	// failures holds constraint sets that should fail acquisition.
	failWith func(c Constraints) bool
}

func (p *countingProvider) Acquire(ctx context.Context, c Constraints) (*Stream, error) {
	if p.failWith != nil && p.failWith(c) {
		return nil, context.DeadlineExceeded
	}

	stream, err := TrackProvider{}.Acquire(ctx, c)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.acquired++
	p.mu.Unlock()

	return NewStream(stream.audio, stream.video, func() {
		p.mu.Lock()
		p.released++
		p.mu.Unlock()
	}), nil
}

func (p *countingProvider) counts() (acquired, released int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired, p.released
}

type engineHarness struct {
	bus      *signalBus
	notifier *fakeNotifier
	history  *fakeHistory
	media    *countingProvider
}

func newEngineHarness() *engineHarness {
	return &engineHarness{
		bus:      newSignalBus(),
		notifier: &fakeNotifier{},
		history:  newFakeHistory(),
		media:    &countingProvider{},
	}
}

func (h *engineHarness) engineFor(userID uuid.UUID, name string, ringTimeout time.Duration) *Engine {
	return NewEngine(EngineConfig{
		SelfID:      userID,
		DisplayName: name,
		Signaler:    h.bus.signalerFor(userID),
		Notifier:    h.notifier,
		History:     h.history,
		Media:       h.media,
		WebRTC:      webrtc.Configuration{},
		RingTimeout: ringTimeout,
	})
}
