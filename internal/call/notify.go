package call

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"wavelink-backend/internal/domain"
	"wavelink-backend/pkg/logger"
)

// IncomingCall is one ring surfaced to the UI, with the two things it can do
// about it. Accepting builds the controller; declining notifies the caller
// without ever creating a peer session.
type IncomingCall struct {
	Notification *domain.CallNotification

	Accept      func(ctx context.Context, cb Callbacks) (*Controller, error)
	AcceptGroup func(ctx context.Context, events GroupEvents) (*GroupController, error)
	Decline     func(ctx context.Context) error
}

// WatcherEvents are the personal-channel events a Watcher surfaces.
type WatcherEvents struct {
	OnIncoming func(ic *IncomingCall)
	// OnDeclined fires when a callee rejected our outgoing call.
	OnDeclined func(n *domain.CallNotification)
	// OnCancelled fires when the caller withdrew before we answered.
	OnCancelled func(n *domain.CallNotification)
}

// Watcher listens on the user's personal channel and turns ring/decline/
// cancel notifications into engine actions.
type Watcher struct {
	engine *Engine
	sub    NotificationSubscription
	events WatcherEvents

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// Watch subscribes to the personal channel and dispatches notifications
// until Close is called.
func (e *Engine) Watch(ctx context.Context, src NotificationSource, events WatcherEvents) (*Watcher, error) {
	sub, err := src.SubscribePersonal(ctx)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		engine: e,
		sub:    sub,
		events: events,
		done:   make(chan struct{}),
	}
	go w.loop()

	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case n, ok := <-w.sub.Notifications():
			if !ok {
				return
			}
			w.dispatch(n)
		}
	}
}

func (w *Watcher) dispatch(n *domain.CallNotification) {
	switch n.Event {
	case domain.NotifyIncomingCall, domain.NotifyIncomingGroupCall:
		if w.events.OnIncoming == nil {
			return
		}
		w.events.OnIncoming(w.incoming(n))

	case domain.NotifyCallDeclined:
		if w.events.OnDeclined != nil {
			w.events.OnDeclined(n)
		}

	case domain.NotifyCallCancelled:
		if w.events.OnCancelled != nil {
			w.events.OnCancelled(n)
		}

	default:
		logger.Debug("unhandled personal notification",
			zap.String("event", n.Event))
	}
}

func (w *Watcher) incoming(n *domain.CallNotification) *IncomingCall {
	return &IncomingCall{
		Notification: n,
		Accept: func(ctx context.Context, cb Callbacks) (*Controller, error) {
			return w.engine.Answer(ctx, n, cb)
		},
		AcceptGroup: func(ctx context.Context, events GroupEvents) (*GroupController, error) {
			return w.engine.JoinGroup(ctx, n, events)
		},
		Decline: func(ctx context.Context) error {
			return w.engine.notifier.Decline(ctx, n)
		},
	}
}

// Close stops the watcher. Safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.done)
	w.mu.Unlock()

	return w.sub.Close()
}
