// Package broker is the broadcast-channel fabric. A channel is a named topic;
// publishing on it reaches every current subscriber across all service
// instances via Redis pub/sub. Nothing is persisted: a message delivered
// while nobody listens is gone, which is the contract call signaling wants.
package broker

import (
	"context"
	"encoding/json"
)

// Message is one broadcast event on a named channel.
type Message struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Publisher publishes messages onto broadcast channels.
type Publisher interface {
	Publish(ctx context.Context, msg *Message) error
}

// Subscription is one live subscription to a broadcast channel.
type Subscription interface {
	// C yields delivered messages until the subscription is closed.
	C() <-chan *Message
	Close() error
}

// Subscriber opens subscriptions to broadcast channels.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}
