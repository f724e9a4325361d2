// Package realtime defines the WebSocket wire protocol between clients and
// the delivery hub, and provides a Go client for it. The socket is
// delivery-only: clients manage subscriptions over it, but all publishing
// goes through the HTTP relay so the server can stamp sender identity.
package realtime

import (
	"encoding/json"
	"time"
)

// Client command actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPing        = "ping"
)

// Server event names outside of relayed broadcast events.
const (
	EventSubscribed   = "subscribed"
	EventUnsubscribed = "unsubscribed"
	EventPong         = "pong"
	EventError        = "error"
)

// ClientCommand is a client-to-server frame.
type ClientCommand struct {
	Action  string `json:"action"`
	Channel string `json:"channel,omitempty"`
}

// ServerEvent is a server-to-client frame. For relayed broadcasts, Event and
// Payload come straight from the broker message; for protocol acks, Event is
// one of the Event* constants and Payload is empty or an error detail.
type ServerEvent struct {
	Event     string          `json:"event"`
	Channel   string          `json:"channel,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
