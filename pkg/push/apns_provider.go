package push

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// APNSProvider sends notifications through Apple Push Notification service
// using token-based (p8 key) authentication.
type APNSProvider struct {
	client *apns2.Client
	topic  string
}

// APNSConfig holds APNs credentials and addressing.
type APNSConfig struct {
	AuthKeyFile string
	KeyID       string
	TeamID      string
	Topic       string // app bundle id
	Production  bool
}

// NewAPNSProvider creates an APNs provider from a p8 auth key
func NewAPNSProvider(cfg *APNSConfig) (*APNSProvider, error) {
	authKey, err := token.AuthKeyFromFile(cfg.AuthKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs auth key: %w", err)
	}

	t := &token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	client := apns2.NewTokenClient(t)
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNSProvider{client: client, topic: cfg.Topic}, nil
}

// Platform returns the APNs platform identifier
func (p *APNSProvider) Platform() string {
	return PlatformAPNS
}

// Send delivers a notification to one APNs device token
func (p *APNSProvider) Send(ctx context.Context, deviceToken string, n *Notification) error {
	pl := payload.NewPayload().
		AlertTitle(n.Title).
		AlertBody(n.Body).
		Sound("default")

	for k, v := range n.Data {
		pl.Custom(k, v)
	}

	body, err := json.Marshal(pl)
	if err != nil {
		return fmt.Errorf("failed to marshal APNs payload: %w", err)
	}

	notification := &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       p.topic,
		Payload:     body,
		Priority:    apns2.PriorityHigh,
	}

	res, err := p.client.PushWithContext(ctx, notification)
	if err != nil {
		return fmt.Errorf("apns push failed: %w", err)
	}
	if !res.Sent() {
		return fmt.Errorf("apns push rejected: %s", res.Reason)
	}

	return nil
}
