// Package push delivers "incoming call" notifications to devices that have
// no live realtime subscription. It is best-effort: a failed push never fails
// the call attempt that triggered it.
package push

import (
	"context"

	"go.uber.org/zap"

	"wavelink-backend/pkg/logger"
)

// Platform identifiers for registered device tokens.
const (
	PlatformFCM  = "fcm"
	PlatformAPNS = "apns"
)

// Notification is a platform-independent push payload.
type Notification struct {
	Title string
	Body  string
	// Data carries the call metadata the client app needs to surface the
	// ringing UI (chat id, caller id, call type).
	Data map[string]string
}

// Provider sends a Notification to a single device token.
type Provider interface {
	Platform() string
	Send(ctx context.Context, token string, n *Notification) error
}

// Service fans a notification out to all of a user's device tokens across
// the configured providers.
type Service struct {
	providers map[string]Provider
}

// NewService creates a push service over the given providers
func NewService(providers ...Provider) *Service {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Platform()] = p
	}
	return &Service{providers: m}
}

// HasProvider reports whether a provider is configured for platform
func (s *Service) HasProvider(platform string) bool {
	_, ok := s.providers[platform]
	return ok
}

// Target pairs a device token with its platform.
type Target struct {
	Platform string
	Token    string
}

// SendToTargets delivers n to every target with a matching provider.
// Individual failures are logged and counted, not returned; the caller has
// already committed to the ring regardless.
func (s *Service) SendToTargets(ctx context.Context, targets []Target, n *Notification) (sent, failed int) {
	for _, t := range targets {
		provider, ok := s.providers[t.Platform]
		if !ok {
			continue
		}

		if err := provider.Send(ctx, t.Token, n); err != nil {
			failed++
			logger.Warn("push delivery failed",
				zap.String("platform", t.Platform),
				zap.Error(err))
			continue
		}
		sent++
	}
	return sent, failed
}
