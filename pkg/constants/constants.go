// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout is the default timeout for most operations
	DefaultTimeout = 30 * time.Second

	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 60 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second
)

// Call engine constants
const (
	// UnansweredCallTimeout is how long the initiator waits in "connecting"
	// before the call resolves to a no-answer outcome
	UnansweredCallTimeout = 45 * time.Second

	// CallDurationTick is the interval of the elapsed-time counter
	CallDurationTick = 1 * time.Second

	// SignalSettleDelay is the grace period between a subscription confirming
	// active and the first offer being sent, to avoid losing the offer to a
	// not-yet-delivering subscription
	SignalSettleDelay = 250 * time.Millisecond
)

// JWT-related constants
const (
	// AccessTokenExpiry is the default access token lifetime
	AccessTokenExpiry = 15 * time.Minute

	// RefreshTokenExpiry is the default refresh token lifetime
	RefreshTokenExpiry = 24 * time.Hour
)

// Database connection constants
const (
	// MaxConnLifetime is the maximum lifetime of a database connection
	MaxConnLifetime = 1 * time.Hour

	// MaxConnIdleTime is the maximum idle time for a database connection
	MaxConnIdleTime = 30 * time.Minute

	// HealthCheckPeriod is the interval between database health checks
	HealthCheckPeriod = 1 * time.Minute
)

// Presence constants
const (
	// PresenceTTL is how long a presence key lives without a heartbeat refresh
	PresenceTTL = 5 * time.Minute

	// PresenceHeartbeatInterval is how often clients are expected to refresh
	PresenceHeartbeatInterval = 1 * time.Minute
)

// Storage constants
const (
	// PresignedURLExpiry is the validity period for presigned avatar URLs
	PresignedURLExpiry = 15 * time.Minute
)

// Push notification constants
const (
	// PushTokenExpiry is the validity period for push notification tokens
	PushTokenExpiry = 30 * 24 * time.Hour // 30 days
)

// Pagination constants
const (
	// DefaultPageSize is the default number of items per page
	DefaultPageSize = 20

	// MaxPageSize is the maximum number of items per page
	MaxPageSize = 100
)
