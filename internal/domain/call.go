package domain

import (
	"time"

	"github.com/google/uuid"
)

// Call outcome values persisted to the history sink.
const (
	OutcomeCompleted = "completed"
	OutcomeMissed    = "missed"
	OutcomeDeclined  = "declined"
	OutcomeFailed    = "failed"
)

// Call statuses while a record is live.
const (
	CallStatusRinging = "ringing"
	CallStatusActive  = "active"
	CallStatusEnded   = "ended"
)

// Call is a persisted call history record. In-memory call session state lives
// in the call engine; this row only captures how the attempt ended.
type Call struct {
	CallID    uuid.UUID  `json:"call_id"`
	ChatID    uuid.UUID  `json:"chat_id"`
	CallerID  uuid.UUID  `json:"caller_id"`
	CallType  CallType   `json:"call_type"`
	Status    string     `json:"status"`
	Outcome   string     `json:"outcome,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Duration  int        `json:"duration,omitempty"` // seconds
}

// CallParticipant records one user's membership in a call.
type CallParticipant struct {
	CallID   uuid.UUID  `json:"call_id"`
	UserID   uuid.UUID  `json:"user_id"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}
