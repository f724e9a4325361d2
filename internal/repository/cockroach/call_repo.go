package cockroach

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wavelink-backend/internal/domain"
)

// CallRepository is the call-history sink. The call engine reports outcomes
// here; it never reads this table during a live call.
type CallRepository struct {
	pool *pgxpool.Pool
}

// NewCallRepository creates a new call repository
func NewCallRepository(pool *pgxpool.Pool) *CallRepository {
	return &CallRepository{pool: pool}
}

// Create inserts a new call record in ringing state
func (r *CallRepository) Create(ctx context.Context, call *domain.Call) error {
	query := `
		INSERT INTO calls (
			call_id, chat_id, caller_id, call_type, status, started_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		call.CallID,
		call.ChatID,
		call.CallerID,
		call.CallType,
		call.Status,
		call.StartedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create call: %w", err)
	}

	return nil
}

// UpdateStatus updates call status
func (r *CallRepository) UpdateStatus(ctx context.Context, callID uuid.UUID, status string) error {
	query := `
		UPDATE calls
		SET status = $2
		WHERE call_id = $1
	`

	_, err := r.pool.Exec(ctx, query, callID, status)
	if err != nil {
		return fmt.Errorf("failed to update call status: %w", err)
	}

	return nil
}

// Finish marks a call as ended with the given outcome and duration
func (r *CallRepository) Finish(ctx context.Context, callID uuid.UUID, outcome string, duration int) error {
	query := `
		UPDATE calls
		SET status = 'ended',
		    outcome = $2,
		    duration = $3,
		    ended_at = NOW()
		WHERE call_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, callID, outcome, duration)
	if err != nil {
		return fmt.Errorf("failed to finish call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("call not found")
	}

	return nil
}

// GetByID retrieves a call by ID
func (r *CallRepository) GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	query := `
		SELECT call_id, chat_id, caller_id, call_type, status,
		       COALESCE(outcome, ''), started_at, ended_at, COALESCE(duration, 0)
		FROM calls
		WHERE call_id = $1
	`

	call := &domain.Call{}
	err := r.pool.QueryRow(ctx, query, callID).Scan(
		&call.CallID,
		&call.ChatID,
		&call.CallerID,
		&call.CallType,
		&call.Status,
		&call.Outcome,
		&call.StartedAt,
		&call.EndedAt,
		&call.Duration,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("call not found")
		}
		return nil, fmt.Errorf("failed to get call: %w", err)
	}

	return call, nil
}

// GetUserCalls retrieves call history for a user, most recent first
func (r *CallRepository) GetUserCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Call, error) {
	query := `
		SELECT DISTINCT c.call_id, c.chat_id, c.caller_id, c.call_type, c.status,
		       COALESCE(c.outcome, ''), c.started_at, c.ended_at, COALESCE(c.duration, 0)
		FROM calls c
		LEFT JOIN call_participants cp ON c.call_id = cp.call_id
		WHERE c.caller_id = $1 OR cp.user_id = $1
		ORDER BY c.started_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get user calls: %w", err)
	}
	defer rows.Close()

	var calls []*domain.Call
	for rows.Next() {
		call := &domain.Call{}
		err := rows.Scan(
			&call.CallID,
			&call.ChatID,
			&call.CallerID,
			&call.CallType,
			&call.Status,
			&call.Outcome,
			&call.StartedAt,
			&call.EndedAt,
			&call.Duration,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		calls = append(calls, call)
	}

	return calls, nil
}

// AddParticipant adds a participant to a call
func (r *CallRepository) AddParticipant(ctx context.Context, callID, userID uuid.UUID) error {
	query := `
		INSERT INTO call_participants (call_id, user_id, joined_at)
		VALUES ($1, $2, $3)
	`

	_, err := r.pool.Exec(ctx, query, callID, userID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}

	return nil
}

// RemoveParticipant marks a participant as having left a call
func (r *CallRepository) RemoveParticipant(ctx context.Context, callID, userID uuid.UUID) error {
	query := `
		UPDATE call_participants
		SET left_at = $3
		WHERE call_id = $1 AND user_id = $2
	`

	_, err := r.pool.Exec(ctx, query, callID, userID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}

	return nil
}
