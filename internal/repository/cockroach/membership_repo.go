package cockroach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MembershipRepository answers chat/room membership questions. The relay
// consults it before publishing anything on a call channel; membership rows
// are written by the chat tier, never here.
type MembershipRepository struct {
	pool *pgxpool.Pool
}

// NewMembershipRepository creates a new membership repository
func NewMembershipRepository(pool *pgxpool.Pool) *MembershipRepository {
	return &MembershipRepository{pool: pool}
}

// IsMember reports whether userID belongs to the chat or room chatID
func (r *MembershipRepository) IsMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM chat_members
			WHERE chat_id = $1 AND user_id = $2 AND left_at IS NULL
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, chatID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}

	return exists, nil
}

// GetMembers returns the user IDs of all current members of a chat. Group
// call controllers use this to seed the initial roster.
func (r *MembershipRepository) GetMembers(ctx context.Context, chatID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT user_id FROM chat_members
		WHERE chat_id = $1 AND left_at IS NULL
		ORDER BY joined_at ASC
	`

	rows, err := r.pool.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	defer rows.Close()

	var members []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, id)
	}

	return members, nil
}
