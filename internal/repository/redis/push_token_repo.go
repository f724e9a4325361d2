package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"wavelink-backend/internal/database"
	"wavelink-backend/pkg/constants"
)

// PushToken is one registered device token for a user.
type PushToken struct {
	Platform string `json:"platform"` // fcm, apns
	Token    string `json:"token"`
}

// PushTokenRepository stores device push tokens in Redis. The notify service
// reads them when a ring has to fall back to a push because the callee has no
// live realtime subscription.
type PushTokenRepository struct {
	client *database.RedisClient
}

// NewPushTokenRepository creates a new PushTokenRepository
func NewPushTokenRepository(client *database.RedisClient) *PushTokenRepository {
	return &PushTokenRepository{client: client}
}

func tokenKey(userID uuid.UUID) string {
	return fmt.Sprintf("push_tokens:%s", userID)
}

// Register stores a device token for a user
func (r *PushTokenRepository) Register(ctx context.Context, userID uuid.UUID, token PushToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal push token: %w", err)
	}

	key := tokenKey(userID)
	if err := r.client.SafeSAdd(ctx, key, string(data)).Err(); err != nil {
		return fmt.Errorf("failed to register push token: %w", err)
	}

	// Refresh expiry on every registration so stale devices age out
	r.client.Client.Expire(ctx, key, constants.PushTokenExpiry)

	return nil
}

// Unregister removes a device token for a user
func (r *PushTokenRepository) Unregister(ctx context.Context, userID uuid.UUID, token PushToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal push token: %w", err)
	}

	if err := r.client.SafeSRem(ctx, tokenKey(userID), string(data)).Err(); err != nil {
		return fmt.Errorf("failed to unregister push token: %w", err)
	}

	return nil
}

// GetTokens returns all registered device tokens for a user
func (r *PushTokenRepository) GetTokens(ctx context.Context, userID uuid.UUID) ([]PushToken, error) {
	members, err := r.client.SafeSMembers(ctx, tokenKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get push tokens: %w", err)
	}

	tokens := make([]PushToken, 0, len(members))
	for _, m := range members {
		var t PushToken
		if err := json.Unmarshal([]byte(m), &t); err != nil {
			continue
		}
		tokens = append(tokens, t)
	}

	return tokens, nil
}
