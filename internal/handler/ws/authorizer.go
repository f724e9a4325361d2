package ws

import (
	"context"

	"github.com/google/uuid"

	"wavelink-backend/internal/domain"
	apperrors "wavelink-backend/pkg/errors"
)

// MembershipChecker verifies chat membership for call channel subscriptions.
type MembershipChecker interface {
	IsMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error)
}

// ChannelPolicy authorizes channel subscriptions: a personal channel belongs
// to exactly one user, a call channel to the members of its chat.
type ChannelPolicy struct {
	members MembershipChecker
}

// NewChannelPolicy creates the subscription policy
func NewChannelPolicy(members MembershipChecker) *ChannelPolicy {
	return &ChannelPolicy{members: members}
}

// Authorize returns nil when userID may subscribe to channel.
func (p *ChannelPolicy) Authorize(ctx context.Context, userID uuid.UUID, channel string) error {
	kind, id, _, err := domain.ParseChannel(channel)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeValidation, "Unknown channel", err)
	}

	switch kind {
	case domain.ChannelKindPersonal:
		if id != userID {
			return apperrors.New(apperrors.ErrCodeForbidden, "Personal channels are private")
		}
		return nil

	case domain.ChannelKindCall:
		ok, err := p.members.IsMember(ctx, id, userID)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to verify chat membership", err)
		}
		if !ok {
			return apperrors.New(apperrors.ErrCodeNotChatMember, "Not authorized for this chat")
		}
		return nil
	}

	return apperrors.New(apperrors.ErrCodeValidation, "Unknown channel")
}
