package ws

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"wavelink-backend/internal/domain"
	apperrors "wavelink-backend/pkg/errors"
)

type MockMembershipChecker struct {
	mock.Mock
}

func (m *MockMembershipChecker) IsMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func TestAuthorizePersonalChannelSelfOnly(t *testing.T) {
	policy := NewChannelPolicy(new(MockMembershipChecker))

	me := uuid.New()
	other := uuid.New()

	assert.NoError(t, policy.Authorize(context.Background(), me, domain.PersonalChannel(me)))

	err := policy.Authorize(context.Background(), me, domain.PersonalChannel(other))
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeForbidden, appErr.Code)
}

func TestAuthorizeCallChannelRequiresMembership(t *testing.T) {
	members := new(MockMembershipChecker)
	policy := NewChannelPolicy(members)

	userID := uuid.New()
	memberChat := uuid.New()
	strangerChat := uuid.New()

	members.On("IsMember", mock.Anything, memberChat, userID).Return(true, nil)
	members.On("IsMember", mock.Anything, strangerChat, userID).Return(false, nil)

	assert.NoError(t, policy.Authorize(context.Background(), userID, domain.ChannelName(domain.CallTypeVideo, memberChat)))

	err := policy.Authorize(context.Background(), userID, domain.ChannelName(domain.CallTypeVideo, strangerChat))
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeNotChatMember, appErr.Code)
}

func TestAuthorizeRejectsMalformedChannel(t *testing.T) {
	policy := NewChannelPolicy(new(MockMembershipChecker))

	err := policy.Authorize(context.Background(), uuid.New(), "mystery-channel")
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeValidation, appErr.Code)
}
