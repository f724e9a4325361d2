package relay

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"wavelink-backend/internal/broker"
	"wavelink-backend/internal/domain"
	apperrors "wavelink-backend/pkg/errors"
	"wavelink-backend/pkg/logger"
)

func init() {
	logger.InitDefault()
}

// MockMembershipChecker is a mock implementation of MembershipChecker
type MockMembershipChecker struct {
	mock.Mock
}

func (m *MockMembershipChecker) IsMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

// MockPublisher is a mock implementation of broker.Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, msg *broker.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func TestRelayStampsSenderIdentity(t *testing.T) {
	members := new(MockMembershipChecker)
	pub := new(MockPublisher)
	service := NewService(members, pub, nil)

	callerID := uuid.New()
	chatID := uuid.New()

	members.On("IsMember", mock.Anything, chatID, callerID).Return(true, nil)

	var published *broker.Message
	pub.On("Publish", mock.Anything, mock.AnythingOfType("*broker.Message")).
		Run(func(args mock.Arguments) {
			published = args.Get(1).(*broker.Message)
		}).
		Return(nil)

	err := service.Relay(context.Background(), &Input{
		CallerID: callerID,
		ChatID:   chatID,
		CallType: domain.CallTypeVideo,
		Message:  domain.SignalMessage{Type: domain.SignalTypeOffer, SDP: "v=0..."},
	})
	require.NoError(t, err)
	require.NotNil(t, published)

	assert.Equal(t, "video-call-"+chatID.String(), published.Channel)
	assert.Equal(t, domain.SignalEvent, published.Event)

	var envelope domain.SignalingEnvelope
	require.NoError(t, json.Unmarshal(published.Payload, &envelope))
	assert.Equal(t, callerID, envelope.From, "from must equal the authenticated caller")
	assert.Nil(t, envelope.To)
	assert.Equal(t, domain.SignalTypeOffer, envelope.Message.Type)
	assert.False(t, envelope.Timestamp.IsZero())

	members.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestRelayRejectsUnknownCallType(t *testing.T) {
	members := new(MockMembershipChecker)
	pub := new(MockPublisher)
	service := NewService(members, pub, nil)

	err := service.Relay(context.Background(), &Input{
		CallerID: uuid.New(),
		ChatID:   uuid.New(),
		CallType: domain.CallType("teleport"),
		Message:  domain.SignalMessage{Type: domain.SignalTypeOffer},
	})

	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeInvalidCallType, appErr.Code)
	assert.Equal(t, 400, apperrors.HTTPStatus(appErr.Code))

	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	members.AssertNotCalled(t, "IsMember", mock.Anything, mock.Anything, mock.Anything)
}

func TestRelayRejectsUnknownSignalType(t *testing.T) {
	members := new(MockMembershipChecker)
	pub := new(MockPublisher)
	service := NewService(members, pub, nil)

	err := service.Relay(context.Background(), &Input{
		CallerID: uuid.New(),
		ChatID:   uuid.New(),
		CallType: domain.CallTypeAudio,
		Message:  domain.SignalMessage{Type: "self-destruct"},
	})

	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeInvalidSignal, appErr.Code)

	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestRelayRejectsNonMember(t *testing.T) {
	members := new(MockMembershipChecker)
	pub := new(MockPublisher)
	service := NewService(members, pub, nil)

	callerID := uuid.New()
	chatID := uuid.New()
	members.On("IsMember", mock.Anything, chatID, callerID).Return(false, nil)

	err := service.Relay(context.Background(), &Input{
		CallerID: callerID,
		ChatID:   chatID,
		CallType: domain.CallTypeGroupVideo,
		Message:  domain.SignalMessage{Type: domain.SignalTypeUserJoined},
	})

	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeNotChatMember, appErr.Code)
	assert.Equal(t, 403, apperrors.HTTPStatus(appErr.Code))

	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestRelayPublishFailureIsInternal(t *testing.T) {
	members := new(MockMembershipChecker)
	pub := new(MockPublisher)
	service := NewService(members, pub, nil)

	callerID := uuid.New()
	chatID := uuid.New()
	members.On("IsMember", mock.Anything, chatID, callerID).Return(true, nil)
	pub.On("Publish", mock.Anything, mock.Anything).Return(assert.AnError)

	err := service.Relay(context.Background(), &Input{
		CallerID: callerID,
		ChatID:   chatID,
		CallType: domain.CallTypeAudio,
		Message:  domain.SignalMessage{Type: domain.SignalTypeEndCall},
	})

	require.Error(t, err)
	assert.Equal(t, 500, apperrors.StatusOf(err))
}

func TestRelayTargetedEnvelope(t *testing.T) {
	members := new(MockMembershipChecker)
	pub := new(MockPublisher)
	service := NewService(members, pub, nil)

	callerID := uuid.New()
	chatID := uuid.New()
	recipient := uuid.New()

	members.On("IsMember", mock.Anything, chatID, callerID).Return(true, nil)

	var published *broker.Message
	pub.On("Publish", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			published = args.Get(1).(*broker.Message)
		}).
		Return(nil)

	err := service.Relay(context.Background(), &Input{
		CallerID: callerID,
		To:       &recipient,
		ChatID:   chatID,
		CallType: domain.CallTypeGroupAudio,
		Message:  domain.SignalMessage{Type: domain.SignalTypeAnswer, SDP: "v=0..."},
	})
	require.NoError(t, err)

	var envelope domain.SignalingEnvelope
	require.NoError(t, json.Unmarshal(published.Payload, &envelope))
	require.NotNil(t, envelope.To)
	assert.Equal(t, recipient, *envelope.To)
	assert.Equal(t, "group-audio-call-"+chatID.String(), published.Channel)
}
