package history

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"wavelink-backend/internal/domain"
	apperrors "wavelink-backend/pkg/errors"
)

type MockCallStore struct {
	mock.Mock
}

func (m *MockCallStore) Create(ctx context.Context, call *domain.Call) error {
	args := m.Called(ctx, call)
	return args.Error(0)
}

func (m *MockCallStore) UpdateStatus(ctx context.Context, callID uuid.UUID, status string) error {
	args := m.Called(ctx, callID, status)
	return args.Error(0)
}

func (m *MockCallStore) Finish(ctx context.Context, callID uuid.UUID, outcome string, duration int) error {
	args := m.Called(ctx, callID, outcome, duration)
	return args.Error(0)
}

func (m *MockCallStore) GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	args := m.Called(ctx, callID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Call), args.Error(1)
}

func (m *MockCallStore) GetUserCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Call, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Call), args.Error(1)
}

func (m *MockCallStore) AddParticipant(ctx context.Context, callID, userID uuid.UUID) error {
	args := m.Called(ctx, callID, userID)
	return args.Error(0)
}

func (m *MockCallStore) RemoveParticipant(ctx context.Context, callID, userID uuid.UUID) error {
	args := m.Called(ctx, callID, userID)
	return args.Error(0)
}

type MockMembershipChecker struct {
	mock.Mock
}

func (m *MockMembershipChecker) IsMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func TestStartCreatesRingingRecord(t *testing.T) {
	store := new(MockCallStore)
	members := new(MockMembershipChecker)
	svc := NewService(store, members, nil)

	caller := uuid.New()
	chatID := uuid.New()

	members.On("IsMember", mock.Anything, chatID, caller).Return(true, nil)

	var created *domain.Call
	store.On("Create", mock.Anything, mock.AnythingOfType("*domain.Call")).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(*domain.Call)
		}).
		Return(nil)
	store.On("AddParticipant", mock.Anything, mock.Anything, caller).Return(nil)

	call, err := svc.Start(context.Background(), caller, chatID, domain.CallTypeVideo)
	require.NoError(t, err)

	assert.Equal(t, domain.CallStatusRinging, call.Status)
	assert.Equal(t, caller, call.CallerID)
	assert.Equal(t, chatID, call.ChatID)
	assert.NotEqual(t, uuid.Nil, call.CallID)
	assert.Equal(t, created.CallID, call.CallID)
}

func TestStartRejectsNonMember(t *testing.T) {
	store := new(MockCallStore)
	members := new(MockMembershipChecker)
	svc := NewService(store, members, nil)

	members.On("IsMember", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)

	_, err := svc.Start(context.Background(), uuid.New(), uuid.New(), domain.CallTypeAudio)
	require.Error(t, err)

	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeNotChatMember, appErr.Code)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestStartRejectsInvalidCallType(t *testing.T) {
	store := new(MockCallStore)
	members := new(MockMembershipChecker)
	svc := NewService(store, members, nil)

	_, err := svc.Start(context.Background(), uuid.New(), uuid.New(), domain.CallType("hologram"))
	require.Error(t, err)

	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeInvalidCallType, appErr.Code)
}

func TestRecordOutcomeConvertsDurationToSeconds(t *testing.T) {
	store := new(MockCallStore)
	svc := NewService(store, new(MockMembershipChecker), nil)

	callID := uuid.New()
	store.On("Finish", mock.Anything, callID, domain.OutcomeCompleted, 95).Return(nil)

	err := svc.RecordOutcome(context.Background(), callID, domain.OutcomeCompleted, 95*time.Second+300*time.Millisecond)
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestRecordOutcomeRejectsUnknownOutcome(t *testing.T) {
	store := new(MockCallStore)
	svc := NewService(store, new(MockMembershipChecker), nil)

	err := svc.RecordOutcome(context.Background(), uuid.New(), "vanished", 0)
	require.Error(t, err)
	store.AssertNotCalled(t, "Finish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetEnforcesMembership(t *testing.T) {
	store := new(MockCallStore)
	members := new(MockMembershipChecker)
	svc := NewService(store, members, nil)

	requester := uuid.New()
	chatID := uuid.New()
	call := &domain.Call{CallID: uuid.New(), ChatID: chatID, Status: domain.CallStatusEnded}

	store.On("GetByID", mock.Anything, call.CallID).Return(call, nil)
	members.On("IsMember", mock.Anything, chatID, requester).Return(false, nil)

	_, err := svc.Get(context.Background(), requester, call.CallID)
	require.Error(t, err)

	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeNotChatMember, appErr.Code)
}

func TestListClampsPageSize(t *testing.T) {
	store := new(MockCallStore)
	svc := NewService(store, new(MockMembershipChecker), nil)

	userID := uuid.New()
	store.On("GetUserCalls", mock.Anything, userID, maxPageSize, 0).Return([]*domain.Call{}, nil)

	_, err := svc.List(context.Background(), userID, 10000, -5)
	require.NoError(t, err)
	store.AssertExpectations(t)
}
