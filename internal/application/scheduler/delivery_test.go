package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/birthday-notifier/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) QueryBirthdayCandidates(ctx context.Context, monthDay string, sentBefore time.Time) ([]domain.User, error) {
	args := m.Called(ctx, monthDay, sentBefore)
	return args.Get(0).([]domain.User), args.Error(1)
}
func (m *mockUserStore) QueryRecoveryCandidates(ctx context.Context, attemptedBefore time.Time) ([]domain.User, error) {
	args := m.Called(ctx, attemptedBefore)
	return args.Get(0).([]domain.User), args.Error(1)
}
func (m *mockUserStore) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	return m.Called(ctx, userID, updates).Error(0)
}

type mockSender struct{ mock.Mock }

func (m *mockSender) Send(ctx context.Context, email, message string) error {
	return m.Called(ctx, email, message).Error(0)
}

// --- helpers ---

// sleepRecorder captures backoff waits instead of sleeping.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
}

func (r *sleepRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waits)
}

var fixedNow = time.Date(2024, time.May, 8, 2, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, us *mockUserStore, ms *mockSender, sr *sleepRecorder) *service {
	t.Helper()
	svc := NewService(ServiceDeps{
		Store:  us,
		Sender: ms,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    func() time.Time { return fixedNow },
		Sleep:  sr.sleep,
	})
	return svc.(*service)
}

func isAttemptMark(m map[string]interface{}) bool {
	_, ok := m[fieldLastAttemptedSend]
	return ok
}

func isSentMark(m map[string]interface{}) bool {
	return m[fieldMessageStatus] == domain.MessageStatusSent
}

func isFailedMark(m map[string]interface{}) bool {
	return m[fieldMessageStatus] == domain.MessageStatusFailed
}

func testUser() domain.User {
	return domain.User{
		UserID:    "u1",
		Email:     "test.user@gmail.com",
		FirstName: "Test",
		LastName:  "User",
		Birthday:  time.Date(2024, time.May, 8, 0, 0, 0, 0, time.UTC),
		Location:  "Asia/Jakarta",
	}
}

// --- tests ---

func TestDeliver_SucceedsFirstTry(t *testing.T) {
	us := &mockUserStore{}
	ms := &mockSender{}
	sr := &sleepRecorder{}

	us.On("Update", mock.Anything, "u1", mock.MatchedBy(isAttemptMark)).Return(nil).Once()
	ms.On("Send", mock.Anything, "test.user@gmail.com", "Hey, Test User, it's your birthday").Return(nil).Once()
	us.On("Update", mock.Anything, "u1", mock.MatchedBy(isSentMark)).Return(nil).Once()

	s := newTestService(t, us, ms, sr)
	u := testUser()
	require.NoError(t, s.deliver(context.Background(), &u))

	assert.Equal(t, 0, sr.count())
	us.AssertExpectations(t)
	ms.AssertExpectations(t)
}

func TestDeliver_SentMarkCarriesTimestamp(t *testing.T) {
	us := &mockUserStore{}
	ms := &mockSender{}
	sr := &sleepRecorder{}

	us.On("Update", mock.Anything, "u1", mock.MatchedBy(isAttemptMark)).Return(nil).Once()
	ms.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	us.On("Update", mock.Anything, "u1", mock.MatchedBy(func(m map[string]interface{}) bool {
		sent, ok := m[fieldLastMessageSent].(time.Time)
		return ok && sent.Equal(fixedNow) && isSentMark(m)
	})).Return(nil).Once()

	s := newTestService(t, us, ms, sr)
	u := testUser()
	require.NoError(t, s.deliver(context.Background(), &u))
	us.AssertExpectations(t)
}

func TestDeliver_RetriesThenSucceeds(t *testing.T) {
	us := &mockUserStore{}
	ms := &mockSender{}
	sr := &sleepRecorder{}

	us.On("Update", mock.Anything, "u1", mock.MatchedBy(isAttemptMark)).Return(nil).Once()
	ms.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("network error")).Once()
	us.On("Update", mock.Anything, "u1", mock.MatchedBy(isFailedMark)).Return(nil).Once()
	ms.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	us.On("Update", mock.Anything, "u1", mock.MatchedBy(isSentMark)).Return(nil).Once()

	s := newTestService(t, us, ms, sr)
	u := testUser()
	require.NoError(t, s.deliver(context.Background(), &u))

	ms.AssertNumberOfCalls(t, "Send", 2)
	require.Equal(t, 1, sr.count())
	assert.Equal(t, 30*time.Second, sr.waits[0])
	us.AssertExpectations(t)
}

func TestDeliver_GivesUpAfterMaxRetries(t *testing.T) {
	us := &mockUserStore{}
	ms := &mockSender{}
	sr := &sleepRecorder{}

	us.On("Update", mock.Anything, "u1", mock.MatchedBy(isAttemptMark)).Return(nil).Once()
	ms.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("email service returned status 404")).Times(3)
	us.On("Update", mock.Anything, "u1", mock.MatchedBy(isFailedMark)).Return(nil).Times(3)

	s := newTestService(t, us, ms, sr)
	u := testUser()
	require.NoError(t, s.deliver(context.Background(), &u))

	ms.AssertNumberOfCalls(t, "Send", 3)
	assert.Equal(t, 2, sr.count())
	us.AssertExpectations(t)
	us.AssertNotCalled(t, "Update", mock.Anything, "u1", mock.MatchedBy(isSentMark))
}

func TestDeliver_AttemptMarkFailureAbortsBeforeSending(t *testing.T) {
	us := &mockUserStore{}
	ms := &mockSender{}
	sr := &sleepRecorder{}

	us.On("Update", mock.Anything, "u1", mock.MatchedBy(isAttemptMark)).Return(errors.New("store unreachable")).Once()

	s := newTestService(t, us, ms, sr)
	u := testUser()
	err := s.deliver(context.Background(), &u)

	require.Error(t, err)
	assert.ErrorContains(t, err, "mark attempt")
	ms.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeliver_PersistFailureAfterSendIsSurfaced(t *testing.T) {
	us := &mockUserStore{}
	ms := &mockSender{}
	sr := &sleepRecorder{}

	us.On("Update", mock.Anything, "u1", mock.MatchedBy(isAttemptMark)).Return(nil).Once()
	ms.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	us.On("Update", mock.Anything, "u1", mock.MatchedBy(isSentMark)).Return(errors.New("store unreachable")).Once()

	s := newTestService(t, us, ms, sr)
	u := testUser()
	err := s.deliver(context.Background(), &u)

	require.Error(t, err)
	assert.ErrorContains(t, err, "record sent")
}
