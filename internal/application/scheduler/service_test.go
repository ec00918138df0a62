package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/birthday-notifier/internal/domain"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRunBirthdayScan_SendsOnlyAtLocalNineAM(t *testing.T) {
	us := &mockUserStore{}
	ms := &mockSender{}
	sr := &sleepRecorder{}

	jakarta := testUser()
	// Same calendar birthday, but at 02:00 UTC the New York clock still reads
	// May 7, 22:00 — must be excluded despite matching the UTC date query.
	newYork := domain.User{
		UserID:    "u2",
		Email:     "ny.user@gmail.com",
		FirstName: "Enwhy",
		LastName:  "User",
		Birthday:  time.Date(1985, time.May, 8, 0, 0, 0, 0, time.UTC),
		Location:  "America/New_York",
	}

	jan1 := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	us.On("QueryBirthdayCandidates", mock.Anything, "05-08", jan1).
		Return([]domain.User{jakarta, newYork}, nil).Once()

	us.On("Update", mock.Anything, "u1", mock.Anything).Return(nil)
	ms.On("Send", mock.Anything, "test.user@gmail.com", "Hey, Test User, it's your birthday").Return(nil).Once()

	s := newTestService(t, us, ms, sr)
	s.RunBirthdayScan(context.Background())

	us.AssertExpectations(t)
	ms.AssertExpectations(t)
	ms.AssertNumberOfCalls(t, "Send", 1)
	us.AssertNotCalled(t, "Update", mock.Anything, "u2", mock.Anything)
}

func TestRunBirthdayScan_UnresolvableTimezoneExcluded(t *testing.T) {
	us := &mockUserStore{}
	ms := &mockSender{}
	sr := &sleepRecorder{}

	broken := testUser()
	broken.Location = "Not/AZone"

	us.On("QueryBirthdayCandidates", mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.User{broken}, nil).Once()

	s := newTestService(t, us, ms, sr)
	s.RunBirthdayScan(context.Background())

	ms.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunBirthdayScan_QueryFailureDoesNotPanic(t *testing.T) {
	us := &mockUserStore{}
	ms := &mockSender{}
	sr := &sleepRecorder{}

	us.On("QueryBirthdayCandidates", mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.User(nil), errors.New("store unreachable")).Once()

	s := newTestService(t, us, ms, sr)
	s.RunBirthdayScan(context.Background())

	ms.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunRecoverySweep_ReattemptsAllCandidatesWithoutTimezoneFilter(t *testing.T) {
	us := &mockUserStore{}
	ms := &mockSender{}
	sr := &sleepRecorder{}

	u1 := testUser()
	u1.MessageStatus = domain.MessageStatusFailed
	u2 := domain.User{
		UserID: "u2", Email: "ny.user@gmail.com", FirstName: "Enwhy", LastName: "User",
		Birthday: time.Date(1985, time.May, 8, 0, 0, 0, 0, time.UTC),
		Location: "America/New_York", MessageStatus: domain.MessageStatusFailed,
	}

	cutoff := fixedNow.Add(-24 * time.Hour)
	us.On("QueryRecoveryCandidates", mock.Anything, cutoff).
		Return([]domain.User{u1, u2}, nil).Once()

	us.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ms.On("Send", mock.Anything, "test.user@gmail.com", "Hey, Test User, it's your birthday").Return(nil).Once()
	ms.On("Send", mock.Anything, "ny.user@gmail.com", "Hey, Enwhy User, it's your birthday").Return(nil).Once()

	s := newTestService(t, us, ms, sr)
	s.RunRecoverySweep(context.Background())

	us.AssertExpectations(t)
	ms.AssertExpectations(t)
}

func TestDispatch_OneFailureDoesNotAbortTheBatch(t *testing.T) {
	us := &mockUserStore{}
	ms := &mockSender{}
	sr := &sleepRecorder{}

	good := testUser()
	bad := domain.User{
		UserID: "u2", Email: "ny.user@gmail.com", FirstName: "Enwhy", LastName: "User",
		Birthday: time.Date(1985, time.May, 8, 0, 0, 0, 0, time.UTC),
		Location: "America/New_York",
	}

	us.On("Update", mock.Anything, "u1", mock.MatchedBy(isAttemptMark)).Return(nil).Once()
	us.On("Update", mock.Anything, "u1", mock.MatchedBy(isSentMark)).Return(nil).Once()
	ms.On("Send", mock.Anything, "test.user@gmail.com", mock.Anything).Return(nil).Once()

	// The failing candidate aborts on its attempt-mark write; the other one
	// must still reach SENT.
	us.On("Update", mock.Anything, "u2", mock.MatchedBy(isAttemptMark)).
		Return(errors.New("store unreachable")).Once()

	s := newTestService(t, us, ms, sr)
	s.dispatch(context.Background(), []domain.User{good, bad})

	us.AssertExpectations(t)
	ms.AssertExpectations(t)
	ms.AssertNotCalled(t, "Send", mock.Anything, "ny.user@gmail.com", mock.Anything)
}

func TestStartStop_RegistersBothTriggers(t *testing.T) {
	us := &mockUserStore{}
	ms := &mockSender{}
	sr := &sleepRecorder{}
	// A minute boundary may tick between Start and Stop.
	us.On("QueryBirthdayCandidates", mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.User(nil), nil).Maybe()

	s := newTestService(t, us, ms, sr)
	require.NoError(t, s.Start())
	require.Len(t, s.cron.Entries(), 2)
	s.Stop()
}
