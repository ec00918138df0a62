// Package scheduler owns the birthday notification loop: a minute scan that
// fires each user's message at 9:00 AM in their own timezone, and a daily
// recovery sweep that re-attempts sends stuck in FAILED status.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/birthday-notifier/internal/domain"
	"github.com/robfig/cron/v3"
)

type Service interface {
	Start() error
	Stop()
	// RunBirthdayScan and RunRecoverySweep are the single-firing entry points
	// the cron jobs call; exported so a firing can be driven directly.
	RunBirthdayScan(ctx context.Context)
	RunRecoverySweep(ctx context.Context)
}

type userStore interface {
	QueryBirthdayCandidates(ctx context.Context, monthDay string, sentBefore time.Time) ([]domain.User, error)
	QueryRecoveryCandidates(ctx context.Context, attemptedBefore time.Time) ([]domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

type messageSender interface {
	Send(ctx context.Context, email, message string) error
}

type service struct {
	store       userStore
	sender      messageSender
	log         *slog.Logger
	cron        *cron.Cron
	maxRetries  int
	backoff     time.Duration
	recoveryAge time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration)
}

type ServiceDeps struct {
	Store  userStore
	Sender messageSender
	Logger *slog.Logger

	MaxRetries  int           // delivery attempts per firing (default 3)
	Backoff     time.Duration // wait between attempts (default 30s)
	RecoveryAge time.Duration // minimum age of a FAILED attempt before recovery (default 24h)

	// Now and Sleep are injectable for tests; zero values use the real clock.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration)
}

func NewService(deps ServiceDeps) Service {
	if deps.MaxRetries <= 0 {
		deps.MaxRetries = 3
	}
	if deps.Backoff <= 0 {
		deps.Backoff = 30 * time.Second
	}
	if deps.RecoveryAge <= 0 {
		deps.RecoveryAge = 24 * time.Hour
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepContext
	}
	return &service{
		store:       deps.Store,
		sender:      deps.Sender,
		log:         deps.Logger,
		cron:        cron.New(),
		maxRetries:  deps.MaxRetries,
		backoff:     deps.Backoff,
		recoveryAge: deps.RecoveryAge,
		now:         deps.Now,
		sleep:       deps.Sleep,
	}
}

// Start registers both triggers and starts the cron runner. The birthday scan
// must fire every minute without gaps: the delivery window is exactly one
// minute per user per year.
func (s *service) Start() error {
	if _, err := s.cron.AddFunc("* * * * *", func() {
		s.RunBirthdayScan(context.Background())
	}); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("@daily", func() {
		s.RunRecoverySweep(context.Background())
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("scheduler started", "max_retries", s.maxRetries, "backoff", s.backoff, "recovery_age", s.recoveryAge)
	return nil
}

// Stop halts the cron runner and waits for in-flight firings to finish.
func (s *service) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunBirthdayScan performs one minute-firing: query today's birthday
// candidates, narrow to users whose local clock reads exactly 9:00 AM, and
// dispatch deliveries.
func (s *service) RunBirthdayScan(ctx context.Context) {
	now := s.now().UTC()
	jan1 := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)

	candidates, err := s.store.QueryBirthdayCandidates(ctx, domain.BirthdayMD(now), jan1)
	if err != nil {
		s.log.Error("birthday candidate query failed", "err", err)
		return
	}

	var due []domain.User
	for _, u := range candidates {
		if s.isDeliveryMoment(&u, now) {
			due = append(due, u)
		}
	}
	if len(due) == 0 {
		return
	}
	s.log.Info("birthday scan", "candidates", len(candidates), "due", len(due))
	s.dispatch(ctx, due)
}

// RunRecoverySweep performs one daily firing: re-attempt every user whose
// delivery permanently failed more than recoveryAge ago. Recovery is not
// time-of-day sensitive, so there is no timezone filter.
func (s *service) RunRecoverySweep(ctx context.Context) {
	cutoff := s.now().UTC().Add(-s.recoveryAge)

	users, err := s.store.QueryRecoveryCandidates(ctx, cutoff)
	if err != nil {
		s.log.Error("recovery candidate query failed", "err", err)
		return
	}
	if len(users) == 0 {
		return
	}
	s.log.Info("recovery sweep", "due", len(users))
	s.dispatch(ctx, users)
}

// dispatch fans out deliveries and waits for every one to reach a terminal
// state. One candidate's failure never cancels or blocks another's attempt.
func (s *service) dispatch(ctx context.Context, users []domain.User) {
	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u domain.User) {
			defer wg.Done()
			if err := s.deliver(ctx, &u); err != nil {
				s.log.Error("delivery aborted", "user_id", u.UserID, "err", err)
			}
		}(u)
	}
	wg.Wait()
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
