package user

import (
	"context"
	"fmt"
	"time"

	"github.com/birthday-notifier/internal/domain"
	"github.com/birthday-notifier/internal/pkg/id"
)

// DynamoDB attribute names used in partial update maps.
const (
	fieldEmail             = "email"
	fieldFirstName         = "first_name"
	fieldLastName          = "last_name"
	fieldBirthday          = "birthday"
	fieldBirthdayMD        = "birthday_md"
	fieldLocation          = "location"
	fieldLastMessageSent   = "last_message_sent"
	fieldLastAttemptedSend = "last_attempted_send"
	fieldMessageStatus     = "message_status"
)

type Service interface {
	Create(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error)
	List(ctx context.Context, limit int, cursor string) ([]domain.User, string, error)
	Get(ctx context.Context, userID string) (*domain.User, error)
	Update(ctx context.Context, userID string, req domain.UpdateUserRequest) (*domain.User, error)
	Delete(ctx context.Context, userID string) error
}

type userStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	ScanPage(ctx context.Context, limit int32, cursor string) ([]domain.User, string, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
	Delete(ctx context.Context, userID string) error
}

type service struct {
	repo userStore
	now  func() time.Time
}

type ServiceDeps struct {
	UserRepo userStore
	// Now is injectable for the birthday-edit reset tests.
	Now func() time.Time
}

func NewService(deps ServiceDeps) Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &service{repo: deps.UserRepo, now: deps.Now}
}

func (s *service) Create(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
		return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}
	birthday, err := time.Parse("2006-01-02", req.Birthday)
	if err != nil {
		return nil, fmt.Errorf("birthday must be in YYYY-MM-DD format: %w", domain.ErrBadRequest)
	}
	now := s.now().UTC()
	u := &domain.User{
		UserID:            id.New(),
		Email:             req.Email,
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		Birthday:          birthday,
		BirthdayMD:        domain.BirthdayMD(birthday),
		Location:          req.Location,
		LastMessageSent:   nil,
		LastAttemptedSend: nil,
		MessageStatus:     domain.MessageStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Put(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *service) List(ctx context.Context, limit int, cursor string) ([]domain.User, string, error) {
	if limit < 1 {
		limit = 50
	}
	return s.repo.ScanPage(ctx, int32(limit), cursor)
}

func (s *service) Get(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.Get(ctx, userID)
}

func (s *service) Update(ctx context.Context, userID string, req domain.UpdateUserRequest) (*domain.User, error) {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Email != nil {
		updates[fieldEmail] = *req.Email
	}
	if req.FirstName != nil {
		updates[fieldFirstName] = *req.FirstName
	}
	if req.LastName != nil {
		updates[fieldLastName] = *req.LastName
	}
	if req.Location != nil {
		if _, lerr := time.LoadLocation(*req.Location); lerr != nil {
			return nil, fmt.Errorf("location must be an IANA timezone: %w", domain.ErrBadRequest)
		}
		updates[fieldLocation] = *req.Location
	}

	newBirthday := u.Birthday
	if req.Birthday != nil {
		newBirthday, err = time.Parse("2006-01-02", *req.Birthday)
		if err != nil {
			return nil, fmt.Errorf("birthday must be in YYYY-MM-DD format: %w", domain.ErrBadRequest)
		}
		updates[fieldBirthday] = newBirthday
		updates[fieldBirthdayMD] = domain.BirthdayMD(newBirthday)
	}

	// Birthday-edit reset rule: if the (possibly new) birthday is still ahead
	// this year and the last message predates that moment, the current cycle
	// restarts so the user gets this year's message on the new date.
	if u.LastMessageSent != nil {
		now := s.now().UTC()
		birthdayThisYear := time.Date(now.Year(), newBirthday.Month(), newBirthday.Day(), 0, 0, 0, 0, time.UTC)
		if birthdayThisYear.After(now) && u.LastMessageSent.Before(birthdayThisYear) {
			updates[fieldLastMessageSent] = nil
			updates[fieldLastAttemptedSend] = nil
			updates[fieldMessageStatus] = domain.MessageStatusPending
		}
	}

	if len(updates) == 0 {
		return u, nil
	}
	if err := s.repo.Update(ctx, userID, updates); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, userID)
}

func (s *service) Delete(ctx context.Context, userID string) error {
	if _, err := s.repo.Get(ctx, userID); err != nil {
		return err
	}
	return s.repo.Delete(ctx, userID)
}
