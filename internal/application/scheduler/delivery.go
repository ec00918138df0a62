package scheduler

import (
	"context"
	"fmt"

	"github.com/birthday-notifier/internal/domain"
)

// DynamoDB attribute names used in partial update maps.
const (
	fieldLastMessageSent   = "last_message_sent"
	fieldLastAttemptedSend = "last_attempted_send"
	fieldMessageStatus     = "message_status"
)

// deliver runs one bounded-retry attempt sequence for one user and always
// leaves the record in a terminal state (SENT or FAILED). The record is
// persisted after every status change, not only at the end, so partial
// progress survives a crash. A returned error means persistence itself
// failed and the sequence was aborted for this user only.
func (s *service) deliver(ctx context.Context, u *domain.User) error {
	// Mark the attempt before any network call so a crash mid-attempt still
	// leaves a recoverable trace.
	if err := s.store.Update(ctx, u.UserID, map[string]interface{}{
		fieldLastAttemptedSend: s.now().UTC(),
	}); err != nil {
		return fmt.Errorf("mark attempt: %w", err)
	}

	message := fmt.Sprintf("Hey, %s %s, it's your birthday", u.FirstName, u.LastName)

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err := s.sender.Send(ctx, u.Email, message)
		if err == nil {
			if uerr := s.store.Update(ctx, u.UserID, map[string]interface{}{
				fieldLastMessageSent: s.now().UTC(),
				fieldMessageStatus:   domain.MessageStatusSent,
			}); uerr != nil {
				return fmt.Errorf("record sent: %w", uerr)
			}
			s.log.Info("birthday message sent", "user_id", u.UserID, "attempt", attempt)
			return nil
		}

		s.log.Error("failed to send message", "user_id", u.UserID, "attempt", attempt, "err", err)
		if uerr := s.store.Update(ctx, u.UserID, map[string]interface{}{
			fieldMessageStatus: domain.MessageStatusFailed,
		}); uerr != nil {
			return fmt.Errorf("record failure: %w", uerr)
		}

		if attempt < s.maxRetries {
			s.sleep(ctx, s.backoff)
		} else {
			s.log.Error("max retries reached, giving up", "user_id", u.UserID)
		}
	}
	// Terminal FAILED; the daily recovery sweep picks it up after 24h.
	return nil
}
