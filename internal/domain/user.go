package domain

import "time"

// Message delivery statuses for the current year's birthday cycle.
const (
	MessageStatusPending = "PENDING"
	MessageStatusSent    = "SENT"
	MessageStatusFailed  = "FAILED"
)

type User struct {
	UserID    string    `json:"id" dynamodbav:"user_id"`
	Email     string    `json:"email" dynamodbav:"email"`
	FirstName string    `json:"first_name" dynamodbav:"first_name"`
	LastName  string    `json:"last_name" dynamodbav:"last_name"`
	Birthday  time.Time `json:"birthday" dynamodbav:"birthday"`
	// BirthdayMD is the derived "MM-DD" attribute backing the birthday_md GSI,
	// so the minute scan is a Query instead of a full table Scan.
	BirthdayMD string `json:"-" dynamodbav:"birthday_md"`
	// Location is an IANA timezone name, e.g. "Asia/Jakarta".
	Location          string     `json:"location" dynamodbav:"location"`
	LastMessageSent   *time.Time `json:"last_message_sent" dynamodbav:"last_message_sent,omitempty"`
	LastAttemptedSend *time.Time `json:"last_attempted_send" dynamodbav:"last_attempted_send,omitempty"`
	MessageStatus     string     `json:"message_status" dynamodbav:"message_status"`
	CreatedAt         time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt         time.Time  `json:"updated" dynamodbav:"updated_at"`
}

// BirthdayMD formats a date's month/day as the "MM-DD" key used by the
// birthday_md index. The year is irrelevant for recurrence.
func BirthdayMD(t time.Time) string {
	return t.Format("01-02")
}

type CreateUserRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Birthday  string `json:"birthday" validate:"required"` // expected format: YYYY-MM-DD
	Location  string `json:"location" validate:"required,timezone"`
}

type UpdateUserRequest struct {
	Email     *string `json:"email" validate:"omitempty,email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Birthday  *string `json:"birthday"` // expected format: YYYY-MM-DD
	Location  *string `json:"location" validate:"omitempty,timezone"`
}
