package scheduler

import (
	"time"

	"github.com/birthday-notifier/internal/domain"
)

const deliveryHour = 9

// isDeliveryMoment reports whether now, resolved into the user's timezone, is
// the user's delivery minute: their birthday's month and day at exactly 9:00
// local time. A record with an unresolvable timezone is never due.
func (s *service) isDeliveryMoment(u *domain.User, now time.Time) bool {
	loc, err := time.LoadLocation(u.Location)
	if err != nil {
		s.log.Warn("unmatchable record: unresolvable timezone", "user_id", u.UserID, "location", u.Location)
		return false
	}
	local := now.In(loc)
	return local.Day() == u.Birthday.Day() &&
		local.Month() == u.Birthday.Month() &&
		local.Hour() == deliveryHour &&
		local.Minute() == 0
}
