// Package streaks tracks consecutive active calendar days per user.
package streaks

import (
	"context"
	"time"

	"github.com/aimd54/questlog/internal/calendar"
	prommetrics "github.com/aimd54/questlog/internal/metrics"
	"github.com/aimd54/questlog/internal/models"
	"github.com/aimd54/questlog/internal/repository"
	"github.com/aimd54/questlog/pkg/logger"
)

// Result is the outcome of a streak touch.
type Result string

// Touch outcomes.
const (
	Started   Result = "started"
	Extended  Result = "extended"
	Reset     Result = "reset"
	Unchanged Result = "unchanged"
)

// TouchResult is returned by Touch.
type TouchResult struct {
	StreakCount int    `json:"streak_count"`
	Result      Result `json:"result"`
}

// Next computes the streak after activity at now, given the previous activity.
//
//	no previous activity  -> 1
//	same calendar day     -> unchanged
//	next calendar day     -> count + 1
//	any larger gap        -> 1
func Next(cal *calendar.Calendar, last *time.Time, count int, now time.Time) (int, Result) {
	if last == nil || count < 1 {
		return 1, Started
	}
	switch days := cal.DaysBetween(*last, now); {
	case days <= 0:
		return count, Unchanged
	case days == 1:
		return count + 1, Extended
	default:
		return 1, Reset
	}
}

// Current returns the streak as it stands at now: a streak whose last activity
// is older than yesterday is already broken and reads as zero.
func Current(cal *calendar.Calendar, user *models.User, now time.Time) int {
	if user.LastActivityAt == nil {
		return 0
	}
	if cal.DaysBetween(*user.LastActivityAt, now) > 1 {
		return 0
	}
	return user.StreakCount
}

// Service is the streak tracker.
type Service struct {
	store      *repository.Store
	cal        *calendar.Calendar
	maxRetries int
	log        *logger.Logger
}

// NewService creates a new streak tracker.
func NewService(store *repository.Store, cal *calendar.Calendar, maxRetries int, log *logger.Logger) *Service {
	return &Service{store: store, cal: cal, maxRetries: maxRetries, log: log}
}

// WithStore returns a copy bound to another store, typically a transaction.
func (s *Service) WithStore(store *repository.Store) *Service {
	c := *s
	c.store = store
	return &c
}

// Touch records activity now. Repeated touches on the same day are no-ops.
func (s *Service) Touch(ctx context.Context, userID uint) (*TouchResult, error) {
	now := s.cal.Now()

	var result Result
	user, conflicts, err := s.store.Users.MutateProgress(ctx, userID, s.maxRetries, func(u *models.User) (bool, error) {
		var count int
		count, result = Next(s.cal, u.LastActivityAt, u.StreakCount, now)
		if result == Unchanged {
			return false, nil
		}
		u.StreakCount = count
		u.LastActivityAt = &now
		return true, nil
	})
	prommetrics.RecordUserVersionConflicts("streak_touch", conflicts)
	if err != nil {
		return nil, err
	}

	prommetrics.RecordStreakUpdate(string(result))
	if result != Unchanged {
		s.log.Debug().
			Uint("user_id", userID).
			Int("streak", user.StreakCount).
			Str("result", string(result)).
			Msg("Streak updated")
	}

	return &TouchResult{StreakCount: user.StreakCount, Result: result}, nil
}
