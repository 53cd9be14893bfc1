// Package calendar owns "now" and calendar-day arithmetic for the progression engine.
//
// All instants returned by this package are in UTC; day boundaries are computed
// in the configured location. Stored timestamps are therefore comparable across
// drivers, while "today" still means the user's calendar day.
package calendar

import (
	"fmt"
	"sync"
	"time"
)

// DayLayout is the wire format for calendar days.
const DayLayout = "2006-01-02"

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock is a settable clock for tests and replays.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixedClock returns a clock frozen at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

// Now implements Clock.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Calendar answers day-boundary questions in a single location.
type Calendar struct {
	clock Clock
	loc   *time.Location
}

// New creates a calendar. A nil clock means the system clock, a nil location means UTC.
func New(clock Clock, loc *time.Location) *Calendar {
	if clock == nil {
		clock = SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{clock: clock, loc: loc}
}

// Location returns the configured time zone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Now returns the current instant in UTC, truncated to microseconds so it
// round-trips through every supported database unchanged.
func (c *Calendar) Now() time.Time {
	return c.clock.Now().UTC().Truncate(time.Microsecond)
}

// StartOfDay returns local midnight of the day containing t.
func (c *Calendar) StartOfDay(t time.Time) time.Time {
	l := t.In(c.loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, c.loc).UTC()
}

// DayRange returns [start, end) of the day containing t.
func (c *Calendar) DayRange(t time.Time) (time.Time, time.Time) {
	l := t.In(c.loc)
	start := time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, c.loc)
	end := time.Date(l.Year(), l.Month(), l.Day()+1, 0, 0, 0, 0, c.loc)
	return start.UTC(), end.UTC()
}

// DaysBetween returns the whole number of calendar days from a to b.
// It is negative when b falls on an earlier day than a.
func (c *Calendar) DaysBetween(a, b time.Time) int {
	da := dateOnly(a.In(c.loc))
	db := dateOnly(b.In(c.loc))
	return int(db.Sub(da).Hours() / 24)
}

// StartOfWeek returns local midnight of the ISO week's Monday containing t.
func (c *Calendar) StartOfWeek(t time.Time) time.Time {
	l := t.In(c.loc)
	offset := (int(l.Weekday()) + 6) % 7
	return time.Date(l.Year(), l.Month(), l.Day()-offset, 0, 0, 0, 0, c.loc).UTC()
}

// ParseDay parses a YYYY-MM-DD string as local midnight of that day.
func (c *Calendar) ParseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DayLayout, s, c.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q, expected %s: %w", s, DayLayout, err)
	}
	return t.UTC(), nil
}

// FormatDay renders the local calendar day of t.
func (c *Calendar) FormatDay(t time.Time) string {
	return t.In(c.loc).Format(DayLayout)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
