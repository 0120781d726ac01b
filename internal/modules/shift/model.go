// README: Driver shift schedule; a shift may run past midnight.
package shift

import (
	"errors"
	"fmt"
	"time"

	"buggy/internal/types"
)

var (
	ErrBadRequest = errors.New("bad request")
	ErrNotFound   = errors.New("shift not found")
)

const minutesPerDay = 24 * 60

type Shift struct {
	ID       int64
	DriverID types.ID
	// Date is the calendar day the shift starts on; only year, month and day are used.
	Date        time.Time
	StartMinute int
	EndMinute   int
}

// Overnight reports whether the shift ends on the following day.
func (s Shift) Overnight() bool {
	return s.EndMinute <= s.StartMinute
}

// Bounds returns the shift's start and end instants in loc.
func (s Shift) Bounds(loc *time.Location) (time.Time, time.Time) {
	day := time.Date(s.Date.Year(), s.Date.Month(), s.Date.Day(), 0, 0, 0, 0, loc)
	start := day.Add(time.Duration(s.StartMinute) * time.Minute)
	end := day.Add(time.Duration(s.EndMinute) * time.Minute)
	if s.Overnight() {
		end = end.Add(24 * time.Hour)
	}
	return start, end
}

// Covers reports whether at falls in [start, end).
func (s Shift) Covers(at time.Time, loc *time.Location) bool {
	start, end := s.Bounds(loc)
	return !at.Before(start) && at.Before(end)
}

func (s Shift) validate() error {
	if s.DriverID == "" {
		return fmt.Errorf("%w: driver id is required", ErrBadRequest)
	}
	if s.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrBadRequest)
	}
	if s.StartMinute < 0 || s.StartMinute >= minutesPerDay {
		return fmt.Errorf("%w: start must be within the day", ErrBadRequest)
	}
	if s.EndMinute < 0 || s.EndMinute > minutesPerDay {
		return fmt.Errorf("%w: end must be within the day", ErrBadRequest)
	}
	if s.StartMinute == s.EndMinute {
		return fmt.Errorf("%w: shift must not be empty", ErrBadRequest)
	}
	return nil
}

// ParseClock parses "HH:MM" into minutes after midnight. "24:00" is accepted
// as an end of day.
func ParseClock(v string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(v, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("%w: clock %q must be HH:MM", ErrBadRequest, v)
	}
	total := h*60 + m
	if h < 0 || m < 0 || m > 59 || total > minutesPerDay {
		return 0, fmt.Errorf("%w: clock %q out of range", ErrBadRequest, v)
	}
	return total, nil
}

// FormatClock is the inverse of ParseClock.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
