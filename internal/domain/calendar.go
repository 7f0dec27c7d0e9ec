package domain

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-day format used for every per-date key.
const DateLayout = "2006-01-02"

// AllDays is the recurrence mask of a run operating every day.
const AllDays uint8 = 0x7f

// WeekdayMask returns the recurrence bit for the calendar day of t in t's
// own location: Monday is bit 0 (1) through Sunday bit 6 (64).
func WeekdayMask(t time.Time) uint8 {
	// time.Weekday counts from Sunday = 0.
	return 1 << ((int(t.Weekday()) + 6) % 7)
}

// ServiceDay truncates t to midnight of its calendar day in loc.
func ServiceDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DateKey renders the calendar day of t as YYYY-MM-DD.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD calendar day at midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// NextDay returns midnight of the following calendar day.
func NextDay(day time.Time) time.Time {
	return day.AddDate(0, 0, 1)
}
