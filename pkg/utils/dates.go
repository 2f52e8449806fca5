// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"time"
)

// Date layouts accepted by the engine's interfaces.
const (
	DateLayout        = "2006-01-02"
	CompactDateLayout = "20060102"
)

// ParseDate parses a calendar date in YYYY-MM-DD or compact YYYYMMDD
// form. The result is normalized to midnight UTC.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(DateLayout, s, time.UTC); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(CompactDateLayout, s, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD or YYYYMMDD", s)
}

// FormatDate renders a date in YYYY-MM-DD form.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Day truncates a timestamp to midnight UTC so bar, feature and signal
// dates compare by calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsWeekend reports whether the date falls on Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// NextTradingDays returns the next n week-days strictly after from.
// Exchange holidays are not modeled; the projector extrapolates over
// calendar week-days only.
func NextTradingDays(from time.Time, n int) []time.Time {
	days := make([]time.Time, 0, n)
	current := Day(from)
	for len(days) < n {
		current = current.AddDate(0, 0, 1)
		if !IsWeekend(current) {
			days = append(days, current)
		}
	}
	return days
}
