package utils

import (
	"time"

	"k-stock-insight/pkg/common"
)

// DateOf truncates t to its calendar date and returns it as midnight UTC.
// All stored dates use this representation.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Yesterday returns the calendar day before now, as seen in loc.
func Yesterday(now time.Time, loc *time.Location) time.Time {
	if loc != nil {
		now = now.In(loc)
	}
	return DateOf(now).AddDate(0, 0, -1)
}

// ParseDate parses a YYYY-MM-DD string into a stored date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(common.DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// FormatDate renders a stored date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(common.DateLayout)
}
