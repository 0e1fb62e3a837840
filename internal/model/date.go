package model

import "time"

// DateLayout is the wire/log format for calendar dates.
const DateLayout = "2006-01-02"

// Day normalizes t to a calendar date: midnight UTC carrying the Y/M/D of t
// in its own location. All date comparisons in the updater use Day values.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns b - a in whole days. Works on Unix seconds; a
// time.Duration only spans about 292 years.
func DaysBetween(a, b time.Time) int {
	return int((Day(b).Unix() - Day(a).Unix()) / secondsPerDay)
}

const secondsPerDay = 24 * 60 * 60

// AddDays returns the calendar date n days after t.
func AddDays(t time.Time, n int) time.Time {
	return Day(t).AddDate(0, 0, n)
}

func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return Day(t), nil
}

func FormatDay(t time.Time) string {
	return Day(t).Format(DateLayout)
}
