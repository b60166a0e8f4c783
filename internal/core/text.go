package core

import (
	"strings"
	"time"
)

// NormalizeText collapses runs of whitespace into single spaces and trims the ends.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// FormatDate renders t as YYYY-MM-DD in its own location.
func FormatDate(t time.Time) string {
	return t.Format(time.DateOnly)
}

// DayLabel renders the abbreviated weekday, e.g. "Mon".
func DayLabel(t time.Time) string {
	return t.Format("Mon")
}

// DatesBetween returns every calendar date from start to end inclusive,
// evaluated in start's location.
func DatesBetween(start, end time.Time) []time.Time {
	loc := start.Location()
	end = end.In(loc)
	cur := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc)
	var out []time.Time
	for !cur.After(last) {
		out = append(out, cur)
		cur = cur.AddDate(0, 0, 1)
	}
	return out
}
