package model

import (
	"strings"
	"time"
)

// Week is the fixed cadence between two charts of the same group.
const Week = 7 * 24 * time.Hour

// EntryKey returns the canonical identity of a chartable thing. Artists are
// keyed by their normalised name; tracks and albums by "name|artist".
// An empty key means the item is malformed.
func EntryKey(c Category, name, artist string) string {
	n := normalize(name)
	if n == "" {
		return ""
	}
	if c == CategoryArtists {
		return n
	}
	return n + "|" + normalize(artist)
}

// normalize lower-cases, trims and collapses inner whitespace.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// WeekStart returns midnight UTC of the latest trackingDay on or before t.
func WeekStart(t time.Time, trackingDay time.Weekday) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	back := (int(day.Weekday()) - int(trackingDay) + 7) % 7
	return day.AddDate(0, 0, -back)
}

// WithinWeek reports whether b follows a by at most one week.
func WithinWeek(a, b time.Time) bool {
	d := b.Sub(a)
	return d >= 0 && d <= Week
}
