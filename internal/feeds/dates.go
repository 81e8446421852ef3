package feeds

import (
	"fmt"
	"strings"
	"time"
)

var dateLayouts = []string{
	"02/01/2006",
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

// ParseDate parses any of the date formats the upstream feeds use. Values
// without a zone are interpreted in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// NormalizeDate renders s as YYYY-MM-DD.
func NormalizeDate(s string) (string, error) {
	t, err := ParseDate(s, time.UTC)
	if err != nil {
		return "", err
	}
	return t.Format("2006-01-02"), nil
}

// NormalizeTime renders "9:00", "09:00" and "09:00:00" as HH:MM.
func NormalizeTime(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04", "15:04:05", "3:04PM", "3:04 PM"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("15:04"), nil
		}
	}
	return "", fmt.Errorf("unrecognized time %q", s)
}

// NormalizeTitle collapses whitespace and case so titles from different feeds
// compare equal.
func NormalizeTitle(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// SessionStart combines a feed date and time of day in loc.
func SessionStart(date, clock string, loc *time.Location) (time.Time, error) {
	day, err := ParseDate(date, loc)
	if err != nil {
		return time.Time{}, err
	}
	hm, err := NormalizeTime(clock)
	if err != nil {
		return time.Time{}, err
	}
	t, _ := time.Parse("15:04", hm)
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}
