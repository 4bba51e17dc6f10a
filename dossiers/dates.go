package dossiers

import (
	"fmt"
	"regexp"
	"time"
)

const (
	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02T15:04:05.999999Z"
)

var (
	datePattern     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	datetimePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{1,6}Z$`)
)

// ParseDate parses an upstream "YYYY-MM-DD" value into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	if !datePattern.MatchString(s) {
		return time.Time{}, fmt.Errorf("not a date: %q", s)
	}
	return time.ParseInLocation(dateLayout, s, time.UTC)
}

// ParseDateTime parses an upstream "YYYY-MM-DDTHH:MM:SS.ffffffZ" value.
// The fractional part and the Z suffix are mandatory.
func ParseDateTime(s string) (time.Time, error) {
	if !datetimePattern.MatchString(s) {
		return time.Time{}, fmt.Errorf("not a datetime: %q", s)
	}
	t, err := time.Parse(datetimeLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// CoerceDate returns a time.Time when v is a date or datetime string and v
// itself otherwise.
func CoerceDate(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if d, err := ParseDate(s); err == nil {
		return d
	}
	if dt, err := ParseDateTime(s); err == nil {
		return dt
	}
	return v
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
