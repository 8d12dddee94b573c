package duration

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTime is returned when a start or end time cannot be understood.
var ErrInvalidTime = errors.New("duration: invalid time")

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseTime resolves s to an absolute instant relative to now.
//
// Accepted forms:
//   - "now" or ""
//   - "+10m", "in 2 hours" (offset from now, any Parse syntax)
//   - RFC3339 or "2006-01-02 15:04[:05]" in now's location
func ParseTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)

	switch {
	case lower == "" || lower == "now":
		return now, nil
	case strings.HasPrefix(lower, "+"):
		return offset(now, s[1:])
	case strings.HasPrefix(lower, "in "):
		return offset(now, s[3:])
	}

	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
}

func offset(now time.Time, s string) (time.Time, error) {
	d, err := Parse(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidTime, err)
	}
	return now.Add(d), nil
}
