// Package duration parses human-friendly stream lengths and start times.
//
// Durations accept Go's time.ParseDuration syntax plus:
//   - d, day(s): days (24 hours)
//   - w, wk, week(s): weeks (7 days)
//   - hour(s), minute(s), second(s) and their short forms
//   - clock notation HH:MM:SS or MM:SS
//
// Examples: "90m", "1h30m", "2 hours", "1d", "01:30:00".
package duration

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// Day represents 24 hours.
	Day = 24 * time.Hour
	// Week represents 7 days.
	Week = 7 * Day
)

var extendedUnitHours = map[string]int64{
	"w": 7 * 24, "wk": 7 * 24, "wks": 7 * 24, "week": 7 * 24, "weeks": 7 * 24,
	"d": 24, "day": 24, "days": 24,
}

var wordUnits = map[string]string{
	"hour": "h", "hours": "h", "hr": "h", "hrs": "h",
	"minute": "m", "minutes": "m", "min": "m", "mins": "m",
	"second": "s", "seconds": "s", "sec": "s", "secs": "s",
}

var (
	extendedUnitPattern = regexp.MustCompile(`(?i)(\d+)\s*(weeks?|wks?|w|days?|d)`)
	wordUnitPattern     = regexp.MustCompile(`(?i)(\d+)\s*(hours?|hrs?|minutes?|mins?|seconds?|secs?)`)
	clockPattern        = regexp.MustCompile(`^(?:(\d+):)?([0-5]?\d):([0-5]\d)$`)
)

// Parse parses a human-readable duration string.
func Parse(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("duration: empty string")
	}

	if m := clockPattern.FindStringSubmatch(s); m != nil {
		return parseClock(m), nil
	}

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = strings.TrimSpace(s[1:])
	}

	var hours int64
	rest := extendedUnitPattern.ReplaceAllStringFunc(s, func(match string) string {
		m := extendedUnitPattern.FindStringSubmatch(match)
		v, _ := strconv.ParseInt(m[1], 10, 64)
		hours += v * extendedUnitHours[strings.ToLower(m[2])]
		return ""
	})
	rest = wordUnitPattern.ReplaceAllStringFunc(rest, func(match string) string {
		m := wordUnitPattern.FindStringSubmatch(match)
		return m[1] + wordUnits[strings.ToLower(m[2])]
	})
	rest = strings.Join(strings.Fields(rest), "")

	var expr string
	if hours > 0 {
		expr = fmt.Sprintf("%dh", hours)
	}
	expr += rest
	if expr == "" {
		expr = "0s"
	}

	d, err := time.ParseDuration(expr)
	if err != nil {
		return 0, fmt.Errorf("duration: %w", err)
	}
	if negative {
		d = -d
	}
	return d, nil
}

func parseClock(m []string) time.Duration {
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	sec, _ := strconv.Atoi(m[3])
	return time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute + time.Duration(sec)*time.Second
}

// MustParse is like Parse but panics on error.
func MustParse(s string) time.Duration {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Format renders d with the largest whole units, omitting zero components.
// Sub-second remainders are truncated.
func Format(d time.Duration) string {
	if d < 0 {
		return "-" + Format(-d)
	}
	if d < time.Second {
		if d == 0 {
			return "0s"
		}
		return d.String()
	}

	var b strings.Builder
	for _, u := range []struct {
		size time.Duration
		unit string
	}{
		{Week, "w"}, {Day, "d"}, {time.Hour, "h"}, {time.Minute, "m"}, {time.Second, "s"},
	} {
		if n := d / u.size; n > 0 {
			fmt.Fprintf(&b, "%d%s", n, u.unit)
			d -= n * u.size
		}
	}
	return b.String()
}
