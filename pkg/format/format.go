// Package format renders sizes, times and cron schedules for people.
package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Bytes formats a byte count with binary units.
// Example: Bytes(1536) => "1.5 KB"
func Bytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 4; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %s", float64(n)/float64(div), []string{"KB", "MB", "GB", "TB", "PB"}[exp])
}

// Relative describes t relative to now.
// Example: Relative(now.Add(90*time.Minute), now) => "in 1 hour"
func Relative(t, now time.Time) string {
	d := t.Sub(now)
	future := d > 0
	if !future {
		d = -d
	}
	if d < time.Minute {
		if future {
			return "in a moment"
		}
		return "just now"
	}

	var n int
	var unit string
	switch {
	case d < time.Hour:
		n, unit = int(d.Minutes()), "minute"
	case d < 24*time.Hour:
		n, unit = int(d.Hours()), "hour"
	default:
		n, unit = int(d.Hours()/24), "day"
	}
	if n != 1 {
		unit += "s"
	}
	if future {
		return fmt.Sprintf("in %d %s", n, unit)
	}
	return fmt.Sprintf("%d %s ago", n, unit)
}

var cronDescriptors = map[string]string{
	"@yearly":   "Yearly on 1 January at 00:00",
	"@annually": "Yearly on 1 January at 00:00",
	"@monthly":  "Monthly on day 1 at 00:00",
	"@weekly":   "Weekly on Sunday at 00:00",
	"@daily":    "Daily at 00:00",
	"@midnight": "Daily at 00:00",
	"@hourly":   "Every hour",
}

var dayNames = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Cron describes a standard five-field cron expression. Expressions it
// cannot put into words are returned unchanged.
// Example: Cron("0 20 * * 1-5") => "At 20:00 on Monday to Friday"
func Cron(expr string) string {
	expr = strings.TrimSpace(expr)
	if d, ok := cronDescriptors[strings.ToLower(expr)]; ok {
		return d
	}
	if every, ok := strings.CutPrefix(expr, "@every "); ok {
		return "Every " + strings.TrimSpace(every)
	}

	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return expr
	}
	minute, hour, dom, month, dow := fields[0], fields[1], fields[2], fields[3], fields[4]
	if month != "*" {
		return expr
	}

	if hour == "*" && dom == "*" && dow == "*" {
		if step, ok := strings.CutPrefix(minute, "*/"); ok {
			return "Every " + step + " minutes"
		}
		if m, err := strconv.Atoi(minute); err == nil {
			return fmt.Sprintf("Hourly at minute %d", m)
		}
		return expr
	}

	at, ok := clock(hour, minute)
	if !ok {
		return expr
	}
	switch {
	case dom == "*" && dow == "*":
		return "Daily at " + at
	case dom == "*":
		if days, ok := weekdays(dow); ok {
			return "At " + at + " on " + days
		}
	case dow == "*":
		if d, err := strconv.Atoi(dom); err == nil {
			return fmt.Sprintf("Monthly on day %d at %s", d, at)
		}
	}
	return expr
}

func clock(hour, minute string) (string, bool) {
	h, err := strconv.Atoi(hour)
	if err != nil || h < 0 || h > 23 {
		return "", false
	}
	m, err := strconv.Atoi(minute)
	if err != nil || m < 0 || m > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", h, m), true
}

// weekdays renders a day-of-week field of numbers, ranges and lists.
func weekdays(field string) (string, bool) {
	var parts []string
	for _, item := range strings.Split(field, ",") {
		lo, hi, isRange := strings.Cut(item, "-")
		a, ok := dayName(lo)
		if !ok {
			return "", false
		}
		if !isRange {
			parts = append(parts, a)
			continue
		}
		b, ok := dayName(hi)
		if !ok {
			return "", false
		}
		parts = append(parts, a+" to "+b)
	}
	if len(parts) == 1 {
		return parts[0], true
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1], true
}

func dayName(s string) (string, bool) {
	n, err := strconv.Atoi(s)
	if err == nil {
		if n == 7 {
			n = 0
		}
		if n >= 0 && n <= 6 {
			return dayNames[n], true
		}
		return "", false
	}
	for _, d := range dayNames {
		if strings.EqualFold(s, d[:3]) {
			return d, true
		}
	}
	return "", false
}
