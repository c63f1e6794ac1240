// Package schedule provides business-day date arithmetic and human-readable
// timeline parsing. All duration math counts Monday-Friday only.
package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is how calendar dates are stored and exchanged.
const DateLayout = "2006-01-02"

// ErrUnparseable is returned by ParseTimeline for text without a
// recognizable count + unit.
var ErrUnparseable = fmt.Errorf("timeline not parseable")

// AddBusinessDays steps one calendar day at a time in the sign of n,
// counting only weekdays, until |n| business days have been added.
func AddBusinessDays(date time.Time, n int) time.Time {
	if n == 0 {
		return date
	}
	step := 1
	if n < 0 {
		step = -1
		n = -n
	}
	d := date
	for added := 0; added < n; {
		d = d.AddDate(0, 0, step)
		if IsBusinessDay(d) {
			added++
		}
	}
	return d
}

// IsBusinessDay reports whether d falls on a weekday.
func IsBusinessDay(d time.Time) bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

var timelineRe = regexp.MustCompile(`(?i)(\d+)\s*(weeks?|wks?|months?|mos?|days?|d)\b`)

// ParseTimeline extracts an integer count and unit from text like
// "2 weeks" or "10d" and converts it to business days (week=5, month=20,
// day=1). Returns ErrUnparseable for anything else.
func ParseTimeline(text string) (int, error) {
	m := timelineRe.FindStringSubmatch(text)
	if m == nil {
		return 0, ErrUnparseable
	}
	count, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, ErrUnparseable
	}
	unit := strings.ToLower(m[2])
	switch {
	case strings.HasPrefix(unit, "w"):
		return count * 5, nil
	case strings.HasPrefix(unit, "mo"):
		return count * 20, nil
	default:
		return count, nil
	}
}

// FormatTimeline renders a business-day count back to a human string,
// preferring whole months, then whole weeks, then raw days. Months are
// checked before weeks even though ParseTimeline lists weeks first:
// every multiple of 20 is also a multiple of 5, so a week-first check
// would leave "1 month" unreachable. Returns "" for non-positive input.
func FormatTimeline(days int) string {
	switch {
	case days <= 0:
		return ""
	case days%20 == 0:
		n := days / 20
		if n == 1 {
			return "1 month"
		}
		return fmt.Sprintf("%d months", n)
	case days%5 == 0:
		n := days / 5
		if n == 1 {
			return "1 week"
		}
		return fmt.Sprintf("%d weeks", n)
	case days == 1:
		return "1 day"
	default:
		return fmt.Sprintf("%d days", days)
	}
}

// ParseDate parses a stored calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// FormatDate renders a calendar date for storage.
func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// Truncate drops the time-of-day component of a timestamp, keeping UTC.
func Truncate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
