package pipeline

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Relative-window resolution. This is the only place "now" is resolved; the
// generator injects its clock so tests can freeze time. Weeks start on
// Monday; months are calendar months with correct rollover across years.

var (
	reLastN  = regexp.MustCompile(`^last_(\d+)_(day|week|month|hour|year)s?$`)
	reNowRel = regexp.MustCompile(`^now-(\d+)([dh])$`)
)

// resolveWindow maps a relative window token to concrete UTC bounds
// [from, to). Unknown tokens report ok=false.
func resolveWindow(token string, now time.Time) (from, to time.Time, ok bool) {
	now = now.UTC()
	day := midnight(now)

	switch token {
	case "today":
		return day, day.AddDate(0, 0, 1), true
	case "yesterday":
		return day.AddDate(0, 0, -1), day, true
	case "this_week":
		start := weekStart(now)
		return start, start.AddDate(0, 0, 7), true
	case "last_week":
		start := weekStart(now)
		return start.AddDate(0, 0, -7), start, true
	case "this_month":
		start := monthStart(now)
		return start, start.AddDate(0, 1, 0), true
	case "last_month":
		start := monthStart(now)
		return start.AddDate(0, -1, 0), start, true
	}

	if m := reLastN.FindStringSubmatch(token); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return time.Time{}, time.Time{}, false
		}
		switch m[2] {
		case "day":
			return now.AddDate(0, 0, -n), now, true
		case "week":
			return now.AddDate(0, 0, -7*n), now, true
		case "month":
			return now.AddDate(0, -n, 0), now, true
		case "hour":
			return now.Add(-time.Duration(n) * time.Hour), now, true
		case "year":
			return now.AddDate(-n, 0, 0), now, true
		}
	}

	if m := reNowRel.FindStringSubmatch(token); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return time.Time{}, time.Time{}, false
		}
		switch m[2] {
		case "d":
			return now.AddDate(0, 0, -n), now, true
		case "h":
			return now.Add(-time.Duration(n) * time.Hour), now, true
		}
	}

	return time.Time{}, time.Time{}, false
}

// parseDateValue resolves an absolute bound. "now" resolves to the injected
// clock; otherwise RFC3339 and date-only forms are accepted.
func parseDateValue(v any, now time.Time) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val.UTC(), true
	case string:
		s := strings.TrimSpace(val)
		if s == "now" {
			return now.UTC(), true
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// weekStart returns the Monday midnight at or before t.
func weekStart(t time.Time) time.Time {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday belongs to the week that started six days earlier
	}
	return midnight(t).AddDate(0, 0, -(weekday - 1))
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
