package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Friday 2024-03-15 10:30 UTC.
var frozenNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func TestResolveWindow(t *testing.T) {
	date := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}

	tests := []struct {
		token string
		from  time.Time
		to    time.Time
	}{
		{"today", date(2024, 3, 15), date(2024, 3, 16)},
		{"yesterday", date(2024, 3, 14), date(2024, 3, 15)},
		{"this_week", date(2024, 3, 11), date(2024, 3, 18)},
		{"last_week", date(2024, 3, 4), date(2024, 3, 11)},
		{"this_month", date(2024, 3, 1), date(2024, 4, 1)},
		{"last_month", date(2024, 2, 1), date(2024, 3, 1)},
		{"last_30_days", frozenNow.AddDate(0, 0, -30), frozenNow},
		{"last_1_day", frozenNow.AddDate(0, 0, -1), frozenNow},
		{"last_2_weeks", frozenNow.AddDate(0, 0, -14), frozenNow},
		{"last_6_months", frozenNow.AddDate(0, -6, 0), frozenNow},
		{"last_12_hours", frozenNow.Add(-12 * time.Hour), frozenNow},
		{"last_1_years", frozenNow.AddDate(-1, 0, 0), frozenNow},
		{"now-7d", frozenNow.AddDate(0, 0, -7), frozenNow},
		{"now-24h", frozenNow.Add(-24 * time.Hour), frozenNow},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			from, to, ok := resolveWindow(tt.token, frozenNow)
			require.True(t, ok)
			assert.Equal(t, tt.from, from)
			assert.Equal(t, tt.to, to)
		})
	}
}

func TestResolveWindow_WeekStartsMonday(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"monday is its own week start", time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC), time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)},
		{"sunday belongs to the preceding monday", time.Date(2024, 3, 17, 9, 0, 0, 0, time.UTC), time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, _, ok := resolveWindow("this_week", tt.now)
			require.True(t, ok)
			assert.Equal(t, tt.want, from)
		})
	}
}

func TestResolveWindow_MonthRollover(t *testing.T) {
	jan := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	from, to, ok := resolveWindow("last_month", jan)
	require.True(t, ok)
	assert.Equal(t, time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), to)
}

func TestResolveWindow_Rejections(t *testing.T) {
	for _, token := range []string{
		"", "fortnight", "last_days", "last_0_days", "last_-3_days",
		"next_week", "now+7d", "now-0d",
	} {
		t.Run("rejects "+token, func(t *testing.T) {
			_, _, ok := resolveWindow(token, frozenNow)
			assert.False(t, ok)
		})
	}
}

func TestParseDateValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want time.Time
		ok   bool
	}{
		{"now resolves to the clock", "now", frozenNow, true},
		{"date only", "2024-01-31", time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), true},
		{"rfc3339", "2024-01-31T08:00:00Z", time.Date(2024, 1, 31, 8, 0, 0, 0, time.UTC), true},
		{"naive datetime", "2024-01-31T08:00:00", time.Date(2024, 1, 31, 8, 0, 0, 0, time.UTC), true},
		{"time value passes through", frozenNow, frozenNow, true},
		{"garbage", "next tuesday", time.Time{}, false},
		{"number", 42, time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseDateValue(tt.in, frozenNow)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
