package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristics_GroupByPhrase(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"group tasks by priority", []string{"priority"}},
		{"tasks grouped by state", []string{"state"}},
		{"breakdown of bugs by assignee", []string{"assignee"}},
		{"bugs broken down by project", []string{"project"}},
		{"open items per cycle", []string{"cycle"}},
		{"grouped by status", []string{"state"}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			out := Sanitize(&RawIntent{}, tt.query)
			assert.Equal(t, tt.want, out.GroupBy)
			assert.True(t, out.HasAggregation(AggGroup))
		})
	}
}

func TestHeuristics_GroupByOverridesLLMProposal(t *testing.T) {
	out := Sanitize(&RawIntent{GroupBy: []string{"state"}}, "bugs grouped by priority")
	assert.Equal(t, []string{"priority", "state"}, out.GroupBy,
		"phrase-derived token leads, LLM proposal follows")
}

func TestHeuristics_PriorityGroupConflict(t *testing.T) {
	t.Run("exact filter dropped when grouping by priority", func(t *testing.T) {
		out := Sanitize(&RawIntent{
			Filters: map[string]any{"priority": "high"},
			GroupBy: []string{"priority"},
		}, "group tasks by priority")
		_, ok := out.Filters["priority"]
		assert.False(t, ok, "a single-value priority filter collapses the grouping")
	})

	t.Run("filter kept when grouping by something else", func(t *testing.T) {
		out := Sanitize(&RawIntent{
			Filters: map[string]any{"priority": "high"},
		}, "high priority tasks grouped by state")
		assert.Equal(t, "HIGH", out.Filters["priority"])
		assert.Equal(t, []string{"state"}, out.GroupBy)
	})
}

func TestHeuristics_Overdue(t *testing.T) {
	t.Run("adds due bound and open-state exclusion", func(t *testing.T) {
		out := Sanitize(&RawIntent{}, "show overdue bugs")
		assert.Equal(t, "now", out.Filters["dueDate_to"])
		assert.Equal(t, []string{"Completed", "Verified"}, out.Filters["state_not_in"])
		assert.True(t, out.WantsDetails)
	})

	t.Run("explicit state wins", func(t *testing.T) {
		out := Sanitize(&RawIntent{
			Filters: map[string]any{"state": "open"},
		}, "overdue open bugs")
		assert.Equal(t, "Open", out.Filters["state"])
		_, ok := out.Filters["state_not_in"]
		assert.False(t, ok)
	})

	t.Run("explicit due bound wins", func(t *testing.T) {
		out := Sanitize(&RawIntent{
			Filters: map[string]any{"dueDate_to": "2024-06-30"},
		}, "late items")
		assert.Equal(t, "2024-06-30", out.Filters["dueDate_to"])
	})
}

func TestHeuristics_RelativeWindow(t *testing.T) {
	tests := []struct {
		query     string
		wantKey   string
		wantToken string
	}{
		{"bugs created today", "createdTimeStamp_within", "today"},
		{"bugs from yesterday", "createdTimeStamp_within", "yesterday"},
		{"tasks this week", "createdTimeStamp_within", "this_week"},
		{"tasks from last month", "createdTimeStamp_within", "last_month"},
		{"bugs updated in the last 30 days", "updatedTimeStamp_within", "last_30_days"},
		{"items updated last week", "updatedTimeStamp_within", "last_week"},
		{"bugs from the last 2 weeks", "createdTimeStamp_within", "last_2_weeks"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			out := Sanitize(&RawIntent{}, tt.query)
			assert.Equal(t, tt.wantToken, out.Filters[tt.wantKey])
		})
	}

	t.Run("explicit bound suppresses inference", func(t *testing.T) {
		out := Sanitize(&RawIntent{
			Filters: map[string]any{"createdTimeStamp_from": "2024-01-01"},
		}, "bugs created last week")
		_, ok := out.Filters["createdTimeStamp_within"]
		assert.False(t, ok)
		assert.Equal(t, "2024-01-01", out.Filters["createdTimeStamp_from"])
	})
}

func TestHeuristics_CountPhrase(t *testing.T) {
	for _, q := range []string{
		"how many bugs are there",
		"count of open tasks",
		"number of items in Apollo",
	} {
		t.Run(q, func(t *testing.T) {
			out := Sanitize(&RawIntent{}, q)
			assert.True(t, out.WantsCount)
			assert.Equal(t, []string{AggCount}, out.Aggregations)
			assert.Nil(t, out.Limit)
		})
	}
}

func TestHeuristics_RecencySort(t *testing.T) {
	t.Run("recent sorts newest first", func(t *testing.T) {
		out := Sanitize(&RawIntent{}, "show recent tasks")
		require.NotNil(t, out.SortOrder)
		assert.Equal(t, SortSpec{Field: "createdTimeStamp", Direction: -1}, *out.SortOrder)
		require.NotNil(t, out.Limit)
		assert.Equal(t, defaultLimit, *out.Limit)
	})

	t.Run("oldest sorts ascending", func(t *testing.T) {
		out := Sanitize(&RawIntent{}, "oldest open bugs")
		require.NotNil(t, out.SortOrder)
		assert.Equal(t, SortSpec{Field: "createdTimeStamp", Direction: 1}, *out.SortOrder)
	})

	t.Run("explicit sort wins", func(t *testing.T) {
		out := Sanitize(&RawIntent{
			SortOrder: map[string]any{"due": "asc"},
		}, "recent tasks by due date")
		require.NotNil(t, out.SortOrder)
		assert.Equal(t, "dueDate", out.SortOrder.Field)
	})
}

func TestHeuristics_TopN(t *testing.T) {
	t.Run("top n with priority cue", func(t *testing.T) {
		out := Sanitize(&RawIntent{}, "top 5 priority bugs")
		require.NotNil(t, out.Limit)
		assert.Equal(t, 5, *out.Limit)
		require.NotNil(t, out.SortOrder)
		assert.Equal(t, SortSpec{Field: "priority", Direction: -1}, *out.SortOrder)
	})

	t.Run("top n without cue ranks by recency", func(t *testing.T) {
		out := Sanitize(&RawIntent{}, "top 10 bugs")
		require.NotNil(t, out.Limit)
		assert.Equal(t, 10, *out.Limit)
		require.NotNil(t, out.SortOrder)
		assert.Equal(t, "createdTimeStamp", out.SortOrder.Field)
	})
}
