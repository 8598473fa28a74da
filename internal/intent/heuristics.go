package intent

import (
	"fmt"
	"regexp"
	"strings"
)

// Heuristic enrichment runs against the original query text after the LLM's
// proposal has been sanitized. The LLM is unreliable at grouping phrases,
// relative dates, overdue semantics, and recency sorting; each rule below
// corrects one of those weaknesses deterministically. Rules run in order and
// only fill gaps or resolve conflicts; they never undo an explicit user bound.
type heuristicRule struct {
	name  string
	apply func(q string, in *QueryIntent)
}

var (
	reGroupBy  = regexp.MustCompile(`(?:group(?:ed)?\s+by|breakdown\s+(?:of|by)|broken\s+down\s+by|per)\s+([a-z_]+)`)
	reOverdue  = regexp.MustCompile(`\b(?:overdue|past\s+due|late)\b`)
	reLastN    = regexp.MustCompile(`last\s+(\d+)\s+(day|week|month|hour|year)s?\b`)
	reCount    = regexp.MustCompile(`\b(?:how\s+many|count\s+of|number\s+of)\b`)
	reRecent   = regexp.MustCompile(`\b(?:recent|latest|newest)\b`)
	reOldest   = regexp.MustCompile(`\b(?:oldest|earliest)\b`)
	reTopN     = regexp.MustCompile(`\btop\s+(\d+)\b`)
	rePriority = regexp.MustCompile(`\bpriority\b`)
)

var heuristicRules = []heuristicRule{
	{"group_by_phrase", inferGroupBy},
	{"priority_group_conflict", dropConflictingPriorityFilter},
	{"overdue", inferOverdue},
	{"relative_window", inferWindow},
	{"count_phrase", inferCount},
	{"recency_sort", inferRecencySort},
	{"top_n", inferTopN},
}

func applyHeuristics(in *QueryIntent, query string) {
	q := strings.ToLower(query)
	for _, r := range heuristicRules {
		r.apply(q, in)
	}
}

// inferGroupBy extracts "group by X" / "breakdown by X" / "per X" tokens.
// Inferred tokens take precedence over whatever the LLM proposed.
func inferGroupBy(q string, in *QueryIntent) {
	var inferred []string
	for _, m := range reGroupBy.FindAllStringSubmatch(q, -1) {
		if token, ok := ResolveGroupToken(m[1]); ok {
			inferred = appendUnique(inferred, token)
		}
	}
	if len(inferred) == 0 {
		return
	}
	for _, existing := range in.GroupBy {
		inferred = appendUnique(inferred, existing)
	}
	in.GroupBy = inferred
}

// dropConflictingPriorityFilter removes an exact-match priority filter when
// the user asked to group by priority: the filter would collapse every result
// into a single bucket.
func dropConflictingPriorityFilter(q string, in *QueryIntent) {
	if !strings.Contains(q, "by priority") && !strings.Contains(q, "per priority") {
		return
	}
	grouped := false
	for _, t := range in.GroupBy {
		if t == "priority" {
			grouped = true
			break
		}
	}
	if !grouped {
		return
	}
	if _, ok := in.Filters["priority"].(string); ok {
		delete(in.Filters, "priority")
	}
}

// inferOverdue translates overdue language into "due before now and not yet
// finished", unless the user already bounded those fields.
func inferOverdue(q string, in *QueryIntent) {
	if !reOverdue.MatchString(q) {
		return
	}
	_, hasTo := in.Filters["dueDate_to"]
	_, hasWithin := in.Filters["dueDate_within"]
	if !hasTo && !hasWithin {
		in.Filters["dueDate_to"] = "now"
	}
	_, hasState := in.Filters["state"]
	_, hasNotIn := in.Filters["state_not_in"]
	if !hasState && !hasNotIn {
		in.Filters["state_not_in"] = []string{"Completed", "Verified"}
	}
}

// inferWindow turns relative date phrases into a canonical _within filter
// when no explicit created/updated bound exists. The token is resolved to
// concrete bounds at pipeline-generation time, not here.
func inferWindow(q string, in *QueryIntent) {
	for _, key := range []string{
		"createdTimeStamp_from", "createdTimeStamp_to", "createdTimeStamp_within",
		"updatedTimeStamp_from", "updatedTimeStamp_to", "updatedTimeStamp_within",
	} {
		if _, ok := in.Filters[key]; ok {
			return
		}
	}

	var token string
	if m := reLastN.FindStringSubmatch(q); m != nil {
		token = fmt.Sprintf("last_%s_%ss", m[1], m[2])
	} else {
		phrases := []struct{ phrase, token string }{
			{"yesterday", "yesterday"},
			{"today", "today"},
			{"this week", "this_week"},
			{"last week", "last_week"},
			{"this month", "this_month"},
			{"last month", "last_month"},
		}
		for _, p := range phrases {
			if strings.Contains(q, p.phrase) {
				token = p.token
				break
			}
		}
	}
	if token == "" {
		return
	}

	field := "createdTimeStamp"
	if strings.Contains(q, "updat") {
		field = "updatedTimeStamp"
	}
	in.Filters[field+"_within"] = token
}

func inferCount(q string, in *QueryIntent) {
	if reCount.MatchString(q) {
		in.WantsCount = true
	}
}

// inferRecencySort maps recency language onto a creation-time sort when the
// LLM provided none.
func inferRecencySort(q string, in *QueryIntent) {
	if in.SortOrder != nil {
		return
	}
	if reRecent.MatchString(q) {
		in.SortOrder = &SortSpec{Field: "createdTimeStamp", Direction: -1}
	} else if reOldest.MatchString(q) {
		in.SortOrder = &SortSpec{Field: "createdTimeStamp", Direction: 1}
	}
}

// inferTopN extracts "top N" into a limit, and when no other sort cue exists,
// ranks by priority if the query mentions it, otherwise by recency.
func inferTopN(q string, in *QueryIntent) {
	m := reTopN.FindStringSubmatch(q)
	if m == nil {
		return
	}
	if n, ok := coerceInt(m[1]); ok {
		in.Limit = clampLimit(n)
	}
	if in.SortOrder == nil {
		if rePriority.MatchString(q) {
			in.SortOrder = &SortSpec{Field: "priority", Direction: -1}
		} else {
			in.SortOrder = &SortSpec{Field: "createdTimeStamp", Direction: -1}
		}
	}
}
