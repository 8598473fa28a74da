// Package intent turns free-form natural-language questions into a validated
// QueryIntent. The LLM proposes a raw intent; Sanitize is the security
// boundary that forces everything through the per-entity schema allow-list,
// and a deterministic heuristic rule set corrects known LLM weaknesses from
// the original query text.
package intent

// Aggregation kinds a QueryIntent may request.
const (
	AggCount   = "count"
	AggGroup   = "group"
	AggSummary = "summary"
)

// SortSpec is a single-key sort with a normalized direction (1 or -1).
type SortSpec struct {
	Field     string `json:"field"`
	Direction int    `json:"direction"`
}

// QueryIntent is the canonical, validated plan for one query. It is produced
// once by Sanitize and consumed once by the pipeline generator; nothing in it
// may name a field, filter key, or entity outside the static schema.
type QueryIntent struct {
	PrimaryEntity string         `json:"primary_entity"`
	Filters       map[string]any `json:"filters"`
	Aggregations  []string       `json:"aggregations"`
	GroupBy       []string       `json:"group_by"`
	Projections   []string       `json:"projections"`
	SortOrder     *SortSpec      `json:"sort_order,omitempty"`
	Limit         *int           `json:"limit,omitempty"`
	Skip          int            `json:"skip"`
	WantsDetails  bool           `json:"wants_details"`
	WantsCount    bool           `json:"wants_count"`
	FetchOne      bool           `json:"fetch_one"`
}

// RawIntent mirrors the untrusted JSON shape the LLM returns. Every field is
// loosely typed; Sanitize owns all interpretation.
type RawIntent struct {
	PrimaryEntity string         `json:"primary_entity"`
	Filters       map[string]any `json:"filters"`
	Aggregations  []string       `json:"aggregations"`
	GroupBy       []string       `json:"group_by"`
	Projections   []string       `json:"projections"`
	SortOrder     map[string]any `json:"sort_order"`
	Limit         any            `json:"limit"`
	Skip          any            `json:"skip"`
	WantsDetails  bool           `json:"wants_details"`
	WantsCount    bool           `json:"wants_count"`
	FetchOne      bool           `json:"fetch_one"`
}

// HasAggregation reports whether the intent requests the given aggregation.
func (q *QueryIntent) HasAggregation(kind string) bool {
	for _, a := range q.Aggregations {
		if a == kind {
			return true
		}
	}
	return false
}
