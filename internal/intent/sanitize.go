package intent

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"smartquery/internal/logging"
)

const (
	maxLimit       = 1000
	defaultLimit   = 50
	maxProjections = 10
)

// loweredFilterKeys indexes canonical filter keys by their lowercase form so
// key matching is case-insensitive without loosening the allow-list.
var loweredFilterKeys = func() map[string]string {
	idx := make(map[string]string, len(workItemSchema.Filters))
	for k := range workItemSchema.Filters {
		idx[strings.ToLower(k)] = k
	}
	return idx
}()

// Sanitize converts an untrusted RawIntent into a validated QueryIntent.
// It never trusts the LLM: the entity is forced to the supported one, every
// filter key must resolve through the allow-list, enum values must translate
// through the closed tables, and anything that fails is dropped rather than
// passed through. The original query text drives a deterministic heuristic
// pass that corrects known LLM weaknesses. Sanitize is idempotent over its
// own output.
func Sanitize(raw *RawIntent, query string) *QueryIntent {
	log := logging.Named("intent")
	if raw == nil {
		raw = &RawIntent{}
	}

	schema := DefaultSchema()
	out := &QueryIntent{
		// Defense in depth: whatever the LLM suggested, plan against the
		// known-good entity.
		PrimaryEntity: CanonicalEntity(raw.PrimaryEntity),
		Filters:       sanitizeFilters(raw.Filters, schema, log),
		WantsDetails:  raw.WantsDetails,
		WantsCount:    raw.WantsCount,
		FetchOne:      raw.FetchOne,
	}

	for _, a := range raw.Aggregations {
		switch strings.ToLower(strings.TrimSpace(a)) {
		case AggCount:
			out.Aggregations = appendUnique(out.Aggregations, AggCount)
			out.WantsCount = true
		case AggGroup:
			out.Aggregations = appendUnique(out.Aggregations, AggGroup)
		case AggSummary:
			out.Aggregations = appendUnique(out.Aggregations, AggSummary)
		default:
			log.Debug("dropping unknown aggregation", zap.String("value", a))
		}
	}

	for _, token := range raw.GroupBy {
		if resolved, ok := ResolveGroupToken(token); ok {
			out.GroupBy = appendUnique(out.GroupBy, resolved)
		} else {
			log.Debug("dropping unresolvable group token", zap.String("token", token))
		}
	}

	for _, p := range raw.Projections {
		path := strings.TrimSpace(p)
		if schema.ProjectionAllow[path] {
			out.Projections = appendUnique(out.Projections, path)
		} else {
			log.Debug("dropping disallowed projection", zap.String("path", path))
		}
		if len(out.Projections) >= maxProjections {
			break
		}
	}

	out.SortOrder = sanitizeSort(raw.SortOrder, schema, log)

	if n, ok := coerceInt(raw.Limit); ok {
		out.Limit = clampLimit(n)
	}
	if n, ok := coerceInt(raw.Skip); ok && n > 0 {
		out.Skip = n
	}

	applyHeuristics(out, query)
	enforceShape(out)
	return out
}

// sanitizeFilters walks raw filter keys through synonym mapping, date-suffix
// normalization, and the allow-list, normalizing each surviving value by its
// declared kind.
func sanitizeFilters(raw map[string]any, schema *EntitySchema, log *zap.Logger) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		key, ok := resolveFilterKey(k)
		if !ok {
			log.Debug("dropping disallowed filter key", zap.String("key", k))
			continue
		}
		field := schema.Filters[key]
		val, ok := normalizeFilterValue(field, v)
		if !ok {
			log.Debug("dropping untranslatable filter value",
				zap.String("key", key), zap.Any("value", v))
			continue
		}
		out[key] = val
	}
	return out
}

// resolveFilterKey maps a raw key to its canonical allow-listed form.
func resolveFilterKey(k string) (string, bool) {
	k = strings.TrimSpace(k)
	if _, ok := workItemSchema.Filters[k]; ok {
		return k, true
	}

	lower := strings.ToLower(strings.ReplaceAll(k, " ", "_"))
	if canonical, ok := loweredFilterKeys[lower]; ok {
		return canonical, true
	}
	if canonical, ok := keySynonyms[lower]; ok {
		return canonical, true
	}

	// Date-synonym suffixes: created_from, updated_within, date_to, ...
	if i := strings.LastIndex(lower, "_"); i > 0 {
		base, suffix := lower[:i], lower[i+1:]
		if suffix == "from" || suffix == "to" || suffix == "within" {
			if field, ok := dateKeyBases[base]; ok {
				candidate := field + "_" + suffix
				if _, ok := workItemSchema.Filters[candidate]; ok {
					return candidate, true
				}
			}
		}
		if suffix == "duration" {
			if _, ok := dateKeyBases[base]; ok {
				return "duration_days", true
			}
		}
	}
	return "", false
}

func normalizeFilterValue(field FilterField, v any) (any, bool) {
	switch field.Kind {
	case KindEnum:
		return translateEnum(field.Enum, v)
	case KindEnumNotIn:
		return translateEnumList(field.Enum, v)
	case KindText:
		s := strings.TrimSpace(fmt.Sprintf("%v", v))
		if s == "" || v == nil {
			return nil, false
		}
		return s, true
	case KindBool:
		return coerceBool(v)
	case KindDate:
		s := strings.TrimSpace(fmt.Sprintf("%v", v))
		if s == "" || v == nil {
			return nil, false
		}
		return s, true
	case KindWindow:
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		token := normalizeToken(s)
		if token == "" {
			return nil, false
		}
		return token, true
	case KindDuration:
		return normalizeDuration(v)
	default:
		return nil, false
	}
}

// translateEnum maps a raw enum value through the closed table. Untranslatable
// values are dropped; un-normalized enum strings never pass through.
func translateEnum(table map[string]string, v any) (any, bool) {
	switch val := v.(type) {
	case string:
		if canonical, ok := lookupEnum(table, val); ok {
			return canonical, true
		}
		return nil, false
	case []any:
		translated, ok := translateEnumList(table, val)
		if !ok {
			return nil, false
		}
		return translated, true
	case []string:
		return translateEnumList(table, val)
	default:
		return nil, false
	}
}

func translateEnumList(table map[string]string, v any) (any, bool) {
	var items []string
	switch val := v.(type) {
	case string:
		items = []string{val}
	case []string:
		items = val
	case []any:
		for _, it := range val {
			s, ok := it.(string)
			if !ok {
				continue
			}
			items = append(items, s)
		}
	default:
		return nil, false
	}

	var out []string
	for _, it := range items {
		if canonical, ok := lookupEnum(table, it); ok {
			out = appendUnique(out, canonical)
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

func lookupEnum(table map[string]string, v string) (string, bool) {
	trimmed := strings.TrimSpace(v)
	// Canonical values map to themselves so re-sanitizing is a no-op.
	for _, canonical := range table {
		if trimmed == canonical {
			return canonical, true
		}
	}
	canonical, ok := table[strings.ToLower(trimmed)]
	return canonical, ok
}

func normalizeDuration(v any) (any, bool) {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, 2)
		for _, bound := range []string{"gte", "lte"} {
			if raw, ok := val[bound]; ok {
				if f, ok := coerceFloat(raw); ok && f >= 0 {
					out[bound] = f
				}
			}
		}
		if f, ok := coerceFloat(val["min"]); ok && f >= 0 {
			out["gte"] = f
		}
		if f, ok := coerceFloat(val["max"]); ok && f >= 0 {
			out["lte"] = f
		}
		if len(out) == 0 {
			return nil, false
		}
		return out, true
	default:
		// A bare number means "at least this many days".
		if f, ok := coerceFloat(v); ok && f >= 0 {
			return map[string]any{"gte": f}, true
		}
		return nil, false
	}
}

func sanitizeSort(raw map[string]any, schema *EntitySchema, log *zap.Logger) *SortSpec {
	if len(raw) == 0 {
		return nil
	}
	// Single-key sort: take the first resolvable key in deterministic order.
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		field, ok := schema.SortFields[normalizeToken(k)]
		if !ok {
			log.Debug("dropping unresolvable sort key", zap.String("key", k))
			continue
		}
		dir, ok := normalizeDirection(raw[k])
		if !ok {
			continue
		}
		return &SortSpec{Field: field, Direction: dir}
	}
	return nil
}

func normalizeDirection(v any) (int, bool) {
	switch val := v.(type) {
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "asc", "ascending", "1", "up":
			return 1, true
		case "desc", "descending", "-1", "down":
			return -1, true
		}
		return 0, false
	default:
		if n, ok := coerceInt(v); ok {
			if n >= 0 {
				return 1, true
			}
			return -1, true
		}
	}
	return 0, false
}

// enforceShape applies the mutual-exclusivity rules: count queries carry no
// grouping, projections, or sort; grouping requires the group aggregation and
// vice versa.
func enforceShape(q *QueryIntent) {
	if q.WantsCount && len(q.GroupBy) == 0 {
		q.Aggregations = []string{AggCount}
		q.GroupBy = nil
		q.Projections = nil
		q.SortOrder = nil
		q.WantsDetails = false
		q.Limit = nil
		q.Skip = 0
		q.FetchOne = false
		return
	}

	if len(q.GroupBy) > 0 {
		q.WantsCount = false
		if !q.HasAggregation(AggGroup) {
			q.Aggregations = appendUnique(q.Aggregations, AggGroup)
		}
	} else if q.HasAggregation(AggGroup) {
		// "group" with nothing to group by degrades to an ungrouped query.
		q.Aggregations = removeValue(q.Aggregations, AggGroup)
	}

	// Summary requests degrade to a detail query: without count or grouping
	// there is nothing else to compute, and an intent with no output shape
	// would compile to an empty pipeline.
	if !q.WantsCount && len(q.GroupBy) == 0 {
		q.WantsDetails = true
	}

	// Limit ladder: explicit values were clamped on entry; default applies
	// only to detail queries. Pure aggregations run unlimited.
	if q.WantsDetails && q.Limit == nil {
		q.Limit = intPtr(defaultLimit)
	}
	if q.Limit != nil && *q.Limit == 1 {
		q.FetchOne = true
	}
	if q.FetchOne {
		q.Limit = intPtr(1)
	}
	if q.Skip < 0 {
		q.Skip = 0
	}
}

// ResolveGroupToken maps a loose grouping token onto a canonical schema token.
func ResolveGroupToken(token string) (string, bool) {
	t := normalizeToken(token)
	t = strings.TrimPrefix(t, "by_")
	if syn, ok := groupSynonyms[t]; ok {
		t = syn
	}
	if _, ok := workItemSchema.GroupTokens[t]; ok {
		return t, true
	}
	return "", false
}

func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

func clampLimit(n int) *int {
	if n < 1 {
		n = 1
	}
	if n > maxLimit {
		n = maxLimit
	}
	return intPtr(n)
}

func coerceInt(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int32:
		return int(val), true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case float32:
		return int(val), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func coerceFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func coerceBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes", "1":
			return true, true
		case "false", "no", "0":
			return false, true
		}
		return false, false
	case float64:
		return val != 0, true
	case int:
		return val != 0, true
	default:
		return false, false
	}
}

func appendUnique(s []string, v string) []string {
	for _, existing := range s {
		if existing == v {
			return s
		}
	}
	return append(s, v)
}

func removeValue(s []string, v string) []string {
	out := s[:0]
	for _, existing := range s {
		if existing != v {
			out = append(out, existing)
		}
	}
	return out
}

func intPtr(n int) *int { return &n }
