// Package pipeline compiles a validated QueryIntent into a MongoDB
// aggregation pipeline. Generation is pure: no I/O, and given the same intent
// and a frozen clock the output stages are identical, which is what makes the
// compiler unit-testable and safe to cache.
package pipeline

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"smartquery/internal/intent"
	"smartquery/internal/logging"
)

const (
	priorityRankField = "__priorityRank"
	groupItemsCap     = 25
	msPerDay          = 86400000
)

// priorityRanks orders the enumerated priority labels for sorting; the
// natural string sort does not match business priority order.
var priorityRanks = []struct {
	Label string
	Rank  int
}{
	{"URGENT", 5},
	{"HIGH", 4},
	{"MEDIUM", 3},
	{"LOW", 2},
	{"NONE", 1},
}

// Generator compiles intents for one entity schema.
type Generator struct {
	schema *intent.EntitySchema
	now    func() time.Time
	log    *zap.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock injects the time source used for window and duration resolution.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a Generator for the default entity schema.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		schema: intent.DefaultSchema(),
		now:    time.Now,
		log:    logging.Named("pipeline"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate compiles the intent into an ordered list of aggregation stages.
// The result is directly executable: the generator alone guarantees the
// stages are syntactically and semantically valid.
func (g *Generator) Generate(in *intent.QueryIntent) (mongo.Pipeline, error) {
	now := g.now().UTC()
	primary, secondary := g.buildMatches(in, now)

	// Count-only fast path: one merged match plus $count, nothing else.
	if in.WantsCount && len(in.GroupBy) == 0 && !in.WantsDetails {
		var stages mongo.Pipeline
		merged := append(append(bson.D{}, primary...), secondary...)
		if len(merged) > 0 {
			stages = append(stages, bson.D{{Key: "$match", Value: merged}})
		}
		stages = append(stages, bson.D{{Key: "$count", Value: "total"}})
		return stages, nil
	}

	var stages mongo.Pipeline
	if len(primary) > 0 {
		stages = append(stages, bson.D{{Key: "$match", Value: primary}})
	}
	// Secondary filters hit embedded sub-documents via dot paths; no
	// $lookup is ever needed in this schema.
	if len(secondary) > 0 {
		stages = append(stages, bson.D{{Key: "$match", Value: secondary}})
	}

	if len(in.GroupBy) > 0 {
		return append(stages, g.buildGroupStages(in)...), nil
	}
	return append(stages, g.buildDetailStages(in)...), nil
}

// buildMatches splits the intent's filters into primary (native entity
// fields) and secondary (embedded dot-path) match documents. Keys are walked
// in sorted order so the output is deterministic.
func (g *Generator) buildMatches(in *intent.QueryIntent, now time.Time) (primary, secondary bson.D) {
	keys := make([]string, 0, len(in.Filters))
	for k := range in.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	type pathConds struct {
		exact    any
		hasExact bool
		ops      bson.D
	}
	conds := make(map[string]*pathConds)
	var order []string
	var exprs []bson.D
	secondaryPath := make(map[string]bool)

	add := func(path string, secondary bool) *pathConds {
		c, ok := conds[path]
		if !ok {
			c = &pathConds{}
			conds[path] = c
			order = append(order, path)
			secondaryPath[path] = secondary
		}
		return c
	}

	// Duplicate operators on one path collapse to the tightest bound; MongoDB
	// would otherwise keep only the last key of the doc.
	addOp := func(c *pathConds, op string, v any) {
		for i, e := range c.ops {
			if e.Key == op {
				c.ops[i].Value = tighterBound(op, e.Value, v)
				return
			}
		}
		c.ops = append(c.ops, bson.E{Key: op, Value: v})
	}

	for _, k := range keys {
		field, ok := g.schema.Filters[k]
		if !ok {
			// Second defense layer; sanitized intents never hit this.
			g.log.Debug("skipping unknown filter key", zap.String("key", k))
			continue
		}
		v := in.Filters[k]

		switch field.Kind {
		case intent.KindEnum:
			c := add(field.Path, field.Secondary)
			switch val := v.(type) {
			case string:
				c.exact = val
				c.hasExact = true
			case []string:
				c.ops = append(c.ops, bson.E{Key: "$in", Value: val})
			}
		case intent.KindEnumNotIn:
			if vals, ok := v.([]string); ok {
				c := add(field.Path, field.Secondary)
				c.ops = append(c.ops, bson.E{Key: "$nin", Value: vals})
			}
		case intent.KindText:
			if s, ok := v.(string); ok && s != "" {
				c := add(field.Path, field.Secondary)
				c.exact = primitive.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
				c.hasExact = true
			}
		case intent.KindBool:
			if b, ok := v.(bool); ok {
				c := add(field.Path, field.Secondary)
				c.exact = b
				c.hasExact = true
			}
		case intent.KindDate:
			t, ok := parseDateValue(v, now)
			if !ok {
				g.log.Debug("dropping unparseable date bound",
					zap.String("key", k), zap.Any("value", v))
				continue
			}
			op := "$lte"
			if strings.HasSuffix(k, "_from") {
				op = "$gte"
			}
			c := add(field.Path, field.Secondary)
			addOp(c, op, t)
		case intent.KindWindow:
			token, ok := v.(string)
			if !ok {
				continue
			}
			from, to, ok := resolveWindow(token, now)
			if !ok {
				g.log.Debug("dropping unresolvable window token",
					zap.String("key", k), zap.String("token", token))
				continue
			}
			c := add(field.Path, field.Secondary)
			addOp(c, "$gte", from)
			addOp(c, "$lt", to)
		case intent.KindDuration:
			if expr, ok := durationExpr(v, now); ok {
				exprs = append(exprs, expr)
			}
		}
	}

	for _, path := range order {
		c := conds[path]
		var value any
		switch {
		case c.hasExact:
			value = c.exact
		case len(c.ops) > 0:
			value = c.ops
		default:
			continue
		}
		e := bson.E{Key: path, Value: value}
		if secondaryPath[path] {
			secondary = append(secondary, e)
		} else {
			primary = append(primary, e)
		}
	}
	for _, expr := range exprs {
		primary = append(primary, bson.E{Key: "$expr", Value: expr})
	}
	return primary, secondary
}

// tighterBound picks the more restrictive of two time bounds for one
// operator: the later value for lower bounds, the earlier for upper bounds.
// Non-time values keep the newer one.
func tighterBound(op string, existing, incoming any) any {
	a, aok := existing.(time.Time)
	b, bok := incoming.(time.Time)
	if !aok || !bok {
		return incoming
	}
	switch op {
	case "$gte", "$gt":
		if b.After(a) {
			return incoming
		}
		return existing
	default:
		if b.Before(a) {
			return incoming
		}
		return existing
	}
}

// durationExpr builds a computed day-range condition: completion time (or
// now, when the item is still open) minus creation time, in days.
func durationExpr(v any, now time.Time) (bson.D, bool) {
	bounds, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}

	days := bson.D{{Key: "$divide", Value: bson.A{
		bson.D{{Key: "$subtract", Value: bson.A{
			bson.D{{Key: "$ifNull", Value: bson.A{"$completedTimeStamp", now}}},
			"$createdTimeStamp",
		}}},
		msPerDay,
	}}}

	var clauses bson.A
	if gte, ok := bounds["gte"]; ok {
		clauses = append(clauses, bson.D{{Key: "$gte", Value: bson.A{days, gte}}})
	}
	if lte, ok := bounds["lte"]; ok {
		clauses = append(clauses, bson.D{{Key: "$lte", Value: bson.A{days, lte}}})
	}
	switch len(clauses) {
	case 0:
		return nil, false
	case 1:
		return clauses[0].(bson.D), true
	default:
		return bson.D{{Key: "$and", Value: clauses}}, true
	}
}

// buildGroupStages emits unwind/group/sort/limit for grouped intents. The
// limit caps the number of groups; document-level skip/limit never apply
// here.
func (g *Generator) buildGroupStages(in *intent.QueryIntent) mongo.Pipeline {
	var stages mongo.Pipeline

	tokens := make([]string, 0, len(in.GroupBy))
	unwound := make(map[string]bool)
	for _, token := range in.GroupBy {
		gk, ok := g.schema.GroupTokens[token]
		if !ok {
			// Unresolvable tokens were dropped at sanitization; degrade
			// silently if one slips through.
			g.log.Debug("skipping unresolvable group token", zap.String("token", token))
			continue
		}
		tokens = append(tokens, token)
		// Array-valued group keys are unwound so elements form independent
		// groups instead of array-typed group keys.
		if gk.Unwind != "" && !unwound[gk.Unwind] {
			unwound[gk.Unwind] = true
			stages = append(stages, bson.D{{Key: "$unwind", Value: bson.D{
				{Key: "path", Value: "$" + gk.Unwind},
				{Key: "preserveNullAndEmptyArrays", Value: false},
			}}})
		}
	}
	if len(tokens) == 0 {
		// No grouping key resolved: degrade to an ungrouped query.
		return g.buildDetailStages(in)
	}

	var idExpr any
	if len(tokens) == 1 {
		idExpr = g.groupKeyExpr(tokens[0])
	} else {
		id := make(bson.D, 0, len(tokens))
		for _, token := range tokens {
			id = append(id, bson.E{Key: token, Value: g.groupKeyExpr(token)})
		}
		idExpr = id
	}

	groupDoc := bson.D{
		{Key: "_id", Value: idExpr},
		{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
	}
	if in.WantsDetails {
		// Carry a bounded projection of display fields, never raw documents.
		display := make(bson.D, 0, len(g.schema.GroupDisplay))
		for _, f := range g.schema.GroupDisplay {
			display = append(display, bson.E{Key: f, Value: "$" + f})
		}
		groupDoc = append(groupDoc, bson.E{Key: "items", Value: bson.D{{Key: "$push", Value: display}}})
	}
	stages = append(stages, bson.D{{Key: "$group", Value: groupDoc}})

	if in.WantsDetails {
		stages = append(stages, bson.D{{Key: "$set", Value: bson.D{
			{Key: "items", Value: bson.D{{Key: "$slice", Value: bson.A{"$items", groupItemsCap}}}},
		}}})
	}

	if key, ok := g.groupSortKey(in, tokens); ok {
		stages = append(stages, bson.D{{Key: "$sort", Value: bson.D{
			{Key: key, Value: in.SortOrder.Direction},
		}}})
	}

	if in.Limit != nil {
		stages = append(stages, bson.D{{Key: "$limit", Value: *in.Limit}})
	}
	return stages
}

func (g *Generator) groupKeyExpr(token string) any {
	gk := g.schema.GroupTokens[token]
	if gk.DateFormat != "" {
		return bson.D{{Key: "$dateToString", Value: bson.D{
			{Key: "format", Value: gk.DateFormat},
			{Key: "date", Value: "$" + gk.Expr},
		}}}
	}
	return "$" + gk.Expr
}

// groupSortKey resolves a sort over grouped output: sorting applies only when
// the requested key is one of the grouping tokens.
func (g *Generator) groupSortKey(in *intent.QueryIntent, tokens []string) (string, bool) {
	if in.SortOrder == nil {
		return "", false
	}
	for _, token := range tokens {
		gk := g.schema.GroupTokens[token]
		if in.SortOrder.Field != token && in.SortOrder.Field != gk.Expr {
			continue
		}
		if len(tokens) == 1 {
			return "_id", true
		}
		return "_id." + token, true
	}
	return "", false
}

// buildDetailStages emits sort/skip/limit/project for detail intents.
func (g *Generator) buildDetailStages(in *intent.QueryIntent) mongo.Pipeline {
	var stages mongo.Pipeline

	if in.SortOrder != nil {
		if in.SortOrder.Field == "priority" {
			// Rank labels numerically for the sort, then strip the helper
			// field so it never reaches the output.
			stages = append(stages,
				bson.D{{Key: "$addFields", Value: bson.D{
					{Key: priorityRankField, Value: prioritySwitchExpr()},
				}}},
				bson.D{{Key: "$sort", Value: bson.D{
					{Key: priorityRankField, Value: in.SortOrder.Direction},
				}}},
				bson.D{{Key: "$unset", Value: priorityRankField}},
			)
		} else {
			stages = append(stages, bson.D{{Key: "$sort", Value: bson.D{
				{Key: in.SortOrder.Field, Value: in.SortOrder.Direction},
			}}})
		}
	}

	if in.Skip > 0 {
		stages = append(stages, bson.D{{Key: "$skip", Value: in.Skip}})
	}

	limit := 0
	switch {
	case in.FetchOne:
		limit = 1
	case in.Limit != nil:
		limit = *in.Limit
	}
	if limit > 0 {
		stages = append(stages, bson.D{{Key: "$limit", Value: limit}})
	}

	if in.WantsDetails {
		paths := in.Projections
		if len(paths) == 0 {
			paths = g.schema.DefaultProjection
		}
		projection := make(bson.D, 0, len(paths))
		for _, p := range paths {
			// Defense in depth: re-check the allow-list even though the
			// sanitizer already filtered.
			if !g.schema.ProjectionAllow[p] {
				continue
			}
			projection = append(projection, bson.E{Key: p, Value: 1})
		}
		if len(projection) > 0 {
			stages = append(stages, bson.D{{Key: "$project", Value: projection}})
		}
	}
	return stages
}

func prioritySwitchExpr() bson.D {
	branches := make(bson.A, 0, len(priorityRanks))
	for _, pr := range priorityRanks {
		branches = append(branches, bson.D{
			{Key: "case", Value: bson.D{{Key: "$eq", Value: bson.A{"$priority", pr.Label}}}},
			{Key: "then", Value: pr.Rank},
		})
	}
	return bson.D{{Key: "$switch", Value: bson.D{
		{Key: "branches", Value: branches},
		{Key: "default", Value: 0},
	}}}
}
