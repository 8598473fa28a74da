package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"smartquery/internal/llm"
	"smartquery/internal/logging"
	"smartquery/internal/metrics"
)

// ErrNoIntent marks a response from which no intent object could be
// extracted. Callers branch on it to distinguish extraction failures from
// transport failures.
var ErrNoIntent = errors.New("no intent object in llm response")

// intentMarkers are the top-level keys that identify a candidate object as an
// intent proposal rather than incidental JSON in the response.
var intentMarkers = []string{
	"primary_entity", "filters", "aggregations", "group_by",
	"wants_count", "wants_details", "sort_order",
}

// Parser asks the LLM for a raw intent and sanitizes it into a QueryIntent.
type Parser struct {
	client llm.Client
	log    *zap.Logger
}

// NewParser creates a Parser backed by the given LLM client.
func NewParser(client llm.Client) *Parser {
	return &Parser{
		client: client,
		log:    logging.Named("intent"),
	}
}

// Parse converts a free-form query into a validated QueryIntent. It fails
// closed: any LLM, extraction, or decoding problem yields (nil, error) and
// never a fabricated default intent.
func (p *Parser) Parse(ctx context.Context, query string) (*QueryIntent, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("intent: empty query")
	}

	response, err := p.client.CompleteWithSystem(ctx, systemPrompt(), query)
	if err != nil {
		metrics.ParseFailuresTotal.Inc()
		return nil, fmt.Errorf("intent: llm completion failed: %w", err)
	}

	raw, err := extractRawIntent(response)
	if err != nil {
		metrics.ParseFailuresTotal.Inc()
		p.log.Warn("could not extract intent from llm response",
			zap.Int("response_len", len(response)), zap.Error(err))
		return nil, fmt.Errorf("intent: %w", err)
	}

	out := Sanitize(raw, query)
	p.log.Debug("parsed intent",
		zap.String("entity", out.PrimaryEntity),
		zap.Int("filters", len(out.Filters)),
		zap.Strings("group_by", out.GroupBy),
		zap.Bool("wants_count", out.WantsCount))
	return out, nil
}

// extractRawIntent digs the first plausible intent object out of a noisy LLM
// response: thinking tags and code fences are stripped, then each balanced
// top-level JSON object is probed for intent marker keys before a strict
// decode.
func extractRawIntent(response string) (*RawIntent, error) {
	text := cleanLLMText(response)
	if text == "" {
		return nil, fmt.Errorf("empty llm response: %w", ErrNoIntent)
	}

	candidates := jsonObjectCandidates(text)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no JSON object in llm response: %w", ErrNoIntent)
	}

	var lastErr error
	for _, candidate := range candidates {
		if !gjson.Valid(candidate) || !looksLikeIntent(candidate) {
			continue
		}
		var raw RawIntent
		if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
			lastErr = err
			continue
		}
		return &raw, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("intent JSON did not decode: %w", lastErr)
	}
	return nil, ErrNoIntent
}

func looksLikeIntent(candidate string) bool {
	for _, key := range intentMarkers {
		if gjson.Get(candidate, key).Exists() {
			return true
		}
	}
	return false
}

// systemPrompt enumerates the closed vocabulary for the LLM. It is generated
// from the schema tables so the prompt can never drift from what the
// sanitizer accepts.
func systemPrompt() string {
	schema := DefaultSchema()

	filterKeys := make([]string, 0, len(schema.Filters))
	for k := range schema.Filters {
		filterKeys = append(filterKeys, k)
	}
	sort.Strings(filterKeys)

	groupTokens := make([]string, 0, len(schema.GroupTokens))
	for k := range schema.GroupTokens {
		groupTokens = append(groupTokens, k)
	}
	sort.Strings(groupTokens)

	states := enumValues(stateValues)
	priorities := enumValues(priorityValues)

	var sb strings.Builder
	sb.WriteString("You translate questions about work items into a JSON query intent.\n")
	sb.WriteString("Respond with a single JSON object and nothing else.\n\n")
	sb.WriteString("Fields:\n")
	sb.WriteString(`  primary_entity: always "workItem"` + "\n")
	sb.WriteString("  filters: object, keys limited to: " + strings.Join(filterKeys, ", ") + "\n")
	sb.WriteString("  aggregations: array from [\"count\", \"group\", \"summary\"]\n")
	sb.WriteString("  group_by: array from [" + strings.Join(groupTokens, ", ") + "]\n")
	sb.WriteString("  sort_order: object with one key and direction 1/-1/\"asc\"/\"desc\"\n")
	sb.WriteString("  limit, skip: integers; wants_count, wants_details, fetch_one: booleans\n\n")
	sb.WriteString("state values: " + strings.Join(states, ", ") + "\n")
	sb.WriteString("priority values: " + strings.Join(priorities, ", ") + "\n\n")
	sb.WriteString("Date filters take absolute dates (YYYY-MM-DD) in *_from/*_to keys,\n")
	sb.WriteString("or a relative token (today, yesterday, this_week, last_week, this_month,\n")
	sb.WriteString("last_month, last_N_days) in *_within keys.\n")
	sb.WriteString("Extract an explicit limit only when the user states a number.\n\n")
	sb.WriteString("Examples:\n")
	sb.WriteString(`  "how many bugs are there" -> {"primary_entity":"workItem","aggregations":["count"],"wants_count":true}` + "\n")
	sb.WriteString(`  "show high priority open bugs" -> {"primary_entity":"workItem","filters":{"priority":"high","state":"open"},"wants_details":true}` + "\n")
	sb.WriteString(`  "group tasks by priority" -> {"primary_entity":"workItem","aggregations":["group"],"group_by":["priority"]}` + "\n")
	sb.WriteString(`  "bugs assigned to Alice updated last week" -> {"primary_entity":"workItem","filters":{"assignee":"Alice","updatedTimeStamp_within":"last_week"},"wants_details":true}` + "\n")
	return sb.String()
}

func enumValues(table map[string]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, canonical := range table {
		if !seen[canonical] {
			seen[canonical] = true
			out = append(out, canonical)
		}
	}
	sort.Strings(out)
	return out
}
