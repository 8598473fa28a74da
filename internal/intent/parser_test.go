package intent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLLM returns a canned response or error.
type fakeLLM struct {
	response string
	err      error

	lastSystem string
	lastUser   string
}

func (f *fakeLLM) CompleteWithSystem(_ context.Context, system, user string) (string, error) {
	f.lastSystem = system
	f.lastUser = user
	return f.response, f.err
}

func TestParser_Parse(t *testing.T) {
	tests := []struct {
		name     string
		response string
		query    string
		check    func(t *testing.T, out *QueryIntent)
	}{
		{
			"clean json",
			`{"primary_entity":"workItem","filters":{"state":"open"},"wants_details":true}`,
			"show open bugs",
			func(t *testing.T, out *QueryIntent) {
				assert.Equal(t, "Open", out.Filters["state"])
				assert.True(t, out.WantsDetails)
			},
		},
		{
			"fenced json",
			"```json\n{\"primary_entity\":\"workItem\",\"wants_count\":true}\n```",
			"how many bugs",
			func(t *testing.T, out *QueryIntent) {
				assert.True(t, out.WantsCount)
				assert.Equal(t, []string{AggCount}, out.Aggregations)
			},
		},
		{
			"thinking tags and prose around json",
			"<thinking>count them {later}</thinking>\nHere you go:\n" +
				`{"primary_entity":"workItem","aggregations":["count"],"wants_count":true}` +
				"\nHope that helps!",
			"how many bugs",
			func(t *testing.T, out *QueryIntent) {
				assert.True(t, out.WantsCount)
			},
		},
		{
			"intent object preferred over incidental json",
			`{"note": "not an intent"} {"primary_entity":"workItem","group_by":["priority"]}`,
			"tasks by priority",
			func(t *testing.T, out *QueryIntent) {
				assert.Equal(t, []string{"priority"}, out.GroupBy)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser(&fakeLLM{response: tt.response})
			out, err := p.Parse(context.Background(), tt.query)
			require.NoError(t, err)
			require.NotNil(t, out)
			assert.Equal(t, "workItem", out.PrimaryEntity)
			tt.check(t, out)
		})
	}
}

func TestParser_ParseFailsClosed(t *testing.T) {
	tests := []struct {
		name         string
		client       *fakeLLM
		query        string
		wantText     string
		wantNoIntent bool
	}{
		{"llm error", &fakeLLM{err: errors.New("rate limited")}, "show bugs", "llm completion failed", false},
		{"empty response", &fakeLLM{response: ""}, "show bugs", "empty llm response", true},
		{"prose only", &fakeLLM{response: "I cannot answer that."}, "show bugs", "no JSON object", true},
		{"json without intent markers", &fakeLLM{response: `{"answer": 42}`}, "show bugs", "no intent object", true},
		{"empty query", &fakeLLM{response: "{}"}, "   ", "empty query", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser(tt.client)
			out, err := p.Parse(context.Background(), tt.query)
			require.Error(t, err)
			assert.Nil(t, out, "a failed parse must never fabricate an intent")
			assert.Contains(t, err.Error(), tt.wantText)
			assert.Equal(t, tt.wantNoIntent, errors.Is(err, ErrNoIntent))
		})
	}
}

func TestParser_SendsSchemaDrivenPrompt(t *testing.T) {
	client := &fakeLLM{response: `{"primary_entity":"workItem","wants_details":true}`}
	p := NewParser(client)
	_, err := p.Parse(context.Background(), "show bugs")
	require.NoError(t, err)

	assert.Equal(t, "show bugs", client.lastUser)
	// The prompt is generated from the schema tables; spot-check that the
	// closed vocabulary made it in.
	for _, fragment := range []string{
		"workItem", "state_not_in", "updatedTimeStamp_within", "duration_days",
		"Backlog", "InProgress", "URGENT", "NONE",
		"priority", "assignee",
	} {
		assert.Contains(t, client.lastSystem, fragment)
	}
}

func TestExtractRawIntent_DecodeErrorSurface(t *testing.T) {
	// Marker key present but the shape is wrong for strict decoding.
	_, err := extractRawIntent(`{"filters": "not an object"}`)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "decode") || strings.Contains(err.Error(), "unmarshal"))
}
