package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanLLMText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"plain json untouched",
			`{"wants_count": true}`,
			`{"wants_count": true}`,
		},
		{
			"json code fence",
			"```json\n{\"wants_count\": true}\n```",
			`{"wants_count": true}`,
		},
		{
			"bare code fence",
			"```\n{\"a\": 1}\n```",
			`{"a": 1}`,
		},
		{
			"thinking tags stripped",
			"<thinking>the user wants a count {not json}</thinking>\n{\"wants_count\": true}",
			`{"wants_count": true}`,
		},
		{
			"short think tag",
			"<think>hmm</think>{\"a\": 1}",
			`{"a": 1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanLLMText(tt.in))
		})
	}
}

func TestJSONObjectCandidates(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			"single object",
			`{"a": 1}`,
			[]string{`{"a": 1}`},
		},
		{
			"object inside prose",
			`Sure! Here is the intent: {"wants_count": true} and that's all.`,
			[]string{`{"wants_count": true}`},
		},
		{
			"nested braces stay in one candidate",
			`{"filters": {"state": "open"}, "group_by": []}`,
			[]string{`{"filters": {"state": "open"}, "group_by": []}`},
		},
		{
			"braces inside strings do not split",
			`{"title": "render {{tpl}} fails"}`,
			[]string{`{"title": "render {{tpl}} fails"}`},
		},
		{
			"escaped quote inside string",
			`{"title": "say \"hi\" {now}"}`,
			[]string{`{"title": "say \"hi\" {now}"}`},
		},
		{
			"two top-level objects",
			`{"a": 1} and {"b": 2}`,
			[]string{`{"a": 1}`, `{"b": 2}`},
		},
		{
			"unbalanced close ignored",
			`} {"a": 1}`,
			[]string{`{"a": 1}`},
		},
		{
			"no object",
			"no json here",
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, jsonObjectCandidates(tt.in))
		})
	}
}
