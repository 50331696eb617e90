package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "fenced array",
			input:    "Here you go:\n```json\n[{\"pain\": \"slow exports\"}]\n```\nHope this helps.",
			expected: `[{"pain": "slow exports"}]`,
		},
		{
			name:     "fenced without language",
			input:    "```\n{\"a\": 1}\n```",
			expected: `{"a": 1}`,
		},
		{
			name:     "object embedded in prose",
			input:    "Based on the sources, the analysis is {\"hasGaps\": true, \"gaps\": [\"pricing\"]} as requested.",
			expected: `{"hasGaps": true, "gaps": ["pricing"]}`,
		},
		{
			name:     "array after prose",
			input:    "Items:\n[\"one\", \"two\"]\nThanks",
			expected: `["one", "two"]`,
		},
		{
			name:     "braces inside strings",
			input:    `Result: {"template": "Hello {name}!", "x": "]"}`,
			expected: `{"template": "Hello {name}!", "x": "]"}`,
		},
		{
			name:     "escaped quotes",
			input:    "Result: {\"message\": \"He said \\\"hi\\\"\"}",
			expected: `{"message": "He said \"hi\""}`,
		},
		{
			name:     "bracketed prose before JSON",
			input:    "See [note] below. {\"ok\": true}",
			expected: `{"ok": true}`,
		},
		{
			name:     "fence with prose inside",
			input:    "```json\nSure! {\"ok\": true}\n```",
			expected: `{"ok": true}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestExtractJSON_NoJSON(t *testing.T) {
	inputs := []string{
		"",
		"I could not find any pain points in these sources.",
		"Unbalanced { brace here",
		"[citation needed]",
	}
	for _, in := range inputs {
		_, err := ExtractJSON(in)
		assert.ErrorIs(t, err, ErrNoParseableJSON, "input %q", in)
	}
}

type painStub struct {
	Pain   string   `json:"pain"`
	Quotes []string `json:"quotes"`
}

func TestParseJSON_Array(t *testing.T) {
	got, err := ParseJSON[[]painStub]("```json\n[{\"pain\": \"a\", \"quotes\": [\"q\"]}]\n```")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Pain)
}

func TestParseJSON_ArrayWrappedInObject(t *testing.T) {
	got, err := ParseJSON[[]painStub](`{"painPoints": [{"pain": "b"}, {"pain": "c"}]}`)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Pain)
}

func TestParseJSON_TypeMismatch(t *testing.T) {
	_, err := ParseJSON[[]painStub](`{"pain": "not an array"}`)
	assert.ErrorIs(t, err, ErrNoParseableJSON)
}

func TestGenerateJSON(t *testing.T) {
	client := newFakeClient(ProviderGemini, fakeResponse{text: "Sure:\n```json\n{\"hasGaps\": false}\n```"})

	got, err := GenerateJSON[GapAnalysis](context.Background(), client, "prompt", GenerateOptions{})
	require.NoError(t, err)
	assert.False(t, got.HasGaps)
	require.Len(t, client.opts, 1)
	assert.True(t, client.opts[0].JSON)
}

func TestGenerateJSON_PropagatesClientError(t *testing.T) {
	boom := errors.New("boom")
	client := newFakeClient(ProviderGemini, fakeResponse{err: boom})

	_, err := GenerateJSON[GapAnalysis](context.Background(), client, "prompt", GenerateOptions{})
	assert.ErrorIs(t, err, boom)
}

func TestTruncateContent(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{name: "fits", input: "short", max: 100, want: "short"},
		{name: "no limit", input: "short", max: 0, want: "short"},
		{name: "marker counts toward limit", input: strings.Repeat("x", 40), max: 20, want: "xxxxxxxx\n[truncated]"},
		{name: "limit below marker length", input: "héllo world", max: 2, want: "h"},
		{name: "cuts on rune boundary", input: "aaaaaaaaé" + strings.Repeat("z", 20), max: 21, want: "aaaaaaaa\n[truncated]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateContent(tt.input, tt.max)
			assert.Equal(t, tt.want, got)
			if tt.max > 0 {
				assert.LessOrEqual(t, len(got), tt.max)
			}
			assert.True(t, utf8.ValidString(got))
		})
	}
}
