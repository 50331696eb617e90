// Package llm - util.go provides shared utilities for LLM response processing.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n?(.*?)```")

// ExtractJSON locates a JSON document inside model output.
// Fenced code blocks are tried first, then the first balanced {...} or [...]
// span that parses. Returns ErrNoParseableJSON when neither yields JSON.
func ExtractJSON(text string) (string, error) {
	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		inner := strings.TrimSpace(m[1])
		if json.Valid([]byte(inner)) && isContainer(inner) {
			return inner, nil
		}
		if span, ok := firstBalancedSpan(inner); ok {
			return span, nil
		}
	}

	if span, ok := firstBalancedSpan(text); ok {
		return span, nil
	}
	return "", ErrNoParseableJSON
}

func isContainer(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

// firstBalancedSpan scans for the first '{' or '[' whose balanced span is valid JSON.
func firstBalancedSpan(text string) (string, bool) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' && text[start] != '[' {
			continue
		}
		end := matchBracket(text, start)
		if end < 0 {
			continue
		}
		candidate := text[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}
	return "", false
}

// matchBracket returns the index of the bracket closing the one at start, or -1.
// Brackets inside JSON strings are ignored.
func matchBracket(text string, start int) int {
	var stack []byte
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}

// ParseJSON extracts and decodes a JSON document from model output into T.
// When T is a slice and the model wrapped the array in an object, the
// first array-valued field is used.
func ParseJSON[T any](text string) (T, error) {
	var out T
	raw, err := ExtractJSON(text)
	if err != nil {
		return out, err
	}

	err = json.Unmarshal([]byte(raw), &out)
	if err == nil {
		return out, nil
	}

	if reflect.TypeOf(out) != nil && reflect.TypeOf(out).Kind() == reflect.Slice && strings.HasPrefix(raw, "{") {
		var wrapper map[string]json.RawMessage
		if json.Unmarshal([]byte(raw), &wrapper) == nil {
			keys := make([]string, 0, len(wrapper))
			for k := range wrapper {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				v := strings.TrimSpace(string(wrapper[k]))
				if !strings.HasPrefix(v, "[") {
					continue
				}
				var inner T
				if json.Unmarshal([]byte(v), &inner) == nil {
					return inner, nil
				}
			}
		}
	}
	return out, fmt.Errorf("%w: %v", ErrNoParseableJSON, err)
}

// GenerateJSON asks the client for JSON and decodes it into T.
func GenerateJSON[T any](ctx context.Context, client Client, prompt string, opts GenerateOptions) (T, error) {
	var zero T
	opts.JSON = true
	text, err := client.GenerateText(ctx, prompt, opts)
	if err != nil {
		return zero, err
	}
	return ParseJSON[T](text)
}
