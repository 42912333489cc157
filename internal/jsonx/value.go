// Package jsonx holds helpers for values that cross between the string-only
// page store and the structured extension store.
package jsonx

import (
	"encoding/json"
	"fmt"
	"strings"
)

// LooksLikeJSON reports whether s is bracketed like a JSON object or array.
func LooksLikeJSON(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return false
	}
	return (s[0] == '{' && s[len(s)-1] == '}') || (s[0] == '[' && s[len(s)-1] == ']')
}

// Decode parses object- or array-shaped strings and returns everything else
// unchanged. Invalid JSON stays a string. Decode(Decode(v)) == Decode(v).
func Decode(v any) any {
	s, ok := v.(string)
	if !ok || !LooksLikeJSON(s) {
		return v
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return v
	}
	return out
}

// DecodeStrict is Decode that reports a bracketed string which fails to parse.
func DecodeStrict(v any) (any, error) {
	s, ok := v.(string)
	if !ok || !LooksLikeJSON(s) {
		return v, nil
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Encode renders v in string form: strings as they are, anything else as JSON.
func Encode(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode value: %w", err)
	}
	return string(b), nil
}

// Normalize round-trips v through JSON so typed structs become the generic
// map[string]any / []any / float64 form the stores hand back.
func Normalize(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool, float64, map[string]any, []any:
		return v, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Extract walks each dotted path through nested objects and returns the first
// non-nil value found. String values shaped like JSON are decoded on the way.
func Extract(v any, paths ...string) (any, bool) {
	for _, p := range paths {
		if got, ok := lookup(Decode(v), strings.Split(p, ".")); ok && got != nil {
			return got, true
		}
	}
	return nil, false
}

// ExtractString is Extract limited to non-empty string results.
func ExtractString(v any, paths ...string) string {
	for _, p := range paths {
		got, ok := Extract(v, p)
		if !ok {
			continue
		}
		if s, ok := got.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func lookup(v any, parts []string) (any, bool) {
	cur := v
	for _, part := range parts {
		m, ok := Decode(cur).(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
