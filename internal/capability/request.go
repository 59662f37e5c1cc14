package capability

import (
	"math"
	"strings"
	"unicode/utf8"
)

// String returns the string at key, or "" when absent or not a string.
func (r Request) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Int returns the number at key, or def.
func (r Request) Int(key string, def int) int {
	switch v := r[key].(type) {
	case float64:
		return int(math.Round(v))
	case int:
		return v
	case int64:
		return int(v)
	}
	return def
}

// Map returns the object at key, or nil.
func (r Request) Map(key string) map[string]any {
	m, _ := r[key].(map[string]any)
	return m
}

// requireString returns the non-blank string at key.
func (r Request) requireString(capability string, example Request, key string) (string, error) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", invalid(capability, example, "%s is required", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", invalid(capability, example, "%s must be a string", key)
	}
	if strings.TrimSpace(s) == "" {
		return "", invalid(capability, example, "%s is required", key)
	}
	return s, nil
}

// stringList returns the string list at key. Absent means empty; any other
// type is a validation error.
func (r Request) stringList(capability string, example Request, key string) ([]string, error) {
	v, ok := r[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, invalid(capability, example, "%s[%d] must be a string", key, i)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, invalid(capability, example, "%s must be an array", key)
}

// truncate shortens s to n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
