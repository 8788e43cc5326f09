// Package strings provides list normalisation used by configuration parsing.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
//
//	DedupeAndTrim([]string{"  /api/clients ", "/api/notes", "/api/clients"})
//	// []string{"/api/clients", "/api/notes"}
func DedupeAndTrim(values []string) []string {
	return normalise(values, strings.TrimSpace)
}

// DedupeAndTrimLower is like DedupeAndTrim but also lowercases each element,
// which is what case-insensitive dictionaries (sensitive field names) need.
func DedupeAndTrimLower(values []string) []string {
	return normalise(values, func(v string) string {
		return strings.ToLower(strings.TrimSpace(v))
	})
}

// SplitList parses a comma-separated setting into a trimmed, deduplicated list.
// An empty input yields nil so callers can fall back to defaults.
func SplitList(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	return DedupeAndTrim(strings.Split(csv, ","))
}

func normalise(values []string, fn func(string) string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = fn(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
