package audit

import (
	"encoding/json"
	"maps"
	"net/url"
	"slices"
	"strings"
)

// RedactionMarker replaces the value of a sensitive query parameter. The key is kept
// so reviewers can see something was supplied.
const RedactionMarker = "[REDACTED]"

var sensitiveParams = []string{"password", "passwd", "token", "key", "secret", "credential", "auth", "ssn"}

// SanitizeQuery flattens query parameters, redacting sensitive names. Multiple values
// are joined with commas.
func SanitizeQuery(q url.Values) map[string]string {
	if len(q) == 0 {
		return nil
	}
	out := make(map[string]string, len(q))
	for name, values := range q {
		if isSensitiveParam(name) {
			out[name] = RedactionMarker
			continue
		}
		out[name] = strings.Join(values, ",")
	}
	return out
}

func isSensitiveParam(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range sensitiveParams {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// listKeys are the envelope attributes a paginated response may wrap its list in.
var listKeys = []string{"data", "items", "results"}

// RecordCount returns the number of records in a list-shaped JSON response: a top
// level array, or an object holding an array under data, items or results.
func RecordCount(body []byte) (int, bool) {
	if len(body) == 0 {
		return 0, false
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return 0, false
	}
	switch node := doc.(type) {
	case []any:
		return len(node), true
	case map[string]any:
		for _, key := range listKeys {
			if list, ok := node[key].([]any); ok {
				return len(list), true
			}
		}
	}
	return 0, false
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
