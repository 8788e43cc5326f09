package audit

import (
	"encoding/json"
	"strconv"
	"strings"

	pstrings "phiguard/pkg/platform/strings"
)

// MaxScanDepth bounds the recursive body scan.
const MaxScanDepth = 10

// Policy holds the externally configured PHI detection data. Matching is
// case-insensitive substring matching against SensitiveFields, which will over-match
// (e.g. "emailPreference" matches "email"); the dictionary is data, tune it there.
type Policy struct {
	phiPrefixes     []string
	sensitiveFields []string
}

// NewPolicy normalises the configured prefixes and field dictionary.
func NewPolicy(phiPrefixes, sensitiveFields []string) Policy {
	return Policy{
		phiPrefixes:     pstrings.DedupeAndTrim(phiPrefixes),
		sensitiveFields: pstrings.DedupeAndTrimLower(sensitiveFields),
	}
}

// IsPHIPath reports whether path falls under a configured PHI-bearing prefix.
func (p Policy) IsPHIPath(path string) bool {
	for _, prefix := range p.phiPrefixes {
		trimmed := strings.TrimSuffix(prefix, "/")
		if path == trimmed || strings.HasPrefix(path, trimmed+"/") {
			return true
		}
	}
	return false
}

// IsSensitiveName reports whether a single attribute name matches the dictionary.
func (p Policy) IsSensitiveName(name string) bool {
	lower := strings.ToLower(name)
	for _, field := range p.sensitiveFields {
		if strings.Contains(lower, field) {
			return true
		}
	}
	return false
}

// DetectSensitiveFields returns the dotted paths of every attribute in body whose name
// matches the dictionary. Array elements are addressed as items[0].ssn. Bodies that
// are empty, malformed or not JSON objects/arrays yield nil.
func (p Policy) DetectSensitiveFields(body []byte) []string {
	if len(body) == 0 || len(p.sensitiveFields) == 0 {
		return nil
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil
	}
	var found []string
	p.scan(doc, "", 0, &found)
	return found
}

func (p Policy) scan(v any, prefix string, depth int, found *[]string) {
	if depth >= MaxScanDepth {
		return
	}
	switch node := v.(type) {
	case map[string]any:
		for _, key := range sortedKeys(node) {
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			if p.IsSensitiveName(key) {
				*found = append(*found, path)
			}
			p.scan(node[key], path, depth+1, found)
		}
	case []any:
		for i, item := range node {
			p.scan(item, prefix+"["+strconv.Itoa(i)+"]", depth+1, found)
		}
	}
}
