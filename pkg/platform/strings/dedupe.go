// Package strings holds small string-slice helpers shared by the HTTP layer.
package strings

import (
	"strings"
)

// DedupeAndTrim trims every element, drops empties, and keeps only the first
// occurrence of each value. Order of first occurrence is preserved. Repeated
// query parameters pass through this before they reach a store filter.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}

	return result
}
