// Package tags converts between the comma-delimited tag string stored on a
// job record and an ordered tag list. The delimited string is the stable
// wire/storage format; the list form exists only for manipulation.
package tags

import "strings"

// Parse splits a comma-delimited tag string, trimming whitespace and
// dropping empty segments. Order is preserved, duplicates are kept as-is.
func Parse(csv string) []string {
	if csv == "" {
		return []string{}
	}
	res := []string{}
	for _, tag := range strings.Split(csv, ",") {
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			res = append(res, trimmed)
		}
	}
	return res
}

// Join trims each tag, drops empties, de-duplicates keeping the first
// occurrence, and joins with commas. Join(Parse(x)) is a fixpoint even when
// x carries duplicate or malformed entries.
func Join(list []string) string {
	seen := map[string]bool{}
	res := make([]string, 0, len(list))
	for _, tag := range list {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" || seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		res = append(res, trimmed)
	}
	return strings.Join(res, ",")
}
