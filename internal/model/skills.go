package model

import "strings"

func normalizeSkill(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// CleanSkills trims, drops empties and de-duplicates a skill list while
// keeping the caller's order and spelling of the first occurrence.
func CleanSkills(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		k := normalizeSkill(s)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}
