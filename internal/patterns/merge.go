package patterns

import (
	"sort"

	"github.com/automend/automend/internal/database"
)

// Merge collapses patterns describing the same underlying condition into one.
// Patterns are grouped by (type, sorted affected entities); within a group
// occurrence counts are summed, the detection time range is widened to the
// union, and the maximum severity observed wins. The result is independent of
// input order, and merging an already-merged set is a no-op.
func Merge(input []Pattern) []Pattern {
	if len(input) == 0 {
		return nil
	}

	groups := make(map[string]*Pattern)
	var order []string

	for _, p := range input {
		key := p.GroupKey()
		existing, ok := groups[key]
		if !ok {
			merged := p
			merged.AffectedEntities = append([]string(nil), p.AffectedEntities...)
			sort.Strings(merged.AffectedEntities)
			merged.SuggestedActions = append([]string(nil), p.SuggestedActions...)
			groups[key] = &merged
			order = append(order, key)
			continue
		}

		existing.Occurrences += p.Occurrences
		if database.SeverityRank(p.Severity) > database.SeverityRank(existing.Severity) {
			existing.Severity = p.Severity
		}
		if p.FirstDetectedAt.Before(existing.FirstDetectedAt) {
			existing.FirstDetectedAt = p.FirstDetectedAt
		}
		if p.LastDetectedAt.After(existing.LastDetectedAt) {
			existing.LastDetectedAt = p.LastDetectedAt
		}
		existing.SuggestedActions = unionStrings(existing.SuggestedActions, p.SuggestedActions)
	}

	// Deterministic output regardless of input order
	sort.Strings(order)

	result := make([]Pattern, 0, len(order))
	for _, key := range order {
		result = append(result, *groups[key])
	}
	return result
}

// unionStrings appends the elements of b missing from a, preserving a's order
func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			a = append(a, s)
			seen[s] = true
		}
	}
	return a
}
