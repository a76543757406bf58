package condition

import (
	"sort"
	"strconv"
	"strings"

	"matchpulse/internal/model"
)

// DuplicateReason says which comparison flagged the duplicate.
type DuplicateReason string

// Duplicate reasons. Name equality is checked before condition equality.
const (
	DuplicateName       DuplicateReason = "name"
	DuplicateConditions DuplicateReason = "conditions"
)

// DuplicateResult reports whether a candidate filter duplicates an existing
// one and, if so, which filter it conflicts with and why.
type DuplicateResult struct {
	IsDuplicate bool            `json:"is_duplicate"`
	Reason      DuplicateReason `json:"reason,omitempty"`
	ConflictID  string          `json:"conflict_id,omitempty"`
}

// NormalizeName canonicalizes a filter name for comparison: trimmed,
// case-folded, inner whitespace collapsed.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(name))), " ")
}

// CanonicalKey builds a stable comparison key for a condition set: entries
// sorted by field then mode, bounds rendered numerically so that "2" and
// "2.0" compare equal.
func CanonicalKey(conds []model.Condition) string {
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		parts = append(parts, string(c.Field)+"/"+string(c.Mode)+"/"+boundKey(c.Min)+"/"+boundKey(c.Max))
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

func boundKey(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

// CheckDuplicate compares a candidate against the caller's existing filters.
// Only same-owner filters should be passed in; cross-user duplicates are
// permitted. A filter never conflicts with itself, so updates can pass the
// candidate's own stored row in the existing slice.
func CheckDuplicate(candidate model.Filter, existing []model.Filter) DuplicateResult {
	name := NormalizeName(candidate.Name)
	key := CanonicalKey(candidate.Conditions)

	for _, f := range existing {
		if f.ID == candidate.ID {
			continue
		}
		if NormalizeName(f.Name) == name {
			return DuplicateResult{IsDuplicate: true, Reason: DuplicateName, ConflictID: f.ID}
		}
		if CanonicalKey(f.Conditions) == key {
			return DuplicateResult{IsDuplicate: true, Reason: DuplicateConditions, ConflictID: f.ID}
		}
	}
	return DuplicateResult{}
}
