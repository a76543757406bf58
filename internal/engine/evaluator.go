// Package engine implements filter evaluation against live-match snapshots
// and the per-(filter, match) trigger state machine.
package engine

import (
	"fmt"
	"math"

	"matchpulse/internal/model"
)

const equalsTolerance = 1e-9

// Result is the outcome of evaluating one filter against one match.
// Satisfied lists the conditions that held individually; Matched is true
// only when all of them held.
type Result struct {
	Matched   bool
	Satisfied []model.Condition
}

// Evaluate applies a filter's condition set to a match snapshot. It is a
// pure function of its arguments: no state, no mutation, safe to call
// concurrently. A statistic absent from the snapshot makes its condition
// false, not an error. An error is returned only for a malformed filter
// (empty field, unrecognized comparison mode), which the caller should
// skip and log rather than let abort the cycle.
func Evaluate(f model.Filter, m model.LiveMatch) (Result, error) {
	if len(f.Conditions) == 0 {
		return Result{}, fmt.Errorf("filter %s has no conditions", f.ID)
	}

	res := Result{Matched: true}
	for _, c := range f.Conditions {
		if c.Field == "" {
			return Result{}, fmt.Errorf("filter %s: condition has empty field", f.ID)
		}
		switch c.Mode {
		case model.CompareBetween, model.CompareAtLeast, model.CompareAtMost, model.CompareEquals:
		default:
			return Result{}, fmt.Errorf("filter %s: unknown comparison mode %q", f.ID, c.Mode)
		}

		v, ok := m.Stat(c.Field)
		if !ok || !conditionHolds(c, v) {
			res.Matched = false
			continue
		}
		res.Satisfied = append(res.Satisfied, c)
	}

	if !res.Matched {
		return Result{Satisfied: res.Satisfied}, nil
	}
	return res, nil
}

func conditionHolds(c model.Condition, v float64) bool {
	switch c.Mode {
	case model.CompareBetween:
		if c.Min != nil && v < *c.Min {
			return false
		}
		if c.Max != nil && v > *c.Max {
			return false
		}
		return c.HasBound()
	case model.CompareAtLeast:
		return c.Min != nil && v >= *c.Min
	case model.CompareAtMost:
		return c.Max != nil && v <= *c.Max
	case model.CompareEquals:
		return c.Min != nil && math.Abs(v-*c.Min) <= equalsTolerance
	}
	return false
}
