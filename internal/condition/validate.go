// Package condition implements validation, completeness gating, and
// duplicate detection for filter condition sets.
package condition

import (
	"encoding/json"
	"fmt"
	"math"

	"matchpulse/internal/model"
)

// RawCondition is the untrusted wire shape of a condition. It becomes a
// model.Condition only by passing through Validate.
type RawCondition struct {
	Field string          `json:"field"`
	Min   json.RawMessage `json:"min,omitempty"`
	Max   json.RawMessage `json:"max,omitempty"`
	Mode  string          `json:"mode,omitempty"`
}

// ValidationResult is the complete outcome of validating a condition set.
// Errors reject the set; warnings flag exotic-but-legal shapes.
type ValidationResult struct {
	IsValid    bool              `json:"is_valid"`
	Errors     []string          `json:"errors"`
	Warnings   []string          `json:"warnings"`
	Conditions []model.Condition `json:"-"`
}

// Validate checks the shape and ranges of a raw condition set. It collects
// every error and warning rather than stopping at the first, and returns
// the typed conditions when the set is valid.
func Validate(raw []RawCondition) ValidationResult {
	res := ValidationResult{
		Errors:   []string{},
		Warnings: []string{},
	}

	if len(raw) == 0 {
		res.Errors = append(res.Errors, "condition set must not be empty")
		return res
	}

	conds := make([]model.Condition, 0, len(raw))
	for i, rc := range raw {
		c, errs, warns := validateOne(i, rc)
		res.Errors = append(res.Errors, errs...)
		res.Warnings = append(res.Warnings, warns...)
		conds = append(conds, c)
	}

	if len(res.Errors) == 0 {
		res.IsValid = true
		res.Conditions = conds
	}
	return res
}

func validateOne(i int, rc RawCondition) (model.Condition, []string, []string) {
	var errs, warns []string
	c := model.Condition{Field: model.StatField(rc.Field)}

	if rc.Field == "" {
		errs = append(errs, fmt.Sprintf("condition %d: field is required", i))
	} else if !model.IsKnownField(c.Field) {
		errs = append(errs, fmt.Sprintf("condition %d: unknown field %q", i, rc.Field))
	}

	min, err := parseBound(rc.Min)
	if err != nil {
		errs = append(errs, fmt.Sprintf("condition %d: min %v", i, err))
	}
	max, err := parseBound(rc.Max)
	if err != nil {
		errs = append(errs, fmt.Sprintf("condition %d: max %v", i, err))
	}
	c.Min, c.Max = min, max

	if min != nil && max != nil && *min > *max {
		errs = append(errs, fmt.Sprintf("condition %d: min %g exceeds max %g", i, *min, *max))
	}

	c.Mode = model.ComparisonMode(rc.Mode)
	switch c.Mode {
	case "":
		c.Mode = inferMode(min, max)
	case model.CompareBetween:
		if min == nil || max == nil {
			warns = append(warns, fmt.Sprintf("condition %d: mode %q with a single bound", i, rc.Mode))
		}
	case model.CompareAtLeast:
		if min == nil {
			warns = append(warns, fmt.Sprintf("condition %d: mode %q without a min bound", i, rc.Mode))
		}
	case model.CompareAtMost:
		if max == nil {
			warns = append(warns, fmt.Sprintf("condition %d: mode %q without a max bound", i, rc.Mode))
		}
	case model.CompareEquals:
		if min == nil {
			warns = append(warns, fmt.Sprintf("condition %d: mode %q without a target value", i, rc.Mode))
		}
	default:
		errs = append(errs, fmt.Sprintf("condition %d: unknown comparison mode %q", i, rc.Mode))
	}

	if !c.HasBound() {
		warns = append(warns, fmt.Sprintf("condition %d: no bounds set, condition is incomplete", i))
	}

	return c, errs, warns
}

func parseBound(raw json.RawMessage) (*float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("is not a number: %s", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("is not finite")
	}
	return &v, nil
}

func inferMode(min, max *float64) model.ComparisonMode {
	switch {
	case min != nil && max != nil:
		return model.CompareBetween
	case min != nil:
		return model.CompareAtLeast
	default:
		return model.CompareAtMost
	}
}

// IsComplete reports whether every condition has at least one bound.
// An empty set is not complete: there is nothing to notify on.
// Completeness gates notification delivery, it does not validate.
func IsComplete(conds []model.Condition) bool {
	if len(conds) == 0 {
		return false
	}
	for _, c := range conds {
		if !c.HasBound() {
			return false
		}
	}
	return true
}
