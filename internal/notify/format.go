package notify

import (
	"fmt"
	"strings"

	"matchpulse/internal/model"
)

// FormatFireMessage formats a fire event as a user-facing alert message.
func FormatFireMessage(ev model.FireEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n\n", ev.Filter.Name)
	fmt.Fprintf(&b, "%s %d:%d %s", ev.Match.HomeTeam, ev.Match.HomeScore, ev.Match.AwayScore, ev.Match.AwayTeam)
	if ev.Match.Minute > 0 {
		fmt.Fprintf(&b, " (%d')", ev.Match.Minute)
	}
	if len(ev.Satisfied) > 0 {
		b.WriteString("\n")
		for _, c := range ev.Satisfied {
			fmt.Fprintf(&b, "\n%s", formatCondition(c, ev.Match))
		}
	}
	return b.String()
}

func formatCondition(c model.Condition, m model.LiveMatch) string {
	v, ok := m.Stat(c.Field)
	label := strings.ReplaceAll(string(c.Field), "_", " ")
	if !ok {
		return label
	}
	switch c.Mode {
	case model.CompareBetween:
		return fmt.Sprintf("%s: %g (within %s..%s)", label, v, boundLabel(c.Min), boundLabel(c.Max))
	case model.CompareAtLeast:
		return fmt.Sprintf("%s: %g (reached %s)", label, v, boundLabel(c.Min))
	case model.CompareAtMost:
		return fmt.Sprintf("%s: %g (at most %s)", label, v, boundLabel(c.Max))
	case model.CompareEquals:
		return fmt.Sprintf("%s: %g", label, v)
	}
	return label
}

func boundLabel(v *float64) string {
	if v == nil {
		return "?"
	}
	return fmt.Sprintf("%g", *v)
}
