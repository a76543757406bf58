// Package model defines the domain types used across the application.
package model

import "time"

// StatField identifies a live-match statistic a condition can reference.
type StatField string

// Recognized statistic fields. The set is closed: conditions referencing
// anything else are rejected by validation.
const (
	FieldMinute           StatField = "minute"
	FieldGoalDifferential StatField = "goal_differential"
	FieldTotalGoals       StatField = "total_goals"
	FieldShotsOnTarget    StatField = "shots_on_target"
	FieldShotsTotal       StatField = "shots_total"
	FieldCorners          StatField = "corners"
	FieldYellowCards      StatField = "yellow_cards"
	FieldRedCards         StatField = "red_cards"
	FieldPossessionHome   StatField = "possession_home"
	FieldPossessionAway   StatField = "possession_away"
	FieldOddsHome         StatField = "odds_home"
	FieldOddsDraw         StatField = "odds_draw"
	FieldOddsAway         StatField = "odds_away"
)

// KnownFields returns the full set of recognized statistic fields.
func KnownFields() []StatField {
	return []StatField{
		FieldMinute, FieldGoalDifferential, FieldTotalGoals,
		FieldShotsOnTarget, FieldShotsTotal, FieldCorners,
		FieldYellowCards, FieldRedCards,
		FieldPossessionHome, FieldPossessionAway,
		FieldOddsHome, FieldOddsDraw, FieldOddsAway,
	}
}

// IsKnownField reports whether f is one of the recognized statistic fields.
func IsKnownField(f StatField) bool {
	for _, k := range KnownFields() {
		if f == k {
			return true
		}
	}
	return false
}

// ComparisonMode defines how a condition compares a statistic to its bounds.
type ComparisonMode string

// Supported comparison modes.
const (
	CompareBetween ComparisonMode = "between"
	CompareAtLeast ComparisonMode = "at_least"
	CompareAtMost  ComparisonMode = "at_most"
	CompareEquals  ComparisonMode = "equals"
)

// Condition is one bounded comparison clause within a filter.
// Bounds are optional; a condition with neither bound is incomplete.
type Condition struct {
	Field StatField      `json:"field"`
	Min   *float64       `json:"min,omitempty"`
	Max   *float64       `json:"max,omitempty"`
	Mode  ComparisonMode `json:"mode"`
}

// HasBound reports whether at least one bound is set.
func (c Condition) HasBound() bool {
	return c.Min != nil || c.Max != nil
}

// Filter is a user-owned, named predicate over live match statistics.
// Conditions combine with logical AND.
type Filter struct {
	ID                  string      `json:"id"`
	UserID              string      `json:"user_id"`
	Name                string      `json:"name"`
	Description         string      `json:"description,omitempty"`
	Conditions          []Condition `json:"conditions"`
	IsActive            bool        `json:"is_active"`
	IsShared            bool        `json:"is_shared"`
	NotificationEnabled bool        `json:"notification_enabled"`
	TelegramEnabled     bool        `json:"telegram_enabled"`
	TriggerCount        int64       `json:"trigger_count"`
	SuccessRate         *float64    `json:"success_rate"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// MatchStatus is the lifecycle state of a live match.
type MatchStatus string

// Supported match statuses.
const (
	StatusScheduled MatchStatus = "scheduled"
	StatusLive      MatchStatus = "live"
	StatusFinished  MatchStatus = "finished"
)

// LiveMatch is a read-only snapshot from the live-data collaborator.
type LiveMatch struct {
	ID        string                `json:"id"`
	HomeTeam  string                `json:"home_team"`
	AwayTeam  string                `json:"away_team"`
	Status    MatchStatus           `json:"status"`
	Minute    int                   `json:"minute"`
	HomeScore int                   `json:"home_score"`
	AwayScore int                   `json:"away_score"`
	Stats     map[StatField]float64 `json:"stats"`
}

// Stat looks up a statistic by field, reporting whether it is present.
func (m *LiveMatch) Stat(f StatField) (float64, bool) {
	v, ok := m.Stats[f]
	return v, ok
}

// FireEvent is emitted when a filter transitions from not-satisfied to
// satisfied for a specific match.
type FireEvent struct {
	Filter     Filter
	Match      LiveMatch
	Satisfied  []Condition
	FiredAt    time.Time
	DeliveryID string
}

// Notification is a delivered in-app alert, persisted for later listing.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	FilterID  string    `json:"filter_id"`
	MatchID   string    `json:"match_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
