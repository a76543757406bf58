package engine

import (
	"context"
	"log/slog"

	"matchpulse/internal/model"
)

// CounterStore is the slice of persistence the aggregator needs.
type CounterStore interface {
	IncrementTriggerCount(ctx context.Context, filterID string) (int64, error)
	RecordOutcome(ctx context.Context, filterID string, won bool) (float64, error)
}

// Aggregator folds fire events and outcome signals into per-filter
// counters. Counter write failures are logged and dropped: the
// notification has already been sent, so losing an increment beats
// re-notifying.
type Aggregator struct {
	store CounterStore
	log   *slog.Logger
}

// NewAggregator creates an Aggregator backed by the given store.
func NewAggregator(store CounterStore, log *slog.Logger) *Aggregator {
	return &Aggregator{store: store, log: log}
}

// RecordFire increments the filter's trigger count for one fire event.
func (a *Aggregator) RecordFire(ctx context.Context, ev model.FireEvent) {
	n, err := a.store.IncrementTriggerCount(ctx, ev.Filter.ID)
	if err != nil {
		a.log.Error("increment trigger count",
			"filter_id", ev.Filter.ID, "match_id", ev.Match.ID, "error", err)
		return
	}
	a.log.Debug("trigger recorded", "filter_id", ev.Filter.ID, "trigger_count", n)
}

// RecordOutcome folds one resolved outcome into the filter's success rate.
// The outcome signal comes from outside the engine; without one the rate
// is simply never touched.
func (a *Aggregator) RecordOutcome(ctx context.Context, filterID string, won bool) (float64, error) {
	rate, err := a.store.RecordOutcome(ctx, filterID, won)
	if err != nil {
		a.log.Error("record outcome", "filter_id", filterID, "error", err)
		return 0, err
	}
	return rate, nil
}
