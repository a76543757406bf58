// Package scheduler drives the poll-evaluate-dispatch cycle.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"matchpulse/internal/condition"
	"matchpulse/internal/engine"
	"matchpulse/internal/model"
)

// LiveSource fetches the current live-match snapshot.
type LiveSource interface {
	FetchLiveMatches(ctx context.Context) ([]model.LiveMatch, error)
}

// FilterStore loads filters eligible for evaluation.
type FilterStore interface {
	ListActiveFilters(ctx context.Context) ([]model.Filter, error)
}

// Dispatcher accepts fire events for asynchronous delivery.
type Dispatcher interface {
	Enqueue(ev model.FireEvent) bool
}

// Aggregator records fire events into per-filter counters.
type Aggregator interface {
	RecordFire(ctx context.Context, ev model.FireEvent)
}

// Scheduler runs a fixed-interval cycle: fetch live matches, evaluate all
// active filters against them, advance trigger state, dispatch fire
// events, and aggregate stats. Cycles never overlap: if one is still
// running when the next tick is due, the tick is skipped.
type Scheduler struct {
	store      FilterStore
	source     LiveSource
	tracker    *engine.Tracker
	dispatcher Dispatcher
	stats      Aggregator
	log        *slog.Logger

	tick         time.Duration
	cycleTimeout time.Duration
	workers      int
	busy         atomic.Bool
}

// New creates a Scheduler with default interval, timeout, and parallelism.
func New(store FilterStore, source LiveSource, tracker *engine.Tracker, dispatcher Dispatcher, stats Aggregator, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:        store,
		source:       source,
		tracker:      tracker,
		dispatcher:   dispatcher,
		stats:        stats,
		log:          log,
		tick:         30 * time.Second,
		cycleTimeout: 25 * time.Second,
		workers:      4,
	}
}

// SetTickInterval overrides the default poll interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// SetCycleTimeout overrides the per-cycle deadline.
func (s *Scheduler) SetCycleTimeout(d time.Duration) {
	s.cycleTimeout = d
}

// SetWorkers overrides the evaluation worker count.
func (s *Scheduler) SetWorkers(n int) {
	if n > 0 {
		s.workers = n
	}
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.runCycle(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

type pair struct {
	filter model.Filter
	match  model.LiveMatch
}

type evaluation struct {
	pair
	result engine.Result
}

// runCycle executes one cycle. The evaluate phase is all-or-nothing: no
// trigger state is committed unless every evaluation finished within the
// deadline. Dispatch and counter writes happen after commit and are never
// rolled back.
func (s *Scheduler) runCycle(parent context.Context) {
	if !s.busy.CompareAndSwap(false, true) {
		s.log.Warn("previous cycle still running, skipping tick")
		return
	}
	defer s.busy.Store(false)

	ctx, cancel := context.WithTimeout(parent, s.cycleTimeout)
	defer cancel()

	started := time.Now()

	matches, err := s.source.FetchLiveMatches(ctx)
	if err != nil {
		s.log.Error("fetch live matches", "error", err)
		return
	}

	filters, err := s.store.ListActiveFilters(ctx)
	if err != nil {
		s.log.Error("list active filters", "error", err)
		return
	}

	evals, ok := s.evaluateAll(ctx, filters, matches)
	if !ok {
		s.log.Warn("cycle aborted before commit", "elapsed", time.Since(started))
		return
	}

	events := s.commit(evals)

	for _, ev := range events {
		s.stats.RecordFire(ctx, ev)
		if dispatchable(ev.Filter) {
			s.dispatcher.Enqueue(ev)
		}
	}

	evicted := s.tracker.Evict(liveIDs(matches))

	s.log.Debug("cycle complete",
		"matches", len(matches), "filters", len(filters),
		"fired", len(events), "evicted", evicted, "elapsed", time.Since(started))
}

// evaluateAll runs the pure evaluation phase across a worker pool. It
// reports ok=false when the cycle deadline expired before all pairs were
// evaluated, in which case nothing may be committed.
func (s *Scheduler) evaluateAll(ctx context.Context, filters []model.Filter, matches []model.LiveMatch) ([]evaluation, bool) {
	var pairs []pair
	for _, f := range filters {
		for _, m := range matches {
			if m.Status == model.StatusFinished {
				continue
			}
			pairs = append(pairs, pair{filter: f, match: m})
		}
	}
	if len(pairs) == 0 {
		return nil, ctx.Err() == nil
	}

	results := make([]*evaluation, len(pairs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	var skipped sync.Map
	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				p := pairs[i]
				res, err := engine.Evaluate(p.filter, p.match)
				if err != nil {
					// Malformed filter: skip it, keep the cycle going.
					if _, logged := skipped.LoadOrStore(p.filter.ID, true); !logged {
						s.log.Error("skip malformed filter", "filter_id", p.filter.ID, "error", err)
					}
					continue
				}
				results[i] = &evaluation{pair: p, result: res}
			}
		}()
	}

feed:
	for i := range pairs {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if ctx.Err() != nil {
		return nil, false
	}

	evals := make([]evaluation, 0, len(results))
	for _, r := range results {
		if r != nil {
			evals = append(evals, *r)
		}
	}
	return evals, true
}

// commit advances the trigger state machine for every evaluation, in a
// stable order, and collects the fire events produced by rising edges.
func (s *Scheduler) commit(evals []evaluation) []model.FireEvent {
	sort.Slice(evals, func(i, j int) bool {
		if evals[i].filter.ID != evals[j].filter.ID {
			return evals[i].filter.ID < evals[j].filter.ID
		}
		return evals[i].match.ID < evals[j].match.ID
	})

	now := time.Now().UTC()
	var events []model.FireEvent
	for _, e := range evals {
		fired := s.tracker.Advance(e.filter.ID, e.match.ID, e.result.Matched, now)
		if !fired {
			continue
		}
		events = append(events, model.FireEvent{
			Filter:     e.filter,
			Match:      e.match,
			Satisfied:  e.result.Satisfied,
			FiredAt:    now,
			DeliveryID: deliveryID(e.filter.ID, e.match.ID, now),
		})
	}
	return events
}

// dispatchable re-asserts the completeness gate before delivery. Storage
// writes are supposed to coerce the notification flags already; this is
// the engine's safety net against stale or bypassed rows.
func dispatchable(f model.Filter) bool {
	if !f.NotificationEnabled && !f.TelegramEnabled {
		return false
	}
	return condition.IsComplete(f.Conditions)
}

func deliveryID(filterID, matchID string, at time.Time) string {
	return filterID + "|" + matchID + "|" + at.Format(time.RFC3339)
}

func liveIDs(matches []model.LiveMatch) map[string]struct{} {
	ids := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if m.Status == model.StatusFinished {
			continue
		}
		ids[m.ID] = struct{}{}
	}
	return ids
}
