// Package notify fans fire events out to independent delivery channels.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"matchpulse/internal/model"
)

// Channel is one independent notification delivery mechanism.
type Channel interface {
	Name() string
	Enabled(f model.Filter) bool
	Deliver(ctx context.Context, ev model.FireEvent) error
}

// Dispatcher queues fire events off the evaluation critical path and
// delivers them to every enabled channel. A failure on one channel never
// blocks another, and never rolls back trigger state or counters.
type Dispatcher struct {
	queue    chan model.FireEvent
	channels []Channel
	log      *slog.Logger
	workers  int
	seen     *deliveryLog
}

// NewDispatcher creates a Dispatcher with a bounded queue. When the queue
// is full, Enqueue drops the event rather than delay the poll cycle.
func NewDispatcher(channels []Channel, queueSize, workers int, log *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if workers <= 0 {
		workers = 2
	}
	return &Dispatcher{
		queue:    make(chan model.FireEvent, queueSize),
		channels: channels,
		log:      log,
		workers:  workers,
		seen:     newDeliveryLog(),
	}
}

// Enqueue hands a fire event to the dispatch workers without blocking.
// It reports whether the event was accepted.
func (d *Dispatcher) Enqueue(ev model.FireEvent) bool {
	select {
	case d.queue <- ev:
		return true
	default:
		d.log.Warn("dispatch queue full, dropping event",
			"filter_id", ev.Filter.ID, "match_id", ev.Match.ID)
		return false
	}
}

// Run starts the dispatch workers, blocking until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-d.queue:
					d.dispatch(ctx, ev)
				}
			}
		}()
	}
	wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, ev model.FireEvent) {
	for _, ch := range d.channels {
		if !ch.Enabled(ev.Filter) {
			continue
		}
		key := ev.DeliveryID + "|" + ch.Name()
		if !d.seen.firstDelivery(key, ev.FiredAt) {
			continue
		}
		if err := ch.Deliver(ctx, ev); err != nil {
			// Forget the key so a caller-driven retry of the same event
			// can reach this channel again.
			d.seen.forget(key)
			d.log.Error("deliver notification",
				"channel", ch.Name(), "filter_id", ev.Filter.ID,
				"match_id", ev.Match.ID, "error", err)
			continue
		}
		d.log.Info("notification delivered",
			"channel", ch.Name(), "filter_id", ev.Filter.ID, "match_id", ev.Match.ID)
	}
}

const deliveryLogLimit = 8192

// deliveryLog remembers delivered event identities so that re-delivery of
// the same event is idempotent per channel.
type deliveryLog struct {
	mu   sync.Mutex
	keys map[string]time.Time
}

func newDeliveryLog() *deliveryLog {
	return &deliveryLog{keys: make(map[string]time.Time)}
}

// firstDelivery records the key and reports whether it was unseen.
func (l *deliveryLog) firstDelivery(key string, at time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.keys[key]; ok {
		return false
	}
	if len(l.keys) >= deliveryLogLimit {
		l.pruneOldestLocked()
	}
	l.keys[key] = at
	return true
}

func (l *deliveryLog) forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.keys, key)
}

func (l *deliveryLog) pruneOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for k, t := range l.keys {
		if oldestKey == "" || t.Before(oldest) {
			oldestKey, oldest = k, t
		}
	}
	if oldestKey != "" {
		delete(l.keys, oldestKey)
	}
}
