package engine

import (
	"hash/fnv"
	"sync"
	"time"
)

// State is the trigger state of one (filter, match) pair.
type State uint8

// Trigger states. There is no stored "closed" state: closing a pair
// evicts its record, so a reused match ID starts over from idle.
const (
	StateIdle State = iota
	StateFired
)

const trackerShards = 16

// Tracker is the per-(filter, match) trigger state machine. It turns
// repeated "true" evaluations into a single fire per rising edge: a pair
// fires when its evaluation goes from false (or unseen) to true, re-arms
// when it goes back to false, and is evicted when its match leaves the
// live feed. The map is sharded so that evaluation workers touching
// disjoint pairs rarely contend.
type Tracker struct {
	shards [trackerShards]trackerShard
}

type trackerShard struct {
	mu   sync.Mutex
	recs map[string]*triggerRecord
}

type triggerRecord struct {
	matchID    string
	state      State
	firstFired time.Time
	lastSeen   time.Time
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	t := &Tracker{}
	for i := range t.shards {
		t.shards[i].recs = make(map[string]*triggerRecord)
	}
	return t
}

func (t *Tracker) shard(key string) *trackerShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &t.shards[h.Sum32()%trackerShards]
}

func pairKey(filterID, matchID string) string {
	return filterID + "|" + matchID
}

// Advance commits one evaluation outcome for a pair and reports whether
// it produced a fire (a rising edge). The record is created on first
// sight of the pair.
func (t *Tracker) Advance(filterID, matchID string, satisfied bool, now time.Time) bool {
	key := pairKey(filterID, matchID)
	s := t.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[key]
	if !ok {
		rec = &triggerRecord{matchID: matchID}
		s.recs[key] = rec
	}
	rec.lastSeen = now

	switch {
	case satisfied && rec.state == StateIdle:
		rec.state = StateFired
		if rec.firstFired.IsZero() {
			rec.firstFired = now
		}
		return true
	case !satisfied && rec.state == StateFired:
		// Falling edge re-arms the pair so a later rising edge fires again.
		rec.state = StateIdle
	}
	return false
}

// Lookup returns the current state of a pair and whether it is tracked.
func (t *Tracker) Lookup(filterID, matchID string) (State, bool) {
	key := pairKey(filterID, matchID)
	s := t.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[key]
	if !ok {
		return StateIdle, false
	}
	return rec.state, true
}

// Evict removes every record whose match is no longer in the live set,
// returning how many were closed. Each shard is swept under its own lock.
func (t *Tracker) Evict(liveMatchIDs map[string]struct{}) int {
	evicted := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for key, rec := range s.recs {
			if _, live := liveMatchIDs[rec.matchID]; !live {
				delete(s.recs, key)
				evicted++
			}
		}
		s.mu.Unlock()
	}
	return evicted
}

// Len returns the number of tracked pairs.
func (t *Tracker) Len() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		n += len(s.recs)
		s.mu.Unlock()
	}
	return n
}
