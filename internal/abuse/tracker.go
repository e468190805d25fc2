// Package abuse tracks user reports against live connections and enforces
// the ban threshold. Counts are process-local and scoped to a connection's
// lifetime: a reported user who disconnects starts clean on reconnect, which
// matches the service's no-account anonymity model.
package abuse

import (
	"context"
	"log"
	"sync"

	"github.com/roulette/chat-app/internal/metrics"
)

// DefaultThreshold is the report count at which a connection is banned.
const DefaultThreshold = 3

// Recorder persists reports for offline review. Persistence is best effort;
// a Recorder failure never blocks the in-memory count or the ban decision.
type Recorder interface {
	Record(ctx context.Context, reporterID, targetID string) error
}

// Directory answers whether a connection id is currently live. Reports
// against ids that are not live are dropped.
type Directory interface {
	Exists(id string) bool
}

// Tracker accumulates per-connection report counts and fires the ban
// callback exactly once when a count reaches the threshold.
type Tracker struct {
	mu        sync.Mutex
	counts    map[string]int
	threshold int

	dir      Directory
	recorder Recorder       // optional
	onBan    func(id string)
}

// NewTracker creates a Tracker. threshold values below 1 fall back to
// DefaultThreshold. recorder may be nil. onBan is invoked outside the
// Tracker's lock, so it may call back into Report or Forget.
func NewTracker(threshold int, dir Directory, recorder Recorder, onBan func(id string)) *Tracker {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	return &Tracker{
		counts:    make(map[string]int),
		threshold: threshold,
		dir:       dir,
		recorder:  recorder,
		onBan:     onBan,
	}
}

// Report registers one report from reporterID against targetID. Reporter
// identity is not inspected: repeat reports and self-reports all count.
// Reports against unknown or already-removed targets are silently dropped.
// When the target's count reaches the threshold the ban callback fires,
// once; counts past the threshold never re-fire because the banned
// connection is removed from the directory before any later report can land.
func (t *Tracker) Report(ctx context.Context, reporterID, targetID string) {
	if targetID == "" {
		return
	}
	if !t.dir.Exists(targetID) {
		return
	}

	t.mu.Lock()
	t.counts[targetID]++
	count := t.counts[targetID]
	t.mu.Unlock()

	metrics.ReportsTotal.Inc()
	log.Printf("[abuse] report against %s by %s count=%d", targetID, reporterID, count)

	if t.recorder != nil {
		if err := t.recorder.Record(ctx, reporterID, targetID); err != nil {
			log.Printf("[abuse] report persistence failed: %v", err)
		}
	}

	if count == t.threshold && t.onBan != nil {
		metrics.BansTotal.Inc()
		log.Printf("[abuse] banning %s after %d reports", targetID, count)
		t.onBan(targetID)
	}
}

// Count returns the current report count for id.
func (t *Tracker) Count(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[id]
}

// Forget drops the report count for id. Called when the connection closes.
func (t *Tracker) Forget(id string) {
	t.mu.Lock()
	delete(t.counts, id)
	t.mu.Unlock()
}
