// Package moderation provides content screening for relayed chat text. A
// cheap, always-available local pre-filter runs first; an optional external
// classifier (local filter or remote service) is consulted only when the
// pre-filter finds nothing. Classifier failures fail open: chat availability
// is prioritized over completeness of moderation. This is a known,
// deliberate gap rather than an accident.
package moderation

import (
	"context"
	"log"
	"time"

	"github.com/roulette/chat-app/internal/metrics"
)

// Verdict is the outcome of a moderation check.
type Verdict struct {
	Flagged bool
	Reason  string
}

// Classifier is a pluggable text classification capability. Implementations
// include the in-process Filter and a remote service consulted over NATS.
type Classifier interface {
	Classify(ctx context.Context, text string) (Verdict, error)
}

// DefaultTimeout bounds how long a Check waits on the classifier before
// failing open.
const DefaultTimeout = 2 * time.Second

// Gate composes the local blacklist pre-filter with an optional classifier.
type Gate struct {
	blacklist  *Blacklist
	classifier Classifier // nil when no classifier is configured
	timeout    time.Duration
}

// NewGate creates a Gate with the default blacklist. classifier may be nil,
// in which case only the pre-filter applies. A non-positive timeout falls
// back to DefaultTimeout.
func NewGate(classifier Classifier, timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gate{
		blacklist:  DefaultBlacklist(),
		classifier: classifier,
		timeout:    timeout,
	}
}

// Check screens text and returns a Verdict. The deterministic blacklist
// substring match runs first and has no failure mode. If it does not flag
// and a classifier is configured, the classifier is consulted with a bounded
// timeout; on any classifier error the gate fails open and the text passes.
func (g *Gate) Check(ctx context.Context, text string) Verdict {
	start := time.Now()
	defer func() {
		metrics.ModerationLatency.Observe(time.Since(start).Seconds())
	}()

	if term, hit := g.blacklist.Match(text); hit {
		log.Printf("[moderation] blacklist hit term=%q", term)
		return Verdict{Flagged: true, Reason: "inappropriate keyword detected"}
	}

	if g.classifier == nil {
		return Verdict{}
	}

	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	verdict, err := g.classifier.Classify(cctx, text)
	if err != nil {
		// Fail open: availability over enforcement.
		log.Printf("[moderation] classifier error (failing open): %v", err)
		return Verdict{}
	}
	return verdict
}
