// Package ratelimit provides Redis-backed rate limiting using the INCR +
// EXPIRE fixed-window algorithm. The server runs fine without it; when no
// Redis endpoint is configured the limiter is simply not wired and every
// action is allowed.
package ratelimit

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule defines a rate limiting policy: the Redis key prefix, maximum number
// of actions allowed in the window, and the window duration.
type Rule struct {
	Key    string        // Redis key prefix (e.g., "rl:msg:")
	Limit  int           // max count in the window
	Window time.Duration // time window
}

var (
	// RuleMessage allows 5 chat messages per 10 seconds per connection.
	RuleMessage = Rule{Key: "rl:msg:", Limit: 5, Window: 10 * time.Second}

	// RuleSkip allows 10 partner skips per minute per connection, to keep a
	// client from churning through the waiting pool.
	RuleSkip = Rule{Key: "rl:skip:", Limit: 10, Window: 1 * time.Minute}
)

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client *redis.Client
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Allow checks whether the given identifier is within the rate limit defined
// by rule. It increments the counter in Redis and sets the expiry on first
// access. When the identifier is limited, retryAfter holds the remaining
// window so the client can be told when to try again.
//
// On Redis errors the method fails open (returns allowed) so that a Redis
// outage does not block legitimate traffic.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) (allowed bool, retryAfter time.Duration, err error) {
	key := rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[ratelimit] redis INCR error key=%s: %v (failing open)", key, err)
		return true, 0, err
	}

	// On the first increment, set the expiry to define the window boundary.
	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			log.Printf("[ratelimit] redis EXPIRE error key=%s: %v (failing open)", key, err)
			// The key exists but has no TTL. Best effort: delete it so it
			// does not block the identifier forever.
			l.client.Del(ctx, key)
			return true, 0, err
		}
	}

	if int(count) > rule.Limit {
		ttl, err := l.client.TTL(ctx, key).Result()
		if err != nil || ttl < 0 {
			ttl = rule.Window
		}
		return false, ttl, nil
	}

	return true, 0, nil
}

// ForRule binds a Limiter to one rule, yielding the per-identifier Allow
// shape the relay expects.
func (l *Limiter) ForRule(rule Rule) *RuleLimiter {
	return &RuleLimiter{limiter: l, rule: rule}
}

// RuleLimiter is a Limiter bound to a single Rule.
type RuleLimiter struct {
	limiter *Limiter
	rule    Rule
}

// Allow checks the bound rule for identifier.
func (r *RuleLimiter) Allow(ctx context.Context, identifier string) (bool, time.Duration, error) {
	return r.limiter.Allow(ctx, identifier, r.rule)
}
