package channels

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// maxTrackedKeys caps the number of tracked rate-limit keys to prevent
	// memory exhaustion from attackers rotating source IPs/keys.
	maxTrackedKeys = 4096

	// rateLimitWindow is the duration a key's budget refills over.
	rateLimitWindow = 60 * time.Second

	// rateLimitMaxHits is each key's burst size and the number of tokens it
	// regains per window.
	rateLimitMaxHits = 30
)

type rateLimitEntry struct {
	limiter    *rate.Limiter
	lastSeenAt time.Time
}

// WebhookRateLimiter bounds the number of tracked rate-limit keys to prevent
// memory exhaustion from rotating source keys (DoS), handing each key its
// own token-bucket limiter that refills at rateLimitMaxHits per
// rateLimitWindow. Safe for concurrent use.
type WebhookRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
}

// NewWebhookRateLimiter creates a bounded webhook rate limiter.
func NewWebhookRateLimiter() *WebhookRateLimiter {
	return &WebhookRateLimiter{entries: make(map[string]*rateLimitEntry)}
}

// Allow returns true if the key is within rate limits. Automatically prunes
// stale entries and enforces a hard cap on tracked keys.
func (r *WebhookRateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if len(r.entries) >= maxTrackedKeys {
		for k, e := range r.entries {
			if now.Sub(e.lastSeenAt) >= rateLimitWindow {
				delete(r.entries, k)
			}
		}
		for len(r.entries) >= maxTrackedKeys {
			for k := range r.entries {
				delete(r.entries, k)
				break
			}
		}
	}

	e, ok := r.entries[key]
	if !ok {
		e = &rateLimitEntry{limiter: rate.NewLimiter(rate.Every(rateLimitWindow/rateLimitMaxHits), rateLimitMaxHits)}
		r.entries[key] = e
	}
	e.lastSeenAt = now
	return e.limiter.Allow()
}
