package whatsapp

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"whatsapp-api-gateway/types"
)

// Category is a rate-limited request class with its own policy.
type Category string

const (
	CategoryGeneral  Category = "general"
	CategorySend     Category = "send"
	CategoryBulkSend Category = "bulk-send"
	CategoryQR       Category = "qr"
)

type limitPolicy struct {
	window time.Duration
	limit  int
}

var policies = map[Category]limitPolicy{
	CategoryGeneral:  {window: 15 * time.Minute, limit: 100},
	CategorySend:     {window: time.Minute, limit: 10},
	CategoryBulkSend: {window: 5 * time.Minute, limit: 1},
	CategoryQR:       {window: 30 * time.Second, limit: 5},
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is the admission gate in front of the dispatch core. Each
// (category, identity) pair gets a token bucket sized to the category's
// window policy: burst equals the window limit, tokens refill continuously
// at limit/window. A burst admits exactly the limit; spread traffic earns
// tokens back as the window elapses instead of resetting on a fixed edge.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[Category]map[string]*visitor
	now      func() time.Time
}

func NewRateLimiter() *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[Category]map[string]*visitor),
		now:      time.Now,
	}
	for cat := range policies {
		rl.visitors[cat] = make(map[string]*visitor)
	}
	return rl
}

// Admit returns nil when the request may proceed, or a RateLimitedError with
// a retry-after hint equal to the category's window length.
func (rl *RateLimiter) Admit(cat Category, identity string) error {
	policy, ok := policies[cat]
	if !ok {
		return nil
	}

	rl.mu.Lock()
	v, exists := rl.visitors[cat][identity]
	if !exists {
		v = &visitor{
			limiter: rate.NewLimiter(rate.Limit(float64(policy.limit)/policy.window.Seconds()), policy.limit),
		}
		rl.visitors[cat][identity] = v
	}
	v.lastSeen = rl.now()
	rl.mu.Unlock()

	if !v.limiter.Allow() {
		return &types.RateLimitedError{Category: string(cat), RetryAfter: policy.window}
	}
	return nil
}

// StartCleanup evicts visitors idle for longer than their window so the map
// does not grow without bound.
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.cleanupStaleVisitors()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (rl *RateLimiter) cleanupStaleVisitors() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for cat, byIdentity := range rl.visitors {
		ttl := 2 * policies[cat].window
		for identity, v := range byIdentity {
			if now.Sub(v.lastSeen) > ttl {
				delete(byIdentity, identity)
			}
		}
	}
}
