package guard

import (
	"context"
	"sync"
	"time"

	"github.com/attaboy/racegame/internal/domain"
)

// IdempotencyGuard remembers webhook event keys ("domain:event") so a retry
// that arrives while the first delivery is still running, or shortly after it
// succeeded, is answered without touching the store. The store's own
// settlement guard stays authoritative; this is only a fast path.
type IdempotencyGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewIdempotencyGuard creates a guard that forgets keys after ttl.
func NewIdempotencyGuard(ttl time.Duration) *IdempotencyGuard {
	return &IdempotencyGuard{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Check claims key. It is refused while an unexpired claim exists.
func (ig *IdempotencyGuard) Check(_ context.Context, key string) domain.GuardResult {
	if key == "" {
		return domain.GuardResult{Allowed: true}
	}

	ig.mu.Lock()
	defer ig.mu.Unlock()

	now := ig.now()
	ig.prune(now)
	if _, ok := ig.seen[key]; ok {
		return domain.GuardResult{
			Allowed: false,
			Reason:  "duplicate event: " + key,
			Guard:   "idempotency",
		}
	}
	ig.seen[key] = now
	return domain.GuardResult{Allowed: true}
}

// Release drops a claim so a failed delivery can be retried.
func (ig *IdempotencyGuard) Release(key string) {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	delete(ig.seen, key)
}

// Len reports the number of live claims.
func (ig *IdempotencyGuard) Len() int {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	ig.prune(ig.now())
	return len(ig.seen)
}

func (ig *IdempotencyGuard) prune(now time.Time) {
	for k, at := range ig.seen {
		if now.Sub(at) >= ig.ttl {
			delete(ig.seen, k)
		}
	}
}
