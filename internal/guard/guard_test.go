package guard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// --- RateLimiter Tests ---

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result := rl.Check(ctx, "10.0.0.1")
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	ctx := context.Background()

	rl.Check(ctx, "10.0.0.1")
	rl.Check(ctx, "10.0.0.1")
	result := rl.Check(ctx, "10.0.0.1")

	assert.False(t, result.Allowed)
	assert.Equal(t, "rate_limiter", result.Guard)
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(1, time.Minute)
	rl.now = clk.now
	ctx := context.Background()

	require.True(t, rl.Check(ctx, "10.0.0.1").Allowed)
	assert.False(t, rl.Check(ctx, "10.0.0.1").Allowed)
	assert.True(t, rl.Check(ctx, "10.0.0.2").Allowed)

	clk.advance(61 * time.Second)
	assert.True(t, rl.Check(ctx, "10.0.0.1").Allowed)
}

func TestRateLimiter_RetryAfterAndSweep(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(1, time.Minute)
	rl.now = clk.now
	ctx := context.Background()

	require.True(t, rl.Check(ctx, "10.0.0.1").Allowed)
	clk.advance(20 * time.Second)
	blocked := rl.Check(ctx, "10.0.0.1")
	require.False(t, blocked.Allowed)
	assert.Equal(t, 40*time.Second, blocked.RetryAfter)

	rl.Check(ctx, "10.0.0.2")
	assert.Equal(t, 2, rl.Len())

	clk.advance(2 * time.Minute)
	rl.Check(ctx, "10.0.0.3")
	assert.Equal(t, 1, rl.Len())
}

// --- CircuitBreaker Tests ---

func TestCircuitBreaker_ClosedByDefault(t *testing.T) {
	cb := NewCircuitBreaker(3, 5*time.Second)

	result := cb.Check(context.Background(), "oracle")
	assert.True(t, result.Allowed)
	assert.Equal(t, CircuitClosed, cb.State("oracle"))
}

func TestCircuitBreaker_OpensOnThreshold(t *testing.T) {
	cb := NewCircuitBreaker(2, 5*time.Second)
	ctx := context.Background()

	cb.RecordFailure("oracle")
	assert.True(t, cb.Check(ctx, "oracle").Allowed)
	cb.RecordFailure("oracle")

	result := cb.Check(ctx, "oracle")
	assert.False(t, result.Allowed)
	assert.Equal(t, "circuit_breaker", result.Guard)
	assert.Contains(t, result.Reason, "oracle unavailable")

	assert.True(t, cb.Check(ctx, "notifier").Allowed, "targets are independent")
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(1, 30*time.Second)
	cb.now = clk.now
	ctx := context.Background()

	cb.RecordFailure("global_partner")
	require.Equal(t, CircuitOpen, cb.State("global_partner"))

	clk.advance(31 * time.Second)
	assert.True(t, cb.Check(ctx, "global_partner").Allowed, "first trial call goes out")
	assert.Equal(t, CircuitHalfOpen, cb.State("global_partner"))
	assert.False(t, cb.Check(ctx, "global_partner").Allowed, "second trial call waits")

	t.Run("failed trial reopens", func(t *testing.T) {
		cb.RecordFailure("global_partner")
		assert.Equal(t, CircuitOpen, cb.State("global_partner"))
		assert.False(t, cb.Check(ctx, "global_partner").Allowed)
	})

	t.Run("successful trial closes", func(t *testing.T) {
		clk.advance(31 * time.Second)
		require.True(t, cb.Check(ctx, "global_partner").Allowed)
		cb.RecordSuccess("global_partner")
		assert.Equal(t, CircuitClosed, cb.State("global_partner"))
		assert.True(t, cb.Check(ctx, "global_partner").Allowed)
	})
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb := NewCircuitBreaker(2, 5*time.Second)
	ctx := context.Background()

	cb.RecordFailure("notifier")
	cb.RecordSuccess("notifier")
	cb.RecordFailure("notifier")

	assert.True(t, cb.Check(ctx, "notifier").Allowed)
}

// --- IdempotencyGuard Tests ---

func TestIdempotencyGuard_AllowsFirst(t *testing.T) {
	ig := NewIdempotencyGuard(time.Minute)
	assert.True(t, ig.Check(context.Background(), "3:1001").Allowed)
}

func TestIdempotencyGuard_BlocksDuplicate(t *testing.T) {
	ig := NewIdempotencyGuard(time.Minute)
	ctx := context.Background()

	ig.Check(ctx, "3:1001")
	result := ig.Check(ctx, "3:1001")

	assert.False(t, result.Allowed)
	assert.Equal(t, "idempotency", result.Guard)
	assert.True(t, ig.Check(ctx, "3:1002").Allowed)
}

func TestIdempotencyGuard_EmptyKeyAllowed(t *testing.T) {
	ig := NewIdempotencyGuard(time.Minute)
	ctx := context.Background()

	assert.True(t, ig.Check(ctx, "").Allowed)
	assert.True(t, ig.Check(ctx, "").Allowed)
	assert.Equal(t, 0, ig.Len())
}

func TestIdempotencyGuard_ReleaseAllowsRetry(t *testing.T) {
	ig := NewIdempotencyGuard(time.Minute)
	ctx := context.Background()

	ig.Check(ctx, "3:1001")
	ig.Release("3:1001")

	assert.True(t, ig.Check(ctx, "3:1001").Allowed)
}

func TestIdempotencyGuard_ClaimsExpire(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	ig := NewIdempotencyGuard(10 * time.Minute)
	ig.now = clk.now
	ctx := context.Background()

	require.True(t, ig.Check(ctx, "3:1001").Allowed)
	clk.advance(9 * time.Minute)
	assert.False(t, ig.Check(ctx, "3:1001").Allowed)
	clk.advance(2 * time.Minute)
	assert.True(t, ig.Check(ctx, "3:1001").Allowed)
}

func TestIdempotencyGuard_ConcurrentClaimsSingleWinner(t *testing.T) {
	ig := NewIdempotencyGuard(time.Minute)
	ctx := context.Background()

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ig.Check(ctx, "3:77").Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), allowed.Load())
}
