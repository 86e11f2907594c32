package guard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/provgate/gateway/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result := rl.Check(ctx, "test-key")
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	ctx := context.Background()

	rl.Check(ctx, "test-key")
	rl.Check(ctx, "test-key")
	result := rl.Check(ctx, "test-key")

	assert.False(t, result.Allowed)
	assert.Equal(t, "rate_limiter", result.Guard)
}

func TestRateLimiter_SeparateKeys(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	ctx := context.Background()

	r1 := rl.Check(ctx, "key-a")
	r2 := rl.Check(ctx, "key-b")

	assert.True(t, r1.Allowed)
	assert.True(t, r2.Allowed)
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	assert.True(t, rl.Check(ctx, "k").Allowed)
	now = now.Add(30 * time.Second)
	assert.True(t, rl.Check(ctx, "k").Allowed)
	assert.False(t, rl.Check(ctx, "k").Allowed)

	// The first hit has left the window, the second has not.
	now = now.Add(31 * time.Second)
	assert.True(t, rl.Check(ctx, "k").Allowed)
	assert.False(t, rl.Check(ctx, "k").Allowed)
}

func TestRateLimiter_SweepsIdleKeys(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for _, key := range []string{"op|10.0.0.1", "op|10.0.0.2", "op|10.0.0.3"} {
		rl.Check(ctx, key)
	}
	assert.Equal(t, 3, rl.Keys())

	now = now.Add(2 * time.Minute)
	rl.Check(ctx, "op|10.0.0.4")
	assert.Equal(t, 1, rl.Keys())
}

func TestCircuitBreaker_ClosedByDefault(t *testing.T) {
	cb := NewCircuitBreaker(3, 5*time.Second)
	ctx := context.Background()

	result := cb.Check(ctx, "http://wallet.local")
	assert.True(t, result.Allowed)
}

func TestCircuitBreaker_OpensOnThreshold(t *testing.T) {
	cb := NewCircuitBreaker(2, 5*time.Second)
	ctx := context.Background()

	cb.Check(ctx, "http://wallet.local")
	cb.RecordFailure("http://wallet.local")
	cb.RecordFailure("http://wallet.local")

	result := cb.Check(ctx, "http://wallet.local")
	assert.False(t, result.Allowed)
	assert.Equal(t, "circuit_breaker", result.Guard)
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb := NewCircuitBreaker(2, 5*time.Second)
	ctx := context.Background()

	cb.Check(ctx, "http://wallet.local")
	cb.RecordFailure("http://wallet.local")
	cb.RecordSuccess("http://wallet.local")

	result := cb.Check(ctx, "http://wallet.local")
	assert.True(t, result.Allowed)
}

func TestCircuitBreaker_HalfOpenAfterReset(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Second)
	now := time.Now()
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	cb.RecordFailure("w")
	assert.Equal(t, CircuitOpen, cb.State("w"))
	assert.False(t, cb.Check(ctx, "w").Allowed)

	now = now.Add(2 * time.Second)
	assert.True(t, cb.Check(ctx, "w").Allowed)
	assert.Equal(t, CircuitHalfOpen, cb.State("w"))

	cb.RecordSuccess("w")
	assert.Equal(t, CircuitClosed, cb.State("w"))
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Second)
	now := time.Now()
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	cb.RecordFailure("w")
	cb.RecordFailure("w")
	cb.RecordFailure("w")
	now = now.Add(2 * time.Second)
	require.True(t, cb.Check(ctx, "w").Allowed)

	cb.RecordFailure("w")
	assert.Equal(t, CircuitOpen, cb.State("w"))
	assert.Equal(t, "open", cb.State("w").String())
}

func TestKeyLock_AcquireRelease(t *testing.T) {
	kl := NewKeyLock()
	ctx := context.Background()

	release, err := kl.Acquire(ctx, "sbo:sbo-R1")
	require.NoError(t, err)
	assert.True(t, kl.Held("sbo:sbo-R1"))

	release()
	release()
	assert.False(t, kl.Held("sbo:sbo-R1"))

	release, err = kl.Acquire(ctx, "sbo:sbo-R1")
	require.NoError(t, err)
	release()
}

func TestKeyLock_BusyKeyFailsFast(t *testing.T) {
	kl := NewKeyLock()
	ctx := context.Background()

	release, err := kl.Acquire(ctx, "sbo:sbo-R1")
	require.NoError(t, err)
	defer release()

	_, err = kl.Acquire(ctx, "sbo:sbo-R1")
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.CodeTransactionInProgress))

	other, err := kl.Acquire(ctx, "sbo:sbo-R2")
	require.NoError(t, err)
	other()
}

func TestKeyLock_ConcurrentSingleWinner(t *testing.T) {
	kl := NewKeyLock()
	ctx := context.Background()

	var wins int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := kl.Acquire(ctx, "cq9:cq9-R1"); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}
