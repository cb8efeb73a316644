// Package retry paces repeated attempts at operations that fail transiently:
// dialing backends at startup and keeping long-lived feeds connected.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Policy is an exponential delay schedule with proportional jitter.
type Policy struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	// Jitter spreads each delay by up to +/- this fraction of it.
	Jitter float64
	// Attempts bounds Do. Loops driven through Backoff ignore it.
	Attempts int
}

var (
	// Dial paces startup connections to Redis and ClickHouse.
	Dial = Policy{Initial: 2 * time.Second, Max: time.Minute, Factor: 2, Jitter: 0.15, Attempts: 10}
	// Resubscribe paces websocket clients re-following the update channel.
	Resubscribe = Policy{Initial: time.Second, Max: 30 * time.Second, Factor: 2, Jitter: 0.1}
	// Reconnect paces the upstream event stream.
	Reconnect = Policy{Initial: time.Second, Max: time.Minute, Factor: 2, Jitter: 0.2}
)

// Delay is the wait after the n-th consecutive failure, n counting from 1.
// It never exceeds Max.
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := float64(p.Initial) * math.Pow(p.Factor, float64(n-1))
	if d > float64(p.Max) || math.IsInf(d, 1) {
		d = float64(p.Max)
	}
	d += d * p.Jitter * (2*rand.Float64() - 1)
	if d > float64(p.Max) {
		d = float64(p.Max)
	}
	return time.Duration(d)
}

// Do runs fn until it succeeds, ctx is done or Attempts calls have failed.
func (p Policy) Do(ctx context.Context, logger *zap.Logger, operation string, fn func() error) error {
	attempts := max(p.Attempts, 1)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s cancelled: %w", operation, err)
		}
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info("Operation succeeded after retries",
					zap.String("operation", operation),
					zap.Int("attempts", attempt))
			}
			return nil
		}
		if attempt >= attempts {
			return fmt.Errorf("%s failed after %d attempts: %w", operation, attempts, err)
		}

		delay := p.Delay(attempt)
		logger.Warn("Operation failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", attempts),
			zap.Duration("retry_in", delay),
			zap.Error(err))
		if !Sleep(ctx, delay) {
			return fmt.Errorf("%s cancelled: %w", operation, ctx.Err())
		}
	}
}

// Backoff counts consecutive failures of a loop that never gives up.
// It is not safe for concurrent use.
type Backoff struct {
	policy   Policy
	failures int
}

func (p Policy) Backoff() *Backoff {
	return &Backoff{policy: p}
}

// Fail records a failure and returns how long to wait before trying again.
func (b *Backoff) Fail() time.Duration {
	b.failures++
	return b.policy.Delay(b.failures)
}

// Failures is the number of failures since the last Reset.
func (b *Backoff) Failures() int { return b.failures }

// Reset starts the schedule over, typically after a connection proved stable.
func (b *Backoff) Reset() { b.failures = 0 }

// Sleep waits for d or until ctx is done. It reports whether the full delay elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
