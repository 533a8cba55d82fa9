package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// BackoffConfig controls the delay between failed execution attempts:
// min(Base * 2^(attempt-1), Max) + uniform jitter in [0, Jitter).
type BackoffConfig struct {
	// Base is the delay after the first failed attempt. Default: 1s.
	Base time.Duration

	// Max caps the exponential part of the delay. Default: 30s.
	Max time.Duration

	// Jitter is the upper bound of the random delay added on top. Default: 1s.
	// Use a negative value to disable jitter.
	Jitter time.Duration
}

// DefaultBackoffConfig returns the standard provider backoff.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Base:   time.Second,
		Max:    30 * time.Second,
		Jitter: time.Second,
	}
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	if c.Base <= 0 {
		c.Base = time.Second
	}
	if c.Max <= 0 {
		c.Max = 30 * time.Second
	}
	if c.Jitter == 0 {
		c.Jitter = time.Second
	}
	return c
}

// Delay returns the backoff before the next attempt, given the number of
// failed attempts so far (1-based). rnd returns a value in [0, 1); nil uses
// math/rand/v2.
func (c BackoffConfig) Delay(attempt int, rnd func() float64) time.Duration {
	c = c.withDefaults()
	if attempt < 1 {
		attempt = 1
	}

	exp := float64(c.Base) * math.Pow(2, float64(attempt-1))
	delay := time.Duration(math.Min(exp, float64(c.Max)))

	if c.Jitter > 0 {
		if rnd == nil {
			rnd = rand.Float64
		}
		delay += time.Duration(rnd() * float64(c.Jitter))
	}
	return delay
}

// Sleep waits for d or until ctx is done, returning ctx's error in that case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryLogger returns a callback that logs each retry of a provider call.
func RetryLogger(provider string) func(attempt int, delay time.Duration, err error) {
	return func(attempt int, delay time.Duration, err error) {
		zap.L().Warn("retrying provider request",
			zap.String("provider", provider),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.String("error_type", ClassifyError(err)),
			zap.Error(err),
		)
	}
}
