// Package ratelimit provides per-provider token buckets for outbound
// intelligence requests.
package ratelimit

import (
	"math"
	"time"

	"golang.org/x/time/rate"
)

// Bucket is a token bucket with capacity RequestsPerMinute and a refill rate
// of RequestsPerMinute/60 tokens per second. Refill is lazy: tokens are
// recomputed from elapsed time whenever the bucket is observed, capped at
// capacity. The underlying rate.Limiter is safe for concurrent use.
type Bucket struct {
	limiter    *rate.Limiter
	capacity   float64
	refillRate float64 // tokens per second

	nowFunc func() time.Time
}

// NewBucket creates a full bucket for the given per-minute rate.
func NewBucket(requestsPerMinute int, nowFunc func() time.Time) *Bucket {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	refill := float64(requestsPerMinute) / 60
	b := &Bucket{
		limiter:    rate.NewLimiter(rate.Limit(refill), requestsPerMinute),
		capacity:   float64(requestsPerMinute),
		refillRate: refill,
		nowFunc:    nowFunc,
	}
	// Anchor the limiter at creation time so the bucket starts full.
	b.limiter.SetLimitAt(b.nowFunc(), rate.Limit(refill))
	return b
}

// Tokens returns the currently available tokens after a lazy refill.
func (b *Bucket) Tokens() float64 {
	t := b.limiter.TokensAt(b.nowFunc())
	return math.Max(0, math.Min(t, b.capacity))
}

// Capacity is the maximum burst size.
func (b *Bucket) Capacity() float64 { return b.capacity }

// RefillRate is the refill rate in tokens per second.
func (b *Bucket) RefillRate() float64 { return b.refillRate }

// Available reports whether at least one whole token can be taken.
func (b *Bucket) Available() bool {
	return b.Tokens() >= 1
}

// TryConsume takes one token if one is available. Check and decrement happen
// atomically inside the limiter.
func (b *Bucket) TryConsume() bool {
	return b.limiter.AllowN(b.nowFunc(), 1)
}

// RetryAfter is how long a caller should wait for the next token:
// ceil(1/refillRate) whole seconds.
func (b *Bucket) RetryAfter() time.Duration {
	if b.refillRate <= 0 {
		return time.Minute
	}
	return time.Duration(math.Ceil(1/b.refillRate)) * time.Second
}
