// Package coordinator gates outbound provider calls behind daily budgets and
// token-bucket rate limits, and retries transient failures with backoff.
package coordinator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/intel-cli/internal/budget"
	"github.com/sells-group/intel-cli/internal/model"
	"github.com/sells-group/intel-cli/internal/ratelimit"
	"github.com/sells-group/intel-cli/internal/resilience"
)

// DefaultMaxRetries is the retry budget used when callers pass a negative value.
const DefaultMaxRetries = 3

// Reason explains a denied admission check.
type Reason string

const (
	ReasonBudgetExceeded Reason = "budget_exceeded"
	ReasonRateLimited    Reason = "rate_limited"
)

// Decision is the outcome of CanMakeRequest.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	Reason     Reason        `json:"reason,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// RequestFunc performs one provider call and returns its raw payloads.
type RequestFunc func(ctx context.Context) ([]model.IntelDatum, error)

// Coordinator is shared by all in-flight requests. Its limiter and ledger
// hold per-provider state guarded per provider.
type Coordinator struct {
	limiter  *ratelimit.Limiter
	ledger   *budget.Ledger
	breakers *resilience.ProviderBreakers

	backoff resilience.BackoffConfig
	sleep   func(ctx context.Context, d time.Duration) error
	rnd     func() float64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithBreakers enables per-provider circuit breaking.
func WithBreakers(b *resilience.ProviderBreakers) Option {
	return func(c *Coordinator) { c.breakers = b }
}

// WithBackoff overrides the retry backoff.
func WithBackoff(cfg resilience.BackoffConfig) Option {
	return func(c *Coordinator) { c.backoff = cfg }
}

// WithSleeper overrides how the coordinator waits (for tests).
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Coordinator) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithJitterSource overrides the [0,1) random source used for jitter.
func WithJitterSource(rnd func() float64) Option {
	return func(c *Coordinator) { c.rnd = rnd }
}

// New creates a Coordinator over the given registries.
func New(limiter *ratelimit.Limiter, ledger *budget.Ledger, opts ...Option) *Coordinator {
	c := &Coordinator{
		limiter: limiter,
		ledger:  ledger,
		backoff: resilience.DefaultBackoffConfig(),
		sleep:   resilience.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetProviderLimits installs the provider's rate limits and daily budget.
func (c *Coordinator) SetProviderLimits(provider string, cfg ratelimit.Config) error {
	if err := c.limiter.SetProviderLimits(provider, cfg); err != nil {
		return err
	}
	c.ledger.SetLimit(provider, cfg.BudgetLimit)
	return nil
}

// Limits returns the effective rate limit config for a provider.
func (c *Coordinator) Limits(provider string) ratelimit.Config {
	return c.limiter.Limits(provider)
}

// CanMakeRequest checks the budget first, then the rate limit. It does not
// consume anything.
func (c *Coordinator) CanMakeRequest(provider string, estimatedCost float64) Decision {
	if !c.ledger.CheckBudget(provider, estimatedCost) {
		return Decision{Reason: ReasonBudgetExceeded}
	}
	if allowed, retryAfter := c.limiter.Check(provider); !allowed {
		return Decision{Reason: ReasonRateLimited, RetryAfter: retryAfter}
	}
	return Decision{Allowed: true}
}

// ConsumeToken takes one rate-limit token for the provider.
func (c *Coordinator) ConsumeToken(provider string) bool {
	return c.limiter.Consume(provider)
}

// CheckBudget reports whether estimatedCost fits today's remaining budget.
func (c *Coordinator) CheckBudget(provider string, estimatedCost float64) bool {
	return c.ledger.CheckBudget(provider, estimatedCost)
}

// RecordSpending charges cost to the provider's daily budget.
func (c *Coordinator) RecordSpending(provider string, cost float64) {
	c.ledger.RecordSpending(provider, cost)
}

// BudgetStatus returns a snapshot of every provider budget.
func (c *Coordinator) BudgetStatus() map[string]budget.Status {
	return c.ledger.Status()
}

// RateLimitStatus returns a snapshot of every provider bucket.
func (c *Coordinator) RateLimitStatus() map[string]ratelimit.Status {
	return c.limiter.Status()
}

// BreakerStatus returns circuit states, or nil when breaking is disabled.
func (c *Coordinator) BreakerStatus() map[string]string {
	if c.breakers == nil {
		return nil
	}
	return c.breakers.States()
}

// ResetBudgets discards recorded spend.
func (c *Coordinator) ResetBudgets() { c.ledger.Reset() }

// ResetRateLimits refills every bucket and closes every breaker.
func (c *Coordinator) ResetRateLimits() {
	c.limiter.Reset()
	if c.breakers != nil {
		c.breakers.Reset()
	}
}

// ExecuteRequest runs fn for provider under budget, rate-limit and retry
// control. See Execute.
func (c *Coordinator) ExecuteRequest(ctx context.Context, provider string, fn RequestFunc, estimatedCost float64, maxRetries int) ([]model.IntelDatum, error) {
	return Execute(ctx, c, provider, fn, estimatedCost, maxRetries)
}

// Execute runs fn for provider, calling it at most maxRetries+1 times.
//
// Each round holds estimatedCost against the daily budget (BUDGET_EXCEEDED is
// returned immediately and never retried), then takes a rate-limit token.
// Waiting for a token does not count as an attempt. A failed call counts as
// an attempt; retriable failures back off exponentially with jitter, others
// return REQUEST_FAILED at once. Spend is recorded only when fn succeeds.
func Execute[T any](ctx context.Context, c *Coordinator, provider string, fn func(ctx context.Context) (T, error), estimatedCost float64, maxRetries int) (T, error) {
	var zero T
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	onRetry := resilience.RetryLogger(provider)

	attempts := 0
	waits := 0
	for {
		if err := ctx.Err(); err != nil {
			return zero, requestFailed(provider, attempts, err)
		}

		res, ok := c.ledger.Reserve(provider, estimatedCost)
		if !ok {
			zap.L().Warn("coordinator: budget exceeded",
				zap.String("provider", provider),
				zap.Float64("estimated_cost", estimatedCost),
			)
			return zero, budgetExceeded(provider, estimatedCost)
		}

		var breaker *resilience.CircuitBreaker
		if c.breakers != nil {
			breaker = c.breakers.Get(provider)
			if err := breaker.Allow(); err != nil {
				res.Release()
				return zero, requestFailed(provider, attempts, err)
			}
		}

		if allowed, retryAfter := c.limiter.Check(provider); !allowed || !c.limiter.Consume(provider) {
			res.Release()
			if allowed {
				// Lost the token to a concurrent caller between check and consume.
				retryAfter = c.limiter.Bucket(provider).RetryAfter()
			}
			waits++
			zap.L().Debug("coordinator: rate limited, waiting",
				zap.String("provider", provider),
				zap.Duration("retry_after", retryAfter),
				zap.Int("waits", waits),
			)
			if err := c.sleep(ctx, retryAfter); err != nil {
				return zero, rateLimited(provider, retryAfter, attempts, err)
			}
			continue
		}

		val, err := fn(ctx)
		if breaker != nil {
			breaker.Record(err)
		}
		if err == nil {
			res.Commit()
			return val, nil
		}
		res.Release()
		attempts++

		if !resilience.IsRetriable(err) || attempts > maxRetries || ctx.Err() != nil {
			zap.L().Debug("coordinator: request failed",
				zap.String("provider", provider),
				zap.Int("attempts", attempts),
				zap.String("error_type", resilience.ClassifyError(err)),
				zap.Error(err),
			)
			return zero, requestFailed(provider, attempts, err)
		}

		delay := c.backoff.Delay(attempts, c.rnd)
		onRetry(attempts, delay, err)
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return zero, requestFailed(provider, attempts, err)
		}
	}
}
