package ratelimit

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// Config is the per-provider rate limit configuration. Only RequestsPerMinute
// is enforced by the bucket; the hour and day ceilings are declarative.
// BudgetLimit is the daily spend ceiling in currency units (<= 0 disables it).
type Config struct {
	RequestsPerMinute int     `yaml:"requests_per_minute" mapstructure:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int     `yaml:"requests_per_hour" mapstructure:"requests_per_hour" json:"requests_per_hour"`
	RequestsPerDay    int     `yaml:"requests_per_day" mapstructure:"requests_per_day" json:"requests_per_day"`
	BudgetLimit       float64 `yaml:"budget_limit" mapstructure:"budget_limit" json:"budget_limit"`
}

// DefaultConfig is applied to providers that were never configured explicitly.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		RequestsPerHour:   1000,
		RequestsPerDay:    10000,
		BudgetLimit:       10,
	}
}

// Validate checks that the config can back a token bucket.
func (c Config) Validate() error {
	if c.RequestsPerMinute <= 0 {
		return eris.Errorf("ratelimit: requests_per_minute must be positive, got %d", c.RequestsPerMinute)
	}
	if c.RequestsPerHour < 0 || c.RequestsPerDay < 0 {
		return eris.New("ratelimit: hourly and daily ceilings must not be negative")
	}
	return nil
}

// Status is a read-only snapshot of one provider's bucket.
type Status struct {
	AvailableTokens    float64 `json:"available_tokens"`
	Capacity           float64 `json:"capacity"`
	RefillPerMinute    float64 `json:"refill_rate"`
	UtilizationPercent float64 `json:"utilization_percent"`
}

// Limiter owns the provider configs and their token buckets. Buckets are
// created lazily on first reference.
type Limiter struct {
	mu       sync.RWMutex
	configs  map[string]Config
	buckets  map[string]*Bucket
	defaults Config

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.nowFunc = now
		}
	}
}

// WithDefaults overrides the config used for unconfigured providers.
func WithDefaults(cfg Config) Option {
	return func(l *Limiter) {
		if cfg.Validate() == nil {
			l.defaults = cfg
		}
	}
}

// NewLimiter creates an empty limiter registry.
func NewLimiter(opts ...Option) *Limiter {
	l := &Limiter{
		configs:  make(map[string]Config),
		buckets:  make(map[string]*Bucket),
		defaults: DefaultConfig(),
		nowFunc:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetProviderLimits installs or replaces the provider's config and
// reinitializes its bucket to full capacity.
func (l *Limiter) SetProviderLimits(provider string, cfg Config) error {
	if provider == "" {
		return eris.New("ratelimit: provider id is required")
	}
	if err := cfg.Validate(); err != nil {
		return eris.Wrapf(err, "ratelimit: provider %s", provider)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.configs[provider] = cfg
	l.buckets[provider] = NewBucket(cfg.RequestsPerMinute, l.nowFunc)
	return nil
}

// Limits returns the effective config for a provider.
func (l *Limiter) Limits(provider string) Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if cfg, ok := l.configs[provider]; ok {
		return cfg
	}
	return l.defaults
}

// Bucket returns the provider's bucket, creating it from its config (or the
// defaults) if needed.
func (l *Limiter) Bucket(provider string) *Bucket {
	l.mu.RLock()
	b, ok := l.buckets[provider]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Double-check after acquiring write lock.
	if b, ok = l.buckets[provider]; ok {
		return b
	}
	cfg, ok := l.configs[provider]
	if !ok {
		cfg = l.defaults
	}
	b = NewBucket(cfg.RequestsPerMinute, l.nowFunc)
	l.buckets[provider] = b
	return b
}

// Check reports whether a token is available for the provider. When it is
// not, retryAfter is ceil(1/refillRate) seconds.
func (l *Limiter) Check(provider string) (allowed bool, retryAfter time.Duration) {
	b := l.Bucket(provider)
	if b.Available() {
		return true, 0
	}
	return false, b.RetryAfter()
}

// Consume takes one token for the provider, reporting success.
func (l *Limiter) Consume(provider string) bool {
	return l.Bucket(provider).TryConsume()
}

// Status returns a snapshot of every bucket created so far.
func (l *Limiter) Status() map[string]Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]Status, len(l.buckets))
	for name, b := range l.buckets {
		tokens := b.Tokens()
		capacity := b.Capacity()
		var util float64
		if capacity > 0 {
			util = (capacity - tokens) / capacity * 100
		}
		out[name] = Status{
			AvailableTokens:    tokens,
			Capacity:           capacity,
			RefillPerMinute:    b.RefillRate() * 60,
			UtilizationPercent: util,
		}
	}
	return out
}

// Reset drops every bucket. Configs are kept, so buckets come back full on
// their next reference.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string]*Bucket)
}

// Providers lists the explicitly configured provider ids.
func (l *Limiter) Providers() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.configs))
	for name := range l.configs {
		names = append(names, name)
	}
	return names
}
