package resilience

import (
	"time"
)

// FromBackoffConfig converts millisecond config values to a BackoffConfig.
// Non-positive base or max values keep the defaults; a negative jitter
// disables jitter.
func FromBackoffConfig(baseMs, maxMs, jitterMs int) BackoffConfig {
	cfg := DefaultBackoffConfig()
	if baseMs > 0 {
		cfg.Base = time.Duration(baseMs) * time.Millisecond
	}
	if maxMs > 0 {
		cfg.Max = time.Duration(maxMs) * time.Millisecond
	}
	if jitterMs > 0 {
		cfg.Jitter = time.Duration(jitterMs) * time.Millisecond
	} else if jitterMs < 0 {
		cfg.Jitter = -1
	}
	return cfg
}

// FromCircuitConfig converts config values to a CircuitBreakerConfig.
func FromCircuitConfig(failureThreshold, resetTimeoutSecs int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg
}
