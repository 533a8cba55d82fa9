package coordinator

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrorCode classifies a terminal provider failure.
type ErrorCode string

const (
	// CodeRateLimited means no token became available before the caller gave up.
	CodeRateLimited ErrorCode = "RATE_LIMITED"
	// CodeBudgetExceeded means the provider's daily budget cannot cover the call.
	CodeBudgetExceeded ErrorCode = "BUDGET_EXCEEDED"
	// CodeRequestFailed wraps any other failure of the provider call.
	CodeRequestFailed ErrorCode = "REQUEST_FAILED"
)

// ProviderError is the only error type ExecuteRequest returns.
type ProviderError struct {
	Provider       string        `json:"provider"`
	Code           ErrorCode     `json:"code"`
	Message        string        `json:"message"`
	RetryAfter     time.Duration `json:"-"`
	BudgetExceeded bool          `json:"budget_exceeded,omitempty"`
	Attempts       int           `json:"attempts"`
	Err            error         `json:"-"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// RetryAfterSeconds is RetryAfter rounded up to whole seconds.
func (e *ProviderError) RetryAfterSeconds() int {
	return int(math.Ceil(e.RetryAfter.Seconds()))
}

// AsProviderError finds a ProviderError in err's chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsCode reports whether err carries a ProviderError with the given code.
func IsCode(err error, code ErrorCode) bool {
	pe, ok := AsProviderError(err)
	return ok && pe.Code == code
}

func budgetExceeded(provider string, cost float64) *ProviderError {
	return &ProviderError{
		Provider:       provider,
		Code:           CodeBudgetExceeded,
		Message:        fmt.Sprintf("daily budget exceeded (estimated cost %.4f)", cost),
		BudgetExceeded: true,
	}
}

func rateLimited(provider string, retryAfter time.Duration, attempts int, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       CodeRateLimited,
		Message:    fmt.Sprintf("rate limited, retry after %s: %v", retryAfter, cause),
		RetryAfter: retryAfter,
		Attempts:   attempts,
		Err:        cause,
	}
}

func requestFailed(provider string, attempts int, cause error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Code:     CodeRequestFailed,
		Message:  cause.Error(),
		Attempts: attempts,
		Err:      cause,
	}
}
