package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"
)

// HTTPError is returned by provider clients for non-2xx upstream responses.
type HTTPError struct {
	StatusCode int
	Message    string
	// RetryAfter is the upstream Retry-After hint, if any.
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// NewHTTPError creates an HTTPError for the given status code.
func NewHTTPError(statusCode int, message string) *HTTPError {
	return &HTTPError{StatusCode: statusCode, Message: message}
}

// NetworkCode names a transport-level failure class.
type NetworkCode string

const (
	CodeConnReset   NetworkCode = "ECONNRESET"
	CodeNotFound    NetworkCode = "ENOTFOUND"
	CodeConnRefused NetworkCode = "ECONNREFUSED"
	CodeTimedOut    NetworkCode = "ETIMEDOUT"
)

// NetworkError tags a transport failure with its code. Provider clients use
// it when the underlying error does not carry a syscall errno.
type NetworkError struct {
	Code NetworkCode
	Err  error
}

func (e *NetworkError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error { return e.Err }

// NewNetworkError wraps err with a network code.
func NewNetworkError(code NetworkCode, err error) *NetworkError {
	return &NetworkError{Code: code, Err: err}
}

// IsRetriableHTTPStatus reports whether an upstream status is worth retrying.
func IsRetriableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}

// StatusCode extracts the HTTP status from err's chain.
func StatusCode(err error) (int, bool) {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode, true
	}
	return 0, false
}

// NetworkCodeOf extracts a network failure code from err's chain.
func NetworkCodeOf(err error) (NetworkCode, bool) {
	if err == nil {
		return "", false
	}

	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Code, true
	}

	switch {
	case errors.Is(err, syscall.ECONNRESET):
		return CodeConnReset, true
	case errors.Is(err, syscall.ECONNREFUSED):
		return CodeConnRefused, true
	case errors.Is(err, syscall.ETIMEDOUT):
		return CodeTimedOut, true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return CodeNotFound, true
		}
		if dnsErr.IsTimeout {
			return CodeTimedOut, true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimedOut, true
	}

	return "", false
}

// IsRetriable reports whether err is a transient upstream failure: a 429 or
// 5xx gateway status, or a reset/refused/not-found/timed-out connection.
// Everything else is permanent.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := StatusCode(err); ok {
		return IsRetriableHTTPStatus(code)
	}
	_, ok := NetworkCodeOf(err)
	return ok
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsRetriable(err) {
		return "transient"
	}
	return "permanent"
}
