package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a fetch failure for retry scheduling
type Kind string

const (
	// KindNotFound marks units that no longer exist; skipped, not retried
	KindNotFound Kind = "not_found"
	// KindRateLimited marks upstream throttling; retried with backoff
	KindRateLimited Kind = "rate_limited"
	// KindTransient marks network blips and server errors; retried with backoff
	KindTransient Kind = "transient"
	// KindFatal marks configuration/auth failures; aborts the scan
	KindFatal Kind = "fatal"
)

// Error is a typed fetch failure
type Error struct {
	Kind       Kind
	Unit       string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: %s (HTTP %d): %v", e.Unit, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Unit, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from an error chain, defaulting to
// transient for untyped errors (network-level failures)
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransient
}

// IsRetryable reports whether a failure should go back through the retry
// and redelivery path
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindRateLimited:
		return true
	default:
		return false
	}
}

// classifyStatus maps an HTTP status code to a failure kind
func classifyStatus(code int) Kind {
	switch {
	case code == 404 || code == 410:
		return KindNotFound
	case code == 429:
		return KindRateLimited
	case code == 401 || code == 403:
		return KindFatal
	case code == 408 || code >= 500:
		return KindTransient
	default:
		return KindFatal
	}
}

// classifyNetErr maps transport-level failures. Timeouts are transient per
// the retry policy, never scan-wide failures.
func classifyNetErr(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindTransient
	}
	return KindTransient
}
