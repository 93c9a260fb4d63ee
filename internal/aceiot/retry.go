package aceiot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vitals-systems/siphon/pkg/types"
)

const maxBackoffSeconds = 60

// DefaultRetryPolicy returns the default retry configuration for API calls.
func DefaultRetryPolicy() types.RetryPolicy {
	return types.RetryPolicy{
		MaxAttempts:       4,
		BackoffSeconds:    1,
		BackoffMultiplier: 2.0,
		RetryableFailures: []types.FailureCategory{
			types.FailureTransient,
			types.FailureTimeout,
		},
	}
}

// CalculateBackoff returns the wait duration for a given attempt number.
// Uses exponential backoff: base * multiplier^(attempt-1).
func CalculateBackoff(policy types.RetryPolicy, attempt int) time.Duration {
	if attempt <= 1 {
		return time.Duration(policy.BackoffSeconds) * time.Second
	}
	multiplier := policy.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	backoff := float64(policy.BackoffSeconds) * math.Pow(multiplier, float64(attempt-1))
	if backoff > maxBackoffSeconds {
		backoff = maxBackoffSeconds
	}
	return time.Duration(backoff) * time.Second
}

// IsRetryable returns whether a failure category should be retried.
func IsRetryable(policy types.RetryPolicy, category types.FailureCategory) bool {
	if category == types.FailurePermanent {
		return false
	}
	if len(policy.RetryableFailures) == 0 {
		// Default: retry transient and timeout
		return category == types.FailureTransient || category == types.FailureTimeout
	}
	for _, fc := range policy.RetryableFailures {
		if fc == category {
			return true
		}
	}
	return false
}

// APIError is a non-2xx response from the timeseries API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.StatusCode, e.Body)
}

// Category maps the response status to a failure category.
func (e *APIError) Category() types.FailureCategory {
	return ClassifyHTTPStatus(e.StatusCode)
}

// ClassifyHTTPStatus maps an HTTP status code to a failure category. 429 is
// transient (rate limiting); other 4xx are caller errors and never retried.
func ClassifyHTTPStatus(code int) types.FailureCategory {
	if code == 429 {
		return types.FailureTransient
	}
	if code >= 400 && code < 500 {
		return types.FailurePermanent
	}
	return types.FailureTransient
}

// Classify maps any client error to a failure category.
func Classify(err error) types.FailureCategory {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.FailureTimeout
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.FailureTransient
	}
	return types.FailureTransient
}
