// Package httputil provides a small retry combinator used by the exchange
// adapter. The LLM researcher retries through its own resty client instead.
package httputil

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// RetryableStatus reports whether an HTTP status code should be retried:
// server errors, gateway timeouts, and rate limiting.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, // 429
		http.StatusBadGateway,          // 502
		http.StatusServiceUnavailable,  // 503
		http.StatusGatewayTimeout,      // 504
		520, 521, 522, 523, 524:
		return true
	}
	return code >= 500
}

// RetryableError reports whether a transport-level error (connection
// refused, timeout, reset) should be retried.
func RetryableError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Do runs fn up to maxAttempts times, retrying on a retryable HTTP status
// or transport error with exponential backoff starting at baseWait and
// capped at 8 seconds per wait. fn must
// return the response (its body already fully read and closed, if the
// caller needs it) and the error from the underlying transport call. Do
// returns the last response/error pair once attempts are exhausted or a
// non-retryable outcome is reached.
func Do(ctx context.Context, maxAttempts int, baseWait time.Duration, fn func() (*http.Response, error)) (*http.Response, error) {
	var resp *http.Response
	var err error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err = fn()

		retry := false
		if err != nil {
			retry = RetryableError(err)
		} else if resp != nil {
			retry = RetryableStatus(resp.StatusCode)
		}

		if !retry || attempt == maxAttempts {
			return resp, err
		}

		wait := baseWait * time.Duration(1<<uint(attempt-1))
		if wait > 8*time.Second {
			wait = 8 * time.Second
		}
		select {
		case <-ctx.Done():
			return resp, ctx.Err()
		case <-time.After(wait):
		}
	}
	return resp, err
}
