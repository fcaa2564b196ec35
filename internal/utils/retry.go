package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// StatusError is returned by HTTP helpers for non-success responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// RetryFunc is the retry policy of an HTTP call
type RetryFunc func(ctx context.Context, maxRetries uint64, op func() error) error

// Retry runs op with exponential backoff until it succeeds, returns a
// permanent error, exhausts maxRetries or ctx is done. Client errors (4xx)
// are not retried.
func Retry(ctx context.Context, maxRetries uint64, op func() error) error {
	return retry(ctx, maxRetries, func() error {
		err := op()
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	})
}

// RetryUndelivered runs op like Retry but only retries when the request never
// reached the server. Requests that create something remotely use it: a
// timeout or 5xx after delivery may still have created the job.
func RetryUndelivered(ctx context.Context, maxRetries uint64, op func() error) error {
	return retry(ctx, maxRetries, func() error {
		err := op()
		if err != nil && !IsDialError(err) {
			return backoff.Permanent(err)
		}
		return err
	})
}

// IsDialError reports whether err happened while connecting, before any
// request byte was written
func IsDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func retry(ctx context.Context, maxRetries uint64, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx)
	return backoff.Retry(op, policy)
}
