package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryEventuallySucceeds(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), 3, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryGivesUp(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), 2, func() error {
		attempts++
		return errors.New("down")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnClientError(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), 5, func() error {
		attempts++
		return &StatusError{StatusCode: 401, Body: "bad key"}
	})
	var se *StatusError
	assert.ErrorAs(t, err, &se)
	assert.Equal(t, 1, attempts)
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempts := 0
	err := Retry(ctx, 5, func() error {
		attempts++
		return errors.New("down")
	})
	assert.Error(t, err)
	assert.LessOrEqual(t, attempts, 1)
}

func TestRetryUndeliveredStopsAfterDelivery(t *testing.T) {
	for _, delivered := range []error{
		&StatusError{StatusCode: 503, Body: "busy"},
		&url.Error{Op: "Get", URL: "http://sab/api", Err: context.DeadlineExceeded},
	} {
		attempts := 0
		err := RetryUndelivered(context.Background(), 3, func() error {
			attempts++
			return delivered
		})
		assert.ErrorIs(t, err, delivered)
		assert.Equal(t, 1, attempts, delivered.Error())
	}
}

func TestRetryUndeliveredRetriesDialErrors(t *testing.T) {
	attempts := 0
	err := RetryUndelivered(context.Background(), 2, func() error {
		attempts++
		dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
		return fmt.Errorf("SABnzbd request failed: %w", &url.Error{Op: "Get", URL: "http://sab/api", Err: dial})
	})
	assert.Error(t, err)
	assert.True(t, IsDialError(err))
	assert.Equal(t, 3, attempts)
}
