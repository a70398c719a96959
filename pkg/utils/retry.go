package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// StatusError is a non-2xx response from a remote model provider.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Transient reports whether a provider call that failed with err may succeed when repeated.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return !ne.Timeout()
	}
	return false
}

// IsTimeout reports whether err is a deadline or client timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Retry runs task with exponential backoff starting at base, retrying transient failures at most
// maxRetries times. The last error is returned when retries are exhausted.
func Retry(ctx context.Context, maxRetries int, base time.Duration, task func(ctx context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	b := retry.WithCappedDuration(5*time.Second, retry.NewExponential(base))
	b = retry.WithMaxRetries(uint64(maxRetries), b)
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := task(ctx)
		if Transient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
