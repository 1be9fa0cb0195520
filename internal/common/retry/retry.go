// internal/common/retry/retry.go
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Transient HTTP statuses worth retrying. Everything else fails immediately.
var transientStatuses = map[int]bool{
	408: true, 429: true, 500: true, 502: true, 503: true, 504: true,
}

// IsTransientStatus reports whether an HTTP status code is retryable.
func IsTransientStatus(code int) bool {
	return transientStatuses[code]
}

// Policy bounds retry behavior: attempts, exponential backoff with jitter.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultPolicy matches the reconciler's external-call defaults.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second}
}

// StatusError carries an HTTP status so Do can classify retryability.
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %v", e.Status, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Do runs fn until it succeeds, the attempts are exhausted, or the error is
// not transient. shouldRetry decides retryability; pass nil to retry only
// *StatusError values with a transient status.
func (p Policy) Do(ctx context.Context, fn func() error, shouldRetry func(error) bool) error {
	if shouldRetry == nil {
		shouldRetry = func(err error) bool {
			se, ok := err.(*StatusError)
			return ok && IsTransientStatus(se.Status)
		}
	}

	var err error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !shouldRetry(err) || attempt == p.Attempts-1 {
			return err
		}

		delay := p.BaseDelay << uint(attempt)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
		delay += time.Duration(rand.Int63n(int64(200 * time.Millisecond)))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
