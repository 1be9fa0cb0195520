package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() Policy {
	return Policy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &StatusError{Status: 503, Err: fmt.Errorf("unavailable")}
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_NonTransientFailsImmediately(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		return &StatusError{Status: 401, Err: fmt.Errorf("unauthorized")}
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		return &StatusError{Status: 500, Err: fmt.Errorf("boom")}
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancellationStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{Attempts: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: 50 * time.Millisecond}

	err := p.Do(ctx, func() error {
		calls++
		cancel()
		return &StatusError{Status: 503, Err: fmt.Errorf("unavailable")}
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_CustomShouldRetry(t *testing.T) {
	calls := 0
	sentinel := fmt.Errorf("flaky")
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		if calls == 1 {
			return sentinel
		}
		return nil
	}, func(err error) bool { return err == sentinel })

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestIsTransientStatus(t *testing.T) {
	assert.True(t, IsTransientStatus(503))
	assert.True(t, IsTransientStatus(429))
	assert.False(t, IsTransientStatus(404))
	assert.False(t, IsTransientStatus(200))
}
