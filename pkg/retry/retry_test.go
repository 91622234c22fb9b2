package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDo_SuccessAfterRetries(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		AddJitter:    false, // Disable for predictable tests
	}

	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_AllAttemptsFail(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		AddJitter:    false,
	}

	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		return errors.New("persistent error")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, attempts)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	ctx := context.Background()
	attempts := 0

	err := Do(ctx, Classifier(), func() error {
		attempts++
		return NonRetryable(errors.New("bad request"))
	})

	assert.Error(t, err)
	assert.True(t, IsNonRetryable(err))
	assert.Equal(t, 1, attempts)
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		AddJitter:    false,
	}

	attempts := 0
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, cfg, func() error {
		attempts++
		return errors.New("error")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "retry cancelled")
	assert.Less(t, attempts, 5)
}

func TestClassifierPolicy_Schedule(t *testing.T) {
	// The classifier policy mirrors the attempt-indexed schedule of the
	// upstream services: 250ms before the second attempt, 500ms before the
	// third, then give up.
	cfg := Classifier()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
	assert.False(t, cfg.AddJitter)

	start := time.Now()
	attempts := 0
	_ = Do(context.Background(), cfg, func() error {
		attempts++
		return errors.New("down")
	})
	elapsed := time.Since(start)

	assert.Equal(t, 3, attempts)
	assert.GreaterOrEqual(t, elapsed, 750*time.Millisecond)
}

func TestPublishPolicy_ExactlyOneMoreAttempt(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Publish(), func() error {
		attempts++
		if attempts == 1 {
			return errors.New("first fan-out failed")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)

	// And no third attempt when both fail.
	attempts = 0
	err = Do(context.Background(), Publish(), func() error {
		attempts++
		return errors.New("still failing")
	})
	assert.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestDoWithResult(t *testing.T) {
	ctx := context.Background()
	cfg := Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1.0}

	calls := 0
	result, err := DoWithResult(ctx, cfg, func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "ok", result)
}
