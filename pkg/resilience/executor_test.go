package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/psyprofile/psyprofile-backend/pkg/logger"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(attempts int) Config {
	return Config{
		RetryMaxAttempts:    attempts,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	}
}

func TestExecute_RetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(fastRetryConfig(3), logger.Nop())

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "profile", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{Retryable: errors.Is(err, errTemp), RecordFailure: true}
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestExecute_DoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(fastRetryConfig(3), logger.Nop())

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "profile", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{}
	})

	assert.ErrorIs(t, err, errPermanent)
	assert.Equal(t, 1, attempts)
}

func TestExecute_DefaultMakesSingleAttempt(t *testing.T) {
	exec := NewExecutor(Config{}, nil)

	attempts := 0
	_ = exec.Execute(context.Background(), "profile", func(context.Context) error {
		attempts++
		return &StatusError{Operation: "chat", StatusCode: http.StatusServiceUnavailable}
	}, ClassifyRemote)

	assert.Equal(t, 1, attempts)
}

func TestExecute_OpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	}, logger.Nop())

	errTemp := errors.New("temporary")
	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "profile", func(context.Context) error {
			return errTemp
		}, nil)
		require.ErrorIs(t, err, errTemp, "iteration %d", i)
	}

	err := exec.Execute(context.Background(), "profile", func(context.Context) error {
		t.Fatal("circuit should be open and must not call the operation")
		return nil
	}, nil)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.True(t, IsCircuitOpen(err))

	// Other operations keep their own breaker.
	err = exec.Execute(context.Background(), "answer", func(context.Context) error { return nil }, nil)
	assert.NoError(t, err)
}

func TestExecute_StopsOnCancelledContext(t *testing.T) {
	exec := NewExecutor(fastRetryConfig(3), logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := exec.Execute(ctx, "profile", func(context.Context) error {
		called = true
		return nil
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestClassifyRemote(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClassification
	}{
		{"cancelled", context.Canceled, ErrorClassification{}},
		{"deadline", fmt.Errorf("chat: %w", context.DeadlineExceeded), ErrorClassification{RecordFailure: true}},
		{"open breaker", gobreaker.ErrOpenState, ErrorClassification{}},
		{"rate limited", &StatusError{StatusCode: http.StatusTooManyRequests}, ErrorClassification{Retryable: true, RecordFailure: true}},
		{"bad gateway", &StatusError{StatusCode: http.StatusBadGateway}, ErrorClassification{Retryable: true, RecordFailure: true}},
		{"bad request", &StatusError{StatusCode: http.StatusBadRequest}, ErrorClassification{}},
		{"unknown", errors.New("boom"), ErrorClassification{RecordFailure: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyRemote(tt.err))
		})
	}
}
