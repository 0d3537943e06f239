package generate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
)

func TestRetryConfig_BackoffSchedule(t *testing.T) {
	t.Parallel()
	cfg := DefaultRetryConfig()
	assert.Equal(t, 2*time.Second, cfg.Backoff(1))
	assert.Equal(t, 4*time.Second, cfg.Backoff(2))
	assert.Equal(t, 8*time.Second, cfg.Backoff(3))
	assert.Equal(t, 16*time.Second, cfg.Backoff(4))
	assert.Equal(t, 30*time.Second, cfg.Backoff(5), "capped at MaxBackoff")
	assert.Equal(t, cfg.Backoff(3), cfg.Backoff(3), "deterministic")
}

func TestIsTransient(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit transient", NewTransientError(errors.New("x")), true},
		{"explicit permanent", NewPermanentError(errors.New("x")), false},
		{"wrapped transient", fmt.Errorf("call: %w", NewTransientError(errors.New("x"))), true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"rate limited", &openai.Error{StatusCode: http.StatusTooManyRequests}, true},
		{"server error", fmt.Errorf("openai: %w", &openai.Error{StatusCode: http.StatusBadGateway}), true},
		{"unauthorized", &openai.Error{StatusCode: http.StatusUnauthorized}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestRetry_StopsWhenRunCanceledDuringBackoff(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, attempts, err := retry(ctx, DefaultRetryConfig(), 0,
		func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
		func(context.Context) (Result, error) {
			calls++
			return Result{}, NewTransientError(errors.New("busy"))
		})

	assert.ErrorIs(t, err, ErrNotDispatched)
	assert.True(t, IsTransient(err), "the last attempt error is kept")
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}
