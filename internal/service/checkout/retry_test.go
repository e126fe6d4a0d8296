package checkout

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/service/payment"
)

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	require.Equal(t, 3, cfg.MaxAttempts)
	require.Positive(t, cfg.InitialDelay)
	require.Positive(t, cfg.MaxDelay)
	require.Greater(t, cfg.BackoffFactor, 1.0)
}

func TestWithRetry(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2}
	logger := log.New().WithField("test", "retry")
	transient := fmt.Errorf("timeout: %w", domain.ErrGateway)

	t.Run("retry then success", func(t *testing.T) {
		attempts := 0
		err := withRetry(context.Background(), cfg, logger, "op", func() error {
			attempts++
			if attempts < 3 {
				return transient
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, attempts)
	})

	t.Run("non-retryable", func(t *testing.T) {
		attempts := 0
		err := withRetry(context.Background(), cfg, logger, "op", func() error {
			attempts++
			return domain.ErrValidation
		})
		require.ErrorIs(t, err, domain.ErrValidation)
		require.Equal(t, 1, attempts)
	})

	t.Run("exhausted", func(t *testing.T) {
		attempts := 0
		err := withRetry(context.Background(), cfg, logger, "op", func() error {
			attempts++
			return transient
		})
		require.ErrorIs(t, err, domain.ErrGateway)
		require.Equal(t, 3, attempts)
	})

	t.Run("canceled context stops waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		slow := RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour, BackoffFactor: 1}
		attempts := 0
		err := withRetry(ctx, slow, logger, "op", func() error {
			attempts++
			cancel()
			return transient
		})
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, 1, attempts)
	})
}

func TestShouldRetry(t *testing.T) {
	require.True(t, shouldRetry(fmt.Errorf("5xx: %w", domain.ErrGateway)))
	require.False(t, shouldRetry(payment.ErrCircuitOpen))
	require.False(t, shouldRetry(context.DeadlineExceeded))
	require.False(t, shouldRetry(domain.ErrOrderNotFound))
	require.False(t, shouldRetry(errors.New("boom")))
}

func TestRetryConfigNormalized(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 0, InitialDelay: time.Second, MaxDelay: 10 * time.Millisecond, BackoffFactor: 0.5}.normalized()
	require.Equal(t, 1, cfg.MaxAttempts)
	require.Equal(t, 10*time.Millisecond, cfg.InitialDelay)
	require.Equal(t, 1.0, cfg.BackoffFactor)
}
