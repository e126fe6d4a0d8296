package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(2, time.Minute, nil)
	cb.clock = func() time.Time { return now }

	boom := errors.New("boom")
	require.ErrorIs(t, cb.Execute("op", func() error { return boom }), boom)
	require.Equal(t, CircuitClosed, cb.State())
	require.ErrorIs(t, cb.Execute("op", func() error { return boom }), boom)
	require.Equal(t, CircuitOpen, cb.State())

	called := false
	err := cb.Execute("op", func() error { called = true; return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
	require.ErrorIs(t, err, domain.ErrGateway)
	require.False(t, called)

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Execute("op", func() error { return nil }))
	require.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, time.Second, nil)
	cb.clock = func() time.Time { return now }

	_ = cb.Execute("op", func() error { return errors.New("boom") })
	require.Equal(t, CircuitOpen, cb.State())

	now = now.Add(2 * time.Second)
	_ = cb.Execute("op", func() error { return errors.New("still down") })
	require.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_IgnoresCallerCancellation(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute, nil)
	_ = cb.Execute("op", func() error { return context.Canceled })
	require.Equal(t, CircuitClosed, cb.State())
}

func TestBreakerGateway(t *testing.T) {
	mock := NewMockGateway()
	mock.Err = domain.ErrGateway
	gw := NewBreakerGateway(mock, NewCircuitBreaker(1, time.Hour, nil))

	_, err := gw.OpenSinglePaymentSession(context.Background(), testOrder())
	require.ErrorIs(t, err, domain.ErrGateway)
	_, err = gw.OpenInstallmentSession(context.Background(), domain.Installment{ID: "i1"})
	require.ErrorIs(t, err, ErrCircuitOpen)
	require.Equal(t, 1, mock.Calls())
}
