package expiry_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/service/expiry"
	"github.com/vladislavdragonenkov/sales/internal/service/inventory"
	"github.com/vladislavdragonenkov/sales/internal/service/orders"
	"github.com/vladislavdragonenkov/sales/internal/storage/memory"
)

type env struct {
	store  *memory.Store
	orders *orders.Service
	mu     sync.Mutex
	now    time.Time
}

func (e *env) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *env) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{store: memory.NewStore(), now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	var seq atomic.Int64
	e.orders = orders.NewService(e.store, inventory.NewLedger(inventory.WithClock(e.clock)),
		orders.WithClock(e.clock),
		orders.WithIDGenerator(func() string { return fmt.Sprintf("o-%03d", seq.Add(1)) }),
	)
	err := e.store.WithinTx(context.Background(), func(tx domain.Tx) error {
		return tx.Variants().Create(context.Background(), domain.Variant{
			ID:    "v1",
			SKU:   "SKU-1",
			Name:  "Variant",
			Stock: 10,
			Price: decimal.NewFromInt(10),
			Cost:  decimal.NewFromInt(4),
		})
	})
	require.NoError(t, err)
	return e
}

func (e *env) order(t *testing.T, method domain.PaymentMethod) domain.Order {
	t.Helper()
	order, err := e.orders.Create(context.Background(), orders.CreateInput{
		CustomerID:    "c1",
		Items:         []orders.ItemInput{{VariantID: "v1", Quantity: 2}},
		PaymentMethod: method,
	})
	require.NoError(t, err)
	return order
}

func (e *env) stock(t *testing.T) int {
	t.Helper()
	var stock int
	err := e.store.WithinTx(context.Background(), func(tx domain.Tx) error {
		v, err := tx.Variants().Get(context.Background(), "v1")
		stock = v.Stock
		return err
	})
	require.NoError(t, err)
	return stock
}

func TestSweep_ExpiresAndCancelsOverdueOrders(t *testing.T) {
	e := newEnv(t)
	card := e.order(t, domain.PaymentMethodCard)
	cash := e.order(t, domain.PaymentMethodCash)
	require.Equal(t, 6, e.stock(t))

	e.advance(time.Hour)
	reaper := expiry.NewReaper(e.orders, expiry.WithBatchSize(1))

	res, err := reaper.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, expiry.SweepResult{Expired: 1, Canceled: 1}, res)

	got, err := e.orders.Get(context.Background(), card.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCanceled, got.Status)

	got, err = e.orders.Get(context.Background(), cash.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, got.Status)
	require.Equal(t, 8, e.stock(t))

	var movements []domain.InventoryMovement
	err = e.store.WithinTx(context.Background(), func(tx domain.Tx) error {
		var err error
		movements, err = tx.Movements().List(context.Background(), domain.MovementFilter{OrderID: card.ID})
		return err
	})
	require.NoError(t, err)
	var released []domain.InventoryMovement
	for _, m := range movements {
		if m.Type == domain.MovementRelease {
			released = append(released, m)
		}
	}
	require.Len(t, released, 1)
	require.Equal(t, "expiry-reaper", released[0].Actor)
	require.Equal(t, 2, released[0].Quantity)
}

func TestSweep_CancelsOrdersExpiredOnRead(t *testing.T) {
	e := newEnv(t)
	order := e.order(t, domain.PaymentMethodCard)
	e.advance(time.Hour)

	got, err := e.orders.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusExpired, got.Status)

	res, err := expiry.NewReaper(e.orders).Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, expiry.SweepResult{Expired: 0, Canceled: 1}, res)
	require.Equal(t, 10, e.stock(t))
}

func TestSweep_WithoutAutoCancelKeepsReservation(t *testing.T) {
	e := newEnv(t)
	order := e.order(t, domain.PaymentMethodCard)
	e.advance(time.Hour)

	res, err := expiry.NewReaper(e.orders, expiry.WithAutoCancel(false)).Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, expiry.SweepResult{Expired: 1}, res)

	got, err := e.orders.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusExpired, got.Status)
	require.Equal(t, 8, e.stock(t))
}

func TestSweep_NothingDue(t *testing.T) {
	e := newEnv(t)
	e.order(t, domain.PaymentMethodCard)

	res, err := expiry.NewReaper(e.orders).Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, res)
}

func TestSweep_PropagatesStoreErrors(t *testing.T) {
	boom := errors.New("db down")
	res, err := expiry.NewReaper(&failingOrders{err: boom}).Sweep(context.Background())
	require.ErrorIs(t, err, boom)
	require.Zero(t, res)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	stub := &failingOrders{}
	reaper := expiry.NewReaper(stub, expiry.WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		reaper.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop on context cancel")
	}
	require.Positive(t, stub.calls.Load())
}

type failingOrders struct {
	err   error
	calls atomic.Int64
}

func (f *failingOrders) ExpireDue(context.Context, int) ([]domain.Order, error) {
	f.calls.Add(1)
	return nil, f.err
}

func (f *failingOrders) List(context.Context, domain.OrderFilter) ([]domain.Order, error) {
	return nil, f.err
}

func (f *failingOrders) Cancel(context.Context, string, string, string) (domain.Order, error) {
	return domain.Order{}, f.err
}
