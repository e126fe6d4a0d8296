package postgres

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/service/installments"
	"github.com/vladislavdragonenkov/sales/internal/service/inventory"
	"github.com/vladislavdragonenkov/sales/internal/service/orders"
	"github.com/vladislavdragonenkov/sales/internal/service/webhook"
)

func seedVariantsForIntegrationTest(t *testing.T, store *Store, stock int, ids ...string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Round(time.Microsecond)
	require.NoError(t, store.WithinTx(ctx, func(tx domain.Tx) error {
		for _, id := range ids {
			if err := tx.Variants().Create(ctx, sampleVariant(id, stock, now)); err != nil {
				return err
			}
		}
		return nil
	}))
}

func variantStock(t *testing.T, store *Store, id string) int {
	t.Helper()
	var stock int
	err := store.WithinTx(context.Background(), func(tx domain.Tx) error {
		v, err := tx.Variants().Get(context.Background(), id)
		stock = v.Stock
		return err
	})
	require.NoError(t, err)
	return stock
}

func TestConcurrency_PostgresCreateReservesStockOnce(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedVariantsForIntegrationTest(t, store, 5, "hot")
	svc := orders.NewService(store, inventory.NewLedger())

	const buyers = 8
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
		errsMu    sync.Mutex
		errs      []error
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), orders.CreateInput{
				Items:         []orders.ItemInput{{VariantID: "hot", Quantity: 5}},
				PaymentMethod: domain.PaymentMethodCard,
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				rejected.Add(1)
			default:
				errsMu.Lock()
				errs = append(errs, err)
				errsMu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Equal(t, int32(1), succeeded.Load())
	require.Equal(t, int32(buyers-1), rejected.Load())
	require.Equal(t, 0, variantStock(t, store, "hot"))
}

func TestConcurrency_PostgresCrossedItemOrdersDoNotDeadlock(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedVariantsForIntegrationTest(t, store, 100, "va", "vb")
	svc := orders.NewService(store, inventory.NewLedger())

	const rounds = 10
	var (
		wg     sync.WaitGroup
		errsMu sync.Mutex
		errs   []error
	)
	for i := 0; i < rounds; i++ {
		items := []orders.ItemInput{{VariantID: "va", Quantity: 1}, {VariantID: "vb", Quantity: 1}}
		if i%2 == 1 {
			items[0], items[1] = items[1], items[0]
		}
		wg.Add(1)
		go func(items []orders.ItemInput) {
			defer wg.Done()
			_, err := svc.Create(context.Background(), orders.CreateInput{Items: items, PaymentMethod: domain.PaymentMethodCash})
			if err != nil {
				errsMu.Lock()
				errs = append(errs, err)
				errsMu.Unlock()
			}
		}(items)
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Equal(t, 100-rounds, variantStock(t, store, "va"))
	require.Equal(t, 100-rounds, variantStock(t, store, "vb"))
}

func TestConcurrency_PostgresConfirmCancelRace(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedVariantsForIntegrationTest(t, store, 10, "v1")
	svc := orders.NewService(store, inventory.NewLedger())
	ctx := context.Background()

	order, err := svc.Create(ctx, orders.CreateInput{
		Items:         []orders.ItemInput{{VariantID: "v1", Quantity: 3}},
		PaymentMethod: domain.PaymentMethodCard,
	})
	require.NoError(t, err)

	var (
		wg                    sync.WaitGroup
		confirmErr, cancelErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, confirmErr = svc.Confirm(ctx, order.ID, orders.ConfirmInput{PaymentReference: "pi_race", Actor: "gateway"})
	}()
	go func() {
		defer wg.Done()
		_, cancelErr = svc.Cancel(ctx, order.ID, "ann", "changed mind")
	}()
	wg.Wait()

	require.True(t, (confirmErr == nil) != (cancelErr == nil), "confirm=%v cancel=%v", confirmErr, cancelErr)
	if confirmErr == nil {
		require.ErrorIs(t, cancelErr, domain.ErrInvalidStateTransition)
		require.Equal(t, 7, variantStock(t, store, "v1"))
	} else {
		require.ErrorIs(t, confirmErr, domain.ErrInvalidStateTransition)
		require.Equal(t, 10, variantStock(t, store, "v1"))
	}
}

func TestConcurrency_PostgresDuplicateWebhookAppliesOnce(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedVariantsForIntegrationTest(t, store, 10, "v1")
	svc := orders.NewService(store, inventory.NewLedger())
	handler := webhook.NewHandler(svc, installments.NewService(store, nil), NewIdempotencyRepository(store))
	ctx := context.Background()

	order, err := svc.Create(ctx, orders.CreateInput{
		Items:         []orders.ItemInput{{VariantID: "v1", Quantity: 1}},
		PaymentMethod: domain.PaymentMethodCard,
	})
	require.NoError(t, err)

	const deliveries = 10
	ev := domain.PaymentEvent{ID: "evt_pg", Kind: domain.PaymentEventSingleSucceeded, OrderID: order.ID, PaymentRef: "pi_1"}
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		kinds = map[webhook.OutcomeKind]int{}
		errs  []error
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := handler.Handle(ctx, ev)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			kinds[out.Kind]++
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Equal(t, 1, kinds[webhook.OutcomeApplied])
	require.Equal(t, deliveries-1, kinds[webhook.OutcomeDuplicate])

	got, err := svc.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPaid, got.Status)
}
