package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/storage/memory"
)

func newVariant(id string, stock int) domain.Variant {
	now := time.Now().UTC()
	return domain.Variant{
		ID:        id,
		SKU:       "sku-" + id,
		Name:      "Variant " + id,
		Stock:     stock,
		Price:     decimal.NewFromInt(10),
		Cost:      decimal.NewFromInt(6),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newOrder(id string, createdAt time.Time) domain.Order {
	return domain.Order{
		ID:            id,
		CustomerID:    "customer-1",
		Status:        domain.OrderStatusPending,
		PaymentMethod: domain.PaymentMethodCard,
		Installments:  1,
		Items: []domain.OrderItem{
			{ID: id + "-item", VariantID: "v1", Quantity: 1, UnitPrice: decimal.NewFromInt(10), StockReserved: true},
		},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestStore_CommitPersistsChanges(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		if err := tx.Variants().Create(ctx, newVariant("v1", 5)); err != nil {
			return err
		}
		if err := tx.Variants().UpdateStock(ctx, "v1", 3); err != nil {
			return err
		}
		if err := tx.Movements().Append(ctx, domain.InventoryMovement{VariantID: "v1", Type: domain.MovementReserve, Quantity: 2, Delta: -2}); err != nil {
			return err
		}
		if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{EventType: "order.created"}); err != nil {
			return err
		}
		return tx.Timeline().Append(ctx, domain.TimelineEvent{OrderID: "o1", Type: domain.TimelineOrderCreated})
	})
	require.NoError(t, err)

	require.NoError(t, store.WithinTx(ctx, func(tx domain.Tx) error {
		v, err := tx.Variants().Get(ctx, "v1")
		require.NoError(t, err)
		require.Equal(t, 3, v.Stock)

		moves, err := tx.Movements().List(ctx, domain.MovementFilter{VariantID: "v1"})
		require.NoError(t, err)
		require.Len(t, moves, 1)
		require.NotEmpty(t, moves[0].ID)
		return nil
	}))

	pending, err := store.Outbox().PullPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	events, err := store.Timeline().List("o1")
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestStore_ErrorRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	require.NoError(t, store.WithinTx(ctx, func(tx domain.Tx) error {
		return tx.Variants().Create(ctx, newVariant("v1", 5))
	}))

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		if err := tx.Variants().UpdateStock(ctx, "v1", 0); err != nil {
			return err
		}
		if err := tx.Movements().Append(ctx, domain.InventoryMovement{VariantID: "v1", Type: domain.MovementReserve}); err != nil {
			return err
		}
		if err := tx.Orders().Create(ctx, newOrder("o1", time.Now().UTC())); err != nil {
			return err
		}
		if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{EventType: "order.created"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, store.WithinTx(ctx, func(tx domain.Tx) error {
		v, err := tx.Variants().Get(ctx, "v1")
		require.NoError(t, err)
		require.Equal(t, 5, v.Stock)

		moves, err := tx.Movements().List(ctx, domain.MovementFilter{VariantID: "v1"})
		require.NoError(t, err)
		require.Empty(t, moves)

		_, err = tx.Orders().Get(ctx, "o1")
		require.ErrorIs(t, err, domain.ErrOrderNotFound)
		return nil
	}))

	pending, err := store.Outbox().PullPending(10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestStore_PanicRollsBack(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	require.Panics(t, func() {
		_ = store.WithinTx(ctx, func(tx domain.Tx) error {
			_ = tx.Variants().Create(ctx, newVariant("v1", 5))
			panic("unexpected")
		})
	})

	require.NoError(t, store.WithinTx(ctx, func(tx domain.Tx) error {
		_, err := tx.Variants().Get(ctx, "v1")
		require.ErrorIs(t, err, domain.ErrVariantNotFound)
		return nil
	}))
}

func TestStore_VariantUniqueSKUAndNonNegativeStock(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		require.NoError(t, tx.Variants().Create(ctx, newVariant("v1", 1)))

		dup := newVariant("v2", 1)
		dup.SKU = "sku-v1"
		require.ErrorIs(t, tx.Variants().Create(ctx, dup), domain.ErrVariantExists)
		require.ErrorIs(t, tx.Variants().UpdateStock(ctx, "v1", -1), domain.ErrStockNegative)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_OrderSaveOptimisticLocking(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		order := newOrder("o1", time.Now().UTC())
		order.PaymentSessionRef = "cs_1"
		require.NoError(t, tx.Orders().Create(ctx, order))
		require.ErrorIs(t, tx.Orders().Create(ctx, order), domain.ErrVersionConflict)

		order.Status = domain.OrderStatusPaid
		require.NoError(t, tx.Orders().Save(ctx, order))
		require.ErrorIs(t, tx.Orders().Save(ctx, order), domain.ErrVersionConflict)

		stored, err := tx.Orders().GetBySessionRef(ctx, "cs_1")
		require.NoError(t, err)
		require.Equal(t, int64(1), stored.Version)
		require.Equal(t, domain.OrderStatusPaid, stored.Status)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_OrderListFilter(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		for i, id := range []string{"o3", "o1", "o2"} {
			order := newOrder(id, base.Add(time.Duration(i)*time.Minute))
			order.ExpiresAt = base.Add(time.Duration(i) * time.Hour)
			require.NoError(t, tx.Orders().Create(ctx, order))
		}

		all, err := tx.Orders().List(ctx, domain.OrderFilter{})
		require.NoError(t, err)
		require.Equal(t, []string{"o3", "o1", "o2"}, []string{all[0].ID, all[1].ID, all[2].ID})

		due, err := tx.Orders().List(ctx, domain.OrderFilter{
			Statuses:      []domain.OrderStatus{domain.OrderStatusPending},
			ExpiresBefore: base.Add(90 * time.Minute),
			Limit:         10,
		})
		require.NoError(t, err)
		require.Len(t, due, 2)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_ReturnedOrdersAreCopies(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	require.NoError(t, store.WithinTx(ctx, func(tx domain.Tx) error {
		require.NoError(t, tx.Orders().Create(ctx, newOrder("o1", time.Now().UTC())))
		got, err := tx.Orders().Get(ctx, "o1")
		require.NoError(t, err)
		got.Items[0].StockReserved = false

		again, err := tx.Orders().Get(ctx, "o1")
		require.NoError(t, err)
		require.True(t, again.Items[0].StockReserved)
		return nil
	}))
}

func TestStore_SettlementAndInstallments(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		s := domain.Settlement{ID: "s1", OrderID: "o1", Status: domain.SettlementStatusCompleted}
		require.NoError(t, tx.Settlements().Create(ctx, s))
		require.ErrorIs(t, tx.Settlements().Create(ctx, domain.Settlement{ID: "s2", OrderID: "o1"}), domain.ErrVersionConflict)

		byOrder, err := tx.Settlements().GetByOrder(ctx, "o1")
		require.NoError(t, err)
		require.Equal(t, "s1", byOrder.ID)

		items := []domain.Installment{
			{ID: "i2", SettlementID: "s1", Number: 2, DueDate: now.Add(48 * time.Hour)},
			{ID: "i1", SettlementID: "s1", Number: 1, DueDate: now.Add(24 * time.Hour), SessionRef: "cs_i1"},
		}
		require.NoError(t, tx.Installments().CreateBatch(ctx, items))

		listed, err := tx.Installments().List(ctx, domain.InstallmentFilter{SettlementID: "s1"})
		require.NoError(t, err)
		require.Equal(t, "i1", listed[0].ID)

		bySession, err := tx.Installments().GetBySessionRef(ctx, "cs_i1")
		require.NoError(t, err)
		require.NoError(t, bySession.MarkPaid("pi_1", now))
		require.NoError(t, tx.Installments().Save(ctx, bySession))

		unpaid := false
		open, err := tx.Installments().List(ctx, domain.InstallmentFilter{SettlementID: "s1", Paid: &unpaid})
		require.NoError(t, err)
		require.Len(t, open, 1)
		require.Equal(t, "i2", open[0].ID)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_CanceledContext(t *testing.T) {
	store := memory.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.WithinTx(ctx, func(domain.Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}
