package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

func sampleVariant(id string, stock int, now time.Time) domain.Variant {
	return domain.Variant{
		ID:        id,
		ProductID: "product-1",
		SKU:       "sku-" + id,
		Name:      "Variant " + id,
		Stock:     stock,
		Price:     decimal.RequireFromString("19.99"),
		Cost:      decimal.RequireFromString("7.50"),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func sampleOrder(id, customerID, variantID string, createdAt time.Time) domain.Order {
	return domain.Order{
		ID:            id,
		CustomerID:    customerID,
		Customer:      domain.CustomerSnapshot{Name: "Ann", Email: "ann@example.com"},
		Status:        domain.OrderStatusPending,
		PaymentMethod: domain.PaymentMethodCard,
		Installments:  1,
		Discount:      decimal.RequireFromString("1.00"),
		Items: []domain.OrderItem{
			{
				ID:            id + "-item-1",
				VariantID:     variantID,
				SKU:           "sku-" + variantID,
				Quantity:      2,
				UnitPrice:     decimal.RequireFromString("19.99"),
				CostUnit:      decimal.RequireFromString("7.50"),
				StockReserved: true,
			},
		},
		ExpiresAt: createdAt.Add(30 * time.Minute),
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestStoreTx_PostgresOrderSettlementFlow(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Round(time.Microsecond)

	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		if err := tx.Variants().Create(ctx, sampleVariant("v1", 10, now)); err != nil {
			return err
		}
		if err := tx.Variants().UpdateStock(ctx, "v1", 8); err != nil {
			return err
		}
		if err := tx.Movements().Append(ctx, domain.InventoryMovement{
			VariantID: "v1", Type: domain.MovementReserve, Quantity: 2, Delta: -2,
			StockBefore: 10, StockAfter: 8, OrderID: "o1", CreatedAt: now,
		}); err != nil {
			return err
		}
		order := sampleOrder("o1", "c1", "v1", now)
		order.PaymentSessionRef = "cs_1"
		return tx.Orders().Create(ctx, order)
	})
	require.NoError(t, err)

	err = store.WithinTx(ctx, func(tx domain.Tx) error {
		order, err := tx.Orders().GetForUpdate(ctx, "o1")
		require.NoError(t, err)
		require.True(t, order.Discount.Equal(decimal.NewFromInt(1)))
		require.Len(t, order.Items, 1)
		require.True(t, order.Items[0].UnitPrice.Equal(decimal.RequireFromString("19.99")))

		bySession, err := tx.Orders().GetBySessionRef(ctx, "cs_1")
		require.NoError(t, err)
		require.Equal(t, "o1", bySession.ID)

		require.NoError(t, order.TransitionTo(domain.OrderStatusPaid, now.Add(time.Minute)))
		order.Items[0].StockReserved = false
		require.NoError(t, tx.Orders().Save(ctx, order))

		settlement := domain.NewSettlement("s1", order, "seller-1", "pi_1", func() string { return "si-1" }, now)
		require.NoError(t, tx.Settlements().Create(ctx, settlement))

		schedule, err := domain.BuildSchedule(settlement, 3, now, 0, sequenceIDs("inst"))
		require.NoError(t, err)
		return tx.Installments().CreateBatch(ctx, schedule)
	})
	require.NoError(t, err)

	err = store.WithinTx(ctx, func(tx domain.Tx) error {
		order, err := tx.Orders().Get(ctx, "o1")
		require.NoError(t, err)
		require.Equal(t, domain.OrderStatusPaid, order.Status)
		require.Equal(t, int64(1), order.Version)
		require.False(t, order.Items[0].StockReserved)

		settlement, err := tx.Settlements().GetByOrder(ctx, "o1")
		require.NoError(t, err)
		require.True(t, settlement.Total.Equal(decimal.RequireFromString("38.98")))
		require.True(t, settlement.ProfitTotal.Equal(decimal.RequireFromString("23.98")))
		require.Len(t, settlement.Items, 1)

		installments, err := tx.Installments().List(ctx, domain.InstallmentFilter{SettlementID: "s1"})
		require.NoError(t, err)
		require.Len(t, installments, 3)
		sum := decimal.Zero
		for _, item := range installments {
			sum = sum.Add(item.Amount)
		}
		require.True(t, sum.Equal(settlement.Total))

		moves, err := tx.Movements().List(ctx, domain.MovementFilter{OrderID: "o1"})
		require.NoError(t, err)
		require.Len(t, moves, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestStoreTx_PostgresRollbackAndConstraints(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Round(time.Microsecond)

	require.NoError(t, store.WithinTx(ctx, func(tx domain.Tx) error {
		return tx.Variants().Create(ctx, sampleVariant("v1", 1, now))
	}))

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		require.NoError(t, tx.Variants().UpdateStock(ctx, "v1", 0))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = store.WithinTx(ctx, func(tx domain.Tx) error {
		v, err := tx.Variants().Get(ctx, "v1")
		require.NoError(t, err)
		require.Equal(t, 1, v.Stock)

		require.ErrorIs(t, tx.Variants().Create(ctx, sampleVariant("v1", 1, now)), domain.ErrVariantExists)
		return nil
	})
	require.NoError(t, err)

	err = store.WithinTx(ctx, func(tx domain.Tx) error {
		return tx.Variants().UpdateStock(ctx, "v1", -1)
	})
	require.ErrorIs(t, err, domain.ErrStockNegative)

	err = store.WithinTx(ctx, func(tx domain.Tx) error {
		_, err := tx.Orders().Get(ctx, "missing")
		require.ErrorIs(t, err, domain.ErrOrderNotFound)

		missing := sampleOrder("missing", "c1", "v1", now)
		require.ErrorIs(t, tx.Orders().Save(ctx, missing), domain.ErrOrderNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestStoreTx_PostgresOrderListFilter(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Round(time.Microsecond)

	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		require.NoError(t, tx.Variants().Create(ctx, sampleVariant("v1", 10, now)))
		require.NoError(t, tx.Orders().Create(ctx, sampleOrder("o1", "c1", "v1", now.Add(-2*time.Hour))))
		require.NoError(t, tx.Orders().Create(ctx, sampleOrder("o2", "c2", "v1", now)))

		due, err := tx.Orders().List(ctx, domain.OrderFilter{
			Statuses:      []domain.OrderStatus{domain.OrderStatusPending},
			ExpiresBefore: now,
			Limit:         10,
		})
		require.NoError(t, err)
		require.Len(t, due, 1)
		require.Equal(t, "o1", due[0].ID)
		require.Len(t, due[0].Items, 1)

		byCustomer, err := tx.Orders().List(ctx, domain.OrderFilter{CustomerID: "c2"})
		require.NoError(t, err)
		require.Len(t, byCustomer, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("expected unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23514"}) {
		t.Fatal("check violation is not unique violation")
	}
	if !isCheckViolation(&pgconn.PgError{Code: "23514"}) {
		t.Fatal("expected check violation")
	}
	if isUniqueViolation(errors.New("plain")) {
		t.Fatal("plain error is not unique violation")
	}
}

func sequenceIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return prefix + "-" + string(rune('0'+n))
	}
}
