package inventory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/service/inventory"
	"github.com/vladislavdragonenkov/sales/internal/storage/memory"
)

func seedVariant(t *testing.T, store *memory.Store, id string, stock int) {
	t.Helper()
	err := store.WithinTx(context.Background(), func(tx domain.Tx) error {
		return tx.Variants().Create(context.Background(), domain.Variant{
			ID:    id,
			SKU:   "SKU-" + id,
			Name:  "Variant " + id,
			Stock: stock,
			Price: decimal.RequireFromString("25.00"),
			Cost:  decimal.RequireFromString("10.00"),
		})
	})
	require.NoError(t, err)
}

func stockOf(t *testing.T, store *memory.Store, id string) int {
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

func movementsOf(t *testing.T, store *memory.Store, id string) []domain.InventoryMovement {
	t.Helper()
	var out []domain.InventoryMovement
	err := store.WithinTx(context.Background(), func(tx domain.Tx) error {
		var err error
		out, err = tx.Movements().List(context.Background(), domain.MovementFilter{VariantID: id})
		return err
	})
	require.NoError(t, err)
	return out
}

func TestLedger_ReserveReleaseConsume(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	ledger := inventory.NewLedger()
	seedVariant(t, store, "v1", 10)

	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		stock, err := ledger.Reserve(ctx, tx, "v1", 3, inventory.Ref{OrderID: "o1"}, "alice")
		require.NoError(t, err)
		require.Equal(t, 7, stock)

		stock, err = ledger.Consume(ctx, tx, "v1", 3, inventory.Ref{OrderID: "o1", SettlementID: "s1"}, "alice")
		require.NoError(t, err)
		require.Equal(t, 7, stock)

		stock, err = ledger.Release(ctx, tx, "v1", 2, inventory.Ref{OrderID: "o2"}, "bob", "canceled")
		require.NoError(t, err)
		require.Equal(t, 9, stock)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 9, stockOf(t, store, "v1"))

	moves := movementsOf(t, store, "v1")
	require.Len(t, moves, 3)
	require.Equal(t, domain.MovementReserve, moves[0].Type)
	require.Equal(t, -3, moves[0].Delta)
	require.Equal(t, 10, moves[0].StockBefore)
	require.Equal(t, 7, moves[0].StockAfter)
	require.Equal(t, "o1", moves[0].OrderID)

	require.Equal(t, domain.MovementConsume, moves[1].Type)
	require.Zero(t, moves[1].Delta)
	require.Equal(t, "s1", moves[1].SettlementID)

	require.Equal(t, domain.MovementRelease, moves[2].Type)
	require.Equal(t, 2, moves[2].Delta)
	require.Equal(t, "canceled", moves[2].Reason)
}

func TestLedger_ReserveInsufficientStock(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	ledger := inventory.NewLedger()
	seedVariant(t, store, "v1", 2)

	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		_, err := ledger.Reserve(ctx, tx, "v1", 3, inventory.Ref{OrderID: "o1"}, "alice")
		return err
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	var stockErr *domain.StockError
	require.True(t, errors.As(err, &stockErr))
	require.Equal(t, 3, stockErr.Requested)
	require.Equal(t, 2, stockErr.Available)

	require.Equal(t, 2, stockOf(t, store, "v1"))
	require.Empty(t, movementsOf(t, store, "v1"))
}

func TestLedger_RollbackRestoresStock(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	ledger := inventory.NewLedger()
	seedVariant(t, store, "v1", 5)
	seedVariant(t, store, "v2", 1)

	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		if _, err := ledger.Reserve(ctx, tx, "v1", 4, inventory.Ref{OrderID: "o1"}, ""); err != nil {
			return err
		}
		_, err := ledger.Reserve(ctx, tx, "v2", 2, inventory.Ref{OrderID: "o1"}, "")
		return err
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	require.Equal(t, 5, stockOf(t, store, "v1"))
	require.Empty(t, movementsOf(t, store, "v1"))
}

func TestLedger_RejectsInvalidQuantity(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	ledger := inventory.NewLedger()
	seedVariant(t, store, "v1", 5)

	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		_, err := ledger.Reserve(ctx, tx, "v1", 0, inventory.Ref{}, "")
		return err
	})
	require.ErrorIs(t, err, domain.ErrValidation)

	err = store.WithinTx(ctx, func(tx domain.Tx) error {
		_, err := ledger.Release(ctx, tx, "missing", 1, inventory.Ref{}, "", "")
		return err
	})
	require.ErrorIs(t, err, domain.ErrVariantNotFound)
}

func TestLedger_Adjust(t *testing.T) {
	tests := []struct {
		name      string
		floor     int
		stock     int
		mode      inventory.AdjustMode
		value     int
		wantAfter int
		wantDelta int
		clamped   bool
	}{
		{name: "delta increase", stock: 5, mode: inventory.AdjustDelta, value: 3, wantAfter: 8, wantDelta: 3},
		{name: "delta decrease", stock: 5, mode: inventory.AdjustDelta, value: -2, wantAfter: 3, wantDelta: -2},
		{name: "delta clamped at zero", stock: 5, mode: inventory.AdjustDelta, value: -9, wantAfter: 0, wantDelta: -5, clamped: true},
		{name: "absolute", stock: 5, mode: inventory.AdjustAbsolute, value: 12, wantAfter: 12, wantDelta: 7},
		{name: "absolute negative clamped", stock: 5, mode: inventory.AdjustAbsolute, value: -1, wantAfter: 0, wantDelta: -5, clamped: true},
		{name: "custom floor", floor: 2, stock: 5, mode: inventory.AdjustDelta, value: -4, wantAfter: 2, wantDelta: -3, clamped: true},
		{name: "below floor never raised by decrease", floor: 4, stock: 3, mode: inventory.AdjustDelta, value: -1, wantAfter: 3, wantDelta: 0, clamped: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := memory.NewStore()
			ledger := inventory.NewLedger(inventory.WithFloor(tt.floor))
			seedVariant(t, store, "v1", tt.stock)

			var result inventory.AdjustResult
			err := store.WithinTx(ctx, func(tx domain.Tx) error {
				var err error
				result, err = ledger.Adjust(ctx, tx, inventory.Adjustment{
					VariantID: "v1",
					Mode:      tt.mode,
					Value:     tt.value,
					Actor:     "ops",
					Reason:    "recount",
				})
				return err
			})
			require.NoError(t, err)
			require.Equal(t, tt.wantAfter, result.StockAfter)
			require.Equal(t, tt.wantDelta, result.Applied)
			require.Equal(t, tt.clamped, result.Clamped())
			require.Equal(t, tt.wantAfter, stockOf(t, store, "v1"))

			moves := movementsOf(t, store, "v1")
			require.Len(t, moves, 1)
			require.Equal(t, domain.MovementAdjust, moves[0].Type)
			require.Equal(t, tt.wantDelta, moves[0].Delta)
			require.Equal(t, "recount", moves[0].Reason)
		})
	}
}

func TestLedger_AdjustValidation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	ledger := inventory.NewLedger()
	seedVariant(t, store, "v1", 5)

	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		_, err := ledger.Adjust(ctx, tx, inventory.Adjustment{VariantID: "v1", Mode: inventory.AdjustDelta, Value: 1})
		return err
	})
	require.ErrorIs(t, err, domain.ErrAdjustReasonNeeded)

	err = store.WithinTx(ctx, func(tx domain.Tx) error {
		_, err := ledger.Adjust(ctx, tx, inventory.Adjustment{VariantID: "v1", Mode: "percent", Value: 1, Reason: "x"})
		return err
	})
	require.ErrorIs(t, err, domain.ErrAdjustModeInvalid)
}
