package settlement_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/service/inventory"
	"github.com/vladislavdragonenkov/sales/internal/service/orders"
	"github.com/vladislavdragonenkov/sales/internal/service/settlement"
	"github.com/vladislavdragonenkov/sales/internal/storage/memory"
)

var fixedNow = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func confirmedOrder(t *testing.T, store *memory.Store, ledger *inventory.Ledger, installments int) orders.Confirmation {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.WithinTx(ctx, func(tx domain.Tx) error {
		return tx.Variants().Create(ctx, domain.Variant{
			ID:    "v1",
			SKU:   "SKU-1",
			Stock: 5,
			Price: decimal.RequireFromString("30.00"),
			Cost:  decimal.RequireFromString("12.00"),
		})
	}))

	svc := orders.NewService(store, ledger, orders.WithClock(clock))
	order, err := svc.Create(ctx, orders.CreateInput{
		Items:         []orders.ItemInput{{VariantID: "v1", Quantity: 2}},
		PaymentMethod: domain.PaymentMethodCard,
		Installments:  installments,
	})
	require.NoError(t, err)

	confirmation, err := svc.Confirm(ctx, order.ID, orders.ConfirmInput{PaymentReference: "pi_1", SellerID: "seller"})
	require.NoError(t, err)
	return confirmation
}

func stock(t *testing.T, store *memory.Store) int {
	t.Helper()
	var v domain.Variant
	require.NoError(t, store.WithinTx(context.Background(), func(tx domain.Tx) error {
		var err error
		v, err = tx.Variants().Get(context.Background(), "v1")
		return err
	}))
	return v.Stock
}

func TestVoid_DoesNotRestockByDefault(t *testing.T) {
	store := memory.NewStore()
	ledger := inventory.NewLedger()
	c := confirmedOrder(t, store, ledger, 1)
	svc := settlement.NewService(store, ledger, settlement.WithClock(clock))

	voided, err := svc.Void(context.Background(), c.Settlement.ID, settlement.VoidInput{Reason: "fraud", Actor: "ops"})
	require.NoError(t, err)
	require.Equal(t, domain.SettlementStatusVoided, voided.Status)
	require.Equal(t, "fraud", voided.VoidReason)
	require.Equal(t, fixedNow, voided.VoidedAt)
	require.Equal(t, 3, stock(t, store))

	_, err = svc.Void(context.Background(), c.Settlement.ID, settlement.VoidInput{Reason: "again"})
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	events, err := store.Timeline().List(c.Order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TimelineSettlementVoid, events[len(events)-1].Type)
}

func TestVoid_RestockReleasesWithSettlementRef(t *testing.T) {
	store := memory.NewStore()
	ledger := inventory.NewLedger()
	c := confirmedOrder(t, store, ledger, 1)
	svc := settlement.NewService(store, ledger, settlement.WithRestockOnVoid(true))

	_, err := svc.Void(context.Background(), c.Settlement.ID, settlement.VoidInput{Reason: "returned", Actor: "ops"})
	require.NoError(t, err)
	require.Equal(t, 5, stock(t, store))

	var moves []domain.InventoryMovement
	require.NoError(t, store.WithinTx(context.Background(), func(tx domain.Tx) error {
		var err error
		moves, err = tx.Movements().List(context.Background(), domain.MovementFilter{
			VariantID: "v1",
			Types:     []domain.MovementType{domain.MovementRelease},
		})
		return err
	}))
	require.Len(t, moves, 1)
	require.Equal(t, c.Settlement.ID, moves[0].SettlementID)
}

func TestVoid_RequiresReason(t *testing.T) {
	svc := settlement.NewService(memory.NewStore(), nil)
	_, err := svc.Void(context.Background(), "s1", settlement.VoidInput{Reason: "  "})
	require.ErrorIs(t, err, domain.ErrVoidReasonRequired)
}

func TestGetAndGetByOrder(t *testing.T) {
	store := memory.NewStore()
	ledger := inventory.NewLedger()
	c := confirmedOrder(t, store, ledger, 6)
	svc := settlement.NewService(store, ledger)

	byID, err := svc.Get(context.Background(), c.Settlement.ID)
	require.NoError(t, err)
	require.Len(t, byID.Installments, 6)
	require.Equal(t, "60", byID.Settlement.Total.String())

	sum := decimal.Zero
	for _, inst := range byID.Installments {
		sum = sum.Add(inst.Amount)
	}
	require.True(t, sum.Equal(byID.Settlement.Total))

	byOrder, err := svc.GetByOrder(context.Background(), c.Order.ID)
	require.NoError(t, err)
	require.Equal(t, c.Settlement.ID, byOrder.Settlement.ID)

	_, err = svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrSettlementNotFound)
}
