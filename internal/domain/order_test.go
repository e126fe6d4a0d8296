package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

// helper для создания базового заказа с одной позицией.
func makeOrder() domain.Order {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:            "order-1",
		CustomerID:    "customer-1",
		Status:        domain.OrderStatusPending,
		PaymentMethod: domain.PaymentMethodCard,
		Installments:  1,
		Items: []domain.OrderItem{
			{
				ID:            "item-1",
				VariantID:     "variant-1",
				SKU:           "sku-1",
				Quantity:      5,
				UnitPrice:     decimal.RequireFromString("10.00"),
				CostUnit:      decimal.RequireFromString("6.00"),
				StockReserved: true,
			},
		},
		ExpiresAt: now.Add(30 * time.Minute),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *domain.Order)
		want   error
	}{
		{name: "no items", mutate: func(o *domain.Order) { o.Items = nil }, want: domain.ErrItemsRequired},
		{name: "zero qty", mutate: func(o *domain.Order) { o.Items[0].Quantity = 0 }, want: domain.ErrItemQtyInvalid},
		{name: "negative price", mutate: func(o *domain.Order) { o.Items[0].UnitPrice = decimal.NewFromInt(-1) }, want: domain.ErrItemPriceInvalid},
		{name: "discount above subtotal", mutate: func(o *domain.Order) { o.Discount = decimal.NewFromInt(51) }, want: domain.ErrDiscountInvalid},
		{name: "negative discount", mutate: func(o *domain.Order) { o.Discount = decimal.NewFromInt(-1) }, want: domain.ErrDiscountInvalid},
		{name: "unknown method", mutate: func(o *domain.Order) { o.PaymentMethod = "barter" }, want: domain.ErrPaymentMethodInvalid},
		{name: "installment count", mutate: func(o *domain.Order) { o.Installments = 4 }, want: domain.ErrInstallmentCountInvalid},
		{name: "installments need card", mutate: func(o *domain.Order) {
			o.PaymentMethod = domain.PaymentMethodCash
			o.Installments = 3
		}, want: domain.ErrInstallmentsNeedCard},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mutate(&order)
			errs := order.ValidateInvariants()
			require.NotEmpty(t, errs)
			require.ErrorIs(t, errors.Join(errs...), tc.want)
		})
	}
}

func TestOrderTotals(t *testing.T) {
	order := makeOrder()
	order.Discount = decimal.RequireFromString("5.50")

	require.True(t, order.Subtotal().Equal(decimal.RequireFromString("50")))
	require.True(t, order.Total().Equal(decimal.RequireFromString("44.50")))
}

func TestOrderTransitions(t *testing.T) {
	order := makeOrder()
	now := order.CreatedAt.Add(time.Minute)

	require.NoError(t, order.TransitionTo(domain.OrderStatusPaid, now))
	require.Equal(t, domain.OrderStatusPaid, order.Status)

	err := order.TransitionTo(domain.OrderStatusCanceled, now)
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	var te *domain.TransitionError
	require.True(t, errors.As(err, &te))
	require.Equal(t, "paid", te.From)
	require.Equal(t, "canceled", te.To)
}

func TestOrderLazyExpiry(t *testing.T) {
	order := makeOrder()
	late := order.ExpiresAt.Add(time.Second)

	require.Equal(t, domain.OrderStatusPending, order.EffectiveStatus(order.ExpiresAt))
	require.Equal(t, domain.OrderStatusExpired, order.EffectiveStatus(late))

	// Просроченный заказ нельзя оплатить, но можно отменить.
	paid := order.Clone()
	require.ErrorIs(t, paid.TransitionTo(domain.OrderStatusPaid, late), domain.ErrInvalidStateTransition)
	require.NoError(t, order.TransitionTo(domain.OrderStatusCanceled, late))
}

func TestOrderWithoutDeadlineNeverExpires(t *testing.T) {
	order := makeOrder()
	order.ExpiresAt = time.Time{}
	require.Equal(t, domain.OrderStatusPending, order.EffectiveStatus(order.CreatedAt.Add(1000*time.Hour)))
}

func TestOrderCloneIsIndependent(t *testing.T) {
	order := makeOrder()
	clone := order.Clone()
	clone.Items[0].StockReserved = false

	require.True(t, order.Items[0].StockReserved)
	require.Equal(t, []int{0}, order.ReservedItems())
	require.Empty(t, clone.ReservedItems())
}
