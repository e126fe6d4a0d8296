package app

import (
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/service/inventory"
	"github.com/vladislavdragonenkov/sales/internal/service/orders"
)

func registerInput(id string, stock int) inventory.RegisterInput {
	return inventory.RegisterInput{
		ID:    id,
		SKU:   "SKU-" + id,
		Name:  "Variant " + id,
		Stock: stock,
		Price: decimal.RequireFromString("30.00"),
		Cost:  decimal.RequireFromString("12.00"),
		Actor: "test",
	}
}

func checkoutInput(variantID string, qty int) orders.CreateInput {
	return orders.CreateInput{
		CustomerID:    "c1",
		Items:         []orders.ItemInput{{VariantID: variantID, Quantity: qty}},
		PaymentMethod: domain.PaymentMethodCard,
		Installments:  1,
		Actor:         "test",
	}
}
