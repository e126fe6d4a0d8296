package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementStatus — состояние проведённой продажи.
type SettlementStatus string

const (
	// Продажа проведена.
	SettlementStatusCompleted SettlementStatus = "completed"
	// Продажа аннулирована компенсирующим действием.
	SettlementStatusVoided SettlementStatus = "voided"
)

// SettlementItem — позиция продажи со снимком цен и себестоимости.
// Все производные поля вычисляются один раз при создании и далее только читаются.
type SettlementItem struct {
	ID            string
	VariantID     string
	SKU           string
	Name          string
	Quantity      int
	PriceUnit     decimal.Decimal
	CostUnit      decimal.Decimal
	Subtotal      decimal.Decimal
	CostTotal     decimal.Decimal
	ProfitUnit    decimal.Decimal
	ProfitTotal   decimal.Decimal
	MarginPercent decimal.Decimal
}

// Settlement — неизменяемая финансовая запись о подтверждённой продаже.
type Settlement struct {
	ID      string
	OrderID string
	// Оператор или продавец, подтвердивший продажу.
	SellerID         string
	CustomerID       string
	Customer         CustomerSnapshot
	Items            []SettlementItem
	Subtotal         decimal.Decimal
	Discount         decimal.Decimal
	Total            decimal.Decimal
	CostTotal        decimal.Decimal
	ProfitTotal      decimal.Decimal
	MarginPercent    decimal.Decimal
	PaymentMethod    PaymentMethod
	PaymentReference string
	InstallmentCount int
	Status           SettlementStatus
	VoidReason       string
	VoidedAt         time.Time
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewSettlement строит продажу из заказа. Функция чистая: не читает живые цены вариантов.
func NewSettlement(id string, order Order, sellerID, paymentRef string, itemIDs func() string, now time.Time) Settlement {
	s := Settlement{
		ID:               id,
		OrderID:          order.ID,
		SellerID:         sellerID,
		CustomerID:       order.CustomerID,
		Customer:         order.Customer,
		Items:            make([]SettlementItem, 0, len(order.Items)),
		Discount:         RoundMoney(order.Discount),
		PaymentMethod:    order.PaymentMethod,
		PaymentReference: paymentRef,
		InstallmentCount: order.Installments,
		Status:           SettlementStatusCompleted,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if s.InstallmentCount < 1 {
		s.InstallmentCount = 1
	}

	subtotal := decimal.Zero
	costTotal := decimal.Zero
	for _, item := range order.Items {
		qty := decimal.NewFromInt(int64(item.Quantity))
		lineSubtotal := RoundMoney(item.Subtotal())
		lineCost := RoundMoney(item.CostUnit.Mul(qty))
		lineProfit := lineSubtotal.Sub(lineCost)

		s.Items = append(s.Items, SettlementItem{
			ID:            itemIDs(),
			VariantID:     item.VariantID,
			SKU:           item.SKU,
			Name:          item.Name,
			Quantity:      item.Quantity,
			PriceUnit:     RoundMoney(item.UnitPrice),
			CostUnit:      RoundMoney(item.CostUnit),
			Subtotal:      lineSubtotal,
			CostTotal:     lineCost,
			ProfitUnit:    RoundMoney(item.UnitPrice.Sub(item.CostUnit)),
			ProfitTotal:   lineProfit,
			MarginPercent: Percent(lineProfit, lineCost),
		})
		subtotal = subtotal.Add(lineSubtotal)
		costTotal = costTotal.Add(lineCost)
	}

	s.Subtotal = subtotal
	s.Total = subtotal.Sub(s.Discount)
	s.CostTotal = costTotal
	s.ProfitTotal = s.Total.Sub(costTotal)
	s.MarginPercent = Percent(s.ProfitTotal, costTotal)

	return s
}

// Void переводит продажу в voided.
func (s *Settlement) Void(reason string, now time.Time) error {
	if s.Status != SettlementStatusCompleted {
		return &TransitionError{Entity: "settlement", ID: s.ID, From: string(s.Status), To: string(SettlementStatusVoided)}
	}
	s.Status = SettlementStatusVoided
	s.VoidReason = reason
	s.VoidedAt = now
	s.UpdatedAt = now
	return nil
}

// Clone возвращает копию продажи с независимым срезом позиций.
func (s Settlement) Clone() Settlement {
	s.Items = append([]SettlementItem(nil), s.Items...)
	return s
}
