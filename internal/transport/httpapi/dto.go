package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/sales/internal/domain"
	"github.com/vladislavdragonenkov/sales/internal/service/checkout"
	"github.com/vladislavdragonenkov/sales/internal/service/inventory"
	"github.com/vladislavdragonenkov/sales/internal/service/orders"
	"github.com/vladislavdragonenkov/sales/internal/service/settlement"
)

// Запросы.

type customerDTO struct {
	Name    string `json:"name"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type itemRequest struct {
	VariantID string `json:"variant_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type createOrderRequest struct {
	CustomerID    string          `json:"customer_id"`
	Customer      customerDTO     `json:"customer"`
	Items         []itemRequest   `json:"items" validate:"required,min=1,dive"`
	Discount      decimal.Decimal `json:"discount" validate:"gte=0"`
	PaymentMethod string          `json:"payment_method" validate:"required,oneof=card cash pickup"`
	Installments  int             `json:"installments" validate:"omitempty,oneof=1 3 6 12"`
	Actor         string          `json:"actor"`
}

func (r createOrderRequest) input() orders.CreateInput {
	items := make([]orders.ItemInput, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, orders.ItemInput{VariantID: it.VariantID, Quantity: it.Quantity})
	}
	return orders.CreateInput{
		CustomerID: r.CustomerID,
		Customer: domain.CustomerSnapshot{
			Name:    r.Customer.Name,
			Email:   r.Customer.Email,
			Phone:   r.Customer.Phone,
			Address: r.Customer.Address,
		},
		Items:         items,
		Discount:      r.Discount,
		PaymentMethod: domain.PaymentMethod(r.PaymentMethod),
		Installments:  r.Installments,
		Actor:         actorOr(r.Actor),
	}
}

type confirmRequest struct {
	PaymentReference string `json:"payment_reference" validate:"required"`
	SellerID         string `json:"seller_id"`
	Actor            string `json:"actor"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

type voidRequest struct {
	Reason string `json:"reason" validate:"required"`
	Actor  string `json:"actor"`
}

type registerVariantRequest struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	SKU       string          `json:"sku" validate:"required"`
	Name      string          `json:"name"`
	Stock     int             `json:"stock" validate:"gte=0"`
	Price     decimal.Decimal `json:"price" validate:"gte=0"`
	Cost      decimal.Decimal `json:"cost" validate:"gte=0"`
	Actor     string          `json:"actor"`
}

type adjustRequest struct {
	Mode   string `json:"mode" validate:"required,oneof=delta absolute"`
	Value  int    `json:"value"`
	Reason string `json:"reason" validate:"required"`
	Actor  string `json:"actor"`
}

// Ответы. Деньги сериализуются строками (decimal.Decimal в JSON).

type orderItemResponse struct {
	ID        string          `json:"id"`
	VariantID string          `json:"variant_id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Reserved  bool            `json:"stock_reserved"`
}

type orderResponse struct {
	ID                string               `json:"id"`
	CustomerID        string               `json:"customer_id,omitempty"`
	Customer          customerDTO          `json:"customer"`
	Items             []orderItemResponse  `json:"items"`
	Subtotal          decimal.Decimal      `json:"subtotal"`
	Discount          decimal.Decimal      `json:"discount"`
	Total             decimal.Decimal      `json:"total"`
	Status            domain.OrderStatus   `json:"status"`
	PaymentMethod     domain.PaymentMethod `json:"payment_method"`
	Installments      int                  `json:"installments"`
	PaymentSessionRef string               `json:"payment_session_ref,omitempty"`
	ExpiresAt         time.Time            `json:"expires_at"`
	Version           int64                `json:"version"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

func toOrder(o domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ID:        it.ID,
			VariantID: it.VariantID,
			SKU:       it.SKU,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Subtotal:  it.Subtotal(),
			Reserved:  it.StockReserved,
		})
	}
	return orderResponse{
		ID:         o.ID,
		CustomerID: o.CustomerID,
		Customer: customerDTO{
			Name:    o.Customer.Name,
			Email:   o.Customer.Email,
			Phone:   o.Customer.Phone,
			Address: o.Customer.Address,
		},
		Items:             items,
		Subtotal:          o.Subtotal(),
		Discount:          o.Discount,
		Total:             o.Total(),
		Status:            o.Status,
		PaymentMethod:     o.PaymentMethod,
		Installments:      o.Installments,
		PaymentSessionRef: o.PaymentSessionRef,
		ExpiresAt:         o.ExpiresAt,
		Version:           o.Version,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

func toOrders(list []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(list))
	for _, o := range list {
		out = append(out, toOrder(o))
	}
	return out
}

type sessionResponse struct {
	Ref          string    `json:"ref"`
	URL          string    `json:"url"`
	ClientSecret string    `json:"client_secret,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func toSession(s domain.PaymentSession) *sessionResponse {
	return &sessionResponse{Ref: s.Ref, URL: s.URL, ClientSecret: s.ClientSecret, ExpiresAt: s.ExpiresAt}
}

type settlementItemResponse struct {
	VariantID     string          `json:"variant_id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Quantity      int             `json:"quantity"`
	PriceUnit     decimal.Decimal `json:"price_unit"`
	CostUnit      decimal.Decimal `json:"cost_unit"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	CostTotal     decimal.Decimal `json:"cost_total"`
	ProfitTotal   decimal.Decimal `json:"profit_total"`
	MarginPercent decimal.Decimal `json:"margin_percent"`
}

type settlementResponse struct {
	ID               string                   `json:"id"`
	OrderID          string                   `json:"order_id"`
	SellerID         string                   `json:"seller_id,omitempty"`
	CustomerID       string                   `json:"customer_id,omitempty"`
	Items            []settlementItemResponse `json:"items"`
	Subtotal         decimal.Decimal          `json:"subtotal"`
	Discount         decimal.Decimal          `json:"discount"`
	Total            decimal.Decimal          `json:"total"`
	CostTotal        decimal.Decimal          `json:"cost_total"`
	ProfitTotal      decimal.Decimal          `json:"profit_total"`
	MarginPercent    decimal.Decimal          `json:"margin_percent"`
	PaymentMethod    domain.PaymentMethod     `json:"payment_method"`
	PaymentReference string                   `json:"payment_reference"`
	InstallmentCount int                      `json:"installment_count"`
	Status           domain.SettlementStatus  `json:"status"`
	VoidReason       string                   `json:"void_reason,omitempty"`
	VoidedAt         *time.Time               `json:"voided_at,omitempty"`
	CreatedAt        time.Time                `json:"created_at"`
}

func toSettlement(s domain.Settlement) *settlementResponse {
	items := make([]settlementItemResponse, 0, len(s.Items))
	for _, it := range s.Items {
		items = append(items, settlementItemResponse{
			VariantID:     it.VariantID,
			SKU:           it.SKU,
			Name:          it.Name,
			Quantity:      it.Quantity,
			PriceUnit:     it.PriceUnit,
			CostUnit:      it.CostUnit,
			Subtotal:      it.Subtotal,
			CostTotal:     it.CostTotal,
			ProfitTotal:   it.ProfitTotal,
			MarginPercent: it.MarginPercent,
		})
	}
	resp := &settlementResponse{
		ID:               s.ID,
		OrderID:          s.OrderID,
		SellerID:         s.SellerID,
		CustomerID:       s.CustomerID,
		Items:            items,
		Subtotal:         s.Subtotal,
		Discount:         s.Discount,
		Total:            s.Total,
		CostTotal:        s.CostTotal,
		ProfitTotal:      s.ProfitTotal,
		MarginPercent:    s.MarginPercent,
		PaymentMethod:    s.PaymentMethod,
		PaymentReference: s.PaymentReference,
		InstallmentCount: s.InstallmentCount,
		Status:           s.Status,
		VoidReason:       s.VoidReason,
		CreatedAt:        s.CreatedAt,
	}
	if !s.VoidedAt.IsZero() {
		voided := s.VoidedAt
		resp.VoidedAt = &voided
	}
	return resp
}

type installmentResponse struct {
	ID               string          `json:"id"`
	SettlementID     string          `json:"settlement_id"`
	OrderID          string          `json:"order_id"`
	Number           int             `json:"number"`
	Amount           decimal.Decimal `json:"amount"`
	DueDate          time.Time       `json:"due_date"`
	Paid             bool            `json:"paid"`
	Overdue          bool            `json:"overdue"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	GatewayReference string          `json:"gateway_reference,omitempty"`
	SessionRef       string          `json:"session_ref,omitempty"`
}

func toInstallments(list []domain.Installment, now time.Time) []installmentResponse {
	out := make([]installmentResponse, 0, len(list))
	for _, inst := range list {
		resp := installmentResponse{
			ID:               inst.ID,
			SettlementID:     inst.SettlementID,
			OrderID:          inst.OrderID,
			Number:           inst.Number,
			Amount:           inst.Amount,
			DueDate:          inst.DueDate,
			Paid:             inst.Paid,
			Overdue:          inst.Overdue(now),
			GatewayReference: inst.GatewayReference,
			SessionRef:       inst.SessionRef,
		}
		if inst.Paid {
			paidAt := inst.PaidAt
			resp.PaidAt = &paidAt
		}
		out = append(out, resp)
	}
	return out
}

type settlementDetailsResponse struct {
	Settlement   *settlementResponse   `json:"settlement"`
	Installments []installmentResponse `json:"installments"`
}

func toDetails(d settlement.Details, now time.Time) settlementDetailsResponse {
	return settlementDetailsResponse{
		Settlement:   toSettlement(d.Settlement),
		Installments: toInstallments(d.Installments, now),
	}
}

type checkoutResponse struct {
	Order          orderResponse         `json:"order"`
	Settlement     *settlementResponse   `json:"settlement,omitempty"`
	Installments   []installmentResponse `json:"installments,omitempty"`
	PaymentSession *sessionResponse      `json:"payment_session,omitempty"`
}

func toCheckout(res checkout.Result, now time.Time) checkoutResponse {
	resp := checkoutResponse{Order: toOrder(res.Order)}
	if res.Confirmation != nil {
		resp.Settlement = toSettlement(res.Confirmation.Settlement)
		resp.Installments = toInstallments(res.Confirmation.Installments, now)
	}
	if res.Session != nil {
		resp.PaymentSession = toSession(*res.Session)
	}
	return resp
}

type statsResponse struct {
	Total         int             `json:"total"`
	Paid          int             `json:"paid"`
	Pending       int             `json:"pending"`
	Overdue       int             `json:"overdue"`
	AmountTotal   decimal.Decimal `json:"amount_total"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	AmountPending decimal.Decimal `json:"amount_pending"`
	AmountOverdue decimal.Decimal `json:"amount_overdue"`
}

func toStats(s domain.InstallmentStats) statsResponse {
	return statsResponse{
		Total:         s.Total,
		Paid:          s.Paid,
		Pending:       s.Pending,
		Overdue:       s.Overdue,
		AmountTotal:   s.AmountTotal,
		AmountPaid:    s.AmountPaid,
		AmountPending: s.AmountPending,
		AmountOverdue: s.AmountOverdue,
	}
}

type variantResponse struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id,omitempty"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Stock     int             `json:"stock"`
	Price     decimal.Decimal `json:"price"`
	Cost      decimal.Decimal `json:"cost"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toVariant(v domain.Variant) variantResponse {
	return variantResponse{
		ID:        v.ID,
		ProductID: v.ProductID,
		SKU:       v.SKU,
		Name:      v.Name,
		Stock:     v.Stock,
		Price:     v.Price,
		Cost:      v.Cost,
		CreatedAt: v.CreatedAt,
		UpdatedAt: v.UpdatedAt,
	}
}

type adjustResponse struct {
	Requested   int  `json:"requested"`
	Applied     int  `json:"applied"`
	StockBefore int  `json:"stock_before"`
	StockAfter  int  `json:"stock_after"`
	Clamped     bool `json:"clamped"`
}

func toAdjust(r inventory.AdjustResult) adjustResponse {
	return adjustResponse{
		Requested:   r.Requested,
		Applied:     r.Applied,
		StockBefore: r.StockBefore,
		StockAfter:  r.StockAfter,
		Clamped:     r.Clamped(),
	}
}

type movementResponse struct {
	ID           string              `json:"id"`
	VariantID    string              `json:"variant_id"`
	Type         domain.MovementType `json:"type"`
	Quantity     int                 `json:"quantity"`
	Delta        int                 `json:"delta"`
	StockBefore  int                 `json:"stock_before"`
	StockAfter   int                 `json:"stock_after"`
	OrderID      string              `json:"order_id,omitempty"`
	SettlementID string              `json:"settlement_id,omitempty"`
	Actor        string              `json:"actor"`
	Reason       string              `json:"reason,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}

func toMovements(list []domain.InventoryMovement) []movementResponse {
	out := make([]movementResponse, 0, len(list))
	for _, m := range list {
		out = append(out, movementResponse{
			ID:           m.ID,
			VariantID:    m.VariantID,
			Type:         m.Type,
			Quantity:     m.Quantity,
			Delta:        m.Delta,
			StockBefore:  m.StockBefore,
			StockAfter:   m.StockAfter,
			OrderID:      m.OrderID,
			SettlementID: m.SettlementID,
			Actor:        m.Actor,
			Reason:       m.Reason,
			CreatedAt:    m.CreatedAt,
		})
	}
	return out
}

type timelineResponse struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Actor    string    `json:"actor,omitempty"`
	Occurred time.Time `json:"occurred_at"`
}

func toTimeline(events []domain.TimelineEvent) []timelineResponse {
	out := make([]timelineResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, timelineResponse{Type: ev.Type, Reason: ev.Reason, Actor: ev.Actor, Occurred: ev.Occurred})
	}
	return out
}
