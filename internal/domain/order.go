package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа (попытки оформления покупки).
type OrderStatus string

const (
	// Заказ создан, товар зарезервирован, ждём оплату.
	OrderStatusPending OrderStatus = "pending"
	// Оплата подтверждена, заказ превращён в продажу.
	OrderStatusPaid OrderStatus = "paid"
	// Заказ отменён, резерв снят.
	OrderStatusCanceled OrderStatus = "canceled"
	// Истёк срок ожидания оплаты; резерв снимается отдельной отменой.
	OrderStatusExpired OrderStatus = "expired"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusCanceled, OrderStatusExpired:
		return true
	default:
		return false
	}
}

// PaymentMethod — выбранный клиентом способ оплаты.
type PaymentMethod string

const (
	// Онлайн-оплата через платёжный шлюз.
	PaymentMethodCard PaymentMethod = "card"
	// Оплата наличными, подтверждается оператором.
	PaymentMethodCash PaymentMethod = "cash"
	// Оплата при самовывозе до истечения срока.
	PaymentMethodPickup PaymentMethod = "pickup"
)

// Valid проверяет способ оплаты.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodCash, PaymentMethodPickup:
		return true
	default:
		return false
	}
}

// allowedInstallmentCounts — разрешённые варианты рассрочки.
var allowedInstallmentCounts = map[int]struct{}{1: {}, 3: {}, 6: {}, 12: {}}

// ValidInstallmentCount сообщает, поддерживается ли число платежей n.
func ValidInstallmentCount(n int) bool {
	_, ok := allowedInstallmentCounts[n]
	return ok
}

// CustomerSnapshot — контактные данные клиента на момент оформления. Не меняются после создания.
type CustomerSnapshot struct {
	Name    string
	Email   string
	Phone   string
	Address string
}

// OrderItem — снимок варианта на момент заказа.
type OrderItem struct {
	ID        string
	VariantID string
	SKU       string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	// Себестоимость на момент резервирования, переносится в продажу.
	CostUnit decimal.Decimal
	// StockReserved сбрасывается ровно один раз: при списании или при снятии резерва.
	StockReserved bool
}

// Subtotal всегда пересчитывается из количества и цены.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID string
	// CustomerID пустой для гостевого оформления.
	CustomerID    string
	Customer      CustomerSnapshot
	Items         []OrderItem
	Discount      decimal.Decimal
	Status        OrderStatus
	PaymentMethod PaymentMethod
	// Ожидаемое число платежей (1 — единовременная оплата).
	Installments int
	// Идентификатор сессии шлюза для единовременной оплаты.
	PaymentSessionRef string
	// ExpiresAt нулевой, если срок ожидания не ограничен.
	ExpiresAt time.Time
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subtotal — сумма позиций.
func (o *Order) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range o.Items {
		sum = sum.Add(item.Subtotal())
	}
	return sum
}

// Total = Subtotal - Discount.
func (o *Order) Total() decimal.Decimal {
	return o.Subtotal().Sub(o.Discount)
}

// IsTerminal сообщает, что заказ больше не может быть подтверждён.
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusPaid || o.Status == OrderStatusCanceled
}

// DeadlinePassed возвращает true, если у заказа есть срок и он истёк к моменту now.
func (o *Order) DeadlinePassed(now time.Time) bool {
	return !o.ExpiresAt.IsZero() && now.After(o.ExpiresAt)
}

// EffectiveStatus учитывает ленивое истечение: ожидающий заказ с прошедшим сроком считается expired.
func (o *Order) EffectiveStatus(now time.Time) OrderStatus {
	if o.Status == OrderStatusPending && o.DeadlinePassed(now) {
		return OrderStatusExpired
	}
	return o.Status
}

// CanTransition проверяет допустимость перехода from → to.
func CanTransition(from, to OrderStatus) bool {
	switch from {
	case OrderStatusPending:
		return to == OrderStatusPaid || to == OrderStatusCanceled || to == OrderStatusExpired
	case OrderStatusExpired:
		return to == OrderStatusCanceled
	default:
		return false
	}
}

// TransitionTo переводит заказ в новый статус или возвращает TransitionError.
func (o *Order) TransitionTo(to OrderStatus, now time.Time) error {
	from := o.EffectiveStatus(now)
	if !CanTransition(from, to) {
		return &TransitionError{Entity: "order", ID: o.ID, From: string(from), To: string(to)}
	}
	o.Status = to
	o.UpdatedAt = now
	return nil
}

// ReservedItems возвращает индексы позиций, по которым резерв ещё не снят.
func (o *Order) ReservedItems() []int {
	idx := make([]int, 0, len(o.Items))
	for i, item := range o.Items {
		if item.StockReserved {
			idx = append(idx, i)
		}
	}
	return idx
}

// Clone возвращает копию заказа с независимым срезом позиций.
func (o Order) Clone() Order {
	o.Items = append([]OrderItem(nil), o.Items...)
	return o
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	for _, item := range o.Items {
		if item.VariantID == "" {
			errs = append(errs, ErrVariantRequired)
		}
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPrice.IsNegative() {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}
	if o.Discount.IsNegative() || o.Discount.GreaterThan(o.Subtotal()) {
		errs = append(errs, ErrDiscountInvalid)
	}
	if !o.PaymentMethod.Valid() {
		errs = append(errs, ErrPaymentMethodInvalid)
	}
	if !ValidInstallmentCount(o.Installments) {
		errs = append(errs, ErrInstallmentCountInvalid)
	} else if o.Installments > 1 && o.PaymentMethod != PaymentMethodCard {
		errs = append(errs, ErrInstallmentsNeedCard)
	}

	return errs
}
