package domain

import "time"

const maxFilterLimit = 1000

// OrderFilter — параметры выборки заказов. Пустые поля не ограничивают выборку.
type OrderFilter struct {
	CustomerID string
	Statuses   []OrderStatus
	// ExpiresBefore отбирает заказы с ExpiresAt строго раньше указанного момента.
	ExpiresBefore time.Time
	Limit         int
}

// Validate проверяет фильтр на границе системы.
func (f OrderFilter) Validate() error {
	for _, s := range f.Statuses {
		if !s.Valid() {
			return ErrFilterInvalid
		}
	}
	if f.Limit < 0 || f.Limit > maxFilterLimit {
		return ErrFilterInvalid
	}
	return nil
}

// Matches сообщает, попадает ли заказ под фильтр.
func (f OrderFilter) Matches(o *Order) bool {
	if f.CustomerID != "" && o.CustomerID != f.CustomerID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if o.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.ExpiresBefore.IsZero() && (o.ExpiresAt.IsZero() || !o.ExpiresAt.Before(f.ExpiresBefore)) {
		return false
	}
	return true
}

// InstallmentFilter — параметры выборки платежей рассрочки.
type InstallmentFilter struct {
	SettlementID string
	// Paid: nil не фильтрует, true оставляет оплаченные, false неоплаченные.
	Paid *bool
	// DueBefore отбирает платежи со сроком раньше указанного момента (просрочка).
	DueBefore time.Time
	Limit     int
}

// Validate проверяет фильтр на границе системы.
func (f InstallmentFilter) Validate() error {
	if f.Limit < 0 || f.Limit > maxFilterLimit {
		return ErrFilterInvalid
	}
	return nil
}

// Matches сообщает, попадает ли платёж под фильтр.
func (f InstallmentFilter) Matches(i *Installment) bool {
	if f.SettlementID != "" && i.SettlementID != f.SettlementID {
		return false
	}
	if f.Paid != nil && i.Paid != *f.Paid {
		return false
	}
	if !f.DueBefore.IsZero() && !i.DueDate.Before(f.DueBefore) {
		return false
	}
	return true
}

// MovementFilter — параметры выборки складского журнала.
type MovementFilter struct {
	VariantID string
	OrderID   string
	Types     []MovementType
	Limit     int
}

// Validate проверяет фильтр на границе системы.
func (f MovementFilter) Validate() error {
	if f.VariantID == "" && f.OrderID == "" {
		return ErrFilterInvalid
	}
	for _, t := range f.Types {
		if !t.Valid() {
			return ErrFilterInvalid
		}
	}
	if f.Limit < 0 || f.Limit > maxFilterLimit {
		return ErrFilterInvalid
	}
	return nil
}

// Matches сообщает, попадает ли движение под фильтр.
func (f MovementFilter) Matches(m *InventoryMovement) bool {
	if f.VariantID != "" && m.VariantID != f.VariantID {
		return false
	}
	if f.OrderID != "" && m.OrderID != f.OrderID {
		return false
	}
	if len(f.Types) > 0 {
		for _, t := range f.Types {
			if m.Type == t {
				return true
			}
		}
		return false
	}
	return true
}
