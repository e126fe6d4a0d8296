package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Variant — продаваемая единица (товар + размер/цвет) со своим остатком.
type Variant struct {
	ID        string
	ProductID string
	// Внешний артикул варианта.
	SKU  string
	Name string
	// Stock изменяется только через складской журнал и никогда не опускается ниже нуля.
	Stock int
	// Цена продажи за единицу.
	Price decimal.Decimal
	// Себестоимость единицы, снимается в позицию заказа при резервировании.
	Cost      decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate проверяет поля варианта перед регистрацией.
func (v *Variant) Validate() []error {
	var errs []error

	if strings.TrimSpace(v.SKU) == "" {
		errs = append(errs, ErrSKURequired)
	}
	if v.Stock < 0 {
		errs = append(errs, ErrStockNegative)
	}
	if v.Price.IsNegative() || v.Cost.IsNegative() {
		errs = append(errs, ErrVariantPriceNeg)
	}

	return errs
}
