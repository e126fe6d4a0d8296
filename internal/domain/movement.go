package domain

import "time"

// MovementType — вид записи складского журнала.
type MovementType string

const (
	// Резерв под заказ, остаток уменьшается.
	MovementReserve MovementType = "reserve"
	// Резерв превращён в продажу, остаток не меняется.
	MovementConsume MovementType = "consume"
	// Резерв снят, остаток возвращается.
	MovementRelease MovementType = "release"
	// Ручная корректировка.
	MovementAdjust MovementType = "adjust"
)

// Valid проверяет тип движения.
func (t MovementType) Valid() bool {
	switch t {
	case MovementReserve, MovementConsume, MovementRelease, MovementAdjust:
		return true
	default:
		return false
	}
}

// InventoryMovement — запись журнала движения остатков. Только добавляется.
type InventoryMovement struct {
	ID        string
	VariantID string
	Type      MovementType
	// Количество единиц, затронутых операцией (без знака).
	Quantity int
	// Фактическое изменение остатка со знаком.
	Delta        int
	StockBefore  int
	StockAfter   int
	OrderID      string
	SettlementID string
	Actor        string
	Reason       string
	CreatedAt    time.Time
}
