package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

// Ref связывает движение остатка с заказом или продажей.
type Ref struct {
	OrderID      string
	SettlementID string
}

// AdjustMode определяет, как трактуется значение корректировки.
type AdjustMode string

const (
	// Значение прибавляется к текущему остатку.
	AdjustDelta AdjustMode = "delta"
	// Значение становится новым остатком.
	AdjustAbsolute AdjustMode = "absolute"
)

// Adjustment — ручная корректировка остатка.
type Adjustment struct {
	VariantID string
	Mode      AdjustMode
	Value     int
	Actor     string
	Reason    string
}

// AdjustResult описывает фактически применённую корректировку.
// Applied может отличаться от Requested, если остаток упёрся в нижнюю границу.
type AdjustResult struct {
	Requested   int
	Applied     int
	StockBefore int
	StockAfter  int
}

// Clamped сообщает, что корректировка была урезана.
func (r AdjustResult) Clamped() bool {
	return r.Requested != r.Applied
}

// LedgerOption настраивает Ledger.
type LedgerOption func(*Ledger)

// WithFloor задаёт нижнюю границу остатка для ручных корректировок. Отрицательные значения игнорируются.
func WithFloor(floor int) LedgerOption {
	return func(l *Ledger) {
		if floor > 0 {
			l.floor = floor
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(clock func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// Ledger — единственный код, который меняет остаток варианта.
// Каждое изменение сопровождается записью в журнал внутри той же транзакции.
type Ledger struct {
	floor int
	clock func() time.Time
}

// NewLedger создаёт журнал остатков.
func NewLedger(opts ...LedgerOption) *Ledger {
	l := &Ledger{clock: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Reserve уменьшает остаток на qty под заказ. Нехватка остатка возвращает *domain.StockError.
func (l *Ledger) Reserve(ctx context.Context, tx domain.Tx, variantID string, qty int, ref Ref, actor string) (int, error) {
	if qty <= 0 {
		return 0, domain.ErrQuantityInvalid
	}
	v, err := tx.Variants().GetForUpdate(ctx, variantID)
	if err != nil {
		return 0, err
	}
	if qty > v.Stock {
		return v.Stock, &domain.StockError{VariantID: variantID, Requested: qty, Available: v.Stock}
	}
	return l.apply(ctx, tx, v, domain.MovementReserve, qty, -qty, ref, actor, "")
}

// Release возвращает qty единиц на склад. Вызывающий отвечает за то, чтобы не снять резерв дважды.
func (l *Ledger) Release(ctx context.Context, tx domain.Tx, variantID string, qty int, ref Ref, actor, reason string) (int, error) {
	if qty <= 0 {
		return 0, domain.ErrQuantityInvalid
	}
	v, err := tx.Variants().GetForUpdate(ctx, variantID)
	if err != nil {
		return 0, err
	}
	return l.apply(ctx, tx, v, domain.MovementRelease, qty, qty, ref, actor, reason)
}

// Consume фиксирует продажу зарезервированных единиц. Остаток уже уменьшен при резерве.
func (l *Ledger) Consume(ctx context.Context, tx domain.Tx, variantID string, qty int, ref Ref, actor string) (int, error) {
	if qty <= 0 {
		return 0, domain.ErrQuantityInvalid
	}
	v, err := tx.Variants().GetForUpdate(ctx, variantID)
	if err != nil {
		return 0, err
	}
	return l.apply(ctx, tx, v, domain.MovementConsume, qty, 0, ref, actor, "")
}

// Adjust применяет ручную корректировку. Результат ниже границы молча урезается,
// а в журнал пишется фактически применённая дельта.
func (l *Ledger) Adjust(ctx context.Context, tx domain.Tx, adj Adjustment) (AdjustResult, error) {
	if strings.TrimSpace(adj.Reason) == "" {
		return AdjustResult{}, domain.ErrAdjustReasonNeeded
	}
	if adj.Mode != AdjustDelta && adj.Mode != AdjustAbsolute {
		return AdjustResult{}, domain.ErrAdjustModeInvalid
	}

	v, err := tx.Variants().GetForUpdate(ctx, adj.VariantID)
	if err != nil {
		return AdjustResult{}, err
	}

	before := v.Stock
	target := adj.Value
	if adj.Mode == AdjustDelta {
		target = before + adj.Value
	}
	requested := target - before
	if target < l.floor && target < before {
		target = min(before, l.floor)
	}

	result := AdjustResult{
		Requested:   requested,
		Applied:     target - before,
		StockBefore: before,
		StockAfter:  target,
	}

	qty := result.Applied
	if qty < 0 {
		qty = -qty
	}
	if _, err := l.apply(ctx, tx, v, domain.MovementAdjust, qty, result.Applied, Ref{}, adj.Actor, adj.Reason); err != nil {
		return AdjustResult{}, err
	}
	return result, nil
}

// Seed записывает начальный остаток только что созданного варианта.
func (l *Ledger) Seed(ctx context.Context, tx domain.Tx, v domain.Variant, actor string) error {
	if v.Stock == 0 {
		return nil
	}
	return tx.Movements().Append(ctx, domain.InventoryMovement{
		VariantID:   v.ID,
		Type:        domain.MovementAdjust,
		Quantity:    v.Stock,
		Delta:       v.Stock,
		StockBefore: 0,
		StockAfter:  v.Stock,
		Actor:       actor,
		Reason:      "initial stock",
		CreatedAt:   l.clock(),
	})
}

func (l *Ledger) apply(
	ctx context.Context,
	tx domain.Tx,
	v domain.Variant,
	kind domain.MovementType,
	qty, delta int,
	ref Ref,
	actor, reason string,
) (int, error) {
	after := v.Stock + delta
	if after < 0 {
		return v.Stock, &domain.StockError{VariantID: v.ID, Requested: -delta, Available: v.Stock}
	}
	if delta != 0 {
		if err := tx.Variants().UpdateStock(ctx, v.ID, after); err != nil {
			return v.Stock, fmt.Errorf("update stock of %s: %w", v.ID, err)
		}
	}

	movement := domain.InventoryMovement{
		VariantID:    v.ID,
		Type:         kind,
		Quantity:     qty,
		Delta:        delta,
		StockBefore:  v.Stock,
		StockAfter:   after,
		OrderID:      ref.OrderID,
		SettlementID: ref.SettlementID,
		Actor:        actor,
		Reason:       reason,
		CreatedAt:    l.clock(),
	}
	if err := tx.Movements().Append(ctx, movement); err != nil {
		return v.Stock, fmt.Errorf("append %s movement: %w", kind, err)
	}
	return after, nil
}
