package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultInstallmentInterval — шаг между сроками платежей.
const DefaultInstallmentInterval = 30 * 24 * time.Hour

// Installment — один запланированный платёж по продаже.
type Installment struct {
	ID           string
	SettlementID string
	OrderID      string
	// Порядковый номер платежа, от 1 до N.
	Number  int
	Amount  decimal.Decimal
	DueDate time.Time
	Paid    bool
	PaidAt  time.Time
	// Идентификатор платежа у шлюза (payment intent).
	GatewayReference string
	// Идентификатор платёжной сессии шлюза.
	SessionRef string
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MarkPaid отмечает платёж оплаченным. Повторная оплата запрещена.
func (i *Installment) MarkPaid(gatewayRef string, now time.Time) error {
	if i.Paid {
		return ErrInstallmentAlreadyPaid
	}
	i.Paid = true
	i.PaidAt = now
	i.GatewayReference = gatewayRef
	i.UpdatedAt = now
	return nil
}

// Overdue — платёж не оплачен и срок уже прошёл.
func (i *Installment) Overdue(now time.Time) bool {
	return !i.Paid && now.After(i.DueDate)
}

// SplitAmount делит total на n частей: первые n-1 получают total/n, усечённое до копеек,
// последняя получает остаток, поэтому сумма частей всегда равна total.
func SplitAmount(total decimal.Decimal, n int) ([]decimal.Decimal, error) {
	if n < 1 || total.IsNegative() {
		return nil, ErrScheduleInvalid
	}

	total = RoundMoney(total)
	base := total.Div(decimal.NewFromInt(int64(n))).Truncate(MoneyPlaces)

	parts := make([]decimal.Decimal, n)
	for i := 0; i < n-1; i++ {
		parts[i] = base
	}
	parts[n-1] = total.Sub(base.Mul(decimal.NewFromInt(int64(n - 1))))

	return parts, nil
}

// BuildSchedule создаёт n платежей по продаже. Сроки: start + i*interval для i = 1..n.
func BuildSchedule(s Settlement, n int, start time.Time, interval time.Duration, ids func() string) ([]Installment, error) {
	if interval <= 0 {
		interval = DefaultInstallmentInterval
	}
	amounts, err := SplitAmount(s.Total, n)
	if err != nil {
		return nil, err
	}

	schedule := make([]Installment, 0, n)
	for i, amount := range amounts {
		number := i + 1
		schedule = append(schedule, Installment{
			ID:           ids(),
			SettlementID: s.ID,
			OrderID:      s.OrderID,
			Number:       number,
			Amount:       amount,
			DueDate:      start.Add(time.Duration(number) * interval),
			CreatedAt:    start,
			UpdatedAt:    start,
		})
	}

	return schedule, nil
}

// InstallmentStats — сводка по графику платежей.
type InstallmentStats struct {
	Total         int
	Paid          int
	Pending       int
	Overdue       int
	AmountTotal   decimal.Decimal
	AmountPaid    decimal.Decimal
	AmountPending decimal.Decimal
	AmountOverdue decimal.Decimal
}

// SummarizeInstallments считает статистику на момент now.
func SummarizeInstallments(items []Installment, now time.Time) InstallmentStats {
	stats := InstallmentStats{
		AmountTotal:   decimal.Zero,
		AmountPaid:    decimal.Zero,
		AmountPending: decimal.Zero,
		AmountOverdue: decimal.Zero,
	}
	for i := range items {
		item := &items[i]
		stats.Total++
		stats.AmountTotal = stats.AmountTotal.Add(item.Amount)
		if item.Paid {
			stats.Paid++
			stats.AmountPaid = stats.AmountPaid.Add(item.Amount)
			continue
		}
		stats.Pending++
		stats.AmountPending = stats.AmountPending.Add(item.Amount)
		if item.Overdue(now) {
			stats.Overdue++
			stats.AmountOverdue = stats.AmountOverdue.Add(item.Amount)
		}
	}
	return stats
}
