package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

func decimals(values ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		out = append(out, decimal.RequireFromString(v))
	}
	return out
}

func TestSplitAmount(t *testing.T) {
	tests := []struct {
		name  string
		total string
		n     int
		want  []decimal.Decimal
	}{
		{name: "remainder goes to last", total: "55.00", n: 3, want: decimals("18.33", "18.33", "18.34")},
		{name: "even split", total: "120", n: 12, want: decimals("10", "10", "10", "10", "10", "10", "10", "10", "10", "10", "10", "10")},
		{name: "single payment", total: "9.99", n: 1, want: decimals("9.99")},
		{name: "cents smaller than n", total: "0.05", n: 6, want: decimals("0", "0", "0", "0", "0", "0.05")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parts, err := domain.SplitAmount(decimal.RequireFromString(tc.total), tc.n)
			require.NoError(t, err)
			require.Len(t, parts, tc.n)

			sum := decimal.Zero
			for i, p := range parts {
				require.Truef(t, p.Equal(tc.want[i]), "part %d: got %s want %s", i, p, tc.want[i])
				sum = sum.Add(p)
			}
			require.True(t, sum.Equal(decimal.RequireFromString(tc.total)))
		})
	}
}

func TestSplitAmountRejectsInvalidInput(t *testing.T) {
	_, err := domain.SplitAmount(decimal.NewFromInt(10), 0)
	require.ErrorIs(t, err, domain.ErrScheduleInvalid)

	_, err = domain.SplitAmount(decimal.NewFromInt(-1), 3)
	require.ErrorIs(t, err, domain.ErrScheduleInvalid)
}

func TestBuildSchedule(t *testing.T) {
	order := makeOrder()
	order.Installments = 3
	order.Items[0].UnitPrice = decimal.NewFromInt(11)
	start := order.CreatedAt
	s := domain.NewSettlement("s-1", order, "", "plan", sequence("si"), start)

	schedule, err := domain.BuildSchedule(s, 3, start, 0, sequence("inst"))
	require.NoError(t, err)
	require.Len(t, schedule, 3)

	for i, item := range schedule {
		require.Equal(t, i+1, item.Number)
		require.Equal(t, "s-1", item.SettlementID)
		require.Equal(t, "order-1", item.OrderID)
		require.False(t, item.Paid)
		require.Equal(t, start.Add(time.Duration(i+1)*domain.DefaultInstallmentInterval), item.DueDate)
	}
	require.True(t, schedule[2].Amount.Equal(decimal.RequireFromString("18.34")))
}

func TestInstallmentMarkPaid(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	item := domain.Installment{ID: "i-1", Amount: decimal.NewFromInt(10), DueDate: now}

	require.True(t, item.Overdue(now.Add(time.Hour)))
	require.NoError(t, item.MarkPaid("pi_1", now))
	require.False(t, item.Overdue(now.Add(time.Hour)))
	require.Equal(t, "pi_1", item.GatewayReference)
	require.ErrorIs(t, item.MarkPaid("pi_2", now), domain.ErrInstallmentAlreadyPaid)
}

func TestSummarizeInstallments(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	items := []domain.Installment{
		{Amount: decimal.NewFromInt(10), DueDate: now.Add(-48 * time.Hour), Paid: true},
		{Amount: decimal.NewFromInt(20), DueDate: now.Add(-time.Hour)},
		{Amount: decimal.NewFromInt(30), DueDate: now.Add(time.Hour)},
	}

	stats := domain.SummarizeInstallments(items, now)
	require.Equal(t, 3, stats.Total)
	require.Equal(t, 1, stats.Paid)
	require.Equal(t, 2, stats.Pending)
	require.Equal(t, 1, stats.Overdue)
	require.True(t, stats.AmountPaid.Equal(decimal.NewFromInt(10)))
	require.True(t, stats.AmountPending.Equal(decimal.NewFromInt(50)))
	require.True(t, stats.AmountOverdue.Equal(decimal.NewFromInt(20)))
}
