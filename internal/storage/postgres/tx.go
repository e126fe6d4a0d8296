package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

// pgTx связывает репозитории с одной *sql.Tx.
type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) Variants() domain.VariantRepository         { return variantRepository{tx: t.tx} }
func (t *pgTx) Movements() domain.MovementRepository       { return movementRepository{tx: t.tx} }
func (t *pgTx) Orders() domain.OrderRepository             { return orderRepository{tx: t.tx} }
func (t *pgTx) Settlements() domain.SettlementRepository   { return settlementRepository{tx: t.tx} }
func (t *pgTx) Installments() domain.InstallmentRepository { return installmentRepository{tx: t.tx} }
func (t *pgTx) Outbox() domain.OutboxWriter                { return outboxWriter{exec: t.tx} }
func (t *pgTx) Timeline() domain.TimelineWriter            { return timelineWriter{exec: t.tx} }

// execer — общий интерфейс *sql.DB и *sql.Tx для записи.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// rowScanner — общий интерфейс *sql.Row и *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23514"
	}
	return false
}

// nullTime превращает нулевое время в NULL.
func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timeOrZero(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

// lockClause добавляет к выборке блокировку строк.
func lockClause(forUpdate bool) string {
	if forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

var _ domain.Tx = (*pgTx)(nil)
