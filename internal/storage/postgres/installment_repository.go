package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

const installmentColumns = `
	id, settlement_id, order_id, number, amount, due_date, paid, paid_at,
	gateway_reference, session_ref, version, created_at, updated_at`

type installmentRepository struct {
	tx *sql.Tx
}

func (r installmentRepository) CreateBatch(ctx context.Context, items []domain.Installment) error {
	for _, item := range items {
		_, err := r.tx.ExecContext(ctx, `
			INSERT INTO installments (`+installmentColumns+`
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`,
			item.ID, item.SettlementID, item.OrderID, item.Number, item.Amount, item.DueDate,
			item.Paid, nullTime(item.PaidAt), item.GatewayReference, item.SessionRef,
			item.Version, item.CreatedAt, item.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrVersionConflict
			}
			return fmt.Errorf("insert installment: %w", err)
		}
	}
	return nil
}

func (r installmentRepository) Get(ctx context.Context, id string) (domain.Installment, error) {
	return r.getBy(ctx, "id", id, false)
}

func (r installmentRepository) GetForUpdate(ctx context.Context, id string) (domain.Installment, error) {
	return r.getBy(ctx, "id", id, true)
}

func (r installmentRepository) GetBySessionRef(ctx context.Context, ref string) (domain.Installment, error) {
	if ref == "" {
		return domain.Installment{}, domain.ErrInstallmentNotFound
	}
	return r.getBy(ctx, "session_ref", ref, false)
}

func (r installmentRepository) getBy(ctx context.Context, column, value string, forUpdate bool) (domain.Installment, error) {
	row := r.tx.QueryRowContext(ctx, `
		SELECT `+installmentColumns+`
		FROM installments
		WHERE `+column+` = $1
		LIMIT 1`+lockClause(forUpdate), value)

	item, err := scanInstallment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Installment{}, domain.ErrInstallmentNotFound
		}
		return domain.Installment{}, fmt.Errorf("select installment: %w", err)
	}
	return item, nil
}

func (r installmentRepository) Save(ctx context.Context, item domain.Installment) error {
	res, err := r.tx.ExecContext(ctx, `
		UPDATE installments
		SET paid = $1,
		    paid_at = $2,
		    gateway_reference = $3,
		    session_ref = $4,
		    version = version + 1,
		    updated_at = $5
		WHERE id = $6
		  AND version = $7
	`, item.Paid, nullTime(item.PaidAt), item.GatewayReference, item.SessionRef, item.UpdatedAt, item.ID, item.Version)
	if err != nil {
		return fmt.Errorf("update installment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := r.Get(ctx, item.ID); err != nil {
			return err
		}
		return domain.ErrVersionConflict
	}
	return nil
}

func (r installmentRepository) List(ctx context.Context, filter domain.InstallmentFilter) ([]domain.Installment, error) {
	var (
		conds []string
		args  []any
	)
	if filter.SettlementID != "" {
		args = append(args, filter.SettlementID)
		conds = append(conds, fmt.Sprintf("settlement_id = $%d", len(args)))
	}
	if filter.Paid != nil {
		args = append(args, *filter.Paid)
		conds = append(conds, fmt.Sprintf("paid = $%d", len(args)))
	}
	if !filter.DueBefore.IsZero() {
		args = append(args, filter.DueBefore.UTC())
		conds = append(conds, fmt.Sprintf("due_date < $%d", len(args)))
	}

	query := `SELECT ` + installmentColumns + ` FROM installments`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY due_date ASC, number ASC, id ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list installments: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Installment, 0)
	for rows.Next() {
		item, err := scanInstallment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan installment: %w", err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate installments: %w", err)
	}

	return result, nil
}

func scanInstallment(row rowScanner) (domain.Installment, error) {
	var (
		item   domain.Installment
		paidAt sql.NullTime
	)
	if err := row.Scan(
		&item.ID, &item.SettlementID, &item.OrderID, &item.Number, &item.Amount, &item.DueDate,
		&item.Paid, &paidAt, &item.GatewayReference, &item.SessionRef,
		&item.Version, &item.CreatedAt, &item.UpdatedAt,
	); err != nil {
		return domain.Installment{}, err
	}
	item.PaidAt = timeOrZero(paidAt)
	return item, nil
}

var _ domain.InstallmentRepository = installmentRepository{}
