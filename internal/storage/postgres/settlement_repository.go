package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

const settlementColumns = `
	id, order_id, seller_id, customer_id, customer_name, customer_email, customer_phone, customer_address,
	subtotal, discount, total, cost_total, profit_total, margin_percent,
	payment_method, payment_reference, installment_count, status, void_reason, voided_at,
	version, created_at, updated_at`

type settlementRepository struct {
	tx *sql.Tx
}

func (r settlementRepository) Create(ctx context.Context, s domain.Settlement) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO settlements (`+settlementColumns+`
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
	`,
		s.ID, s.OrderID, s.SellerID, s.CustomerID,
		s.Customer.Name, s.Customer.Email, s.Customer.Phone, s.Customer.Address,
		s.Subtotal, s.Discount, s.Total, s.CostTotal, s.ProfitTotal, s.MarginPercent,
		string(s.PaymentMethod), s.PaymentReference, s.InstallmentCount, string(s.Status),
		s.VoidReason, nullTime(s.VoidedAt),
		s.Version, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("insert settlement: %w", err)
	}

	for i, item := range s.Items {
		if _, err := r.tx.ExecContext(ctx, `
			INSERT INTO settlement_items (
				id, settlement_id, position, variant_id, sku, name, quantity,
				price_unit, cost_unit, subtotal, cost_total, profit_unit, profit_total, margin_percent
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		`,
			item.ID, s.ID, i, item.VariantID, item.SKU, item.Name, item.Quantity,
			item.PriceUnit, item.CostUnit, item.Subtotal, item.CostTotal,
			item.ProfitUnit, item.ProfitTotal, item.MarginPercent,
		); err != nil {
			return fmt.Errorf("insert settlement item: %w", err)
		}
	}

	return nil
}

func (r settlementRepository) Get(ctx context.Context, id string) (domain.Settlement, error) {
	return r.getBy(ctx, "id", id, false)
}

func (r settlementRepository) GetForUpdate(ctx context.Context, id string) (domain.Settlement, error) {
	return r.getBy(ctx, "id", id, true)
}

func (r settlementRepository) GetByOrder(ctx context.Context, orderID string) (domain.Settlement, error) {
	return r.getBy(ctx, "order_id", orderID, false)
}

func (r settlementRepository) getBy(ctx context.Context, column, value string, forUpdate bool) (domain.Settlement, error) {
	var (
		s        domain.Settlement
		method   string
		status   string
		voidedAt sql.NullTime
	)
	err := r.tx.QueryRowContext(ctx, `
		SELECT `+settlementColumns+`
		FROM settlements
		WHERE `+column+` = $1`+lockClause(forUpdate), value).Scan(
		&s.ID, &s.OrderID, &s.SellerID, &s.CustomerID,
		&s.Customer.Name, &s.Customer.Email, &s.Customer.Phone, &s.Customer.Address,
		&s.Subtotal, &s.Discount, &s.Total, &s.CostTotal, &s.ProfitTotal, &s.MarginPercent,
		&method, &s.PaymentReference, &s.InstallmentCount, &status, &s.VoidReason, &voidedAt,
		&s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Settlement{}, domain.ErrSettlementNotFound
		}
		return domain.Settlement{}, fmt.Errorf("select settlement: %w", err)
	}
	s.PaymentMethod = domain.PaymentMethod(method)
	s.Status = domain.SettlementStatus(status)
	s.VoidedAt = timeOrZero(voidedAt)

	items, err := r.loadItems(ctx, s.ID)
	if err != nil {
		return domain.Settlement{}, err
	}
	s.Items = items

	return s, nil
}

// Save меняет только статус аннулирования: финансовые поля продажи неизменяемы.
func (r settlementRepository) Save(ctx context.Context, s domain.Settlement) error {
	res, err := r.tx.ExecContext(ctx, `
		UPDATE settlements
		SET status = $1,
		    void_reason = $2,
		    voided_at = $3,
		    version = version + 1,
		    updated_at = $4
		WHERE id = $5
		  AND version = $6
	`, string(s.Status), s.VoidReason, nullTime(s.VoidedAt), s.UpdatedAt, s.ID, s.Version)
	if err != nil {
		return fmt.Errorf("update settlement: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var id string
		err := r.tx.QueryRowContext(ctx, `SELECT id FROM settlements WHERE id = $1`, s.ID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrSettlementNotFound
		}
		if err != nil {
			return fmt.Errorf("check settlement exists: %w", err)
		}
		return domain.ErrVersionConflict
	}

	return nil
}

func (r settlementRepository) loadItems(ctx context.Context, settlementID string) ([]domain.SettlementItem, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT id, variant_id, sku, name, quantity,
		       price_unit, cost_unit, subtotal, cost_total, profit_unit, profit_total, margin_percent
		FROM settlement_items
		WHERE settlement_id = $1
		ORDER BY position ASC
	`, settlementID)
	if err != nil {
		return nil, fmt.Errorf("load settlement items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.SettlementItem, 0)
	for rows.Next() {
		var item domain.SettlementItem
		if err := rows.Scan(
			&item.ID, &item.VariantID, &item.SKU, &item.Name, &item.Quantity,
			&item.PriceUnit, &item.CostUnit, &item.Subtotal, &item.CostTotal,
			&item.ProfitUnit, &item.ProfitTotal, &item.MarginPercent,
		); err != nil {
			return nil, fmt.Errorf("scan settlement item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settlement items: %w", err)
	}

	return items, nil
}

var _ domain.SettlementRepository = settlementRepository{}
