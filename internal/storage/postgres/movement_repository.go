package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

type movementRepository struct {
	tx *sql.Tx
}

func (r movementRepository) Append(ctx context.Context, m domain.InventoryMovement) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO inventory_movements (
			id, variant_id, type, quantity, delta, stock_before, stock_after,
			order_id, settlement_id, actor, reason, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		m.ID, m.VariantID, string(m.Type), m.Quantity, m.Delta, m.StockBefore, m.StockAfter,
		m.OrderID, m.SettlementID, m.Actor, m.Reason, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert inventory movement: %w", err)
	}
	return nil
}

func (r movementRepository) List(ctx context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error) {
	var (
		conds []string
		args  []any
	)
	if filter.VariantID != "" {
		args = append(args, filter.VariantID)
		conds = append(conds, fmt.Sprintf("variant_id = $%d", len(args)))
	}
	if filter.OrderID != "" {
		args = append(args, filter.OrderID)
		conds = append(conds, fmt.Sprintf("order_id = $%d", len(args)))
	}
	if len(filter.Types) > 0 {
		types := make([]string, 0, len(filter.Types))
		for _, t := range filter.Types {
			types = append(types, string(t))
		}
		args = append(args, types)
		conds = append(conds, fmt.Sprintf("type = ANY($%d)", len(args)))
	}

	query := `
		SELECT id, variant_id, type, quantity, delta, stock_before, stock_after,
		       order_id, settlement_id, actor, reason, created_at
		FROM inventory_movements`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY seq ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list inventory movements: %w", err)
	}
	defer rows.Close()

	result := make([]domain.InventoryMovement, 0)
	for rows.Next() {
		var (
			m   domain.InventoryMovement
			typ string
		)
		if err := rows.Scan(
			&m.ID, &m.VariantID, &typ, &m.Quantity, &m.Delta, &m.StockBefore, &m.StockAfter,
			&m.OrderID, &m.SettlementID, &m.Actor, &m.Reason, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan inventory movement: %w", err)
		}
		m.Type = domain.MovementType(typ)
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory movements: %w", err)
	}

	return result, nil
}

var _ domain.MovementRepository = movementRepository{}
