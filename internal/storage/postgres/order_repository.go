package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

const orderColumns = `
	id, customer_id, customer_name, customer_email, customer_phone, customer_address,
	discount, status, payment_method, installments, payment_session_ref, expires_at,
	version, created_at, updated_at`

type orderRepository struct {
	tx *sql.Tx
}

func (r orderRepository) Create(ctx context.Context, order domain.Order) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`,
		order.ID, order.CustomerID,
		order.Customer.Name, order.Customer.Email, order.Customer.Phone, order.Customer.Address,
		order.Discount, string(order.Status), string(order.PaymentMethod), order.Installments,
		order.PaymentSessionRef, nullTime(order.ExpiresAt),
		order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Items {
		if _, err := r.tx.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, position, variant_id, sku, name, quantity, unit_price, cost_unit, stock_reserved
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`,
			item.ID, order.ID, i, item.VariantID, item.SKU, item.Name, item.Quantity,
			item.UnitPrice, item.CostUnit, item.StockReserved,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return nil
}

func (r orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	return r.getBy(ctx, "id", id, false)
}

func (r orderRepository) GetForUpdate(ctx context.Context, id string) (domain.Order, error) {
	return r.getBy(ctx, "id", id, true)
}

func (r orderRepository) GetBySessionRef(ctx context.Context, ref string) (domain.Order, error) {
	if ref == "" {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return r.getBy(ctx, "payment_session_ref", ref, false)
}

func (r orderRepository) getBy(ctx context.Context, column, value string, forUpdate bool) (domain.Order, error) {
	row := r.tx.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE `+column+` = $1
		LIMIT 1`+lockClause(forUpdate), value)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

// Save обновляет заказ и флаги резерва позиций с проверкой версии.
func (r orderRepository) Save(ctx context.Context, order domain.Order) error {
	res, err := r.tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    payment_session_ref = $2,
		    expires_at = $3,
		    version = version + 1,
		    updated_at = $4
		WHERE id = $5
		  AND version = $6
	`,
		string(order.Status),
		order.PaymentSessionRef,
		nullTime(order.ExpiresAt),
		order.UpdatedAt,
		order.ID,
		order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.orderExists(ctx, order.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrVersionConflict
	}

	for _, item := range order.Items {
		if _, err := r.tx.ExecContext(ctx, `
			UPDATE order_items SET stock_reserved = $1 WHERE id = $2 AND order_id = $3
		`, item.StockReserved, item.ID, order.ID); err != nil {
			return fmt.Errorf("update order item: %w", err)
		}
	}

	return nil
}

func (r orderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	var (
		conds []string
		args  []any
	)
	if filter.CustomerID != "" {
		args = append(args, filter.CustomerID)
		conds = append(conds, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		args = append(args, statuses)
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if !filter.ExpiresBefore.IsZero() {
		args = append(args, filter.ExpiresBefore.UTC())
		conds = append(conds, fmt.Sprintf("expires_at IS NOT NULL AND expires_at < $%d", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	// Позиции читаем после закрытия курсора: одна транзакция держит одно соединение.
	_ = rows.Close()

	for i := range orders {
		items, err := r.loadItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}

	return orders, nil
}

func (r orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT id, variant_id, sku, name, quantity, unit_price, cost_unit, stock_reserved
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID, &item.VariantID, &item.SKU, &item.Name, &item.Quantity,
			&item.UnitPrice, &item.CostUnit, &item.StockReserved,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

func (r orderRepository) orderExists(ctx context.Context, orderID string) (bool, error) {
	var id string
	err := r.tx.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order     domain.Order
		status    string
		method    string
		expiresAt sql.NullTime
	)
	if err := row.Scan(
		&order.ID, &order.CustomerID,
		&order.Customer.Name, &order.Customer.Email, &order.Customer.Phone, &order.Customer.Address,
		&order.Discount, &status, &method, &order.Installments, &order.PaymentSessionRef, &expiresAt,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.PaymentMethod = domain.PaymentMethod(method)
	order.ExpiresAt = timeOrZero(expiresAt)
	return order, nil
}

var _ domain.OrderRepository = orderRepository{}
