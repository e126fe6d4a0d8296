package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

type variantRepository struct {
	tx *sql.Tx
}

func (r variantRepository) Create(ctx context.Context, v domain.Variant) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO variants (
			id, product_id, sku, name, stock, price, cost, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		v.ID, v.ProductID, v.SKU, v.Name, v.Stock, v.Price, v.Cost, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVariantExists
		}
		if isCheckViolation(err) {
			return domain.ErrStockNegative
		}
		return fmt.Errorf("insert variant: %w", err)
	}
	return nil
}

func (r variantRepository) Get(ctx context.Context, id string) (domain.Variant, error) {
	return r.get(ctx, id, false)
}

func (r variantRepository) GetForUpdate(ctx context.Context, id string) (domain.Variant, error) {
	return r.get(ctx, id, true)
}

func (r variantRepository) get(ctx context.Context, id string, forUpdate bool) (domain.Variant, error) {
	var v domain.Variant
	err := r.tx.QueryRowContext(ctx, `
		SELECT id, product_id, sku, name, stock, price, cost, created_at, updated_at
		FROM variants
		WHERE id = $1`+lockClause(forUpdate), id).Scan(
		&v.ID, &v.ProductID, &v.SKU, &v.Name, &v.Stock, &v.Price, &v.Cost, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Variant{}, domain.ErrVariantNotFound
		}
		return domain.Variant{}, fmt.Errorf("select variant: %w", err)
	}
	return v, nil
}

func (r variantRepository) UpdateStock(ctx context.Context, id string, stock int) error {
	res, err := r.tx.ExecContext(ctx, `
		UPDATE variants
		SET stock = $2,
		    updated_at = $3
		WHERE id = $1
	`, id, stock, time.Now().UTC())
	if err != nil {
		if isCheckViolation(err) {
			return domain.ErrStockNegative
		}
		return fmt.Errorf("update variant stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrVariantNotFound
	}
	return nil
}

var _ domain.VariantRepository = variantRepository{}
