package repository

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/farmacia/farmacia-backend/pkg/database"
	"github.com/farmacia/farmacia-backend/pkg/errors"
	"github.com/jmoiron/sqlx"
)

// ProductRepository reads catalog rows and writes the derived stock column
type ProductRepository struct {
	db *database.DB
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *database.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByID gets a product by ID
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*Product, error) {
	return r.get(ctx, `SELECT * FROM productos WHERE id = $1`, id)
}

// GetForUpdate locks the product row until the surrounding transaction ends
func (r *ProductRepository) GetForUpdate(ctx context.Context, id string) (*Product, error) {
	return r.get(ctx, `SELECT * FROM productos WHERE id = $1 FOR UPDATE`, id)
}

func (r *ProductRepository) get(ctx context.Context, query, id string) (*Product, error) {
	var p Product
	if err := sqlx.GetContext(ctx, r.db.Q(ctx), &p, query, id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("product")
		}
		return nil, err
	}
	return &p, nil
}

// Upsert inserts or refreshes the catalog snapshot. stock_actual is never touched here.
func (r *ProductRepository) Upsert(ctx context.Context, p *Product) error {
	query := `
		INSERT INTO productos (id, nombre, categoria, stock_minimo)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET nombre = EXCLUDED.nombre, categoria = EXCLUDED.categoria,
		    stock_minimo = EXCLUDED.stock_minimo, updated_at = NOW()
		RETURNING stock_actual, updated_at
	`
	err := r.db.Q(ctx).QueryRowxContext(ctx, query, p.ID, p.Nombre, p.Categoria, p.StockMinimo).
		Scan(&p.StockActual, &p.UpdatedAt)
	return database.Translate(err)
}

// SetStockActual stores the derived stock figure
func (r *ProductRepository) SetStockActual(ctx context.Context, id string, stock int) error {
	result, err := r.db.Q(ctx).ExecContext(ctx,
		`UPDATE productos SET stock_actual = $2, updated_at = NOW() WHERE id = $1`, id, stock)
	if err != nil {
		return database.Translate(err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("product")
	}
	return nil
}

// ListIDs returns every product id, used by the periodic alert sweep
func (r *ProductRepository) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := sqlx.SelectContext(ctx, r.db.Q(ctx), &ids, `SELECT id FROM productos ORDER BY id`); err != nil {
		return nil, err
	}
	return ids, nil
}
