package repository

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/farmacia/farmacia-backend/pkg/database"
	"github.com/farmacia/farmacia-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// BatchRepository handles batch persistence
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create creates a new batch
func (r *BatchRepository) Create(ctx context.Context, batch *Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}

	query := `
		INSERT INTO lotes (id, producto_id, codigo, cantidad, fecha_venc)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	err := r.db.Q(ctx).QueryRowxContext(ctx, query,
		batch.ID, batch.ProductoID, batch.Codigo, batch.Cantidad, batch.FechaVenc,
	).Scan(&batch.CreatedAt, &batch.UpdatedAt)
	return database.Translate(err)
}

// GetByID gets a batch by ID
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*Batch, error) {
	var batch Batch
	if err := sqlx.GetContext(ctx, r.db.Q(ctx), &batch, `SELECT * FROM lotes WHERE id = $1`, id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &batch, nil
}

// SetCantidad sets the absolute quantity of a batch
func (r *BatchRepository) SetCantidad(ctx context.Context, id string, cantidad int) (*Batch, error) {
	var batch Batch
	query := `UPDATE lotes SET cantidad = $2, updated_at = NOW() WHERE id = $1 RETURNING *`
	if err := sqlx.GetContext(ctx, r.db.Q(ctx), &batch, query, id, cantidad); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("batch")
		}
		return nil, database.Translate(err)
	}
	return &batch, nil
}

// Delete removes a batch
func (r *BatchRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Q(ctx).ExecContext(ctx, `DELETE FROM lotes WHERE id = $1`, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("batch")
	}
	return nil
}

// ListByProduct lists a product's batches, soonest expiry first
func (r *BatchRepository) ListByProduct(ctx context.Context, productID string) ([]*Batch, error) {
	batches := []*Batch{}
	query := `
		SELECT * FROM lotes
		WHERE producto_id = $1
		ORDER BY fecha_venc ASC NULLS LAST, created_at ASC
	`
	if err := sqlx.SelectContext(ctx, r.db.Q(ctx), &batches, query, productID); err != nil {
		return nil, err
	}
	return batches, nil
}

// SumByProduct returns the total quantity across a product's batches
func (r *BatchRepository) SumByProduct(ctx context.Context, productID string) (int, error) {
	var total int
	query := `SELECT COALESCE(SUM(cantidad), 0) FROM lotes WHERE producto_id = $1`
	if err := sqlx.GetContext(ctx, r.db.Q(ctx), &total, query, productID); err != nil {
		return 0, err
	}
	return total, nil
}

// FindForReceipt finds the batch a received quantity should be added to:
// same product, same code and same expiry. Returns nil when there is none.
func (r *BatchRepository) FindForReceipt(ctx context.Context, productID string, codigo *string, fechaVenc *Date) (*Batch, error) {
	if codigo == nil {
		return nil, nil
	}

	var batch Batch
	query := `
		SELECT * FROM lotes
		WHERE producto_id = $1 AND codigo = $2 AND fecha_venc IS NOT DISTINCT FROM $3::date
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE
	`
	if err := sqlx.GetContext(ctx, r.db.Q(ctx), &batch, query, productID, *codigo, fechaVenc); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}
