package repository

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/farmacia/farmacia-backend/pkg/database"
	"github.com/farmacia/farmacia-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// OrderRepository handles purchase order persistence
type OrderRepository struct {
	db *database.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *database.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts an order and its items
func (r *OrderRepository) Create(ctx context.Context, order *PurchaseOrder) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}

	query := `
		INSERT INTO ordenes_compra (id, proveedor_id, proveedor_nombre, estado, notas, total_estimado)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err := r.db.Q(ctx).QueryRowxContext(ctx, query,
		order.ID, order.ProveedorID, order.ProveedorNombre, order.Estado, order.Notas, order.TotalEstimado,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return database.Translate(err)
	}

	for _, item := range order.Items {
		item.OrdenID = order.ID
		if err := r.AddItem(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// GetByID gets an order with its items
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*PurchaseOrder, error) {
	return r.get(ctx, `SELECT * FROM ordenes_compra WHERE id = $1`, id)
}

// GetForUpdate gets an order with its items and locks the order row
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*PurchaseOrder, error) {
	return r.get(ctx, `SELECT * FROM ordenes_compra WHERE id = $1 FOR UPDATE`, id)
}

func (r *OrderRepository) get(ctx context.Context, query, id string) (*PurchaseOrder, error) {
	var order PurchaseOrder
	if err := sqlx.GetContext(ctx, r.db.Q(ctx), &order, query, id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("purchase order")
		}
		return nil, err
	}

	items := []*OrderItem{}
	itemsQuery := `SELECT * FROM ordenes_compra_items WHERE orden_id = $1 ORDER BY created_at, id`
	if err := sqlx.SelectContext(ctx, r.db.Q(ctx), &items, itemsQuery, id); err != nil {
		return nil, err
	}
	order.Items = items

	return &order, nil
}

// Update stores state, timestamps, notes and total
func (r *OrderRepository) Update(ctx context.Context, order *PurchaseOrder) error {
	query := `
		UPDATE ordenes_compra
		SET estado = $2, notas = $3, total_estimado = $4, enviada_at = $5, recibida_at = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.Q(ctx).QueryRowxContext(ctx, query,
		order.ID, order.Estado, order.Notas, order.TotalEstimado, order.EnviadaAt, order.RecibidaAt,
	).Scan(&order.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NotFound("purchase order")
	}
	return database.Translate(err)
}

// Delete removes an order; its items cascade
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Q(ctx).ExecContext(ctx, `DELETE FROM ordenes_compra WHERE id = $1`, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("purchase order")
	}
	return nil
}

// List lists orders, newest first, with their items
func (r *OrderRepository) List(ctx context.Context, f OrderFilter) ([]*PurchaseOrder, int64, error) {
	var w whereBuilder
	if f.Estado != nil {
		w.add("o.estado = ?", *f.Estado)
	}
	if f.Search != "" {
		w.add("(o.proveedor_nombre ILIKE ? OR o.proveedor_id ILIKE ? OR o.notas ILIKE ? OR o.id ILIKE ?)", likePattern(f.Search))
	}

	var total int64
	if err := sqlx.GetContext(ctx, r.db.Q(ctx), &total, `SELECT COUNT(*) FROM ordenes_compra o`+w.clause(), w.args...); err != nil {
		return nil, 0, err
	}

	query := `SELECT o.* FROM ordenes_compra o` + w.clause() + ` ORDER BY o.created_at DESC, o.id`
	query += ` LIMIT ` + w.next(f.PageSize) + ` OFFSET ` + w.next(offset(f.Page, f.PageSize))

	orders := []*PurchaseOrder{}
	if err := sqlx.SelectContext(ctx, r.db.Q(ctx), &orders, query, w.args...); err != nil {
		return nil, 0, err
	}
	if len(orders) == 0 {
		return orders, total, nil
	}

	ids := make([]string, len(orders))
	byID := make(map[string]*PurchaseOrder, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		o.Items = []*OrderItem{}
		byID[o.ID] = o
	}

	items := []*OrderItem{}
	itemsQuery := `SELECT * FROM ordenes_compra_items WHERE orden_id = ANY($1) ORDER BY created_at, id`
	if err := sqlx.SelectContext(ctx, r.db.Q(ctx), &items, itemsQuery, pq.Array(ids)); err != nil {
		return nil, 0, err
	}
	for _, it := range items {
		if o, ok := byID[it.OrdenID]; ok {
			o.Items = append(o.Items, it)
		}
	}

	return orders, total, nil
}

// AddItem inserts one order line
func (r *OrderRepository) AddItem(ctx context.Context, item *OrderItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	query := `
		INSERT INTO ordenes_compra_items (
			id, orden_id, producto_id, producto_nombre, cantidad_solic, cantidad_recib,
			costo_unitario, subtotal, notas, lote_codigo, fecha_venc, recibido_set
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`
	err := r.db.Q(ctx).QueryRowxContext(ctx, query,
		item.ID, item.OrdenID, item.ProductoID, item.ProductoNombre, item.CantidadSolic,
		item.CantidadRecib, item.CostoUnitario, item.Subtotal, item.Notas, item.LoteCodigo,
		item.FechaVenc, item.RecibidoSet,
	).Scan(&item.CreatedAt)
	return database.Translate(err)
}

// UpdateItem stores every mutable column of an order line
func (r *OrderRepository) UpdateItem(ctx context.Context, item *OrderItem) error {
	query := `
		UPDATE ordenes_compra_items
		SET cantidad_solic = $3, cantidad_recib = $4, costo_unitario = $5, subtotal = $6,
		    notas = $7, lote_codigo = $8, fecha_venc = $9, recibido_set = $10
		WHERE id = $1 AND orden_id = $2
	`
	result, err := r.db.Q(ctx).ExecContext(ctx, query,
		item.ID, item.OrdenID, item.CantidadSolic, item.CantidadRecib, item.CostoUnitario,
		item.Subtotal, item.Notas, item.LoteCodigo, item.FechaVenc, item.RecibidoSet,
	)
	if err != nil {
		return database.Translate(err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("order item")
	}
	return nil
}

// DeleteItem removes one order line
func (r *OrderRepository) DeleteItem(ctx context.Context, orderID, itemID string) error {
	result, err := r.db.Q(ctx).ExecContext(ctx,
		`DELETE FROM ordenes_compra_items WHERE id = $1 AND orden_id = $2`, itemID, orderID)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("order item")
	}
	return nil
}
