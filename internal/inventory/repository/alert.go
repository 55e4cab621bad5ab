package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/farmacia/farmacia-backend/pkg/database"
	"github.com/farmacia/farmacia-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// AlertRepository handles alert persistence
type AlertRepository struct {
	db *database.DB
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *database.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = `
	a.id, a.type, a.severity, a.window_dias, a.leida, a.producto_id, a.lote_id,
	a.producto_nombre, a.categoria, a.lote_codigo, a.stock_actual, a.stock_minimo,
	a.fecha_venc, a.dias_restantes, a.mensaje, a.created_at, a.updated_at, a.resolved_at`

// Create creates a new alert
func (r *AlertRepository) Create(ctx context.Context, alert *Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}

	query := `
		INSERT INTO alertas (
			id, type, severity, window_dias, leida, producto_id, lote_id, producto_nombre,
			categoria, lote_codigo, stock_actual, stock_minimo, fecha_venc, dias_restantes, mensaje
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at
	`

	err := r.db.Q(ctx).QueryRowxContext(ctx, query,
		alert.ID, alert.Type, alert.Severity, alert.WindowDias, alert.Leida, alert.ProductoID,
		alert.LoteID, alert.ProductoNombre, alert.Categoria, alert.LoteCodigo, alert.StockActual,
		alert.StockMinimo, alert.FechaVenc, alert.DiasRestantes, alert.Mensaje,
	).Scan(&alert.CreatedAt, &alert.UpdatedAt)
	return database.Translate(err)
}

// Update stores severity and display fields of an open alert. The read flag
// is only ever cleared, when resetRead is set.
func (r *AlertRepository) Update(ctx context.Context, alert *Alert, resetRead bool) error {
	query := `
		UPDATE alertas
		SET severity = $2, window_dias = $3, producto_nombre = $4, categoria = $5,
		    lote_codigo = $6, stock_actual = $7, stock_minimo = $8, fecha_venc = $9,
		    dias_restantes = $10, mensaje = $11,
		    leida = CASE WHEN $12 THEN FALSE ELSE leida END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING leida, updated_at
	`

	err := r.db.Q(ctx).QueryRowxContext(ctx, query,
		alert.ID, alert.Severity, alert.WindowDias, alert.ProductoNombre, alert.Categoria,
		alert.LoteCodigo, alert.StockActual, alert.StockMinimo, alert.FechaVenc,
		alert.DiasRestantes, alert.Mensaje, resetRead,
	).Scan(&alert.Leida, &alert.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NotFound("alert")
	}
	return err
}

// Resolve closes an alert
func (r *AlertRepository) Resolve(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE alertas SET resolved_at = $2, updated_at = $2 WHERE id = $1 AND resolved_at IS NULL`
	_, err := r.db.Q(ctx).ExecContext(ctx, query, id, at)
	return err
}

// GetByID gets an alert by ID
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*Alert, error) {
	var alert Alert
	query := `SELECT` + alertColumns + ` FROM alertas a WHERE a.id = $1`
	if err := sqlx.GetContext(ctx, r.db.Q(ctx), &alert, query, id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("alert")
		}
		return nil, err
	}
	return &alert, nil
}

// FindOpenStock returns the open STOCK_BAJO alert of a product, or nil
func (r *AlertRepository) FindOpenStock(ctx context.Context, productID string) (*Alert, error) {
	var alert Alert
	query := `SELECT` + alertColumns + `
		FROM alertas a
		WHERE a.producto_id = $1 AND a.type = 'STOCK_BAJO' AND a.resolved_at IS NULL`
	if err := sqlx.GetContext(ctx, r.db.Q(ctx), &alert, query, productID); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &alert, nil
}

// ListOpenExpiryByProduct returns the open VENCIMIENTO alerts of a product
func (r *AlertRepository) ListOpenExpiryByProduct(ctx context.Context, productID string) ([]*Alert, error) {
	alerts := []*Alert{}
	query := `SELECT` + alertColumns + `
		FROM alertas a
		WHERE a.producto_id = $1 AND a.type = 'VENCIMIENTO' AND a.resolved_at IS NULL`
	if err := sqlx.SelectContext(ctx, r.db.Q(ctx), &alerts, query, productID); err != nil {
		return nil, err
	}
	return alerts, nil
}

// SetRead flags one alert as read
func (r *AlertRepository) SetRead(ctx context.Context, id string) error {
	result, err := r.db.Q(ctx).ExecContext(ctx,
		`UPDATE alertas SET leida = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("alert")
	}
	return nil
}

// MarkAllRead flags every unread alert of the given type (all types when nil)
// and returns the alerts that changed
func (r *AlertRepository) MarkAllRead(ctx context.Context, alertType *AlertType) ([]*Alert, error) {
	var w whereBuilder
	w.add("a.leida = FALSE")
	if alertType != nil {
		w.add("a.type = ?", *alertType)
	}

	query := `UPDATE alertas a SET leida = TRUE, updated_at = NOW()` + w.clause() + ` RETURNING` + alertColumns

	changed := []*Alert{}
	if err := sqlx.SelectContext(ctx, r.db.Q(ctx), &changed, query, w.args...); err != nil {
		return nil, err
	}
	return changed, nil
}

// List lists alerts matching the filter, most urgent first.
func (r *AlertRepository) List(ctx context.Context, f AlertFilter) ([]*Alert, int64, error) {
	var w whereBuilder
	if !f.IncludeResolved {
		w.add("a.resolved_at IS NULL")
	}
	if f.Type != nil {
		w.add("a.type = ?", *f.Type)
	}
	if f.Severity != nil {
		w.add(listedSeverity(&w, f)+" = ?", *f.Severity)
	}
	if f.UnreadOnly {
		w.add("a.leida = FALSE")
	}
	if f.Search != "" {
		w.add("(a.producto_nombre ILIKE ? OR a.categoria ILIKE ? OR a.lote_codigo ILIKE ?)", likePattern(f.Search))
	}
	if f.ExpiringBy != nil {
		w.add("(a.type <> 'VENCIMIENTO' OR a.fecha_venc <= ?)", *f.ExpiringBy)
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM alertas a` + w.clause()
	if err := sqlx.GetContext(ctx, r.db.Q(ctx), &total, countQuery, w.args...); err != nil {
		return nil, 0, err
	}

	query := `SELECT` + alertColumns + ` FROM alertas a` + w.clause() + `
		ORDER BY (a.resolved_at IS NOT NULL),
		         CASE ` + listedSeverity(&w, f) + ` WHEN 'CRITICAL' THEN 0 WHEN 'WARNING' THEN 1 ELSE 2 END,
		         a.created_at DESC, a.id`
	query += ` LIMIT ` + w.next(f.PageSize) + ` OFFSET ` + w.next(offset(f.Page, f.PageSize))

	alerts := []*Alert{}
	if err := sqlx.SelectContext(ctx, r.db.Q(ctx), &alerts, query, w.args...); err != nil {
		return nil, 0, err
	}

	return alerts, total, nil
}

// listedSeverity is the SQL form of AlertFilter.SeverityOf
func listedSeverity(w *whereBuilder, f AlertFilter) string {
	if f.ExpiryCriticalBy == nil {
		return "a.severity"
	}
	return "(CASE WHEN a.type = 'VENCIMIENTO' AND a.fecha_venc IS NOT NULL THEN " +
		"(CASE WHEN a.fecha_venc <= " + w.next(*f.ExpiryCriticalBy) + " THEN 'CRITICAL' ELSE 'WARNING' END) " +
		"ELSE a.severity END)"
}

// CountUnread counts unread open alerts, optionally of one type
func (r *AlertRepository) CountUnread(ctx context.Context, alertType *AlertType) (int64, error) {
	var w whereBuilder
	w.add("a.leida = FALSE")
	w.add("a.resolved_at IS NULL")
	if alertType != nil {
		w.add("a.type = ?", *alertType)
	}

	var count int64
	if err := sqlx.GetContext(ctx, r.db.Q(ctx), &count, `SELECT COUNT(*) FROM alertas a`+w.clause(), w.args...); err != nil {
		return 0, err
	}
	return count, nil
}
