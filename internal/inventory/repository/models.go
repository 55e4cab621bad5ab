package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog row the ledger derives stock for
type Product struct {
	ID          string    `db:"id" json:"id"`
	Nombre      string    `db:"nombre" json:"nombre"`
	Categoria   *string   `db:"categoria" json:"categoria,omitempty"`
	StockMinimo int       `db:"stock_minimo" json:"stockMinimo"`
	StockActual int       `db:"stock_actual" json:"stockActual"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// Batch is one ledger entry (lote) of a product
type Batch struct {
	ID         string    `db:"id" json:"id"`
	ProductoID string    `db:"producto_id" json:"productoId"`
	Codigo     *string   `db:"codigo" json:"codigo,omitempty"`
	Cantidad   int       `db:"cantidad" json:"cantidad"`
	FechaVenc  *Date     `db:"fecha_venc" json:"fechaVenc,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}

// Alert is a stock or expiry notification for a product, and for expiry, one of its batches
type Alert struct {
	ID             string     `db:"id" json:"id"`
	Type           AlertType  `db:"type" json:"type"`
	Severity       Severity   `db:"severity" json:"severity"`
	WindowDias     int        `db:"window_dias" json:"windowDias"`
	Leida          bool       `db:"leida" json:"leida"`
	ProductoID     string     `db:"producto_id" json:"productoId"`
	LoteID         *string    `db:"lote_id" json:"loteId,omitempty"`
	ProductoNombre string     `db:"producto_nombre" json:"productoNombre"`
	Categoria      *string    `db:"categoria" json:"categoria,omitempty"`
	LoteCodigo     *string    `db:"lote_codigo" json:"loteCodigo,omitempty"`
	StockActual    *int       `db:"stock_actual" json:"stockActual,omitempty"`
	StockMinimo    *int       `db:"stock_minimo" json:"stockMinimo,omitempty"`
	FechaVenc      *Date      `db:"fecha_venc" json:"fechaVenc,omitempty"`
	DiasRestantes  *int       `db:"dias_restantes" json:"diasRestantes,omitempty"`
	Mensaje        string     `db:"mensaje" json:"mensaje"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`
	ResolvedAt     *time.Time `db:"resolved_at" json:"resolvedAt"`
}

// IsOpen reports whether the alert is unresolved
func (a *Alert) IsOpen() bool {
	return a.ResolvedAt == nil
}

// AlertFilter selects alerts for the paginated query surface
type AlertFilter struct {
	Type            *AlertType
	Severity        *Severity
	UnreadOnly      bool
	Search          string
	// ExpiringBy keeps only expiry alerts whose batch expires on or before this day
	ExpiringBy *Date
	// ExpiryCriticalBy re-bands expiry alerts for a narrower horizon: batches
	// expiring on or before this day are CRITICAL, later ones WARNING.
	ExpiryCriticalBy *Date
	IncludeResolved  bool
	Page             int
	PageSize         int
}

// SeverityOf is the severity a is listed with under the filter
func (f AlertFilter) SeverityOf(a *Alert) Severity {
	if f.ExpiryCriticalBy == nil || a.Type != AlertTypeVencimiento || a.FechaVenc == nil {
		return a.Severity
	}
	if a.FechaVenc.After(f.ExpiryCriticalBy.Time) {
		return SeverityWarning
	}
	return SeverityCritical
}

// AlertEvent is a change notification on the live feed
type AlertEvent struct {
	ID        string         `json:"id"`
	Kind      AlertEventKind `json:"kind"`
	AlertID   string         `json:"alertId"`
	ProductID string         `json:"productId"`
	BatchID   *string        `json:"batchId,omitempty"`
	Type      AlertType      `json:"type"`
	Severity  Severity       `json:"severity"`
	At        time.Time      `json:"at"`
}

// PurchaseOrder is a supplier order (orden de compra)
type PurchaseOrder struct {
	ID              string            `db:"id" json:"id"`
	ProveedorID     string            `db:"proveedor_id" json:"proveedorId"`
	ProveedorNombre *string           `db:"proveedor_nombre" json:"proveedorNombre,omitempty"`
	Estado          EstadoOrdenCompra `db:"estado" json:"estado"`
	Notas           *string           `db:"notas" json:"notas,omitempty"`
	TotalEstimado   decimal.Decimal   `db:"total_estimado" json:"totalEstimado"`
	CreatedAt       time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updatedAt"`
	EnviadaAt       *time.Time        `db:"enviada_at" json:"enviadaAt,omitempty"`
	RecibidaAt      *time.Time        `db:"recibida_at" json:"recibidaAt,omitempty"`
	Items           []*OrderItem      `db:"-" json:"items"`
}

// Item returns the line with the given id
func (o *PurchaseOrder) Item(itemID string) (*OrderItem, bool) {
	for _, it := range o.Items {
		if it.ID == itemID {
			return it, true
		}
	}
	return nil, false
}

// RecomputeTotal sets TotalEstimado to the sum of the known subtotals
func (o *PurchaseOrder) RecomputeTotal() {
	total := decimal.Zero
	for _, it := range o.Items {
		it.RecomputeSubtotal()
		if it.Subtotal.Valid {
			total = total.Add(it.Subtotal.Decimal)
		}
	}
	o.TotalEstimado = total
}

// OrderItem is one line of a purchase order
type OrderItem struct {
	ID             string              `db:"id" json:"id"`
	OrdenID        string              `db:"orden_id" json:"ordenId"`
	ProductoID     string              `db:"producto_id" json:"productoId"`
	ProductoNombre *string             `db:"producto_nombre" json:"productoNombre,omitempty"`
	CantidadSolic  int                 `db:"cantidad_solic" json:"cantidadSolic"`
	CantidadRecib  int                 `db:"cantidad_recib" json:"cantidadRecib"`
	CostoUnitario  decimal.NullDecimal `db:"costo_unitario" json:"costoUnitario"`
	Subtotal       decimal.NullDecimal `db:"subtotal" json:"subtotal"`
	Notas          *string             `db:"notas" json:"notas,omitempty"`
	LoteCodigo     *string             `db:"lote_codigo" json:"loteCodigo,omitempty"`
	FechaVenc      *Date               `db:"fecha_venc" json:"fechaVenc,omitempty"`
	RecibidoSet    bool                `db:"recibido_set" json:"-"`
	CreatedAt      time.Time           `db:"created_at" json:"createdAt"`
}

// RecomputeSubtotal sets Subtotal to cantidadSolic x costoUnitario when the cost is known
func (i *OrderItem) RecomputeSubtotal() {
	if !i.CostoUnitario.Valid {
		i.Subtotal = decimal.NullDecimal{}
		return
	}
	i.Subtotal = decimal.NewNullDecimal(i.CostoUnitario.Decimal.Mul(decimal.NewFromInt(int64(i.CantidadSolic))))
}

// OrderFilter selects orders for listing
type OrderFilter struct {
	Estado   *EstadoOrdenCompra
	Search   string
	Page     int
	PageSize int
}
