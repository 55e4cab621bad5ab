package handler

import (
	"bytes"
	"net/http"

	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
	"github.com/farmacia/farmacia-backend/internal/inventory/service"
	"github.com/farmacia/farmacia-backend/pkg/errors"
	"github.com/farmacia/farmacia-backend/pkg/httputil"
	"github.com/farmacia/farmacia-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// OrderHandler handles purchase order endpoints
type OrderHandler struct {
	orders *service.OrderMachine
	logger *logger.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orders *service.OrderMachine, log *logger.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: log,
	}
}

type orderItemRequest struct {
	ProductID     string           `json:"productId" validate:"required"`
	Cantidad      int              `json:"cantidad" validate:"min=1"`
	CostoUnitario *decimal.Decimal `json:"costoUnitario"`
	Notas         *string          `json:"notas" validate:"omitempty,max=500"`
}

func (r orderItemRequest) toNewItem() service.NewOrderItem {
	return service.NewOrderItem{
		ProductoID:    r.ProductID,
		Cantidad:      r.Cantidad,
		CostoUnitario: r.CostoUnitario,
		Notas:         r.Notas,
	}
}

type createOrderRequest struct {
	SupplierID   string             `json:"supplierId" validate:"required"`
	SupplierName *string            `json:"supplierName" validate:"omitempty,max=200"`
	Notas        *string            `json:"notas" validate:"omitempty,max=1000"`
	Items        []orderItemRequest `json:"items" validate:"dive"`
}

// nullableDecimal tells an absent field apart from an explicit null
type nullableDecimal struct {
	Set   bool
	Value *decimal.Decimal
}

func (n *nullableDecimal) UnmarshalJSON(b []byte) error {
	n.Set = true
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return errors.InvalidField("costoUnitario", "must be a number")
	}
	n.Value = &d
	return nil
}

type updateItemRequest struct {
	Cantidad      *int            `json:"cantidad" validate:"omitempty,min=1"`
	CostoUnitario nullableDecimal `json:"costoUnitario"`
	Notas         *string         `json:"notas" validate:"omitempty,max=500"`
}

type changeEstadoRequest struct {
	Estado repository.EstadoOrdenCompra `json:"estado" validate:"required"`
}

type receivedRequest struct {
	CantidadRecib *int             `json:"cantidadRecib" validate:"required,gte=0"`
	LoteCodigo    *string          `json:"loteCodigo" validate:"omitempty,max=64"`
	FechaVenc     *repository.Date `json:"fechaVenc"`
}

// decode reads and validates a request body
func decode(r *http.Request, v interface{}) error {
	if err := httputil.DecodeJSON(r, v); err != nil {
		return err
	}
	return httputil.Validate(v)
}

// List lists purchase orders
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize := httputil.Pagination(r, service.DefaultPageSize, service.MaxPageSize)
	query := service.OrderQuery{
		Search:   r.URL.Query().Get("search"),
		Page:     page,
		PageSize: pageSize,
	}

	if v := r.URL.Query().Get("estado"); v != "" {
		estado, err := repository.ParseEstado(v)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		query.Estado = &estado
	}

	orders, total, err := h.orders.List(r.Context(), query)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, orders, httputil.NewMeta(total, page, pageSize))
}

// Create creates a new purchase order in BORRADOR
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	in := service.NewOrder{
		ProveedorID:     req.SupplierID,
		ProveedorNombre: req.SupplierName,
		Notas:           req.Notas,
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, it.toNewItem())
	}

	order, err := h.orders.Create(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, order)
}

// Get gets an order with its items
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, order)
}

// ChangeEstado moves an order to its next state
func (h *OrderHandler) ChangeEstado(w http.ResponseWriter, r *http.Request) {
	var req changeEstadoRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	order, err := h.orders.ChangeEstado(r.Context(), chi.URLParam(r, "id"), req.Estado)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, order)
}

// Delete deletes a BORRADOR order
func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// AddItem adds a line to an order
func (h *OrderHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req orderItemRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	order, err := h.orders.AddItem(r.Context(), chi.URLParam(r, "id"), req.toNewItem())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, order)
}

// UpdateItem applies a partial change to a line
func (h *OrderHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	changes := service.ItemChanges{
		Cantidad:      req.Cantidad,
		CostoUnitario: req.CostoUnitario.Value,
		ClearCosto:    req.CostoUnitario.Set && req.CostoUnitario.Value == nil,
		Notas:         req.Notas,
	}

	order, err := h.orders.UpdateItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemId"), changes)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, order)
}

// RemoveItem removes a line
func (h *OrderHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.RemoveItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemId"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, order)
}

// SetReceived records the counted quantity of a line
func (h *OrderHandler) SetReceived(w http.ResponseWriter, r *http.Request) {
	var req receivedRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	order, err := h.orders.SetReceivedQuantity(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemId"), service.ReceiptCount{
		CantidadRecib: *req.CantidadRecib,
		LoteCodigo:    req.LoteCodigo,
		FechaVenc:     req.FechaVenc,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, order)
}
