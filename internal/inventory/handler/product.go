package handler

import (
	"net/http"

	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
	"github.com/farmacia/farmacia-backend/internal/inventory/service"
	"github.com/farmacia/farmacia-backend/pkg/httputil"
	"github.com/farmacia/farmacia-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// ProductHandler handles ledger endpoints scoped under a product
type ProductHandler struct {
	ledger *service.Ledger
	logger *logger.Logger
}

// NewProductHandler creates a new product handler
func NewProductHandler(ledger *service.Ledger, log *logger.Logger) *ProductHandler {
	return &ProductHandler{
		ledger: ledger,
		logger: log,
	}
}

type createBatchRequest struct {
	Cantidad  int              `json:"cantidad" validate:"gt=0"`
	Codigo    *string          `json:"codigo" validate:"omitempty,max=64"`
	FechaVenc *repository.Date `json:"fechaVenc"`
}

type adjustBatchRequest struct {
	Cantidad *int `json:"cantidad" validate:"required,gte=0"`
}

type syncProductRequest struct {
	Nombre      string  `json:"nombre" validate:"required,max=200"`
	Categoria   *string `json:"categoria" validate:"omitempty,max=100"`
	StockMinimo *int    `json:"stockMinimo" validate:"required,gte=0"`
}

// Sync stores the catalog snapshot of a product
func (h *ProductHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req syncProductRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	product, err := h.ledger.SyncProduct(r.Context(), &repository.Product{
		ID:          chi.URLParam(r, "productId"),
		Nombre:      req.Nombre,
		Categoria:   req.Categoria,
		StockMinimo: *req.StockMinimo,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, product)
}

// Stock returns the product with its derived stock
func (h *ProductHandler) Stock(w http.ResponseWriter, r *http.Request) {
	product, err := h.ledger.GetProductStock(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, product)
}

// ListBatches lists a product's batches
func (h *ProductHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.ledger.ListBatches(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}

// CreateBatch creates a new batch
func (h *ProductHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	batch, err := h.ledger.AddBatch(r.Context(), chi.URLParam(r, "productId"), service.NewBatch{
		Cantidad:  req.Cantidad,
		Codigo:    req.Codigo,
		FechaVenc: req.FechaVenc,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, batch)
}

// AdjustBatch sets a batch's quantity
func (h *ProductHandler) AdjustBatch(w http.ResponseWriter, r *http.Request) {
	var req adjustBatchRequest
	if err := decode(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	batch, err := h.ledger.AdjustBatch(r.Context(), chi.URLParam(r, "productId"), chi.URLParam(r, "batchId"), *req.Cantidad)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batch)
}

// DeleteBatch removes a batch
func (h *ProductHandler) DeleteBatch(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.RemoveBatch(r.Context(), chi.URLParam(r, "productId"), chi.URLParam(r, "batchId")); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}
