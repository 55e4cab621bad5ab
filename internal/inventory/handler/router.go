package handler

import (
	"github.com/go-chi/chi/v5"
)

// Handlers groups the HTTP handlers of the stock service
type Handlers struct {
	Products *ProductHandler
	Alerts   *AlertHandler
	Stream   *StreamHandler
	Orders   *OrderHandler
}

// Register mounts every stock route on r
func (h *Handlers) Register(r chi.Router) {
	r.Route("/products/{productId}", func(r chi.Router) {
		r.Put("/", h.Products.Sync)
		r.Get("/stock", h.Products.Stock)
		r.Get("/batches", h.Products.ListBatches)
		r.Post("/batches", h.Products.CreateBatch)
		r.Put("/batches/{batchId}", h.Products.AdjustBatch)
		r.Delete("/batches/{batchId}", h.Products.DeleteBatch)
	})

	r.Route("/alerts", func(r chi.Router) {
		r.Get("/", h.Alerts.List)
		r.Patch("/read-all", h.Alerts.MarkAllRead)
		r.Patch("/{id}/read", h.Alerts.MarkRead)
		if h.Stream != nil {
			r.Get("/stream", h.Stream.Serve)
		}
	})

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.Orders.List)
		r.Post("/", h.Orders.Create)
		r.Get("/{id}", h.Orders.Get)
		r.Delete("/{id}", h.Orders.Delete)
		r.Patch("/{id}/estado", h.Orders.ChangeEstado)
		r.Post("/{id}/items", h.Orders.AddItem)
		r.Put("/{id}/items/{itemId}", h.Orders.UpdateItem)
		r.Delete("/{id}/items/{itemId}", h.Orders.RemoveItem)
		r.Put("/{id}/items/{itemId}/received", h.Orders.SetReceived)
	})
}
