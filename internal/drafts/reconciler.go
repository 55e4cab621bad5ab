package drafts

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/farmacia/farmacia-backend/internal/client"
	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
	"github.com/farmacia/farmacia-backend/pkg/errors"
	"github.com/farmacia/farmacia-backend/pkg/logger"
)

// OrderCreator submits a new purchase order to the server
type OrderCreator interface {
	CreateOrder(ctx context.Context, req client.CreateOrderRequest) (*repository.PurchaseOrder, error)
}

// Reconciler owns the local drafts of one operator. Every change is saved
// before it becomes visible; a failed save leaves the previous state in place.
//
// A Reconciler is the only writer of its store. Two reconcilers sharing a
// file overwrite each other, the last save wins.
type Reconciler struct {
	mu      sync.Mutex
	state   State
	store   Store
	creator OrderCreator
	logger  *logger.Logger
}

// NewReconciler loads the persisted drafts
func NewReconciler(ctx context.Context, store Store, creator OrderCreator, log *logger.Logger) (*Reconciler, error) {
	st, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}

	return &Reconciler{
		state:   st,
		store:   store,
		creator: creator,
		logger:  log.WithComponent("drafts"),
	}, nil
}

// Drafts returns a copy of every draft
func (r *Reconciler) Drafts() []DraftOrder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone().Drafts
}

// Draft returns a copy of the supplier's draft
func (r *Reconciler) Draft(supplierID string) (DraftOrder, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Draft(supplierID)
}

// EnsureDraft creates an empty draft for the supplier if none exists
func (r *Reconciler) EnsureDraft(ctx context.Context, supplierID, supplierName string) error {
	if strings.TrimSpace(supplierID) == "" {
		return errors.InvalidField("supplierId", "this field is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apply(ctx, r.state.EnsureDraft(supplierID, supplierName))
}

// AddItem stages a line, merging it with an existing line for the same product
func (r *Reconciler) AddItem(ctx context.Context, supplierID, supplierName string, item DraftItem) error {
	details := map[string]string{}
	if strings.TrimSpace(supplierID) == "" {
		details["supplierId"] = "this field is required"
	}
	if strings.TrimSpace(item.ProductID) == "" {
		details["productId"] = "this field is required"
	}
	if item.Cantidad < 1 {
		details["cantidad"] = "must be at least 1"
	}
	if item.CostoUnitario != nil && item.CostoUnitario.IsNegative() {
		details["costoUnitario"] = "must not be negative"
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apply(ctx, r.state.AddItem(supplierID, supplierName, item))
}

// UpdateItem changes a staged line
func (r *Reconciler) UpdateItem(ctx context.Context, supplierID, productID string, ch ItemChanges) error {
	if ch.CostoUnitario != nil && ch.CostoUnitario.IsNegative() {
		return errors.InvalidField("costoUnitario", "must not be negative")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.state.Item(supplierID, productID); !ok {
		return errors.NotFound("draft item")
	}
	return r.apply(ctx, r.state.UpdateItem(supplierID, productID, ch))
}

// RemoveItem drops a staged line, and the draft with it when it was the last
func (r *Reconciler) RemoveItem(ctx context.Context, supplierID, productID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.state.Item(supplierID, productID); !ok {
		return errors.NotFound("draft item")
	}
	return r.apply(ctx, r.state.RemoveItem(supplierID, productID))
}

// ClearProveedor discards the supplier's draft
func (r *Reconciler) ClearProveedor(ctx context.Context, supplierID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apply(ctx, r.state.ClearProveedor(supplierID))
}

// ClearAll discards every draft
func (r *Reconciler) ClearAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apply(ctx, r.state.ClearAll())
}

// ConfirmDraft submits the supplier's draft as one new purchase order and
// discards the draft once the server has accepted it. On any error the draft
// is kept as it was so the operator can retry.
func (r *Reconciler) ConfirmDraft(ctx context.Context, supplierID string, notas *string) (*repository.PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	draft, ok := r.state.Draft(supplierID)
	if !ok {
		return nil, errors.NotFound("draft")
	}
	if len(draft.Items) == 0 {
		return nil, errors.InvalidField("items", "draft has no items")
	}

	req := client.CreateOrderRequest{
		SupplierID: draft.SupplierID,
		Notas:      notas,
		Items:      make([]client.OrderItemRequest, 0, len(draft.Items)),
	}
	if draft.SupplierName != "" {
		name := draft.SupplierName
		req.SupplierName = &name
	}
	for _, it := range draft.Items {
		req.Items = append(req.Items, client.OrderItemRequest{
			ProductID:     it.ProductID,
			Cantidad:      it.Cantidad,
			CostoUnitario: it.CostoUnitario,
			Notas:         it.Notas,
		})
	}

	order, err := r.creator.CreateOrder(ctx, req)
	if err != nil {
		r.logger.Warn().Err(err).Str("supplier_id", supplierID).Msg("draft confirmation failed, draft kept")
		return nil, err
	}

	if err := r.apply(ctx, r.state.ClearProveedor(supplierID)); err != nil {
		// the order exists; only the local cleanup failed
		r.logger.Error().Err(err).
			Str("supplier_id", supplierID).
			Str("order_id", order.ID).
			Msg("order created but draft could not be cleared")
		return order, fmt.Errorf("order %s created, clearing draft failed: %w", order.ID, err)
	}

	r.logger.Info().
		Str("supplier_id", supplierID).
		Str("order_id", order.ID).
		Int("items", len(draft.Items)).
		Msg("draft confirmed")
	return order, nil
}

func (r *Reconciler) apply(ctx context.Context, next State) error {
	if err := r.store.Save(ctx, next); err != nil {
		return err
	}
	r.state = next
	return nil
}
