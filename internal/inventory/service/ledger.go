package service

import (
	"context"
	"sort"
	"strings"

	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
	"github.com/farmacia/farmacia-backend/pkg/errors"
	"github.com/farmacia/farmacia-backend/pkg/keylock"
	"github.com/farmacia/farmacia-backend/pkg/logger"
)

// Ledger operations reported on stock change events
const (
	OpBatchCreated  = "batch_created"
	OpBatchAdjusted = "batch_adjusted"
	OpBatchRemoved  = "batch_removed"
	OpReceived      = "order_received"
	OpCatalogSync   = "catalog_sync"
)

// Ledger owns product batches and the stock figure derived from them.
// stockActual is only ever written here, as the sum of the product's batches.
type Ledger struct {
	stores   Stores
	engine   *AlertEngine
	locks    *keylock.Locker
	notifier Notifier
	logger   *logger.Logger
}

// NewLedger creates a new batch ledger sharing the engine's product locks
func NewLedger(stores Stores, engine *AlertEngine, locks *keylock.Locker, notifier Notifier, log *logger.Logger) *Ledger {
	if notifier == nil {
		notifier = NopNotifier()
	}
	return &Ledger{
		stores:   stores,
		engine:   engine,
		locks:    locks,
		notifier: notifier,
		logger:   log.WithComponent("ledger"),
	}
}

// NewBatch is the input of AddBatch
type NewBatch struct {
	Cantidad  int
	Codigo    *string
	FechaVenc *repository.Date
}

// AddBatch creates a batch and re-evaluates the product's alerts
func (l *Ledger) AddBatch(ctx context.Context, productID string, in NewBatch) (*repository.Batch, error) {
	if in.Cantidad <= 0 {
		return nil, errors.InvalidField("cantidad", "must be greater than 0")
	}
	codigo := normalizeCode(in.Codigo)

	return l.mutate(ctx, productID, OpBatchCreated, func(ctx context.Context, _ *repository.Product) (*repository.Batch, error) {
		batch := &repository.Batch{
			ProductoID: productID,
			Codigo:     codigo,
			Cantidad:   in.Cantidad,
			FechaVenc:  in.FechaVenc,
		}
		if err := l.stores.Batches.Create(ctx, batch); err != nil {
			return nil, err
		}
		return batch, nil
	})
}

// AdjustBatch sets a batch's quantity to an absolute value
func (l *Ledger) AdjustBatch(ctx context.Context, productID, batchID string, cantidad int) (*repository.Batch, error) {
	if cantidad < 0 {
		return nil, errors.InvalidField("cantidad", "must not be negative")
	}

	return l.mutate(ctx, productID, OpBatchAdjusted, func(ctx context.Context, _ *repository.Product) (*repository.Batch, error) {
		if _, err := l.ownedBatch(ctx, productID, batchID); err != nil {
			return nil, err
		}
		return l.stores.Batches.SetCantidad(ctx, batchID, cantidad)
	})
}

// RemoveBatch deletes a batch; its open expiry alert resolves
func (l *Ledger) RemoveBatch(ctx context.Context, productID, batchID string) error {
	_, err := l.mutate(ctx, productID, OpBatchRemoved, func(ctx context.Context, _ *repository.Product) (*repository.Batch, error) {
		batch, err := l.ownedBatch(ctx, productID, batchID)
		if err != nil {
			return nil, err
		}
		if err := l.stores.Batches.Delete(ctx, batchID); err != nil {
			return nil, err
		}
		return batch, nil
	})
	return err
}

// ListBatches lists a product's batches, soonest expiry first
func (l *Ledger) ListBatches(ctx context.Context, productID string) ([]*repository.Batch, error) {
	if _, err := l.stores.Products.GetByID(ctx, productID); err != nil {
		return nil, err
	}
	return l.stores.Batches.ListByProduct(ctx, productID)
}

// GetProductStock returns the product with its derived stock figure
func (l *Ledger) GetProductStock(ctx context.Context, productID string) (*repository.Product, error) {
	return l.stores.Products.GetByID(ctx, productID)
}

// SyncProduct stores the catalog snapshot of a product (name, category,
// reorder threshold) and re-evaluates its alerts. stockActual is kept.
func (l *Ledger) SyncProduct(ctx context.Context, p *repository.Product) (*repository.Product, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, errors.InvalidField("id", "this field is required")
	}
	p.Nombre = strings.TrimSpace(p.Nombre)
	if p.Nombre == "" {
		return nil, errors.InvalidField("nombre", "this field is required")
	}
	if p.StockMinimo < 0 {
		return nil, errors.InvalidField("stockMinimo", "must not be negative")
	}

	unlock := l.locks.Lock(p.ID)
	defer unlock()

	var (
		product *repository.Product
		events  []repository.AlertEvent
	)
	err := l.stores.Tx.WithTx(ctx, func(ctx context.Context) error {
		if err := l.stores.Products.Upsert(ctx, p); err != nil {
			return err
		}
		var err error
		product, err = l.stores.Products.GetForUpdate(ctx, p.ID)
		if err != nil {
			return err
		}
		events, err = l.recompute(ctx, product)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.notifier.PublishStockChanged(ctx, product, "", OpCatalogSync)
	l.notifier.PublishAlertEvents(ctx, events)
	return product, nil
}

type batchMutation func(ctx context.Context, product *repository.Product) (*repository.Batch, error)

// mutate is the ledger's unit of work: product lock, transaction, row lock,
// mutation, stock recompute, alert evaluation, commit, then notifications
func (l *Ledger) mutate(ctx context.Context, productID, op string, fn batchMutation) (*repository.Batch, error) {
	unlock := l.locks.Lock(productID)
	defer unlock()

	var (
		batch   *repository.Batch
		product *repository.Product
		events  []repository.AlertEvent
	)
	err := l.stores.Tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		product, err = l.stores.Products.GetForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		if batch, err = fn(ctx, product); err != nil {
			return err
		}
		events, err = l.recompute(ctx, product)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.logger.WithProduct(productID).Info().
		Str("batch_id", batch.ID).
		Str("operation", op).
		Int("stock_actual", product.StockActual).
		Int("alert_events", len(events)).
		Msg("ledger updated")

	l.notifier.PublishStockChanged(ctx, product, batch.ID, op)
	l.notifier.PublishAlertEvents(ctx, events)
	return batch, nil
}

// recompute derives stockActual from the batches and evaluates alerts.
// Must run inside a transaction holding the product lock.
func (l *Ledger) recompute(ctx context.Context, product *repository.Product) ([]repository.AlertEvent, error) {
	stock, err := l.stores.Batches.SumByProduct(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	if stock != product.StockActual {
		if err := l.stores.Products.SetStockActual(ctx, product.ID, stock); err != nil {
			return nil, err
		}
		product.StockActual = stock
	}
	return l.engine.evaluate(ctx, product)
}

func (l *Ledger) ownedBatch(ctx context.Context, productID, batchID string) (*repository.Batch, error) {
	batch, err := l.stores.Batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.ProductoID != productID {
		return nil, errors.NotFound("batch")
	}
	return batch, nil
}

// ReceiptLine is a received quantity for one product
type ReceiptLine struct {
	Cantidad  int
	Codigo    *string
	FechaVenc *repository.Date
}

// lockProducts takes the product locks in sorted order
func (l *Ledger) lockProducts(productIDs []string) func() {
	return l.locks.LockAll(productIDs...)
}

// receiveIntoBatch adds received quantities to a product inside the caller's
// transaction. A live batch with the same code and expiry is incremented,
// otherwise a new batch is created. Callers hold the product lock.
func (l *Ledger) receiveIntoBatch(ctx context.Context, productID string, lines []ReceiptLine) (*repository.Product, []repository.AlertEvent, error) {
	product, err := l.stores.Products.GetForUpdate(ctx, productID)
	if err != nil {
		return nil, nil, err
	}

	for _, line := range lines {
		if line.Cantidad <= 0 {
			continue
		}
		codigo := normalizeCode(line.Codigo)

		existing, err := l.stores.Batches.FindForReceipt(ctx, productID, codigo, line.FechaVenc)
		if err != nil {
			return nil, nil, err
		}
		if existing != nil {
			if _, err := l.stores.Batches.SetCantidad(ctx, existing.ID, existing.Cantidad+line.Cantidad); err != nil {
				return nil, nil, err
			}
			continue
		}

		batch := &repository.Batch{
			ProductoID: productID,
			Codigo:     codigo,
			Cantidad:   line.Cantidad,
			FechaVenc:  line.FechaVenc,
		}
		if err := l.stores.Batches.Create(ctx, batch); err != nil {
			return nil, nil, err
		}
	}

	events, err := l.recompute(ctx, product)
	if err != nil {
		return nil, nil, err
	}
	return product, events, nil
}

func normalizeCode(code *string) *string {
	if code == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*code)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
