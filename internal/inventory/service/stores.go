package service

import (
	"context"
	"time"

	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
)

// TxRunner runs a unit of work atomically. Stores called with the ctx passed
// to fn take part in the same transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductStore reads catalog rows and stores the derived stock figure
type ProductStore interface {
	GetByID(ctx context.Context, id string) (*repository.Product, error)
	GetForUpdate(ctx context.Context, id string) (*repository.Product, error)
	Upsert(ctx context.Context, p *repository.Product) error
	SetStockActual(ctx context.Context, id string, stock int) error
	ListIDs(ctx context.Context) ([]string, error)
}

// BatchStore persists ledger entries
type BatchStore interface {
	Create(ctx context.Context, b *repository.Batch) error
	GetByID(ctx context.Context, id string) (*repository.Batch, error)
	SetCantidad(ctx context.Context, id string, cantidad int) (*repository.Batch, error)
	Delete(ctx context.Context, id string) error
	ListByProduct(ctx context.Context, productID string) ([]*repository.Batch, error)
	SumByProduct(ctx context.Context, productID string) (int, error)
	FindForReceipt(ctx context.Context, productID string, codigo *string, fechaVenc *repository.Date) (*repository.Batch, error)
}

// AlertStore persists alerts
type AlertStore interface {
	Create(ctx context.Context, a *repository.Alert) error
	Update(ctx context.Context, a *repository.Alert, resetRead bool) error
	Resolve(ctx context.Context, id string, at time.Time) error
	GetByID(ctx context.Context, id string) (*repository.Alert, error)
	FindOpenStock(ctx context.Context, productID string) (*repository.Alert, error)
	ListOpenExpiryByProduct(ctx context.Context, productID string) ([]*repository.Alert, error)
	SetRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, alertType *repository.AlertType) ([]*repository.Alert, error)
	List(ctx context.Context, f repository.AlertFilter) ([]*repository.Alert, int64, error)
	CountUnread(ctx context.Context, alertType *repository.AlertType) (int64, error)
}

// OrderStore persists purchase orders and their lines
type OrderStore interface {
	Create(ctx context.Context, o *repository.PurchaseOrder) error
	GetByID(ctx context.Context, id string) (*repository.PurchaseOrder, error)
	GetForUpdate(ctx context.Context, id string) (*repository.PurchaseOrder, error)
	Update(ctx context.Context, o *repository.PurchaseOrder) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f repository.OrderFilter) ([]*repository.PurchaseOrder, int64, error)
	AddItem(ctx context.Context, it *repository.OrderItem) error
	UpdateItem(ctx context.Context, it *repository.OrderItem) error
	DeleteItem(ctx context.Context, orderID, itemID string) error
}

// Stores groups the persistence ports the services need
type Stores struct {
	Tx       TxRunner
	Products ProductStore
	Batches  BatchStore
	Alerts   AlertStore
	Orders   OrderStore
}

// Notifier receives committed changes. Implementations must not block and
// must tolerate being called with an empty slice.
type Notifier interface {
	PublishAlertEvents(ctx context.Context, events []repository.AlertEvent)
	PublishStockChanged(ctx context.Context, product *repository.Product, batchID, operation string)
	PublishOrderCreated(ctx context.Context, order *repository.PurchaseOrder)
	PublishOrderStateChanged(ctx context.Context, order *repository.PurchaseOrder, from repository.EstadoOrdenCompra)
}

type nopNotifier struct{}

func (nopNotifier) PublishAlertEvents(context.Context, []repository.AlertEvent) {}
func (nopNotifier) PublishStockChanged(context.Context, *repository.Product, string, string) {}
func (nopNotifier) PublishOrderCreated(context.Context, *repository.PurchaseOrder) {}
func (nopNotifier) PublishOrderStateChanged(context.Context, *repository.PurchaseOrder, repository.EstadoOrdenCompra) {
}

// NopNotifier discards every notification
func NopNotifier() Notifier { return nopNotifier{} }
