package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
	"github.com/farmacia/farmacia-backend/pkg/errors"
	"github.com/farmacia/farmacia-backend/pkg/keylock"
	"github.com/farmacia/farmacia-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// OrderMachine owns purchase orders through BORRADOR -> ENVIADA -> CONFIRMADA
// -> RECIBIDA -> CERRADA, with CANCELADA reachable from any non-terminal state.
// Entering RECIBIDA is the only place orders write into the ledger.
type OrderMachine struct {
	stores   Stores
	ledger   *Ledger
	locks    *keylock.Locker
	notifier Notifier
	policy   *Policy
	logger   *logger.Logger
}

// NewOrderMachine creates a new purchase order machine
func NewOrderMachine(stores Stores, ledger *Ledger, notifier Notifier, log *logger.Logger) *OrderMachine {
	if notifier == nil {
		notifier = NopNotifier()
	}
	return &OrderMachine{
		stores:   stores,
		ledger:   ledger,
		locks:    keylock.New(),
		notifier: notifier,
		policy:   ledger.engine.policy,
		logger:   log.WithComponent("orders"),
	}
}

// NewOrderItem is one requested line
type NewOrderItem struct {
	ProductoID    string
	Cantidad      int
	CostoUnitario *decimal.Decimal
	Notas         *string
}

// NewOrder is the input of Create
type NewOrder struct {
	ProveedorID     string
	ProveedorNombre *string
	Notas           *string
	Items           []NewOrderItem
}

// ItemChanges is a partial update of an order line. ClearCosto drops a known cost.
type ItemChanges struct {
	Cantidad      *int
	CostoUnitario *decimal.Decimal
	ClearCosto    bool
	Notas         *string
}

// ReceiptCount records what actually arrived for a line
type ReceiptCount struct {
	CantidadRecib int
	LoteCodigo    *string
	FechaVenc     *repository.Date
}

// OrderQuery filters the order listing
type OrderQuery struct {
	Estado   *repository.EstadoOrdenCompra
	Search   string
	Page     int
	PageSize int
}

func validateItem(field string, it NewOrderItem) map[string]string {
	details := map[string]string{}
	if strings.TrimSpace(it.ProductoID) == "" {
		details[field+".productId"] = "this field is required"
	}
	if it.Cantidad < 1 {
		details[field+".cantidad"] = "must be at least 1"
	}
	if it.CostoUnitario != nil && it.CostoUnitario.IsNegative() {
		details[field+".costoUnitario"] = "must not be negative"
	}
	return details
}

// Create validates the lines and stores a new order in BORRADOR
func (m *OrderMachine) Create(ctx context.Context, in NewOrder) (*repository.PurchaseOrder, error) {
	details := map[string]string{}
	if strings.TrimSpace(in.ProveedorID) == "" {
		details["supplierId"] = "this field is required"
	}
	for i, it := range in.Items {
		for k, v := range validateItem(fmt.Sprintf("items[%d]", i), it) {
			details[k] = v
		}
	}
	if len(details) > 0 {
		return nil, errors.Validation(details)
	}

	order := &repository.PurchaseOrder{
		ProveedorID:     strings.TrimSpace(in.ProveedorID),
		ProveedorNombre: in.ProveedorNombre,
		Estado:          repository.EstadoBorrador,
		Notas:           in.Notas,
	}

	err := m.stores.Tx.WithTx(ctx, func(ctx context.Context) error {
		for _, it := range in.Items {
			item, err := m.newItem(ctx, it)
			if err != nil {
				return err
			}
			order.Items = append(order.Items, item)
		}
		order.RecomputeTotal()
		return m.stores.Orders.Create(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	m.logger.WithOrder(order.ID).Info().
		Str("proveedor_id", order.ProveedorID).
		Int("items", len(order.Items)).
		Str("total_estimado", order.TotalEstimado.String()).
		Msg("purchase order created")

	m.notifier.PublishOrderCreated(ctx, order)
	return order, nil
}

func (m *OrderMachine) newItem(ctx context.Context, it NewOrderItem) (*repository.OrderItem, error) {
	product, err := m.stores.Products.GetByID(ctx, it.ProductoID)
	if err != nil {
		return nil, err
	}

	nombre := product.Nombre
	item := &repository.OrderItem{
		ProductoID:     product.ID,
		ProductoNombre: &nombre,
		CantidadSolic:  it.Cantidad,
		Notas:          it.Notas,
	}
	if it.CostoUnitario != nil {
		item.CostoUnitario = decimal.NewNullDecimal(*it.CostoUnitario)
	}
	item.RecomputeSubtotal()
	return item, nil
}

// Get returns an order with its items
func (m *OrderMachine) Get(ctx context.Context, orderID string) (*repository.PurchaseOrder, error) {
	return m.stores.Orders.GetByID(ctx, orderID)
}

// List returns a page of orders and the total match count
func (m *OrderMachine) List(ctx context.Context, q OrderQuery) ([]*repository.PurchaseOrder, int64, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	return m.stores.Orders.List(ctx, repository.OrderFilter{
		Estado:   q.Estado,
		Search:   q.Search,
		Page:     q.Page,
		PageSize: q.PageSize,
	})
}

// AddItem appends a line while the order is still editable
func (m *OrderMachine) AddItem(ctx context.Context, orderID string, in NewOrderItem) (*repository.PurchaseOrder, error) {
	if details := validateItem("item", in); len(details) > 0 {
		return nil, errors.Validation(details)
	}

	return m.withOrder(ctx, orderID, func(ctx context.Context, o *repository.PurchaseOrder) error {
		if err := requireEditable(o); err != nil {
			return err
		}
		item, err := m.newItem(ctx, in)
		if err != nil {
			return err
		}
		item.OrdenID = o.ID
		if err := m.stores.Orders.AddItem(ctx, item); err != nil {
			return err
		}
		o.Items = append(o.Items, item)
		return m.saveTotal(ctx, o)
	})
}

// UpdateItem applies a partial change to a line while the order is editable
func (m *OrderMachine) UpdateItem(ctx context.Context, orderID, itemID string, ch ItemChanges) (*repository.PurchaseOrder, error) {
	if ch.Cantidad != nil && *ch.Cantidad < 1 {
		return nil, errors.InvalidField("cantidad", "must be at least 1")
	}
	if ch.CostoUnitario != nil && ch.CostoUnitario.IsNegative() {
		return nil, errors.InvalidField("costoUnitario", "must not be negative")
	}

	return m.withOrder(ctx, orderID, func(ctx context.Context, o *repository.PurchaseOrder) error {
		if err := requireEditable(o); err != nil {
			return err
		}
		item, ok := o.Item(itemID)
		if !ok {
			return errors.NotFound("order item")
		}

		if ch.Cantidad != nil {
			item.CantidadSolic = *ch.Cantidad
		}
		switch {
		case ch.ClearCosto:
			item.CostoUnitario = decimal.NullDecimal{}
		case ch.CostoUnitario != nil:
			item.CostoUnitario = decimal.NewNullDecimal(*ch.CostoUnitario)
		}
		if ch.Notas != nil {
			item.Notas = ch.Notas
		}
		item.RecomputeSubtotal()

		if err := m.stores.Orders.UpdateItem(ctx, item); err != nil {
			return err
		}
		return m.saveTotal(ctx, o)
	})
}

// RemoveItem deletes a line while the order is editable
func (m *OrderMachine) RemoveItem(ctx context.Context, orderID, itemID string) (*repository.PurchaseOrder, error) {
	return m.withOrder(ctx, orderID, func(ctx context.Context, o *repository.PurchaseOrder) error {
		if err := requireEditable(o); err != nil {
			return err
		}
		if _, ok := o.Item(itemID); !ok {
			return errors.NotFound("order item")
		}
		if err := m.stores.Orders.DeleteItem(ctx, o.ID, itemID); err != nil {
			return err
		}

		kept := o.Items[:0:0]
		for _, it := range o.Items {
			if it.ID != itemID {
				kept = append(kept, it)
			}
		}
		o.Items = kept
		return m.saveTotal(ctx, o)
	})
}

// SetReceivedQuantity records the counted quantity of a line before the
// order is marked RECIBIDA
func (m *OrderMachine) SetReceivedQuantity(ctx context.Context, orderID, itemID string, in ReceiptCount) (*repository.PurchaseOrder, error) {
	if in.CantidadRecib < 0 {
		return nil, errors.InvalidField("cantidadRecib", "must not be negative")
	}

	return m.withOrder(ctx, orderID, func(ctx context.Context, o *repository.PurchaseOrder) error {
		if o.Estado != repository.EstadoEnviada && o.Estado != repository.EstadoConfirmada {
			return errors.StateConflict(fmt.Sprintf("received quantities cannot be recorded while the order is %s", o.Estado))
		}
		item, ok := o.Item(itemID)
		if !ok {
			return errors.NotFound("order item")
		}

		item.CantidadRecib = in.CantidadRecib
		item.RecibidoSet = true
		if in.LoteCodigo != nil {
			item.LoteCodigo = normalizeCode(in.LoteCodigo)
		}
		if in.FechaVenc != nil {
			item.FechaVenc = in.FechaVenc
		}
		return m.stores.Orders.UpdateItem(ctx, item)
	})
}

// ChangeEstado moves the order along one edge of the state graph
func (m *OrderMachine) ChangeEstado(ctx context.Context, orderID string, next repository.EstadoOrdenCompra) (*repository.PurchaseOrder, error) {
	if !next.Valid() {
		return nil, errors.InvalidField("estado", fmt.Sprintf("unknown order state %q", next))
	}

	unlock := m.locks.Lock(orderID)
	defer unlock()

	// Receipt writes into the ledger, so the touched products are locked
	// before the transaction starts. Items cannot change while the order lock is held.
	current, err := m.stores.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if next == repository.EstadoRecibida {
		productIDs := make([]string, 0, len(current.Items))
		for _, it := range current.Items {
			productIDs = append(productIDs, it.ProductoID)
		}
		release := m.ledger.lockProducts(productIDs)
		defer release()
	}

	var (
		order   *repository.PurchaseOrder
		from    repository.EstadoOrdenCompra
		touched []*repository.Product
		events  []repository.AlertEvent
	)
	err = m.stores.Tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		order, err = m.stores.Orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		from = order.Estado

		if !from.CanTransitionTo(next) {
			return errors.StateConflict(fmt.Sprintf("cannot change order from %s to %s", from, next))
		}

		now := m.policy.Now()
		order.Estado = next
		switch next {
		case repository.EstadoEnviada:
			order.EnviadaAt = &now
		case repository.EstadoRecibida:
			order.RecibidaAt = &now
			touched, events, err = m.receive(ctx, order)
			if err != nil {
				return err
			}
		}

		return m.stores.Orders.Update(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	m.logger.WithOrder(order.ID).Info().
		Str("from", string(from)).
		Str("to", string(next)).
		Int("products_received", len(touched)).
		Msg("purchase order state changed")

	m.notifier.PublishOrderStateChanged(ctx, order, from)
	for _, p := range touched {
		m.notifier.PublishStockChanged(ctx, p, "", OpReceived)
	}
	m.notifier.PublishAlertEvents(ctx, events)
	return order, nil
}

// receive applies the received quantities to the ledger. When no line has a
// recorded count, every line is taken as received in full.
func (m *OrderMachine) receive(ctx context.Context, o *repository.PurchaseOrder) ([]*repository.Product, []repository.AlertEvent, error) {
	anyRecorded := false
	for _, it := range o.Items {
		if it.RecibidoSet {
			anyRecorded = true
			break
		}
	}

	lines := map[string][]ReceiptLine{}
	for _, it := range o.Items {
		if !anyRecorded {
			it.CantidadRecib = it.CantidadSolic
			it.RecibidoSet = true
			if err := m.stores.Orders.UpdateItem(ctx, it); err != nil {
				return nil, nil, err
			}
		}
		if it.CantidadRecib <= 0 {
			continue
		}
		lines[it.ProductoID] = append(lines[it.ProductoID], ReceiptLine{
			Cantidad:  it.CantidadRecib,
			Codigo:    it.LoteCodigo,
			FechaVenc: it.FechaVenc,
		})
	}

	var (
		touched []*repository.Product
		events  []repository.AlertEvent
	)
	for _, productID := range sortedKeys(lines) {
		product, evs, err := m.ledger.receiveIntoBatch(ctx, productID, lines[productID])
		if err != nil {
			return nil, nil, fmt.Errorf("receive product %s: %w", productID, err)
		}
		touched = append(touched, product)
		events = append(events, evs...)
	}
	return touched, events, nil
}

// Delete removes an order that is still a BORRADOR
func (m *OrderMachine) Delete(ctx context.Context, orderID string) error {
	_, err := m.withOrder(ctx, orderID, func(ctx context.Context, o *repository.PurchaseOrder) error {
		if o.Estado != repository.EstadoBorrador {
			return errors.StateConflict(fmt.Sprintf("only BORRADOR orders can be deleted, order is %s", o.Estado))
		}
		return m.stores.Orders.Delete(ctx, o.ID)
	})
	if err == nil {
		m.logger.WithOrder(orderID).Info().Msg("purchase order deleted")
	}
	return err
}

// withOrder serializes a mutation on one order: order lock, transaction and row lock
func (m *OrderMachine) withOrder(ctx context.Context, orderID string, fn func(ctx context.Context, o *repository.PurchaseOrder) error) (*repository.PurchaseOrder, error) {
	unlock := m.locks.Lock(orderID)
	defer unlock()

	var order *repository.PurchaseOrder
	err := m.stores.Tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		order, err = m.stores.Orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		return fn(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (m *OrderMachine) saveTotal(ctx context.Context, o *repository.PurchaseOrder) error {
	o.RecomputeTotal()
	return m.stores.Orders.Update(ctx, o)
}

func requireEditable(o *repository.PurchaseOrder) error {
	if !o.Estado.ItemsEditable() {
		return errors.StateConflict(fmt.Sprintf("items cannot be changed while the order is %s", o.Estado))
	}
	return nil
}
