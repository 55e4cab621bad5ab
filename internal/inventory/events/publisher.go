package events

import (
	"context"

	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
	"github.com/farmacia/farmacia-backend/pkg/logger"
	"github.com/farmacia/farmacia-backend/pkg/messaging"
)

const source = "stock-service"

// AlertSink receives alert events for local delivery
type AlertSink interface {
	PublishAlertEvents(ctx context.Context, events []repository.AlertEvent)
}

// StockEventPublisher publishes ledger, alert and purchase order events.
// Without a broker, alert events go straight to the local sink and the rest
// are dropped. With a broker, every instance's alert consumer feeds its own
// sink, so alert events are only handed to the local sink when publishing fails.
type StockEventPublisher struct {
	publisher *messaging.Publisher
	local     AlertSink
	logger    *logger.Logger
}

// NewStockEventPublisher creates a new publisher. rmq may be nil.
func NewStockEventPublisher(rmq *messaging.RabbitMQ, local AlertSink, log *logger.Logger) (*StockEventPublisher, error) {
	p := &StockEventPublisher{
		local:  local,
		logger: log.WithComponent("events"),
	}
	if rmq == nil {
		return p, nil
	}

	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeInventoryEvents, source, log)
	if err != nil {
		return nil, err
	}
	p.publisher = publisher
	return p, nil
}

// PublishAlertEvents publishes one message per alert change
func (p *StockEventPublisher) PublishAlertEvents(ctx context.Context, events []repository.AlertEvent) {
	if p == nil || len(events) == 0 {
		return
	}
	if p.publisher == nil {
		p.deliverLocal(ctx, events)
		return
	}

	var failed []repository.AlertEvent
	for _, ev := range events {
		if err := p.publisher.Publish(ctx, AlertEventType(ev.Kind), FromAlertEvent(ev)); err != nil {
			p.logger.Error().Err(err).Str("alert_id", ev.AlertID).Msg("failed to publish alert event")
			failed = append(failed, ev)
		}
	}
	p.deliverLocal(ctx, failed)
}

// PublishStockChanged publishes a stock changed event
func (p *StockEventPublisher) PublishStockChanged(ctx context.Context, product *repository.Product, batchID, operation string) {
	if p == nil || p.publisher == nil {
		return
	}

	data := messaging.StockChangedEvent{
		ProductID:   product.ID,
		BatchID:     batchID,
		Operation:   operation,
		StockActual: product.StockActual,
		StockMinimo: product.StockMinimo,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockChanged, data); err != nil {
		p.logger.Error().Err(err).Str("product_id", product.ID).Msg("failed to publish stock changed event")
	}
}

// PublishOrderCreated publishes an order created event
func (p *StockEventPublisher) PublishOrderCreated(ctx context.Context, order *repository.PurchaseOrder) {
	if p == nil || p.publisher == nil {
		return
	}

	data := messaging.OrderCreatedEvent{
		OrderID:       order.ID,
		ProveedorID:   order.ProveedorID,
		ItemCount:     len(order.Items),
		TotalEstimado: order.TotalEstimado.StringFixed(2),
	}

	if err := p.publisher.Publish(ctx, messaging.EventOrderCreated, data); err != nil {
		p.logger.Error().Err(err).Str("order_id", order.ID).Msg("failed to publish order created event")
	}
}

// PublishOrderStateChanged publishes an order state changed event
func (p *StockEventPublisher) PublishOrderStateChanged(ctx context.Context, order *repository.PurchaseOrder, from repository.EstadoOrdenCompra) {
	if p == nil || p.publisher == nil {
		return
	}

	data := messaging.OrderStateChangedEvent{
		OrderID:     order.ID,
		ProveedorID: order.ProveedorID,
		From:        string(from),
		To:          string(order.Estado),
		At:          order.UpdatedAt,
	}

	if err := p.publisher.Publish(ctx, messaging.EventOrderStateChanged, data); err != nil {
		p.logger.Error().Err(err).Str("order_id", order.ID).Msg("failed to publish order state changed event")
	}
}

func (p *StockEventPublisher) deliverLocal(ctx context.Context, events []repository.AlertEvent) {
	if p.local == nil || len(events) == 0 {
		return
	}
	p.local.PublishAlertEvents(ctx, events)
}

// AlertEventType maps an alert change to its routing key
func AlertEventType(kind repository.AlertEventKind) string {
	switch kind {
	case repository.AlertSeverityChanged:
		return messaging.EventAlertSeverityChanged
	case repository.AlertResolved:
		return messaging.EventAlertResolved
	case repository.AlertRead:
		return messaging.EventAlertRead
	default:
		return messaging.EventAlertCreated
	}
}

// FromAlertEvent converts an alert change to its wire form
func FromAlertEvent(ev repository.AlertEvent) messaging.AlertChangedEvent {
	data := messaging.AlertChangedEvent{
		EventID:   ev.ID,
		Kind:      string(ev.Kind),
		AlertID:   ev.AlertID,
		ProductID: ev.ProductID,
		AlertType: string(ev.Type),
		Severity:  string(ev.Severity),
		At:        ev.At,
	}
	if ev.BatchID != nil {
		data.BatchID = *ev.BatchID
	}
	return data
}

// ToAlertEvent converts a received wire event back into an alert change
func ToAlertEvent(data messaging.AlertChangedEvent) repository.AlertEvent {
	ev := repository.AlertEvent{
		ID:        data.EventID,
		Kind:      repository.AlertEventKind(data.Kind),
		AlertID:   data.AlertID,
		ProductID: data.ProductID,
		Type:      repository.AlertType(data.AlertType),
		Severity:  repository.Severity(data.Severity),
		At:        data.At,
	}
	if data.BatchID != "" {
		batchID := data.BatchID
		ev.BatchID = &batchID
	}
	return ev
}
