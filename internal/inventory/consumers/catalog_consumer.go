package consumers

import (
	"context"
	"fmt"

	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
	"github.com/farmacia/farmacia-backend/pkg/errors"
	"github.com/farmacia/farmacia-backend/pkg/logger"
	"github.com/farmacia/farmacia-backend/pkg/messaging"
)

// ProductSyncer stores the catalog snapshot of a product
type ProductSyncer interface {
	SyncProduct(ctx context.Context, p *repository.Product) (*repository.Product, error)
}

// CatalogConsumer keeps the local product snapshot in line with the catalog
// service. All instances share one durable queue.
type CatalogConsumer struct {
	consumer *messaging.Consumer
	products ProductSyncer
	logger   *logger.Logger
}

// NewCatalogConsumer declares the dead letter queue and the durable catalog queue
func NewCatalogConsumer(rmq *messaging.RabbitMQ, serviceName string, products ProductSyncer, log *logger.Logger) (*CatalogConsumer, error) {
	if err := rmq.DeclareDeadLetterQueue(serviceName); err != nil {
		return nil, err
	}

	consumer, err := messaging.NewConsumer(rmq, fmt.Sprintf("%s.catalog", serviceName), log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeCatalogEvents, messaging.RoutingCatalogProducts); err != nil {
		return nil, err
	}

	c := &CatalogConsumer{
		consumer: consumer,
		products: products,
		logger:   log.WithComponent("catalog_consumer"),
	}
	consumer.RegisterHandler(messaging.EventCatalogProductUpserted, c.HandleProductUpserted)

	return c, nil
}

// Start starts consuming messages
func (c *CatalogConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

// HandleProductUpserted applies one catalog update. Updates the ledger
// rejects as invalid are acknowledged and dropped.
func (c *CatalogConsumer) HandleProductUpserted(ctx context.Context, event *messaging.Event) error {
	var data messaging.CatalogProductEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	product, err := c.products.SyncProduct(ctx, &repository.Product{
		ID:          data.ProductID,
		Nombre:      data.Nombre,
		Categoria:   data.Categoria,
		StockMinimo: data.StockMinimo,
	})
	if err != nil {
		if errors.Is(err, errors.ErrValidation) {
			c.logger.Warn().
				Err(err).
				Str("event_id", event.ID).
				Str("product_id", data.ProductID).
				Msg("dropping invalid catalog update")
			return nil
		}
		return err
	}

	c.logger.Debug().
		Str("product_id", product.ID).
		Int("stock_minimo", product.StockMinimo).
		Msg("catalog snapshot updated")
	return nil
}
