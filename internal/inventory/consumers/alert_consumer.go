package consumers

import (
	"context"

	"github.com/farmacia/farmacia-backend/internal/inventory/events"
	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
	"github.com/farmacia/farmacia-backend/pkg/logger"
	"github.com/farmacia/farmacia-backend/pkg/messaging"
)

// AlertFeedConsumer relays alert events from the broker to this instance's
// live feed. Each instance binds its own exclusive queue, so every
// subscriber sees changes made through any instance.
type AlertFeedConsumer struct {
	consumer *messaging.Consumer
	sink     events.AlertSink
	logger   *logger.Logger
}

// NewAlertFeedConsumer creates a new alert feed consumer
func NewAlertFeedConsumer(rmq *messaging.RabbitMQ, sink events.AlertSink, log *logger.Logger) (*AlertFeedConsumer, error) {
	consumer, err := messaging.NewTransientConsumer(rmq, log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeInventoryEvents, messaging.RoutingAlerts); err != nil {
		return nil, err
	}

	c := &AlertFeedConsumer{
		consumer: consumer,
		sink:     sink,
		logger:   log.WithComponent("alert_feed_consumer"),
	}

	for _, eventType := range []string{
		messaging.EventAlertCreated,
		messaging.EventAlertSeverityChanged,
		messaging.EventAlertResolved,
		messaging.EventAlertRead,
	} {
		consumer.RegisterHandler(eventType, c.HandleAlertChanged)
	}

	return c, nil
}

// Start starts consuming messages
func (c *AlertFeedConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

// HandleAlertChanged forwards one broker event to the local feed
func (c *AlertFeedConsumer) HandleAlertChanged(ctx context.Context, event *messaging.Event) error {
	var data messaging.AlertChangedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Debug().
		Str("event_id", event.ID).
		Str("alert_id", data.AlertID).
		Str("kind", data.Kind).
		Msg("received alert event")

	c.sink.PublishAlertEvents(ctx, []repository.AlertEvent{events.ToAlertEvent(data)})
	return nil
}
