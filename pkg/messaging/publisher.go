package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/farmacia/farmacia-backend/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher handles publishing events to RabbitMQ
type Publisher struct {
	rmq      *RabbitMQ
	exchange string
	source   string
	logger   *logger.Logger
}

// NewPublisher creates a new publisher for the given exchange
func NewPublisher(rmq *RabbitMQ, exchange, source string, log *logger.Logger) (*Publisher, error) {
	if err := rmq.DeclareExchange(exchange); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &Publisher{
		rmq:      rmq,
		exchange: exchange,
		source:   source,
		logger:   log,
	}, nil
}

// Publish publishes an event to the exchange, using the event type as routing key
func (p *Publisher) Publish(ctx context.Context, eventType string, data interface{}) error {
	correlationID := getCorrelationID(ctx)

	event, err := NewEvent(eventType, p.source, correlationID, data)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	return p.PublishWithRoutingKey(ctx, eventType, event)
}

// PublishWithRoutingKey publishes an event with a custom routing key.
// A closed channel triggers one reconnect and a single retry.
func (p *Publisher) PublishWithRoutingKey(ctx context.Context, routingKey string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.publish(ctx, routingKey, event, body)
	if errors.Is(err, amqp.ErrClosed) {
		p.logger.Warn().Str("routing_key", routingKey).Msg("channel closed, reconnecting before retry")
		if rerr := p.rmq.Reconnect(ctx); rerr != nil {
			return fmt.Errorf("failed to publish event: %w", rerr)
		}
		err = p.publish(ctx, routingKey, event, body)
	}
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug().
		Str("routing_key", routingKey).
		Str("event_id", event.ID).
		Str("correlation_id", event.CorrelationID).
		Msg("event published")

	return nil
}

func (p *Publisher) publish(ctx context.Context, routingKey string, event *Event, body []byte) error {
	return p.rmq.Channel().PublishWithContext(ctx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     event.ID,
			CorrelationId: event.CorrelationID,
			Body:          body,
		},
	)
}

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// WithCorrelationID adds a correlation ID to the context
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

func getCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}
