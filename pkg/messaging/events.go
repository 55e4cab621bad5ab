package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Alert events
	EventAlertCreated         = "inventory.alert.created"
	EventAlertSeverityChanged = "inventory.alert.severity_changed"
	EventAlertResolved        = "inventory.alert.resolved"
	EventAlertRead            = "inventory.alert.read"

	// Ledger events
	EventStockChanged = "inventory.stock.changed"

	// Purchase order events
	EventOrderCreated      = "inventory.order.created"
	EventOrderStateChanged = "inventory.order.state_changed"

	// Catalog events, published by the catalog service
	EventCatalogProductUpserted = "catalog.product.upserted"
)

// Routing key patterns
const (
	RoutingAlerts          = "inventory.alert.*"
	RoutingCatalogProducts = "catalog.product.*"
)

// Exchange names
const (
	ExchangeInventoryEvents = "inventory.events"
	ExchangeCatalogEvents   = "catalog.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Alert Events

// AlertChangedEvent is published for every alert lifecycle change
type AlertChangedEvent struct {
	EventID   string    `json:"event_id"`
	Kind      string    `json:"kind"`
	AlertID   string    `json:"alert_id"`
	ProductID string    `json:"product_id"`
	BatchID   string    `json:"batch_id,omitempty"`
	AlertType string    `json:"alert_type"`
	Severity  string    `json:"severity"`
	At        time.Time `json:"at"`
}

// Ledger Events

// StockChangedEvent is published after a batch mutation commits
type StockChangedEvent struct {
	ProductID   string `json:"product_id"`
	BatchID     string `json:"batch_id,omitempty"`
	Operation   string `json:"operation"`
	StockActual int    `json:"stock_actual"`
	StockMinimo int    `json:"stock_minimo"`
}

// Purchase Order Events

// OrderCreatedEvent is published when a purchase order is created
type OrderCreatedEvent struct {
	OrderID       string `json:"order_id"`
	ProveedorID   string `json:"proveedor_id"`
	ItemCount     int    `json:"item_count"`
	TotalEstimado string `json:"total_estimado"`
}

// OrderStateChangedEvent is published on every accepted state transition
type OrderStateChangedEvent struct {
	OrderID     string    `json:"order_id"`
	ProveedorID string    `json:"proveedor_id"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	At          time.Time `json:"at"`
}

// Catalog Events

// CatalogProductEvent carries the catalog fields the stock service keeps a copy of
type CatalogProductEvent struct {
	ProductID   string  `json:"product_id"`
	Nombre      string  `json:"nombre"`
	Categoria   *string `json:"categoria,omitempty"`
	StockMinimo int     `json:"stock_minimo"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.NewString()
}
