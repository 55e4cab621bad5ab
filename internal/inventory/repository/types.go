package repository

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/farmacia/farmacia-backend/pkg/errors"
)

// AlertType identifies the condition an alert tracks
type AlertType string

const (
	AlertTypeStockBajo   AlertType = "STOCK_BAJO"
	AlertTypeVencimiento AlertType = "VENCIMIENTO"
)

// ParseAlertType accepts the canonical names and the query aliases "stock" and "expiry"
func ParseAlertType(s string) (AlertType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "STOCK_BAJO", "STOCK":
		return AlertTypeStockBajo, nil
	case "VENCIMIENTO", "EXPIRY":
		return AlertTypeVencimiento, nil
	}
	return "", errors.InvalidField("type", fmt.Sprintf("unknown alert type %q", s))
}

func (t AlertType) Valid() bool {
	return t == AlertTypeStockBajo || t == AlertTypeVencimiento
}

func (t *AlertType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.InvalidField("type", "must be a string")
	}
	parsed, err := ParseAlertType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Severity classifies how urgent an alert is
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

func ParseSeverity(s string) (Severity, error) {
	switch v := Severity(strings.ToUpper(strings.TrimSpace(s))); v {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return v, nil
	}
	return "", errors.InvalidField("severity", fmt.Sprintf("unknown severity %q", s))
}

func (s Severity) Valid() bool {
	_, err := ParseSeverity(string(s))
	return err == nil
}

// Rank orders severities, higher is more urgent
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

func (s *Severity) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return errors.InvalidField("severity", "must be a string")
	}
	parsed, err := ParseSeverity(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// EstadoOrdenCompra is the lifecycle state of a purchase order
type EstadoOrdenCompra string

const (
	EstadoBorrador   EstadoOrdenCompra = "BORRADOR"
	EstadoEnviada    EstadoOrdenCompra = "ENVIADA"
	EstadoConfirmada EstadoOrdenCompra = "CONFIRMADA"
	EstadoRecibida   EstadoOrdenCompra = "RECIBIDA"
	EstadoCerrada    EstadoOrdenCompra = "CERRADA"
	EstadoCancelada  EstadoOrdenCompra = "CANCELADA"
)

var transitions = map[EstadoOrdenCompra][]EstadoOrdenCompra{
	EstadoBorrador:   {EstadoEnviada, EstadoCancelada},
	EstadoEnviada:    {EstadoConfirmada, EstadoCancelada},
	EstadoConfirmada: {EstadoRecibida, EstadoCancelada},
	EstadoRecibida:   {EstadoCerrada, EstadoCancelada},
}

func ParseEstado(s string) (EstadoOrdenCompra, error) {
	switch v := EstadoOrdenCompra(strings.ToUpper(strings.TrimSpace(s))); v {
	case EstadoBorrador, EstadoEnviada, EstadoConfirmada, EstadoRecibida, EstadoCerrada, EstadoCancelada:
		return v, nil
	}
	return "", errors.InvalidField("estado", fmt.Sprintf("unknown order state %q", s))
}

func (e EstadoOrdenCompra) Valid() bool {
	_, err := ParseEstado(string(e))
	return err == nil
}

// IsTerminal reports whether no transition leaves e
func (e EstadoOrdenCompra) IsTerminal() bool {
	return e == EstadoCerrada || e == EstadoCancelada
}

// ItemsEditable reports whether order lines may be added, changed or removed in e
func (e EstadoOrdenCompra) ItemsEditable() bool {
	return e == EstadoBorrador || e == EstadoEnviada || e == EstadoConfirmada
}

// CanTransitionTo reports whether e -> next is an edge of the order graph
func (e EstadoOrdenCompra) CanTransitionTo(next EstadoOrdenCompra) bool {
	for _, allowed := range transitions[e] {
		if allowed == next {
			return true
		}
	}
	return false
}

// NextStates lists the states reachable from e in one step
func (e EstadoOrdenCompra) NextStates() []EstadoOrdenCompra {
	return append([]EstadoOrdenCompra(nil), transitions[e]...)
}

func (e *EstadoOrdenCompra) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return errors.InvalidField("estado", "must be a string")
	}
	parsed, err := ParseEstado(raw)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// AlertEventKind describes what happened to an alert
type AlertEventKind string

const (
	AlertCreated         AlertEventKind = "created"
	AlertSeverityChanged AlertEventKind = "severity_changed"
	AlertResolved        AlertEventKind = "resolved"
	AlertRead            AlertEventKind = "read"
)
