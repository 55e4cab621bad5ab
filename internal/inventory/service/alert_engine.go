package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
	"github.com/farmacia/farmacia-backend/pkg/config"
	"github.com/farmacia/farmacia-backend/pkg/errors"
	"github.com/farmacia/farmacia-backend/pkg/keylock"
	"github.com/farmacia/farmacia-backend/pkg/logger"
	"github.com/google/uuid"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AlertEngine turns ledger state into stock and expiry alerts.
// Each trigger (product for stock, product+batch for expiry) has at most one
// open alert; evaluation creates it, changes its severity, or resolves it.
type AlertEngine struct {
	stores   Stores
	policy   *Policy
	locks    *keylock.Locker
	notifier Notifier
	logger   *logger.Logger
}

// NewAlertEngine creates a new alert engine. locks must be the same locker
// the ledger uses so evaluation never interleaves with a batch mutation.
func NewAlertEngine(stores Stores, policy *Policy, locks *keylock.Locker, notifier Notifier, log *logger.Logger) *AlertEngine {
	if notifier == nil {
		notifier = NopNotifier()
	}
	return &AlertEngine{
		stores:   stores,
		policy:   policy,
		locks:    locks,
		notifier: notifier,
		logger:   log.WithComponent("alert_engine"),
	}
}

// Policy returns the engine's severity policy
func (e *AlertEngine) Policy() *Policy {
	return e.policy
}

// Evaluate re-evaluates every trigger of one product. Calling it again with
// an unchanged ledger writes nothing and returns no events.
func (e *AlertEngine) Evaluate(ctx context.Context, productID string) ([]repository.AlertEvent, error) {
	unlock := e.locks.Lock(productID)
	defer unlock()

	var events []repository.AlertEvent
	err := e.stores.Tx.WithTx(ctx, func(ctx context.Context) error {
		product, err := e.stores.Products.GetForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		events, err = e.evaluate(ctx, product)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.notifier.PublishAlertEvents(ctx, events)
	return events, nil
}

// EvaluateAll sweeps every product. Errors are logged and the sweep goes on;
// the last error is returned.
func (e *AlertEngine) EvaluateAll(ctx context.Context) (int, error) {
	ids, err := e.stores.Products.ListIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("evaluate all: list products: %w", err)
	}

	var lastErr error
	changes := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return changes, ctx.Err()
		}
		events, err := e.Evaluate(ctx, id)
		if err != nil {
			e.logger.Error().Err(err).Str("product_id", id).Msg("alert evaluation failed")
			lastErr = err
			continue
		}
		changes += len(events)
	}

	return changes, lastErr
}

// evaluate runs inside the caller's transaction with the product lock held.
// product.StockActual must already reflect the ledger.
func (e *AlertEngine) evaluate(ctx context.Context, product *repository.Product) ([]repository.AlertEvent, error) {
	now := e.policy.Now()

	events, err := e.evaluateStock(ctx, product, now)
	if err != nil {
		return nil, fmt.Errorf("evaluate stock: %w", err)
	}

	expiry, err := e.evaluateExpiry(ctx, product, now)
	if err != nil {
		return nil, fmt.Errorf("evaluate expiry: %w", err)
	}

	return append(events, expiry...), nil
}

func (e *AlertEngine) evaluateStock(ctx context.Context, p *repository.Product, now time.Time) ([]repository.AlertEvent, error) {
	open, err := e.stores.Alerts.FindOpenStock(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	sev, triggered := e.policy.StockSeverity(p.StockActual, p.StockMinimo)
	if !triggered {
		return e.resolve(ctx, open, now)
	}

	stock, minimo := p.StockActual, p.StockMinimo
	desired := &repository.Alert{
		Type:           repository.AlertTypeStockBajo,
		Severity:       sev,
		WindowDias:     e.policy.WindowDias(),
		ProductoID:     p.ID,
		ProductoNombre: p.Nombre,
		Categoria:      p.Categoria,
		StockActual:    &stock,
		StockMinimo:    &minimo,
		Mensaje:        fmt.Sprintf("Stock bajo de %s: %d unidades (mínimo %d)", p.Nombre, stock, minimo),
	}
	return e.upsert(ctx, open, desired, now)
}

func (e *AlertEngine) evaluateExpiry(ctx context.Context, p *repository.Product, now time.Time) ([]repository.AlertEvent, error) {
	batches, err := e.stores.Batches.ListByProduct(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	openAlerts, err := e.stores.Alerts.ListOpenExpiryByProduct(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	open := make(map[string]*repository.Alert, len(openAlerts))
	for _, a := range openAlerts {
		key := ""
		if a.LoteID != nil {
			key = *a.LoteID
		}
		open[key] = a
	}

	var events []repository.AlertEvent
	for _, b := range batches {
		if b.Cantidad <= 0 || b.FechaVenc == nil {
			continue
		}

		dias := e.policy.DaysUntil(*b.FechaVenc)
		sev, triggered := e.policy.ExpirySeverity(dias)
		if !triggered {
			continue
		}

		existing := open[b.ID]
		delete(open, b.ID)

		evs, err := e.upsert(ctx, existing, e.expiryAlert(p, b, sev, dias), now)
		if err != nil {
			return nil, err
		}
		events = append(events, evs...)
	}

	// Whatever is left lost its trigger: batch removed, emptied, undated or out of the window
	stale := make([]*repository.Alert, 0, len(open))
	for _, a := range open {
		stale = append(stale, a)
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].ID < stale[j].ID })
	for _, a := range stale {
		evs, err := e.resolve(ctx, a, now)
		if err != nil {
			return nil, err
		}
		events = append(events, evs...)
	}

	return events, nil
}

func (e *AlertEngine) expiryAlert(p *repository.Product, b *repository.Batch, sev repository.Severity, dias int) *repository.Alert {
	batchID := b.ID
	fecha := *b.FechaVenc
	remaining := dias

	label := b.ID
	if len(label) > 8 {
		label = label[:8]
	}
	if b.Codigo != nil && *b.Codigo != "" {
		label = *b.Codigo
	}

	var msg string
	switch {
	case dias < 0:
		msg = fmt.Sprintf("El lote %s de %s venció hace %d días", label, p.Nombre, -dias)
	case dias == 0:
		msg = fmt.Sprintf("El lote %s de %s vence hoy", label, p.Nombre)
	default:
		msg = fmt.Sprintf("El lote %s de %s vence en %d días", label, p.Nombre, dias)
	}

	return &repository.Alert{
		Type:           repository.AlertTypeVencimiento,
		Severity:       sev,
		WindowDias:     e.policy.WindowDias(),
		ProductoID:     p.ID,
		LoteID:         &batchID,
		ProductoNombre: p.Nombre,
		Categoria:      p.Categoria,
		LoteCodigo:     b.Codigo,
		FechaVenc:      &fecha,
		DiasRestantes:  &remaining,
		Mensaje:        msg,
	}
}

// upsert creates the alert, or brings the open one in line with desired.
// Only creation and severity changes are announced.
func (e *AlertEngine) upsert(ctx context.Context, open, desired *repository.Alert, now time.Time) ([]repository.AlertEvent, error) {
	if open == nil {
		if err := e.stores.Alerts.Create(ctx, desired); err != nil {
			return nil, err
		}
		e.logger.Info().
			Str("alert_id", desired.ID).
			Str("product_id", desired.ProductoID).
			Str("type", string(desired.Type)).
			Str("severity", string(desired.Severity)).
			Msg("alert created")
		return []repository.AlertEvent{newAlertEvent(repository.AlertCreated, desired, now)}, nil
	}

	severityChanged := open.Severity != desired.Severity
	escalated := desired.Severity.Rank() > open.Severity.Rank()
	displayChanged := refreshDisplay(open, desired)
	if !severityChanged && !displayChanged {
		return nil, nil
	}

	open.Severity = desired.Severity
	if escalated {
		open.Leida = false
	}
	if err := e.stores.Alerts.Update(ctx, open, escalated); err != nil {
		return nil, err
	}

	if !severityChanged {
		return nil, nil
	}
	e.logger.Info().
		Str("alert_id", open.ID).
		Str("product_id", open.ProductoID).
		Str("severity", string(open.Severity)).
		Msg("alert severity changed")
	return []repository.AlertEvent{newAlertEvent(repository.AlertSeverityChanged, open, now)}, nil
}

func (e *AlertEngine) resolve(ctx context.Context, open *repository.Alert, now time.Time) ([]repository.AlertEvent, error) {
	if open == nil {
		return nil, nil
	}
	if err := e.stores.Alerts.Resolve(ctx, open.ID, now); err != nil {
		return nil, err
	}
	resolvedAt := now
	open.ResolvedAt = &resolvedAt

	e.logger.Info().
		Str("alert_id", open.ID).
		Str("product_id", open.ProductoID).
		Str("type", string(open.Type)).
		Msg("alert resolved")
	return []repository.AlertEvent{newAlertEvent(repository.AlertResolved, open, now)}, nil
}

// refreshDisplay copies the denormalised fields of desired onto open and
// reports whether any of them differed
func refreshDisplay(open, desired *repository.Alert) bool {
	changed := open.WindowDias != desired.WindowDias ||
		open.ProductoNombre != desired.ProductoNombre ||
		!sameString(open.Categoria, desired.Categoria) ||
		!sameString(open.LoteCodigo, desired.LoteCodigo) ||
		!sameInt(open.StockActual, desired.StockActual) ||
		!sameInt(open.StockMinimo, desired.StockMinimo) ||
		!repository.SameDate(open.FechaVenc, desired.FechaVenc) ||
		!sameInt(open.DiasRestantes, desired.DiasRestantes) ||
		open.Mensaje != desired.Mensaje
	if !changed {
		return false
	}

	open.WindowDias = desired.WindowDias
	open.ProductoNombre = desired.ProductoNombre
	open.Categoria = desired.Categoria
	open.LoteCodigo = desired.LoteCodigo
	open.StockActual = desired.StockActual
	open.StockMinimo = desired.StockMinimo
	open.FechaVenc = desired.FechaVenc
	open.DiasRestantes = desired.DiasRestantes
	open.Mensaje = desired.Mensaje
	return true
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func newAlertEvent(kind repository.AlertEventKind, a *repository.Alert, at time.Time) repository.AlertEvent {
	return repository.AlertEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		AlertID:   a.ID,
		ProductID: a.ProductoID,
		BatchID:   a.LoteID,
		Type:      a.Type,
		Severity:  a.Severity,
		At:        at,
	}
}

// AlertQuery is the caller-facing alert filter
type AlertQuery struct {
	Type            *repository.AlertType
	Severity        *repository.Severity
	UnreadOnly      bool
	Search          string
	WindowDays      int
	IncludeResolved bool
	Page            int
	PageSize        int
}

// AlertPage is one page of alerts with its counters
type AlertPage struct {
	Alerts   []*repository.Alert
	Total    int64
	Unread   int64
	Page     int
	PageSize int
}

// List returns a page of alerts. Unread counts open unread alerts of the
// requested type, ignoring the other filters. With WindowDays set, expiry
// alerts are filtered and classified against that horizon instead of the
// configured one; the stored alerts are not changed.
func (e *AlertEngine) List(ctx context.Context, q AlertQuery) (*AlertPage, error) {
	if q.WindowDays != 0 && !config.IsAllowedWindow(q.WindowDays) {
		return nil, errors.InvalidField("windowDays", fmt.Sprintf("must be one of %v", config.AllowedWindows))
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}

	filter := repository.AlertFilter{
		Type:            q.Type,
		Severity:        q.Severity,
		UnreadOnly:      q.UnreadOnly,
		Search:          q.Search,
		IncludeResolved: q.IncludeResolved,
		Page:            q.Page,
		PageSize:        q.PageSize,
	}
	if q.WindowDays > 0 {
		today := e.policy.Today()
		cutoff := today.AddDays(q.WindowDays)
		critical := today.AddDays(e.policy.criticalDays(q.WindowDays))
		filter.ExpiringBy = &cutoff
		filter.ExpiryCriticalBy = &critical
	}

	alerts, total, err := e.stores.Alerts.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	// expiry alerts are shown as they classify under the requested horizon
	if q.WindowDays > 0 {
		for _, a := range alerts {
			if a.Type != repository.AlertTypeVencimiento || a.FechaVenc == nil {
				continue
			}
			dias := e.policy.DaysUntil(*a.FechaVenc)
			a.Severity = filter.SeverityOf(a)
			a.WindowDias = q.WindowDays
			a.DiasRestantes = &dias
		}
	}

	unread, err := e.stores.Alerts.CountUnread(ctx, q.Type)
	if err != nil {
		return nil, err
	}

	return &AlertPage{
		Alerts:   alerts,
		Total:    total,
		Unread:   unread,
		Page:     q.Page,
		PageSize: q.PageSize,
	}, nil
}

// MarkRead flags one alert as read. Already-read alerts are left untouched.
func (e *AlertEngine) MarkRead(ctx context.Context, alertID string) (*repository.Alert, error) {
	var (
		alert  *repository.Alert
		events []repository.AlertEvent
	)

	err := e.stores.Tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		alert, err = e.stores.Alerts.GetByID(ctx, alertID)
		if err != nil {
			return err
		}
		if alert.Leida {
			return nil
		}
		if err := e.stores.Alerts.SetRead(ctx, alertID); err != nil {
			return err
		}
		alert.Leida = true
		events = append(events, newAlertEvent(repository.AlertRead, alert, e.policy.Now()))
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.notifier.PublishAlertEvents(ctx, events)
	return alert, nil
}

// MarkAllRead flags every unread alert, optionally of one type, and returns
// how many changed
func (e *AlertEngine) MarkAllRead(ctx context.Context, alertType *repository.AlertType) (int, error) {
	var events []repository.AlertEvent

	err := e.stores.Tx.WithTx(ctx, func(ctx context.Context) error {
		changed, err := e.stores.Alerts.MarkAllRead(ctx, alertType)
		if err != nil {
			return err
		}
		now := e.policy.Now()
		for _, a := range changed {
			events = append(events, newAlertEvent(repository.AlertRead, a, now))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	e.notifier.PublishAlertEvents(ctx, events)
	return len(events), nil
}
