package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
	"github.com/farmacia/farmacia-backend/internal/inventory/repository/memory"
	"github.com/farmacia/farmacia-backend/internal/inventory/service"
	"github.com/farmacia/farmacia-backend/pkg/keylock"
	"github.com/farmacia/farmacia-backend/pkg/logger"
	"github.com/stretchr/testify/require"
)

// fixedNow is the instant every service test runs at
var fixedNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

// recordingNotifier captures everything the services announce
type recordingNotifier struct {
	mu           sync.Mutex
	alertEvents  []repository.AlertEvent
	stockChanges []string
	created      []string
	transitions  []string
}

func (n *recordingNotifier) PublishAlertEvents(_ context.Context, events []repository.AlertEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alertEvents = append(n.alertEvents, events...)
}

func (n *recordingNotifier) PublishStockChanged(_ context.Context, p *repository.Product, _ string, op string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stockChanges = append(n.stockChanges, p.ID+":"+op)
}

func (n *recordingNotifier) PublishOrderCreated(_ context.Context, o *repository.PurchaseOrder) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, o.ID)
}

func (n *recordingNotifier) PublishOrderStateChanged(_ context.Context, o *repository.PurchaseOrder, from repository.EstadoOrdenCompra) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transitions = append(n.transitions, string(from)+"->"+string(o.Estado))
}

func (n *recordingNotifier) events() []repository.AlertEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]repository.AlertEvent(nil), n.alertEvents...)
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alertEvents = nil
	n.stockChanges = nil
	n.created = nil
	n.transitions = nil
}

type testEnv struct {
	store    *memory.Store
	stores   service.Stores
	notifier *recordingNotifier
	policy   *service.Policy
	engine   *service.AlertEngine
	ledger   *service.Ledger
	orders   *service.OrderMachine
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{now: fixedNow}
	clock := func() time.Time { return env.now }

	env.store = memory.New().WithClock(clock)
	env.stores = service.Stores{
		Tx:       env.store,
		Products: env.store.Products(),
		Batches:  env.store.Batches(),
		Alerts:   env.store.Alerts(),
		Orders:   env.store.Orders(),
	}
	env.notifier = &recordingNotifier{}
	env.policy = service.DefaultPolicy().WithClock(clock)

	log := logger.Nop()
	locks := keylock.New()
	env.engine = service.NewAlertEngine(env.stores, env.policy, locks, env.notifier, log)
	env.ledger = service.NewLedger(env.stores, env.engine, locks, env.notifier, log)
	env.orders = service.NewOrderMachine(env.stores, env.ledger, env.notifier, log)
	return env
}

func (e *testEnv) product(t *testing.T, id, nombre string, stockMinimo int) *repository.Product {
	t.Helper()
	p, err := e.ledger.SyncProduct(context.Background(), &repository.Product{
		ID:          id,
		Nombre:      nombre,
		StockMinimo: stockMinimo,
	})
	require.NoError(t, err)
	return p
}

func (e *testEnv) batch(t *testing.T, productID string, cantidad int, expiresInDays *int) *repository.Batch {
	t.Helper()
	in := service.NewBatch{Cantidad: cantidad}
	if expiresInDays != nil {
		d := e.policy.Today().AddDays(*expiresInDays)
		in.FechaVenc = &d
	}
	b, err := e.ledger.AddBatch(context.Background(), productID, in)
	require.NoError(t, err)
	return b
}

func (e *testEnv) openAlerts(t *testing.T, alertType repository.AlertType) []*repository.Alert {
	t.Helper()
	page, err := e.engine.List(context.Background(), service.AlertQuery{Type: &alertType, PageSize: service.MaxPageSize})
	require.NoError(t, err)
	return page.Alerts
}

func (e *testEnv) stock(t *testing.T, productID string) int {
	t.Helper()
	p, err := e.ledger.GetProductStock(context.Background(), productID)
	require.NoError(t, err)
	return p.StockActual
}

func days(n int) *int { return &n }

func strPtr(s string) *string { return &s }
