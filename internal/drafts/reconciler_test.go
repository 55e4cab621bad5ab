package drafts_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/farmacia/farmacia-backend/internal/client"
	"github.com/farmacia/farmacia-backend/internal/drafts"
	"github.com/farmacia/farmacia-backend/internal/inventory/handler"
	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
	"github.com/farmacia/farmacia-backend/internal/inventory/repository/memory"
	"github.com/farmacia/farmacia-backend/internal/inventory/service"
	"github.com/farmacia/farmacia-backend/pkg/keylock"
	"github.com/farmacia/farmacia-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cost(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

type fakeCreator struct {
	err   error
	calls []client.CreateOrderRequest
}

func (f *fakeCreator) CreateOrder(_ context.Context, req client.CreateOrderRequest) (*repository.PurchaseOrder, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &repository.PurchaseOrder{ID: "oc-1", ProveedorID: req.SupplierID, Estado: repository.EstadoBorrador}, nil
}

type failingStore struct {
	drafts.Store
	fail bool
}

func (s *failingStore) Save(ctx context.Context, st drafts.State) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.Store.Save(ctx, st)
}

func newReconciler(t *testing.T, store drafts.Store, creator drafts.OrderCreator) *drafts.Reconciler {
	t.Helper()
	r, err := drafts.NewReconciler(context.Background(), store, creator, logger.Nop())
	require.NoError(t, err)
	return r
}

// stockAPI serves the real order endpoints from memory
func stockAPI(t *testing.T) (*client.Client, *service.Ledger) {
	t.Helper()

	store := memory.New()
	stores := service.Stores{
		Tx:       store,
		Products: store.Products(),
		Batches:  store.Batches(),
		Alerts:   store.Alerts(),
		Orders:   store.Orders(),
	}
	log := logger.Nop()
	locks := keylock.New()
	engine := service.NewAlertEngine(stores, service.DefaultPolicy(), locks, nil, log)
	ledger := service.NewLedger(stores, engine, locks, nil, log)
	orders := service.NewOrderMachine(stores, ledger, nil, log)

	handlers := &handler.Handlers{
		Products: handler.NewProductHandler(ledger, log),
		Alerts:   handler.NewAlertHandler(engine, log),
		Orders:   handler.NewOrderHandler(orders, log),
	}
	r := chi.NewRouter()
	r.Route("/api/v1", handlers.Register)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return client.New(srv.URL, log), ledger
}

func TestReconciler_ConfirmDraftCreatesOrderAndClears(t *testing.T) {
	api, ledger := stockAPI(t)
	ctx := context.Background()
	for _, p := range []repository.Product{
		{ID: "p-1", Nombre: "Paracetamol", StockMinimo: 10},
		{ID: "p-2", Nombre: "Cetirizina", StockMinimo: 5},
		{ID: "p-3", Nombre: "Ranitidina", StockMinimo: 5},
	} {
		_, err := ledger.SyncProduct(ctx, &p)
		require.NoError(t, err)
	}

	store := drafts.NewMemoryStore()
	r := newReconciler(t, store, api)

	require.NoError(t, r.AddItem(ctx, "prov-1", "Norte", drafts.DraftItem{ProductID: "p-1", Cantidad: 2, CostoUnitario: cost("1.50")}))
	require.NoError(t, r.AddItem(ctx, "prov-1", "Norte", drafts.DraftItem{ProductID: "p-1", Cantidad: 3, CostoUnitario: cost("1.40")}))
	require.NoError(t, r.AddItem(ctx, "prov-1", "Norte", drafts.DraftItem{ProductID: "p-2", Cantidad: 4, CostoUnitario: cost("2.25")}))
	require.NoError(t, r.AddItem(ctx, "prov-1", "Norte", drafts.DraftItem{ProductID: "p-2", Cantidad: 1}))
	require.NoError(t, r.AddItem(ctx, "prov-1", "Norte", drafts.DraftItem{ProductID: "p-3", Cantidad: 6}))
	require.NoError(t, r.AddItem(ctx, "prov-2", "Sur", drafts.DraftItem{ProductID: "p-3", Cantidad: 1}))

	draft, ok := r.Draft("prov-1")
	require.True(t, ok)
	require.Len(t, draft.Items, 3)

	notas := "entrega semanal"
	order, err := r.ConfirmDraft(ctx, "prov-1", &notas)
	require.NoError(t, err)

	assert.Equal(t, repository.EstadoBorrador, order.Estado)
	require.Len(t, order.Items, 3)
	// 5 x 1.40 + 5 x 2.25, the line without cost does not count
	assert.True(t, decimal.RequireFromString("18.25").Equal(order.TotalEstimado), "got %s", order.TotalEstimado)
	require.NotNil(t, order.ProveedorNombre)
	assert.Equal(t, "Norte", *order.ProveedorNombre)

	_, ok = r.Draft("prov-1")
	assert.False(t, ok, "confirmed draft is removed")
	_, ok = r.Draft("prov-2")
	assert.True(t, ok, "other suppliers keep their drafts")

	persisted, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, persisted.Drafts, 1)
	assert.Equal(t, "prov-2", persisted.Drafts[0].SupplierID)
}

func TestReconciler_ConfirmFailureKeepsDraft(t *testing.T) {
	ctx := context.Background()
	creator := &fakeCreator{err: &client.APIError{Status: 503, Code: "UNAVAILABLE", Message: "down"}}
	store := drafts.NewMemoryStore()
	r := newReconciler(t, store, creator)

	require.NoError(t, r.AddItem(ctx, "prov-1", "Norte", drafts.DraftItem{ProductID: "p-1", Cantidad: 2, CostoUnitario: cost("1")}))
	before, _ := r.Draft("prov-1")
	saves := store.Saves()

	_, err := r.ConfirmDraft(ctx, "prov-1", nil)
	require.Error(t, err)

	after, ok := r.Draft("prov-1")
	require.True(t, ok)
	assert.Equal(t, before, after)
	assert.Equal(t, saves, store.Saves(), "nothing is written on failure")

	creator.err = nil
	order, err := r.ConfirmDraft(ctx, "prov-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "oc-1", order.ID)
	require.Len(t, creator.calls, 2)
	assert.Equal(t, creator.calls[0], creator.calls[1], "retry sends the same order")
	_, ok = r.Draft("prov-1")
	assert.False(t, ok)
}

func TestReconciler_ConfirmRejects(t *testing.T) {
	ctx := context.Background()
	creator := &fakeCreator{}
	r := newReconciler(t, drafts.NewMemoryStore(), creator)

	_, err := r.ConfirmDraft(ctx, "prov-1", nil)
	assert.Error(t, err)

	require.NoError(t, r.EnsureDraft(ctx, "prov-1", "Norte"))
	_, err = r.ConfirmDraft(ctx, "prov-1", nil)
	assert.Error(t, err)
	assert.Empty(t, creator.calls)
}

func TestReconciler_Validation(t *testing.T) {
	ctx := context.Background()
	r := newReconciler(t, drafts.NewMemoryStore(), &fakeCreator{})

	tests := []struct {
		name string
		item drafts.DraftItem
	}{
		{"zero quantity", drafts.DraftItem{ProductID: "p-1", Cantidad: 0}},
		{"negative cost", drafts.DraftItem{ProductID: "p-1", Cantidad: 1, CostoUnitario: cost("-1")}},
		{"missing product", drafts.DraftItem{Cantidad: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, r.AddItem(ctx, "prov-1", "", tt.item))
		})
	}
	assert.Empty(t, r.Drafts())

	assert.Error(t, r.UpdateItem(ctx, "prov-1", "p-1", drafts.ItemChanges{}))
	assert.Error(t, r.RemoveItem(ctx, "prov-1", "p-1"))
}

func TestReconciler_FailedSaveKeepsState(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Store: drafts.NewMemoryStore()}
	r := newReconciler(t, store, &fakeCreator{})

	require.NoError(t, r.AddItem(ctx, "prov-1", "", drafts.DraftItem{ProductID: "p-1", Cantidad: 1}))

	store.fail = true
	assert.Error(t, r.AddItem(ctx, "prov-1", "", drafts.DraftItem{ProductID: "p-1", Cantidad: 4}))
	assert.Error(t, r.ClearAll(ctx))

	d, ok := r.Draft("prov-1")
	require.True(t, ok)
	assert.Equal(t, 1, d.Items[0].Cantidad)
}

func TestReconciler_FileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "drafts.json")
	store := drafts.NewFileStore(path)

	r := newReconciler(t, store, &fakeCreator{})
	require.NoError(t, r.AddItem(ctx, "prov-1", "Norte", drafts.DraftItem{ProductID: "p-1", ProductName: "Aspirina", Cantidad: 2, CostoUnitario: cost("0.80")}))
	cantidad := 7
	require.NoError(t, r.UpdateItem(ctx, "prov-1", "p-1", drafts.ItemChanges{Cantidad: &cantidad}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"drafts"`)

	reopened := newReconciler(t, drafts.NewFileStore(path), &fakeCreator{})
	d, ok := reopened.Draft("prov-1")
	require.True(t, ok)
	require.Len(t, d.Items, 1)
	assert.Equal(t, 7, d.Items[0].Cantidad)
	assert.True(t, cost("0.80").Equal(*d.Items[0].CostoUnitario))

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileStore_MissingAndCorrupt(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	st, err := drafts.NewFileStore(filepath.Join(dir, "none.json")).Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.Drafts)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err = drafts.NewFileStore(bad).Load(ctx)
	assert.Error(t, err)
}
