package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/farmacia/farmacia-backend/internal/inventory/feed"
	"github.com/farmacia/farmacia-backend/internal/inventory/handler"
	"github.com/farmacia/farmacia-backend/internal/inventory/repository/memory"
	"github.com/farmacia/farmacia-backend/internal/inventory/service"
	"github.com/farmacia/farmacia-backend/pkg/config"
	"github.com/farmacia/farmacia-backend/pkg/httputil"
	"github.com/farmacia/farmacia-backend/pkg/jwt"
	"github.com/farmacia/farmacia-backend/pkg/keylock"
	"github.com/farmacia/farmacia-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

var jwtConfig = &config.JWTConfig{Secret: "handler-test-secret", Issuer: "farmacia"}

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *httputil.ErrorBody `json:"error"`
	Meta    *httputil.Meta      `json:"meta"`
}

type testServer struct {
	*httptest.Server
	hub *feed.Hub
}

func newTestServer(t *testing.T, streamAuth bool) *testServer {
	t.Helper()

	clock := func() time.Time { return testNow }
	store := memory.New().WithClock(clock)
	stores := service.Stores{
		Tx:       store,
		Products: store.Products(),
		Batches:  store.Batches(),
		Alerts:   store.Alerts(),
		Orders:   store.Orders(),
	}

	log := logger.Nop()
	hub := feed.NewHub(log)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	locks := keylock.New()
	policy := service.DefaultPolicy().WithClock(clock)
	engine := service.NewAlertEngine(stores, policy, locks, service.NopNotifier(), log)
	ledger := service.NewLedger(stores, engine, locks, service.NopNotifier(), log)
	orders := service.NewOrderMachine(stores, ledger, service.NopNotifier(), log)

	handlers := &handler.Handlers{
		Products: handler.NewProductHandler(ledger, log),
		Alerts:   handler.NewAlertHandler(engine, log),
		Stream:   handler.NewStreamHandler(hub, jwt.NewVerifier(jwtConfig), streamAuth, log),
		Orders:   handler.NewOrderHandler(orders, log),
	}

	r := chi.NewRouter()
	r.Route("/api/v1", handlers.Register)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, s.URL+"/api/v1"+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	}
	return resp.StatusCode, env
}

func decodeData(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func (s *testServer) syncProduct(t *testing.T, id, nombre string, stockMinimo int) {
	t.Helper()
	status, env := s.do(t, http.MethodPut, "/products/"+id, map[string]interface{}{
		"nombre":      nombre,
		"stockMinimo": stockMinimo,
	})
	require.Equal(t, http.StatusOK, status, "sync product: %+v", env.Error)
}
