package handler_test

import (
	"net/http"
	"testing"

	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductHandler_BatchLifecycle(t *testing.T) {
	srv := newTestServer(t, false)
	srv.syncProduct(t, "p-1", "Paracetamol 500mg", 10)

	status, env := srv.do(t, http.MethodPost, "/products/p-1/batches", map[string]interface{}{
		"cantidad":  8,
		"codigo":    "L-001",
		"fechaVenc": "2026-12-31",
	})
	require.Equal(t, http.StatusCreated, status)

	var batch repository.Batch
	decodeData(t, env, &batch)
	assert.Equal(t, "p-1", batch.ProductoID)
	assert.Equal(t, 8, batch.Cantidad)
	require.NotNil(t, batch.FechaVenc)
	assert.Equal(t, "2026-12-31", batch.FechaVenc.String())

	status, env = srv.do(t, http.MethodGet, "/products/p-1/stock", nil)
	require.Equal(t, http.StatusOK, status)
	var product repository.Product
	decodeData(t, env, &product)
	assert.Equal(t, 8, product.StockActual)

	status, _ = srv.do(t, http.MethodPut, "/products/p-1/batches/"+batch.ID, map[string]int{"cantidad": 3})
	require.Equal(t, http.StatusOK, status)

	status, env = srv.do(t, http.MethodGet, "/products/p-1/batches", nil)
	require.Equal(t, http.StatusOK, status)
	var batches []repository.Batch
	decodeData(t, env, &batches)
	require.Len(t, batches, 1)
	assert.Equal(t, 3, batches[0].Cantidad)

	status, _ = srv.do(t, http.MethodDelete, "/products/p-1/batches/"+batch.ID, nil)
	assert.Equal(t, http.StatusNoContent, status)

	_, env = srv.do(t, http.MethodGet, "/products/p-1/stock", nil)
	decodeData(t, env, &product)
	assert.Equal(t, 0, product.StockActual)
}

func TestProductHandler_Validation(t *testing.T) {
	srv := newTestServer(t, false)
	srv.syncProduct(t, "p-1", "Ibuprofeno", 5)

	tests := []struct {
		name  string
		path  string
		body  interface{}
		field string
	}{
		{"zero quantity", "/products/p-1/batches", map[string]int{"cantidad": 0}, "cantidad"},
		{"negative quantity", "/products/p-1/batches", map[string]int{"cantidad": -4}, "cantidad"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := srv.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			require.NotNil(t, env.Error)
			assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
			assert.Contains(t, env.Error.Details, tt.field)
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		status, env := srv.do(t, http.MethodPost, "/products/p-1/batches", "{not json")
		assert.Equal(t, http.StatusBadRequest, status)
		require.NotNil(t, env.Error)
		assert.Equal(t, "BAD_REQUEST", env.Error.Code)
	})

	t.Run("bad expiry date", func(t *testing.T) {
		status, _ := srv.do(t, http.MethodPost, "/products/p-1/batches", `{"cantidad": 2, "fechaVenc": "31/12/2026"}`)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("adjust requires quantity", func(t *testing.T) {
		status, env := srv.do(t, http.MethodPut, "/products/p-1/batches/whatever", map[string]interface{}{})
		assert.Equal(t, http.StatusBadRequest, status)
		require.NotNil(t, env.Error)
		assert.Contains(t, env.Error.Details, "cantidad")
	})
}

func TestProductHandler_NotFound(t *testing.T) {
	srv := newTestServer(t, false)
	srv.syncProduct(t, "p-1", "Amoxicilina", 5)
	srv.syncProduct(t, "p-2", "Loratadina", 5)

	status, env := srv.do(t, http.MethodGet, "/products/missing/stock", nil)
	assert.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	_, env = srv.do(t, http.MethodPost, "/products/p-1/batches", map[string]int{"cantidad": 4})
	var batch repository.Batch
	decodeData(t, env, &batch)

	status, _ = srv.do(t, http.MethodPut, "/products/p-2/batches/"+batch.ID, map[string]int{"cantidad": 1})
	assert.Equal(t, http.StatusNotFound, status)
}
