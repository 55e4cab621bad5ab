package handler_test

import (
	"net/http"
	"testing"

	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertHandler_ListAndRead(t *testing.T) {
	srv := newTestServer(t, false)
	srv.syncProduct(t, "p-1", "Omeprazol", 10)
	srv.syncProduct(t, "p-2", "Metformina", 10)

	// p-1 sits at 0.2 of its minimum, p-2 at 0.5
	srv.do(t, http.MethodPost, "/products/p-1/batches", map[string]int{"cantidad": 2})
	srv.do(t, http.MethodPost, "/products/p-2/batches", map[string]int{"cantidad": 5})

	status, env := srv.do(t, http.MethodGet, "/alerts?type=STOCK_BAJO", nil)
	require.Equal(t, http.StatusOK, status)
	var alerts []repository.Alert
	decodeData(t, env, &alerts)
	require.Len(t, alerts, 2)
	require.NotNil(t, env.Meta)
	require.NotNil(t, env.Meta.Unread)
	assert.Equal(t, int64(2), *env.Meta.Unread)
	assert.Equal(t, int64(2), env.Meta.Total)

	status, env = srv.do(t, http.MethodGet, "/alerts?severity=CRITICAL", nil)
	require.Equal(t, http.StatusOK, status)
	decodeData(t, env, &alerts)
	require.Len(t, alerts, 1)
	assert.Equal(t, "p-1", alerts[0].ProductoID)

	status, env = srv.do(t, http.MethodPatch, "/alerts/"+alerts[0].ID+"/read", nil)
	require.Equal(t, http.StatusOK, status)
	var read repository.Alert
	decodeData(t, env, &read)
	assert.True(t, read.Leida)

	_, env = srv.do(t, http.MethodGet, "/alerts?unreadOnly=true", nil)
	decodeData(t, env, &alerts)
	require.Len(t, alerts, 1)
	assert.Equal(t, "p-2", alerts[0].ProductoID)
	assert.Equal(t, int64(1), *env.Meta.Unread)

	status, env = srv.do(t, http.MethodPatch, "/alerts/read-all?type=STOCK_BAJO", nil)
	require.Equal(t, http.StatusOK, status)
	var updated map[string]int
	decodeData(t, env, &updated)
	assert.Equal(t, 1, updated["updated"])

	_, env = srv.do(t, http.MethodGet, "/alerts", nil)
	assert.Equal(t, int64(0), *env.Meta.Unread)
}

func TestAlertHandler_ExpiryWindow(t *testing.T) {
	srv := newTestServer(t, false)
	srv.syncProduct(t, "p-1", "Insulina", 0)

	srv.do(t, http.MethodPost, "/products/p-1/batches", map[string]interface{}{
		"cantidad":  5,
		"fechaVenc": testNow.AddDate(0, 0, 5).Format("2006-01-02"),
	})
	srv.do(t, http.MethodPost, "/products/p-1/batches", map[string]interface{}{
		"cantidad":  5,
		"fechaVenc": testNow.AddDate(0, 0, 20).Format("2006-01-02"),
	})

	_, env := srv.do(t, http.MethodGet, "/alerts?type=VENCIMIENTO", nil)
	var alerts []repository.Alert
	decodeData(t, env, &alerts)
	assert.Len(t, alerts, 2)

	_, env = srv.do(t, http.MethodGet, "/alerts?type=VENCIMIENTO&windowDays=7", nil)
	decodeData(t, env, &alerts)
	require.Len(t, alerts, 1)
	require.NotNil(t, alerts[0].DiasRestantes)
	assert.Equal(t, 5, *alerts[0].DiasRestantes)
	assert.Equal(t, repository.SeverityWarning, alerts[0].Severity, "5 days is outside the critical band of a 7 day horizon")
	assert.Equal(t, 7, alerts[0].WindowDias)
}

func TestAlertHandler_BadQuery(t *testing.T) {
	srv := newTestServer(t, false)

	tests := []struct {
		name  string
		query string
		field string
	}{
		{"unknown type", "?type=LOW", "type"},
		{"unknown severity", "?severity=LOUD", "severity"},
		{"window not allowed", "?windowDays=10", "windowDays"},
		{"window not a number", "?windowDays=abc", "windowDays"},
		{"bad flag", "?unreadOnly=maybe", "unreadOnly"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := srv.do(t, http.MethodGet, "/alerts"+tt.query, nil)
			assert.Equal(t, http.StatusBadRequest, status)
			require.NotNil(t, env.Error)
			assert.Contains(t, env.Error.Details, tt.field)
		})
	}
}

func TestAlertHandler_MarkReadUnknown(t *testing.T) {
	srv := newTestServer(t, false)

	status, env := srv.do(t, http.MethodPatch, "/alerts/nope/read", nil)
	assert.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}
