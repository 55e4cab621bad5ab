package repository_test

import (
	"context"
	"testing"

	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
	"github.com/farmacia/farmacia-backend/pkg/errors"
	"github.com/farmacia/farmacia-backend/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPostgres(t *testing.T) *testutil.IntegrationSuite {
	suite := testutil.RequireIntegration(t, repository.Schema)
	suite.Reset(t, "ordenes_compra_items", "ordenes_compra", "alertas", "lotes", "productos")
	return suite
}

func TestPostgres_BatchesAndStock(t *testing.T) {
	suite := setupPostgres(t)
	ctx := testutil.DefaultTestContext(t)

	products := repository.NewProductRepository(suite.DB)
	batches := repository.NewBatchRepository(suite.DB)

	require.NoError(t, products.Upsert(ctx, &repository.Product{ID: "p-1", Nombre: "Salbutamol", StockMinimo: 10}))

	fecha := repository.MustDate("2026-12-31")
	first := &repository.Batch{ProductoID: "p-1", Codigo: testutil.PtrString("SAL-2026"), Cantidad: 4, FechaVenc: &fecha}
	require.NoError(t, batches.Create(ctx, first))
	require.NoError(t, batches.Create(ctx, &repository.Batch{ProductoID: "p-1", Cantidad: 6}))

	total, err := batches.SumByProduct(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 10, total)

	listed, err := batches.ListByProduct(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, first.ID, listed[0].ID, "dated batches sort before undated ones")

	err = suite.DB.WithTx(ctx, func(ctx context.Context) error {
		match, err := batches.FindForReceipt(ctx, "p-1", testutil.PtrString("SAL-2026"), &fecha)
		require.NoError(t, err)
		require.NotNil(t, match)
		assert.Equal(t, first.ID, match.ID)

		other := repository.MustDate("2027-01-31")
		miss, err := batches.FindForReceipt(ctx, "p-1", testutil.PtrString("SAL-2026"), &other)
		require.NoError(t, err)
		assert.Nil(t, miss)
		return nil
	})
	require.NoError(t, err)

	_, err = batches.SetCantidad(ctx, first.ID, -1)
	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func TestPostgres_OneOpenStockAlertPerProduct(t *testing.T) {
	suite := setupPostgres(t)
	ctx := testutil.DefaultTestContext(t)

	require.NoError(t, repository.NewProductRepository(suite.DB).
		Upsert(ctx, &repository.Product{ID: "p-1", Nombre: "Paracetamol", StockMinimo: 10}))

	alerts := repository.NewAlertRepository(suite.DB)
	newAlert := func() *repository.Alert {
		return &repository.Alert{
			Type:           repository.AlertTypeStockBajo,
			Severity:       repository.SeverityWarning,
			WindowDias:     30,
			ProductoID:     "p-1",
			ProductoNombre: "Paracetamol",
			Mensaje:        "Stock bajo",
		}
	}

	open := newAlert()
	require.NoError(t, alerts.Create(ctx, open))

	err := alerts.Create(ctx, newAlert())
	assert.True(t, errors.Is(err, errors.ErrConflict))

	count, err := alerts.CountUnread(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, alerts.Resolve(ctx, open.ID, open.CreatedAt))
	require.NoError(t, alerts.Create(ctx, newAlert()), "a resolved alert frees the slot")

	found, err := alerts.FindOpenStock(ctx, "p-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.NotEqual(t, open.ID, found.ID)
}

func TestPostgres_OrderRoundTrip(t *testing.T) {
	suite := setupPostgres(t)
	ctx := testutil.DefaultTestContext(t)

	require.NoError(t, repository.NewProductRepository(suite.DB).
		Upsert(ctx, &repository.Product{ID: "p-1", Nombre: "Ibuprofeno", StockMinimo: 5}))

	orders := repository.NewOrderRepository(suite.DB)
	costo := decimal.RequireFromString("1.25")
	item := &repository.OrderItem{ProductoID: "p-1", CantidadSolic: 8, CostoUnitario: decimal.NewNullDecimal(costo)}
	item.RecomputeSubtotal()

	order := &repository.PurchaseOrder{
		ProveedorID: "prov-1",
		Estado:      repository.EstadoBorrador,
		Items:       []*repository.OrderItem{item},
	}
	order.RecomputeTotal()
	require.NoError(t, orders.Create(ctx, order))

	got, err := orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.True(t, got.TotalEstimado.Equal(decimal.NewFromInt(10)))
	assert.True(t, got.Items[0].Subtotal.Decimal.Equal(decimal.NewFromInt(10)))

	require.NoError(t, orders.Delete(ctx, order.ID))
	_, err = orders.GetByID(ctx, order.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
