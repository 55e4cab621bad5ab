package service_test

import (
	"context"
	"testing"

	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
	"github.com/farmacia/farmacia-backend/internal/inventory/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func (e *testEnv) order(t *testing.T, items ...service.NewOrderItem) *repository.PurchaseOrder {
	t.Helper()
	o, err := e.orders.Create(context.Background(), service.NewOrder{
		ProveedorID:     "prov-1",
		ProveedorNombre: strPtr("Droguería Central"),
		Items:           items,
	})
	require.NoError(t, err)
	return o
}

func (e *testEnv) advance(t *testing.T, orderID string, states ...repository.EstadoOrdenCompra) *repository.PurchaseOrder {
	t.Helper()
	var o *repository.PurchaseOrder
	for _, s := range states {
		var err error
		o, err = e.orders.ChangeEstado(context.Background(), orderID, s)
		require.NoError(t, err, "-> %s", s)
	}
	return o
}

func TestOrders_Create(t *testing.T) {
	env := newTestEnv(t)
	env.product(t, "p-1", "Paracetamol", 10)
	env.product(t, "p-2", "Ibuprofeno", 10)

	o := env.order(t,
		service.NewOrderItem{ProductoID: "p-1", Cantidad: 10, CostoUnitario: dec("1.25")},
		service.NewOrderItem{ProductoID: "p-2", Cantidad: 4},
	)

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, repository.EstadoBorrador, o.Estado)
	require.Len(t, o.Items, 2)
	assert.Equal(t, "Paracetamol", *o.Items[0].ProductoNombre)
	assert.True(t, o.Items[0].Subtotal.Valid)
	assert.Equal(t, "12.5", o.Items[0].Subtotal.Decimal.String())
	assert.False(t, o.Items[1].Subtotal.Valid, "unknown cost has no subtotal")
	assert.Equal(t, "12.5", o.TotalEstimado.String())
	assert.Equal(t, []string{o.ID}, env.notifier.created)
}

func TestOrders_Create_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.product(t, "p-1", "Paracetamol", 10)

	tests := []struct {
		name string
		in   service.NewOrder
	}{
		{"missing supplier", service.NewOrder{Items: []service.NewOrderItem{{ProductoID: "p-1", Cantidad: 1}}}},
		{"zero quantity", service.NewOrder{ProveedorID: "prov-1", Items: []service.NewOrderItem{{ProductoID: "p-1", Cantidad: 0}}}},
		{"negative cost", service.NewOrder{ProveedorID: "prov-1", Items: []service.NewOrderItem{{ProductoID: "p-1", Cantidad: 1, CostoUnitario: dec("-0.01")}}}},
		{"missing product id", service.NewOrder{ProveedorID: "prov-1", Items: []service.NewOrderItem{{Cantidad: 1}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.orders.Create(ctx, tt.in)
			requireCode(t, err, "VALIDATION_ERROR")
		})
	}

	_, err := env.orders.Create(ctx, service.NewOrder{ProveedorID: "prov-1", Items: []service.NewOrderItem{{ProductoID: "nope", Cantidad: 1}}})
	requireCode(t, err, "NOT_FOUND")

	_, total, err := env.orders.List(ctx, service.OrderQuery{})
	require.NoError(t, err)
	assert.Zero(t, total, "failed creates leave nothing behind")
}

func TestOrders_ItemEditsRecomputeTotal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.product(t, "p-1", "Paracetamol", 10)
	env.product(t, "p-2", "Ibuprofeno", 10)
	o := env.order(t, service.NewOrderItem{ProductoID: "p-1", Cantidad: 2, CostoUnitario: dec("3.00")})

	o, err := env.orders.AddItem(ctx, o.ID, service.NewOrderItem{ProductoID: "p-2", Cantidad: 5, CostoUnitario: dec("0.50")})
	require.NoError(t, err)
	assert.Equal(t, "8.5", o.TotalEstimado.String())

	second := o.Items[1].ID
	qty := 10
	o, err = env.orders.UpdateItem(ctx, o.ID, second, service.ItemChanges{Cantidad: &qty})
	require.NoError(t, err)
	assert.Equal(t, "11", o.TotalEstimado.String())

	o, err = env.orders.UpdateItem(ctx, o.ID, second, service.ItemChanges{ClearCosto: true})
	require.NoError(t, err)
	assert.Equal(t, "6", o.TotalEstimado.String())

	o, err = env.orders.RemoveItem(ctx, o.ID, o.Items[0].ID)
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.True(t, o.TotalEstimado.IsZero())

	stored, err := env.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.TotalEstimado.String(), stored.TotalEstimado.String())
	require.Len(t, stored.Items, 1)
	assert.Equal(t, 10, stored.Items[0].CantidadSolic)
}

func TestOrders_ItemEditValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.product(t, "p-1", "Paracetamol", 10)
	o := env.order(t, service.NewOrderItem{ProductoID: "p-1", Cantidad: 2})

	zero := 0
	_, err := env.orders.UpdateItem(ctx, o.ID, o.Items[0].ID, service.ItemChanges{Cantidad: &zero})
	requireCode(t, err, "VALIDATION_ERROR")

	_, err = env.orders.UpdateItem(ctx, o.ID, o.Items[0].ID, service.ItemChanges{CostoUnitario: dec("-1")})
	requireCode(t, err, "VALIDATION_ERROR")

	_, err = env.orders.UpdateItem(ctx, o.ID, "missing", service.ItemChanges{})
	requireCode(t, err, "NOT_FOUND")

	_, err = env.orders.RemoveItem(ctx, "missing", o.Items[0].ID)
	requireCode(t, err, "NOT_FOUND")
}

func TestOrders_ItemsLockedOnceReceived(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.product(t, "p-1", "Paracetamol", 10)
	o := env.order(t, service.NewOrderItem{ProductoID: "p-1", Cantidad: 2})
	itemID := o.Items[0].ID

	env.advance(t, o.ID, repository.EstadoEnviada, repository.EstadoConfirmada)

	qty := 3
	_, err := env.orders.UpdateItem(ctx, o.ID, itemID, service.ItemChanges{Cantidad: &qty})
	require.NoError(t, err, "CONFIRMADA still accepts edits")

	env.advance(t, o.ID, repository.EstadoRecibida)

	_, err = env.orders.UpdateItem(ctx, o.ID, itemID, service.ItemChanges{Cantidad: &qty})
	requireCode(t, err, "STATE_CONFLICT")
	_, err = env.orders.AddItem(ctx, o.ID, service.NewOrderItem{ProductoID: "p-1", Cantidad: 1})
	requireCode(t, err, "STATE_CONFLICT")
	_, err = env.orders.RemoveItem(ctx, o.ID, itemID)
	requireCode(t, err, "STATE_CONFLICT")

	stored, err := env.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, 3, stored.Items[0].CantidadSolic)
}

func TestOrders_TransitionGraph(t *testing.T) {
	all := []repository.EstadoOrdenCompra{
		repository.EstadoBorrador,
		repository.EstadoEnviada,
		repository.EstadoConfirmada,
		repository.EstadoRecibida,
		repository.EstadoCerrada,
		repository.EstadoCancelada,
	}
	paths := map[repository.EstadoOrdenCompra][]repository.EstadoOrdenCompra{
		repository.EstadoBorrador:   nil,
		repository.EstadoEnviada:    {repository.EstadoEnviada},
		repository.EstadoConfirmada: {repository.EstadoEnviada, repository.EstadoConfirmada},
		repository.EstadoRecibida:   {repository.EstadoEnviada, repository.EstadoConfirmada, repository.EstadoRecibida},
		repository.EstadoCerrada:    {repository.EstadoEnviada, repository.EstadoConfirmada, repository.EstadoRecibida, repository.EstadoCerrada},
		repository.EstadoCancelada:  {repository.EstadoCancelada},
	}

	for _, from := range all {
		for _, to := range all {
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				env := newTestEnv(t)
				env.product(t, "p-1", "Paracetamol", 10)
				o := env.order(t, service.NewOrderItem{ProductoID: "p-1", Cantidad: 1})
				env.advance(t, o.ID, paths[from]...)

				_, err := env.orders.ChangeEstado(context.Background(), o.ID, to)
				if from.CanTransitionTo(to) {
					require.NoError(t, err)
					return
				}
				requireCode(t, err, "STATE_CONFLICT")
			})
		}
	}
}

func TestOrders_TerminalStatesRejectEverything(t *testing.T) {
	for _, terminal := range []repository.EstadoOrdenCompra{repository.EstadoCerrada, repository.EstadoCancelada} {
		assert.True(t, terminal.IsTerminal())
		assert.Empty(t, terminal.NextStates())
	}
	assert.True(t, repository.EstadoBorrador.CanTransitionTo(repository.EstadoCancelada))
}

func TestOrders_ChangeEstado_UnknownState(t *testing.T) {
	env := newTestEnv(t)
	env.product(t, "p-1", "Paracetamol", 10)
	o := env.order(t, service.NewOrderItem{ProductoID: "p-1", Cantidad: 1})

	_, err := env.orders.ChangeEstado(context.Background(), o.ID, "PERDIDA")
	requireCode(t, err, "VALIDATION_ERROR")
}

func TestOrders_ChangeEstado_StampsTimes(t *testing.T) {
	env := newTestEnv(t)
	env.product(t, "p-1", "Paracetamol", 10)
	o := env.order(t, service.NewOrderItem{ProductoID: "p-1", Cantidad: 1})
	assert.Nil(t, o.EnviadaAt)

	o = env.advance(t, o.ID, repository.EstadoEnviada)
	require.NotNil(t, o.EnviadaAt)
	assert.Nil(t, o.RecibidaAt)

	o = env.advance(t, o.ID, repository.EstadoConfirmada, repository.EstadoRecibida)
	require.NotNil(t, o.RecibidaAt)
	assert.Equal(t, []string{"BORRADOR->ENVIADA", "ENVIADA->CONFIRMADA", "CONFIRMADA->RECIBIDA"}, env.notifier.transitions)
}

func TestOrders_ReceiptDefaultsToRequestedQuantities(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.product(t, "p-1", "Paracetamol", 10)
	env.product(t, "p-2", "Ibuprofeno", 10)
	o := env.order(t,
		service.NewOrderItem{ProductoID: "p-1", Cantidad: 12},
		service.NewOrderItem{ProductoID: "p-2", Cantidad: 3},
	)
	require.Len(t, env.openAlerts(t, repository.AlertTypeStockBajo), 2)

	o = env.advance(t, o.ID, repository.EstadoEnviada, repository.EstadoConfirmada, repository.EstadoRecibida)

	assert.Equal(t, 12, env.stock(t, "p-1"))
	assert.Equal(t, 3, env.stock(t, "p-2"))
	for _, it := range o.Items {
		assert.Equal(t, it.CantidadSolic, it.CantidadRecib)
	}

	// p-1 is above its minimum now, p-2 is still low
	open := env.openAlerts(t, repository.AlertTypeStockBajo)
	require.Len(t, open, 1)
	assert.Equal(t, "p-2", open[0].ProductoID)
	assert.Contains(t, env.notifier.stockChanges, "p-1:"+service.OpReceived)

	stored, err := env.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, stored.Items[0].CantidadRecib)
}

func TestOrders_ReceiptUsesRecordedCounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.product(t, "p-1", "Paracetamol", 10)
	env.product(t, "p-2", "Ibuprofeno", 10)
	o := env.order(t,
		service.NewOrderItem{ProductoID: "p-1", Cantidad: 12},
		service.NewOrderItem{ProductoID: "p-2", Cantidad: 3},
	)

	_, err := env.orders.SetReceivedQuantity(ctx, o.ID, o.Items[0].ID, service.ReceiptCount{CantidadRecib: 1})
	requireCode(t, err, "STATE_CONFLICT")

	env.advance(t, o.ID, repository.EstadoEnviada)

	venc := env.policy.Today().AddDays(5)
	_, err = env.orders.SetReceivedQuantity(ctx, o.ID, o.Items[0].ID, service.ReceiptCount{
		CantidadRecib: 10,
		LoteCodigo:    strPtr(" L-100 "),
		FechaVenc:     &venc,
	})
	require.NoError(t, err)

	_, err = env.orders.SetReceivedQuantity(ctx, o.ID, o.Items[0].ID, service.ReceiptCount{CantidadRecib: -1})
	requireCode(t, err, "VALIDATION_ERROR")

	env.advance(t, o.ID, repository.EstadoConfirmada, repository.EstadoRecibida)

	// only recorded lines are received once any count exists
	assert.Equal(t, 10, env.stock(t, "p-1"))
	assert.Equal(t, 0, env.stock(t, "p-2"))

	batches, err := env.ledger.ListBatches(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "L-100", *batches[0].Codigo)
	assert.Equal(t, venc.String(), batches[0].FechaVenc.String())

	expiry := env.openAlerts(t, repository.AlertTypeVencimiento)
	require.Len(t, expiry, 1)
	assert.Equal(t, batches[0].ID, *expiry[0].LoteID)
}

func TestOrders_ReceiptMergesIntoMatchingBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.product(t, "p-1", "Paracetamol", 10)

	venc := env.policy.Today().AddDays(300)
	existing, err := env.ledger.AddBatch(ctx, "p-1", service.NewBatch{Cantidad: 5, Codigo: strPtr("L-7"), FechaVenc: &venc})
	require.NoError(t, err)

	o := env.order(t, service.NewOrderItem{ProductoID: "p-1", Cantidad: 20})
	env.advance(t, o.ID, repository.EstadoEnviada)
	_, err = env.orders.SetReceivedQuantity(ctx, o.ID, o.Items[0].ID, service.ReceiptCount{
		CantidadRecib: 20,
		LoteCodigo:    strPtr("L-7"),
		FechaVenc:     &venc,
	})
	require.NoError(t, err)
	env.advance(t, o.ID, repository.EstadoConfirmada, repository.EstadoRecibida)

	batches, err := env.ledger.ListBatches(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, existing.ID, batches[0].ID)
	assert.Equal(t, 25, batches[0].Cantidad)
	assert.Equal(t, 25, env.stock(t, "p-1"))
}

func TestOrders_CancelAfterReceiptKeepsStock(t *testing.T) {
	env := newTestEnv(t)
	env.product(t, "p-1", "Paracetamol", 10)
	o := env.order(t, service.NewOrderItem{ProductoID: "p-1", Cantidad: 4})

	env.advance(t, o.ID, repository.EstadoEnviada, repository.EstadoConfirmada, repository.EstadoRecibida, repository.EstadoCancelada)
	assert.Equal(t, 4, env.stock(t, "p-1"))
}

func TestOrders_Delete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.product(t, "p-1", "Paracetamol", 10)

	draft := env.order(t, service.NewOrderItem{ProductoID: "p-1", Cantidad: 1})
	require.NoError(t, env.orders.Delete(ctx, draft.ID))
	_, err := env.orders.Get(ctx, draft.ID)
	requireCode(t, err, "NOT_FOUND")

	sent := env.order(t, service.NewOrderItem{ProductoID: "p-1", Cantidad: 1})
	env.advance(t, sent.ID, repository.EstadoEnviada)
	requireCode(t, env.orders.Delete(ctx, sent.ID), "STATE_CONFLICT")

	requireCode(t, env.orders.Delete(ctx, "missing"), "NOT_FOUND")
}

func TestOrders_List(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.product(t, "p-1", "Paracetamol", 10)

	a := env.order(t, service.NewOrderItem{ProductoID: "p-1", Cantidad: 1})
	env.order(t, service.NewOrderItem{ProductoID: "p-1", Cantidad: 1})
	env.advance(t, a.ID, repository.EstadoEnviada)

	enviada := repository.EstadoEnviada
	orders, total, err := env.orders.List(ctx, service.OrderQuery{Estado: &enviada})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, orders, 1)
	assert.Equal(t, a.ID, orders[0].ID)

	_, total, err = env.orders.List(ctx, service.OrderQuery{Search: "central"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}
