package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
	"github.com/shopspring/decimal"
)

// OrderItemRequest is one line of a new order
type OrderItemRequest struct {
	ProductID     string           `json:"productId"`
	Cantidad      int              `json:"cantidad"`
	CostoUnitario *decimal.Decimal `json:"costoUnitario,omitempty"`
	Notas         *string          `json:"notas,omitempty"`
}

// CreateOrderRequest creates an order in BORRADOR with all its lines at once
type CreateOrderRequest struct {
	SupplierID   string             `json:"supplierId"`
	SupplierName *string            `json:"supplierName,omitempty"`
	Notas        *string            `json:"notas,omitempty"`
	Items        []OrderItemRequest `json:"items"`
}

// ItemUpdate is a partial change to an order line. ClearCosto sends an
// explicit null so the server forgets the cost.
type ItemUpdate struct {
	Cantidad      *int
	CostoUnitario *decimal.Decimal
	ClearCosto    bool
	Notas         *string
}

func (u ItemUpdate) MarshalJSON() ([]byte, error) {
	body := map[string]interface{}{}
	if u.Cantidad != nil {
		body["cantidad"] = *u.Cantidad
	}
	switch {
	case u.ClearCosto:
		body["costoUnitario"] = nil
	case u.CostoUnitario != nil:
		body["costoUnitario"] = u.CostoUnitario
	}
	if u.Notas != nil {
		body["notas"] = *u.Notas
	}
	return json.Marshal(body)
}

// ReceivedCount records what arrived for a line
type ReceivedCount struct {
	CantidadRecib int              `json:"cantidadRecib"`
	LoteCodigo    *string          `json:"loteCodigo,omitempty"`
	FechaVenc     *repository.Date `json:"fechaVenc,omitempty"`
}

// CreateOrder creates a purchase order
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*repository.PurchaseOrder, error) {
	if req.Items == nil {
		req.Items = []OrderItemRequest{}
	}

	var order repository.PurchaseOrder
	if err := c.do(ctx, http.MethodPost, "/orders", req, &order); err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("order_id", order.ID).
		Str("supplier_id", req.SupplierID).
		Int("items", len(req.Items)).
		Msg("purchase order created")
	return &order, nil
}

// GetOrder fetches an order with its lines
func (c *Client) GetOrder(ctx context.Context, orderID string) (*repository.PurchaseOrder, error) {
	var order repository.PurchaseOrder
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// ChangeEstado moves an order along its state graph
func (c *Client) ChangeEstado(ctx context.Context, orderID string, estado repository.EstadoOrdenCompra) (*repository.PurchaseOrder, error) {
	var order repository.PurchaseOrder
	body := map[string]repository.EstadoOrdenCompra{"estado": estado}
	if err := c.do(ctx, http.MethodPatch, "/orders/"+url.PathEscape(orderID)+"/estado", body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// AddItem adds a line to an editable order
func (c *Client) AddItem(ctx context.Context, orderID string, item OrderItemRequest) (*repository.PurchaseOrder, error) {
	if err := c.guardEditable(ctx, orderID); err != nil {
		return nil, err
	}

	var order repository.PurchaseOrder
	if err := c.do(ctx, http.MethodPost, "/orders/"+url.PathEscape(orderID)+"/items", item, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateItem changes a line of an editable order
func (c *Client) UpdateItem(ctx context.Context, orderID, itemID string, update ItemUpdate) (*repository.PurchaseOrder, error) {
	if err := c.guardEditable(ctx, orderID); err != nil {
		return nil, err
	}

	var order repository.PurchaseOrder
	if err := c.do(ctx, http.MethodPut, itemPath(orderID, itemID), update, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// RemoveItem removes a line of an editable order
func (c *Client) RemoveItem(ctx context.Context, orderID, itemID string) (*repository.PurchaseOrder, error) {
	if err := c.guardEditable(ctx, orderID); err != nil {
		return nil, err
	}

	var order repository.PurchaseOrder
	if err := c.do(ctx, http.MethodDelete, itemPath(orderID, itemID), nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// SetReceived records the counted quantity of a line before receipt
func (c *Client) SetReceived(ctx context.Context, orderID, itemID string, count ReceivedCount) (*repository.PurchaseOrder, error) {
	var order repository.PurchaseOrder
	if err := c.do(ctx, http.MethodPut, itemPath(orderID, itemID)+"/received", count, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// guardEditable refuses line edits on orders whose state locks their lines.
// The server enforces the same rule.
func (c *Client) guardEditable(ctx context.Context, orderID string) error {
	order, err := c.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !order.Estado.ItemsEditable() {
		return &APIError{
			Status:  http.StatusConflict,
			Code:    codeStateConflict,
			Message: fmt.Sprintf("order items cannot be edited in state %s", order.Estado),
		}
	}
	return nil
}

func itemPath(orderID, itemID string) string {
	return "/orders/" + url.PathEscape(orderID) + "/items/" + url.PathEscape(itemID)
}

// AddBatch records a new batch for a product
func (c *Client) AddBatch(ctx context.Context, productID string, cantidad int, codigo *string, fechaVenc *repository.Date) (*repository.Batch, error) {
	body := struct {
		Cantidad  int              `json:"cantidad"`
		Codigo    *string          `json:"codigo,omitempty"`
		FechaVenc *repository.Date `json:"fechaVenc,omitempty"`
	}{cantidad, codigo, fechaVenc}

	var batch repository.Batch
	if err := c.do(ctx, http.MethodPost, "/products/"+url.PathEscape(productID)+"/batches", body, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

// ProductStock fetches a product with its derived stock
func (c *Client) ProductStock(ctx context.Context, productID string) (*repository.Product, error) {
	var product repository.Product
	if err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(productID)+"/stock", nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}
