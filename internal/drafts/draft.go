// Package drafts keeps per-supplier staging lists of order lines on the
// operator's machine until they are confirmed into a purchase order.
package drafts

import (
	"github.com/shopspring/decimal"
)

// DraftItem is one candidate order line. The stock figures are a display
// snapshot taken when the line was added.
type DraftItem struct {
	ProductID     string           `json:"productId"`
	ProductName   string           `json:"productName"`
	Cantidad      int              `json:"cantidad"`
	CostoUnitario *decimal.Decimal `json:"costoUnitario,omitempty"`
	Notas         *string          `json:"notas,omitempty"`
	StockActual   *int             `json:"stockActual,omitempty"`
	StockMinimo   *int             `json:"stockMinimo,omitempty"`
}

// DraftOrder collects the lines staged for one supplier
type DraftOrder struct {
	SupplierID   string      `json:"supplierId"`
	SupplierName string      `json:"supplierName"`
	Items        []DraftItem `json:"items"`
}

// EstimatedTotal sums cantidad x costoUnitario over lines with a known cost
func (d *DraftOrder) EstimatedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range d.Items {
		if it.CostoUnitario != nil {
			total = total.Add(it.CostoUnitario.Mul(decimal.NewFromInt(int64(it.Cantidad))))
		}
	}
	return total
}

func (d *DraftOrder) itemIndex(productID string) int {
	for i, it := range d.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

// ItemChanges is a partial update of a draft line. ClearCosto drops a known cost.
type ItemChanges struct {
	Cantidad      *int
	CostoUnitario *decimal.Decimal
	ClearCosto    bool
	Notas         *string
}

// State is every draft on this machine. It is also the persisted record.
//
// The functions on State never modify the receiver; each returns the next state.
type State struct {
	Drafts []DraftOrder `json:"drafts"`
}

// Draft returns a copy of the supplier's draft
func (s State) Draft(supplierID string) (DraftOrder, bool) {
	if i := s.index(supplierID); i >= 0 {
		return cloneDraft(s.Drafts[i]), true
	}
	return DraftOrder{}, false
}

// Item returns a copy of one line of the supplier's draft
func (s State) Item(supplierID, productID string) (DraftItem, bool) {
	d, ok := s.Draft(supplierID)
	if !ok {
		return DraftItem{}, false
	}
	if j := d.itemIndex(productID); j >= 0 {
		return d.Items[j], true
	}
	return DraftItem{}, false
}

// EnsureDraft adds an empty draft for the supplier if it has none
func (s State) EnsureDraft(supplierID, supplierName string) State {
	next := s.clone()
	if next.index(supplierID) < 0 {
		next.Drafts = append(next.Drafts, DraftOrder{
			SupplierID:   supplierID,
			SupplierName: supplierName,
			Items:        []DraftItem{},
		})
	}
	return next
}

// AddItem appends the line, or merges it into the existing line for the same
// product: quantities add up, and a supplied cost, note, name or stock
// snapshot replaces the previous one. A missing draft is created.
func (s State) AddItem(supplierID, supplierName string, item DraftItem) State {
	next := s.EnsureDraft(supplierID, supplierName)
	d := &next.Drafts[next.index(supplierID)]

	j := d.itemIndex(item.ProductID)
	if j < 0 {
		d.Items = append(d.Items, cloneItem(item))
		return next
	}

	cur := &d.Items[j]
	cur.Cantidad += item.Cantidad
	if item.ProductName != "" {
		cur.ProductName = item.ProductName
	}
	if item.CostoUnitario != nil {
		cur.CostoUnitario = decimalPtr(*item.CostoUnitario)
	}
	if item.Notas != nil {
		cur.Notas = stringPtr(*item.Notas)
	}
	if item.StockActual != nil {
		cur.StockActual = intPtr(*item.StockActual)
	}
	if item.StockMinimo != nil {
		cur.StockMinimo = intPtr(*item.StockMinimo)
	}
	return next
}

// UpdateItem applies changes to an existing line. Quantities below 1 are
// raised to 1. Unknown lines leave the state as it is.
func (s State) UpdateItem(supplierID, productID string, ch ItemChanges) State {
	next := s.clone()
	i := next.index(supplierID)
	if i < 0 {
		return next
	}
	d := &next.Drafts[i]
	j := d.itemIndex(productID)
	if j < 0 {
		return next
	}

	cur := &d.Items[j]
	if ch.Cantidad != nil {
		cur.Cantidad = *ch.Cantidad
		if cur.Cantidad < 1 {
			cur.Cantidad = 1
		}
	}
	switch {
	case ch.ClearCosto:
		cur.CostoUnitario = nil
	case ch.CostoUnitario != nil:
		cur.CostoUnitario = decimalPtr(*ch.CostoUnitario)
	}
	if ch.Notas != nil {
		cur.Notas = stringPtr(*ch.Notas)
	}
	return next
}

// RemoveItem drops the line. A draft left without lines is dropped too.
func (s State) RemoveItem(supplierID, productID string) State {
	next := s.clone()
	i := next.index(supplierID)
	if i < 0 {
		return next
	}
	d := &next.Drafts[i]
	j := d.itemIndex(productID)
	if j < 0 {
		return next
	}

	d.Items = append(d.Items[:j], d.Items[j+1:]...)
	if len(d.Items) == 0 {
		return next.ClearProveedor(supplierID)
	}
	return next
}

// ClearProveedor discards the supplier's draft
func (s State) ClearProveedor(supplierID string) State {
	next := State{Drafts: make([]DraftOrder, 0, len(s.Drafts))}
	for _, d := range s.Drafts {
		if d.SupplierID != supplierID {
			next.Drafts = append(next.Drafts, cloneDraft(d))
		}
	}
	return next
}

// ClearAll discards every draft
func (s State) ClearAll() State {
	return State{Drafts: []DraftOrder{}}
}

func (s State) index(supplierID string) int {
	for i, d := range s.Drafts {
		if d.SupplierID == supplierID {
			return i
		}
	}
	return -1
}

func (s State) clone() State {
	next := State{Drafts: make([]DraftOrder, len(s.Drafts))}
	for i, d := range s.Drafts {
		next.Drafts[i] = cloneDraft(d)
	}
	return next
}

func cloneDraft(d DraftOrder) DraftOrder {
	out := d
	out.Items = make([]DraftItem, len(d.Items))
	for i, it := range d.Items {
		out.Items[i] = cloneItem(it)
	}
	return out
}

func cloneItem(it DraftItem) DraftItem {
	out := it
	if it.CostoUnitario != nil {
		out.CostoUnitario = decimalPtr(*it.CostoUnitario)
	}
	if it.Notas != nil {
		out.Notas = stringPtr(*it.Notas)
	}
	if it.StockActual != nil {
		out.StockActual = intPtr(*it.StockActual)
	}
	if it.StockMinimo != nil {
		out.StockMinimo = intPtr(*it.StockMinimo)
	}
	return out
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal { return &d }
func stringPtr(s string) *string { return &s }
func intPtr(n int) *int { return &n }
