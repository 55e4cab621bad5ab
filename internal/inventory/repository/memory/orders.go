package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
	"github.com/farmacia/farmacia-backend/pkg/errors"
	"github.com/google/uuid"
)

// Orders is the in-memory purchase order repository
type Orders struct {
	s *Store
}

func (r *Orders) Create(ctx context.Context, o *repository.PurchaseOrder) error {
	return r.s.write(ctx, func(st *state) error {
		for _, it := range o.Items {
			if _, ok := st.products[it.ProductoID]; !ok {
				return errors.BadRequest("referenced record does not exist")
			}
		}
		if o.ID == "" {
			o.ID = uuid.New().String()
		}
		now := r.s.stamp()
		o.CreatedAt, o.UpdatedAt = now, now
		for _, it := range o.Items {
			if it.ID == "" {
				it.ID = uuid.New().String()
			}
			it.OrdenID = o.ID
			it.CreatedAt = r.s.stamp()
		}
		st.orders[o.ID] = cloneOrder(o)
		return nil
	})
}

func (r *Orders) GetByID(ctx context.Context, id string) (*repository.PurchaseOrder, error) {
	var out *repository.PurchaseOrder
	err := r.s.read(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return errors.NotFound("purchase order")
		}
		out = cloneOrder(o)
		return nil
	})
	return out, err
}

// GetForUpdate is GetByID; transactions are already exclusive
func (r *Orders) GetForUpdate(ctx context.Context, id string) (*repository.PurchaseOrder, error) {
	return r.GetByID(ctx, id)
}

func (r *Orders) Update(ctx context.Context, o *repository.PurchaseOrder) error {
	return r.s.write(ctx, func(st *state) error {
		existing, ok := st.orders[o.ID]
		if !ok {
			return errors.NotFound("purchase order")
		}
		o.UpdatedAt = r.s.stamp()
		existing.Estado = o.Estado
		existing.Notas = o.Notas
		existing.TotalEstimado = o.TotalEstimado
		existing.EnviadaAt = o.EnviadaAt
		existing.RecibidaAt = o.RecibidaAt
		existing.UpdatedAt = o.UpdatedAt
		return nil
	})
}

func (r *Orders) Delete(ctx context.Context, id string) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.orders[id]; !ok {
			return errors.NotFound("purchase order")
		}
		delete(st.orders, id)
		return nil
	})
}

func (r *Orders) List(ctx context.Context, f repository.OrderFilter) ([]*repository.PurchaseOrder, int64, error) {
	matched := []*repository.PurchaseOrder{}
	search := strings.ToLower(strings.TrimSpace(f.Search))

	err := r.s.read(func(st *state) error {
		for _, o := range st.orders {
			if f.Estado != nil && o.Estado != *f.Estado {
				continue
			}
			if search != "" && !orderMatches(o, search) {
				continue
			}
			matched = append(matched, cloneOrder(o))
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	return paginate(matched, f.Page, f.PageSize), int64(len(matched)), nil
}

func orderMatches(o *repository.PurchaseOrder, needle string) bool {
	fields := []string{o.ID, o.ProveedorID}
	if o.ProveedorNombre != nil {
		fields = append(fields, *o.ProveedorNombre)
	}
	if o.Notas != nil {
		fields = append(fields, *o.Notas)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

func (r *Orders) AddItem(ctx context.Context, it *repository.OrderItem) error {
	return r.s.write(ctx, func(st *state) error {
		o, ok := st.orders[it.OrdenID]
		if !ok {
			return errors.NotFound("purchase order")
		}
		if _, ok := st.products[it.ProductoID]; !ok {
			return errors.BadRequest("referenced record does not exist")
		}
		if it.ID == "" {
			it.ID = uuid.New().String()
		}
		it.CreatedAt = r.s.stamp()
		c := *it
		o.Items = append(o.Items, &c)
		return nil
	})
}

func (r *Orders) UpdateItem(ctx context.Context, it *repository.OrderItem) error {
	return r.s.write(ctx, func(st *state) error {
		o, ok := st.orders[it.OrdenID]
		if !ok {
			return errors.NotFound("order item")
		}
		for i, existing := range o.Items {
			if existing.ID == it.ID {
				c := *it
				c.CreatedAt = existing.CreatedAt
				o.Items[i] = &c
				return nil
			}
		}
		return errors.NotFound("order item")
	})
}

func (r *Orders) DeleteItem(ctx context.Context, orderID, itemID string) error {
	return r.s.write(ctx, func(st *state) error {
		o, ok := st.orders[orderID]
		if !ok {
			return errors.NotFound("order item")
		}
		for i, existing := range o.Items {
			if existing.ID == itemID {
				o.Items = append(o.Items[:i:i], o.Items[i+1:]...)
				return nil
			}
		}
		return errors.NotFound("order item")
	})
}
