package memory

import (
	"context"
	"sort"

	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
	"github.com/farmacia/farmacia-backend/pkg/errors"
)

// Products is the in-memory product repository
type Products struct {
	s *Store
}

func (r *Products) GetByID(ctx context.Context, id string) (*repository.Product, error) {
	var out *repository.Product
	err := r.s.read(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return errors.NotFound("product")
		}
		c := *p
		out = &c
		return nil
	})
	return out, err
}

// GetForUpdate is GetByID; transactions are already exclusive
func (r *Products) GetForUpdate(ctx context.Context, id string) (*repository.Product, error) {
	return r.GetByID(ctx, id)
}

func (r *Products) Upsert(ctx context.Context, p *repository.Product) error {
	return r.s.write(ctx, func(st *state) error {
		now := r.s.stamp()
		if existing, ok := st.products[p.ID]; ok {
			existing.Nombre = p.Nombre
			existing.Categoria = p.Categoria
			existing.StockMinimo = p.StockMinimo
			existing.UpdatedAt = now
			p.StockActual = existing.StockActual
			p.UpdatedAt = now
			return nil
		}
		c := *p
		c.StockActual = 0
		c.UpdatedAt = now
		st.products[p.ID] = &c
		p.StockActual = 0
		p.UpdatedAt = now
		return nil
	})
}

func (r *Products) SetStockActual(ctx context.Context, id string, stock int) error {
	return r.s.write(ctx, func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return errors.NotFound("product")
		}
		p.StockActual = stock
		p.UpdatedAt = r.s.stamp()
		return nil
	})
}

func (r *Products) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.s.read(func(st *state) error {
		for id := range st.products {
			ids = append(ids, id)
		}
		return nil
	})
	sort.Strings(ids)
	return ids, err
}
