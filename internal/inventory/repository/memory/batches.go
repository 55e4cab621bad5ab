package memory

import (
	"context"
	"sort"

	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
	"github.com/farmacia/farmacia-backend/pkg/errors"
	"github.com/google/uuid"
)

// Batches is the in-memory batch repository
type Batches struct {
	s *Store
}

func (r *Batches) Create(ctx context.Context, b *repository.Batch) error {
	if b.Cantidad < 0 {
		return errors.InvalidField("cantidad", "must not be negative")
	}
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.products[b.ProductoID]; !ok {
			return errors.BadRequest("referenced record does not exist")
		}
		if b.ID == "" {
			b.ID = uuid.New().String()
		}
		now := r.s.stamp()
		b.CreatedAt, b.UpdatedAt = now, now
		c := *b
		st.batches[b.ID] = &c
		return nil
	})
}

func (r *Batches) GetByID(ctx context.Context, id string) (*repository.Batch, error) {
	var out *repository.Batch
	err := r.s.read(func(st *state) error {
		b, ok := st.batches[id]
		if !ok {
			return errors.NotFound("batch")
		}
		c := *b
		out = &c
		return nil
	})
	return out, err
}

func (r *Batches) SetCantidad(ctx context.Context, id string, cantidad int) (*repository.Batch, error) {
	if cantidad < 0 {
		return nil, errors.InvalidField("cantidad", "must not be negative")
	}
	var out *repository.Batch
	err := r.s.write(ctx, func(st *state) error {
		b, ok := st.batches[id]
		if !ok {
			return errors.NotFound("batch")
		}
		b.Cantidad = cantidad
		b.UpdatedAt = r.s.stamp()
		c := *b
		out = &c
		return nil
	})
	return out, err
}

func (r *Batches) Delete(ctx context.Context, id string) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.batches[id]; !ok {
			return errors.NotFound("batch")
		}
		delete(st.batches, id)
		return nil
	})
}

func (r *Batches) ListByProduct(ctx context.Context, productID string) ([]*repository.Batch, error) {
	batches := []*repository.Batch{}
	err := r.s.read(func(st *state) error {
		for _, b := range st.batches {
			if b.ProductoID == productID {
				c := *b
				batches = append(batches, &c)
			}
		}
		return nil
	})

	sort.Slice(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		switch {
		case a.FechaVenc != nil && b.FechaVenc == nil:
			return true
		case a.FechaVenc == nil && b.FechaVenc != nil:
			return false
		case a.FechaVenc != nil && !a.FechaVenc.Equal(*b.FechaVenc):
			return a.FechaVenc.Before(b.FechaVenc.Time)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return batches, err
}

func (r *Batches) SumByProduct(ctx context.Context, productID string) (int, error) {
	total := 0
	err := r.s.read(func(st *state) error {
		for _, b := range st.batches {
			if b.ProductoID == productID {
				total += b.Cantidad
			}
		}
		return nil
	})
	return total, err
}

func (r *Batches) FindForReceipt(ctx context.Context, productID string, codigo *string, fechaVenc *repository.Date) (*repository.Batch, error) {
	if codigo == nil {
		return nil, nil
	}
	batches, err := r.ListByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	var found *repository.Batch
	for _, b := range batches {
		if b.Codigo == nil || *b.Codigo != *codigo || !repository.SameDate(b.FechaVenc, fechaVenc) {
			continue
		}
		if found == nil || b.CreatedAt.Before(found.CreatedAt) {
			found = b
		}
	}
	return found, nil
}
