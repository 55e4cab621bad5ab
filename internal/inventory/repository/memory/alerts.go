package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
	"github.com/farmacia/farmacia-backend/pkg/errors"
	"github.com/google/uuid"
)

// Alerts is the in-memory alert repository
type Alerts struct {
	s *Store
}

func sameTrigger(a, b *repository.Alert) bool {
	if a.Type != b.Type || a.ProductoID != b.ProductoID {
		return false
	}
	if a.Type == repository.AlertTypeStockBajo {
		return true
	}
	return a.LoteID != nil && b.LoteID != nil && *a.LoteID == *b.LoteID
}

func (r *Alerts) Create(ctx context.Context, a *repository.Alert) error {
	return r.s.write(ctx, func(st *state) error {
		for _, existing := range st.alerts {
			if existing.IsOpen() && sameTrigger(existing, a) {
				return errors.Conflict("an open alert already exists for this trigger")
			}
		}
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		now := r.s.stamp()
		a.CreatedAt, a.UpdatedAt = now, now
		c := *a
		st.alerts[a.ID] = &c
		return nil
	})
}

func (r *Alerts) Update(ctx context.Context, a *repository.Alert, resetRead bool) error {
	return r.s.write(ctx, func(st *state) error {
		existing, ok := st.alerts[a.ID]
		if !ok {
			return errors.NotFound("alert")
		}
		a.UpdatedAt = r.s.stamp()
		a.Leida = existing.Leida && !resetRead
		c := *a
		c.CreatedAt = existing.CreatedAt
		c.ResolvedAt = existing.ResolvedAt
		st.alerts[a.ID] = &c
		return nil
	})
}

func (r *Alerts) Resolve(ctx context.Context, id string, at time.Time) error {
	return r.s.write(ctx, func(st *state) error {
		a, ok := st.alerts[id]
		if !ok || !a.IsOpen() {
			return nil
		}
		resolved := at
		a.ResolvedAt = &resolved
		a.UpdatedAt = at
		return nil
	})
}

func (r *Alerts) GetByID(ctx context.Context, id string) (*repository.Alert, error) {
	var out *repository.Alert
	err := r.s.read(func(st *state) error {
		a, ok := st.alerts[id]
		if !ok {
			return errors.NotFound("alert")
		}
		c := *a
		out = &c
		return nil
	})
	return out, err
}

func (r *Alerts) FindOpenStock(ctx context.Context, productID string) (*repository.Alert, error) {
	var out *repository.Alert
	err := r.s.read(func(st *state) error {
		for _, a := range st.alerts {
			if a.IsOpen() && a.Type == repository.AlertTypeStockBajo && a.ProductoID == productID {
				c := *a
				out = &c
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *Alerts) ListOpenExpiryByProduct(ctx context.Context, productID string) ([]*repository.Alert, error) {
	alerts := []*repository.Alert{}
	err := r.s.read(func(st *state) error {
		for _, a := range st.alerts {
			if a.IsOpen() && a.Type == repository.AlertTypeVencimiento && a.ProductoID == productID {
				c := *a
				alerts = append(alerts, &c)
			}
		}
		return nil
	})
	return alerts, err
}

func (r *Alerts) SetRead(ctx context.Context, id string) error {
	return r.s.write(ctx, func(st *state) error {
		a, ok := st.alerts[id]
		if !ok {
			return errors.NotFound("alert")
		}
		a.Leida = true
		a.UpdatedAt = r.s.stamp()
		return nil
	})
}

func (r *Alerts) MarkAllRead(ctx context.Context, alertType *repository.AlertType) ([]*repository.Alert, error) {
	changed := []*repository.Alert{}
	err := r.s.write(ctx, func(st *state) error {
		now := r.s.stamp()
		for _, a := range st.alerts {
			if a.Leida || (alertType != nil && a.Type != *alertType) {
				continue
			}
			a.Leida = true
			a.UpdatedAt = now
			c := *a
			changed = append(changed, &c)
		}
		return nil
	})
	return changed, err
}

func (r *Alerts) List(ctx context.Context, f repository.AlertFilter) ([]*repository.Alert, int64, error) {
	matched := []*repository.Alert{}
	search := strings.ToLower(strings.TrimSpace(f.Search))

	err := r.s.read(func(st *state) error {
		for _, a := range st.alerts {
			if !f.IncludeResolved && !a.IsOpen() {
				continue
			}
			if f.Type != nil && a.Type != *f.Type {
				continue
			}
			if f.Severity != nil && f.SeverityOf(a) != *f.Severity {
				continue
			}
			if f.UnreadOnly && a.Leida {
				continue
			}
			if search != "" && !matchesSearch(a, search) {
				continue
			}
			if f.ExpiringBy != nil && a.Type == repository.AlertTypeVencimiento &&
				(a.FechaVenc == nil || a.FechaVenc.After(f.ExpiringBy.Time)) {
				continue
			}
			c := *a
			c.Severity = f.SeverityOf(a)
			matched = append(matched, &c)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.IsOpen() != b.IsOpen() {
			return a.IsOpen()
		}
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	return paginate(matched, f.Page, f.PageSize), int64(len(matched)), nil
}

func (r *Alerts) CountUnread(ctx context.Context, alertType *repository.AlertType) (int64, error) {
	var count int64
	err := r.s.read(func(st *state) error {
		for _, a := range st.alerts {
			if a.Leida || !a.IsOpen() || (alertType != nil && a.Type != *alertType) {
				continue
			}
			count++
		}
		return nil
	})
	return count, err
}

func matchesSearch(a *repository.Alert, needle string) bool {
	fields := []string{a.ProductoNombre}
	if a.Categoria != nil {
		fields = append(fields, *a.Categoria)
	}
	if a.LoteCodigo != nil {
		fields = append(fields, *a.LoteCodigo)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}
