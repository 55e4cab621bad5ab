// Package memory keeps the stock tables in process memory. It backs the
// "memory" database driver and the service tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
)

type txMarker struct{}

type state struct {
	products map[string]*repository.Product
	batches  map[string]*repository.Batch
	alerts   map[string]*repository.Alert
	orders   map[string]*repository.PurchaseOrder
}

func newState() *state {
	return &state{
		products: make(map[string]*repository.Product),
		batches:  make(map[string]*repository.Batch),
		alerts:   make(map[string]*repository.Alert),
		orders:   make(map[string]*repository.PurchaseOrder),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.products {
		p := *v
		c.products[k] = &p
	}
	for k, v := range s.batches {
		b := *v
		c.batches[k] = &b
	}
	for k, v := range s.alerts {
		a := *v
		c.alerts[k] = &a
	}
	for k, v := range s.orders {
		c.orders[k] = cloneOrder(v)
	}
	return c
}

// Store is an in-memory implementation of the stock repositories.
// Transactions are serialized and roll back by restoring a snapshot.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	st   *state
	now  func() time.Time
	seq  int64
}

// New creates an empty store
func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// WithClock overrides the time source used for timestamps
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// WithTx runs fn atomically. Nested calls join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.st.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func inTx(ctx context.Context) bool {
	return ctx.Value(txMarker{}) != nil
}

// write applies a single mutation. Outside a transaction it still waits for
// running transactions so a rollback cannot discard it.
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if !inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func (s *Store) read(fn func(st *state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.st)
}

// stamp returns a strictly increasing timestamp so creation order is stable
func (s *Store) stamp() time.Time {
	s.seq++
	return s.now().UTC().Add(time.Duration(s.seq) * time.Nanosecond)
}

// Products returns the product repository view
func (s *Store) Products() *Products { return &Products{s: s} }

// Batches returns the batch repository view
func (s *Store) Batches() *Batches { return &Batches{s: s} }

// Alerts returns the alert repository view
func (s *Store) Alerts() *Alerts { return &Alerts{s: s} }

// Orders returns the purchase order repository view
func (s *Store) Orders() *Orders { return &Orders{s: s} }

func cloneOrder(o *repository.PurchaseOrder) *repository.PurchaseOrder {
	c := *o
	c.Items = make([]*repository.OrderItem, len(o.Items))
	for i, it := range o.Items {
		item := *it
		c.Items[i] = &item
	}
	return &c
}

func paginate[T any](rows []T, page, pageSize int) []T {
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(rows) {
		return []T{}
	}
	end := start + pageSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}
