package testutil

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/farmacia/farmacia-backend/pkg/database"
	"github.com/farmacia/farmacia-backend/pkg/logger"
	"github.com/jmoiron/sqlx"
)

var (
	// Global test container (shared across all integration tests)
	globalContainer *PostgresContainer
	globalDB        *sqlx.DB
	containerOnce   sync.Once
	containerErr    error
)

// IntegrationSuite provides a base for integration tests with real PostgreSQL
type IntegrationSuite struct {
	Container *PostgresContainer
	RawDB     *sqlx.DB
	DB        *database.DB
	Logger    *logger.Logger
}

// NewIntegrationSuite starts (or reuses) the shared container and applies schema.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    suite := testutil.RequireIntegration(t, repository.Schema)
//	    suite.Reset(t, "lotes", "productos")
//	    repo := repository.NewBatchRepository(suite.DB)
//	}
func NewIntegrationSuite(ctx context.Context, schema string) (*IntegrationSuite, error) {
	container, db, err := getOrCreateContainer(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.Nop()
	wrapped := database.Wrap(db, log)
	if err := wrapped.Migrate(ctx, schema); err != nil {
		return nil, err
	}

	return &IntegrationSuite{
		Container: container,
		RawDB:     db,
		DB:        wrapped,
		Logger:    log,
	}, nil
}

// RequireIntegration returns a ready suite or skips the test when running
// with -short or when no container runtime is available.
func RequireIntegration(t *testing.T, schema string) *IntegrationSuite {
	t.Helper()
	SkipIfShort(t)

	suite, err := NewIntegrationSuite(DefaultTestContext(t), schema)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	return suite
}

// getOrCreateContainer returns the shared test container
func getOrCreateContainer(ctx context.Context) (*PostgresContainer, *sqlx.DB, error) {
	containerOnce.Do(func() {
		globalContainer, containerErr = NewPostgresContainer(ctx, DefaultPostgresConfig())
		if containerErr != nil {
			return
		}
		globalDB, containerErr = globalContainer.Connect(ctx)
	})

	return globalContainer, globalDB, containerErr
}

// Reset empties the given tables so each test starts clean
func (s *IntegrationSuite) Reset(t *testing.T, tables ...string) {
	t.Helper()
	if len(tables) == 0 {
		return
	}
	query := "TRUNCATE " + strings.Join(tables, ", ") + " CASCADE"
	if _, err := s.RawDB.ExecContext(context.Background(), query); err != nil {
		t.Fatalf("failed to reset tables: %v", err)
	}
}
