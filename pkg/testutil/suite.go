package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/scentflow/scentflow-backend/migrations"
	"github.com/scentflow/scentflow-backend/pkg/database"
	"github.com/scentflow/scentflow-backend/pkg/logger"
)

var (
	// Global test container (shared across all integration tests)
	globalContainer *PostgresContainer
	globalDB        *sqlx.DB
	containerOnce   sync.Once
	containerErr    error
)

// resetTables lists every table Reset empties, children first.
var resetTables = []string{
	"production_material_consumptions",
	"production_reservations",
	"production_orders",
	"stock_transfer_items",
	"stock_transfers",
	"daily_sales",
	"stock_movements",
	"raw_material_movements",
	"location_stock",
	"raw_material_stock",
	"document_sequences",
	"recipe_ingredients",
	"recipes",
	"raw_materials",
	"products",
	"locations",
}

// IntegrationSuite provides a base for integration tests with real PostgreSQL
type IntegrationSuite struct {
	Container *PostgresContainer
	RawDB     *sqlx.DB
	DB        *database.DB
	Fixtures  *FixtureFactory
	Logger    *logger.Logger
}

// NewIntegrationSuite starts (or reuses) the shared container and applies the
// service migrations.
//
// Usage:
//
//	var suite *testutil.IntegrationSuite
//
//	func TestMain(m *testing.M) {
//	    flag.Parse()
//	    if !testing.Short() {
//	        var err error
//	        suite, err = testutil.NewIntegrationSuite(context.Background())
//	        if err != nil {
//	            log.Fatal(err)
//	        }
//	    }
//	    os.Exit(m.Run())
//	}
//
//	func TestSomething(t *testing.T) {
//	    testutil.SkipIfShort(t)
//	    suite.Reset(t)
//	    // ...
//	}
func NewIntegrationSuite(ctx context.Context) (*IntegrationSuite, error) {
	container, db, err := getOrCreateContainer(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.New("test", "test")
	wrappedDB, err := database.NewWithDSN(container.DSN, log)
	if err != nil {
		return nil, err
	}

	all, err := migrations.All()
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	if err := wrappedDB.Migrate(ctx, all); err != nil {
		return nil, err
	}

	return &IntegrationSuite{
		Container: container,
		RawDB:     db,
		DB:        wrappedDB,
		Fixtures:  NewFixtureFactory(db),
		Logger:    log,
	}, nil
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

// Reset empties every service table. Tests in a package share one database, so
// each test calls Reset before seeding its own fixtures.
func (s *IntegrationSuite) Reset(t *testing.T) {
	t.Helper()

	query := "TRUNCATE " + strings.Join(resetTables, ", ") + " CASCADE"
	if _, err := s.RawDB.Exec(query); err != nil {
		t.Fatalf("failed to reset tables: %v", err)
	}
}

// Cleanup closes the suite's connections. The shared container keeps running.
func (s *IntegrationSuite) Cleanup(ctx context.Context) error {
	return s.DB.Close()
}

// TerminateContainer terminates the shared container.
// Only call this in TestMain after all tests have completed.
func TerminateContainer(ctx context.Context) {
	if globalContainer != nil {
		globalContainer.Terminate(ctx)
	}
}

// UnitTestSuite pairs a sqlmock database with a database.DB wrapper, which is
// what repositories take. Expectations are verified when the test ends.
type UnitTestSuite struct {
	MockDB *MockDB
	DB     *database.DB
}

// NewUnitTestSuite creates a new unit test suite
func NewUnitTestSuite(t *testing.T) *UnitTestSuite {
	mockDB := NewMockDB(t)
	s := &UnitTestSuite{
		MockDB: mockDB,
		DB:     database.Wrap(mockDB.DB, logger.New("test", "test")),
	}
	t.Cleanup(func() {
		mockDB.ExpectationsWereMet(t)
		mockDB.Close()
	})
	return s
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// IsCI returns true if running in CI environment
func IsCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL"}
	for _, v := range ciVars {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}
