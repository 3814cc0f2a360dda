// Package testutil provides testing utilities for the inventory service.
// It includes a testcontainers PostgreSQL instance with the service schema,
// sqlmock helpers, a recording event publisher and catalog fixtures.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer is a running PostgreSQL test instance.
type PostgresContainer struct {
	*postgres.PostgresContainer
	DSN string
}

// PostgresConfig configures the test PostgreSQL container.
type PostgresConfig struct {
	Image          string
	Database       string
	Username       string
	Password       string
	StartupTimeout time.Duration
}

// DefaultPostgresConfig reads SCENTFLOW_TEST_PG_IMAGE and falls back to the
// image production runs on. CI runners get a longer startup window.
func DefaultPostgresConfig() PostgresConfig {
	timeout := 60 * time.Second
	if IsCI() {
		timeout = 3 * time.Minute
	}
	return PostgresConfig{
		Image:          GetEnvOrDefault("SCENTFLOW_TEST_PG_IMAGE", "postgres:15-alpine"),
		Database:       "scentflow_test",
		Username:       "test",
		Password:       "test",
		StartupTimeout: timeout,
	}
}

// NewPostgresContainer starts a PostgreSQL container. Callers own Terminate;
// integration suites share one instance through NewIntegrationSuite.
func NewPostgresContainer(ctx context.Context, cfg PostgresConfig) (*PostgresContainer, error) {
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = 60 * time.Second
	}

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(cfg.Image),
		postgres.WithDatabase(cfg.Database),
		postgres.WithUsername(cfg.Username),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			// postgres logs readiness twice: once for the init run, once for the real server
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(cfg.StartupTimeout),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &PostgresContainer{PostgresContainer: container, DSN: dsn}, nil
}

// Connect opens a raw connection for fixtures and table resets.
func (c *PostgresContainer) Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	return db, nil
}
