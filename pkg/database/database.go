package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/scentflow/scentflow-backend/pkg/config"
	"github.com/scentflow/scentflow-backend/pkg/logger"
)

// DB wraps sqlx.DB with additional functionality
type DB struct {
	*sqlx.DB
	logger      *logger.Logger
	lockTimeout time.Duration
}

// New creates a new database connection
func New(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &DB{
		DB:          db,
		logger:      log,
		lockTimeout: cfg.LockTimeout,
	}, nil
}

// NewWithDSN creates a new database connection with a DSN string
func NewWithDSN(dsn string, log *logger.Logger) (*DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{
		DB:     db,
		logger: log,
	}, nil
}

// Wrap adapts an existing sqlx handle, e.g. one backed by sqlmock.
func Wrap(db *sqlx.DB, log *logger.Logger) *DB {
	return &DB{DB: db, logger: log}
}

// SetLockTimeout changes the per-transaction lock wait bound. Zero disables it.
func (db *DB) SetLockTimeout(d time.Duration) {
	db.lockTimeout = d
}

// Ping checks the database connection
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// Health returns the health status of the database
func (db *DB) Health(ctx context.Context) map[string]string {
	status := map[string]string{
		"status": "up",
	}

	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		status["status"] = "down"
		status["error"] = err.Error()
	}

	return status
}

// Transaction executes fn within a transaction that is committed or rolled back
// exactly once. Postgres lock and serialization failures surface as retryable
// ConcurrencyConflict errors.
func (db *DB) Transaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if db.lockTimeout > 0 {
		// SET LOCAL does not accept bind parameters.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", db.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			db.rollback(tx)
			return fmt.Errorf("failed to set lock timeout: %w", err)
		}
	}

	if err := fn(tx); err != nil {
		db.rollback(tx)
		return mapTxError(err)
	}

	if err := tx.Commit(); err != nil {
		return mapTxError(fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

func (db *DB) rollback(tx *sqlx.Tx) {
	if rbErr := tx.Rollback(); rbErr != nil && db.logger != nil {
		db.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
	}
}

// mapTxError keeps AppErrors produced inside fn untouched and translates raw
// driver errors.
func mapTxError(err error) error {
	if IsConcurrencyError(err) {
		return MapPQError(err)
	}
	return err
}
