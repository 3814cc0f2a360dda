package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Migration is one versioned schema change.
type Migration struct {
	Version string
	SQL     string
}

// Migrate applies every migration that is not yet recorded in schema_migrations.
// Each migration runs in its own transaction together with its bookkeeping row.
func (db *DB) Migrate(ctx context.Context, migrations []Migration) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var applied bool
		if err := db.GetContext(ctx, &applied,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version); err != nil {
			return fmt.Errorf("failed to check migration %s: %w", m.Version, err)
		}
		if applied {
			continue
		}

		err := db.Transaction(ctx, func(tx *sqlx.Tx) error {
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.Version, err)
		}

		if db.logger != nil {
			db.logger.Info().Str("version", m.Version).Msg("migration applied")
		}
	}

	return nil
}
