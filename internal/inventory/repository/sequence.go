package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// SequenceRepository issues per-day document numbers.
type SequenceRepository struct{}

// NewSequenceRepository creates a new sequence repository
func NewSequenceRepository() *SequenceRepository {
	return &SequenceRepository{}
}

// NextTx returns the next value of the (prefix, day) counter, starting at 1.
// The counter row stays locked until tx ends, so numbers are gap free for
// committed documents and never issued twice.
func (r *SequenceRepository) NextTx(ctx context.Context, tx *sqlx.Tx, prefix string, day time.Time) (int, error) {
	var next int
	query := `
		INSERT INTO document_sequences (prefix, day, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (prefix, day) DO UPDATE SET last_value = document_sequences.last_value + 1
		RETURNING last_value
	`
	if err := tx.GetContext(ctx, &next, query, prefix, day.Format("2006-01-02")); err != nil {
		return 0, err
	}
	return next, nil
}
