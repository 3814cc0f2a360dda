package database_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scentflow/scentflow-backend/pkg/database"
	"github.com/scentflow/scentflow-backend/pkg/errors"
	"github.com/scentflow/scentflow-backend/pkg/logger"
)

func newMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return database.Wrap(sqlx.NewDb(raw, "postgres"), logger.Nop()), mock
}

func TestTransaction_Commit(t *testing.T) {
	db, mock := newMockDB(t)
	db.SetLockTimeout(2 * time.Second)

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout = '2000ms'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE location_stock").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := db.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		_, err := tx.Exec("UPDATE location_stock SET quantity = 1")
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransaction_RollbackKeepsAppError(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	want := errors.InvalidAdjustment("nope")
	err := db.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		return want
	})

	assert.Same(t, want, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransaction_LockTimeoutBecomesConcurrencyConflict(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT quantity").WillReturnError(&pq.Error{Code: "55P03", Message: "canceling statement due to lock timeout"})
	mock.ExpectRollback()

	err := db.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		var q int
		if err := tx.Get(&q, "SELECT quantity FROM location_stock FOR UPDATE"); err != nil {
			return fmt.Errorf("lock stock row: %w", err)
		}
		return nil
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConcurrencyConflict))
	assert.True(t, errors.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
