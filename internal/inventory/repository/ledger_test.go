package repository_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scentflow/scentflow-backend/internal/inventory/repository"
	"github.com/scentflow/scentflow-backend/pkg/database"
	"github.com/scentflow/scentflow-backend/pkg/errors"
	"github.com/scentflow/scentflow-backend/pkg/testutil"
)

const (
	locationID = "3f1c2a5e-8d7b-4c1a-9e2f-0a1b2c3d4e5f"
	itemID     = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
)

var stockCols = []string{"location_id", "item_id", "quantity", "reserved_quantity", "reorder_level", "last_movement_at", "updated_at"}

func newLedgerRepo(t *testing.T) (*repository.LedgerRepository, *testutil.MockDB) {
	t.Helper()
	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { mockDB.Close() })
	return repository.NewLedgerRepository(database.Wrap(mockDB.DB, testLogger())), mockDB
}

func TestLedgerRepository_GetStock(t *testing.T) {
	key := repository.StockKey{Catalog: repository.CatalogProducts, LocationID: locationID, ItemID: itemID}

	t.Run("existing row", func(t *testing.T) {
		repo, mockDB := newLedgerRepo(t)
		mockDB.ExpectQuery("FROM location_stock WHERE location_id = $1 AND item_id = $2").
			WithArgs(locationID, itemID).
			WillReturnRows(testutil.MockRows(stockCols...).
				AddRow(locationID, itemID, "42", "2", "10", nil, time.Now()))

		level, err := repo.GetStock(context.Background(), key)
		require.NoError(t, err)
		assert.Equal(t, "42", level.Quantity.String())
		assert.Equal(t, "40", level.Available().String())
		assert.False(t, level.IsLow())
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("missing row reads as zero", func(t *testing.T) {
		repo, mockDB := newLedgerRepo(t)
		mockDB.ExpectQuery("FROM location_stock").WillReturnError(sql.ErrNoRows)

		level, err := repo.GetStock(context.Background(), key)
		require.NoError(t, err)
		assert.True(t, level.Quantity.IsZero())
		assert.Equal(t, itemID, level.ItemID)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("malformed id skips the query", func(t *testing.T) {
		repo, mockDB := newLedgerRepo(t)

		level, err := repo.GetStock(context.Background(), repository.StockKey{Catalog: repository.CatalogProducts, LocationID: locationID, ItemID: "nope"})
		require.NoError(t, err)
		assert.True(t, level.Quantity.IsZero())
		mockDB.ExpectationsWereMet(t)
	})
}

func TestLedgerRepository_SumMovements(t *testing.T) {
	key := repository.StockKey{Catalog: repository.CatalogRawMaterials, LocationID: locationID, ItemID: itemID}

	t.Run("sums signed quantities", func(t *testing.T) {
		repo, mockDB := newLedgerRepo(t)
		mockDB.ExpectQuery("SELECT SUM(quantity) FROM raw_material_movements").
			WithArgs(locationID, itemID).
			WillReturnRows(testutil.MockRows("sum").AddRow("12.5000"))

		sum, err := repo.SumMovements(context.Background(), key)
		require.NoError(t, err)
		assert.Equal(t, "12.5", sum.String())
	})

	t.Run("no movements", func(t *testing.T) {
		repo, mockDB := newLedgerRepo(t)
		mockDB.ExpectQuery("SELECT SUM(quantity) FROM raw_material_movements").
			WillReturnRows(testutil.MockRows("sum").AddRow(nil))

		sum, err := repo.SumMovements(context.Background(), key)
		require.NoError(t, err)
		assert.True(t, sum.IsZero())
	})
}

func TestLedgerRepository_HasMovementTx(t *testing.T) {
	repo, mockDB := newLedgerRepo(t)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT EXISTS (SELECT 1 FROM stock_movements WHERE reference = $1 AND movement_type = $2)").
		WithArgs("SALE-0001", "sale").
		WillReturnRows(testutil.MockRows("exists").AddRow(true))
	mockDB.ExpectRollback()

	tx, err := mockDB.DB.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()

	exists, err := repo.HasMovementTx(context.Background(), tx, repository.CatalogProducts, "SALE-0001", repository.MovementSale)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLedgerRepository_LockStockTx(t *testing.T) {
	key := repository.StockKey{Catalog: repository.CatalogProducts, LocationID: locationID, ItemID: itemID}

	t.Run("creates then locks the row", func(t *testing.T) {
		repo, mockDB := newLedgerRepo(t)

		mockDB.ExpectBegin()
		mockDB.ExpectExec("INSERT INTO location_stock (location_id, item_id, reorder_level)").
			WithArgs(locationID, itemID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mockDB.ExpectQuery("FOR UPDATE").
			WithArgs(locationID, itemID).
			WillReturnRows(testutil.MockRows(stockCols...).
				AddRow(locationID, itemID, "0", "0", "10", nil, time.Now()))
		mockDB.ExpectRollback()

		tx, err := mockDB.DB.Beginx()
		require.NoError(t, err)
		defer tx.Rollback()

		level, err := repo.LockStockTx(context.Background(), tx, key)
		require.NoError(t, err)
		assert.True(t, level.IsLow())
		assert.Equal(t, "10", level.ReorderLevel.String())
	})

	t.Run("unknown item", func(t *testing.T) {
		repo, mockDB := newLedgerRepo(t)

		mockDB.ExpectBegin()
		mockDB.ExpectExec("INSERT INTO location_stock").WillReturnResult(sqlmock.NewResult(0, 0))
		mockDB.ExpectQuery("FOR UPDATE").WillReturnError(sql.ErrNoRows)
		mockDB.ExpectRollback()

		tx, err := mockDB.DB.Beginx()
		require.NoError(t, err)
		defer tx.Rollback()

		_, err = repo.LockStockTx(context.Background(), tx, key)
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})

	t.Run("unknown location maps the foreign key error", func(t *testing.T) {
		repo, mockDB := newLedgerRepo(t)

		mockDB.ExpectBegin()
		mockDB.ExpectExec("INSERT INTO location_stock").
			WillReturnError(&pq.Error{Code: "23503", Constraint: "location_stock_location_id_fkey"})
		mockDB.ExpectRollback()

		tx, err := mockDB.DB.Beginx()
		require.NoError(t, err)
		defer tx.Rollback()

		_, err = repo.LockStockTx(context.Background(), tx, key)
		var appErr *errors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, "BAD_REQUEST", appErr.Code)
	})
}

func TestLedgerRepository_LockExistingStockTx(t *testing.T) {
	key := repository.StockKey{Catalog: repository.CatalogRawMaterials, LocationID: locationID, ItemID: itemID}

	repo, mockDB := newLedgerRepo(t)
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM raw_material_stock WHERE location_id = $1 AND item_id = $2 FOR UPDATE").
		WithArgs(locationID, itemID).
		WillReturnError(sql.ErrNoRows)
	mockDB.ExpectRollback()

	tx, err := mockDB.DB.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()

	level, err := repo.LockExistingStockTx(context.Background(), tx, key)
	require.NoError(t, err)
	assert.Nil(t, level, "no row is created")
}

func TestLedgerRepository_InsertMovementTx(t *testing.T) {
	unit := testutil.NewUnitTestSuite(t)
	db := unit.DB
	db.SetLockTimeout(2 * time.Second)
	repo := repository.NewLedgerRepository(db)

	orderID := "0b8f5a3c-1d2e-4f60-9a7b-8c9d0e1f2a3b"
	created := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)

	unit.MockDB.ExpectBegin()
	unit.MockDB.ExpectLockTimeout()
	unit.MockDB.ExpectQuery("INSERT INTO raw_material_movements").
		WithArgs(testutil.AnyUUID{}, itemID, locationID, "-175", "25", "production_consumption",
			"PRD202610160001", nil, orderID, "system").
		WillReturnRows(testutil.MockRows("created_at").AddRow(created))
	unit.MockDB.ExpectCommit()

	m := &repository.Movement{
		ItemID:            itemID,
		LocationID:        locationID,
		Quantity:          decimal.NewFromInt(-175),
		QuantityAfter:     decimal.NewFromInt(25),
		MovementType:      repository.MovementProductionConsumption,
		Reference:         "PRD202610160001",
		ProductionOrderID: strPtr(orderID),
		CreatedBy:         "system",
	}
	err := db.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		return repo.InsertMovementTx(context.Background(), tx, repository.CatalogRawMaterials, m)
	})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.True(t, created.Equal(m.CreatedAt))
}

func TestSequenceRepository_NextTx(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	repo := repository.NewSequenceRepository()

	day := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("INSERT INTO document_sequences").
		WithArgs("TRF", "2026-10-16").
		WillReturnRows(testutil.MockRows("last_value").AddRow(7))
	mockDB.ExpectRollback()

	tx, err := mockDB.DB.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()

	next, err := repo.NextTx(context.Background(), tx, "TRF", day)
	require.NoError(t, err)
	assert.Equal(t, 7, next)
	mockDB.ExpectationsWereMet(t)
}

func TestStockKey_String(t *testing.T) {
	key := repository.StockKey{Catalog: repository.CatalogRawMaterials, LocationID: "wh", ItemID: "oil"}
	assert.Equal(t, "raw_materials:oil@wh", key.String())
}
