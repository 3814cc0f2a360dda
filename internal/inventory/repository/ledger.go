package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/scentflow/scentflow-backend/pkg/database"
	"github.com/scentflow/scentflow-backend/pkg/errors"
)

// Catalog selects which item ledger an operation targets. Products and raw
// materials share one ledger implementation over separate tables.
type Catalog string

const (
	CatalogProducts     Catalog = "products"
	CatalogRawMaterials Catalog = "raw_materials"
)

// Valid reports whether c names a known catalog.
func (c Catalog) Valid() bool {
	return c == CatalogProducts || c == CatalogRawMaterials
}

type ledgerTables struct {
	stock     string
	movements string
	items     string
}

func (c Catalog) tables() ledgerTables {
	if c == CatalogRawMaterials {
		return ledgerTables{stock: "raw_material_stock", movements: "raw_material_movements", items: "raw_materials"}
	}
	return ledgerTables{stock: "location_stock", movements: "stock_movements", items: "products"}
}

// MovementType is the reason recorded with a ledger movement.
type MovementType string

const (
	MovementPurchase              MovementType = "purchase"
	MovementSale                  MovementType = "sale"
	MovementAdjustment            MovementType = "adjustment"
	MovementReturn                MovementType = "return"
	MovementDamage                MovementType = "damage"
	MovementTransferIn            MovementType = "transfer_in"
	MovementTransferOut           MovementType = "transfer_out"
	MovementProductionConsumption MovementType = "production_consumption"
	MovementProductionOutput      MovementType = "production_output"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementPurchase, MovementSale, MovementAdjustment, MovementReturn, MovementDamage,
		MovementTransferIn, MovementTransferOut, MovementProductionConsumption, MovementProductionOutput:
		return true
	}
	return false
}

// StockKey identifies one stock row.
type StockKey struct {
	Catalog    Catalog `json:"catalog"`
	LocationID string  `json:"location_id"`
	ItemID     string  `json:"item_id"`
}

func (k StockKey) String() string {
	return fmt.Sprintf("%s:%s@%s", k.Catalog, k.ItemID, k.LocationID)
}

// StockLevel is the cached balance of one item at one location.
type StockLevel struct {
	LocationID       string          `db:"location_id" json:"location_id"`
	ItemID           string          `db:"item_id" json:"item_id"`
	Quantity         decimal.Decimal `db:"quantity" json:"quantity"`
	ReservedQuantity decimal.Decimal `db:"reserved_quantity" json:"reserved_quantity"`
	ReorderLevel     decimal.Decimal `db:"reorder_level" json:"reorder_level"`
	LastMovementAt   *time.Time      `db:"last_movement_at" json:"last_movement_at,omitempty"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// Available is quantity minus reserved.
func (s *StockLevel) Available() decimal.Decimal {
	return s.Quantity.Sub(s.ReservedQuantity)
}

// IsLow reports whether available stock is at or below the reorder level.
func (s *StockLevel) IsLow() bool {
	return s.Available().LessThanOrEqual(s.ReorderLevel)
}

// StockLevelView is a stock row joined with its item.
type StockLevelView struct {
	StockLevel
	ItemCode          string          `db:"item_code" json:"item_code"`
	ItemName          string          `db:"item_name" json:"item_name"`
	AvailableQuantity decimal.Decimal `db:"available" json:"available"`
}

// Movement is one immutable ledger entry. Quantity is signed.
type Movement struct {
	ID                string          `db:"id" json:"id"`
	ItemID            string          `db:"item_id" json:"item_id"`
	LocationID        string          `db:"location_id" json:"location_id"`
	Quantity          decimal.Decimal `db:"quantity" json:"quantity"`
	QuantityAfter     decimal.Decimal `db:"quantity_after" json:"quantity_after"`
	MovementType      MovementType    `db:"movement_type" json:"movement_type"`
	Reference         string          `db:"reference" json:"reference"`
	TransferID        *string         `db:"transfer_id" json:"transfer_id,omitempty"`
	ProductionOrderID *string         `db:"production_order_id" json:"production_order_id,omitempty"`
	CreatedBy         string          `db:"created_by" json:"created_by"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}

// LedgerRepository persists stock rows and movements for both catalogs.
type LedgerRepository struct {
	db *database.DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

const stockColumns = `location_id, item_id, quantity, reserved_quantity, reorder_level, last_movement_at, updated_at`

// LockStockTx creates the stock row if needed and locks it FOR UPDATE. A new
// row takes its reorder level from the item. Returns NotFound when the item
// does not exist.
func (r *LedgerRepository) LockStockTx(ctx context.Context, tx *sqlx.Tx, key StockKey) (*StockLevel, error) {
	if _, err := uuid.Parse(key.ItemID); err != nil {
		return nil, errors.NotFound(itemNoun(key.Catalog))
	}
	t := key.Catalog.tables()

	ensure := fmt.Sprintf(`
		INSERT INTO %s (location_id, item_id, reorder_level)
		SELECT $1, id, reorder_level FROM %s WHERE id = $2
		ON CONFLICT (location_id, item_id) DO NOTHING
	`, t.stock, t.items)
	if _, err := tx.ExecContext(ctx, ensure, key.LocationID, key.ItemID); err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return nil, appErr
		}
		return nil, err
	}

	level, err := r.LockExistingStockTx(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	if level == nil {
		return nil, errors.NotFound(itemNoun(key.Catalog))
	}
	return level, nil
}

// LockExistingStockTx locks the stock row FOR UPDATE without creating it. It
// returns nil, nil when no row exists yet.
func (r *LedgerRepository) LockExistingStockTx(ctx context.Context, tx *sqlx.Tx, key StockKey) (*StockLevel, error) {
	var level StockLevel
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE location_id = $1 AND item_id = $2 FOR UPDATE`,
		stockColumns, key.Catalog.tables().stock)
	if err := tx.GetContext(ctx, &level, query, key.LocationID, key.ItemID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if appErr := database.MapPQError(err); appErr != nil {
			return nil, appErr
		}
		return nil, err
	}
	return &level, nil
}

// UpdateStockTx writes quantity and reserved quantity of a locked row.
// touched marks a quantity change and advances last_movement_at.
func (r *LedgerRepository) UpdateStockTx(ctx context.Context, tx *sqlx.Tx, key StockKey, level *StockLevel, touched bool) error {
	t := key.Catalog.tables()
	query := fmt.Sprintf(`
		UPDATE %s SET
			quantity = $3,
			reserved_quantity = $4,
			last_movement_at = CASE WHEN $5 THEN NOW() ELSE last_movement_at END,
			updated_at = NOW()
		WHERE location_id = $1 AND item_id = $2
		RETURNING last_movement_at, updated_at
	`, t.stock)

	err := tx.QueryRowxContext(ctx, query,
		key.LocationID, key.ItemID, level.Quantity, level.ReservedQuantity, touched,
	).Scan(&level.LastMovementAt, &level.UpdatedAt)
	if appErr := database.MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}

// InsertMovementTx appends a movement.
func (r *LedgerRepository) InsertMovementTx(ctx context.Context, tx *sqlx.Tx, catalog Catalog, m *Movement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	t := catalog.tables()

	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, item_id, location_id, quantity, quantity_after, movement_type,
			reference, transfer_id, production_order_id, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`, t.movements)

	return tx.QueryRowxContext(ctx, query,
		m.ID, m.ItemID, m.LocationID, m.Quantity, m.QuantityAfter, m.MovementType,
		m.Reference, m.TransferID, m.ProductionOrderID, m.CreatedBy,
	).Scan(&m.CreatedAt)
}

// HasMovementTx reports whether a movement with the reference and type exists.
func (r *LedgerRepository) HasMovementTx(ctx context.Context, tx *sqlx.Tx, catalog Catalog, reference string, movementType MovementType) (bool, error) {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE reference = $1 AND movement_type = $2)`, catalog.tables().movements)
	if err := tx.GetContext(ctx, &exists, query, reference, movementType); err != nil {
		return false, err
	}
	return exists, nil
}

// GetStock reads a stock row without locking. A missing row yields a zero
// level so that callers see "no stock yet" rather than an error.
func (r *LedgerRepository) GetStock(ctx context.Context, key StockKey) (*StockLevel, error) {
	zero := &StockLevel{LocationID: key.LocationID, ItemID: key.ItemID}
	if _, err := uuid.Parse(key.ItemID); err != nil {
		return zero, nil
	}
	if _, err := uuid.Parse(key.LocationID); err != nil {
		return zero, nil
	}

	var level StockLevel
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE location_id = $1 AND item_id = $2`, stockColumns, key.Catalog.tables().stock)
	if err := r.db.GetContext(ctx, &level, query, key.LocationID, key.ItemID); err != nil {
		if err == sql.ErrNoRows {
			return zero, nil
		}
		return nil, err
	}
	return &level, nil
}

// ListStock lists the stock rows of one location joined with item names.
func (r *LedgerRepository) ListStock(ctx context.Context, catalog Catalog, locationID string) ([]*StockLevelView, error) {
	return r.listStock(ctx, catalog, locationID, false)
}

// LowStock lists rows whose available quantity is at or below the reorder level.
func (r *LedgerRepository) LowStock(ctx context.Context, catalog Catalog, locationID string) ([]*StockLevelView, error) {
	return r.listStock(ctx, catalog, locationID, true)
}

func (r *LedgerRepository) listStock(ctx context.Context, catalog Catalog, locationID string, lowOnly bool) ([]*StockLevelView, error) {
	t := catalog.tables()
	codeColumn := "i.sku"
	if catalog == CatalogRawMaterials {
		codeColumn = "i.code"
	}

	query := fmt.Sprintf(`
		SELECT s.location_id, s.item_id, s.quantity, s.reserved_quantity, s.reorder_level,
			s.last_movement_at, s.updated_at,
			%s AS item_code, i.name AS item_name,
			s.quantity - s.reserved_quantity AS available
		FROM %s s
		JOIN %s i ON i.id = s.item_id
		WHERE s.location_id = $1
	`, codeColumn, t.stock, t.items)
	if lowOnly {
		query += ` AND i.is_active = true AND s.quantity - s.reserved_quantity <= s.reorder_level`
	}
	query += ` ORDER BY i.name`

	var levels []*StockLevelView
	if err := r.db.SelectContext(ctx, &levels, query, locationID); err != nil {
		return nil, err
	}
	return levels, nil
}

// ListMovements lists the latest movements of one stock row, newest first.
func (r *LedgerRepository) ListMovements(ctx context.Context, key StockKey, limit int) ([]*Movement, error) {
	query := fmt.Sprintf(`
		SELECT * FROM %s
		WHERE location_id = $1 AND item_id = $2
		ORDER BY created_at DESC, id
		LIMIT $3
	`, key.Catalog.tables().movements)

	var movements []*Movement
	if err := r.db.SelectContext(ctx, &movements, query, key.LocationID, key.ItemID, limit); err != nil {
		return nil, err
	}
	return movements, nil
}

// MovementsByReference lists every movement recorded against a document number.
func (r *LedgerRepository) MovementsByReference(ctx context.Context, catalog Catalog, reference string) ([]*Movement, error) {
	query := fmt.Sprintf(`SELECT * FROM %s WHERE reference = $1 ORDER BY created_at, id`, catalog.tables().movements)

	var movements []*Movement
	if err := r.db.SelectContext(ctx, &movements, query, reference); err != nil {
		return nil, err
	}
	return movements, nil
}

// SumMovements returns the sum of all signed movement quantities of one row.
func (r *LedgerRepository) SumMovements(ctx context.Context, key StockKey) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	query := fmt.Sprintf(`SELECT SUM(quantity) FROM %s WHERE location_id = $1 AND item_id = $2`, key.Catalog.tables().movements)
	if err := r.db.GetContext(ctx, &sum, query, key.LocationID, key.ItemID); err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

// ItemName returns the display name of an item, or "" when it does not exist.
func (r *LedgerRepository) ItemName(ctx context.Context, catalog Catalog, itemID string) (string, error) {
	return r.itemName(ctx, r.db, catalog, itemID)
}

// ItemNameTx is ItemName inside a caller-owned transaction.
func (r *LedgerRepository) ItemNameTx(ctx context.Context, tx *sqlx.Tx, catalog Catalog, itemID string) (string, error) {
	return r.itemName(ctx, tx, catalog, itemID)
}

func (r *LedgerRepository) itemName(ctx context.Context, q sqlx.QueryerContext, catalog Catalog, itemID string) (string, error) {
	var name string
	query := fmt.Sprintf(`SELECT name FROM %s WHERE id = $1`, catalog.tables().items)
	if err := sqlx.GetContext(ctx, q, &name, query, itemID); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return name, nil
}

func itemNoun(c Catalog) string {
	if c == CatalogRawMaterials {
		return "raw material"
	}
	return "product"
}
