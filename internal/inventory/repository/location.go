package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/scentflow/scentflow-backend/pkg/database"
	"github.com/scentflow/scentflow-backend/pkg/errors"
)

// LocationType distinguishes the central warehouse from the kiosks it supplies.
type LocationType string

const (
	LocationWarehouse LocationType = "warehouse"
	LocationKiosk     LocationType = "kiosk"
)

// Valid reports whether t is a known location type.
func (t LocationType) Valid() bool {
	return t == LocationWarehouse || t == LocationKiosk
}

// Location is a stock-holding site.
type Location struct {
	ID                string       `db:"id" json:"id"`
	Code              string       `db:"code" json:"code"`
	Name              string       `db:"name" json:"name"`
	Type              LocationType `db:"type" json:"type"`
	ParentWarehouseID *string      `db:"parent_warehouse_id" json:"parent_warehouse_id,omitempty"`
	IsActive          bool         `db:"is_active" json:"is_active"`
	CanSell           bool         `db:"can_sell" json:"can_sell"`
	CreatedAt         time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at" json:"updated_at"`
}

// IsWarehouse reports whether the location is a warehouse.
func (l *Location) IsWarehouse() bool {
	return l.Type == LocationWarehouse
}

// LocationRepository handles location persistence
type LocationRepository struct {
	db *database.DB
}

// NewLocationRepository creates a new location repository
func NewLocationRepository(db *database.DB) *LocationRepository {
	return &LocationRepository{db: db}
}

const locationColumns = `id, code, name, type, parent_warehouse_id, is_active, can_sell, created_at, updated_at`

// Create inserts a location
func (r *LocationRepository) Create(ctx context.Context, loc *Location) error {
	if loc.ID == "" {
		loc.ID = uuid.New().String()
	}

	query := `
		INSERT INTO locations (id, code, name, type, parent_warehouse_id, is_active, can_sell)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		loc.ID, loc.Code, loc.Name, loc.Type, loc.ParentWarehouseID, loc.IsActive, loc.CanSell,
	).Scan(&loc.CreatedAt, &loc.UpdatedAt)
	if appErr := database.MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}

// GetByID gets a location by ID
func (r *LocationRepository) GetByID(ctx context.Context, id string) (*Location, error) {
	return r.get(ctx, r.db, id)
}

// GetByIDTx reads a location inside a caller-owned transaction.
func (r *LocationRepository) GetByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*Location, error) {
	return r.get(ctx, tx, id)
}

func (r *LocationRepository) get(ctx context.Context, q sqlx.QueryerContext, id string) (*Location, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotFound("location")
	}

	var loc Location
	query := `SELECT ` + locationColumns + ` FROM locations WHERE id = $1`
	if err := sqlx.GetContext(ctx, q, &loc, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("location")
		}
		return nil, err
	}
	return &loc, nil
}

// List lists locations ordered by type then code.
func (r *LocationRepository) List(ctx context.Context, activeOnly bool) ([]*Location, error) {
	var locations []*Location
	query := `SELECT ` + locationColumns + ` FROM locations`
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY type DESC, code`
	if err := r.db.SelectContext(ctx, &locations, query); err != nil {
		return nil, err
	}
	return locations, nil
}

// Deactivate soft-deactivates a location. Stock rows are kept.
func (r *LocationRepository) Deactivate(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.NotFound("location")
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE locations SET is_active = false, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("location")
	}
	return nil
}
