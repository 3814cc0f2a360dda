package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/scentflow/scentflow-backend/pkg/database"
	"github.com/scentflow/scentflow-backend/pkg/errors"
)

// MaterialKind classifies a raw material for requirement calculation. It is
// assigned when the material is created and never derived from its code.
type MaterialKind string

const (
	MaterialOil       MaterialKind = "oil"
	MaterialEthanol   MaterialKind = "ethanol"
	MaterialPackaging MaterialKind = "packaging"
)

// Valid reports whether k is a known kind.
func (k MaterialKind) Valid() bool {
	switch k {
	case MaterialOil, MaterialEthanol, MaterialPackaging:
		return true
	}
	return false
}

// Unit is the unit a raw material is counted in. Packaging is counted in pieces.
func (k MaterialKind) Unit() string {
	if k == MaterialPackaging {
		return "pcs"
	}
	return "ml"
}

// Product is a sellable finished good.
type Product struct {
	ID              string          `db:"id" json:"id"`
	SKU             string          `db:"sku" json:"sku"`
	Name            string          `db:"name" json:"name"`
	Cost            decimal.Decimal `db:"cost" json:"cost"`
	ReorderLevel    decimal.Decimal `db:"reorder_level" json:"reorder_level"`
	ReorderQuantity decimal.Decimal `db:"reorder_quantity" json:"reorder_quantity"`
	IsActive        bool            `db:"is_active" json:"is_active"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// RawMaterial is a production input: an oil, ethanol or packaging piece.
type RawMaterial struct {
	ID              string          `db:"id" json:"id"`
	Code            string          `db:"code" json:"code"`
	Name            string          `db:"name" json:"name"`
	Kind            MaterialKind    `db:"kind" json:"kind"`
	Unit            string          `db:"unit" json:"unit"`
	Cost            decimal.Decimal `db:"cost" json:"cost"`
	ReorderLevel    decimal.Decimal `db:"reorder_level" json:"reorder_level"`
	ReorderQuantity decimal.Decimal `db:"reorder_quantity" json:"reorder_quantity"`
	IsActive        bool            `db:"is_active" json:"is_active"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// ProductRepository handles product persistence
type ProductRepository struct {
	db *database.DB
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *database.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

const productColumns = `id, sku, name, cost, reorder_level, reorder_quantity, is_active, created_at, updated_at`

// Create inserts a product
func (r *ProductRepository) Create(ctx context.Context, p *Product) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	query := `
		INSERT INTO products (id, sku, name, cost, reorder_level, reorder_quantity, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		p.ID, p.SKU, p.Name, p.Cost, p.ReorderLevel, p.ReorderQuantity, p.IsActive,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if appErr := database.MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}

// GetByID gets a product by ID
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*Product, error) {
	return r.get(ctx, r.db, id)
}

// GetByIDTx reads a product inside a caller-owned transaction.
func (r *ProductRepository) GetByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*Product, error) {
	return r.get(ctx, tx, id)
}

func (r *ProductRepository) get(ctx context.Context, q sqlx.QueryerContext, id string) (*Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotFound("product")
	}

	var p Product
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	if err := sqlx.GetContext(ctx, q, &p, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("product")
		}
		return nil, err
	}
	return &p, nil
}

// GetByIDs returns the products with the given ids keyed by id. Unknown ids are omitted.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*Product, error) {
	result := make(map[string]*Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var products []*Product
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1::uuid[])`
	if err := r.db.SelectContext(ctx, &products, query, pq.Array(ids)); err != nil {
		return nil, err
	}
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}

// List lists products with pagination
func (r *ProductRepository) List(ctx context.Context, page, perPage int, activeOnly bool) ([]*Product, int64, error) {
	where := ""
	if activeOnly {
		where = ` WHERE is_active = true`
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM products`+where); err != nil {
		return nil, 0, err
	}

	var products []*Product
	query := `SELECT ` + productColumns + ` FROM products` + where + ` ORDER BY name LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &products, query, perPage, (page-1)*perPage); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// RawMaterialRepository handles raw material persistence
type RawMaterialRepository struct {
	db *database.DB
}

// NewRawMaterialRepository creates a new raw material repository
func NewRawMaterialRepository(db *database.DB) *RawMaterialRepository {
	return &RawMaterialRepository{db: db}
}

const rawMaterialColumns = `id, code, name, kind, unit, cost, reorder_level, reorder_quantity, is_active, created_at, updated_at`

// Create inserts a raw material
func (r *RawMaterialRepository) Create(ctx context.Context, m *RawMaterial) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Unit == "" {
		m.Unit = m.Kind.Unit()
	}

	query := `
		INSERT INTO raw_materials (id, code, name, kind, unit, cost, reorder_level, reorder_quantity, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		m.ID, m.Code, m.Name, m.Kind, m.Unit, m.Cost, m.ReorderLevel, m.ReorderQuantity, m.IsActive,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if appErr := database.MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}

// GetByID gets a raw material by ID
func (r *RawMaterialRepository) GetByID(ctx context.Context, id string) (*RawMaterial, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotFound("raw material")
	}

	var m RawMaterial
	query := `SELECT ` + rawMaterialColumns + ` FROM raw_materials WHERE id = $1`
	if err := r.db.GetContext(ctx, &m, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("raw material")
		}
		return nil, err
	}
	return &m, nil
}

// GetByIDs returns the raw materials with the given ids keyed by id.
func (r *RawMaterialRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*RawMaterial, error) {
	result := make(map[string]*RawMaterial, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var materials []*RawMaterial
	query := `SELECT ` + rawMaterialColumns + ` FROM raw_materials WHERE id = ANY($1::uuid[])`
	if err := r.db.SelectContext(ctx, &materials, query, pq.Array(ids)); err != nil {
		return nil, err
	}
	for _, m := range materials {
		result[m.ID] = m
	}
	return result, nil
}

// List lists raw materials, optionally filtered by kind.
func (r *RawMaterialRepository) List(ctx context.Context, kind MaterialKind, activeOnly bool) ([]*RawMaterial, error) {
	query := `SELECT ` + rawMaterialColumns + ` FROM raw_materials WHERE ($1 = '' OR kind = $1)`
	if activeOnly {
		query += ` AND is_active = true`
	}
	query += ` ORDER BY kind, name`

	var materials []*RawMaterial
	if err := r.db.SelectContext(ctx, &materials, query, string(kind)); err != nil {
		return nil, err
	}
	return materials, nil
}

// DefaultEthanol returns the first active ethanol material by code, or nil
// when the catalog has none.
func (r *RawMaterialRepository) DefaultEthanol(ctx context.Context) (*RawMaterial, error) {
	var m RawMaterial
	query := `
		SELECT ` + rawMaterialColumns + ` FROM raw_materials
		WHERE kind = 'ethanol' AND is_active = true
		ORDER BY code
		LIMIT 1
	`
	if err := r.db.GetContext(ctx, &m, query); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}
