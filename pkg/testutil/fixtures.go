package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// LocationFixture represents a seeded location
type LocationFixture struct {
	ID                string
	Code              string
	Name              string
	Type              string
	ParentWarehouseID *string
	IsActive          bool
	CanSell           bool
}

// ProductFixture represents a seeded product
type ProductFixture struct {
	ID              string
	SKU             string
	Name            string
	Cost            decimal.Decimal
	ReorderLevel    decimal.Decimal
	ReorderQuantity decimal.Decimal
	IsActive        bool
}

// RawMaterialFixture represents a seeded raw material
type RawMaterialFixture struct {
	ID           string
	Code         string
	Name         string
	Kind         string
	Unit         string
	ReorderLevel decimal.Decimal
	IsActive     bool
}

// IngredientFixture is one recipe line
type IngredientFixture struct {
	RawMaterialID string
	Percentage    decimal.Decimal
	IsPackaging   bool
}

// RecipeFixture represents a seeded recipe with its ingredients
type RecipeFixture struct {
	ID                    string
	ProductID             string
	Name                  string
	Type                  string
	OutputSizeML          decimal.Decimal
	OilPercentage         *decimal.Decimal
	CanProduceAtWarehouse bool
	CanProduceAtKiosk     bool
	Ingredients           []IngredientFixture
}

// FixtureFactory inserts catalog rows and opening stock directly with SQL so
// tests do not depend on the services under test to build their world.
type FixtureFactory struct {
	db       *sqlx.DB
	mu       sync.Mutex
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory(db *sqlx.DB) *FixtureFactory {
	return &FixtureFactory{db: db}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sequence++
	return f.sequence
}

// Warehouse seeds an active warehouse
func (f *FixtureFactory) Warehouse(t *testing.T, ctx context.Context) LocationFixture {
	t.Helper()
	seq := f.nextSeq()
	return f.Location(t, ctx, LocationFixture{
		Code:     fmt.Sprintf("WH-%03d", seq),
		Name:     fmt.Sprintf("Warehouse %d", seq),
		Type:     "warehouse",
		IsActive: true,
	})
}

// Kiosk seeds an active kiosk under the given warehouse
func (f *FixtureFactory) Kiosk(t *testing.T, ctx context.Context, warehouseID string) LocationFixture {
	t.Helper()
	seq := f.nextSeq()
	return f.Location(t, ctx, LocationFixture{
		Code:              fmt.Sprintf("KS-%03d", seq),
		Name:              fmt.Sprintf("Kiosk %d", seq),
		Type:              "kiosk",
		ParentWarehouseID: &warehouseID,
		IsActive:          true,
		CanSell:           true,
	})
}

// Location inserts loc as given, generating an id when empty
func (f *FixtureFactory) Location(t *testing.T, ctx context.Context, loc LocationFixture) LocationFixture {
	t.Helper()
	if loc.ID == "" {
		loc.ID = uuid.New().String()
	}

	_, err := f.db.ExecContext(ctx, `
		INSERT INTO locations (id, code, name, type, parent_warehouse_id, is_active, can_sell)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		loc.ID, loc.Code, loc.Name, loc.Type, loc.ParentWarehouseID, loc.IsActive, loc.CanSell)
	if err != nil {
		t.Fatalf("failed to seed location %s: %v", loc.Code, err)
	}
	return loc
}

// Product seeds an active product with reorder level 10 and quantity 50
func (f *FixtureFactory) Product(t *testing.T, ctx context.Context, opts ...func(*ProductFixture)) ProductFixture {
	t.Helper()
	seq := f.nextSeq()

	p := ProductFixture{
		ID:              uuid.New().String(),
		SKU:             fmt.Sprintf("SKU-%04d", seq),
		Name:            fmt.Sprintf("Test Product %d", seq),
		Cost:            decimal.NewFromInt(5),
		ReorderLevel:    decimal.NewFromInt(10),
		ReorderQuantity: decimal.NewFromInt(50),
		IsActive:        true,
	}
	for _, opt := range opts {
		opt(&p)
	}

	_, err := f.db.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, cost, reorder_level, reorder_quantity, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.SKU, p.Name, p.Cost, p.ReorderLevel, p.ReorderQuantity, p.IsActive)
	if err != nil {
		t.Fatalf("failed to seed product %s: %v", p.SKU, err)
	}
	return p
}

// WithReorderQuantity sets the product reorder quantity
func WithReorderQuantity(q int64) func(*ProductFixture) {
	return func(p *ProductFixture) {
		p.ReorderQuantity = decimal.NewFromInt(q)
	}
}

// WithReorderLevel sets the product reorder level
func WithReorderLevel(l int64) func(*ProductFixture) {
	return func(p *ProductFixture) {
		p.ReorderLevel = decimal.NewFromInt(l)
	}
}

// RawMaterial seeds an active raw material of the given kind. Packaging is
// counted in pieces, everything else in millilitres.
func (f *FixtureFactory) RawMaterial(t *testing.T, ctx context.Context, kind string) RawMaterialFixture {
	t.Helper()
	seq := f.nextSeq()

	unit := "ml"
	if kind == "packaging" {
		unit = "pcs"
	}
	m := RawMaterialFixture{
		ID:           uuid.New().String(),
		Code:         fmt.Sprintf("%s-%04d", kind, seq),
		Name:         fmt.Sprintf("Test %s %d", kind, seq),
		Kind:         kind,
		Unit:         unit,
		ReorderLevel: decimal.Zero,
		IsActive:     true,
	}

	_, err := f.db.ExecContext(ctx, `
		INSERT INTO raw_materials (id, code, name, kind, unit, reorder_level, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.Code, m.Name, m.Kind, m.Unit, m.ReorderLevel, m.IsActive)
	if err != nil {
		t.Fatalf("failed to seed raw material %s: %v", m.Code, err)
	}
	return m
}

// Recipe inserts r and its ingredients
func (f *FixtureFactory) Recipe(t *testing.T, ctx context.Context, r RecipeFixture) RecipeFixture {
	t.Helper()
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Name == "" {
		r.Name = fmt.Sprintf("Test Recipe %d", f.nextSeq())
	}

	var productID *string
	if r.ProductID != "" {
		productID = &r.ProductID
	}

	tx, err := f.db.BeginTxx(ctx, nil)
	if err != nil {
		t.Fatalf("failed to begin recipe fixture: %v", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO recipes (id, product_id, name, type, output_size_ml, oil_percentage,
			can_produce_at_warehouse, can_produce_at_kiosk)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, productID, r.Name, r.Type, r.OutputSizeML, r.OilPercentage,
		r.CanProduceAtWarehouse, r.CanProduceAtKiosk)
	if err != nil {
		t.Fatalf("failed to seed recipe %s: %v", r.Name, err)
	}

	for _, ing := range r.Ingredients {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO recipe_ingredients (recipe_id, raw_material_id, percentage, is_packaging)
			VALUES ($1, $2, $3, $4)`,
			r.ID, ing.RawMaterialID, ing.Percentage, ing.IsPackaging)
		if err != nil {
			t.Fatalf("failed to seed recipe ingredient: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("failed to commit recipe fixture: %v", err)
	}
	return r
}

// ProductStock seeds opening product stock as a purchase movement
func (f *FixtureFactory) ProductStock(t *testing.T, ctx context.Context, locationID, productID string, qty int64) {
	t.Helper()
	f.stock(t, ctx, "location_stock", "stock_movements", locationID, productID, decimal.NewFromInt(qty))
}

// MaterialStock seeds opening raw material stock as a purchase movement
func (f *FixtureFactory) MaterialStock(t *testing.T, ctx context.Context, locationID, materialID string, qty decimal.Decimal) {
	t.Helper()
	f.stock(t, ctx, "raw_material_stock", "raw_material_movements", locationID, materialID, qty)
}

// stock writes the row and its movement together so that the cached quantity
// always equals the movement sum.
func (f *FixtureFactory) stock(t *testing.T, ctx context.Context, stockTable, movementTable, locationID, itemID string, qty decimal.Decimal) {
	t.Helper()

	tx, err := f.db.BeginTxx(ctx, nil)
	if err != nil {
		t.Fatalf("failed to begin stock fixture: %v", err)
	}
	defer tx.Rollback()

	var after decimal.Decimal
	err = tx.GetContext(ctx, &after, `
		INSERT INTO `+stockTable+` (location_id, item_id, quantity, last_movement_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (location_id, item_id)
		DO UPDATE SET quantity = `+stockTable+`.quantity + EXCLUDED.quantity, last_movement_at = NOW()
		RETURNING quantity`,
		locationID, itemID, qty)
	if err != nil {
		t.Fatalf("failed to seed stock: %v", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO `+movementTable+` (item_id, location_id, quantity, quantity_after, movement_type, reference, created_by)
		VALUES ($1, $2, $3, $4, 'purchase', 'fixture', 'fixture')`,
		itemID, locationID, qty, after)
	if err != nil {
		t.Fatalf("failed to seed stock movement: %v", err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("failed to commit stock fixture: %v", err)
	}
}

// DailySale seeds one day of sales history
func (f *FixtureFactory) DailySale(t *testing.T, ctx context.Context, productID, locationID string, day string, qty int64) {
	t.Helper()
	_, err := f.db.ExecContext(ctx, `
		INSERT INTO daily_sales (product_id, location_id, sale_date, quantity_sold)
		VALUES ($1, $2, $3, $4)`,
		productID, locationID, day, decimal.NewFromInt(qty))
	if err != nil {
		t.Fatalf("failed to seed daily sale: %v", err)
	}
}
