package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/scentflow/scentflow-backend/pkg/database"
	"github.com/scentflow/scentflow-backend/pkg/errors"
)

// RecipeType decides how a recipe's oil volume is derived.
type RecipeType string

const (
	RecipeSingleOil RecipeType = "single_oil"
	RecipeBlended   RecipeType = "blended"
	RecipePerfume   RecipeType = "perfume"
)

// Valid reports whether t is a known recipe type.
func (t RecipeType) Valid() bool {
	switch t {
	case RecipeSingleOil, RecipeBlended, RecipePerfume:
		return true
	}
	return false
}

// Recipe describes how one unit of a product is made.
type Recipe struct {
	ID                    string              `db:"id" json:"id"`
	ProductID             *string             `db:"product_id" json:"product_id,omitempty"`
	Name                  string              `db:"name" json:"name"`
	Type                  RecipeType          `db:"type" json:"type"`
	OutputSizeML          decimal.Decimal     `db:"output_size_ml" json:"output_size_ml"`
	OilPercentage         decimal.NullDecimal `db:"oil_percentage" json:"oil_percentage"`
	CanProduceAtWarehouse bool                `db:"can_produce_at_warehouse" json:"can_produce_at_warehouse"`
	CanProduceAtKiosk     bool                `db:"can_produce_at_kiosk" json:"can_produce_at_kiosk"`
	IsActive              bool                `db:"is_active" json:"is_active"`
	CreatedAt             time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time           `db:"updated_at" json:"updated_at"`

	Ingredients []*RecipeIngredient `db:"-" json:"ingredients"`
}

// CanProduceAt reports whether the recipe may be produced at a location of type t.
func (r *Recipe) CanProduceAt(t LocationType) bool {
	if t == LocationKiosk {
		return r.CanProduceAtKiosk
	}
	return r.CanProduceAtWarehouse
}

// RecipeIngredient is one raw material line of a recipe, joined with the
// material's kind so requirement calculation needs no further lookup.
type RecipeIngredient struct {
	ID            string          `db:"id" json:"id"`
	RecipeID      string          `db:"recipe_id" json:"recipe_id"`
	RawMaterialID string          `db:"raw_material_id" json:"raw_material_id"`
	Percentage    decimal.Decimal `db:"percentage" json:"percentage"`
	IsPackaging   bool            `db:"is_packaging" json:"is_packaging"`
	MaterialName  string          `db:"material_name" json:"material_name"`
	MaterialKind  MaterialKind    `db:"material_kind" json:"material_kind"`
	MaterialUnit  string          `db:"material_unit" json:"material_unit"`
}

// RecipeRepository handles recipe persistence
type RecipeRepository struct {
	db *database.DB
}

// NewRecipeRepository creates a new recipe repository
func NewRecipeRepository(db *database.DB) *RecipeRepository {
	return &RecipeRepository{db: db}
}

const recipeColumns = `id, product_id, name, type, output_size_ml, oil_percentage,
	can_produce_at_warehouse, can_produce_at_kiosk, is_active, created_at, updated_at`

// Create inserts a recipe and its ingredients in one transaction.
func (r *RecipeRepository) Create(ctx context.Context, recipe *Recipe) error {
	if recipe.ID == "" {
		recipe.ID = uuid.New().String()
	}

	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO recipes (
				id, product_id, name, type, output_size_ml, oil_percentage,
				can_produce_at_warehouse, can_produce_at_kiosk, is_active
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING created_at, updated_at
		`
		if err := tx.QueryRowxContext(ctx, query,
			recipe.ID, recipe.ProductID, recipe.Name, recipe.Type, recipe.OutputSizeML, recipe.OilPercentage,
			recipe.CanProduceAtWarehouse, recipe.CanProduceAtKiosk, recipe.IsActive,
		).Scan(&recipe.CreatedAt, &recipe.UpdatedAt); err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}

		for _, ing := range recipe.Ingredients {
			if ing.ID == "" {
				ing.ID = uuid.New().String()
			}
			ing.RecipeID = recipe.ID
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO recipe_ingredients (id, recipe_id, raw_material_id, percentage, is_packaging)
				VALUES ($1, $2, $3, $4, $5)
			`, ing.ID, ing.RecipeID, ing.RawMaterialID, ing.Percentage, ing.IsPackaging); err != nil {
				if appErr := database.MapPQError(err); appErr != nil {
					return appErr
				}
				return err
			}
		}
		return nil
	})
}

// GetByID returns a recipe with its ingredients.
func (r *RecipeRepository) GetByID(ctx context.Context, id string) (*Recipe, error) {
	return r.load(ctx, r.db, id)
}

// GetByIDTx reads a recipe with its ingredients inside a caller-owned transaction.
func (r *RecipeRepository) GetByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*Recipe, error) {
	return r.load(ctx, tx, id)
}

func (r *RecipeRepository) load(ctx context.Context, q sqlx.QueryerContext, id string) (*Recipe, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotFound("recipe")
	}

	var recipe Recipe
	if err := sqlx.GetContext(ctx, q, &recipe, `SELECT `+recipeColumns+` FROM recipes WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("recipe")
		}
		return nil, err
	}

	query := `
		SELECT ri.id, ri.recipe_id, ri.raw_material_id, ri.percentage, ri.is_packaging,
			m.name AS material_name, m.kind AS material_kind, m.unit AS material_unit
		FROM recipe_ingredients ri
		JOIN raw_materials m ON m.id = ri.raw_material_id
		WHERE ri.recipe_id = $1
		ORDER BY ri.is_packaging, m.kind, ri.raw_material_id
	`
	if err := sqlx.SelectContext(ctx, q, &recipe.Ingredients, query, id); err != nil {
		return nil, err
	}
	return &recipe, nil
}

// List lists recipes, optionally only those of one product. Ingredients are not loaded.
func (r *RecipeRepository) List(ctx context.Context, productID string, activeOnly bool) ([]*Recipe, error) {
	query := `SELECT ` + recipeColumns + ` FROM recipes WHERE ($1 = '' OR product_id::text = $1)`
	if activeOnly {
		query += ` AND is_active = true`
	}
	query += ` ORDER BY name`

	var recipes []*Recipe
	if err := r.db.SelectContext(ctx, &recipes, query, productID); err != nil {
		return nil, err
	}
	return recipes, nil
}
