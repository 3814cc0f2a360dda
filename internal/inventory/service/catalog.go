package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/scentflow/scentflow-backend/internal/inventory/repository"
	"github.com/scentflow/scentflow-backend/pkg/config"
	"github.com/scentflow/scentflow-backend/pkg/errors"
	"github.com/scentflow/scentflow-backend/pkg/logger"
)

// percentageTolerance is how far blended oil percentages may drift from 100.
var percentageTolerance = decimal.RequireFromString("0.01")

// CreateLocationInput registers a warehouse or kiosk.
type CreateLocationInput struct {
	Code              string                  `json:"code" validate:"required,max=20"`
	Name              string                  `json:"name" validate:"required,max=200"`
	Type              repository.LocationType `json:"type" validate:"required,oneof=warehouse kiosk"`
	ParentWarehouseID *string                 `json:"parent_warehouse_id,omitempty" validate:"omitempty,uuid"`
	CanSell           *bool                   `json:"can_sell,omitempty"`
}

// CreateProductInput registers a sellable product.
type CreateProductInput struct {
	SKU             string           `json:"sku" validate:"required,max=50"`
	Name            string           `json:"name" validate:"required,max=200"`
	Cost            decimal.Decimal  `json:"cost" validate:"dnonneg"`
	ReorderLevel    *decimal.Decimal `json:"reorder_level,omitempty"`
	ReorderQuantity *decimal.Decimal `json:"reorder_quantity,omitempty"`
}

// CreateRawMaterialInput registers a production input.
type CreateRawMaterialInput struct {
	Code            string                  `json:"code" validate:"required,max=50"`
	Name            string                  `json:"name" validate:"required,max=200"`
	Kind            repository.MaterialKind `json:"kind" validate:"required,oneof=oil ethanol packaging"`
	Cost            decimal.Decimal         `json:"cost" validate:"dnonneg"`
	ReorderLevel    *decimal.Decimal        `json:"reorder_level,omitempty"`
	ReorderQuantity *decimal.Decimal        `json:"reorder_quantity,omitempty"`
}

// RecipeIngredientInput is one material line of a new recipe.
type RecipeIngredientInput struct {
	RawMaterialID string          `json:"raw_material_id" validate:"required,uuid"`
	Percentage    decimal.Decimal `json:"percentage" validate:"dnonneg"`
	IsPackaging   bool            `json:"is_packaging"`
}

// CreateRecipeInput defines how a product is made.
type CreateRecipeInput struct {
	ProductID             *string                 `json:"product_id,omitempty" validate:"omitempty,uuid"`
	Name                  string                  `json:"name" validate:"required,max=200"`
	Type                  repository.RecipeType   `json:"type" validate:"required,oneof=single_oil blended perfume"`
	OutputSizeML          decimal.Decimal         `json:"output_size_ml" validate:"dpos"`
	OilPercentage         *decimal.Decimal        `json:"oil_percentage,omitempty"`
	CanProduceAtWarehouse *bool                   `json:"can_produce_at_warehouse,omitempty"`
	CanProduceAtKiosk     *bool                   `json:"can_produce_at_kiosk,omitempty"`
	Ingredients           []RecipeIngredientInput `json:"ingredients" validate:"required,min=1,dive"`
}

// CatalogService manages locations, products, raw materials and recipes.
type CatalogService struct {
	locationRepo *repository.LocationRepository
	productRepo  *repository.ProductRepository
	materialRepo *repository.RawMaterialRepository
	recipeRepo   *repository.RecipeRepository
	stock        config.StockConfig
	logger       *logger.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(
	locationRepo *repository.LocationRepository,
	productRepo *repository.ProductRepository,
	materialRepo *repository.RawMaterialRepository,
	recipeRepo *repository.RecipeRepository,
	stock config.StockConfig,
	log *logger.Logger,
) *CatalogService {
	return &CatalogService{
		locationRepo: locationRepo,
		productRepo:  productRepo,
		materialRepo: materialRepo,
		recipeRepo:   recipeRepo,
		stock:        stock,
		logger:       log.WithComponent("catalog"),
	}
}

// Location operations

// CreateLocation registers a location. Kiosks must name an active parent warehouse.
func (s *CatalogService) CreateLocation(ctx context.Context, in CreateLocationInput) (*repository.Location, error) {
	if !in.Type.Valid() {
		return nil, errors.InvalidField("type", "must be warehouse or kiosk")
	}

	loc := &repository.Location{
		Code:     in.Code,
		Name:     in.Name,
		Type:     in.Type,
		IsActive: true,
		CanSell:  in.Type == repository.LocationKiosk,
	}
	if in.CanSell != nil {
		loc.CanSell = *in.CanSell
	}

	switch in.Type {
	case repository.LocationKiosk:
		if in.ParentWarehouseID == nil {
			return nil, errors.InvalidField("parent_warehouse_id", "is required for kiosks")
		}
		parent, err := s.locationRepo.GetByID(ctx, *in.ParentWarehouseID)
		if err != nil {
			return nil, err
		}
		if !parent.IsWarehouse() || !parent.IsActive {
			return nil, errors.InvalidLocation("parent must be an active warehouse")
		}
		loc.ParentWarehouseID = in.ParentWarehouseID
	case repository.LocationWarehouse:
		if in.ParentWarehouseID != nil {
			return nil, errors.InvalidField("parent_warehouse_id", "warehouses have no parent")
		}
	}

	if err := s.locationRepo.Create(ctx, loc); err != nil {
		return nil, err
	}
	s.logger.Info().Str("location_id", loc.ID).Str("code", loc.Code).Str("type", string(loc.Type)).Msg("location created")
	return loc, nil
}

// GetLocation gets a location by ID
func (s *CatalogService) GetLocation(ctx context.Context, id string) (*repository.Location, error) {
	return s.locationRepo.GetByID(ctx, id)
}

// ListLocations lists locations
func (s *CatalogService) ListLocations(ctx context.Context, activeOnly bool) ([]*repository.Location, error) {
	return s.locationRepo.List(ctx, activeOnly)
}

// DeactivateLocation stops a location from taking part in new operations.
func (s *CatalogService) DeactivateLocation(ctx context.Context, id string) error {
	if err := s.locationRepo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("location_id", id).Msg("location deactivated")
	return nil
}

// Product operations

// CreateProduct registers a product; reorder settings fall back to configured defaults.
func (s *CatalogService) CreateProduct(ctx context.Context, in CreateProductInput) (*repository.Product, error) {
	p := &repository.Product{
		SKU:             in.SKU,
		Name:            in.Name,
		Cost:            in.Cost,
		ReorderLevel:    decimalOr(in.ReorderLevel, s.stock.DefaultReorderLevel),
		ReorderQuantity: decimalOr(in.ReorderQuantity, s.stock.DefaultReorderQuantity),
		IsActive:        true,
	}
	if p.ReorderLevel.IsNegative() || p.ReorderQuantity.IsNegative() {
		return nil, errors.InvalidField("reorder_level", "reorder settings must not be negative")
	}
	if err := s.productRepo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetProduct gets a product by ID
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*repository.Product, error) {
	return s.productRepo.GetByID(ctx, id)
}

// ListProducts lists products
func (s *CatalogService) ListProducts(ctx context.Context, page, perPage int, activeOnly bool) ([]*repository.Product, int64, error) {
	return s.productRepo.List(ctx, page, perPage, activeOnly)
}

// Raw material operations

// CreateRawMaterial registers a raw material; its unit follows from its kind.
func (s *CatalogService) CreateRawMaterial(ctx context.Context, in CreateRawMaterialInput) (*repository.RawMaterial, error) {
	if !in.Kind.Valid() {
		return nil, errors.InvalidField("kind", "must be oil, ethanol or packaging")
	}
	m := &repository.RawMaterial{
		Code:            in.Code,
		Name:            in.Name,
		Kind:            in.Kind,
		Unit:            in.Kind.Unit(),
		Cost:            in.Cost,
		ReorderLevel:    decimalOr(in.ReorderLevel, s.stock.DefaultReorderLevel),
		ReorderQuantity: decimalOr(in.ReorderQuantity, s.stock.DefaultReorderQuantity),
		IsActive:        true,
	}
	if err := s.materialRepo.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetRawMaterial gets a raw material by ID
func (s *CatalogService) GetRawMaterial(ctx context.Context, id string) (*repository.RawMaterial, error) {
	return s.materialRepo.GetByID(ctx, id)
}

// ListRawMaterials lists raw materials, optionally of one kind.
func (s *CatalogService) ListRawMaterials(ctx context.Context, kind repository.MaterialKind, activeOnly bool) ([]*repository.RawMaterial, error) {
	if kind != "" && !kind.Valid() {
		return nil, errors.InvalidField("kind", "must be oil, ethanol or packaging")
	}
	return s.materialRepo.List(ctx, kind, activeOnly)
}

// Recipe operations

// CreateRecipe validates and stores a recipe with its ingredients.
func (s *CatalogService) CreateRecipe(ctx context.Context, in CreateRecipeInput) (*repository.Recipe, error) {
	if !in.Type.Valid() {
		return nil, errors.InvalidField("type", "must be single_oil, blended or perfume")
	}
	if !in.OutputSizeML.IsPositive() {
		return nil, errors.InvalidField("output_size_ml", "must be greater than zero")
	}
	if in.ProductID != nil {
		if _, err := s.productRepo.GetByID(ctx, *in.ProductID); err != nil {
			return nil, err
		}
	}

	recipe := &repository.Recipe{
		ProductID:             in.ProductID,
		Name:                  in.Name,
		Type:                  in.Type,
		OutputSizeML:          in.OutputSizeML,
		CanProduceAtWarehouse: boolOr(in.CanProduceAtWarehouse, true),
		CanProduceAtKiosk:     boolOr(in.CanProduceAtKiosk, false),
		IsActive:              true,
	}

	if in.Type == repository.RecipePerfume {
		if in.OilPercentage == nil || !in.OilPercentage.IsPositive() || in.OilPercentage.GreaterThan(hundred) {
			return nil, errors.InvalidField("oil_percentage", "perfume recipes need an oil percentage in (0, 100]")
		}
		recipe.OilPercentage = decimal.NewNullDecimal(*in.OilPercentage)
	}

	ids := make([]string, 0, len(in.Ingredients))
	seen := make(map[string]bool, len(in.Ingredients))
	for i, ing := range in.Ingredients {
		if seen[ing.RawMaterialID] {
			return nil, errors.InvalidField(fmt.Sprintf("ingredients[%d].raw_material_id", i), "duplicate material")
		}
		seen[ing.RawMaterialID] = true
		ids = append(ids, ing.RawMaterialID)
	}
	materials, err := s.materialRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	oilTotal := decimal.Zero
	oilLines := 0
	for i, ing := range in.Ingredients {
		m, ok := materials[ing.RawMaterialID]
		if !ok || !m.IsActive {
			return nil, errors.InvalidField(fmt.Sprintf("ingredients[%d].raw_material_id", i), "unknown or inactive material")
		}
		if ing.IsPackaging != (m.Kind == repository.MaterialPackaging) {
			return nil, errors.InvalidField(fmt.Sprintf("ingredients[%d].is_packaging", i), "must match the material kind")
		}
		if m.Kind == repository.MaterialOil {
			oilLines++
			oilTotal = oilTotal.Add(ing.Percentage)
		}
		if m.Kind == repository.MaterialEthanol && in.Type != repository.RecipePerfume {
			return nil, errors.InvalidField(fmt.Sprintf("ingredients[%d].raw_material_id", i), "only perfume recipes use ethanol")
		}

		recipe.Ingredients = append(recipe.Ingredients, &repository.RecipeIngredient{
			RawMaterialID: ing.RawMaterialID,
			Percentage:    ing.Percentage,
			IsPackaging:   ing.IsPackaging,
			MaterialName:  m.Name,
			MaterialKind:  m.Kind,
			MaterialUnit:  m.Unit,
		})
	}

	switch {
	case oilLines == 0:
		return nil, errors.InvalidField("ingredients", "at least one oil is required")
	case in.Type == repository.RecipeSingleOil && oilLines != 1:
		return nil, errors.InvalidField("ingredients", "single oil recipes take exactly one oil")
	case oilLines > 1 && oilTotal.Sub(hundred).Abs().GreaterThan(percentageTolerance):
		return nil, errors.InvalidField("ingredients", fmt.Sprintf("oil percentages must sum to 100, got %s", oilTotal.String()))
	}

	if err := s.recipeRepo.Create(ctx, recipe); err != nil {
		return nil, err
	}
	s.logger.Info().Str("recipe_id", recipe.ID).Str("name", recipe.Name).Str("type", string(recipe.Type)).Msg("recipe created")
	return recipe, nil
}

// GetRecipe returns a recipe with its ingredients.
func (s *CatalogService) GetRecipe(ctx context.Context, id string) (*repository.Recipe, error) {
	return s.recipeRepo.GetByID(ctx, id)
}

// ListRecipes lists recipes, optionally of one product.
func (s *CatalogService) ListRecipes(ctx context.Context, productID string, activeOnly bool) ([]*repository.Recipe, error) {
	return s.recipeRepo.List(ctx, productID, activeOnly)
}

func decimalOr(v *decimal.Decimal, fallback int64) decimal.Decimal {
	if v != nil {
		return *v
	}
	return decimal.NewFromInt(fallback)
}

func boolOr(v *bool, fallback bool) bool {
	if v != nil {
		return *v
	}
	return fallback
}
