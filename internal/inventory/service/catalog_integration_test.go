package service_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scentflow/scentflow-backend/internal/inventory/repository"
	"github.com/scentflow/scentflow-backend/internal/inventory/service"
)

func TestCatalog_CreateRecipeProductionDefaults(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()

	oil := suite.Fixtures.RawMaterial(t, ctx, "oil")
	roller := suite.Fixtures.RawMaterial(t, ctx, "packaging")

	input := func(name string) service.CreateRecipeInput {
		return service.CreateRecipeInput{
			Name:         name,
			Type:         repository.RecipeSingleOil,
			OutputSizeML: decimal.NewFromInt(10),
			Ingredients: []service.RecipeIngredientInput{
				{RawMaterialID: oil.ID, Percentage: decimal.NewFromInt(100)},
				{RawMaterialID: roller.ID, Percentage: decimal.Zero, IsPackaging: true},
			},
		}
	}

	t.Run("warehouse only unless kiosk is requested", func(t *testing.T) {
		recipe, err := s.catalog.CreateRecipe(ctx, input("Oud roll-on"))
		require.NoError(t, err)
		assert.True(t, recipe.CanProduceAtWarehouse)
		assert.False(t, recipe.CanProduceAtKiosk)

		stored, err := s.catalog.GetRecipe(ctx, recipe.ID)
		require.NoError(t, err)
		assert.True(t, stored.CanProduceAt(repository.LocationWarehouse))
		assert.False(t, stored.CanProduceAt(repository.LocationKiosk))
	})

	t.Run("explicit kiosk flag", func(t *testing.T) {
		in := input("Musk roll-on")
		yes := true
		in.CanProduceAtKiosk = &yes

		recipe, err := s.catalog.CreateRecipe(ctx, in)
		require.NoError(t, err)
		assert.True(t, recipe.CanProduceAt(repository.LocationKiosk))
	})
}
