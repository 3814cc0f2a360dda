package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scentflow/scentflow-backend/internal/inventory/repository"
	"github.com/scentflow/scentflow-backend/pkg/errors"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ingredient(id string, kind repository.MaterialKind, pct string) *repository.RecipeIngredient {
	unit := "ml"
	if kind == repository.MaterialPackaging {
		unit = "pcs"
	}
	return &repository.RecipeIngredient{
		RawMaterialID: id,
		Percentage:    dec(pct),
		IsPackaging:   kind == repository.MaterialPackaging,
		MaterialName:  id,
		MaterialKind:  kind,
		MaterialUnit:  unit,
	}
}

// byMaterial indexes requirements for order-independent assertions.
func byMaterial(reqs []MaterialRequirement) map[string]string {
	out := make(map[string]string, len(reqs))
	for _, r := range reqs {
		out[r.RawMaterialID] = r.Quantity.String()
	}
	return out
}

func TestCalculateMaterialRequirements(t *testing.T) {
	ethanol := &repository.RawMaterial{ID: "default-ethanol", Name: "Ethanol 96%", Kind: repository.MaterialEthanol, Unit: "ml"}

	tests := []struct {
		name     string
		recipe   *repository.Recipe
		quantity string
		want     map[string]string
	}{
		{
			name: "perfume 50ml at 35 percent oil",
			recipe: &repository.Recipe{
				Type:          repository.RecipePerfume,
				OutputSizeML:  dec("50"),
				OilPercentage: decimal.NewNullDecimal(dec("35")),
				Ingredients: []*repository.RecipeIngredient{
					ingredient("oil", repository.MaterialOil, "100"),
					ingredient("ethanol", repository.MaterialEthanol, "0"),
					ingredient("bottle", repository.MaterialPackaging, "0"),
				},
			},
			quantity: "10",
			want:     map[string]string{"oil": "175", "ethanol": "325", "bottle": "10"},
		},
		{
			name: "perfume falls back to default ethanol",
			recipe: &repository.Recipe{
				Type:          repository.RecipePerfume,
				OutputSizeML:  dec("30"),
				OilPercentage: decimal.NewNullDecimal(dec("20")),
				Ingredients: []*repository.RecipeIngredient{
					ingredient("oil", repository.MaterialOil, "100"),
				},
			},
			quantity: "5",
			want:     map[string]string{"oil": "30", "default-ethanol": "120"},
		},
		{
			name: "single oil takes the whole volume whatever its percentage",
			recipe: &repository.Recipe{
				Type:         repository.RecipeSingleOil,
				OutputSizeML: dec("10"),
				Ingredients: []*repository.RecipeIngredient{
					ingredient("oil", repository.MaterialOil, "0"),
					ingredient("roller", repository.MaterialPackaging, "0"),
				},
			},
			quantity: "12",
			want:     map[string]string{"oil": "120", "roller": "12"},
		},
		{
			name: "blended splits by percentage",
			recipe: &repository.Recipe{
				Type:         repository.RecipeBlended,
				OutputSizeML: dec("10"),
				Ingredients: []*repository.RecipeIngredient{
					ingredient("rose", repository.MaterialOil, "60"),
					ingredient("musk", repository.MaterialOil, "40"),
				},
			},
			quantity: "3",
			want:     map[string]string{"rose": "18", "musk": "12"},
		},
		{
			name: "blended rounds to four places",
			recipe: &repository.Recipe{
				Type:         repository.RecipeBlended,
				OutputSizeML: dec("10"),
				Ingredients: []*repository.RecipeIngredient{
					ingredient("a", repository.MaterialOil, "33.3333"),
					ingredient("b", repository.MaterialOil, "66.6667"),
				},
			},
			quantity: "1",
			want:     map[string]string{"a": "3.3333", "b": "6.6667"},
		},
		{
			name: "zero percentage line is skipped",
			recipe: &repository.Recipe{
				Type:         repository.RecipeBlended,
				OutputSizeML: dec("10"),
				Ingredients: []*repository.RecipeIngredient{
					ingredient("a", repository.MaterialOil, "100"),
					ingredient("b", repository.MaterialOil, "0"),
				},
			},
			quantity: "2",
			want:     map[string]string{"a": "20"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqs, err := CalculateMaterialRequirements(tt.recipe, dec(tt.quantity), ethanol)
			require.NoError(t, err)
			assert.Equal(t, tt.want, byMaterial(reqs))
		})
	}
}

func TestCalculateMaterialRequirements_Errors(t *testing.T) {
	perfume := &repository.Recipe{
		Type:          repository.RecipePerfume,
		OutputSizeML:  dec("50"),
		OilPercentage: decimal.NewNullDecimal(dec("35")),
		Ingredients: []*repository.RecipeIngredient{
			ingredient("oil", repository.MaterialOil, "100"),
		},
	}

	t.Run("non-positive quantity", func(t *testing.T) {
		_, err := CalculateMaterialRequirements(perfume, decimal.Zero, nil)
		assert.True(t, errors.Is(err, errors.ErrValidation))
	})

	t.Run("perfume without any ethanol", func(t *testing.T) {
		_, err := CalculateMaterialRequirements(perfume, dec("1"), nil)
		require.Error(t, err)
	})

	t.Run("perfume without oil percentage", func(t *testing.T) {
		r := *perfume
		r.OilPercentage = decimal.NullDecimal{}
		_, err := CalculateMaterialRequirements(&r, dec("1"), nil)
		assert.True(t, errors.Is(err, errors.ErrValidation))
	})
}
