package service

import (
	"github.com/shopspring/decimal"

	"github.com/scentflow/scentflow-backend/internal/inventory/repository"
	"github.com/scentflow/scentflow-backend/pkg/errors"
)

// requirementPlaces is the precision material volumes are rounded to.
const requirementPlaces = 4

var hundred = decimal.NewFromInt(100)

// MaterialRequirement is the amount of one raw material needed for a production run.
type MaterialRequirement struct {
	RawMaterialID string                  `json:"raw_material_id"`
	Name          string                  `json:"name"`
	Kind          repository.MaterialKind `json:"kind"`
	Unit          string                  `json:"unit"`
	Quantity      decimal.Decimal         `json:"quantity"`
}

// CalculateMaterialRequirements derives the materials needed to produce quantity
// units of recipe. It does not touch storage.
//
// Volume per run is output_size_ml × quantity. Single oil and blended recipes are
// all oil; perfumes are oil_percentage oil and the rest ethanol. Packaging lines need
// one piece per unit. A perfume with no ethanol ingredient draws its ethanol from
// defaultEthanol.
func CalculateMaterialRequirements(recipe *repository.Recipe, quantity decimal.Decimal, defaultEthanol *repository.RawMaterial) ([]MaterialRequirement, error) {
	if !quantity.IsPositive() {
		return nil, errors.InvalidField("quantity", "must be greater than zero")
	}
	if !recipe.OutputSizeML.IsPositive() {
		return nil, errors.InvalidField("output_size_ml", "recipe output size must be greater than zero")
	}

	total := recipe.OutputSizeML.Mul(quantity)

	oilShare := decimal.NewFromInt(1)
	if recipe.Type == repository.RecipePerfume {
		if !recipe.OilPercentage.Valid {
			return nil, errors.InvalidField("oil_percentage", "is required for perfume recipes")
		}
		oilShare = recipe.OilPercentage.Decimal.Div(hundred)
	}
	oilVolume := total.Mul(oilShare)
	ethanolVolume := total.Sub(oilVolume)

	var oils, ethanols, packaging []*repository.RecipeIngredient
	for _, ing := range recipe.Ingredients {
		switch {
		case ing.IsPackaging || ing.MaterialKind == repository.MaterialPackaging:
			packaging = append(packaging, ing)
		case ing.MaterialKind == repository.MaterialEthanol:
			ethanols = append(ethanols, ing)
		default:
			oils = append(oils, ing)
		}
	}

	result := make([]MaterialRequirement, 0, len(recipe.Ingredients)+1)
	add := func(ing *repository.RecipeIngredient, q decimal.Decimal) {
		q = q.Round(requirementPlaces)
		if !q.IsPositive() {
			return
		}
		result = append(result, MaterialRequirement{
			RawMaterialID: ing.RawMaterialID,
			Name:          ing.MaterialName,
			Kind:          ing.MaterialKind,
			Unit:          ing.MaterialUnit,
			Quantity:      q,
		})
	}

	whole := len(oils) == 1 || recipe.Type == repository.RecipeSingleOil
	for _, ing := range oils {
		if whole {
			add(ing, oilVolume)
			continue
		}
		add(ing, oilVolume.Mul(ing.Percentage).Div(hundred))
	}

	if ethanolVolume.IsPositive() {
		switch {
		case len(ethanols) == 1:
			add(ethanols[0], ethanolVolume)
		case len(ethanols) > 1:
			for _, ing := range ethanols {
				add(ing, ethanolVolume.Mul(ing.Percentage).Div(hundred))
			}
		case defaultEthanol != nil:
			add(&repository.RecipeIngredient{
				RawMaterialID: defaultEthanol.ID,
				MaterialName:  defaultEthanol.Name,
				MaterialKind:  repository.MaterialEthanol,
				MaterialUnit:  defaultEthanol.Unit,
			}, ethanolVolume)
		default:
			return nil, errors.BadRequest("recipe needs ethanol but no ethanol raw material is configured")
		}
	}

	for _, ing := range packaging {
		add(ing, quantity)
	}

	return result, nil
}
