package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scentflow/scentflow-backend/internal/inventory/repository"
	"github.com/scentflow/scentflow-backend/internal/inventory/service"
	"github.com/scentflow/scentflow-backend/pkg/errors"
	"github.com/scentflow/scentflow-backend/pkg/messaging"
	"github.com/scentflow/scentflow-backend/pkg/testutil"
)

// perfumeWorld is a warehouse able to produce a 50ml perfume at 35% oil.
type perfumeWorld struct {
	warehouse testutil.LocationFixture
	product   testutil.ProductFixture
	oil       testutil.RawMaterialFixture
	ethanol   testutil.RawMaterialFixture
	bottle    testutil.RawMaterialFixture
	recipe    testutil.RecipeFixture
}

func seedPerfume(t *testing.T, ctx context.Context, oilStock int64) perfumeWorld {
	t.Helper()
	f := suite.Fixtures

	w := perfumeWorld{
		warehouse: f.Warehouse(t, ctx),
		product:   f.Product(t, ctx),
		oil:       f.RawMaterial(t, ctx, "oil"),
		ethanol:   f.RawMaterial(t, ctx, "ethanol"),
		bottle:    f.RawMaterial(t, ctx, "packaging"),
	}
	oilPct := decimal.NewFromInt(35)
	w.recipe = f.Recipe(t, ctx, testutil.RecipeFixture{
		ProductID:             w.product.ID,
		Type:                  "perfume",
		OutputSizeML:          decimal.NewFromInt(50),
		OilPercentage:         &oilPct,
		CanProduceAtWarehouse: true,
		Ingredients: []testutil.IngredientFixture{
			{RawMaterialID: w.oil.ID, Percentage: decimal.NewFromInt(100)},
			{RawMaterialID: w.ethanol.ID, Percentage: decimal.Zero},
			{RawMaterialID: w.bottle.ID, Percentage: decimal.Zero, IsPackaging: true},
		},
	})

	f.MaterialStock(t, ctx, w.warehouse.ID, w.oil.ID, decimal.NewFromInt(oilStock))
	f.MaterialStock(t, ctx, w.warehouse.ID, w.ethanol.ID, decimal.NewFromInt(400))
	f.MaterialStock(t, ctx, w.warehouse.ID, w.bottle.ID, decimal.NewFromInt(20))
	return w
}

func TestProduction_FullWorkflow(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	w := seedPerfume(t, ctx, 200)
	staff := staffAt(w.warehouse.ID)

	report, err := s.production.CheckAvailability(ctx, w.recipe.ID, w.warehouse.ID, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.True(t, report.AllAvailable)

	order, err := s.production.CreateOrder(ctx, staff, service.CreateOrderInput{
		RecipeID: w.recipe.ID,
		Quantity: decimal.NewFromInt(10),
		Submit:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, repository.ProductionPending, order.Status)
	assert.Regexp(t, `^PRD\d{8}0001$`, order.OrderNumber)

	order, err = s.production.Approve(ctx, staff, order.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.ProductionApproved, order.Status)

	oilLevel, err := s.ledger.GetStock(ctx, materialKey(w.warehouse.ID, w.oil.ID))
	require.NoError(t, err)
	assert.Equal(t, "175", oilLevel.ReservedQuantity.String())

	order, err = s.production.Start(ctx, staff, order.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.ProductionInProgress, order.Status)

	order, err = s.production.Execute(ctx, staff, order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, repository.ProductionCompleted, order.Status)
	assert.Equal(t, "10", order.QuantityProduced.Decimal.String())

	remaining := map[string]string{
		w.oil.ID:     "25",
		w.ethanol.ID: "75",
		w.bottle.ID:  "10",
	}
	for id, want := range remaining {
		level, err := s.ledger.GetStock(ctx, materialKey(w.warehouse.ID, id))
		require.NoError(t, err)
		assert.Equal(t, want, level.Quantity.String())
		assert.True(t, level.ReservedQuantity.IsZero())
		assertConsistent(t, s, materialKey(w.warehouse.ID, id))
	}

	output, err := s.ledger.GetStock(ctx, productKey(w.warehouse.ID, w.product.ID))
	require.NoError(t, err)
	assert.Equal(t, "10", output.Quantity.String())
	assertConsistent(t, s, productKey(w.warehouse.ID, w.product.ID))

	got, err := s.production.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, got.Consumptions, 3)

	s.published.AssertEventPublished(t, messaging.EventProductionCompleted)
}

func TestProduction_ApproveBlockedByMaterials(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	w := seedPerfume(t, ctx, 165)

	order, err := s.production.CreateOrder(ctx, admin(), service.CreateOrderInput{
		RecipeID:   w.recipe.ID,
		LocationID: w.warehouse.ID,
		Quantity:   decimal.NewFromInt(10),
		Submit:     true,
	})
	require.NoError(t, err)

	_, err = s.production.Approve(ctx, admin(), order.ID)
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, errors.Is(appErr, errors.ErrInsufficientMaterials))
	require.Len(t, appErr.Shortages, 1)
	assert.Equal(t, w.oil.ID, appErr.Shortages[0].ItemID)
	assert.Equal(t, "10", appErr.Shortages[0].Shortfall.String())

	got, err := s.production.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.ProductionPending, got.Status)

	ethanol, err := s.ledger.GetStock(ctx, materialKey(w.warehouse.ID, w.ethanol.ID))
	require.NoError(t, err)
	assert.True(t, ethanol.ReservedQuantity.IsZero(), "blocked approval keeps no partial reservation")
}

func TestProduction_CancelReleasesReservations(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	w := seedPerfume(t, ctx, 200)

	order, err := s.production.CreateOrder(ctx, admin(), service.CreateOrderInput{
		RecipeID:   w.recipe.ID,
		LocationID: w.warehouse.ID,
		Quantity:   decimal.NewFromInt(10),
		Submit:     true,
	})
	require.NoError(t, err)
	_, err = s.production.Approve(ctx, admin(), order.ID)
	require.NoError(t, err)

	cancelled, err := s.production.Cancel(ctx, admin(), order.ID, "recipe change")
	require.NoError(t, err)
	assert.Equal(t, repository.ProductionCancelled, cancelled.Status)

	for _, id := range []string{w.oil.ID, w.ethanol.ID, w.bottle.ID} {
		level, err := s.ledger.GetStock(ctx, materialKey(w.warehouse.ID, id))
		require.NoError(t, err)
		assert.True(t, level.ReservedQuantity.IsZero())
	}
}

func TestProduction_ConcurrentExecuteSucceedsOnce(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	w := seedPerfume(t, ctx, 400)

	order, err := s.production.CreateOrder(ctx, admin(), service.CreateOrderInput{
		RecipeID:   w.recipe.ID,
		LocationID: w.warehouse.ID,
		Quantity:   decimal.NewFromInt(10),
		Submit:     true,
	})
	require.NoError(t, err)
	_, err = s.production.Approve(ctx, admin(), order.ID)
	require.NoError(t, err)

	const workers = 4
	var (
		wg   sync.WaitGroup
		errs = make([]error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.production.Execute(ctx, admin(), order.ID, nil)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, errors.ErrInvalidStateTransition), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	output, err := s.ledger.GetStock(ctx, productKey(w.warehouse.ID, w.product.ID))
	require.NoError(t, err)
	assert.Equal(t, "10", output.Quantity.String(), "output booked exactly once")

	oil, err := s.ledger.GetStock(ctx, materialKey(w.warehouse.ID, w.oil.ID))
	require.NoError(t, err)
	assert.Equal(t, "225", oil.Quantity.String())
	assertConsistent(t, s, materialKey(w.warehouse.ID, w.oil.ID))
}

func TestProduction_ConcurrentExecuteCompetesForMaterials(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	w := seedPerfume(t, ctx, 400)
	// 437.5ml of oil covers one run of 15 (262.5ml) but not two
	suite.Fixtures.MaterialStock(t, ctx, w.warehouse.ID, w.oil.ID, decimal.RequireFromString("37.5"))
	suite.Fixtures.MaterialStock(t, ctx, w.warehouse.ID, w.ethanol.ID, decimal.NewFromInt(1000))
	suite.Fixtures.MaterialStock(t, ctx, w.warehouse.ID, w.bottle.ID, decimal.NewFromInt(20))

	orders := make([]string, 2)
	for i := range orders {
		order, err := s.production.CreateOrder(ctx, admin(), service.CreateOrderInput{
			RecipeID:   w.recipe.ID,
			LocationID: w.warehouse.ID,
			Quantity:   decimal.NewFromInt(10),
			Submit:     true,
		})
		require.NoError(t, err)
		_, err = s.production.Approve(ctx, admin(), order.ID)
		require.NoError(t, err)
		orders[i] = order.ID
	}

	oilKey := materialKey(w.warehouse.ID, w.oil.ID)
	reserved, err := s.ledger.GetStock(ctx, oilKey)
	require.NoError(t, err)
	require.Equal(t, "350", reserved.ReservedQuantity.String())

	actual := decimal.NewFromInt(15)
	var (
		wg   sync.WaitGroup
		errs = make([]error, len(orders))
	)
	for i, id := range orders {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = s.production.Execute(ctx, admin(), id, &actual)
		}(i, id)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, errors.ErrInsufficientMaterials), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	oil, err := s.ledger.GetStock(ctx, oilKey)
	require.NoError(t, err)
	assert.Equal(t, "175", oil.Quantity.String(), "oil deducted once")
	assert.Equal(t, "175", oil.ReservedQuantity.String(), "losing order keeps its reservation")

	output, err := s.ledger.GetStock(ctx, productKey(w.warehouse.ID, w.product.ID))
	require.NoError(t, err)
	assert.Equal(t, "15", output.Quantity.String())

	assertConsistent(t, s, oilKey)
	assertConsistent(t, s, materialKey(w.warehouse.ID, w.ethanol.ID))
	assertConsistent(t, s, productKey(w.warehouse.ID, w.product.ID))
}

func TestProduction_RecipeLocationRule(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	w := seedPerfume(t, ctx, 200)
	kiosk := suite.Fixtures.Kiosk(t, ctx, w.warehouse.ID)

	_, err := s.production.CreateOrder(ctx, admin(), service.CreateOrderInput{
		RecipeID:   w.recipe.ID,
		LocationID: kiosk.ID,
		Quantity:   decimal.NewFromInt(1),
	})
	assert.True(t, errors.Is(err, errors.ErrInvalidLocation))
}
