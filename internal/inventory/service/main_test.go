package service_test

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"

	"github.com/scentflow/scentflow-backend/internal/inventory/events"
	"github.com/scentflow/scentflow-backend/internal/inventory/repository"
	"github.com/scentflow/scentflow-backend/internal/inventory/service"
	"github.com/scentflow/scentflow-backend/pkg/actor"
	"github.com/scentflow/scentflow-backend/pkg/config"
	"github.com/scentflow/scentflow-backend/pkg/testutil"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	flag.Parse()
	ctx := context.Background()

	if !testing.Short() {
		var err error
		suite, err = testutil.NewIntegrationSuite(ctx)
		if err != nil {
			log.Fatalf("failed to create integration suite: %v", err)
		}
	}

	code := m.Run()
	if suite != nil {
		suite.Cleanup(ctx)
		testutil.TerminateContainer(ctx)
	}
	os.Exit(code)
}

// services wires every inventory service against the suite database with a
// recording publisher in place of RabbitMQ.
type services struct {
	ledgerRepo    *repository.LedgerRepository
	ledger        *service.LedgerService
	catalog       *service.CatalogService
	transfers     *service.TransferService
	production    *service.ProductionService
	sales         *service.SalesService
	replenishment *service.ReplenishmentService
	published     *testutil.MockPublisher
}

func newServices(t *testing.T) *services {
	t.Helper()
	testutil.SkipIfShort(t)
	suite.Reset(t)

	db := suite.DB
	published := testutil.NewMockPublisher()
	publisher := events.NewWithPublisher(published, suite.Logger)

	locationRepo := repository.NewLocationRepository(db)
	productRepo := repository.NewProductRepository(db)
	materialRepo := repository.NewRawMaterialRepository(db)
	recipeRepo := repository.NewRecipeRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	salesRepo := repository.NewSalesRepository(db)
	sequenceRepo := repository.NewSequenceRepository()

	ledger := service.NewLedgerService(db, ledgerRepo, locationRepo, publisher, suite.Logger)

	return &services{
		ledgerRepo: ledgerRepo,
		ledger:     ledger,
		catalog: service.NewCatalogService(locationRepo, productRepo, materialRepo, recipeRepo,
			config.StockConfig{DefaultReorderQuantity: 50, DefaultReorderLevel: 10}, suite.Logger),
		transfers: service.NewTransferService(db, repository.NewTransferRepository(db), locationRepo,
			ledgerRepo, sequenceRepo, ledger, publisher, suite.Logger),
		production: service.NewProductionService(db, repository.NewProductionRepository(db), recipeRepo,
			locationRepo, materialRepo, ledgerRepo, sequenceRepo, ledger, publisher, suite.Logger),
		sales:         service.NewSalesService(db, ledger, ledgerRepo, salesRepo, nil, suite.Logger),
		replenishment: service.NewReplenishmentService(productRepo, locationRepo, ledgerRepo, salesRepo, service.PlannerConfig{}, suite.Logger),
		published:     published,
	}
}

func admin() *actor.Actor {
	return &actor.Actor{ID: "11111111-1111-1111-1111-111111111111", Name: "head office", IsGlobalAdmin: true}
}

func staffAt(locationID string) *actor.Actor {
	return &actor.Actor{ID: "22222222-2222-2222-2222-222222222222", Name: "staff", LocationID: locationID}
}

func productKey(locationID, productID string) repository.StockKey {
	return repository.StockKey{Catalog: repository.CatalogProducts, LocationID: locationID, ItemID: productID}
}

func materialKey(locationID, materialID string) repository.StockKey {
	return repository.StockKey{Catalog: repository.CatalogRawMaterials, LocationID: locationID, ItemID: materialID}
}

// assertConsistent checks that the cached quantity equals the movement sum.
func assertConsistent(t *testing.T, s *services, key repository.StockKey) {
	t.Helper()
	v, err := s.ledger.VerifyLedger(context.Background(), key)
	if err != nil {
		t.Fatalf("verify %s: %v", key, err)
	}
	if !v.Consistent {
		t.Errorf("ledger for %s inconsistent: cached %s, movements %s", key, v.CachedQuantity, v.MovementSum)
	}
}
