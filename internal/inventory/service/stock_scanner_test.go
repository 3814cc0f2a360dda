package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scentflow/scentflow-backend/internal/inventory/repository"
	"github.com/scentflow/scentflow-backend/pkg/logger"
)

type fakeLocations struct {
	locations []*repository.Location
	err       error
}

func (f *fakeLocations) List(ctx context.Context, activeOnly bool) ([]*repository.Location, error) {
	return f.locations, f.err
}

type fakeStock struct {
	rows    map[string][]*repository.StockLevelView
	sums    map[string]decimal.Decimal
	listErr map[string]error
}

func (f *fakeStock) ListStock(ctx context.Context, catalog repository.Catalog, locationID string) ([]*repository.StockLevelView, error) {
	key := string(catalog) + "@" + locationID
	if err := f.listErr[key]; err != nil {
		return nil, err
	}
	return f.rows[key], nil
}

func (f *fakeStock) SumMovements(ctx context.Context, key repository.StockKey) (decimal.Decimal, error) {
	return f.sums[key.String()], nil
}

type recordedLow struct {
	key  repository.StockKey
	name string
}

type fakeNotifier struct {
	low []recordedLow
}

func (f *fakeNotifier) PublishLowStock(ctx context.Context, key repository.StockKey, itemName string, level *repository.StockLevel) {
	f.low = append(f.low, recordedLow{key: key, name: itemName})
}

func stockRow(itemID, name string, qty, reserved, reorder int64) *repository.StockLevelView {
	return &repository.StockLevelView{
		StockLevel: repository.StockLevel{
			ItemID:           itemID,
			Quantity:         decimal.NewFromInt(qty),
			ReservedQuantity: decimal.NewFromInt(reserved),
			ReorderLevel:     decimal.NewFromInt(reorder),
		},
		ItemName: name,
	}
}

func TestStockScanner_ScanAll(t *testing.T) {
	locations := &fakeLocations{locations: []*repository.Location{{ID: "wh"}, {ID: "kiosk"}}}
	stock := &fakeStock{
		rows: map[string][]*repository.StockLevelView{
			"products@wh": {
				stockRow("p1", "Oud", 100, 0, 10),
				stockRow("p2", "Musk", 12, 4, 10),
			},
			"raw_materials@kiosk": {
				stockRow("m1", "Rose oil", 0, 0, 0),
			},
		},
		sums: map[string]decimal.Decimal{
			"products:p1@wh":         decimal.NewFromInt(100),
			"products:p2@wh":         decimal.NewFromInt(11),
			"raw_materials:m1@kiosk": decimal.Zero,
		},
	}
	notifier := &fakeNotifier{}

	scanner := NewStockScanner(locations, stock, notifier, logger.New("test", "test"))
	report, err := scanner.ScanAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Locations)
	assert.Equal(t, 3, report.RowsScanned)
	assert.Equal(t, 2, report.LowStock)

	require.Len(t, notifier.low, 2)
	assert.Equal(t, "Musk", notifier.low[0].name)
	assert.Equal(t, "Rose oil", notifier.low[1].name)

	require.Len(t, report.Inconsistent, 1)
	assert.Equal(t, "p2", report.Inconsistent[0].ItemID)
}

func TestStockScanner_ContinuesAfterLocationFailure(t *testing.T) {
	locations := &fakeLocations{locations: []*repository.Location{{ID: "broken"}, {ID: "ok"}}}
	stock := &fakeStock{
		rows: map[string][]*repository.StockLevelView{
			"products@ok": {stockRow("p1", "Oud", 1, 0, 10)},
		},
		sums: map[string]decimal.Decimal{"products:p1@ok": decimal.NewFromInt(1)},
		listErr: map[string]error{
			"products@broken": fmt.Errorf("connection reset"),
		},
	}
	notifier := &fakeNotifier{}

	report, err := NewStockScanner(locations, stock, notifier, logger.New("test", "test")).ScanAll(context.Background())
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.RowsScanned)
	assert.Len(t, notifier.low, 1)
}

func TestStockScanner_ListLocationsError(t *testing.T) {
	scanner := NewStockScanner(&fakeLocations{err: fmt.Errorf("down")}, &fakeStock{}, nil, logger.New("test", "test"))
	report, err := scanner.ScanAll(context.Background())
	assert.Error(t, err)
	assert.Nil(t, report)
}
