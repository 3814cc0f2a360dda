package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/scentflow/scentflow-backend/internal/inventory/repository"
	"github.com/scentflow/scentflow-backend/pkg/logger"
)

type locationLister interface {
	List(ctx context.Context, activeOnly bool) ([]*repository.Location, error)
}

type stockReader interface {
	ListStock(ctx context.Context, catalog repository.Catalog, locationID string) ([]*repository.StockLevelView, error)
	SumMovements(ctx context.Context, key repository.StockKey) (decimal.Decimal, error)
}

type lowStockNotifier interface {
	PublishLowStock(ctx context.Context, key repository.StockKey, itemName string, level *repository.StockLevel)
}

// ScanReport summarises one scan cycle.
type ScanReport struct {
	Locations    int                   `json:"locations"`
	RowsScanned  int                   `json:"rows_scanned"`
	LowStock     int                   `json:"low_stock"`
	Inconsistent []repository.StockKey `json:"inconsistent,omitempty"`
}

// StockScanner sweeps every active location, announces rows at or below their
// reorder level and checks each cached quantity against its movement sum.
type StockScanner struct {
	locations locationLister
	stock     stockReader
	notifier  lowStockNotifier
	logger    *logger.Logger
}

// NewStockScanner creates a new stock scanner
func NewStockScanner(locations locationLister, stock stockReader, notifier lowStockNotifier, log *logger.Logger) *StockScanner {
	return &StockScanner{
		locations: locations,
		stock:     stock,
		notifier:  notifier,
		logger:    log.WithComponent("stock-scanner"),
	}
}

// ScanAll runs the sweep. Per-location failures are logged and skipped; the
// last one is returned.
func (s *StockScanner) ScanAll(ctx context.Context) (*ScanReport, error) {
	locations, err := s.locations.List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("scan: list locations: %w", err)
	}

	report := &ScanReport{Locations: len(locations)}
	var lastErr error
	for _, loc := range locations {
		for _, catalog := range []repository.Catalog{repository.CatalogProducts, repository.CatalogRawMaterials} {
			if err := s.scanLocation(ctx, catalog, loc.ID, report); err != nil {
				s.logger.WithLocation(loc.ID).Error().Err(err).
					Str("catalog", string(catalog)).
					Msg("stock scan failed")
				lastErr = err
			}
		}
	}
	return report, lastErr
}

func (s *StockScanner) scanLocation(ctx context.Context, catalog repository.Catalog, locationID string, report *ScanReport) error {
	rows, err := s.stock.ListStock(ctx, catalog, locationID)
	if err != nil {
		return fmt.Errorf("list stock: %w", err)
	}

	for _, row := range rows {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		report.RowsScanned++
		key := repository.StockKey{Catalog: catalog, LocationID: locationID, ItemID: row.ItemID}

		if row.IsLow() {
			report.LowStock++
			if s.notifier != nil {
				s.notifier.PublishLowStock(ctx, key, row.ItemName, &row.StockLevel)
			}
		}

		sum, err := s.stock.SumMovements(ctx, key)
		if err != nil {
			return fmt.Errorf("sum movements %s: %w", key, err)
		}
		if !sum.Equal(row.Quantity) {
			report.Inconsistent = append(report.Inconsistent, key)
			s.logger.Error().
				Str("key", key.String()).
				Str("cached", row.Quantity.String()).
				Str("movements", sum.String()).
				Msg("ledger inconsistency detected")
		}
	}
	return nil
}
