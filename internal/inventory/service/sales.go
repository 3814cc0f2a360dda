package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/scentflow/scentflow-backend/internal/inventory/repository"
	"github.com/scentflow/scentflow-backend/pkg/actor"
	"github.com/scentflow/scentflow-backend/pkg/database"
	"github.com/scentflow/scentflow-backend/pkg/errors"
	"github.com/scentflow/scentflow-backend/pkg/logger"
)

// SaleLine is one product line of a point-of-sale receipt.
type SaleLine struct {
	ProductID string
	Quantity  decimal.Decimal
}

// Sale is a completed or voided point-of-sale receipt.
type Sale struct {
	SaleNumber string
	LocationID string
	SoldAt     time.Time
	Lines      []SaleLine
}

// SalesCacheInvalidator drops cached sales history after new sales land.
type SalesCacheInvalidator interface {
	Invalidate(ctx context.Context, productID, locationID string)
}

// SalesService books point-of-sale receipts into the product ledger and the
// daily sales aggregate.
type SalesService struct {
	db          *database.DB
	ledger      *LedgerService
	ledgerRepo  *repository.LedgerRepository
	salesRepo   *repository.SalesRepository
	invalidator SalesCacheInvalidator
	logger      *logger.Logger
	now         func() time.Time
}

// NewSalesService creates a new sales service. invalidator may be nil.
func NewSalesService(
	db *database.DB,
	ledger *LedgerService,
	ledgerRepo *repository.LedgerRepository,
	salesRepo *repository.SalesRepository,
	invalidator SalesCacheInvalidator,
	log *logger.Logger,
) *SalesService {
	return &SalesService{
		db:          db,
		ledger:      ledger,
		ledgerRepo:  ledgerRepo,
		salesRepo:   salesRepo,
		invalidator: invalidator,
		logger:      log.WithComponent("sales"),
		now:         time.Now,
	}
}

// RecordSale deducts sold quantities and adds them to the daily aggregate.
func (s *SalesService) RecordSale(ctx context.Context, sale Sale) (bool, error) {
	return s.apply(ctx, sale, repository.MovementSale)
}

// RecordVoid returns the quantities of a voided sale to stock.
func (s *SalesService) RecordVoid(ctx context.Context, sale Sale) (bool, error) {
	return s.apply(ctx, sale, repository.MovementReturn)
}

// apply books every line in one transaction. A receipt already booked for the
// same movement type is skipped and reported as not applied.
func (s *SalesService) apply(ctx context.Context, sale Sale, movementType repository.MovementType) (bool, error) {
	if sale.SaleNumber == "" {
		return false, errors.InvalidField("sale_number", "is required")
	}
	if sale.LocationID == "" {
		return false, errors.InvalidField("location_id", "is required")
	}
	lines, err := mergeSaleLines(sale.Lines)
	if err != nil {
		return false, err
	}
	if sale.SoldAt.IsZero() {
		sale.SoldAt = s.now()
	}

	system := actor.SystemActor()
	sign := decimal.NewFromInt(-1)
	if movementType == repository.MovementReturn {
		sign = decimal.NewFromInt(1)
	}

	var (
		changes []*StockChange
		applied bool
	)
	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := s.salesRepo.LockSaleTx(ctx, tx, sale.SaleNumber); err != nil {
			return err
		}
		done, err := s.ledgerRepo.HasMovementTx(ctx, tx, repository.CatalogProducts, sale.SaleNumber, movementType)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		for _, line := range lines {
			change, err := s.ledger.AdjustStockTx(ctx, tx, system, AdjustRequest{
				Key: repository.StockKey{
					Catalog:    repository.CatalogProducts,
					LocationID: sale.LocationID,
					ItemID:     line.ProductID,
				},
				Delta:        line.Quantity.Mul(sign),
				MovementType: movementType,
				Reference:    sale.SaleNumber,
			})
			if err != nil {
				return err
			}
			changes = append(changes, change)

			// A void takes the quantity back out of the day it was sold.
			if err := s.salesRepo.AddDailySaleTx(ctx, tx, line.ProductID, sale.LocationID, sale.SoldAt, line.Quantity.Mul(sign.Neg())); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if !applied {
		s.logger.Debug().Str("sale_number", sale.SaleNumber).Str("movement_type", string(movementType)).Msg("sale already booked")
		return false, nil
	}

	s.logger.Info().
		Str("sale_number", sale.SaleNumber).
		Str("location_id", sale.LocationID).
		Str("movement_type", string(movementType)).
		Int("lines", len(lines)).
		Msg("sale booked")

	s.ledger.Notify(ctx, changes...)
	if s.invalidator != nil {
		for _, line := range lines {
			s.invalidator.Invalidate(ctx, line.ProductID, sale.LocationID)
		}
	}
	return true, nil
}

// mergeSaleLines sums repeated products and orders lines by product id.
func mergeSaleLines(lines []SaleLine) ([]SaleLine, error) {
	if len(lines) == 0 {
		return nil, errors.InvalidField("items", "at least one line is required")
	}

	totals := make(map[string]decimal.Decimal, len(lines))
	for i, line := range lines {
		if line.ProductID == "" {
			return nil, errors.InvalidField(fmt.Sprintf("items[%d].product_id", i), "is required")
		}
		if !line.Quantity.IsPositive() {
			return nil, errors.InvalidField(fmt.Sprintf("items[%d].quantity", i), "must be greater than zero")
		}
		totals[line.ProductID] = totals[line.ProductID].Add(line.Quantity)
	}

	merged := make([]SaleLine, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, SaleLine{ProductID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged, nil
}
