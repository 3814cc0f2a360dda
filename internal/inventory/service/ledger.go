package service

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/scentflow/scentflow-backend/internal/inventory/events"
	"github.com/scentflow/scentflow-backend/internal/inventory/repository"
	"github.com/scentflow/scentflow-backend/pkg/actor"
	"github.com/scentflow/scentflow-backend/pkg/database"
	"github.com/scentflow/scentflow-backend/pkg/errors"
	"github.com/scentflow/scentflow-backend/pkg/logger"
)

// AdjustRequest describes one quantity change on the ledger.
type AdjustRequest struct {
	Key               repository.StockKey     `json:"key"`
	Delta             decimal.Decimal         `json:"delta"`
	MovementType      repository.MovementType `json:"movement_type"`
	Reference         string                  `json:"reference"`
	TransferID        *string                 `json:"transfer_id,omitempty"`
	ProductionOrderID *string                 `json:"production_order_id,omitempty"`
}

// StockChange is the outcome of one adjustment, kept until commit so events
// are only published for durable changes.
type StockChange struct {
	Key      repository.StockKey    `json:"key"`
	Level    *repository.StockLevel `json:"stock"`
	Movement *repository.Movement   `json:"movement"`
}

// LedgerVerification compares the cached quantity of a stock row with the
// sum of its movements.
type LedgerVerification struct {
	Key            repository.StockKey `json:"key"`
	CachedQuantity decimal.Decimal     `json:"cached_quantity"`
	MovementSum    decimal.Decimal     `json:"movement_sum"`
	Consistent     bool                `json:"consistent"`
}

// LedgerService is the only writer of stock quantities and reservations.
//
// Every mutation locks the stock row before checking it. The *Tx forms join a
// caller-owned transaction so workflows can compose several calls atomically;
// the plain forms run exactly one transaction each.
type LedgerService struct {
	db           *database.DB
	ledgerRepo   *repository.LedgerRepository
	locationRepo *repository.LocationRepository
	publisher    *events.InventoryEventPublisher
	logger       *logger.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(
	db *database.DB,
	ledgerRepo *repository.LedgerRepository,
	locationRepo *repository.LocationRepository,
	publisher *events.InventoryEventPublisher,
	log *logger.Logger,
) *LedgerService {
	return &LedgerService{
		db:           db,
		ledgerRepo:   ledgerRepo,
		locationRepo: locationRepo,
		publisher:    publisher,
		logger:       log.WithComponent("ledger"),
	}
}

// AdjustStockTx applies a signed delta and appends one movement. The result
// must stay non-negative and must not drop below the reserved quantity.
func (s *LedgerService) AdjustStockTx(ctx context.Context, tx *sqlx.Tx, a *actor.Actor, req AdjustRequest) (*StockChange, error) {
	if req.Delta.IsZero() {
		return nil, errors.InvalidAdjustment("adjustment quantity must not be zero")
	}
	if !req.MovementType.Valid() {
		return nil, errors.InvalidField("movement_type", "unknown movement type")
	}
	if !req.Key.Catalog.Valid() {
		return nil, errors.InvalidField("catalog", "unknown catalog")
	}

	level, err := s.ledgerRepo.LockStockTx(ctx, tx, req.Key)
	if err != nil {
		return nil, err
	}

	newQty := level.Quantity.Add(req.Delta)
	if newQty.IsNegative() {
		return nil, errors.InvalidAdjustment("stock quantity cannot become negative").WithDetails(map[string]string{
			"item_id":  req.Key.ItemID,
			"quantity": level.Quantity.String(),
			"delta":    req.Delta.String(),
		})
	}
	if newQty.LessThan(level.ReservedQuantity) {
		return nil, errors.InvalidAdjustment("stock quantity cannot drop below the reserved quantity").WithDetails(map[string]string{
			"item_id":  req.Key.ItemID,
			"reserved": level.ReservedQuantity.String(),
			"delta":    req.Delta.String(),
		})
	}

	level.Quantity = newQty
	if err := s.ledgerRepo.UpdateStockTx(ctx, tx, req.Key, level, true); err != nil {
		return nil, err
	}

	movement := &repository.Movement{
		ItemID:            req.Key.ItemID,
		LocationID:        req.Key.LocationID,
		Quantity:          req.Delta,
		QuantityAfter:     newQty,
		MovementType:      req.MovementType,
		Reference:         req.Reference,
		TransferID:        req.TransferID,
		ProductionOrderID: req.ProductionOrderID,
		CreatedBy:         actorID(a),
	}
	if err := s.ledgerRepo.InsertMovementTx(ctx, tx, req.Key.Catalog, movement); err != nil {
		return nil, err
	}

	return &StockChange{Key: req.Key, Level: level, Movement: movement}, nil
}

// AdjustStock runs AdjustStockTx in its own transaction. The actor must be
// allowed to act at the stock location.
func (s *LedgerService) AdjustStock(ctx context.Context, a *actor.Actor, req AdjustRequest) (*StockChange, error) {
	if !a.CanActAt(req.Key.LocationID) {
		return nil, errors.LocationMismatch(req.Key.LocationID)
	}

	var change *StockChange
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.activeLocationTx(ctx, tx, req.Key.LocationID); err != nil {
			return err
		}
		var err error
		change, err = s.AdjustStockTx(ctx, tx, a, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithLocation(req.Key.LocationID).Info().
		Str("key", req.Key.String()).
		Str("delta", req.Delta.String()).
		Str("movement_type", string(req.MovementType)).
		Str("actor_id", actorID(a)).
		Msg("stock adjusted")

	s.Notify(ctx, change)
	return change, nil
}

// ReserveTx earmarks qty for a later deduction. It fails with
// InsufficientStock, carrying one shortage line, when less is available.
func (s *LedgerService) ReserveTx(ctx context.Context, tx *sqlx.Tx, key repository.StockKey, qty decimal.Decimal) (*repository.StockLevel, error) {
	if !qty.IsPositive() {
		return nil, errors.InvalidField("quantity", "must be greater than zero")
	}

	level, err := s.ledgerRepo.LockStockTx(ctx, tx, key)
	if err != nil {
		return nil, err
	}

	if available := level.Available(); available.LessThan(qty) {
		name, err := s.ledgerRepo.ItemNameTx(ctx, tx, key.Catalog, key.ItemID)
		if err != nil {
			return nil, err
		}
		return nil, errors.InsufficientStock(errors.NewShortage(key.ItemID, name, qty, available))
	}

	level.ReservedQuantity = level.ReservedQuantity.Add(qty)
	if err := s.ledgerRepo.UpdateStockTx(ctx, tx, key, level, false); err != nil {
		return nil, err
	}
	return level, nil
}

// Reserve runs ReserveTx in its own transaction.
func (s *LedgerService) Reserve(ctx context.Context, a *actor.Actor, key repository.StockKey, qty decimal.Decimal) (*repository.StockLevel, error) {
	if !a.CanActAt(key.LocationID) {
		return nil, errors.LocationMismatch(key.LocationID)
	}

	var level *repository.StockLevel
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.activeLocationTx(ctx, tx, key.LocationID); err != nil {
			return err
		}
		var err error
		level, err = s.ReserveTx(ctx, tx, key, qty)
		return err
	})
	if err != nil {
		return nil, err
	}
	return level, nil
}

// ReleaseTx returns up to qty of reserved stock to available. Releasing more
// than is reserved clamps at zero. Nothing is written when the item has no
// stock row at the location yet.
func (s *LedgerService) ReleaseTx(ctx context.Context, tx *sqlx.Tx, key repository.StockKey, qty decimal.Decimal) (*repository.StockLevel, error) {
	if !qty.IsPositive() {
		return nil, errors.InvalidField("quantity", "must be greater than zero")
	}

	level, err := s.ledgerRepo.LockExistingStockTx(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	if level == nil {
		return &repository.StockLevel{
			LocationID:       key.LocationID,
			ItemID:           key.ItemID,
			Quantity:         decimal.Zero,
			ReservedQuantity: decimal.Zero,
			ReorderLevel:     decimal.Zero,
		}, nil
	}

	release := decimal.Min(level.ReservedQuantity, qty)
	if release.IsZero() {
		return level, nil
	}
	if release.LessThan(qty) {
		s.logger.Warn().
			Str("key", key.String()).
			Str("requested", qty.String()).
			Str("reserved", level.ReservedQuantity.String()).
			Msg("release exceeds reservation, clamping")
	}

	level.ReservedQuantity = level.ReservedQuantity.Sub(release)
	if err := s.ledgerRepo.UpdateStockTx(ctx, tx, key, level, false); err != nil {
		return nil, err
	}
	return level, nil
}

// Release runs ReleaseTx in its own transaction.
func (s *LedgerService) Release(ctx context.Context, a *actor.Actor, key repository.StockKey, qty decimal.Decimal) (*repository.StockLevel, error) {
	if !a.CanActAt(key.LocationID) {
		return nil, errors.LocationMismatch(key.LocationID)
	}

	var level *repository.StockLevel
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.activeLocationTx(ctx, tx, key.LocationID); err != nil {
			return err
		}
		var err error
		level, err = s.ReleaseTx(ctx, tx, key, qty)
		return err
	})
	if err != nil {
		return nil, err
	}
	return level, nil
}

// GetAvailable returns quantity minus reserved; zero when no row exists yet.
func (s *LedgerService) GetAvailable(ctx context.Context, key repository.StockKey) (decimal.Decimal, error) {
	level, err := s.ledgerRepo.GetStock(ctx, key)
	if err != nil {
		return decimal.Zero, err
	}
	return level.Available(), nil
}

// GetStock returns one stock row, zero-valued when it does not exist yet.
func (s *LedgerService) GetStock(ctx context.Context, key repository.StockKey) (*repository.StockLevel, error) {
	if !key.Catalog.Valid() {
		return nil, errors.InvalidField("catalog", "unknown catalog")
	}
	return s.ledgerRepo.GetStock(ctx, key)
}

// ListStock lists all stock rows of a location for one catalog.
func (s *LedgerService) ListStock(ctx context.Context, catalog repository.Catalog, locationID string) ([]*repository.StockLevelView, error) {
	if !catalog.Valid() {
		return nil, errors.InvalidField("catalog", "unknown catalog")
	}
	if _, err := s.locationRepo.GetByID(ctx, locationID); err != nil {
		return nil, err
	}
	return s.ledgerRepo.ListStock(ctx, catalog, locationID)
}

// LowStock lists rows of a location whose available stock is at or below the reorder level.
func (s *LedgerService) LowStock(ctx context.Context, catalog repository.Catalog, locationID string) ([]*repository.StockLevelView, error) {
	if !catalog.Valid() {
		return nil, errors.InvalidField("catalog", "unknown catalog")
	}
	if _, err := s.locationRepo.GetByID(ctx, locationID); err != nil {
		return nil, err
	}
	return s.ledgerRepo.LowStock(ctx, catalog, locationID)
}

// ListMovements returns the latest movements of one stock row.
func (s *LedgerService) ListMovements(ctx context.Context, key repository.StockKey, limit int) ([]*repository.Movement, error) {
	if !key.Catalog.Valid() {
		return nil, errors.InvalidField("catalog", "unknown catalog")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.ledgerRepo.ListMovements(ctx, key, limit)
}

// MovementsByReference returns every movement booked against a document
// number, across both catalogs.
func (s *LedgerService) MovementsByReference(ctx context.Context, reference string) (map[repository.Catalog][]*repository.Movement, error) {
	if reference == "" {
		return nil, errors.InvalidField("reference", "is required")
	}

	result := make(map[repository.Catalog][]*repository.Movement, 2)
	for _, catalog := range []repository.Catalog{repository.CatalogProducts, repository.CatalogRawMaterials} {
		movements, err := s.ledgerRepo.MovementsByReference(ctx, catalog, reference)
		if err != nil {
			return nil, err
		}
		result[catalog] = movements
	}
	return result, nil
}

// VerifyLedger checks that the cached quantity equals the sum of movements.
func (s *LedgerService) VerifyLedger(ctx context.Context, key repository.StockKey) (*LedgerVerification, error) {
	level, err := s.GetStock(ctx, key)
	if err != nil {
		return nil, err
	}
	sum, err := s.ledgerRepo.SumMovements(ctx, key)
	if err != nil {
		return nil, err
	}

	v := &LedgerVerification{
		Key:            key,
		CachedQuantity: level.Quantity,
		MovementSum:    sum,
		Consistent:     level.Quantity.Equal(sum),
	}
	if !v.Consistent {
		s.logger.Error().
			Str("key", key.String()).
			Str("cached", level.Quantity.String()).
			Str("movements", sum.String()).
			Msg("ledger inconsistency detected")
	}
	return v, nil
}

// Notify publishes events for committed changes. Call it only after the
// transaction that produced the changes has committed.
func (s *LedgerService) Notify(ctx context.Context, changes ...*StockChange) {
	if s.publisher == nil {
		return
	}
	for _, c := range changes {
		if c == nil {
			continue
		}
		s.publisher.PublishStockAdjusted(ctx, c.Key, c.Movement, c.Level)

		if c.Movement.Quantity.IsNegative() && c.Level.IsLow() {
			name, err := s.ledgerRepo.ItemName(ctx, c.Key.Catalog, c.Key.ItemID)
			if err != nil {
				s.logger.Warn().Err(err).Str("key", c.Key.String()).Msg("failed to resolve item name")
			}
			s.publisher.PublishLowStock(ctx, c.Key, name, c.Level)
		}
	}
}

func (s *LedgerService) activeLocationTx(ctx context.Context, tx *sqlx.Tx, id string) (*repository.Location, error) {
	loc, err := s.locationRepo.GetByIDTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !loc.IsActive {
		return nil, errors.InvalidLocation("location " + loc.Code + " is not active")
	}
	return loc, nil
}

func actorID(a *actor.Actor) string {
	if a == nil {
		return actor.SystemID
	}
	return a.ID
}
