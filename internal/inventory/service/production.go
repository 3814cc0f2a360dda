package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/scentflow/scentflow-backend/internal/inventory/events"
	"github.com/scentflow/scentflow-backend/internal/inventory/repository"
	"github.com/scentflow/scentflow-backend/pkg/actor"
	"github.com/scentflow/scentflow-backend/pkg/database"
	"github.com/scentflow/scentflow-backend/pkg/errors"
	"github.com/scentflow/scentflow-backend/pkg/logger"
)

const productionPrefix = "PRD"

// MaterialAvailability is one requirement line checked against stock at a location.
type MaterialAvailability struct {
	MaterialRequirement
	Available  decimal.Decimal `json:"available"`
	Shortfall  decimal.Decimal `json:"shortfall"`
	Sufficient bool            `json:"sufficient"`
}

// AvailabilityReport answers whether a location can produce a quantity of a recipe.
type AvailabilityReport struct {
	RecipeID     string                 `json:"recipe_id"`
	LocationID   string                 `json:"location_id"`
	Quantity     decimal.Decimal        `json:"quantity"`
	Materials    []MaterialAvailability `json:"materials"`
	AllAvailable bool                   `json:"all_available"`
}

// Shortages returns the insufficient lines as shortage records.
func (r *AvailabilityReport) Shortages() []errors.Shortage {
	var shortages []errors.Shortage
	for _, m := range r.Materials {
		if !m.Sufficient {
			shortages = append(shortages, errors.NewShortage(m.RawMaterialID, m.Name, m.Quantity, m.Available))
		}
	}
	return shortages
}

// CreateOrderInput requests a production run. LocationID defaults to the actor's location.
type CreateOrderInput struct {
	RecipeID   string              `json:"recipe_id" validate:"required,uuid"`
	LocationID string              `json:"location_id" validate:"omitempty,uuid"`
	Quantity   decimal.Decimal     `json:"quantity" validate:"dpos"`
	Priority   repository.Priority `json:"priority"`
	DueDate    *time.Time          `json:"due_date,omitempty"`
	Notes      *string             `json:"notes,omitempty"`
	Submit     bool                `json:"submit"`
}

// ProductionService runs production orders: material planning, reservation
// at approval and atomic execution.
type ProductionService struct {
	db             *database.DB
	productionRepo *repository.ProductionRepository
	recipeRepo     *repository.RecipeRepository
	locationRepo   *repository.LocationRepository
	materialRepo   *repository.RawMaterialRepository
	ledgerRepo     *repository.LedgerRepository
	sequenceRepo   *repository.SequenceRepository
	ledger         *LedgerService
	publisher      *events.InventoryEventPublisher
	logger         *logger.Logger
	now            func() time.Time
}

// NewProductionService creates a new production service
func NewProductionService(
	db *database.DB,
	productionRepo *repository.ProductionRepository,
	recipeRepo *repository.RecipeRepository,
	locationRepo *repository.LocationRepository,
	materialRepo *repository.RawMaterialRepository,
	ledgerRepo *repository.LedgerRepository,
	sequenceRepo *repository.SequenceRepository,
	ledger *LedgerService,
	publisher *events.InventoryEventPublisher,
	log *logger.Logger,
) *ProductionService {
	return &ProductionService{
		db:             db,
		productionRepo: productionRepo,
		recipeRepo:     recipeRepo,
		locationRepo:   locationRepo,
		materialRepo:   materialRepo,
		ledgerRepo:     ledgerRepo,
		sequenceRepo:   sequenceRepo,
		ledger:         ledger,
		publisher:      publisher,
		logger:         log.WithComponent("production"),
		now:            time.Now,
	}
}

// FormatOrderNumber renders PRDYYYYMMDDNNNN.
func FormatOrderNumber(day time.Time, seq int) string {
	return fmt.Sprintf("%s%s%04d", productionPrefix, day.Format("20060102"), seq)
}

// Requirements computes the materials for quantity units of a recipe.
func (s *ProductionService) Requirements(ctx context.Context, recipeID string, quantity decimal.Decimal) ([]MaterialRequirement, error) {
	recipe, err := s.recipeRepo.GetByID(ctx, recipeID)
	if err != nil {
		return nil, err
	}
	return s.requirements(ctx, recipe, quantity)
}

func (s *ProductionService) requirements(ctx context.Context, recipe *repository.Recipe, quantity decimal.Decimal) ([]MaterialRequirement, error) {
	var ethanol *repository.RawMaterial
	if recipe.Type == repository.RecipePerfume {
		var err error
		if ethanol, err = s.materialRepo.DefaultEthanol(ctx); err != nil {
			return nil, err
		}
	}

	reqs, err := CalculateMaterialRequirements(recipe, quantity, ethanol)
	if err != nil {
		return nil, err
	}
	// Stock rows are locked in material order.
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].RawMaterialID < reqs[j].RawMaterialID })
	return reqs, nil
}

// CheckAvailability compares the requirements of a run with current stock. It
// takes no locks; Approve and Execute check again under lock.
func (s *ProductionService) CheckAvailability(ctx context.Context, recipeID, locationID string, quantity decimal.Decimal) (*AvailabilityReport, error) {
	recipe, err := s.recipeRepo.GetByID(ctx, recipeID)
	if err != nil {
		return nil, err
	}
	loc, err := s.locationRepo.GetByID(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if !recipe.CanProduceAt(loc.Type) {
		return nil, errors.InvalidLocation(fmt.Sprintf("recipe %s cannot be produced at a %s", recipe.Name, loc.Type))
	}

	reqs, err := s.requirements(ctx, recipe, quantity)
	if err != nil {
		return nil, err
	}

	report := &AvailabilityReport{
		RecipeID:     recipe.ID,
		LocationID:   loc.ID,
		Quantity:     quantity,
		Materials:    make([]MaterialAvailability, 0, len(reqs)),
		AllAvailable: true,
	}
	for _, req := range reqs {
		level, err := s.ledgerRepo.GetStock(ctx, materialKey(loc.ID, req.RawMaterialID))
		if err != nil {
			return nil, err
		}
		line := MaterialAvailability{
			MaterialRequirement: req,
			Available:           level.Available(),
			Shortfall:           decimal.Zero,
			Sufficient:          true,
		}
		if line.Available.LessThan(req.Quantity) {
			line.Shortfall = req.Quantity.Sub(line.Available)
			line.Sufficient = false
			report.AllAvailable = false
		}
		report.Materials = append(report.Materials, line)
	}
	return report, nil
}

// CreateOrder records a draft order, or a pending one when in.Submit is set.
func (s *ProductionService) CreateOrder(ctx context.Context, a *actor.Actor, in CreateOrderInput) (*repository.ProductionOrder, error) {
	if in.LocationID == "" {
		in.LocationID = a.LocationID
	}
	if in.LocationID == "" {
		return nil, errors.InvalidField("location_id", "is required for actors without a location")
	}
	if !in.Quantity.IsPositive() {
		return nil, errors.InvalidField("quantity", "must be greater than zero")
	}
	if in.Priority == "" {
		in.Priority = repository.PriorityNormal
	}
	if !in.Priority.Valid() {
		return nil, errors.InvalidField("priority", "must be one of low, normal, high, urgent")
	}
	if !a.CanActAt(in.LocationID) {
		return nil, errors.LocationMismatch(in.LocationID)
	}

	order := &repository.ProductionOrder{
		RecipeID:        in.RecipeID,
		LocationID:      in.LocationID,
		QuantityOrdered: in.Quantity,
		Status:          repository.ProductionDraft,
		Priority:        in.Priority,
		DueDate:         in.DueDate,
		Notes:           in.Notes,
		CreatedBy:       actorID(a),
	}

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		recipe, err := s.recipeRepo.GetByIDTx(ctx, tx, in.RecipeID)
		if err != nil {
			return err
		}
		if !recipe.IsActive {
			return errors.InvalidField("recipe_id", "recipe is not active")
		}
		if recipe.ProductID == nil {
			return errors.InvalidField("recipe_id", "recipe is not linked to a product")
		}
		loc, err := s.locationRepo.GetByIDTx(ctx, tx, in.LocationID)
		if err != nil {
			return err
		}
		if !loc.IsActive {
			return errors.InvalidLocation("location is not active")
		}
		if !recipe.CanProduceAt(loc.Type) {
			return errors.InvalidLocation(fmt.Sprintf("recipe %s cannot be produced at a %s", recipe.Name, loc.Type))
		}

		now := s.now()
		seq, err := s.sequenceRepo.NextTx(ctx, tx, productionPrefix, now)
		if err != nil {
			return err
		}
		order.OrderNumber = FormatOrderNumber(now, seq)
		order.ProductID = *recipe.ProductID
		if in.Submit {
			order.Status = repository.ProductionPending
			order.SubmittedAt = &now
		}
		return s.productionRepo.CreateTx(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("order_number", order.OrderNumber).
		Str("location_id", order.LocationID).
		Str("quantity", order.QuantityOrdered.String()).
		Str("status", string(order.Status)).
		Msg("production order created")

	s.publisher.PublishProductionStatus(ctx, order, "", actorID(a), "")
	if order.Status == repository.ProductionPending {
		s.publisher.PublishProductionStatus(ctx, order, repository.ProductionDraft, actorID(a), "")
	}
	return order, nil
}

// Submit moves a draft order to pending.
func (s *ProductionService) Submit(ctx context.Context, a *actor.Actor, id string) (*repository.ProductionOrder, error) {
	return s.transition(ctx, a, id, repository.ProductionPending, "submit", "", repository.ProductionStatus.CanSubmit,
		func(tx *sqlx.Tx, o *repository.ProductionOrder) ([]*StockChange, error) {
			now := s.now()
			o.SubmittedAt = &now
			return nil, nil
		})
}

// Approve reserves every required material at the order's location. Either all
// materials are reserved or the order stays pending with InsufficientMaterials.
func (s *ProductionService) Approve(ctx context.Context, a *actor.Actor, id string) (*repository.ProductionOrder, error) {
	return s.transition(ctx, a, id, repository.ProductionApproved, "approve", "", repository.ProductionStatus.CanApprove,
		func(tx *sqlx.Tx, o *repository.ProductionOrder) ([]*StockChange, error) {
			recipe, err := s.recipeRepo.GetByIDTx(ctx, tx, o.RecipeID)
			if err != nil {
				return nil, err
			}
			reqs, err := s.requirements(ctx, recipe, o.QuantityOrdered)
			if err != nil {
				return nil, err
			}

			var (
				shortages    []errors.Shortage
				reservations = make([]*repository.ProductionReservation, 0, len(reqs))
			)
			for _, req := range reqs {
				if _, err := s.ledger.ReserveTx(ctx, tx, materialKey(o.LocationID, req.RawMaterialID), req.Quantity); err != nil {
					var appErr *errors.AppError
					if errors.As(err, &appErr) && errors.Is(appErr, errors.ErrInsufficientStock) {
						shortages = append(shortages, appErr.Shortages...)
						continue
					}
					return nil, err
				}
				reservations = append(reservations, &repository.ProductionReservation{
					OrderID:       o.ID,
					RawMaterialID: req.RawMaterialID,
					Quantity:      req.Quantity,
				})
			}
			if len(shortages) > 0 {
				return nil, errors.InsufficientMaterials(shortages...)
			}
			if err := s.productionRepo.InsertReservationsTx(ctx, tx, reservations); err != nil {
				return nil, err
			}

			now := s.now()
			o.ApprovedBy, o.ApprovedAt = strPtr(actorID(a)), &now
			return nil, nil
		})
}

// Reject closes a pending order. A reason is required.
func (s *ProductionService) Reject(ctx context.Context, a *actor.Actor, id, reason string) (*repository.ProductionOrder, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errors.InvalidField("reason", "is required")
	}
	return s.transition(ctx, a, id, repository.ProductionRejected, "reject", reason, repository.ProductionStatus.CanReject,
		func(tx *sqlx.Tx, o *repository.ProductionOrder) ([]*StockChange, error) {
			now := s.now()
			o.RejectedBy, o.RejectedAt = strPtr(actorID(a)), &now
			o.RejectionReason = &reason
			return nil, nil
		})
}

// Start marks an approved order as in progress.
func (s *ProductionService) Start(ctx context.Context, a *actor.Actor, id string) (*repository.ProductionOrder, error) {
	return s.transition(ctx, a, id, repository.ProductionInProgress, "start", "", repository.ProductionStatus.CanStart,
		func(tx *sqlx.Tx, o *repository.ProductionOrder) ([]*StockChange, error) {
			now := s.now()
			o.StartedBy, o.StartedAt = strPtr(actorID(a)), &now
			return nil, nil
		})
}

// Execute consumes the materials for actualQuantity (the ordered quantity when
// nil) and books the finished units into the product ledger, all in one
// transaction. The order's own reservation counts as available to it.
func (s *ProductionService) Execute(ctx context.Context, a *actor.Actor, id string, actualQuantity *decimal.Decimal) (*repository.ProductionOrder, error) {
	if actualQuantity != nil && !actualQuantity.IsPositive() {
		return nil, errors.InvalidField("actual_quantity", "must be greater than zero")
	}

	return s.transition(ctx, a, id, repository.ProductionCompleted, "execute", "", repository.ProductionStatus.CanExecute,
		func(tx *sqlx.Tx, o *repository.ProductionOrder) ([]*StockChange, error) {
			quantity := o.QuantityOrdered
			if actualQuantity != nil {
				quantity = *actualQuantity
			}

			recipe, err := s.recipeRepo.GetByIDTx(ctx, tx, o.RecipeID)
			if err != nil {
				return nil, err
			}
			reqs, err := s.requirements(ctx, recipe, quantity)
			if err != nil {
				return nil, err
			}
			own, err := s.productionRepo.ReservationsTx(ctx, tx, o.ID)
			if err != nil {
				return nil, err
			}

			var shortages []errors.Shortage
			for _, req := range reqs {
				level, err := s.ledgerRepo.LockStockTx(ctx, tx, materialKey(o.LocationID, req.RawMaterialID))
				if err != nil {
					return nil, err
				}
				usable := level.Quantity.Sub(level.ReservedQuantity.Sub(own[req.RawMaterialID]))
				if usable.LessThan(req.Quantity) {
					shortages = append(shortages, errors.NewShortage(req.RawMaterialID, req.Name, req.Quantity, usable))
				}
			}
			if len(shortages) > 0 {
				return nil, errors.InsufficientMaterials(shortages...)
			}

			if err := s.releaseReservationsTx(ctx, tx, o, own); err != nil {
				return nil, err
			}

			changes := make([]*StockChange, 0, len(reqs)+1)
			for _, req := range reqs {
				change, err := s.ledger.AdjustStockTx(ctx, tx, a, AdjustRequest{
					Key:               materialKey(o.LocationID, req.RawMaterialID),
					Delta:             req.Quantity.Neg(),
					MovementType:      repository.MovementProductionConsumption,
					Reference:         o.OrderNumber,
					ProductionOrderID: &o.ID,
				})
				if err != nil {
					return nil, err
				}
				changes = append(changes, change)

				if err := s.productionRepo.InsertConsumptionTx(ctx, tx, &repository.MaterialConsumption{
					OrderID:          o.ID,
					RawMaterialID:    req.RawMaterialID,
					QuantityRequired: req.Quantity,
					QuantityConsumed: req.Quantity,
				}); err != nil {
					return nil, err
				}
			}

			output, err := s.ledger.AdjustStockTx(ctx, tx, a, AdjustRequest{
				Key:               repository.StockKey{Catalog: repository.CatalogProducts, LocationID: o.LocationID, ItemID: o.ProductID},
				Delta:             quantity,
				MovementType:      repository.MovementProductionOutput,
				Reference:         o.OrderNumber,
				ProductionOrderID: &o.ID,
			})
			if err != nil {
				return nil, err
			}
			changes = append(changes, output)

			now := s.now()
			o.QuantityProduced = decimal.NewNullDecimal(quantity)
			o.CompletedBy, o.CompletedAt = strPtr(actorID(a)), &now
			return changes, nil
		})
}

// Cancel withdraws an order that has not started. Reservations of an approved
// order are released.
func (s *ProductionService) Cancel(ctx context.Context, a *actor.Actor, id, reason string) (*repository.ProductionOrder, error) {
	reason = strings.TrimSpace(reason)
	return s.transition(ctx, a, id, repository.ProductionCancelled, "cancel", reason, repository.ProductionStatus.CanCancel,
		func(tx *sqlx.Tx, o *repository.ProductionOrder) ([]*StockChange, error) {
			if o.Status.HoldsReservation() {
				own, err := s.productionRepo.ReservationsTx(ctx, tx, o.ID)
				if err != nil {
					return nil, err
				}
				if err := s.releaseReservationsTx(ctx, tx, o, own); err != nil {
					return nil, err
				}
			}

			now := s.now()
			o.CancelledBy, o.CancelledAt = strPtr(actorID(a)), &now
			if reason != "" {
				o.CancellationReason = &reason
			}
			return nil, nil
		})
}

// releaseReservationsTx releases everything an order reserved and drops the records.
func (s *ProductionService) releaseReservationsTx(ctx context.Context, tx *sqlx.Tx, o *repository.ProductionOrder, own map[string]decimal.Decimal) error {
	ids := make([]string, 0, len(own))
	for id := range own {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if !own[id].IsPositive() {
			continue
		}
		if _, err := s.ledger.ReleaseTx(ctx, tx, materialKey(o.LocationID, id), own[id]); err != nil {
			return err
		}
	}
	return s.productionRepo.DeleteReservationsTx(ctx, tx, o.ID)
}

// transition locks the order, checks the state machine and the actor's
// location, runs apply and persists the result. Events go out after commit.
func (s *ProductionService) transition(
	ctx context.Context,
	a *actor.Actor,
	id string,
	next repository.ProductionStatus,
	action string,
	reason string,
	allowed func(repository.ProductionStatus) bool,
	apply func(tx *sqlx.Tx, o *repository.ProductionOrder) ([]*StockChange, error),
) (*repository.ProductionOrder, error) {
	var (
		order   *repository.ProductionOrder
		from    repository.ProductionStatus
		changes []*StockChange
	)

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		o, err := s.productionRepo.LockTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if !allowed(o.Status) {
			return errors.InvalidStateTransition("production order", string(o.Status), action)
		}
		if !a.CanActAt(o.LocationID) {
			return errors.LocationMismatch(o.LocationID)
		}

		changes, err = apply(tx, o)
		if err != nil {
			return err
		}

		from = o.Status
		o.Status = next
		if err := s.productionRepo.UpdateTx(ctx, tx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		if errors.Is(err, errors.ErrInsufficientMaterials) {
			s.logger.Warn().Err(err).Str("order_id", id).Str("action", action).Msg("production blocked by materials")
		}
		return nil, err
	}

	s.logger.Info().
		Str("order_number", order.OrderNumber).
		Str("from", string(from)).
		Str("to", string(next)).
		Str("actor_id", actorID(a)).
		Msg("production order transitioned")

	s.ledger.Notify(ctx, changes...)
	s.publisher.PublishProductionStatus(ctx, order, from, actorID(a), reason)
	return order, nil
}

// Get returns an order with its material consumptions.
func (s *ProductionService) Get(ctx context.Context, id string) (*repository.ProductionOrder, error) {
	return s.productionRepo.GetByID(ctx, id)
}

// List lists orders.
func (s *ProductionService) List(ctx context.Context, filter repository.ProductionFilter) ([]*repository.ProductionOrder, int64, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, errors.InvalidField("status", "unknown production status")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 || filter.PerPage > 100 {
		filter.PerPage = 20
	}
	return s.productionRepo.List(ctx, filter)
}

// Stats counts orders per status and the units completed this calendar month.
func (s *ProductionService) Stats(ctx context.Context, locationID string) (*repository.ProductionStats, error) {
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return s.productionRepo.Stats(ctx, locationID, monthStart)
}

// LowStockMaterials lists raw materials at or below their reorder level.
func (s *ProductionService) LowStockMaterials(ctx context.Context, locationID string) ([]*repository.StockLevelView, error) {
	return s.ledger.LowStock(ctx, repository.CatalogRawMaterials, locationID)
}

func materialKey(locationID, materialID string) repository.StockKey {
	return repository.StockKey{Catalog: repository.CatalogRawMaterials, LocationID: locationID, ItemID: materialID}
}
