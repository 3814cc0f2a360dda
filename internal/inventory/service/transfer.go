package service

import (
	"context"
	"fmt"
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

const transferPrefix = "TRF"

// TransferLineInput is one requested line of a new transfer.
type TransferLineInput struct {
	ItemType repository.ItemType `json:"item_type"`
	ItemID   string              `json:"item_id" validate:"required,uuid"`
	Quantity decimal.Decimal     `json:"quantity" validate:"dpos"`
	Notes    *string             `json:"notes,omitempty"`
}

// CreateTransferInput requests stock to be moved between two locations.
// ToLocationID defaults to the actor's location and FromLocationID to the
// destination's parent warehouse.
type CreateTransferInput struct {
	FromLocationID       string              `json:"from_location_id" validate:"omitempty,uuid"`
	ToLocationID         string              `json:"to_location_id" validate:"omitempty,uuid"`
	Priority             repository.Priority `json:"priority"`
	ExpectedDeliveryDate *time.Time          `json:"expected_delivery_date,omitempty"`
	Notes                *string             `json:"notes,omitempty"`
	Items                []TransferLineInput `json:"items" validate:"required,min=1,dive"`
}

// TransferStageInput carries per-line quantities for approve and receive,
// keyed by item id. Lines without an entry keep their default.
type TransferStageInput struct {
	Quantities map[string]decimal.Decimal `json:"quantities,omitempty"`
	Notes      *string                    `json:"notes,omitempty"`
}

// TransferService runs the transfer workflow on top of the stock ledger.
type TransferService struct {
	db           *database.DB
	transferRepo *repository.TransferRepository
	locationRepo *repository.LocationRepository
	ledgerRepo   *repository.LedgerRepository
	sequenceRepo *repository.SequenceRepository
	ledger       *LedgerService
	publisher    *events.InventoryEventPublisher
	logger       *logger.Logger
	now          func() time.Time
}

// NewTransferService creates a new transfer service
func NewTransferService(
	db *database.DB,
	transferRepo *repository.TransferRepository,
	locationRepo *repository.LocationRepository,
	ledgerRepo *repository.LedgerRepository,
	sequenceRepo *repository.SequenceRepository,
	ledger *LedgerService,
	publisher *events.InventoryEventPublisher,
	log *logger.Logger,
) *TransferService {
	return &TransferService{
		db:           db,
		transferRepo: transferRepo,
		locationRepo: locationRepo,
		ledgerRepo:   ledgerRepo,
		sequenceRepo: sequenceRepo,
		ledger:       ledger,
		publisher:    publisher,
		logger:       log.WithComponent("transfers"),
		now:          time.Now,
	}
}

// FormatTransferNumber renders TRF-YYYYMMDD-NNN.
func FormatTransferNumber(day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%03d", transferPrefix, day.Format("20060102"), seq)
}

// Create records a requested transfer. It has no stock effect.
func (s *TransferService) Create(ctx context.Context, a *actor.Actor, in CreateTransferInput) (*repository.Transfer, error) {
	if in.ToLocationID == "" {
		in.ToLocationID = a.LocationID
	}
	if in.ToLocationID == "" {
		return nil, errors.InvalidField("to_location_id", "is required for actors without a location")
	}
	if in.Priority == "" {
		in.Priority = repository.PriorityNormal
	}
	if !in.Priority.Valid() {
		return nil, errors.InvalidField("priority", "must be one of low, normal, high, urgent")
	}
	if len(in.Items) == 0 {
		return nil, errors.InvalidField("items", "at least one line is required")
	}

	seen := make(map[string]bool, len(in.Items))
	items := make([]*repository.TransferItem, 0, len(in.Items))
	for i, line := range in.Items {
		if line.ItemType == "" {
			line.ItemType = repository.ItemTypeProduct
		}
		if line.ItemType != repository.ItemTypeProduct && line.ItemType != repository.ItemTypeRawMaterial {
			return nil, errors.InvalidField(fmt.Sprintf("items[%d].item_type", i), "must be product or raw_material")
		}
		if !line.Quantity.IsPositive() {
			return nil, errors.InvalidField(fmt.Sprintf("items[%d].quantity", i), "must be greater than zero")
		}
		dedupe := string(line.ItemType) + ":" + line.ItemID
		if seen[dedupe] {
			return nil, errors.InvalidField(fmt.Sprintf("items[%d].item_id", i), "duplicate item")
		}
		seen[dedupe] = true

		items = append(items, &repository.TransferItem{
			ItemType:          line.ItemType,
			ItemID:            line.ItemID,
			QuantityRequested: line.Quantity,
			Notes:             line.Notes,
		})
	}

	transfer := &repository.Transfer{
		ToLocationID:         in.ToLocationID,
		FromLocationID:       in.FromLocationID,
		Status:               repository.TransferRequested,
		Priority:             in.Priority,
		ExpectedDeliveryDate: in.ExpectedDeliveryDate,
		RequestedBy:          actorID(a),
		RequestNotes:         in.Notes,
		Items:                items,
	}

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		dest, err := s.locationRepo.GetByIDTx(ctx, tx, transfer.ToLocationID)
		if err != nil {
			return err
		}
		if transfer.FromLocationID == "" {
			if dest.ParentWarehouseID == nil {
				return errors.InvalidField("from_location_id", "is required when the destination has no parent warehouse")
			}
			transfer.FromLocationID = *dest.ParentWarehouseID
		}
		if transfer.FromLocationID == transfer.ToLocationID {
			return errors.InvalidLocation("source and destination must differ")
		}
		source, err := s.locationRepo.GetByIDTx(ctx, tx, transfer.FromLocationID)
		if err != nil {
			return err
		}
		if !source.IsActive || !dest.IsActive {
			return errors.InvalidLocation("source and destination must be active")
		}
		if !a.CanActAtAny(source.ID, dest.ID) {
			return errors.LocationMismatch(dest.ID)
		}

		for _, item := range items {
			name, err := s.ledgerRepo.ItemNameTx(ctx, tx, item.ItemType.Catalog(), item.ItemID)
			if err != nil {
				return err
			}
			if name == "" {
				return errors.NotFound(string(item.ItemType))
			}
		}

		now := s.now()
		seq, err := s.sequenceRepo.NextTx(ctx, tx, transferPrefix, now)
		if err != nil {
			return err
		}
		transfer.TransferNumber = FormatTransferNumber(now, seq)

		return s.transferRepo.CreateTx(ctx, tx, transfer)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("transfer_number", transfer.TransferNumber).
		Str("from", transfer.FromLocationID).
		Str("to", transfer.ToLocationID).
		Int("lines", len(transfer.Items)).
		Msg("transfer requested")

	s.publisher.PublishTransferStatus(ctx, transfer, "", actorID(a), "")
	return transfer, nil
}

// Approve fixes approved quantities and reserves them at the source. All lines
// are reserved or none; shortages from every line are reported together.
func (s *TransferService) Approve(ctx context.Context, a *actor.Actor, id string, in TransferStageInput) (*repository.Transfer, error) {
	return s.transition(ctx, a, id, repository.TransferApproved, "approve", "", func(tx *sqlx.Tx, t *repository.Transfer) ([]*StockChange, error) {
		if !a.CanActAt(t.FromLocationID) {
			return nil, errors.LocationMismatch(t.FromLocationID)
		}

		var shortages []errors.Shortage
		for _, item := range t.Items {
			approved := item.QuantityRequested
			if q, ok := in.Quantities[item.ItemID]; ok {
				approved = q
			}
			if !approved.IsPositive() || approved.GreaterThan(item.QuantityRequested) {
				return nil, errors.InvalidField("quantities."+item.ItemID, "must be greater than zero and not exceed the requested quantity")
			}

			key := repository.StockKey{Catalog: item.ItemType.Catalog(), LocationID: t.FromLocationID, ItemID: item.ItemID}
			if _, err := s.ledger.ReserveTx(ctx, tx, key, approved); err != nil {
				var appErr *errors.AppError
				if errors.As(err, &appErr) && errors.Is(appErr, errors.ErrInsufficientStock) {
					shortages = append(shortages, appErr.Shortages...)
					continue
				}
				return nil, err
			}

			item.QuantityApproved = decimal.NewNullDecimal(approved)
			if err := s.transferRepo.UpdateItemTx(ctx, tx, item); err != nil {
				return nil, err
			}
		}
		if len(shortages) > 0 {
			return nil, errors.InsufficientStock(shortages...)
		}

		now := s.now()
		t.ApprovedBy, t.ApprovedAt = strPtr(actorID(a)), &now
		t.ApprovalNotes = in.Notes
		return nil, nil
	})
}

// Reject closes a requested transfer without stock effect. A reason is required.
func (s *TransferService) Reject(ctx context.Context, a *actor.Actor, id, reason string) (*repository.Transfer, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errors.InvalidField("reason", "is required")
	}

	return s.transition(ctx, a, id, repository.TransferRejected, "reject", reason, func(tx *sqlx.Tx, t *repository.Transfer) ([]*StockChange, error) {
		if !a.CanActAt(t.FromLocationID) {
			return nil, errors.LocationMismatch(t.FromLocationID)
		}
		now := s.now()
		t.RejectedBy, t.RejectedAt = strPtr(actorID(a)), &now
		t.RejectionReason = &reason
		return nil, nil
	})
}

// Dispatch ships the approved quantities: each line's reservation is released
// and the same quantity is deducted from the source.
func (s *TransferService) Dispatch(ctx context.Context, a *actor.Actor, id string, notes *string) (*repository.Transfer, error) {
	return s.transition(ctx, a, id, repository.TransferDispatched, "dispatch", "", func(tx *sqlx.Tx, t *repository.Transfer) ([]*StockChange, error) {
		if !a.CanActAt(t.FromLocationID) {
			return nil, errors.LocationMismatch(t.FromLocationID)
		}

		changes := make([]*StockChange, 0, len(t.Items))
		for _, item := range t.Items {
			approved := item.QuantityApproved.Decimal
			key := repository.StockKey{Catalog: item.ItemType.Catalog(), LocationID: t.FromLocationID, ItemID: item.ItemID}

			if _, err := s.ledger.ReleaseTx(ctx, tx, key, approved); err != nil {
				return nil, err
			}
			change, err := s.ledger.AdjustStockTx(ctx, tx, a, AdjustRequest{
				Key:          key,
				Delta:        approved.Neg(),
				MovementType: repository.MovementTransferOut,
				Reference:    t.TransferNumber,
				TransferID:   &t.ID,
			})
			if err != nil {
				return nil, err
			}
			changes = append(changes, change)

			item.QuantityDispatched = decimal.NewNullDecimal(approved)
			if err := s.transferRepo.UpdateItemTx(ctx, tx, item); err != nil {
				return nil, err
			}
		}

		now := s.now()
		t.DispatchedBy, t.DispatchedAt = strPtr(actorID(a)), &now
		t.DispatchNotes = notes
		return changes, nil
	})
}

// Receive books the received quantities into the destination. Receiving less
// than was dispatched is accepted and kept as a discrepancy.
func (s *TransferService) Receive(ctx context.Context, a *actor.Actor, id string, in TransferStageInput) (*repository.Transfer, error) {
	return s.transition(ctx, a, id, repository.TransferReceived, "receive", "", func(tx *sqlx.Tx, t *repository.Transfer) ([]*StockChange, error) {
		if !a.CanActAt(t.ToLocationID) {
			return nil, errors.LocationMismatch(t.ToLocationID)
		}

		changes := make([]*StockChange, 0, len(t.Items))
		for _, item := range t.Items {
			dispatched := item.QuantityDispatched.Decimal
			received := dispatched
			if q, ok := in.Quantities[item.ItemID]; ok {
				received = q
			}
			if received.IsNegative() || received.GreaterThan(dispatched) {
				return nil, errors.InvalidField("quantities."+item.ItemID, "must be between zero and the dispatched quantity")
			}

			if received.IsPositive() {
				change, err := s.ledger.AdjustStockTx(ctx, tx, a, AdjustRequest{
					Key:          repository.StockKey{Catalog: item.ItemType.Catalog(), LocationID: t.ToLocationID, ItemID: item.ItemID},
					Delta:        received,
					MovementType: repository.MovementTransferIn,
					Reference:    t.TransferNumber,
					TransferID:   &t.ID,
				})
				if err != nil {
					return nil, err
				}
				changes = append(changes, change)
			}

			if received.LessThan(dispatched) {
				s.logger.Warn().
					Str("transfer_number", t.TransferNumber).
					Str("item_id", item.ItemID).
					Str("dispatched", dispatched.String()).
					Str("received", received.String()).
					Msg("transfer received short")
			}

			item.QuantityReceived = decimal.NewNullDecimal(received)
			if err := s.transferRepo.UpdateItemTx(ctx, tx, item); err != nil {
				return nil, err
			}
		}

		now := s.now()
		t.ReceivedBy, t.ReceivedAt = strPtr(actorID(a)), &now
		t.ReceiveNotes = in.Notes
		return changes, nil
	})
}

// Cancel withdraws a requested or approved transfer. Reservations taken at
// approval are released.
func (s *TransferService) Cancel(ctx context.Context, a *actor.Actor, id, reason string) (*repository.Transfer, error) {
	reason = strings.TrimSpace(reason)

	return s.transition(ctx, a, id, repository.TransferCancelled, "cancel", reason, func(tx *sqlx.Tx, t *repository.Transfer) ([]*StockChange, error) {
		if !a.CanActAtAny(t.FromLocationID, t.ToLocationID) {
			return nil, errors.LocationMismatch(t.FromLocationID)
		}

		if t.Status == repository.TransferApproved {
			for _, item := range t.Items {
				if !item.QuantityApproved.Valid || !item.QuantityApproved.Decimal.IsPositive() {
					continue
				}
				key := repository.StockKey{Catalog: item.ItemType.Catalog(), LocationID: t.FromLocationID, ItemID: item.ItemID}
				if _, err := s.ledger.ReleaseTx(ctx, tx, key, item.QuantityApproved.Decimal); err != nil {
					return nil, err
				}
			}
		}

		now := s.now()
		t.CancelledBy, t.CancelledAt = strPtr(actorID(a)), &now
		if reason != "" {
			t.CancellationReason = &reason
		}
		return nil, nil
	})
}

// transition locks the transfer, checks the state machine, runs apply and
// persists the new status in one transaction. Events go out after commit.
func (s *TransferService) transition(
	ctx context.Context,
	a *actor.Actor,
	id string,
	next repository.TransferStatus,
	action string,
	reason string,
	apply func(tx *sqlx.Tx, t *repository.Transfer) ([]*StockChange, error),
) (*repository.Transfer, error) {
	var (
		transfer *repository.Transfer
		from     repository.TransferStatus
		changes  []*StockChange
	)

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		t, err := s.transferRepo.LockTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if !t.Status.CanTransitionTo(next) {
			return errors.InvalidStateTransition("transfer", string(t.Status), action)
		}

		changes, err = apply(tx, t)
		if err != nil {
			return err
		}

		from = t.Status
		t.Status = next
		if err := s.transferRepo.UpdateTx(ctx, tx, t); err != nil {
			return err
		}
		transfer = t
		return nil
	})
	if err != nil {
		s.logger.Debug().Err(err).Str("transfer_id", id).Str("action", action).Msg("transfer transition failed")
		return nil, err
	}

	s.logger.Info().
		Str("transfer_number", transfer.TransferNumber).
		Str("from", string(from)).
		Str("to", string(next)).
		Str("actor_id", actorID(a)).
		Msg("transfer transitioned")

	s.ledger.Notify(ctx, changes...)
	s.publisher.PublishTransferStatus(ctx, transfer, from, actorID(a), reason)
	return transfer, nil
}

// Get returns a transfer with its lines.
func (s *TransferService) Get(ctx context.Context, id string) (*repository.Transfer, error) {
	return s.transferRepo.GetByID(ctx, id)
}

// List lists transfers.
func (s *TransferService) List(ctx context.Context, filter repository.TransferFilter) ([]*repository.Transfer, int64, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, errors.InvalidField("status", "unknown transfer status")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 || filter.PerPage > 100 {
		filter.PerPage = 20
	}
	return s.transferRepo.List(ctx, filter)
}

// Discrepancies lists under-received lines touching a location.
func (s *TransferService) Discrepancies(ctx context.Context, locationID string) ([]*repository.TransferDiscrepancy, error) {
	return s.transferRepo.Discrepancies(ctx, locationID)
}

func strPtr(s string) *string {
	return &s
}
