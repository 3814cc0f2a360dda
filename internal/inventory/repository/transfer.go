package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/scentflow/scentflow-backend/pkg/database"
	"github.com/scentflow/scentflow-backend/pkg/errors"
)

// TransferStatus is the lifecycle state of a stock transfer.
type TransferStatus string

const (
	TransferRequested  TransferStatus = "requested"
	TransferApproved   TransferStatus = "approved"
	TransferRejected   TransferStatus = "rejected"
	TransferDispatched TransferStatus = "dispatched"
	TransferReceived   TransferStatus = "received"
	TransferCancelled  TransferStatus = "cancelled"
)

var transferTransitions = map[TransferStatus][]TransferStatus{
	TransferRequested:  {TransferApproved, TransferRejected, TransferCancelled},
	TransferApproved:   {TransferDispatched, TransferCancelled},
	TransferDispatched: {TransferReceived},
}

// CanTransitionTo reports whether a transfer in status s may move to next.
func (s TransferStatus) CanTransitionTo(next TransferStatus) bool {
	for _, allowed := range transferTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s TransferStatus) Valid() bool {
	switch s {
	case TransferRequested, TransferApproved, TransferRejected, TransferDispatched, TransferReceived, TransferCancelled:
		return true
	}
	return false
}

// Priority orders transfers and production orders for the people working them.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ItemType tells which catalog a transfer line draws from.
type ItemType string

const (
	ItemTypeProduct     ItemType = "product"
	ItemTypeRawMaterial ItemType = "raw_material"
)

// Catalog maps the line item type to its ledger.
func (t ItemType) Catalog() Catalog {
	if t == ItemTypeRawMaterial {
		return CatalogRawMaterials
	}
	return CatalogProducts
}

// Transfer moves stock from a source location to a destination.
type Transfer struct {
	ID                   string         `db:"id" json:"id"`
	TransferNumber       string         `db:"transfer_number" json:"transfer_number"`
	FromLocationID       string         `db:"from_location_id" json:"from_location_id"`
	ToLocationID         string         `db:"to_location_id" json:"to_location_id"`
	Status               TransferStatus `db:"status" json:"status"`
	Priority             Priority       `db:"priority" json:"priority"`
	ExpectedDeliveryDate *time.Time     `db:"expected_delivery_date" json:"expected_delivery_date,omitempty"`
	RequestedBy          string         `db:"requested_by" json:"requested_by"`
	RequestedAt          time.Time      `db:"requested_at" json:"requested_at"`
	ApprovedBy           *string        `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt           *time.Time     `db:"approved_at" json:"approved_at,omitempty"`
	DispatchedBy         *string        `db:"dispatched_by" json:"dispatched_by,omitempty"`
	DispatchedAt         *time.Time     `db:"dispatched_at" json:"dispatched_at,omitempty"`
	ReceivedBy           *string        `db:"received_by" json:"received_by,omitempty"`
	ReceivedAt           *time.Time     `db:"received_at" json:"received_at,omitempty"`
	RejectedBy           *string        `db:"rejected_by" json:"rejected_by,omitempty"`
	RejectedAt           *time.Time     `db:"rejected_at" json:"rejected_at,omitempty"`
	CancelledBy          *string        `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancelledAt          *time.Time     `db:"cancelled_at" json:"cancelled_at,omitempty"`
	RequestNotes         *string        `db:"request_notes" json:"request_notes,omitempty"`
	ApprovalNotes        *string        `db:"approval_notes" json:"approval_notes,omitempty"`
	DispatchNotes        *string        `db:"dispatch_notes" json:"dispatch_notes,omitempty"`
	ReceiveNotes         *string        `db:"receive_notes" json:"receive_notes,omitempty"`
	RejectionReason      *string        `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CancellationReason   *string        `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	UpdatedAt            time.Time      `db:"updated_at" json:"updated_at"`

	Items []*TransferItem `db:"-" json:"items"`
}

// TransferItem is one line of a transfer. Stage quantities are nil until the
// stage is reached.
type TransferItem struct {
	ID                 string              `db:"id" json:"id"`
	TransferID         string              `db:"transfer_id" json:"transfer_id"`
	ItemType           ItemType            `db:"item_type" json:"item_type"`
	ItemID             string              `db:"item_id" json:"item_id"`
	QuantityRequested  decimal.Decimal     `db:"quantity_requested" json:"quantity_requested"`
	QuantityApproved   decimal.NullDecimal `db:"quantity_approved" json:"quantity_approved"`
	QuantityDispatched decimal.NullDecimal `db:"quantity_dispatched" json:"quantity_dispatched"`
	QuantityReceived   decimal.NullDecimal `db:"quantity_received" json:"quantity_received"`
	Notes              *string             `db:"notes" json:"notes,omitempty"`
}

// Discrepancy returns dispatched minus received for a received line.
func (i *TransferItem) Discrepancy() decimal.Decimal {
	if !i.QuantityDispatched.Valid || !i.QuantityReceived.Valid {
		return decimal.Zero
	}
	return i.QuantityDispatched.Decimal.Sub(i.QuantityReceived.Decimal)
}

// TransferDiscrepancy is a received line with less than was dispatched.
type TransferDiscrepancy struct {
	TransferID         string          `db:"transfer_id" json:"transfer_id"`
	TransferNumber     string          `db:"transfer_number" json:"transfer_number"`
	FromLocationID     string          `db:"from_location_id" json:"from_location_id"`
	ToLocationID       string          `db:"to_location_id" json:"to_location_id"`
	ReceivedAt         *time.Time      `db:"received_at" json:"received_at,omitempty"`
	ItemType           ItemType        `db:"item_type" json:"item_type"`
	ItemID             string          `db:"item_id" json:"item_id"`
	QuantityDispatched decimal.Decimal `db:"quantity_dispatched" json:"quantity_dispatched"`
	QuantityReceived   decimal.Decimal `db:"quantity_received" json:"quantity_received"`
	Shortfall          decimal.Decimal `db:"shortfall" json:"shortfall"`
}

// TransferFilter narrows List results.
type TransferFilter struct {
	Status     TransferStatus
	LocationID string // source or destination
	Page       int
	PerPage    int
}

// TransferRepository handles transfer persistence
type TransferRepository struct {
	db *database.DB
}

// NewTransferRepository creates a new transfer repository
func NewTransferRepository(db *database.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

// CreateTx inserts a transfer header and its lines.
func (r *TransferRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, t *Transfer) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}

	query := `
		INSERT INTO stock_transfers (
			id, transfer_number, from_location_id, to_location_id, status, priority,
			expected_delivery_date, requested_by, request_notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING requested_at, updated_at
	`
	err := tx.QueryRowxContext(ctx, query,
		t.ID, t.TransferNumber, t.FromLocationID, t.ToLocationID, t.Status, t.Priority,
		t.ExpectedDeliveryDate, t.RequestedBy, t.RequestNotes,
	).Scan(&t.RequestedAt, &t.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	for _, item := range t.Items {
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.TransferID = t.ID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stock_transfer_items (id, transfer_id, item_type, item_id, quantity_requested, notes)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, item.ID, item.TransferID, item.ItemType, item.ItemID, item.QuantityRequested, item.Notes); err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}
	}
	return nil
}

// GetByID returns a transfer with its lines.
func (r *TransferRepository) GetByID(ctx context.Context, id string) (*Transfer, error) {
	return r.load(ctx, r.db, id, false)
}

// LockTx returns a transfer with its lines and locks the header row FOR UPDATE.
func (r *TransferRepository) LockTx(ctx context.Context, tx *sqlx.Tx, id string) (*Transfer, error) {
	return r.load(ctx, tx, id, true)
}

func (r *TransferRepository) load(ctx context.Context, q sqlx.QueryerContext, id string, lock bool) (*Transfer, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotFound("transfer")
	}

	query := `SELECT * FROM stock_transfers WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var t Transfer
	if err := sqlx.GetContext(ctx, q, &t, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("transfer")
		}
		return nil, err
	}

	// Lines in item order so that stock rows are always locked in the same order.
	if err := sqlx.SelectContext(ctx, q, &t.Items,
		`SELECT * FROM stock_transfer_items WHERE transfer_id = $1 ORDER BY item_type, item_id`, id); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTx persists the mutable header fields of a transfer.
func (r *TransferRepository) UpdateTx(ctx context.Context, tx *sqlx.Tx, t *Transfer) error {
	query := `
		UPDATE stock_transfers SET
			status = $2,
			approved_by = $3, approved_at = $4,
			dispatched_by = $5, dispatched_at = $6,
			received_by = $7, received_at = $8,
			rejected_by = $9, rejected_at = $10,
			cancelled_by = $11, cancelled_at = $12,
			approval_notes = $13, dispatch_notes = $14, receive_notes = $15,
			rejection_reason = $16, cancellation_reason = $17,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	return tx.QueryRowxContext(ctx, query,
		t.ID, t.Status,
		t.ApprovedBy, t.ApprovedAt,
		t.DispatchedBy, t.DispatchedAt,
		t.ReceivedBy, t.ReceivedAt,
		t.RejectedBy, t.RejectedAt,
		t.CancelledBy, t.CancelledAt,
		t.ApprovalNotes, t.DispatchNotes, t.ReceiveNotes,
		t.RejectionReason, t.CancellationReason,
	).Scan(&t.UpdatedAt)
}

// UpdateItemTx persists the stage quantities of a line.
func (r *TransferRepository) UpdateItemTx(ctx context.Context, tx *sqlx.Tx, item *TransferItem) error {
	query := `
		UPDATE stock_transfer_items SET
			quantity_approved = $2, quantity_dispatched = $3, quantity_received = $4, notes = $5
		WHERE id = $1
	`
	_, err := tx.ExecContext(ctx, query,
		item.ID, item.QuantityApproved, item.QuantityDispatched, item.QuantityReceived, item.Notes,
	)
	if appErr := database.MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}

// List lists transfers newest first. Lines are not loaded.
func (r *TransferRepository) List(ctx context.Context, filter TransferFilter) ([]*Transfer, int64, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.LocationID != "" {
		args = append(args, filter.LocationID)
		conditions = append(conditions, fmt.Sprintf("(from_location_id = $%d OR to_location_id = $%d)", len(args), len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM stock_transfers`+where, args...); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)
	query := fmt.Sprintf(`SELECT * FROM stock_transfers%s ORDER BY requested_at DESC, id LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))

	var transfers []*Transfer
	if err := r.db.SelectContext(ctx, &transfers, query, args...); err != nil {
		return nil, 0, err
	}
	return transfers, total, nil
}

// Discrepancies lists received lines where less arrived than was dispatched.
// An empty locationID matches every location.
func (r *TransferRepository) Discrepancies(ctx context.Context, locationID string) ([]*TransferDiscrepancy, error) {
	query := `
		SELECT t.id AS transfer_id, t.transfer_number, t.from_location_id, t.to_location_id, t.received_at,
			i.item_type, i.item_id, i.quantity_dispatched, i.quantity_received,
			i.quantity_dispatched - i.quantity_received AS shortfall
		FROM stock_transfer_items i
		JOIN stock_transfers t ON t.id = i.transfer_id
		WHERE t.status = 'received'
			AND i.quantity_received < i.quantity_dispatched
			AND ($1 = '' OR t.from_location_id::text = $1 OR t.to_location_id::text = $1)
		ORDER BY t.received_at DESC, t.transfer_number, i.item_id
	`

	var result []*TransferDiscrepancy
	if err := r.db.SelectContext(ctx, &result, query, locationID); err != nil {
		return nil, err
	}
	return result, nil
}
