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

// ProductionStatus is the lifecycle state of a production order.
type ProductionStatus string

const (
	ProductionDraft      ProductionStatus = "draft"
	ProductionPending    ProductionStatus = "pending"
	ProductionApproved   ProductionStatus = "approved"
	ProductionInProgress ProductionStatus = "in_progress"
	ProductionCompleted  ProductionStatus = "completed"
	ProductionRejected   ProductionStatus = "rejected"
	ProductionCancelled  ProductionStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s ProductionStatus) Valid() bool {
	switch s {
	case ProductionDraft, ProductionPending, ProductionApproved, ProductionInProgress,
		ProductionCompleted, ProductionRejected, ProductionCancelled:
		return true
	}
	return false
}

// CanSubmit reports whether a draft may be sent for approval.
func (s ProductionStatus) CanSubmit() bool { return s == ProductionDraft }

// CanApprove reports whether materials may be reserved for the order.
func (s ProductionStatus) CanApprove() bool { return s == ProductionPending }

// CanReject reports whether the order may still be turned down.
func (s ProductionStatus) CanReject() bool { return s == ProductionPending }

// CanStart reports whether work on an approved order may begin.
func (s ProductionStatus) CanStart() bool { return s == ProductionApproved }

// CanExecute allows completing an order that was approved but never explicitly started.
func (s ProductionStatus) CanExecute() bool {
	return s == ProductionInProgress || s == ProductionApproved
}

// CanCancel allows cancelling any order that has not started. Approved orders
// give their reservations back.
func (s ProductionStatus) CanCancel() bool {
	return s == ProductionDraft || s == ProductionPending || s == ProductionApproved
}

// HoldsReservation reports whether materials are reserved for an order in status s.
func (s ProductionStatus) HoldsReservation() bool {
	return s == ProductionApproved || s == ProductionInProgress
}

// ProductionOrder asks a location to produce a quantity of a recipe's product.
type ProductionOrder struct {
	ID                 string              `db:"id" json:"id"`
	OrderNumber        string              `db:"order_number" json:"order_number"`
	RecipeID           string              `db:"recipe_id" json:"recipe_id"`
	ProductID          string              `db:"product_id" json:"product_id"`
	LocationID         string              `db:"location_id" json:"location_id"`
	QuantityOrdered    decimal.Decimal     `db:"quantity_ordered" json:"quantity_ordered"`
	QuantityProduced   decimal.NullDecimal `db:"quantity_produced" json:"quantity_produced"`
	Status             ProductionStatus    `db:"status" json:"status"`
	Priority           Priority            `db:"priority" json:"priority"`
	DueDate            *time.Time          `db:"due_date" json:"due_date,omitempty"`
	Notes              *string             `db:"notes" json:"notes,omitempty"`
	CreatedBy          string              `db:"created_by" json:"created_by"`
	CreatedAt          time.Time           `db:"created_at" json:"created_at"`
	SubmittedAt        *time.Time          `db:"submitted_at" json:"submitted_at,omitempty"`
	ApprovedBy         *string             `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt         *time.Time          `db:"approved_at" json:"approved_at,omitempty"`
	StartedBy          *string             `db:"started_by" json:"started_by,omitempty"`
	StartedAt          *time.Time          `db:"started_at" json:"started_at,omitempty"`
	CompletedBy        *string             `db:"completed_by" json:"completed_by,omitempty"`
	CompletedAt        *time.Time          `db:"completed_at" json:"completed_at,omitempty"`
	RejectedBy         *string             `db:"rejected_by" json:"rejected_by,omitempty"`
	RejectedAt         *time.Time          `db:"rejected_at" json:"rejected_at,omitempty"`
	RejectionReason    *string             `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CancelledBy        *string             `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancelledAt        *time.Time          `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancellationReason *string             `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	UpdatedAt          time.Time           `db:"updated_at" json:"updated_at"`

	Consumptions []*MaterialConsumption `db:"-" json:"consumptions,omitempty"`
}

// ProductionReservation is the amount of a material reserved when an order was approved.
type ProductionReservation struct {
	OrderID       string          `db:"order_id" json:"order_id"`
	RawMaterialID string          `db:"raw_material_id" json:"raw_material_id"`
	Quantity      decimal.Decimal `db:"quantity" json:"quantity"`
}

// MaterialConsumption records what an executed order actually used.
type MaterialConsumption struct {
	ID               string          `db:"id" json:"id"`
	OrderID          string          `db:"order_id" json:"order_id"`
	RawMaterialID    string          `db:"raw_material_id" json:"raw_material_id"`
	QuantityRequired decimal.Decimal `db:"quantity_required" json:"quantity_required"`
	QuantityConsumed decimal.Decimal `db:"quantity_consumed" json:"quantity_consumed"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

// ProductionFilter narrows List results.
type ProductionFilter struct {
	Status     ProductionStatus
	LocationID string
	Page       int
	PerPage    int
}

// ProductionStats summarises the orders of a location.
type ProductionStats struct {
	ByStatus                map[ProductionStatus]int64 `json:"by_status"`
	UnitsCompletedThisMonth decimal.Decimal            `json:"units_completed_this_month"`
}

// ProductionRepository handles production order persistence
type ProductionRepository struct {
	db *database.DB
}

// NewProductionRepository creates a new production repository
func NewProductionRepository(db *database.DB) *ProductionRepository {
	return &ProductionRepository{db: db}
}

// CreateTx inserts a production order.
func (r *ProductionRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, o *ProductionOrder) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}

	query := `
		INSERT INTO production_orders (
			id, order_number, recipe_id, product_id, location_id, quantity_ordered,
			status, priority, due_date, notes, created_by, submitted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`
	err := tx.QueryRowxContext(ctx, query,
		o.ID, o.OrderNumber, o.RecipeID, o.ProductID, o.LocationID, o.QuantityOrdered,
		o.Status, o.Priority, o.DueDate, o.Notes, o.CreatedBy, o.SubmittedAt,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if appErr := database.MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}

// GetByID returns an order with its material consumptions.
func (r *ProductionRepository) GetByID(ctx context.Context, id string) (*ProductionOrder, error) {
	o, err := r.get(ctx, r.db, id, false)
	if err != nil {
		return nil, err
	}
	if err := r.db.SelectContext(ctx, &o.Consumptions,
		`SELECT * FROM production_material_consumptions WHERE order_id = $1 ORDER BY raw_material_id`, id); err != nil {
		return nil, err
	}
	return o, nil
}

// LockTx reads an order and locks its row FOR UPDATE.
func (r *ProductionRepository) LockTx(ctx context.Context, tx *sqlx.Tx, id string) (*ProductionOrder, error) {
	return r.get(ctx, tx, id, true)
}

func (r *ProductionRepository) get(ctx context.Context, q sqlx.QueryerContext, id string, lock bool) (*ProductionOrder, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotFound("production order")
	}

	query := `SELECT * FROM production_orders WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var o ProductionOrder
	if err := sqlx.GetContext(ctx, q, &o, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("production order")
		}
		return nil, err
	}
	return &o, nil
}

// UpdateTx persists the mutable fields of an order.
func (r *ProductionRepository) UpdateTx(ctx context.Context, tx *sqlx.Tx, o *ProductionOrder) error {
	query := `
		UPDATE production_orders SET
			status = $2, quantity_produced = $3, submitted_at = $4,
			approved_by = $5, approved_at = $6,
			started_by = $7, started_at = $8,
			completed_by = $9, completed_at = $10,
			rejected_by = $11, rejected_at = $12, rejection_reason = $13,
			cancelled_by = $14, cancelled_at = $15, cancellation_reason = $16,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	return tx.QueryRowxContext(ctx, query,
		o.ID, o.Status, o.QuantityProduced, o.SubmittedAt,
		o.ApprovedBy, o.ApprovedAt,
		o.StartedBy, o.StartedAt,
		o.CompletedBy, o.CompletedAt,
		o.RejectedBy, o.RejectedAt, o.RejectionReason,
		o.CancelledBy, o.CancelledAt, o.CancellationReason,
	).Scan(&o.UpdatedAt)
}

// InsertReservationsTx records what was reserved for an order at approval.
func (r *ProductionRepository) InsertReservationsTx(ctx context.Context, tx *sqlx.Tx, reservations []*ProductionReservation) error {
	for _, res := range reservations {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO production_reservations (order_id, raw_material_id, quantity)
			VALUES ($1, $2, $3)
		`, res.OrderID, res.RawMaterialID, res.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// ReservationsTx returns the reservations held by an order, keyed by raw material.
func (r *ProductionRepository) ReservationsTx(ctx context.Context, tx *sqlx.Tx, orderID string) (map[string]decimal.Decimal, error) {
	var rows []*ProductionReservation
	if err := tx.SelectContext(ctx, &rows,
		`SELECT * FROM production_reservations WHERE order_id = $1 ORDER BY raw_material_id`, orderID); err != nil {
		return nil, err
	}

	result := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		result[row.RawMaterialID] = row.Quantity
	}
	return result, nil
}

// DeleteReservationsTx drops an order's reservation records once they are released.
func (r *ProductionRepository) DeleteReservationsTx(ctx context.Context, tx *sqlx.Tx, orderID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM production_reservations WHERE order_id = $1`, orderID)
	return err
}

// InsertConsumptionTx records one material used by an executed order.
func (r *ProductionRepository) InsertConsumptionTx(ctx context.Context, tx *sqlx.Tx, c *MaterialConsumption) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return tx.QueryRowxContext(ctx, `
		INSERT INTO production_material_consumptions (id, order_id, raw_material_id, quantity_required, quantity_consumed)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, c.ID, c.OrderID, c.RawMaterialID, c.QuantityRequired, c.QuantityConsumed).Scan(&c.CreatedAt)
}

// List lists orders newest first.
func (r *ProductionRepository) List(ctx context.Context, filter ProductionFilter) ([]*ProductionOrder, int64, error) {
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
		conditions = append(conditions, fmt.Sprintf("location_id = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM production_orders`+where, args...); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)
	query := fmt.Sprintf(`SELECT * FROM production_orders%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))

	var orders []*ProductionOrder
	if err := r.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// Stats counts orders per status and sums units completed since monthStart.
func (r *ProductionRepository) Stats(ctx context.Context, locationID string, monthStart time.Time) (*ProductionStats, error) {
	var rows []struct {
		Status ProductionStatus `db:"status"`
		Count  int64            `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT status, COUNT(*) AS count FROM production_orders
		WHERE ($1 = '' OR location_id::text = $1)
		GROUP BY status
	`, locationID); err != nil {
		return nil, err
	}

	stats := &ProductionStats{ByStatus: make(map[ProductionStatus]int64)}
	for _, row := range rows {
		stats.ByStatus[row.Status] = row.Count
	}

	var units decimal.NullDecimal
	if err := r.db.GetContext(ctx, &units, `
		SELECT SUM(quantity_produced) FROM production_orders
		WHERE status = 'completed' AND completed_at >= $2
			AND ($1 = '' OR location_id::text = $1)
	`, locationID, monthStart); err != nil {
		return nil, err
	}
	if units.Valid {
		stats.UnitsCompletedThisMonth = units.Decimal
	}
	return stats, nil
}
