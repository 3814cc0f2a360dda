package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/scentflow/scentflow-backend/pkg/database"
)

// DailySale is the quantity of one product sold at one location on one day.
type DailySale struct {
	SaleDate     time.Time       `db:"sale_date" json:"sale_date"`
	QuantitySold decimal.Decimal `db:"quantity_sold" json:"quantity_sold"`
}

// SalesRepository maintains the daily sales aggregate fed by POS events.
type SalesRepository struct {
	db *database.DB
}

// NewSalesRepository creates a new sales repository
func NewSalesRepository(db *database.DB) *SalesRepository {
	return &SalesRepository{db: db}
}

// LockSaleTx serialises processing of one sale number for the rest of tx.
func (r *SalesRepository) LockSaleTx(ctx context.Context, tx *sqlx.Tx, saleNumber string) error {
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, saleNumber)
	return err
}

// AddDailySaleTx adds delta (negative for voids) to the day's aggregate.
func (r *SalesRepository) AddDailySaleTx(ctx context.Context, tx *sqlx.Tx, productID, locationID string, day time.Time, delta decimal.Decimal) error {
	query := `
		INSERT INTO daily_sales (product_id, location_id, sale_date, quantity_sold)
		VALUES ($1, $2, $3, GREATEST($4::numeric, 0))
		ON CONFLICT (product_id, location_id, sale_date)
		DO UPDATE SET quantity_sold = GREATEST(daily_sales.quantity_sold + $4::numeric, 0)
	`
	_, err := tx.ExecContext(ctx, query, productID, locationID, day.Format("2006-01-02"), delta)
	return err
}

// GetDailySales returns the days with sales in [from, to], oldest first.
func (r *SalesRepository) GetDailySales(ctx context.Context, productID, locationID string, from, to time.Time) ([]DailySale, error) {
	query := `
		SELECT sale_date, quantity_sold
		FROM daily_sales
		WHERE product_id = $1 AND location_id = $2
			AND sale_date BETWEEN $3 AND $4
			AND quantity_sold > 0
		ORDER BY sale_date
	`

	var sales []DailySale
	if err := r.db.SelectContext(ctx, &sales, query,
		productID, locationID, from.Format("2006-01-02"), to.Format("2006-01-02"),
	); err != nil {
		return nil, err
	}
	return sales, nil
}
