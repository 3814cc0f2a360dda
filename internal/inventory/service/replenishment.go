package service

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/scentflow/scentflow-backend/internal/inventory/repository"
	"github.com/scentflow/scentflow-backend/pkg/config"
	"github.com/scentflow/scentflow-backend/pkg/logger"
)

// StockStatus classifies a product's stock against its planning thresholds.
type StockStatus string

const (
	StatusOutOfStock  StockStatus = "out_of_stock"
	StatusCriticalLow StockStatus = "critical_low"
	StatusLowStock    StockStatus = "low_stock"
	StatusReorderSoon StockStatus = "reorder_soon"
	StatusInStock     StockStatus = "in_stock"
)

// Urgency orders replenishment alerts.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
	UrgencyNone     Urgency = "none"
)

var urgencyRank = map[Urgency]int{
	UrgencyCritical: 0,
	UrgencyHigh:     1,
	UrgencyMedium:   2,
	UrgencyLow:      3,
	UrgencyNone:     4,
}

const (
	// reorderSoonDays flags stock that runs out within a week.
	reorderSoonDays = 7
	// noSalesSafetyStock is the safety stock for products with no sales history.
	noSalesSafetyStock = 5
	minSafetyStock     = 3
	minSuggestedOrder  = 10
)

// SalesHistoryProvider supplies the daily sales of a product at a location.
type SalesHistoryProvider interface {
	GetDailySales(ctx context.Context, productID, locationID string, from, to time.Time) ([]repository.DailySale, error)
}

// SalesStats summarises sales over the planning window.
type SalesStats struct {
	WindowDays int             `json:"window_days"`
	TotalSold  decimal.Decimal `json:"total_sold"`
	AvgDaily   decimal.Decimal `json:"avg_daily"`
	MaxDaily   decimal.Decimal `json:"max_daily"`
	MinDaily   decimal.Decimal `json:"min_daily"`
	SaleDays   int             `json:"sale_days"`
}

// Replenishment is the planning result for one product at one location.
type Replenishment struct {
	ProductID         string           `json:"product_id"`
	ProductName       string           `json:"product_name"`
	LocationID        string           `json:"location_id"`
	CurrentStock      decimal.Decimal  `json:"current_stock"`
	Sales             SalesStats       `json:"sales"`
	SafetyStock       int64            `json:"safety_stock"`
	ReorderPoint      int64            `json:"reorder_point"`
	DaysOfStock       *decimal.Decimal `json:"days_of_stock"`
	SuggestedQuantity int64            `json:"suggested_quantity"`
	Status            StockStatus      `json:"status"`
	Urgency           Urgency          `json:"urgency"`
	LeadTimeDays      int              `json:"lead_time_days"`
	TargetDays        int              `json:"target_days"`
}

// LocationReplenishmentSummary counts a location's products per stock status.
type LocationReplenishmentSummary struct {
	LocationID     string              `json:"location_id"`
	TotalProducts  int                 `json:"total_products"`
	ByStatus       map[StockStatus]int `json:"by_status"`
	ByUrgency      map[Urgency]int     `json:"by_urgency"`
	SuggestedUnits int64               `json:"suggested_units"`
}

// ComputeSalesStats aggregates daily sales over a window of windowDays.
// Max and min consider only days with sales.
func ComputeSalesStats(sales []repository.DailySale, windowDays int) SalesStats {
	stats := SalesStats{
		WindowDays: windowDays,
		TotalSold:  decimal.Zero,
		AvgDaily:   decimal.Zero,
		MaxDaily:   decimal.Zero,
		MinDaily:   decimal.Zero,
	}
	for _, sale := range sales {
		if !sale.QuantitySold.IsPositive() {
			continue
		}
		stats.TotalSold = stats.TotalSold.Add(sale.QuantitySold)
		if stats.SaleDays == 0 || sale.QuantitySold.GreaterThan(stats.MaxDaily) {
			stats.MaxDaily = sale.QuantitySold
		}
		if stats.SaleDays == 0 || sale.QuantitySold.LessThan(stats.MinDaily) {
			stats.MinDaily = sale.QuantitySold
		}
		stats.SaleDays++
	}
	if windowDays > 0 {
		stats.AvgDaily = stats.TotalSold.Div(decimal.NewFromInt(int64(windowDays))).Round(2)
	}
	return stats
}

// NoDemand reports an average that rounds to zero. A single sale in a long
// window counts as no demand.
func (s SalesStats) NoDemand() bool {
	return !s.AvgDaily.IsPositive()
}

// SafetyStock covers demand spikes during the lead time.
func SafetyStock(stats SalesStats, leadTimeDays int) int64 {
	if stats.NoDemand() {
		return noSalesSafetyStock
	}
	lead := decimal.NewFromInt(int64(leadTimeDays))
	peak := stats.MaxDaily.Mul(decimal.NewFromFloat(1.5)).Mul(lead)
	return maxInt64(peak.Sub(stats.AvgDaily.Mul(lead)).IntPart(), minSafetyStock)
}

// ReorderPoint is the stock level at which an order should be placed.
func ReorderPoint(avgDaily decimal.Decimal, leadTimeDays int, safetyStock int64) int64 {
	point := avgDaily.Mul(decimal.NewFromInt(int64(leadTimeDays))).Add(decimal.NewFromInt(safetyStock)).IntPart()
	return maxInt64(point, safetyStock)
}

// DaysOfStock estimates how long stock lasts at the average daily rate. It is
// nil when nothing sells.
func DaysOfStock(stock, avgDaily decimal.Decimal) *decimal.Decimal {
	if !avgDaily.IsPositive() {
		return nil
	}
	days := decimal.Zero
	if stock.IsPositive() {
		days = stock.Div(avgDaily).Round(1)
	}
	return &days
}

// SuggestedOrder is the quantity that brings stock to targetDays of demand
// plus safety stock, with a floor of a week's demand or minSuggestedOrder.
func SuggestedOrder(stock, avgDaily decimal.Decimal, targetDays int, safetyStock int64) int64 {
	raw := avgDaily.Mul(decimal.NewFromInt(int64(targetDays))).
		Add(decimal.NewFromInt(safetyStock)).
		Sub(stock)
	if !raw.IsPositive() {
		return 0
	}
	floor := maxInt64(avgDaily.Mul(decimal.NewFromInt(reorderSoonDays)).IntPart(), minSuggestedOrder)
	return maxInt64(raw.IntPart(), floor)
}

// ClassifyStock maps stock to a status and an alert urgency.
func ClassifyStock(stock decimal.Decimal, safetyStock, reorderPoint int64, daysOfStock *decimal.Decimal) (StockStatus, Urgency) {
	switch {
	case !stock.IsPositive():
		return StatusOutOfStock, UrgencyCritical
	case stock.LessThanOrEqual(decimal.NewFromInt(safetyStock)):
		return StatusCriticalLow, UrgencyHigh
	case stock.LessThanOrEqual(decimal.NewFromInt(reorderPoint)):
		return StatusLowStock, UrgencyMedium
	case daysOfStock != nil && daysOfStock.LessThanOrEqual(decimal.NewFromInt(reorderSoonDays)):
		return StatusReorderSoon, UrgencyLow
	default:
		return StatusInStock, UrgencyNone
	}
}

// PlannerConfig holds the planning windows.
type PlannerConfig struct {
	SalesWindowDays        int
	LeadTimeDays           int
	TargetDays             int
	DefaultReorderQuantity int64
}

// PlannerConfigFrom reads the planning windows from the stock configuration.
func PlannerConfigFrom(cfg *config.StockConfig) PlannerConfig {
	return PlannerConfig{
		SalesWindowDays:        cfg.SalesWindowDays,
		LeadTimeDays:           cfg.LeadTimeDays,
		TargetDays:             cfg.TargetDays,
		DefaultReorderQuantity: cfg.DefaultReorderQuantity,
	}
}

// ReplenishmentService recommends reorder quantities from sales history. It
// only reads.
type ReplenishmentService struct {
	productRepo  *repository.ProductRepository
	locationRepo *repository.LocationRepository
	ledgerRepo   *repository.LedgerRepository
	sales        SalesHistoryProvider
	cfg          PlannerConfig
	logger       *logger.Logger
	now          func() time.Time
}

// NewReplenishmentService creates a new replenishment service
func NewReplenishmentService(
	productRepo *repository.ProductRepository,
	locationRepo *repository.LocationRepository,
	ledgerRepo *repository.LedgerRepository,
	sales SalesHistoryProvider,
	cfg PlannerConfig,
	log *logger.Logger,
) *ReplenishmentService {
	if cfg.SalesWindowDays <= 0 {
		cfg.SalesWindowDays = 30
	}
	if cfg.LeadTimeDays <= 0 {
		cfg.LeadTimeDays = 3
	}
	if cfg.TargetDays <= 0 {
		cfg.TargetDays = 14
	}
	if cfg.DefaultReorderQuantity <= 0 {
		cfg.DefaultReorderQuantity = 50
	}
	return &ReplenishmentService{
		productRepo:  productRepo,
		locationRepo: locationRepo,
		ledgerRepo:   ledgerRepo,
		sales:        sales,
		cfg:          cfg,
		logger:       log.WithComponent("replenishment"),
		now:          time.Now,
	}
}

// Analyze plans replenishment of one product at one location.
func (s *ReplenishmentService) Analyze(ctx context.Context, productID, locationID string) (*Replenishment, error) {
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if _, err := s.locationRepo.GetByID(ctx, locationID); err != nil {
		return nil, err
	}
	level, err := s.ledgerRepo.GetStock(ctx, repository.StockKey{
		Catalog:    repository.CatalogProducts,
		LocationID: locationID,
		ItemID:     productID,
	})
	if err != nil {
		return nil, err
	}
	return s.analyze(ctx, product, locationID, level.Quantity)
}

func (s *ReplenishmentService) analyze(ctx context.Context, product *repository.Product, locationID string, stock decimal.Decimal) (*Replenishment, error) {
	to := s.now()
	from := to.AddDate(0, 0, -s.cfg.SalesWindowDays)
	history, err := s.sales.GetDailySales(ctx, product.ID, locationID, from, to)
	if err != nil {
		return nil, err
	}
	return s.plan(product, locationID, stock, ComputeSalesStats(history, s.cfg.SalesWindowDays)), nil
}

// plan applies the replenishment formulas to known stock and sales.
func (s *ReplenishmentService) plan(product *repository.Product, locationID string, stock decimal.Decimal, stats SalesStats) *Replenishment {
	safety := SafetyStock(stats, s.cfg.LeadTimeDays)
	reorderPoint := ReorderPoint(stats.AvgDaily, s.cfg.LeadTimeDays, safety)
	days := DaysOfStock(stock, stats.AvgDaily)

	var suggested int64
	if stats.NoDemand() {
		if stock.LessThanOrEqual(decimal.NewFromInt(safety)) {
			suggested = product.ReorderQuantity.IntPart()
			if suggested <= 0 {
				suggested = s.cfg.DefaultReorderQuantity
			}
		}
	} else {
		suggested = SuggestedOrder(stock, stats.AvgDaily, s.cfg.TargetDays, safety)
	}

	status, urgency := ClassifyStock(stock, safety, reorderPoint, days)
	return &Replenishment{
		ProductID:         product.ID,
		ProductName:       product.Name,
		LocationID:        locationID,
		CurrentStock:      stock,
		Sales:             stats,
		SafetyStock:       safety,
		ReorderPoint:      reorderPoint,
		DaysOfStock:       days,
		SuggestedQuantity: suggested,
		Status:            status,
		Urgency:           urgency,
		LeadTimeDays:      s.cfg.LeadTimeDays,
		TargetDays:        s.cfg.TargetDays,
	}
}

// analyzeLocation plans every product stocked at a location.
func (s *ReplenishmentService) analyzeLocation(ctx context.Context, locationID string) ([]*Replenishment, error) {
	if _, err := s.locationRepo.GetByID(ctx, locationID); err != nil {
		return nil, err
	}
	levels, err := s.ledgerRepo.ListStock(ctx, repository.CatalogProducts, locationID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(levels))
	for _, level := range levels {
		ids = append(ids, level.ItemID)
	}
	products, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]*Replenishment, 0, len(levels))
	for _, level := range levels {
		product, ok := products[level.ItemID]
		if !ok || !product.IsActive {
			continue
		}
		r, err := s.analyze(ctx, product, locationID, level.Quantity)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, nil
}

// Alerts lists products needing attention at a location, most urgent first
// and then fewest days of stock.
func (s *ReplenishmentService) Alerts(ctx context.Context, locationID string) ([]*Replenishment, error) {
	all, err := s.analyzeLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}

	alerts := make([]*Replenishment, 0, len(all))
	for _, r := range all {
		if r.Urgency != UrgencyNone {
			alerts = append(alerts, r)
		}
	}
	SortAlerts(alerts)
	return alerts, nil
}

// SortAlerts orders by urgency, then ascending days of stock with unknown last.
func SortAlerts(alerts []*Replenishment) {
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if urgencyRank[a.Urgency] != urgencyRank[b.Urgency] {
			return urgencyRank[a.Urgency] < urgencyRank[b.Urgency]
		}
		switch {
		case a.DaysOfStock == nil:
			return false
		case b.DaysOfStock == nil:
			return true
		default:
			return a.DaysOfStock.LessThan(*b.DaysOfStock)
		}
	})
}

// LocationSummary counts a location's products per status and urgency.
func (s *ReplenishmentService) LocationSummary(ctx context.Context, locationID string) (*LocationReplenishmentSummary, error) {
	all, err := s.analyzeLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}

	summary := &LocationReplenishmentSummary{
		LocationID:    locationID,
		TotalProducts: len(all),
		ByStatus:      make(map[StockStatus]int),
		ByUrgency:     make(map[Urgency]int),
	}
	for _, r := range all {
		summary.ByStatus[r.Status]++
		summary.ByUrgency[r.Urgency]++
		summary.SuggestedUnits += r.SuggestedQuantity
	}
	return summary, nil
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
