package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/scentflow/scentflow-backend/internal/inventory/repository"
	"github.com/scentflow/scentflow-backend/internal/inventory/service"
	"github.com/scentflow/scentflow-backend/pkg/errors"
	"github.com/scentflow/scentflow-backend/pkg/httputil"
	"github.com/scentflow/scentflow-backend/pkg/logger"
)

// manualMovementTypes are the movement types a user may book directly.
// Sales, transfers and production book their own movements.
var manualMovementTypes = map[repository.MovementType]bool{
	repository.MovementPurchase:   true,
	repository.MovementAdjustment: true,
	repository.MovementDamage:     true,
	repository.MovementReturn:     true,
}

// AdjustStockRequest books a manual ledger movement.
type AdjustStockRequest struct {
	Catalog      repository.Catalog      `json:"catalog" validate:"required,oneof=products raw_materials"`
	LocationID   string                  `json:"location_id" validate:"required,uuid"`
	ItemID       string                  `json:"item_id" validate:"required,uuid"`
	Delta        decimal.Decimal         `json:"delta"`
	MovementType repository.MovementType `json:"movement_type" validate:"required"`
	Reference    string                  `json:"reference" validate:"max=100"`
}

// ReservationRequest reserves or releases stock.
type ReservationRequest struct {
	Catalog    repository.Catalog `json:"catalog" validate:"required,oneof=products raw_materials"`
	LocationID string             `json:"location_id" validate:"required,uuid"`
	ItemID     string             `json:"item_id" validate:"required,uuid"`
	Quantity   decimal.Decimal    `json:"quantity" validate:"dpos"`
}

func (r ReservationRequest) key() repository.StockKey {
	return repository.StockKey{Catalog: r.Catalog, LocationID: r.LocationID, ItemID: r.ItemID}
}

// StockHandler handles stock ledger endpoints
type StockHandler struct {
	ledger *service.LedgerService
	logger *logger.Logger
}

// NewStockHandler creates a new stock handler
func NewStockHandler(ledger *service.LedgerService, log *logger.Logger) *StockHandler {
	return &StockHandler{
		ledger: ledger,
		logger: log,
	}
}

func catalogParam(r *http.Request) repository.Catalog {
	if c := chi.URLParam(r, "catalog"); c != "" {
		return repository.Catalog(c)
	}
	if c := r.URL.Query().Get("catalog"); c != "" {
		return repository.Catalog(c)
	}
	return repository.CatalogProducts
}

func stockKey(r *http.Request) repository.StockKey {
	return repository.StockKey{
		Catalog:    catalogParam(r),
		LocationID: chi.URLParam(r, "id"),
		ItemID:     chi.URLParam(r, "itemId"),
	}
}

// ListByLocation lists the stock rows of a location.
func (h *StockHandler) ListByLocation(w http.ResponseWriter, r *http.Request) {
	levels, err := h.ledger.ListStock(r.Context(), catalogParam(r), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, levels)
}

// LowStock lists rows at or below their reorder level.
func (h *StockHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	levels, err := h.ledger.LowStock(r.Context(), catalogParam(r), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, levels)
}

// Get returns one stock row with its available quantity.
func (h *StockHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := stockKey(r)
	level, err := h.ledger.GetStock(r.Context(), key)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"catalog":            key.Catalog,
		"location_id":        key.LocationID,
		"item_id":            key.ItemID,
		"quantity":           level.Quantity,
		"reserved_quantity":  level.ReservedQuantity,
		"available_quantity": level.Available(),
		"reorder_level":      level.ReorderLevel,
		"last_movement_at":   level.LastMovementAt,
	})
}

// Movements returns the latest movements of one stock row.
func (h *StockHandler) Movements(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	movements, err := h.ledger.ListMovements(r.Context(), stockKey(r), limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, movements)
}

// Verify compares the cached quantity of a row with the sum of its movements.
func (h *StockHandler) Verify(w http.ResponseWriter, r *http.Request) {
	result, err := h.ledger.VerifyLedger(r.Context(), stockKey(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// MovementsByReference returns all movements booked against a document number.
func (h *StockHandler) MovementsByReference(w http.ResponseWriter, r *http.Request) {
	movements, err := h.ledger.MovementsByReference(r.Context(), r.URL.Query().Get("reference"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, movements)
}

// Adjust books a manual movement.
func (h *StockHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	a, err := requestActor(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req AdjustStockRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if !manualMovementTypes[req.MovementType] {
		httputil.Error(w, errors.InvalidField("movement_type", "must be purchase, adjustment, damage or return"))
		return
	}

	change, err := h.ledger.AdjustStock(r.Context(), a, service.AdjustRequest{
		Key:          repository.StockKey{Catalog: req.Catalog, LocationID: req.LocationID, ItemID: req.ItemID},
		Delta:        req.Delta,
		MovementType: req.MovementType,
		Reference:    req.Reference,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, change)
}

// Reserve earmarks stock.
func (h *StockHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	a, err := requestActor(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req ReservationRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	level, err := h.ledger.Reserve(r.Context(), a, req.key(), req.Quantity)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, level)
}

// Release returns reserved stock to available.
func (h *StockHandler) Release(w http.ResponseWriter, r *http.Request) {
	a, err := requestActor(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req ReservationRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	level, err := h.ledger.Release(r.Context(), a, req.key(), req.Quantity)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, level)
}
