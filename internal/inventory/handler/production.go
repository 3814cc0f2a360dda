package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/scentflow/scentflow-backend/internal/inventory/repository"
	"github.com/scentflow/scentflow-backend/internal/inventory/service"
	"github.com/scentflow/scentflow-backend/pkg/actor"
	"github.com/scentflow/scentflow-backend/pkg/httputil"
	"github.com/scentflow/scentflow-backend/pkg/logger"
)

// RequirementsRequest asks for the materials of a production run.
type RequirementsRequest struct {
	RecipeID   string          `json:"recipe_id" validate:"required,uuid"`
	LocationID string          `json:"location_id" validate:"omitempty,uuid"`
	Quantity   decimal.Decimal `json:"quantity" validate:"dpos"`
}

// ExecuteRequest optionally overrides the produced quantity.
type ExecuteRequest struct {
	ActualQuantity *decimal.Decimal `json:"actual_quantity,omitempty"`
}

// ProductionHandler handles production endpoints
type ProductionHandler struct {
	production *service.ProductionService
	logger     *logger.Logger
}

// NewProductionHandler creates a new production handler
func NewProductionHandler(production *service.ProductionService, log *logger.Logger) *ProductionHandler {
	return &ProductionHandler{
		production: production,
		logger:     log,
	}
}

// Requirements computes the materials for a run without touching stock.
func (h *ProductionHandler) Requirements(w http.ResponseWriter, r *http.Request) {
	var req RequirementsRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	reqs, err := h.production.Requirements(r.Context(), req.RecipeID, req.Quantity)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, reqs)
}

// Availability checks a run against stock at a location, the actor's by default.
func (h *ProductionHandler) Availability(w http.ResponseWriter, r *http.Request) {
	a, err := requestActor(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req RequirementsRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if req.LocationID == "" {
		req.LocationID = a.LocationID
	}

	report, err := h.production.CheckAvailability(r.Context(), req.RecipeID, req.LocationID, req.Quantity)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, report)
}

func (h *ProductionHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := httputil.Pagination(r)
	filter := repository.ProductionFilter{
		Status:     repository.ProductionStatus(r.URL.Query().Get("status")),
		LocationID: r.URL.Query().Get("location_id"),
		Page:       page,
		PerPage:    perPage,
	}

	orders, total, err := h.production.List(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSONWithMeta(w, http.StatusOK, orders, httputil.NewMeta(page, perPage, total))
}

func (h *ProductionHandler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.production.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, o)
}

// Stats returns order counts and this month's output.
func (h *ProductionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.production.Stats(r.Context(), r.URL.Query().Get("location_id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, stats)
}

// LowStockMaterials lists raw materials at or below their reorder level.
func (h *ProductionHandler) LowStockMaterials(w http.ResponseWriter, r *http.Request) {
	levels, err := h.production.LowStockMaterials(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, levels)
}

func (h *ProductionHandler) Create(w http.ResponseWriter, r *http.Request) {
	a, err := requestActor(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req service.CreateOrderInput
	if err := decodeAndValidate(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	o, err := h.production.CreateOrder(r.Context(), a, req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, o)
}

func (h *ProductionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.production.Submit)
}

func (h *ProductionHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.production.Approve)
}

func (h *ProductionHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.production.Start)
}

func (h *ProductionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	a, err := requestActor(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req ReasonRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	o, err := h.production.Reject(r.Context(), a, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, o)
}

func (h *ProductionHandler) Execute(w http.ResponseWriter, r *http.Request) {
	a, err := requestActor(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req ExecuteRequest
	if err := decodeOptional(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	o, err := h.production.Execute(r.Context(), a, chi.URLParam(r, "id"), req.ActualQuantity)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, o)
}

func (h *ProductionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	a, err := requestActor(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req ReasonRequest
	if err := decodeOptional(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	o, err := h.production.Cancel(r.Context(), a, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, o)
}

type transitionFunc func(ctx context.Context, a *actor.Actor, id string) (*repository.ProductionOrder, error)

func (h *ProductionHandler) simpleTransition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	a, err := requestActor(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	o, err := fn(r.Context(), a, chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, o)
}
