package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scentflow/scentflow-backend/internal/inventory/service"
	"github.com/scentflow/scentflow-backend/pkg/httputil"
	"github.com/scentflow/scentflow-backend/pkg/logger"
)

// ReplenishmentHandler handles replenishment planning endpoints
type ReplenishmentHandler struct {
	planner *service.ReplenishmentService
	logger  *logger.Logger
}

// NewReplenishmentHandler creates a new replenishment handler
func NewReplenishmentHandler(planner *service.ReplenishmentService, log *logger.Logger) *ReplenishmentHandler {
	return &ReplenishmentHandler{
		planner: planner,
		logger:  log,
	}
}

// Analyze plans one product at one location.
func (h *ReplenishmentHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	result, err := h.planner.Analyze(r.Context(), chi.URLParam(r, "productId"), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// Alerts lists the products of a location that need replenishing.
func (h *ReplenishmentHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.planner.Alerts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, alerts)
}

// Summary counts the products of a location per stock status.
func (h *ReplenishmentHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.planner.LocationSummary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, summary)
}
