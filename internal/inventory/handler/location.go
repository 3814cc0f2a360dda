package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scentflow/scentflow-backend/internal/inventory/service"
	"github.com/scentflow/scentflow-backend/pkg/actor"
	"github.com/scentflow/scentflow-backend/pkg/errors"
	"github.com/scentflow/scentflow-backend/pkg/httputil"
	"github.com/scentflow/scentflow-backend/pkg/logger"
)

// requestActor returns the identity attached by the Identity middleware.
func requestActor(r *http.Request) (*actor.Actor, error) {
	a := actor.FromContext(r.Context())
	if a == nil {
		return nil, errors.Unauthorized("missing identity")
	}
	return a, nil
}

// decodeAndValidate decodes the JSON body into v and validates it.
func decodeAndValidate(r *http.Request, v interface{}) error {
	if err := httputil.DecodeJSON(r, v); err != nil {
		return err
	}
	return httputil.Validate(v)
}

// decodeOptional is decodeAndValidate for endpoints whose body may be empty.
func decodeOptional(r *http.Request, v interface{}) error {
	if r.ContentLength == 0 {
		return nil
	}
	return decodeAndValidate(r, v)
}

// LocationHandler handles location endpoints
type LocationHandler struct {
	catalog *service.CatalogService
	logger  *logger.Logger
}

// NewLocationHandler creates a new location handler
func NewLocationHandler(catalog *service.CatalogService, log *logger.Logger) *LocationHandler {
	return &LocationHandler{
		catalog: catalog,
		logger:  log,
	}
}

// List lists locations. ?all=true includes inactive ones.
func (h *LocationHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	locations, err := h.catalog.ListLocations(r.Context(), activeOnly)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, locations)
}

func (h *LocationHandler) Get(w http.ResponseWriter, r *http.Request) {
	loc, err := h.catalog.GetLocation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, loc)
}

// Create registers a location. Only global admins may change the location set.
func (h *LocationHandler) Create(w http.ResponseWriter, r *http.Request) {
	a, err := requestActor(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if !a.IsGlobalAdmin {
		httputil.Error(w, errors.Forbidden("only global admins can create locations"))
		return
	}

	var req service.CreateLocationInput
	if err := decodeAndValidate(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	loc, err := h.catalog.CreateLocation(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, loc)
}

func (h *LocationHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	a, err := requestActor(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if !a.IsGlobalAdmin {
		httputil.Error(w, errors.Forbidden("only global admins can deactivate locations"))
		return
	}

	if err := h.catalog.DeactivateLocation(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}
