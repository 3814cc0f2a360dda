package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scentflow/scentflow-backend/internal/inventory/repository"
	"github.com/scentflow/scentflow-backend/internal/inventory/service"
	"github.com/scentflow/scentflow-backend/pkg/errors"
	"github.com/scentflow/scentflow-backend/pkg/httputil"
	"github.com/scentflow/scentflow-backend/pkg/logger"
)

// CatalogHandler handles product, raw material and recipe endpoints
type CatalogHandler struct {
	catalog *service.CatalogService
	logger  *logger.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalog *service.CatalogService, log *logger.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		logger:  log,
	}
}

// requireAdmin rejects catalog writes from location-bound users.
func requireAdmin(r *http.Request) error {
	a, err := requestActor(r)
	if err != nil {
		return err
	}
	if !a.IsGlobalAdmin {
		return errors.Forbidden("only global admins can change the catalog")
	}
	return nil
}

// Product handlers

func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	page, perPage := httputil.Pagination(r)
	activeOnly := r.URL.Query().Get("all") != "true"

	products, total, err := h.catalog.ListProducts(r.Context(), page, perPage, activeOnly)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSONWithMeta(w, http.StatusOK, products, httputil.NewMeta(page, perPage, total))
}

func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, p)
}

func (h *CatalogHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r); err != nil {
		httputil.Error(w, err)
		return
	}

	var req service.CreateProductInput
	if err := decodeAndValidate(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	p, err := h.catalog.CreateProduct(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, p)
}

// Raw material handlers

func (h *CatalogHandler) ListRawMaterials(w http.ResponseWriter, r *http.Request) {
	kind := repository.MaterialKind(r.URL.Query().Get("kind"))
	activeOnly := r.URL.Query().Get("all") != "true"

	materials, err := h.catalog.ListRawMaterials(r.Context(), kind, activeOnly)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, materials)
}

func (h *CatalogHandler) GetRawMaterial(w http.ResponseWriter, r *http.Request) {
	m, err := h.catalog.GetRawMaterial(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, m)
}

func (h *CatalogHandler) CreateRawMaterial(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r); err != nil {
		httputil.Error(w, err)
		return
	}

	var req service.CreateRawMaterialInput
	if err := decodeAndValidate(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	m, err := h.catalog.CreateRawMaterial(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, m)
}

// Recipe handlers

func (h *CatalogHandler) ListRecipes(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	recipes, err := h.catalog.ListRecipes(r.Context(), r.URL.Query().Get("product_id"), activeOnly)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, recipes)
}

func (h *CatalogHandler) GetRecipe(w http.ResponseWriter, r *http.Request) {
	recipe, err := h.catalog.GetRecipe(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, recipe)
}

func (h *CatalogHandler) CreateRecipe(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r); err != nil {
		httputil.Error(w, err)
		return
	}

	var req service.CreateRecipeInput
	if err := decodeAndValidate(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	recipe, err := h.catalog.CreateRecipe(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, recipe)
}
