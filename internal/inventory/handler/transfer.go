package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scentflow/scentflow-backend/internal/inventory/repository"
	"github.com/scentflow/scentflow-backend/internal/inventory/service"
	"github.com/scentflow/scentflow-backend/pkg/httputil"
	"github.com/scentflow/scentflow-backend/pkg/logger"
)

// ReasonRequest carries the reason for a rejection or cancellation.
type ReasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// NotesRequest carries optional notes for a stage.
type NotesRequest struct {
	Notes *string `json:"notes,omitempty"`
}

// TransferHandler handles transfer endpoints
type TransferHandler struct {
	transfers *service.TransferService
	logger    *logger.Logger
}

// NewTransferHandler creates a new transfer handler
func NewTransferHandler(transfers *service.TransferService, log *logger.Logger) *TransferHandler {
	return &TransferHandler{
		transfers: transfers,
		logger:    log,
	}
}

func (h *TransferHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := httputil.Pagination(r)
	filter := repository.TransferFilter{
		Status:     repository.TransferStatus(r.URL.Query().Get("status")),
		LocationID: r.URL.Query().Get("location_id"),
		Page:       page,
		PerPage:    perPage,
	}

	transfers, total, err := h.transfers.List(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSONWithMeta(w, http.StatusOK, transfers, httputil.NewMeta(page, perPage, total))
}

func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.transfers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, t)
}

// Discrepancies lists received lines that arrived short.
func (h *TransferHandler) Discrepancies(w http.ResponseWriter, r *http.Request) {
	result, err := h.transfers.Discrepancies(r.Context(), r.URL.Query().Get("location_id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	a, err := requestActor(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req service.CreateTransferInput
	if err := decodeAndValidate(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	t, err := h.transfers.Create(r.Context(), a, req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, t)
}

func (h *TransferHandler) Approve(w http.ResponseWriter, r *http.Request) {
	a, err := requestActor(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req service.TransferStageInput
	if err := decodeOptional(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	t, err := h.transfers.Approve(r.Context(), a, chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, t)
}

func (h *TransferHandler) Reject(w http.ResponseWriter, r *http.Request) {
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

	t, err := h.transfers.Reject(r.Context(), a, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, t)
}

func (h *TransferHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	a, err := requestActor(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req NotesRequest
	if err := decodeOptional(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	t, err := h.transfers.Dispatch(r.Context(), a, chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, t)
}

func (h *TransferHandler) Receive(w http.ResponseWriter, r *http.Request) {
	a, err := requestActor(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req service.TransferStageInput
	if err := decodeOptional(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	t, err := h.transfers.Receive(r.Context(), a, chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, t)
}

func (h *TransferHandler) Cancel(w http.ResponseWriter, r *http.Request) {
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

	t, err := h.transfers.Cancel(r.Context(), a, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, t)
}
