package handler

import (
	"log/slog"
	"net/http"

	"github.com/yourorg/towdesk/internal/domain"
	"github.com/yourorg/towdesk/internal/security"
	"github.com/yourorg/towdesk/internal/service"
)

// ImpoundHandler serves the impound lot: intake, status moves,
// payments, and lot stats.
type ImpoundHandler struct {
	impounds *service.ImpoundService
	guard    *security.Guard
	logger   *slog.Logger
}

// NewImpoundHandler creates a new impound handler
func NewImpoundHandler(impounds *service.ImpoundService, guard *security.Guard, logger *slog.Logger) *ImpoundHandler {
	return &ImpoundHandler{impounds: impounds, guard: guard, logger: logger}
}

// Create handles POST /api/impounds
func (h *ImpoundHandler) Create(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var input service.ImpoundInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, h.logger, err)
		return
	}

	view, err := h.impounds.Create(r.Context(), tc, input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// List handles GET /api/impounds
func (h *ImpoundHandler) List(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	views, err := h.impounds.List(r.Context(), tc)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// Get handles GET /api/impounds/{id}
func (h *ImpoundHandler) Get(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	view, err := h.impounds.Get(r.Context(), tc, r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type impoundStatusRequest struct {
	Status domain.ImpoundStatus `json:"status"`
	Notes  string               `json:"notes"`
}

// UpdateStatus handles POST /api/impounds/{id}/status
func (h *ImpoundHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req impoundStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	view, err := h.impounds.UpdateStatus(r.Context(), tc, r.PathValue("id"), req.Status, req.Notes)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type paymentRequest struct {
	Amount float64 `json:"amount"`
}

// RecordPayment handles POST /api/impounds/{id}/payments
func (h *ImpoundHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	view, err := h.impounds.RecordPayment(r.Context(), tc, r.PathValue("id"), req.Amount)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Stats handles GET /api/impounds/stats
func (h *ImpoundHandler) Stats(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	stats, err := h.impounds.Stats(r.Context(), tc)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
