package handler

import (
	"log/slog"
	"net/http"

	"github.com/yourorg/towdesk/internal/domain"
	"github.com/yourorg/towdesk/internal/security"
	"github.com/yourorg/towdesk/internal/service"
)

// CallHandler serves the dispatch call lifecycle.
type CallHandler struct {
	calls  *service.CallService
	guard  *security.Guard
	logger *slog.Logger
}

// NewCallHandler creates a new call handler
func NewCallHandler(calls *service.CallService, guard *security.Guard, logger *slog.Logger) *CallHandler {
	return &CallHandler{calls: calls, guard: guard, logger: logger}
}

// Create handles POST /api/calls
func (h *CallHandler) Create(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var input service.CallInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, h.logger, err)
		return
	}

	call, err := h.calls.Create(r.Context(), tc, input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, call)
}

// List handles GET /api/calls with optional filters: ?status=open or
// ?mine=true for the calling driver's assignments.
func (h *CallHandler) List(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var calls []*domain.Call
	switch {
	case r.URL.Query().Get("mine") == "true":
		calls, err = h.calls.ListMine(r.Context(), tc)
	case r.URL.Query().Get("status") != "":
		calls, err = h.calls.ListByStatus(r.Context(), tc, domain.CallStatus(r.URL.Query().Get("status")))
	default:
		calls, err = h.calls.ListAll(r.Context(), tc)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, calls)
}

// Get handles GET /api/calls/{id}
func (h *CallHandler) Get(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	call, err := h.calls.Get(r.Context(), tc, r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// Update handles PATCH /api/calls/{id}, the non-lifecycle fields.
func (h *CallHandler) Update(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var input service.CallInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, h.logger, err)
		return
	}

	call, err := h.calls.UpdateDetails(r.Context(), tc, r.PathValue("id"), input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

type statusRequest struct {
	Status domain.CallStatus `json:"status"`
	Notes  string            `json:"notes"`
}

// UpdateStatus handles POST /api/calls/{id}/status
func (h *CallHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	call, err := h.calls.UpdateStatus(r.Context(), tc, r.PathValue("id"), req.Status, req.Notes)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

type assignRequest struct {
	DriverID string `json:"driver_id"`
	Notes    string `json:"notes"`
}

// Assign handles POST /api/calls/{id}/assign
func (h *CallHandler) Assign(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	call, err := h.calls.Assign(r.Context(), tc, r.PathValue("id"), req.DriverID, req.Notes)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// Claim handles POST /api/calls/{id}/claim
func (h *CallHandler) Claim(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	call, err := h.calls.Claim(r.Context(), tc, r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel handles POST /api/calls/{id}/cancel
func (h *CallHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	call, err := h.calls.Cancel(r.Context(), tc, r.PathValue("id"), req.Reason)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

type costRequest struct {
	ActualCost    float64                  `json:"actual_cost"`
	PaymentStatus domain.CallPaymentStatus `json:"payment_status"`
}

// SetCost handles POST /api/calls/{id}/cost
func (h *CallHandler) SetCost(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req costRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	call, err := h.calls.SetCost(r.Context(), tc, r.PathValue("id"), req.ActualCost, req.PaymentStatus)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// History handles GET /api/calls/{id}/history
func (h *CallHandler) History(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	entries, err := h.calls.History(r.Context(), tc, r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// Dashboard handles GET /api/dashboard
func (h *CallHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	stats, err := h.calls.Dashboard(r.Context(), tc)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
