package handler

import (
	"log/slog"
	"net/http"

	"github.com/yourorg/towdesk/internal/security"
	"github.com/yourorg/towdesk/internal/service"
)

// TenantHandler serves company creation, the tenant picker, and
// session binding.
type TenantHandler struct {
	tenants *service.TenantService
	guard   *security.Guard
	logger  *slog.Logger
}

// NewTenantHandler creates a new tenant handler
func NewTenantHandler(tenants *service.TenantService, guard *security.Guard, logger *slog.Logger) *TenantHandler {
	return &TenantHandler{tenants: tenants, guard: guard, logger: logger}
}

// Create handles POST /api/tenants
func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _, err := callerIdentity(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var input service.TenantInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, h.logger, err)
		return
	}

	tenant, err := h.tenants.CreateTenant(r.Context(), userID, input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, tenant)
}

// List handles GET /api/tenants, the caller's tenant picker.
func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _, err := callerIdentity(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	list, err := h.tenants.MyTenants(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type selectTenantRequest struct {
	TenantID string `json:"tenant_id"`
}

// Select handles POST /api/tenants/select
func (h *TenantHandler) Select(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, err := callerIdentity(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req selectTenantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.tenants.SelectTenant(r.Context(), userID, sessionID, req.TenantID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// Current handles GET /api/tenants/current
func (h *TenantHandler) Current(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	tenant, err := h.tenants.ActiveTenant(r.Context(), tc)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

// Update handles PATCH /api/tenants/current
func (h *TenantHandler) Update(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var input service.TenantInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, h.logger, err)
		return
	}

	tenant, err := h.tenants.UpdateTenant(r.Context(), tc, input)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}
