package handler

import (
	"log/slog"
	"net/http"

	"github.com/yourorg/towdesk/internal/domain"
	"github.com/yourorg/towdesk/internal/security"
	"github.com/yourorg/towdesk/internal/service"
)

// MemberHandler serves the roster, role management, and shift state.
type MemberHandler struct {
	members *service.MembershipService
	invites *service.InviteService
	guard   *security.Guard
	logger  *slog.Logger
}

// NewMemberHandler creates a new member handler
func NewMemberHandler(members *service.MembershipService, invites *service.InviteService, guard *security.Guard, logger *slog.Logger) *MemberHandler {
	return &MemberHandler{members: members, invites: invites, guard: guard, logger: logger}
}

// List handles GET /api/members
func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	list, err := h.members.ListMembers(r.Context(), tc)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ListDrivers handles GET /api/members/drivers with optional
// ?on_shift=true filtering.
func (h *MemberHandler) ListDrivers(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var list []*service.Driver
	if r.URL.Query().Get("on_shift") == "true" {
		list, err = h.members.ListOnShiftDrivers(r.Context(), tc)
	} else {
		list, err = h.members.ListDrivers(r.Context(), tc)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type changeRolesRequest struct {
	Roles []domain.Role `json:"roles"`
}

// ChangeRoles handles PATCH /api/members/{userId}/roles
func (h *MemberHandler) ChangeRoles(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req changeRolesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	m, err := h.members.ChangeRoles(r.Context(), tc, r.PathValue("userId"), req.Roles)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

// SetActive handles PATCH /api/members/{userId}/active
func (h *MemberHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req setActiveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	m, err := h.members.SetActive(r.Context(), tc, r.PathValue("userId"), req.Active)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type setShiftRequest struct {
	OnShift bool `json:"on_shift"`
}

// SetShift handles POST /api/members/me/shift
func (h *MemberHandler) SetShift(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req setShiftRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	m, err := h.members.SetShift(r.Context(), tc, req.OnShift)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type inviteRequest struct {
	Email string        `json:"email"`
	Roles []domain.Role `json:"roles"`
}

// Invite handles POST /api/invites
func (h *MemberHandler) Invite(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req inviteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	invite, err := h.invites.Invite(r.Context(), tc, req.Email, req.Roles)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, invite)
}
