package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/yourorg/towdesk/internal/domain"
	"github.com/yourorg/towdesk/internal/security"
	"github.com/yourorg/towdesk/internal/security/middleware"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeError translates domain failures into HTTP status codes. State
// conflicts (illegal transitions, lost claims, last-admin protection,
// missing tenant context) all read as 409: the request was well formed
// but the world disagrees.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	var status int
	switch {
	case errors.Is(err, domain.ErrUnauthenticated), errors.Is(err, domain.ErrNoSession):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrAccessDenied):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNoTenantContext),
		errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, domain.ErrNotClaimable),
		errors.Is(err, domain.ErrLastAdminProtected),
		errors.Is(err, domain.ErrAlreadyMember):
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
	}

	if status == http.StatusInternalServerError {
		log.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &domain.ValidationError{Field: "body"}
	}
	return nil
}

// resolveTenant builds the acting tenant context for the request from
// the token claims.
func resolveTenant(r *http.Request, guard *security.Guard) (*security.TenantContext, error) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		return nil, domain.ErrUnauthenticated
	}
	return guard.TenantContext(r.Context(), claims.UserID, claims.SessionID())
}

// callerIdentity returns the authenticated principal without resolving
// a tenant, for endpoints that work outside tenant scope.
func callerIdentity(r *http.Request) (userID, sessionID string, err error) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		return "", "", domain.ErrUnauthenticated
	}
	return claims.UserID, claims.SessionID(), nil
}
