package security

import (
	"context"
	"log/slog"

	"github.com/yourorg/towdesk/internal/domain"
)

// TenantContext is the resolved "who is acting, in which tenant, with
// which roles" bundle threaded into every operation. It is built once
// per request by the Guard, never from global state.
type TenantContext struct {
	UserID     string
	SessionID  string
	TenantID   string
	Roles      []domain.Role
	Membership *domain.Membership
}

// HasRole is a non-throwing probe for conditional UI. Mutations go
// through Guard.RequireRole / RequireAnyRole instead.
func (tc *TenantContext) HasRole(role domain.Role) bool {
	return tc.Membership != nil && tc.Membership.HasRole(role)
}

// Guard resolves tenant context and enforces per-operation role sets.
type Guard struct {
	memberships domain.MembershipRepository
	bindings    domain.SessionBindingRepository
	logger      *slog.Logger
}

// NewGuard creates a new authorization guard
func NewGuard(memberships domain.MembershipRepository, bindings domain.SessionBindingRepository, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{memberships: memberships, bindings: bindings, logger: logger}
}

// TenantContext resolves the acting tenant for a principal. With one
// active membership that membership wins; with several, the session's
// binding disambiguates (a principal may have concurrent sessions on
// different tenants). No binding yet means the caller must be sent to
// the tenant picker.
func (g *Guard) TenantContext(ctx context.Context, userID, sessionID string) (*TenantContext, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}

	memberships, err := g.memberships.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	active := memberships[:0:0]
	for _, m := range memberships {
		if m.Active {
			active = append(active, m)
		}
	}

	var chosen *domain.Membership
	switch len(active) {
	case 0:
		return nil, domain.ErrNoTenantContext
	case 1:
		chosen = active[0]
	default:
		if sessionID == "" {
			return nil, domain.ErrNoTenantContext
		}
		binding, err := g.bindings.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if binding == nil {
			return nil, domain.ErrNoTenantContext
		}
		for _, m := range active {
			if m.TenantID == binding.TenantID {
				chosen = m
				break
			}
		}
		// Bound tenant's membership was revoked after binding.
		if chosen == nil {
			return nil, domain.ErrNoTenantContext
		}
	}

	return &TenantContext{
		UserID:     userID,
		SessionID:  sessionID,
		TenantID:   chosen.TenantID,
		Roles:      chosen.Roles,
		Membership: chosen,
	}, nil
}

// RequireRole fails with an access-denied error unless the context
// holds the exact role. Roles are not hierarchical.
func (g *Guard) RequireRole(tc *TenantContext, role domain.Role) error {
	return g.RequireAnyRole(tc, role)
}

// RequireAnyRole fails unless the context's role set intersects roles.
func (g *Guard) RequireAnyRole(tc *TenantContext, roles ...domain.Role) error {
	for _, role := range roles {
		if tc.HasRole(role) {
			return nil
		}
	}
	g.logger.Warn("access denied",
		slog.String("user_id", tc.UserID),
		slog.String("tenant_id", tc.TenantID),
		slog.Any("required_roles", roles),
	)
	return &domain.AccessDeniedError{RequiredRoles: roles}
}
