package domain

import (
	"context"
	"time"
)

// Role is a capability grant within one tenant. Role sets are not
// hierarchical: every operation declares the exact roles it accepts.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleDispatcher Role = "dispatcher"
	RoleDriver     Role = "driver"
)

// ValidRole reports whether r is one of the three known roles.
func ValidRole(r Role) bool {
	return r == RoleAdmin || r == RoleDispatcher || r == RoleDriver
}

// BillingPlan is the tenant's subscription tier.
type BillingPlan string

const (
	PlanFree       BillingPlan = "free"
	PlanPro        BillingPlan = "pro"
	PlanEnterprise BillingPlan = "enterprise"
)

// Tenant is an independent towing company; the unit of data isolation.
type Tenant struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Slug        string      `json:"slug"`
	Email       string      `json:"email"`
	Phone       string      `json:"phone,omitempty"`
	Address     string      `json:"address,omitempty"`
	Timezone    string      `json:"timezone"`
	BillingPlan BillingPlan `json:"billing_plan"`
	IsActive    bool        `json:"is_active"`
	CreatedBy   string      `json:"created_by"` // principal ID
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Membership grants a principal a role set within one tenant.
// There is at most one membership row per (user, tenant) pair.
type Membership struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id"`
	Roles     []Role    `json:"roles"`
	Active    bool      `json:"active"`
	OnShift   bool      `json:"on_shift"` // meaningful only for the driver role
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasRole reports whether the membership's role set contains r.
func (m *Membership) HasRole(r Role) bool {
	for _, have := range m.Roles {
		if have == r {
			return true
		}
	}
	return false
}

// SessionBinding pins one tenant to an authentication session. Only
// consulted when a principal belongs to more than one tenant.
type SessionBinding struct {
	SessionID string
	TenantID  string
	CreatedAt time.Time
}

// Invite is a time-boxed offer of tenant membership keyed by email,
// resolved when a matching identity first authenticates.
type Invite struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	TenantID  string    `json:"tenant_id"`
	Roles     []Role    `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Accepted  bool      `json:"accepted"`
}

// Expired reports whether the invite's window has passed as of now.
func (i *Invite) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// TenantRepository defines data access for tenants
type TenantRepository interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	Update(ctx context.Context, tenant *Tenant) error
}

// MembershipRepository defines data access for memberships
type MembershipRepository interface {
	Create(ctx context.Context, m *Membership) error
	Get(ctx context.Context, userID, tenantID string) (*Membership, error)
	ListByUser(ctx context.Context, userID string) ([]*Membership, error)
	ListByTenant(ctx context.Context, tenantID string, activeOnly bool) ([]*Membership, error)
	Update(ctx context.Context, m *Membership) error
	AdminCount(ctx context.Context, tenantID string) (int, error)
}

// SessionBindingRepository defines data access for session-tenant bindings
type SessionBindingRepository interface {
	Put(ctx context.Context, binding *SessionBinding) error
	Get(ctx context.Context, sessionID string) (*SessionBinding, error)
}

// InviteRepository defines data access for invites
type InviteRepository interface {
	Create(ctx context.Context, invite *Invite) error
	GetPendingByEmail(ctx context.Context, email, tenantID string, now time.Time) (*Invite, error)
	ListByEmail(ctx context.Context, email string) ([]*Invite, error)
	MarkAccepted(ctx context.Context, inviteID string) error
}
