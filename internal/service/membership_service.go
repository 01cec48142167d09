package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yourorg/towdesk/internal/domain"
	"github.com/yourorg/towdesk/internal/security"
)

// MembershipService manages the people of a tenant: role grants,
// deactivation, and driver shift state.
type MembershipService struct {
	membershipRepo domain.MembershipRepository
	userRepo       domain.UserRepository
	callRepo       domain.CallRepository
	guard          *security.Guard
	logger         *slog.Logger
}

// NewMembershipService creates a new membership service
func NewMembershipService(
	membershipRepo domain.MembershipRepository,
	userRepo domain.UserRepository,
	callRepo domain.CallRepository,
	guard *security.Guard,
	logger *slog.Logger,
) *MembershipService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MembershipService{
		membershipRepo: membershipRepo,
		userRepo:       userRepo,
		callRepo:       callRepo,
		guard:          guard,
		logger:         logger,
	}
}

// Member pairs a membership with the principal's profile fields.
type Member struct {
	Membership *domain.Membership `json:"membership"`
	Name       string             `json:"name"`
	Email      string             `json:"email"`
	Phone      string             `json:"phone"`
}

// Driver is the dispatch-board view of one driver.
type Driver struct {
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	OnShift     bool   `json:"on_shift"`
	ActiveCalls int    `json:"active_calls"`
}

// ListMembers returns the tenant's roster. Admin and dispatcher only.
func (s *MembershipService) ListMembers(ctx context.Context, tc *security.TenantContext) ([]*Member, error) {
	if err := s.guard.RequireAnyRole(tc, domain.RoleAdmin, domain.RoleDispatcher); err != nil {
		return nil, err
	}

	memberships, err := s.membershipRepo.ListByTenant(ctx, tc.TenantID, false)
	if err != nil {
		return nil, err
	}

	out := make([]*Member, 0, len(memberships))
	for _, m := range memberships {
		user, err := s.userRepo.GetByID(ctx, m.UserID)
		if err != nil {
			return nil, err
		}
		out = append(out, &Member{
			Membership: m,
			Name:       user.Name,
			Email:      user.Email,
			Phone:      user.Phone,
		})
	}
	return out, nil
}

// ListDrivers returns the tenant's active drivers with shift state and
// current workload, for the assignment picker.
func (s *MembershipService) ListDrivers(ctx context.Context, tc *security.TenantContext) ([]*Driver, error) {
	if err := s.guard.RequireAnyRole(tc, domain.RoleAdmin, domain.RoleDispatcher); err != nil {
		return nil, err
	}

	memberships, err := s.membershipRepo.ListByTenant(ctx, tc.TenantID, true)
	if err != nil {
		return nil, err
	}

	var out []*Driver
	for _, m := range memberships {
		if !m.HasRole(domain.RoleDriver) {
			continue
		}
		user, err := s.userRepo.GetByID(ctx, m.UserID)
		if err != nil {
			return nil, err
		}
		calls, err := s.callRepo.ListByDriver(ctx, tc.TenantID, m.UserID)
		if err != nil {
			return nil, err
		}
		active := 0
		for _, c := range calls {
			if !c.Status.Terminal() {
				active++
			}
		}
		out = append(out, &Driver{
			UserID:      m.UserID,
			Name:        user.Name,
			Phone:       user.Phone,
			OnShift:     m.OnShift,
			ActiveCalls: active,
		})
	}
	return out, nil
}

// ListOnShiftDrivers returns only the drivers currently on shift.
func (s *MembershipService) ListOnShiftDrivers(ctx context.Context, tc *security.TenantContext) ([]*Driver, error) {
	drivers, err := s.ListDrivers(ctx, tc)
	if err != nil {
		return nil, err
	}
	out := drivers[:0:0]
	for _, d := range drivers {
		if d.OnShift {
			out = append(out, d)
		}
	}
	return out, nil
}

// ChangeRoles replaces a member's role set. Admin only. Stripping the
// admin role from the tenant's only admin is refused; a tenant must
// always keep at least one.
func (s *MembershipService) ChangeRoles(ctx context.Context, tc *security.TenantContext, targetUserID string, roles []domain.Role) (*domain.Membership, error) {
	if err := s.guard.RequireRole(tc, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, &domain.ValidationError{Field: "roles"}
	}
	for _, r := range roles {
		if !domain.ValidRole(r) {
			return nil, fmt.Errorf("unknown role %q: %w", r, domain.ErrValidation)
		}
	}

	m, err := s.membershipRepo.Get(ctx, targetUserID, tc.TenantID)
	if err != nil {
		return nil, err
	}

	losesAdmin := m.HasRole(domain.RoleAdmin) && !hasRole(roles, domain.RoleAdmin)
	if losesAdmin && m.Active {
		if err := s.ensureNotLastAdmin(ctx, tc.TenantID); err != nil {
			return nil, err
		}
	}

	m.Roles = roles
	m.UpdatedAt = time.Now()
	if err := s.membershipRepo.Update(ctx, m); err != nil {
		return nil, err
	}

	s.logger.Info("membership roles changed",
		slog.String("tenant_id", tc.TenantID),
		slog.String("target_user_id", targetUserID),
		slog.Any("roles", roles),
		slog.String("changed_by", tc.UserID),
	)
	return m, nil
}

// SetActive activates or deactivates a member. Admin only. The row is
// kept so history stays attributable; deactivating the last admin is
// refused.
func (s *MembershipService) SetActive(ctx context.Context, tc *security.TenantContext, targetUserID string, active bool) (*domain.Membership, error) {
	if err := s.guard.RequireRole(tc, domain.RoleAdmin); err != nil {
		return nil, err
	}

	m, err := s.membershipRepo.Get(ctx, targetUserID, tc.TenantID)
	if err != nil {
		return nil, err
	}
	if m.Active == active {
		return m, nil
	}

	if !active && m.HasRole(domain.RoleAdmin) {
		if err := s.ensureNotLastAdmin(ctx, tc.TenantID); err != nil {
			return nil, err
		}
	}

	m.Active = active
	if !active {
		m.OnShift = false
	}
	m.UpdatedAt = time.Now()
	if err := s.membershipRepo.Update(ctx, m); err != nil {
		return nil, err
	}

	s.logger.Info("membership active state changed",
		slog.String("tenant_id", tc.TenantID),
		slog.String("target_user_id", targetUserID),
		slog.Bool("active", active),
		slog.String("changed_by", tc.UserID),
	)
	return m, nil
}

// SetShift marks the calling driver on or off shift.
func (s *MembershipService) SetShift(ctx context.Context, tc *security.TenantContext, onShift bool) (*domain.Membership, error) {
	if err := s.guard.RequireRole(tc, domain.RoleDriver); err != nil {
		return nil, err
	}

	m, err := s.membershipRepo.Get(ctx, tc.UserID, tc.TenantID)
	if err != nil {
		return nil, err
	}
	m.OnShift = onShift
	m.UpdatedAt = time.Now()
	if err := s.membershipRepo.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *MembershipService) ensureNotLastAdmin(ctx context.Context, tenantID string) error {
	count, err := s.membershipRepo.AdminCount(ctx, tenantID)
	if err != nil {
		return err
	}
	if count <= 1 {
		return domain.ErrLastAdminProtected
	}
	return nil
}

func hasRole(roles []domain.Role, r domain.Role) bool {
	for _, have := range roles {
		if have == r {
			return true
		}
	}
	return false
}
