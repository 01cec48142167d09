package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/towdesk/internal/domain"
	"github.com/yourorg/towdesk/internal/security"
	"github.com/yourorg/towdesk/pkg/cache"
)

// Tenant records change rarely but are read on nearly every request,
// so reads go through a short-lived cache.
const tenantCacheTTL = 30 * time.Second

// TenantService manages companies, the tenant picker, and the session
// binding that pins a multi-tenant user to one company.
type TenantService struct {
	tenantRepo     domain.TenantRepository
	membershipRepo domain.MembershipRepository
	bindingRepo    domain.SessionBindingRepository
	guard          *security.Guard
	cache          *cache.Cache
	logger         *slog.Logger
}

// NewTenantService creates a new tenant service
func NewTenantService(
	tenantRepo domain.TenantRepository,
	membershipRepo domain.MembershipRepository,
	bindingRepo domain.SessionBindingRepository,
	guard *security.Guard,
	tenantCache *cache.Cache,
	logger *slog.Logger,
) *TenantService {
	if logger == nil {
		logger = slog.Default()
	}
	if tenantCache == nil {
		tenantCache = cache.New()
	}
	return &TenantService{
		tenantRepo:     tenantRepo,
		membershipRepo: membershipRepo,
		bindingRepo:    bindingRepo,
		guard:          guard,
		cache:          tenantCache,
		logger:         logger,
	}
}

// TenantInput carries the fields a caller may set on a tenant.
type TenantInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Timezone string `json:"timezone"`
}

// TenantWithRoles pairs a tenant with the caller's roles in it, for
// the tenant picker.
type TenantWithRoles struct {
	Tenant *domain.Tenant `json:"tenant"`
	Roles  []domain.Role  `json:"roles"`
}

// CreateTenant provisions a new company and makes the creator its
// first admin. Any authenticated user may create a company.
func (s *TenantService) CreateTenant(ctx context.Context, userID string, input TenantInput) (*domain.Tenant, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if input.Name == "" {
		return nil, &domain.ValidationError{Field: "name"}
	}
	if input.Email == "" {
		return nil, &domain.ValidationError{Field: "email"}
	}
	if input.Timezone == "" {
		input.Timezone = "America/New_York"
	}

	now := time.Now()
	tenant := &domain.Tenant{
		ID:          uuid.NewString(),
		Name:        input.Name,
		Slug:        slugify(input.Name),
		Email:       input.Email,
		Phone:       input.Phone,
		Address:     input.Address,
		Timezone:    input.Timezone,
		BillingPlan: domain.PlanFree,
		IsActive:    true,
		CreatedBy:   userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.tenantRepo.Create(ctx, tenant); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	membership := &domain.Membership{
		ID:        uuid.NewString(),
		UserID:    userID,
		TenantID:  tenant.ID,
		Roles:     []domain.Role{domain.RoleAdmin},
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.membershipRepo.Create(ctx, membership); err != nil {
		return nil, fmt.Errorf("failed to create founding membership: %w", err)
	}

	s.logger.Info("tenant created",
		slog.String("tenant_id", tenant.ID),
		slog.String("name", tenant.Name),
		slog.String("created_by", userID),
	)
	return tenant, nil
}

// SelectTenant binds the session to one of the caller's tenants. The
// membership must exist and be active at selection time.
func (s *TenantService) SelectTenant(ctx context.Context, userID, sessionID, tenantID string) error {
	if sessionID == "" {
		return domain.ErrNoSession
	}

	m, err := s.membershipRepo.Get(ctx, userID, tenantID)
	if err != nil {
		return err
	}
	if !m.Active {
		return &domain.AccessDeniedError{}
	}

	binding := &domain.SessionBinding{
		SessionID: sessionID,
		TenantID:  tenantID,
		CreatedAt: time.Now(),
	}
	if err := s.bindingRepo.Put(ctx, binding); err != nil {
		return err
	}

	s.logger.Info("session bound to tenant",
		slog.String("user_id", userID),
		slog.String("tenant_id", tenantID),
	)
	return nil
}

// ActiveTenant returns the company the caller is currently acting in.
func (s *TenantService) ActiveTenant(ctx context.Context, tc *security.TenantContext) (*domain.Tenant, error) {
	return s.getTenant(ctx, tc.TenantID)
}

// MyTenants lists the caller's active companies with their roles, for
// the tenant picker.
func (s *TenantService) MyTenants(ctx context.Context, userID string) ([]*TenantWithRoles, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}

	memberships, err := s.membershipRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]*TenantWithRoles, 0, len(memberships))
	for _, m := range memberships {
		if !m.Active {
			continue
		}
		tenant, err := s.getTenant(ctx, m.TenantID)
		if err != nil {
			return nil, err
		}
		out = append(out, &TenantWithRoles{Tenant: tenant, Roles: m.Roles})
	}
	return out, nil
}

// UpdateTenant edits company settings. Admin only.
func (s *TenantService) UpdateTenant(ctx context.Context, tc *security.TenantContext, input TenantInput) (*domain.Tenant, error) {
	if err := s.guard.RequireRole(tc, domain.RoleAdmin); err != nil {
		return nil, err
	}

	tenant, err := s.tenantRepo.GetByID(ctx, tc.TenantID)
	if err != nil {
		return nil, err
	}

	if input.Name != "" {
		tenant.Name = input.Name
		tenant.Slug = slugify(input.Name)
	}
	if input.Email != "" {
		tenant.Email = input.Email
	}
	if input.Phone != "" {
		tenant.Phone = input.Phone
	}
	if input.Address != "" {
		tenant.Address = input.Address
	}
	if input.Timezone != "" {
		tenant.Timezone = input.Timezone
	}
	tenant.UpdatedAt = time.Now()

	if err := s.tenantRepo.Update(ctx, tenant); err != nil {
		return nil, err
	}
	s.cache.Delete("tenant:" + tenant.ID)
	return tenant, nil
}

func (s *TenantService) getTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	key := "tenant:" + tenantID
	if v, ok := s.cache.Get(key); ok {
		return v.(*domain.Tenant), nil
	}
	tenant, err := s.tenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, tenant, tenantCacheTTL)
	return tenant, nil
}

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	lastDash := false
	for _, r := range slug {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
