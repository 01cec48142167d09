package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/towdesk/internal/domain"
	"github.com/yourorg/towdesk/internal/security"
)

func newTestInviteService() (*InviteService, *memInviteRepo, *memMembershipRepo, *memTenantRepo, *memUserRepo) {
	invites := newMemInviteRepo()
	memberships := newMemMembershipRepo()
	tenants := newMemTenantRepo()
	users := newMemUserRepo()
	guard := security.NewGuard(memberships, newMemBindingRepo(), slog.Default())
	svc := NewInviteService(invites, memberships, tenants, users, guard, slog.Default())
	return svc, invites, memberships, tenants, users
}

func seedTenant(tenants *memTenantRepo, id string, active bool) {
	tenants.Create(context.Background(), &domain.Tenant{
		ID: id, Name: id, Email: id + "@example.com", IsActive: active,
	})
}

func TestInviteIsIdempotent(t *testing.T) {
	svc, _, _, tenants, _ := newTestInviteService()
	ctx := context.Background()
	seedTenant(tenants, "tenant-1", true)
	tc := testContext("admin-1", "tenant-1", domain.RoleAdmin)

	first, err := svc.Invite(ctx, tc, "new@example.com", []domain.Role{domain.RoleDriver})
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	second, err := svc.Invite(ctx, tc, "new@example.com", []domain.Role{domain.RoleDriver})
	if err != nil {
		t.Fatalf("re-Invite: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("re-invite minted a new invite: %s != %s", second.ID, first.ID)
	}
}

func TestInviteRejectsExistingMember(t *testing.T) {
	svc, _, memberships, tenants, users := newTestInviteService()
	ctx := context.Background()
	seedTenant(tenants, "tenant-1", true)
	tc := testContext("admin-1", "tenant-1", domain.RoleAdmin)

	users.Create(ctx, &domain.User{ID: "user-5", Email: "vet@example.com", Name: "Vet", IsActive: true})
	memberships.Create(ctx, &domain.Membership{
		UserID: "user-5", TenantID: "tenant-1",
		Roles: []domain.Role{domain.RoleDriver}, Active: true,
	})

	if _, err := svc.Invite(ctx, tc, "Vet@Example.com", []domain.Role{domain.RoleDispatcher}); !errors.Is(err, domain.ErrAlreadyMember) {
		t.Errorf("invite existing member: err = %v, want already member", err)
	}

	// The same account in a different tenant is fair game.
	seedTenant(tenants, "tenant-2", true)
	other := testContext("admin-2", "tenant-2", domain.RoleAdmin)
	if _, err := svc.Invite(ctx, other, "vet@example.com", []domain.Role{domain.RoleDriver}); err != nil {
		t.Errorf("invite into another tenant: %v", err)
	}
}

func TestInviteRequiresAdmin(t *testing.T) {
	svc, _, _, tenants, _ := newTestInviteService()
	seedTenant(tenants, "tenant-1", true)
	tc := testContext("disp-1", "tenant-1", domain.RoleDispatcher)

	_, err := svc.Invite(context.Background(), tc, "new@example.com", []domain.Role{domain.RoleDriver})
	if !errors.Is(err, domain.ErrAccessDenied) {
		t.Errorf("err = %v, want access denied", err)
	}
}

func TestInviteValidation(t *testing.T) {
	svc, _, _, tenants, _ := newTestInviteService()
	ctx := context.Background()
	seedTenant(tenants, "tenant-1", true)
	tc := testContext("admin-1", "tenant-1", domain.RoleAdmin)

	if _, err := svc.Invite(ctx, tc, "", []domain.Role{domain.RoleDriver}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty email: err = %v, want validation error", err)
	}
	if _, err := svc.Invite(ctx, tc, "x@example.com", nil); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty roles: err = %v, want validation error", err)
	}
	if _, err := svc.Invite(ctx, tc, "x@example.com", []domain.Role{"owner"}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("bad role: err = %v, want validation error", err)
	}
}

func TestAcceptPendingCreatesMembership(t *testing.T) {
	svc, _, memberships, tenants, _ := newTestInviteService()
	ctx := context.Background()
	seedTenant(tenants, "tenant-1", true)
	tc := testContext("admin-1", "tenant-1", domain.RoleAdmin)

	inv, err := svc.Invite(ctx, tc, "new@example.com", []domain.Role{domain.RoleDriver, domain.RoleDispatcher})
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}

	n, err := svc.AcceptPending(ctx, "user-9", "new@example.com")
	if err != nil {
		t.Fatalf("AcceptPending: %v", err)
	}
	if n != 1 {
		t.Fatalf("accepted = %d, want 1", n)
	}

	m, err := memberships.Get(ctx, "user-9", "tenant-1")
	if err != nil {
		t.Fatalf("membership not created: %v", err)
	}
	if !m.Active || !m.HasRole(domain.RoleDriver) || !m.HasRole(domain.RoleDispatcher) {
		t.Errorf("membership = active:%v roles:%v", m.Active, m.Roles)
	}

	// Second pass finds nothing to do.
	n, err = svc.AcceptPending(ctx, "user-9", "new@example.com")
	if err != nil {
		t.Fatalf("second AcceptPending: %v", err)
	}
	if n != 0 {
		t.Errorf("second pass accepted = %d, want 0", n)
	}
	_ = inv
}

func TestAcceptPendingSkipsExpiredAndInactiveTenants(t *testing.T) {
	svc, invites, memberships, tenants, _ := newTestInviteService()
	ctx := context.Background()
	seedTenant(tenants, "tenant-live", true)
	seedTenant(tenants, "tenant-dead", false)

	now := time.Now()
	invites.Create(ctx, &domain.Invite{
		ID: uuid.NewString(), Email: "new@example.com", TenantID: "tenant-live",
		Roles: []domain.Role{domain.RoleDriver}, CreatedAt: now.Add(-8 * 24 * time.Hour),
		ExpiresAt: now.Add(-24 * time.Hour),
	})
	invites.Create(ctx, &domain.Invite{
		ID: uuid.NewString(), Email: "new@example.com", TenantID: "tenant-dead",
		Roles: []domain.Role{domain.RoleDriver}, CreatedAt: now,
		ExpiresAt: now.Add(inviteTTL),
	})

	n, err := svc.AcceptPending(ctx, "user-9", "new@example.com")
	if err != nil {
		t.Fatalf("AcceptPending: %v", err)
	}
	if n != 0 {
		t.Errorf("accepted = %d, want 0 (one expired, one into inactive tenant)", n)
	}
	if _, err := memberships.Get(ctx, "user-9", "tenant-live"); !errors.Is(err, domain.ErrNotFound) {
		t.Error("membership created from expired invite")
	}
}

func TestAcceptPendingConsumesInviteForExistingMember(t *testing.T) {
	svc, invites, memberships, tenants, _ := newTestInviteService()
	ctx := context.Background()
	seedTenant(tenants, "tenant-1", true)

	memberships.Create(ctx, &domain.Membership{
		UserID: "user-9", TenantID: "tenant-1",
		Roles: []domain.Role{domain.RoleAdmin}, Active: true,
	})
	now := time.Now()
	inv := &domain.Invite{
		ID: uuid.NewString(), Email: "new@example.com", TenantID: "tenant-1",
		Roles: []domain.Role{domain.RoleDriver}, CreatedAt: now, ExpiresAt: now.Add(inviteTTL),
	}
	invites.Create(ctx, inv)

	n, err := svc.AcceptPending(ctx, "user-9", "new@example.com")
	if err != nil {
		t.Fatalf("AcceptPending: %v", err)
	}
	if n != 0 {
		t.Errorf("accepted = %d, want 0", n)
	}
	if !inv.Accepted {
		t.Error("invite for existing member left pending")
	}
	m, _ := memberships.Get(ctx, "user-9", "tenant-1")
	if m.HasRole(domain.RoleDriver) {
		t.Error("existing membership roles were overwritten by invite")
	}
}
