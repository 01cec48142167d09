package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/yourorg/towdesk/internal/domain"
	"github.com/yourorg/towdesk/internal/security"
)

func newTestMembershipService() (*MembershipService, *memMembershipRepo, *memUserRepo, *memCallRepo) {
	memberships := newMemMembershipRepo()
	users := newMemUserRepo()
	calls := newMemCallRepo()
	guard := security.NewGuard(memberships, newMemBindingRepo(), slog.Default())
	svc := NewMembershipService(memberships, users, calls, guard, slog.Default())
	return svc, memberships, users, calls
}

func seedMember(t *testing.T, memberships *memMembershipRepo, users *memUserRepo, userID, tenantID string, roles ...domain.Role) {
	t.Helper()
	ctx := context.Background()
	users.Create(ctx, &domain.User{ID: userID, Email: userID + "@example.com", Name: userID, IsActive: true})
	if err := memberships.Create(ctx, &domain.Membership{
		UserID: userID, TenantID: tenantID, Roles: roles, Active: true,
	}); err != nil {
		t.Fatalf("seed membership: %v", err)
	}
}

func TestLastAdminCannotLoseRole(t *testing.T) {
	svc, memberships, users, _ := newTestMembershipService()
	ctx := context.Background()
	seedMember(t, memberships, users, "admin-1", "tenant-1", domain.RoleAdmin)
	tc := testContext("admin-1", "tenant-1", domain.RoleAdmin)

	_, err := svc.ChangeRoles(ctx, tc, "admin-1", []domain.Role{domain.RoleDriver})
	if !errors.Is(err, domain.ErrLastAdminProtected) {
		t.Errorf("demote only admin: err = %v, want last-admin protection", err)
	}

	_, err = svc.SetActive(ctx, tc, "admin-1", false)
	if !errors.Is(err, domain.ErrLastAdminProtected) {
		t.Errorf("deactivate only admin: err = %v, want last-admin protection", err)
	}
}

func TestSecondAdminUnblocksDemotion(t *testing.T) {
	svc, memberships, users, _ := newTestMembershipService()
	ctx := context.Background()
	seedMember(t, memberships, users, "admin-1", "tenant-1", domain.RoleAdmin)
	seedMember(t, memberships, users, "admin-2", "tenant-1", domain.RoleAdmin)
	tc := testContext("admin-1", "tenant-1", domain.RoleAdmin)

	m, err := svc.ChangeRoles(ctx, tc, "admin-2", []domain.Role{domain.RoleDispatcher})
	if err != nil {
		t.Fatalf("ChangeRoles: %v", err)
	}
	if m.HasRole(domain.RoleAdmin) || !m.HasRole(domain.RoleDispatcher) {
		t.Errorf("roles after demotion = %v", m.Roles)
	}
}

func TestChangeRolesRejectsUnknownRole(t *testing.T) {
	svc, memberships, users, _ := newTestMembershipService()
	seedMember(t, memberships, users, "admin-1", "tenant-1", domain.RoleAdmin)
	tc := testContext("admin-1", "tenant-1", domain.RoleAdmin)

	_, err := svc.ChangeRoles(context.Background(), tc, "admin-1", []domain.Role{"superuser"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestChangeRolesRequiresAdmin(t *testing.T) {
	svc, memberships, users, _ := newTestMembershipService()
	seedMember(t, memberships, users, "drv-1", "tenant-1", domain.RoleDriver)
	tc := testContext("disp-1", "tenant-1", domain.RoleDispatcher)

	_, err := svc.ChangeRoles(context.Background(), tc, "drv-1", []domain.Role{domain.RoleDispatcher})
	if !errors.Is(err, domain.ErrAccessDenied) {
		t.Errorf("err = %v, want access denied", err)
	}
}

func TestDeactivationClearsShift(t *testing.T) {
	svc, memberships, users, _ := newTestMembershipService()
	ctx := context.Background()
	seedMember(t, memberships, users, "admin-1", "tenant-1", domain.RoleAdmin)
	seedMember(t, memberships, users, "drv-1", "tenant-1", domain.RoleDriver)

	drv := testContext("drv-1", "tenant-1", domain.RoleDriver)
	if _, err := svc.SetShift(ctx, drv, true); err != nil {
		t.Fatalf("SetShift: %v", err)
	}

	admin := testContext("admin-1", "tenant-1", domain.RoleAdmin)
	m, err := svc.SetActive(ctx, admin, "drv-1", false)
	if err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if m.Active || m.OnShift {
		t.Errorf("after deactivation: active=%v on_shift=%v, want both false", m.Active, m.OnShift)
	}
}

func TestSetShiftRequiresDriverRole(t *testing.T) {
	svc, memberships, users, _ := newTestMembershipService()
	seedMember(t, memberships, users, "disp-1", "tenant-1", domain.RoleDispatcher)
	tc := testContext("disp-1", "tenant-1", domain.RoleDispatcher)

	_, err := svc.SetShift(context.Background(), tc, true)
	if !errors.Is(err, domain.ErrAccessDenied) {
		t.Errorf("err = %v, want access denied", err)
	}
}

func TestListDriversCountsActiveCalls(t *testing.T) {
	svc, memberships, users, calls := newTestMembershipService()
	ctx := context.Background()
	seedMember(t, memberships, users, "disp-1", "tenant-1", domain.RoleDispatcher)
	seedMember(t, memberships, users, "drv-1", "tenant-1", domain.RoleDriver)

	now := time.Now()
	calls.Create(ctx, &domain.Call{
		ID: "c1", TenantID: "tenant-1", Status: domain.CallEnRoute, DriverID: "drv-1",
	}, &domain.CallStatusEntry{ID: "h1", CallID: "c1", Status: domain.CallOpen, Timestamp: now})
	calls.Create(ctx, &domain.Call{
		ID: "c2", TenantID: "tenant-1", Status: domain.CallCompleted, DriverID: "drv-1",
	}, &domain.CallStatusEntry{ID: "h2", CallID: "c2", Status: domain.CallOpen, Timestamp: now})

	tc := testContext("disp-1", "tenant-1", domain.RoleDispatcher)
	drivers, err := svc.ListDrivers(ctx, tc)
	if err != nil {
		t.Fatalf("ListDrivers: %v", err)
	}
	if len(drivers) != 1 {
		t.Fatalf("drivers = %d, want 1", len(drivers))
	}
	if drivers[0].ActiveCalls != 1 {
		t.Errorf("active calls = %d, want 1 (completed excluded)", drivers[0].ActiveCalls)
	}
}

func TestListOnShiftDriversFilters(t *testing.T) {
	svc, memberships, users, _ := newTestMembershipService()
	ctx := context.Background()
	seedMember(t, memberships, users, "disp-1", "tenant-1", domain.RoleDispatcher)
	seedMember(t, memberships, users, "drv-1", "tenant-1", domain.RoleDriver)
	seedMember(t, memberships, users, "drv-2", "tenant-1", domain.RoleDriver)

	if _, err := svc.SetShift(ctx, testContext("drv-1", "tenant-1", domain.RoleDriver), true); err != nil {
		t.Fatalf("SetShift: %v", err)
	}

	tc := testContext("disp-1", "tenant-1", domain.RoleDispatcher)
	onShift, err := svc.ListOnShiftDrivers(ctx, tc)
	if err != nil {
		t.Fatalf("ListOnShiftDrivers: %v", err)
	}
	if len(onShift) != 1 || onShift[0].UserID != "drv-1" {
		t.Errorf("on-shift drivers = %v, want just drv-1", onShift)
	}
}
