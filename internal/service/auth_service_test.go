package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/yourorg/towdesk/internal/domain"
	"github.com/yourorg/towdesk/internal/security"
	"github.com/yourorg/towdesk/internal/security/auth"
)

func newTestAuthService() (*AuthService, *memUserRepo, *memMembershipRepo, *memTenantRepo, *memInviteRepo) {
	users := newMemUserRepo()
	memberships := newMemMembershipRepo()
	tenants := newMemTenantRepo()
	invites := newMemInviteRepo()
	guard := security.NewGuard(memberships, newMemBindingRepo(), slog.Default())
	inviteSvc := NewInviteService(invites, memberships, tenants, users, guard, slog.Default())
	tokens := auth.NewTokenManager("test-secret", "towdesk")
	svc := NewAuthService(users, inviteSvc, tokens, time.Hour, slog.Default())
	return svc, users, memberships, tenants, invites
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _, _, _, _ := newTestAuthService()
	ctx := context.Background()

	reg, err := svc.Register(ctx, "Pat@Example.com", "Pat Chen", "555-0101", "long-password")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if reg.Email != "pat@example.com" {
		t.Errorf("email not normalized: %q", reg.Email)
	}
	if reg.Token == "" || reg.TokenType != "Bearer" {
		t.Errorf("token missing in result: %+v", reg)
	}

	login, err := svc.Login(ctx, "pat@example.com", "long-password")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.UserID != reg.UserID {
		t.Errorf("login user = %s, want %s", login.UserID, reg.UserID)
	}
	if login.Token == reg.Token {
		t.Error("login reused the registration session token")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _, _, _, _ := newTestAuthService()
	ctx := context.Background()

	svc.Register(ctx, "pat@example.com", "Pat", "", "long-password")

	if _, err := svc.Login(ctx, "pat@example.com", "wrong-password"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("wrong password: err = %v, want unauthenticated", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "long-password"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("unknown email: err = %v, want unauthenticated", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _, _, _ := newTestAuthService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "", "Pat", "", "long-password"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty email: err = %v", err)
	}
	if _, err := svc.Register(ctx, "p@example.com", "Pat", "", "short"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("short password: err = %v", err)
	}

	svc.Register(ctx, "p@example.com", "Pat", "", "long-password")
	if _, err := svc.Register(ctx, "p@example.com", "Other", "", "long-password"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("duplicate email: err = %v", err)
	}
}

func TestRegistrationAcceptsWaitingInvite(t *testing.T) {
	svc, _, memberships, tenants, invites := newTestAuthService()
	ctx := context.Background()

	tenants.Create(ctx, &domain.Tenant{ID: "tenant-1", Name: "Alpha", Email: "a@example.com", IsActive: true})
	now := time.Now()
	invites.Create(ctx, &domain.Invite{
		ID: "inv-1", Email: "new@example.com", TenantID: "tenant-1",
		Roles: []domain.Role{domain.RoleDriver}, CreatedAt: now, ExpiresAt: now.Add(inviteTTL),
	})

	reg, err := svc.Register(ctx, "new@example.com", "New Hire", "", "long-password")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	m, err := memberships.Get(ctx, reg.UserID, "tenant-1")
	if err != nil {
		t.Fatalf("membership not created at registration: %v", err)
	}
	if !m.HasRole(domain.RoleDriver) {
		t.Errorf("roles = %v, want driver", m.Roles)
	}
}

func TestLoginAcceptsInviteSentWhileAway(t *testing.T) {
	svc, _, memberships, tenants, invites := newTestAuthService()
	ctx := context.Background()

	reg, _ := svc.Register(ctx, "vet@example.com", "Vet", "", "long-password")

	tenants.Create(ctx, &domain.Tenant{ID: "tenant-2", Name: "Bravo", Email: "b@example.com", IsActive: true})
	now := time.Now()
	invites.Create(ctx, &domain.Invite{
		ID: "inv-2", Email: "vet@example.com", TenantID: "tenant-2",
		Roles: []domain.Role{domain.RoleDispatcher}, CreatedAt: now, ExpiresAt: now.Add(inviteTTL),
	})

	if _, err := svc.Login(ctx, "vet@example.com", "long-password"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := memberships.Get(ctx, reg.UserID, "tenant-2"); err != nil {
		t.Errorf("membership not created at login: %v", err)
	}
}
