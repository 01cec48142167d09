package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/towdesk/internal/domain"
	"github.com/yourorg/towdesk/internal/security"
)

// Invites expire a week after they are sent.
const inviteTTL = 7 * 24 * time.Hour

// InviteService manages membership invitations. Invites are keyed by
// email, not user ID, so a company can invite people who have no
// account yet; the invite resolves when they first authenticate.
type InviteService struct {
	inviteRepo     domain.InviteRepository
	membershipRepo domain.MembershipRepository
	tenantRepo     domain.TenantRepository
	userRepo       domain.UserRepository
	guard          *security.Guard
	logger         *slog.Logger
}

// NewInviteService creates a new invite service
func NewInviteService(
	inviteRepo domain.InviteRepository,
	membershipRepo domain.MembershipRepository,
	tenantRepo domain.TenantRepository,
	userRepo domain.UserRepository,
	guard *security.Guard,
	logger *slog.Logger,
) *InviteService {
	if logger == nil {
		logger = slog.Default()
	}
	return &InviteService{
		inviteRepo:     inviteRepo,
		membershipRepo: membershipRepo,
		tenantRepo:     tenantRepo,
		userRepo:       userRepo,
		guard:          guard,
		logger:         logger,
	}
}

// Invite offers membership in the acting tenant to an email address.
// Admin only. Inviting an email whose account already holds a
// membership in this tenant fails; re-inviting an email that already
// holds an unaccepted, unexpired invite returns the existing invite
// instead of stacking a second one.
func (s *InviteService) Invite(ctx context.Context, tc *security.TenantContext, email string, roles []domain.Role) (*domain.Invite, error) {
	if err := s.guard.RequireRole(tc, domain.RoleAdmin); err != nil {
		return nil, err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, &domain.ValidationError{Field: "email"}
	}
	if len(roles) == 0 {
		return nil, &domain.ValidationError{Field: "roles"}
	}
	for _, r := range roles {
		if !domain.ValidRole(r) {
			return nil, fmt.Errorf("unknown role %q: %w", r, domain.ErrValidation)
		}
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if user != nil {
		_, err := s.membershipRepo.Get(ctx, user.ID, tc.TenantID)
		if err == nil {
			return nil, fmt.Errorf("%s: %w", email, domain.ErrAlreadyMember)
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	now := time.Now()
	if existing, err := s.inviteRepo.GetPendingByEmail(ctx, email, tc.TenantID, now); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	invite := &domain.Invite{
		ID:        uuid.NewString(),
		Email:     email,
		TenantID:  tc.TenantID,
		Roles:     roles,
		CreatedAt: now,
		ExpiresAt: now.Add(inviteTTL),
	}
	if err := s.inviteRepo.Create(ctx, invite); err != nil {
		return nil, fmt.Errorf("failed to create invite: %w", err)
	}

	s.logger.Info("invite created",
		slog.String("tenant_id", tc.TenantID),
		slog.String("email", email),
		slog.String("invited_by", tc.UserID),
	)
	return invite, nil
}

// AcceptPending converts every live invite addressed to the email into
// a membership. Expired and already-accepted invites are skipped, as
// are invites into deactivated tenants and tenants the user already
// belongs to. Returns the number of memberships created.
func (s *InviteService) AcceptPending(ctx context.Context, userID, email string) (int, error) {
	invites, err := s.inviteRepo.ListByEmail(ctx, email)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	accepted := 0
	for _, inv := range invites {
		if inv.Accepted || inv.Expired(now) {
			continue
		}

		tenant, err := s.tenantRepo.GetByID(ctx, inv.TenantID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return accepted, err
		}
		if !tenant.IsActive {
			continue
		}

		existing, err := s.membershipRepo.Get(ctx, userID, inv.TenantID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return accepted, err
		}
		if existing != nil {
			// Consumed without effect; the user got here first.
			if err := s.inviteRepo.MarkAccepted(ctx, inv.ID); err != nil {
				return accepted, err
			}
			continue
		}

		m := &domain.Membership{
			ID:        uuid.NewString(),
			UserID:    userID,
			TenantID:  inv.TenantID,
			Roles:     inv.Roles,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.membershipRepo.Create(ctx, m); err != nil {
			return accepted, fmt.Errorf("failed to create membership from invite: %w", err)
		}
		if err := s.inviteRepo.MarkAccepted(ctx, inv.ID); err != nil {
			return accepted, err
		}

		s.logger.Info("invite accepted",
			slog.String("user_id", userID),
			slog.String("tenant_id", inv.TenantID),
		)
		accepted++
	}
	return accepted, nil
}
