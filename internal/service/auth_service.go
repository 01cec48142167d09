package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourorg/towdesk/internal/domain"
	"github.com/yourorg/towdesk/internal/observability/metrics"
	"github.com/yourorg/towdesk/internal/security/auth"
)

// AuthService handles registration and login. Tokens identify the
// principal and the session only; tenant resolution happens per
// request, so a token stays valid across tenant switches.
type AuthService struct {
	userRepo domain.UserRepository
	invites  *InviteService
	tokens   *auth.TokenManager
	tokenTTL time.Duration
	logger   *slog.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(
	userRepo domain.UserRepository,
	invites *InviteService,
	tokens *auth.TokenManager,
	tokenTTL time.Duration,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		userRepo: userRepo,
		invites:  invites,
		tokens:   tokens,
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

// LoginResult represents a login or registration response
type LoginResult struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"` // seconds
	TokenType string `json:"token_type"`
}

// Register creates a new user account and resolves any invites waiting
// on the email. The caller is logged in immediately.
func (s *AuthService) Register(ctx context.Context, email, name, phone, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, &domain.ValidationError{Field: "email"}
	}
	if name == "" {
		return nil, &domain.ValidationError{Field: "name"}
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters: %w", domain.ErrValidation)
	}

	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("email already registered: %w", domain.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("failed to hash password", slog.String("error", err.Error()))
		return nil, errors.New("failed to register user")
	}

	now := time.Now()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		Phone:        phone,
		PasswordHash: string(hash),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if n, err := s.invites.AcceptPending(ctx, user.ID, user.Email); err != nil {
		s.logger.Warn("invite acceptance failed during registration",
			slog.String("user_id", user.ID), slog.String("error", err.Error()))
	} else if n > 0 {
		s.logger.Info("invites accepted at registration",
			slog.String("user_id", user.ID), slog.Int("count", n))
	}

	return s.issueToken(user)
}

// Login verifies credentials and mints a session token. Invites that
// arrived while the user was away are resolved here too.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.ObserveLogin("failed")
			return nil, domain.ErrUnauthenticated
		}
		return nil, err
	}
	if !user.IsActive {
		metrics.ObserveLogin("failed")
		return nil, domain.ErrUnauthenticated
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		metrics.ObserveLogin("failed")
		return nil, domain.ErrUnauthenticated
	}

	if n, err := s.invites.AcceptPending(ctx, user.ID, user.Email); err != nil {
		s.logger.Warn("invite acceptance failed during login",
			slog.String("user_id", user.ID), slog.String("error", err.Error()))
	} else if n > 0 {
		s.logger.Info("invites accepted at login",
			slog.String("user_id", user.ID), slog.Int("count", n))
	}

	metrics.ObserveLogin("success")
	return s.issueToken(user)
}

// CurrentUser returns the principal's profile.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*domain.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

func (s *AuthService) issueToken(user *domain.User) (*LoginResult, error) {
	sessionID := uuid.NewString()
	token, err := s.tokens.GenerateToken(user.ID, user.Email, sessionID, s.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &LoginResult{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Token:     token,
		ExpiresIn: int(s.tokenTTL.Seconds()),
		TokenType: "Bearer",
	}, nil
}
