package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/yourorg/towdesk/internal/domain"
)

// PostgresInviteRepository implements domain.InviteRepository using PostgreSQL
type PostgresInviteRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresInviteRepository creates a new invite repository
func NewPostgresInviteRepository(db *sql.DB, logger *slog.Logger) *PostgresInviteRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresInviteRepository{db: db, logger: logger}
}

// Create inserts a new invite
func (r *PostgresInviteRepository) Create(ctx context.Context, invite *domain.Invite) error {
	query := `
		INSERT INTO invites (id, email, tenant_id, roles, created_at, expires_at, accepted)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		invite.ID, invite.Email, invite.TenantID,
		pq.Array(rolesToStrings(invite.Roles)),
		invite.CreatedAt, invite.ExpiresAt, invite.Accepted,
	)
	if err != nil {
		return fmt.Errorf("failed to create invite: %w", err)
	}
	return nil
}

// GetPendingByEmail returns an unaccepted, unexpired invite for the
// email in the given tenant, or nil when none exists. Used to keep
// re-invites idempotent.
func (r *PostgresInviteRepository) GetPendingByEmail(ctx context.Context, email, tenantID string, now time.Time) (*domain.Invite, error) {
	query := `
		SELECT id, email, tenant_id, roles, created_at, expires_at, accepted
		FROM invites
		WHERE email = $1 AND tenant_id = $2 AND accepted = FALSE AND expires_at > $3
		ORDER BY created_at DESC
		LIMIT 1
	`
	inv, err := scanInvite(r.db.QueryRowContext(ctx, query, email, tenantID, now))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return inv, nil
}

// ListByEmail returns all invites addressed to the email
func (r *PostgresInviteRepository) ListByEmail(ctx context.Context, email string) ([]*domain.Invite, error) {
	query := `
		SELECT id, email, tenant_id, roles, created_at, expires_at, accepted
		FROM invites
		WHERE email = $1
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	defer rows.Close()

	var out []*domain.Invite
	for rows.Next() {
		inv := &domain.Invite{}
		var roles []string
		if err := rows.Scan(
			&inv.ID, &inv.Email, &inv.TenantID, pq.Array(&roles),
			&inv.CreatedAt, &inv.ExpiresAt, &inv.Accepted,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invite: %w", err)
		}
		inv.Roles = stringsToRoles(roles)
		out = append(out, inv)
	}
	return out, rows.Err()
}

// MarkAccepted flips an invite to accepted
func (r *PostgresInviteRepository) MarkAccepted(ctx context.Context, inviteID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE invites SET accepted = TRUE WHERE id = $1`, inviteID)
	if err != nil {
		return fmt.Errorf("failed to mark invite accepted: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("invite %s: %w", inviteID, domain.ErrNotFound)
	}
	return nil
}

func scanInvite(row *sql.Row) (*domain.Invite, error) {
	inv := &domain.Invite{}
	var roles []string
	err := row.Scan(
		&inv.ID, &inv.Email, &inv.TenantID, pq.Array(&roles),
		&inv.CreatedAt, &inv.ExpiresAt, &inv.Accepted,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("invite: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get invite: %w", err)
	}
	inv.Roles = stringsToRoles(roles)
	return inv, nil
}
