package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	"github.com/yourorg/towdesk/internal/domain"
)

// PostgresMembershipRepository implements domain.MembershipRepository using PostgreSQL
type PostgresMembershipRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresMembershipRepository creates a new membership repository
func NewPostgresMembershipRepository(db *sql.DB, logger *slog.Logger) *PostgresMembershipRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresMembershipRepository{db: db, logger: logger}
}

// Create inserts a new membership
func (r *PostgresMembershipRepository) Create(ctx context.Context, m *domain.Membership) error {
	query := `
		INSERT INTO memberships (id, user_id, tenant_id, roles, active, on_shift, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.UserID, m.TenantID, pq.Array(rolesToStrings(m.Roles)),
		m.Active, m.OnShift, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

// Get retrieves the membership for a (user, tenant) pair
func (r *PostgresMembershipRepository) Get(ctx context.Context, userID, tenantID string) (*domain.Membership, error) {
	query := `
		SELECT id, user_id, tenant_id, roles, active, on_shift, created_at, updated_at
		FROM memberships
		WHERE user_id = $1 AND tenant_id = $2
	`
	m := &domain.Membership{}
	var roles []string
	err := r.db.QueryRowContext(ctx, query, userID, tenantID).Scan(
		&m.ID, &m.UserID, &m.TenantID, pq.Array(&roles),
		&m.Active, &m.OnShift, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("membership: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	m.Roles = stringsToRoles(roles)
	return m, nil
}

// ListByUser returns all memberships held by a user, active or not
func (r *PostgresMembershipRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Membership, error) {
	query := `
		SELECT id, user_id, tenant_id, roles, active, on_shift, created_at, updated_at
		FROM memberships
		WHERE user_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships by user: %w", err)
	}
	defer rows.Close()
	return scanMemberships(rows)
}

// ListByTenant returns a tenant's memberships, optionally active only
func (r *PostgresMembershipRepository) ListByTenant(ctx context.Context, tenantID string, activeOnly bool) ([]*domain.Membership, error) {
	query := `
		SELECT id, user_id, tenant_id, roles, active, on_shift, created_at, updated_at
		FROM memberships
		WHERE tenant_id = $1 AND ($2 = FALSE OR active = TRUE)
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships by tenant: %w", err)
	}
	defer rows.Close()
	return scanMemberships(rows)
}

// Update updates an existing membership
func (r *PostgresMembershipRepository) Update(ctx context.Context, m *domain.Membership) error {
	query := `
		UPDATE memberships
		SET roles = $1, active = $2, on_shift = $3, updated_at = $4
		WHERE id = $5
	`
	res, err := r.db.ExecContext(ctx, query,
		pq.Array(rolesToStrings(m.Roles)), m.Active, m.OnShift, m.UpdatedAt, m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("membership %s: %w", m.ID, domain.ErrNotFound)
	}
	return nil
}

// AdminCount returns the number of active admin memberships in a tenant
func (r *PostgresMembershipRepository) AdminCount(ctx context.Context, tenantID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM memberships
		WHERE tenant_id = $1 AND active = TRUE AND 'admin' = ANY(roles)
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, tenantID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return count, nil
}

func scanMemberships(rows *sql.Rows) ([]*domain.Membership, error) {
	var out []*domain.Membership
	for rows.Next() {
		m := &domain.Membership{}
		var roles []string
		if err := rows.Scan(
			&m.ID, &m.UserID, &m.TenantID, pq.Array(&roles),
			&m.Active, &m.OnShift, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		m.Roles = stringsToRoles(roles)
		out = append(out, m)
	}
	return out, rows.Err()
}
