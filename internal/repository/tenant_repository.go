package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yourorg/towdesk/internal/domain"
)

// PostgresTenantRepository implements domain.TenantRepository using PostgreSQL
type PostgresTenantRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresTenantRepository creates a new tenant repository
func NewPostgresTenantRepository(db *sql.DB, logger *slog.Logger) *PostgresTenantRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTenantRepository{db: db, logger: logger}
}

// Create inserts a new tenant
func (r *PostgresTenantRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	query := `
		INSERT INTO tenants (id, name, slug, email, phone, address, timezone,
			billing_plan, is_active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		tenant.ID, tenant.Name, tenant.Slug, tenant.Email, tenant.Phone,
		tenant.Address, tenant.Timezone, string(tenant.BillingPlan),
		tenant.IsActive, tenant.CreatedBy, tenant.CreatedAt, tenant.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// GetByID retrieves a tenant by ID
func (r *PostgresTenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	t := &domain.Tenant{}
	query := `
		SELECT id, name, slug, email, phone, address, timezone,
			billing_plan, is_active, created_by, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`
	var plan string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.Slug, &t.Email, &t.Phone, &t.Address, &t.Timezone,
		&plan, &t.IsActive, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tenant %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	t.BillingPlan = domain.BillingPlan(plan)
	return t, nil
}

// Update updates an existing tenant
func (r *PostgresTenantRepository) Update(ctx context.Context, tenant *domain.Tenant) error {
	query := `
		UPDATE tenants
		SET name = $1, slug = $2, email = $3, phone = $4, address = $5,
			timezone = $6, billing_plan = $7, is_active = $8, updated_at = $9
		WHERE id = $10
	`
	res, err := r.db.ExecContext(ctx, query,
		tenant.Name, tenant.Slug, tenant.Email, tenant.Phone, tenant.Address,
		tenant.Timezone, string(tenant.BillingPlan), tenant.IsActive,
		tenant.UpdatedAt, tenant.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("tenant %s: %w", tenant.ID, domain.ErrNotFound)
	}
	return nil
}
