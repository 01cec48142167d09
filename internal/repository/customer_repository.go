package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yourorg/towdesk/internal/domain"
)

// PostgresCustomerRepository implements domain.CustomerRepository using PostgreSQL
type PostgresCustomerRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresCustomerRepository creates a new customer repository
func NewPostgresCustomerRepository(db *sql.DB, logger *slog.Logger) *PostgresCustomerRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCustomerRepository{db: db, logger: logger}
}

// Create inserts a new customer
func (r *PostgresCustomerRepository) Create(ctx context.Context, customer *domain.Customer) error {
	query := `
		INSERT INTO customers (id, tenant_id, name, phone, email, address, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		customer.ID, customer.TenantID, customer.Name, customer.Phone,
		customer.Email, customer.Address, customer.Notes, customer.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// GetByID retrieves a customer by ID
func (r *PostgresCustomerRepository) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	c := &domain.Customer{}
	query := `
		SELECT id, tenant_id, name, phone, email, address, notes, created_at
		FROM customers
		WHERE id = $1
	`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.TenantID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.Notes, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("customer %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return c, nil
}

// ListByTenant returns all of a tenant's customers, newest first
func (r *PostgresCustomerRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.Customer, error) {
	query := `
		SELECT id, tenant_id, name, phone, email, address, notes, created_at
		FROM customers
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var out []*domain.Customer
	for rows.Next() {
		c := &domain.Customer{}
		if err := rows.Scan(
			&c.ID, &c.TenantID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.Notes, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Update updates an existing customer
func (r *PostgresCustomerRepository) Update(ctx context.Context, customer *domain.Customer) error {
	query := `
		UPDATE customers
		SET name = $1, phone = $2, email = $3, address = $4, notes = $5
		WHERE id = $6
	`
	res, err := r.db.ExecContext(ctx, query,
		customer.Name, customer.Phone, customer.Email,
		customer.Address, customer.Notes, customer.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update customer: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("customer %s: %w", customer.ID, domain.ErrNotFound)
	}
	return nil
}
