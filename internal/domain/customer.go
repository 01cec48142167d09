package domain

import (
	"context"
	"time"
)

// Customer is a tenant-scoped contact record referenced by calls.
type Customer struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CustomerRepository defines data access for customers
type CustomerRepository interface {
	Create(ctx context.Context, customer *Customer) error
	GetByID(ctx context.Context, id string) (*Customer, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*Customer, error)
	Update(ctx context.Context, customer *Customer) error
}
