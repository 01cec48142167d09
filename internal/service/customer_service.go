package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/towdesk/internal/domain"
	"github.com/yourorg/towdesk/internal/security"
)

// CustomerService manages the tenant's contact book.
type CustomerService struct {
	customerRepo domain.CustomerRepository
	guard        *security.Guard
	logger       *slog.Logger
}

// NewCustomerService creates a new customer service
func NewCustomerService(
	customerRepo domain.CustomerRepository,
	guard *security.Guard,
	logger *slog.Logger,
) *CustomerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CustomerService{customerRepo: customerRepo, guard: guard, logger: logger}
}

// CustomerInput carries the caller-editable customer fields.
type CustomerInput struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

// Create adds a customer to the acting tenant. Dispatcher or admin.
func (s *CustomerService) Create(ctx context.Context, tc *security.TenantContext, input CustomerInput) (*domain.Customer, error) {
	if err := s.guard.RequireAnyRole(tc, domain.RoleDispatcher, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if input.Name == "" {
		return nil, &domain.ValidationError{Field: "name"}
	}
	if input.Phone == "" {
		return nil, &domain.ValidationError{Field: "phone"}
	}

	customer := &domain.Customer{
		ID:        uuid.NewString(),
		TenantID:  tc.TenantID,
		Name:      input.Name,
		Phone:     input.Phone,
		Email:     input.Email,
		Address:   input.Address,
		Notes:     input.Notes,
		CreatedAt: time.Now(),
	}
	if err := s.customerRepo.Create(ctx, customer); err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	return customer, nil
}

// Get returns one customer of the acting tenant.
func (s *CustomerService) Get(ctx context.Context, tc *security.TenantContext, id string) (*domain.Customer, error) {
	customer, err := s.customerRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if customer.TenantID != tc.TenantID {
		return nil, fmt.Errorf("customer %s: %w", id, domain.ErrNotFound)
	}
	return customer, nil
}

// List returns the tenant's customers, newest first.
func (s *CustomerService) List(ctx context.Context, tc *security.TenantContext) ([]*domain.Customer, error) {
	return s.customerRepo.ListByTenant(ctx, tc.TenantID)
}

// SearchByPhone finds customers whose phone contains the query. Short
// queries are refused; matching on one or two digits would return the
// whole book.
func (s *CustomerService) SearchByPhone(ctx context.Context, tc *security.TenantContext, query string) ([]*domain.Customer, error) {
	query = strings.TrimSpace(query)
	if len(query) < 3 {
		return nil, fmt.Errorf("phone query must be at least 3 characters: %w", domain.ErrValidation)
	}

	customers, err := s.customerRepo.ListByTenant(ctx, tc.TenantID)
	if err != nil {
		return nil, err
	}
	var out []*domain.Customer
	for _, c := range customers {
		if strings.Contains(c.Phone, query) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Update edits a customer. Dispatcher or admin.
func (s *CustomerService) Update(ctx context.Context, tc *security.TenantContext, id string, input CustomerInput) (*domain.Customer, error) {
	if err := s.guard.RequireAnyRole(tc, domain.RoleDispatcher, domain.RoleAdmin); err != nil {
		return nil, err
	}

	customer, err := s.Get(ctx, tc, id)
	if err != nil {
		return nil, err
	}

	if input.Name != "" {
		customer.Name = input.Name
	}
	if input.Phone != "" {
		customer.Phone = input.Phone
	}
	if input.Email != "" {
		customer.Email = input.Email
	}
	if input.Address != "" {
		customer.Address = input.Address
	}
	if input.Notes != "" {
		customer.Notes = input.Notes
	}

	if err := s.customerRepo.Update(ctx, customer); err != nil {
		return nil, err
	}
	return customer, nil
}
