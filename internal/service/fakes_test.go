package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/towdesk/internal/domain"
)

type memUserRepo struct {
	mu      sync.Mutex
	byID    map[string]*domain.User
	byEmail map[string]*domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: map[string]*domain.User{}, byEmail: map[string]*domain.User{}}
}

func (m *memUserRepo) Create(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	m.byID[u.ID] = u
	m.byEmail[u.Email] = u
	return nil
}

func (m *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user: %w", domain.ErrNotFound)
}

func (m *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byEmail[email]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user: %w", domain.ErrNotFound)
}

func (m *memUserRepo) Update(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[u.ID]; !ok {
		return fmt.Errorf("user: %w", domain.ErrNotFound)
	}
	m.byID[u.ID] = u
	m.byEmail[u.Email] = u
	return nil
}

type memTenantRepo struct {
	mu   sync.Mutex
	byID map[string]*domain.Tenant
}

func newMemTenantRepo() *memTenantRepo {
	return &memTenantRepo{byID: map[string]*domain.Tenant{}}
}

func (m *memTenantRepo) Create(_ context.Context, t *domain.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[t.ID] = t
	return nil
}

func (m *memTenantRepo) GetByID(_ context.Context, id string) (*domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.byID[id]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("tenant: %w", domain.ErrNotFound)
}

func (m *memTenantRepo) Update(_ context.Context, t *domain.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[t.ID]; !ok {
		return fmt.Errorf("tenant: %w", domain.ErrNotFound)
	}
	m.byID[t.ID] = t
	return nil
}

type memMembershipRepo struct {
	mu   sync.Mutex
	byID map[string]*domain.Membership
}

func newMemMembershipRepo() *memMembershipRepo {
	return &memMembershipRepo{byID: map[string]*domain.Membership{}}
}

func (m *memMembershipRepo) Create(_ context.Context, mem *domain.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mem.ID == "" {
		mem.ID = uuid.NewString()
	}
	m.byID[mem.ID] = mem
	return nil
}

func (m *memMembershipRepo) Get(_ context.Context, userID, tenantID string) (*domain.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mem := range m.byID {
		if mem.UserID == userID && mem.TenantID == tenantID {
			return mem, nil
		}
	}
	return nil, fmt.Errorf("membership: %w", domain.ErrNotFound)
}

func (m *memMembershipRepo) ListByUser(_ context.Context, userID string) ([]*domain.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Membership
	for _, mem := range m.byID {
		if mem.UserID == userID {
			out = append(out, mem)
		}
	}
	return out, nil
}

func (m *memMembershipRepo) ListByTenant(_ context.Context, tenantID string, activeOnly bool) ([]*domain.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Membership
	for _, mem := range m.byID {
		if mem.TenantID == tenantID && (!activeOnly || mem.Active) {
			out = append(out, mem)
		}
	}
	return out, nil
}

func (m *memMembershipRepo) Update(_ context.Context, mem *domain.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[mem.ID]; !ok {
		return fmt.Errorf("membership: %w", domain.ErrNotFound)
	}
	m.byID[mem.ID] = mem
	return nil
}

func (m *memMembershipRepo) AdminCount(_ context.Context, tenantID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, mem := range m.byID {
		if mem.TenantID == tenantID && mem.Active && mem.HasRole(domain.RoleAdmin) {
			count++
		}
	}
	return count, nil
}

type memBindingRepo struct {
	mu        sync.Mutex
	bySession map[string]*domain.SessionBinding
}

func newMemBindingRepo() *memBindingRepo {
	return &memBindingRepo{bySession: map[string]*domain.SessionBinding{}}
}

func (m *memBindingRepo) Put(_ context.Context, b *domain.SessionBinding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bySession[b.SessionID] = b
	return nil
}

func (m *memBindingRepo) Get(_ context.Context, sessionID string) (*domain.SessionBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bySession[sessionID], nil
}

type memInviteRepo struct {
	mu   sync.Mutex
	byID map[string]*domain.Invite
}

func newMemInviteRepo() *memInviteRepo {
	return &memInviteRepo{byID: map[string]*domain.Invite{}}
}

func (m *memInviteRepo) Create(_ context.Context, inv *domain.Invite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	m.byID[inv.ID] = inv
	return nil
}

func (m *memInviteRepo) GetPendingByEmail(_ context.Context, email, tenantID string, now time.Time) (*domain.Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.byID {
		if inv.Email == email && inv.TenantID == tenantID && !inv.Accepted && inv.ExpiresAt.After(now) {
			return inv, nil
		}
	}
	return nil, nil
}

func (m *memInviteRepo) ListByEmail(_ context.Context, email string) ([]*domain.Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Invite
	for _, inv := range m.byID {
		if inv.Email == email {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (m *memInviteRepo) MarkAccepted(_ context.Context, inviteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.byID[inviteID]
	if !ok {
		return fmt.Errorf("invite: %w", domain.ErrNotFound)
	}
	inv.Accepted = true
	return nil
}

type memCallRepo struct {
	mu      sync.Mutex
	byID    map[string]*domain.Call
	history map[string][]*domain.CallStatusEntry
}

func newMemCallRepo() *memCallRepo {
	return &memCallRepo{byID: map[string]*domain.Call{}, history: map[string][]*domain.CallStatusEntry{}}
}

func (m *memCallRepo) Create(_ context.Context, call *domain.Call, entry *domain.CallStatusEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *call
	m.byID[call.ID] = &cp
	m.history[call.ID] = append(m.history[call.ID], entry)
	return nil
}

func (m *memCallRepo) GetByID(_ context.Context, id string) (*domain.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.byID[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, fmt.Errorf("call: %w", domain.ErrNotFound)
}

func (m *memCallRepo) ListByTenant(_ context.Context, tenantID string) ([]*domain.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Call
	for _, c := range m.byID {
		if c.TenantID == tenantID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memCallRepo) ListByStatus(_ context.Context, tenantID string, status domain.CallStatus) ([]*domain.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Call
	for _, c := range m.byID {
		if c.TenantID == tenantID && c.Status == status {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memCallRepo) ListByDriver(_ context.Context, tenantID, driverID string) ([]*domain.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Call
	for _, c := range m.byID {
		if c.TenantID == tenantID && c.DriverID == driverID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memCallRepo) History(_ context.Context, callID string) ([]*domain.CallStatusEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history[callID], nil
}

func (m *memCallRepo) Update(_ context.Context, call *domain.Call, entry *domain.CallStatusEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[call.ID]; !ok {
		return fmt.Errorf("call: %w", domain.ErrNotFound)
	}
	cp := *call
	m.byID[call.ID] = &cp
	if entry != nil {
		m.history[call.ID] = append(m.history[call.ID], entry)
	}
	return nil
}

func (m *memCallRepo) Claim(_ context.Context, callID, driverID string, now time.Time, entry *domain.CallStatusEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[callID]
	if !ok {
		return false, fmt.Errorf("call: %w", domain.ErrNotFound)
	}
	if c.Status != domain.CallOpen {
		return false, nil
	}
	c.Status = domain.CallAssigned
	c.DriverID = driverID
	c.AssignedAt = &now
	c.UpdatedAt = now
	m.history[callID] = append(m.history[callID], entry)
	return true, nil
}

type memImpoundRepo struct {
	mu   sync.Mutex
	byID map[string]*domain.Impound
}

func newMemImpoundRepo() *memImpoundRepo {
	return &memImpoundRepo{byID: map[string]*domain.Impound{}}
}

func (m *memImpoundRepo) Create(_ context.Context, imp *domain.Impound) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *imp
	m.byID[imp.ID] = &cp
	return nil
}

func (m *memImpoundRepo) GetByID(_ context.Context, id string) (*domain.Impound, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if imp, ok := m.byID[id]; ok {
		cp := *imp
		return &cp, nil
	}
	return nil, fmt.Errorf("impound: %w", domain.ErrNotFound)
}

func (m *memImpoundRepo) ListByTenant(_ context.Context, tenantID string) ([]*domain.Impound, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Impound
	for _, imp := range m.byID {
		if imp.TenantID == tenantID {
			cp := *imp
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memImpoundRepo) Update(_ context.Context, imp *domain.Impound) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[imp.ID]; !ok {
		return fmt.Errorf("impound: %w", domain.ErrNotFound)
	}
	cp := *imp
	m.byID[imp.ID] = &cp
	return nil
}

type memCustomerRepo struct {
	mu   sync.Mutex
	byID map[string]*domain.Customer
}

func newMemCustomerRepo() *memCustomerRepo {
	return &memCustomerRepo{byID: map[string]*domain.Customer{}}
}

func (m *memCustomerRepo) Create(_ context.Context, c *domain.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[c.ID] = c
	return nil
}

func (m *memCustomerRepo) GetByID(_ context.Context, id string) (*domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.byID[id]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("customer: %w", domain.ErrNotFound)
}

func (m *memCustomerRepo) ListByTenant(_ context.Context, tenantID string) ([]*domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Customer
	for _, c := range m.byID {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memCustomerRepo) Update(_ context.Context, c *domain.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[c.ID]; !ok {
		return fmt.Errorf("customer: %w", domain.ErrNotFound)
	}
	m.byID[c.ID] = c
	return nil
}
