package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/towdesk/internal/domain"
	"github.com/yourorg/towdesk/internal/featureflags"
	"github.com/yourorg/towdesk/internal/observability/metrics"
	"github.com/yourorg/towdesk/internal/security"
	"github.com/yourorg/towdesk/internal/security/audit"
)

// CallEvent is pushed to dispatch-board subscribers whenever a call
// changes.
type CallEvent struct {
	Type      string       `json:"type"` // created, status_changed, assigned, claimed, cancelled
	Call      *domain.Call `json:"call"`
	Timestamp time.Time    `json:"timestamp"`
}

// CallEventSink receives call events for fan-out to live subscribers.
type CallEventSink interface {
	Publish(tenantID string, event *CallEvent)
}

// CallService implements the dispatch call lifecycle.
type CallService struct {
	callRepo       domain.CallRepository
	membershipRepo domain.MembershipRepository
	guard          *security.Guard
	audit          *audit.Logger
	events         CallEventSink
	logger         *slog.Logger
}

// NewCallService creates a new call service
func NewCallService(
	callRepo domain.CallRepository,
	membershipRepo domain.MembershipRepository,
	guard *security.Guard,
	auditLog *audit.Logger,
	events CallEventSink,
	logger *slog.Logger,
) *CallService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CallService{
		callRepo:       callRepo,
		membershipRepo: membershipRepo,
		guard:          guard,
		audit:          auditLog,
		events:         events,
		logger:         logger,
	}
}

// CallInput carries the caller-editable fields of a call.
type CallInput struct {
	Priority   domain.CallPriority `json:"priority"`
	CustomerID string              `json:"customer_id"`
	DriverID   string              `json:"driver_id"`

	CallerName  string `json:"caller_name"`
	CallerPhone string `json:"caller_phone"`

	PickupAddress  string `json:"pickup_address"`
	PickupNotes    string `json:"pickup_notes"`
	DropoffAddress string `json:"dropoff_address"`
	DropoffNotes   string `json:"dropoff_notes"`

	VehicleMake         string `json:"vehicle_make"`
	VehicleModel        string `json:"vehicle_model"`
	VehicleYear         string `json:"vehicle_year"`
	VehicleColor        string `json:"vehicle_color"`
	VehicleLicensePlate string `json:"vehicle_license_plate"`
	VehicleCondition    string `json:"vehicle_condition"`

	ServiceType  domain.ServiceType `json:"service_type"`
	ServiceNotes string             `json:"service_notes"`

	EstimatedCost float64 `json:"estimated_cost"`
}

// Create opens a new call. Dispatcher or admin. Supplying a driver at
// creation dispatches immediately: the call starts in assigned instead
// of open. The call number is minted here, unique per tenant by
// construction (date plus random suffix), without a read against
// existing calls.
func (s *CallService) Create(ctx context.Context, tc *security.TenantContext, input CallInput) (*domain.Call, error) {
	if err := s.guard.RequireAnyRole(tc, domain.RoleDispatcher, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if err := validateCallInput(&input); err != nil {
		return nil, err
	}

	now := time.Now()
	status := domain.CallOpen
	var assignedAt *time.Time
	if input.DriverID != "" {
		if err := s.requireActiveDriver(ctx, tc, input.DriverID); err != nil {
			return nil, err
		}
		status = domain.CallAssigned
		assignedAt = &now
	}

	call := &domain.Call{
		ID:         uuid.NewString(),
		TenantID:   tc.TenantID,
		CallNumber: mintCallNumber(now),
		Status:     status,
		Priority:   input.Priority,

		CustomerID:  input.CustomerID,
		CallerName:  input.CallerName,
		CallerPhone: input.CallerPhone,

		PickupAddress:  input.PickupAddress,
		PickupNotes:    input.PickupNotes,
		DropoffAddress: input.DropoffAddress,
		DropoffNotes:   input.DropoffNotes,

		VehicleMake:         input.VehicleMake,
		VehicleModel:        input.VehicleModel,
		VehicleYear:         input.VehicleYear,
		VehicleColor:        input.VehicleColor,
		VehicleLicensePlate: input.VehicleLicensePlate,
		VehicleCondition:    input.VehicleCondition,

		ServiceType:  input.ServiceType,
		ServiceNotes: input.ServiceNotes,

		DispatcherID:  tc.UserID,
		DriverID:      input.DriverID,
		AssignedAt:    assignedAt,
		CreatedAt:     now,
		UpdatedAt:     now,
		EstimatedCost: input.EstimatedCost,
		PaymentStatus: domain.CallPaymentPending,
	}

	entry := s.historyEntry(call.ID, status, tc.UserID, "Call created", now)
	if err := s.callRepo.Create(ctx, call, entry); err != nil {
		return nil, fmt.Errorf("failed to create call: %w", err)
	}

	metrics.ObserveCallCreated(string(call.Priority), string(call.ServiceType))
	s.audit.LogCallCreated(ctx, tc.TenantID, tc.UserID, call.ID, call.CallNumber)
	s.publish(tc.TenantID, "created", call)

	s.logger.Info("call created",
		slog.String("call_id", call.ID),
		slog.String("call_number", call.CallNumber),
		slog.String("tenant_id", tc.TenantID),
		slog.String("priority", string(call.Priority)),
	)
	return call, nil
}

// UpdateStatus moves a call along the lifecycle graph. Any member of
// the call's tenant may move it; the graph, not a role table, is the
// gate here. Off-graph moves are refused unless the permissive flag is
// set, which restores the legacy accept-anything behavior.
func (s *CallService) UpdateStatus(ctx context.Context, tc *security.TenantContext, callID string, to domain.CallStatus, notes string) (*domain.Call, error) {
	if !domain.ValidCallStatus(to) {
		return nil, fmt.Errorf("unknown status %q: %w", to, domain.ErrValidation)
	}

	call, err := s.getTenantCall(ctx, tc, callID)
	if err != nil {
		return nil, err
	}

	from := call.Status
	if !domain.CanTransition(from, to) && !featureflags.Enabled("PERMISSIVE_TRANSITIONS") {
		metrics.ObserveTransition(string(to), "rejected")
		return nil, &domain.IllegalTransitionError{From: from, To: to}
	}

	now := time.Now()
	call.Status = to
	call.UpdatedAt = now
	if to == domain.CallCompleted {
		call.CompletedAt = &now
	}

	entry := s.historyEntry(call.ID, to, tc.UserID, notes, now)
	if err := s.callRepo.Update(ctx, call, entry); err != nil {
		return nil, err
	}

	metrics.ObserveTransition(string(to), "ok")
	s.audit.LogStatusChange(ctx, tc.TenantID, tc.UserID, call.ID, string(from), string(to))
	s.publish(tc.TenantID, "status_changed", call)
	return call, nil
}

// Assign hands a call to a chosen driver. Dispatcher or admin. This is
// the dispatcher override: it forces the call into assigned from
// whatever state it is in, so a board operator can always re-route.
// The driver must be an active member holding the driver role.
func (s *CallService) Assign(ctx context.Context, tc *security.TenantContext, callID, driverID, notes string) (*domain.Call, error) {
	if err := s.guard.RequireAnyRole(tc, domain.RoleDispatcher, domain.RoleAdmin); err != nil {
		return nil, err
	}

	call, err := s.getTenantCall(ctx, tc, callID)
	if err != nil {
		return nil, err
	}
	if err := s.requireActiveDriver(ctx, tc, driverID); err != nil {
		return nil, err
	}

	from := call.Status
	now := time.Now()
	call.Status = domain.CallAssigned
	call.DriverID = driverID
	call.AssignedAt = &now
	call.UpdatedAt = now

	if notes == "" {
		notes = "Assigned to driver"
	}
	entry := s.historyEntry(call.ID, domain.CallAssigned, tc.UserID, notes, now)
	if err := s.callRepo.Update(ctx, call, entry); err != nil {
		return nil, err
	}

	metrics.ObserveTransition(string(domain.CallAssigned), "ok")
	s.audit.LogStatusChange(ctx, tc.TenantID, tc.UserID, call.ID, string(from), string(domain.CallAssigned))
	s.publish(tc.TenantID, "assigned", call)
	return call, nil
}

// Claim lets the caller take an open call for themselves. Any tenant
// member may claim; the tenant context already proves membership, and
// no role gate applies so drivers always have this path. Two callers
// racing for the same call resolve to one winner; the loser gets a
// not-claimable error, same as claiming a call that already left the
// open state.
func (s *CallService) Claim(ctx context.Context, tc *security.TenantContext, callID string) (*domain.Call, error) {
	call, err := s.getTenantCall(ctx, tc, callID)
	if err != nil {
		return nil, err
	}
	if call.Status != domain.CallOpen {
		metrics.ObserveClaim("lost")
		return nil, domain.ErrNotClaimable
	}

	now := time.Now()
	entry := s.historyEntry(call.ID, domain.CallAssigned, tc.UserID, "Claimed by driver", now)
	won, err := s.callRepo.Claim(ctx, callID, tc.UserID, now, entry)
	if err != nil {
		return nil, err
	}
	if !won {
		metrics.ObserveClaim("lost")
		s.audit.LogClaim(ctx, tc.TenantID, tc.UserID, callID, "lost")
		return nil, domain.ErrNotClaimable
	}

	metrics.ObserveClaim("won")
	s.audit.LogClaim(ctx, tc.TenantID, tc.UserID, callID, "won")

	call, err = s.callRepo.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}
	s.publish(tc.TenantID, "claimed", call)
	return call, nil
}

// Cancel aborts a call from any non-terminal state. Any tenant member
// may cancel. Completed and already-cancelled calls stay as they are.
func (s *CallService) Cancel(ctx context.Context, tc *security.TenantContext, callID, reason string) (*domain.Call, error) {
	call, err := s.getTenantCall(ctx, tc, callID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(call.Status, domain.CallCancelled) {
		return nil, &domain.IllegalTransitionError{From: call.Status, To: domain.CallCancelled}
	}

	from := call.Status
	now := time.Now()
	call.Status = domain.CallCancelled
	call.UpdatedAt = now

	if reason == "" {
		reason = "Cancelled"
	}
	entry := s.historyEntry(call.ID, domain.CallCancelled, tc.UserID, reason, now)
	if err := s.callRepo.Update(ctx, call, entry); err != nil {
		return nil, err
	}

	metrics.ObserveTransition(string(domain.CallCancelled), "ok")
	s.audit.LogStatusChange(ctx, tc.TenantID, tc.UserID, call.ID, string(from), string(domain.CallCancelled))
	s.publish(tc.TenantID, "cancelled", call)
	return call, nil
}

// UpdateDetails edits a call's non-lifecycle fields. Dispatcher or
// admin. Status, call number, and tenant are untouchable here; no
// history entry is appended.
func (s *CallService) UpdateDetails(ctx context.Context, tc *security.TenantContext, callID string, input CallInput) (*domain.Call, error) {
	if err := s.guard.RequireAnyRole(tc, domain.RoleDispatcher, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if err := validateCallInput(&input); err != nil {
		return nil, err
	}

	call, err := s.getTenantCall(ctx, tc, callID)
	if err != nil {
		return nil, err
	}

	call.Priority = input.Priority
	call.CustomerID = input.CustomerID
	call.CallerName = input.CallerName
	call.CallerPhone = input.CallerPhone
	call.PickupAddress = input.PickupAddress
	call.PickupNotes = input.PickupNotes
	call.DropoffAddress = input.DropoffAddress
	call.DropoffNotes = input.DropoffNotes
	call.VehicleMake = input.VehicleMake
	call.VehicleModel = input.VehicleModel
	call.VehicleYear = input.VehicleYear
	call.VehicleColor = input.VehicleColor
	call.VehicleLicensePlate = input.VehicleLicensePlate
	call.VehicleCondition = input.VehicleCondition
	call.ServiceType = input.ServiceType
	call.ServiceNotes = input.ServiceNotes
	call.EstimatedCost = input.EstimatedCost
	call.UpdatedAt = time.Now()

	if err := s.callRepo.Update(ctx, call, nil); err != nil {
		return nil, err
	}
	s.publish(tc.TenantID, "status_changed", call)
	return call, nil
}

// SetCost records the final price and payment state of a call.
// Dispatcher or admin.
func (s *CallService) SetCost(ctx context.Context, tc *security.TenantContext, callID string, actualCost float64, paymentStatus domain.CallPaymentStatus) (*domain.Call, error) {
	if err := s.guard.RequireAnyRole(tc, domain.RoleDispatcher, domain.RoleAdmin); err != nil {
		return nil, err
	}

	call, err := s.getTenantCall(ctx, tc, callID)
	if err != nil {
		return nil, err
	}
	call.ActualCost = actualCost
	if paymentStatus != "" {
		call.PaymentStatus = paymentStatus
	}
	call.UpdatedAt = time.Now()
	if err := s.callRepo.Update(ctx, call, nil); err != nil {
		return nil, err
	}
	return call, nil
}

// Get returns one call. Any member of the tenant.
func (s *CallService) Get(ctx context.Context, tc *security.TenantContext, callID string) (*domain.Call, error) {
	return s.getTenantCall(ctx, tc, callID)
}

// History returns a call's audit trail in chronological order.
func (s *CallService) History(ctx context.Context, tc *security.TenantContext, callID string) ([]*domain.CallStatusEntry, error) {
	if _, err := s.getTenantCall(ctx, tc, callID); err != nil {
		return nil, err
	}
	return s.callRepo.History(ctx, callID)
}

// ListAll returns every call of the acting tenant, newest first.
func (s *CallService) ListAll(ctx context.Context, tc *security.TenantContext) ([]*domain.Call, error) {
	return s.callRepo.ListByTenant(ctx, tc.TenantID)
}

// ListByStatus returns the tenant's calls in one status.
func (s *CallService) ListByStatus(ctx context.Context, tc *security.TenantContext, status domain.CallStatus) ([]*domain.Call, error) {
	if !domain.ValidCallStatus(status) {
		return nil, fmt.Errorf("unknown status %q: %w", status, domain.ErrValidation)
	}
	return s.callRepo.ListByStatus(ctx, tc.TenantID, status)
}

// ListOpen returns the tenant's unassigned calls, the driver's claim
// board.
func (s *CallService) ListOpen(ctx context.Context, tc *security.TenantContext) ([]*domain.Call, error) {
	return s.callRepo.ListByStatus(ctx, tc.TenantID, domain.CallOpen)
}

// ListMine returns the calls assigned to the calling driver.
func (s *CallService) ListMine(ctx context.Context, tc *security.TenantContext) ([]*domain.Call, error) {
	if err := s.guard.RequireRole(tc, domain.RoleDriver); err != nil {
		return nil, err
	}
	return s.callRepo.ListByDriver(ctx, tc.TenantID, tc.UserID)
}

// DashboardStats summarizes the tenant's board for the dispatch
// dashboard.
type DashboardStats struct {
	Total          int                       `json:"total"`
	ByStatus       map[domain.CallStatus]int `json:"by_status"`
	Today          int                       `json:"today"`
	CompletedToday int                       `json:"completed_today"`
	DriversOnShift int                       `json:"drivers_on_shift"`
}

// Dashboard computes board-level counts for the acting tenant.
func (s *CallService) Dashboard(ctx context.Context, tc *security.TenantContext) (*DashboardStats, error) {
	calls, err := s.callRepo.ListByTenant(ctx, tc.TenantID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	stats := &DashboardStats{ByStatus: map[domain.CallStatus]int{}}
	for _, c := range calls {
		stats.Total++
		stats.ByStatus[c.Status]++
		if !c.CreatedAt.Before(dayStart) {
			stats.Today++
		}
		if c.CompletedAt != nil && !c.CompletedAt.Before(dayStart) {
			stats.CompletedToday++
		}
	}
	memberships, err := s.membershipRepo.ListByTenant(ctx, tc.TenantID, true)
	if err != nil {
		return nil, err
	}
	for _, m := range memberships {
		if m.OnShift && m.HasRole(domain.RoleDriver) {
			stats.DriversOnShift++
		}
	}

	metrics.SetOpenCalls(stats.ByStatus[domain.CallOpen])
	return stats, nil
}

// getTenantCall loads a call and verifies it belongs to the acting
// tenant. Foreign calls read as not found so their existence leaks
// nothing.
func (s *CallService) getTenantCall(ctx context.Context, tc *security.TenantContext, callID string) (*domain.Call, error) {
	call, err := s.callRepo.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.TenantID != tc.TenantID {
		return nil, fmt.Errorf("call %s: %w", callID, domain.ErrNotFound)
	}
	return call, nil
}

// requireActiveDriver verifies the target of an assignment is an
// active tenant member holding the driver role.
func (s *CallService) requireActiveDriver(ctx context.Context, tc *security.TenantContext, driverID string) error {
	m, err := s.membershipRepo.Get(ctx, driverID, tc.TenantID)
	if err != nil {
		return err
	}
	if !m.Active || !m.HasRole(domain.RoleDriver) {
		return fmt.Errorf("user is not an active driver: %w", domain.ErrValidation)
	}
	return nil
}

func (s *CallService) historyEntry(callID string, status domain.CallStatus, updatedBy, notes string, ts time.Time) *domain.CallStatusEntry {
	return &domain.CallStatusEntry{
		ID:        uuid.NewString(),
		CallID:    callID,
		Status:    status,
		UpdatedBy: updatedBy,
		Notes:     notes,
		Timestamp: ts,
	}
}

func (s *CallService) publish(tenantID, eventType string, call *domain.Call) {
	if s.events == nil {
		return
	}
	s.events.Publish(tenantID, &CallEvent{Type: eventType, Call: call, Timestamp: time.Now()})
}

func validateCallInput(input *CallInput) error {
	if input.CallerName == "" {
		return &domain.ValidationError{Field: "caller_name"}
	}
	if input.CallerPhone == "" {
		return &domain.ValidationError{Field: "caller_phone"}
	}
	if input.PickupAddress == "" {
		return &domain.ValidationError{Field: "pickup_address"}
	}
	if input.VehicleMake == "" {
		return &domain.ValidationError{Field: "vehicle_make"}
	}
	if input.VehicleModel == "" {
		return &domain.ValidationError{Field: "vehicle_model"}
	}
	if input.Priority == "" {
		input.Priority = domain.PriorityNormal
	}
	if !domain.ValidCallPriority(input.Priority) {
		return fmt.Errorf("unknown priority %q: %w", input.Priority, domain.ErrValidation)
	}
	if !domain.ValidServiceType(input.ServiceType) {
		return fmt.Errorf("unknown service type %q: %w", input.ServiceType, domain.ErrValidation)
	}
	return nil
}

const callNumberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// mintCallNumber builds a human-readable call number: OT, the date,
// and a random suffix. Random enough that per-tenant collisions on one
// day are negligible, and the unique index catches the rest.
func mintCallNumber(now time.Time) string {
	buf := make([]byte, 4)
	rand.Read(buf)
	suffix := make([]byte, 4)
	for i, b := range buf {
		suffix[i] = callNumberAlphabet[int(b)%len(callNumberAlphabet)]
	}
	return fmt.Sprintf("OT-%s-%s", now.Format("060102"), suffix)
}
