package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/yourorg/towdesk/internal/domain"
	"github.com/yourorg/towdesk/internal/security"
	"github.com/yourorg/towdesk/internal/security/audit"
)

func testContext(userID, tenantID string, roles ...domain.Role) *security.TenantContext {
	m := &domain.Membership{
		ID:       uuid.NewString(),
		UserID:   userID,
		TenantID: tenantID,
		Roles:    roles,
		Active:   true,
	}
	return &security.TenantContext{
		UserID:     userID,
		SessionID:  "sess-" + userID,
		TenantID:   tenantID,
		Roles:      roles,
		Membership: m,
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []*CallEvent
}

func (r *recordingSink) Publish(_ string, e *CallEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func newTestCallService() (*CallService, *memCallRepo, *memMembershipRepo, *recordingSink) {
	calls := newMemCallRepo()
	memberships := newMemMembershipRepo()
	guard := security.NewGuard(memberships, newMemBindingRepo(), slog.Default())
	sink := &recordingSink{}
	svc := NewCallService(calls, memberships, guard, audit.NewLogger(slog.Default()), sink, slog.Default())
	return svc, calls, memberships, sink
}

func validInput() CallInput {
	return CallInput{
		CallerName:    "Jamie Ortiz",
		CallerPhone:   "555-0142",
		PickupAddress: "1200 Industrial Pkwy",
		VehicleMake:   "Honda",
		VehicleModel:  "Civic",
		ServiceType:   domain.ServiceBreakdown,
	}
}

func TestCreateCall(t *testing.T) {
	svc, _, _, sink := newTestCallService()
	tc := testContext("disp-1", "tenant-1", domain.RoleDispatcher)

	call, err := svc.Create(context.Background(), tc, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if call.Status != domain.CallOpen {
		t.Errorf("status = %s, want open", call.Status)
	}
	if call.Priority != domain.PriorityNormal {
		t.Errorf("priority = %s, want default normal", call.Priority)
	}
	if call.DispatcherID != "disp-1" {
		t.Errorf("dispatcher = %s, want disp-1", call.DispatcherID)
	}

	pattern := regexp.MustCompile(`^OT-\d{6}-[A-Z2-9]{4}$`)
	if !pattern.MatchString(call.CallNumber) {
		t.Errorf("call number %q does not match expected format", call.CallNumber)
	}

	history, err := svc.History(context.Background(), tc, call.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	if history[0].Notes != "Call created" {
		t.Errorf("initial history notes = %q", history[0].Notes)
	}

	if len(sink.events) != 1 || sink.events[0].Type != "created" {
		t.Errorf("expected one created event, got %v", sink.events)
	}
}

func TestCreateCallValidation(t *testing.T) {
	svc, _, _, _ := newTestCallService()
	tc := testContext("disp-1", "tenant-1", domain.RoleDispatcher)

	input := validInput()
	input.CallerName = ""
	if _, err := svc.Create(context.Background(), tc, input); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("missing caller name: err = %v, want validation error", err)
	}

	input = validInput()
	input.ServiceType = "helicopter"
	if _, err := svc.Create(context.Background(), tc, input); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("bad service type: err = %v, want validation error", err)
	}
}

func TestCreateCallWithDriverStartsAssigned(t *testing.T) {
	svc, _, memberships, _ := newTestCallService()
	ctx := context.Background()
	disp := testContext("disp-1", "tenant-1", domain.RoleDispatcher)

	memberships.Create(ctx, &domain.Membership{
		UserID: "drv-1", TenantID: "tenant-1",
		Roles: []domain.Role{domain.RoleDriver}, Active: true,
	})

	input := validInput()
	input.DriverID = "drv-1"
	call, err := svc.Create(ctx, disp, input)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if call.Status != domain.CallAssigned || call.DriverID != "drv-1" {
		t.Errorf("call = %s/%q, want assigned/drv-1", call.Status, call.DriverID)
	}
	if call.AssignedAt == nil {
		t.Error("AssignedAt not set on dispatch-at-creation")
	}

	history, _ := svc.History(ctx, disp, call.ID)
	if len(history) != 1 || history[0].Status != domain.CallAssigned {
		t.Errorf("history = %v, want one assigned entry", history)
	}

	// Skipping straight to en_route works from assigned.
	if _, err := svc.UpdateStatus(ctx, disp, call.ID, domain.CallEnRoute, ""); err != nil {
		t.Errorf("assigned -> en_route: %v", err)
	}
}

func TestCreateCallRejectsUnknownDriver(t *testing.T) {
	svc, _, _, _ := newTestCallService()
	disp := testContext("disp-1", "tenant-1", domain.RoleDispatcher)

	input := validInput()
	input.DriverID = "drv-ghost"
	if _, err := svc.Create(context.Background(), disp, input); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want not found for unknown driver", err)
	}
}

func TestCreateCallRequiresDispatcherRole(t *testing.T) {
	svc, _, _, _ := newTestCallService()
	tc := testContext("drv-1", "tenant-1", domain.RoleDriver)

	_, err := svc.Create(context.Background(), tc, validInput())
	if !errors.Is(err, domain.ErrAccessDenied) {
		t.Errorf("err = %v, want access denied", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	svc, _, memberships, _ := newTestCallService()
	ctx := context.Background()
	disp := testContext("disp-1", "tenant-1", domain.RoleDispatcher)

	call, err := svc.Create(ctx, disp, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Skipping assignment is off the graph.
	if _, err := svc.UpdateStatus(ctx, disp, call.ID, domain.CallEnRoute, ""); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Errorf("open -> en_route: err = %v, want illegal transition", err)
	}

	memberships.Create(ctx, &domain.Membership{
		UserID: "drv-1", TenantID: "tenant-1",
		Roles: []domain.Role{domain.RoleDriver}, Active: true,
	})
	if _, err := svc.Assign(ctx, disp, call.ID, "drv-1", ""); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	for _, status := range []domain.CallStatus{
		domain.CallEnRoute, domain.CallOnScene, domain.CallHooked,
		domain.CallInTransit, domain.CallCompleted,
	} {
		if _, err := svc.UpdateStatus(ctx, disp, call.ID, status, ""); err != nil {
			t.Fatalf("UpdateStatus(%s): %v", status, err)
		}
	}

	got, err := svc.Get(ctx, disp, call.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not set on completion")
	}

	// Terminal states accept nothing, including cancellation.
	if _, err := svc.UpdateStatus(ctx, disp, call.ID, domain.CallOpen, ""); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Errorf("completed -> open: err = %v, want illegal transition", err)
	}
	if _, err := svc.Cancel(ctx, disp, call.ID, "changed mind"); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Errorf("cancel completed: err = %v, want illegal transition", err)
	}

	history, _ := svc.History(ctx, disp, call.ID)
	if len(history) != 7 {
		t.Errorf("history length = %d, want 7 (create + assign + 5 moves)", len(history))
	}
}

func TestAnyTenantMemberMayMoveCall(t *testing.T) {
	svc, _, memberships, _ := newTestCallService()
	ctx := context.Background()
	disp := testContext("disp-1", "tenant-1", domain.RoleDispatcher)

	call, _ := svc.Create(ctx, disp, validInput())
	memberships.Create(ctx, &domain.Membership{
		UserID: "drv-1", TenantID: "tenant-1",
		Roles: []domain.Role{domain.RoleDriver}, Active: true,
	})
	if _, err := svc.Assign(ctx, disp, call.ID, "drv-1", ""); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	// Lifecycle moves are tenant-matched, not role-gated: even a member
	// the call was not assigned to may advance it along the graph.
	owner := testContext("drv-1", "tenant-1", domain.RoleDriver)
	if _, err := svc.UpdateStatus(ctx, owner, call.ID, domain.CallEnRoute, ""); err != nil {
		t.Errorf("assigned driver move: %v", err)
	}
	other := testContext("drv-2", "tenant-1", domain.RoleDriver)
	if _, err := svc.UpdateStatus(ctx, other, call.ID, domain.CallOnScene, ""); err != nil {
		t.Errorf("other member move: %v", err)
	}
}

func TestClaim(t *testing.T) {
	svc, _, _, _ := newTestCallService()
	ctx := context.Background()
	disp := testContext("disp-1", "tenant-1", domain.RoleDispatcher)

	call, _ := svc.Create(ctx, disp, validInput())

	first := testContext("drv-1", "tenant-1", domain.RoleDriver)
	claimed, err := svc.Claim(ctx, first, call.ID)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if claimed.DriverID != "drv-1" || claimed.Status != domain.CallAssigned {
		t.Errorf("claimed call = %s/%s, want drv-1/assigned", claimed.DriverID, claimed.Status)
	}
	if claimed.AssignedAt == nil {
		t.Error("AssignedAt not set by claim")
	}

	second := testContext("drv-2", "tenant-1", domain.RoleDriver)
	if _, err := svc.Claim(ctx, second, call.ID); !errors.Is(err, domain.ErrNotClaimable) {
		t.Errorf("second claim: err = %v, want not claimable", err)
	}

	if _, err := svc.Claim(ctx, first, call.ID); !errors.Is(err, domain.ErrNotClaimable) {
		t.Errorf("re-claim by winner: err = %v, want not claimable", err)
	}
}

func TestClaimOpenToAnyTenantMember(t *testing.T) {
	svc, _, _, _ := newTestCallService()
	ctx := context.Background()
	disp := testContext("disp-1", "tenant-1", domain.RoleDispatcher)

	// Claiming is deliberately not role-gated; a dispatcher covering a
	// shift can take a call themselves.
	call, _ := svc.Create(ctx, disp, validInput())
	claimed, err := svc.Claim(ctx, disp, call.ID)
	if err != nil {
		t.Fatalf("dispatcher claim: %v", err)
	}
	if claimed.DriverID != "disp-1" {
		t.Errorf("driver = %s, want disp-1", claimed.DriverID)
	}
}

func TestConcurrentClaimsSingleWinner(t *testing.T) {
	svc, _, _, _ := newTestCallService()
	ctx := context.Background()
	disp := testContext("disp-1", "tenant-1", domain.RoleDispatcher)

	call, _ := svc.Create(ctx, disp, validInput())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tc := testContext(fmt.Sprintf("drv-%d", i+1), "tenant-1", domain.RoleDriver)
			_, errs[i] = svc.Claim(ctx, tc, call.ID)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, domain.ErrNotClaimable):
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}

	got, err := svc.Get(ctx, disp, call.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.CallAssigned || got.DriverID == "" {
		t.Errorf("final call = %s/%q, want assigned with one driver", got.Status, got.DriverID)
	}
}

func TestConcurrentCreatesMintDistinctNumbers(t *testing.T) {
	svc, _, _, _ := newTestCallService()
	ctx := context.Background()
	disp := testContext("disp-1", "tenant-1", domain.RoleDispatcher)

	const n = 16
	var wg sync.WaitGroup
	numbers := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			call, err := svc.Create(ctx, disp, validInput())
			if err != nil {
				t.Errorf("Create: %v", err)
				return
			}
			numbers[i] = call.CallNumber
		}(i)
	}
	wg.Wait()

	seen := map[string]struct{}{}
	for _, num := range numbers {
		if _, dup := seen[num]; dup {
			t.Fatalf("duplicate call number %s", num)
		}
		seen[num] = struct{}{}
	}
}

func TestAssignOverridesCurrentStatus(t *testing.T) {
	svc, _, memberships, _ := newTestCallService()
	ctx := context.Background()
	disp := testContext("disp-1", "tenant-1", domain.RoleDispatcher)

	call, _ := svc.Create(ctx, disp, validInput())
	for _, id := range []string{"drv-1", "drv-2"} {
		memberships.Create(ctx, &domain.Membership{
			UserID: id, TenantID: "tenant-1",
			Roles: []domain.Role{domain.RoleDriver}, Active: true,
		})
	}
	svc.Assign(ctx, disp, call.ID, "drv-1", "")
	svc.UpdateStatus(ctx, disp, call.ID, domain.CallEnRoute, "")

	// Dispatcher override: re-routing forces the call back to assigned
	// from any state, no graph check.
	reassigned, err := svc.Assign(ctx, disp, call.ID, "drv-2", "first truck broke down")
	if err != nil {
		t.Fatalf("reassign en_route call: %v", err)
	}
	if reassigned.Status != domain.CallAssigned || reassigned.DriverID != "drv-2" {
		t.Errorf("reassigned = %s/%q, want assigned/drv-2", reassigned.Status, reassigned.DriverID)
	}
}

func TestCancelFromMidLifecycle(t *testing.T) {
	svc, _, memberships, _ := newTestCallService()
	ctx := context.Background()
	disp := testContext("disp-1", "tenant-1", domain.RoleDispatcher)

	call, _ := svc.Create(ctx, disp, validInput())
	memberships.Create(ctx, &domain.Membership{
		UserID: "drv-1", TenantID: "tenant-1",
		Roles: []domain.Role{domain.RoleDriver}, Active: true,
	})
	svc.Assign(ctx, disp, call.ID, "drv-1", "")
	svc.UpdateStatus(ctx, disp, call.ID, domain.CallEnRoute, "")

	// Cancellation is open to any tenant member, here the driver.
	driver := testContext("drv-1", "tenant-1", domain.RoleDriver)
	cancelled, err := svc.Cancel(ctx, driver, call.ID, "customer left")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != domain.CallCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}

	history, _ := svc.History(ctx, disp, call.ID)
	last := history[len(history)-1]
	if last.Status != domain.CallCancelled || last.Notes != "customer left" {
		t.Errorf("last history entry = %s/%q", last.Status, last.Notes)
	}
}

func TestCrossTenantCallReadsAsNotFound(t *testing.T) {
	svc, _, _, _ := newTestCallService()
	ctx := context.Background()
	disp := testContext("disp-1", "tenant-1", domain.RoleDispatcher)

	call, _ := svc.Create(ctx, disp, validInput())

	intruder := testContext("disp-9", "tenant-2", domain.RoleDispatcher)
	if _, err := svc.Get(ctx, intruder, call.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("cross-tenant get: err = %v, want not found", err)
	}
	if _, err := svc.UpdateStatus(ctx, intruder, call.ID, domain.CallCancelled, ""); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("cross-tenant update: err = %v, want not found", err)
	}
}

func TestAssignRejectsNonDriver(t *testing.T) {
	svc, _, memberships, _ := newTestCallService()
	ctx := context.Background()
	disp := testContext("disp-1", "tenant-1", domain.RoleDispatcher)

	call, _ := svc.Create(ctx, disp, validInput())
	memberships.Create(ctx, &domain.Membership{
		UserID: "disp-2", TenantID: "tenant-1",
		Roles: []domain.Role{domain.RoleDispatcher}, Active: true,
	})

	if _, err := svc.Assign(ctx, disp, call.ID, "disp-2", ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("assign to dispatcher: err = %v, want validation error", err)
	}
}

func TestDashboard(t *testing.T) {
	svc, _, memberships, _ := newTestCallService()
	ctx := context.Background()
	disp := testContext("disp-1", "tenant-1", domain.RoleDispatcher)

	memberships.Create(ctx, &domain.Membership{
		UserID: "drv-1", TenantID: "tenant-1",
		Roles: []domain.Role{domain.RoleDriver}, Active: true, OnShift: true,
	})
	memberships.Create(ctx, &domain.Membership{
		UserID: "drv-2", TenantID: "tenant-1",
		Roles: []domain.Role{domain.RoleDriver}, Active: true,
	})

	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, disp, validInput()); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	call, _ := svc.Create(ctx, disp, validInput())
	svc.Cancel(ctx, disp, call.ID, "")

	stats, err := svc.Dashboard(ctx, disp)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if stats.Total != 4 {
		t.Errorf("total = %d, want 4", stats.Total)
	}
	if stats.ByStatus[domain.CallOpen] != 3 {
		t.Errorf("open = %d, want 3", stats.ByStatus[domain.CallOpen])
	}
	if stats.ByStatus[domain.CallCancelled] != 1 {
		t.Errorf("cancelled = %d, want 1", stats.ByStatus[domain.CallCancelled])
	}
	if stats.Today != 4 {
		t.Errorf("today = %d, want 4", stats.Today)
	}
	if stats.DriversOnShift != 1 {
		t.Errorf("drivers on shift = %d, want 1", stats.DriversOnShift)
	}
}
