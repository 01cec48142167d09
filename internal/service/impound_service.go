package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/towdesk/internal/domain"
	"github.com/yourorg/towdesk/internal/observability/metrics"
	"github.com/yourorg/towdesk/internal/security"
	"github.com/yourorg/towdesk/internal/security/audit"
)

// ImpoundService manages the vehicle storage lot. Balances are never
// stored; they are recomputed from elapsed time on every read.
type ImpoundService struct {
	impoundRepo domain.ImpoundRepository
	guard       *security.Guard
	audit       *audit.Logger
	logger      *slog.Logger
}

// NewImpoundService creates a new impound service
func NewImpoundService(
	impoundRepo domain.ImpoundRepository,
	guard *security.Guard,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *ImpoundService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImpoundService{
		impoundRepo: impoundRepo,
		guard:       guard,
		audit:       auditLog,
		logger:      logger,
	}
}

// ImpoundInput carries the fields set at vehicle intake.
type ImpoundInput struct {
	VehicleMake         string `json:"vehicle_make"`
	VehicleModel        string `json:"vehicle_model"`
	VehicleYear         string `json:"vehicle_year"`
	VehicleColor        string `json:"vehicle_color"`
	VehicleVIN          string `json:"vehicle_vin"`
	VehicleLicensePlate string `json:"vehicle_license_plate"`
	VehicleCondition    string `json:"vehicle_condition"`

	OwnerName    string `json:"owner_name"`
	OwnerPhone   string `json:"owner_phone"`
	OwnerAddress string `json:"owner_address"`

	Reason      domain.ImpoundReason `json:"reason"`
	ReasonNotes string               `json:"reason_notes"`
	LotLocation string               `json:"lot_location"`
	CallID      string               `json:"call_id"`

	AuthorityName    string     `json:"authority_name"`
	AuthorityContact string     `json:"authority_contact"`
	CaseNumber       string     `json:"case_number"`
	HoldUntil        *time.Time `json:"hold_until"`

	ImpoundedAt *time.Time `json:"impounded_at"`
	DailyRate   float64    `json:"daily_rate"`
	TowFee      float64    `json:"tow_fee"`
	AdminFee    float64    `json:"admin_fee"`
	Notes       string     `json:"notes"`
}

// ImpoundView is an impound plus its time-derived balance.
type ImpoundView struct {
	*domain.Impound
	AmountOwed float64 `json:"amount_owed"`
	Balance    float64 `json:"balance"`
}

func (s *ImpoundService) view(imp *domain.Impound, now time.Time) *ImpoundView {
	owed := imp.AmountOwed(now)
	return &ImpoundView{Impound: imp, AmountOwed: owed, Balance: owed - imp.TotalPaid}
}

// Create books a vehicle into the lot. Dispatcher or admin. New
// records start active and unpaid.
func (s *ImpoundService) Create(ctx context.Context, tc *security.TenantContext, input ImpoundInput) (*ImpoundView, error) {
	if err := s.guard.RequireAnyRole(tc, domain.RoleDispatcher, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if input.VehicleMake == "" {
		return nil, &domain.ValidationError{Field: "vehicle_make"}
	}
	if input.VehicleModel == "" {
		return nil, &domain.ValidationError{Field: "vehicle_model"}
	}
	if !domain.ValidImpoundReason(input.Reason) {
		return nil, fmt.Errorf("unknown impound reason %q: %w", input.Reason, domain.ErrValidation)
	}
	if input.DailyRate < 0 || input.TowFee < 0 || input.AdminFee < 0 {
		return nil, fmt.Errorf("fees must not be negative: %w", domain.ErrValidation)
	}

	now := time.Now()
	impoundedAt := now
	if input.ImpoundedAt != nil {
		impoundedAt = *input.ImpoundedAt
	}

	imp := &domain.Impound{
		ID:       uuid.NewString(),
		TenantID: tc.TenantID,

		VehicleMake:         input.VehicleMake,
		VehicleModel:        input.VehicleModel,
		VehicleYear:         input.VehicleYear,
		VehicleColor:        input.VehicleColor,
		VehicleVIN:          input.VehicleVIN,
		VehicleLicensePlate: input.VehicleLicensePlate,
		VehicleCondition:    input.VehicleCondition,

		OwnerName:    input.OwnerName,
		OwnerPhone:   input.OwnerPhone,
		OwnerAddress: input.OwnerAddress,

		Status:      domain.ImpoundActive,
		Reason:      input.Reason,
		ReasonNotes: input.ReasonNotes,
		LotLocation: input.LotLocation,
		CallID:      input.CallID,

		AuthorityName:    input.AuthorityName,
		AuthorityContact: input.AuthorityContact,
		CaseNumber:       input.CaseNumber,
		HoldUntil:        input.HoldUntil,

		ImpoundedAt:   impoundedAt,
		DailyRate:     input.DailyRate,
		TowFee:        input.TowFee,
		AdminFee:      input.AdminFee,
		PaymentStatus: domain.PaymentUnpaid,

		CreatedBy: tc.UserID,
		Notes:     input.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.impoundRepo.Create(ctx, imp); err != nil {
		return nil, fmt.Errorf("failed to create impound: %w", err)
	}

	s.logger.Info("vehicle impounded",
		slog.String("impound_id", imp.ID),
		slog.String("tenant_id", tc.TenantID),
		slog.String("reason", string(imp.Reason)),
	)
	return s.view(imp, now), nil
}

// Get returns one impound with its current balance.
func (s *ImpoundService) Get(ctx context.Context, tc *security.TenantContext, id string) (*ImpoundView, error) {
	imp, err := s.getTenantImpound(ctx, tc, id)
	if err != nil {
		return nil, err
	}
	return s.view(imp, time.Now()), nil
}

// List returns the tenant's impounds with balances, newest intake
// first.
func (s *ImpoundService) List(ctx context.Context, tc *security.TenantContext) ([]*ImpoundView, error) {
	imps, err := s.impoundRepo.ListByTenant(ctx, tc.TenantID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	out := make([]*ImpoundView, 0, len(imps))
	for _, imp := range imps {
		out = append(out, s.view(imp, now))
	}
	return out, nil
}

// UpdateStatus moves the vehicle through the lot lifecycle. Dispatcher
// or admin. Moving into a terminal disposition stamps who released the
// vehicle and when; a vehicle already out of the lot stays out.
func (s *ImpoundService) UpdateStatus(ctx context.Context, tc *security.TenantContext, id string, status domain.ImpoundStatus, releaseNotes string) (*ImpoundView, error) {
	if err := s.guard.RequireAnyRole(tc, domain.RoleDispatcher, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if !domain.ValidImpoundStatus(status) {
		return nil, fmt.Errorf("unknown impound status %q: %w", status, domain.ErrValidation)
	}

	imp, err := s.getTenantImpound(ctx, tc, id)
	if err != nil {
		return nil, err
	}
	if imp.Status.Terminal() {
		return nil, fmt.Errorf("vehicle already left the lot: %w", domain.ErrIllegalTransition)
	}

	now := time.Now()
	imp.Status = status
	imp.UpdatedAt = now
	if status.Terminal() {
		imp.ReleasedAt = &now
		imp.ReleasedBy = tc.UserID
		imp.ReleaseNotes = releaseNotes
		s.audit.LogRelease(ctx, tc.TenantID, tc.UserID, imp.ID, string(status))
	}

	if err := s.impoundRepo.Update(ctx, imp); err != nil {
		return nil, err
	}
	return s.view(imp, now), nil
}

// RecordPayment applies a payment to the running balance and rolls the
// payment status forward. Dispatcher or admin.
func (s *ImpoundService) RecordPayment(ctx context.Context, tc *security.TenantContext, id string, amount float64) (*ImpoundView, error) {
	if err := s.guard.RequireAnyRole(tc, domain.RoleDispatcher, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, fmt.Errorf("payment amount must be positive: %w", domain.ErrValidation)
	}

	imp, err := s.getTenantImpound(ctx, tc, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	imp.TotalPaid += amount
	switch {
	case imp.TotalPaid >= imp.AmountOwed(now):
		imp.PaymentStatus = domain.PaymentPaid
	default:
		imp.PaymentStatus = domain.PaymentPartial
	}
	imp.UpdatedAt = now

	if err := s.impoundRepo.Update(ctx, imp); err != nil {
		return nil, err
	}
	metrics.ObserveImpoundPayment(string(imp.PaymentStatus))

	s.logger.Info("impound payment recorded",
		slog.String("impound_id", imp.ID),
		slog.Float64("amount", amount),
		slog.String("payment_status", string(imp.PaymentStatus)),
	)
	return s.view(imp, now), nil
}

// LotStats summarizes the lot for the dashboard.
type LotStats struct {
	Total             int                          `json:"total"`
	ByStatus          map[domain.ImpoundStatus]int `json:"by_status"`
	ReleasedThisMonth int                          `json:"released_this_month"`
	Outstanding       float64                      `json:"outstanding"`
}

// Stats computes lot-level counts, this month's release tally, and the
// outstanding balance across active vehicles. Vehicles pending release
// have settled up, so only active ones count toward the balance.
func (s *ImpoundService) Stats(ctx context.Context, tc *security.TenantContext) (*LotStats, error) {
	imps, err := s.impoundRepo.ListByTenant(ctx, tc.TenantID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	stats := &LotStats{ByStatus: map[domain.ImpoundStatus]int{}}
	for _, imp := range imps {
		stats.Total++
		stats.ByStatus[imp.Status]++
		if imp.Status == domain.ImpoundReleased && imp.ReleasedAt != nil && !imp.ReleasedAt.Before(monthStart) {
			stats.ReleasedThisMonth++
		}
		if imp.Status == domain.ImpoundActive {
			if balance := imp.AmountOwed(now) - imp.TotalPaid; balance > 0 {
				stats.Outstanding += balance
			}
		}
	}
	return stats, nil
}

func (s *ImpoundService) getTenantImpound(ctx context.Context, tc *security.TenantContext, id string) (*domain.Impound, error) {
	imp, err := s.impoundRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if imp.TenantID != tc.TenantID {
		return nil, fmt.Errorf("impound %s: %w", id, domain.ErrNotFound)
	}
	return imp, nil
}
