package domain

import (
	"context"
	"math"
	"time"
)

// ImpoundStatus tracks a vehicle's state in the storage lot.
type ImpoundStatus string

const (
	ImpoundActive         ImpoundStatus = "active"
	ImpoundPendingRelease ImpoundStatus = "pending_release"
	ImpoundReleased       ImpoundStatus = "released"
	ImpoundAuctioned      ImpoundStatus = "auctioned"
	ImpoundJunked         ImpoundStatus = "junked"
)

// ValidImpoundStatus reports whether s is a known impound status.
func ValidImpoundStatus(s ImpoundStatus) bool {
	switch s {
	case ImpoundActive, ImpoundPendingRelease, ImpoundReleased, ImpoundAuctioned, ImpoundJunked:
		return true
	}
	return false
}

// Terminal reports whether the vehicle has left the lot for good.
func (s ImpoundStatus) Terminal() bool {
	return s == ImpoundReleased || s == ImpoundAuctioned || s == ImpoundJunked
}

// ImpoundReason records why the vehicle was taken in.
type ImpoundReason string

const (
	ReasonPoliceHold      ImpoundReason = "police_hold"
	ReasonAbandoned       ImpoundReason = "abandoned"
	ReasonPrivateProperty ImpoundReason = "private_property"
	ReasonAccident        ImpoundReason = "accident"
	ReasonRepo            ImpoundReason = "repo"
	ReasonStorage         ImpoundReason = "storage"
	ReasonOther           ImpoundReason = "other"
)

// ValidImpoundReason reports whether r is a known impound reason.
func ValidImpoundReason(r ImpoundReason) bool {
	switch r {
	case ReasonPoliceHold, ReasonAbandoned, ReasonPrivateProperty,
		ReasonAccident, ReasonRepo, ReasonStorage, ReasonOther:
		return true
	}
	return false
}

// PaymentStatus is the derived state of an impound's running balance.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

// Impound is a vehicle held in the lot, billed by elapsed days.
type Impound struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`

	VehicleMake         string `json:"vehicle_make"`
	VehicleModel        string `json:"vehicle_model"`
	VehicleYear         string `json:"vehicle_year,omitempty"`
	VehicleColor        string `json:"vehicle_color,omitempty"`
	VehicleVIN          string `json:"vehicle_vin,omitempty"`
	VehicleLicensePlate string `json:"vehicle_license_plate,omitempty"`
	VehicleCondition    string `json:"vehicle_condition,omitempty"`

	OwnerName    string `json:"owner_name,omitempty"`
	OwnerPhone   string `json:"owner_phone,omitempty"`
	OwnerAddress string `json:"owner_address,omitempty"`

	Status      ImpoundStatus `json:"status"`
	Reason      ImpoundReason `json:"reason"`
	ReasonNotes string        `json:"reason_notes,omitempty"`
	LotLocation string        `json:"lot_location,omitempty"`
	CallID      string        `json:"call_id,omitempty"`

	AuthorityName    string     `json:"authority_name,omitempty"`
	AuthorityContact string     `json:"authority_contact,omitempty"`
	CaseNumber       string     `json:"case_number,omitempty"`
	HoldUntil        *time.Time `json:"hold_until,omitempty"`

	ImpoundedAt time.Time  `json:"impounded_at"`
	ReleasedAt  *time.Time `json:"released_at,omitempty"`

	DailyRate     float64       `json:"daily_rate"`
	TowFee        float64       `json:"tow_fee"`
	AdminFee      float64       `json:"admin_fee"`
	TotalPaid     float64       `json:"total_paid"`
	PaymentStatus PaymentStatus `json:"payment_status"`

	CreatedBy  string `json:"created_by"`
	ReleasedBy string `json:"released_by,omitempty"`

	Notes        string `json:"notes,omitempty"`
	ReleaseNotes string `json:"release_notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AmountOwed computes the running balance as of now: elapsed days
// (rounded up) times the daily rate, plus fees. Never cached; the
// value is time-dependent.
func (i *Impound) AmountOwed(now time.Time) float64 {
	days := math.Ceil(now.Sub(i.ImpoundedAt).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return days*i.DailyRate + i.TowFee + i.AdminFee
}

// ImpoundRepository defines data access for impounds
type ImpoundRepository interface {
	Create(ctx context.Context, impound *Impound) error
	GetByID(ctx context.Context, id string) (*Impound, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*Impound, error)
	Update(ctx context.Context, impound *Impound) error
}
