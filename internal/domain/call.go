package domain

import (
	"context"
	"time"
)

// CallStatus is one step of the fixed call lifecycle.
type CallStatus string

const (
	CallOpen      CallStatus = "open"
	CallAssigned  CallStatus = "assigned"
	CallEnRoute   CallStatus = "en_route"
	CallOnScene   CallStatus = "on_scene"
	CallHooked    CallStatus = "hooked"
	CallInTransit CallStatus = "in_transit"
	CallCompleted CallStatus = "completed"
	CallCancelled CallStatus = "cancelled"
)

// callTransitions is the legal status graph: a strictly linear happy
// path plus a cancellation escape from every non-terminal state.
var callTransitions = map[CallStatus][]CallStatus{
	CallOpen:      {CallAssigned, CallCancelled},
	CallAssigned:  {CallEnRoute, CallCancelled},
	CallEnRoute:   {CallOnScene, CallCancelled},
	CallOnScene:   {CallHooked, CallCancelled},
	CallHooked:    {CallInTransit, CallCancelled},
	CallInTransit: {CallCompleted, CallCancelled},
	CallCompleted: {},
	CallCancelled: {},
}

// ValidCallStatus reports whether s is a known lifecycle status.
func ValidCallStatus(s CallStatus) bool {
	_, ok := callTransitions[s]
	return ok
}

// CanTransition reports whether from -> to is an edge of the status graph.
func CanTransition(from, to CallStatus) bool {
	for _, next := range callTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status has no outgoing edges.
func (s CallStatus) Terminal() bool {
	return len(callTransitions[s]) == 0
}

// CallPriority orders dispatch urgency.
type CallPriority string

const (
	PriorityNormal    CallPriority = "normal"
	PriorityUrgent    CallPriority = "urgent"
	PriorityEmergency CallPriority = "emergency"
)

// ValidCallPriority reports whether p is a known priority.
func ValidCallPriority(p CallPriority) bool {
	return p == PriorityNormal || p == PriorityUrgent || p == PriorityEmergency
}

// ServiceType classifies what the tow truck is being sent to do.
type ServiceType string

const (
	ServiceBreakdown    ServiceType = "breakdown"
	ServiceAccident     ServiceType = "accident"
	ServiceLockout      ServiceType = "lockout"
	ServiceFuelDelivery ServiceType = "fuel_delivery"
	ServiceTireChange   ServiceType = "tire_change"
	ServiceJumpStart    ServiceType = "jump_start"
	ServiceWinchOut     ServiceType = "winch_out"
	ServiceTransport    ServiceType = "transport"
	ServiceOther        ServiceType = "other"
)

var serviceTypes = map[ServiceType]struct{}{
	ServiceBreakdown: {}, ServiceAccident: {}, ServiceLockout: {},
	ServiceFuelDelivery: {}, ServiceTireChange: {}, ServiceJumpStart: {},
	ServiceWinchOut: {}, ServiceTransport: {}, ServiceOther: {},
}

// ValidServiceType reports whether t is a known service type.
func ValidServiceType(t ServiceType) bool {
	_, ok := serviceTypes[t]
	return ok
}

// CallPaymentStatus tracks billing on a completed call.
type CallPaymentStatus string

const (
	CallPaymentPending  CallPaymentStatus = "pending"
	CallPaymentPaid     CallPaymentStatus = "paid"
	CallPaymentInvoiced CallPaymentStatus = "invoiced"
)

// Call is a tow-service request tracked through the fixed lifecycle.
// TenantID is immutable after creation; Status only moves along edges
// of the transition graph.
type Call struct {
	ID         string       `json:"id"`
	TenantID   string       `json:"tenant_id"`
	CallNumber string       `json:"call_number"`
	Status     CallStatus   `json:"status"`
	Priority   CallPriority `json:"priority"`

	CustomerID  string `json:"customer_id,omitempty"`
	CallerName  string `json:"caller_name"`
	CallerPhone string `json:"caller_phone"`

	PickupAddress  string `json:"pickup_address"`
	PickupNotes    string `json:"pickup_notes,omitempty"`
	DropoffAddress string `json:"dropoff_address,omitempty"`
	DropoffNotes   string `json:"dropoff_notes,omitempty"`

	VehicleMake         string `json:"vehicle_make"`
	VehicleModel        string `json:"vehicle_model"`
	VehicleYear         string `json:"vehicle_year,omitempty"`
	VehicleColor        string `json:"vehicle_color,omitempty"`
	VehicleLicensePlate string `json:"vehicle_license_plate,omitempty"`
	VehicleCondition    string `json:"vehicle_condition,omitempty"`

	ServiceType  ServiceType `json:"service_type"`
	ServiceNotes string      `json:"service_notes,omitempty"`

	DispatcherID string     `json:"dispatcher_id"`
	DriverID     string     `json:"driver_id,omitempty"`
	AssignedAt   *time.Time `json:"assigned_at,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	EstimatedCost float64           `json:"estimated_cost"`
	ActualCost    float64           `json:"actual_cost"`
	PaymentStatus CallPaymentStatus `json:"payment_status"`
}

// CallStatusEntry is one immutable line of a call's append-only audit
// trail. Exactly one entry is appended per status-affecting operation.
type CallStatusEntry struct {
	ID        string     `json:"id"`
	CallID    string     `json:"call_id"`
	Status    CallStatus `json:"status"`
	UpdatedBy string     `json:"updated_by"`
	Notes     string     `json:"notes,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// CallRepository defines data access for calls and their history.
// Create and Update must commit the call write and the history append
// atomically; Claim must re-check status inside the same atomic unit
// that performs the write.
type CallRepository interface {
	Create(ctx context.Context, call *Call, entry *CallStatusEntry) error
	GetByID(ctx context.Context, id string) (*Call, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*Call, error)
	ListByStatus(ctx context.Context, tenantID string, status CallStatus) ([]*Call, error)
	ListByDriver(ctx context.Context, tenantID, driverID string) ([]*Call, error)
	History(ctx context.Context, callID string) ([]*CallStatusEntry, error)
	Update(ctx context.Context, call *Call, entry *CallStatusEntry) error
	Claim(ctx context.Context, callID, driverID string, now time.Time, entry *CallStatusEntry) (bool, error)
}
