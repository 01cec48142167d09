package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yourorg/towdesk/internal/domain"
)

const callColumns = `id, tenant_id, call_number, status, priority, customer_id,
	caller_name, caller_phone, pickup_address, pickup_notes, dropoff_address, dropoff_notes,
	vehicle_make, vehicle_model, vehicle_year, vehicle_color, vehicle_license_plate, vehicle_condition,
	service_type, service_notes, dispatcher_id, driver_id, assigned_at,
	created_at, updated_at, completed_at, estimated_cost, actual_cost, payment_status`

// PostgresCallRepository implements domain.CallRepository using PostgreSQL.
// Call writes and their history appends share one transaction so the
// audit trail can never drift from the call row.
type PostgresCallRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresCallRepository creates a new call repository
func NewPostgresCallRepository(db *sql.DB, logger *slog.Logger) *PostgresCallRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCallRepository{db: db, logger: logger}
}

// Create inserts a call and its initial history entry atomically
func (r *PostgresCallRepository) Create(ctx context.Context, call *domain.Call, entry *domain.CallStatusEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO calls (` + callColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)
	`
	if _, err := tx.ExecContext(ctx, query, callArgs(call)...); err != nil {
		return fmt.Errorf("failed to create call: %w", err)
	}
	if err := appendHistory(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

// GetByID retrieves a call by ID
func (r *PostgresCallRepository) GetByID(ctx context.Context, id string) (*domain.Call, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE id = $1`, id)
	c, err := scanCall(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("call %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get call: %w", err)
	}
	return c, nil
}

// ListByTenant returns all of a tenant's calls, newest first
func (r *PostgresCallRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.Call, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE tenant_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, tenantID)
}

// ListByStatus returns a tenant's calls in one status, newest first
func (r *PostgresCallRepository) ListByStatus(ctx context.Context, tenantID string, status domain.CallStatus) ([]*domain.Call, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE tenant_id = $1 AND status = $2 ORDER BY created_at DESC`
	return r.list(ctx, query, tenantID, string(status))
}

// ListByDriver returns a tenant's calls assigned to one driver, newest first
func (r *PostgresCallRepository) ListByDriver(ctx context.Context, tenantID, driverID string) ([]*domain.Call, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE tenant_id = $1 AND driver_id = $2 ORDER BY created_at DESC`
	return r.list(ctx, query, tenantID, driverID)
}

// History returns a call's status entries in chronological order
func (r *PostgresCallRepository) History(ctx context.Context, callID string) ([]*domain.CallStatusEntry, error) {
	query := `
		SELECT id, call_id, status, updated_by, notes, ts
		FROM call_status_history
		WHERE call_id = $1
		ORDER BY ts
	`
	rows, err := r.db.QueryContext(ctx, query, callID)
	if err != nil {
		return nil, fmt.Errorf("failed to get call history: %w", err)
	}
	defer rows.Close()

	var out []*domain.CallStatusEntry
	for rows.Next() {
		e := &domain.CallStatusEntry{}
		var status string
		if err := rows.Scan(&e.ID, &e.CallID, &status, &e.UpdatedBy, &e.Notes, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.Status = domain.CallStatus(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Update rewrites a call and appends a history entry atomically. A nil
// entry updates the call row alone, for edits that do not touch status.
func (r *PostgresCallRepository) Update(ctx context.Context, call *domain.Call, entry *domain.CallStatusEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE calls
		SET status = $2, priority = $3, customer_id = $4,
			caller_name = $5, caller_phone = $6,
			pickup_address = $7, pickup_notes = $8, dropoff_address = $9, dropoff_notes = $10,
			vehicle_make = $11, vehicle_model = $12, vehicle_year = $13, vehicle_color = $14,
			vehicle_license_plate = $15, vehicle_condition = $16,
			service_type = $17, service_notes = $18,
			driver_id = $19, assigned_at = $20, updated_at = $21, completed_at = $22,
			estimated_cost = $23, actual_cost = $24, payment_status = $25
		WHERE id = $1
	`
	res, err := tx.ExecContext(ctx, query,
		call.ID, string(call.Status), string(call.Priority), call.CustomerID,
		call.CallerName, call.CallerPhone,
		call.PickupAddress, call.PickupNotes, call.DropoffAddress, call.DropoffNotes,
		call.VehicleMake, call.VehicleModel, call.VehicleYear, call.VehicleColor,
		call.VehicleLicensePlate, call.VehicleCondition,
		string(call.ServiceType), call.ServiceNotes,
		call.DriverID, call.AssignedAt, call.UpdatedAt, call.CompletedAt,
		call.EstimatedCost, call.ActualCost, string(call.PaymentStatus),
	)
	if err != nil {
		return fmt.Errorf("failed to update call: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("call %s: %w", call.ID, domain.ErrNotFound)
	}
	if entry != nil {
		if err := appendHistory(ctx, tx, entry); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Claim assigns an open call to a driver. The status check and the
// assignment run as one conditional UPDATE, so concurrent claims on
// the same call resolve to exactly one winner. Returns false when the
// call was not open anymore.
func (r *PostgresCallRepository) Claim(ctx context.Context, callID, driverID string, now time.Time, entry *domain.CallStatusEntry) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE calls
		SET status = $1, driver_id = $2, assigned_at = $3, updated_at = $3
		WHERE id = $4 AND status = $5
	`
	res, err := tx.ExecContext(ctx, query,
		string(domain.CallAssigned), driverID, now, callID, string(domain.CallOpen),
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim call: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return false, nil
	}
	if err := appendHistory(ctx, tx, entry); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *PostgresCallRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Call, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}
	defer rows.Close()

	var out []*domain.Call
	for rows.Next() {
		c, err := scanCall(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func appendHistory(ctx context.Context, tx *sql.Tx, entry *domain.CallStatusEntry) error {
	query := `
		INSERT INTO call_status_history (id, call_id, status, updated_by, notes, ts)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.ExecContext(ctx, query,
		entry.ID, entry.CallID, string(entry.Status), entry.UpdatedBy, entry.Notes, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append call history: %w", err)
	}
	return nil
}

func callArgs(c *domain.Call) []any {
	return []any{
		c.ID, c.TenantID, c.CallNumber, string(c.Status), string(c.Priority), c.CustomerID,
		c.CallerName, c.CallerPhone, c.PickupAddress, c.PickupNotes, c.DropoffAddress, c.DropoffNotes,
		c.VehicleMake, c.VehicleModel, c.VehicleYear, c.VehicleColor, c.VehicleLicensePlate, c.VehicleCondition,
		string(c.ServiceType), c.ServiceNotes, c.DispatcherID, c.DriverID, c.AssignedAt,
		c.CreatedAt, c.UpdatedAt, c.CompletedAt, c.EstimatedCost, c.ActualCost, string(c.PaymentStatus),
	}
}

func scanCall(scan func(dest ...any) error) (*domain.Call, error) {
	c := &domain.Call{}
	var status, priority, serviceType, paymentStatus string
	err := scan(
		&c.ID, &c.TenantID, &c.CallNumber, &status, &priority, &c.CustomerID,
		&c.CallerName, &c.CallerPhone, &c.PickupAddress, &c.PickupNotes, &c.DropoffAddress, &c.DropoffNotes,
		&c.VehicleMake, &c.VehicleModel, &c.VehicleYear, &c.VehicleColor, &c.VehicleLicensePlate, &c.VehicleCondition,
		&serviceType, &c.ServiceNotes, &c.DispatcherID, &c.DriverID, &c.AssignedAt,
		&c.CreatedAt, &c.UpdatedAt, &c.CompletedAt, &c.EstimatedCost, &c.ActualCost, &paymentStatus,
	)
	if err != nil {
		return nil, err
	}
	c.Status = domain.CallStatus(status)
	c.Priority = domain.CallPriority(priority)
	c.ServiceType = domain.ServiceType(serviceType)
	c.PaymentStatus = domain.CallPaymentStatus(paymentStatus)
	return c, nil
}
