package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yourorg/towdesk/internal/domain"
)

const impoundColumns = `id, tenant_id, vehicle_make, vehicle_model, vehicle_year, vehicle_color,
	vehicle_vin, vehicle_license_plate, vehicle_condition,
	owner_name, owner_phone, owner_address,
	status, reason, reason_notes, lot_location, call_id,
	authority_name, authority_contact, case_number, hold_until,
	impounded_at, released_at, daily_rate, tow_fee, admin_fee, total_paid, payment_status,
	created_by, released_by, notes, release_notes, created_at, updated_at`

// PostgresImpoundRepository implements domain.ImpoundRepository using PostgreSQL
type PostgresImpoundRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresImpoundRepository creates a new impound repository
func NewPostgresImpoundRepository(db *sql.DB, logger *slog.Logger) *PostgresImpoundRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresImpoundRepository{db: db, logger: logger}
}

// Create inserts a new impound record
func (r *PostgresImpoundRepository) Create(ctx context.Context, impound *domain.Impound) error {
	query := `
		INSERT INTO impounds (` + impoundColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34)
	`
	_, err := r.db.ExecContext(ctx, query,
		impound.ID, impound.TenantID,
		impound.VehicleMake, impound.VehicleModel, impound.VehicleYear, impound.VehicleColor,
		impound.VehicleVIN, impound.VehicleLicensePlate, impound.VehicleCondition,
		impound.OwnerName, impound.OwnerPhone, impound.OwnerAddress,
		string(impound.Status), string(impound.Reason), impound.ReasonNotes,
		impound.LotLocation, impound.CallID,
		impound.AuthorityName, impound.AuthorityContact, impound.CaseNumber, impound.HoldUntil,
		impound.ImpoundedAt, impound.ReleasedAt,
		impound.DailyRate, impound.TowFee, impound.AdminFee, impound.TotalPaid,
		string(impound.PaymentStatus),
		impound.CreatedBy, impound.ReleasedBy, impound.Notes, impound.ReleaseNotes,
		impound.CreatedAt, impound.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create impound: %w", err)
	}
	return nil
}

// GetByID retrieves an impound record by ID
func (r *PostgresImpoundRepository) GetByID(ctx context.Context, id string) (*domain.Impound, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+impoundColumns+` FROM impounds WHERE id = $1`, id)
	imp, err := scanImpound(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("impound %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get impound: %w", err)
	}
	return imp, nil
}

// ListByTenant returns all of a tenant's impounds, newest intake first
func (r *PostgresImpoundRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.Impound, error) {
	query := `SELECT ` + impoundColumns + ` FROM impounds WHERE tenant_id = $1 ORDER BY impounded_at DESC`
	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list impounds: %w", err)
	}
	defer rows.Close()

	var out []*domain.Impound
	for rows.Next() {
		imp, err := scanImpound(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan impound: %w", err)
		}
		out = append(out, imp)
	}
	return out, rows.Err()
}

// Update updates an existing impound record
func (r *PostgresImpoundRepository) Update(ctx context.Context, impound *domain.Impound) error {
	query := `
		UPDATE impounds
		SET status = $1, reason = $2, reason_notes = $3, lot_location = $4,
			owner_name = $5, owner_phone = $6, owner_address = $7,
			authority_name = $8, authority_contact = $9, case_number = $10, hold_until = $11,
			released_at = $12, daily_rate = $13, tow_fee = $14, admin_fee = $15,
			total_paid = $16, payment_status = $17, released_by = $18,
			notes = $19, release_notes = $20, updated_at = $21
		WHERE id = $22
	`
	res, err := r.db.ExecContext(ctx, query,
		string(impound.Status), string(impound.Reason), impound.ReasonNotes, impound.LotLocation,
		impound.OwnerName, impound.OwnerPhone, impound.OwnerAddress,
		impound.AuthorityName, impound.AuthorityContact, impound.CaseNumber, impound.HoldUntil,
		impound.ReleasedAt, impound.DailyRate, impound.TowFee, impound.AdminFee,
		impound.TotalPaid, string(impound.PaymentStatus), impound.ReleasedBy,
		impound.Notes, impound.ReleaseNotes, impound.UpdatedAt,
		impound.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update impound: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("impound %s: %w", impound.ID, domain.ErrNotFound)
	}
	return nil
}

func scanImpound(scan func(dest ...any) error) (*domain.Impound, error) {
	imp := &domain.Impound{}
	var status, reason, paymentStatus string
	err := scan(
		&imp.ID, &imp.TenantID,
		&imp.VehicleMake, &imp.VehicleModel, &imp.VehicleYear, &imp.VehicleColor,
		&imp.VehicleVIN, &imp.VehicleLicensePlate, &imp.VehicleCondition,
		&imp.OwnerName, &imp.OwnerPhone, &imp.OwnerAddress,
		&status, &reason, &imp.ReasonNotes, &imp.LotLocation, &imp.CallID,
		&imp.AuthorityName, &imp.AuthorityContact, &imp.CaseNumber, &imp.HoldUntil,
		&imp.ImpoundedAt, &imp.ReleasedAt,
		&imp.DailyRate, &imp.TowFee, &imp.AdminFee, &imp.TotalPaid, &paymentStatus,
		&imp.CreatedBy, &imp.ReleasedBy, &imp.Notes, &imp.ReleaseNotes,
		&imp.CreatedAt, &imp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	imp.Status = domain.ImpoundStatus(status)
	imp.Reason = domain.ImpoundReason(reason)
	imp.PaymentStatus = domain.PaymentStatus(paymentStatus)
	return imp, nil
}
