package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements bootstraps the tables and the index set the query
// paths rely on. Statements are idempotent so startup can run them
// unconditionally.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tenants (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		timezone TEXT NOT NULL,
		billing_plan TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_by UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS memberships (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		tenant_id UUID NOT NULL,
		roles TEXT[] NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		on_shift BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (user_id, tenant_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memberships_user ON memberships (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_memberships_tenant_active ON memberships (tenant_id, active)`,
	`CREATE TABLE IF NOT EXISTS invites (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL,
		tenant_id UUID NOT NULL,
		roles TEXT[] NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		accepted BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invites_email ON invites (email, accepted, expires_at)`,
	`CREATE TABLE IF NOT EXISTS calls (
		id UUID PRIMARY KEY,
		tenant_id UUID NOT NULL,
		call_number TEXT NOT NULL,
		status TEXT NOT NULL,
		priority TEXT NOT NULL,
		customer_id TEXT NOT NULL DEFAULT '',
		caller_name TEXT NOT NULL,
		caller_phone TEXT NOT NULL,
		pickup_address TEXT NOT NULL,
		pickup_notes TEXT NOT NULL DEFAULT '',
		dropoff_address TEXT NOT NULL DEFAULT '',
		dropoff_notes TEXT NOT NULL DEFAULT '',
		vehicle_make TEXT NOT NULL,
		vehicle_model TEXT NOT NULL,
		vehicle_year TEXT NOT NULL DEFAULT '',
		vehicle_color TEXT NOT NULL DEFAULT '',
		vehicle_license_plate TEXT NOT NULL DEFAULT '',
		vehicle_condition TEXT NOT NULL DEFAULT '',
		service_type TEXT NOT NULL,
		service_notes TEXT NOT NULL DEFAULT '',
		dispatcher_id UUID NOT NULL,
		driver_id TEXT NOT NULL DEFAULT '',
		assigned_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		estimated_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
		actual_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
		payment_status TEXT NOT NULL DEFAULT '',
		UNIQUE (tenant_id, call_number)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_calls_tenant ON calls (tenant_id)`,
	`CREATE INDEX IF NOT EXISTS idx_calls_tenant_status ON calls (tenant_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_calls_tenant_driver ON calls (tenant_id, driver_id)`,
	`CREATE TABLE IF NOT EXISTS call_status_history (
		id UUID PRIMARY KEY,
		call_id UUID NOT NULL,
		status TEXT NOT NULL,
		updated_by UUID NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		ts TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_call_history_call ON call_status_history (call_id, ts)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id UUID PRIMARY KEY,
		tenant_id UUID NOT NULL,
		name TEXT NOT NULL,
		phone TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_customers_tenant_phone ON customers (tenant_id, phone)`,
	`CREATE TABLE IF NOT EXISTS impounds (
		id UUID PRIMARY KEY,
		tenant_id UUID NOT NULL,
		vehicle_make TEXT NOT NULL,
		vehicle_model TEXT NOT NULL,
		vehicle_year TEXT NOT NULL DEFAULT '',
		vehicle_color TEXT NOT NULL DEFAULT '',
		vehicle_vin TEXT NOT NULL DEFAULT '',
		vehicle_license_plate TEXT NOT NULL DEFAULT '',
		vehicle_condition TEXT NOT NULL DEFAULT '',
		owner_name TEXT NOT NULL DEFAULT '',
		owner_phone TEXT NOT NULL DEFAULT '',
		owner_address TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		reason TEXT NOT NULL,
		reason_notes TEXT NOT NULL DEFAULT '',
		lot_location TEXT NOT NULL DEFAULT '',
		call_id TEXT NOT NULL DEFAULT '',
		authority_name TEXT NOT NULL DEFAULT '',
		authority_contact TEXT NOT NULL DEFAULT '',
		case_number TEXT NOT NULL DEFAULT '',
		hold_until TIMESTAMPTZ,
		impounded_at TIMESTAMPTZ NOT NULL,
		released_at TIMESTAMPTZ,
		daily_rate DOUBLE PRECISION NOT NULL,
		tow_fee DOUBLE PRECISION NOT NULL DEFAULT 0,
		admin_fee DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_paid DOUBLE PRECISION NOT NULL DEFAULT 0,
		payment_status TEXT NOT NULL,
		created_by UUID NOT NULL,
		released_by TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		release_notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_impounds_tenant ON impounds (tenant_id)`,
	`CREATE INDEX IF NOT EXISTS idx_impounds_tenant_status ON impounds (tenant_id, status)`,
}

// EnsureSchema creates the tables and indexes if they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
