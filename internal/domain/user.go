package domain

import (
	"context"
	"time"
)

// User is an authenticated principal, independent of any tenant.
// Tenant capabilities live on Membership rows, never here.
type User struct {
	ID           string
	Email        string // unique
	Name         string
	Phone        string
	PasswordHash string // bcrypt hash, never returned in API responses
	CreatedAt    time.Time
	UpdatedAt    time.Time
	IsActive     bool
}

// UserRepository defines data access for users
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, user *User) error
}
