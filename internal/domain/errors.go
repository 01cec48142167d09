package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the failure kinds every operation can surface.
// Handlers match on these with errors.Is to pick a status code.
var (
	ErrUnauthenticated    = errors.New("not authenticated")
	ErrNoTenantContext    = errors.New("no tenant context resolvable for user")
	ErrNoSession          = errors.New("no active session")
	ErrAccessDenied       = errors.New("access denied")
	ErrNotFound           = errors.New("not found")
	ErrIllegalTransition  = errors.New("illegal status transition")
	ErrNotClaimable       = errors.New("call is not open for claiming")
	ErrLastAdminProtected = errors.New("cannot remove the last admin from the tenant")
	ErrAlreadyMember      = errors.New("user already belongs to this tenant")
	ErrValidation         = errors.New("validation failed")
)

// AccessDeniedError carries the role set the operation declared.
type AccessDeniedError struct {
	RequiredRoles []Role
}

func (e *AccessDeniedError) Error() string {
	names := make([]string, len(e.RequiredRoles))
	for i, r := range e.RequiredRoles {
		names[i] = string(r)
	}
	return fmt.Sprintf("access denied: required roles: %s", strings.Join(names, ", "))
}

func (e *AccessDeniedError) Is(target error) bool { return target == ErrAccessDenied }

// IllegalTransitionError reports a status change not permitted by the call graph.
type IllegalTransitionError struct {
	From CallStatus
	To   CallStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal status transition: %s -> %s", e.From, e.To)
}

func (e *IllegalTransitionError) Is(target error) bool { return target == ErrIllegalTransition }

// ValidationError names the offending field of a malformed request.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s is required", e.Field)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
