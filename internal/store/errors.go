package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotConfigured = errors.New("data store not configured")

	ErrQRNotFound           = errors.New("qr code not found")
	ErrCompanyNotFound      = errors.New("company not found")
	ErrBranchNotFound       = errors.New("branch not found")
	ErrPetNotFound          = errors.New("pet not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrRoleNotFound         = errors.New("role not found")
	ErrProfileNotFound      = errors.New("profile not found")
	ErrScanNotFound         = errors.New("scan not found")

	ErrAccessDenied       = errors.New("access denied")
	ErrInvalidState       = errors.New("invalid qr state")
	ErrAlreadyAssigned    = errors.New("qr code already assigned")
	ErrAlreadyActivated   = errors.New("qr code already activated for another pet")
	ErrPetLinked          = errors.New("pet already linked to a qr code")
	ErrBranchMismatch     = errors.New("branch does not belong to company")
	ErrCompanyInUse       = errors.New("company has active branches or assigned qr codes")
	ErrBranchInUse        = errors.New("branch has assigned qr codes")
	ErrSubscriptionExists = errors.New("qr code already has an active subscription")
	ErrSubscriptionState  = errors.New("invalid subscription state")
	ErrCodeCollision      = errors.New("could not allocate unique qr codes")
	ErrRoleExists         = errors.New("role already exists")
)

// ValidationError rejects malformed input before any mutation is attempted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
