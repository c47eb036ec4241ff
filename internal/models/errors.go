package models

import "errors"

// Error kinds shared across services. Callers wrap these with fmt.Errorf and
// %w; handlers map them to HTTP statuses with errors.Is.
var (
	// ErrValidation marks bad input rejected before any state change.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks an unknown product, order or user id.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized marks a missing or invalid credential.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden marks a caller lacking ownership or the required role.
	ErrForbidden = errors.New("forbidden")

	// ErrUpstream marks a collaborator failure (geometry service, payment
	// gateway) that is fatal to the operation.
	ErrUpstream = errors.New("upstream failure")

	// ErrConflict marks a whole-order rejection against an unpublished or
	// unapproved product, or a disallowed status transition.
	ErrConflict = errors.New("conflict")
)
