package domain

import "errors"

// Lookup errors
var (
	ErrNotFound = errors.New("not found")
)

// Business rule errors. Raised before any write happens.
var (
	ErrInvalidState       = errors.New("invalid state for operation")
	ErrOwnershipViolation = errors.New("ownership violation")
	ErrDuplicateEntity    = errors.New("entity already exists")
	ErrValidation         = errors.New("validation failed")
)

// Infrastructure errors
var (
	// ErrNotificationDelivery is logged at dispatch and never returned to callers.
	ErrNotificationDelivery = errors.New("notification delivery failed")
	// ErrPersistence means the write outcome failed or is unknown; re-read state before retrying.
	ErrPersistence = errors.New("persistence failure")
)
