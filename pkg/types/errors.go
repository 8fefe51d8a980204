package types

import "errors"

// Store operation errors.
var (
	ErrNotFound         = errors.New("entity not found")
	ErrInvalidID        = errors.New("invalid entity ID")
	ErrInvalidData      = errors.New("invalid entity data")
	ErrDuplicate        = errors.New("entity already exists")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrStoreClosed      = errors.New("store is closed")
)

// Entity method errors.
var (
	ErrInvalidName       = errors.New("invalid name")
	ErrInvalidDates      = errors.New("end date must be after start date")
	ErrInvalidState      = errors.New("invalid state value")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrInvalidPriority   = errors.New("priority must be positive")
)
