package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAccessDenied is returned when a non-admin caller attempts an admin-only operation.
	ErrAccessDenied = errors.New("access denied")
	// ErrNotFound is returned when a referenced user or admin does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUserNotFound is returned when a user was never registered.
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)
	// ErrAdminNotFound is returned when removing a principal that is not an admin.
	ErrAdminNotFound = fmt.Errorf("admin %w", ErrNotFound)
	// ErrValidationFailed is returned when an activity does not meet the configured thresholds.
	ErrValidationFailed = errors.New("validation failed")
	// ErrTooLittleMinutes reports an activity below the minimum active minutes.
	ErrTooLittleMinutes = fmt.Errorf("%w: too little active minutes", ErrValidationFailed)
	// ErrTooLittleSteps reports an activity below the minimum step count.
	ErrTooLittleSteps = fmt.Errorf("%w: too little steps", ErrValidationFailed)
	// ErrNoAdmins is returned when a ledger is constructed without any administrator.
	ErrNoAdmins = errors.New("at least one admin is required")
)
