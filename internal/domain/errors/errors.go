package errors

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyExists    = errors.New("already exists")
	ErrNotFound         = errors.New("not found")
	ErrConditionFailed  = errors.New("condition failed")
	ErrValidation       = errors.New("validation failed")
	ErrRiskRejected     = errors.New("rejected by risk check")
	ErrDuplicateRequest = errors.New("duplicate request in progress")
)

// ValidationError names the offending request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// RiskRejectionError carries the reason reported by the risk check.
type RiskRejectionError struct {
	Reason string
}

func (e *RiskRejectionError) Error() string {
	return "order rejected: " + e.Reason
}

func (e *RiskRejectionError) Unwrap() error { return ErrRiskRejected }
