package gate

import (
	"errors"
	"fmt"
	"strings"
)

// ProtocolError represents a violation of the dry-run-then-execute
// contract, as distinct from validation failures (which are data in a
// ValidationResult).
type ProtocolError struct {
	// Code identifies the violation category.
	Code ProtocolErrorCode

	// Message is a human-readable description.
	Message string

	// Errors carries the stored validation errors for
	// ErrCodeValidationFailed.
	Errors []string
}

// ProtocolErrorCode categorizes protocol violations.
type ProtocolErrorCode string

const (
	// ErrCodeDryRunUnspecified indicates the caller omitted the dry_run
	// flag. The contract demands an explicit statement, not a default.
	ErrCodeDryRunUnspecified ProtocolErrorCode = "DRY_RUN_UNSPECIFIED"

	// ErrCodeValidationRequired indicates execute without a prior
	// matching dry run.
	ErrCodeValidationRequired ProtocolErrorCode = "VALIDATION_REQUIRED"

	// ErrCodeValidationExpired indicates the dry run is older than the TTL.
	ErrCodeValidationExpired ProtocolErrorCode = "VALIDATION_EXPIRED"

	// ErrCodePayloadMismatch indicates the payload changed between dry
	// run and execute.
	ErrCodePayloadMismatch ProtocolErrorCode = "PAYLOAD_MISMATCH"

	// ErrCodeValidationFailed indicates execute against a dry run that
	// did not pass.
	ErrCodeValidationFailed ProtocolErrorCode = "VALIDATION_FAILED"
)

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, strings.Join(e.Errors, "; "))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf extracts the protocol error code from err, or "" if err is not
// a ProtocolError. Uses errors.As to handle wrapped errors.
func CodeOf(err error) ProtocolErrorCode {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsProtocolError reports whether err is (or wraps) a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
