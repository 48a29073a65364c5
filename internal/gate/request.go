// Package gate is the safety gate preceding every mutation.
//
// A caller must obtain a time-boxed, data-bound validation (a dry run)
// before a mutation is permitted. Executing consumes that validation:
// a second execute against the same key without a new dry run fails.
// Every mutation that actually occurred is appended to the audit ledger
// before the result is returned.
package gate

import (
	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/canon"
	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/ledger"
)

// Hash domains for gate digests. Version suffix enables future
// algorithm migration.
const (
	DomainPayload       = "smartsuite/payload/v1"
	DomainValidationKey = "smartsuite/validation/v1"
)

// MutationRequest identifies one candidate mutation.
//
// DryRun is a pointer because the caller must state it explicitly:
// an absent flag is a protocol violation, not a default.
type MutationRequest struct {
	Operation  ledger.Operation `json:"operation" yaml:"operation"`
	ResourceID string           `json:"resource_id" yaml:"resource_id"`
	RecordID   string           `json:"record_id,omitempty" yaml:"record_id,omitempty"`
	Payload    map[string]any   `json:"payload,omitempty" yaml:"payload,omitempty"`
	DryRun     *bool            `json:"dry_run" yaml:"dry_run"`
}

// CheckStatus is the outcome of one validation phase.
type CheckStatus string

const (
	CheckPassed  CheckStatus = "passed"
	CheckFailed  CheckStatus = "failed"
	CheckSkipped CheckStatus = "skipped"
)

// Checks holds the per-phase outcomes of a dry run.
type Checks struct {
	Connectivity CheckStatus `json:"connectivity"`
	Schema       CheckStatus `json:"schema"`
}

// ValidationResult is what a dry run returns. Failures are data for the
// caller to present, not errors.
type ValidationResult struct {
	Passed   bool     `json:"passed"`
	Checks   Checks   `json:"checks"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// MutationResult is what Execute returns: the validation report for a
// dry run, or the remote record plus audit entry ID for a real run.
type MutationResult struct {
	Validation   *ValidationResult `json:"validation,omitempty"`
	Record       map[string]any    `json:"record,omitempty"`
	AuditEntryID string            `json:"audit_entry_id,omitempty"`
}

// PayloadHash computes the canonical digest of a mutation payload.
// A nil payload hashes identically to an empty object, so "no payload"
// cannot masquerade as a data change between dry run and execute.
func PayloadHash(payload map[string]any) (string, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	return canon.Hash(DomainPayload, payload)
}

// ValidationKey derives the deterministic cache key binding a dry run
// to one mutation target. A missing record ID normalizes to "new" so
// create requests key consistently.
//
// The payload hash is deliberately NOT part of the key: it lives in the
// stored ValidationRecord instead, so an execute whose payload drifted
// since the dry run finds the record and fails with a data-mismatch
// error rather than a misleading "validation required".
func ValidationKey(op ledger.Operation, resourceID, recordID string) (string, error) {
	if recordID == "" {
		recordID = "new"
	}
	return canon.Hash(DomainValidationKey, map[string]any{
		"operation":   string(op),
		"resource_id": resourceID,
		"record_id":   recordID,
	})
}
