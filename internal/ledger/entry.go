// Package ledger is the tamper-evident audit trail for executed
// mutations. Entries are immutable once written: the log file is only
// ever replaced wholesale, under a cross-process file lock, by a
// complete new version, so readers see either the prior complete log or
// the new complete log and never a partial write.
package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/canon"
)

// Operation identifies a mutation kind.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// DomainEntry is the hash domain for audit entry integrity digests.
// Version suffix enables future algorithm migration.
const DomainEntry = "smartsuite/entry/v1"

// Reversal describes the inverse action capable of undoing a mutation.
// create and delete produce each other; update's reversal carries the
// pre-mutation state.
type Reversal struct {
	Operation  Operation      `json:"operation"`
	ResourceID string         `json:"resource_id"`
	RecordID   string         `json:"record_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// AuditEntry records one executed mutation. Never updated or deleted by
// normal operation.
type AuditEntry struct {
	ID            string         `json:"id"`
	Timestamp     time.Time      `json:"timestamp"`
	Operation     Operation      `json:"operation"`
	ResourceID    string         `json:"resource_id"`
	RecordID      string         `json:"record_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	Result        map[string]any `json:"result,omitempty"`
	BeforeData    map[string]any `json:"before_data,omitempty"`
	Reversal      Reversal       `json:"reversal_instructions"`
	IntegrityHash string         `json:"integrity_hash"`
}

// EntryInput is what a caller supplies to Append; the ledger stamps the
// id, timestamp, and integrity hash itself.
type EntryInput struct {
	Operation  Operation
	ResourceID string
	RecordID   string
	Payload    map[string]any
	Result     map[string]any
	BeforeData map[string]any
	Reversal   Reversal
}

// IntegrityHash computes the digest over an entry's canonicalized
// immutable fields. Verify recomputes this to detect tampering.
func IntegrityHash(e *AuditEntry) (string, error) {
	return canon.Hash(DomainEntry, map[string]any{
		"id":          e.ID,
		"timestamp":   e.Timestamp.UTC().Format(time.RFC3339Nano),
		"operation":   string(e.Operation),
		"resource_id": e.ResourceID,
		"record_id":   e.RecordID,
		"payload":     anyMap(e.Payload),
		"result":      anyMap(e.Result),
		"before_data": anyMap(e.BeforeData),
		"reversal": map[string]any{
			"operation":   string(e.Reversal.Operation),
			"resource_id": e.Reversal.ResourceID,
			"record_id":   e.Reversal.RecordID,
			"payload":     anyMap(e.Reversal.Payload),
		},
	})
}

// anyMap normalizes nil maps to empty objects so presence/absence of an
// optional section cannot produce two spellings of the same entry.
func anyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// IDGenerator produces unique audit entry IDs.
// Implemented by UUIDv7Generator (production) and testutil.FixedIDs (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 entry IDs.
// UUIDv7 embeds a timestamp in the most significant bits, so a sorted
// listing of IDs follows append order.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
