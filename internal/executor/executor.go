// Package executor defines the Remote Mutation Executor consumed by the
// mutation gate, plus an HTTP implementation and a scripted fake.
//
// The gate treats every method as fallible, asynchronous, and
// authoritative: the remote system's answer is the truth about what
// exists and what a mutation did.
package executor

import (
	"context"

	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/schema"
)

// Record is a remote record as decoded JSON.
type Record = map[string]any

// Executor performs the actual remote calls on behalf of the gate.
//
// ListRecords doubles as the gate's connectivity probe: a bounded,
// non-mutating read that exercises reachability, authentication, and
// permission in one round trip.
type Executor interface {
	CreateRecord(ctx context.Context, resourceID string, payload map[string]any) (Record, error)
	UpdateRecord(ctx context.Context, resourceID, recordID string, payload map[string]any) (Record, error)
	DeleteRecord(ctx context.Context, resourceID, recordID string) error
	GetRecord(ctx context.Context, resourceID, recordID string) (Record, error)
	GetSchema(ctx context.Context, resourceID string) (*schema.Resource, error)
	ListRecords(ctx context.Context, resourceID string, limit int) ([]Record, error)
}
