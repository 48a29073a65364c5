package gate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/executor"
	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/ledger"
	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/schema"
)

// DefaultTTL is the validity window of a dry-run result. An execute
// arriving later than this must redo the dry run.
const DefaultTTL = 5 * time.Minute

// probeLimit bounds the connectivity probe's list read.
const probeLimit = 1

// Gate mediates every mutation: dry runs produce cached, single-use
// validations; real runs consume them, invoke the executor, and append
// to the audit ledger before returning.
type Gate struct {
	exec   executor.Executor
	store  ValidationStore
	ledger *ledger.Ledger
	pinned map[string]*schema.Resource
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithTTL overrides the validation time-to-live.
func WithTTL(ttl time.Duration) Option {
	return func(g *Gate) { g.ttl = ttl }
}

// WithNow swaps the time source. Tests pin it to cross the TTL window
// without sleeping.
func WithNow(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithValidationStore swaps the validation cache backend, e.g. for a
// SQLiteStore shared between processes.
func WithValidationStore(store ValidationStore) Option {
	return func(g *Gate) { g.store = store }
}

// WithPinnedSchemas supplies locally pinned resource schemas, keyed by
// resource ID. When the remote schema fetch fails, the gate validates
// against the pin instead of skipping the schema phase.
func WithPinnedSchemas(pinned map[string]*schema.Resource) Option {
	return func(g *Gate) { g.pinned = pinned }
}

// New creates a Gate over the given executor and audit ledger.
// The default validation store is process-local memory.
func New(exec executor.Executor, led *ledger.Ledger, opts ...Option) *Gate {
	g := &Gate{
		exec:   exec,
		store:  NewMemoryStore(),
		ledger: led,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Validate performs a dry run: a connectivity probe followed by schema
// validation of the payload. No mutation occurs.
//
// A probe failure returns a failed result immediately WITHOUT caching a
// ValidationRecord: a subsequent execute reports "validation required",
// not "validation failed". Schema-phase outcomes (pass or fail) ARE
// cached, keyed by (operation, resource, record, payload hash).
func (g *Gate) Validate(ctx context.Context, req MutationRequest) (*ValidationResult, error) {
	if err := checkOperation(req.Operation); err != nil {
		return nil, err
	}

	result := &ValidationResult{}

	if _, err := g.exec.ListRecords(ctx, req.ResourceID, probeLimit); err != nil {
		slog.Warn("connectivity probe failed",
			"resource_id", req.ResourceID,
			"error", err,
		)
		result.Checks.Connectivity = CheckFailed
		result.Checks.Schema = CheckSkipped
		result.Errors = append(result.Errors, fmt.Sprintf("connectivity check failed: %v", err))
		return result, nil
	}
	result.Checks.Connectivity = CheckPassed

	g.runSchemaPhase(ctx, req, result)

	result.Passed = result.Checks.Connectivity == CheckPassed &&
		result.Checks.Schema != CheckFailed &&
		len(result.Errors) == 0

	if err := g.cacheResult(ctx, req, result); err != nil {
		return nil, err
	}

	slog.Info("dry run completed",
		"operation", req.Operation,
		"resource_id", req.ResourceID,
		"record_id", req.RecordID,
		"passed", result.Passed,
		"error_count", len(result.Errors),
	)
	return result, nil
}

// runSchemaPhase fetches the resource schema and validates the payload.
// A fetch failure downgrades to a warning (phase "skipped") unless a
// pinned schema covers the resource: connectivity already succeeded, so
// the operation may still be considered valid.
func (g *Gate) runSchemaPhase(ctx context.Context, req MutationRequest, result *ValidationResult) {
	res, err := g.exec.GetSchema(ctx, req.ResourceID)
	if err != nil {
		pin, ok := g.pinned[req.ResourceID]
		if !ok {
			slog.Warn("schema fetch failed, skipping schema validation",
				"resource_id", req.ResourceID,
				"error", err,
			)
			result.Checks.Schema = CheckSkipped
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("schema unavailable for %s, schema validation skipped: %v", req.ResourceID, err))
			return
		}
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("remote schema unavailable for %s, validated against pinned schema", req.ResourceID))
		res = pin
	}

	problems := schema.Validate(res, req.Payload, req.Operation == ledger.OpCreate)
	if len(problems) > 0 {
		result.Checks.Schema = CheckFailed
		result.Errors = append(result.Errors, problems...)
		return
	}
	result.Checks.Schema = CheckPassed
}

// cacheResult upserts the ValidationRecord for this request. Runs on
// every completion of the schema phase, success or failure.
func (g *Gate) cacheResult(ctx context.Context, req MutationRequest, result *ValidationResult) error {
	payloadHash, err := PayloadHash(req.Payload)
	if err != nil {
		return fmt.Errorf("hash payload: %w", err)
	}
	key, err := ValidationKey(req.Operation, req.ResourceID, req.RecordID)
	if err != nil {
		return fmt.Errorf("derive validation key: %w", err)
	}

	rec := ValidationRecord{
		Timestamp:   g.now(),
		PayloadHash: payloadHash,
		Validated:   result.Passed,
		Errors:      result.Errors,
	}
	if err := g.store.Put(ctx, key, rec); err != nil {
		return fmt.Errorf("cache validation record: %w", err)
	}
	return nil
}

// Execute performs the mutation described by req.
//
// With DryRun true it delegates to Validate and nothing mutates. With
// DryRun false it consumes the matching ValidationRecord, invokes the
// executor, and appends an audit entry before returning. A nil DryRun
// is a protocol violation.
func (g *Gate) Execute(ctx context.Context, req MutationRequest) (*MutationResult, error) {
	if req.DryRun == nil {
		return nil, &ProtocolError{
			Code:    ErrCodeDryRunUnspecified,
			Message: "dry_run must be stated explicitly on every mutation call",
		}
	}
	if *req.DryRun {
		vr, err := g.Validate(ctx, req)
		if err != nil {
			return nil, err
		}
		return &MutationResult{Validation: vr}, nil
	}

	if err := checkOperation(req.Operation); err != nil {
		return nil, err
	}
	if err := g.consumeValidation(ctx, req); err != nil {
		return nil, err
	}

	beforeData := g.fetchBeforeData(ctx, req)

	record, recordID, err := g.invoke(ctx, req)
	if err != nil {
		// The mutation never happened remotely; recording it as having
		// happened would be a lie. No audit entry.
		return nil, err
	}

	entryID, err := g.ledger.Append(ledger.EntryInput{
		Operation:  req.Operation,
		ResourceID: req.ResourceID,
		RecordID:   recordID,
		Payload:    req.Payload,
		Result:     record,
		BeforeData: beforeData,
		Reversal:   buildReversal(req, recordID, beforeData),
	})
	if err != nil {
		return nil, fmt.Errorf("mutation executed but audit append failed: %w", err)
	}

	return &MutationResult{Record: record, AuditEntryID: entryID}, nil
}

// consumeValidation looks up, checks, and deletes the ValidationRecord
// for req. Every exit path that found a record removes it: staleness,
// mismatch, and failed validations all force a fresh dry run.
func (g *Gate) consumeValidation(ctx context.Context, req MutationRequest) error {
	payloadHash, err := PayloadHash(req.Payload)
	if err != nil {
		return fmt.Errorf("hash payload: %w", err)
	}
	key, err := ValidationKey(req.Operation, req.ResourceID, req.RecordID)
	if err != nil {
		return fmt.Errorf("derive validation key: %w", err)
	}

	rec, ok, err := g.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read validation record: %w", err)
	}
	if !ok {
		return &ProtocolError{
			Code:    ErrCodeValidationRequired,
			Message: "validation required: run a dry run before executing",
		}
	}

	if g.now().Sub(rec.Timestamp) > g.ttl {
		g.discard(ctx, key)
		return &ProtocolError{
			Code:    ErrCodeValidationExpired,
			Message: fmt.Sprintf("validation expired (older than %s): run a new dry run", g.ttl),
		}
	}
	if rec.PayloadHash != payloadHash {
		g.discard(ctx, key)
		return &ProtocolError{
			Code:    ErrCodePayloadMismatch,
			Message: "data mismatch: data must be identical between dry run and execution",
		}
	}
	if !rec.Validated {
		g.discard(ctx, key)
		return &ProtocolError{
			Code:    ErrCodeValidationFailed,
			Message: "validation failed during dry run",
			Errors:  rec.Errors,
		}
	}

	// Consumed: the record is single-use.
	g.discard(ctx, key)
	return nil
}

// discard deletes a validation record, logging rather than failing:
// every caller is already on an error path or has what it needs.
func (g *Gate) discard(ctx context.Context, key string) {
	if err := g.store.Delete(ctx, key); err != nil {
		slog.Warn("validation record delete failed", "error", err)
	}
}

// fetchBeforeData captures the pre-mutation record for update/delete so
// the reversal can restore it. Best-effort: a fetch failure logs a
// warning and the mutation proceeds without it.
func (g *Gate) fetchBeforeData(ctx context.Context, req MutationRequest) map[string]any {
	if req.Operation == ledger.OpCreate || req.RecordID == "" {
		return nil
	}
	before, err := g.exec.GetRecord(ctx, req.ResourceID, req.RecordID)
	if err != nil {
		slog.Warn("before-data fetch failed, proceeding without reversal state",
			"resource_id", req.ResourceID,
			"record_id", req.RecordID,
			"error", err,
		)
		return nil
	}
	return before
}

// invoke dispatches to the executor and returns the resulting record
// (nil for delete) and the record ID the mutation affected.
func (g *Gate) invoke(ctx context.Context, req MutationRequest) (map[string]any, string, error) {
	switch req.Operation {
	case ledger.OpCreate:
		rec, err := g.exec.CreateRecord(ctx, req.ResourceID, req.Payload)
		if err != nil {
			return nil, "", err
		}
		recordID, _ := rec["id"].(string)
		return rec, recordID, nil

	case ledger.OpUpdate:
		rec, err := g.exec.UpdateRecord(ctx, req.ResourceID, req.RecordID, req.Payload)
		if err != nil {
			return nil, "", err
		}
		return rec, req.RecordID, nil

	case ledger.OpDelete:
		if err := g.exec.DeleteRecord(ctx, req.ResourceID, req.RecordID); err != nil {
			return nil, "", err
		}
		return nil, req.RecordID, nil

	default:
		return nil, "", fmt.Errorf("unknown operation %q", req.Operation)
	}
}

// buildReversal describes the inverse action: create and delete produce
// each other; update's reversal carries the pre-mutation state.
func buildReversal(req MutationRequest, recordID string, beforeData map[string]any) ledger.Reversal {
	switch req.Operation {
	case ledger.OpCreate:
		return ledger.Reversal{
			Operation:  ledger.OpDelete,
			ResourceID: req.ResourceID,
			RecordID:   recordID,
		}
	case ledger.OpUpdate:
		return ledger.Reversal{
			Operation:  ledger.OpUpdate,
			ResourceID: req.ResourceID,
			RecordID:   recordID,
			Payload:    beforeData,
		}
	default: // delete
		return ledger.Reversal{
			Operation:  ledger.OpCreate,
			ResourceID: req.ResourceID,
			Payload:    beforeData,
		}
	}
}

func checkOperation(op ledger.Operation) error {
	switch op {
	case ledger.OpCreate, ledger.OpUpdate, ledger.OpDelete:
		return nil
	default:
		return fmt.Errorf("unknown operation %q: must be create, update, or delete", op)
	}
}
