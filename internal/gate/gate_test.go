package gate

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/executor"
	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/ledger"
	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/schema"
	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/testutil"
)

func boolPtr(b bool) *bool { return &b }

type fixture struct {
	gate  *Gate
	exec  *executor.Fake
	store *MemoryStore
	led   *ledger.Ledger
	clock *testutil.Clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	exec := executor.NewFake()
	exec.Schemas["app-tasks"] = &schema.Resource{
		ID:   "app-tasks",
		Name: "Tasks",
		Fields: []schema.Field{
			{Slug: "title", Label: "Title", Type: "textfield", Required: true},
			{Slug: "status", Label: "Status", Type: "statusfield"},
			{Slug: "priority", Label: "Priority", Type: "numberfield"},
		},
	}
	exec.Seed("app-tasks", "r1", executor.Record{"title": "first", "status": "open"})

	clock := testutil.NewClock(time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC))
	store := NewMemoryStore()
	led := ledger.New(filepath.Join(t.TempDir(), "audit.json"), ledger.WithNow(clock.Now))

	g := New(exec, led,
		WithValidationStore(store),
		WithNow(clock.Now),
	)
	return &fixture{gate: g, exec: exec, store: store, led: led, clock: clock}
}

func updateReq(dryRun bool) MutationRequest {
	return MutationRequest{
		Operation:  ledger.OpUpdate,
		ResourceID: "app-tasks",
		RecordID:   "r1",
		Payload:    map[string]any{"status": "done"},
		DryRun:     boolPtr(dryRun),
	}
}

// TestValidate_Passes tests the happy-path dry run: both phases pass and
// a validated record is cached.
func TestValidate_Passes(t *testing.T) {
	f := newFixture(t)

	result, err := f.gate.Validate(context.Background(), updateReq(true))
	require.NoError(t, err)

	assert.True(t, result.Passed)
	assert.Equal(t, CheckPassed, result.Checks.Connectivity)
	assert.Equal(t, CheckPassed, result.Checks.Schema)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, f.store.Len())
}

// TestValidate_ConnectivityFailure tests that a failed probe returns a
// failed result immediately, skips the schema phase, and caches nothing.
func TestValidate_ConnectivityFailure(t *testing.T) {
	f := newFixture(t)
	f.exec.FailList = errors.New("401 unauthorized")

	result, err := f.gate.Validate(context.Background(), updateReq(true))
	require.NoError(t, err)

	assert.False(t, result.Passed)
	assert.Equal(t, CheckFailed, result.Checks.Connectivity)
	assert.Equal(t, CheckSkipped, result.Checks.Schema)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "connectivity check failed")

	// No ValidationRecord and no schema fetch.
	assert.Equal(t, 0, f.store.Len())
	assert.NotContains(t, f.exec.CallNames(), "GetSchema:app-tasks")
}

// TestValidate_SchemaErrors tests that schema problems come back as data
// and are cached as a failed validation.
func TestValidate_SchemaErrors(t *testing.T) {
	f := newFixture(t)
	req := updateReq(true)
	req.Payload = map[string]any{"colour": "red", "priority": "high"}

	result, err := f.gate.Validate(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, result.Passed)
	assert.Equal(t, CheckFailed, result.Checks.Schema)
	assert.Len(t, result.Errors, 2)
	assert.Equal(t, 1, f.store.Len())
}

// TestValidate_SchemaFetchFailureDowngrades tests that a schema fetch
// failure is a warning, not a hard failure.
func TestValidate_SchemaFetchFailureDowngrades(t *testing.T) {
	f := newFixture(t)
	f.exec.FailSchema = errors.New("503 service unavailable")

	result, err := f.gate.Validate(context.Background(), updateReq(true))
	require.NoError(t, err)

	assert.True(t, result.Passed)
	assert.Equal(t, CheckSkipped, result.Checks.Schema)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "schema validation skipped")
	assert.Equal(t, 1, f.store.Len())
}

// TestValidate_PinnedSchemaFallback tests that a pinned schema replaces
// the skip when the remote fetch fails.
func TestValidate_PinnedSchemaFallback(t *testing.T) {
	f := newFixture(t)
	f.exec.FailSchema = errors.New("503 service unavailable")

	pinned := map[string]*schema.Resource{
		"app-tasks": {
			ID:     "app-tasks",
			Name:   "Tasks",
			Fields: []schema.Field{{Slug: "title", Type: "textfield"}},
		},
	}
	g := New(f.exec, f.led, WithValidationStore(f.store), WithNow(f.clock.Now), WithPinnedSchemas(pinned))

	req := updateReq(true)
	req.Payload = map[string]any{"status": "done"} // not in the pinned schema
	result, err := g.Validate(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, result.Passed)
	assert.Equal(t, CheckFailed, result.Checks.Schema)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `unknown field "status"`)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "pinned schema")
}

// TestValidate_UnknownOperation tests operation vocabulary enforcement.
func TestValidate_UnknownOperation(t *testing.T) {
	f := newFixture(t)
	req := updateReq(true)
	req.Operation = "upsert"

	_, err := f.gate.Validate(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operation")
}

// TestExecute_DryRunUnspecified tests that an absent dry_run flag is a
// protocol violation, not a default.
func TestExecute_DryRunUnspecified(t *testing.T) {
	f := newFixture(t)
	req := updateReq(false)
	req.DryRun = nil

	_, err := f.gate.Execute(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, ErrCodeDryRunUnspecified, CodeOf(err))
}

// TestExecute_DryRunDelegates tests that a dry-run execute validates and
// never mutates.
func TestExecute_DryRunDelegates(t *testing.T) {
	f := newFixture(t)

	result, err := f.gate.Execute(context.Background(), updateReq(true))
	require.NoError(t, err)

	require.NotNil(t, result.Validation)
	assert.True(t, result.Validation.Passed)
	assert.Empty(t, result.AuditEntryID)
	assert.NotContains(t, f.exec.CallNames(), "UpdateRecord:app-tasks:r1")

	entries, err := f.led.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestExecute_WithoutValidation tests the "validation required" gate.
func TestExecute_WithoutValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.gate.Execute(context.Background(), updateReq(false))
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidationRequired, CodeOf(err))
}

// TestExecute_SingleUse tests that a successful dry run admits exactly
// one execute; the second fails with "validation required".
func TestExecute_SingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.gate.Validate(ctx, updateReq(true))
	require.NoError(t, err)

	result, err := f.gate.Execute(ctx, updateReq(false))
	require.NoError(t, err)
	assert.Equal(t, "done", result.Record["status"])
	assert.NotEmpty(t, result.AuditEntryID)

	// Same key, unchanged payload, no new dry run.
	_, err = f.gate.Execute(ctx, updateReq(false))
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidationRequired, CodeOf(err))

	entries, err := f.led.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// TestExecute_PayloadMismatch tests that changing any field between dry
// run and execute fails with a data-mismatch error and burns the record.
func TestExecute_PayloadMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.gate.Validate(ctx, updateReq(true))
	require.NoError(t, err)

	drifted := updateReq(false)
	drifted.Payload = map[string]any{"status": "done", "priority": 1}
	_, err = f.gate.Execute(ctx, drifted)
	require.Error(t, err)
	assert.Equal(t, ErrCodePayloadMismatch, CodeOf(err))
	assert.Contains(t, err.Error(), "data must be identical")

	// The record was deleted: even the original payload now needs a
	// fresh dry run.
	_, err = f.gate.Execute(ctx, updateReq(false))
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidationRequired, CodeOf(err))
}

// TestExecute_PayloadMismatch_KeyIndependent tests that key ordering and
// numeric spelling do NOT count as payload drift.
func TestExecute_PayloadMismatch_KeyIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := updateReq(true)
	req.Payload = map[string]any{"status": "done", "priority": float64(2)}
	_, err := f.gate.Validate(ctx, req)
	require.NoError(t, err)

	same := updateReq(false)
	same.Payload = map[string]any{"priority": 2, "status": "done"}
	_, err = f.gate.Execute(ctx, same)
	require.NoError(t, err)
}

// TestExecute_Expiry tests the TTL window, including the spec's concrete
// 4m59s / 4m59.5s scenario.
func TestExecute_Expiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.gate.Validate(ctx, updateReq(true))
	require.NoError(t, err)

	// 4m59s later, identical payload: still inside the window.
	f.clock.Advance(4*time.Minute + 59*time.Second)
	result, err := f.gate.Execute(ctx, updateReq(false))
	require.NoError(t, err)
	assert.NotEmpty(t, result.AuditEntryID)

	entries, err := f.led.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.OpUpdate, entries[0].Reversal.Operation)
	assert.Equal(t, "open", entries[0].Reversal.Payload["status"])

	// Half a second later the validation is consumed, not expired.
	f.clock.Advance(500 * time.Millisecond)
	_, err = f.gate.Execute(ctx, updateReq(false))
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidationRequired, CodeOf(err))
}

// TestExecute_ExpiredValidation tests expiry with a byte-for-byte
// unchanged payload.
func TestExecute_ExpiredValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.gate.Validate(ctx, updateReq(true))
	require.NoError(t, err)

	f.clock.Advance(5*time.Minute + time.Second)
	_, err = f.gate.Execute(ctx, updateReq(false))
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidationExpired, CodeOf(err))

	// Expired records are deleted, so a retry reports "required".
	_, err = f.gate.Execute(ctx, updateReq(false))
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidationRequired, CodeOf(err))
}

// TestExecute_AfterFailedValidation tests that executing against a
// failed dry run returns the stored errors and burns the record.
func TestExecute_AfterFailedValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := updateReq(true)
	req.Payload = map[string]any{"colour": "red"}
	vr, err := f.gate.Validate(ctx, req)
	require.NoError(t, err)
	require.False(t, vr.Passed)

	exec := updateReq(false)
	exec.Payload = map[string]any{"colour": "red"}
	_, err = f.gate.Execute(ctx, exec)
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidationFailed, CodeOf(err))
	assert.Contains(t, err.Error(), `unknown field "colour"`)

	_, err = f.gate.Execute(ctx, exec)
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidationRequired, CodeOf(err))
}

// TestExecute_NilPayloadEqualsEmpty tests that nil and {} payloads bind
// to the same validation.
func TestExecute_NilPayloadEqualsEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := MutationRequest{
		Operation:  ledger.OpDelete,
		ResourceID: "app-tasks",
		RecordID:   "r1",
		Payload:    nil,
		DryRun:     boolPtr(true),
	}
	_, err := f.gate.Validate(ctx, req)
	require.NoError(t, err)

	exec := req
	exec.Payload = map[string]any{}
	exec.DryRun = boolPtr(false)
	result, err := f.gate.Execute(ctx, exec)
	require.NoError(t, err)
	assert.NotEmpty(t, result.AuditEntryID)
}

// TestExecute_CreateReversal tests the create→delete reversal pairing
// and that the audit entry carries the new record's ID.
func TestExecute_CreateReversal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := MutationRequest{
		Operation:  ledger.OpCreate,
		ResourceID: "app-tasks",
		Payload:    map[string]any{"title": "new task"},
		DryRun:     boolPtr(true),
	}
	vr, err := f.gate.Validate(ctx, req)
	require.NoError(t, err)
	require.True(t, vr.Passed, "errors: %v", vr.Errors)

	req.DryRun = boolPtr(false)
	result, err := f.gate.Execute(ctx, req)
	require.NoError(t, err)
	newID, _ := result.Record["id"].(string)
	require.NotEmpty(t, newID)

	entries, err := f.led.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, newID, entries[0].RecordID)
	assert.Equal(t, ledger.OpDelete, entries[0].Reversal.Operation)
	assert.Equal(t, newID, entries[0].Reversal.RecordID)
	assert.Nil(t, entries[0].Reversal.Payload)
}

// TestExecute_DeleteReversal tests the delete→create reversal carrying
// the pre-mutation state.
func TestExecute_DeleteReversal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := MutationRequest{
		Operation:  ledger.OpDelete,
		ResourceID: "app-tasks",
		RecordID:   "r1",
		DryRun:     boolPtr(true),
	}
	_, err := f.gate.Validate(ctx, req)
	require.NoError(t, err)

	req.DryRun = boolPtr(false)
	_, err = f.gate.Execute(ctx, req)
	require.NoError(t, err)

	entries, err := f.led.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.OpCreate, entries[0].Reversal.Operation)
	assert.Equal(t, "first", entries[0].Reversal.Payload["title"])
	assert.Equal(t, "first", entries[0].BeforeData["title"])
}

// TestExecute_BeforeDataBestEffort tests that a failed before-data fetch
// degrades to a warning rather than aborting the mutation.
func TestExecute_BeforeDataBestEffort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.gate.Validate(ctx, updateReq(true))
	require.NoError(t, err)

	f.exec.FailGet = errors.New("500 internal error")
	result, err := f.gate.Execute(ctx, updateReq(false))
	require.NoError(t, err)
	assert.NotEmpty(t, result.AuditEntryID)

	entries, err := f.led.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].BeforeData)
	assert.Nil(t, entries[0].Reversal.Payload)
}

// TestExecute_RemoteFailureNotAudited tests that a failing executor call
// propagates and suppresses the audit entry: a mutation that did not
// happen is never recorded as having happened.
func TestExecute_RemoteFailureNotAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.gate.Validate(ctx, updateReq(true))
	require.NoError(t, err)

	remoteErr := errors.New("409 conflict")
	f.exec.FailUpdate = remoteErr
	_, err = f.gate.Execute(ctx, updateReq(false))
	require.ErrorIs(t, err, remoteErr)

	entries, err := f.led.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestValidate_UpsertsSameKey tests the one-record-per-key invariant: a
// second dry run for the same target replaces the first.
func TestValidate_UpsertsSameKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.gate.Validate(ctx, updateReq(true))
	require.NoError(t, err)

	second := updateReq(true)
	second.Payload = map[string]any{"status": "blocked"}
	_, err = f.gate.Validate(ctx, second)
	require.NoError(t, err)

	assert.Equal(t, 1, f.store.Len())

	// Only the latest payload executes; the first is gone.
	_, err = f.gate.Execute(ctx, updateReq(false))
	require.Error(t, err)
	assert.Equal(t, ErrCodePayloadMismatch, CodeOf(err))
}
