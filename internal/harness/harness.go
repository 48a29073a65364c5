// Package harness runs YAML-defined conformance scenarios through the
// mutation gate against a fake remote system.
//
// Each scenario runs with a deterministic clock and sequential audit
// entry IDs, so the resulting audit trail is reproducible and can be
// compared against golden files.
package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/executor"
	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/gate"
	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/ledger"
	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/schema"
	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/testutil"
)

// epoch is the fixed clock start for every scenario run.
var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// Result holds the outcome of a scenario run.
type Result struct {
	// Passed reports whether every expectation and assertion held.
	Passed bool

	// Failures lists each expectation or assertion that did not hold.
	Failures []string

	// Entries is the final audit trail.
	Entries []ledger.AuditEntry

	// Calls is the remote call sequence the flow produced.
	Calls []string

	// Remote is the fake remote system after the flow, for state
	// inspection.
	Remote *executor.Fake
}

func (r *Result) fail(format string, args ...any) {
	r.Passed = false
	r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
}

// sequentialIDs generates entry-001, entry-002, ... for reproducible
// audit trails.
type sequentialIDs struct{ n int }

func (g *sequentialIDs) Generate() string {
	g.n++
	return fmt.Sprintf("entry-%03d", g.n)
}

// Run executes a scenario and returns the result. Each run gets a fresh
// fake remote system and a fresh audit log in a temporary directory.
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "harness-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	fake := executor.NewFake()
	for _, res := range scenario.Resources {
		fake.Schemas[res.ID] = buildResource(res)
	}
	for _, seed := range scenario.Seed {
		fake.Seed(seed.Resource, seed.ID, seed.Data)
	}

	clock := testutil.NewClock(epoch)
	led := ledger.New(filepath.Join(dir, "audit.json"),
		ledger.WithNow(clock.Now),
		ledger.WithIDGenerator(&sequentialIDs{}),
	)
	g := gate.New(fake, led,
		gate.WithNow(clock.Now),
	)

	result := &Result{Passed: true, Remote: fake}
	ctx := context.Background()

	for i, step := range scenario.Flow {
		if step.Advance != "" {
			d, err := time.ParseDuration(step.Advance)
			if err != nil {
				return nil, fmt.Errorf("flow[%d]: bad advance duration: %w", i, err)
			}
			clock.Advance(d)
		}
		if err := runStep(ctx, g, i, step, result); err != nil {
			return nil, err
		}
	}

	result.Entries, err = led.Entries()
	if err != nil {
		return nil, fmt.Errorf("read audit trail: %w", err)
	}
	result.Calls = fake.CallNames()

	for i, a := range scenario.Assertions {
		evaluateAssertion(i, a, result)
	}
	return result, nil
}

// runStep dispatches one flow step and checks its expect clause.
// Expectation misses are recorded as failures, not errors, so a broken
// step does not hide the rest of the flow.
func runStep(ctx context.Context, g *gate.Gate, index int, step FlowStep, result *Result) error {
	dryRun := step.Call == "validate"
	req := gate.MutationRequest{
		Operation:  ledger.Operation(step.Operation),
		ResourceID: step.Resource,
		RecordID:   step.Record,
		Payload:    step.Payload,
		DryRun:     &dryRun,
	}

	switch step.Call {
	case "validate":
		vr, err := g.Validate(ctx, req)
		if err != nil {
			return fmt.Errorf("flow[%d] validate: %w", index, err)
		}
		checkValidateExpect(index, step.Expect, vr, result)
	case "execute":
		_, err := g.Execute(ctx, req)
		checkExecuteExpect(index, step.Expect, err, result)
	default:
		return fmt.Errorf("flow[%d]: unknown call %q", index, step.Call)
	}
	return nil
}

func checkValidateExpect(index int, expect *ExpectClause, vr *gate.ValidationResult, result *Result) {
	if expect == nil {
		return
	}
	if expect.Passed != nil && vr.Passed != *expect.Passed {
		result.fail("flow[%d]: expected passed=%v, got passed=%v (errors: %v)",
			index, *expect.Passed, vr.Passed, vr.Errors)
	}
	for _, want := range expect.Errors {
		if !containsSubstring(vr.Errors, want) {
			result.fail("flow[%d]: expected error containing %q, got %v", index, want, vr.Errors)
		}
	}
}

func checkExecuteExpect(index int, expect *ExpectClause, err error, result *Result) {
	wantCode := ""
	if expect != nil {
		wantCode = expect.ErrorCode
	}

	if wantCode == "" {
		if err != nil {
			result.fail("flow[%d]: expected success, got error: %v", index, err)
		}
		return
	}

	if err == nil {
		result.fail("flow[%d]: expected error code %s, got success", index, wantCode)
		return
	}
	if got := string(gate.CodeOf(err)); got != wantCode {
		result.fail("flow[%d]: expected error code %s, got %s (%v)", index, wantCode, got, err)
		return
	}

	if expect != nil && len(expect.Errors) > 0 {
		var perr *gate.ProtocolError
		if !errors.As(err, &perr) {
			result.fail("flow[%d]: expected protocol error with details, got %v", index, err)
			return
		}
		for _, want := range expect.Errors {
			if !containsSubstring(perr.Errors, want) {
				result.fail("flow[%d]: expected error containing %q, got %v", index, want, perr.Errors)
			}
		}
	}
}

func buildResource(def ResourceDef) *schema.Resource {
	res := &schema.Resource{ID: def.ID, Name: def.Name}
	if res.Name == "" {
		res.Name = def.ID
	}
	for _, f := range def.Fields {
		label := f.Label
		if label == "" {
			label = f.Slug
		}
		res.Fields = append(res.Fields, schema.Field{
			Slug:     f.Slug,
			Label:    label,
			Type:     f.Type,
			Required: f.Required,
		})
	}
	return res
}

func containsSubstring(haystack []string, want string) bool {
	for _, s := range haystack {
		if strings.Contains(s, want) {
			return true
		}
	}
	return false
}
