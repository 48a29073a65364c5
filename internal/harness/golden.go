package harness

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/canon"
	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/ledger"
)

// RunWithGolden executes a scenario and compares its audit trail
// against testdata/golden/{scenario.Name}.golden. Expectation and
// assertion failures fail the test before the golden comparison runs.
//
// The snapshot uses canonical JSON and omits integrity hashes: they are
// derived from the exact entry bytes and would force a golden
// regeneration on any serialization change, while ledger.Verify already
// covers them.
//
// Regenerate golden files with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		t.Fatalf("scenario %s: %v", scenario.Name, err)
	}
	for _, failure := range result.Failures {
		t.Errorf("scenario %s: %s", scenario.Name, failure)
	}
	if t.Failed() {
		return
	}

	snapshot := map[string]any{
		"scenario_name": scenario.Name,
		"entries":       summarize(result.Entries),
	}
	data, err := canon.Marshal(snapshot)
	if err != nil {
		t.Fatalf("scenario %s: marshal snapshot: %v", scenario.Name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
}

// summarize converts audit entries to plain maps for canonical JSON.
// canon.Marshal handles decoded-JSON values only, not structs.
func summarize(entries []ledger.AuditEntry) []any {
	summaries := make([]any, len(entries))
	for i, e := range entries {
		entry := map[string]any{
			"id":          e.ID,
			"timestamp":   e.Timestamp.UTC().Format(time.RFC3339Nano),
			"operation":   string(e.Operation),
			"resource_id": e.ResourceID,
			"record_id":   e.RecordID,
			"reversal": map[string]any{
				"operation":   string(e.Reversal.Operation),
				"resource_id": e.Reversal.ResourceID,
				"record_id":   e.Reversal.RecordID,
				"payload":     anyMap(e.Reversal.Payload),
			},
		}
		if e.Payload != nil {
			entry["payload"] = anyMap(e.Payload)
		}
		if e.BeforeData != nil {
			entry["before_data"] = anyMap(e.BeforeData)
		}
		summaries[i] = entry
	}
	return summaries
}

// anyMap widens a typed nil to a JSON null.
func anyMap(m map[string]any) any {
	if m == nil {
		return nil
	}
	return m
}
