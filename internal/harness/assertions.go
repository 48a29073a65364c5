package harness

import (
	"context"
	"reflect"

	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/ledger"
)

// evaluateAssertion checks one assertion against the run result and
// records any miss as a failure.
func evaluateAssertion(index int, a Assertion, result *Result) {
	switch a.Type {
	case AssertAuditCount:
		if len(result.Entries) != a.Count {
			result.fail("assertions[%d]: expected %d audit entries, got %d",
				index, a.Count, len(result.Entries))
		}

	case AssertAuditContains:
		if !auditContains(a, result.Entries) {
			result.fail("assertions[%d]: no audit entry matches operation=%s resource=%s record=%s reversal=%s",
				index, a.Operation, a.Resource, a.Record, a.Reversal)
		}

	case AssertRemoteCalls:
		if !callsInOrder(a.Calls, result.Calls) {
			result.fail("assertions[%d]: expected remote calls %v in order, got %v",
				index, a.Calls, result.Calls)
		}

	case AssertRecordState:
		rec, err := result.Remote.GetRecord(context.Background(), a.Resource, a.Record)
		if err != nil {
			result.fail("assertions[%d]: record %s/%s not found: %v",
				index, a.Resource, a.Record, err)
			return
		}
		for key, want := range a.Expect {
			got, ok := rec[key]
			if !ok || !looseEqual(got, want) {
				result.fail("assertions[%d]: record %s/%s field %q: expected %v, got %v",
					index, a.Resource, a.Record, key, want, got)
			}
		}
	}
}

// auditContains reports whether any entry matches every specified field.
func auditContains(a Assertion, entries []ledger.AuditEntry) bool {
	for _, e := range entries {
		if string(e.Operation) != a.Operation {
			continue
		}
		if e.ResourceID != a.Resource {
			continue
		}
		if a.Record != "" && e.RecordID != a.Record {
			continue
		}
		if a.Reversal != "" && string(e.Reversal.Operation) != a.Reversal {
			continue
		}
		return true
	}
	return false
}

// callsInOrder reports whether want appears as a subsequence of got:
// every expected call present, in order, with other calls allowed in
// between.
func callsInOrder(want, got []string) bool {
	i := 0
	for _, call := range got {
		if i < len(want) && call == want[i] {
			i++
		}
	}
	return i == len(want)
}

// looseEqual compares a remote record value against a YAML expectation,
// tolerating int/float spelling differences between the two decoders.
func looseEqual(got, want any) bool {
	if reflect.DeepEqual(got, want) {
		return true
	}
	gf, gok := toFloat(got)
	wf, wok := toFloat(want)
	return gok && wok && gf == wf
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}
