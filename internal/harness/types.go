package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance scenario: a sequence of gate calls
// against a fake remote system, with expected outcomes and assertions
// over the resulting audit trail.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are keyed
	// by it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Resources declares the fake remote system's schemas.
	Resources []ResourceDef `yaml:"resources"`

	// Seed lists records that exist remotely before the flow starts.
	Seed []SeedRecord `yaml:"seed,omitempty"`

	// Flow is the sequence of gate calls with expected results.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final audit trail and remote state.
	Assertions []Assertion `yaml:"assertions"`
}

// ResourceDef declares a resource schema for the fake remote system.
type ResourceDef struct {
	ID     string     `yaml:"id"`
	Name   string     `yaml:"name"`
	Fields []FieldDef `yaml:"fields"`
}

// FieldDef declares one field of a resource schema.
type FieldDef struct {
	Slug     string `yaml:"slug"`
	Label    string `yaml:"label,omitempty"`
	Type     string `yaml:"type"`
	Required bool   `yaml:"required,omitempty"`
}

// SeedRecord is a record that exists remotely before the flow starts.
type SeedRecord struct {
	Resource string         `yaml:"resource"`
	ID       string         `yaml:"id"`
	Data     map[string]any `yaml:"data"`
}

// FlowStep is one gate call in the scenario flow.
type FlowStep struct {
	// Call is "validate" or "execute".
	Call string `yaml:"call"`

	// Operation is "create", "update", or "delete".
	Operation string `yaml:"operation"`

	// Resource is the target resource ID.
	Resource string `yaml:"resource"`

	// Record is the target record ID. Empty for create.
	Record string `yaml:"record,omitempty"`

	// Payload is the mutation data.
	Payload map[string]any `yaml:"payload,omitempty"`

	// Advance moves the deterministic clock forward before the step,
	// e.g. "4m59s". Used to exercise validation expiry.
	Advance string `yaml:"advance,omitempty"`

	// Expect specifies the expected outcome. If nil, the step must
	// simply not return an error.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies a flow step's expected outcome.
type ExpectClause struct {
	// Passed is the expected dry-run verdict (validate steps).
	Passed *bool `yaml:"passed,omitempty"`

	// ErrorCode is the expected protocol error code (execute steps),
	// e.g. "VALIDATION_EXPIRED". Empty means the step must succeed.
	ErrorCode string `yaml:"error_code,omitempty"`

	// Errors are substrings that must each appear among the reported
	// validation errors.
	Errors []string `yaml:"errors,omitempty"`
}

// Assertion validates the audit trail or final remote state.
type Assertion struct {
	// Type is one of audit_count, audit_contains, remote_calls, or
	// record_state.
	Type string `yaml:"type"`

	// Count is the expected audit entry count (audit_count).
	Count int `yaml:"count,omitempty"`

	// Operation, Resource, Record, and Reversal locate an expected
	// audit entry (audit_contains). Subset match.
	Operation string `yaml:"operation,omitempty"`
	Resource  string `yaml:"resource,omitempty"`
	Record    string `yaml:"record,omitempty"`
	Reversal  string `yaml:"reversal,omitempty"`

	// Calls is the expected remote call sequence (remote_calls).
	Calls []string `yaml:"calls,omitempty"`

	// Expect contains expected record field values (record_state).
	// Subset match against the remote record named by Resource/Record.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertAuditCount    = "audit_count"
	AssertAuditContains = "audit_contains"
	AssertRemoteCalls   = "remote_calls"
	AssertRecordState   = "record_state"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields
// are rejected so a typo fails loudly instead of silently skipping an
// assertion.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Resources) == 0 {
		return fmt.Errorf("resources list is required and must be non-empty")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, res := range s.Resources {
		if res.ID == "" {
			return fmt.Errorf("resources[%d]: id is required", i)
		}
		if len(res.Fields) == 0 {
			return fmt.Errorf("resources[%d]: fields list is required", i)
		}
		for j, field := range res.Fields {
			if field.Slug == "" || field.Type == "" {
				return fmt.Errorf("resources[%d].fields[%d]: slug and type are required", i, j)
			}
		}
	}

	for i, seed := range s.Seed {
		if seed.Resource == "" || seed.ID == "" {
			return fmt.Errorf("seed[%d]: resource and id are required", i)
		}
	}

	for i, step := range s.Flow {
		if step.Call != "validate" && step.Call != "execute" {
			return fmt.Errorf("flow[%d]: call must be validate or execute, got %q", i, step.Call)
		}
		if step.Operation == "" {
			return fmt.Errorf("flow[%d]: operation is required", i)
		}
		if step.Resource == "" {
			return fmt.Errorf("flow[%d]: resource is required", i)
		}
		if step.Advance != "" {
			if _, err := time.ParseDuration(step.Advance); err != nil {
				return fmt.Errorf("flow[%d]: bad advance duration %q: %w", i, step.Advance, err)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertAuditCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertAuditContains:
		if a.Operation == "" || a.Resource == "" {
			return fmt.Errorf("assertions[%d]: operation and resource are required for audit_contains", index)
		}
	case AssertRemoteCalls:
		if len(a.Calls) == 0 {
			return fmt.Errorf("assertions[%d]: calls list is required for remote_calls", index)
		}
	case AssertRecordState:
		if a.Resource == "" || a.Record == "" {
			return fmt.Errorf("assertions[%d]: resource and record are required for record_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for record_state", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
