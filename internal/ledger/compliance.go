package ledger

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Standard identifies a compliance reporting standard.
type Standard string

const (
	StandardGDPR Standard = "gdpr"
	StandardCCPA Standard = "ccpa"
	StandardSOX  Standard = "sox"
)

// Standards lists the supported reporting standards.
var Standards = []Standard{StandardGDPR, StandardCCPA, StandardSOX}

// ParseStandard validates a user-supplied standard name.
func ParseStandard(s string) (Standard, error) {
	std := Standard(strings.ToLower(s))
	for _, known := range Standards {
		if std == known {
			return std, nil
		}
	}
	return "", fmt.Errorf("unknown compliance standard %q: must be one of %v", s, Standards)
}

// PrivacyOriented reports whether the standard cares about personal
// data exposure and erasure reversibility.
func (s Standard) PrivacyOriented() bool {
	return s == StandardGDPR || s == StandardCCPA
}

// ReversibleDeletion flags a deletion whose reversal is a create: the
// "erased" data is still recoverable from the reversal payload, a
// property privacy compliance consumers must be able to see.
type ReversibleDeletion struct {
	EntryID    string `json:"entry_id"`
	ResourceID string `json:"resource_id"`
	RecordID   string `json:"record_id,omitempty"`
}

// ComplianceReport aggregates the full ledger for one standard.
type ComplianceReport struct {
	Standard          Standard          `json:"standard"`
	GeneratedAt       time.Time         `json:"generated_at"`
	TotalOperations   int               `json:"total_operations"`
	OperationCounts   map[Operation]int `json:"operation_counts"`
	AffectedResources []string          `json:"affected_resources"`
	EarliestEntry     time.Time         `json:"earliest_entry"`
	LatestEntry       time.Time         `json:"latest_entry"`

	// Privacy-oriented standards only.
	PersonalDataEntries []string             `json:"personal_data_entries,omitempty"`
	RecordsTouched      []string             `json:"records_touched,omitempty"`
	ReversibleDeletions []ReversibleDeletion `json:"reversible_deletions,omitempty"`
}

// personalDataKeyParts mark a payload key as personal-data-shaped when
// any of them appears in the lowercased key.
var personalDataKeyParts = []string{
	"name", "email", "phone", "address", "ssn", "social_security",
	"birth", "dob", "passport", "ip_address", "location", "gender",
	"nationality", "salary", "medical", "health",
}

// Report folds over the full ledger for the given standard.
// A zero-entry ledger produces a well-formed all-zero report whose date
// range is the report-generation instant.
func (l *Ledger) Report(standard Standard) (*ComplianceReport, error) {
	entries, err := l.Entries()
	if err != nil {
		return nil, err
	}

	report := &ComplianceReport{
		Standard:        standard,
		GeneratedAt:     l.now().UTC(),
		TotalOperations: len(entries),
		OperationCounts: map[Operation]int{OpCreate: 0, OpUpdate: 0, OpDelete: 0},
	}

	if len(entries) == 0 {
		report.EarliestEntry = report.GeneratedAt
		report.LatestEntry = report.GeneratedAt
		return report, nil
	}

	resources := make(map[string]bool)
	records := make(map[string]bool)
	report.EarliestEntry = entries[0].Timestamp
	report.LatestEntry = entries[0].Timestamp

	for i := range entries {
		e := &entries[i]
		report.OperationCounts[e.Operation]++
		resources[e.ResourceID] = true

		if e.Timestamp.Before(report.EarliestEntry) {
			report.EarliestEntry = e.Timestamp
		}
		if e.Timestamp.After(report.LatestEntry) {
			report.LatestEntry = e.Timestamp
		}

		if !standard.PrivacyOriented() {
			continue
		}
		if e.RecordID != "" {
			records[e.RecordID] = true
		}
		if containsPersonalData(e.Payload) || containsPersonalData(e.BeforeData) {
			report.PersonalDataEntries = append(report.PersonalDataEntries, e.ID)
		}
		if e.Operation == OpDelete && e.Reversal.Operation == OpCreate && e.Reversal.Payload != nil {
			report.ReversibleDeletions = append(report.ReversibleDeletions, ReversibleDeletion{
				EntryID:    e.ID,
				ResourceID: e.ResourceID,
				RecordID:   e.RecordID,
			})
		}
	}

	report.AffectedResources = sortedSet(resources)
	if standard.PrivacyOriented() {
		report.RecordsTouched = sortedSet(records)
	}
	return report, nil
}

// containsPersonalData walks a decoded JSON object looking for
// personal-data-shaped keys at any depth.
func containsPersonalData(m map[string]any) bool {
	for key, value := range m {
		lower := strings.ToLower(key)
		for _, part := range personalDataKeyParts {
			if strings.Contains(lower, part) {
				return true
			}
		}
		if nested, ok := value.(map[string]any); ok && containsPersonalData(nested) {
			return true
		}
	}
	return false
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
