package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/lockfile"
)

// Ledger appends executed mutations to a JSON-array log file.
//
// The file lock is the only cross-process coordination primitive in the
// system: entries are appended in the order their Append calls acquire
// it. Reads take no lock; the atomic-replace write discipline guarantees
// readers never observe a torn file.
type Ledger struct {
	path        string
	lockTimeout time.Duration
	idGen       IDGenerator
	now         func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLockTimeout overrides the bounded wait for the log file lock.
func WithLockTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.lockTimeout = d }
}

// WithIDGenerator swaps the entry ID source. Tests use a fixed sequence
// for deterministic golden comparison.
func WithIDGenerator(g IDGenerator) Option {
	return func(l *Ledger) { l.idGen = g }
}

// WithNow swaps the time source. Tests pin it.
func WithNow(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a Ledger writing to the given log file path.
// The file need not exist yet; the first Append creates it.
func New(path string, opts ...Option) *Ledger {
	l := &Ledger{
		path:        path,
		lockTimeout: lockfile.DefaultTimeout,
		idGen:       UUIDv7Generator{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the log file path.
func (l *Ledger) Path() string {
	return l.path
}

// Append durably records one executed mutation and returns its entry ID.
//
// The whole read-modify-write happens under the file lock; a lock
// timeout aborts the append entirely with nothing written, so the caller
// may safely retry.
func (l *Ledger) Append(input EntryInput) (string, error) {
	entry := AuditEntry{
		ID:         l.idGen.Generate(),
		Timestamp:  l.now().UTC(),
		Operation:  input.Operation,
		ResourceID: input.ResourceID,
		RecordID:   input.RecordID,
		Payload:    input.Payload,
		Result:     input.Result,
		BeforeData: input.BeforeData,
		Reversal:   input.Reversal,
	}

	hash, err := IntegrityHash(&entry)
	if err != nil {
		return "", fmt.Errorf("compute integrity hash: %w", err)
	}
	entry.IntegrityHash = hash

	lock, err := lockfile.Acquire(l.path, l.lockTimeout)
	if err != nil {
		return "", fmt.Errorf("acquire audit log lock: %w", err)
	}
	defer func() {
		if rerr := lock.Release(); rerr != nil {
			slog.Warn("audit log lock release failed", "path", l.path, "error", rerr)
		}
	}()

	entries, err := l.Entries()
	if err != nil {
		return "", err
	}
	entries = append(entries, entry)

	if err := l.writeAtomic(entries); err != nil {
		return "", err
	}

	slog.Info("audit entry appended",
		"entry_id", entry.ID,
		"operation", entry.Operation,
		"resource_id", entry.ResourceID,
		"record_id", entry.RecordID,
	)
	return entry.ID, nil
}

// Entries reads and deserializes the full log.
// A missing file is an empty ledger, not an error. No lock is taken:
// the atomic-replace discipline means any file we open is complete.
func (l *Ledger) Entries() ([]AuditEntry, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read audit log %s: %w", l.path, err)
	}

	var entries []AuditEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse audit log %s: %w", l.path, err)
	}
	return entries, nil
}

// writeAtomic serializes the full entry list to a temp file in the log's
// directory and renames it over the real path. Readers see either the
// old complete file or the new complete file.
func (l *Ledger) writeAtomic(entries []AuditEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize audit log: %w", err)
	}

	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(l.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp audit log: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp audit log: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp audit log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp audit log: %w", err)
	}

	if err := os.Rename(tmpPath, l.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace audit log: %w", err)
	}
	return nil
}

// Mismatch reports one entry whose recomputed integrity hash no longer
// matches the stored one.
type Mismatch struct {
	EntryID  string `json:"entry_id"`
	Stored   string `json:"stored"`
	Computed string `json:"computed"`
}

// Verify recomputes every entry's integrity hash and returns the
// mismatches. An empty slice means the ledger is intact.
func (l *Ledger) Verify() ([]Mismatch, error) {
	entries, err := l.Entries()
	if err != nil {
		return nil, err
	}

	var mismatches []Mismatch
	for i := range entries {
		computed, err := IntegrityHash(&entries[i])
		if err != nil {
			return nil, fmt.Errorf("recompute hash for entry %s: %w", entries[i].ID, err)
		}
		if computed != entries[i].IntegrityHash {
			mismatches = append(mismatches, Mismatch{
				EntryID:  entries[i].ID,
				Stored:   entries[i].IntegrityHash,
				Computed: computed,
			})
		}
	}
	return mismatches, nil
}
