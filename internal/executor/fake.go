package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/schema"
)

// Fake is a scripted in-memory Executor for tests and scenario runs.
//
// Seed Schemas and Records before use; set the Fail* fields to make a
// specific method return that error. Every call is recorded in Calls
// so tests can assert on probe and beforeData traffic.
//
// Thread-safety: all methods lock, so concurrent gate calls are safe.
type Fake struct {
	mu      sync.Mutex
	Schemas map[string]*schema.Resource
	Records map[string]map[string]Record

	FailList   error
	FailSchema error
	FailGet    error
	FailCreate error
	FailUpdate error
	FailDelete error

	Calls  []string
	nextID int
}

// NewFake creates an empty Fake.
func NewFake() *Fake {
	return &Fake{
		Schemas: make(map[string]*schema.Resource),
		Records: make(map[string]map[string]Record),
	}
}

// Seed inserts a record under the given resource and ID.
func (f *Fake) Seed(resourceID, recordID string, rec Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Records[resourceID] == nil {
		f.Records[resourceID] = make(map[string]Record)
	}
	stored := make(Record, len(rec)+1)
	for k, v := range rec {
		stored[k] = v
	}
	stored["id"] = recordID
	f.Records[resourceID][recordID] = stored
}

// CallNames returns the recorded call log.
func (f *Fake) CallNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

func (f *Fake) record(call string) {
	f.Calls = append(f.Calls, call)
}

func (f *Fake) CreateRecord(ctx context.Context, resourceID string, payload map[string]any) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateRecord:" + resourceID)
	if f.FailCreate != nil {
		return nil, f.FailCreate
	}
	f.nextID++
	id := fmt.Sprintf("rec-%d", f.nextID)
	rec := make(Record, len(payload)+1)
	for k, v := range payload {
		rec[k] = v
	}
	rec["id"] = id
	if f.Records[resourceID] == nil {
		f.Records[resourceID] = make(map[string]Record)
	}
	f.Records[resourceID][id] = rec
	return rec, nil
}

func (f *Fake) UpdateRecord(ctx context.Context, resourceID, recordID string, payload map[string]any) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateRecord:" + resourceID + ":" + recordID)
	if f.FailUpdate != nil {
		return nil, f.FailUpdate
	}
	rec, ok := f.Records[resourceID][recordID]
	if !ok {
		return nil, fmt.Errorf("record %s not found in %s", recordID, resourceID)
	}
	for k, v := range payload {
		rec[k] = v
	}
	return rec, nil
}

func (f *Fake) DeleteRecord(ctx context.Context, resourceID, recordID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteRecord:" + resourceID + ":" + recordID)
	if f.FailDelete != nil {
		return f.FailDelete
	}
	if _, ok := f.Records[resourceID][recordID]; !ok {
		return fmt.Errorf("record %s not found in %s", recordID, resourceID)
	}
	delete(f.Records[resourceID], recordID)
	return nil
}

func (f *Fake) GetRecord(ctx context.Context, resourceID, recordID string) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetRecord:" + resourceID + ":" + recordID)
	if f.FailGet != nil {
		return nil, f.FailGet
	}
	rec, ok := f.Records[resourceID][recordID]
	if !ok {
		return nil, fmt.Errorf("record %s not found in %s", recordID, resourceID)
	}
	// Copy so callers can't mutate stored state through the result.
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out, nil
}

func (f *Fake) GetSchema(ctx context.Context, resourceID string) (*schema.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetSchema:" + resourceID)
	if f.FailSchema != nil {
		return nil, f.FailSchema
	}
	res, ok := f.Schemas[resourceID]
	if !ok {
		return nil, fmt.Errorf("no schema for resource %s", resourceID)
	}
	return res, nil
}

func (f *Fake) ListRecords(ctx context.Context, resourceID string, limit int) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListRecords:" + resourceID)
	if f.FailList != nil {
		return nil, f.FailList
	}
	var out []Record
	for _, rec := range f.Records[resourceID] {
		if len(out) >= limit {
			break
		}
		out = append(out, rec)
	}
	return out, nil
}
