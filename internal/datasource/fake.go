package datasource

import (
	"fmt"
	"sync"
	"time"
)

// FakeSource is an in-memory Source used by tests and local dry runs.
type FakeSource struct {
	mu      sync.Mutex
	tables  map[string][]fakeRow
	ledger  LedgerState
	failAll bool
}

type fakeRow struct {
	row       Row
	updatedAt time.Time
}

// NewFakeSource creates an empty in-memory source.
func NewFakeSource() *FakeSource {
	return &FakeSource{tables: make(map[string][]fakeRow)}
}

// AddRow inserts a row into a logical table with the given update time.
func (f *FakeSource) AddRow(table string, row Row, updatedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[table] = append(f.tables[table], fakeRow{row: row, updatedAt: updatedAt})
}

// SetLedgerState replaces the fake incident-ledger view.
func (f *FakeSource) SetLedgerState(state LedgerState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ledger = state
}

// FailReads makes every read return an error, for failure-path tests.
func (f *FakeSource) FailReads(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAll = fail
}

func (f *FakeSource) ListLogicalTables() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failAll {
		return nil, fmt.Errorf("source unavailable")
	}

	var names []string
	for _, table := range logicalTables {
		if _, ok := f.tables[table]; ok {
			names = append(names, table)
		}
	}
	return names, nil
}

func (f *FakeSource) SnapshotTable(name string) ([]Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failAll {
		return nil, fmt.Errorf("source unavailable")
	}

	stored, ok := f.tables[name]
	if !ok {
		return nil, fmt.Errorf("unknown logical table: %s", name)
	}

	out := make([]Row, 0, len(stored))
	for _, r := range stored {
		out = append(out, r.row)
	}
	return out, nil
}

func (f *FakeSource) TableChangesSince(name string, since time.Time) ([]Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failAll {
		return nil, fmt.Errorf("source unavailable")
	}

	stored, ok := f.tables[name]
	if !ok {
		return nil, fmt.Errorf("unknown logical table: %s", name)
	}

	var out []Row
	for _, r := range stored {
		if r.updatedAt.After(since) {
			out = append(out, r.row)
		}
	}
	return out, nil
}

func (f *FakeSource) SnapshotLedgerState() (*LedgerState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failAll {
		return nil, fmt.Errorf("source unavailable")
	}

	state := f.ledger
	return &state, nil
}
