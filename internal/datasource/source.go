package datasource

import "time"

// Row is one record pulled from a logical table, column name to value.
type Row map[string]interface{}

// LedgerEntry is one block of the append-only incident ledger maintained
// by the platform. Height is contiguous and ParentHeight is always
// Height-1 except for the genesis entry.
type LedgerEntry struct {
	Height       int64     `json:"height"`
	ParentHeight int64     `json:"parent_height"`
	Hash         string    `json:"hash"`
	RecordedAt   time.Time `json:"recorded_at"`
	Payload      string    `json:"payload"`
}

// LedgerState is a point-in-time view of the incident ledger.
type LedgerState struct {
	LatestHeight  int64         `json:"latest_height"`
	RecentEntries []LedgerEntry `json:"recent_entries"`
}

// Source is the read-only view over the operational store that the
// backup engine consumes. Implementations must be safe for concurrent
// use: a full backup may be reading tables while an incremental backup
// reads changes.
type Source interface {
	// ListLogicalTables returns the names of all backup-relevant tables.
	ListLogicalTables() ([]string, error)

	// SnapshotTable returns every row of the named table.
	SnapshotTable(name string) ([]Row, error)

	// TableChangesSince returns rows of the named table modified after
	// the given timestamp.
	TableChangesSince(name string, since time.Time) ([]Row, error)

	// SnapshotLedgerState returns the latest ledger height and a rolling
	// window of recent entries.
	SnapshotLedgerState() (*LedgerState, error)
}
