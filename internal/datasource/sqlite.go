package datasource

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// logicalTables is the fixed set of backup-relevant tables in the
// tourist-safety operational store. The engine targets exactly these,
// not arbitrary file trees.
var logicalTables = []string{
	"tourists",
	"alerts",
	"geofences",
	"emergency_contacts",
	"location_pings",
}

// SQLiteSource is a read-only adapter over the platform's SQLite
// operational store. Change detection relies on each logical table
// carrying an updated_at column in RFC3339 UTC.
type SQLiteSource struct {
	db *sql.DB
}

// NewSQLiteSource opens the operational store at the given path.
func NewSQLiteSource(dbPath string) (*SQLiteSource, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn, err := buildSQLiteDSN(dbPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteSource{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// ListLogicalTables returns the known logical tables that exist in the
// store.
func (s *SQLiteSource) ListLogicalTables() ([]string, error) {
	var names []string
	for _, table := range logicalTables {
		var count int
		err := s.db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect schema: %w", err)
		}
		if count > 0 {
			names = append(names, table)
		}
	}

	return names, nil
}

// SnapshotTable returns every row of the named table.
func (s *SQLiteSource) SnapshotTable(name string) ([]Row, error) {
	if !isLogicalTable(name) {
		return nil, fmt.Errorf("unknown logical table: %s", name)
	}

	rows, err := s.db.Query("SELECT * FROM " + name) //nolint:gosec // name checked against fixed set
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot table %s: %w", name, err)
	}
	defer rows.Close()

	return scanAll(rows)
}

// TableChangesSince returns rows modified after the given timestamp.
func (s *SQLiteSource) TableChangesSince(name string, since time.Time) ([]Row, error) {
	if !isLogicalTable(name) {
		return nil, fmt.Errorf("unknown logical table: %s", name)
	}

	query := "SELECT * FROM " + name + " WHERE updated_at > ?" //nolint:gosec // name checked against fixed set
	rows, err := s.db.Query(query, since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("failed to read changes for table %s: %w", name, err)
	}
	defer rows.Close()

	return scanAll(rows)
}

// SnapshotLedgerState returns the latest incident-chain height and the
// most recent window of entries, oldest first.
func (s *SQLiteSource) SnapshotLedgerState() (*LedgerState, error) {
	const window = 100

	rows, err := s.db.Query(`
		SELECT height, parent_height, hash, recorded_at, payload
		FROM incident_chain
		ORDER BY height DESC
		LIMIT ?
	`, window)
	if err != nil {
		return nil, fmt.Errorf("failed to read incident chain: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var entry LedgerEntry
		var recordedAt string

		if err := rows.Scan(&entry.Height, &entry.ParentHeight, &entry.Hash, &recordedAt, &entry.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan chain entry: %w", err)
		}

		if ts, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
			entry.RecordedAt = ts
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read incident chain: %w", err)
	}

	// Reverse to oldest-first for contiguity verification downstream.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	state := &LedgerState{RecentEntries: entries}
	if len(entries) > 0 {
		state.LatestHeight = entries[len(entries)-1].Height
	}

	return state, nil
}

// EnsureSchema creates the operational tables if missing. Intended for
// local development and tests; production schema is owned by the
// platform.
func (s *SQLiteSource) EnsureSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tourists (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			nationality TEXT,
			safety_score INTEGER,
			current_zone TEXT,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			tourist_id TEXT,
			severity TEXT NOT NULL,
			message TEXT,
			resolved INTEGER DEFAULT 0,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS geofences (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			risk_level TEXT,
			boundary TEXT,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS emergency_contacts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			phone TEXT NOT NULL,
			role TEXT,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS location_pings (
			id TEXT PRIMARY KEY,
			tourist_id TEXT NOT NULL,
			latitude REAL,
			longitude REAL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS incident_chain (
			height INTEGER PRIMARY KEY,
			parent_height INTEGER NOT NULL,
			hash TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			payload TEXT
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}

// DB exposes the underlying handle for test seeding.
func (s *SQLiteSource) DB() *sql.DB {
	return s.db
}

func isLogicalTable(name string) bool {
	for _, table := range logicalTables {
		if table == name {
			return true
		}
	}
	return false
}

func scanAll(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(Row, len(columns))
		for i, column := range columns {
			// []byte values are not JSON-friendly; normalize to string.
			if b, ok := values[i].([]byte); ok {
				row[column] = string(b)
			} else {
				row[column] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return out, nil
}

func buildSQLiteDSN(dbPath string) (string, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve database path: %w", err)
	}

	// Ensure forward slashes for SQLite file URI
	absPath = strings.ReplaceAll(absPath, "\\", "/")

	// Apply pragmas on every connection
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", absPath), nil
}
