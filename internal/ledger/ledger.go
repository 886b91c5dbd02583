package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Kind identifies the class of a backup artifact.
type Kind string

const (
	KindFull        Kind = "full"
	KindIncremental Kind = "incremental"
	KindLedgerSync  Kind = "ledger-sync"
	KindSystemState Kind = "system-state"
)

// Valid reports whether the kind is one of the known backup kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindFull, KindIncremental, KindLedgerSync, KindSystemState:
		return true
	}
	return false
}

// Artifact statuses
const (
	StatusPending    = "pending"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCorrupted  = "corrupted"
)

// ArtifactDescriptor describes one backup artifact produced by the engine.
// A descriptor is appended only after the artifact file is durably written
// and is never mutated after completion except by retention deletion.
type ArtifactDescriptor struct {
	ID              string    `json:"id"`
	Kind            Kind      `json:"kind"`
	CreatedAt       time.Time `json:"created_at"`
	SizeBytes       int64     `json:"size_bytes"`
	Checksum        string    `json:"checksum"` // SHA-256 of the final encrypted bytes
	Source          string    `json:"source"`
	DestinationPath string    `json:"destination_path"`
	Status          string    `json:"status"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	DurationMS      int64     `json:"duration_ms,omitempty"`
	Tables          []string  `json:"tables,omitempty"`
	LedgerHeight    int64     `json:"ledger_height,omitempty"`
	DeliveredTo     []string  `json:"delivered_to,omitempty"`
}

// Ledger is the append-only, file-backed record of all artifacts ever
// produced. Every mutation is a mutex-serialized read-merge-write over a
// single JSON file; the ledger is small so a full rewrite per mutation is
// acceptable.
type Ledger struct {
	path string
	mu   sync.Mutex
}

// New creates a ledger backed by the given file path.
func New(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	return &Ledger{path: path}, nil
}

// Append adds a descriptor to the ledger.
func (l *Ledger) Append(descriptor *ArtifactDescriptor) error {
	if descriptor == nil || descriptor.ID == "" {
		return fmt.Errorf("descriptor with id is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.readLocked()
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.ID == descriptor.ID {
			return fmt.Errorf("duplicate artifact id: %s", descriptor.ID)
		}
	}

	entries = append(entries, *descriptor)
	return l.writeLocked(entries)
}

// Update rewrites an existing descriptor in place, matched by id.
// Used only to flip a completed descriptor to corrupted when a checksum
// verification fails on restore.
func (l *Ledger) Update(descriptor *ArtifactDescriptor) error {
	if descriptor == nil || descriptor.ID == "" {
		return fmt.Errorf("descriptor with id is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.readLocked()
	if err != nil {
		return err
	}

	found := false
	for i := range entries {
		if entries[i].ID == descriptor.ID {
			entries[i] = *descriptor
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("artifact not found: %s", descriptor.ID)
	}

	return l.writeLocked(entries)
}

// Query returns descriptors, optionally filtered by kind, sorted newest
// first.
func (l *Ledger) Query(kind Kind) ([]ArtifactDescriptor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.readLocked()
	if err != nil {
		return nil, err
	}

	var out []ArtifactDescriptor
	for _, entry := range entries {
		if kind != "" && entry.Kind != kind {
			continue
		}
		out = append(out, entry)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out, nil
}

// MostRecentCompleted returns the newest completed descriptor of the
// given kind, or nil if none exists.
func (l *Ledger) MostRecentCompleted(kind Kind) (*ArtifactDescriptor, error) {
	entries, err := l.Query(kind)
	if err != nil {
		return nil, err
	}

	for i := range entries {
		if entries[i].Status == StatusCompleted {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// Get returns the descriptor with the given id, or nil.
func (l *Ledger) Get(id string) (*ArtifactDescriptor, error) {
	entries, err := l.Query("")
	if err != nil {
		return nil, err
	}

	for i := range entries {
		if entries[i].ID == id {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// Remove rewrites the ledger excluding the given artifact ids. Used
// exclusively by the retention sweep.
func (l *Ledger) Remove(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.readLocked()
	if err != nil {
		return err
	}

	kept := entries[:0]
	for _, entry := range entries {
		if !drop[entry.ID] {
			kept = append(kept, entry)
		}
	}

	return l.writeLocked(kept)
}

func (l *Ledger) readLocked() ([]ArtifactDescriptor, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	if len(data) == 0 {
		return nil, nil
	}

	var entries []ArtifactDescriptor
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse ledger: %w", err)
	}

	return entries, nil
}

func (l *Ledger) writeLocked(entries []ArtifactDescriptor) error {
	if entries == nil {
		entries = []ArtifactDescriptor{}
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize ledger write: %w", err)
	}

	return nil
}
