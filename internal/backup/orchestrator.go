package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/safety-backup-engine/internal/codec"
	"github.com/yourusername/safety-backup-engine/internal/config"
	"github.com/yourusername/safety-backup-engine/internal/datasource"
	"github.com/yourusername/safety-backup-engine/internal/keystore"
	"github.com/yourusername/safety-backup-engine/internal/ledger"
	"github.com/yourusername/safety-backup-engine/internal/sink"
)

// ErrFullBackupInFlight is returned when a full backup is triggered
// while another full backup is still running. The trigger is dropped,
// not queued.
var ErrFullBackupInFlight = errors.New("full backup already in flight")

const shutdownTimeout = 30 * time.Second

// Engine orchestrates backup jobs: it pulls from the data source,
// encodes artifacts, persists descriptors to the metadata ledger, fans
// out to destination sinks, and runs retention sweeps.
type Engine struct {
	cfg          *config.Config
	source       datasource.Source
	keys         *keystore.Store
	codec        *codec.Codec
	meta         *ledger.Ledger
	sinks        []sink.Sink
	sinkTimeouts []time.Duration
	retention    *RetentionEngine

	jobs *jobTable
}

// StatusReport is the engine view consumed by the presentation layer.
type StatusReport struct {
	ActiveJobs      []JobSnapshot               `json:"active_jobs"`
	RecentArtifacts []ledger.ArtifactDescriptor `json:"recent_artifacts"`
	Health          Health                      `json:"health"`
}

// Health reports the most recent successful run per recurring kind.
type Health struct {
	LastFull        *time.Time `json:"last_full,omitempty"`
	LastIncremental *time.Time `json:"last_incremental,omitempty"`
	LastLedgerSync  *time.Time `json:"last_ledger_sync,omitempty"`
}

// NewEngine creates the orchestrator and prepares the on-disk layout
// under the backup root: one directory per kind, a key directory, and
// the metadata ledger file.
func NewEngine(cfg *config.Config, source datasource.Source) (*Engine, error) {
	root := cfg.Storage.BackupRoot

	for _, kind := range []ledger.Kind{ledger.KindFull, ledger.KindIncremental, ledger.KindLedgerSync, ledger.KindSystemState} {
		if err := os.MkdirAll(filepath.Join(root, string(kind)), 0755); err != nil {
			return nil, fmt.Errorf("failed to create backup directory: %w", err)
		}
	}

	keys, err := keystore.NewStore(filepath.Join(root, "keys"))
	if err != nil {
		return nil, err
	}

	meta, err := ledger.New(filepath.Join(root, "metadata.json"))
	if err != nil {
		return nil, err
	}

	sinks, timeouts, err := sink.BuildAll(cfg.Sinks)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		cfg:          cfg,
		source:       source,
		keys:         keys,
		codec:        codec.New(keys, cfg.Compression, cfg.Encryption),
		meta:         meta,
		sinks:        sinks,
		sinkTimeouts: timeouts,
		jobs:         newJobTable(),
	}
	engine.retention = NewRetentionEngine(cfg.Retention, meta, keys, sinks, root)

	return engine, nil
}

// Ledger exposes the metadata ledger for status queries.
func (e *Engine) Ledger() *ledger.Ledger {
	return e.meta
}

// Retention exposes the retention engine for maintenance runs.
func (e *Engine) Retention() *RetentionEngine {
	return e.retention
}

// TriggerManual runs one backup of the given kind outside the schedule.
func (e *Engine) TriggerManual(kind ledger.Kind) (*ledger.ArtifactDescriptor, error) {
	return e.RunBackup(kind)
}

// RunBackup executes one backup job of the given kind.
func (e *Engine) RunBackup(kind ledger.Kind) (*ledger.ArtifactDescriptor, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown backup kind: %s", kind)
	}

	job, err := e.jobs.start(kind)
	if err != nil {
		return nil, err
	}
	defer e.jobs.finish(job)

	log.Printf("[Orchestrator] Starting %s backup job %s", kind, job.ID())
	started := time.Now()

	artifactID := newArtifactID(kind)
	payload, tables, height, err := e.buildPayload(kind, job)
	if err != nil {
		job.fail(err)
		return nil, err
	}

	encoded, err := e.codec.Encode(payload, artifactID)
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrEncoding, err)
		job.fail(wrapped)
		return nil, wrapped
	}

	artifactPath := filepath.Join(e.cfg.Storage.BackupRoot, string(kind), artifactID+".bak")
	if err := writeFileAtomic(artifactPath, encoded); err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrEncoding, err)
		job.fail(wrapped)
		return nil, wrapped
	}
	job.advance(80)

	sum := sha256.Sum256(encoded)
	descriptor := &ledger.ArtifactDescriptor{
		ID:              artifactID,
		Kind:            kind,
		CreatedAt:       time.Now().UTC(),
		SizeBytes:       int64(len(encoded)),
		Checksum:        hex.EncodeToString(sum[:]),
		Source:          "tourist-safety-platform",
		DestinationPath: artifactPath,
		Status:          ledger.StatusInProgress,
		Tables:          tables,
		LedgerHeight:    height,
	}

	if err := e.meta.Append(descriptor); err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrLedgerWrite, err)
		job.fail(wrapped)
		// The artifact file is orphaned here; SweepOrphans reclaims it later.
		return nil, wrapped
	}
	job.advance(90)

	delivered := sink.FanOut(context.Background(), e.sinks, e.sinkTimeouts, artifactID, artifactPath)
	job.advance(95)

	descriptor.Status = ledger.StatusCompleted
	descriptor.DurationMS = time.Since(started).Milliseconds()
	descriptor.DeliveredTo = delivered
	if err := e.meta.Update(descriptor); err != nil {
		// The in-progress entry stays behind; retention treats it as any
		// other aged record. The artifact itself is intact.
		log.Printf("[Orchestrator] Warning: Failed to finalize descriptor %s: %v", artifactID, err)
	}

	if kind == ledger.KindFull || kind == ledger.KindIncremental {
		if err := e.retention.Sweep(kind); err != nil {
			log.Printf("[Orchestrator] Warning: Retention sweep after %s failed: %v", kind, err)
		}
		e.retention.SweepOrphans()
	}

	job.complete(descriptor)
	log.Printf("[Orchestrator] Backup %s completed: %s (%d bytes, %d sinks)",
		job.ID(), artifactID, descriptor.SizeBytes, len(delivered))

	return descriptor, nil
}

// buildPayload reads source data for the given kind and reports table
// coverage and ledger height where applicable.
func (e *Engine) buildPayload(kind ledger.Kind, job *Job) (codec.Payload, []string, int64, error) {
	switch kind {
	case ledger.KindFull:
		return e.buildFullPayload(job)
	case ledger.KindIncremental:
		return e.buildIncrementalPayload(job)
	case ledger.KindLedgerSync:
		return e.buildLedgerSyncPayload(job)
	case ledger.KindSystemState:
		return e.buildSystemStatePayload(job)
	default:
		return nil, nil, 0, fmt.Errorf("unknown backup kind: %s", kind)
	}
}

func (e *Engine) buildFullPayload(job *Job) (codec.Payload, []string, int64, error) {
	tables, err := e.source.ListLogicalTables()
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%w: %v", ErrSourceRead, err)
	}
	job.advance(10)

	tableData := make(map[string]interface{}, len(tables))
	for i, table := range tables {
		rows, err := e.source.SnapshotTable(table)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("%w: table %s: %v", ErrSourceRead, table, err)
		}
		tableData[table] = rows
		job.advance(10 + (i+1)*60/len(tables))
	}
	job.advance(70)

	state, err := captureSystemState(e.source, e.cfg)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%w: system state: %v", ErrSourceRead, err)
	}
	job.advance(80)

	payload := codec.Payload{
		"kind":         string(ledger.KindFull),
		"tables":       tableData,
		"system_state": state,
	}
	return payload, tables, 0, nil
}

func (e *Engine) buildIncrementalPayload(job *Job) (codec.Payload, []string, int64, error) {
	since := time.Unix(0, 0).UTC()
	if last, err := e.meta.MostRecentCompleted(ledger.KindIncremental); err != nil {
		return nil, nil, 0, fmt.Errorf("%w: %v", ErrSourceRead, err)
	} else if last != nil {
		since = last.CreatedAt
	}

	tables, err := e.source.ListLogicalTables()
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%w: %v", ErrSourceRead, err)
	}
	job.advance(10)

	tableData := make(map[string]interface{})
	var covered []string
	for i, table := range tables {
		rows, err := e.source.TableChangesSince(table, since)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("%w: table %s: %v", ErrSourceRead, table, err)
		}
		// Tables with no changes are omitted from the payload entirely.
		if len(rows) > 0 {
			tableData[table] = rows
			covered = append(covered, table)
		}
		job.advance(10 + (i+1)*60/len(tables))
	}
	job.advance(70)

	payload := codec.Payload{
		"kind":   string(ledger.KindIncremental),
		"since":  since.Format(time.RFC3339Nano),
		"tables": tableData,
	}
	return payload, covered, 0, nil
}

func (e *Engine) buildLedgerSyncPayload(job *Job) (codec.Payload, []string, int64, error) {
	state, err := e.source.SnapshotLedgerState()
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%w: %v", ErrSourceRead, err)
	}
	job.advance(30)

	if err := verifyChainContiguity(state); err != nil {
		return nil, nil, 0, fmt.Errorf("%w: %v", ErrSourceRead, err)
	}
	job.advance(70)

	payload := codec.Payload{
		"kind":           string(ledger.KindLedgerSync),
		"latest_height":  state.LatestHeight,
		"recent_entries": state.RecentEntries,
	}
	return payload, nil, state.LatestHeight, nil
}

func (e *Engine) buildSystemStatePayload(job *Job) (codec.Payload, []string, int64, error) {
	state, err := captureSystemState(e.source, e.cfg)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%w: %v", ErrSourceRead, err)
	}
	job.advance(70)

	payload := codec.Payload{
		"kind":         string(ledger.KindSystemState),
		"system_state": state,
	}
	return payload, nil, 0, nil
}

// verifyChainContiguity checks that entries are height-contiguous and
// each records its parent as the previous height. A gap means the source
// view is inconsistent and no artifact may be written.
func verifyChainContiguity(state *datasource.LedgerState) error {
	entries := state.RecentEntries
	for i, entry := range entries {
		if entry.ParentHeight != entry.Height-1 {
			return fmt.Errorf("chain entry %d records parent %d", entry.Height, entry.ParentHeight)
		}
		if i > 0 && entry.Height != entries[i-1].Height+1 {
			return fmt.Errorf("chain gap between heights %d and %d", entries[i-1].Height, entry.Height)
		}
	}
	if len(entries) > 0 && entries[len(entries)-1].Height != state.LatestHeight {
		return fmt.Errorf("latest height %d does not match newest entry %d",
			state.LatestHeight, entries[len(entries)-1].Height)
	}
	return nil
}

// Restore verifies and decodes a completed artifact. A checksum mismatch
// marks the descriptor corrupted.
func (e *Engine) Restore(artifactID string) (codec.Payload, error) {
	descriptor, err := e.meta.Get(artifactID)
	if err != nil {
		return nil, err
	}
	if descriptor == nil {
		return nil, fmt.Errorf("artifact not found: %s", artifactID)
	}
	if descriptor.Status != ledger.StatusCompleted {
		return nil, fmt.Errorf("artifact is not restorable: status %s", descriptor.Status)
	}

	data, err := os.ReadFile(descriptor.DestinationPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != descriptor.Checksum {
		descriptor.Status = ledger.StatusCorrupted
		if updateErr := e.meta.Update(descriptor); updateErr != nil {
			log.Printf("[Orchestrator] Warning: Failed to mark artifact %s corrupted: %v", artifactID, updateErr)
		}
		return nil, fmt.Errorf("artifact %s failed checksum verification", artifactID)
	}

	return e.codec.Decode(data, artifactID)
}

// Status returns active jobs, the ten most recent artifacts, and
// last-success health per recurring kind.
func (e *Engine) Status() (*StatusReport, error) {
	report := &StatusReport{
		ActiveJobs: e.jobs.active(),
	}

	artifacts, err := e.meta.Query("")
	if err != nil {
		return nil, err
	}

	for _, artifact := range artifacts {
		if len(report.RecentArtifacts) < 10 {
			report.RecentArtifacts = append(report.RecentArtifacts, artifact)
		}
		if artifact.Status != ledger.StatusCompleted {
			continue
		}

		created := artifact.CreatedAt
		switch artifact.Kind {
		case ledger.KindFull:
			if report.Health.LastFull == nil {
				report.Health.LastFull = &created
			}
		case ledger.KindIncremental:
			if report.Health.LastIncremental == nil {
				report.Health.LastIncremental = &created
			}
		case ledger.KindLedgerSync:
			if report.Health.LastLedgerSync == nil {
				report.Health.LastLedgerSync = &created
			}
		}
	}

	return report, nil
}

// WaitForJobs blocks until every job reaches a terminal status or the
// timeout elapses. In-flight encryption and disk writes are never
// force-killed; the wait simply gives them time to finish.
func (e *Engine) WaitForJobs(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(e.jobs.active()) == 0 {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return len(e.jobs.active()) == 0
}

// jobTable owns all Job records behind one mutex, including the
// single-full-in-flight gate.
type jobTable struct {
	mu          sync.Mutex
	jobs        map[string]*Job
	fullRunning bool
}

func newJobTable() *jobTable {
	return &jobTable{jobs: make(map[string]*Job)}
}

func (t *jobTable) start(kind ledger.Kind) (*Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if kind == ledger.KindFull {
		if t.fullRunning {
			return nil, ErrFullBackupInFlight
		}
		t.fullRunning = true
	}

	job := newJob(string(kind)+"-"+uuid.New().String()[:8], kind)
	t.jobs[job.ID()] = job
	return job, nil
}

func (t *jobTable) finish(job *Job) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if job.Kind() == ledger.KindFull {
		t.fullRunning = false
	}
	delete(t.jobs, job.ID())
}

func (t *jobTable) active() []JobSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []JobSnapshot
	for _, job := range t.jobs {
		if !job.terminal() {
			out = append(out, job.Snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func newArtifactID(kind ledger.Kind) string {
	timestamp := time.Now().UTC().Format("20060102T150405Z")
	return fmt.Sprintf("%s-%s-%s", kind, timestamp, uuid.New().String()[:8])
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize artifact: %w", err)
	}
	return nil
}
