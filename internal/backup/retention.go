package backup

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yourusername/safety-backup-engine/internal/config"
	"github.com/yourusername/safety-backup-engine/internal/keystore"
	"github.com/yourusername/safety-backup-engine/internal/ledger"
	"github.com/yourusername/safety-backup-engine/internal/sink"
)

// orphanGracePeriod protects artifacts written by an in-flight job
// whose descriptor has not been appended yet.
const orphanGracePeriod = time.Hour

// RetentionEngine expires aged artifacts per policy: delete the
// underlying file first, then prune the ledger record. A failed file
// delete never blocks ledger pruning; a stale ledger entry is preferable
// to a leaked storage reference.
type RetentionEngine struct {
	policy config.RetentionConfig
	meta   *ledger.Ledger
	keys   *keystore.Store
	sinks  []sink.Sink
	root   string

	now func() time.Time
}

// NewRetentionEngine creates the retention engine.
func NewRetentionEngine(policy config.RetentionConfig, meta *ledger.Ledger, keys *keystore.Store, sinks []sink.Sink, root string) *RetentionEngine {
	return &RetentionEngine{
		policy: policy,
		meta:   meta,
		keys:   keys,
		sinks:  sinks,
		root:   root,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Sweep expires ledger entries of the given kind and removes their
// artifacts. Per-entry failures are logged and skipped so one bad entry
// cannot halt the sweep.
func (r *RetentionEngine) Sweep(kind ledger.Kind) error {
	entries, err := r.meta.Query(kind)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRetention, err)
	}

	now := r.now()
	var expired []string
	for _, entry := range entries {
		if !r.isExpired(&entry, now) {
			continue
		}

		log.Printf("[Retention] Expiring %s artifact %s (created %s)",
			entry.Kind, entry.ID, entry.CreatedAt.Format("2006-01-02 15:04:05"))

		r.removeArtifactFiles(&entry)
		expired = append(expired, entry.ID)
	}

	if len(expired) == 0 {
		return nil
	}

	if err := r.meta.Remove(expired); err != nil {
		return fmt.Errorf("%w: failed to prune ledger: %v", ErrRetention, err)
	}

	log.Printf("[Retention] Sweep complete: expired %d %s artifacts", len(expired), kind)
	return nil
}

// isExpired classifies one entry against the retention windows.
func (r *RetentionEngine) isExpired(entry *ledger.ArtifactDescriptor, now time.Time) bool {
	ageDays := now.Sub(entry.CreatedAt).Hours() / 24

	// Anything beyond the monthly window is expired regardless of kind.
	if r.policy.MonthlyMonths > 0 && ageDays > float64(r.policy.MonthlyMonths)*30 {
		return true
	}

	switch entry.Kind {
	case ledger.KindIncremental:
		return r.policy.DailyDays > 0 && ageDays > float64(r.policy.DailyDays)
	case ledger.KindFull:
		return r.policy.WeeklyWeeks > 0 && ageDays > float64(r.policy.WeeklyWeeks)*7
	}

	return false
}

// removeArtifactFiles deletes the artifact from disk, from the sinks it
// was delivered to, and drops its encryption key. Every step tolerates
// absence; failures are logged and never block ledger pruning.
func (r *RetentionEngine) removeArtifactFiles(entry *ledger.ArtifactDescriptor) {
	if err := os.Remove(entry.DestinationPath); err != nil && !os.IsNotExist(err) {
		log.Printf("[Retention] Warning: Failed to delete artifact file for %s: %v", entry.ID, err)
	}

	if len(entry.DeliveredTo) > 0 {
		sink.DeleteFrom(context.Background(), r.sinks, entry.DeliveredTo, entry.DestinationPath)
	}

	if err := r.keys.Delete(entry.ID); err != nil {
		log.Printf("[Retention] Warning: Failed to delete key for %s: %v", entry.ID, err)
	}
}

// SweepOrphans removes artifact files that have no ledger record, the
// leftovers of jobs that failed between artifact write and ledger
// append. Files younger than the grace period are left alone so an
// in-flight job is never raced.
func (r *RetentionEngine) SweepOrphans() {
	known := make(map[string]bool)
	entries, err := r.meta.Query("")
	if err != nil {
		log.Printf("[Retention] Warning: Orphan sweep skipped: %v", err)
		return
	}
	for _, entry := range entries {
		known[entry.ID] = true
	}

	cutoff := r.now().Add(-orphanGracePeriod)
	removed := 0

	for _, kind := range []ledger.Kind{ledger.KindFull, ledger.KindIncremental, ledger.KindLedgerSync, ledger.KindSystemState} {
		dir := filepath.Join(r.root, string(kind))
		files, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		for _, file := range files {
			if file.IsDir() || !strings.HasSuffix(file.Name(), ".bak") {
				continue
			}

			artifactID := strings.TrimSuffix(file.Name(), ".bak")
			if known[artifactID] {
				continue
			}

			info, err := file.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}

			path := filepath.Join(dir, file.Name())
			if err := os.Remove(path); err != nil {
				log.Printf("[Retention] Warning: Failed to remove orphan %s: %v", path, err)
				continue
			}
			if err := r.keys.Delete(artifactID); err != nil {
				log.Printf("[Retention] Warning: Failed to delete orphan key %s: %v", artifactID, err)
			}
			removed++
		}
	}

	if removed > 0 {
		log.Printf("[Retention] Removed %d orphaned artifact files", removed)
	}
}
