package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yourusername/safety-backup-engine/internal/config"
	"github.com/yourusername/safety-backup-engine/internal/keystore"
	"github.com/yourusername/safety-backup-engine/internal/ledger"
)

func newTestRetention(t *testing.T, policy config.RetentionConfig) (*RetentionEngine, *ledger.Ledger, string) {
	t.Helper()

	root := t.TempDir()
	for _, kind := range []ledger.Kind{ledger.KindFull, ledger.KindIncremental, ledger.KindLedgerSync, ledger.KindSystemState} {
		if err := os.MkdirAll(filepath.Join(root, string(kind)), 0755); err != nil {
			t.Fatalf("failed to create kind directory: %v", err)
		}
	}

	meta, err := ledger.New(filepath.Join(root, "metadata.json"))
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}
	keys, err := keystore.NewStore(filepath.Join(root, "keys"))
	if err != nil {
		t.Fatalf("failed to create keystore: %v", err)
	}

	return NewRetentionEngine(policy, meta, keys, nil, root), meta, root
}

func appendArtifact(t *testing.T, meta *ledger.Ledger, root, id string, kind ledger.Kind, createdAt time.Time) string {
	t.Helper()

	path := filepath.Join(root, string(kind), id+".bak")
	if err := os.WriteFile(path, []byte("artifact-bytes"), 0600); err != nil {
		t.Fatalf("failed to write artifact file: %v", err)
	}

	err := meta.Append(&ledger.ArtifactDescriptor{
		ID:              id,
		Kind:            kind,
		CreatedAt:       createdAt,
		SizeBytes:       14,
		DestinationPath: path,
		Status:          ledger.StatusCompleted,
	})
	if err != nil {
		t.Fatalf("failed to append descriptor: %v", err)
	}
	return path
}

func TestSweepExpiresAgedIncrementals(t *testing.T) {
	retention, meta, root := newTestRetention(t, config.RetentionConfig{
		DailyDays:     7,
		WeeklyWeeks:   4,
		MonthlyMonths: 12,
	})

	now := time.Now().UTC()
	retention.now = func() time.Time { return now }

	agedPath := appendArtifact(t, meta, root, "inc-aged", ledger.KindIncremental, now.AddDate(0, 0, -10))
	freshPath := appendArtifact(t, meta, root, "inc-fresh", ledger.KindIncremental, now.AddDate(0, 0, -3))

	if err := retention.Sweep(ledger.KindIncremental); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	if entry, _ := meta.Get("inc-aged"); entry != nil {
		t.Error("aged incremental should be pruned from the ledger")
	}
	if _, err := os.Stat(agedPath); !os.IsNotExist(err) {
		t.Error("aged incremental file should be deleted")
	}

	if entry, _ := meta.Get("inc-fresh"); entry == nil {
		t.Error("fresh incremental must survive the sweep")
	}
	if _, err := os.Stat(freshPath); err != nil {
		t.Errorf("fresh incremental file must survive the sweep: %v", err)
	}
}

func TestSweepFullUsesWeeklyWindow(t *testing.T) {
	retention, meta, root := newTestRetention(t, config.RetentionConfig{
		DailyDays:     7,
		WeeklyWeeks:   4,
		MonthlyMonths: 12,
	})

	now := time.Now().UTC()
	retention.now = func() time.Time { return now }

	// 20 days is past the daily window but inside the 4-week full window.
	appendArtifact(t, meta, root, "full-mid", ledger.KindFull, now.AddDate(0, 0, -20))
	appendArtifact(t, meta, root, "full-old", ledger.KindFull, now.AddDate(0, 0, -30))

	if err := retention.Sweep(ledger.KindFull); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	if entry, _ := meta.Get("full-mid"); entry == nil {
		t.Error("full backup inside the weekly window must survive")
	}
	if entry, _ := meta.Get("full-old"); entry != nil {
		t.Error("full backup past the weekly window should be pruned")
	}
}

func TestSweepMonthlyWindowOverridesKind(t *testing.T) {
	retention, meta, root := newTestRetention(t, config.RetentionConfig{
		MonthlyMonths: 12,
	})

	now := time.Now().UTC()
	retention.now = func() time.Time { return now }

	// System-state artifacts have no kind-specific window; only the
	// monthly ceiling applies.
	appendArtifact(t, meta, root, "sys-kept", ledger.KindSystemState, now.AddDate(0, 0, -300))
	appendArtifact(t, meta, root, "sys-old", ledger.KindSystemState, now.AddDate(0, 0, -400))

	if err := retention.Sweep(ledger.KindSystemState); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	if entry, _ := meta.Get("sys-kept"); entry == nil {
		t.Error("artifact inside the monthly ceiling must survive")
	}
	if entry, _ := meta.Get("sys-old"); entry != nil {
		t.Error("artifact past the monthly ceiling should be pruned")
	}
}

func TestSweepToleratesMissingArtifactFile(t *testing.T) {
	retention, meta, root := newTestRetention(t, config.RetentionConfig{DailyDays: 7})

	now := time.Now().UTC()
	retention.now = func() time.Time { return now }

	path := appendArtifact(t, meta, root, "inc-gone", ledger.KindIncremental, now.AddDate(0, 0, -10))
	if err := os.Remove(path); err != nil {
		t.Fatalf("failed to remove artifact file: %v", err)
	}

	if err := retention.Sweep(ledger.KindIncremental); err != nil {
		t.Fatalf("sweep must tolerate a missing file: %v", err)
	}
	if entry, _ := meta.Get("inc-gone"); entry != nil {
		t.Error("ledger entry must be pruned even when the file is already gone")
	}
}

func TestSweepOrphansRespectsGracePeriod(t *testing.T) {
	retention, meta, root := newTestRetention(t, config.RetentionConfig{DailyDays: 7})

	now := time.Now().UTC()
	tracked := appendArtifact(t, meta, root, "full-tracked", ledger.KindFull, now)

	orphan := filepath.Join(root, string(ledger.KindFull), "full-orphan.bak")
	if err := os.WriteFile(orphan, []byte("stray"), 0600); err != nil {
		t.Fatalf("failed to write orphan file: %v", err)
	}

	// With the clock at real time both files are inside the grace
	// period and must be left alone.
	retention.SweepOrphans()
	if _, err := os.Stat(orphan); err != nil {
		t.Fatalf("orphan inside grace period must survive: %v", err)
	}

	// Past the grace period the orphan goes, the tracked file stays.
	retention.now = func() time.Time { return now.Add(2 * orphanGracePeriod) }
	retention.SweepOrphans()

	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Error("aged orphan should be removed")
	}
	if _, err := os.Stat(tracked); err != nil {
		t.Errorf("tracked artifact must survive orphan sweep: %v", err)
	}
}
