package ledger

import (
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()

	l, err := New(filepath.Join(t.TempDir(), "metadata.json"))
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}
	return l
}

func descriptor(id string, kind Kind, status string, createdAt time.Time) *ArtifactDescriptor {
	return &ArtifactDescriptor{
		ID:        id,
		Kind:      kind,
		CreatedAt: createdAt,
		Status:    status,
		Checksum:  "deadbeef",
	}
}

func TestAppendAndQueryNewestFirst(t *testing.T) {
	l := newTestLedger(t)
	now := time.Now().UTC()

	if err := l.Append(descriptor("a", KindFull, StatusCompleted, now.Add(-2*time.Hour))); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := l.Append(descriptor("b", KindIncremental, StatusCompleted, now.Add(-time.Hour))); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := l.Append(descriptor("c", KindFull, StatusCompleted, now)); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	all, err := l.Query("")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != "c" || all[2].ID != "a" {
		t.Fatalf("expected newest-first ordering, got %+v", all)
	}

	fulls, err := l.Query(KindFull)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(fulls) != 2 {
		t.Fatalf("expected 2 full artifacts, got %d", len(fulls))
	}
}

func TestAppendRejectsDuplicateID(t *testing.T) {
	l := newTestLedger(t)
	now := time.Now().UTC()

	if err := l.Append(descriptor("dup", KindFull, StatusCompleted, now)); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := l.Append(descriptor("dup", KindFull, StatusCompleted, now)); err == nil {
		t.Fatalf("expected duplicate id to be rejected")
	}
}

func TestMostRecentCompletedSkipsFailed(t *testing.T) {
	l := newTestLedger(t)
	now := time.Now().UTC()

	if err := l.Append(descriptor("old", KindIncremental, StatusCompleted, now.Add(-2*time.Hour))); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := l.Append(descriptor("new-failed", KindIncremental, StatusFailed, now)); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	recent, err := l.MostRecentCompleted(KindIncremental)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if recent == nil || recent.ID != "old" {
		t.Fatalf("expected most recent completed to be 'old', got %+v", recent)
	}

	none, err := l.MostRecentCompleted(KindLedgerSync)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if none != nil {
		t.Fatalf("expected nil for kind with no entries")
	}
}

func TestRemove(t *testing.T) {
	l := newTestLedger(t)
	now := time.Now().UTC()

	for _, id := range []string{"a", "b", "c"} {
		if err := l.Append(descriptor(id, KindIncremental, StatusCompleted, now)); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	if err := l.Remove([]string{"a", "c"}); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	remaining, err := l.Query("")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != "b" {
		t.Fatalf("expected only 'b' to remain, got %+v", remaining)
	}
}

func TestUpdateFlipsStatus(t *testing.T) {
	l := newTestLedger(t)
	now := time.Now().UTC()

	d := descriptor("x", KindFull, StatusCompleted, now)
	if err := l.Append(d); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	d.Status = StatusCorrupted
	if err := l.Update(d); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := l.Get("x")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil || got.Status != StatusCorrupted {
		t.Fatalf("expected corrupted status, got %+v", got)
	}

	if err := l.Update(descriptor("missing", KindFull, StatusFailed, now)); err == nil {
		t.Fatalf("expected update of missing descriptor to fail")
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.json")

	l, err := New(path)
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}
	if err := l.Append(descriptor("persisted", KindFull, StatusCompleted, time.Now().UTC())); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("failed to reopen ledger: %v", err)
	}
	got, err := reopened.Get("persisted")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil {
		t.Fatalf("expected entry to survive reopen")
	}
}

func TestConcurrentAppends(t *testing.T) {
	l := newTestLedger(t)
	now := time.Now().UTC()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n))
			if err := l.Append(descriptor(id, KindIncremental, StatusCompleted, now)); err != nil {
				t.Errorf("append failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	entries, err := l.Query("")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(entries) != 8 {
		t.Fatalf("expected 8 entries, got %d", len(entries))
	}
}
