package backup

import (
	"testing"

	"github.com/yourusername/safety-backup-engine/internal/config"
	"github.com/yourusername/safety-backup-engine/internal/ledger"
)

func TestNewSchedulerRejectsBadExpression(t *testing.T) {
	engine := newTestEngine(t, seededSource(), nil)

	_, err := NewScheduler(engine, config.ScheduleConfig{Full: "not a cron line"})
	if err == nil {
		t.Fatal("expected invalid schedule to be rejected")
	}
}

func TestSchedulerSkipsEmptyExpressions(t *testing.T) {
	engine := newTestEngine(t, seededSource(), nil)

	if _, err := NewScheduler(engine, config.ScheduleConfig{}); err != nil {
		t.Fatalf("empty schedules must be accepted: %v", err)
	}
}

func TestSchedulerFireDispatchesBackup(t *testing.T) {
	engine := newTestEngine(t, seededSource(), nil)
	scheduler, err := NewScheduler(engine, config.ScheduleConfig{})
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}

	scheduler.fire(ledger.KindIncremental)

	artifacts, err := engine.Ledger().Query(ledger.KindIncremental)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(artifacts) != 1 {
		t.Fatalf("expected one incremental artifact, got %d", len(artifacts))
	}
}

func TestSchedulerPauseSuppressesFirings(t *testing.T) {
	engine := newTestEngine(t, seededSource(), nil)
	scheduler, err := NewScheduler(engine, config.ScheduleConfig{})
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}

	scheduler.Pause()
	scheduler.fire(ledger.KindIncremental)

	artifacts, err := engine.Ledger().Query(ledger.KindIncremental)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(artifacts) != 0 {
		t.Fatalf("paused scheduler must not run backups, got %d artifacts", len(artifacts))
	}

	scheduler.Resume()
	scheduler.fire(ledger.KindIncremental)

	artifacts, err = engine.Ledger().Query(ledger.KindIncremental)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(artifacts) != 1 {
		t.Fatalf("resumed scheduler must run backups, got %d artifacts", len(artifacts))
	}
}

func TestSchedulerShutdownWithIdleEngine(t *testing.T) {
	engine := newTestEngine(t, seededSource(), nil)
	scheduler, err := NewScheduler(engine, config.ScheduleConfig{Incremental: "0 * * * *"})
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}

	scheduler.Start()
	scheduler.Shutdown()
}
