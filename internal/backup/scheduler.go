package backup

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/yourusername/safety-backup-engine/internal/config"
	"github.com/yourusername/safety-backup-engine/internal/ledger"
)

// Scheduler owns the recurring triggers for full, incremental, and
// ledger-sync backups. Each firing dispatches one asynchronous job
// execution; the trigger goroutines themselves never block on a backup.
type Scheduler struct {
	engine *Engine
	runner *cron.Cron

	mu     sync.Mutex
	paused bool
}

// NewScheduler wires cron entries for every configured schedule
// expression. Empty expressions disable the corresponding kind.
func NewScheduler(engine *Engine, schedules config.ScheduleConfig) (*Scheduler, error) {
	scheduler := &Scheduler{
		engine: engine,
		runner: cron.New(cron.WithParser(cron.NewParser(
			cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		))),
	}

	entries := []struct {
		kind ledger.Kind
		expr string
	}{
		{ledger.KindFull, schedules.Full},
		{ledger.KindIncremental, schedules.Incremental},
		{ledger.KindLedgerSync, schedules.LedgerSync},
	}

	for _, entry := range entries {
		if entry.expr == "" {
			continue
		}

		kind := entry.kind
		if _, err := scheduler.runner.AddFunc(entry.expr, func() {
			scheduler.fire(kind)
		}); err != nil {
			return nil, fmt.Errorf("invalid %s schedule %q: %w", entry.kind, entry.expr, err)
		}
	}

	return scheduler, nil
}

// Start begins firing triggers.
func (s *Scheduler) Start() {
	s.runner.Start()
	log.Printf("[Scheduler] Started recurring backup triggers")
}

// Pause suppresses trigger firings without dropping the cron entries.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	log.Printf("[Scheduler] Schedule paused")
}

// Resume re-enables trigger firings.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	log.Printf("[Scheduler] Schedule resumed")
}

// Paused reports whether firings are currently suppressed.
func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Shutdown stops future firings immediately, then waits for running
// jobs to reach a terminal status, bounded by the shutdown timeout.
// In-flight disk writes are allowed to finish.
func (s *Scheduler) Shutdown() {
	s.runner.Stop()
	log.Printf("[Scheduler] Stopped recurring triggers, waiting for running jobs")

	if !s.engine.WaitForJobs(shutdownTimeout) {
		log.Printf("[Scheduler] Warning: Shutdown timeout elapsed with jobs still running")
	}
}

func (s *Scheduler) fire(kind ledger.Kind) {
	if s.Paused() {
		return
	}

	if _, err := s.engine.RunBackup(kind); err != nil {
		if errors.Is(err, ErrFullBackupInFlight) {
			log.Printf("[Scheduler] Dropped %s trigger: previous full backup still running", kind)
			return
		}
		log.Printf("[Scheduler] Scheduled %s backup failed: %v", kind, err)
	}
}
