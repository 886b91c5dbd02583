package sink

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/yourusername/safety-backup-engine/internal/config"
)

// Sink is one delivery destination for finished backup artifacts. Each
// sink is attempted independently; a failing sink never blocks the
// others.
type Sink interface {
	// ID returns the configured sink identifier.
	ID() string

	// Type returns the sink type identifier.
	Type() string

	// Priority returns the delivery order; lower delivers first.
	Priority() int

	// Deliver uploads the artifact file at sourcePath. The remote key is
	// derived from the file's base name.
	Deliver(ctx context.Context, sourcePath string) error

	// Delete removes a previously delivered artifact, tolerating absence.
	Delete(ctx context.Context, filename string) error
}

// New creates a sink from its configuration.
func New(cfg config.SinkConfig) (Sink, error) {
	switch cfg.Type {
	case "local":
		return NewLocalSink(cfg), nil
	case "object-storage", "blob-storage":
		return NewS3Sink(cfg)
	case "ftp":
		return NewSFTPSink(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported sink type: %s", cfg.Type)
	}
}

// BuildAll creates sinks for every enabled configuration entry, sorted
// by ascending priority. Disabled entries are skipped entirely.
func BuildAll(configs []config.SinkConfig) ([]Sink, []time.Duration, error) {
	type entry struct {
		sink    Sink
		timeout time.Duration
	}

	var entries []entry
	for i := range configs {
		cfg := configs[i]
		if !cfg.Enabled {
			continue
		}

		s, err := New(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("sink %s: %w", cfg.ID, err)
		}
		entries = append(entries, entry{sink: s, timeout: cfg.Timeout()})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].sink.Priority() < entries[j].sink.Priority()
	})

	sinks := make([]Sink, len(entries))
	timeouts := make([]time.Duration, len(entries))
	for i, e := range entries {
		sinks[i] = e.sink
		timeouts[i] = e.timeout
	}
	return sinks, timeouts, nil
}

// FanOut delivers the artifact to every sink, in priority order for
// dispatch but concurrently executed, each under its own timeout. It
// returns the ids of sinks that succeeded; failures are logged and
// isolated.
func FanOut(ctx context.Context, sinks []Sink, timeouts []time.Duration, artifactID, sourcePath string) []string {
	if len(sinks) == 0 {
		return nil
	}

	results := make([]bool, len(sinks))

	var wg sync.WaitGroup
	for i := range sinks {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			s := sinks[idx]
			deliverCtx, cancel := context.WithTimeout(ctx, timeouts[idx])
			defer cancel()

			if err := s.Deliver(deliverCtx, sourcePath); err != nil {
				log.Printf("[SinkFanOut] Delivery failed: sink=%s artifact=%s: %v", s.ID(), artifactID, err)
				return
			}
			results[idx] = true
		}(i)
	}
	wg.Wait()

	var delivered []string
	for i, ok := range results {
		if ok {
			delivered = append(delivered, sinks[i].ID())
		}
	}
	return delivered
}

// DeleteFrom removes an artifact from the named sinks, best effort.
func DeleteFrom(ctx context.Context, sinks []Sink, sinkIDs []string, artifactPath string) {
	wanted := make(map[string]bool, len(sinkIDs))
	for _, id := range sinkIDs {
		wanted[id] = true
	}

	filename := filepath.Base(artifactPath)
	for _, s := range sinks {
		if !wanted[s.ID()] {
			continue
		}
		if err := s.Delete(ctx, filename); err != nil {
			log.Printf("[SinkFanOut] Warning: Failed to delete %s from sink %s: %v", filename, s.ID(), err)
		}
	}
}
