package persistence

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"pride-store/internal/metrics"
	"pride-store/internal/store"
)

// Rotator is the part of the write-ahead log a snapshot coordinates with.
type Rotator interface {
	Rotate() error
	DropRotated() error
}

// SnapshotManager writes the memory store to its data directory on a schedule.
type SnapshotManager struct {
	manager  *store.CollectionManager
	dir      string
	interval time.Duration
	wal      Rotator
	metrics  *metrics.Metrics

	mu   sync.Mutex
	quit chan struct{}
	done chan struct{}
}

// NewSnapshotManager creates a manager for the collections of m. wal may be nil when the store is
// not journaled.
func NewSnapshotManager(m *store.CollectionManager, dir string, interval time.Duration, wal Rotator, mt *metrics.Metrics) *SnapshotManager {
	return &SnapshotManager{
		manager:  m,
		dir:      dir,
		interval: interval,
		wal:      wal,
		metrics:  mt,
	}
}

// Snapshot writes every collection. The log is rotated first; the rotated entries are only
// discarded once the files are on disk, so a failed snapshot loses nothing on the next recovery.
func (sm *SnapshotManager) Snapshot() (err error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	defer func() { sm.metrics.RecordSnapshot(err) }()

	start := time.Now()
	if sm.wal != nil {
		if err := sm.wal.Rotate(); err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
	}
	if err := SaveCollections(sm.dir, sm.manager); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if sm.wal != nil {
		if err := sm.wal.DropRotated(); err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
	}
	log.Info().Str("dir", sm.dir).Dur("duration", time.Since(start)).Msg("Snapshot written")
	return nil
}

// Start runs scheduled snapshots in the background until Stop. A non-positive interval disables
// them.
func (sm *SnapshotManager) Start() {
	if sm.interval <= 0 {
		log.Info().Msg("Scheduled snapshots are disabled")
		return
	}
	sm.quit = make(chan struct{})
	sm.done = make(chan struct{})
	log.Info().Dur("interval", sm.interval).Msg("Scheduled snapshots enabled")

	go func() {
		defer close(sm.done)
		ticker := time.NewTicker(sm.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := sm.Snapshot(); err != nil {
					log.Error().Err(err).Msg("Scheduled snapshot failed")
				}
			case <-sm.quit:
				return
			}
		}
	}()
}

// Stop ends the schedule and waits for a running snapshot to finish.
func (sm *SnapshotManager) Stop() {
	if sm.quit == nil {
		return
	}
	close(sm.quit)
	<-sm.done
	sm.quit = nil
}
