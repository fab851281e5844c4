package persistence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	gc "pride-store/internal/globalconst"
	"pride-store/internal/metrics"
	"pride-store/internal/store"
)

// backupTimeLayout names backup directories; it sorts chronologically.
const backupTimeLayout = "2006-01-02_15-04-05"

// ErrBackupRunning is returned when a backup is requested while another one runs.
var ErrBackupRunning = errors.New("backup already in progress")

// Source writes a consistent copy of the data into dir.
type Source interface {
	BackupTo(ctx context.Context, dir string) error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, dir string) error

// BackupTo implements Source.
func (f SourceFunc) BackupTo(ctx context.Context, dir string) error { return f(ctx, dir) }

// CollectionsSource backs up the collections of a memory store.
func CollectionsSource(m *store.CollectionManager) Source {
	return SourceFunc(func(ctx context.Context, dir string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return SaveCollections(dir, m)
	})
}

// Uploader ships a finished backup directory off-site.
type Uploader interface {
	Upload(ctx context.Context, name, dir string) error
}

// BackupOptions configures a BackupManager.
type BackupOptions struct {
	// Dir is the root holding one sub-directory per backup.
	Dir       string
	Interval  time.Duration
	Retention time.Duration
	// Uploader is optional.
	Uploader Uploader
	Metrics  *metrics.Metrics
}

// BackupManager takes timestamped backups, verifies them and prunes old ones.
type BackupManager struct {
	source Source
	opts   BackupOptions

	mu         sync.RWMutex
	lastBackup time.Time
	running    bool

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewBackupManager creates a manager backing up source.
func NewBackupManager(source Source, opts BackupOptions) *BackupManager {
	if opts.Dir == "" {
		opts.Dir = gc.BackupsDirName
	}
	return &BackupManager{source: source, opts: opts}
}

// Start runs periodic backups in the background until Stop. A non-positive interval disables them.
func (bm *BackupManager) Start() {
	if bm.opts.Interval <= 0 {
		log.Info().Msg("Scheduled backups are disabled")
		return
	}
	if err := os.MkdirAll(bm.opts.Dir, 0o755); err != nil {
		log.Error().Err(err).Str("path", bm.opts.Dir).Msg("Failed to create backup directory")
		return
	}
	log.Info().Dur("interval", bm.opts.Interval).Dur("retention", bm.opts.Retention).Msg("Backup manager starting")

	bm.stopChan = make(chan struct{})
	bm.wg.Add(1)
	go func() {
		defer bm.wg.Done()
		ticker := time.NewTicker(bm.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := bm.PerformBackup(context.Background()); err != nil {
					log.Error().Err(err).Msg("Periodic backup failed")
				}
			case <-bm.stopChan:
				log.Info().Msg("Backup manager stopped")
				return
			}
		}
	}()
}

// Stop ends the schedule and waits for it to exit.
func (bm *BackupManager) Stop() {
	if bm.stopChan == nil {
		return
	}
	close(bm.stopChan)
	bm.wg.Wait()
	bm.stopChan = nil
}

// PerformBackup writes a new backup directory and returns its name.
func (bm *BackupManager) PerformBackup(ctx context.Context) (name string, err error) {
	bm.mu.Lock()
	if bm.running {
		bm.mu.Unlock()
		return "", ErrBackupRunning
	}
	bm.running = true
	bm.mu.Unlock()
	defer func() {
		bm.mu.Lock()
		bm.running = false
		if err == nil {
			bm.lastBackup = time.Now()
		}
		bm.mu.Unlock()
		bm.opts.Metrics.RecordBackup(err)
	}()

	name, path, err := bm.newBackupDir()
	if err != nil {
		return "", err
	}
	log.Info().Str("path", path).Msg("Starting new backup")

	if err := bm.source.BackupTo(ctx, path); err != nil {
		os.RemoveAll(path)
		return "", fmt.Errorf("backup %s: %w", name, err)
	}
	if err := VerifyBackup(path); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Backup verification failed")
		return "", fmt.Errorf("backup verification failed: %w", err)
	}
	if bm.opts.Uploader != nil {
		if err := bm.opts.Uploader.Upload(ctx, name, path); err != nil {
			return "", fmt.Errorf("upload backup %s: %w", name, err)
		}
	}

	if n := bm.cleanOldBackups(time.Now()); n > 0 {
		log.Info().Int("deleted_count", n).Msg("Backup cleanup finished")
	}
	log.Info().Str("path", path).Msg("Backup completed")
	return name, nil
}

// newBackupDir creates a directory named after the current second. Backups within the same second
// get a numeric suffix.
func (bm *BackupManager) newBackupDir() (string, string, error) {
	if err := os.MkdirAll(bm.opts.Dir, 0o755); err != nil {
		return "", "", fmt.Errorf("error creating backup root: %w", err)
	}
	base := time.Now().Format(backupTimeLayout)
	name := base
	for i := 1; ; i++ {
		path := filepath.Join(bm.opts.Dir, name)
		err := os.Mkdir(path, 0o755)
		if err == nil {
			return name, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", "", fmt.Errorf("error creating backup directory: %w", err)
		}
		name = fmt.Sprintf("%s-%d", base, i)
	}
}

// VerifyBackup checks that a backup directory holds readable data: every collection file must
// parse, and no file may be empty.
func VerifyBackup(path string) error {
	found := 0
	err := filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		found++
		if strings.HasSuffix(p, gc.DBFileExtension) {
			if _, err := ReadCollectionFile(p); err != nil {
				return err
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() == 0 {
			return fmt.Errorf("backup file '%s' is empty", p)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if found == 0 {
		// An empty store writes an empty collections directory, which is a valid backup.
		if _, err := os.Stat(collectionsDir(path)); err != nil {
			return fmt.Errorf("backup '%s' holds no data", path)
		}
	}
	return nil
}

// cleanOldBackups removes backups older than the retention period and returns how many it removed.
func (bm *BackupManager) cleanOldBackups(now time.Time) int {
	if bm.opts.Retention <= 0 {
		return 0
	}
	cutoff := now.Add(-bm.opts.Retention)
	entries, err := os.ReadDir(bm.opts.Dir)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read backup directory for cleanup")
		return 0
	}
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(bm.opts.Dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Error().Err(err).Str("path", path).Msg("Failed to delete old backup")
			continue
		}
		log.Info().Str("path", path).Msg("Old backup deleted")
		removed++
	}
	return removed
}

// ListBackups returns the backup names, oldest first.
func (bm *BackupManager) ListBackups() ([]string, error) {
	entries, err := os.ReadDir(bm.opts.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// LastBackupTime returns the time of the last successful backup.
func (bm *BackupManager) LastBackupTime() time.Time {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	return bm.lastBackup
}
