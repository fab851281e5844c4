package persistence

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	gc "pride-store/internal/globalconst"
	"pride-store/internal/store"
)

// ErrBackupNotFound is returned when the named backup does not exist.
var ErrBackupNotFound = errors.New("backup not found")

func backupPath(backupsDir, name string) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("%w: %q", ErrBackupNotFound, name)
	}
	path := filepath.Join(backupsDir, name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %q", ErrBackupNotFound, name)
		}
		return "", err
	}
	return path, nil
}

// ReadBackup reads and verifies every collection of the named backup under backupsDir.
func ReadBackup(backupsDir, name string) (map[string]store.CollectionSnapshot, error) {
	path, err := backupPath(backupsDir, name)
	if err != nil {
		return nil, err
	}
	names, err := ListCollectionFiles(path)
	if err != nil {
		return nil, err
	}
	snaps := make(map[string]store.CollectionSnapshot, len(names))
	for _, col := range names {
		snap, err := ReadCollectionFile(filepath.Join(collectionsDir(path), col+gc.DBFileExtension))
		if err != nil {
			return nil, fmt.Errorf("failed to restore collection '%s': %w", col, err)
		}
		snaps[col] = snap
	}
	return snaps, nil
}

// Restore replaces the content of m with the named backup under backupsDir. The backup is read and
// verified in full before anything in memory changes. Collections absent from the backup are
// emptied.
func Restore(backupsDir, name string, m *store.CollectionManager) error {
	log.Info().Str("backup", name).Msg("Starting restore")
	snaps, err := ReadBackup(backupsDir, name)
	if err != nil {
		return err
	}

	for _, col := range m.ListCollections() {
		if _, ok := snaps[col]; !ok {
			if err := m.GetCollection(col).Clear(nil); err != nil {
				return err
			}
		}
	}
	total := 0
	for col, snap := range snaps {
		m.GetCollection(col).Restore(snap)
		total += len(snap.Data)
	}
	log.Info().Str("backup", name).Int("collections", len(snaps)).Int("documents", total).Msg("Restore completed")
	return nil
}

// RestoreSQLite copies the database file of the named backup over dest. The database must not be
// open while this runs.
func RestoreSQLite(backupsDir, name, dest string) error {
	path, err := backupPath(backupsDir, name)
	if err != nil {
		return err
	}
	src, err := os.Open(filepath.Join(path, gc.SQLiteBackupFile))
	if err != nil {
		return fmt.Errorf("backup %q has no database file: %w", name, err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if err := writeFileAtomic(dest, func(w io.Writer) error {
		_, err := io.Copy(w, src)
		return err
	}); err != nil {
		return fmt.Errorf("failed to restore database: %w", err)
	}
	// Stale WAL files would be replayed over the restored copy.
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(dest + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	log.Info().Str("backup", name).Str("path", dest).Msg("Database restored")
	return nil
}
