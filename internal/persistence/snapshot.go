// Package persistence writes the in-memory collections to disk: one binary file per collection,
// periodic snapshots paired with WAL rotation, and timestamped backups.
package persistence

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	gc "pride-store/internal/globalconst"
	"pride-store/internal/store"
)

// Collection file layout, all integers uint32 little endian:
//
//	[index count] ([field len][field])...
//	[unique count] ([field count] ([field len][field])...)...
//	[document count] ([id len][id][doc len][doc])...

// WriteCollectionFile writes snap to path through a temporary file and an atomic rename.
func WriteCollectionFile(path string, snap store.CollectionSnapshot) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		if err := writeStrings(w, snap.Indexes); err != nil {
			return fmt.Errorf("failed to write index header: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(snap.Uniques))); err != nil {
			return fmt.Errorf("failed to write unique count: %w", err)
		}
		for _, fields := range snap.Uniques {
			if err := writeStrings(w, fields); err != nil {
				return fmt.Errorf("failed to write unique fields %v: %w", fields, err)
			}
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(snap.Data))); err != nil {
			return fmt.Errorf("failed to write document count: %w", err)
		}
		for key, value := range snap.Data {
			if err := writeLengthPrefixed(w, []byte(key)); err != nil {
				return fmt.Errorf("failed to write id '%s': %w", key, err)
			}
			if err := writeLengthPrefixed(w, value); err != nil {
				return fmt.Errorf("failed to write document '%s': %w", key, err)
			}
		}
		return nil
	})
}

// ReadCollectionFile reads a file written by WriteCollectionFile. Every document must be a JSON
// object.
func ReadCollectionFile(path string) (store.CollectionSnapshot, error) {
	var snap store.CollectionSnapshot
	file, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer file.Close()
	r := bufio.NewReader(file)

	if snap.Indexes, err = readStrings(r); err != nil {
		return snap, fmt.Errorf("failed to read index header of '%s': %w", path, err)
	}
	var numUniques uint32
	if err := binary.Read(r, binary.LittleEndian, &numUniques); err != nil {
		return snap, fmt.Errorf("failed to read unique count of '%s': %w", path, err)
	}
	for i := 0; i < int(numUniques); i++ {
		fields, err := readStrings(r)
		if err != nil {
			return snap, fmt.Errorf("failed to read unique %d of '%s': %w", i, path, err)
		}
		snap.Uniques = append(snap.Uniques, fields)
	}

	var numEntries uint32
	if err := binary.Read(r, binary.LittleEndian, &numEntries); err != nil {
		return snap, fmt.Errorf("failed to read document count of '%s': %w", path, err)
	}
	snap.Data = make(map[string][]byte, numEntries)
	for i := 0; i < int(numEntries); i++ {
		key, err := readLengthPrefixed(r)
		if err != nil {
			return snap, fmt.Errorf("failed to read id of entry %d in '%s': %w", i, path, err)
		}
		value, err := readLengthPrefixed(r)
		if err != nil {
			return snap, fmt.Errorf("failed to read document '%s' in '%s': %w", key, path, err)
		}
		if _, err := store.DecodeDocument(value); err != nil {
			return snap, fmt.Errorf("document '%s' in '%s': %w", key, path, err)
		}
		snap.Data[string(key)] = value
	}
	return snap, nil
}

func collectionsDir(dir string) string {
	return filepath.Join(dir, gc.CollectionsDirName)
}

// SaveCollections writes every collection of m under dir/collections and removes the files of
// collections that no longer exist.
func SaveCollections(dir string, m *store.CollectionManager) error {
	colDir := collectionsDir(dir)
	if err := os.MkdirAll(colDir, 0o755); err != nil {
		return fmt.Errorf("failed to create collections directory '%s': %w", colDir, err)
	}

	active := make(map[string]bool)
	for _, name := range m.ListCollections() {
		active[name] = true
		snap := m.GetCollection(name).Snapshot()
		path := filepath.Join(colDir, name+gc.DBFileExtension)
		if err := WriteCollectionFile(path, snap); err != nil {
			return fmt.Errorf("failed to save collection '%s': %w", name, err)
		}
		log.Debug().Str("collection", name).Int("documents", len(snap.Data)).Int("indexes", len(snap.Indexes)).Msg("Collection saved")
	}

	names, err := ListCollectionFiles(dir)
	if err != nil {
		return err
	}
	for _, name := range names {
		if active[name] {
			continue
		}
		path := filepath.Join(colDir, name+gc.DBFileExtension)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", path).Msg("Failed to remove stale collection file")
		}
	}
	return nil
}

// WriteSnapshots writes snaps under dir/collections, one file per collection. It is the export
// path of backends that do not keep their collections in memory.
func WriteSnapshots(dir string, snaps map[string]store.CollectionSnapshot) error {
	colDir := collectionsDir(dir)
	if err := os.MkdirAll(colDir, 0o755); err != nil {
		return fmt.Errorf("failed to create collections directory '%s': %w", colDir, err)
	}
	for name, snap := range snaps {
		if err := WriteCollectionFile(filepath.Join(colDir, name+gc.DBFileExtension), snap); err != nil {
			return fmt.Errorf("failed to save collection '%s': %w", name, err)
		}
	}
	return nil
}

// ListCollectionFiles returns the names of the collections saved under dir.
func ListCollectionFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(collectionsDir(dir), "*"+gc.DBFileExtension))
	if err != nil {
		return nil, fmt.Errorf("failed to list collection files: %w", err)
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, strings.TrimSuffix(filepath.Base(f), gc.DBFileExtension))
	}
	return names, nil
}

// LoadCollections loads every collection saved under dir into m. A missing directory loads
// nothing. A damaged file fails the whole load.
func LoadCollections(dir string, m *store.CollectionManager) (int, error) {
	names, err := ListCollectionFiles(dir)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, name := range names {
		snap, err := ReadCollectionFile(filepath.Join(collectionsDir(dir), name+gc.DBFileExtension))
		if err != nil {
			return total, fmt.Errorf("failed to load collection '%s': %w", name, err)
		}
		m.GetCollection(name).Restore(snap)
		total += len(snap.Data)
		log.Info().Str("collection", name).Int("documents", len(snap.Data)).Msg("Collection loaded")
	}
	return total, nil
}

// writeFileAtomic writes through path+".tmp", syncs, and renames over path.
func writeFileAtomic(path string, writeFunc func(io.Writer) error) error {
	tempPath := path + gc.TempFileSuffix
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	w := bufio.NewWriter(file)
	if err := writeFunc(w); err != nil {
		file.Close()
		os.Remove(tempPath)
		return err
	}
	if err := w.Flush(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("error flushing data: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("error syncing data: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("error closing file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("error renaming file: %w", err)
	}
	return nil
}

func writeStrings(w io.Writer, values []string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(values))); err != nil {
		return err
	}
	for _, v := range values {
		if err := writeLengthPrefixed(w, []byte(v)); err != nil {
			return err
		}
	}
	return nil
}

func readStrings(r io.Reader) ([]string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		b, err := readLengthPrefixed(r)
		if err != nil {
			return nil, err
		}
		out[i] = string(b)
	}
	return out, nil
}

func writeLengthPrefixed(w io.Writer, data []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// maxEntryLen bounds a single length-prefixed entry so a corrupt header cannot force a huge
// allocation.
const maxEntryLen = 256 << 20

func readLengthPrefixed(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, err
	}
	if length > maxEntryLen {
		return nil, fmt.Errorf("entry length %d exceeds limit", length)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
