// Package wal is the write-ahead log of the in-memory backend. Every write is appended and fsynced
// before it is applied, and replayed on startup on top of the last snapshot.
package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"

	"pride-store/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Entry is one logged mutation, or the error that stopped a replay.
type Entry struct {
	Mutation store.Mutation
	Err      error
}

// WAL appends mutations to a single file. It implements store.Journal.
type WAL struct {
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
	path   string
}

// New opens the log at path for appending, creating it when missing.
func New(path string) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL file: %w", err)
	}
	return &WAL{
		file:   file,
		writer: bufio.NewWriter(file),
		path:   path,
	}, nil
}

// Record appends m and waits until it is on disk.
func (w *WAL) Record(m store.Mutation) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode WAL entry: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// [length of op+payload, uint32 LE][op][payload]
	if err := binary.Write(w.writer, binary.LittleEndian, uint32(1+len(payload))); err != nil {
		return fmt.Errorf("failed to write WAL entry length: %w", err)
	}
	if err := w.writer.WriteByte(byte(m.Op)); err != nil {
		return fmt.Errorf("failed to write WAL op: %w", err)
	}
	if _, err := w.writer.Write(payload); err != nil {
		return fmt.Errorf("failed to write WAL payload: %w", err)
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush WAL writer: %w", err)
	}
	return w.file.Sync()
}

// Close flushes and closes the log file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("failed to flush WAL on close: %w", err)
	}
	return w.file.Close()
}

// Path returns the log file path.
func (w *WAL) Path() string {
	return w.path
}

// RotatedPath is where Rotate moves logged entries until DropRotated discards them.
func (w *WAL) RotatedPath() string {
	return rotatedPath(w.path)
}

func rotatedPath(path string) string {
	return path + ".1"
}

// Rotate starts a fresh log. The entries logged so far move to RotatedPath, appended after any
// entries a failed snapshot left there, so a crash before the next snapshot still replays them.
func (w *WAL) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("failed to flush WAL before rotation: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close current WAL file for rotation: %w", err)
	}
	if err := moveOrAppend(w.path, rotatedPath(w.path)); err != nil {
		return err
	}
	file, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open new WAL file after rotation: %w", err)
	}
	w.file = file
	w.writer.Reset(file)

	log.Info().Str("path", w.path).Msg("WAL file rotated")
	return nil
}

// DropRotated discards the rotated entries once a snapshot holds them.
func (w *WAL) DropRotated() error {
	if err := os.Remove(rotatedPath(w.path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove rotated WAL file: %w", err)
	}
	return nil
}

func moveOrAppend(src, dst string) error {
	if _, err := os.Stat(dst); errors.Is(err, os.ErrNotExist) {
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("failed to move WAL file: %w", err)
		}
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open WAL file for rotation: %w", err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open rotated WAL file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to append to rotated WAL file: %w", err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to sync rotated WAL file: %w", err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("failed to remove old WAL file: %w", err)
	}
	return nil
}

// Replay streams the entries of the log at path. A missing file yields no entries. A torn last
// record, as left by a crash mid-write, ends the replay silently; any other damage is sent as a
// final Entry with Err set.
func Replay(path string) (<-chan Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Info().Str("path", path).Msg("WAL file not found, skipping replay")
			ch := make(chan Entry)
			close(ch)
			return ch, nil
		}
		return nil, fmt.Errorf("failed to open WAL file for replay: %w", err)
	}

	entries := make(chan Entry, 100)
	go func() {
		defer file.Close()
		defer close(entries)

		reader := bufio.NewReader(file)
		count := 0
		for {
			var totalLen uint32
			if err := binary.Read(reader, binary.LittleEndian, &totalLen); err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
					entries <- Entry{Err: fmt.Errorf("read WAL entry length: %w", err)}
				}
				break
			}
			if totalLen == 0 {
				entries <- Entry{Err: fmt.Errorf("empty WAL entry after %d entries", count)}
				break
			}
			data := make([]byte, totalLen)
			if _, err := io.ReadFull(reader, data); err != nil {
				log.Warn().Err(err).Int("entries", count).Msg("Ignoring torn WAL tail")
				break
			}

			var m store.Mutation
			if err := json.Unmarshal(data[1:], &m); err != nil {
				entries <- Entry{Err: fmt.Errorf("decode WAL entry %d: %w", count, err)}
				break
			}
			m.Op = store.MutationOp(data[0])
			entries <- Entry{Mutation: m}
			count++
		}
		log.Info().Str("path", path).Int("entries", count).Msg("WAL replay finished")
	}()
	return entries, nil
}

// Applier is what a replay writes into.
type Applier interface {
	Apply(m store.Mutation) error
}

// Recover replays the rotated entries and then the live log at path into dst.
func Recover(path string, dst Applier) (int, error) {
	total := 0
	for _, p := range []string{rotatedPath(path), path} {
		n, err := ReplayInto(p, dst)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ReplayInto applies every entry of the log at path to dst and returns how many were applied.
func ReplayInto(path string, dst Applier) (int, error) {
	entries, err := Replay(path)
	if err != nil {
		return 0, err
	}
	applied := 0
	var firstErr error
	for e := range entries {
		if firstErr != nil {
			continue
		}
		if e.Err != nil {
			firstErr = e.Err
			continue
		}
		if err := dst.Apply(e.Mutation); err != nil {
			firstErr = fmt.Errorf("apply WAL entry %d (%s on %s): %w", applied, e.Mutation.Op, e.Mutation.Collection, err)
			continue
		}
		applied++
	}
	return applied, firstErr
}
