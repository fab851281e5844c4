// Package sqlstore is the SQLite Store backend. Each collection is a table of JSON documents keyed
// by storage identity; criteria are evaluated by SQLite's JSON functions.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"pride-store/internal/criteria"
	"pride-store/internal/globalconst"
	"pride-store/internal/store"
)

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store keeps collections in a single SQLite database.
type Store struct {
	db   *sql.DB
	path string

	mu     sync.Mutex
	tables map[string]bool
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		path = globalconst.SQLiteBackupFile
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers; SQLite allows a single writer anyway.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	log.Info().Str("path", path).Msg("SQLite store opened")
	return &Store{db: db, path: path, tables: make(map[string]bool)}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database path.
func (s *Store) Path() string { return s.path }

// DB exposes the underlying sql.DB for tests and maintenance.
func (s *Store) DB() *sql.DB { return s.db }

func quote(name string) string {
	return `"` + name + `"`
}

// table makes sure the collection table exists and returns its quoted name.
func (s *Store) table(ctx context.Context, collection string) (string, error) {
	if !namePattern.MatchString(collection) {
		return "", fmt.Errorf("%w: %q", store.ErrInvalidCollection, collection)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := quote(collection)
	if s.tables[collection] {
		return t, nil
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+t+` (
		id TEXT PRIMARY KEY,
		doc TEXT NOT NULL
	)`); err != nil {
		return "", fmt.Errorf("create table %s: %w", collection, err)
	}
	s.tables[collection] = true
	return t, nil
}

// Find implements store.Store.
func (s *Store) Find(ctx context.Context, collection string, c criteria.Criterion, sort []store.SortField, skip, limit int) ([]store.Document, error) {
	t, err := s.table(ctx, collection)
	if err != nil {
		return nil, err
	}
	cond, args, err := translate(c)
	if err != nil {
		return nil, err
	}
	order, orderArgs := orderBy(append(append([]store.SortField(nil), sort...), store.SortField{Field: globalconst.ID}))
	args = append(args, orderArgs...)
	if limit < 0 {
		limit = -1
	}
	args = append(args, limit, max(skip, 0))

	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM `+t+` WHERE `+cond+order+` LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", collection, err)
	}
	defer func() { _ = rows.Close() }()

	var docs []store.Document
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		doc, err := store.DecodeDocument([]byte(raw))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select %s: %w", collection, err)
	}
	return docs, nil
}

// Count implements store.Store.
func (s *Store) Count(ctx context.Context, collection string, c criteria.Criterion) (int64, error) {
	t, err := s.table(ctx, collection)
	if err != nil {
		return 0, err
	}
	cond, args, err := translate(c)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+t+` WHERE `+cond, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

// Insert implements store.Store. Identities are UUIDv7, so ascending identity is insertion order.
func (s *Store) Insert(ctx context.Context, collection string, doc store.Document) (string, error) {
	t, err := s.table(ctx, collection)
	if err != nil {
		return "", err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate identity: %w", err)
	}
	stored := doc.Clone()
	stored[globalconst.ID] = id.String()
	raw, err := store.EncodeDocument(stored)
	if err != nil {
		return "", err
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO `+t+`(id, doc) VALUES(?, ?)`, id.String(), string(raw)); err != nil {
		return "", mapError(err)
	}
	return id.String(), nil
}

// Replace implements store.Store.
func (s *Store) Replace(ctx context.Context, collection string, id string, doc store.Document) error {
	t, err := s.table(ctx, collection)
	if err != nil {
		return err
	}
	stored := doc.Clone()
	stored[globalconst.ID] = id
	raw, err := store.EncodeDocument(stored)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE `+t+` SET doc = ? WHERE id = ?`, string(raw), id)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", store.ErrNotFound, collection, id)
	}
	return nil
}

// DeleteAll implements store.Store.
func (s *Store) DeleteAll(ctx context.Context, collection string) error {
	t, err := s.table(ctx, collection)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM `+t); err != nil {
		return fmt.Errorf("delete %s: %w", collection, err)
	}
	log.Info().Str("collection", collection).Msg("All documents deleted")
	return nil
}

// indexExpr is the indexed expression of one field. Expression indexes cannot take bound
// parameters, so field names are restricted to identifier characters.
func indexExpr(field string) (string, error) {
	if !fieldPattern.MatchString(field) {
		return "", fmt.Errorf("field %q cannot be indexed", field)
	}
	return `json_extract(doc, '` + fieldPath(field) + `')`, nil
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

// EnsureIndex implements store.Indexer.
func (s *Store) EnsureIndex(ctx context.Context, collection, field string) error {
	t, err := s.table(ctx, collection)
	if err != nil {
		return err
	}
	expr, err := indexExpr(field)
	if err != nil {
		return err
	}
	name := quote("ix_" + collection + "_" + strings.ReplaceAll(field, ".", "_"))
	if _, err := s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS `+name+` ON `+t+` (`+expr+`)`); err != nil {
		return fmt.Errorf("create index on %s.%s: %w", collection, field, err)
	}
	return nil
}

// EnsureUniqueIndex implements store.Indexer. Documents missing a key field are not constrained,
// since SQLite treats NULLs as distinct.
func (s *Store) EnsureUniqueIndex(ctx context.Context, collection string, fields []string) error {
	t, err := s.table(ctx, collection)
	if err != nil {
		return err
	}
	exprs := make([]string, len(fields))
	for i, f := range fields {
		if exprs[i], err = indexExpr(f); err != nil {
			return err
		}
	}
	name := quote("ux_" + collection + "_" + strings.ReplaceAll(strings.Join(fields, "_"), ".", "_"))
	if _, err := s.db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS `+name+` ON `+t+` (`+strings.Join(exprs, ", ")+`)`); err != nil {
		return mapError(err)
	}
	return nil
}

// SnapshotTo writes a consistent copy of the database to dest.
func (s *Store) SnapshotTo(ctx context.Context, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return fmt.Errorf("create dirs: %w", err)
	}
	if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove old copy: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, dest); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return nil
}

// mapError turns constraint violations into store.ErrDuplicateKey.
func mapError(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", store.ErrDuplicateKey, err)
		}
	}
	return err
}
