// Package pgstore is the Postgres Store backend. Each collection is a table of JSONB documents
// keyed by storage identity; criteria are evaluated with the jsonb operators.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"github.com/rs/zerolog/log"

	"pride-store/internal/criteria"
	"pride-store/internal/globalconst"
	"pride-store/internal/store"
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/pride?sslmode=disable"

	// uniqueViolation is the SQLSTATE of a unique constraint failure.
	uniqueViolation = "23505"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex

	namePattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	fieldPattern = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)
)

var (
	_ store.Store   = (*Store)(nil)
	_ store.Indexer = (*Store)(nil)
)

// collectionInfo is what the store knows about a collection it has touched since it was opened.
type collectionInfo struct {
	indexes []string
	uniques [][]string
}

// Store keeps collections in one Postgres schema.
type Store struct {
	db *sql.DB

	mu     sync.Mutex
	tables map[string]*collectionInfo
}

// Open connects to the database at dsn, falling back to a local default.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	log.Info().Msg("Postgres store opened")
	return &Store{db: db, tables: make(map[string]*collectionInfo)}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

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
	if _, ok := s.tables[collection]; ok {
		return t, nil
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+t+` (
		id TEXT PRIMARY KEY,
		doc JSONB NOT NULL
	)`); err != nil {
		return "", fmt.Errorf("create table %s: %w", collection, err)
	}
	s.tables[collection] = &collectionInfo{}
	return t, nil
}

// Find implements store.Store.
func (s *Store) Find(ctx context.Context, collection string, c criteria.Criterion, sort []store.SortField, skip, limit int) ([]store.Document, error) {
	t, err := s.table(ctx, collection)
	if err != nil {
		return nil, err
	}
	w := &where{}
	if err := w.node(c); err != nil {
		return nil, err
	}
	order := w.orderBy(append(append([]store.SortField(nil), sort...), store.SortField{Field: globalconst.ID}))
	var lim any
	if limit >= 0 {
		lim = limit
	}
	q := `SELECT doc FROM ` + t + ` WHERE ` + w.sql.String() + order +
		` LIMIT ` + w.arg(lim) + ` OFFSET ` + w.arg(max(skip, 0))

	rows, err := s.db.QueryContext(ctx, q, w.args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", collection, err)
	}
	defer func() { _ = rows.Close() }()

	var docs []store.Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		doc, err := store.DecodeDocument(raw)
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
	if _, err := s.db.ExecContext(ctx, `INSERT INTO `+t+` (id, doc) VALUES ($1, $2::jsonb)`, id.String(), string(raw)); err != nil {
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
	res, err := s.db.ExecContext(ctx, `UPDATE `+t+` SET doc = $1::jsonb WHERE id = $2`, string(raw), id)
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

// indexExpr is the indexed expression of one field. JSON null is folded into SQL NULL so that,
// as in the other backends, documents without a value are not constrained by unique indexes.
// Index expressions cannot take bound parameters, so field names are restricted to identifier
// characters.
func indexExpr(field string) (string, error) {
	if !fieldPattern.MatchString(field) {
		return "", fmt.Errorf("field %q cannot be indexed", field)
	}
	return `(nullif(doc -> '` + field + `', 'null'::jsonb))`, nil
}

func indexName(prefix, collection string, fields []string) string {
	return quote(prefix + "_" + collection + "_" + strings.ReplaceAll(strings.Join(fields, "_"), ".", "_"))
}

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
	if _, err := s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS `+indexName("ix", collection, []string{field})+` ON `+t+` (`+expr+`)`); err != nil {
		return fmt.Errorf("create index on %s.%s: %w", collection, field, err)
	}
	s.remember(collection, func(info *collectionInfo) {
		for _, f := range info.indexes {
			if f == field {
				return
			}
		}
		info.indexes = append(info.indexes, field)
	})
	return nil
}

// EnsureUniqueIndex implements store.Indexer.
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
	if _, err := s.db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS `+indexName("ux", collection, fields)+` ON `+t+` (`+strings.Join(exprs, ", ")+`)`); err != nil {
		return mapError(err)
	}
	s.remember(collection, func(info *collectionInfo) {
		key := strings.Join(fields, "\x00")
		for _, u := range info.uniques {
			if strings.Join(u, "\x00") == key {
				return
			}
		}
		info.uniques = append(info.uniques, append([]string(nil), fields...))
	})
	return nil
}

func (s *Store) remember(collection string, update func(*collectionInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.tables[collection]
	if !ok {
		info = &collectionInfo{}
		s.tables[collection] = info
	}
	update(info)
}

// Export copies every collection opened since the store was, with its index definitions, in the
// snapshot form the persistence package writes to disk. Each collection is read in its own
// repeatable-read transaction.
func (s *Store) Export(ctx context.Context) (map[string]store.CollectionSnapshot, error) {
	s.mu.Lock()
	names := make([]string, 0, len(s.tables))
	infos := make(map[string]collectionInfo, len(s.tables))
	for name, info := range s.tables {
		names = append(names, name)
		infos[name] = collectionInfo{
			indexes: append([]string(nil), info.indexes...),
			uniques: append([][]string(nil), info.uniques...),
		}
	}
	s.mu.Unlock()
	slices.Sort(names)

	out := make(map[string]store.CollectionSnapshot, len(names))
	for _, name := range names {
		data, err := s.exportRows(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = store.CollectionSnapshot{
			Indexes: infos[name].indexes,
			Uniques: infos[name].uniques,
			Data:    data,
		}
	}
	return out, nil
}

func (s *Store) exportRows(ctx context.Context, collection string) (map[string][]byte, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", collection, err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT id, doc FROM `+quote(collection))
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", collection, err)
	}
	defer func() { _ = rows.Close() }()
	data := make(map[string][]byte)
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		data[id] = raw
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("export %s: %w", collection, err)
	}
	return data, tx.Commit()
}

// Import replaces the content of a collection with snap in one transaction, then recreates the
// indexes the snapshot names.
func (s *Store) Import(ctx context.Context, collection string, snap store.CollectionSnapshot) error {
	t, err := s.table(ctx, collection)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("import %s: %w", collection, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+t); err != nil {
		return fmt.Errorf("import %s: %w", collection, err)
	}
	for id, raw := range snap.Data {
		if _, err := tx.ExecContext(ctx, `INSERT INTO `+t+` (id, doc) VALUES ($1, $2::jsonb)`, id, string(raw)); err != nil {
			return fmt.Errorf("import %s/%s: %w", collection, id, mapError(err))
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("import %s: %w", collection, err)
	}

	for _, f := range snap.Indexes {
		if err := s.EnsureIndex(ctx, collection, f); err != nil {
			return err
		}
	}
	for _, fields := range snap.Uniques {
		if err := s.EnsureUniqueIndex(ctx, collection, fields); err != nil {
			return err
		}
	}
	log.Info().Str("collection", collection).Int("documents", len(snap.Data)).Msg("Collection imported")
	return nil
}

// mapError turns unique violations into store.ErrDuplicateKey.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %v", store.ErrDuplicateKey, err)
	}
	return err
}
