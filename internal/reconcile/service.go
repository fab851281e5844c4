// Package reconcile implements natural-key upserts: a record is stored once per natural key, and
// re-importing it replaces the stored content instead of adding a duplicate.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"pride-store/internal/criteria"
	"pride-store/internal/globalconst"
	"pride-store/internal/metrics"
	"pride-store/internal/query"
	"pride-store/internal/store"
)

// DefaultRetries is used when a Service is configured with no retries.
const DefaultRetries = 3

// Service performs upserts and bulk deletes against one store.
//
// Lookup and write are two separate store calls. Without a unique natural-key index two concurrent
// upserts of a new key can both insert; with one, the loser sees ErrDuplicateKey and retries as an
// update.
type Service struct {
	store        store.Store
	executor     *query.Executor
	writeTimeout time.Duration
	retries      int
	metrics      *metrics.Metrics
}

// Options configures a Service.
type Options struct {
	WriteTimeout time.Duration
	Retries      int
	Metrics      *metrics.Metrics
}

// NewService creates a reconciliation service. Lookups go through executor.
func NewService(s store.Store, executor *query.Executor, opts Options) *Service {
	if opts.Retries <= 0 {
		opts.Retries = DefaultRetries
	}
	return &Service{
		store:        s,
		executor:     executor,
		writeTimeout: opts.WriteTimeout,
		retries:      opts.Retries,
		metrics:      opts.Metrics,
	}
}

// KeyOf extracts the natural key of doc.
func KeyOf(doc store.Document, fields []string) (NaturalKey, error) {
	key := NaturalKey{Fields: fields, Values: make([]any, len(fields))}
	for i, f := range fields {
		v, ok := doc[f]
		if !ok || v == nil {
			return key, fmt.Errorf("%w: missing %s", ErrIncompleteNaturalKey, f)
		}
		if s, isString := v.(string); isString && s == "" {
			return key, fmt.Errorf("%w: empty %s", ErrIncompleteNaturalKey, f)
		}
		key.Values[i] = v
	}
	return key, nil
}

// Upsert stores doc as the single record for its natural key and returns the stored document,
// identity included. Fields absent from doc are absent afterwards: the full content is replaced.
func (s *Service) Upsert(ctx context.Context, collection string, keyFields []string, doc store.Document) (store.Document, error) {
	key, err := KeyOf(doc, keyFields)
	if err != nil {
		return nil, err
	}
	match := criteria.KeyMatch(key.Fields, key.Values)

	for attempt := 1; attempt <= s.retries; attempt++ {
		existing, err := s.lookup(ctx, collection, match)
		if err != nil {
			s.metrics.RecordUpsert(collection, metrics.OutcomeError)
			return nil, err
		}

		stored := doc.Clone()
		if existing != "" {
			stored[globalconst.ID] = existing
			err = s.write(ctx, collection, "replace", func(wctx context.Context) error {
				return s.store.Replace(wctx, collection, existing, stored)
			})
			if err == nil {
				s.metrics.RecordUpsert(collection, metrics.OutcomeReplaced)
				return stored, nil
			}
			// A concurrent DeleteAll may remove the record between lookup and replace.
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
		} else {
			delete(stored, globalconst.ID)
			var id string
			err = s.write(ctx, collection, "insert", func(wctx context.Context) error {
				var werr error
				id, werr = s.store.Insert(wctx, collection, stored)
				return werr
			})
			if err == nil {
				stored[globalconst.ID] = id
				s.metrics.RecordUpsert(collection, metrics.OutcomeInserted)
				return stored, nil
			}
		}

		if errors.Is(err, store.ErrDuplicateKey) {
			log.Debug().
				Str("collection", collection).
				Str("key", key.String()).
				Int("attempt", attempt).
				Msg("Natural key taken by a concurrent writer, retrying as update")
			continue
		}

		s.metrics.RecordUpsert(collection, metrics.OutcomeError)
		op := "insert"
		if existing != "" {
			op = "replace"
		}
		return nil, &StorageWriteError{Collection: collection, Key: key, Op: op, Err: err}
	}

	s.metrics.RecordUpsert(collection, metrics.OutcomeConflict)
	log.Warn().Str("collection", collection).Str("key", key.String()).Int("attempts", s.retries).Msg("Upsert gave up after repeated conflicts")
	return nil, &ReconciliationConflictError{Collection: collection, Key: key, Attempts: s.retries}
}

func (s *Service) lookup(ctx context.Context, collection string, match criteria.Criterion) (string, error) {
	page, err := s.executor.Execute(ctx, collection, match, query.PageRequest{Page: 0, Size: 1})
	if err != nil {
		return "", err
	}
	if len(page.Content) == 0 {
		return "", nil
	}
	return page.Content[0].ID(), nil
}

func (s *Service) write(ctx context.Context, collection, op string, fn func(context.Context) error) error {
	wctx, cancel := ctx, context.CancelFunc(func() {})
	if s.writeTimeout > 0 {
		wctx, cancel = context.WithTimeout(ctx, s.writeTimeout)
	}
	defer cancel()

	err := fn(wctx)
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(wctx.Err(), context.DeadlineExceeded)) {
		return &query.StorageTimeoutError{Collection: collection, Op: op, Timeout: s.writeTimeout, Err: err}
	}
	return err
}

// DeleteAll removes every document of the collection.
func (s *Service) DeleteAll(ctx context.Context, collection string) error {
	err := s.write(ctx, collection, "delete_all", func(wctx context.Context) error {
		return s.store.DeleteAll(wctx, collection)
	})
	if err != nil {
		return &StorageWriteError{Collection: collection, Op: "delete_all", Err: err}
	}
	s.metrics.RecordDeleteAll(collection)
	return nil
}
