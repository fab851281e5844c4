// Package repository binds the generic query and reconciliation machinery to typed archive entities.
package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"pride-store/internal/criteria"
	"pride-store/internal/filter"
	"pride-store/internal/query"
	"pride-store/internal/reconcile"
	"pride-store/internal/store"
)

// ErrInvalidRecord is wrapped when a document does not fit the schema of its entity.
var ErrInvalidRecord = errors.New("invalid record")

// Entity describes how one record type is stored and searched.
type Entity[T any] struct {
	Name       string
	Collection string
	NaturalKey []string
	Fields     criteria.Fields
	// Indexed lists the attributes that get a secondary index on Setup.
	Indexed []string
	Encode  func(T) store.Document
	Decode  func(store.Document) (T, error)
}

// Options configures a repository.
type Options struct {
	// UniqueNaturalKeys makes Setup create a unique index over the natural key.
	UniqueNaturalKeys bool
	// Workers is the default parallelism of SaveAll.
	Workers int
}

// Repository stores and searches records of one entity.
type Repository[T any] struct {
	entity     Entity[T]
	store      store.Store
	executor   *query.Executor
	reconciler *reconcile.Service
	opts       Options
}

// New creates a repository for entity e.
func New[T any](e Entity[T], s store.Store, executor *query.Executor, reconciler *reconcile.Service, opts Options) *Repository[T] {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Repository[T]{entity: e, store: s, executor: executor, reconciler: reconciler, opts: opts}
}

// Entity returns the entity description.
func (r *Repository[T]) Entity() Entity[T] {
	return r.entity
}

// Setup creates the secondary indexes and, when enabled, the unique natural-key index. It is a
// no-op on stores without index support.
func (r *Repository[T]) Setup(ctx context.Context) error {
	ix, ok := r.store.(store.Indexer)
	if !ok {
		return nil
	}
	for _, field := range r.entity.Indexed {
		if err := ix.EnsureIndex(ctx, r.entity.Collection, field); err != nil {
			return fmt.Errorf("failed to index %s.%s: %w", r.entity.Collection, field, err)
		}
	}
	if r.opts.UniqueNaturalKeys {
		if err := ix.EnsureUniqueIndex(ctx, r.entity.Collection, r.entity.NaturalKey); err != nil {
			return fmt.Errorf("failed to create natural key index on %s: %w", r.entity.Collection, err)
		}
	}
	log.Debug().
		Str("entity", r.entity.Name).
		Strs("indexes", r.entity.Indexed).
		Bool("unique_natural_key", r.opts.UniqueNaturalKeys).
		Msg("Repository ready")
	return nil
}

// Search parses a filter expression and returns one page of matching records.
func (r *Repository[T]) Search(ctx context.Context, expression string, req query.PageRequest) (query.Page[T], error) {
	preds, err := filter.Parse(expression)
	if err != nil {
		return query.Page[T]{}, err
	}
	return r.Filter(ctx, preds, req)
}

// Filter returns one page of the records matching every predicate.
func (r *Repository[T]) Filter(ctx context.Context, preds []filter.Predicate, req query.PageRequest) (query.Page[T], error) {
	c, err := criteria.Build(preds, r.entity.Fields)
	if err != nil {
		return query.Page[T]{}, err
	}
	page, err := r.executor.Execute(ctx, r.entity.Collection, c, req)
	if err != nil {
		return query.Page[T]{}, err
	}
	return query.Map(page, r.decode)
}

// Count returns how many records match a filter expression.
func (r *Repository[T]) Count(ctx context.Context, expression string) (int64, error) {
	preds, err := filter.Parse(expression)
	if err != nil {
		return 0, err
	}
	return r.CountFilter(ctx, preds)
}

// CountFilter returns how many records match every predicate.
func (r *Repository[T]) CountFilter(ctx context.Context, preds []filter.Predicate) (int64, error) {
	c, err := criteria.Build(preds, r.entity.Fields)
	if err != nil {
		return 0, err
	}
	return r.executor.Count(ctx, r.entity.Collection, c)
}

// FindByKey returns the record with the given natural key values, in NaturalKey order.
func (r *Repository[T]) FindByKey(ctx context.Context, values ...any) (T, bool, error) {
	var zero T
	if len(values) != len(r.entity.NaturalKey) {
		return zero, false, fmt.Errorf("%w: %s expects %d key values, got %d",
			reconcile.ErrIncompleteNaturalKey, r.entity.Name, len(r.entity.NaturalKey), len(values))
	}
	page, err := r.executor.Execute(ctx, r.entity.Collection, criteria.KeyMatch(r.entity.NaturalKey, values), query.PageRequest{Page: 0, Size: 1})
	if err != nil {
		return zero, false, err
	}
	if len(page.Content) == 0 {
		return zero, false, nil
	}
	rec, err := r.decode(page.Content[0])
	return rec, err == nil, err
}

// Save upserts rec by its natural key and returns it as stored.
func (r *Repository[T]) Save(ctx context.Context, rec T) (T, error) {
	stored, err := r.reconciler.Upsert(ctx, r.entity.Collection, r.entity.NaturalKey, r.entity.Encode(rec))
	if err != nil {
		var zero T
		return zero, err
	}
	return r.decode(stored)
}

// SaveAll upserts every record using a pool of workers. A workers value of 0 uses the configured
// default. Results keep the input order; on failure the first error is returned together with the
// records that were saved, and the remaining work is cancelled.
func (r *Repository[T]) SaveAll(ctx context.Context, recs []T, workers int) ([]T, error) {
	if workers <= 0 {
		workers = r.opts.Workers
	}
	workers = min(workers, len(recs))
	out := make([]T, len(recs))
	if len(recs) == 0 {
		return out, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
		saved    = make([]bool, len(recs))
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rec, err := r.Save(ctx, recs[i])
				if err != nil {
					errOnce.Do(func() {
						firstErr = fmt.Errorf("failed to save %s %d of %d: %w", r.entity.Name, i+1, len(recs), err)
						cancel()
					})
					continue
				}
				out[i] = rec
				saved[i] = true
			}
		}()
	}

feed:
	for i := range recs {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr == nil && slices.Contains(saved, false) {
		firstErr = fmt.Errorf("bulk save of %s interrupted: %w", r.entity.Name, context.Cause(ctx))
	}
	if firstErr != nil {
		done := make([]T, 0, len(recs))
		for i, ok := range saved {
			if ok {
				done = append(done, out[i])
			}
		}
		return done, firstErr
	}
	log.Debug().Str("entity", r.entity.Name).Int("records", len(recs)).Int("workers", workers).Msg("Bulk save completed")
	return out, nil
}

// ForEach walks every record matching preds page by page, in identity order, and stops at the
// first error fn returns.
func (r *Repository[T]) ForEach(ctx context.Context, preds []filter.Predicate, pageSize int, fn func(T) error) error {
	for page := 0; ; page++ {
		p, err := r.Filter(ctx, preds, query.PageRequest{Page: page, Size: pageSize})
		if err != nil {
			return err
		}
		for _, rec := range p.Content {
			if err := fn(rec); err != nil {
				return err
			}
		}
		if len(p.Content) < pageSize {
			return nil
		}
	}
}

// DeleteAll removes every record of the entity.
func (r *Repository[T]) DeleteAll(ctx context.Context) error {
	return r.reconciler.DeleteAll(ctx, r.entity.Collection)
}

func (r *Repository[T]) decode(doc store.Document) (T, error) {
	rec, err := r.entity.Decode(doc)
	if err != nil {
		return rec, fmt.Errorf("failed to decode %s %s: %w", r.entity.Name, doc.ID(), err)
	}
	return rec, nil
}
