// Package query runs compiled criteria against a store and assembles pages.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"pride-store/internal/criteria"
	"pride-store/internal/globalconst"
	"pride-store/internal/metrics"
	"pride-store/internal/store"
)

// ErrInvalidPageRequest is wrapped when a page index is negative or a page size is not positive.
var ErrInvalidPageRequest = errors.New("invalid page request")

// PageRequest selects one page. Page is 0-based.
type PageRequest struct {
	Page int
	Size int
	Sort []store.SortField
}

// Offset returns the number of documents before the page.
func (r PageRequest) Offset() int {
	return r.Page * r.Size
}

// Page is one page of results. TotalElements counts every match, not just Content. Count and fetch
// are separate reads, so under concurrent writes the two may disagree.
type Page[T any] struct {
	Content       []T   `json:"content"`
	TotalElements int64 `json:"totalElements"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
}

// TotalPages returns the number of pages of this size needed for every match.
func (p Page[T]) TotalPages() int {
	if p.Size <= 0 {
		return 0
	}
	return int((p.TotalElements + int64(p.Size) - 1) / int64(p.Size))
}

// Map converts the content of a page, keeping the paging metadata.
func Map[S, T any](p Page[S], fn func(S) (T, error)) (Page[T], error) {
	out := Page[T]{Content: make([]T, 0, len(p.Content)), TotalElements: p.TotalElements, Page: p.Page, Size: p.Size}
	for _, item := range p.Content {
		v, err := fn(item)
		if err != nil {
			return Page[T]{}, err
		}
		out.Content = append(out.Content, v)
	}
	return out, nil
}

// Executor runs fetch and count queries with a per-call deadline.
//
// Under concurrent writes the count and the fetch are two separate reads, so TotalElements may
// be off by the writes that landed between them. On a static collection they always agree.
type Executor struct {
	store   store.Store
	timeout time.Duration
	metrics *metrics.Metrics
}

// NewExecutor creates an executor. A zero timeout leaves the caller's deadline untouched.
func NewExecutor(s store.Store, timeout time.Duration, m *metrics.Metrics) *Executor {
	return &Executor{store: s, timeout: timeout, metrics: m}
}

func (e *Executor) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

// Execute fetches one page of the documents matching c. The count query is skipped when the
// fetched page alone determines the total.
func (e *Executor) Execute(ctx context.Context, collection string, c criteria.Criterion, req PageRequest) (Page[store.Document], error) {
	if req.Page < 0 || req.Size <= 0 {
		return Page[store.Document]{}, &QueryExecutionError{
			Collection: collection,
			Op:         "find",
			Err:        fmt.Errorf("%w: page=%d size=%d", ErrInvalidPageRequest, req.Page, req.Size),
		}
	}

	start := time.Now()
	ctx, cancel := e.withDeadline(ctx)
	defer cancel()

	content, err := e.store.Find(ctx, collection, c, withIdentityOrder(req.Sort), req.Offset(), req.Size)
	if err != nil {
		e.metrics.RecordQuery(collection, "find", time.Since(start), err)
		return Page[store.Document]{}, e.wrap(ctx, collection, "find", err)
	}

	total, counted := lazyTotal(req, len(content))
	if !counted {
		total, err = e.store.Count(ctx, collection, c)
		if err != nil {
			e.metrics.RecordQuery(collection, "count", time.Since(start), err)
			return Page[store.Document]{}, e.wrap(ctx, collection, "count", err)
		}
	}

	e.metrics.RecordQuery(collection, "find", time.Since(start), nil)
	log.Debug().
		Str("collection", collection).
		Int("page", req.Page).
		Int("size", req.Size).
		Int("returned", len(content)).
		Int64("total", total).
		Bool("counted", !counted).
		Dur("duration", time.Since(start)).
		Msg("Query executed")

	return Page[store.Document]{Content: content, TotalElements: total, Page: req.Page, Size: req.Size}, nil
}

// Count returns the number of documents matching c.
func (e *Executor) Count(ctx context.Context, collection string, c criteria.Criterion) (int64, error) {
	start := time.Now()
	ctx, cancel := e.withDeadline(ctx)
	defer cancel()

	n, err := e.store.Count(ctx, collection, c)
	e.metrics.RecordQuery(collection, "count", time.Since(start), err)
	if err != nil {
		return 0, e.wrap(ctx, collection, "count", err)
	}
	return n, nil
}

// lazyTotal derives the total from the page when possible: a short first page holds every match,
// and a short non-empty later page is the last one.
func lazyTotal(req PageRequest, returned int) (int64, bool) {
	if returned >= req.Size {
		return 0, false
	}
	if req.Offset() == 0 {
		return int64(returned), true
	}
	if returned > 0 {
		return int64(req.Offset() + returned), true
	}
	return 0, false
}

// withIdentityOrder appends ascending identity as the final sort key.
func withIdentityOrder(sort []store.SortField) []store.SortField {
	for _, sf := range sort {
		if sf.Field == globalconst.ID {
			return sort
		}
	}
	out := make([]store.SortField, 0, len(sort)+1)
	out = append(out, sort...)
	return append(out, store.SortField{Field: globalconst.ID})
}

func (e *Executor) wrap(ctx context.Context, collection, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = &StorageTimeoutError{Collection: collection, Op: op, Timeout: e.timeout, Err: err}
	}
	return &QueryExecutionError{Collection: collection, Op: op, Err: err}
}
