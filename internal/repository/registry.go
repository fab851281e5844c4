package repository

import (
	"context"
	"fmt"
	"sort"

	"pride-store/internal/query"
	"pride-store/internal/store"
)

// Dynamic is the untyped view of a repository used by the HTTP API and the client. Records cross
// it in their stored document form.
type Dynamic interface {
	Name() string
	Collection() string
	SearchDocuments(ctx context.Context, expression string, req query.PageRequest) (query.Page[store.Document], error)
	Count(ctx context.Context, expression string) (int64, error)
	SaveDocument(ctx context.Context, doc store.Document) (store.Document, error)
	DeleteAll(ctx context.Context) error
	Setup(ctx context.Context) error
}

// Name implements Dynamic.
func (r *Repository[T]) Name() string { return r.entity.Name }

// Collection implements Dynamic.
func (r *Repository[T]) Collection() string { return r.entity.Collection }

// SearchDocuments is Search with the records re-encoded to documents.
func (r *Repository[T]) SearchDocuments(ctx context.Context, expression string, req query.PageRequest) (query.Page[store.Document], error) {
	page, err := r.Search(ctx, expression, req)
	if err != nil {
		return query.Page[store.Document]{}, err
	}
	return query.Map(page, func(rec T) (store.Document, error) {
		return r.entity.Encode(rec), nil
	})
}

// SaveDocument validates doc against the entity schema and upserts it. Wrong types, fractional
// integers and attributes the entity does not define fail with ErrInvalidRecord.
func (r *Repository[T]) SaveDocument(ctx context.Context, doc store.Document) (store.Document, error) {
	rec, err := r.entity.Decode(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	saved, err := r.Save(ctx, rec)
	if err != nil {
		return nil, err
	}
	return r.entity.Encode(saved), nil
}

// Registry holds the repositories by entity name.
type Registry struct {
	byName map[string]Dynamic
}

// NewRegistry creates a registry of repos.
func NewRegistry(repos ...Dynamic) *Registry {
	reg := &Registry{byName: make(map[string]Dynamic, len(repos))}
	for _, r := range repos {
		reg.byName[r.Name()] = r
	}
	return reg
}

// Get returns the repository of an entity.
func (reg *Registry) Get(name string) (Dynamic, bool) {
	r, ok := reg.byName[name]
	return r, ok
}

// Names returns the entity names in sorted order.
func (reg *Registry) Names() []string {
	names := make([]string, 0, len(reg.byName))
	for name := range reg.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetupAll runs Setup on every repository.
func (reg *Registry) SetupAll(ctx context.Context) error {
	for _, name := range reg.Names() {
		if err := reg.byName[name].Setup(ctx); err != nil {
			return err
		}
	}
	return nil
}
