package store

import (
	"context"
	"errors"

	"pride-store/internal/criteria"
	"pride-store/internal/globalconst"
)

var (
	// ErrNotFound is returned by Replace when no document has the given identity.
	ErrNotFound = errors.New("document not found")
	// ErrDuplicateKey is returned when a write would break a unique index.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrInvalidCollection is returned for collection names a backend cannot address.
	ErrInvalidCollection = errors.New("invalid collection name")
)

// Document is one schema-less record. The storage identity lives under globalconst.ID.
type Document map[string]any

// ID returns the storage identity, or "" for a document that was never stored.
func (d Document) ID() string {
	id, _ := d[globalconst.ID].(string)
	return id
}

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// SortField is one key of an ordering.
type SortField struct {
	Field string
	Desc  bool
}

// Store is the minimal document-store contract the query and reconciliation layers run against.
// Every call honours the deadline of ctx. Single-document writes are atomic.
type Store interface {
	// Find returns the documents matching c, ordered by sort and then by ascending identity.
	Find(ctx context.Context, collection string, c criteria.Criterion, sort []SortField, skip, limit int) ([]Document, error)
	// Count returns how many documents match c.
	Count(ctx context.Context, collection string, c criteria.Criterion) (int64, error)
	// Insert stores doc under a new identity and returns it.
	Insert(ctx context.Context, collection string, doc Document) (string, error)
	// Replace overwrites the full content of the document with the given identity.
	Replace(ctx context.Context, collection string, id string, doc Document) error
	// DeleteAll removes every document of the collection.
	DeleteAll(ctx context.Context, collection string) error
}

// Indexer is implemented by stores that support secondary and unique indexes.
type Indexer interface {
	EnsureIndex(ctx context.Context, collection, field string) error
	// EnsureUniqueIndex makes the store reject, with ErrDuplicateKey, any write that would give two
	// documents the same values for fields.
	EnsureUniqueIndex(ctx context.Context, collection string, fields []string) error
}

// MutationOp identifies the kind of a journaled write.
type MutationOp byte

const (
	OpInsert MutationOp = iota + 1
	OpReplace
	OpDeleteAll
)

func (o MutationOp) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpReplace:
		return "replace"
	case OpDeleteAll:
		return "delete_all"
	default:
		return "unknown"
	}
}

// Mutation is one write as recorded in a journal. Doc holds the encoded document.
type Mutation struct {
	Op         MutationOp `json:"op"`
	Collection string     `json:"collection"`
	ID         string     `json:"id,omitempty"`
	Doc        []byte     `json:"doc,omitempty"`
}

// Journal records mutations before they are applied.
type Journal interface {
	Record(m Mutation) error
}
