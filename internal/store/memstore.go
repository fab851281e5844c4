package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"pride-store/internal/criteria"
	"pride-store/internal/globalconst"
)

// ctxCheckInterval is how many documents a scan evaluates between deadline checks.
const ctxCheckInterval = 1024

// MemStore is the in-memory Store backend. Documents are kept encoded in sharded collections;
// secondary indexes narrow Equal, In and range criteria before the full criterion is evaluated.
type MemStore struct {
	manager *CollectionManager
	journal Journal
}

// NewMemStore creates an empty in-memory store.
func NewMemStore(numShards int) *MemStore {
	return &MemStore{manager: NewCollectionManager(numShards)}
}

// Manager exposes the collections for snapshots and restores.
func (m *MemStore) Manager() *CollectionManager {
	return m.manager
}

// SetJournal makes every later write go through j before it is applied.
func (m *MemStore) SetJournal(j Journal) {
	m.journal = j
}

func (m *MemStore) record(mut Mutation) func() error {
	if m.journal == nil {
		return nil
	}
	return func() error {
		if err := m.journal.Record(mut); err != nil {
			return fmt.Errorf("failed to journal %s on %s: %w", mut.Op, mut.Collection, err)
		}
		return nil
	}
}

// Find implements Store.
func (m *MemStore) Find(ctx context.Context, collection string, c criteria.Criterion, sortBy []SortField, skip, limit int) ([]Document, error) {
	docs, err := m.scan(ctx, collection, c)
	if err != nil {
		return nil, err
	}

	sortDocuments(docs, sortBy)

	skip = min(max(skip, 0), len(docs))
	docs = docs[skip:]
	if limit >= 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs, nil
}

// Count implements Store.
func (m *MemStore) Count(ctx context.Context, collection string, c criteria.Criterion) (int64, error) {
	docs, err := m.scan(ctx, collection, c)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

func (m *MemStore) scan(ctx context.Context, collection string, c criteria.Criterion) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	col := m.manager.GetCollection(collection)

	var itemsData map[string][]byte
	if keys, usedIndex := col.candidateKeys(c); usedIndex {
		log.Debug().Str("collection", collection).Int("candidates", len(keys)).Msg("Query is using index(es)")
		itemsData = col.GetMany(keys)
	} else {
		itemsData = col.GetAll()
	}

	docs := make([]Document, 0, len(itemsData))
	evaluated := 0
	for key, value := range itemsData {
		evaluated++
		if evaluated%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		doc := tryUnmarshal(value)
		if doc == nil {
			log.Warn().Str("collection", collection).Str("key", key).Msg("Skipping undecodable document")
			continue
		}
		if criteria.Matches(c, doc) {
			docs = append(docs, doc)
		}
	}
	return docs, ctx.Err()
}

// sortDocuments orders by the sort keys and then by ascending identity.
func sortDocuments(docs []Document, sortBy []SortField) {
	sort.Slice(docs, func(i, j int) bool {
		for _, sf := range sortBy {
			cmp := criteria.CompareValues(docs[i][sf.Field], docs[j][sf.Field])
			if cmp != 0 {
				if sf.Desc {
					return cmp > 0
				}
				return cmp < 0
			}
		}
		return docs[i].ID() < docs[j].ID()
	})
}

// Insert implements Store. Identities are UUIDv7, so ascending identity is insertion order.
func (m *MemStore) Insert(ctx context.Context, collection string, doc Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate identity: %w", err)
	}
	key := id.String()

	stored := doc.Clone()
	stored[globalconst.ID] = key
	value, err := EncodeDocument(stored)
	if err != nil {
		return "", err
	}

	col := m.manager.GetCollection(collection)
	if err := col.Put(key, value, false, m.record(Mutation{Op: OpInsert, Collection: collection, ID: key, Doc: value})); err != nil {
		return "", err
	}
	return key, nil
}

// Replace implements Store.
func (m *MemStore) Replace(ctx context.Context, collection string, id string, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := doc.Clone()
	stored[globalconst.ID] = id
	value, err := EncodeDocument(stored)
	if err != nil {
		return err
	}

	col := m.manager.GetCollection(collection)
	return col.Put(id, value, true, m.record(Mutation{Op: OpReplace, Collection: collection, ID: id, Doc: value}))
}

// DeleteAll implements Store.
func (m *MemStore) DeleteAll(ctx context.Context, collection string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	col := m.manager.GetCollection(collection)
	if err := col.Clear(m.record(Mutation{Op: OpDeleteAll, Collection: collection})); err != nil {
		return err
	}
	log.Info().Str("collection", collection).Msg("All documents deleted")
	return nil
}

// EnsureIndex implements Indexer.
func (m *MemStore) EnsureIndex(ctx context.Context, collection, field string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.manager.GetCollection(collection).CreateIndex(field)
	return nil
}

// EnsureUniqueIndex implements Indexer.
func (m *MemStore) EnsureUniqueIndex(ctx context.Context, collection string, fields []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.manager.GetCollection(collection).CreateUniqueIndex(fields)
}

// Apply replays a journaled mutation without journaling it again.
func (m *MemStore) Apply(mut Mutation) error {
	col := m.manager.GetCollection(mut.Collection)
	switch mut.Op {
	case OpInsert, OpReplace:
		return col.Put(mut.ID, mut.Doc, false, nil)
	case OpDeleteAll:
		return col.Clear(nil)
	default:
		return fmt.Errorf("unknown mutation op %d", mut.Op)
	}
}
