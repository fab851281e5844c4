package store

import (
	"fmt"
	"hash/fnv"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"pride-store/internal/criteria"
	"pride-store/internal/filter"
)

// Item is one stored document.
type Item struct {
	Value     []byte
	CreatedAt time.Time
}

// Shard is a segment of a collection.
type Shard struct {
	data map[string]Item
	mu   sync.RWMutex
}

// uniqueConstraint maps the composite value of Fields to the identity owning it.
type uniqueConstraint struct {
	Fields []string
	owners map[string]string
}

func (u *uniqueConstraint) keyOf(doc Document) (string, bool) {
	parts := make([]string, len(u.Fields))
	for i, f := range u.Fields {
		v, ok := doc[f]
		if !ok || v == nil {
			return "", false
		}
		parts[i] = fmt.Sprintf("%T:%v", v, v)
	}
	return strings.Join(parts, "\x1f"), true
}

// Collection is a sharded set of documents with secondary and unique indexes. Reads only take
// shard locks; writes are serialized by writeMu so unique checks and index updates see one order.
type Collection struct {
	name      string
	shards    []*Shard
	numShards int
	indexes   *IndexManager

	writeMu sync.Mutex
	uniques []*uniqueConstraint
}

// NewCollection creates an empty collection with the given number of shards.
func NewCollection(name string, numShards int) *Collection {
	if numShards <= 0 {
		numShards = 1
	}
	c := &Collection{
		name:      name,
		shards:    make([]*Shard, numShards),
		numShards: numShards,
		indexes:   NewIndexManager(),
	}
	for i := range numShards {
		c.shards[i] = &Shard{data: make(map[string]Item)}
	}
	return c
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

func (c *Collection) shardIndex(key string) int {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int(h.Sum64() % uint64(c.numShards))
}

func (c *Collection) getShard(key string) *Shard {
	return c.shards[c.shardIndex(key)]
}

// Get retrieves one encoded document.
func (c *Collection) Get(key string) ([]byte, bool) {
	shard := c.getShard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	item, found := shard.data[key]
	if !found {
		return nil, false
	}
	return item.Value, true
}

// GetMany retrieves several documents concurrently, one goroutine per shard involved.
func (c *Collection) GetMany(keys []string) map[string][]byte {
	if len(keys) == 0 {
		return make(map[string][]byte)
	}

	keysByShard := make([][]string, c.numShards)
	for _, key := range keys {
		i := c.shardIndex(key)
		keysByShard[i] = append(keysByShard[i], key)
	}

	resultsChan := make(chan map[string][]byte, c.numShards)
	var wg sync.WaitGroup
	for i, shardKeys := range keysByShard {
		if len(shardKeys) == 0 {
			continue
		}
		wg.Add(1)
		go func(shard *Shard, keysInShard []string) {
			defer wg.Done()
			shardResults := make(map[string][]byte, len(keysInShard))
			shard.mu.RLock()
			for _, key := range keysInShard {
				if item, found := shard.data[key]; found {
					shardResults[key] = item.Value
				}
			}
			shard.mu.RUnlock()
			resultsChan <- shardResults
		}(c.shards[i], shardKeys)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	finalResults := make(map[string][]byte, len(keys))
	for shardResults := range resultsChan {
		maps.Copy(finalResults, shardResults)
	}
	return finalResults
}

// GetAll returns a copy of every document.
func (c *Collection) GetAll() map[string][]byte {
	snapshot := make(map[string][]byte)
	for _, shard := range c.shards {
		shard.mu.RLock()
		for k, item := range shard.data {
			value := make([]byte, len(item.Value))
			copy(value, item.Value)
			snapshot[k] = value
		}
		shard.mu.RUnlock()
	}
	return snapshot
}

// Size returns the number of documents.
func (c *Collection) Size() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.data)
		shard.mu.RUnlock()
	}
	return total
}

// Put stores a document. With mustExist it fails with ErrNotFound when key is not stored yet.
// A write that would give two documents the same unique key fails with ErrDuplicateKey. beforeApply
// runs once every check passed and before anything changes; its error aborts the write.
func (c *Collection) Put(key string, value []byte, mustExist bool, beforeApply func() error) error {
	newData := tryUnmarshal(value)
	if newData == nil {
		return fmt.Errorf("collection %s: value for %s is not a JSON object", c.name, key)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	oldValue, exists := c.Get(key)
	if mustExist && !exists {
		return ErrNotFound
	}
	var oldData Document
	if exists {
		oldData = tryUnmarshal(oldValue)
	}

	for _, u := range c.uniques {
		if k, ok := u.keyOf(newData); ok {
			if owner, taken := u.owners[k]; taken && owner != key {
				return fmt.Errorf("collection %s, fields %v: %w", c.name, u.Fields, ErrDuplicateKey)
			}
		}
	}

	if beforeApply != nil {
		if err := beforeApply(); err != nil {
			return err
		}
	}

	shard := c.getShard(key)
	shard.mu.Lock()
	createdAt := time.Now()
	if old, ok := shard.data[key]; ok {
		createdAt = old.CreatedAt
	}
	shard.data[key] = Item{Value: value, CreatedAt: createdAt}
	shard.mu.Unlock()

	c.indexes.Update(key, oldData, newData)
	for _, u := range c.uniques {
		if k, ok := u.keyOf(oldData); ok && u.owners[k] == key {
			delete(u.owners, k)
		}
		if k, ok := u.keyOf(newData); ok {
			u.owners[k] = key
		}
	}
	return nil
}

// Clear removes every document. Index and unique definitions are kept.
func (c *Collection) Clear(beforeApply func() error) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if beforeApply != nil {
		if err := beforeApply(); err != nil {
			return err
		}
	}
	for _, shard := range c.shards {
		shard.mu.Lock()
		shard.data = make(map[string]Item)
		shard.mu.Unlock()
	}
	c.indexes.Reset()
	for _, u := range c.uniques {
		u.owners = make(map[string]string)
	}
	return nil
}

// LoadData replaces the content of the collection and rebuilds every index.
func (c *Collection) LoadData(data map[string][]byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	for _, shard := range c.shards {
		shard.mu.Lock()
		shard.data = make(map[string]Item)
		shard.mu.Unlock()
	}
	c.indexes.Reset()
	for _, u := range c.uniques {
		u.owners = make(map[string]string)
	}

	now := time.Now()
	for k, v := range data {
		shard := c.getShard(k)
		shard.mu.Lock()
		shard.data[k] = Item{Value: v, CreatedAt: now}
		shard.mu.Unlock()

		doc := tryUnmarshal(v)
		c.indexes.Update(k, nil, doc)
		for _, u := range c.uniques {
			if uk, ok := u.keyOf(doc); ok {
				u.owners[uk] = k
			}
		}
	}
	log.Debug().Str("collection", c.name).Int("documents", len(data)).Msg("Collection data loaded")
}

// CreateIndex creates a secondary index on a field and backfills it.
func (c *Collection) CreateIndex(field string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if !c.indexes.CreateIndex(field) {
		return
	}
	count := 0
	for key, value := range c.GetAll() {
		if doc := tryUnmarshal(value); doc != nil {
			c.indexes.Update(key, nil, doc)
			count++
		}
	}
	log.Info().Str("collection", c.name).Str("field", field).Int("item_count", count).Msg("Index backfill complete")
}

// CreateUniqueIndex adds a unique constraint over fields. It fails with ErrDuplicateKey when the
// stored documents already violate it.
func (c *Collection) CreateUniqueIndex(fields []string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	for _, u := range c.uniques {
		if equalFields(u.Fields, fields) {
			return nil
		}
	}

	u := &uniqueConstraint{Fields: append([]string(nil), fields...), owners: make(map[string]string)}
	for key, value := range c.GetAll() {
		k, ok := u.keyOf(tryUnmarshal(value))
		if !ok {
			continue
		}
		if owner, taken := u.owners[k]; taken {
			return fmt.Errorf("collection %s, fields %v: documents %s and %s collide: %w", c.name, fields, owner, key, ErrDuplicateKey)
		}
		u.owners[k] = key
	}
	c.uniques = append(c.uniques, u)
	log.Info().Str("collection", c.name).Strs("fields", fields).Msg("Unique index created")
	return nil
}

// ListIndexes returns the fields with a secondary index.
func (c *Collection) ListIndexes() []string {
	return c.indexes.ListIndexes()
}

// HasIndex checks if an index exists on a field.
func (c *Collection) HasIndex(field string) bool {
	return c.indexes.HasIndex(field)
}

// ListUniqueIndexes returns the field lists of every unique constraint.
func (c *Collection) ListUniqueIndexes() [][]string {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	out := make([][]string, len(c.uniques))
	for i, u := range c.uniques {
		out[i] = append([]string(nil), u.Fields...)
	}
	return out
}

// CollectionSnapshot is a point-in-time copy of a collection and its index definitions.
type CollectionSnapshot struct {
	Indexes []string
	Uniques [][]string
	Data    map[string][]byte
}

// Snapshot copies the collection while holding the write lock, so a write that was journaled
// before the call is either fully in the copy or not started.
func (c *Collection) Snapshot() CollectionSnapshot {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	uniques := make([][]string, len(c.uniques))
	for i, u := range c.uniques {
		uniques[i] = append([]string(nil), u.Fields...)
	}
	return CollectionSnapshot{
		Indexes: c.indexes.ListIndexes(),
		Uniques: uniques,
		Data:    c.GetAll(),
	}
}

// Restore replaces the collection with a snapshot, recreating its indexes first.
func (c *Collection) Restore(snap CollectionSnapshot) {
	for _, f := range snap.Indexes {
		c.CreateIndex(f)
	}
	c.writeMu.Lock()
	for _, fields := range snap.Uniques {
		exists := false
		for _, u := range c.uniques {
			if equalFields(u.Fields, fields) {
				exists = true
				break
			}
		}
		if !exists {
			c.uniques = append(c.uniques, &uniqueConstraint{Fields: append([]string(nil), fields...), owners: make(map[string]string)})
		}
	}
	c.writeMu.Unlock()
	c.LoadData(snap.Data)
}

// candidateKeys narrows a criterion to the documents an index can vouch for. The second result is
// false when no index applies and the caller must scan everything. Candidates are a superset of the
// matches; the caller still evaluates the full criterion.
func (c *Collection) candidateKeys(cr criteria.Criterion) ([]string, bool) {
	switch n := cr.(type) {
	case criteria.Equal:
		return c.indexes.Lookup(n.Field, n.Value)
	case criteria.In:
		union := make(map[string]struct{})
		for _, v := range n.Values {
			keys, ok := c.indexes.Lookup(n.Field, v)
			if !ok {
				return nil, false
			}
			for _, k := range keys {
				union[k] = struct{}{}
			}
		}
		keys := make([]string, 0, len(union))
		for k := range union {
			keys = append(keys, k)
		}
		return keys, true
	case criteria.Compare:
		switch n.Op {
		case filter.GreaterThan:
			return c.indexes.LookupRange(n.Field, n.Value, nil, false, false)
		case filter.GreaterThanOrEqual:
			return c.indexes.LookupRange(n.Field, n.Value, nil, true, false)
		case filter.LessThan:
			return c.indexes.LookupRange(n.Field, nil, n.Value, false, false)
		case filter.LessThanOrEqual:
			return c.indexes.LookupRange(n.Field, nil, n.Value, false, true)
		}
		return nil, false
	case criteria.And:
		var keySets [][]string
		for _, t := range n.Terms {
			if keys, ok := c.candidateKeys(t); ok {
				keySets = append(keySets, keys)
			}
		}
		if len(keySets) == 0 {
			return nil, false
		}
		return intersectKeys(keySets), true
	default:
		return nil, false
	}
}

// intersectKeys returns the keys present in every set.
func intersectKeys(keySets [][]string) []string {
	sort.Slice(keySets, func(i, j int) bool { return len(keySets[i]) < len(keySets[j]) })
	result := make(map[string]struct{}, len(keySets[0]))
	for _, k := range keySets[0] {
		result[k] = struct{}{}
	}
	for _, set := range keySets[1:] {
		next := make(map[string]struct{}, len(result))
		for _, k := range set {
			if _, ok := result[k]; ok {
				next[k] = struct{}{}
			}
		}
		result = next
	}
	keys := make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}
	return keys
}

func equalFields(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
