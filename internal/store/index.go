package store

import (
	"sort"
	"sync"

	"github.com/google/btree"
	"github.com/rs/zerolog/log"

	"pride-store/internal/criteria"
)

const btreeDegree = 32

// NumericKey is an item of the numeric B-Tree: one value and the documents holding it.
type NumericKey struct {
	Value float64
	Keys  map[string]struct{}
}

// StringKey is an item of the string B-Tree.
type StringKey struct {
	Value string
	Keys  map[string]struct{}
}

func numericLess(a, b NumericKey) bool {
	return a.Value < b.Value
}

func stringLess(a, b StringKey) bool {
	return a.Value < b.Value
}

// Index is the secondary index of one field. Numbers and strings live in separate trees; other
// value types are not indexed.
type Index struct {
	numericTree *btree.BTreeG[NumericKey]
	stringTree  *btree.BTreeG[StringKey]
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		numericTree: btree.NewG[NumericKey](btreeDegree, numericLess),
		stringTree:  btree.NewG[StringKey](btreeDegree, stringLess),
	}
}

// IndexManager manages the secondary indexes of one collection.
type IndexManager struct {
	mu      sync.RWMutex
	indexes map[string]*Index
}

// NewIndexManager creates a new index manager.
func NewIndexManager() *IndexManager {
	return &IndexManager{
		indexes: make(map[string]*Index),
	}
}

// CreateIndex initializes an empty index for a field. It reports whether the index is new.
func (im *IndexManager) CreateIndex(field string) bool {
	im.mu.Lock()
	defer im.mu.Unlock()
	if _, exists := im.indexes[field]; exists {
		return false
	}
	im.indexes[field] = NewIndex()
	log.Debug().Str("field", field).Msg("B-Tree index created")
	return true
}

// ListIndexes returns the indexed fields in lexical order.
func (im *IndexManager) ListIndexes() []string {
	im.mu.RLock()
	defer im.mu.RUnlock()
	fields := make([]string, 0, len(im.indexes))
	for field := range im.indexes {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// HasIndex checks if an index exists for a given field.
func (im *IndexManager) HasIndex(field string) bool {
	im.mu.RLock()
	defer im.mu.RUnlock()
	_, exists := im.indexes[field]
	return exists
}

// Reset empties every index but keeps the index definitions.
func (im *IndexManager) Reset() {
	im.mu.Lock()
	defer im.mu.Unlock()
	for field := range im.indexes {
		im.indexes[field] = NewIndex()
	}
}

func (im *IndexManager) addToIndex(index *Index, docKey string, value any) {
	if fVal, ok := criteria.AsNumber(value); ok {
		item, found := index.numericTree.Get(NumericKey{Value: fVal})
		if !found {
			item = NumericKey{Value: fVal, Keys: make(map[string]struct{})}
		}
		item.Keys[docKey] = struct{}{}
		index.numericTree.ReplaceOrInsert(item)
	} else if sVal, ok := value.(string); ok {
		item, found := index.stringTree.Get(StringKey{Value: sVal})
		if !found {
			item = StringKey{Value: sVal, Keys: make(map[string]struct{})}
		}
		item.Keys[docKey] = struct{}{}
		index.stringTree.ReplaceOrInsert(item)
	}
}

func (im *IndexManager) removeFromIndex(index *Index, docKey string, value any) {
	if fVal, ok := criteria.AsNumber(value); ok {
		if item, found := index.numericTree.Get(NumericKey{Value: fVal}); found {
			delete(item.Keys, docKey)
			if len(item.Keys) == 0 {
				index.numericTree.Delete(item)
			}
		}
	} else if sVal, ok := value.(string); ok {
		if item, found := index.stringTree.Get(StringKey{Value: sVal}); found {
			delete(item.Keys, docKey)
			if len(item.Keys) == 0 {
				index.stringTree.Delete(item)
			}
		}
	}
}

// Update moves a document from the index entries of its old values to those of its new values.
// Array fields are indexed element by element.
func (im *IndexManager) Update(docKey string, oldData, newData Document) {
	im.mu.Lock()
	defer im.mu.Unlock()

	for field, index := range im.indexes {
		for _, v := range criteria.FieldValues(oldData, field) {
			im.removeFromIndex(index, docKey, v)
		}
		for _, v := range criteria.FieldValues(newData, field) {
			im.addToIndex(index, docKey, v)
		}
	}
}

// Lookup performs an equality lookup. The second result is false when the field has no index or
// the value type is not indexed, in which case the caller has to scan.
func (im *IndexManager) Lookup(field string, value any) ([]string, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()

	index, exists := im.indexes[field]
	if !exists {
		return nil, false
	}

	var foundKeys map[string]struct{}
	if fVal, ok := criteria.AsNumber(value); ok {
		if item, found := index.numericTree.Get(NumericKey{Value: fVal}); found {
			foundKeys = item.Keys
		}
	} else if sVal, ok := value.(string); ok {
		if item, found := index.stringTree.Get(StringKey{Value: sVal}); found {
			foundKeys = item.Keys
		}
	} else {
		return nil, false
	}

	keys := make([]string, 0, len(foundKeys))
	for k := range foundKeys {
		keys = append(keys, k)
	}
	return keys, true
}

// LookupRange performs a range scan. A nil bound is open. Numeric bounds scan the numeric tree,
// string bounds the string tree.
func (im *IndexManager) LookupRange(field string, low, high any, lowInclusive, highInclusive bool) ([]string, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()

	index, exists := im.indexes[field]
	if !exists {
		return nil, false
	}

	bound := low
	if bound == nil {
		bound = high
	}
	unionKeys := make(map[string]struct{})

	if _, isNumeric := criteria.AsNumber(bound); isNumeric {
		lowVal, hasLow := criteria.AsNumber(low)
		highVal, hasHigh := criteria.AsNumber(high)
		iterator := func(item NumericKey) bool {
			if hasHigh && (item.Value > highVal || (!highInclusive && item.Value == highVal)) {
				return false
			}
			if hasLow && !lowInclusive && item.Value == lowVal {
				return true
			}
			for k := range item.Keys {
				unionKeys[k] = struct{}{}
			}
			return true
		}
		if hasLow {
			index.numericTree.AscendGreaterOrEqual(NumericKey{Value: lowVal}, iterator)
		} else {
			index.numericTree.Ascend(iterator)
		}
	} else if _, isString := bound.(string); isString {
		lowVal, hasLow := low.(string)
		highVal, hasHigh := high.(string)
		iterator := func(item StringKey) bool {
			if hasHigh && (item.Value > highVal || (!highInclusive && item.Value == highVal)) {
				return false
			}
			if hasLow && !lowInclusive && item.Value == lowVal {
				return true
			}
			for k := range item.Keys {
				unionKeys[k] = struct{}{}
			}
			return true
		}
		if hasLow {
			index.stringTree.AscendGreaterOrEqual(StringKey{Value: lowVal}, iterator)
		} else {
			index.stringTree.Ascend(iterator)
		}
	} else {
		return nil, false
	}

	keys := make([]string, 0, len(unionKeys))
	for k := range unionKeys {
		keys = append(keys, k)
	}
	return keys, true
}
