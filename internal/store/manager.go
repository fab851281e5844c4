package store

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// CollectionManager owns the named collections of the in-memory backend.
type CollectionManager struct {
	collections map[string]*Collection
	mu          sync.RWMutex
	numShards   int
}

// NewCollectionManager creates a manager whose collections use numShards shards each.
func NewCollectionManager(numShards int) *CollectionManager {
	return &CollectionManager{
		collections: make(map[string]*Collection),
		numShards:   numShards,
	}
}

// GetCollection returns the named collection, creating it on first use.
func (cm *CollectionManager) GetCollection(name string) *Collection {
	cm.mu.RLock()
	col, exists := cm.collections[name]
	cm.mu.RUnlock()
	if exists {
		return col
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	if col, exists = cm.collections[name]; exists {
		return col
	}
	col = NewCollection(name, cm.numShards)
	cm.collections[name] = col
	log.Debug().Str("collection", name).Int("num_shards", cm.numShards).Msg("Collection created")
	return col
}

// ListCollections returns the collection names in lexical order.
func (cm *CollectionManager) ListCollections() []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	names := make([]string, 0, len(cm.collections))
	for name := range cm.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
