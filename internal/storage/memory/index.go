package memory

import (
	"sync"

	"github.com/Talorix/panel/pkg/cmap"
)

// IDSet is a concurrent-safe set of record ids.
type IDSet struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

// NewIDSet creates an empty set.
func NewIDSet() *IDSet {
	return &IDSet{items: make(map[string]struct{})}
}

// Add adds id to the set.
func (s *IDSet) Add(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id] = struct{}{}
}

// Remove removes id from the set.
func (s *IDSet) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
}

// Contains reports whether id is in the set.
func (s *IDSet) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[id]
	return ok
}

// Len returns the number of ids.
func (s *IDSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Items returns a copy of the ids in no particular order.
func (s *IDSet) Items() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]string, 0, len(s.items))
	for id := range s.items {
		items = append(items, id)
	}
	return items
}

// OwnerIndex maps an owning user id to the ids of the records it owns.
type OwnerIndex struct {
	index *cmap.Map[string, *IDSet]
}

// NewOwnerIndex creates an empty index.
func NewOwnerIndex() *OwnerIndex {
	return &OwnerIndex{index: cmap.New[string, *IDSet]()}
}

// Add records that ownerID owns id.
func (i *OwnerIndex) Add(ownerID, id string) {
	set, _ := i.index.GetOrSet(ownerID, NewIDSet())
	set.Add(id)
}

// Remove drops id from ownerID's set, deleting the set once empty.
func (i *OwnerIndex) Remove(ownerID, id string) {
	set, ok := i.index.Get(ownerID)
	if !ok {
		return
	}
	set.Remove(id)
	if set.Len() == 0 {
		i.index.Delete(ownerID)
	}
}

// Get returns the ids owned by ownerID.
func (i *OwnerIndex) Get(ownerID string) []string {
	set, ok := i.index.Get(ownerID)
	if !ok {
		return nil
	}
	return set.Items()
}

// Count returns how many ids ownerID owns.
func (i *OwnerIndex) Count(ownerID string) int {
	set, ok := i.index.Get(ownerID)
	if !ok {
		return 0
	}
	return set.Len()
}
