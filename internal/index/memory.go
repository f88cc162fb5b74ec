package index

import (
	"sync"
	"time"

	"github.com/MrSnakeDoc/wagate/internal/domain"
)

// Entry holds one instance. Callers lock the entry before reading or
// mutating Instance and must check Removed afterwards, since a concurrent
// delete may have dropped it from the index while they waited.
type Entry struct {
	mu       sync.Mutex
	Instance domain.Instance
	Removed  bool
}

func (e *Entry) Lock()   { e.mu.Lock() }
func (e *Entry) Unlock() { e.mu.Unlock() }

// Snapshot returns a copy of the instance taken under the entry lock
func (e *Entry) Snapshot() (domain.Instance, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Instance, !e.Removed
}

// MemoryIndex provides in-memory storage and lookup for instances
type MemoryIndex struct {
	mu         sync.RWMutex
	entries    map[string]*Entry // name -> entry
	lastChange time.Time
}

// NewMemoryIndex creates a new memory index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		entries: make(map[string]*Entry),
	}
}

// Insert adds inst under its name. It returns false when the name is taken.
func (idx *MemoryIndex) Insert(inst domain.Instance) (*Entry, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.entries[inst.Name]; exists {
		return nil, false
	}
	e := &Entry{Instance: inst}
	idx.entries[inst.Name] = e
	idx.lastChange = time.Now()
	return e, true
}

// Get retrieves an entry by name
func (idx *MemoryIndex) Get(name string) (*Entry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	e, ok := idx.entries[name]
	return e, ok
}

// Remove drops name from the index and marks the entry removed.
// The entry lock must not be held by the caller.
func (idx *MemoryIndex) Remove(name string) (*Entry, bool) {
	idx.mu.Lock()
	e, ok := idx.entries[name]
	if ok {
		delete(idx.entries, name)
		idx.lastChange = time.Now()
	}
	idx.mu.Unlock()

	if !ok {
		return nil, false
	}
	e.Lock()
	e.Removed = true
	e.Unlock()
	return e, true
}

// RemoveLocked is Remove for callers already holding the entry lock.
// It only removes the mapping if it still points at e.
func (idx *MemoryIndex) RemoveLocked(e *Entry) {
	idx.mu.Lock()
	if cur, ok := idx.entries[e.Instance.Name]; ok && cur == e {
		delete(idx.entries, e.Instance.Name)
		idx.lastChange = time.Now()
	}
	idx.mu.Unlock()
	e.Removed = true
}

// Entries returns a snapshot of all entries
func (idx *MemoryIndex) Entries() []*Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	entries := make([]*Entry, 0, len(idx.entries))
	for _, e := range idx.entries {
		entries = append(entries, e)
	}
	return entries
}

// Count returns the number of instances in the index
func (idx *MemoryIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.entries)
}

// LastChange returns the time of the last insert or removal
func (idx *MemoryIndex) LastChange() time.Time {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.lastChange
}
