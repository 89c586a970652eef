package service

import (
	"sync"

	"github.com/BitcreditProtocol/E-Bill/models"
)

// StateCache materializes replayed bill states. Entries are invalidated on
// every successful append and rebuilt on the next read; a rebuild is atomic
// from the reader's perspective, so no caller ever observes a half-applied
// state. The chain stays the only ground truth.
type StateCache struct {
	rebuild func(billID string) (*models.BillState, error)

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	mu    sync.Mutex
	state *models.BillState
}

func NewStateCache(rebuild func(billID string) (*models.BillState, error)) *StateCache {
	return &StateCache{rebuild: rebuild, entries: make(map[string]*cacheEntry)}
}

func (c *StateCache) entry(billID string) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[billID]
	if !ok {
		e = &cacheEntry{}
		c.entries[billID] = e
	}
	return e
}

// Get returns the cached state, rebuilding it by full replay when absent or
// invalidated. Concurrent readers of the same bill serialize on the entry, so
// at most one replay runs per bill at a time.
func (c *StateCache) Get(billID string) (*models.BillState, error) {
	e := c.entry(billID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != nil {
		return e.state, nil
	}
	st, err := c.rebuild(billID)
	if err != nil {
		return nil, err
	}
	e.state = st
	return st, nil
}

// Peek returns the cached state without triggering a rebuild.
func (c *StateCache) Peek(billID string) (*models.BillState, bool) {
	c.mu.Lock()
	e, ok := c.entries[billID]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, false
	}
	return e.state, true
}

// Invalidate drops the cached state for a bill. The next Get replays.
func (c *StateCache) Invalidate(billID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, billID)
}

// Keys lists the bills currently cached.
func (c *StateCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Clear is the explicit maintenance variant of Invalidate.
func (c *StateCache) Clear(billID string) {
	c.Invalidate(billID)
}

// ClearAll drops every cached state.
func (c *StateCache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}
