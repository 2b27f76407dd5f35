package binding

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Collection is a registry of mounted loaders that can be refreshed
// together.
//
// Thread-safety: all methods are safe for concurrent use.
type Collection struct {
	mu      sync.Mutex
	loaders map[string]func() error
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	return &Collection{loaders: make(map[string]func() error)}
}

// Register adds or replaces the refresh function for name.
func (c *Collection) Register(name string, refresh func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaders[name] = refresh
}

// Deregister removes name.
func (c *Collection) Deregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.loaders, name)
}

// Rename moves the entry for from to to.
func (c *Collection) Rename(from, to string, refresh func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.loaders, from)
	c.loaders[to] = refresh
}

// Names returns the registered names in sorted order.
func (c *Collection) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.loaders))
	for name := range c.loaders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RefreshAll refreshes every registered loader in name order and returns
// the joined errors.
func (c *Collection) RefreshAll() error {
	c.mu.Lock()
	type entry struct {
		name    string
		refresh func() error
	}
	entries := make([]entry, 0, len(c.loaders))
	for name, refresh := range c.loaders {
		entries = append(entries, entry{name, refresh})
	}
	c.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	var errs []error
	for _, e := range entries {
		if err := e.refresh(); err != nil {
			errs = append(errs, fmt.Errorf("refresh %s: %w", e.name, err))
		}
	}
	return errors.Join(errs...)
}
