package router

import (
	"slices"
	"sync"

	"github.com/samsonhttp/samson/core/http"
)

// Table maps exact paths to handlers. Lookups from workers and
// registrations from the owner may happen at the same time.
type Table struct {
	mu     sync.RWMutex
	routes map[string]http.Handler
}

// NewTable creates an empty route table
func NewTable() *Table {
	return &Table{
		routes: make(map[string]http.Handler),
	}
}

// Add registers handler for path. The last registration for a path wins.
func (t *Table) Add(path string, handler http.Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.routes[path] = handler
}

// Find looks up an exact path. No pattern matching, no query string.
func (t *Table) Find(path string) (http.Handler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	h, ok := t.routes[path]
	return h, ok
}

// Remove drops the route for path
func (t *Table) Remove(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.routes, path)
}

// Len returns the number of routes
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.routes)
}

// Paths returns the registered paths in sorted order
func (t *Table) Paths() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	paths := make([]string, 0, len(t.routes))
	for p := range t.routes {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}
