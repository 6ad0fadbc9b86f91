package realtime

import "sync"

// Registry maps group keys to subscribed connection ids. Group keys are
// opaque; subscribing to a nonexistent entity is harmless and simply never
// receives events.
type Registry struct {
	mu     sync.RWMutex
	groups map[string]map[string]struct{}
	// conns indexes group membership per connection so DropConnection does
	// not scan every group.
	conns map[string]map[string]struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		groups: map[string]map[string]struct{}{},
		conns:  map[string]map[string]struct{}{},
	}
}

// Join subscribes the connection to the group. Joining twice is a no-op.
func (r *Registry) Join(connID, groupKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[groupKey]
	if !ok {
		g = map[string]struct{}{}
		r.groups[groupKey] = g
	}
	g[connID] = struct{}{}

	c, ok := r.conns[connID]
	if !ok {
		c = map[string]struct{}{}
		r.conns[connID] = c
	}
	c[groupKey] = struct{}{}
}

// Leave unsubscribes the connection from the group if present.
func (r *Registry) Leave(connID, groupKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connID, groupKey)
}

func (r *Registry) leaveLocked(connID, groupKey string) {
	if g, ok := r.groups[groupKey]; ok {
		delete(g, connID)
		if len(g) == 0 {
			delete(r.groups, groupKey)
		}
	}
	if c, ok := r.conns[connID]; ok {
		delete(c, groupKey)
		if len(c) == 0 {
			delete(r.conns, connID)
		}
	}
}

// DropConnection removes the connection from every group it belongs to.
// Called exactly once per connection, on disconnect.
func (r *Registry) DropConnection(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for groupKey := range r.conns[connID] {
		r.leaveLocked(connID, groupKey)
	}
	delete(r.conns, connID)
}

// Members returns a snapshot of the connection ids subscribed to the group.
func (r *Registry) Members(groupKey string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g := r.groups[groupKey]
	ids := make([]string, 0, len(g))
	for id := range g {
		ids = append(ids, id)
	}
	return ids
}

// Groups returns a snapshot of the group keys the connection belongs to.
func (r *Registry) Groups(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.conns[connID]
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
