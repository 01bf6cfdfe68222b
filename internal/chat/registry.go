package chat

import (
	"sync"

	"github.com/omochice/termchat/pkg/protocol"
)

// Registry tracks the users present in the room, keyed by server id and kept
// in the order they were first seen.
type Registry struct {
	names map[string]string
	order []string
	mu    sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		names: make(map[string]string),
	}
}

// Set records name for id. An existing id keeps its position and takes the new name.
func (r *Registry) Set(id, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[id]; !ok {
		r.order = append(r.order, id)
	}
	r.names[id] = name
}

// Remove deletes id and reports whether it was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[id]; !ok {
		return false
	}
	delete(r.names, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the name stored for id.
func (r *Registry) Get(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[id]
	return name, ok
}

// Len returns number of users present.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

// Names returns the user names in registry order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.order))
	for _, id := range r.order {
		names = append(names, r.names[id])
	}
	return names
}

// Users returns a snapshot of the registry in order.
func (r *Registry) Users() []protocol.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]protocol.User, 0, len(r.order))
	for _, id := range r.order {
		users = append(users, protocol.User{ID: id, UserName: r.names[id]})
	}
	return users
}
