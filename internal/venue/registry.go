package venue

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the active venues by name. The process builds it once at
// startup; lookups afterwards are read-mostly.
type Registry struct {
	mu     sync.RWMutex
	venues map[string]Venue
}

func NewRegistry() *Registry {
	return &Registry{venues: make(map[string]Venue)}
}

// Register adds a venue. Registering the same name twice is a wiring bug and
// returns an error rather than silently replacing the adapter.
func (r *Registry) Register(v Venue) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := v.Name()
	if _, exists := r.venues[name]; exists {
		return fmt.Errorf("venue %q already registered", name)
	}
	r.venues[name] = v
	return nil
}

// Get returns the venue by name.
func (r *Registry) Get(name string) (Venue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.venues[name]
	return v, ok
}

// Names returns the registered venue names in stable order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.venues))
	for name := range r.venues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CloseAll shuts every venue down and returns the first error encountered.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for _, v := range r.venues {
		if err := v.Close(); err != nil && first == nil {
			first = err
		}
	}
	r.venues = make(map[string]Venue)
	return first
}
