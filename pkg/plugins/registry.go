package plugins

import (
	"fmt"
	"sort"
	"sync"
)

var (
	// factories is the package-level catalog of plugin constructors
	factories = make(map[string]Factory)
	// mu protects concurrent access to factories map
	mu sync.RWMutex
)

// RegisterFactory adds a plugin constructor to the catalog under id
func RegisterFactory(id string, factory Factory) error {
	if id == "" {
		return fmt.Errorf("cannot register factory with empty id")
	}
	if factory == nil {
		return fmt.Errorf("cannot register nil factory: %s", id)
	}

	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[id]; exists {
		return fmt.Errorf("factory already registered: %s", id)
	}

	factories[id] = factory
	return nil
}

// MustRegisterFactory is RegisterFactory for use from init functions
func MustRegisterFactory(id string, factory Factory) {
	if err := RegisterFactory(id, factory); err != nil {
		panic(err)
	}
}

// ResolveFactory looks up the constructor registered under id
func ResolveFactory(id string) (Factory, error) {
	mu.RLock()
	defer mu.RUnlock()

	factory, exists := factories[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrFactoryNotFound, id)
	}

	return factory, nil
}

// HasFactory checks if a constructor is registered
func HasFactory(id string) bool {
	mu.RLock()
	defer mu.RUnlock()

	_, exists := factories[id]
	return exists
}

// FactoryIDs returns all registered identifiers in sorted order
func FactoryIDs() []string {
	mu.RLock()
	defer mu.RUnlock()

	ids := make([]string, 0, len(factories))
	for id := range factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

// ResetFactories removes all constructors from the catalog
func ResetFactories() {
	mu.Lock()
	defer mu.Unlock()

	factories = make(map[string]Factory)
}
