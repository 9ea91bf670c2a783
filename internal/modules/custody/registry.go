package custody

import (
	"fmt"
	"sync"

	"github.com/aristath/custodian/internal/domain"
)

// Backend identifies a custody backend kind
type Backend string

const (
	BackendEnv    Backend = "env"
	BackendRemote Backend = "remote"
)

// Registry maps backend kinds to vault constructors so the active backend
// is selected by configuration rather than hard-wired
type Registry struct {
	mu        sync.RWMutex
	factories map[Backend]func() (Vault, error)
}

// NewRegistry creates an empty custody backend registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[Backend]func() (Vault, error)),
	}
}

// Register adds a backend constructor. Registering the same kind twice
// replaces the earlier constructor.
func (r *Registry) Register(kind Backend, factory func() (Vault, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// Resolve constructs the vault for the given backend kind. An unknown kind
// is a configuration error, fatal at startup.
func (r *Registry) Resolve(kind Backend) (Vault, error) {
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, &domain.ConfigurationError{
			Field: "CUSTODY_BACKEND",
			Err:   fmt.Errorf("no custody backend registered for %q", kind),
		}
	}
	return factory()
}

// Kinds lists the registered backend kinds
func (r *Registry) Kinds() []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Backend, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	return kinds
}
