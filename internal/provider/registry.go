package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vortexdl/vortex/internal/errs"
)

// Registry holds the providers available to a run, keyed by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider. Registering the same name twice is an error.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.Name()
	if _, exists := r.providers[name]; exists {
		return errs.New(errs.KindConfiguration, "PROVIDER_DUPLICATE",
			fmt.Sprintf("provider %q already registered", name))
	}
	r.providers[name] = p
	return nil
}

// Get returns the provider for a name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, errs.New(errs.KindConfiguration, "PROVIDER_UNKNOWN",
			fmt.Sprintf("unknown provider %q", name)).
			WithHelp("available providers: "+fmt.Sprint(r.namesLocked()), "fix the provider name")
	}
	return p, nil
}

// Names lists registered provider names sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
