package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rhuss/convlog/pkg/api"
)

// Registry holds mappers by name.
type Registry struct {
	mu      sync.RWMutex
	mappers map[string]Mapper
}

// NewRegistry creates a registry holding the given mappers.
func NewRegistry(mappers ...Mapper) *Registry {
	r := &Registry{mappers: make(map[string]Mapper, len(mappers))}
	for _, m := range mappers {
		r.Register(m)
	}
	return r
}

// Register adds m, replacing any mapper with the same name.
func (r *Registry) Register(m Mapper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappers[m.Name()] = m
}

// Get returns the mapper for name. An unknown name is a configuration error.
func (r *Registry) Get(name string) (Mapper, error) {
	r.mu.RLock()
	m, ok := r.mappers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, api.NewConfigurationError("provider",
			fmt.Sprintf("unknown provider %q (known: %v)", name, r.Names()))
	}
	return m, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.mappers))
	for n := range r.mappers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Encode converts log into the message shape of the named provider.
func (r *Registry) Encode(log *api.EventLog, name string) (*Payload, error) {
	m, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return m.Encode(log)
}

// Decode converts a payload of the named provider back into events.
func (r *Registry) Decode(p *Payload, name string) (*Conversion, error) {
	m, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return m.Decode(p)
}
