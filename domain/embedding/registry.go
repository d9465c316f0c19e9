package embedding

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates configured Function instances.
type Factory interface {
	Create(params Params) (Function, error)
}

// FactoryFunc adapts a plain function to the Factory interface.
type FactoryFunc func(params Params) (Function, error)

// Create calls f(params).
func (f FactoryFunc) Create(params Params) (Function, error) {
	return f(params)
}

// instanceFactory always returns the same preconfigured instance.
type instanceFactory struct {
	fn Function
}

func (f instanceFactory) Create(Params) (Function, error) {
	return f.fn, nil
}

// Instance returns a Factory that ignores params and always yields fn.
func Instance(fn Function) Factory {
	return instanceFactory{fn: fn}
}

// Handle is the result of a registry lookup. It can create functions
// without touching the registry again.
type Handle struct {
	name    string
	factory Factory
}

// Name returns the registered name.
func (h Handle) Name() string { return h.name }

// Create builds a function from the handle's factory.
func (h Handle) Create(params Params) (Function, error) {
	fn, err := h.factory.Create(params)
	if err != nil {
		return nil, fmt.Errorf("create embedding function %q: %w", h.name, err)
	}
	if fn == nil {
		return nil, fmt.Errorf("create embedding function %q: factory returned nil", h.name)
	}
	return fn, nil
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithAllowOverwrite lets Register replace an existing name instead of failing.
func WithAllowOverwrite() RegistryOption {
	return func(r *Registry) { r.allowOverwrite = true }
}

// RegisterOption configures a single Register call.
type RegisterOption func(*registerConfig)

type registerConfig struct {
	overwrite bool
}

// WithOverwrite replaces an existing registration for this call only.
func WithOverwrite() RegisterOption {
	return func(c *registerConfig) { c.overwrite = true }
}

// Registry maps function names to factories. It is safe for concurrent use;
// the lock guards only the map and is never held while a function computes.
//
// Names are case-sensitive and used verbatim.
type Registry struct {
	factories      map[string]Factory
	allowOverwrite bool
	mu             sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a factory under name. It fails with ErrDuplicateName if the
// name is taken and neither the registry nor the call allows overwriting.
func (r *Registry) Register(name string, factory Factory, opts ...RegisterOption) error {
	if name == "" {
		return fmt.Errorf("register embedding function: empty name")
	}
	if factory == nil {
		return fmt.Errorf("register embedding function %q: nil factory", name)
	}

	var cfg registerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists && !(r.allowOverwrite || cfg.overwrite) {
		return &RegistryError{Name: name, Kind: ErrDuplicateName}
	}
	r.factories[name] = factory
	return nil
}

// RegisterFunction registers a preconfigured function instance under name.
func (r *Registry) RegisterFunction(name string, fn Function, opts ...RegisterOption) error {
	if fn == nil {
		return fmt.Errorf("register embedding function %q: nil function", name)
	}
	return r.Register(name, Instance(fn), opts...)
}

// Get looks up name without constructing anything.
func (r *Registry) Get(name string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return Handle{}, false
	}
	return Handle{name: name, factory: factory}, true
}

// Create builds the function registered under name.
// Returns a RegistryError wrapping ErrNotFound if name is absent.
func (r *Registry) Create(name string, params Params) (Function, error) {
	handle, ok := r.Get(name)
	if !ok {
		return nil, &RegistryError{Name: name, Kind: ErrNotFound}
	}
	return handle.Create(params)
}

// Unregister removes name and reports whether it was present.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.factories[name]
	delete(r.factories, name)
	return ok
}

// Names returns all registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
