package hostfuncs

import (
	"fmt"
	"sort"
)

// Registry is an immutable collection of named host functions. Once created
// via NewRegistry, functions cannot be added or removed. This ensures thread
// safety and lock-free lookups during guest execution.
type Registry struct {
	funcs map[string]Func
	names []string // sorted for consistent iteration
}

// registryBuilder accumulates configuration during registry construction.
type registryBuilder struct {
	funcs      map[string]Func
	middleware []Middleware
	errors     []error
}

// NewRegistry creates an immutable Registry with the given options.
// Returns an error if any function name is registered twice.
//
// Example usage:
//
//	registry, err := hostfuncs.NewRegistry(
//	    hostfuncs.WithMiddleware(hostfuncs.PanicRecoveryMiddleware(logger)),
//	    hostfuncs.WithFunc(hostfuncs.I32Func("tests", tests)),
//	)
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	b := &registryBuilder{
		funcs: make(map[string]Func),
	}

	for _, opt := range opts {
		opt(b)
	}

	if len(b.errors) > 0 {
		return nil, b.errors[0] // Return first error
	}

	// Build sorted name list for consistent iteration
	names := make([]string, 0, len(b.funcs))
	for name := range b.funcs {
		names = append(names, name)
	}
	sort.Strings(names)

	// Apply middleware chain to all handlers (FIFO order)
	wrapped := make(map[string]Func, len(b.funcs))
	for name, fn := range b.funcs {
		h := fn.Handler
		// Apply middleware in reverse order so first middleware wraps outermost
		for i := len(b.middleware) - 1; i >= 0; i-- {
			h = b.middleware[i](name, h)
		}
		fn.Handler = h
		wrapped[name] = fn
	}

	return &Registry{funcs: wrapped, names: names}, nil
}

// Get returns the function registered under name.
func (r *Registry) Get(name string) (Func, bool) {
	fn, ok := r.funcs[name]
	return fn, ok
}

// Has returns true if a function with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.funcs[name]
	return ok
}

// Names returns a sorted list of all registered function names.
func (r *Registry) Names() []string {
	result := make([]string, len(r.names))
	copy(result, r.names)
	return result
}

// Len returns the number of registered functions.
func (r *Registry) Len() int {
	return len(r.funcs)
}

// addFunc registers a function under its name.
// Returns an error if the name is empty or already registered.
func (b *registryBuilder) addFunc(fn Func) error {
	if fn.Name == "" {
		return fmt.Errorf("host function name cannot be empty")
	}
	if fn.Handler == nil {
		return fmt.Errorf("host function %q has no handler", fn.Name)
	}
	if _, exists := b.funcs[fn.Name]; exists {
		return fmt.Errorf("duplicate host function name: %q", fn.Name)
	}
	b.funcs[fn.Name] = fn
	return nil
}

// WithFunc registers a host function.
func WithFunc(fn Func) RegistryOption {
	return func(b *registryBuilder) {
		if err := b.addFunc(fn); err != nil {
			b.errors = append(b.errors, err)
		}
	}
}

// WithMiddleware adds middleware to the registry.
// Middleware executes in FIFO order (first added wraps first).
func WithMiddleware(mw ...Middleware) RegistryOption {
	return func(b *registryBuilder) {
		b.middleware = append(b.middleware, mw...)
	}
}
