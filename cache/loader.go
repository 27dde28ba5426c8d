// Package cache implements the module loader and AOT artifact cache. It
// turns bytecode modules into executable artifacts, keyed by content
// fingerprint, and avoids invoking the heavyweight compile backend when a
// valid artifact already exists.
package cache

import (
	"context"
	"sync"

	domainerrors "github.com/plugforge/plugforge/domain/errors"
	"github.com/plugforge/plugforge/domain/ports"
)

// Backend compiles bytecode to an executable module. In production this is
// the engine adapter, whose runtime keeps native code in a file-backed
// compilation cache; tests inject a counting fake.
type Backend interface {
	Compile(ctx context.Context, binary []byte) (ports.CompiledModule, error)
}

// Loader resolves bytecode modules to compiled artifacts. Compiled modules
// are memoized by fingerprint, so compiling the same bytecode twice performs
// zero additional backend calls. The durable Store holds the module bytes
// content-addressed, letting a later process (or LoadByFingerprint) resolve
// a module without being handed the bytes again.
//
// The Loader is safe for concurrent use; it is the only resource shared
// across plugin instances and is read-mostly after warm-up.
type Loader struct {
	store   *Store
	backend Backend

	mu      sync.Mutex
	modules map[string]ports.CompiledModule
}

// NewLoader creates a Loader over the given store and compile backend.
func NewLoader(store *Store, backend Backend) *Loader {
	return &Loader{
		store:   store,
		backend: backend,
		modules: make(map[string]ports.CompiledModule),
	}
}

// LoadOrCompile returns the compiled artifact for the given bytecode,
// compiling it only if no valid cached artifact exists. On a compile failure
// nothing is cached. The returned fingerprint identifies the module in the
// store and in subsequent LoadByFingerprint calls.
func (l *Loader) LoadOrCompile(ctx context.Context, bytecode []byte) (ports.CompiledModule, string, error) {
	fingerprint := Fingerprint(bytecode)

	l.mu.Lock()
	defer l.mu.Unlock()

	if module, ok := l.modules[fingerprint]; ok {
		return module, fingerprint, nil
	}

	module, err := l.backend.Compile(ctx, bytecode)
	if err != nil {
		return nil, "", &domainerrors.CompileError{Fingerprint: fingerprint, Err: err}
	}

	if _, err := l.store.Put(bytecode); err != nil {
		return nil, "", err
	}

	l.modules[fingerprint] = module
	return module, fingerprint, nil
}

// LoadByFingerprint resolves a previously stored module by fingerprint
// alone. Returns ErrNotFound if the store has no valid entry.
func (l *Loader) LoadByFingerprint(ctx context.Context, fingerprint string) (ports.CompiledModule, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if module, ok := l.modules[fingerprint]; ok {
		return module, nil
	}

	bytecode, err := l.store.Load(fingerprint)
	if err != nil {
		return nil, err
	}

	module, err := l.backend.Compile(ctx, bytecode)
	if err != nil {
		return nil, &domainerrors.CompileError{Fingerprint: fingerprint, Err: err}
	}

	l.modules[fingerprint] = module
	return module, nil
}

// Close releases every memoized compiled module.
func (l *Loader) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for fingerprint, module := range l.modules {
		if err := module.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(l.modules, fingerprint)
	}
	return firstErr
}
