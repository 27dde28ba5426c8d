// Package ports defines the interfaces between the plugin host and its
// collaborators. The execution engine interfaces abstract the underlying
// WASM runtime so host logic can be tested against an in-memory fake.
package ports

import (
	"context"
	"io"
)

// Engine compiles bytecode modules and instantiates them into isolated
// execution environments. Implementations wrap a concrete WASM runtime.
type Engine interface {
	// Compile turns a bytecode module into an executable representation.
	Compile(ctx context.Context, binary []byte) (CompiledModule, error)

	// Instantiate creates one live execution environment from a compiled
	// module. Each instance owns its own linear memory; instances are never
	// shared. A module referencing an unknown host import fails here with a
	// LinkError.
	Instantiate(ctx context.Context, module CompiledModule, cfg InstanceConfig) (Instance, error)

	// Close releases the engine and everything it created.
	Close(ctx context.Context) error
}

// CompiledModule is the executable representation of a bytecode module.
// It is immutable and safe to instantiate multiple times.
type CompiledModule interface {
	Close(ctx context.Context) error
}

// Instance is one live execution environment with its own linear memory.
// An Instance is not safe for concurrent calls from multiple goroutines
// without external serialization.
type Instance interface {
	// Function resolves an exported guest function, or nil if the module
	// does not export it.
	Function(name string) Function

	// Memory returns the instance's linear memory, or nil if the module
	// does not export one.
	Memory() Memory

	Close(ctx context.Context) error
}

// Function is a handle to an exported guest function. Call blocks until the
// guest returns; a guest fault surfaces as a TrapError.
type Function interface {
	Call(ctx context.Context, params ...uint64) ([]uint64, error)
}

// Memory is the guest's linear memory, addressed by offset. Read may return
// a view into the underlying memory; callers that keep bytes past the next
// guest call must copy them first.
type Memory interface {
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, data []byte) bool
	Size() uint32
}

// EnvVar is one environment variable passed to the guest.
type EnvVar struct {
	Key   string
	Value string
}

// InstanceConfig carries per-instance settings into Engine.Instantiate.
type InstanceConfig struct {
	// Name is the instance name, used in logs and error messages.
	Name string

	// Env and Args are passed through to the guest's WASI environment.
	Env  []EnvVar
	Args []string

	// Stdout and Stderr receive the guest's WASI stdio. The host drains
	// and re-logs them after each guest call.
	Stdout io.Writer
	Stderr io.Writer
}
