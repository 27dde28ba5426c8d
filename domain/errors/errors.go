// Package errors provides domain-specific error types for the plugin host.
// All error types support error unwrapping via errors.As() and errors.Is().
//
// Every failure a plugin can cause is recoverable at the call boundary: the
// host process never crashes on a single plugin failure, it returns one of
// these typed errors to the caller instead.
package errors

import (
	stdErrors "errors"
	"fmt"
)

// ErrInvalidUTF8 indicates the guest returned bytes that are not valid UTF-8.
var ErrInvalidUTF8 = stdErrors.New("invalid utf-8 sequence")

// ErrOutOfRange indicates a linear-memory access outside the guest's memory.
var ErrOutOfRange = stdErrors.New("memory access out of range")

// CompileError represents a failure to compile a bytecode module to native
// code. Nothing is cached when compilation fails.
type CompileError struct {
	Err         error
	Fingerprint string
}

func (e *CompileError) Error() string {
	if e.Fingerprint != "" {
		return fmt.Sprintf("compile failed for module %s: %v", e.Fingerprint, e.Err)
	}
	return fmt.Sprintf("compile failed: %v", e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// IOError represents a cache read or write failure.
type IOError struct {
	Err  error
	Op   string
	Path string
}

func (e *IOError) Error() string {
	return fmt.Sprintf("cache %s failed for %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// LinkError represents a missing host import or a guest export mismatch,
// detected when the module is instantiated or its exports are resolved.
type LinkError struct {
	Err    error
	Module string
	Symbol string
}

func (e *LinkError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("link failed for module %q: missing export %q", e.Module, e.Symbol)
	}
	return fmt.Sprintf("link failed for module %q: %v", e.Module, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

// AllocError represents a guest allocation failure, typically because the
// guest ran out of linear memory.
type AllocError struct {
	Err  error
	Size uint32
}

func (e *AllocError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("guest allocation of %d bytes failed: %v", e.Size, e.Err)
	}
	return fmt.Sprintf("guest allocation of %d bytes failed", e.Size)
}

func (e *AllocError) Unwrap() error {
	return e.Err
}

// DecodeError represents a failure to decode a guest result buffer, either
// because the offset is out of range or the bytes are not valid UTF-8.
type DecodeError struct {
	Err    error
	Offset uint32
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode of guest result at offset %d failed: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// StateError represents an API call made out of lifecycle order, including
// any call made on an instance poisoned by an earlier trap.
type StateError struct {
	Err   error
	Op    string
	State string
}

func (e *StateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot %s: plugin is %s: %v", e.Op, e.State, e.Err)
	}
	return fmt.Sprintf("cannot %s: plugin is %s", e.Op, e.State)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// TrapError represents a guest execution fault (out-of-bounds access,
// unreachable instruction, unhandled panic in guest code). A trap poisons
// the execution environment it occurred in; the instance must not be reused.
type TrapError struct {
	Err      error
	Function string
}

func (e *TrapError) Error() string {
	return fmt.Sprintf("guest function %q trapped: %v", e.Function, e.Err)
}

func (e *TrapError) Unwrap() error {
	return e.Err
}
