// Package hostfuncs provides the host function table: the fixed set of
// native functions the host registers into a guest's execution environment.
// These implementations have NO WASM runtime dependencies (no wazero); they
// can be registered with any engine adapter.
//
// Host function signatures are numeric-only. Structured data crosses the
// boundary through linear memory, handled by the host package.
package hostfuncs
