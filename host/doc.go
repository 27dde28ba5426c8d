// Package host provides the runtime environment for executing WASM plugins
// compiled ahead-of-time and cached by content fingerprint.
//
// It abstracts the underlying WASM engine (wazero), manages plugin lifecycle,
// and handles the low-level ABI interactions: guest memory allocation, string
// marshaling across linear memory, and host-driven reclamation. This package
// also facilitates the registration of host functions, enabling plugins to
// call back into host logic.
package host
