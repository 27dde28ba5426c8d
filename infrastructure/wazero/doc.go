// Package wazero adapts the wazero WebAssembly runtime to the engine ports
// used by the plugin host.
//
// This package bridges the engine-neutral host function table and the wazero
// runtime. It handles:
//
//   - Registering host functions with the wazero host module builder
//   - Persisting compiled native code via wazero's file compilation cache
//   - Wiring guest WASI stdio, env, and args into each instance
//   - Translating guest faults into domain TrapError values
//
// # Basic Usage
//
//	registry, err := hostfuncs.NewRegistry(
//	    hostfuncs.WithFunc(hostfuncs.I32Func("tests", tests)),
//	)
//	if err != nil {
//	    return err
//	}
//
//	engine, err := wazero.New(ctx, wazero.Config{
//	    CacheDir: cacheDir,
//	    Registry: registry,
//	})
package wazero
