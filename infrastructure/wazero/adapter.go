package wazero

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	domainerrors "github.com/plugforge/plugforge/domain/errors"
	"github.com/plugforge/plugforge/domain/ports"
	"github.com/plugforge/plugforge/hostfuncs"
)

// DefaultHostModuleName is the import module name guest code uses to reach
// host functions unless overridden.
const DefaultHostModuleName = "custom"

// Config holds configuration for the wazero engine adapter.
type Config struct {
	// CacheDir, when non-empty, enables wazero's file-backed compilation
	// cache rooted at this directory. Compiled native code is persisted
	// there, so a later process loads the artifact instead of recompiling.
	CacheDir string

	// HostModuleName is the import module name for host functions
	// (default: "custom").
	HostModuleName string

	// Registry is the host function table to expose to guests.
	Registry *hostfuncs.Registry

	// Logger receives adapter diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Engine implements ports.Engine on top of the wazero runtime.
type Engine struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache
	logger  *slog.Logger
}

// New creates a wazero-backed engine. Host functions from cfg.Registry are
// registered once, when the engine is constructed; every instance created
// from this engine can import them.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.HostModuleName == "" {
		cfg.HostModuleName = DefaultHostModuleName
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	rcfg := wazero.NewRuntimeConfig()
	var cache wazero.CompilationCache
	if cfg.CacheDir != "" {
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(cfg.CacheDir)
		if err != nil {
			return nil, &domainerrors.IOError{Op: "open compilation cache", Path: cfg.CacheDir, Err: err}
		}
		rcfg = rcfg.WithCompilationCache(cache)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rcfg)
	wasi_snapshot_preview1.MustInstantiate(ctx, rt)

	if cfg.Registry != nil && cfg.Registry.Len() > 0 {
		if err := registerHostModule(ctx, rt, cfg.HostModuleName, cfg.Registry); err != nil {
			rt.Close(ctx)
			if cache != nil {
				cache.Close(ctx)
			}
			return nil, fmt.Errorf("failed to register host functions: %w", err)
		}
	}

	return &Engine{runtime: rt, cache: cache, logger: cfg.Logger}, nil
}

// registerHostModule exports every registry function under the given module
// name with its declared numeric signature.
func registerHostModule(ctx context.Context, rt wazero.Runtime, moduleName string, registry *hostfuncs.Registry) error {
	builder := rt.NewHostModuleBuilder(moduleName)
	for _, name := range registry.Names() {
		fn, _ := registry.Get(name)
		builder.NewFunctionBuilder().
			WithGoFunction(api.GoFunc(fn.Handler), toValueTypes(fn.Params), toValueTypes(fn.Results)).
			Export(name)
	}
	_, err := builder.Instantiate(ctx)
	return err
}

// toValueTypes maps the engine-neutral signature types to wazero's.
func toValueTypes(types []hostfuncs.ValueType) []api.ValueType {
	if len(types) == 0 {
		return nil
	}
	out := make([]api.ValueType, len(types))
	for i, t := range types {
		switch t {
		case hostfuncs.I32:
			out[i] = api.ValueTypeI32
		case hostfuncs.I64:
			out[i] = api.ValueTypeI64
		case hostfuncs.F32:
			out[i] = api.ValueTypeF32
		case hostfuncs.F64:
			out[i] = api.ValueTypeF64
		}
	}
	return out
}

// Compile implements ports.Engine. With a cache directory configured, native
// code for a previously seen module is loaded from disk instead of being
// recompiled.
func (e *Engine) Compile(ctx context.Context, binary []byte) (ports.CompiledModule, error) {
	compiled, err := e.runtime.CompileModule(ctx, binary)
	if err != nil {
		return nil, fmt.Errorf("wazero compile: %w", err)
	}
	e.logger.DebugContext(ctx, "module compiled", "size", len(binary))
	return &compiledModule{module: compiled}, nil
}

// Instantiate implements ports.Engine. The start function is not run here;
// the host invokes it explicitly during plugin initialization.
func (e *Engine) Instantiate(ctx context.Context, module ports.CompiledModule, cfg ports.InstanceConfig) (ports.Instance, error) {
	wm, ok := module.(*compiledModule)
	if !ok {
		return nil, fmt.Errorf("compiled module %T was not produced by this engine", module)
	}

	mcfg := wazero.NewModuleConfig().
		WithName(""). // anonymous, so one module can back many instances
		WithStartFunctions()
	if cfg.Stdout != nil {
		mcfg = mcfg.WithStdout(cfg.Stdout)
	}
	if cfg.Stderr != nil {
		mcfg = mcfg.WithStderr(cfg.Stderr)
	}
	if len(cfg.Args) > 0 {
		mcfg = mcfg.WithArgs(cfg.Args...)
	}
	for _, env := range cfg.Env {
		mcfg = mcfg.WithEnv(env.Key, env.Value)
	}

	instance, err := e.runtime.InstantiateModule(ctx, wm.module, mcfg)
	if err != nil {
		return nil, &domainerrors.LinkError{Module: cfg.Name, Err: err}
	}
	return &moduleInstance{instance: instance}, nil
}

// Close implements ports.Engine.
func (e *Engine) Close(ctx context.Context) error {
	err := e.runtime.Close(ctx)
	if e.cache != nil {
		if cerr := e.cache.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}

// compiledModule implements ports.CompiledModule.
type compiledModule struct {
	module wazero.CompiledModule
}

func (m *compiledModule) Close(ctx context.Context) error {
	return m.module.Close(ctx)
}

// moduleInstance implements ports.Instance.
type moduleInstance struct {
	instance api.Module
}

func (m *moduleInstance) Function(name string) ports.Function {
	fn := m.instance.ExportedFunction(name)
	if fn == nil {
		return nil
	}
	return &functionInstance{function: fn, name: name}
}

func (m *moduleInstance) Memory() ports.Memory {
	mem := m.instance.Memory()
	if mem == nil {
		return nil
	}
	return &memory{memory: mem}
}

func (m *moduleInstance) Close(ctx context.Context) error {
	return m.instance.Close(ctx)
}

// functionInstance implements ports.Function, translating guest faults into
// TrapError so callers can poison the instance.
type functionInstance struct {
	function api.Function
	name     string
}

func (f *functionInstance) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	results, err := f.function.Call(ctx, params...)
	if err == nil {
		return results, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	var exit *sys.ExitError
	if errors.As(err, &exit) && exit.ExitCode() == 0 {
		// Clean exit from a command-style start function.
		return results, nil
	}
	return nil, &domainerrors.TrapError{Function: f.name, Err: err}
}

// memory implements ports.Memory. Read returns a view into the guest's
// linear memory; callers copy before the next guest call.
type memory struct {
	memory api.Memory
}

func (m *memory) Read(offset, byteCount uint32) ([]byte, bool) {
	return m.memory.Read(offset, byteCount)
}

func (m *memory) Write(offset uint32, data []byte) bool {
	return m.memory.Write(offset, data)
}

func (m *memory) Size() uint32 {
	return m.memory.Size()
}
