package host

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/plugforge/plugforge/cache"
	domainerrors "github.com/plugforge/plugforge/domain/errors"
	"github.com/plugforge/plugforge/domain/ports"
	wazeroengine "github.com/plugforge/plugforge/infrastructure/wazero"
)

// Runtime hosts sandboxed plugin modules. It owns the execution engine and
// the shared AOT artifact cache; plugins loaded from it are otherwise fully
// isolated from each other.
type Runtime struct {
	engine     ports.Engine
	loader     *cache.Loader
	logger     *slog.Logger
	ownsEngine bool
}

// New creates a plugin host runtime.
func New(ctx context.Context, opts ...Option) (*Runtime, error) {
	cfg := runtimeConfig{
		logger:         slog.Default(),
		hostModuleName: wazeroengine.DefaultHostModuleName,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.cacheDir == "" {
		cfg.cacheDir = defaultCacheDir()
	}

	store, err := cache.NewStore(filepath.Join(cfg.cacheDir, "modules"))
	if err != nil {
		return nil, err
	}

	engine := cfg.engine
	ownsEngine := false
	if engine == nil {
		engine, err = wazeroengine.New(ctx, wazeroengine.Config{
			CacheDir:       filepath.Join(cfg.cacheDir, "compiled"),
			HostModuleName: cfg.hostModuleName,
			Registry:       cfg.registry,
			Logger:         cfg.logger,
		})
		if err != nil {
			return nil, err
		}
		ownsEngine = true
	}

	return &Runtime{
		engine:     engine,
		loader:     cache.NewLoader(store, engine),
		logger:     cfg.logger,
		ownsEngine: ownsEngine,
	}, nil
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "plugforge")
	}
	return filepath.Join(os.TempDir(), "plugforge-cache")
}

// LoadPlugin compiles (or loads from cache) the given bytecode module and
// binds a new plugin instance around it.
func (r *Runtime) LoadPlugin(ctx context.Context, moduleBytes []byte, opts ...LoadOption) (*Plugin, error) {
	module, fingerprint, err := r.loader.LoadOrCompile(ctx, moduleBytes)
	if err != nil {
		return nil, err
	}
	return r.newPlugin(ctx, module, fingerprint, opts)
}

// LoadPluginByFingerprint binds a plugin instance around a module previously
// published to the store, identified by content fingerprint alone. Returns
// cache.ErrNotFound if no valid entry exists.
func (r *Runtime) LoadPluginByFingerprint(ctx context.Context, fingerprint string, opts ...LoadOption) (*Plugin, error) {
	module, err := r.loader.LoadByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	return r.newPlugin(ctx, module, fingerprint, opts)
}

func (r *Runtime) newPlugin(ctx context.Context, module ports.CompiledModule, fingerprint string, opts []LoadOption) (*Plugin, error) {
	cfg := loadConfig{exports: defaultExportNames()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.name == "" {
		cfg.name = shortFingerprint(fingerprint)
	}

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	instance, err := r.engine.Instantiate(ctx, module, ports.InstanceConfig{
		Name:   cfg.name,
		Env:    cfg.env,
		Args:   cfg.args,
		Stdout: stdout,
		Stderr: stderr,
	})
	if err != nil {
		return nil, err
	}

	p := &Plugin{
		name:        cfg.name,
		fingerprint: fingerprint,
		exports:     cfg.exports,
		instance:    instance,
		logger:      r.logger,
		stdout:      stdout,
		stderr:      stderr,
	}
	if err := p.resolveExports(); err != nil {
		instance.Close(ctx)
		return nil, err
	}

	r.logger.Debug("plugin loaded", "plugin", cfg.name, "fingerprint", fingerprint)
	return p, nil
}

func shortFingerprint(fingerprint string) string {
	if len(fingerprint) > 12 {
		return fingerprint[:12]
	}
	return fingerprint
}

// resolveExports binds the guest functions the module contract requires.
// A missing required export is a LinkError at load time, not a fault at
// first call.
func (p *Plugin) resolveExports() error {
	p.memory = p.instance.Memory()
	if p.memory == nil {
		return &domainerrors.LinkError{Module: p.name, Symbol: "memory"}
	}
	required := []struct {
		name string
		dst  *ports.Function
	}{
		{p.exports.Init, &p.initFn},
		{p.exports.Execute, &p.executeFn},
		{p.exports.Alloc, &p.allocFn},
		{p.exports.Collect, &p.collectFn},
	}
	for _, exp := range required {
		fn := p.instance.Function(exp.name)
		if fn == nil {
			return &domainerrors.LinkError{Module: p.name, Symbol: exp.name}
		}
		*exp.dst = fn
	}
	// The start export is optional; reactor-style modules omit it.
	p.startFn = p.instance.Function(p.exports.Start)
	return nil
}

// Close releases the runtime: all memoized compiled modules and, when the
// runtime constructed its own engine, the engine itself.
func (r *Runtime) Close(ctx context.Context) error {
	err := r.loader.Close(ctx)
	if r.ownsEngine {
		if cerr := r.engine.Close(ctx); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("runtime close: %w", err)
	}
	return nil
}
