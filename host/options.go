package host

import (
	"log/slog"

	"github.com/plugforge/plugforge/domain/entities"
	"github.com/plugforge/plugforge/domain/ports"
	"github.com/plugforge/plugforge/hostfuncs"
)

// exportNames holds the guest export names the host binds to. The defaults
// match AssemblyScript-style modules: _start, init, transform, malloc,
// __collect.
type exportNames struct {
	Start   string
	Init    string
	Execute string
	Alloc   string
	Collect string
}

func defaultExportNames() exportNames {
	return exportNames{
		Start:   "_start",
		Init:    "init",
		Execute: "transform",
		Alloc:   "malloc",
		Collect: "__collect",
	}
}

// runtimeConfig holds configuration for the Runtime.
type runtimeConfig struct {
	engine         ports.Engine
	registry       *hostfuncs.Registry
	logger         *slog.Logger
	cacheDir       string
	hostModuleName string
}

// Option configures the Runtime.
type Option func(*runtimeConfig)

// WithCacheDir sets the root directory for the module store and the native
// compilation cache. Defaults to a "plugforge" directory under the user
// cache dir.
func WithCacheDir(dir string) Option {
	return func(c *runtimeConfig) {
		c.cacheDir = dir
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *runtimeConfig) {
		c.logger = logger
	}
}

// WithHostFunctions configures the host function table exposed to guests.
func WithHostFunctions(registry *hostfuncs.Registry) Option {
	return func(c *runtimeConfig) {
		c.registry = registry
	}
}

// WithHostModuleName sets the import module name guests use to reach host
// functions (default: "custom").
func WithHostModuleName(name string) Option {
	return func(c *runtimeConfig) {
		c.hostModuleName = name
	}
}

// WithEngine injects a pre-built execution engine. Host functions must
// already be registered with it; WithHostFunctions is ignored in that case.
// Intended for tests and alternative engine adapters.
func WithEngine(engine ports.Engine) Option {
	return func(c *runtimeConfig) {
		c.engine = engine
	}
}

// loadConfig holds per-plugin configuration for LoadPlugin.
type loadConfig struct {
	name    string
	exports exportNames
	env     []ports.EnvVar
	args    []string
}

// LoadOption configures a single plugin load.
type LoadOption func(*loadConfig)

// WithName sets the plugin name used in logs and error messages. Defaults
// to a prefix of the module fingerprint.
func WithName(name string) LoadOption {
	return func(c *loadConfig) {
		c.name = name
	}
}

// WithManifest applies a plugin manifest: its name and any export-name
// overrides it declares.
func WithManifest(m *entities.Manifest) LoadOption {
	return func(c *loadConfig) {
		if m == nil {
			return
		}
		if m.Name != "" {
			c.name = m.Name
		}
		applyExportOverrides(&c.exports, m.Exports)
	}
}

func applyExportOverrides(names *exportNames, overrides entities.ExportNames) {
	if overrides.Start != "" {
		names.Start = overrides.Start
	}
	if overrides.Init != "" {
		names.Init = overrides.Init
	}
	if overrides.Execute != "" {
		names.Execute = overrides.Execute
	}
	if overrides.Alloc != "" {
		names.Alloc = overrides.Alloc
	}
	if overrides.Collect != "" {
		names.Collect = overrides.Collect
	}
}

// WithStartFunction overrides the guest start export name (default "_start").
func WithStartFunction(name string) LoadOption {
	return func(c *loadConfig) {
		c.exports.Start = name
	}
}

// WithInitFunction overrides the guest init export name (default "init").
func WithInitFunction(name string) LoadOption {
	return func(c *loadConfig) {
		c.exports.Init = name
	}
}

// WithExecuteFunction overrides the guest transform export name
// (default "transform").
func WithExecuteFunction(name string) LoadOption {
	return func(c *loadConfig) {
		c.exports.Execute = name
	}
}

// WithAllocFunction overrides the guest allocation export name
// (default "malloc").
func WithAllocFunction(name string) LoadOption {
	return func(c *loadConfig) {
		c.exports.Alloc = name
	}
}

// WithCollectFunction overrides the guest reclamation export name
// (default "__collect").
func WithCollectFunction(name string) LoadOption {
	return func(c *loadConfig) {
		c.exports.Collect = name
	}
}

// WithEnv adds an environment variable to the guest's WASI environment.
func WithEnv(key, value string) LoadOption {
	return func(c *loadConfig) {
		c.env = append(c.env, ports.EnvVar{Key: key, Value: value})
	}
}

// WithArgs sets the guest's WASI arguments.
func WithArgs(args ...string) LoadOption {
	return func(c *loadConfig) {
		c.args = args
	}
}
