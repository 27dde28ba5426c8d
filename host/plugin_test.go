package host_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/plugforge/plugforge/cache"
	"github.com/plugforge/plugforge/domain/entities"
	domainerrors "github.com/plugforge/plugforge/domain/errors"
	"github.com/plugforge/plugforge/host"
	"github.com/plugforge/plugforge/plugintest"
)

// moduleBytes stands in for a compiled bytecode module; the fake engine only
// requires it to be non-empty and content-addressable.
var moduleBytes = []byte("\x00asm fake transform plugin v1")

// PluginSuite tests the plugin lifecycle against the fake guest engine.
type PluginSuite struct {
	suite.Suite
	ctx      context.Context
	engine   *plugintest.Engine
	runtime  *host.Runtime
	cacheDir string
}

func (s *PluginSuite) SetupTest() {
	s.ctx = context.Background()
	s.engine = plugintest.NewEngine()
	s.cacheDir = s.T().TempDir()
	s.runtime = s.newRuntime(s.engine)
}

func (s *PluginSuite) newRuntime(engine *plugintest.Engine) *host.Runtime {
	rt, err := host.New(s.ctx,
		host.WithEngine(engine),
		host.WithCacheDir(s.cacheDir),
		host.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.Require().NoError(err)
	return rt
}

func (s *PluginSuite) loadPlugin(opts ...host.LoadOption) *host.Plugin {
	p, err := s.runtime.LoadPlugin(s.ctx, moduleBytes, opts...)
	s.Require().NoError(err)
	return p
}

func (s *PluginSuite) TestEndToEnd() {
	p := s.loadPlugin(host.WithName("demo"))
	s.Equal("demo", p.Name())

	s.Require().NoError(p.Init(s.ctx, []byte("{}")))
	s.Equal([]byte("{}"), s.engine.LastInstance().LastConfig())

	out, err := p.Execute(s.ctx, "k1", "payload-A")
	s.Require().NoError(err)
	s.Equal("transform: k1 for payload payload-A", out)
}

func (s *PluginSuite) TestExecuteBeforeInitReturnsStateError() {
	p := s.loadPlugin()

	_, err := p.Execute(s.ctx, "k1", "payload-A")
	var stateErr *domainerrors.StateError
	s.Require().ErrorAs(err, &stateErr)
	s.Equal("execute", stateErr.Op)
	s.Equal("uninitialized", stateErr.State)
	s.Zero(s.engine.LastInstance().Collects(), "guest must not have been invoked")
}

func (s *PluginSuite) TestInitTwiceReturnsStateError() {
	p := s.loadPlugin()
	s.Require().NoError(p.Init(s.ctx, []byte("{}")))

	err := p.Init(s.ctx, []byte("{}"))
	var stateErr *domainerrors.StateError
	s.Require().ErrorAs(err, &stateErr)
	s.Equal("init", stateErr.Op)
	s.Equal("initialized", stateErr.State)
}

func (s *PluginSuite) TestMarshalingRoundTrip() {
	engine := plugintest.NewEngine(plugintest.WithTransform(func(key, payload string) string {
		return payload
	}))
	rt := s.newRuntime(engine)
	p, err := rt.LoadPlugin(s.ctx, moduleBytes)
	s.Require().NoError(err)
	s.Require().NoError(p.Init(s.ctx, nil))

	for _, input := range []string{
		"",
		"plain ascii",
		"unicode: héllo wörld",
		"emoji: \U0001F680\U0001F9E9",
		"cjk: 漢字カタカナ",
	} {
		out, err := p.Execute(s.ctx, "echo", input)
		s.Require().NoError(err)
		s.Equal(input, out, "marshaling must be byte-exact")
	}
}

func (s *PluginSuite) TestTrapPoisonsInstanceButNotSiblings() {
	victim := s.loadPlugin(host.WithName("victim"))
	sibling := s.loadPlugin(host.WithName("sibling"))
	s.Require().NoError(victim.Init(s.ctx, []byte("{}")))
	s.Require().NoError(sibling.Init(s.ctx, []byte("{}")))

	_, err := victim.Execute(s.ctx, plugintest.TrapKey, "boom")
	var trapErr *domainerrors.TrapError
	s.Require().ErrorAs(err, &trapErr)

	// The trapped instance is poisoned against further use.
	_, err = victim.Execute(s.ctx, "k1", "payload-A")
	var stateErr *domainerrors.StateError
	s.Require().ErrorAs(err, &stateErr)
	s.Equal("poisoned", stateErr.State)
	s.ErrorAs(err, &trapErr, "poisoned state reports the original trap")

	// A sibling instance remains fully functional.
	out, err := sibling.Execute(s.ctx, "k1", "payload-A")
	s.Require().NoError(err)
	s.Equal("transform: k1 for payload payload-A", out)
}

func (s *PluginSuite) TestReclamationKeepsHeapBounded() {
	p := s.loadPlugin()
	s.Require().NoError(p.Init(s.ctx, []byte("{}")))

	inst := s.engine.LastInstance()
	baseline := inst.MemorySize()
	for i := 0; i < 100; i++ {
		_, err := p.Execute(s.ctx, "key", "constant-size-payload")
		s.Require().NoError(err)
		s.Zero(inst.HeapBytes(), "reclamation must free the call's allocations")
	}
	s.Equal(baseline, inst.MemorySize(), "memory must not grow for constant-size inputs")
	s.Equal(101, inst.Collects(), "one reclamation pass per init and per execute")
}

func (s *PluginSuite) TestInvalidUTF8ResultReturnsDecodeError() {
	engine := plugintest.NewEngine(plugintest.WithRawTransform(func(key, payload string) []byte {
		return []byte{0xff, 0xfe, 0xfd}
	}))
	rt := s.newRuntime(engine)
	p, err := rt.LoadPlugin(s.ctx, moduleBytes)
	s.Require().NoError(err)
	s.Require().NoError(p.Init(s.ctx, nil))

	collectsBefore := engine.LastInstance().Collects()
	_, err = p.Execute(s.ctx, "k1", "payload-A")
	s.Require().ErrorIs(err, domainerrors.ErrInvalidUTF8)
	var decodeErr *domainerrors.DecodeError
	s.ErrorAs(err, &decodeErr)
	s.Equal(collectsBefore+1, engine.LastInstance().Collects(),
		"reclamation still runs after a decode failure")

	// A decode failure does not poison the instance.
	_, err = p.Execute(s.ctx, "k1", "payload-A")
	s.ErrorIs(err, domainerrors.ErrInvalidUTF8)
}

func (s *PluginSuite) TestGuestOutOfMemoryReturnsAllocError() {
	engine := plugintest.NewEngine(plugintest.WithMemorySize(64))
	rt := s.newRuntime(engine)
	p, err := rt.LoadPlugin(s.ctx, moduleBytes)
	s.Require().NoError(err)
	s.Require().NoError(p.Init(s.ctx, []byte("{}")))

	_, err = p.Execute(s.ctx, "key", string(make([]byte, 1024)))
	var allocErr *domainerrors.AllocError
	s.Require().ErrorAs(err, &allocErr)
	s.Equal(uint32(1024), allocErr.Size)
}

func (s *PluginSuite) TestMissingExportReturnsLinkError() {
	engine := plugintest.NewEngine(plugintest.WithMissingExport("transform"))
	rt := s.newRuntime(engine)

	_, err := rt.LoadPlugin(s.ctx, moduleBytes)
	var linkErr *domainerrors.LinkError
	s.Require().ErrorAs(err, &linkErr)
	s.Equal("transform", linkErr.Symbol)
}

func (s *PluginSuite) TestMissingMemoryReturnsLinkError() {
	engine := plugintest.NewEngine(plugintest.WithMissingExport("memory"))
	rt := s.newRuntime(engine)

	_, err := rt.LoadPlugin(s.ctx, moduleBytes)
	var linkErr *domainerrors.LinkError
	s.Require().ErrorAs(err, &linkErr)
	s.Equal("memory", linkErr.Symbol)
}

func (s *PluginSuite) TestExportNameOverrideMissingExport() {
	// The fake guest only exports the default names, so an override to an
	// unknown name must surface as a LinkError at load time.
	_, err := s.runtime.LoadPlugin(s.ctx, moduleBytes, host.WithExecuteFunction("run"))
	var linkErr *domainerrors.LinkError
	s.Require().ErrorAs(err, &linkErr)
	s.Equal("run", linkErr.Symbol)
}

func (s *PluginSuite) TestManifestAppliesNameAndOverrides() {
	m := &entities.Manifest{
		Name:    "manifest-plugin",
		Version: "1.0.0",
		Exports: entities.ExportNames{Execute: "transform"},
	}
	p, err := s.runtime.LoadPlugin(s.ctx, moduleBytes, host.WithManifest(m))
	s.Require().NoError(err)
	s.Equal("manifest-plugin", p.Name())
}

func (s *PluginSuite) TestLoadPluginByFingerprint() {
	p := s.loadPlugin()
	fingerprint := p.Fingerprint()
	s.Equal(cache.Fingerprint(moduleBytes), fingerprint)

	// A fresh runtime sharing the cache directory resolves the module from
	// its fingerprint alone.
	rt := s.newRuntime(plugintest.NewEngine())
	loaded, err := rt.LoadPluginByFingerprint(s.ctx, fingerprint)
	s.Require().NoError(err)
	s.Require().NoError(loaded.Init(s.ctx, nil))

	out, err := loaded.Execute(s.ctx, "k1", "payload-A")
	s.Require().NoError(err)
	s.Equal("transform: k1 for payload payload-A", out)

	_, err = rt.LoadPluginByFingerprint(s.ctx, cache.Fingerprint([]byte("unknown")))
	s.ErrorIs(err, cache.ErrNotFound)
}

func TestPluginSuite(t *testing.T) {
	suite.Run(t, new(PluginSuite))
}
