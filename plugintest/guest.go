// Package plugintest provides an in-memory fake execution engine for testing
// plugin host logic without compiling WASM. The fake guest implements the
// documented module contract — init, transform, malloc, __collect, and the
// length-prefixed string framing — over a plain byte slice standing in for
// linear memory.
package plugintest

import (
	"context"
	"encoding/binary"
	stdErrors "errors"
	"fmt"

	domainerrors "github.com/plugforge/plugforge/domain/errors"
	"github.com/plugforge/plugforge/domain/ports"
)

// TrapKey is the execute key that makes the fake guest fault, simulating an
// out-of-bounds access inside guest code.
const TrapKey = "__trap"

// heapBase leaves the first bytes of memory unused, so offset 0 can keep its
// meaning as the allocation-failure sentinel.
const heapBase = 8

const defaultMemorySize = 1 << 20

// Option configures the fake engine.
type Option func(*Engine)

// WithTransform replaces the default transform behavior.
func WithTransform(fn func(key, payload string) string) Option {
	return func(e *Engine) {
		e.transform = func(key, payload string) []byte {
			return []byte(fn(key, payload))
		}
	}
}

// WithRawTransform replaces the transform behavior with one returning raw
// bytes, letting tests produce invalid UTF-8 results.
func WithRawTransform(fn func(key, payload string) []byte) Option {
	return func(e *Engine) {
		e.transform = fn
	}
}

// WithMemorySize sets the guest's linear memory size in bytes. Small values
// force allocation failures.
func WithMemorySize(size uint32) Option {
	return func(e *Engine) {
		e.memorySize = size
	}
}

// WithMissingExport makes instances omit the named export, so hosts observe
// a LinkError when resolving it.
func WithMissingExport(name string) Option {
	return func(e *Engine) {
		e.missing[name] = true
	}
}

// Engine is a fake ports.Engine. Each Instantiate call produces an isolated
// fake guest instance.
type Engine struct {
	transform  func(key, payload string) []byte
	missing    map[string]bool
	memorySize uint32
	instances  []*Instance
}

// NewEngine creates a fake engine. The default transform mirrors the
// reference plugin: "transform: <key> for payload <payload>".
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		transform: func(key, payload string) []byte {
			return fmt.Appendf(nil, "transform: %s for payload %s", key, payload)
		},
		missing:    make(map[string]bool),
		memorySize: defaultMemorySize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Instances returns every instance this engine created, in creation order.
func (e *Engine) Instances() []*Instance {
	return e.instances
}

// LastInstance returns the most recently created instance, or nil.
func (e *Engine) LastInstance() *Instance {
	if len(e.instances) == 0 {
		return nil
	}
	return e.instances[len(e.instances)-1]
}

// Compile implements ports.Engine.
func (e *Engine) Compile(ctx context.Context, binary []byte) (ports.CompiledModule, error) {
	if len(binary) == 0 {
		return nil, stdErrors.New("plugintest: empty module")
	}
	return &compiledModule{}, nil
}

// Instantiate implements ports.Engine.
func (e *Engine) Instantiate(ctx context.Context, module ports.CompiledModule, cfg ports.InstanceConfig) (ports.Instance, error) {
	inst := &Instance{
		engine: e,
		name:   cfg.Name,
		mem:    make([]byte, e.memorySize),
		heap:   heapBase,
	}
	e.instances = append(e.instances, inst)
	return inst, nil
}

// Close implements ports.Engine.
func (e *Engine) Close(ctx context.Context) error {
	return nil
}

type compiledModule struct{}

func (m *compiledModule) Close(ctx context.Context) error {
	return nil
}

// Instance is one fake guest with its own linear memory and bump allocator.
type Instance struct {
	engine *Engine
	name   string
	mem    []byte

	heap       uint32
	lastConfig []byte
	collects   int
	closed     bool
}

// Function implements ports.Instance using the default export names.
func (i *Instance) Function(name string) ports.Function {
	if i.engine.missing[name] {
		return nil
	}
	switch name {
	case "_start", "init", "transform", "malloc", "__collect":
		return &guestFunc{inst: i, name: name}
	default:
		return nil
	}
}

// Memory implements ports.Instance.
func (i *Instance) Memory() ports.Memory {
	if i.engine.missing["memory"] {
		return nil
	}
	return &memory{inst: i}
}

// Close implements ports.Instance.
func (i *Instance) Close(ctx context.Context) error {
	i.closed = true
	return nil
}

// LastConfig returns the configuration bytes the guest received in init.
func (i *Instance) LastConfig() []byte {
	return i.lastConfig
}

// HeapBytes reports the guest's live heap usage: bytes allocated since the
// last reclamation pass.
func (i *Instance) HeapBytes() uint32 {
	return i.heap - heapBase
}

// Collects returns how many times the host triggered reclamation.
func (i *Instance) Collects() int {
	return i.collects
}

// MemorySize returns the linear memory size, which never grows in the fake.
func (i *Instance) MemorySize() uint32 {
	return uint32(len(i.mem))
}

type guestFunc struct {
	inst *Instance
	name string
}

func (f *guestFunc) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	i := f.inst
	switch f.name {
	case "_start":
		return nil, nil
	case "malloc":
		return []uint64{uint64(i.malloc(uint32(params[0])))}, nil
	case "init":
		i.lastConfig = append([]byte(nil), i.readBytes(uint32(params[0]))...)
		return nil, nil
	case "transform":
		key := string(i.readBytes(uint32(params[0])))
		payload := string(i.readBytes(uint32(params[1])))
		if key == TrapKey {
			return nil, &domainerrors.TrapError{
				Function: f.name,
				Err:      stdErrors.New("out of bounds memory access"),
			}
		}
		out := i.engine.transform(key, payload)
		ptr := i.malloc(uint32(len(out)))
		if ptr == 0 {
			return nil, &domainerrors.TrapError{
				Function: f.name,
				Err:      stdErrors.New("allocation failed in guest"),
			}
		}
		copy(i.mem[ptr:], out)
		return []uint64{uint64(ptr)}, nil
	case "__collect":
		// The fake guest retains nothing across calls: a collection pass
		// frees every allocation made since the previous one.
		i.heap = heapBase
		i.collects++
		return nil, nil
	default:
		return nil, fmt.Errorf("plugintest: unknown export %q", f.name)
	}
}

// malloc is a bump allocator honoring the length-prefix framing: the u32
// byte length lives in the 4 bytes before the returned offset. Returns 0
// when the request does not fit in linear memory.
func (i *Instance) malloc(size uint32) uint32 {
	const header = 4
	end := uint64(i.heap) + header + uint64(size)
	if end > uint64(len(i.mem)) {
		return 0
	}
	ptr := i.heap + header
	binary.LittleEndian.PutUint32(i.mem[ptr-header:], size)
	i.heap = uint32(end)
	return ptr
}

// readBytes reads a length-prefixed block, as guest code would.
func (i *Instance) readBytes(ptr uint32) []byte {
	if ptr < 4 || uint64(ptr) > uint64(len(i.mem)) {
		return nil
	}
	size := binary.LittleEndian.Uint32(i.mem[ptr-4:])
	if uint64(ptr)+uint64(size) > uint64(len(i.mem)) {
		return nil
	}
	return i.mem[ptr : ptr+size]
}

// memory implements ports.Memory over the instance's byte slice. Read
// returns a view, mirroring wazero's behavior, so hosts must copy.
type memory struct {
	inst *Instance
}

func (m *memory) Read(offset, byteCount uint32) ([]byte, bool) {
	if uint64(offset)+uint64(byteCount) > uint64(len(m.inst.mem)) {
		return nil, false
	}
	return m.inst.mem[offset : offset+byteCount], true
}

func (m *memory) Write(offset uint32, data []byte) bool {
	if uint64(offset)+uint64(len(data)) > uint64(len(m.inst.mem)) {
		return false
	}
	copy(m.inst.mem[offset:], data)
	return true
}

func (m *memory) Size() uint32 {
	return uint32(len(m.inst.mem))
}
