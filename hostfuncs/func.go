package hostfuncs

import (
	"context"
)

// Version identifies the host function import contract. A guest built
// against a different contract version may reference imports the host does
// not provide; such modules fail to instantiate with a LinkError rather
// than faulting at call time.
const Version = 1

// ValueType identifies a numeric WASM value type. The host/guest boundary
// carries only numeric values; structured data crosses it through linear
// memory, never through host function signatures.
type ValueType byte

const (
	I32 ValueType = iota
	I64
	F32
	F64
)

// String returns the WASM text-format name of the value type.
func (v ValueType) String() string {
	switch v {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	default:
		return "unknown"
	}
}

// Handler is the raw calling convention for a host function. Params arrive
// on the stack slice in declaration order; results are written back to the
// front of the same slice.
type Handler func(ctx context.Context, stack []uint64)

// Func describes one host function: its export name, numeric signature, and
// implementation. Guest code calls it synchronously; side effects are
// visible in call order from the guest's perspective.
type Func struct {
	Handler Handler
	Name    string
	Params  []ValueType
	Results []ValueType
}

// I32Func builds a Func with signature (i32) -> i32.
func I32Func(name string, fn func(ctx context.Context, v int32) int32) Func {
	return Func{
		Name:    name,
		Params:  []ValueType{I32},
		Results: []ValueType{I32},
		Handler: func(ctx context.Context, stack []uint64) {
			stack[0] = uint64(uint32(fn(ctx, int32(uint32(stack[0])))))
		},
	}
}

// I64Func builds a Func with signature (i64) -> i64.
func I64Func(name string, fn func(ctx context.Context, v int64) int64) Func {
	return Func{
		Name:    name,
		Params:  []ValueType{I64},
		Results: []ValueType{I64},
		Handler: func(ctx context.Context, stack []uint64) {
			stack[0] = uint64(fn(ctx, int64(stack[0])))
		},
	}
}
