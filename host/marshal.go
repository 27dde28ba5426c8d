package host

import (
	"context"
	"encoding/binary"
	"unicode/utf8"

	domainerrors "github.com/plugforge/plugforge/domain/errors"
)

// String framing convention: the guest allocator stores the byte length of
// every block as a u32 little-endian in the 4 bytes immediately preceding
// the block's data offset (AssemblyScript-style). Outbound, the host calls
// the guest alloc export, which populates the header, and writes only the
// payload bytes. Inbound, the host reads the header to learn the result
// length. Offsets are meaningful only within one marshaling round-trip and
// are never retained past the reclamation trigger for that call.
const lengthHeaderSize = 4

// writeBytes copies data into guest memory at a guest-allocated offset and
// returns that offset. The guest signals allocation failure by returning
// offset 0.
func (p *Plugin) writeBytes(ctx context.Context, data []byte) (uint32, error) {
	size := uint32(len(data))
	results, err := p.allocFn.Call(ctx, uint64(size))
	if err != nil {
		return 0, err
	}
	if len(results) == 0 || uint32(results[0]) == 0 {
		return 0, &domainerrors.AllocError{Size: size}
	}
	ptr := uint32(results[0])
	if size > 0 && !p.memory.Write(ptr, data) {
		return 0, &domainerrors.AllocError{Size: size, Err: domainerrors.ErrOutOfRange}
	}
	return ptr, nil
}

// readString decodes the guest result buffer at ptr into an owned host
// string. The returned string shares no storage with guest memory, so it
// survives reclamation. Invalid UTF-8 yields a DecodeError, never a crash
// or silent truncation.
func (p *Plugin) readString(ptr uint32) (string, error) {
	if ptr < lengthHeaderSize {
		return "", &domainerrors.DecodeError{Offset: ptr, Err: domainerrors.ErrOutOfRange}
	}
	header, ok := p.memory.Read(ptr-lengthHeaderSize, lengthHeaderSize)
	if !ok {
		return "", &domainerrors.DecodeError{Offset: ptr, Err: domainerrors.ErrOutOfRange}
	}
	size := binary.LittleEndian.Uint32(header)
	if size == 0 {
		return "", nil
	}
	view, ok := p.memory.Read(ptr, size)
	if !ok {
		return "", &domainerrors.DecodeError{Offset: ptr, Err: domainerrors.ErrOutOfRange}
	}
	// Read may return a view into linear memory; copy before the guest runs
	// again.
	buf := make([]byte, size)
	copy(buf, view)
	if !utf8.Valid(buf) {
		return "", &domainerrors.DecodeError{Offset: ptr, Err: domainerrors.ErrInvalidUTF8}
	}
	return string(buf), nil
}
