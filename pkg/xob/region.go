package xob

import (
	"encoding/binary"
	stdmath "math"

	"github.com/x448/float16"
)

// Region wraps a read-only byte slice with bounds-checked accessors.
// Every read reports an ok flag instead of panicking; layout probing
// treats a failed read as "this candidate is invalid" rather than an
// error. All multi-byte reads are little-endian.
type Region struct {
	data []byte
}

// NewRegion wraps data without copying it.
func NewRegion(data []byte) Region {
	return Region{data: data}
}

// Len returns the region size in bytes.
func (r Region) Len() int {
	return len(r.data)
}

// Bytes returns n bytes starting at off.
func (r Region) Bytes(off, n int) ([]byte, bool) {
	if off < 0 || n < 0 || off > len(r.data)-n {
		return nil, false
	}
	return r.data[off : off+n], true
}

// U8 reads an unsigned byte at off.
func (r Region) U8(off int) (uint8, bool) {
	if off < 0 || off >= len(r.data) {
		return 0, false
	}
	return r.data[off], true
}

// I8 reads a signed byte at off.
func (r Region) I8(off int) (int8, bool) {
	if off < 0 || off >= len(r.data) {
		return 0, false
	}
	return int8(r.data[off]), true
}

// U16 reads a little-endian uint16 at off.
func (r Region) U16(off int) (uint16, bool) {
	if off < 0 || off > len(r.data)-2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(r.data[off:]), true
}

// U32 reads a little-endian uint32 at off.
func (r Region) U32(off int) (uint32, bool) {
	if off < 0 || off > len(r.data)-4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(r.data[off:]), true
}

// F32 reads a little-endian float32 at off.
func (r Region) F32(off int) (float32, bool) {
	bits, ok := r.U32(off)
	if !ok {
		return 0, false
	}
	return stdmath.Float32frombits(bits), true
}

// Half reads a 16-bit half-float at off and widens it to float32.
func (r Region) Half(off int) (float32, bool) {
	bits, ok := r.U16(off)
	if !ok {
		return 0, false
	}
	return float16.Frombits(bits).Float32(), true
}

// Vec3 reads three consecutive little-endian float32 values at off.
func (r Region) Vec3(off int) ([3]float32, bool) {
	if off < 0 || off > len(r.data)-12 {
		return [3]float32{}, false
	}
	return [3]float32{
		stdmath.Float32frombits(binary.LittleEndian.Uint32(r.data[off:])),
		stdmath.Float32frombits(binary.LittleEndian.Uint32(r.data[off+4:])),
		stdmath.Float32frombits(binary.LittleEndian.Uint32(r.data[off+8:])),
	}, true
}
