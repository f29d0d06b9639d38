package xob

import (
	"bytes"
	"encoding/binary"

	"github.com/x448/float16"
)

// builder assembles little-endian test regions.
type builder struct {
	buf bytes.Buffer
}

func (b *builder) raw(p []byte)  { b.buf.Write(p) }
func (b *builder) u8(v uint8)    { b.buf.WriteByte(v) }
func (b *builder) pad(n int)     { b.buf.Write(make([]byte, n)) }
func (b *builder) len() int      { return b.buf.Len() }
func (b *builder) bytes() []byte { return b.buf.Bytes() }

func (b *builder) u16(v uint16) {
	binary.Write(&b.buf, binary.LittleEndian, v)
}

func (b *builder) u32(v uint32) {
	binary.Write(&b.buf, binary.LittleEndian, v)
}

func (b *builder) u32be(v uint32) {
	binary.Write(&b.buf, binary.BigEndian, v)
}

func (b *builder) f32(v float32) {
	binary.Write(&b.buf, binary.LittleEndian, v)
}

func (b *builder) half(v float32) {
	b.u16(float16.Fromfloat32(v).Bits())
}

// buildSeparatedRegion lays out one or two uint16 index arrays followed
// by canonical separated streams for n vertices and tris triangles:
// positions (i+1, 2i, -i), packed +Z normals, +X tangents with positive
// handedness, an optional color stream, and half-float UVs (0.5, 0.25).
func buildSeparatedRegion(n, tris int, dual, color bool) []byte {
	var b builder
	arrays := 1
	if dual {
		arrays = 2
	}
	for a := 0; a < arrays; a++ {
		for i := 0; i < 3*tris; i++ {
			b.u16(uint16(i % n))
		}
	}
	for i := 0; i < n; i++ {
		b.f32(float32(i + 1))
		b.f32(float32(2 * i))
		b.f32(float32(-i))
	}
	for i := 0; i < n; i++ {
		b.raw([]byte{0, 0, 127, 0})
	}
	for i := 0; i < n; i++ {
		b.raw([]byte{127, 0, 0, 1})
	}
	if color {
		for i := 0; i < n; i++ {
			b.raw([]byte{255, 128, 64, 255})
		}
	}
	for i := 0; i < n; i++ {
		b.half(0.5)
		b.half(0.25)
	}
	return b.bytes()
}

// buildDescriptor encodes d as an LZO4 marker plus 116-byte record.
func buildDescriptor(d LodDescriptor) []byte {
	var b builder
	b.raw([]byte(descriptorMarker))
	b.u32(d.Quality)
	b.f32(d.SwitchDistance)
	b.u32(d.CompressedSize)
	b.u32(d.DecompressedSize)
	b.u8(uint8(d.Kind))
	b.pad(3)
	b.u32(d.TriangleCount)
	b.u32(d.UniqueVertices)
	b.u32(d.OriginalVertices)
	b.u32(d.MaterialIndex)
	for i := 0; i < 3; i++ {
		b.f32(d.BoundsMin[i])
	}
	for i := 0; i < 3; i++ {
		b.f32(d.BoundsMax[i])
	}
	b.u8(d.Attribs.UVSets)
	b.u8(d.Attribs.MaterialSlots)
	b.u8(d.Attribs.BoneStreams)
	b.u8(d.Attribs.ColorStreams)
	b.u32(d.Attribs.Flags)
	for i := 0; i < 4; i++ {
		b.f32(d.UVBounds[i])
	}
	b.f32(d.SurfaceScale)
	b.pad(28)
	return b.bytes()
}

// buildSubmeshBlock encodes the 14 bytes around one 0xFFFF marker:
// order key, marker, material, flags, index count, LOD id.
func buildSubmeshBlock(orderKey, material, flags uint16, indexCount uint32, lod uint16) []byte {
	var b builder
	b.u16(orderKey)
	b.u16(submeshMarker)
	b.u16(material)
	b.u16(flags)
	b.u32(indexCount)
	b.u16(lod)
	return b.bytes()
}

// buildChunk frames a tagged chunk: ASCII tag plus big-endian size.
func buildChunk(tag string, payload []byte) []byte {
	var b builder
	b.raw([]byte(tag))
	b.u32be(uint32(len(payload)))
	b.raw(payload)
	return b.bytes()
}

// buildContainer frames a whole XOB9 container from tagged payloads.
func buildContainer(chunks ...[]byte) []byte {
	var b builder
	b.raw([]byte(Magic))
	for _, c := range chunks {
		b.raw(c)
	}
	return b.bytes()
}
