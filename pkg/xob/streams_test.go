package xob

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func near(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-5
}

func TestDecodeStreams_Separated(t *testing.T) {
	const n, tris = 8, 4
	data := buildSeparatedRegion(n, tris, false, false)
	r := NewRegion(data)

	lay, err := DetectLayout(r, n, tris, MeshStatic)
	if err != nil {
		t.Fatalf("DetectLayout failed: %v", err)
	}
	verts, indices, err := DecodeStreams(r, lay, n, tris)
	if err != nil {
		t.Fatalf("DecodeStreams failed: %v", err)
	}

	if len(verts) != n {
		t.Fatalf("got %d vertices, want %d", len(verts), n)
	}
	if len(indices) != 3*tris {
		t.Fatalf("got %d indices, want %d", len(indices), 3*tris)
	}
	for i, idx := range indices {
		if want := uint32(i % n); idx != want {
			t.Errorf("indices[%d] = %d, want %d", i, idx, want)
		}
	}
	for i, v := range verts {
		want := [3]float32{float32(i + 1), float32(2 * i), float32(-i)}
		if v.Position != want {
			t.Errorf("verts[%d].Position = %v, want %v", i, v.Position, want)
		}
		if v.Normal != [3]float32{0, 0, 1} {
			t.Errorf("verts[%d].Normal = %v, want +Z", i, v.Normal)
		}
		if v.Tangent != [3]float32{1, 0, 0} || v.Handedness != 1 {
			t.Errorf("verts[%d] tangent = %v/%v, want +X/+1", i, v.Tangent, v.Handedness)
		}
		// V is flipped on decode: stored 0.25 reads back as 0.75.
		if v.UV != [2]float32{0.5, 0.75} {
			t.Errorf("verts[%d].UV = %v, want (0.5, 0.75)", i, v.UV)
		}
	}
}

func TestDecodeStreams_IndexClamping(t *testing.T) {
	const n, tris = 8, 4
	data := buildSeparatedRegion(n, tris, false, false)
	binary.LittleEndian.PutUint16(data[0:], 999)        // far out of range
	binary.LittleEndian.PutUint16(data[2:], uint16(n))  // one past the end
	binary.LittleEndian.PutUint16(data[4:], uint16(n)-1)

	r := NewRegion(data)
	lay, err := DetectLayout(r, n, tris, MeshStatic)
	if err != nil {
		t.Fatalf("DetectLayout failed: %v", err)
	}
	_, indices, err := DecodeStreams(r, lay, n, tris)
	if err != nil {
		t.Fatalf("DecodeStreams failed: %v", err)
	}

	if indices[0] != 0 || indices[1] != 0 {
		t.Errorf("out-of-range indices = %d, %d, want clamped to 0", indices[0], indices[1])
	}
	if indices[2] != uint32(n)-1 {
		t.Errorf("indices[2] = %d, want %d", indices[2], n-1)
	}
}

func TestDecodeStreams_DegenerateAttributes(t *testing.T) {
	const n, tris = 8, 4
	data := buildSeparatedRegion(n, tris, false, false)

	// Single-index streams: normals start at 24+96, tangents 32 later.
	const normBase, tanBase = 120, 152
	copy(data[normBase:], []byte{0, 0, 0, 0})        // zero normal
	copy(data[normBase+4:], []byte{127, 127, 0, 0})  // diagonal normal
	copy(data[tanBase:], []byte{0, 0, 0, 0x80})      // zero tangent, negative w

	r := NewRegion(data)
	lay, err := DetectLayout(r, n, tris, MeshStatic)
	if err != nil {
		t.Fatalf("DetectLayout failed: %v", err)
	}
	verts, _, err := DecodeStreams(r, lay, n, tris)
	if err != nil {
		t.Fatalf("DecodeStreams failed: %v", err)
	}

	if verts[0].Normal != [3]float32{0, 1, 0} {
		t.Errorf("degenerate normal = %v, want +Y default", verts[0].Normal)
	}
	inv := float32(1 / math.Sqrt2)
	if !near(verts[1].Normal[0], inv) || !near(verts[1].Normal[1], inv) || !near(verts[1].Normal[2], 0) {
		t.Errorf("diagonal normal = %v, want normalized (%v, %v, 0)", verts[1].Normal, inv, inv)
	}
	if verts[0].Tangent != [3]float32{1, 0, 0} {
		t.Errorf("degenerate tangent = %v, want +X default", verts[0].Tangent)
	}
	if verts[0].Handedness != -1 {
		t.Errorf("handedness = %v, want -1 from the sign byte", verts[0].Handedness)
	}
}

func TestDecodeStreams_ColorStream(t *testing.T) {
	const n, tris = 8, 6
	data := buildSeparatedRegion(n, tris, false, true)
	r := NewRegion(data)

	lay, err := DetectLayout(r, n, tris, MeshStatic)
	if err != nil {
		t.Fatalf("DetectLayout failed: %v", err)
	}
	if !lay.HasColor {
		t.Fatal("HasColor = false, want color stream detected")
	}
	verts, _, err := DecodeStreams(r, lay, n, tris)
	if err != nil {
		t.Fatalf("DecodeStreams failed: %v", err)
	}
	for i, v := range verts {
		if v.Color != [4]uint8{255, 128, 64, 255} {
			t.Errorf("verts[%d].Color = %v, want (255, 128, 64, 255)", i, v.Color)
		}
	}
}

func TestDecodeStreams_PlanarUVFallback(t *testing.T) {
	// No UV stream at all: positions project to (x, z), unflipped.
	const n, tris = 4, 2
	var b builder
	for i := 0; i < 3*tris; i++ {
		b.u16(uint16(i % n))
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

	lay := VertexLayout{
		Strategy:      "position",
		UVFormat:      UVUnresolved,
		PosStride:     12,
		VertexBase:    12,
		PosOffset:     12,
		NormalOffset:  60,
		TangentOffset: 76,
		ColorOffset:   -1,
		UV0Offset:     -1,
		UV1Offset:     -1,
	}
	verts, _, err := DecodeStreams(NewRegion(b.bytes()), lay, n, tris)
	if err != nil {
		t.Fatalf("DecodeStreams failed: %v", err)
	}
	for i, v := range verts {
		want := [2]float32{float32(i + 1), float32(-i)}
		if v.UV != want {
			t.Errorf("verts[%d].UV = %v, want planar %v", i, v.UV, want)
		}
	}
}

func TestDecodeStreams_Interleaved(t *testing.T) {
	const n, tris = 4, 2
	var b builder
	for i := 0; i < 3*tris; i++ {
		b.u16(uint16(i % n))
	}
	for i := 0; i < n; i++ {
		b.f32(float32(i + 1))
		b.f32(float32(2 * i))
		b.f32(float32(-i))
		b.raw([]byte{0, 0, 127, 0})
		b.half(0.5)
		b.half(0.25)
	}

	lay := InterleavedLayout(tris, MeshStatic)
	verts, indices, err := DecodeStreams(NewRegion(b.bytes()), lay, n, tris)
	if err != nil {
		t.Fatalf("DecodeStreams failed: %v", err)
	}

	if len(indices) != 6 {
		t.Fatalf("got %d indices, want 6", len(indices))
	}
	for i, v := range verts {
		want := [3]float32{float32(i + 1), float32(2 * i), float32(-i)}
		if v.Position != want {
			t.Errorf("verts[%d].Position = %v, want %v", i, v.Position, want)
		}
		if v.Normal != [3]float32{0, 0, 1} {
			t.Errorf("verts[%d].Normal = %v, want +Z", i, v.Normal)
		}
		if v.Tangent != [3]float32{1, 0, 0} || v.Handedness != 1 {
			t.Errorf("verts[%d] tangent = %v/%v, want +X default", i, v.Tangent, v.Handedness)
		}
		if v.UV != [2]float32{0.5, 0.75} {
			t.Errorf("verts[%d].UV = %v, want (0.5, 0.75)", i, v.UV)
		}
	}
}

func TestDecodeStreams_InterleavedEmissive(t *testing.T) {
	const n, tris = 4, 2
	var b builder
	for i := 0; i < 3*tris; i++ {
		b.u16(uint16(i % n))
	}
	for i := 0; i < n; i++ {
		b.f32(float32(i + 1))
		b.f32(float32(2 * i))
		b.f32(float32(-i))
		b.raw([]byte{0, 0, 127, 0})    // normal
		b.raw([]byte{0, 127, 0, 0x80}) // tangent, negative handedness
		b.raw([]byte{10, 20, 30, 40})  // color
		b.half(0.5)
		b.half(0.25)
		b.pad(4) // emissive params
	}

	lay := InterleavedLayout(tris, MeshEmissive)
	verts, _, err := DecodeStreams(NewRegion(b.bytes()), lay, n, tris)
	if err != nil {
		t.Fatalf("DecodeStreams failed: %v", err)
	}
	for i, v := range verts {
		if v.Tangent != [3]float32{0, 1, 0} {
			t.Errorf("verts[%d].Tangent = %v, want +Y", i, v.Tangent)
		}
		if v.Handedness != -1 {
			t.Errorf("verts[%d].Handedness = %v, want -1", i, v.Handedness)
		}
		if v.Color != [4]uint8{10, 20, 30, 40} {
			t.Errorf("verts[%d].Color = %v, want (10, 20, 30, 40)", i, v.Color)
		}
		if v.UV != [2]float32{0.5, 0.75} {
			t.Errorf("verts[%d].UV = %v, want (0.5, 0.75)", i, v.UV)
		}
	}
}

func TestDecodeStreams_RegionTooSmall(t *testing.T) {
	lay := InterleavedLayout(100, MeshStatic)
	_, _, err := DecodeStreams(NewRegion(make([]byte, 10)), lay, 50, 100)
	if !errors.Is(err, ErrRegionTooSmall) {
		t.Errorf("got err = %v, want ErrRegionTooSmall", err)
	}
}

func TestDecodeStreams_ZeroVertices(t *testing.T) {
	lay := InterleavedLayout(4, MeshStatic)
	verts, indices, err := DecodeStreams(NewRegion(make([]byte, 64)), lay, 0, 4)
	if err != nil {
		t.Fatalf("DecodeStreams failed: %v", err)
	}
	if verts == nil || len(verts) != 0 {
		t.Errorf("verts = %v, want empty non-nil slice", verts)
	}
	if indices == nil || len(indices) != 0 {
		t.Errorf("indices = %v, want empty non-nil slice", indices)
	}
}
