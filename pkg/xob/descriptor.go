package xob

import (
	"encoding/binary"
	"fmt"
	stdmath "math"
)

// descriptorMarker precedes every LOD descriptor record inside the
// header chunk.
const descriptorMarker = "LZO4"

// descriptorSize is the fixed payload size following the marker.
const descriptorSize = 116

// MeshKind tags the vertex-record variant of one LOD.
type MeshKind uint8

// Mesh kind bits.
const (
	MeshStatic          MeshKind = 0x0
	MeshSkinned         MeshKind = 0x1
	MeshEmissive        MeshKind = 0x2
	MeshSkinnedEmissive MeshKind = 0x3
)

// Skinned reports whether vertices carry bone data (16-byte positions).
func (k MeshKind) Skinned() bool { return k&MeshSkinned != 0 }

// Emissive reports whether vertices carry emissive color data.
func (k MeshKind) Emissive() bool { return k&MeshEmissive != 0 }

// String returns a human-readable mesh kind name.
func (k MeshKind) String() string {
	switch k & 0x3 {
	case MeshStatic:
		return "Static"
	case MeshSkinned:
		return "Skinned"
	case MeshEmissive:
		return "Emissive"
	default:
		return "SkinnedEmissive"
	}
}

// AttribConfig is the 8-byte attribute-config block of a descriptor.
type AttribConfig struct {
	UVSets        uint8  // number of UV coordinate sets
	MaterialSlots uint8  // number of material slots referenced
	BoneStreams   uint8  // number of bone influence streams
	ColorStreams  uint8  // number of vertex color streams
	Flags         uint32 // attribute flags (AttribInterleaved, ...)
}

// AttribInterleaved marks a LOD whose attributes are stored as one
// record per vertex instead of separated per-attribute streams.
const AttribInterleaved = 0x1

// Interleaved reports whether vertex attributes are interleaved.
func (a AttribConfig) Interleaved() bool { return a.Flags&AttribInterleaved != 0 }

// LodDescriptor is one fixed 116-byte record following an LZO4 marker,
// describing a single LOD level. Immutable once parsed.
type LodDescriptor struct {
	Quality          uint32     // quality tier, 1 (most detailed) to 5
	SwitchDistance   float32    // screen-coverage ratio to switch at
	CompressedSize   uint32     // stored size of this LOD's stream data
	DecompressedSize uint32     // inflated size of this LOD's stream data
	Kind             MeshKind   // vertex-record variant
	TriangleCount    uint32     // triangles in this LOD
	UniqueVertices   uint32     // deduplicated vertex count
	OriginalVertices uint32     // pre-deduplication vertex count
	MaterialIndex    uint32     // submesh/material index
	BoundsMin        [3]float32 // axis-aligned bounds
	BoundsMax        [3]float32
	Attribs          AttribConfig
	UVBounds         [4]float32 // minU, minV, maxU, maxV
	SurfaceScale     float32
}

// String summarizes the descriptor for diagnostics.
func (d LodDescriptor) String() string {
	return fmt.Sprintf("q%d %s tris=%d verts=%d mat=%d dist=%g",
		d.Quality, d.Kind, d.TriangleCount, d.UniqueVertices, d.MaterialIndex, d.SwitchDistance)
}

// ExtractDescriptors scans header-chunk bytes for LZO4 descriptor
// records and returns them in file order. Zero matches yields an empty
// list, not an error: callers treat that as "decode with assumed
// single-LOD, single-material", since the scanned region may simply be
// truncated.
func ExtractDescriptors(head []byte) []LodDescriptor {
	descs, _ := scanDescriptors(head)
	return descs
}

// scanDescriptors additionally reports the byte offset just past the
// last matched record; the submesh-block scan starts there.
func scanDescriptors(head []byte) ([]LodDescriptor, int) {
	var descs []LodDescriptor
	end := 0
	record := len(descriptorMarker) + descriptorSize
	for i := 0; i+record <= len(head); {
		if string(head[i:i+4]) != descriptorMarker {
			i++
			continue
		}
		descs = append(descs, parseDescriptor(head[i+4:i+record]))
		i += record
		end = i
	}
	return descs, end
}

// parseDescriptor decodes one 116-byte little-endian descriptor payload.
// The caller guarantees len(p) == descriptorSize.
func parseDescriptor(p []byte) LodDescriptor {
	f32 := func(off int) float32 {
		return stdmath.Float32frombits(binary.LittleEndian.Uint32(p[off:]))
	}

	d := LodDescriptor{
		Quality:          binary.LittleEndian.Uint32(p[0:]),
		SwitchDistance:   f32(4),
		CompressedSize:   binary.LittleEndian.Uint32(p[8:]),
		DecompressedSize: binary.LittleEndian.Uint32(p[12:]),
		Kind:             MeshKind(p[16]),
		TriangleCount:    binary.LittleEndian.Uint32(p[20:]),
		UniqueVertices:   binary.LittleEndian.Uint32(p[24:]),
		OriginalVertices: binary.LittleEndian.Uint32(p[28:]),
		MaterialIndex:    binary.LittleEndian.Uint32(p[32:]),
		SurfaceScale:     f32(84),
	}
	for i := 0; i < 3; i++ {
		d.BoundsMin[i] = f32(36 + i*4)
		d.BoundsMax[i] = f32(48 + i*4)
	}
	d.Attribs = AttribConfig{
		UVSets:        p[60],
		MaterialSlots: p[61],
		BoneStreams:   p[62],
		ColorStreams:  p[63],
		Flags:         binary.LittleEndian.Uint32(p[64:]),
	}
	for i := 0; i < 4; i++ {
		d.UVBounds[i] = f32(68 + i*4)
	}
	return d
}
