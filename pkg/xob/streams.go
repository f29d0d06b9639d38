package xob

import stdmath "math"

// Vertex is one decoded vertex. The secondary normal/tangent and bone
// fields reserve capacity for skinned variants but are not populated
// by this decoder.
type Vertex struct {
	Position   [3]float32
	Normal     [3]float32 // unit vector; +Y when degenerate
	Tangent    [3]float32 // unit vector; +X when degenerate
	Handedness float32    // ±1, sign of the fourth tangent byte
	UV         [2]float32 // V flipped to renderer convention
	Color      [4]uint8

	Normal2     [3]float32
	Tangent2    [3]float32
	BoneIndices [4]uint8
	BoneWeights [4]float32
}

// DecodeStreams decodes the vertex and index arrays located by lay.
// Decoding never fails once the leading index array fits: truncated or
// corrupt attribute bytes produce degraded vertices (zero positions,
// default normals, planar UVs), and any index at or above vertexCount
// is clamped to 0. Indices are widened to uint32 for consumers.
func DecodeStreams(r Region, lay VertexLayout, vertexCount, triangleCount int) ([]Vertex, []uint32, error) {
	indexCount := 3 * triangleCount
	if r.Len() < indexCount*2 {
		return nil, nil, ErrRegionTooSmall
	}
	if vertexCount <= 0 {
		return []Vertex{}, []uint32{}, nil
	}

	indices := make([]uint32, indexCount)
	for i := 0; i < indexCount; i++ {
		idx, _ := r.U16(i * 2)
		if int(idx) >= vertexCount {
			idx = 0
		}
		indices[i] = uint32(idx)
	}

	verts := make([]Vertex, vertexCount)
	if lay.Interleaved {
		decodeInterleaved(r, lay, verts)
	} else {
		decodeSeparated(r, lay, verts)
	}
	return verts, indices, nil
}

func decodeSeparated(r Region, lay VertexLayout, verts []Vertex) {
	for i := range verts {
		v := &verts[i]
		if p, ok := r.Vec3(lay.PosOffset + i*lay.PosStride); ok {
			v.Position = p
		}
		v.Normal = unpackNormal(r, lay.NormalOffset+i*4)
		v.Tangent, v.Handedness = unpackTangent(r, lay.TangentOffset+i*4)
		if lay.ColorOffset >= 0 {
			if c, ok := r.Bytes(lay.ColorOffset+i*4, 4); ok {
				copy(v.Color[:], c)
			}
		}
		v.UV = decodeUV(r, lay, i, v.Position)
	}
}

func decodeInterleaved(r Region, lay VertexLayout, verts []Vertex) {
	for i := range verts {
		v := &verts[i]
		rec := lay.VertexBase + i*lay.RecordStride
		if p, ok := r.Vec3(rec + lay.PosOffset); ok {
			v.Position = p
		}
		v.Normal = unpackNormal(r, rec+lay.NormalOffset)
		if lay.TangentOffset >= 0 {
			v.Tangent, v.Handedness = unpackTangent(r, rec+lay.TangentOffset)
		} else {
			v.Tangent = [3]float32{1, 0, 0}
			v.Handedness = 1
		}
		if lay.ColorOffset >= 0 {
			if c, ok := r.Bytes(rec+lay.ColorOffset, 4); ok {
				copy(v.Color[:], c)
			}
		}
		if tu, tv, ok := readUV(r, rec+lay.UV0Offset, lay.UVFormat); ok {
			v.UV = [2]float32{tu, 1 - tv}
		} else {
			v.UV = [2]float32{v.Position[0], v.Position[2]}
		}
	}
}

// decodeUV reads vertex i's UV pair from a separated stream and flips
// the V axis to the renderer's convention. When the UV stream never
// resolved, a planar XZ projection of the position stands in; this is
// the documented degraded mode, not a failure.
func decodeUV(r Region, lay VertexLayout, i int, pos [3]float32) [2]float32 {
	if lay.UVFormat == UVUnresolved || lay.UV0Offset < 0 {
		return [2]float32{pos[0], pos[2]}
	}
	u, v, ok := readUV(r, lay.UV0Offset+i*lay.UVFormat.ElemSize(), lay.UVFormat)
	if !ok {
		return [2]float32{pos[0], pos[2]}
	}
	return [2]float32{u, 1 - v}
}

func readUV(r Region, off int, format UVFormat) (u, v float32, ok bool) {
	if format == UVFloat {
		if u, ok = r.F32(off); !ok {
			return 0, 0, false
		}
		v, ok = r.F32(off + 4)
		return u, v, ok
	}
	if u, ok = r.Half(off); !ok {
		return 0, 0, false
	}
	v, ok = r.Half(off + 2)
	return u, v, ok
}

// unpackNormal reconstructs a unit normal from a signed-byte triplet.
// A degenerate (near-zero or unreadable) normal defaults to +Y rather
// than producing garbage shading.
func unpackNormal(r Region, off int) [3]float32 {
	b, ok := r.Bytes(off, 3)
	if !ok {
		return [3]float32{0, 1, 0}
	}
	n := [3]float32{
		float32(int8(b[0])) / 127,
		float32(int8(b[1])) / 127,
		float32(int8(b[2])) / 127,
	}
	l := length3(n)
	if l < 1e-6 {
		return [3]float32{0, 1, 0}
	}
	return [3]float32{n[0] / l, n[1] / l, n[2] / l}
}

// unpackTangent reconstructs a unit tangent from a signed-byte quad;
// the fourth byte's sign is the bitangent handedness. Degenerate
// tangents default to +X.
func unpackTangent(r Region, off int) ([3]float32, float32) {
	b, ok := r.Bytes(off, 4)
	if !ok {
		return [3]float32{1, 0, 0}, 1
	}
	t := [3]float32{
		float32(int8(b[0])) / 127,
		float32(int8(b[1])) / 127,
		float32(int8(b[2])) / 127,
	}
	h := float32(1)
	if int8(b[3]) < 0 {
		h = -1
	}
	l := length3(t)
	if l < 1e-6 {
		return [3]float32{1, 0, 0}, h
	}
	return [3]float32{t[0] / l, t[1] / l, t[2] / l}, h
}

func length3(v [3]float32) float32 {
	return float32(stdmath.Sqrt(float64(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])))
}
