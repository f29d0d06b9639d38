package xob

import (
	"errors"
	stdmath "math"
)

// ErrRegionTooSmall is returned when a region cannot hold even the
// leading index array. It is the only hard failure of the decoder:
// everything else degrades through fallbacks.
var ErrRegionTooSmall = errors.New("xob: region too small for index data")

// UVFormat is the encoding of the UV stream.
type UVFormat uint8

const (
	// UVUnresolved means no UV stream validated; the decoder falls
	// back to a planar projection of vertex positions.
	UVUnresolved UVFormat = iota
	UVHalf                // two 16-bit half floats per vertex
	UVFloat               // two 32-bit floats per vertex
)

// String returns a human-readable format name.
func (f UVFormat) String() string {
	switch f {
	case UVHalf:
		return "half"
	case UVFloat:
		return "float"
	default:
		return "unresolved"
	}
}

// ElemSize returns the per-vertex byte size of the UV stream.
func (f UVFormat) ElemSize() int {
	if f == UVFloat {
		return 8
	}
	return 4
}

// Empirically tuned probe and scan constants.
const (
	probeUVRange   = 8    // probe samples within ±range count as plausible
	probeUVMaxMag  = 16   // hard cap on any probed UV magnitude
	probeUVRatio   = 0.6  // required fraction of in-range finite samples
	probePosMaxMag = 1000 // positions at or beyond this are implausible

	scanUVWindow     = 64   // scan window: vertexCount × this many bytes
	scanUVSamples    = 64   // evenly spaced samples per scan candidate
	scanUVRange      = 4    // valid-sample magnitude bound
	scanUVMinValid   = 12   // accept bar: valid samples
	scanUVMinNonzero = 6    // accept bar: non-zero samples

	nonTrivialEps = 1e-3 // below this a sample counts as zero
)

// VertexLayout locates every attribute stream inside a LOD region. It
// is derived by probing, never stored in the file, and computed once
// per mesh. For separated layouts the offsets are absolute region
// offsets; for interleaved layouts they are relative to each vertex
// record. Offsets of absent or unresolved streams are -1.
type VertexLayout struct {
	Strategy    string // winning detection strategy, for diagnostics
	Interleaved bool   // one record per vertex instead of separated streams
	DualIndex   bool   // two uint16 index arrays precede vertex data
	HasColor    bool   // a 4-byte color stream precedes UV0
	UVFormat    UVFormat

	PosStride    int // bytes per position: 12, or 16 for skinned kinds
	RecordStride int // bytes per vertex record, interleaved layouts only
	VertexBase   int // region offset where vertex data starts

	PosOffset     int
	NormalOffset  int
	TangentOffset int
	ColorOffset   int
	UV0Offset     int
	UV1Offset     int
}

// detector carries the fixed inputs of one layout-detection run.
type detector struct {
	r    Region
	n    int // vertex count
	kind MeshKind

	stride     int // position stride
	singleBase int // vertex data start under the single-index hypothesis
	dualBase   int // vertex data start under the dual-index hypothesis
}

// strategies are the layout hypotheses, tried in priority order; the
// first one whose probes validate wins.
var strategies = []struct {
	name string
	try  func(*detector) (VertexLayout, bool)
}{
	{"dual", (*detector).tryDual},
	{"dual-color", (*detector).tryDualColor},
	{"single", (*detector).trySingle},
	{"single-color", (*detector).trySingleColor},
	{"position", (*detector).tryPositionOnly},
}

// DetectLayout determines where each per-vertex attribute stream begins
// inside r, for a LOD with the given vertex and triangle counts. The
// candidate hypotheses are probed in priority order; when none
// validates, the dual-index separated layout is assumed with the UV
// stream unresolved. Separated layouts whose UV never validated get a
// final bounded linear scan. The only error is a region smaller than
// the leading index array: such a LOD cannot be decoded at all.
func DetectLayout(r Region, vertexCount, triangleCount int, kind MeshKind) (VertexLayout, error) {
	indexBytes := 3 * triangleCount * 2
	if r.Len() < indexBytes {
		return VertexLayout{}, ErrRegionTooSmall
	}

	d := &detector{
		r:          r,
		n:          vertexCount,
		kind:       kind,
		stride:     12,
		singleBase: indexBytes,
		dualBase:   2 * indexBytes,
	}
	if kind.Skinned() {
		d.stride = 16
	}

	for _, s := range strategies {
		if lay, ok := s.try(d); ok {
			lay.Strategy = s.name
			if lay.UVFormat == UVUnresolved {
				d.scanUV(&lay)
			}
			return lay, nil
		}
	}

	// Lowest-risk guess: dual-index separated streams.
	lay := d.separated(true, false)
	lay.Strategy = "default"
	lay.UV0Offset, lay.UV1Offset = -1, -1
	lay.UVFormat = UVUnresolved
	d.scanUV(&lay)
	return lay, nil
}

// separated lays out the fixed stream order position → normal →
// tangent → [color] → UV0 → UV1 at the chosen index-array hypothesis.
// UV1 is filled in only when a second half-float set would fit.
func (d *detector) separated(dual, color bool) VertexLayout {
	base := d.singleBase
	if dual {
		base = d.dualBase
	}
	lay := VertexLayout{
		DualIndex:   dual,
		HasColor:    color,
		UVFormat:    UVHalf,
		PosStride:   d.stride,
		VertexBase:  base,
		PosOffset:   base,
		ColorOffset: -1,
		UV1Offset:   -1,
	}
	lay.NormalOffset = base + d.n*d.stride
	lay.TangentOffset = lay.NormalOffset + d.n*4
	next := lay.TangentOffset + d.n*4
	if color {
		lay.ColorOffset = next
		next += d.n * 4
	}
	lay.UV0Offset = next
	if uv1 := lay.UV0Offset + d.n*4; uv1+d.n*4 <= d.r.Len() {
		lay.UV1Offset = uv1
	}
	return lay
}

func (d *detector) tryDual() (VertexLayout, bool) {
	lay := d.separated(true, false)
	if !d.probeUV(lay.UV0Offset) {
		return VertexLayout{}, false
	}
	return lay, true
}

func (d *detector) tryDualColor() (VertexLayout, bool) {
	lay := d.separated(true, true)
	if !d.probeUV(lay.UV0Offset) {
		return VertexLayout{}, false
	}
	return lay, true
}

func (d *detector) trySingle() (VertexLayout, bool) {
	lay := d.separated(false, false)
	if !d.probePosition(lay.PosOffset) || !d.probeUV(lay.UV0Offset) {
		return VertexLayout{}, false
	}
	return lay, true
}

func (d *detector) trySingleColor() (VertexLayout, bool) {
	lay := d.separated(false, true)
	if !d.probeUV(lay.UV0Offset) {
		return VertexLayout{}, false
	}
	return lay, true
}

// tryPositionOnly is the raw fallback when no UV candidate validated:
// accept whichever index-array hypothesis has plausible positions,
// dual first, and leave the UV stream unresolved.
func (d *detector) tryPositionOnly() (VertexLayout, bool) {
	for _, dual := range [2]bool{true, false} {
		base := d.singleBase
		if dual {
			base = d.dualBase
		}
		if !d.probePosition(base) {
			continue
		}
		lay := d.separated(dual, false)
		lay.UV0Offset, lay.UV1Offset = -1, -1
		lay.UVFormat = UVUnresolved
		return lay, true
	}
	return VertexLayout{}, false
}

// uvSampleIndices is the fixed probe sample set for n vertices.
func uvSampleIndices(n int) []int {
	samples := []int{0, 1, 2, 3, 4, 5, 7, 9}
	if n > 4 {
		samples = append(samples, n/4, n/2, 3*n/4, n-1)
	}
	return samples
}

// probeUV validates off as the start of a half-float UV stream: at
// least 60% of finite samples must lie within ±8, at least two must be
// non-trivially non-zero, and no sample may exceed magnitude 16. Any
// out-of-bounds read invalidates the candidate.
func (d *detector) probeUV(off int) bool {
	if d.n <= 0 {
		return false
	}
	var finite, inRange, nonzero int
	var maxMag float32
	for _, idx := range uvSampleIndices(d.n) {
		if idx >= d.n {
			continue
		}
		u, ok := d.r.Half(off + idx*4)
		if !ok {
			return false
		}
		v, ok := d.r.Half(off + idx*4 + 2)
		if !ok {
			return false
		}
		mag := maxAbs(u, v)
		if mag > maxMag {
			maxMag = mag
		}
		if !isFinite(u) || !isFinite(v) {
			continue
		}
		finite++
		if mag <= probeUVRange {
			inRange++
		}
		if mag > nonTrivialEps {
			nonzero++
		}
	}
	if finite == 0 || nonzero < 2 || maxMag > probeUVMaxMag {
		return false
	}
	return float64(inRange) >= probeUVRatio*float64(finite)
}

// probePosition validates off as the start of a position stream by
// sampling four triplets spread across the vertex range: at least
// three must be finite, bounded, and non-zero.
func (d *detector) probePosition(off int) bool {
	if d.n <= 0 {
		return false
	}
	indices := [4]int{0, d.n / 3, 2 * d.n / 3, d.n - 1}
	valid := 0
	for _, idx := range indices {
		p, ok := d.r.Vec3(off + idx*d.stride)
		if !ok {
			return false
		}
		if positionPlausible(p) {
			valid++
		}
	}
	return valid >= 3
}

func positionPlausible(p [3]float32) bool {
	var sum float32
	for _, c := range p {
		if !isFinite(c) {
			return false
		}
		a := abs32(c)
		if a >= probePosMaxMag {
			return false
		}
		sum += a
	}
	return sum > 1e-6
}

// scanUV is the last resort for a separated layout whose UV stream
// never validated. Starting right after the tangent stream it scores
// every 4-byte-aligned offset as a half-float candidate and every
// 8-byte-aligned offset as a float candidate over a bounded window,
// sampling evenly spaced vertices; samples within ±4 score, non-zero
// samples break ties. The best candidate is accepted only when it
// clears the minimum valid and non-zero sample bars with no magnitude
// above the bound; otherwise UV stays unresolved and the decoder falls
// back to planar projection.
func (d *detector) scanUV(lay *VertexLayout) {
	if d.n <= 0 {
		return
	}
	start := lay.TangentOffset + d.n*4
	end := start + d.n*scanUVWindow
	if end > d.r.Len() {
		end = d.r.Len()
	}

	bestScore, bestNonzero := -1, -1
	bestOff := -1
	bestFormat := UVUnresolved
	var bestMax float32

	for off := align4(start); off < end; off += 4 {
		if score, nz, maxMag, ok := d.scoreUVCandidate(off, UVHalf); ok && better(score, nz, bestScore, bestNonzero) {
			bestScore, bestNonzero, bestOff, bestFormat, bestMax = score, nz, off, UVHalf, maxMag
		}
		if off%8 != 0 {
			continue
		}
		if score, nz, maxMag, ok := d.scoreUVCandidate(off, UVFloat); ok && better(score, nz, bestScore, bestNonzero) {
			bestScore, bestNonzero, bestOff, bestFormat, bestMax = score, nz, off, UVFloat, maxMag
		}
	}

	if bestOff < 0 || bestScore < scanUVMinValid || bestNonzero < scanUVMinNonzero || bestMax > scanUVRange {
		return
	}
	lay.UV0Offset = bestOff
	lay.UVFormat = bestFormat
}

// scoreUVCandidate samples a candidate UV stream at off. ok is false
// when the full stream cannot fit inside the region.
func (d *detector) scoreUVCandidate(off int, format UVFormat) (score, nonzero int, maxMag float32, ok bool) {
	elem := format.ElemSize()
	if off < 0 || off+d.n*elem > d.r.Len() {
		return 0, 0, 0, false
	}
	step := d.n / scanUVSamples
	if step < 1 {
		step = 1
	}
	for s := 0; s < scanUVSamples; s++ {
		idx := s * step
		if idx >= d.n {
			break
		}
		var u, v float32
		if format == UVHalf {
			u, _ = d.r.Half(off + idx*elem)
			v, _ = d.r.Half(off + idx*elem + 2)
		} else {
			u, _ = d.r.F32(off + idx*elem)
			v, _ = d.r.F32(off + idx*elem + 4)
		}
		mag := maxAbs(u, v)
		if mag > maxMag {
			maxMag = mag
		}
		if !isFinite(u) || !isFinite(v) {
			continue
		}
		if mag <= scanUVRange {
			score++
		}
		if mag > nonTrivialEps {
			nonzero++
		}
	}
	return score, nonzero, maxMag, true
}

func better(score, nz, bestScore, bestNz int) bool {
	return score > bestScore || (score == bestScore && nz > bestNz)
}

// InterleavedLayout returns the fixed record layout used by LODs whose
// attribute flags mark them interleaved. Records are 20 bytes, or 32
// for emissive kinds; attribute offsets are relative to each record. A
// single uint16 index array precedes the records.
func InterleavedLayout(triangleCount int, kind MeshKind) VertexLayout {
	lay := VertexLayout{
		Strategy:      "interleaved",
		Interleaved:   true,
		UVFormat:      UVHalf,
		PosStride:     12,
		RecordStride:  20,
		VertexBase:    3 * triangleCount * 2,
		PosOffset:     0,
		NormalOffset:  12,
		TangentOffset: -1,
		ColorOffset:   -1,
		UV0Offset:     16,
		UV1Offset:     -1,
	}
	if kind.Emissive() {
		lay.RecordStride = 32
		lay.TangentOffset = 16
		lay.ColorOffset = 20
		lay.UV0Offset = 24
	}
	return lay
}

func align4(off int) int {
	if r := off % 4; r != 0 {
		return off + 4 - r
	}
	return off
}

func abs32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

func maxAbs(a, b float32) float32 {
	m := abs32(a)
	if bb := abs32(b); bb > m {
		m = bb
	}
	return m
}

func isFinite(f float32) bool {
	f64 := float64(f)
	return !stdmath.IsNaN(f64) && !stdmath.IsInf(f64, 0)
}
