package xob

import "sort"

// Submesh table constants. The threshold and rounding policy are
// empirically tuned; change them only after validating against
// known-good reference meshes.
const (
	submeshMarker = 0xFFFF

	// Blocks below this triangle count keep their reported size
	// verbatim; larger blocks are treated as unreliable and rescaled.
	smallBlockTriangles = 500

	// Flag bit marking a block whose index count is recorded once per
	// pass and must be averaged across passes.
	flagAveragePasses = 0x0100

	// LOD ids above this are corrupt.
	maxLodID = 10
)

// SubmeshBlock is a marker-delimited record locating one material's
// triangle range. Transient: consumed during range reconstruction and
// not part of the final mesh.
type SubmeshBlock struct {
	Pos        int // byte position of the 0xFFFF marker
	OrderKey   uint16
	Material   uint16
	Flags      uint16
	IndexCount uint32
	LodID      uint16
}

// Triangles returns the block's reported triangle count.
func (b SubmeshBlock) Triangles() int { return int(b.IndexCount) / 3 }

// MaterialRange assigns a contiguous triangle span to one material.
// Across all ranges of a LOD the spans are contiguous, non-overlapping,
// and sum exactly to the LOD's triangle count.
type MaterialRange struct {
	Material int
	Start    int // inclusive triangle index
	End      int // exclusive triangle index
}

// Triangles returns the number of triangles in the range.
func (mr MaterialRange) Triangles() int { return mr.End - mr.Start }

// ScanSubmeshBlocks scans r from offset start for 0xFFFF submesh
// markers at byte granularity and decodes the fields around each hit.
// Hits whose material index is outside the declared material count are
// discarded; skinned kinds get their LOD id corrected from flag bits.
// The scan advances past accepted blocks so field bytes cannot
// re-match as markers.
func ScanSubmeshBlocks(r Region, start, materialCount int, kind MeshKind) []SubmeshBlock {
	var blocks []SubmeshBlock
	if start < 2 {
		start = 2 // the order key occupies the two bytes before the marker
	}
	for p := start; p+12 <= r.Len(); p++ {
		marker, _ := r.U16(p)
		if marker != submeshMarker {
			continue
		}
		b := SubmeshBlock{Pos: p}
		b.OrderKey, _ = r.U16(p - 2)
		b.Material, _ = r.U16(p + 2)
		b.Flags, _ = r.U16(p + 4)
		b.IndexCount, _ = r.U32(p + 6)
		b.LodID, _ = r.U16(p + 10)
		if int(b.Material) >= materialCount {
			continue
		}
		if kind.Skinned() {
			b.LodID = correctSkinnedLod(b.LodID)
		}
		blocks = append(blocks, b)
		p += 11
	}
	return blocks
}

// correctSkinnedLod recovers the LOD id of a skinned-mesh block, whose
// LOD field doubles as a flag byte. A set upper byte carries the LOD
// explicitly; a clear low nibble means LOD 0. Anything above maxLodID
// is corrupt and resets to 0.
func correctSkinnedLod(raw uint16) uint16 {
	upper := raw >> 8
	lower := raw & 0xFF
	var lod uint16
	switch {
	case upper != 0:
		lod = upper
	case lower&0x0F == 0:
		lod = 0
	default:
		lod = lower & 0x0F
	}
	if lod > maxLodID {
		return 0
	}
	return lod
}

// ReconstructRanges partitions [0, totalTriangles) into per-material
// triangle ranges. The submesh table following the descriptor records
// (at scanFrom) is the primary source; when it yields nothing usable,
// the descriptor list is consulted instead. There is no failure mode:
// the worst case is a single range covering the whole mesh.
func ReconstructRanges(r Region, scanFrom, totalTriangles, materialCount int, kind MeshKind, descs []LodDescriptor) []MaterialRange {
	if totalTriangles < 0 {
		totalTriangles = 0
	}
	if materialCount <= 1 {
		return []MaterialRange{{Material: 0, Start: 0, End: totalTriangles}}
	}

	blocks := ScanSubmeshBlocks(r, scanFrom, materialCount, kind)
	blocks = selectTargetLod(blocks)
	blocks = dedupePasses(blocks)
	if len(blocks) == 0 {
		return rangesFromDescriptors(descs, totalTriangles)
	}
	sortByOrderKey(blocks)
	return allocateRanges(blocks, totalTriangles)
}

// selectTargetLod keeps only the LOD whose blocks sum to the largest
// index count: several LODs' submesh tables coexist in the scanned
// window, and the largest is the one that was actually exported.
func selectTargetLod(blocks []SubmeshBlock) []SubmeshBlock {
	if len(blocks) == 0 {
		return blocks
	}
	sums := make(map[uint16]uint64)
	for _, b := range blocks {
		sums[b.LodID] += uint64(b.IndexCount)
	}
	target := blocks[0].LodID
	for lod, sum := range sums {
		if sum > sums[target] || (sum == sums[target] && lod < target) {
			target = lod
		}
	}
	kept := blocks[:0]
	for _, b := range blocks {
		if b.LodID == target {
			kept = append(kept, b)
		}
	}
	return kept
}

// dedupePasses keeps the first block per material in file order. When a
// material appears in several passes and its first block carries the
// averaging flag, the kept index count becomes the average across
// passes: some exports record the same material at multiple
// granularities.
func dedupePasses(blocks []SubmeshBlock) []SubmeshBlock {
	if len(blocks) == 0 {
		return blocks
	}
	passes := make(map[uint16]int)
	totals := make(map[uint16]uint64)
	for _, b := range blocks {
		passes[b.Material]++
		totals[b.Material] += uint64(b.IndexCount)
	}
	kept := blocks[:0]
	seen := make(map[uint16]bool)
	for _, b := range blocks {
		if seen[b.Material] {
			continue
		}
		seen[b.Material] = true
		if passes[b.Material] > 1 && b.Flags&flagAveragePasses != 0 {
			b.IndexCount = uint32(totals[b.Material] / uint64(passes[b.Material]))
		}
		kept = append(kept, b)
	}
	return kept
}

// sortByOrderKey orders blocks for range layout: ascending order key
// with zero keys last, ties broken by material index.
func sortByOrderKey(blocks []SubmeshBlock) {
	sort.SliceStable(blocks, func(i, j int) bool {
		a, b := blocks[i], blocks[j]
		if (a.OrderKey == 0) != (b.OrderKey == 0) {
			return b.OrderKey == 0
		}
		if a.OrderKey != b.OrderKey {
			return a.OrderKey < b.OrderKey
		}
		return a.Material < b.Material
	})
}

// allocateRanges lays the blocks out as contiguous triangle ranges.
// Small blocks keep their reported triangle count verbatim; large ones
// split the remaining budget in proportion to their reported sizes,
// truncated. The last range is forced to end exactly at the mesh
// total, absorbing rounding error.
func allocateRanges(blocks []SubmeshBlock, total int) []MaterialRange {
	smallSum, largeSum, largeCount := 0, 0, 0
	for _, b := range blocks {
		if t := b.Triangles(); t < smallBlockTriangles {
			smallSum += t
		} else {
			largeSum += t
			largeCount++
		}
	}
	budget := total - smallSum
	if budget < 0 {
		budget = 0
	}

	ranges := make([]MaterialRange, 0, len(blocks))
	cur := 0
	for _, b := range blocks {
		t := b.Triangles()
		if t >= smallBlockTriangles {
			if largeSum > 0 {
				t = budget * t / largeSum
			} else {
				t = budget / largeCount
			}
		}
		end := cur + t
		if end > total {
			end = total
		}
		ranges = append(ranges, MaterialRange{Material: int(b.Material), Start: cur, End: end})
		cur = end
	}
	ranges[len(ranges)-1].End = total
	return ranges
}

// rangesFromDescriptors derives ranges from the descriptor list when no
// usable submesh blocks were found: group descriptors by quality tier,
// take the tier with the most declared triangles, and lay its
// (material, count) pairs out contiguously. Leftover triangles fold
// into a leading material-0 range.
func rangesFromDescriptors(descs []LodDescriptor, total int) []MaterialRange {
	if len(descs) == 0 {
		return []MaterialRange{{Material: 0, Start: 0, End: total}}
	}

	groups := make(map[uint32][]LodDescriptor)
	sums := make(map[uint32]uint64)
	for _, d := range descs {
		groups[d.Quality] = append(groups[d.Quality], d)
		sums[d.Quality] += uint64(d.TriangleCount)
	}
	target := descs[0].Quality
	for q, sum := range sums {
		if sum > sums[target] || (sum == sums[target] && q < target) {
			target = q
		}
	}
	group := groups[target]

	if len(group) == 1 {
		return []MaterialRange{{Material: int(group[0].MaterialIndex), Start: 0, End: total}}
	}

	type pair struct {
		material int
		count    int
	}
	pairs := make([]pair, len(group))
	declared := 0
	for i, d := range group {
		pairs[i] = pair{material: int(d.MaterialIndex), count: int(d.TriangleCount)}
		declared += pairs[i].count
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].material != pairs[j].material {
			return pairs[i].material < pairs[j].material
		}
		return pairs[i].count < pairs[j].count
	})

	if leftover := total - declared; leftover > 0 {
		if pairs[0].material == 0 {
			pairs[0].count += leftover
		} else {
			pairs = append([]pair{{material: 0, count: leftover}}, pairs...)
		}
	}

	ranges := make([]MaterialRange, 0, len(pairs))
	cur := 0
	for _, p := range pairs {
		end := cur + p.count
		if end > total {
			end = total
		}
		ranges = append(ranges, MaterialRange{Material: p.material, Start: cur, End: end})
		cur = end
	}
	ranges[len(ranges)-1].End = total
	return ranges
}
