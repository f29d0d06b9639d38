package preview

import "math"

// frameBuffer is the render target, flat slices for cache locality.
type frameBuffer struct {
	width  int
	height int
	color  []uint8   // RGBA interleaved, len = w*h*4
	zbuf   []float64 // depth per pixel, initialized to -inf
}

func newFrameBuffer(w, h int) *frameBuffer {
	n := w * h
	zbuf := make([]float64, n)
	for i := range zbuf {
		zbuf[i] = math.Inf(-1)
	}
	return &frameBuffer{
		width:  w,
		height: h,
		color:  make([]uint8, n*4),
		zbuf:   zbuf,
	}
}

// lightConfig holds the fixed lighting rig for thumbnails.
type lightConfig struct {
	dir      [3]float64 // unit light direction
	ambient  float64
	hemi     float64
	direct   float64
	invGamma float64
}

func defaultLight() lightConfig {
	d := [3]float64{0.5, 0.72, 0.48}
	l := math.Sqrt(d[0]*d[0] + d[1]*d[1] + d[2]*d[2])
	return lightConfig{
		dir:      [3]float64{d[0] / l, d[1] / l, d[2] / l},
		ambient:  0.35,
		hemi:     0.25,
		direct:   0.55,
		invGamma: 1.0 / 2.2,
	}
}

// Precomputed sRGB-to-linear lookup table.
var srgbToLinear [256]float64

func init() {
	for i := 0; i < 256; i++ {
		srgbToLinear[i] = math.Pow(float64(i)/255.0, 2.2)
	}
}

// fillTriangle rasterizes one triangle into fb with a z-buffer test.
// px/py are screen coordinates, pz is depth (larger = closer). The
// base color is lit once per face (flat shading, double-sided). The
// pixel loop allocates nothing.
func fillTriangle(fb *frameBuffer, px, py, pz []float64, i0, i1, i2 int, base [3]uint8, lc *lightConfig) {
	nv := len(px)
	if i0 < 0 || i0 >= nv || i1 < 0 || i1 >= nv || i2 < 0 || i2 >= nv {
		return
	}

	x0, y0, z0 := px[i0], py[i0], pz[i0]
	x1, y1, z1 := px[i1], py[i1], pz[i1]
	x2, y2, z2 := px[i2], py[i2], pz[i2]

	// Face normal for flat shading
	e1x, e1y, e1z := x1-x0, y1-y0, z1-z0
	e2x, e2y, e2z := x2-x0, y2-y0, z2-z0
	nx := e1y*e2z - e1z*e2y
	ny := e1z*e2x - e1x*e2z
	nz := e1x*e2y - e1y*e2x
	nl := math.Sqrt(nx*nx + ny*ny + nz*nz)
	if nl < 1e-8 {
		return
	}
	nx /= nl
	ny /= nl
	nz /= nl

	ndl := math.Abs(nx*lc.dir[0] + ny*lc.dir[1] + nz*lc.dir[2])
	hemi := (1.0-math.Abs(ny))*0.5 + 0.5
	shade := lc.ambient + hemi*lc.hemi + ndl*lc.direct

	// Lit color computed once per face
	var lit [3]uint8
	for c := 0; c < 3; c++ {
		v := srgbToLinear[base[c]] * shade
		if v > 1 {
			v = 1
		}
		lit[c] = clamp255(math.Pow(v, lc.invGamma) * 255)
	}

	// Clipped bounding box
	minX := int(math.Min(math.Min(x0, x1), x2))
	maxX := int(math.Max(math.Max(x0, x1), x2)) + 1
	minY := int(math.Min(math.Min(y0, y1), y2))
	maxY := int(math.Max(math.Max(y0, y1), y2)) + 1
	if minX < 0 {
		minX = 0
	}
	if maxX >= fb.width {
		maxX = fb.width - 1
	}
	if minY < 0 {
		minY = 0
	}
	if maxY >= fb.height {
		maxY = fb.height - 1
	}
	if minX >= maxX || minY >= maxY {
		return
	}

	// Barycentric setup
	det := (y1-y2)*(x0-x2) + (x2-x1)*(y0-y2)
	if det > -1e-8 && det < 1e-8 {
		return
	}
	invDet := 1.0 / det
	dy12 := y1 - y2
	dx21 := x2 - x1
	dy20 := y2 - y0
	dx02 := x0 - x2

	for sy := minY; sy <= maxY; sy++ {
		dsy := float64(sy) - y2
		rowOff := sy * fb.width
		for sx := minX; sx <= maxX; sx++ {
			dsx := float64(sx) - x2
			w0 := (dy12*dsx + dx21*dsy) * invDet
			w1 := (dy20*dsx + dx02*dsy) * invDet
			w2 := 1.0 - w0 - w1
			if w0 < -0.001 || w1 < -0.001 || w2 < -0.001 {
				continue
			}

			z := w0*z0 + w1*z1 + w2*z2
			zIdx := rowOff + sx
			if z <= fb.zbuf[zIdx] {
				continue
			}
			fb.zbuf[zIdx] = z

			i := zIdx * 4
			fb.color[i] = lit[0]
			fb.color[i+1] = lit[1]
			fb.color[i+2] = lit[2]
			fb.color[i+3] = 255
		}
	}
}

func clamp255(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
