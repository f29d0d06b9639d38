// Package preview renders decoded meshes to WebP thumbnails with a
// small flat-shaded software rasterizer. Thumbnails are a diagnostic
// artifact: each material range gets its own tint so range
// reconstruction problems show up at a glance.
package preview

import (
	"fmt"
	"image"
	gomath "math"
	"os"
	"path/filepath"

	"github.com/HugoSmits86/nativewebp"
	"golang.org/x/image/draw"

	"github.com/Cyrex0/enfusion-unpacker/pkg/math"
	"github.com/Cyrex0/enfusion-unpacker/pkg/xob"
)

// Options controls thumbnail rendering.
type Options struct {
	Size        int // output edge in pixels
	Supersample int // raster scale before downsampling
}

func (o Options) normalized() Options {
	if o.Size <= 0 {
		o.Size = 512
	}
	if o.Supersample <= 0 {
		o.Supersample = 2
	}
	return o
}

// Fixed three-quarter view.
const (
	viewYaw   = -35.0 * gomath.Pi / 180.0
	viewPitch = 22.0 * gomath.Pi / 180.0
)

// Material range tints, cycled by material index.
var palette = [][3]uint8{
	{178, 140, 96},
	{96, 140, 178},
	{140, 178, 96},
	{178, 96, 128},
	{150, 150, 160},
	{196, 170, 100},
	{100, 170, 170},
	{170, 120, 180},
}

// Render draws mesh into a square image. The view is orthographic from
// a fixed angle, auto-framed to the rotated bounds. Empty meshes yield
// a fully transparent image.
func Render(mesh *xob.Mesh, opts Options) *image.NRGBA {
	opts = opts.normalized()
	if len(mesh.Vertices) == 0 || len(mesh.Indices) < 3 {
		return image.NewNRGBA(image.Rect(0, 0, opts.Size, opts.Size))
	}

	renderSize := opts.Size * opts.Supersample

	// Rotate into view space and collect bounds
	view := math.RotateX(viewPitch).Mul(math.RotateY(viewYaw))
	n := len(mesh.Vertices)
	rotated := make([]math.Vec3, n)
	bounds := math.EmptyAABB()
	for i, v := range mesh.Vertices {
		p := view.TransformPoint(math.FromArray(v.Position))
		rotated[i] = p
		bounds = bounds.Extend(p)
	}

	center := bounds.Center()
	size := bounds.Size()
	span := float64(size.X)
	if float64(size.Y) > span {
		span = float64(size.Y)
	}
	if span < 0.001 {
		span = 0.001
	}

	margin := 16 * opts.Supersample
	scale := float64(renderSize-2*margin) / span
	half := float64(renderSize) / 2

	// Project to screen coordinates; Y flips into image space, Z stays
	// as depth
	px := make([]float64, n)
	py := make([]float64, n)
	pz := make([]float64, n)
	for i, p := range rotated {
		px[i] = float64(p.X-center.X)*scale + half
		py[i] = half - float64(p.Y-center.Y)*scale
		pz[i] = float64(p.Z-center.Z) * scale
	}

	fb := newFrameBuffer(renderSize, renderSize)
	lc := defaultLight()

	ranges := mesh.Ranges
	if len(ranges) == 0 {
		ranges = []xob.MaterialRange{{Material: 0, Start: 0, End: mesh.TriangleCount()}}
	}
	for _, r := range ranges {
		tint := palette[r.Material%len(palette)]
		for tri := r.Start; tri < r.End; tri++ {
			i := tri * 3
			if i < 0 || i+2 >= len(mesh.Indices) {
				break
			}
			fillTriangle(fb, px, py, pz,
				int(mesh.Indices[i]), int(mesh.Indices[i+1]), int(mesh.Indices[i+2]),
				tint, &lc)
		}
	}

	img := image.NewNRGBA(image.Rect(0, 0, renderSize, renderSize))
	copy(img.Pix, fb.color)

	if opts.Supersample > 1 {
		img = downsample(img, opts.Size)
	}
	return img
}

// Save renders mesh and writes it to path as lossless WebP, creating
// parent directories.
func Save(path string, mesh *xob.Mesh, opts Options) error {
	img := Render(mesh, opts)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating webp: %w", err)
	}
	if err := nativewebp.Encode(f, img, nil); err != nil {
		f.Close()
		return fmt.Errorf("encoding webp: %w", err)
	}
	return f.Close()
}

// downsample reduces the supersampled render with premultiplied-alpha
// CatmullRom filtering. Filtering straight NRGBA would bleed the black
// transparent background into edge pixels.
func downsample(img *image.NRGBA, targetSize int) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() <= targetSize && b.Dy() <= targetSize {
		return img
	}

	// Premultiply alpha
	premul := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			si := img.PixOffset(x, y)
			di := premul.PixOffset(x, y)
			a := float64(img.Pix[si+3]) / 255.0
			premul.Pix[di] = uint8(float64(img.Pix[si])*a + 0.5)
			premul.Pix[di+1] = uint8(float64(img.Pix[si+1])*a + 0.5)
			premul.Pix[di+2] = uint8(float64(img.Pix[si+2])*a + 0.5)
			premul.Pix[di+3] = img.Pix[si+3]
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, targetSize, targetSize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), premul, premul.Bounds(), draw.Src, nil)

	// Unpremultiply alpha
	result := image.NewNRGBA(dst.Bounds())
	for y := 0; y < targetSize; y++ {
		for x := 0; x < targetSize; x++ {
			si := dst.PixOffset(x, y)
			di := result.PixOffset(x, y)
			a := float64(dst.Pix[si+3])
			if a > 1 {
				inv := 255.0 / a
				result.Pix[di] = clamp255(float64(dst.Pix[si]) * inv)
				result.Pix[di+1] = clamp255(float64(dst.Pix[si+1]) * inv)
				result.Pix[di+2] = clamp255(float64(dst.Pix[si+2]) * inv)
			}
			result.Pix[di+3] = dst.Pix[si+3]
		}
	}
	return result
}
