// Package export writes decoded meshes as Wavefront OBJ files.
package export

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/Cyrex0/enfusion-unpacker/pkg/xob"
)

// Options controls OBJ output.
type Options struct {
	WriteMTL bool // write a companion .mtl next to the .obj
}

// WriteOBJ writes mesh as Wavefront OBJ. Positions, texture
// coordinates and normals are per-vertex, so faces reference all three
// with the same 1-based index. One usemtl group is emitted per
// material range. When mtlName is non-empty it is referenced via
// mtllib.
func WriteOBJ(w io.Writer, mesh *xob.Mesh, name, mtlName string) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "o %s\n", name)
	if mtlName != "" {
		fmt.Fprintf(bw, "mtllib %s\n", mtlName)
	}

	for _, v := range mesh.Vertices {
		fmt.Fprintf(bw, "v %g %g %g\n", v.Position[0], v.Position[1], v.Position[2])
	}
	for _, v := range mesh.Vertices {
		fmt.Fprintf(bw, "vt %g %g\n", v.UV[0], v.UV[1])
	}
	for _, v := range mesh.Vertices {
		fmt.Fprintf(bw, "vn %g %g %g\n", v.Normal[0], v.Normal[1], v.Normal[2])
	}

	ranges := mesh.Ranges
	if len(ranges) == 0 {
		ranges = []xob.MaterialRange{{Material: 0, Start: 0, End: mesh.TriangleCount()}}
	}
	for _, r := range ranges {
		fmt.Fprintf(bw, "usemtl %s\n", MaterialName(mesh, r.Material))
		for tri := r.Start; tri < r.End; tri++ {
			i := tri * 3
			if i+2 >= len(mesh.Indices) {
				break
			}
			a := mesh.Indices[i] + 1
			b := mesh.Indices[i+1] + 1
			c := mesh.Indices[i+2] + 1
			fmt.Fprintf(bw, "f %d/%d/%d %d/%d/%d %d/%d/%d\n", a, a, a, b, b, b, c, c, c)
		}
	}

	return bw.Flush()
}

// WriteMTL writes a stub material library for the mesh. The real
// materials live in separate .emat files, so only the recovered names
// carry over; each entry keeps the source path as a comment.
func WriteMTL(w io.Writer, mesh *xob.Mesh) error {
	bw := bufio.NewWriter(w)

	for i, src := range mesh.Materials {
		fmt.Fprintf(bw, "# %s\n", src)
		fmt.Fprintf(bw, "newmtl %s\n", MaterialName(mesh, i))
		fmt.Fprintf(bw, "Kd 0.800 0.800 0.800\n")
		fmt.Fprintf(bw, "Ks 0.000 0.000 0.000\n")
		fmt.Fprintf(bw, "d 1.0\n")
		fmt.Fprintf(bw, "illum 1\n\n")
	}

	return bw.Flush()
}

// MaterialName derives an OBJ-safe material name for index. The full
// recovered path minus extension keeps names unique; separators and
// spaces become underscores.
func MaterialName(mesh *xob.Mesh, index int) string {
	name := mesh.MaterialName(index)
	name = strings.TrimSuffix(name, path.Ext(name))
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', ':':
			return '_'
		}
		return r
	}, name)
}

// SaveOBJ writes mesh to objPath, creating parent directories. With
// opts.WriteMTL a companion .mtl with the same base name is written
// next to it.
func SaveOBJ(objPath string, mesh *xob.Mesh, opts Options) error {
	if dir := filepath.Dir(objPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	name := strings.TrimSuffix(filepath.Base(objPath), filepath.Ext(objPath))
	mtlName := ""
	if opts.WriteMTL {
		mtlName = name + ".mtl"
	}

	if err := writeFile(objPath, func(w io.Writer) error {
		return WriteOBJ(w, mesh, name, mtlName)
	}); err != nil {
		return fmt.Errorf("writing obj: %w", err)
	}

	if opts.WriteMTL {
		mtlPath := filepath.Join(filepath.Dir(objPath), mtlName)
		if err := writeFile(mtlPath, func(w io.Writer) error {
			return WriteMTL(w, mesh)
		}); err != nil {
			return fmt.Errorf("writing mtl: %w", err)
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
