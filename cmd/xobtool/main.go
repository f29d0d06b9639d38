// xobtool is a CLI utility for working with Enfusion EPK1 archives and
// XOB mesh containers.
package main

import (
	"flag"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Cyrex0/enfusion-unpacker/internal/assets"
	"github.com/Cyrex0/enfusion-unpacker/internal/batch"
	"github.com/Cyrex0/enfusion-unpacker/internal/config"
	"github.com/Cyrex0/enfusion-unpacker/internal/export"
	"github.com/Cyrex0/enfusion-unpacker/internal/logger"
	"github.com/Cyrex0/enfusion-unpacker/internal/preview"
	"github.com/Cyrex0/enfusion-unpacker/pkg/pak"
	"github.com/Cyrex0/enfusion-unpacker/pkg/xob"
)

func main() {
	// Global flags (-config, -debug, -log-file) come before the
	// subcommand; parsing stops at the first non-flag argument.
	config.ParseFlags()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	command := args[0]
	rest := args[1:]

	switch command {
	case "info":
		cmdInfo(rest)
	case "list", "ls":
		cmdList(rest)
	case "extract", "x":
		cmdExtract(rest)
	case "decode":
		cmdDecode(rest)
	case "export":
		cmdExport(rest, cfg)
	case "preview":
		cmdPreview(rest, cfg)
	case "batch":
		cmdBatch(rest, cfg)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`xobtool - Enfusion archive and mesh utility

Usage:
  xobtool [global options] <command> [options]

Global options:
  -config <file>    Use a specific config file
  -debug            Enable debug logging
  -log-file <file>  Write logs to a file

Commands:
  info <file.pak>                     Show archive information
  list <file.pak> [pattern]           List entries (optional glob pattern)
  extract <file.pak> <path> [outdir]  Extract entries to a directory
  decode <input>                      Print mesh diagnostics
  export [-o out.obj] <input>         Convert a mesh to Wavefront OBJ
  preview [-o out.webp] <input>       Render a mesh preview image
  batch [options] <file.pak ...>      Convert every mesh in the archives

A mesh <input> is either a bare .xob file, or an archive followed by an
entry path.

Examples:
  xobtool info data.pak
  xobtool list data.pak "*.xob"
  xobtool decode data.pak assets/models/rock.xob
  xobtool export -o rock.obj data.pak assets/models/rock.xob
  xobtool batch -preview -out ./export data.pak patch.pak`)
}

// loadMesh decodes a mesh straight from disk, or from inside an archive
// when an entry path follows the archive path. The returned name is the
// entry's base name without extension, for default output naming.
func loadMesh(args []string) (*xob.Mesh, string, error) {
	if len(args) == 1 {
		name := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		mesh, err := xob.DecodeFile(args[0])
		return mesh, name, err
	}

	archive, err := pak.Open(args[0])
	if err != nil {
		return nil, "", err
	}
	defer archive.Close()

	data, err := archive.Read(args[1])
	if err != nil {
		return nil, "", err
	}

	name := strings.TrimSuffix(path.Base(args[1]), path.Ext(args[1]))
	mesh, err := xob.Decode(data)
	return mesh, name, err
}

func cmdInfo(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: xobtool info <file.pak>")
		os.Exit(1)
	}

	archive, err := pak.Open(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer archive.Close()

	files := archive.List()

	// Count by extension
	extCount := make(map[string]int)
	var totalSize uint64
	for _, f := range files {
		ext := strings.ToLower(path.Ext(f))
		if ext == "" {
			ext = "(no ext)"
		}
		extCount[ext]++
		if entry, ok := archive.Stat(f); ok {
			totalSize += uint64(entry.UncompressedSize)
		}
	}

	fmt.Printf("Archive: %s\n", args[0])
	fmt.Printf("Version: %d\n", archive.Version())
	fmt.Printf("Entries: %d\n", len(files))
	fmt.Printf("Size:    %.2f MB uncompressed\n", float64(totalSize)/(1024*1024))
	fmt.Println()
	fmt.Println("Entries by type:")

	// Sort by count
	type extStat struct {
		ext   string
		count int
	}
	var stats []extStat
	for ext, count := range extCount {
		stats = append(stats, extStat{ext, count})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].count != stats[j].count {
			return stats[i].count > stats[j].count
		}
		return stats[i].ext < stats[j].ext
	})

	for _, s := range stats {
		fmt.Printf("  %-10s %d\n", s.ext, s.count)
	}
}

func cmdList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int("n", 0, "Limit output to N entries (0 = all)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: xobtool list <file.pak> [pattern]")
		os.Exit(1)
	}

	archive, err := pak.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer archive.Close()

	files := archive.List()
	sort.Strings(files)

	pattern := ""
	if fs.NArg() > 1 {
		pattern = strings.ToLower(fs.Arg(1))
	}

	count := 0
	for _, f := range files {
		if pattern != "" {
			matched, _ := path.Match(pattern, path.Base(f))
			if !matched && !strings.Contains(f, pattern) {
				continue
			}
		}
		fmt.Println(f)
		count++
		if *limit > 0 && count >= *limit {
			break
		}
	}

	if pattern != "" {
		fmt.Fprintf(os.Stderr, "\n(%d entries matched)\n", count)
	}
}

func cmdExtract(args []string) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Usage: xobtool extract <file.pak> <path> [output_dir]")
		os.Exit(1)
	}

	pakPath := fs.Arg(0)
	entryPath := fs.Arg(1)
	outputDir := "."
	if fs.NArg() > 2 {
		outputDir = fs.Arg(2)
	}

	archive, err := pak.Open(pakPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer archive.Close()

	// Check if it's a pattern
	if strings.Contains(entryPath, "*") {
		extractPattern(archive, entryPath, outputDir)
		return
	}

	// Single entry extraction
	data, err := archive.Read(entryPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading entry: %v\n", err)
		os.Exit(1)
	}

	outputPath := filepath.Join(outputDir, path.Base(entryPath))
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Extracted: %s (%d bytes)\n", outputPath, len(data))
}

func extractPattern(archive *pak.Archive, pattern, outputDir string) {
	files := archive.List()
	sort.Strings(files)
	pattern = strings.ToLower(pattern)

	extracted := 0
	for _, f := range files {
		matched, _ := path.Match(pattern, path.Base(f))
		if !matched {
			continue
		}

		data, err := archive.Read(f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", f, err)
			continue
		}

		// Preserve directory structure
		outputPath := filepath.Join(outputDir, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
			continue
		}

		if err := os.WriteFile(outputPath, data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", outputPath, err)
			continue
		}

		fmt.Printf("Extracted: %s\n", outputPath)
		extracted++
	}

	fmt.Fprintf(os.Stderr, "\nExtracted %d entries\n", extracted)
}

func cmdDecode(args []string) {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() < 1 || fs.NArg() > 2 {
		fmt.Fprintln(os.Stderr, "Usage: xobtool decode <file.xob>")
		fmt.Fprintln(os.Stderr, "       xobtool decode <file.pak> <entry>")
		os.Exit(1)
	}

	mesh, _, err := loadMesh(fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Vertices:  %d\n", len(mesh.Vertices))
	fmt.Printf("Triangles: %d\n", mesh.TriangleCount())
	fmt.Printf("Bounds:    min=%v max=%v\n", mesh.BoundsMin, mesh.BoundsMax)
	fmt.Printf("Layout:    %s\n", describeLayout(mesh.Layout))

	if len(mesh.Descriptors) > 0 {
		fmt.Println()
		fmt.Println("LOD descriptors:")
		for i, d := range mesh.Descriptors {
			fmt.Printf("  [%d] %s\n", i, d)
		}
	}

	fmt.Println()
	fmt.Println("LOD table:")
	for i, l := range mesh.Lods {
		fmt.Printf("  [%d] dist=%g indices=%d..%d\n",
			i, l.SwitchDistance, l.IndexOffset, l.IndexOffset+l.IndexCount)
	}

	fmt.Println()
	fmt.Println("Material ranges:")
	for _, r := range mesh.Ranges {
		fmt.Printf("  tris %d..%d  %s\n", r.Start, r.End, mesh.MaterialName(r.Material))
	}

	if len(mesh.Collision) > 0 {
		fmt.Printf("\nCollision: %d bytes\n", len(mesh.Collision))
	}
	if len(mesh.Octree) > 0 {
		fmt.Printf("Octree:    %d bytes\n", len(mesh.Octree))
	}
}

func describeLayout(lay xob.VertexLayout) string {
	kind := "separated"
	if lay.Interleaved {
		kind = "interleaved"
	}
	extras := ""
	if lay.DualIndex {
		extras += " dual-index"
	}
	if lay.HasColor {
		extras += " color"
	}
	return fmt.Sprintf("%s uv=%s strategy=%s%s", kind, lay.UVFormat, lay.Strategy, extras)
}

func cmdExport(args []string, cfg *config.Config) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	out := fs.String("o", "", "Output .obj path (default: entry name in current directory)")
	mtl := fs.Bool("mtl", cfg.Export.WriteMTL, "Write a companion .mtl file")
	fs.Parse(args)

	if fs.NArg() < 1 || fs.NArg() > 2 {
		fmt.Fprintln(os.Stderr, "Usage: xobtool export [-o out.obj] <file.xob>")
		fmt.Fprintln(os.Stderr, "       xobtool export [-o out.obj] <file.pak> <entry>")
		os.Exit(1)
	}

	mesh, name, err := loadMesh(fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	objPath := *out
	if objPath == "" {
		objPath = name + ".obj"
	}

	if err := export.SaveOBJ(objPath, mesh, export.Options{WriteMTL: *mtl}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Exported: %s (%d vertices, %d triangles)\n",
		objPath, len(mesh.Vertices), mesh.TriangleCount())
}

func cmdPreview(args []string, cfg *config.Config) {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	out := fs.String("o", "", "Output .webp path (default: entry name in current directory)")
	size := fs.Int("size", cfg.Preview.Size, "Image size in pixels")
	supersample := fs.Int("supersample", cfg.Preview.Supersample, "Supersampling factor")
	fs.Parse(args)

	if fs.NArg() < 1 || fs.NArg() > 2 {
		fmt.Fprintln(os.Stderr, "Usage: xobtool preview [-o out.webp] <file.xob>")
		fmt.Fprintln(os.Stderr, "       xobtool preview [-o out.webp] <file.pak> <entry>")
		os.Exit(1)
	}

	mesh, name, err := loadMesh(fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	webpPath := *out
	if webpPath == "" {
		webpPath = name + ".webp"
	}

	opts := preview.Options{Size: *size, Supersample: *supersample}
	if err := preview.Save(webpPath, mesh, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Rendered: %s\n", webpPath)
}

func cmdBatch(args []string, cfg *config.Config) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	out := fs.String("out", cfg.Export.OutputDir, "Output directory")
	workers := fs.Int("workers", cfg.Batch.Workers, "Worker count (0 = one per CPU)")
	obj := fs.Bool("obj", true, "Write .obj files")
	mtl := fs.Bool("mtl", cfg.Export.WriteMTL, "Write companion .mtl files")
	prev := fs.Bool("preview", false, "Render .webp previews")
	fs.Parse(args)

	pakPaths := fs.Args()
	if len(pakPaths) == 0 {
		pakPaths = cfg.Data.PakPaths
	}
	if len(pakPaths) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: xobtool batch [options] <file.pak> [more.pak ...]")
		os.Exit(1)
	}

	mgr := assets.NewManager()
	defer mgr.Close()
	for _, p := range pakPaths {
		if err := mgr.Mount(p); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	meshes := batch.MeshEntries(mgr)
	if len(meshes) == 0 {
		fmt.Fprintln(os.Stderr, "No .xob entries found")
		os.Exit(1)
	}

	logger.Info("starting batch conversion",
		zap.Int("meshes", len(meshes)),
		zap.Int("archives", len(pakPaths)),
		zap.String("output", *out))

	start := time.Now()
	results := batch.Run(batch.Config{
		Manager:      mgr,
		OutputDir:    *out,
		Workers:      *workers,
		WriteOBJ:     *obj,
		WriteMTL:     *mtl,
		WritePreview: *prev,
		PreviewOpts: preview.Options{
			Size:        cfg.Preview.Size,
			Supersample: cfg.Preview.Supersample,
		},
	}, meshes)

	failed := 0
	for _, res := range results {
		if !res.Success {
			failed++
			fmt.Fprintf(os.Stderr, "  %s: %s\n", res.Path, res.Error)
		}
	}

	fmt.Printf("Converted %d/%d meshes in %s\n",
		len(results)-failed, len(results), time.Since(start).Round(time.Millisecond))
	if failed > 0 {
		os.Exit(1)
	}
}
