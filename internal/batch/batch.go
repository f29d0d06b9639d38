// Package batch converts many archived meshes concurrently.
package batch

import (
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Cyrex0/enfusion-unpacker/internal/assets"
	"github.com/Cyrex0/enfusion-unpacker/internal/export"
	"github.com/Cyrex0/enfusion-unpacker/internal/logger"
	"github.com/Cyrex0/enfusion-unpacker/internal/preview"
	"github.com/Cyrex0/enfusion-unpacker/pkg/xob"
)

// Config holds all shared resources for a batch run.
type Config struct {
	Manager      *assets.Manager
	OutputDir    string
	Workers      int // 0 means one worker per CPU
	WriteOBJ     bool
	WriteMTL     bool
	WritePreview bool
	PreviewOpts  preview.Options
}

// Result holds the outcome of processing one mesh.
type Result struct {
	Path      string
	Vertices  int
	Triangles int
	Materials int
	Success   bool
	Error     string
}

// MeshEntries returns every mesh path visible across the mounted
// archives, sorted for a stable processing order.
func MeshEntries(m *assets.Manager) []string {
	var paths []string
	for _, p := range m.List() {
		if strings.HasSuffix(p, ".xob") {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}

// Run processes all paths using a worker pool. The returned slice has
// one Result per input path, in input order.
func Run(cfg Config, paths []string) []Result {
	total := len(paths)
	results := make([]Result, total)
	var processed atomic.Int64

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	start := time.Now()

	// Progress reporter
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				p := processed.Load()
				if p > 0 {
					elapsed := time.Since(start).Seconds()
					logger.Info("batch progress",
						zap.Int64("done", p),
						zap.Int("total", total),
						zap.Float64("per_second", float64(p)/elapsed))
				}
			}
		}
	}()

	// Worker pool
	jobs := make(chan int, workers*2)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = processEntry(cfg, paths[idx])
				processed.Add(1)
			}
		}()
	}

	// Send work
	for i := range paths {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	close(done)

	return results
}

func processEntry(cfg Config, p string) Result {
	res := Result{Path: p}

	data, err := cfg.Manager.Load(p)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	mesh, err := xob.Decode(data)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.Vertices = len(mesh.Vertices)
	res.Triangles = mesh.TriangleCount()
	res.Materials = len(mesh.Materials)

	base := filepath.Join(cfg.OutputDir, filepath.FromSlash(strings.TrimSuffix(p, path.Ext(p))))

	if cfg.WriteOBJ {
		if err := export.SaveOBJ(base+".obj", mesh, export.Options{WriteMTL: cfg.WriteMTL}); err != nil {
			res.Error = err.Error()
			return res
		}
	}

	if cfg.WritePreview {
		if err := preview.Save(base+".webp", mesh, cfg.PreviewOpts); err != nil {
			res.Error = err.Error()
			return res
		}
	}

	res.Success = true
	return res
}
