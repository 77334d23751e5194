package cli

import (
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/features"
	"github.com/banshee-data/lidarfeatures/internal/formats"
	"github.com/banshee-data/lidarfeatures/internal/formats/ply"
	"github.com/banshee-data/lidarfeatures/internal/neighborhood"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
)

// ioFlags are the load and save options shared by commands that read one
// cloud and write another.
type ioFlags struct {
	attributes []string
	plyFormat  string
}

func (f *ioFlags) load(app *App, path string) (*pointcloud.PointCloud, error) {
	return formats.Load(app.FS, path, formats.LoadOptions{Attributes: f.attributes})
}

func (f *ioFlags) save(app *App, path string, pc *pointcloud.PointCloud) error {
	var opts formats.SaveOptions
	if f.plyFormat != "" {
		format, ok := ply.ParseFormat(strings.ToLower(f.plyFormat))
		if !ok {
			return errs.New(errs.InvalidInput, "unknown PLY format %q", f.plyFormat)
		}
		opts.PLYFormat = format
	}
	return formats.Save(app.FS, path, pc, opts)
}

func (f *ioFlags) params() map[string]any {
	p := map[string]any{}
	if len(f.attributes) > 0 {
		p["attributes"] = strings.Join(f.attributes, ",")
	}
	if f.plyFormat != "" {
		p["ply_format"] = f.plyFormat
	}
	return p
}

// engine builds a neighborhood engine from the loaded config.
func (a *App) engine() *neighborhood.Engine {
	cfg := a.Config
	seed := cfg.GetSampleSeed()
	e := &neighborhood.Engine{
		MemoryFraction: cfg.GetMemoryFraction(),
		MemoryBytes:    cfg.GetMemoryBytes(),
		SampleSize:     cfg.GetSampleSize(),
		Rand:           rand.New(rand.NewPCG(seed, seed)),
		Workers:        cfg.GetWorkers(),
	}
	if a.Metrics != nil {
		e.Observer = a.Metrics
	}
	return e
}

func (a *App) featureObserver() features.Observer {
	if a.Metrics == nil {
		return nil
	}
	return a.Metrics
}

// parseKwargs turns key=value pairs into extractor parameters. Numbers stay
// strings; extractors parse what they read.
func parseKwargs(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, errs.New(errs.InvalidInput, "parameter %q: want key=value", p)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

func positive(name string, v float64) error {
	if !(v > 0) {
		return errs.New(errs.InvalidInput, "--%s must be positive, got %s", name, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return nil
}
