package features

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/monitoring"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
	"github.com/banshee-data/lidarfeatures/internal/timeutil"
	"github.com/banshee-data/lidarfeatures/internal/volume"
)

// DefaultChunkSize is the number of targets evaluated per chunk.
const DefaultChunkSize = 100_000

// Provenance modules written by Compute besides the extractors' own.
const (
	ModuleCompute   = "compute_features"
	ModuleCancelled = "cancelled"
	ModuleFailed    = "failed"
)

// Source yields neighborhoods in target order. Next returns io.EOF after
// the last batch. *neighborhood.Stream satisfies it.
type Source interface {
	Next(ctx context.Context) ([][]int, error)
}

// SliceSource serves precomputed neighborhoods as a single batch.
type SliceSource struct {
	Neighborhoods [][]int
	done          bool
}

// Next implements Source.
func (s *SliceSource) Next(context.Context) ([][]int, error) {
	if s.done {
		return nil, io.EOF
	}
	s.done = true
	return s.Neighborhoods, nil
}

// Observer receives per-extractor timings.
type Observer interface {
	ObserveExtractor(name string, d time.Duration, targets int)
}

// Options tunes a Compute call.
type Options struct {
	// Catalog resolves feature names. Required.
	Catalog *Catalog
	// ChunkSize defaults to DefaultChunkSize.
	ChunkSize int
	// Verbose logs per-extractor timings.
	Verbose bool
	// Kwargs are offered to every configurable extractor.
	Kwargs map[string]any
	// Observer is optional.
	Observer Observer
	// Clock times extractors; nil means the real clock.
	Clock timeutil.Clock
}

// ExtractorError reports the extractor and chunk that aborted a run.
type ExtractorError struct {
	Extractor string
	Chunk     int
	Err       error
}

func (e *ExtractorError) Error() string {
	return fmt.Sprintf("extractor %s failed on chunk %d: %v", e.Extractor, e.Chunk, e.Err)
}

func (e *ExtractorError) Unwrap() error { return e.Err }

// Compute evaluates the requested features for every target and stores them
// as target attributes.
//
// Dependencies are resolved first so every extractor runs after the
// features it requires. Targets are processed in chunks; within a chunk each
// extractor runs at most once even when it provides several requested
// features. Attributes that existed before the call are left alone unless
// requested; intermediate features that were not requested are dropped at
// the end.
//
// On cancellation the columns already written stay, a "cancelled" record is
// appended to the target provenance and an errs.Cancelled error returned. An
// extractor failure appends a "failed" record and returns an
// *ExtractorError.
func Compute(ctx context.Context, env *pointcloud.PointCloud, src Source, targets *pointcloud.PointCloud, names []string, vol volume.Volume, opts Options) error {
	if env == nil || targets == nil || src == nil {
		return errs.New(errs.InvalidInput, "environment, targets and neighborhood source are required")
	}
	if opts.Catalog == nil {
		return errs.New(errs.InvalidInput, "feature catalog is required")
	}
	if err := volume.Validate(vol); err != nil {
		return err
	}
	for _, name := range names {
		if _, err := opts.Catalog.Lookup(name); err != nil {
			return err
		}
	}
	extended, err := ExtendedList(opts.Catalog, names)
	if err != nil {
		return err
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	requested := make(map[string]bool, len(names))
	for _, name := range names {
		requested[name] = true
	}
	existing := make(map[string]bool)
	keep := make(map[string]bool)
	for _, name := range targets.Names() {
		existing[name] = true
		keep[name] = true
	}
	for name := range requested {
		keep[name] = true
	}
	// Dependencies already on the targets are reused, not recomputed.
	var todo []string
	for _, name := range extended {
		if existing[name] && !requested[name] {
			continue
		}
		todo = append(todo, name)
	}

	r := &run{
		ctx: ctx, env: env, targets: targets, vol: vol, opts: opts, clock: clock,
		requested: requested, existing: existing,
		configured: make(map[string]Extractor),
	}

	n := targets.Len()
	var pending [][]int
	chunks := 0
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		if err := r.cancelled(chunks, ""); err != nil {
			return err
		}
		for len(pending) < end-start {
			batch, err := src.Next(ctx)
			if errors.Is(err, io.EOF) {
				return errs.New(errs.InvalidInput, "neighborhood source ended after %d of %d targets", start+len(pending), n)
			}
			if err != nil {
				if errs.Has(err, errs.Cancelled) || ctx.Err() != nil {
					targets.AddProvenance(ModuleCancelled, chunks)
					return errs.Wrap(err, errs.Cancelled, "feature extraction cancelled at chunk %d", chunks)
				}
				return err
			}
			pending = append(pending, batch...)
		}
		chunk := pending[:end-start]
		pending = pending[end-start:]

		indices := make([]int, end-start)
		for i := range indices {
			indices[i] = start + i
		}
		if err := r.chunk(chunks, todo, chunk, indices); err != nil {
			return err
		}
		chunks++
	}
	// Every requested feature is an attribute afterwards, even with no targets.
	for _, name := range names {
		if !targets.Has(name) {
			if err := targets.SetAt(name, pointcloud.Float64, nil, nil); err != nil {
				return err
			}
		}
	}

	var dropped []string
	for _, name := range targets.Names() {
		if !keep[name] {
			if err := targets.Drop(name); err != nil {
				return err
			}
			dropped = append(dropped, name)
		}
	}
	if len(dropped) > 0 {
		monitoring.Logf("features: dropped intermediate attributes not requested: %s", strings.Join(dropped, ", "))
	}
	targets.AddProvenance(ModuleCompute, strings.Join(names, ","), string(vol.Type()), vol.Size(), chunks)
	return nil
}

type run struct {
	ctx       context.Context
	env       *pointcloud.PointCloud
	targets   *pointcloud.PointCloud
	vol       volume.Volume
	opts      Options
	clock     timeutil.Clock
	requested map[string]bool
	existing  map[string]bool

	configured map[string]Extractor
}

func (r *run) cancelled(chunk int, extractor string) error {
	err := r.ctx.Err()
	if err == nil {
		return nil
	}
	if extractor == "" {
		r.targets.AddProvenance(ModuleCancelled, chunk)
	} else {
		r.targets.AddProvenance(ModuleCancelled, chunk, extractor)
	}
	return errs.Wrap(err, errs.Cancelled, "feature extraction cancelled at chunk %d", chunk)
}

func (r *run) chunk(chunkNo int, todo []string, neighborhoods [][]int, indices []int) error {
	produced := make(map[string]bool)
	for _, feature := range todo {
		if produced[feature] {
			continue
		}
		x, err := r.extractor(feature)
		if err != nil {
			return err
		}
		if err := r.cancelled(chunkNo, x.Name()); err != nil {
			return err
		}
		for _, dep := range x.Requires() {
			if !r.targets.Has(dep) {
				return errs.New(errs.MissingAttribute, "extractor %s requires %q on targets", x.Name(), dep)
			}
		}

		started := r.clock.Now()
		cols, err := x.Extract(r.env, neighborhoods, r.targets, indices, r.vol)
		if err == nil {
			err = checkColumns(x, cols, len(indices))
		}
		if err != nil {
			r.targets.AddProvenance(ModuleFailed, x.Name(), chunkNo)
			return &ExtractorError{Extractor: x.Name(), Chunk: chunkNo, Err: err}
		}
		elapsed := r.clock.Since(started)

		for k, name := range x.Provides() {
			produced[name] = true
			if r.existing[name] && !r.requested[name] {
				continue
			}
			if err := r.targets.SetAt(name, pointcloud.Float64, indices, cols[k]); err != nil {
				return err
			}
		}
		r.targets.AddProvenance(x.Name(), x.Params()...)

		if r.opts.Observer != nil {
			r.opts.Observer.ObserveExtractor(x.Name(), elapsed, len(indices))
		}
		if r.opts.Verbose {
			monitoring.Debugf("features: chunk %d extractor %s took %s for %d targets", chunkNo, x.Name(), elapsed, len(indices))
		}
	}
	return nil
}

// extractor returns the catalog extractor for feature with the call's
// kwargs applied. Configured copies are reused across chunks.
func (r *run) extractor(feature string) (Extractor, error) {
	x, err := r.opts.Catalog.Lookup(feature)
	if err != nil {
		return nil, err
	}
	key := x.Provides()[0]
	if c, ok := r.configured[key]; ok {
		return c, nil
	}
	if cfg, ok := x.(Configurable); ok && len(r.opts.Kwargs) > 0 {
		if x, err = cfg.WithParams(r.opts.Kwargs); err != nil {
			return nil, errs.Wrap(err, errs.InvalidInput, "configuring extractor for %q", feature)
		}
	}
	r.configured[key] = x
	return x, nil
}

func checkColumns(x Extractor, cols [][]float64, n int) error {
	if len(cols) != len(x.Provides()) {
		return errs.New(errs.InvalidInput, "returned %d columns, provides %d", len(cols), len(x.Provides()))
	}
	for k, col := range cols {
		if len(col) != n {
			return errs.New(errs.InvalidInput, "column %q has length %d, want %d", x.Provides()[k], len(col), n)
		}
	}
	return nil
}

// ExtendedList returns the requested features preceded by their transitive
// dependencies, each name once, dependencies before dependents.
func ExtendedList(c *Catalog, names []string) ([]string, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int)
	var out []string
	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return errs.New(errs.InvalidInput, "feature dependency cycle: %s", strings.Join(append(path[:len(path):len(path)], name), " -> "))
		}
		x, err := c.Lookup(name)
		if err != nil {
			return err
		}
		state[name] = visiting
		for _, dep := range x.Requires() {
			if err := visit(dep, append(path[:len(path):len(path)], name)); err != nil {
				return err
			}
		}
		state[name] = done
		out = append(out, name)
		return nil
	}
	for _, name := range names {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return out, nil
}
