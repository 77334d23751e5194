// Package neighborhood finds, for every target point, the environment points
// inside a volume centred on it.
//
// All four volume shapes are answered by one 2D KD-tree over the environment
// (x,y): a cylindric pre-filter at the volume's circumscribed XY radius,
// followed by an exact membership test on the full offset. Targets are
// processed in batches sized to keep the expected number of returned indices
// within a fraction of physical memory; batches are produced lazily by a
// Stream.
package neighborhood

import (
	"context"
	"io"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/lidarfeatures/internal/errs"
	"github.com/banshee-data/lidarfeatures/internal/monitoring"
	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
	"github.com/banshee-data/lidarfeatures/internal/volume"
)

const (
	// DefaultMemoryFraction is the share of physical memory the expected
	// neighborhood indices may occupy before targets are batched.
	DefaultMemoryFraction = 0.5

	bytesPerIndex = 8

	// Sub-batches smaller than this use per-target tree queries instead of
	// building a target tree.
	minDualTreeTargets = 32

	// Relative slack on the pre-filter radius so rounding never drops a
	// point that passes the exact membership test.
	prefilterSlack = 1e-9
)

// Observer receives per-batch counts.
type Observer interface {
	ObserveBatch(targets, indices int)
}

// Engine computes neighborhoods. The zero value is usable.
type Engine struct {
	// Cache holds environment trees; nil means the process-wide cache.
	Cache *Cache
	// MemoryFraction defaults to DefaultMemoryFraction.
	MemoryFraction float64
	// MemoryBytes overrides detected physical memory when non-zero.
	MemoryBytes uint64
	// SampleSize caps every neighborhood by uniform sampling without
	// replacement. Zero disables sampling.
	SampleSize int
	// Rand drives sampling. Nil means a fixed-seed PCG source.
	Rand *rand.Rand
	// Workers bounds parallel sub-batches; zero means GOMAXPROCS.
	Workers int
	// Observer is optional.
	Observer Observer
}

// Stream yields neighborhoods in target order, one batch per Next call.
type Stream struct {
	e         *Engine
	vol       volume.Volume
	index     *Index
	ex, ey    []float64
	ez        []float64
	tx, ty    []float64
	tz        []float64
	batchSize int
	next      int
	rng       *rand.Rand
}

// Compute validates its inputs and returns a lazy stream over the targets.
func (e *Engine) Compute(ctx context.Context, env, targets *pointcloud.PointCloud, vol volume.Volume) (*Stream, error) {
	if env == nil || targets == nil {
		return nil, errs.New(errs.InvalidInput, "environment and target clouds are required")
	}
	if err := volume.Validate(vol); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, errs.Cancelled, "neighborhood search")
	}
	if e.SampleSize < 0 {
		return nil, errs.New(errs.InvalidInput, "sample size must be non-negative, got %d", e.SampleSize)
	}

	cache := e.Cache
	if cache == nil {
		cache = Default()
	}
	s := &Stream{e: e, vol: vol, rng: e.Rand}
	s.ex, s.ey, s.ez = env.XYZ()
	s.tx, s.ty, s.tz = targets.XYZ()
	s.index = cache.Get(env)
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(1, 2))
	}
	s.batchSize = e.batchSize(len(s.ex), boundsArea(s.ex, s.ey), vol.XYRadius(), len(s.tx))
	if s.batchSize < len(s.tx) {
		monitoring.Logf("neighborhood: %d targets exceed memory budget, processing in batches of %d", len(s.tx), s.batchSize)
	}
	return s, nil
}

// batchSize applies the memory estimate: density * pi r^2 * |T| indices.
func (e *Engine) batchSize(nEnv int, area, r float64, nTargets int) int {
	if nTargets == 0 {
		return 0
	}
	density := float64(nEnv)
	if area > 0 {
		density = float64(nEnv) / area
	}
	perTarget := density * math.Pi * r * r * bytesPerIndex
	fraction := e.MemoryFraction
	if fraction <= 0 {
		fraction = DefaultMemoryFraction
	}
	mem := e.MemoryBytes
	if mem == 0 {
		mem = physicalMemory()
	}
	budget := fraction * float64(mem)
	if perTarget*float64(nTargets) <= budget || perTarget == 0 {
		return nTargets
	}
	size := int(budget / perTarget)
	if size < 1 {
		size = 1
	}
	return size
}

func boundsArea(x, y []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	minX, maxX := x[0], x[0]
	minY, maxY := y[0], y[0]
	for i := range x {
		minX, maxX = math.Min(minX, x[i]), math.Max(maxX, x[i])
		minY, maxY = math.Min(minY, y[i]), math.Max(maxY, y[i])
	}
	return (maxX - minX) * (maxY - minY)
}

// BatchSize returns the number of targets per batch.
func (s *Stream) BatchSize() int { return s.batchSize }

// Len returns the total number of targets.
func (s *Stream) Len() int { return len(s.tx) }

// Next returns the neighborhoods of the next batch of targets, or io.EOF
// once every target has been served. Each neighborhood is sorted ascending
// unless sampling reordered it.
func (s *Stream) Next(ctx context.Context) ([][]int, error) {
	if s.next >= len(s.tx) {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, errs.Cancelled, "neighborhood search")
	}
	start := s.next
	end := min(start+s.batchSize, len(s.tx))
	out := make([][]int, end-start)

	workers := s.e.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	per := max((end-start+workers-1)/workers, minDualTreeTargets)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := start; lo < end; lo += per {
		hi := min(lo+per, end)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s.query(lo, hi, out[lo-start:hi-start])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errs.Wrap(err, errs.Cancelled, "neighborhood search")
	}

	total := 0
	for i := range out {
		if s.e.SampleSize > 0 && len(out[i]) > s.e.SampleSize {
			out[i] = sample(s.rng, out[i], s.e.SampleSize)
		}
		total += len(out[i])
	}
	s.next = end
	if s.e.Observer != nil {
		s.e.Observer.ObserveBatch(len(out), total)
	}
	return out, nil
}

// query fills out with the neighborhoods of targets [lo,hi).
func (s *Stream) query(lo, hi int, out [][]int) {
	r := s.vol.XYRadius() * (1 + prefilterSlack)
	if hi-lo < minDualTreeTargets {
		for i := lo; i < hi; i++ {
			out[i-lo] = s.index.Radius(s.tx[i], s.ty[i], r)
		}
	} else {
		pts := make(xyPoints, hi-lo)
		for i := range pts {
			pts[i] = xyPoint{X: s.tx[lo+i], Y: s.ty[lo+i], Index: i}
		}
		ballPairs(newIndex(pts), s.index, r, out)
	}
	for k := range out {
		out[k] = s.refine(lo+k, out[k])
	}
}

// refine keeps the candidates inside the exact volume, sorted ascending.
func (s *Stream) refine(t int, cand []int) []int {
	kept := cand[:0]
	for _, j := range cand {
		if s.vol.Contains(s.ex[j]-s.tx[t], s.ey[j]-s.ty[t], s.ez[j]-s.tz[t]) {
			kept = append(kept, j)
		}
	}
	slices.Sort(kept)
	if kept == nil {
		kept = []int{}
	}
	return kept
}

// All drains the stream into one slice.
func (s *Stream) All(ctx context.Context) ([][]int, error) {
	out := make([][]int, 0, len(s.tx)-s.next)
	for {
		batch, err := s.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
}

// ComputeAll is a convenience wrapper returning every neighborhood at once.
func (e *Engine) ComputeAll(ctx context.Context, env, targets *pointcloud.PointCloud, vol volume.Volume) ([][]int, error) {
	s, err := e.Compute(ctx, env, targets, vol)
	if err != nil {
		return nil, err
	}
	return s.All(ctx)
}
