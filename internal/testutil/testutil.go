// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Points is a coordinate accumulator for building fixture clouds.
type Points struct {
	X, Y, Z []float64
}

// Add appends one point.
func (p *Points) Add(x, y, z float64) {
	p.X = append(p.X, x)
	p.Y = append(p.Y, y)
	p.Z = append(p.Z, z)
}

// Len returns the number of points.
func (p *Points) Len() int { return len(p.X) }

// Cloud builds a point cloud from the accumulated coordinates.
func (p *Points) Cloud(t *testing.T) *pointcloud.PointCloud {
	t.Helper()
	pc, err := pointcloud.FromXYZ(
		append([]float64(nil), p.X...),
		append([]float64(nil), p.Y...),
		append([]float64(nil), p.Z...),
	)
	AssertNoError(t, err)
	return pc
}

// MustCloud builds a cloud from coordinate slices.
func MustCloud(t *testing.T, x, y, z []float64) *pointcloud.PointCloud {
	t.Helper()
	pc, err := pointcloud.FromXYZ(x, y, z)
	AssertNoError(t, err)
	return pc
}

// AddSphere appends n x n points spread over a sphere surface: n polar
// angles in (0, pi) crossed with n azimuths in [0, 2pi).
func (p *Points) AddSphere(cx, cy, cz, r float64, n int) {
	for i := 0; i < n; i++ {
		theta := math.Pi * (float64(i) + 0.5) / float64(n)
		for j := 0; j < n; j++ {
			phi := 2 * math.Pi * float64(j) / float64(n)
			p.Add(
				cx+r*math.Sin(theta)*math.Cos(phi),
				cy+r*math.Sin(theta)*math.Sin(phi),
				cz+r*math.Cos(theta),
			)
		}
	}
}

// AddCylinder appends nz rings of na points each on a vertical cylinder
// surface between heights z0 and z1.
func (p *Points) AddCylinder(cx, cy, r, z0, z1 float64, nz, na int) {
	for i := 0; i < nz; i++ {
		z := z0
		if nz > 1 {
			z = z0 + (z1-z0)*float64(i)/float64(nz-1)
		}
		for j := 0; j < na; j++ {
			phi := 2 * math.Pi * float64(j) / float64(na)
			p.Add(cx+r*math.Cos(phi), cy+r*math.Sin(phi), z)
		}
	}
}

// AddGrid appends an nx by ny grid with the given spacing at height z,
// starting at (x0, y0).
func (p *Points) AddGrid(x0, y0, spacing float64, nx, ny int, z float64) {
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			p.Add(x0+float64(i)*spacing, y0+float64(j)*spacing, z)
		}
	}
}

// AddPlane appends n points drawn uniformly from [-extent, extent]^2 in x,y
// and placed on the plane a*x + b*y + c*z = 0 (c must be non-zero).
func (p *Points) AddPlane(rng *rand.Rand, a, b, c, extent float64, n int) {
	for i := 0; i < n; i++ {
		x := (rng.Float64()*2 - 1) * extent
		y := (rng.Float64()*2 - 1) * extent
		p.Add(x, y, -(a*x+b*y)/c)
	}
}

// AddRandom appends n points uniform in [0, extent]^2 x [0, height].
func (p *Points) AddRandom(rng *rand.Rand, extent, height float64, n int) {
	for i := 0; i < n; i++ {
		p.Add(rng.Float64()*extent, rng.Float64()*extent, rng.Float64()*height)
	}
}

// Rand returns a deterministic generator for fixtures.
func Rand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
