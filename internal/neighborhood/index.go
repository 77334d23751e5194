package neighborhood

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// xyPoint is a planar point tagged with its index in the source cloud.
type xyPoint struct {
	X, Y  float64
	Index int
}

// Compare implements the kdtree.Comparable interface
func (p xyPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(xyPoint)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p xyPoint) Dims() int { return 2 }

// Distance returns the squared Euclidean distance between two points
func (p xyPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(xyPoint)
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy
}

// xyPoints is a collection of xyPoint that satisfies kdtree.Interface
type xyPoints []xyPoint

func (p xyPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p xyPoints) Len() int                              { return len(p) }
func (p xyPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p xyPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(xyPlane{xyPoints: p, Dim: d}, kdtree.MedianOfRandoms(xyPlane{xyPoints: p, Dim: d}, 100))
}

// xyPlane implements sort.Interface and kdtree.SortSlicer for xyPoints
type xyPlane struct {
	xyPoints
	kdtree.Dim
}

func (p xyPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.xyPoints[i].X < p.xyPoints[j].X
	case 1:
		return p.xyPoints[i].Y < p.xyPoints[j].Y
	default:
		panic("illegal dimension")
	}
}

func (p xyPlane) Slice(start, end int) kdtree.SortSlicer {
	return xyPlane{xyPoints: p.xyPoints[start:end], Dim: p.Dim}
}

func (p xyPlane) Swap(i, j int) {
	p.xyPoints[i], p.xyPoints[j] = p.xyPoints[j], p.xyPoints[i]
}

// node is a flattened kdtree.Node with the bounding box of its subtree.
type node struct {
	p                      xyPoint
	left, right            int32
	minX, minY, maxX, maxY float64
}

// Index is a 2D KD-tree over the (x,y) coordinates of a cloud. It holds
// copies of the coordinates, never the cloud's own arrays.
type Index struct {
	tree  *kdtree.Tree
	nodes []node
	root  int32
}

// NewIndex builds an index over x and y. Point i carries index i.
func NewIndex(x, y []float64) *Index {
	pts := make(xyPoints, len(x))
	for i := range pts {
		pts[i] = xyPoint{X: x[i], Y: y[i], Index: i}
	}
	return newIndex(pts)
}

func newIndex(pts xyPoints) *Index {
	ix := &Index{root: -1}
	if len(pts) == 0 {
		return ix
	}
	ix.tree = kdtree.New(pts, false)
	ix.nodes = make([]node, 0, len(pts))
	ix.root = ix.flatten(ix.tree.Root)
	return ix
}

func (ix *Index) flatten(n *kdtree.Node) int32 {
	if n == nil {
		return -1
	}
	p := n.Point.(xyPoint)
	at := int32(len(ix.nodes))
	ix.nodes = append(ix.nodes, node{p: p, minX: p.X, maxX: p.X, minY: p.Y, maxY: p.Y})
	left := ix.flatten(n.Left)
	right := ix.flatten(n.Right)
	nd := &ix.nodes[at]
	nd.left, nd.right = left, right
	for _, c := range [2]int32{left, right} {
		if c < 0 {
			continue
		}
		ch := ix.nodes[c]
		nd.minX = math.Min(nd.minX, ch.minX)
		nd.minY = math.Min(nd.minY, ch.minY)
		nd.maxX = math.Max(nd.maxX, ch.maxX)
		nd.maxY = math.Max(nd.maxY, ch.maxY)
	}
	return at
}

// Len returns the number of indexed points.
func (ix *Index) Len() int { return len(ix.nodes) }

// Radius returns the indices of all points within r of (x,y) in the plane,
// in unspecified order.
func (ix *Index) Radius(x, y, r float64) []int {
	if ix.tree == nil {
		return nil
	}
	keep := kdtree.NewDistKeeper(r * r)
	ix.tree.NearestSet(keep, xyPoint{X: x, Y: y, Index: -1})
	out := make([]int, 0, len(keep.Heap))
	for _, cd := range keep.Heap {
		if cd.Comparable == nil {
			continue
		}
		out = append(out, cd.Comparable.(xyPoint).Index)
	}
	return out
}

// pairQuery collects, for every target in a target index, the env points
// within sqrt(r2) in the plane by walking both trees together.
type pairQuery struct {
	t, e *Index
	r2   float64
	out  [][]int
}

// ballPairs runs a dual-tree ball query. out[i] receives env indices for the
// target whose xyPoint.Index is i.
func ballPairs(targets, env *Index, r float64, out [][]int) {
	if targets.root < 0 || env.root < 0 {
		return
	}
	q := &pairQuery{t: targets, e: env, r2: r * r, out: out}
	q.visit(targets.root, env.root)
}

func boxGap2(a, b *node) float64 {
	dx := math.Max(0, math.Max(a.minX-b.maxX, b.minX-a.maxX))
	dy := math.Max(0, math.Max(a.minY-b.maxY, b.minY-a.maxY))
	return dx*dx + dy*dy
}

func boxSpan2(a, b *node) float64 {
	dx := math.Max(a.maxX, b.maxX) - math.Min(a.minX, b.minX)
	dy := math.Max(a.maxY, b.maxY) - math.Min(a.minY, b.minY)
	return dx*dx + dy*dy
}

func extent(n *node) float64 {
	return math.Max(n.maxX-n.minX, n.maxY-n.minY)
}

// visit handles every pair (target in subtree a, env in subtree b). Each
// step peels the root point off the wider subtree, so every pair is seen
// exactly once.
func (q *pairQuery) visit(a, b int32) {
	if a < 0 || b < 0 {
		return
	}
	na, nb := &q.t.nodes[a], &q.e.nodes[b]
	if boxGap2(na, nb) > q.r2 {
		return
	}
	if boxSpan2(na, nb) <= q.r2 {
		q.all(a, b)
		return
	}
	if extent(na) >= extent(nb) {
		q.one(na.p.Index, na.p, b)
		q.visit(na.left, b)
		q.visit(na.right, b)
		return
	}
	q.rev(nb.p, a)
	q.visit(a, nb.left)
	q.visit(a, nb.right)
}

// one matches a single target against env subtree b.
func (q *pairQuery) one(ti int, p xyPoint, b int32) {
	if b < 0 {
		return
	}
	nb := &q.e.nodes[b]
	if pointGap2(p, nb) > q.r2 {
		return
	}
	if p.Distance(nb.p) <= q.r2 {
		q.out[ti] = append(q.out[ti], nb.p.Index)
	}
	q.one(ti, p, nb.left)
	q.one(ti, p, nb.right)
}

// rev matches a single env point against target subtree a.
func (q *pairQuery) rev(p xyPoint, a int32) {
	if a < 0 {
		return
	}
	na := &q.t.nodes[a]
	if pointGap2(p, na) > q.r2 {
		return
	}
	if p.Distance(na.p) <= q.r2 {
		q.out[na.p.Index] = append(q.out[na.p.Index], p.Index)
	}
	q.rev(p, na.left)
	q.rev(p, na.right)
}

// all records every pair between two subtrees known to be within range.
func (q *pairQuery) all(a, b int32) {
	var envIdx []int
	q.e.collect(b, &envIdx)
	var walk func(int32)
	walk = func(i int32) {
		if i < 0 {
			return
		}
		n := &q.t.nodes[i]
		q.out[n.p.Index] = append(q.out[n.p.Index], envIdx...)
		walk(n.left)
		walk(n.right)
	}
	walk(a)
}

func (ix *Index) collect(i int32, dst *[]int) {
	if i < 0 {
		return
	}
	n := &ix.nodes[i]
	*dst = append(*dst, n.p.Index)
	ix.collect(n.left, dst)
	ix.collect(n.right, dst)
}

func pointGap2(p xyPoint, n *node) float64 {
	dx := math.Max(0, math.Max(n.minX-p.X, p.X-n.maxX))
	dy := math.Max(0, math.Max(n.minY-p.Y, p.Y-n.maxY))
	return dx*dx + dy*dy
}
