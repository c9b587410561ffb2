package assign

import "gonum.org/v1/gonum/spatial/kdtree"

// point is a focus position in weighted coordinates. idx is the position of
// the record in Index.items, or -1 for a query.
type point struct {
	c    [3]float64
	dims int
	idx  int
}

// Compare implements the kdtree.Comparable interface
func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(point)
	return p.c[d] - q.c[d]
}

// Dims returns the number of dimensions for the KD-tree
func (p point) Dims() int { return p.dims }

// Distance returns the squared weighted distance between two points
func (p point) Distance(c kdtree.Comparable) float64 {
	q := c.(point)
	var d float64
	for i := 0; i < p.dims; i++ {
		v := p.c[i] - q.c[i]
		d += v * v
	}
	return d
}

// points satisfies kdtree.Interface
type points []point

func (p points) Index(i int) kdtree.Comparable         { return p[i] }
func (p points) Len() int                              { return len(p) }
func (p points) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p points) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(plane{points: p, Dim: d}, kdtree.MedianOfMedians(plane{points: p, Dim: d}))
}

// plane implements sort.Interface and kdtree.SortSlicer for points
type plane struct {
	points
	kdtree.Dim
}

func (p plane) Less(i, j int) bool { return p.points[i].c[p.Dim] < p.points[j].c[p.Dim] }

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{points: p.points[start:end], Dim: p.Dim}
}

func (p plane) Swap(i, j int) { p.points[i], p.points[j] = p.points[j], p.points[i] }

// matchKeeper is a kdtree.Keeper that retains a single record matching the
// assigned flag within limit. It keeps the nearest record or, in highest
// mode, the one with the largest value. Nothing is stored on the heap, so
// NearestSet's final sort is a no-op and the answer is read from best.
type matchKeeper struct {
	ix       *Index
	assigned bool
	highest  bool
	limit    float64

	best      int
	bestDist  float64
	bestValue float64
}

func newMatchKeeper(ix *Index, assigned, highest bool, limit float64) *matchKeeper {
	return &matchKeeper{ix: ix, assigned: assigned, highest: highest, limit: limit, best: -1}
}

// Keep implements kdtree.Keeper.
func (k *matchKeeper) Keep(c kdtree.ComparableDist) {
	if c.Dist > k.limit {
		return
	}
	p := c.Comparable.(point)
	it := &k.ix.items[p.idx]
	if it.Assigned != k.assigned {
		return
	}
	if k.best >= 0 {
		if k.highest {
			v := it.MaxValue
			if v < k.bestValue || (v == k.bestValue && !closer(c.Dist, p.idx, k.bestDist, k.best)) {
				return
			}
		} else if !closer(c.Dist, p.idx, k.bestDist, k.best) {
			return
		}
	}
	k.best, k.bestDist, k.bestValue = p.idx, c.Dist, it.MaxValue
}

func closer(d float64, idx int, bestD float64, bestIdx int) bool {
	return d < bestD || (d == bestD && idx < bestIdx)
}

// Max implements kdtree.Keeper. It is the radius still worth searching.
func (k *matchKeeper) Max() kdtree.ComparableDist {
	if !k.highest && k.best >= 0 {
		return kdtree.ComparableDist{Dist: k.bestDist}
	}
	return kdtree.ComparableDist{Dist: k.limit}
}

func (k *matchKeeper) Len() int           { return 0 }
func (k *matchKeeper) Less(i, j int) bool { return false }
func (k *matchKeeper) Swap(i, j int)      {}
func (k *matchKeeper) Push(x any)         {}
func (k *matchKeeper) Pop() any           { return nil }
