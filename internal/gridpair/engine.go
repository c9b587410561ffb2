// Package gridpair finds mutual nearest-neighbour pairs in a 2D point set
// using a uniform grid.
package gridpair

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
)

// DefaultMaxBins caps the number of cells along each axis.
const DefaultMaxBins = 512

// ErrInvalidRadius is returned for a negative or non-finite radius.
var ErrInvalidRadius = errors.New("invalid radius")

// Point is an input point. ID is used to order the output.
type Point struct {
	ID   int
	X, Y float64
}

// Cluster is a singleton or a mutually-closest pair. Points are in ID order.
type Cluster struct {
	Points []Point
}

// Size returns the number of points.
func (c Cluster) Size() int { return len(c.Points) }

// Engine pairs points. The zero value uses DefaultMaxBins.
type Engine struct {
	// MaxBins caps the grid size along each axis; the cell size grows to
	// fit. Zero means DefaultMaxBins.
	MaxBins int
}

// grid is the per-call working state. Cells and clusters are singly-linked
// lists threaded through index arrays.
type grid struct {
	pts      []Point
	r2       float64
	nx, ny   int
	cellHead []int
	cellNext []int

	link []int
	best []float64

	clusterHead []int
	clusterTail []int
	clusterSize []int
	pointNext   []int
	owner       []int
}

// Pair links every point to its closest neighbour within r and merges the
// points that are each other's closest into a cluster. It makes a single
// link-then-commit pass, so the result holds singletons and pairs only.
// Clusters are sorted by size, largest first, then by lowest point ID.
func (e *Engine) Pair(pts []Point, r float64) ([]Cluster, error) {
	if r < 0 || math.IsNaN(r) || math.IsInf(r, 0) {
		return nil, fmt.Errorf("radius %v: %w", r, ErrInvalidRadius)
	}
	if len(pts) == 0 {
		return nil, nil
	}
	g := e.build(pts, r)
	g.findLinks()
	g.commit()
	return g.clusters(), nil
}

func (e *Engine) build(pts []Point, r float64) *grid {
	maxBins := e.MaxBins
	if maxBins <= 0 {
		maxBins = DefaultMaxBins
	}
	minX, maxX, minY, maxY := pts[0].X, pts[0].X, pts[0].Y, pts[0].Y
	for _, p := range pts[1:] {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	cell := max(r, (maxX-minX)/float64(maxBins), (maxY-minY)/float64(maxBins))
	if cell <= 0 {
		cell = 1
	}

	n := len(pts)
	g := &grid{
		pts:         pts,
		r2:          r * r,
		nx:          min(maxBins, int((maxX-minX)/cell)+1),
		ny:          min(maxBins, int((maxY-minY)/cell)+1),
		cellNext:    make([]int, n),
		link:        make([]int, n),
		best:        make([]float64, n),
		clusterHead: make([]int, n),
		clusterTail: make([]int, n),
		clusterSize: make([]int, n),
		pointNext:   make([]int, n),
		owner:       make([]int, n),
	}
	g.cellHead = make([]int, g.nx*g.ny)
	for i := range g.cellHead {
		g.cellHead[i] = -1
	}
	cellOf := func(v, lo float64, size int) int {
		return min(size-1, int((v-lo)/cell))
	}
	// Insert in reverse so each cell list runs in input order.
	for i := n - 1; i >= 0; i-- {
		c := cellOf(pts[i].Y, minY, g.ny)*g.nx + cellOf(pts[i].X, minX, g.nx)
		g.cellNext[i] = g.cellHead[c]
		g.cellHead[c] = i
	}
	for i := range pts {
		g.link[i] = -1
		g.best[i] = math.Inf(1)
		g.clusterHead[i], g.clusterTail[i], g.clusterSize[i] = i, i, 1
		g.pointNext[i] = -1
		g.owner[i] = i
	}
	return g
}

// forward lists the cells scanned after a point's own cell; together with
// the rest of the own cell they visit every neighbouring pair once.
var forward = [4][2]int{{1, 0}, {-1, 1}, {0, 1}, {1, 1}}

func (g *grid) findLinks() {
	for cy := 0; cy < g.ny; cy++ {
		for cx := 0; cx < g.nx; cx++ {
			for i := g.cellHead[cy*g.nx+cx]; i >= 0; i = g.cellNext[i] {
				for j := g.cellNext[i]; j >= 0; j = g.cellNext[j] {
					g.consider(i, j)
				}
				for _, d := range forward {
					x, y := cx+d[0], cy+d[1]
					if x < 0 || x >= g.nx || y >= g.ny {
						continue
					}
					for j := g.cellHead[y*g.nx+x]; j >= 0; j = g.cellNext[j] {
						g.consider(i, j)
					}
				}
			}
		}
	}
}

// consider records a provisional link in each direction when the pair is
// within range and strictly closer than the current best.
func (g *grid) consider(i, j int) {
	dx, dy := g.pts[i].X-g.pts[j].X, g.pts[i].Y-g.pts[j].Y
	d := dx*dx + dy*dy
	if d > g.r2 {
		return
	}
	if d < g.best[i] {
		g.best[i], g.link[i] = d, j
	}
	if d < g.best[j] {
		g.best[j], g.link[j] = d, i
	}
}

func (g *grid) validLink(i int) bool {
	j := g.link[i]
	return j >= 0 && g.link[j] == i
}

func (g *grid) commit() {
	for i := range g.pts {
		if j := g.link[i]; i < j && g.validLink(i) {
			g.join(g.owner[i], g.owner[j])
		}
	}
	for i := range g.link {
		g.link[i] = -1
		g.best[i] = math.Inf(1)
	}
}

// join splices the smaller cluster's point list onto the larger.
func (g *grid) join(a, b int) {
	if a == b {
		return
	}
	if g.clusterSize[a] < g.clusterSize[b] {
		a, b = b, a
	}
	for p := g.clusterHead[b]; p >= 0; p = g.pointNext[p] {
		g.owner[p] = a
	}
	g.pointNext[g.clusterTail[a]] = g.clusterHead[b]
	g.clusterTail[a] = g.clusterTail[b]
	g.clusterSize[a] += g.clusterSize[b]
	g.clusterSize[b] = 0
	g.clusterHead[b], g.clusterTail[b] = -1, -1
}

func (g *grid) clusters() []Cluster {
	var out []Cluster
	for c := range g.pts {
		if g.clusterSize[c] == 0 {
			continue
		}
		cl := Cluster{Points: make([]Point, 0, g.clusterSize[c])}
		for p := g.clusterHead[c]; p >= 0; p = g.pointNext[p] {
			cl.Points = append(cl.Points, g.pts[p])
		}
		slices.SortFunc(cl.Points, func(a, b Point) int { return cmp.Compare(a.ID, b.ID) })
		out = append(out, cl)
	}
	slices.SortFunc(out, func(a, b Cluster) int {
		if c := cmp.Compare(b.Size(), a.Size()); c != 0 {
			return c
		}
		return cmp.Compare(a.Points[0].ID, b.Points[0].ID)
	})
	return out
}
