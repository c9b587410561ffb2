// Package assign matches query coordinates against a set of detected foci.
//
// An Index holds a private copy of each focus together with an Assigned
// flag. Lookups only consider records whose flag equals the requested one,
// so a caller can consume matches one at a time by setting the flag on each
// record it takes. The flag is never written back to the source list.
package assign

import (
	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/banshee-data/findfoci/internal/findfoci"
)

// AssignedFoci is a focus with a mutable consumed flag.
type AssignedFoci struct {
	findfoci.FociRecord
	Assigned bool
}

// Mode selects what Find returns.
type Mode int

const (
	// Closest returns the nearest match.
	Closest Mode = iota
	// Highest returns the match with the largest MaxValue.
	Highest
)

// Scale is the calibrated size of one pixel along each axis. Zero values
// are treated as 1.
type Scale struct {
	X, Y, Z float64
}

// Index is a nearest-neighbour index over a focus list. A 3D tree is used
// only when the records differ in z.
type Index struct {
	items   []AssignedFoci
	tree    *kdtree.Tree
	dims    int
	weights [3]float64
	// limit is the squared search distance in weighted units.
	limit float64
	mode  Mode
}

// NewIndex builds an index over foci. Distances are squared Euclidean with
// each axis weighted by scale.X / scale.<axis>, so X is the reference axis.
func NewIndex(foci findfoci.FociList, scale Scale) *Index {
	ref := orOne(scale.X)
	ix := &Index{
		items:   make([]AssignedFoci, len(foci)),
		dims:    2,
		weights: [3]float64{1, ref / orOne(scale.Y), ref / orOne(scale.Z)},
	}
	for i, f := range foci {
		ix.items[i] = AssignedFoci{FociRecord: f}
		if f.Z != foci[0].Z {
			ix.dims = 3
		}
	}
	if len(foci) == 0 {
		return ix
	}
	pts := make(points, len(foci))
	for i, f := range foci {
		pts[i] = ix.point(float64(f.X), float64(f.Y), float64(f.Z))
		pts[i].idx = i
	}
	ix.tree = kdtree.New(pts, false)
	return ix
}

func orOne(v float64) float64 {
	if v <= 0 {
		return 1
	}
	return v
}

func (ix *Index) point(x, y, z float64) point {
	return point{
		c:    [3]float64{x * ix.weights[0], y * ix.weights[1], z * ix.weights[2]},
		dims: ix.dims,
		idx:  -1,
	}
}

// Len returns the number of records.
func (ix *Index) Len() int { return len(ix.items) }

// Is3D reports whether the index compares z.
func (ix *Index) Is3D() bool { return ix.dims == 3 }

// SetMode selects the behaviour of Find.
func (ix *Index) SetMode(m Mode) { ix.mode = m }

// SetSearchDistance sets the match radius in pixels along the reference
// axis.
func (ix *Index) SetSearchDistance(pixels float64) {
	origin := ix.point(0, 0, 0)
	ix.limit = origin.Distance(point{c: [3]float64{pixels * ix.weights[0]}, dims: ix.dims})
}

// SearchDistance returns the squared search distance in weighted units.
func (ix *Index) SearchDistance() float64 { return ix.limit }

// Find returns the match for (x, y, z) according to the current mode, or nil.
func (ix *Index) Find(x, y, z float64, assigned bool) *AssignedFoci {
	if ix.mode == Highest {
		return ix.FindHighest(x, y, z, assigned)
	}
	return ix.FindClosest(x, y, z, assigned)
}

// FindClosest returns the nearest record with the given flag within the
// search distance, or nil.
func (ix *Index) FindClosest(x, y, z float64, assigned bool) *AssignedFoci {
	return ix.search(x, y, z, assigned, false, ix.limit)
}

// FindExact returns a record at exactly (x, y, z) with the given flag, or
// nil. Which of several coincident records is returned is unspecified.
func (ix *Index) FindExact(x, y, z float64, assigned bool) *AssignedFoci {
	return ix.search(x, y, z, assigned, false, 0)
}

// FindHighest returns the record with the largest MaxValue among those
// with the given flag within the search distance, or nil. Ties go to the
// nearer record.
func (ix *Index) FindHighest(x, y, z float64, assigned bool) *AssignedFoci {
	return ix.search(x, y, z, assigned, true, ix.limit)
}

func (ix *Index) search(x, y, z float64, assigned, highest bool, limit float64) *AssignedFoci {
	if ix.tree == nil {
		return nil
	}
	k := newMatchKeeper(ix, assigned, highest, limit)
	ix.tree.NearestSet(k, ix.point(x, y, z))
	if k.best < 0 {
		return nil
	}
	return &ix.items[k.best]
}

// SetAssigned sets the flag on every record.
func (ix *Index) SetAssigned(assigned bool) {
	for i := range ix.items {
		ix.items[i].Assigned = assigned
	}
}

// ForEach calls fn for every record. The order is unspecified.
func (ix *Index) ForEach(fn func(*AssignedFoci)) {
	for i := range ix.items {
		fn(&ix.items[i])
	}
}
