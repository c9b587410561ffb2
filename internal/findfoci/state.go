package findfoci

import (
	"errors"

	"github.com/banshee-data/findfoci/internal/raster"
	"github.com/banshee-data/findfoci/internal/saddle"
)

// ErrStageFailed is wrapped by every stage error.
var ErrStageFailed = errors.New("stage failed")

// Per-pixel type flags held in InitState.types.
const (
	typeExcluded uint8 = 1 << iota
	typeMaximum
	typeListed
)

// Statistics describes the search image over the statistics region.
type Statistics struct {
	Count        int     `json:"count"`
	Minimum      float64 `json:"minimum"`
	Maximum      float64 `json:"maximum"`
	Mean         float64 `json:"mean"`
	StdDev       float64 `json:"std_dev"`
	ImageMinimum float64 `json:"image_minimum"`
	Background   float64 `json:"background"`
}

type neighbour struct {
	dx, dy, dz int
}

// initShared is the part of an InitState that no stage mutates.
type initShared struct {
	original   *raster.Stack
	image      *raster.Stack
	neighbours []neighbour
	stats      Statistics
	histogram  *Histogram
}

// InitState is the output of Init. The shared part (images, statistics,
// neighbour table) is immutable; the types and maxima arrays are scratch
// space that Search and MergeFinal write to, which is why those stages
// only accept a *WorkState.
type InitState struct {
	shared *initShared
	types  []uint8
	maxima []int32
}

// WorkState is an InitState owned by a single destructive stage.
type WorkState struct {
	InitState
}

// View returns the read-only view of w for the non-destructive stages.
func (w *WorkState) View() *InitState { return &w.InitState }

// CopyForStagedProcessing returns a WorkState holding a private copy of the
// mutable arrays of s; the immutable part is shared. The arrays of reuse are
// recycled when their size matches, so reuse must not be referenced by
// anything that is still needed.
func (s *InitState) CopyForStagedProcessing(reuse *WorkState) *WorkState {
	w := reuse
	if w == nil || len(w.types) != len(s.types) || len(w.maxima) != len(s.maxima) {
		w = &WorkState{InitState{
			types:  make([]uint8, len(s.types)),
			maxima: make([]int32, len(s.maxima)),
		}}
	}
	w.shared = s.shared
	copy(w.types, s.types)
	copy(w.maxima, s.maxima)
	return w
}

// Stats returns the image statistics.
func (s *InitState) Stats() Statistics { return s.shared.stats }

// Background returns the background level.
func (s *InitState) Background() float64 { return s.shared.stats.Background }

// Image returns the search image (blurred if a blur was applied).
func (s *InitState) Image() *raster.Stack { return s.shared.image }

// Original returns the unblurred image.
func (s *InitState) Original() *raster.Stack { return s.shared.original }

// Histogram returns the histogram of the statistics region.
func (s *InitState) Histogram() *Histogram { return s.shared.histogram }

// Excluded reports whether pixel i lies outside the mask.
func (s *InitState) Excluded(i int) bool { return s.types[i]&typeExcluded != 0 }

// Label returns the region id currently held for pixel i.
func (s *InitState) Label(i int) int32 { return s.maxima[i] }

// forEachNeighbour calls fn with the flat index of every in-bounds
// neighbour of pixel i.
func (s *InitState) forEachNeighbour(i int, fn func(j int)) {
	img := s.shared.image
	x, y, z := img.XYZ(i)
	for _, n := range s.shared.neighbours {
		xx, yy, zz := x+n.dx, y+n.dy, z+n.dz
		if xx < 0 || yy < 0 || zz < 0 || xx >= img.Width || yy >= img.Height || zz >= img.Depth {
			continue
		}
		fn(img.Index(xx, yy, zz))
	}
}

// Maximum is a candidate peak found by Search.
type Maximum struct {
	ID    int32
	Index int
	X     int
	Y     int
	Z     int
	Value float32
	Count int
}

// SearchState is the output of Search: candidate maxima ordered by value
// (ID 1 is the highest) and the saddles between touching regions. Saddles
// is indexed by ID; entry 0 is unused.
type SearchState struct {
	Maxima     []Maximum
	Saddles    []*saddle.List
	Background float64
}

// Maximum returns the candidate with the given id.
func (s *SearchState) Maximum(id int32) Maximum { return s.Maxima[id-1] }

// Region is a merge-stage region. Survivors keep the id of their highest
// original maximum.
type Region struct {
	ID      int32
	Index   int
	Value   float32
	Count   int
	Saddles *saddle.List
	Alive   bool
}

// MergeState is the output of the merge stages. Owner maps every search id
// to the id that absorbed it (itself while alive, 0 once removed).
type MergeState struct {
	Regions []Region
	Owner   []int32
	// Labels is the painted region map; set by MergeFinal only.
	Labels []int32
}

// Resolve follows the owner chain of id to its surviving region, or 0.
func (m *MergeState) Resolve(id int32) int32 {
	for id != 0 && m.Owner[id] != id {
		id = m.Owner[id]
	}
	return id
}

// Alive returns the surviving regions in id order.
func (m *MergeState) Alive() []Region {
	var out []Region
	for _, r := range m.Regions[1:] {
		if r.Alive {
			out = append(out, r)
		}
	}
	return out
}

// clone deep-copies the merge state, including saddle lists.
func (m *MergeState) clone() *MergeState {
	c := &MergeState{
		Regions: make([]Region, len(m.Regions)),
		Owner:   make([]int32, len(m.Owner)),
		Labels:  m.Labels,
	}
	copy(c.Owner, m.Owner)
	for i, r := range m.Regions {
		c.Regions[i] = r
		if r.Saddles != nil {
			c.Regions[i].Saddles = r.Saddles.Copy()
		}
	}
	return c
}

// FociRecord is one detected focus.
type FociRecord struct {
	ID                       int     `json:"id"`
	X                        int     `json:"x"`
	Y                        int     `json:"y"`
	Z                        int     `json:"z"`
	MaxValue                 float64 `json:"max_value"`
	Count                    int     `json:"count"`
	Intensity                float64 `json:"intensity"`
	IntensityAboveBackground float64 `json:"intensity_above_background"`
	Average                  float64 `json:"average"`
	AverageAboveBackground   float64 `json:"average_above_background"`
	SaddleValue              float64 `json:"saddle_value"`
	SaddleNeighbourID        int     `json:"saddle_neighbour_id"`
	CountAboveSaddle         int     `json:"count_above_saddle"`
	IntensityAboveSaddle     float64 `json:"intensity_above_saddle"`
	AbsoluteHeight           float64 `json:"absolute_height"`
	RelativeHeight           float64 `json:"relative_height"`
	IntensityMinusMin        float64 `json:"intensity_minus_min"`
}

// FociList is a ranked list of foci.
type FociList []FociRecord

// ResultSet is the output of Results.
type ResultSet struct {
	Foci FociList
	// RegionIDs[i] is the merge region behind Foci[i].
	RegionIDs []int32
	// Background is the level used for the above-background columns.
	Background float64
	// NegativeValues is set when the image minimum is below zero.
	NegativeValues bool
	// Truncated is set when MaxPeaks dropped regions.
	Truncated bool
}

// LabelMap paints each pixel with the id of the focus that owns it (0 for
// none).
type LabelMap struct {
	Width  int
	Height int
	Depth  int
	Data   []int32
}

// At returns the label at (x, y, z).
func (l *LabelMap) At(x, y, z int) int32 {
	return l.Data[(z*l.Height+y)*l.Width+x]
}

// MaskResult is the output of MaskResults.
type MaskResult struct {
	Foci   FociList
	Labels *LabelMap
}
