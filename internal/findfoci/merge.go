package findfoci

import (
	"github.com/banshee-data/findfoci/internal/raster"
	"github.com/banshee-data/findfoci/internal/saddle"
)

// newMergeState builds the initial merge state from the search output. The
// saddle lists are copied so the search state is left untouched.
func newMergeState(s *SearchState) *MergeState {
	n := len(s.Maxima)
	m := &MergeState{
		Regions: make([]Region, n+1),
		Owner:   make([]int32, n+1),
	}
	for _, mx := range s.Maxima {
		var l *saddle.List
		if src := s.Saddles[mx.ID]; src != nil {
			l = src.Copy()
		} else {
			l = saddle.NewList(0)
		}
		m.Regions[mx.ID] = Region{
			ID:      mx.ID,
			Index:   mx.Index,
			Value:   mx.Value,
			Count:   mx.Count,
			Saddles: l,
			Alive:   true,
		}
		m.Owner[mx.ID] = mx.ID
	}
	return m
}

// join folds region b into region a or the other way round; the region with
// the higher peak (the lower id) survives. It returns the survivor.
func (m *MergeState) join(a, b int32) int32 {
	survivor, loser := a, b
	if b < a {
		survivor, loser = b, a
	}
	sr, lr := &m.Regions[survivor], &m.Regions[loser]
	sr.Count += lr.Count

	neighbours := make([]int32, 0, lr.Saddles.Len())
	for _, s := range lr.Saddles.Items() {
		if s.ID != survivor {
			neighbours = append(neighbours, s.ID)
		}
	}

	sr.Saddles.AddAll(lr.Saddles)
	sr.Saddles.RemoveIf(func(s saddle.Saddle) bool { return s.ID == survivor || s.ID == loser })
	sr.Saddles.Sort()
	sr.Saddles.RemoveDuplicates()

	for _, n := range neighbours {
		nl := m.Regions[n].Saddles
		items := nl.Items()
		for i := range items {
			if items[i].ID == loser {
				items[i].ID = survivor
			}
		}
		nl.Sort()
		nl.RemoveDuplicates()
	}

	lr.Saddles.Clear(0)
	lr.Alive = false
	m.Owner[loser] = survivor
	tracef("join: %d -> %d (count %d)", loser, survivor, sr.Count)
	return survivor
}

// remove drops region id and every saddle that refers to it.
func (m *MergeState) remove(id int32) {
	r := &m.Regions[id]
	for _, s := range r.Saddles.Items() {
		m.Regions[s.ID].Saddles.RemoveIf(func(o saddle.Saddle) bool { return o.ID == id })
	}
	r.Saddles.Clear(0)
	r.Alive = false
	m.Owner[id] = 0
	tracef("remove: %d", id)
}

// heightThreshold is the minimum peak-to-saddle height a region needs to stay
// separate from its neighbour.
func heightThreshold(params Params, bg float64, peak float32) float64 {
	switch params.PeakMethod {
	case PeakAbsolute:
		return params.PeakParameter
	case PeakRelative:
		return params.PeakParameter * float64(peak)
	default:
		return params.PeakParameter * (float64(peak) - bg)
	}
}

// MergeByHeight merges every region whose peak is less than the configured
// height above its highest saddle into the neighbour across that saddle.
// Regions are visited from the lowest peak up. Neither input is modified.
func (p *Processor) MergeByHeight(init *InitState, s *SearchState, params Params) (*MergeState, error) {
	if init == nil || s == nil {
		return nil, stageError("merge height", "missing input state")
	}
	m := newMergeState(s)
	bg := init.Background()
	merged := 0
	for id := int32(len(s.Maxima)); id >= 1; id-- {
		for m.Regions[id].Alive {
			r := &m.Regions[id]
			hs, ok := r.Saddles.Highest()
			if !ok {
				break
			}
			if float64(r.Value-hs.Value) >= heightThreshold(params, bg, r.Value) {
				break
			}
			merged++
			if m.join(id, hs.ID) != id {
				break
			}
		}
	}
	diagf("merge height: %d merged, %d remain (%s %.3g)", merged, len(m.Alive()), params.PeakMethod, params.PeakParameter)
	return m, nil
}

// MergeBySize merges regions smaller than MinSize into their highest-saddle
// neighbour. A small region with no neighbour is removed. The input is not
// modified.
func (p *Processor) MergeBySize(init *InitState, in *MergeState, params Params) (*MergeState, error) {
	if init == nil || in == nil {
		return nil, stageError("merge size", "missing input state")
	}
	m := in.clone()
	merged, removed := 0, 0
	for id := int32(len(m.Regions) - 1); id >= 1; id-- {
		for m.Regions[id].Alive && m.Regions[id].Count < params.MinSize {
			hs, ok := m.Regions[id].Saddles.Highest()
			if !ok {
				m.remove(id)
				removed++
				break
			}
			merged++
			if m.join(id, hs.ID) != id {
				break
			}
		}
	}
	diagf("merge size: %d merged, %d removed, %d remain (min size %d)", merged, removed, len(m.Alive()), params.MinSize)
	return m, nil
}

// MergeFinal paints the merged regions into w and applies the
// minimum-above-saddle and edge rules, leaving the final label map in the
// returned state. w must hold the labels written by Search and is modified.
func (p *Processor) MergeFinal(w *WorkState, in *MergeState, params Params) (*MergeState, error) {
	if w == nil || w.shared == nil || in == nil {
		return nil, stageError("merge final", "missing input state")
	}
	m := in.clone()
	img := w.shared.image

	pixels := make([][]int, len(m.Regions))
	for i, id := range w.maxima {
		if id == 0 {
			continue
		}
		id = m.Resolve(id)
		w.maxima[i] = id
		if id != 0 {
			pixels[id] = append(pixels[id], i)
		}
	}

	relabel := func(from, to int32) {
		for _, i := range pixels[from] {
			w.maxima[i] = to
		}
		pixels[to] = append(pixels[to], pixels[from]...)
		pixels[from] = nil
	}

	merged := 0
	if params.MinimumAboveSaddle {
		for id := int32(len(m.Regions) - 1); id >= 1; id-- {
			for m.Regions[id].Alive {
				hs, ok := m.Regions[id].Saddles.Highest()
				if !ok {
					break
				}
				var above int
				if params.ConnectedAboveSaddle {
					above = w.countConnectedAbove(m.Regions[id].Index, id, hs.Value)
				} else {
					for _, i := range pixels[id] {
						if img.Data[i] > hs.Value {
							above++
						}
					}
				}
				if above >= params.MinSize {
					break
				}
				merged++
				survivor := m.join(id, hs.ID)
				loser := id
				if survivor == id {
					loser = hs.ID
				}
				relabel(loser, survivor)
				if survivor != id {
					break
				}
			}
		}
	}

	removed := 0
	if params.RemoveEdgeMaxima {
		for id := int32(1); id < int32(len(m.Regions)); id++ {
			r := m.Regions[id]
			if !r.Alive || !w.onEdge(img, r.Index) {
				continue
			}
			m.remove(id)
			for _, i := range pixels[id] {
				w.maxima[i] = 0
			}
			pixels[id] = nil
			removed++
		}
	}

	for id := range m.Regions {
		if m.Regions[id].Alive {
			m.Regions[id].Count = len(pixels[id])
		}
	}
	m.Labels = w.maxima
	diagf("merge final: %d merged above saddle, %d edge maxima removed, %d remain", merged, removed, len(m.Alive()))
	return m, nil
}

// countConnectedAbove counts the pixels of region id that are above level
// and connected to start through such pixels.
func (w *WorkState) countConnectedAbove(start int, id int32, level float32) int {
	img := w.shared.image
	if img.Data[start] <= level {
		return 0
	}
	var visited []int
	stack := []int{start}
	w.types[start] |= typeListed
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visited = append(visited, i)
		w.forEachNeighbour(i, func(j int) {
			if w.types[j]&typeListed != 0 || w.maxima[j] != id || img.Data[j] <= level {
				return
			}
			w.types[j] |= typeListed
			stack = append(stack, j)
		})
	}
	for _, i := range visited {
		w.types[i] &^= typeListed
	}
	return len(visited)
}

// onEdge reports whether pixel i touches the XY border of the image or a
// pixel outside the mask.
func (w *WorkState) onEdge(img *raster.Stack, i int) bool {
	x, y, _ := img.XYZ(i)
	if x == 0 || y == 0 || x == img.Width-1 || y == img.Height-1 {
		return true
	}
	edge := false
	w.forEachNeighbour(i, func(j int) {
		if w.types[j]&typeExcluded != 0 {
			edge = true
		}
	})
	return edge
}
