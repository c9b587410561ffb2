package findfoci

import (
	"container/heap"
	"slices"

	"github.com/banshee-data/findfoci/internal/saddle"
)

// Search finds the candidate maxima of w and grows a region around each of
// them. It writes the region labels and maximum flags into w, so w must be a
// private copy obtained from CopyForStagedProcessing.
func (p *Processor) Search(w *WorkState, params Params) (*SearchState, error) {
	if w == nil || w.shared == nil {
		return nil, stageError("search", "no init state")
	}
	img := w.shared.image
	bg := w.shared.stats.Background
	for i := range w.maxima {
		w.maxima[i] = 0
		w.types[i] &^= typeMaximum | typeListed
	}

	maxima := w.findMaxima(bg)
	slices.SortFunc(maxima, func(a, b Maximum) int {
		switch {
		case a.Value > b.Value:
			return -1
		case a.Value < b.Value:
			return 1
		}
		return a.Index - b.Index
	})

	thresholds := make([]float64, len(maxima)+1)
	for k := range maxima {
		m := &maxima[k]
		m.ID = int32(k + 1)
		m.X, m.Y, m.Z = img.XYZ(m.Index)
		w.types[m.Index] |= typeMaximum
		thresholds[m.ID] = searchThreshold(params, bg, float64(m.Value))
	}

	contacts := w.grow(maxima, thresholds, bg)

	counts := make([]int, len(maxima)+1)
	for _, id := range w.maxima {
		if id != 0 {
			counts[id]++
		}
	}
	saddles := make([]*saddle.List, len(maxima)+1)
	for k := range maxima {
		id := maxima[k].ID
		maxima[k].Count = counts[id]
		l := saddle.NewList(len(contacts[id]))
		for other, v := range contacts[id] {
			l.Add(saddle.Saddle{ID: other, Value: v})
		}
		l.Sort()
		saddles[id] = l
	}

	diagf("search: %d maxima above background %.4g (%s)", len(maxima), bg, params.SearchMethod)
	return &SearchState{Maxima: maxima, Saddles: saddles, Background: bg}, nil
}

func searchThreshold(params Params, bg, peak float64) float64 {
	switch params.SearchMethod {
	case SearchFractionOfPeakMinusBackground:
		return bg + params.SearchParameter*(peak-bg)
	case SearchHalfPeakValue:
		return bg + 0.5*(peak-bg)
	default:
		return bg
	}
}

// findMaxima returns one Maximum per local-maximum plateau above bg. A
// plateau is a connected set of equal-valued pixels; it qualifies when no
// pixel next to it is higher. Its representative is the member nearest the
// plateau centroid.
func (w *WorkState) findMaxima(bg float64) []Maximum {
	img := w.shared.image
	visited := make([]bool, img.Len())
	var (
		out     []Maximum
		plateau []int
		queue   []int
	)
	for i, v := range img.Data {
		if visited[i] || w.types[i]&typeExcluded != 0 || float64(v) <= bg {
			continue
		}
		plateau = plateau[:0]
		queue = append(queue[:0], i)
		visited[i] = true
		peak := true
		for len(queue) > 0 {
			j := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			plateau = append(plateau, j)
			w.forEachNeighbour(j, func(k int) {
				if w.types[k]&typeExcluded != 0 {
					return
				}
				switch vk := img.Data[k]; {
				case vk > v:
					peak = false
				case vk == v && !visited[k]:
					visited[k] = true
					queue = append(queue, k)
				}
			})
		}
		if !peak {
			continue
		}
		out = append(out, Maximum{Index: plateauCentre(w, plateau), Value: v})
	}
	return out
}

func plateauCentre(w *WorkState, plateau []int) int {
	if len(plateau) == 1 {
		return plateau[0]
	}
	img := w.shared.image
	slices.Sort(plateau)
	var cx, cy, cz float64
	for _, i := range plateau {
		x, y, z := img.XYZ(i)
		cx += float64(x)
		cy += float64(y)
		cz += float64(z)
	}
	n := float64(len(plateau))
	cx, cy, cz = cx/n, cy/n, cz/n
	best, bestD := plateau[0], -1.0
	for _, i := range plateau {
		x, y, z := img.XYZ(i)
		dx, dy, dz := float64(x)-cx, float64(y)-cy, float64(z)-cz
		if d := dx*dx + dy*dy + dz*dz; bestD < 0 || d < bestD {
			best, bestD = i, d
		}
	}
	return best
}

// grow floods outward from every maximum in descending intensity order. A
// pixel is claimed by the first region to reach it if it is above the
// background and at or above that region's threshold. Where two regions
// touch, the lower of the two pixel values is recorded as their saddle; only
// the highest saddle per pair is kept.
func (w *WorkState) grow(maxima []Maximum, thresholds []float64, bg float64) []map[int32]float32 {
	img := w.shared.image
	contacts := make([]map[int32]float32, len(maxima)+1)
	q := &floodQueue{}
	for _, m := range maxima {
		w.maxima[m.Index] = m.ID
		q.push(m.Index, m.Value)
	}
	touch := func(a, b int32, v float32) {
		if contacts[a] == nil {
			contacts[a] = make(map[int32]float32)
		}
		if old, ok := contacts[a][b]; !ok || v > old {
			contacts[a][b] = v
		}
	}
	for q.Len() > 0 {
		it := heap.Pop(q).(floodItem)
		id := w.maxima[it.index]
		w.forEachNeighbour(it.index, func(j int) {
			if w.types[j]&typeExcluded != 0 {
				return
			}
			vj := img.Data[j]
			switch other := w.maxima[j]; {
			case other == 0:
				if float64(vj) > bg && float64(vj) >= thresholds[id] {
					w.maxima[j] = id
					q.push(j, vj)
				}
			case other != id:
				v := min(it.value, vj)
				touch(id, other, v)
				touch(other, id, v)
			}
		})
	}
	tracef("grow: flooded %d seeds", len(maxima))
	return contacts
}

type floodItem struct {
	index int
	value float32
	seq   int
}

// floodQueue pops the highest value first, then the earliest pushed.
type floodQueue struct {
	items []floodItem
	seq   int
}

func (q *floodQueue) push(index int, value float32) {
	heap.Push(q, floodItem{index: index, value: value, seq: q.seq})
	q.seq++
}

func (q *floodQueue) Len() int { return len(q.items) }

func (q *floodQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.value != b.value {
		return a.value > b.value
	}
	return a.seq < b.seq
}

func (q *floodQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *floodQueue) Push(x any) { q.items = append(q.items, x.(floodItem)) }

func (q *floodQueue) Pop() any {
	n := len(q.items)
	it := q.items[n-1]
	q.items = q.items[:n-1]
	return it
}
