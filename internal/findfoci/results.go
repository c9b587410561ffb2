package findfoci

import (
	"cmp"
	"math"
	"slices"
	"sort"
)

type regionSums struct {
	count          int
	intensity      float64
	maxOriginal    float32
	maxOriginalIdx int
	aboveCount     int
	aboveIntensity float64
}

// Results measures every surviving region of the final merge state, ranks
// the regions by SortIndex and keeps at most MaxPeaks of them. Heights and
// the above-saddle columns are measured on the search image; intensities on
// the original image.
func (p *Processor) Results(init *InitState, m *MergeState, params Params) (*ResultSet, error) {
	if init == nil || m == nil {
		return nil, stageError("results", "missing input state")
	}
	if m.Labels == nil {
		return nil, stageError("results", "merge state has no label map")
	}
	img, orig := init.Image(), init.Original()
	stats := init.Stats()
	bg := stats.Background

	levels := make([]float32, len(m.Regions))
	for _, r := range m.Regions[1:] {
		if !r.Alive {
			continue
		}
		levels[r.ID] = float32(bg)
		if hs, ok := r.Saddles.Highest(); ok {
			levels[r.ID] = hs.Value
		}
	}

	sums := make([]regionSums, len(m.Regions))
	for i, id := range m.Labels {
		if id == 0 {
			continue
		}
		s := &sums[id]
		v := orig.Data[i]
		if s.count == 0 || v > s.maxOriginal {
			s.maxOriginal, s.maxOriginalIdx = v, i
		}
		s.count++
		s.intensity += float64(v)
		if img.Data[i] > levels[id] {
			s.aboveCount++
			s.aboveIntensity += float64(v) - float64(levels[id])
		}
	}

	var (
		foci []FociRecord
		ids  []int32
	)
	for _, r := range m.Regions[1:] {
		if !r.Alive || sums[r.ID].count == 0 {
			continue
		}
		s := sums[r.ID]
		rec := FociRecord{
			MaxValue:                 float64(r.Value),
			Count:                    s.count,
			Intensity:                s.intensity,
			IntensityAboveBackground: s.intensity - bg*float64(s.count),
			Average:                  s.intensity / float64(s.count),
			CountAboveSaddle:         s.aboveCount,
			IntensityAboveSaddle:     s.aboveIntensity,
			IntensityMinusMin:        s.intensity - stats.ImageMinimum*float64(s.count),
		}
		rec.AverageAboveBackground = rec.Average - bg
		level := float64(levels[r.ID])
		if hs, ok := r.Saddles.Highest(); ok {
			rec.SaddleValue = float64(hs.Value)
			rec.SaddleNeighbourID = int(hs.ID)
		}
		rec.AbsoluteHeight = rec.MaxValue - level
		if span := rec.MaxValue - bg; span > 0 {
			rec.RelativeHeight = rec.AbsoluteHeight / span
		}
		rec.X, rec.Y, rec.Z = centroid(init, m.Labels, r, s, params)
		foci = append(foci, rec)
		ids = append(ids, r.ID)
	}

	order := make([]int, len(foci))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return lessFoci(params.SortIndex, &foci[order[a]], &foci[order[b]], ids[order[a]], ids[order[b]])
	})

	rs := &ResultSet{Background: bg, NegativeValues: stats.ImageMinimum < 0}
	n := len(order)
	if params.MaxPeaks > 0 && n > params.MaxPeaks {
		n = params.MaxPeaks
		rs.Truncated = true
	}
	resultID := make(map[int32]int, n)
	for k := 0; k < n; k++ {
		resultID[ids[order[k]]] = k + 1
	}
	rs.Foci = make(FociList, n)
	rs.RegionIDs = make([]int32, n)
	for k := 0; k < n; k++ {
		rec := foci[order[k]]
		rec.ID = k + 1
		rec.SaddleNeighbourID = resultID[int32(rec.SaddleNeighbourID)]
		rs.Foci[k] = rec
		rs.RegionIDs[k] = ids[order[k]]
	}
	diagf("results: %d foci (%d regions, sort %s, truncated %v)", n, len(foci), params.SortIndex, rs.Truncated)
	return rs, nil
}

// sortKey returns the value ranked in descending order for s.
func sortKey(s SortIndex, f *FociRecord) float64 {
	switch s {
	case SortIntensity:
		return f.Intensity
	case SortIntensityMinusBackground:
		return f.IntensityAboveBackground
	case SortCount:
		return float64(f.Count)
	case SortMaxValue:
		return f.MaxValue
	case SortAverageIntensity:
		return f.Average
	case SortAverageIntensityMinusBackground:
		return f.AverageAboveBackground
	case SortSaddleHeight:
		return f.SaddleValue
	case SortCountAboveSaddle:
		return float64(f.CountAboveSaddle)
	case SortIntensityAboveSaddle:
		return f.IntensityAboveSaddle
	case SortAbsoluteHeight:
		return f.AbsoluteHeight
	case SortRelativeHeight:
		return f.RelativeHeight
	case SortIntensityMinusMin:
		return f.IntensityMinusMin
	}
	return 0
}

func lessFoci(s SortIndex, a, b *FociRecord, ida, idb int32) bool {
	switch s {
	case SortNone:
		return ida < idb
	case SortXYZ:
		if c := cmp.Or(cmp.Compare(a.X, b.X), cmp.Compare(a.Y, b.Y), cmp.Compare(a.Z, b.Z)); c != 0 {
			return c < 0
		}
		return ida < idb
	}
	if ka, kb := sortKey(s, a), sortKey(s, b); ka != kb {
		return ka > kb
	}
	if a.MaxValue != b.MaxValue {
		return a.MaxValue > b.MaxValue
	}
	return ida < idb
}

// centroid returns the reported position of region r.
func centroid(init *InitState, labels []int32, r Region, s regionSums, params Params) (int, int, int) {
	img := init.Image()
	switch params.CentroidMethod {
	case CentroidMaxValueOriginal:
		return img.XYZ(s.maxOriginalIdx)
	case CentroidCentreOfMassSearch:
		return centreOfMass(init, labels, r, params.CentroidParameter, false)
	case CentroidCentreOfMassOriginal:
		return centreOfMass(init, labels, r, params.CentroidParameter, true)
	}
	return img.XYZ(r.Index)
}

// centreOfMass weights the region's pixels within radius of the peak by their
// height above background. It falls back to the peak when nothing is above
// background.
func centreOfMass(init *InitState, labels []int32, r Region, radius float64, original bool) (int, int, int) {
	img := init.Image()
	src := img
	if original {
		src = init.Original()
	}
	bg := init.Background()
	px, py, pz := img.XYZ(r.Index)
	rr := int(math.Ceil(radius))
	rz := 0
	if img.Is3D() {
		rz = rr
	}
	var sw, sx, sy, sz float64
	for z := max(0, pz-rz); z <= min(img.Depth-1, pz+rz); z++ {
		for y := max(0, py-rr); y <= min(img.Height-1, py+rr); y++ {
			for x := max(0, px-rr); x <= min(img.Width-1, px+rr); x++ {
				dx, dy, dz := float64(x-px), float64(y-py), float64(z-pz)
				if dx*dx+dy*dy+dz*dz > radius*radius {
					continue
				}
				i := img.Index(x, y, z)
				if labels[i] != r.ID {
					continue
				}
				wgt := float64(src.Data[i]) - bg
				if wgt <= 0 {
					continue
				}
				sw += wgt
				sx += wgt * float64(x)
				sy += wgt * float64(y)
				sz += wgt * float64(z)
			}
		}
	}
	if sw == 0 {
		return px, py, pz
	}
	return int(math.Round(sx / sw)), int(math.Round(sy / sw)), int(math.Round(sz / sw))
}

// MaskResults repeats the ranking of prelim and paints each ranked region
// into a label map according to MaskMethod. Pixels carry the focus id
// (1 = first ranked focus).
func (p *Processor) MaskResults(init *InitState, m *MergeState, prelim *ResultSet, params Params) (*MaskResult, error) {
	if init == nil || m == nil || prelim == nil {
		return nil, stageError("mask results", "missing input state")
	}
	if m.Labels == nil {
		return nil, stageError("mask results", "merge state has no label map")
	}
	img := init.Image()
	bg := init.Background()
	labels := &LabelMap{Width: img.Width, Height: img.Height, Depth: img.Depth, Data: make([]int32, img.Len())}

	focus := make(map[int32]int, len(prelim.RegionIDs))
	for k, id := range prelim.RegionIDs {
		focus[id] = k
	}
	cut := make([]float32, len(prelim.RegionIDs))
	for k, id := range prelim.RegionIDs {
		r := m.Regions[id]
		switch params.MaskMethod {
		case MaskPeaksAboveSaddle:
			cut[k] = float32(bg)
			if hs, ok := r.Saddles.Highest(); ok {
				cut[k] = hs.Value
			}
		case MaskFractionOfHeight:
			peak := float64(r.Value)
			cut[k] = float32(peak - params.FractionParameter*(peak-bg))
		default:
			cut[k] = float32(math.Inf(-1))
		}
	}
	if params.MaskMethod == MaskFractionOfIntensity {
		fractionCuts(img.Data, m.Labels, focus, cut, bg, params.FractionParameter)
	}

	strict := params.MaskMethod == MaskPeaksAboveSaddle
	painted := 0
	for i, id := range m.Labels {
		k, ok := focus[id]
		if id == 0 || !ok {
			continue
		}
		v := img.Data[i]
		if v < cut[k] || (strict && v == cut[k]) {
			continue
		}
		labels.Data[i] = int32(k + 1)
		painted++
	}
	diagf("mask results: %d pixels painted (%s)", painted, params.MaskMethod)
	return &MaskResult{Foci: slices.Clone(prelim.Foci), Labels: labels}, nil
}

// fractionCuts sets cut[k] to the lowest value such that the brightest
// pixels of focus k down to that value hold at least fraction of the
// region's intensity above background.
func fractionCuts(data []float32, labels []int32, focus map[int32]int, cut []float32, bg, fraction float64) {
	values := make([][]float32, len(cut))
	for i, id := range labels {
		if k, ok := focus[id]; ok && id != 0 {
			values[k] = append(values[k], data[i])
		}
	}
	for k, vs := range values {
		slices.SortFunc(vs, func(a, b float32) int { return cmp.Compare(b, a) })
		var total float64
		for _, v := range vs {
			total += max(0, float64(v)-bg)
		}
		target := fraction * total
		var acc float64
		for _, v := range vs {
			cut[k] = v
			acc += max(0, float64(v)-bg)
			if acc >= target {
				break
			}
		}
	}
}
