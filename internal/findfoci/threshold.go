package findfoci

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// HistogramBins is the number of bins used for auto-thresholding.
const HistogramBins = 256

// Histogram is a fixed-bin histogram over [Min, Max].
type Histogram struct {
	Min      float64
	Max      float64
	BinWidth float64
	Counts   []int
}

// NewHistogram bins values into the given number of equal-width bins
// spanning the value range.
func NewHistogram(values []float64, bins int) *Histogram {
	h := &Histogram{Counts: make([]int, bins)}
	if len(values) == 0 || bins <= 0 {
		return h
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	h.Min, h.Max = sorted[0], sorted[len(sorted)-1]
	if h.Min == h.Max {
		h.Counts[0] = len(sorted)
		return h
	}
	h.BinWidth = (h.Max - h.Min) / float64(bins)

	// The last divider is nudged up so Max falls in the final bin.
	dividers := floats.Span(make([]float64, bins+1), h.Min, h.Max)
	dividers[bins] = math.Nextafter(h.Max, math.Inf(1))
	for i, c := range stat.Histogram(nil, dividers, sorted, nil) {
		h.Counts[i] = int(c)
	}
	return h
}

// upper returns the upper edge of bin b.
func (h *Histogram) upper(b int) float64 {
	return h.Min + float64(b+1)*h.BinWidth
}

// centre returns the centre of bin b.
func (h *Histogram) centre(b int) float64 {
	return h.Min + (float64(b)+0.5)*h.BinWidth
}

// Threshold returns the level separating background (at or below) from
// foreground (above).
func (h *Histogram) Threshold(m ThresholdMethod) float64 {
	if h.BinWidth == 0 {
		return h.Min
	}
	switch m {
	case ThresholdMean:
		return h.mean()
	case ThresholdTriangle:
		return h.upper(h.triangle())
	default:
		return h.upper(h.otsu())
	}
}

func (h *Histogram) mean() float64 {
	var n, sum float64
	for b, c := range h.Counts {
		n += float64(c)
		sum += float64(c) * h.centre(b)
	}
	if n == 0 {
		return h.Min
	}
	return sum / n
}

// otsu maximises the between-class variance.
func (h *Histogram) otsu() int {
	var total, sumAll float64
	for b, c := range h.Counts {
		total += float64(c)
		sumAll += float64(b) * float64(c)
	}
	var w0, sum0, best float64
	bestBin := 0
	for b, c := range h.Counts {
		w0 += float64(c)
		if w0 == 0 {
			continue
		}
		w1 := total - w0
		if w1 == 0 {
			break
		}
		sum0 += float64(b) * float64(c)
		m0 := sum0 / w0
		m1 := (sumAll - sum0) / w1
		between := w0 * w1 * (m0 - m1) * (m0 - m1)
		if between > best {
			best = between
			bestBin = b
		}
	}
	return bestBin
}

// triangle draws a line from the histogram peak to the end of the longer
// tail and returns the bin farthest below it.
func (h *Histogram) triangle() int {
	peak, first, last := 0, -1, -1
	for b, c := range h.Counts {
		if c > h.Counts[peak] {
			peak = b
		}
		if c > 0 {
			if first < 0 {
				first = b
			}
			last = b
		}
	}
	end := last
	if peak-first > last-peak {
		end = first
	}
	if end == peak {
		return peak
	}
	px, py := float64(peak), float64(h.Counts[peak])
	ex, ey := float64(end), float64(h.Counts[end])
	best, bestBin := -1.0, peak
	step := 1
	if end < peak {
		step = -1
	}
	for b := peak; b != end; b += step {
		// Distance from (b, count) to the line, up to a constant factor.
		d := math.Abs((ey-py)*float64(b) - (ex-px)*float64(h.Counts[b]) + ex*py - ey*px)
		if d > best {
			best = d
			bestBin = b
		}
	}
	return bestBin
}
