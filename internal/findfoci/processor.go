package findfoci

import (
	"fmt"

	"github.com/banshee-data/findfoci/internal/raster"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Processor runs the individual stages. It holds no state between calls;
// the zero value is ready to use.
type Processor struct{}

// NewProcessor returns a Processor.
func NewProcessor() *Processor { return &Processor{} }

func stageError(stage, format string, args ...interface{}) error {
	err := fmt.Errorf("%s: %s: %w", stage, fmt.Sprintf(format, args...), ErrStageFailed)
	opsf("%v", err)
	return err
}

// Blur returns the Gaussian-filtered image, or the input unchanged when
// sigma is zero or less.
func (p *Processor) Blur(img *raster.Stack, sigma float64) (*raster.Stack, error) {
	if img == nil || img.Len() == 0 {
		return nil, stageError("blur", "empty image")
	}
	if sigma <= 0 {
		return img, nil
	}
	out := raster.Gaussian(img, sigma)
	diagf("blur: sigma=%.3g size=%dx%dx%d", sigma, img.Width, img.Height, img.Depth)
	return out, nil
}

// Init computes the image statistics and background level and allocates the
// per-pixel scratch arrays. blurred may be nil or the original itself when
// no blur was applied; mask may be nil.
func (p *Processor) Init(original, blurred *raster.Stack, mask *raster.Mask, params Params) (*InitState, error) {
	if original == nil || original.Len() == 0 {
		return nil, stageError("init", "empty image")
	}
	img := blurred
	if img == nil {
		img = original
	}
	if !img.SameSize(original) {
		return nil, stageError("init", "blurred image %dx%dx%d does not match original %dx%dx%d",
			img.Width, img.Height, img.Depth, original.Width, original.Height, original.Depth)
	}
	if mask != nil {
		if !mask.Compatible(original) {
			return nil, stageError("init", "mask %dx%dx%d is not compatible with image %dx%dx%d",
				mask.Width, mask.Height, mask.Depth, original.Width, original.Height, original.Depth)
		}
		if mask.Count() == 0 {
			return nil, stageError("init", "mask is empty")
		}
	}

	n := img.Len()
	types := make([]uint8, n)
	inside := make([]float64, 0, n)
	outside := make([]float64, 0)
	all := make([]float64, n)
	for i, v := range img.Data {
		fv := float64(v)
		all[i] = fv
		if mask != nil {
			x, y, z := img.XYZ(i)
			if !mask.Inside(x, y, z) {
				types[i] |= typeExcluded
				outside = append(outside, fv)
				continue
			}
		}
		inside = append(inside, fv)
	}

	var region []float64
	switch {
	case mask == nil || params.StatisticsMode == StatisticsBoth:
		region = all
	case params.StatisticsMode == StatisticsInside:
		region = inside
	default:
		region = outside
	}
	if len(region) == 0 {
		return nil, stageError("init", "statistics region %s is empty", params.StatisticsMode)
	}

	stats := Statistics{
		Count:        len(region),
		Minimum:      floats.Min(region),
		Maximum:      floats.Max(region),
		ImageMinimum: floats.Min(all),
	}
	if len(region) > 1 {
		stats.Mean, stats.StdDev = stat.MeanStdDev(region, nil)
	} else {
		stats.Mean = region[0]
	}
	hist := NewHistogram(region, HistogramBins)

	switch params.BackgroundMethod {
	case BackgroundAbsolute:
		stats.Background = params.BackgroundParameter
	case BackgroundMean:
		stats.Background = stats.Mean
	case BackgroundStdDevAboveMean:
		stats.Background = stats.Mean + params.BackgroundParameter*stats.StdDev
	case BackgroundAutoThreshold:
		stats.Background = hist.Threshold(params.ThresholdMethod)
	case BackgroundMinMaskOrROI:
		if mask != nil {
			stats.Background = floats.Min(inside)
		} else {
			stats.Background = stats.Minimum
		}
	case BackgroundNone:
		stats.Background = stats.ImageMinimum
	default:
		return nil, stageError("init", "unsupported background method %d", params.BackgroundMethod)
	}

	diagf("init: background=%.4g (%s) mean=%.4g sd=%.4g min=%.4g max=%.4g n=%d",
		stats.Background, params.BackgroundMethod, stats.Mean, stats.StdDev, stats.Minimum, stats.Maximum, stats.Count)

	return &InitState{
		shared: &initShared{
			original:   original,
			image:      img,
			neighbours: neighbourTable(img.Is3D()),
			stats:      stats,
			histogram:  hist,
		},
		types:  types,
		maxima: make([]int32, n),
	}, nil
}

// neighbourTable returns the 8-connected (2D) or 26-connected (3D) offsets.
func neighbourTable(is3D bool) []neighbour {
	zr := 0
	if is3D {
		zr = 1
	}
	var out []neighbour
	for dz := -zr; dz <= zr; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				out = append(out, neighbour{dx, dy, dz})
			}
		}
	}
	return out
}
