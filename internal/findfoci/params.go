package findfoci

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidParams is wrapped by Params.Validate failures.
var ErrInvalidParams = errors.New("invalid parameters")

func enumString(names []string, v int) string {
	if v < 0 || v >= len(names) {
		return fmt.Sprintf("unknown(%d)", v)
	}
	return names[v]
}

func parseEnum(names []string, kind, s string) (int, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	for i, n := range names {
		if n == key {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q", kind, s)
}

// BackgroundMethod selects how the background level is computed by Init.
type BackgroundMethod int

const (
	// BackgroundAbsolute uses BackgroundParameter as the level.
	BackgroundAbsolute BackgroundMethod = iota
	// BackgroundMean uses the mean of the statistics region.
	BackgroundMean
	// BackgroundStdDevAboveMean uses mean + BackgroundParameter * stddev.
	BackgroundStdDevAboveMean
	// BackgroundAutoThreshold applies ThresholdMethod to the histogram.
	BackgroundAutoThreshold
	// BackgroundMinMaskOrROI uses the minimum value inside the mask.
	BackgroundMinMaskOrROI
	// BackgroundNone uses the image minimum.
	BackgroundNone
)

var backgroundMethodNames = []string{"absolute", "mean", "std_dev_above_mean", "auto_threshold", "min_mask_or_roi", "none"}

func (m BackgroundMethod) String() string { return enumString(backgroundMethodNames, int(m)) }

// MarshalText implements encoding.TextMarshaler.
func (m BackgroundMethod) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *BackgroundMethod) UnmarshalText(b []byte) error {
	v, err := parseEnum(backgroundMethodNames, "background method", string(b))
	*m = BackgroundMethod(v)
	return err
}

// ThresholdMethod is the histogram threshold used by BackgroundAutoThreshold.
type ThresholdMethod int

const (
	ThresholdOtsu ThresholdMethod = iota
	ThresholdMean
	ThresholdTriangle
)

var thresholdMethodNames = []string{"otsu", "mean", "triangle"}

func (m ThresholdMethod) String() string { return enumString(thresholdMethodNames, int(m)) }

// MarshalText implements encoding.TextMarshaler.
func (m ThresholdMethod) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *ThresholdMethod) UnmarshalText(b []byte) error {
	v, err := parseEnum(thresholdMethodNames, "threshold method", string(b))
	*m = ThresholdMethod(v)
	return err
}

// StatisticsMode selects which pixels feed the image statistics when a
// mask is present. Without a mask every pixel is used.
type StatisticsMode int

const (
	StatisticsBoth StatisticsMode = iota
	StatisticsInside
	StatisticsOutside
)

var statisticsModeNames = []string{"both", "inside", "outside"}

func (m StatisticsMode) String() string { return enumString(statisticsModeNames, int(m)) }

// MarshalText implements encoding.TextMarshaler.
func (m StatisticsMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *StatisticsMode) UnmarshalText(b []byte) error {
	v, err := parseEnum(statisticsModeNames, "statistics mode", string(b))
	*m = StatisticsMode(v)
	return err
}

// SearchMethod bounds how far a region grows down from its peak.
type SearchMethod int

const (
	// SearchAboveBackground grows each region down to the background.
	SearchAboveBackground SearchMethod = iota
	// SearchFractionOfPeakMinusBackground stops at bg + SearchParameter*(peak-bg).
	SearchFractionOfPeakMinusBackground
	// SearchHalfPeakValue stops at bg + 0.5*(peak-bg).
	SearchHalfPeakValue
)

var searchMethodNames = []string{"above_background", "fraction_of_peak_minus_background", "half_peak_value"}

func (m SearchMethod) String() string { return enumString(searchMethodNames, int(m)) }

// MarshalText implements encoding.TextMarshaler.
func (m SearchMethod) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *SearchMethod) UnmarshalText(b []byte) error {
	v, err := parseEnum(searchMethodNames, "search method", string(b))
	*m = SearchMethod(v)
	return err
}

// PeakMethod defines the minimum height of a peak above its highest saddle.
type PeakMethod int

const (
	// PeakAbsolute requires a height of PeakParameter.
	PeakAbsolute PeakMethod = iota
	// PeakRelative requires PeakParameter * peak.
	PeakRelative
	// PeakRelativeAboveBackground requires PeakParameter * (peak - bg).
	PeakRelativeAboveBackground
)

var peakMethodNames = []string{"absolute", "relative", "relative_above_background"}

func (m PeakMethod) String() string { return enumString(peakMethodNames, int(m)) }

// MarshalText implements encoding.TextMarshaler.
func (m PeakMethod) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *PeakMethod) UnmarshalText(b []byte) error {
	v, err := parseEnum(peakMethodNames, "peak method", string(b))
	*m = PeakMethod(v)
	return err
}

// SortIndex orders the final results.
type SortIndex int

const (
	SortIntensity SortIndex = iota
	SortIntensityMinusBackground
	SortCount
	SortMaxValue
	SortAverageIntensity
	SortAverageIntensityMinusBackground
	SortXYZ
	SortSaddleHeight
	SortCountAboveSaddle
	SortIntensityAboveSaddle
	SortAbsoluteHeight
	SortRelativeHeight
	SortIntensityMinusMin
	SortNone
)

var sortIndexNames = []string{
	"intensity", "intensity_minus_background", "count", "max_value",
	"average_intensity", "average_intensity_minus_background", "xyz",
	"saddle_height", "count_above_saddle", "intensity_above_saddle",
	"absolute_height", "relative_height", "intensity_minus_min", "none",
}

func (s SortIndex) String() string { return enumString(sortIndexNames, int(s)) }

// MarshalText implements encoding.TextMarshaler.
func (s SortIndex) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SortIndex) UnmarshalText(b []byte) error {
	v, err := parseEnum(sortIndexNames, "sort index", string(b))
	*s = SortIndex(v)
	return err
}

// SensitiveToNegativeValues reports whether the index sums raw intensities,
// which gives misleading orders when the image contains negative values.
func (s SortIndex) SensitiveToNegativeValues() bool {
	switch s {
	case SortIntensity, SortAverageIntensity, SortIntensityAboveSaddle:
		return true
	}
	return false
}

// CentroidMethod selects the reported position of each focus.
type CentroidMethod int

const (
	// CentroidMaxValueSearch reports the peak pixel of the search image.
	CentroidMaxValueSearch CentroidMethod = iota
	// CentroidMaxValueOriginal reports the brightest original pixel in the region.
	CentroidMaxValueOriginal
	// CentroidCentreOfMassSearch reports the centre of mass of the search image.
	CentroidCentreOfMassSearch
	// CentroidCentreOfMassOriginal reports the centre of mass of the original image.
	CentroidCentreOfMassOriginal
)

var centroidMethodNames = []string{"max_value_search", "max_value_original", "centre_of_mass_search", "centre_of_mass_original"}

func (m CentroidMethod) String() string { return enumString(centroidMethodNames, int(m)) }

// MarshalText implements encoding.TextMarshaler.
func (m CentroidMethod) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *CentroidMethod) UnmarshalText(b []byte) error {
	v, err := parseEnum(centroidMethodNames, "centroid method", string(b))
	*m = CentroidMethod(v)
	return err
}

// UsesParameter reports whether CentroidParameter affects the result.
func (m CentroidMethod) UsesParameter() bool {
	return m == CentroidCentreOfMassSearch || m == CentroidCentreOfMassOriginal
}

// MaskMethod selects which pixels of each region are painted in the label map.
type MaskMethod int

const (
	MaskNone MaskMethod = iota
	MaskPeaks
	MaskPeaksAboveSaddle
	// MaskFractionOfHeight paints pixels within FractionParameter of the
	// height above background, measured down from the peak.
	MaskFractionOfHeight
	// MaskFractionOfIntensity paints the brightest pixels that together hold
	// FractionParameter of the region intensity above background.
	MaskFractionOfIntensity
)

var maskMethodNames = []string{"none", "peaks", "peaks_above_saddle", "fraction_of_height", "fraction_of_intensity"}

func (m MaskMethod) String() string { return enumString(maskMethodNames, int(m)) }

// MarshalText implements encoding.TextMarshaler.
func (m MaskMethod) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MaskMethod) UnmarshalText(b []byte) error {
	v, err := parseEnum(maskMethodNames, "mask method", string(b))
	*m = MaskMethod(v)
	return err
}

// UsesParameter reports whether FractionParameter affects the mask.
func (m MaskMethod) UsesParameter() bool {
	return m == MaskFractionOfHeight || m == MaskFractionOfIntensity
}

// Params is the full parameter set of one run. It is a value type; two
// Params are compared field by field to decide which stages to re-run.
type Params struct {
	GaussianBlur float64 `json:"gaussian_blur"`

	BackgroundMethod    BackgroundMethod `json:"background_method"`
	BackgroundParameter float64          `json:"background_parameter"`
	ThresholdMethod     ThresholdMethod  `json:"threshold_method"`
	StatisticsMode      StatisticsMode   `json:"statistics_mode"`

	SearchMethod    SearchMethod `json:"search_method"`
	SearchParameter float64      `json:"search_parameter"`

	PeakMethod    PeakMethod `json:"peak_method"`
	PeakParameter float64    `json:"peak_parameter"`

	MinSize              int  `json:"min_size"`
	MinimumAboveSaddle   bool `json:"minimum_above_saddle"`
	ConnectedAboveSaddle bool `json:"connected_above_saddle"`
	RemoveEdgeMaxima     bool `json:"remove_edge_maxima"`

	SortIndex         SortIndex      `json:"sort_index"`
	CentroidMethod    CentroidMethod `json:"centroid_method"`
	CentroidParameter float64        `json:"centroid_parameter"`
	// MaxPeaks caps the number of results; zero means no cap.
	MaxPeaks int `json:"max_peaks"`

	MaskMethod        MaskMethod `json:"mask_method"`
	FractionParameter float64    `json:"fraction_parameter"`

	// Display-only options. They never change computed output.
	ShowTable            bool `json:"show_table"`
	MarkMaxima           bool `json:"mark_maxima"`
	ShowMaskMaximaAsDots bool `json:"show_mask_maxima_as_dots"`
	ShowLogMessages      bool `json:"show_log_messages"`
}

// DefaultParams returns the parameters used when nothing is configured.
func DefaultParams() Params {
	return Params{
		BackgroundMethod:     BackgroundAutoThreshold,
		BackgroundParameter:  3,
		ThresholdMethod:      ThresholdOtsu,
		StatisticsMode:       StatisticsBoth,
		SearchMethod:         SearchAboveBackground,
		SearchParameter:      0.3,
		PeakMethod:           PeakRelativeAboveBackground,
		PeakParameter:        0.5,
		MinSize:              5,
		MinimumAboveSaddle:   true,
		SortIndex:            SortIntensity,
		CentroidMethod:       CentroidMaxValueSearch,
		CentroidParameter:    2,
		MaxPeaks:             50,
		MaskMethod:           MaskPeaks,
		FractionParameter:    0.5,
		ShowTable:            true,
		MarkMaxima:           true,
		ShowMaskMaximaAsDots: false,
	}
}

// Validate rejects parameter sets that no stage can process.
func (p Params) Validate() error {
	finite := map[string]float64{
		"gaussian_blur":        p.GaussianBlur,
		"background_parameter": p.BackgroundParameter,
		"search_parameter":     p.SearchParameter,
		"peak_parameter":       p.PeakParameter,
		"centroid_parameter":   p.CentroidParameter,
		"fraction_parameter":   p.FractionParameter,
	}
	for name, v := range finite {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be finite, got %v: %w", name, v, ErrInvalidParams)
		}
	}
	if p.GaussianBlur < 0 {
		return fmt.Errorf("gaussian_blur must be non-negative, got %v: %w", p.GaussianBlur, ErrInvalidParams)
	}
	if p.PeakParameter < 0 {
		return fmt.Errorf("peak_parameter must be non-negative, got %v: %w", p.PeakParameter, ErrInvalidParams)
	}
	if p.MinSize < 0 {
		return fmt.Errorf("min_size must be non-negative, got %d: %w", p.MinSize, ErrInvalidParams)
	}
	if p.MaxPeaks < 0 {
		return fmt.Errorf("max_peaks must be non-negative, got %d: %w", p.MaxPeaks, ErrInvalidParams)
	}
	if p.CentroidParameter < 0 {
		return fmt.Errorf("centroid_parameter must be non-negative, got %v: %w", p.CentroidParameter, ErrInvalidParams)
	}
	if p.SearchMethod == SearchFractionOfPeakMinusBackground && (p.SearchParameter < 0 || p.SearchParameter > 1) {
		return fmt.Errorf("search_parameter must be between 0 and 1, got %v: %w", p.SearchParameter, ErrInvalidParams)
	}
	if p.MaskMethod.UsesParameter() && (p.FractionParameter < 0 || p.FractionParameter > 1) {
		return fmt.Errorf("fraction_parameter must be between 0 and 1, got %v: %w", p.FractionParameter, ErrInvalidParams)
	}

	enums := []struct {
		name string
		v, n int
	}{
		{"background_method", int(p.BackgroundMethod), len(backgroundMethodNames)},
		{"threshold_method", int(p.ThresholdMethod), len(thresholdMethodNames)},
		{"statistics_mode", int(p.StatisticsMode), len(statisticsModeNames)},
		{"search_method", int(p.SearchMethod), len(searchMethodNames)},
		{"peak_method", int(p.PeakMethod), len(peakMethodNames)},
		{"sort_index", int(p.SortIndex), len(sortIndexNames)},
		{"centroid_method", int(p.CentroidMethod), len(centroidMethodNames)},
		{"mask_method", int(p.MaskMethod), len(maskMethodNames)},
	}
	for _, e := range enums {
		if e.v < 0 || e.v >= e.n {
			return fmt.Errorf("%s out of range: %d: %w", e.name, e.v, ErrInvalidParams)
		}
	}
	return nil
}
