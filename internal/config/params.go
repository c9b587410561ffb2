package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/findfoci/internal/findfoci"
)

// DefaultConfigPath is the path to the canonical parameter defaults file.
const DefaultConfigPath = "config/findfoci.defaults.json"

// maxFileSize caps parameter files at 1MB.
const maxFileSize = 1 * 1024 * 1024

// ParamsConfig is the on-disk form of a findfoci.Params. Every field is
// optional; unset fields fall back to findfoci.DefaultParams through the
// Get* methods. Enum fields hold their text names, e.g. "auto_threshold".
type ParamsConfig struct {
	GaussianBlur *float64 `json:"gaussian_blur,omitempty" yaml:"gaussian_blur,omitempty"`

	// Background
	BackgroundMethod    *string  `json:"background_method,omitempty" yaml:"background_method,omitempty"`
	BackgroundParameter *float64 `json:"background_parameter,omitempty" yaml:"background_parameter,omitempty"`
	ThresholdMethod     *string  `json:"threshold_method,omitempty" yaml:"threshold_method,omitempty"`
	StatisticsMode      *string  `json:"statistics_mode,omitempty" yaml:"statistics_mode,omitempty"`

	// Search
	SearchMethod    *string  `json:"search_method,omitempty" yaml:"search_method,omitempty"`
	SearchParameter *float64 `json:"search_parameter,omitempty" yaml:"search_parameter,omitempty"`

	// Merge
	PeakMethod           *string  `json:"peak_method,omitempty" yaml:"peak_method,omitempty"`
	PeakParameter        *float64 `json:"peak_parameter,omitempty" yaml:"peak_parameter,omitempty"`
	MinSize              *int     `json:"min_size,omitempty" yaml:"min_size,omitempty"`
	MinimumAboveSaddle   *bool    `json:"minimum_above_saddle,omitempty" yaml:"minimum_above_saddle,omitempty"`
	ConnectedAboveSaddle *bool    `json:"connected_above_saddle,omitempty" yaml:"connected_above_saddle,omitempty"`
	RemoveEdgeMaxima     *bool    `json:"remove_edge_maxima,omitempty" yaml:"remove_edge_maxima,omitempty"`

	// Results
	SortIndex         *string  `json:"sort_index,omitempty" yaml:"sort_index,omitempty"`
	CentroidMethod    *string  `json:"centroid_method,omitempty" yaml:"centroid_method,omitempty"`
	CentroidParameter *float64 `json:"centroid_parameter,omitempty" yaml:"centroid_parameter,omitempty"`
	MaxPeaks          *int     `json:"max_peaks,omitempty" yaml:"max_peaks,omitempty"`

	// Output mask
	MaskMethod        *string  `json:"mask_method,omitempty" yaml:"mask_method,omitempty"`
	FractionParameter *float64 `json:"fraction_parameter,omitempty" yaml:"fraction_parameter,omitempty"`

	// Display
	ShowTable            *bool `json:"show_table,omitempty" yaml:"show_table,omitempty"`
	MarkMaxima           *bool `json:"mark_maxima,omitempty" yaml:"mark_maxima,omitempty"`
	ShowMaskMaximaAsDots *bool `json:"show_mask_maxima_as_dots,omitempty" yaml:"show_mask_maxima_as_dots,omitempty"`
	ShowLogMessages      *bool `json:"show_log_messages,omitempty" yaml:"show_log_messages,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// FromParams returns a fully populated ParamsConfig for p.
func FromParams(p findfoci.Params) *ParamsConfig {
	return &ParamsConfig{
		GaussianBlur:         ptrFloat64(p.GaussianBlur),
		BackgroundMethod:     ptrString(p.BackgroundMethod.String()),
		BackgroundParameter:  ptrFloat64(p.BackgroundParameter),
		ThresholdMethod:      ptrString(p.ThresholdMethod.String()),
		StatisticsMode:       ptrString(p.StatisticsMode.String()),
		SearchMethod:         ptrString(p.SearchMethod.String()),
		SearchParameter:      ptrFloat64(p.SearchParameter),
		PeakMethod:           ptrString(p.PeakMethod.String()),
		PeakParameter:        ptrFloat64(p.PeakParameter),
		MinSize:              ptrInt(p.MinSize),
		MinimumAboveSaddle:   ptrBool(p.MinimumAboveSaddle),
		ConnectedAboveSaddle: ptrBool(p.ConnectedAboveSaddle),
		RemoveEdgeMaxima:     ptrBool(p.RemoveEdgeMaxima),
		SortIndex:            ptrString(p.SortIndex.String()),
		CentroidMethod:       ptrString(p.CentroidMethod.String()),
		CentroidParameter:    ptrFloat64(p.CentroidParameter),
		MaxPeaks:             ptrInt(p.MaxPeaks),
		MaskMethod:           ptrString(p.MaskMethod.String()),
		FractionParameter:    ptrFloat64(p.FractionParameter),
		ShowTable:            ptrBool(p.ShowTable),
		MarkMaxima:           ptrBool(p.MarkMaxima),
		ShowMaskMaximaAsDots: ptrBool(p.ShowMaskMaximaAsDots),
		ShowLogMessages:      ptrBool(p.ShowLogMessages),
	}
}

// Load reads a ParamsConfig from a .json, .yaml or .yml file.
// Fields omitted from the file keep their defaults, so partial files are
// safe.
func Load(path string) (*ParamsConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &ParamsConfig{}
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", ext[1:], err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory
// or one of its parents. Panics if the file cannot be loaded, intended for
// test setup.
func MustLoadDefaultConfig() *ParamsConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := Load(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Save writes c as indented JSON or YAML depending on the extension of path.
func (c *ParamsConfig) Save(path string) error {
	var (
		data []byte
		err  error
	)
	switch filepath.Ext(path) {
	case ".json":
		data, err = json.MarshalIndent(c, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		return fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks that every set field converts to a valid parameter set.
func (c *ParamsConfig) Validate() error {
	p, err := c.params()
	if err != nil {
		return err
	}
	return p.Validate()
}

// Params converts c to a validated findfoci.Params.
func (c *ParamsConfig) Params() (findfoci.Params, error) {
	p, err := c.params()
	if err != nil {
		return findfoci.Params{}, err
	}
	if err := p.Validate(); err != nil {
		return findfoci.Params{}, err
	}
	return p, nil
}

func (c *ParamsConfig) params() (findfoci.Params, error) {
	d := findfoci.DefaultParams()
	p := findfoci.Params{
		GaussianBlur:         c.GetGaussianBlur(),
		BackgroundParameter:  c.GetBackgroundParameter(),
		SearchParameter:      c.GetSearchParameter(),
		PeakParameter:        c.GetPeakParameter(),
		MinSize:              c.GetMinSize(),
		MinimumAboveSaddle:   orBool(c.MinimumAboveSaddle, d.MinimumAboveSaddle),
		ConnectedAboveSaddle: orBool(c.ConnectedAboveSaddle, d.ConnectedAboveSaddle),
		RemoveEdgeMaxima:     orBool(c.RemoveEdgeMaxima, d.RemoveEdgeMaxima),
		CentroidParameter:    c.GetCentroidParameter(),
		MaxPeaks:             c.GetMaxPeaks(),
		FractionParameter:    c.GetFractionParameter(),
		ShowTable:            orBool(c.ShowTable, d.ShowTable),
		MarkMaxima:           orBool(c.MarkMaxima, d.MarkMaxima),
		ShowMaskMaximaAsDots: orBool(c.ShowMaskMaximaAsDots, d.ShowMaskMaximaAsDots),
		ShowLogMessages:      orBool(c.ShowLogMessages, d.ShowLogMessages),
	}

	enums := []struct {
		src *string
		dst interface{ UnmarshalText([]byte) error }
		def string
	}{
		{c.BackgroundMethod, &p.BackgroundMethod, d.BackgroundMethod.String()},
		{c.ThresholdMethod, &p.ThresholdMethod, d.ThresholdMethod.String()},
		{c.StatisticsMode, &p.StatisticsMode, d.StatisticsMode.String()},
		{c.SearchMethod, &p.SearchMethod, d.SearchMethod.String()},
		{c.PeakMethod, &p.PeakMethod, d.PeakMethod.String()},
		{c.SortIndex, &p.SortIndex, d.SortIndex.String()},
		{c.CentroidMethod, &p.CentroidMethod, d.CentroidMethod.String()},
		{c.MaskMethod, &p.MaskMethod, d.MaskMethod.String()},
	}
	for _, e := range enums {
		v := e.def
		if e.src != nil && *e.src != "" {
			v = *e.src
		}
		if err := e.dst.UnmarshalText([]byte(v)); err != nil {
			return findfoci.Params{}, fmt.Errorf("%w: %w", findfoci.ErrInvalidParams, err)
		}
	}
	return p, nil
}

func orBool(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func orFloat(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func orInt(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// GetGaussianBlur returns the gaussian_blur value or the default.
func (c *ParamsConfig) GetGaussianBlur() float64 {
	return orFloat(c.GaussianBlur, findfoci.DefaultParams().GaussianBlur)
}

// GetBackgroundParameter returns the background_parameter value or the default.
func (c *ParamsConfig) GetBackgroundParameter() float64 {
	return orFloat(c.BackgroundParameter, findfoci.DefaultParams().BackgroundParameter)
}

// GetSearchParameter returns the search_parameter value or the default.
func (c *ParamsConfig) GetSearchParameter() float64 {
	return orFloat(c.SearchParameter, findfoci.DefaultParams().SearchParameter)
}

// GetPeakParameter returns the peak_parameter value or the default.
func (c *ParamsConfig) GetPeakParameter() float64 {
	return orFloat(c.PeakParameter, findfoci.DefaultParams().PeakParameter)
}

// GetMinSize returns the min_size value or the default.
func (c *ParamsConfig) GetMinSize() int {
	return orInt(c.MinSize, findfoci.DefaultParams().MinSize)
}

// GetCentroidParameter returns the centroid_parameter value or the default.
func (c *ParamsConfig) GetCentroidParameter() float64 {
	return orFloat(c.CentroidParameter, findfoci.DefaultParams().CentroidParameter)
}

// GetMaxPeaks returns the max_peaks value or the default.
func (c *ParamsConfig) GetMaxPeaks() int {
	return orInt(c.MaxPeaks, findfoci.DefaultParams().MaxPeaks)
}

// GetFractionParameter returns the fraction_parameter value or the default.
func (c *ParamsConfig) GetFractionParameter() float64 {
	return orFloat(c.FractionParameter, findfoci.DefaultParams().FractionParameter)
}
