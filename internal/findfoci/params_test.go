package findfoci

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParams_Valid(t *testing.T) {
	t.Parallel()
	require.NoError(t, DefaultParams().Validate())
}

func TestParams_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		modify func(*Params)
	}{
		{"nan blur", func(p *Params) { p.GaussianBlur = math.NaN() }},
		{"inf background", func(p *Params) { p.BackgroundParameter = math.Inf(1) }},
		{"negative blur", func(p *Params) { p.GaussianBlur = -1 }},
		{"negative peak", func(p *Params) { p.PeakParameter = -0.1 }},
		{"negative min size", func(p *Params) { p.MinSize = -1 }},
		{"negative max peaks", func(p *Params) { p.MaxPeaks = -5 }},
		{"fraction over one", func(p *Params) {
			p.SearchMethod = SearchFractionOfPeakMinusBackground
			p.SearchParameter = 1.5
		}},
		{"mask fraction", func(p *Params) {
			p.MaskMethod = MaskFractionOfHeight
			p.FractionParameter = -0.5
		}},
		{"sort index range", func(p *Params) { p.SortIndex = SortIndex(99) }},
		{"background range", func(p *Params) { p.BackgroundMethod = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.modify(&p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidParams)
		})
	}

	// The search parameter is only range checked when it is a fraction.
	p := DefaultParams()
	p.SearchParameter = 4
	assert.NoError(t, p.Validate())
}

func TestEnums_TextRoundTrip(t *testing.T) {
	t.Parallel()
	p := DefaultParams()
	p.SearchMethod = SearchFractionOfPeakMinusBackground
	p.SortIndex = SortIntensityAboveSaddle
	p.MaskMethod = MaskFractionOfIntensity

	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"search_method":"fraction_of_peak_minus_background"`)
	assert.Contains(t, string(b), `"mask_method":"fraction_of_intensity"`)

	var got Params
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, p, got)
}

func TestEnums_ParseAliases(t *testing.T) {
	t.Parallel()
	var m SearchMethod
	require.NoError(t, m.UnmarshalText([]byte("Half-Peak-Value")))
	assert.Equal(t, SearchHalfPeakValue, m)

	var b BackgroundMethod
	require.NoError(t, b.UnmarshalText([]byte("std dev above mean")))
	assert.Equal(t, BackgroundStdDevAboveMean, b)

	var s SortIndex
	assert.Error(t, s.UnmarshalText([]byte("brightness")))
	assert.Equal(t, "unknown(42)", SortIndex(42).String())
}

func TestSortIndex_SensitiveToNegativeValues(t *testing.T) {
	t.Parallel()
	assert.True(t, SortIntensity.SensitiveToNegativeValues())
	assert.True(t, SortAverageIntensity.SensitiveToNegativeValues())
	assert.False(t, SortMaxValue.SensitiveToNegativeValues())
	assert.False(t, SortIntensityMinusBackground.SensitiveToNegativeValues())
}
