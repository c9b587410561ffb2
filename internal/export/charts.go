package export

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/findfoci/internal/findfoci"
)

// ErrNoFoci is returned by the chart writers for an empty list.
var ErrNoFoci = errors.New("no foci to plot")

// DefaultBins is the histogram bin count used when bins is not positive.
const DefaultBins = 20

// SaveHistogramPNG writes a histogram of the foci max values to path. The
// image format follows the file extension.
func SaveHistogramPNG(path string, foci findfoci.FociList, bins int) error {
	if len(foci) == 0 {
		return ErrNoFoci
	}
	if bins <= 0 {
		bins = DefaultBins
	}
	values := make(plotter.Values, len(foci))
	for i, f := range foci {
		values[i] = f.MaxValue
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Foci max value (n=%d)", len(foci))
	p.X.Label.Text = "Max value"
	p.Y.Label.Text = "Foci"

	h, err := plotter.NewHist(values, bins)
	if err != nil {
		return fmt.Errorf("failed to build histogram: %w", err)
	}
	h.LineStyle.Width = vg.Points(1)
	p.Add(h)

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save histogram %s: %w", path, err)
	}
	return nil
}

// WriteScatterHTML renders the XY positions of the foci as a standalone
// HTML page. Points are coloured by max value and sized by pixel count.
func WriteScatterHTML(w io.Writer, title string, foci findfoci.FociList) error {
	if len(foci) == 0 {
		return ErrNoFoci
	}
	data := make([]opts.ScatterData, 0, len(foci))
	minValue, maxValue := foci[0].MaxValue, foci[0].MaxValue
	maxX, maxY := 0, 0
	for _, f := range foci {
		minValue, maxValue = min(minValue, f.MaxValue), max(maxValue, f.MaxValue)
		maxX, maxY = max(maxX, f.X), max(maxY, f.Y)
		data = append(data, opts.ScatterData{
			Name:  fmt.Sprintf("focus %d", f.ID),
			Value: []interface{}{f.X, f.Y, f.MaxValue, f.Count},
		})
	}
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("foci=%d", len(foci))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: maxX + 1, Name: "X (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: maxY + 1, Name: "Y (px)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(minValue),
			Max:        float32(maxValue),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#3e4989", "#26828e", "#35b779", "#fde725"}},
		}),
	)
	scatter.AddSeries("foci", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("failed to render scatter: %w", err)
	}
	return nil
}
