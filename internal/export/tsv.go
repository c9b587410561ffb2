// Package export writes foci results in formats meant for people and
// spreadsheets: tab-delimited tables, PNG charts, HTML scatter plots and
// label images.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/banshee-data/findfoci/internal/findfoci"
)

// Columns is the header row written by WriteTSV, in order.
var Columns = []string{
	"id", "x", "y", "z", "max_value", "count", "intensity",
	"intensity_above_background", "average", "average_above_background",
	"saddle_value", "saddle_neighbour_id", "count_above_saddle",
	"intensity_above_saddle", "absolute_height", "relative_height",
	"intensity_minus_min",
}

// ErrBadTable is wrapped by ReadTSV for malformed input.
var ErrBadTable = errors.New("malformed foci table")

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// WriteTSV writes a header row and one row per focus.
func WriteTSV(w io.Writer, foci findfoci.FociList) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, f := range foci {
		row := []string{
			strconv.Itoa(f.ID), strconv.Itoa(f.X), strconv.Itoa(f.Y), strconv.Itoa(f.Z),
			ftoa(f.MaxValue), strconv.Itoa(f.Count), ftoa(f.Intensity),
			ftoa(f.IntensityAboveBackground), ftoa(f.Average), ftoa(f.AverageAboveBackground),
			ftoa(f.SaddleValue), strconv.Itoa(f.SaddleNeighbourID), strconv.Itoa(f.CountAboveSaddle),
			ftoa(f.IntensityAboveSaddle), ftoa(f.AbsoluteHeight), ftoa(f.RelativeHeight),
			ftoa(f.IntensityMinusMin),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write focus %d: %w", f.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTSV parses a table written by WriteTSV. Columns are matched by
// header name so extra columns are ignored and missing ones stay zero; the
// id, x and y columns are required.
func ReadTSV(r io.Reader) (findfoci.FociList, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty input: %w", ErrBadTable)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}
	for _, req := range []string{"id", "x", "y"} {
		if _, ok := col[req]; !ok {
			return nil, fmt.Errorf("missing column %q: %w", req, ErrBadTable)
		}
	}

	var out findfoci.FociList
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		p := rowParser{row: row, col: col, line: line}
		f := findfoci.FociRecord{
			ID:                       p.int("id"),
			X:                        p.int("x"),
			Y:                        p.int("y"),
			Z:                        p.int("z"),
			MaxValue:                 p.float("max_value"),
			Count:                    p.int("count"),
			Intensity:                p.float("intensity"),
			IntensityAboveBackground: p.float("intensity_above_background"),
			Average:                  p.float("average"),
			AverageAboveBackground:   p.float("average_above_background"),
			SaddleValue:              p.float("saddle_value"),
			SaddleNeighbourID:        p.int("saddle_neighbour_id"),
			CountAboveSaddle:         p.int("count_above_saddle"),
			IntensityAboveSaddle:     p.float("intensity_above_saddle"),
			AbsoluteHeight:           p.float("absolute_height"),
			RelativeHeight:           p.float("relative_height"),
			IntensityMinusMin:        p.float("intensity_minus_min"),
		}
		if p.err != nil {
			return nil, p.err
		}
		out = append(out, f)
	}
}

// rowParser keeps the first conversion error of a row.
type rowParser struct {
	row  []string
	col  map[string]int
	line int
	err  error
}

func (p *rowParser) field(name string) (string, bool) {
	i, ok := p.col[name]
	if !ok || i >= len(p.row) || p.err != nil {
		return "", false
	}
	return p.row[i], true
}

func (p *rowParser) int(name string) int {
	s, ok := p.field(name)
	if !ok {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		p.err = fmt.Errorf("line %d column %s: %w: %w", p.line, name, ErrBadTable, err)
	}
	return v
}

func (p *rowParser) float(name string) float64 {
	s, ok := p.field(name)
	if !ok {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.err = fmt.Errorf("line %d column %s: %w: %w", p.line, name, ErrBadTable, err)
	}
	return v
}
