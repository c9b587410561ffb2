package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/findfoci/internal/findfoci"
)

func sampleFoci() findfoci.FociList {
	return findfoci.FociList{
		{ID: 1, X: 12, Y: 7, MaxValue: 250.5, Count: 40, Intensity: 6021.125, IntensityAboveBackground: 5621.125,
			Average: 150.528125, AverageAboveBackground: 140.528125, SaddleValue: 80, SaddleNeighbourID: 2,
			CountAboveSaddle: 22, IntensityAboveSaddle: 2900, AbsoluteHeight: 170.5, RelativeHeight: 0.7, IntensityMinusMin: 6021.125},
		{ID: 2, X: 30, Y: 2, Z: 3, MaxValue: 90, Count: 9, Intensity: 700, SaddleValue: 80, SaddleNeighbourID: 1, RelativeHeight: 1e-9},
		{ID: 3, X: 5, Y: 31, MaxValue: 41, Count: 3, Intensity: 110},
	}
}

func TestTSV_RoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, WriteTSV(&buf, sampleFoci()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, strings.Join(Columns, "\t"), lines[0])
	assert.True(t, strings.HasPrefix(lines[2], "2\t30\t2\t3\t90\t9\t700\t"), lines[2])

	got, err := ReadTSV(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(sampleFoci(), got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReadTSV_SubsetOfColumns(t *testing.T) {
	t.Parallel()
	in := "x\tid\ty\tmax_value\textra\n3\t1\t4\t9.5\tzzz\n"
	got, err := ReadTSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, findfoci.FociList{{ID: 1, X: 3, Y: 4, MaxValue: 9.5}}, got)
}

func TestReadTSV_Errors(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"empty":          "",
		"missing column": "id\tx\n1\t2\n",
		"bad int":        "id\tx\ty\n1\tfoo\t2\n",
		"bad float":      "id\tx\ty\tmax_value\n1\t2\t3\tbig\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadTSV(strings.NewReader(in))
			assert.ErrorIs(t, err, ErrBadTable)
		})
	}
}

func TestSaveHistogramPNG(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "hist.png")
	require.NoError(t, SaveHistogramPNG(path, sampleFoci(), 0))

	img, err := imaging.Open(path)
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 0)

	assert.ErrorIs(t, SaveHistogramPNG(path, nil, 5), ErrNoFoci)
}

func TestWriteScatterHTML(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, WriteScatterHTML(&buf, "Cells", sampleFoci()))
	html := buf.String()
	assert.Contains(t, html, "<html")
	assert.Contains(t, html, "Cells")
	assert.Contains(t, html, "focus 3")

	assert.ErrorIs(t, WriteScatterHTML(&buf, "x", nil), ErrNoFoci)
}

func testLabels() *findfoci.LabelMap {
	return &findfoci.LabelMap{
		Width: 3, Height: 2, Depth: 2,
		Data: []int32{
			0, 1, 1,
			2, 0, 70000,

			3, 3, 0,
			0, 0, 0,
		},
	}
}

func TestLabelImage(t *testing.T) {
	t.Parallel()
	img, err := LabelImage(testLabels(), 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), img.Gray16At(1, 0).Y)
	assert.Equal(t, uint16(2), img.Gray16At(0, 1).Y)
	assert.Equal(t, uint16(65535), img.Gray16At(2, 1).Y, "clamped")

	img, err = LabelImage(testLabels(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), img.Gray16At(1, 0).Y)

	_, err = LabelImage(testLabels(), 2)
	assert.Error(t, err)
	_, err = LabelImage(nil, 0)
	assert.Error(t, err)
}

func TestSaveLabels(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, SaveLabels(testLabels(), func(z int) string {
		return filepath.Join(dir, fmt.Sprintf("labels_%02d.png", z))
	}))
	for _, name := range []string{"labels_00.png", "labels_01.png"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	flat := &findfoci.LabelMap{Width: 2, Height: 1, Depth: 1, Data: []int32{4, 0}}
	path := filepath.Join(dir, "flat.png")
	require.NoError(t, SaveLabels(flat, func(int) string { return path }))
	img, err := imaging.Open(path)
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())
}
