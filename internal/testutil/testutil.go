// Package testutil provides shared test fixtures.
package testutil

import (
	"math"
	"testing"

	"github.com/banshee-data/findfoci/internal/raster"
)

// Blob is an isotropic Gaussian spot.
type Blob struct {
	X, Y, Z float64
	Height  float64
	// Sigma defaults to 1.5 when zero.
	Sigma float64
}

// BlobStack renders blobs onto a zero background. Each z slice is
// rendered independently; a blob only appears on the slice nearest to Z.
func BlobStack(t testing.TB, width, height, depth int, blobs ...Blob) *raster.Stack {
	t.Helper()
	s := raster.NewStack(width, height, depth)
	for _, b := range blobs {
		sigma := b.Sigma
		if sigma == 0 {
			sigma = 1.5
		}
		z := int(math.Round(b.Z))
		if z < 0 || z >= s.Depth {
			t.Fatalf("blob z %v outside stack depth %d", b.Z, s.Depth)
		}
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				dx, dy := float64(x)-b.X, float64(y)-b.Y
				v := b.Height * math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma))
				s.Set(x, y, z, s.At(x, y, z)+float32(v))
			}
		}
	}
	return s
}

// RectMask returns a mask that includes [x0, x1) x [y0, y1) on every slice.
func RectMask(width, height, x0, y0, x1, y1 int) *raster.Mask {
	m := raster.NewMask(width, height, 1)
	for y := max(0, y0); y < min(height, y1); y++ {
		for x := max(0, x0); x < min(width, x1); x++ {
			m.Set(x, y, 0, true)
		}
	}
	return m
}
