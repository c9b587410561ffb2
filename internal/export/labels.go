package export

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/banshee-data/findfoci/internal/findfoci"
)

// LabelImage returns slice z of the label map as a 16-bit grey image whose
// pixel values are the focus ids. Ids above 65535 are clamped.
func LabelImage(labels *findfoci.LabelMap, z int) (*image.Gray16, error) {
	if labels == nil {
		return nil, fmt.Errorf("nil label map")
	}
	if z < 0 || z >= labels.Depth {
		return nil, fmt.Errorf("slice %d out of range [0, %d)", z, labels.Depth)
	}
	img := image.NewGray16(image.Rect(0, 0, labels.Width, labels.Height))
	for y := 0; y < labels.Height; y++ {
		for x := 0; x < labels.Width; x++ {
			v := labels.At(x, y, z)
			img.SetGray16(x, y, color.Gray16{Y: uint16(min(max(v, 0), math.MaxUint16))})
		}
	}
	return img, nil
}

// SaveLabels writes every slice of the label map to the path returned by
// pathFor for that slice number.
func SaveLabels(labels *findfoci.LabelMap, pathFor func(z int) string) error {
	if labels == nil {
		return fmt.Errorf("nil label map")
	}
	for z := 0; z < labels.Depth; z++ {
		img, err := LabelImage(labels, z)
		if err != nil {
			return err
		}
		out := pathFor(z)
		if err := imaging.Save(img, out); err != nil {
			return fmt.Errorf("failed to save labels %s: %w", out, err)
		}
	}
	return nil
}
