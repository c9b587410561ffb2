package raster

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// FromImage converts an image to a single-slice stack. 16-bit grayscale
// images keep their full range; anything else is reduced to 8-bit luminance.
func FromImage(img image.Image) *Stack {
	b := img.Bounds()
	s := NewStack(b.Dx(), b.Dy(), 1)

	if g16, ok := img.(*image.Gray16); ok {
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				v := g16.Gray16At(b.Min.X+x, b.Min.Y+y).Y
				s.Data[y*s.Width+x] = float32(v)
			}
		}
		return s
	}

	gray := imaging.Grayscale(img)
	gb := gray.Bounds()
	for y := 0; y < gb.Dy(); y++ {
		for x := 0; x < gb.Dx(); x++ {
			c := color.GrayModel.Convert(gray.At(gb.Min.X+x, gb.Min.Y+y)).(color.Gray)
			s.Data[y*s.Width+x] = float32(c.Y)
		}
	}
	return s
}

// Load decodes one or more image files into a stack. Each file becomes one
// z slice; all slices must share the same XY size.
func Load(paths ...string) (*Stack, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no image files given")
	}
	var out *Stack
	for z, p := range paths {
		img, err := imaging.Open(p)
		if err != nil {
			return nil, fmt.Errorf("failed to open image %s: %w", p, err)
		}
		slice := FromImage(img)
		if out == nil {
			out = NewStack(slice.Width, slice.Height, len(paths))
		} else if slice.Width != out.Width || slice.Height != out.Height {
			return nil, fmt.Errorf("slice %s is %dx%d, expected %dx%d: %w",
				p, slice.Width, slice.Height, out.Width, out.Height, ErrDimensions)
		}
		copy(out.Data[z*out.Width*out.Height:], slice.Data)
	}
	return out, nil
}

// LoadMask decodes a mask image; every non-zero pixel is included.
func LoadMask(path string) (*Mask, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	return MaskFromStack(s), nil
}
