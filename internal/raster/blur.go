package raster

import "math"

// KernelSigmas is the kernel half-width in standard deviations.
const KernelSigmas = 3.0

// GaussianKernel returns a normalised 1-D kernel of half-width ceil(KernelSigmas*sigma).
func GaussianKernel(sigma float64) []float64 {
	radius := int(math.Ceil(KernelSigmas * sigma))
	if radius < 1 {
		radius = 1
	}
	k := make([]float64, 2*radius+1)
	var sum float64
	s2 := 2 * sigma * sigma
	for i := -radius; i <= radius; i++ {
		w := math.Exp(-float64(i*i) / s2)
		k[i+radius] = w
		sum += w
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// Gaussian blurs every XY slice of s with a separable Gaussian of the given
// sigma. Edges are clamped. A sigma of zero or less returns s unchanged (the
// same pointer); otherwise a new stack is returned and s is not modified.
func Gaussian(s *Stack, sigma float64) *Stack {
	if s == nil || sigma <= 0 {
		return s
	}
	k := GaussianKernel(sigma)
	r := len(k) / 2
	w, h := s.Width, s.Height
	out := NewStack(w, h, s.Depth)
	row := make([]float64, w*h)

	for z := 0; z < s.Depth; z++ {
		off := z * w * h
		src := s.Data[off : off+w*h]
		dst := out.Data[off : off+w*h]

		// Horizontal pass into row.
		for y := 0; y < h; y++ {
			base := y * w
			for x := 0; x < w; x++ {
				var acc float64
				for i := -r; i <= r; i++ {
					xx := clamp(x+i, w)
					acc += k[i+r] * float64(src[base+xx])
				}
				row[base+x] = acc
			}
		}
		// Vertical pass into dst.
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				var acc float64
				for i := -r; i <= r; i++ {
					yy := clamp(y+i, h)
					acc += k[i+r] * row[yy*w+x]
				}
				dst[y*w+x] = float32(acc)
			}
		}
	}
	return out
}

func clamp(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}
