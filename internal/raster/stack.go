package raster

import (
	"errors"
	"fmt"
)

// ErrDimensions is returned when two volumes cannot be combined.
var ErrDimensions = errors.New("raster: dimension mismatch")

// Stack is a dense 2D (Depth == 1) or 3D intensity volume.
type Stack struct {
	Width  int
	Height int
	Depth  int
	Data   []float32
}

// NewStack allocates a zeroed stack. Depth values below 1 are treated as 1.
func NewStack(width, height, depth int) *Stack {
	if depth < 1 {
		depth = 1
	}
	return &Stack{
		Width:  width,
		Height: height,
		Depth:  depth,
		Data:   make([]float32, width*height*depth),
	}
}

// FromSlice wraps data as a stack, checking the length.
func FromSlice(width, height, depth int, data []float32) (*Stack, error) {
	if depth < 1 {
		depth = 1
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid stack size %dx%dx%d: %w", width, height, depth, ErrDimensions)
	}
	if len(data) != width*height*depth {
		return nil, fmt.Errorf("stack %dx%dx%d needs %d values, got %d: %w",
			width, height, depth, width*height*depth, len(data), ErrDimensions)
	}
	return &Stack{Width: width, Height: height, Depth: depth, Data: data}, nil
}

// Len returns the number of voxels.
func (s *Stack) Len() int { return len(s.Data) }

// Is3D reports whether the stack has more than one slice.
func (s *Stack) Is3D() bool { return s.Depth > 1 }

// Index converts coordinates to a flat index.
func (s *Stack) Index(x, y, z int) int {
	return (z*s.Height+y)*s.Width + x
}

// XYZ converts a flat index back to coordinates.
func (s *Stack) XYZ(i int) (x, y, z int) {
	plane := s.Width * s.Height
	z = i / plane
	r := i % plane
	return r % s.Width, r / s.Width, z
}

// At returns the value at (x, y, z).
func (s *Stack) At(x, y, z int) float32 {
	return s.Data[s.Index(x, y, z)]
}

// Set stores v at (x, y, z).
func (s *Stack) Set(x, y, z int, v float32) {
	s.Data[s.Index(x, y, z)] = v
}

// SameSize reports whether o has identical dimensions.
func (s *Stack) SameSize(o *Stack) bool {
	return o != nil && s.Width == o.Width && s.Height == o.Height && s.Depth == o.Depth
}

// Clone returns a deep copy.
func (s *Stack) Clone() *Stack {
	c := &Stack{Width: s.Width, Height: s.Height, Depth: s.Depth, Data: make([]float32, len(s.Data))}
	copy(c.Data, s.Data)
	return c
}

// Mask marks the voxels included in the analysis.
type Mask struct {
	Width  int
	Height int
	Depth  int
	In     []bool
}

// NewMask allocates an empty mask.
func NewMask(width, height, depth int) *Mask {
	if depth < 1 {
		depth = 1
	}
	return &Mask{Width: width, Height: height, Depth: depth, In: make([]bool, width*height*depth)}
}

// MaskFromStack includes every voxel with a value above zero.
func MaskFromStack(s *Stack) *Mask {
	m := NewMask(s.Width, s.Height, s.Depth)
	for i, v := range s.Data {
		m.In[i] = v > 0
	}
	return m
}

// Set includes or excludes (x, y, z).
func (m *Mask) Set(x, y, z int, in bool) {
	m.In[(z*m.Height+y)*m.Width+x] = in
}

// Compatible reports whether the mask can be applied to s: the XY size must
// match and the depth must either match or be a single slice.
func (m *Mask) Compatible(s *Stack) bool {
	return m.Width == s.Width && m.Height == s.Height && (m.Depth == s.Depth || m.Depth == 1)
}

// Inside reports whether (x, y, z) is included. A single-slice mask ignores z.
func (m *Mask) Inside(x, y, z int) bool {
	if m.Depth == 1 {
		z = 0
	}
	return m.In[(z*m.Height+y)*m.Width+x]
}

// Count returns the number of included voxels in a single pass over the mask.
func (m *Mask) Count() int {
	n := 0
	for _, in := range m.In {
		if in {
			n++
		}
	}
	return n
}
