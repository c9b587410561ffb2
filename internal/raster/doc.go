// Package raster holds the 2D/3D intensity volumes the foci pipeline works on.
//
// A Stack is a dense float32 volume indexed z-major (z*W*H + y*W + x). A Mask
// restricts analysis to a region; a single-slice mask applies to every slice
// of a deeper stack. The package also provides the Gaussian pre-filter and
// decoding of standard image files into stacks.
package raster
