// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"image"
	"image/color"
)

// Surface is the render target abstraction.
//
// SetRGBA may be called concurrently for pixels in disjoint rows. All other
// methods must not run concurrently with writers.
type Surface interface {
	// Width returns the surface width in pixels.
	Width() int

	// Height returns the surface height in pixels.
	Height() int

	// Clear fills the entire surface with the given color.
	Clear(c color.Color)

	// ClearRows fills rows [y0, y1) with the given color.
	ClearRows(y0, y1 int, c color.Color)

	// SetRGBA writes one pixel. Out-of-bounds writes are ignored.
	SetRGBA(x, y int, c color.RGBA)

	// Snapshot returns a copy of the current contents.
	// Modifications to the copy do not affect the surface.
	Snapshot() *image.RGBA

	// Close releases the pixel buffer. Close is idempotent.
	Close() error
}

// toRGBA converts any color to 8-bit RGBA.
func toRGBA(c color.Color) color.RGBA {
	if c == nil {
		return color.RGBA{A: 255}
	}
	r, g, b, a := c.RGBA()
	//nolint:gosec // G115: safe - r>>8 is always in [0, 255]
	return color.RGBA{
		R: uint8(r >> 8),
		G: uint8(g >> 8),
		B: uint8(b >> 8),
		A: uint8(a >> 8),
	}
}
