// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"image"
	"image/color"
)

// ImageSurface is a CPU-based surface backed by an *image.RGBA.
//
// Example:
//
//	s := surface.NewImageSurface(800, 600)
//	defer s.Close()
//
//	s.Clear(color.Black)
//	img := s.Snapshot()
type ImageSurface struct {
	width  int
	height int
	img    *image.RGBA

	// closed tracks if Close has been called
	closed bool
}

// NewImageSurface creates a new CPU-based surface with the given dimensions.
// Non-positive dimensions are clamped to 1.
func NewImageSurface(width, height int) *ImageSurface {
	if width <= 0 {
		width = 1
	}
	if height <= 0 {
		height = 1
	}

	return &ImageSurface{
		width:  width,
		height: height,
		img:    image.NewRGBA(image.Rect(0, 0, width, height)),
	}
}

// NewImageSurfaceFromImage creates a surface backed by an existing image.
// The surface will render into the provided image directly.
func NewImageSurfaceFromImage(img *image.RGBA) *ImageSurface {
	bounds := img.Bounds()
	return &ImageSurface{
		width:  bounds.Dx(),
		height: bounds.Dy(),
		img:    img,
	}
}

// Width returns the surface width.
func (s *ImageSurface) Width() int {
	return s.width
}

// Height returns the surface height.
func (s *ImageSurface) Height() int {
	return s.height
}

// Bounds returns the surface rectangle.
func (s *ImageSurface) Bounds() image.Rectangle {
	return image.Rect(0, 0, s.width, s.height)
}

// Clear fills the entire surface with the given color.
func (s *ImageSurface) Clear(c color.Color) {
	s.ClearRows(0, s.height, c)
}

// ClearRows fills rows [y0, y1) with the given color. The range is clipped
// to the surface.
func (s *ImageSurface) ClearRows(y0, y1 int, c color.Color) {
	if s.closed {
		return
	}
	y0 = max(y0, 0)
	y1 = min(y1, s.height)
	if y0 >= y1 {
		return
	}

	rgba := toRGBA(c)
	stride := s.img.Stride
	rowBytes := s.width * 4

	// Fill first row
	first := s.img.Pix[y0*stride : y0*stride+rowBytes]
	for x := 0; x < s.width; x++ {
		offset := x * 4
		first[offset] = rgba.R
		first[offset+1] = rgba.G
		first[offset+2] = rgba.B
		first[offset+3] = rgba.A
	}

	// Copy first row to all other rows
	for y := y0 + 1; y < y1; y++ {
		rowStart := y * stride
		copy(s.img.Pix[rowStart:rowStart+rowBytes], first)
	}
}

// SetRGBA writes one pixel. Out-of-bounds writes are ignored.
func (s *ImageSurface) SetRGBA(x, y int, c color.RGBA) {
	if s.closed || x < 0 || x >= s.width || y < 0 || y >= s.height {
		return
	}
	idx := s.img.PixOffset(x, y)
	s.img.Pix[idx+0] = c.R
	s.img.Pix[idx+1] = c.G
	s.img.Pix[idx+2] = c.B
	s.img.Pix[idx+3] = c.A
}

// RGBAAt returns the pixel at (x, y). Out-of-bounds reads return zero.
func (s *ImageSurface) RGBAAt(x, y int) color.RGBA {
	if s.closed {
		return color.RGBA{}
	}
	return s.img.RGBAAt(x, y)
}

// Snapshot returns a copy of the current surface contents.
func (s *ImageSurface) Snapshot() *image.RGBA {
	if s.closed {
		return nil
	}

	result := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	copy(result.Pix, s.img.Pix)
	return result
}

// SnapshotInto copies the surface into dst, which must have the same size.
// It reports false if the sizes differ or the surface is closed.
func (s *ImageSurface) SnapshotInto(dst *image.RGBA) bool {
	if s.closed || dst == nil || dst.Bounds().Dx() != s.width || dst.Bounds().Dy() != s.height {
		return false
	}
	for y := 0; y < s.height; y++ {
		src := s.img.Pix[y*s.img.Stride : y*s.img.Stride+s.width*4]
		copy(dst.Pix[y*dst.Stride:], src)
	}
	return true
}

// Close releases resources associated with the surface.
func (s *ImageSurface) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.img = nil
	return nil
}

// Image returns the underlying image.RGBA.
// This is a direct reference, not a copy.
func (s *ImageSurface) Image() *image.RGBA {
	return s.img
}

// Compile-time interface check.
var _ Surface = (*ImageSurface)(nil)
