// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package plane

import "errors"

// ErrRaster is returned for a raster with a non-positive dimension.
var ErrRaster = errors.New("plane: raster dimensions must be positive")

// Raster is the size of the output pixel grid. It is fixed for a session.
type Raster struct {
	Width  int
	Height int
}

// Contains reports whether pixel (px, py) lies inside the raster.
func (r Raster) Contains(px, py int) bool {
	return px >= 0 && px < r.Width && py >= 0 && py < r.Height
}

// Center returns the pixel at the middle of the raster.
func (r Raster) Center() (px, py int) {
	return r.Width / 2, r.Height / 2
}

// Mapper is the affine transform between raster pixels and plane points for
// one viewport snapshot:
//
//	x = cx - hw + px * (2hw / width)
//	y = cy + hh - py * (2hh / height)
//
// Pixel y grows downwards while plane y grows upwards, hence the sign flip.
//
// A Mapper keeps a scratch cell and is therefore not safe for concurrent
// use. Each goroutine works on its own Clone.
type Mapper[T any, A Arith[T]] struct {
	arith  A
	raster Raster

	left, top    T // plane coordinates of pixel (0, 0)
	stepX, stepY T // plane distance between neighbouring pixels

	tmp T
}

// NewMapper builds the mapping for viewport v onto raster r.
func NewMapper[T any, A Arith[T]](v *Viewport[T, A], r Raster) (*Mapper[T, A], error) {
	if r.Width <= 0 || r.Height <= 0 {
		return nil, ErrRaster
	}

	a := v.arith
	m := &Mapper[T, A]{arith: a, raster: r}

	if err := a.Sub(&m.left, &v.center.X, &v.halfWidth); err != nil {
		return nil, err
	}
	if err := a.Add(&m.top, &v.center.Y, &v.halfHeight); err != nil {
		return nil, err
	}

	var span, n T
	if err := a.Add(&span, &v.halfWidth, &v.halfWidth); err != nil {
		return nil, err
	}
	a.SetInt(&n, int64(r.Width))
	if err := a.Quo(&m.stepX, &span, &n); err != nil {
		return nil, err
	}

	if err := a.Add(&span, &v.halfHeight, &v.halfHeight); err != nil {
		return nil, err
	}
	a.SetInt(&n, int64(r.Height))
	if err := a.Quo(&m.stepY, &span, &n); err != nil {
		return nil, err
	}
	for _, x := range []*T{&m.left, &m.top, &m.stepX, &m.stepY} {
		if !finite(x) {
			return nil, ErrNotFinite
		}
	}
	return m, nil
}

// Clone returns an independent copy for use by another goroutine.
func (m *Mapper[T, A]) Clone() *Mapper[T, A] {
	a := m.arith
	c := &Mapper[T, A]{arith: a, raster: m.raster}
	a.Set(&c.left, &m.left)
	a.Set(&c.top, &m.top)
	a.Set(&c.stepX, &m.stepX)
	a.Set(&c.stepY, &m.stepY)
	return c
}

// Raster returns the raster the mapper was built for.
func (m *Mapper[T, A]) Raster() Raster {
	return m.raster
}

// StepX returns the plane width of one pixel. The caller must not modify it.
func (m *Mapper[T, A]) StepX() *T {
	return &m.stepX
}

// Column sets dst to the plane x coordinate of pixel column px.
func (m *Mapper[T, A]) Column(dst *T, px int) error {
	a := m.arith
	a.SetInt(&m.tmp, int64(px))
	if err := a.Mul(&m.tmp, &m.tmp, &m.stepX); err != nil {
		return err
	}
	return a.Add(dst, &m.left, &m.tmp)
}

// Row sets dst to the plane y coordinate of pixel row py.
func (m *Mapper[T, A]) Row(dst *T, py int) error {
	a := m.arith
	a.SetInt(&m.tmp, int64(py))
	if err := a.Mul(&m.tmp, &m.tmp, &m.stepY); err != nil {
		return err
	}
	return a.Sub(dst, &m.top, &m.tmp)
}

// PixelToPlane sets dst to the plane point under pixel (px, py).
func (m *Mapper[T, A]) PixelToPlane(dst *Point[T], px, py int) error {
	if err := m.Column(&dst.X, px); err != nil {
		return err
	}
	return m.Row(&dst.Y, py)
}

// PlaneToPixel is the inverse of PixelToPlane. The result is fractional;
// pixel coordinates are small enough that float64 holds them exactly.
func (m *Mapper[T, A]) PlaneToPixel(p *Point[T]) (px, py float64, err error) {
	a := m.arith
	if err = a.Sub(&m.tmp, &p.X, &m.left); err != nil {
		return 0, 0, err
	}
	if err = a.Quo(&m.tmp, &m.tmp, &m.stepX); err != nil {
		return 0, 0, err
	}
	px = a.Float64(&m.tmp)

	if err = a.Sub(&m.tmp, &m.top, &p.Y); err != nil {
		return 0, 0, err
	}
	if err = a.Quo(&m.tmp, &m.tmp, &m.stepY); err != nil {
		return 0, 0, err
	}
	py = a.Float64(&m.tmp)
	return px, py, nil
}
