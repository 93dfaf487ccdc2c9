// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package plane

import (
	"errors"
	"fmt"
	"math"
)

// Sentinel errors for viewport mutations.
var (
	// ErrExtent is returned when a half extent is not strictly positive and
	// finite.
	ErrExtent = errors.New("plane: half extents must be positive and finite")

	// ErrZoomFactor is returned by Zoom for a non-positive or non-finite factor.
	ErrZoomFactor = errors.New("plane: zoom factor must be positive and finite")
)

// Point is a point in the complex plane (X = real, Y = imaginary).
type Point[T any] struct {
	X, Y T
}

// Viewport is the rectangle of the complex plane mapped onto the raster,
// described by its center and half extents.
//
// Invariant: HalfWidth > 0 and HalfHeight > 0.
//
// A Viewport is owned by a single goroutine. Renderers receive a Clone.
type Viewport[T any, A Arith[T]] struct {
	arith      A
	center     Point[T]
	halfWidth  T
	halfHeight T
}

// NewViewport parses a viewport from decimal strings using backend a.
func NewViewport[T any, A Arith[T]](a A, centerX, centerY, halfWidth, halfHeight string) (*Viewport[T, A], error) {
	v := &Viewport[T, A]{arith: a}
	fields := []struct {
		name string
		dst  *T
		src  string
	}{
		{"center_x", &v.center.X, centerX},
		{"center_y", &v.center.Y, centerY},
		{"half_width", &v.halfWidth, halfWidth},
		{"half_height", &v.halfHeight, halfHeight},
	}
	for _, f := range fields {
		if err := a.Parse(f.dst, f.src); err != nil {
			return nil, fmt.Errorf("plane: viewport %s: %w", f.name, err)
		}
	}
	if a.Sign(&v.halfWidth) <= 0 || a.Sign(&v.halfHeight) <= 0 {
		return nil, ErrExtent
	}
	return v, nil
}

// Arith returns the viewport's arithmetic backend.
func (v *Viewport[T, A]) Arith() A {
	return v.arith
}

// Center returns a pointer to the viewport center. The caller must not
// modify it; use Recenter.
func (v *Viewport[T, A]) Center() *Point[T] {
	return &v.center
}

// HalfWidth returns a pointer to the half width. The caller must not modify it.
func (v *Viewport[T, A]) HalfWidth() *T {
	return &v.halfWidth
}

// HalfHeight returns a pointer to the half height. The caller must not modify it.
func (v *Viewport[T, A]) HalfHeight() *T {
	return &v.halfHeight
}

// Clone returns a deep copy that shares no storage with v.
func (v *Viewport[T, A]) Clone() *Viewport[T, A] {
	c := &Viewport[T, A]{arith: v.arith}
	v.arith.Set(&c.center.X, &v.center.X)
	v.arith.Set(&c.center.Y, &v.center.Y)
	v.arith.Set(&c.halfWidth, &v.halfWidth)
	v.arith.Set(&c.halfHeight, &v.halfHeight)
	return c
}

// Zoom scales both half extents by factor about the unchanged center.
// factor < 1 zooms in, factor > 1 zooms out. A non-positive or non-finite
// factor returns ErrZoomFactor and leaves v untouched.
func (v *Viewport[T, A]) Zoom(factor float64) error {
	if !(factor > 0) || math.IsInf(factor, 0) {
		return ErrZoomFactor
	}
	a := v.arith
	var f, w, h T
	if err := a.SetFloat64(&f, factor); err != nil {
		return err
	}
	if err := a.Mul(&w, &v.halfWidth, &f); err != nil {
		return err
	}
	if err := a.Mul(&h, &v.halfHeight, &f); err != nil {
		return err
	}
	// Underflow to zero or overflow to infinity would break the extent
	// invariant.
	if a.Sign(&w) <= 0 || a.Sign(&h) <= 0 || !finite(&w) || !finite(&h) {
		return ErrExtent
	}
	a.Set(&v.halfWidth, &w)
	a.Set(&v.halfHeight, &h)
	return nil
}

// Recenter moves the center to p, preserving the extents.
func (v *Viewport[T, A]) Recenter(p *Point[T]) {
	v.arith.Set(&v.center.X, &p.X)
	v.arith.Set(&v.center.Y, &p.Y)
}

// Text is the decimal-string form of a viewport, used for logging, frame
// metadata and configuration round trips.
type Text struct {
	CenterX, CenterY      string
	HalfWidth, HalfHeight string
}

// String formats the viewport as "center (x, y) half w×h".
func (t Text) String() string {
	return fmt.Sprintf("center (%s, %s) half %s×%s", t.CenterX, t.CenterY, t.HalfWidth, t.HalfHeight)
}

// Text returns the viewport as decimal strings.
func (v *Viewport[T, A]) Text() Text {
	a := v.arith
	return Text{
		CenterX:    a.Format(&v.center.X),
		CenterY:    a.Format(&v.center.Y),
		HalfWidth:  a.Format(&v.halfWidth),
		HalfHeight: a.Format(&v.halfHeight),
	}
}
