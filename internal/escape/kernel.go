// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package escape implements the Mandelbrot escape-time kernel.
//
// For a plane point c the kernel iterates z(n+1) = z(n)^2 + c from z(0) = 0
// and reports how many steps it took for |z| to exceed the escape radius 2.
// The result is an iteration count k in [0, budget):
//
//   - k == 0 means the point never escaped within the budget and is treated
//     as a member of the set (drawn in the background color)
//   - k >= 1 means the point escaped; k selects a palette entry
//
// Points with |c| > 2 escape immediately and report 1 without iterating.
// The escape test runs on z before each step, so points that reach the
// loop report at least 2.
package escape

import (
	"errors"

	"github.com/gogpu/mandel/internal/plane"
)

// ErrBudget is returned for an iteration budget below 1.
var ErrBudget = errors.New("escape: iteration budget must be at least 1")

// Scratch holds the temporaries of one kernel evaluation. It is reused from
// pixel to pixel so the arbitrary-precision backend does not allocate in the
// inner loop. A Scratch belongs to one goroutine.
type Scratch[T any] struct {
	zx, zy T
	x2, y2 T
	t, m   T
	mag    T
	four   T
}

// NewScratch returns scratch space for backend a.
func NewScratch[T any, A plane.Arith[T]](a A) *Scratch[T] {
	s := new(Scratch[T])
	a.SetInt(&s.four, 4)
	return s
}

// Iterations runs the escape-time iteration for c = (cx, cy) with the given
// budget and returns the iteration count described in the package comment.
//
// An arithmetic failure (for example precision exhaustion in the decimal
// backend) is reported as an error; it never silently degrades to a lower
// precision result.
func Iterations[T any, A plane.Arith[T]](a A, s *Scratch[T], cx, cy *T, budget int) (int, error) {
	if budget < 1 {
		return 0, ErrBudget
	}

	// Cheap reject: |c|^2 > 4.
	if err := a.Mul(&s.x2, cx, cx); err != nil {
		return 0, err
	}
	if err := a.Mul(&s.y2, cy, cy); err != nil {
		return 0, err
	}
	if err := a.Add(&s.mag, &s.x2, &s.y2); err != nil {
		return 0, err
	}
	if a.Cmp(&s.mag, &s.four) > 0 {
		return 1, nil
	}

	a.SetInt(&s.zx, 0)
	a.SetInt(&s.zy, 0)
	for n := 0; n < budget; n++ {
		if err := step(a, s, cx, cy); err != nil {
			return 0, err
		}
		// mag holds |z|^2 from before this step.
		if a.Cmp(&s.mag, &s.four) > 0 {
			return n, nil
		}
	}
	return 0, nil
}

// step advances z by one iteration and leaves the squared magnitude of the
// previous z in s.mag.
func step[T any, A plane.Arith[T]](a A, s *Scratch[T], cx, cy *T) error {
	if err := a.Mul(&s.x2, &s.zx, &s.zx); err != nil {
		return err
	}
	if err := a.Mul(&s.y2, &s.zy, &s.zy); err != nil {
		return err
	}
	// t = x^2 - y^2 + cx
	if err := a.Sub(&s.t, &s.x2, &s.y2); err != nil {
		return err
	}
	if err := a.Add(&s.t, &s.t, cx); err != nil {
		return err
	}
	// zy = 2*zx*zy + cy
	if err := a.Mul(&s.m, &s.zx, &s.zy); err != nil {
		return err
	}
	if err := a.Add(&s.m, &s.m, &s.m); err != nil {
		return err
	}
	if err := a.Add(&s.zy, &s.m, cy); err != nil {
		return err
	}
	a.Set(&s.zx, &s.t)
	return a.Add(&s.mag, &s.x2, &s.y2)
}
