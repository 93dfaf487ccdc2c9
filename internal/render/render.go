// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render connects the plane mapping, the escape kernel and the
// palette into the per-strip job executed by the worker pool.
package render

import (
	"errors"
	"fmt"

	"github.com/gogpu/mandel/internal/escape"
	"github.com/gogpu/mandel/internal/palette"
	"github.com/gogpu/mandel/internal/parallel"
	"github.com/gogpu/mandel/internal/plane"
	"github.com/gogpu/mandel/surface"
)

// ErrPass is returned by NewPass for an incomplete snapshot.
var ErrPass = errors.New("render: pass needs a mapper, a palette and a surface")

// Pass is the immutable snapshot one rendering pass works against:
// viewport mapping, iteration budget and palette. Workers only read it.
type Pass[T any, A plane.Arith[T]] struct {
	Generation uint64
	Budget     int

	mapper  *plane.Mapper[T, A]
	palette *palette.Palette
	dst     surface.Surface
}

// NewPass captures a pass. The mapper is cloned so later changes to the
// caller's copy do not leak into the pass.
func NewPass[T any, A plane.Arith[T]](gen uint64, m *plane.Mapper[T, A], budget int, p *palette.Palette, dst surface.Surface) (*Pass[T, A], error) {
	if m == nil || p == nil || dst == nil {
		return nil, ErrPass
	}
	return &Pass[T, A]{
		Generation: gen,
		Budget:     budget,
		mapper:     m.Clone(),
		palette:    p,
		dst:        dst,
	}, nil
}

// State is the private per-worker state: kernel scratch and a mapper clone
// bound to the pass the worker is currently rendering.
type State[T any, A plane.Arith[T]] struct {
	arith   A
	scratch *escape.Scratch[T]

	pass   *Pass[T, A]
	mapper *plane.Mapper[T, A]
	cx, cy T
}

// NewState returns worker state for backend a.
func NewState[T any, A plane.Arith[T]](a A) *State[T, A] {
	return &State[T, A]{
		arith:   a,
		scratch: escape.NewScratch[T](a),
	}
}

// bind makes the state's mapper a private clone of the pass mapper.
func (s *State[T, A]) bind(p *Pass[T, A]) {
	if s.pass == p {
		return
	}
	s.pass = p
	s.mapper = p.mapper.Clone()
}

// Job adapts the pass to the worker pool. superseded is polled once per row;
// when it reports true the job stops without error and leaves the remaining
// rows untouched.
func (p *Pass[T, A]) Job(superseded func() bool) parallel.Job[*State[T, A]] {
	return func(s *State[T, A], tile parallel.Tile) error {
		return RenderTile(s, p, tile, superseded)
	}
}

// RenderTile renders rows [tile.RowStart, tile.RowEnd()) of the pass into
// its surface. Pixels that never escape are left untouched so they keep the
// background color the surface was cleared to.
func RenderTile[T any, A plane.Arith[T]](s *State[T, A], p *Pass[T, A], tile parallel.Tile, superseded func() bool) error {
	s.bind(p)
	a := s.arith
	width := s.mapper.Raster().Width

	for py := tile.RowStart; py < tile.RowEnd(); py++ {
		if superseded != nil && superseded() {
			return nil
		}
		if err := s.mapper.Row(&s.cy, py); err != nil {
			return fmt.Errorf("render: row %d: %w", py, err)
		}
		for px := 0; px < width; px++ {
			if err := s.mapper.Column(&s.cx, px); err != nil {
				return fmt.Errorf("render: pixel (%d, %d): %w", px, py, err)
			}
			n, err := escape.Iterations(a, s.scratch, &s.cx, &s.cy, p.Budget)
			if err != nil {
				return fmt.Errorf("render: pixel (%d, %d): %w", px, py, err)
			}
			if c, ok := p.palette.At(n); ok {
				p.dst.SetRGBA(px, py, c)
			}
		}
	}
	return nil
}
