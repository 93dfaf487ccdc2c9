// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package palette maps escape iteration counts to colors.
package palette

import (
	"errors"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// ErrBudget is returned by Build for an iteration budget below 1.
var ErrBudget = errors.New("palette: iteration budget must be at least 1")

// Hue walk parameters. The walk starts at pure red and advances by
// 360/budget degrees per entry at full saturation and value.
const (
	StartHue   = 0.0
	Saturation = 1.0
	Value      = 1.0
)

// Palette is an immutable table of budget colors indexed by iteration count.
// Index 0 is reserved for points that never escaped; those pixels keep the
// background color and At reports ok == false for them.
//
// A Palette is read-only after Build and safe for concurrent use.
type Palette struct {
	colors []color.RGBA
}

// Build generates the palette for the given iteration budget. It is
// deterministic: equal budgets produce identical palettes.
func Build(budget int) (*Palette, error) {
	if budget < 1 {
		return nil, ErrBudget
	}
	p := &Palette{colors: make([]color.RGBA, budget)}
	step := 360.0 / float64(budget)
	for i := range p.colors {
		hue := StartHue + float64(i)*step
		r, g, b := colorful.Hsv(hue, Saturation, Value).RGB255()
		p.colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return p, nil
}

// Len returns the iteration budget the palette was built for.
func (p *Palette) Len() int {
	return len(p.colors)
}

// At returns the color for iteration count n. It reports false for n == 0
// and for counts outside the palette.
func (p *Palette) At(n int) (color.RGBA, bool) {
	if n <= 0 || n >= len(p.colors) {
		return color.RGBA{}, false
	}
	return p.colors[n], true
}

// Colors returns a copy of the palette entries, including the reserved
// entry at index 0.
func (p *Palette) Colors() []color.RGBA {
	out := make([]color.RGBA, len(p.colors))
	copy(out, p.colors)
	return out
}
