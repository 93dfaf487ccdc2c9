// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package parallel provides the strip-based parallel rendering infrastructure
// for mandel.
//
// The raster is divided into horizontal strips of rows, one per worker, that
// are rendered independently against a shared destination. Key pieces:
//
//   - [Tile] and [SplitRows]: a disjoint, contiguous partition of raster rows
//   - [Pool]: persistent workers, each owning private scratch state, that
//     sleep on a condition variable between passes
//   - [Scheduler]: the generation-based invalidation protocol that drives
//     one pass per stale signal and abandons passes that were superseded
//
// Thread safety: Pool and Scheduler are safe for concurrent use. Tiles are
// plain values.
package parallel

// Tile is a contiguous range of raster rows assigned to one worker for one
// pass.
type Tile struct {
	// RowStart is the first row of the strip.
	RowStart int

	// RowCount is the number of rows in the strip. It may be zero when there
	// are more workers than rows.
	RowCount int
}

// RowEnd returns the row just past the strip.
func (t Tile) RowEnd() int {
	return t.RowStart + t.RowCount
}

// Empty reports whether the strip covers no rows.
func (t Tile) Empty() bool {
	return t.RowCount <= 0
}

// Contains reports whether row y lies inside the strip.
func (t Tile) Contains(y int) bool {
	return y >= t.RowStart && y < t.RowEnd()
}

// SplitRows partitions rows [0, height) into n strips of height/n rows each.
// The last strip also receives the remainder of the integer division, so the
// strips always cover the raster exactly once. n below 1 is treated as 1 and
// a non-positive height yields n empty strips.
func SplitRows(height, n int) []Tile {
	if n < 1 {
		n = 1
	}
	if height < 0 {
		height = 0
	}

	tiles := make([]Tile, n)
	stripe := height / n
	for i := range tiles {
		tiles[i] = Tile{RowStart: i * stripe, RowCount: stripe}
	}
	last := &tiles[n-1]
	last.RowCount = height - last.RowStart
	return tiles
}
