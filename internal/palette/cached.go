// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package palette

import "github.com/gogpu/mandel/internal/cache"

// cachedPalettes bounds the palettes kept alive across sessions.
const cachedPalettes = 16

var built = cache.NewLRU[int, *Palette](cachedPalettes)

// Cached returns the palette for budget, building it at most once while it
// stays among the recently used budgets. Palettes are immutable, so callers
// share them.
func Cached(budget int) (*Palette, error) {
	if budget < 1 {
		return nil, ErrBudget
	}
	return built.GetOrBuild(budget, func() (*Palette, error) {
		return Build(budget)
	})
}

// CacheStats reports the shared palette cache counters.
func CacheStats() cache.Stats {
	return built.Stats()
}
