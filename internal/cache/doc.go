// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package cache provides a small generic LRU cache.
//
// # LRU[K, V]
//
// A thread-safe cache with a hard capacity. When an insert would exceed the
// capacity the least recently used entry is evicted.
//
//	c := cache.NewLRU[int, *palette.Palette](8)
//	p, err := c.GetOrBuild(200, func() (*palette.Palette, error) {
//	    return palette.Build(200)
//	})
//
// # Thread Safety
//
// LRU is safe for concurrent use and must not be copied after creation.
package cache
