// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package surface provides the pixel buffer that rendering passes write into.
//
// A Surface is a width×height grid of RGBA pixels allocated once per session
// and mutated in place. During a pass, several workers write into it at the
// same time, each restricted to its own strip of rows; no pixel is written by
// two workers and no locking is needed for those writes. Everything else
// (Clear, Snapshot) happens between passes on the goroutine that drives them.
//
// # Usage
//
//	s := surface.NewImageSurface(900, 600)
//	defer s.Close()
//
//	s.Clear(color.Black)
//	s.SetRGBA(10, 20, color.RGBA{255, 0, 0, 255})
//
//	img := s.Snapshot() // independent copy for display
package surface
