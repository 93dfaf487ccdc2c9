// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mandel

import "errors"

// Sentinel errors returned by Session.
var (
	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("mandel: session closed")

	// ErrOutOfRaster is returned for a pixel outside the raster.
	ErrOutOfRaster = errors.New("mandel: pixel outside the raster")

	// ErrCommand marks a rejected command parameter. Commands are no-ops in
	// that case; the error only reaches the log.
	ErrCommand = errors.New("mandel: invalid command")
)
