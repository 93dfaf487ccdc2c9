// Package mandel renders the Mandelbrot set interactively on all CPU cores.
//
// # Overview
//
// A Session holds a viewport over the complex plane, an iteration budget and
// a palette. Commands (zoom, recenter, increase detail) mutate that state and
// start a new render generation; a pool of persistent workers renders each
// generation into a shared raster, one horizontal strip per worker, and the
// session publishes every completed pass as an immutable Frame. A command
// issued while a pass is running supersedes it: the workers stop at their
// next row and the pass is discarded.
//
// # Quick Start
//
//	import "github.com/gogpu/mandel"
//
//	s, err := mandel.NewSession(mandel.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	s.ZoomIn()
//	s.RecenterAt(450, 300)
//	s.IncreaseDetail()
//
//	frame, err := s.WaitFrame(ctx)
//
// # Precision
//
// Two numeric backends share one escape-time kernel:
//   - PrecisionFixed uses float64 and is fast down to a zoom of about 1e-13.
//   - PrecisionArbitrary uses decimal arithmetic with Config.PrecisionDigits
//     significant digits for deeper zooms.
//
// Both backends return identical iteration counts for points they both
// represent exactly. Stats.PrecisionExhausted reports when fixed precision
// can no longer separate neighbouring pixels.
//
// # Coordinate System
//
// Pixel (0, 0) is the top-left corner of the raster and pixel y grows
// downwards. Plane y (the imaginary part) grows upwards.
//
// # Architecture
//
// The library is organized into:
//   - Public API: Session, Config, Frame
//   - internal/plane: scalar backends, Viewport and pixel mapping
//   - internal/escape: the escape-time kernel
//   - internal/palette: iteration count to color
//   - internal/parallel: row strips, worker pool and pass scheduler
//   - internal/render: the per-strip rendering job
//   - surface: the shared pixel buffer
package mandel

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
