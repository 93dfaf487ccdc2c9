// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mandel

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"

	"github.com/gogpu/mandel/internal/plane"
	"github.com/gogpu/mandel/surface"
)

// Zoom factors of ZoomIn and ZoomOut.
const (
	ZoomInFactor  = 0.9
	ZoomOutFactor = 1 / 0.9
)

// PlanePoint is a point of the complex plane as decimal strings.
type PlanePoint struct {
	X, Y string
}

// Frame is an immutable rendered raster together with the snapshot it was
// rendered from.
type Frame struct {
	// Image holds Width×Height RGBA pixels. It is never modified.
	Image *image.RGBA

	// Generation is the render generation of the frame. The frame published
	// at session start, before any pass completed, has generation 0.
	Generation uint64

	Budget   int
	Viewport ViewportConfig

	// Elapsed is the wall time of the pass.
	Elapsed time.Duration

	// RenderedAt is when the pass completed.
	RenderedAt time.Time
}

// PassEvent describes a finished pass to a WithPassObserver callback.
type PassEvent struct {
	Generation uint64

	// Result is PassCompleted, PassAbandoned or PassFailed.
	Result  string
	Elapsed time.Duration
	Err     error
}

// Stats is a snapshot of the session counters.
type Stats struct {
	Generation uint64
	Budget     int
	Workers    int

	PassesCompleted uint64
	PassesAbandoned uint64
	PassesFailed    uint64

	// LastPassDuration is the wall time of the last completed pass.
	LastPassDuration time.Duration

	// PrecisionExhausted is true in fixed precision when neighbouring pixels
	// can no longer be told apart. Restart in arbitrary precision to go deeper.
	PrecisionExhausted bool
}

// Session is the controller of one interactive view: it owns the viewport,
// iteration budget and palette, turns commands into new render generations
// and publishes each completed pass as a Frame.
//
// Commands never block on rendering. Invalid commands are ignored (and
// logged at debug level), as are commands issued after Close.
//
// Thread safety: all methods are safe for concurrent use.
type Session struct {
	id       string
	log      *slog.Logger
	cfg      Config
	metrics  *metrics
	observer func(PassEvent)
	surf     *surface.ImageSurface
	eng      engine

	// cmdMu serializes commands and Close.
	cmdMu  sync.Mutex
	closed atomic.Bool
	warned bool

	mu        sync.Mutex
	published *sync.Cond
	frame     *Frame
	err       error
	failedGen uint64
	stats     Stats
}

// NewSession validates cfg, starts the worker pool and dispatches the first
// pass. Close must be called to stop the workers.
func NewSession(cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	bg, err := cfg.BackgroundColor()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	id := uuid.NewString()
	log := o.logger
	if log == nil {
		log = Logger()
	}
	log = log.With("session", id)

	s := &Session{
		id:       id,
		log:      log,
		cfg:      cfg,
		metrics:  newMetrics(o.registerer, id),
		observer: o.observer,
		surf:     surface.NewImageSurface(cfg.Width, cfg.Height),
	}
	s.published = sync.NewCond(&s.mu)

	s.surf.Clear(bg)
	s.frame = &Frame{
		Image:      s.surf.Snapshot(),
		Budget:     cfg.IterationBudget,
		Viewport:   cfg.Viewport,
		RenderedAt: time.Now(),
	}

	ecfg := engineConfig{
		raster:     plane.Raster{Width: cfg.Width, Height: cfg.Height},
		workers:    cfg.Workers,
		budget:     cfg.IterationBudget,
		viewport:   cfg.Viewport,
		surface:    s.surf,
		background: bg,
		logger:     log,
		result:     s.onPass,
	}
	switch cfg.Precision {
	case PrecisionArbitrary:
		s.eng, err = newEngine[apd.Decimal](plane.NewDecimal(cfg.PrecisionDigits), ecfg)
	default:
		s.eng, err = newEngine[float64](plane.Float64{}, ecfg)
	}
	if err != nil {
		_ = s.surf.Close()
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	s.metrics.budget.Set(float64(cfg.IterationBudget))
	log.Info("mandel: session started",
		"width", cfg.Width,
		"height", cfg.Height,
		"precision", cfg.Precision,
		"workers", s.eng.workers(),
		"budget", cfg.IterationBudget,
	)

	gen := s.eng.invalidate()
	s.metrics.generation.Set(float64(gen))
	return s, nil
}

// ID returns the unique session id.
func (s *Session) ID() string { return s.id }

// Config returns the configuration the session was created with.
func (s *Session) Config() Config { return s.cfg }

// Width returns the raster width.
func (s *Session) Width() int { return s.cfg.Width }

// Height returns the raster height.
func (s *Session) Height() int { return s.cfg.Height }

// Workers returns the number of rendering workers.
func (s *Session) Workers() int { return s.eng.workers() }

// Generation returns the current render generation. It grows by one for
// every accepted command.
func (s *Session) Generation() uint64 { return s.eng.generation() }

// Budget returns the current iteration budget.
func (s *Session) Budget() int { return s.eng.budget() }

// Viewport returns the current viewport as decimal strings.
func (s *Session) Viewport() ViewportConfig { return s.eng.viewport() }

// Zoom scales the viewport about its center: factor < 1 zooms in and
// factor > 1 zooms out. Non-positive or non-finite factors are ignored.
func (s *Session) Zoom(factor float64) {
	s.command("zoom", func() error { return s.eng.zoom(factor) })
}

// ZoomIn zooms in by ZoomInFactor.
func (s *Session) ZoomIn() { s.Zoom(ZoomInFactor) }

// ZoomOut zooms out by ZoomOutFactor.
func (s *Session) ZoomOut() { s.Zoom(ZoomOutFactor) }

// Recenter moves the viewport center to p, keeping the extents. A point that
// does not parse is ignored.
func (s *Session) Recenter(p PlanePoint) {
	s.command("recenter", func() error { return s.eng.recenter(p) })
}

// RecenterAt moves the viewport center to the plane point under pixel
// (px, py). Pixels outside the raster are ignored.
func (s *Session) RecenterAt(px, py int) {
	s.command("recenter_at", func() error { return s.eng.recenterAt(px, py) })
}

// IncreaseDetail doubles the iteration budget and rebuilds the palette. It is
// ignored once the budget would exceed MaxIterationBudget.
func (s *Session) IncreaseDetail() {
	s.command("increase_detail", func() error {
		b := s.eng.budget()
		if b > MaxIterationBudget/2 {
			return fmt.Errorf("%w: budget %d cannot double past %d", ErrCommand, b, MaxIterationBudget)
		}
		if err := s.eng.setBudget(2 * b); err != nil {
			return err
		}
		s.metrics.budget.Set(float64(2 * b))
		return nil
	})
}

// command runs fn as a state-changing command.
func (s *Session) command(name string, fn func() error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if s.closed.Load() {
		return
	}
	s.metrics.command(name)

	if err := fn(); err != nil {
		s.log.Debug("mandel: command ignored", "command", name, "error", err)
		return
	}
	gen := s.eng.generation()
	s.metrics.generation.Set(float64(gen))
	s.log.Debug("mandel: command", "command", name, "generation", gen)

	exhausted := s.eng.precisionExhausted()
	if exhausted && !s.warned {
		s.log.Warn("mandel: fixed precision exhausted, restart with arbitrary precision to zoom further",
			"viewport", s.eng.viewport())
	}
	s.warned = exhausted
}

// PixelToPlane returns the plane point under pixel (px, py) in the current
// viewport.
func (s *Session) PixelToPlane(px, py int) (PlanePoint, error) {
	if s.closed.Load() {
		return PlanePoint{}, ErrSessionClosed
	}
	return s.eng.pixelToPlane(px, py)
}

// CurrentSurface returns the latest completed frame. Before the first pass
// completes it is a frame filled with the background color.
func (s *Session) CurrentSurface() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// WaitFrame blocks until the frame of the generation current at the time of
// the call (or a newer one) is published and returns it. It returns the pass
// error if that pass failed, ErrSessionClosed if the session closes first,
// or the context error.
func (s *Session) WaitFrame(ctx context.Context) (*Frame, error) {
	target := s.eng.generation()

	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.published.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		switch {
		case s.frame.Generation >= target:
			return s.frame, nil
		case s.err != nil && s.failedGen >= target:
			return nil, s.err
		case s.closed.Load():
			return nil, ErrSessionClosed
		case ctx.Err() != nil:
			return nil, ctx.Err()
		}
		s.published.Wait()
	}
}

// Err returns the error of the most recent finished pass, or nil if it
// completed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	st := s.stats
	s.mu.Unlock()

	st.Generation = s.eng.generation()
	st.Budget = s.eng.budget()
	st.Workers = s.eng.workers()
	st.PrecisionExhausted = s.eng.precisionExhausted()
	return st
}

// onPass records a pass outcome. Runs on the dispatcher goroutine.
func (s *Session) onPass(info passInfo) {
	ev := PassEvent{
		Generation: info.Generation,
		Elapsed:    info.Elapsed,
		Err:        info.Err,
	}

	var frame *Frame
	switch {
	case info.Err != nil:
		ev.Result = PassFailed
		s.log.Error("mandel: pass aborted", "generation", info.Generation, "error", info.Err)
	case info.Completed:
		ev.Result = PassCompleted
		frame = &Frame{
			Image:      s.surf.Snapshot(),
			Generation: info.Generation,
			Budget:     info.Budget,
			Viewport:   info.Viewport,
			Elapsed:    info.Elapsed,
			RenderedAt: time.Now(),
		}
		s.log.Info("mandel: pass completed",
			"generation", info.Generation,
			"budget", info.Budget,
			"elapsed", info.Elapsed,
		)
	default:
		ev.Result = PassAbandoned
	}

	s.mu.Lock()
	switch ev.Result {
	case PassFailed:
		s.err = info.Err
		s.failedGen = info.Generation
		s.stats.PassesFailed++
	case PassCompleted:
		s.frame = frame
		s.err = nil
		s.stats.PassesCompleted++
		s.stats.LastPassDuration = info.Elapsed
	default:
		s.stats.PassesAbandoned++
	}
	s.published.Broadcast()
	s.mu.Unlock()

	s.metrics.pass(ev.Result, info.Elapsed.Seconds())
	if s.observer != nil {
		s.observer(ev)
	}
}

// Close stops rendering and releases the surface. Commands issued afterwards
// are dropped. Close is safe to call multiple times.
func (s *Session) Close() error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.eng.close()
	err := s.surf.Close()

	s.mu.Lock()
	s.published.Broadcast()
	s.mu.Unlock()

	s.log.Info("mandel: session stopped")
	return err
}

// Background returns the background color of the session.
func (s *Session) Background() color.RGBA {
	bg, _ := s.cfg.BackgroundColor()
	return bg
}
