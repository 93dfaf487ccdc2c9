// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mandel

import (
	"fmt"
	"image/color"
	"log/slog"
	"math"
	"sync"

	"github.com/gogpu/mandel/internal/palette"
	"github.com/gogpu/mandel/internal/parallel"
	"github.com/gogpu/mandel/internal/plane"
	"github.com/gogpu/mandel/internal/render"
	"github.com/gogpu/mandel/surface"
)

// engine is the precision-independent view of engineImpl that Session
// drives. Every method except close may be called while passes run.
type engine interface {
	zoom(factor float64) error
	recenter(p PlanePoint) error
	recenterAt(px, py int) error
	pixelToPlane(px, py int) (PlanePoint, error)
	setBudget(budget int) error
	budget() int
	viewport() ViewportConfig
	precisionExhausted() bool
	invalidate() uint64
	generation() uint64
	workers() int
	close()
}

// passInfo is a pass outcome together with the snapshot it rendered.
type passInfo struct {
	parallel.PassResult
	Budget   int
	Viewport ViewportConfig
}

type engineConfig struct {
	raster     plane.Raster
	workers    int
	budget     int
	viewport   ViewportConfig
	surface    surface.Surface
	background color.RGBA
	logger     *slog.Logger

	// result is called on the dispatcher goroutine after every pass.
	result func(passInfo)
}

// engineImpl owns the viewport, budget and palette for one numeric backend
// and the scheduler that renders them.
//
// mu guards the mutable snapshot state. Commands mutate it and bump the
// generation while holding mu, so a pass prepared under mu for the current
// generation always sees exactly that generation's state.
type engineImpl[T any, A plane.Arith[T]] struct {
	arith A
	cfg   engineConfig
	sched *parallel.Scheduler[*render.State[T, A]]

	mu     sync.Mutex
	view   *plane.Viewport[T, A]
	mapper *plane.Mapper[T, A]
	bud    int
	pal    *palette.Palette

	// inflight is only touched by the dispatcher goroutine.
	inflight struct {
		gen    uint64
		budget int
		view   ViewportConfig
	}
}

func newEngine[T any, A plane.Arith[T]](a A, cfg engineConfig) (*engineImpl[T, A], error) {
	vc := cfg.viewport
	v, err := plane.NewViewport[T](a, vc.CenterX, vc.CenterY, vc.HalfWidth, vc.HalfHeight)
	if err != nil {
		return nil, err
	}
	m, err := plane.NewMapper(v, cfg.raster)
	if err != nil {
		return nil, err
	}
	pal, err := palette.Cached(cfg.budget)
	if err != nil {
		return nil, err
	}

	e := &engineImpl[T, A]{
		arith:  a,
		cfg:    cfg,
		view:   v,
		mapper: m,
		bud:    cfg.budget,
		pal:    pal,
	}

	pool := parallel.NewPool(cfg.workers, func(int) *render.State[T, A] {
		return render.NewState[T](a)
	})
	sched, err := parallel.NewScheduler(parallel.SchedulerConfig[*render.State[T, A]]{
		Pool:    pool,
		Height:  cfg.raster.Height,
		Prepare: e.prepare,
		Clear:   e.clear,
		Result:  e.report,
		Logger:  cfg.logger,
	})
	if err != nil {
		pool.Close()
		return nil, err
	}
	e.sched = sched
	return e, nil
}

// prepare captures the snapshot of generation gen. Runs on the dispatcher.
func (e *engineImpl[T, A]) prepare(gen uint64, superseded func() bool) (parallel.Job[*render.State[T, A]], error) {
	e.mu.Lock()
	pass, err := render.NewPass(gen, e.mapper, e.bud, e.pal, e.cfg.surface)
	e.inflight.gen = gen
	e.inflight.budget = e.bud
	e.inflight.view = viewportConfig(e.view.Text())
	e.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return pass.Job(superseded), nil
}

func (e *engineImpl[T, A]) clear() {
	e.cfg.surface.Clear(e.cfg.background)
}

func (e *engineImpl[T, A]) report(res parallel.PassResult) {
	info := passInfo{PassResult: res}
	if e.inflight.gen == res.Generation {
		info.Budget = e.inflight.budget
		info.Viewport = e.inflight.view
	}
	if e.cfg.result != nil {
		e.cfg.result(info)
	}
}

// update applies fn to a copy of the viewport and commits it, together with
// a fresh mapper, only if both succeed.
func (e *engineImpl[T, A]) update(fn func(v *plane.Viewport[T, A]) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.view.Clone()
	if err := fn(next); err != nil {
		return err
	}
	m, err := plane.NewMapper(next, e.cfg.raster)
	if err != nil {
		return err
	}
	e.view, e.mapper = next, m
	e.sched.Invalidate()
	return nil
}

func (e *engineImpl[T, A]) zoom(factor float64) error {
	return e.update(func(v *plane.Viewport[T, A]) error {
		return v.Zoom(factor)
	})
}

func (e *engineImpl[T, A]) recenter(p PlanePoint) error {
	var pt plane.Point[T]
	if err := e.arith.Parse(&pt.X, p.X); err != nil {
		return err
	}
	if err := e.arith.Parse(&pt.Y, p.Y); err != nil {
		return err
	}
	return e.update(func(v *plane.Viewport[T, A]) error {
		v.Recenter(&pt)
		return nil
	})
}

func (e *engineImpl[T, A]) recenterAt(px, py int) error {
	if !e.cfg.raster.Contains(px, py) {
		return fmt.Errorf("%w: (%d, %d)", ErrOutOfRaster, px, py)
	}
	return e.update(func(v *plane.Viewport[T, A]) error {
		var pt plane.Point[T]
		if err := e.mapper.PixelToPlane(&pt, px, py); err != nil {
			return err
		}
		v.Recenter(&pt)
		return nil
	})
}

func (e *engineImpl[T, A]) pixelToPlane(px, py int) (PlanePoint, error) {
	if !e.cfg.raster.Contains(px, py) {
		return PlanePoint{}, fmt.Errorf("%w: (%d, %d)", ErrOutOfRaster, px, py)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var pt plane.Point[T]
	if err := e.mapper.PixelToPlane(&pt, px, py); err != nil {
		return PlanePoint{}, err
	}
	return PlanePoint{X: e.arith.Format(&pt.X), Y: e.arith.Format(&pt.Y)}, nil
}

func (e *engineImpl[T, A]) setBudget(budget int) error {
	pal, err := palette.Cached(budget)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bud, e.pal = budget, pal
	e.sched.Invalidate()
	return nil
}

func (e *engineImpl[T, A]) budget() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bud
}

func (e *engineImpl[T, A]) viewport() ViewportConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return viewportConfig(e.view.Text())
}

// precisionExhausted reports whether neighbouring pixels are closer than
// float64 can resolve at the current coordinates. Only the fixed backend
// can exhaust.
func (e *engineImpl[T, A]) precisionExhausted() bool {
	if _, fixed := any(e.arith).(plane.Float64); !fixed {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	a := e.arith
	c := e.view.Center()
	scale := max(
		math.Abs(a.Float64(&c.X))+a.Float64(e.view.HalfWidth()),
		math.Abs(a.Float64(&c.Y))+a.Float64(e.view.HalfHeight()),
	)
	return a.Float64(e.mapper.StepX()) <= scale*0x1p-52
}

func (e *engineImpl[T, A]) invalidate() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sched.Invalidate()
}

func (e *engineImpl[T, A]) generation() uint64 {
	return e.sched.Generation()
}

func (e *engineImpl[T, A]) workers() int {
	return len(e.sched.Tiles())
}

func (e *engineImpl[T, A]) close() {
	e.sched.Close()
}

func viewportConfig(t plane.Text) ViewportConfig {
	return ViewportConfig{
		CenterX:    t.CenterX,
		CenterY:    t.CenterY,
		HalfWidth:  t.HalfWidth,
		HalfHeight: t.HalfHeight,
	}
}
