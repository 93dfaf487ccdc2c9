// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package parallel

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrSchedulerConfig is returned by NewScheduler for an incomplete config.
var ErrSchedulerConfig = errors.New("parallel: scheduler needs a pool, a positive height and a Prepare func")

// PassResult describes the outcome of one rendering pass.
type PassResult struct {
	// Generation is the generation the pass rendered.
	Generation uint64

	// Completed is true when every tile was rendered and the generation was
	// still current when the last worker joined.
	Completed bool

	// Abandoned is true when a newer generation (or Close) superseded the
	// pass. Abandoned passes are expected and are not errors.
	Abandoned bool

	// Err is a preparation or job failure. It aborts the pass.
	Err error

	// Elapsed is the wall time from dispatch to the last join.
	Elapsed time.Duration
}

// SchedulerConfig wires a Scheduler to its pool and destination.
type SchedulerConfig[S any] struct {
	// Pool executes the passes. The scheduler takes ownership and closes it.
	Pool *Pool[S]

	// Height is the raster height; it is split into one strip per worker.
	Height int

	// Prepare captures an immutable snapshot for generation gen and returns
	// the job rendering it. superseded reports whether gen is no longer
	// current; jobs should poll it between rows.
	Prepare func(gen uint64, superseded func() bool) (Job[S], error)

	// Clear resets the destination before dispatch. Optional.
	Clear func()

	// Result receives every pass outcome on the dispatcher goroutine. Optional.
	Result func(PassResult)

	// Logger receives dispatch diagnostics. Nil disables logging.
	Logger *slog.Logger
}

// Scheduler drives one rendering pass per stale signal.
//
// Invalidate bumps the generation counter and wakes the dispatcher, which
// sleeps on a condition variable otherwise. The dispatcher checks the
// generation before committing to a pass and the pool re-checks it at every
// worker join; a pass that was superseded is discarded and the dispatcher
// immediately starts over from the latest generation.
//
// Thread safety: all methods are safe for concurrent use.
type Scheduler[S any] struct {
	cfg   SchedulerConfig[S]
	tiles []Tile
	log   *slog.Logger

	gen    atomic.Uint64
	closed atomic.Bool

	mu   sync.Mutex
	wake *sync.Cond
	last uint64 // last generation handed to a pass

	done chan struct{}
}

// NewScheduler creates a scheduler and starts its dispatcher goroutine. No
// pass runs until the first Invalidate.
func NewScheduler[S any](cfg SchedulerConfig[S]) (*Scheduler[S], error) {
	if cfg.Pool == nil || cfg.Height <= 0 || cfg.Prepare == nil {
		return nil, ErrSchedulerConfig
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	s := &Scheduler[S]{
		cfg:   cfg,
		tiles: SplitRows(cfg.Height, cfg.Pool.Workers()),
		log:   log,
		done:  make(chan struct{}),
	}
	s.wake = sync.NewCond(&s.mu)

	go s.dispatch()
	return s, nil
}

// Invalidate marks the current render stale and returns the new generation.
// After Close it returns the last generation and does nothing.
func (s *Scheduler[S]) Invalidate() uint64 {
	if s.closed.Load() {
		return s.gen.Load()
	}
	g := s.gen.Add(1)

	s.mu.Lock()
	s.wake.Signal()
	s.mu.Unlock()
	return g
}

// Generation returns the current generation.
func (s *Scheduler[S]) Generation() uint64 {
	return s.gen.Load()
}

// Superseded reports whether gen is no longer current or the scheduler is
// closing.
func (s *Scheduler[S]) Superseded(gen uint64) bool {
	return s.closed.Load() || s.gen.Load() != gen
}

// Tiles returns the strips a pass is split into.
func (s *Scheduler[S]) Tiles() []Tile {
	out := make([]Tile, len(s.tiles))
	copy(out, s.tiles)
	return out
}

// Close stops the dispatcher, abandons any pass in flight and closes the
// pool. Close is safe to call multiple times.
func (s *Scheduler[S]) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		<-s.done
		return
	}

	s.mu.Lock()
	s.wake.Broadcast()
	s.mu.Unlock()

	<-s.done
	s.cfg.Pool.Close()
}

// dispatch is the scheduler's control loop.
func (s *Scheduler[S]) dispatch() {
	defer close(s.done)

	for {
		s.mu.Lock()
		for s.gen.Load() == s.last && !s.closed.Load() {
			s.wake.Wait()
		}
		if s.closed.Load() {
			s.mu.Unlock()
			return
		}
		gen := s.gen.Load()
		s.last = gen
		s.mu.Unlock()

		s.pass(gen)
	}
}

// pass renders generation gen and reports the outcome.
func (s *Scheduler[S]) pass(gen uint64) {
	superseded := func() bool { return s.Superseded(gen) }
	start := time.Now()
	res := PassResult{Generation: gen}

	job, err := s.cfg.Prepare(gen, superseded)
	switch {
	case err != nil:
		res.Err = err
	case superseded():
		res.Abandoned = true
	default:
		if s.cfg.Clear != nil {
			s.cfg.Clear()
		}
		s.log.Debug("parallel: pass dispatched", "generation", gen, "tiles", len(s.tiles))
		res.Completed, res.Err = s.cfg.Pool.Run(s.tiles, job, superseded)
		res.Abandoned = !res.Completed && res.Err == nil
		if errors.Is(res.Err, ErrPoolClosed) {
			res.Err = nil
			res.Abandoned = true
		}
	}
	res.Elapsed = time.Since(start)

	if res.Abandoned {
		s.log.Debug("parallel: pass abandoned", "generation", gen, "elapsed", res.Elapsed)
	}
	if s.cfg.Result != nil {
		s.cfg.Result(res)
	}
}
