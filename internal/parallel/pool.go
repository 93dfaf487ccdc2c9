// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package parallel

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// MaxWorkers caps the pool size regardless of the hardware.
const MaxWorkers = 64

// Pool errors.
var (
	// ErrPoolClosed is returned by Run after Close.
	ErrPoolClosed = errors.New("parallel: pool is closed")

	// ErrJobPanic wraps a panic recovered from a job.
	ErrJobPanic = errors.New("parallel: job panicked")
)

// ClampWorkers resolves a requested worker count. Zero or a negative value
// selects the number of CPUs. The result is always in [1, min(NumCPU, MaxWorkers)].
func ClampWorkers(requested int) int {
	limit := min(runtime.NumCPU(), MaxWorkers)
	if requested <= 0 || requested > limit {
		return limit
	}
	return requested
}

// Job renders one tile on behalf of a worker. state is the worker's private
// state created by the pool's state constructor; it is never shared with
// another goroutine.
type Job[S any] func(state S, tile Tile) error

// Pool is a fixed set of long-lived workers that execute one step at a time.
//
// Each step hands a slice of tiles to the workers: worker i renders tiles
// i, i+n, i+2n, ... so with one tile per worker every worker owns exactly
// one strip. Idle workers sleep on a condition variable; there is no polling.
//
// Every worker owns a value of S built once at start-up (scratch space for
// the kernel, a mapper clone) and receives it on every job.
//
// Thread safety: Pool is safe for concurrent use. Concurrent Run calls are
// serialized.
type Pool[S any] struct {
	workers int
	states  []S

	// runMu serializes Run.
	runMu sync.Mutex

	// mu guards everything below and backs both conditions.
	mu   sync.Mutex
	work *sync.Cond // a new step was published or the pool is stopping
	done *sync.Cond // a worker finished its share of the current step

	step     uint64
	pending  int
	tiles    []Tile
	job      Job[S]
	errs     []error
	stopping bool

	wg      sync.WaitGroup
	running atomic.Bool
}

// NewPool starts a pool of workers goroutines (after ClampWorkers). newState
// is called once per worker, in worker order, before any goroutine starts.
func NewPool[S any](workers int, newState func(worker int) S) *Pool[S] {
	workers = ClampWorkers(workers)

	p := &Pool[S]{
		workers: workers,
		states:  make([]S, workers),
	}
	p.work = sync.NewCond(&p.mu)
	p.done = sync.NewCond(&p.mu)

	for i := range workers {
		p.states[i] = newState(i)
	}

	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}

	return p
}

// worker is the main loop for each worker goroutine.
func (p *Pool[S]) worker(id int) {
	defer p.wg.Done()

	state := p.states[id]
	var seen uint64

	p.mu.Lock()
	for {
		for p.step == seen && !p.stopping {
			p.work.Wait()
		}
		if p.stopping {
			// A step published together with the stop request still
			// counts this worker; release the waiter.
			if p.step != seen {
				p.finishLocked()
			}
			p.mu.Unlock()
			return
		}
		seen = p.step
		tiles, job := p.tiles, p.job
		p.mu.Unlock()

		err := p.runShare(id, state, tiles, job)

		p.mu.Lock()
		if err != nil {
			p.errs = append(p.errs, err)
		}
		p.finishLocked()
	}
}

// finishLocked records that one worker is done with the current step.
func (p *Pool[S]) finishLocked() {
	p.pending--
	p.done.Signal()
}

// runShare executes this worker's tiles, stopping at the first error.
func (p *Pool[S]) runShare(id int, state S, tiles []Tile, job Job[S]) error {
	for i := id; i < len(tiles); i += p.workers {
		if tiles[i].Empty() {
			continue
		}
		if err := runJob(job, state, tiles[i]); err != nil {
			return err
		}
	}
	return nil
}

// runJob calls job and converts a panic into ErrJobPanic.
func runJob[S any](job Job[S], state S, tile Tile) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: rows [%d, %d): %v", ErrJobPanic, tile.RowStart, tile.RowEnd(), r)
		}
	}()
	return job(state, tile)
}

// Run executes job over tiles on the pool and waits for every worker to
// finish its share.
//
// interrupted, if non-nil, is consulted each time a worker joins. Once it
// reports true the step is considered abandoned: Run still waits for the
// remaining workers (they share the destination with the next step) but
// returns completed == false. Jobs are expected to notice the same condition
// and return early.
//
// err joins the errors returned by jobs, including recovered panics.
func (p *Pool[S]) Run(tiles []Tile, job Job[S], interrupted func() bool) (completed bool, err error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if !p.running.Load() {
		return false, ErrPoolClosed
	}
	if len(tiles) == 0 {
		return true, nil
	}

	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		return false, ErrPoolClosed
	}
	p.tiles = tiles
	p.job = job
	p.errs = p.errs[:0]
	p.pending = p.workers
	p.step++
	p.work.Broadcast()

	abandoned := false
	for p.pending > 0 {
		p.done.Wait()
		if !abandoned && interrupted != nil && interrupted() {
			abandoned = true
		}
	}
	stopped := p.stopping
	err = errors.Join(p.errs...)
	p.tiles, p.job = nil, nil
	p.mu.Unlock()

	if stopped && err == nil {
		return false, ErrPoolClosed
	}
	if !abandoned && interrupted != nil && interrupted() {
		abandoned = true
	}
	return err == nil && !abandoned, err
}

// Close stops the workers and waits for them to exit. A step in progress
// finishes first. Close is safe to call multiple times.
func (p *Pool[S]) Close() {
	if !p.running.CompareAndSwap(true, false) {
		// Already closed
		return
	}

	p.mu.Lock()
	p.stopping = true
	p.work.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *Pool[S]) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *Pool[S]) IsRunning() bool {
	return p.running.Load()
}
