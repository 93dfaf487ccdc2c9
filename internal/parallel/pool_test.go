// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package parallel

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// counterState is per-worker state used by the pool tests.
type counterState struct {
	id   int
	rows atomic.Int64
}

func newCounterPool(workers int) (*Pool[*counterState], []*counterState) {
	var states []*counterState
	p := NewPool(workers, func(i int) *counterState {
		s := &counterState{id: i}
		states = append(states, s)
		return s
	})
	return p, states
}

// =============================================================================
// Pool Creation Tests
// =============================================================================

func TestPool_Create(t *testing.T) {
	pool, states := newCounterPool(4)
	defer pool.Close()

	want := min(4, runtime.NumCPU())
	if pool.Workers() != want {
		t.Errorf("Workers() = %d, want %d", pool.Workers(), want)
	}
	if len(states) != pool.Workers() {
		t.Errorf("state constructor called %d times, want %d", len(states), pool.Workers())
	}
	for i, s := range states {
		if s.id != i {
			t.Errorf("states[%d].id = %d, want %d", i, s.id, i)
		}
	}
	if !pool.IsRunning() {
		t.Error("Pool should be running after creation")
	}
}

func TestClampWorkers(t *testing.T) {
	limit := min(runtime.NumCPU(), MaxWorkers)
	tests := []struct {
		requested int
		want      int
	}{
		{0, limit},
		{-3, limit},
		{1, 1},
		{limit, limit},
		{limit + 1, limit},
		{1 << 20, limit},
	}
	for _, tt := range tests {
		if got := ClampWorkers(tt.requested); got != tt.want {
			t.Errorf("ClampWorkers(%d) = %d, want %d", tt.requested, got, tt.want)
		}
	}
}

// =============================================================================
// Run Tests
// =============================================================================

func TestPool_RunCoversAllRows(t *testing.T) {
	pool, states := newCounterPool(0)
	defer pool.Close()

	const height = 101
	var mu sync.Mutex
	seen := make([]int, height)

	job := func(s *counterState, tile Tile) error {
		for y := tile.RowStart; y < tile.RowEnd(); y++ {
			mu.Lock()
			seen[y]++
			mu.Unlock()
			s.rows.Add(1)
		}
		return nil
	}

	completed, err := pool.Run(SplitRows(height, pool.Workers()), job, nil)
	if err != nil || !completed {
		t.Fatalf("Run() = (%v, %v), want (true, nil)", completed, err)
	}
	for y, n := range seen {
		if n != 1 {
			t.Errorf("row %d rendered %d times", y, n)
		}
	}

	var total int64
	for _, s := range states {
		total += s.rows.Load()
	}
	if total != height {
		t.Errorf("rows rendered = %d, want %d", total, height)
	}
}

func TestPool_OneStripPerWorker(t *testing.T) {
	pool, _ := newCounterPool(0)
	defer pool.Close()

	var mu sync.Mutex
	owner := map[int]int{} // tile start -> worker id

	job := func(s *counterState, tile Tile) error {
		mu.Lock()
		defer mu.Unlock()
		owner[tile.RowStart] = s.id
		return nil
	}

	tiles := SplitRows(pool.Workers()*10, pool.Workers())
	if _, err := pool.Run(tiles, job, nil); err != nil {
		t.Fatal(err)
	}
	for i, tile := range tiles {
		if owner[tile.RowStart] != i {
			t.Errorf("tile %d ran on worker %d", i, owner[tile.RowStart])
		}
	}
}

func TestPool_RunRepeatedly(t *testing.T) {
	pool, states := newCounterPool(0)
	defer pool.Close()

	job := func(s *counterState, tile Tile) error {
		s.rows.Add(int64(tile.RowCount))
		return nil
	}
	tiles := SplitRows(64, pool.Workers())
	for range 50 {
		if completed, err := pool.Run(tiles, job, nil); !completed || err != nil {
			t.Fatalf("Run() = (%v, %v)", completed, err)
		}
	}

	var total int64
	for _, s := range states {
		total += s.rows.Load()
	}
	if total != 50*64 {
		t.Errorf("rows rendered = %d, want %d", total, 50*64)
	}
}

func TestPool_RunEmpty(t *testing.T) {
	pool, _ := newCounterPool(2)
	defer pool.Close()

	completed, err := pool.Run(nil, func(*counterState, Tile) error {
		t.Error("job called for empty run")
		return nil
	}, nil)
	if !completed || err != nil {
		t.Errorf("Run(nil) = (%v, %v), want (true, nil)", completed, err)
	}
}

func TestPool_EmptyTilesSkipped(t *testing.T) {
	pool, _ := newCounterPool(0)
	defer pool.Close()

	var calls atomic.Int32
	tiles := []Tile{{0, 0}, {0, 3}}
	_, err := pool.Run(tiles, func(_ *counterState, tile Tile) error {
		calls.Add(1)
		if tile.Empty() {
			t.Error("job called with an empty tile")
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Errorf("job calls = %d, want 1", calls.Load())
	}
}

func TestPool_JobError(t *testing.T) {
	pool, _ := newCounterPool(0)
	defer pool.Close()

	boom := errors.New("boom")
	completed, err := pool.Run(SplitRows(8, pool.Workers()), func(_ *counterState, tile Tile) error {
		if tile.Contains(0) {
			return boom
		}
		return nil
	}, nil)
	if completed {
		t.Error("Run() completed despite a job error")
	}
	if !errors.Is(err, boom) {
		t.Errorf("Run() error = %v, want boom", err)
	}

	// The pool stays usable after a failed step.
	completed, err = pool.Run(SplitRows(8, pool.Workers()), func(*counterState, Tile) error { return nil }, nil)
	if !completed || err != nil {
		t.Errorf("Run() after failure = (%v, %v), want (true, nil)", completed, err)
	}
}

func TestPool_JobPanic(t *testing.T) {
	pool, _ := newCounterPool(0)
	defer pool.Close()

	completed, err := pool.Run(SplitRows(4, 1), func(*counterState, Tile) error {
		panic("kernel exploded")
	}, nil)
	if completed {
		t.Error("Run() completed despite a panic")
	}
	if !errors.Is(err, ErrJobPanic) {
		t.Errorf("Run() error = %v, want ErrJobPanic", err)
	}
	if !pool.IsRunning() {
		t.Error("pool stopped after a recovered panic")
	}
}

func TestPool_Interrupted(t *testing.T) {
	pool, _ := newCounterPool(0)
	defer pool.Close()

	var stale atomic.Bool
	var rows atomic.Int64
	job := func(_ *counterState, tile Tile) error {
		for y := tile.RowStart; y < tile.RowEnd(); y++ {
			if stale.Load() {
				return nil
			}
			rows.Add(1)
			if y == tile.RowStart {
				stale.Store(true)
			}
		}
		return nil
	}

	completed, err := pool.Run(SplitRows(1000, pool.Workers()), job, stale.Load)
	if err != nil {
		t.Fatal(err)
	}
	if completed {
		t.Error("Run() reported completion for an interrupted step")
	}
	if rows.Load() >= 1000 {
		t.Errorf("rows rendered = %d, expected the step to stop early", rows.Load())
	}
}

// =============================================================================
// Close Tests
// =============================================================================

func TestPool_CloseIdempotent(t *testing.T) {
	pool, _ := newCounterPool(4)
	pool.Close()
	pool.Close()

	if pool.IsRunning() {
		t.Error("Pool should not be running after Close()")
	}
}

func TestPool_RunAfterClose(t *testing.T) {
	pool, _ := newCounterPool(2)
	pool.Close()

	completed, err := pool.Run(SplitRows(4, 2), func(*counterState, Tile) error {
		t.Error("job ran after Close")
		return nil
	}, nil)
	if completed || !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Run() after Close = (%v, %v), want (false, ErrPoolClosed)", completed, err)
	}
}

func TestPool_CloseDuringRun(t *testing.T) {
	pool, _ := newCounterPool(0)

	started := make(chan struct{})
	var once sync.Once
	release := make(chan struct{})

	result := make(chan error, 1)
	go func() {
		_, err := pool.Run(SplitRows(pool.Workers(), pool.Workers()), func(*counterState, Tile) error {
			once.Do(func() { close(started) })
			<-release
			return nil
		}, nil)
		result <- err
	}()

	<-started
	closed := make(chan struct{})
	go func() {
		pool.Close()
		close(closed)
	}()
	close(release)

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close() did not return")
	}
	select {
	case <-result:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after Close()")
	}
}

func TestPool_NoGoroutineLeak(t *testing.T) {
	runtime.GC()
	time.Sleep(50 * time.Millisecond)
	baseline := runtime.NumGoroutine()

	for range 5 {
		pool, _ := newCounterPool(4)
		_, _ = pool.Run(SplitRows(16, pool.Workers()), func(*counterState, Tile) error { return nil }, nil)
		pool.Close()
	}

	runtime.GC()
	time.Sleep(100 * time.Millisecond)

	final := runtime.NumGoroutine()
	if final > baseline+2 {
		t.Errorf("goroutine count: baseline=%d, final=%d (leak detected)", baseline, final)
	}
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkPool_Run(b *testing.B) {
	pool, _ := newCounterPool(0)
	defer pool.Close()

	tiles := SplitRows(1080, pool.Workers())
	job := func(s *counterState, tile Tile) error {
		s.rows.Add(int64(tile.RowCount))
		return nil
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, _ = pool.Run(tiles, job, nil)
	}
}
