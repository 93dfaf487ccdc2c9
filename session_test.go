// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mandel

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"math"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gogpu/mandel/internal/parallel"
)

// =============================================================================
// Helpers
// =============================================================================

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 64
	cfg.Height = 40
	cfg.Workers = 2
	cfg.IterationBudget = 50
	return cfg
}

func newTestSession(t *testing.T, cfg Config, opts ...Option) *Session {
	t.Helper()
	s, err := NewSession(cfg, opts...)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func waitFrame(t *testing.T, s *Session) *Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	f, err := s.WaitFrame(ctx)
	if err != nil {
		t.Fatalf("WaitFrame() error = %v", err)
	}
	return f
}

func parseFloat(t *testing.T, s string) float64 {
	t.Helper()
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		t.Fatalf("ParseFloat(%q) error = %v", s, err)
	}
	return f
}

func near(a, b float64) bool { return math.Abs(a-b) <= 1e-12 }

// =============================================================================
// Construction
// =============================================================================

func TestNewSession_InvalidConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.Width = 0
	if _, err := NewSession(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewSession(width 0) error = %v, want ErrInvalidConfig", err)
	}
}

func TestSession_InitialFrameIsBackground(t *testing.T) {
	cfg := smallConfig()
	cfg.Background = "#203040"
	s := newTestSession(t, cfg)

	f := s.CurrentSurface()
	if f == nil || f.Image == nil {
		t.Fatal("CurrentSurface() returned no frame")
	}
	if b := f.Image.Bounds(); b.Dx() != 64 || b.Dy() != 40 {
		t.Errorf("frame size = %v, want 64x40", b)
	}
	if f.Generation == 0 {
		if c := f.Image.RGBAAt(0, 0); c != (color.RGBA{0x20, 0x30, 0x40, 0xff}) {
			t.Errorf("initial pixel = %v, want background", c)
		}
	}
	if s.Background() != (color.RGBA{0x20, 0x30, 0x40, 0xff}) {
		t.Errorf("Background() = %v", s.Background())
	}
	if s.ID() == "" {
		t.Error("ID() is empty")
	}
	if s.Width() != 64 || s.Height() != 40 {
		t.Errorf("raster = %dx%d", s.Width(), s.Height())
	}
	if s.Workers() < 1 {
		t.Errorf("Workers() = %d", s.Workers())
	}
}

func TestSession_FirstPass(t *testing.T) {
	s := newTestSession(t, smallConfig())

	if s.Generation() != 1 {
		t.Errorf("Generation() = %d, want 1 after start", s.Generation())
	}
	f := waitFrame(t, s)
	if f.Generation != 1 {
		t.Errorf("frame generation = %d, want 1", f.Generation)
	}
	if f.Budget != 50 {
		t.Errorf("frame budget = %d, want 50", f.Budget)
	}
	if parseFloat(t, f.Viewport.CenterX) != -0.6 {
		t.Errorf("frame viewport = %+v", f.Viewport)
	}
	if s.CurrentSurface() != f {
		t.Error("CurrentSurface() is not the published frame")
	}
	if s.Err() != nil {
		t.Errorf("Err() = %v", s.Err())
	}

	st := s.Stats()
	if st.PassesCompleted < 1 || st.PassesFailed != 0 {
		t.Errorf("Stats() = %+v", st)
	}
	if st.Budget != 50 || st.Generation != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

// =============================================================================
// Scenarios
// =============================================================================

func TestSession_ScenarioCenterInSet(t *testing.T) {
	for _, mode := range []PrecisionMode{PrecisionFixed, PrecisionArbitrary} {
		t.Run(mode.String(), func(t *testing.T) {
			cfg := smallConfig()
			cfg.Width, cfg.Height = 100, 100
			cfg.Precision = mode
			cfg.Viewport = ViewportConfig{CenterX: "-0.5", CenterY: "0", HalfWidth: "1.6", HalfHeight: "1.0"}
			s := newTestSession(t, cfg)

			p, err := s.PixelToPlane(50, 50)
			if err != nil {
				t.Fatal(err)
			}
			if !near(parseFloat(t, p.X), -0.5) || !near(parseFloat(t, p.Y), 0) {
				t.Errorf("PixelToPlane(50, 50) = %+v, want (-0.5, 0)", p)
			}

			f := waitFrame(t, s)
			if c := f.Image.RGBAAt(50, 50); c != s.Background() {
				t.Errorf("pixel (50, 50) = %v, want background", c)
			}
			if c := f.Image.RGBAAt(0, 0); c == s.Background() {
				t.Error("pixel (0, 0) lies outside radius 2 and should be colored")
			}
		})
	}
}

func TestSession_ArbitraryDefaultViewport(t *testing.T) {
	cfg := smallConfig()
	cfg.Precision = PrecisionArbitrary
	s := newTestSession(t, cfg)

	f := waitFrame(t, s)
	if f.Generation != 1 {
		t.Errorf("frame generation = %d, want 1", f.Generation)
	}
	if err := s.Err(); err != nil {
		t.Errorf("Err() = %v", err)
	}
	// Steps are exactly 0.05, so pixel (44, 20) is the origin.
	p, err := s.PixelToPlane(44, 20)
	if err != nil {
		t.Fatal(err)
	}
	if parseFloat(t, p.X) != 0 || parseFloat(t, p.Y) != 0 {
		t.Errorf("PixelToPlane(44, 20) = %+v, want the origin", p)
	}
	if c := f.Image.RGBAAt(44, 20); c != s.Background() {
		t.Errorf("origin pixel = %v, want background", c)
	}
}

func TestSession_ArbitraryRealAxisHighBudget(t *testing.T) {
	// A thin strip keeps the decimal pass short while row 1 still lies on
	// the real axis and column 50 on -0.5.
	cfg := smallConfig()
	cfg.Width, cfg.Height = 100, 2
	cfg.Precision = PrecisionArbitrary
	cfg.Viewport = ViewportConfig{CenterX: "-0.5", CenterY: "0", HalfWidth: "1.6", HalfHeight: "0.01"}
	s := newTestSession(t, cfg)

	for range 5 {
		s.IncreaseDetail()
	}
	if s.Budget() != 1600 {
		t.Fatalf("Budget() = %d, want 1600", s.Budget())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	f, err := s.WaitFrame(ctx)
	if err != nil {
		t.Fatalf("WaitFrame() error = %v", err)
	}
	if f.Budget != 1600 {
		t.Errorf("frame budget = %d, want 1600", f.Budget)
	}
	p, err := s.PixelToPlane(50, 1)
	if err != nil {
		t.Fatal(err)
	}
	if parseFloat(t, p.X) != -0.5 || parseFloat(t, p.Y) != 0 {
		t.Errorf("PixelToPlane(50, 1) = %+v, want (-0.5, 0)", p)
	}
	if c := f.Image.RGBAAt(50, 1); c != s.Background() {
		t.Errorf("pixel (50, 1) = %v, want background", c)
	}
}

func TestSession_ZoomOverflowIgnored(t *testing.T) {
	s := newTestSession(t, smallConfig())
	waitFrame(t, s)
	gen := s.Generation()

	s.Zoom(1e308)
	s.Zoom(1e308)

	if s.Generation() != gen {
		t.Errorf("Generation() = %d, want %d after overflowing zooms", s.Generation(), gen)
	}
	v := s.Viewport()
	if w := parseFloat(t, v.HalfWidth); math.IsInf(w, 0) || w != 1.6 {
		t.Errorf("half width = %v, want 1.6", w)
	}
	p, err := s.PixelToPlane(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if x := parseFloat(t, p.X); math.IsNaN(x) || math.IsInf(x, 0) {
		t.Errorf("PixelToPlane(0, 0) = %+v, want a finite point", p)
	}
	if err := s.Err(); err != nil {
		t.Errorf("Err() = %v", err)
	}
}

func TestSession_ZoomTwice(t *testing.T) {
	s := newTestSession(t, smallConfig())
	before := s.Viewport()

	s.ZoomIn()
	s.ZoomIn()

	after := s.Viewport()
	if after.CenterX != before.CenterX || after.CenterY != before.CenterY {
		t.Errorf("center moved: %+v -> %+v", before, after)
	}
	if got := parseFloat(t, after.HalfWidth); !near(got, 1.6*0.81) {
		t.Errorf("half width = %v, want %v", got, 1.6*0.81)
	}
	if got := parseFloat(t, after.HalfHeight); !near(got, 0.81) {
		t.Errorf("half height = %v, want 0.81", got)
	}
	if s.Generation() != 3 {
		t.Errorf("Generation() = %d, want 3", s.Generation())
	}

	f := waitFrame(t, s)
	if f.Generation < 3 {
		t.Errorf("frame generation = %d, want >= 3", f.Generation)
	}

	s.ZoomOut()
	if got := parseFloat(t, s.Viewport().HalfWidth); !near(got, 1.6*0.9) {
		t.Errorf("half width after ZoomOut = %v, want %v", got, 1.6*0.9)
	}
}

func TestSession_ArbitraryZoomIsExact(t *testing.T) {
	cfg := smallConfig()
	cfg.Precision = PrecisionArbitrary
	s := newTestSession(t, cfg)

	s.Zoom(0.9)
	s.Zoom(0.9)
	if got := s.Viewport().HalfWidth; got != "1.296" {
		t.Errorf("half width = %q, want 1.296", got)
	}
}

func TestSession_IncreaseDetail(t *testing.T) {
	cfg := smallConfig()
	cfg.IterationBudget = 100
	s := newTestSession(t, cfg)

	s.IncreaseDetail()
	if s.Budget() != 200 {
		t.Fatalf("Budget() = %d, want 200", s.Budget())
	}
	f := waitFrame(t, s)
	if f.Budget != 200 {
		t.Errorf("frame budget = %d, want 200", f.Budget)
	}
}

func TestSession_IncreaseDetailCapped(t *testing.T) {
	cfg := smallConfig()
	cfg.Width, cfg.Height = 4, 4
	cfg.IterationBudget = MaxIterationBudget
	// Everything escapes at once, so the huge budget costs nothing.
	cfg.Viewport = ViewportConfig{CenterX: "10", CenterY: "10", HalfWidth: "1", HalfHeight: "1"}
	s := newTestSession(t, cfg)

	gen := s.Generation()
	s.IncreaseDetail()
	if s.Budget() != MaxIterationBudget || s.Generation() != gen {
		t.Errorf("IncreaseDetail past the cap changed state: budget %d gen %d", s.Budget(), s.Generation())
	}
}

func TestSession_Recenter(t *testing.T) {
	s := newTestSession(t, smallConfig())

	s.Recenter(PlanePoint{X: "-0.75", Y: "0.1"})
	v := s.Viewport()
	if v.CenterX != "-0.75" || v.CenterY != "0.1" {
		t.Errorf("center = (%s, %s), want (-0.75, 0.1)", v.CenterX, v.CenterY)
	}
	if parseFloat(t, v.HalfWidth) != 1.6 {
		t.Errorf("half width changed: %s", v.HalfWidth)
	}
}

func TestSession_RecenterAt(t *testing.T) {
	s := newTestSession(t, smallConfig())

	want, err := s.PixelToPlane(10, 5)
	if err != nil {
		t.Fatal(err)
	}
	s.RecenterAt(10, 5)

	v := s.Viewport()
	if v.CenterX != want.X || v.CenterY != want.Y {
		t.Errorf("center = (%s, %s), want (%s, %s)", v.CenterX, v.CenterY, want.X, want.Y)
	}

	// The raster center now maps back onto the new center.
	p, err := s.PixelToPlane(32, 20)
	if err != nil {
		t.Fatal(err)
	}
	if !near(parseFloat(t, p.X), parseFloat(t, want.X)) || !near(parseFloat(t, p.Y), parseFloat(t, want.Y)) {
		t.Errorf("PixelToPlane(center) = %+v, want %+v", p, want)
	}
}

// =============================================================================
// Ignored commands
// =============================================================================

func TestSession_InvalidCommandsAreNoOps(t *testing.T) {
	s := newTestSession(t, smallConfig())
	gen := s.Generation()
	view := s.Viewport()

	s.Zoom(0)
	s.Zoom(-2)
	s.Zoom(math.NaN())
	s.Zoom(math.Inf(1))
	s.Recenter(PlanePoint{X: "left", Y: "0"})
	s.Recenter(PlanePoint{X: "0", Y: "NaN"})
	s.RecenterAt(-1, 0)
	s.RecenterAt(64, 0)
	s.RecenterAt(0, 40)

	if s.Generation() != gen {
		t.Errorf("Generation() = %d, want %d", s.Generation(), gen)
	}
	if s.Viewport() != view {
		t.Errorf("Viewport() = %+v, want %+v", s.Viewport(), view)
	}
	if _, err := s.PixelToPlane(64, 0); !errors.Is(err, ErrOutOfRaster) {
		t.Errorf("PixelToPlane(64, 0) error = %v, want ErrOutOfRaster", err)
	}
}

func TestSession_CommandsAfterCloseAreDropped(t *testing.T) {
	s, err := NewSession(smallConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	gen := s.Generation()

	s.ZoomIn()
	s.Recenter(PlanePoint{X: "0", Y: "0"})
	s.IncreaseDetail()

	if s.Generation() != gen {
		t.Errorf("Generation() = %d after Close, want %d", s.Generation(), gen)
	}
	if _, err := s.PixelToPlane(0, 0); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("PixelToPlane() after Close error = %v, want ErrSessionClosed", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if s.CurrentSurface() == nil {
		t.Error("CurrentSurface() after Close should keep the last frame")
	}
}

// =============================================================================
// Frames and failures
// =============================================================================

func TestSession_FailedPassKeepsLastFrame(t *testing.T) {
	s := newTestSession(t, smallConfig())
	good := waitFrame(t, s)

	boom := errors.New("boom")
	s.onPass(passInfo{PassResult: parallel.PassResult{Generation: good.Generation, Err: boom}})

	if !errors.Is(s.Err(), boom) {
		t.Errorf("Err() = %v, want boom", s.Err())
	}
	if s.CurrentSurface() != good {
		t.Error("a failed pass replaced the last good frame")
	}
	if st := s.Stats(); st.PassesFailed != 1 {
		t.Errorf("PassesFailed = %d, want 1", st.PassesFailed)
	}
}

func TestSession_BackendsAgree(t *testing.T) {
	render := func(mode PrecisionMode) []byte {
		cfg := smallConfig()
		cfg.Width, cfg.Height = 16, 16
		cfg.IterationBudget = 5
		cfg.Precision = mode
		cfg.Viewport = ViewportConfig{CenterX: "0", CenterY: "0", HalfWidth: "2", HalfHeight: "2"}
		s := newTestSession(t, cfg)
		return waitFrame(t, s).Image.Pix
	}
	if !bytes.Equal(render(PrecisionFixed), render(PrecisionArbitrary)) {
		t.Error("fixed and arbitrary sessions rendered different frames")
	}
}

func TestSession_PrecisionExhausted(t *testing.T) {
	deep := ViewportConfig{CenterX: "1", CenterY: "0", HalfWidth: "1e-15", HalfHeight: "1e-15"}

	cfg := smallConfig()
	cfg.Viewport = deep
	s := newTestSession(t, cfg)
	if !s.Stats().PrecisionExhausted {
		t.Error("fixed precision at half width 1e-15 should be exhausted")
	}

	cfg.Precision = PrecisionArbitrary
	a := newTestSession(t, cfg)
	if a.Stats().PrecisionExhausted {
		t.Error("arbitrary precision should never report exhaustion")
	}

	shallow := newTestSession(t, smallConfig())
	if shallow.Stats().PrecisionExhausted {
		t.Error("default view should not be exhausted")
	}
}

// =============================================================================
// Options
// =============================================================================

func TestSession_PassObserver(t *testing.T) {
	events := make(chan PassEvent, 16)
	s := newTestSession(t, smallConfig(), WithPassObserver(func(ev PassEvent) {
		select {
		case events <- ev:
		default:
		}
	}))
	waitFrame(t, s)

	select {
	case ev := <-events:
		if ev.Generation != 1 || ev.Result != PassCompleted || ev.Err != nil {
			t.Errorf("event = %+v, want completed generation 1", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("observer was not called")
	}
}

func TestSession_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := newTestSession(t, smallConfig(), WithRegisterer(reg))
	waitFrame(t, s)

	s.Zoom(0)
	s.ZoomIn()

	if got := testutil.ToFloat64(s.metrics.commands.WithLabelValues("zoom")); got != 2 {
		t.Errorf("zoom commands = %v, want 2", got)
	}
	if got := testutil.ToFloat64(s.metrics.passes.WithLabelValues(PassCompleted)); got < 1 {
		t.Errorf("completed passes = %v, want >= 1", got)
	}
	if got := testutil.ToFloat64(s.metrics.generation); got != 2 {
		t.Errorf("generation gauge = %v, want 2", got)
	}

	// A second session registers alongside the first.
	other := newTestSession(t, smallConfig(), WithRegisterer(reg))
	waitFrame(t, other)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	joined := strings.Join(names, ",")
	for _, want := range []string{"mandel_passes_total", "mandel_iteration_budget", "mandel_generation"} {
		if !strings.Contains(joined, want) {
			t.Errorf("registry is missing %s: %s", want, joined)
		}
	}
}

func TestSession_WithLogger(t *testing.T) {
	var buf syncBuffer
	l := newTestLogger(&buf)
	s := newTestSession(t, smallConfig(), WithLogger(l))
	waitFrame(t, s)
	s.Zoom(-1)
	_ = s.Close()

	out := buf.String()
	for _, want := range []string{"session started", "pass completed", "command ignored", "session stopped", s.ID()} {
		if !strings.Contains(out, want) {
			t.Errorf("log output is missing %q:\n%s", want, out)
		}
	}
}
