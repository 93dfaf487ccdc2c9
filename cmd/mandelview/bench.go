// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/mandel"
)

type benchOptions struct {
	steps       int
	factor      float64
	detailEvery int
	modes       []string
	timeout     time.Duration
}

// benchStep is one rendered frame of a benchmark run.
type benchStep struct {
	Step       int
	Generation uint64
	Budget     int
	HalfWidth  string
	Elapsed    time.Duration
}

// benchRun is the outcome of the zoom script in one precision mode.
type benchRun struct {
	Mode    mandel.PrecisionMode
	Workers int
	Steps   []benchStep
	Final   []byte
}

func newBenchCmd(opts *rootOptions) *cobra.Command {
	bo := benchOptions{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a headless zoom sequence and report pass timings",
		Long: `Zooms into the configured center step by step, waiting for every frame.
With several --modes the runs execute concurrently and the final frames are compared.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				return err
			}
			log, closer, err := opts.logger(os.Stderr)
			if err != nil {
				return err
			}
			defer closer.Close()
			return runBench(cmd.Context(), cfg, log, cmd.OutOrStdout(), bo)
		},
	}
	f := cmd.Flags()
	f.IntVarP(&bo.steps, "steps", "n", 10, "number of frames")
	f.Float64Var(&bo.factor, "factor", 0.5, "zoom factor between frames")
	f.IntVar(&bo.detailEvery, "detail-every", 0, "double the budget every n frames (0 = never)")
	f.StringSliceVar(&bo.modes, "modes", nil, "precision modes to run (default: the configured one)")
	f.DurationVar(&bo.timeout, "timeout", 5*time.Minute, "abort after this long")
	return cmd
}

func runBench(ctx context.Context, cfg mandel.Config, log *slog.Logger, w io.Writer, bo benchOptions) error {
	if bo.steps < 1 {
		return fmt.Errorf("--steps must be at least 1, got %d", bo.steps)
	}
	modes := []mandel.PrecisionMode{cfg.Precision}
	if len(bo.modes) > 0 {
		modes = modes[:0]
		for _, m := range bo.modes {
			mode, err := mandel.ParsePrecisionMode(m)
			if err != nil {
				return err
			}
			modes = append(modes, mode)
		}
	}
	if bo.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, bo.timeout)
		defer cancel()
	}

	runs := make([]benchRun, len(modes))
	g, ctx := errgroup.WithContext(ctx)
	for i, mode := range modes {
		c := cfg
		c.Precision = mode
		g.Go(func() error {
			run, err := benchScript(ctx, c, log.With("mode", mode), bo)
			runs[i] = run
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, run := range runs {
		fmt.Fprintln(w, benchTable(run))
	}
	for _, run := range runs[1:] {
		if d := diffPixels(runs[0].Final, run.Final); d > 0 {
			printer.Fprintf(w, "%s and %s final frames differ in %d of %d pixels\n",
				runs[0].Mode, run.Mode, d, len(run.Final)/4)
		} else {
			printer.Fprintf(w, "%s and %s final frames are identical\n", runs[0].Mode, run.Mode)
		}
	}
	return nil
}

// benchScript runs the zoom script in one session.
func benchScript(ctx context.Context, cfg mandel.Config, log *slog.Logger, bo benchOptions) (benchRun, error) {
	s, err := mandel.NewSession(cfg, mandel.WithLogger(log))
	if err != nil {
		return benchRun{}, err
	}
	defer s.Close()

	run := benchRun{Mode: cfg.Precision, Workers: s.Workers()}
	for i := range bo.steps {
		if i > 0 {
			s.Zoom(bo.factor)
			if bo.detailEvery > 0 && i%bo.detailEvery == 0 {
				s.IncreaseDetail()
			}
		}
		f, err := s.WaitFrame(ctx)
		if err != nil {
			return run, fmt.Errorf("%s step %d: %w", cfg.Precision, i, err)
		}
		run.Steps = append(run.Steps, benchStep{
			Step:       i,
			Generation: f.Generation,
			Budget:     f.Budget,
			HalfWidth:  f.Viewport.HalfWidth,
			Elapsed:    f.Elapsed,
		})
		run.Final = f.Image.Pix
	}
	return run, nil
}

func benchTable(run benchRun) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("step", "generation", "budget", "half width", "pass")
	var total time.Duration
	for _, st := range run.Steps {
		total += st.Elapsed
		t.Row(
			strconv.Itoa(st.Step),
			printer.Sprintf("%d", st.Generation),
			printer.Sprintf("%d", st.Budget),
			st.HalfWidth,
			st.Elapsed.Round(time.Microsecond).String(),
		)
	}
	title := printer.Sprintf("%s precision, %d workers, %d frames in %v",
		run.Mode, run.Workers, len(run.Steps), total.Round(time.Millisecond))
	return title + "\n" + t.Render()
}

// diffPixels counts the RGBA pixels that differ between a and b.
func diffPixels(a, b []byte) int {
	if len(a) != len(b) {
		return max(len(a), len(b)) / 4
	}
	n := 0
	for i := 0; i+3 < len(a); i += 4 {
		if a[i] != b[i] || a[i+1] != b[i+1] || a[i+2] != b[i+2] || a[i+3] != b[i+3] {
			n++
		}
	}
	return n
}
