// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gogpu/mandel"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	logFile    string

	width     int
	height    int
	workers   int
	budget    int
	precision string
	digits    uint32
	centerX   string
	centerY   string
	halfWidth string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "mandelview",
		Short:         "Explore the Mandelbrot set on every CPU core",
		Version:       mandel.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&opts.logFile, "log-file", "", "write logs to this file instead of stderr")
	pf.IntVar(&opts.width, "width", 0, "raster width in pixels")
	pf.IntVar(&opts.height, "height", 0, "raster height in pixels")
	pf.IntVarP(&opts.workers, "workers", "w", 0, "worker count (0 = one per CPU)")
	pf.IntVarP(&opts.budget, "budget", "b", 0, "initial iteration budget")
	pf.StringVarP(&opts.precision, "precision", "p", "", "precision mode (fixed or arbitrary)")
	pf.Uint32Var(&opts.digits, "digits", 0, "significant digits in arbitrary precision")
	pf.StringVar(&opts.centerX, "center-x", "", "initial viewport center, real part")
	pf.StringVar(&opts.centerY, "center-y", "", "initial viewport center, imaginary part")
	pf.StringVar(&opts.halfWidth, "half-width", "", "initial viewport half width; the half height follows the raster aspect")

	cmd.AddCommand(
		newViewCmd(opts),
		newServeCmd(opts),
		newBenchCmd(opts),
		newConfigCmd(opts),
	)
	return cmd
}

// newConfigCmd prints the effective configuration.
func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				return err
			}
			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

// config loads the config file and applies the flags the user set.
func (o *rootOptions) config(cmd *cobra.Command) (mandel.Config, error) {
	cfg, err := mandel.LoadConfig(o.configPath)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("width") {
		cfg.Width = o.width
	}
	if flags.Changed("height") {
		cfg.Height = o.height
	}
	if flags.Changed("workers") {
		cfg.Workers = o.workers
	}
	if flags.Changed("budget") {
		cfg.IterationBudget = o.budget
	}
	if flags.Changed("precision") {
		mode, err := mandel.ParsePrecisionMode(o.precision)
		if err != nil {
			return cfg, err
		}
		cfg.Precision = mode
	}
	if flags.Changed("digits") {
		cfg.PrecisionDigits = o.digits
	}
	if flags.Changed("center-x") {
		cfg.Viewport.CenterX = o.centerX
	}
	if flags.Changed("center-y") {
		cfg.Viewport.CenterY = o.centerY
	}
	if flags.Changed("half-width") || flags.Changed("width") || flags.Changed("height") {
		if flags.Changed("half-width") {
			cfg.Viewport.HalfWidth = o.halfWidth
		}
		if hh, ok := aspectHalfHeight(cfg.Viewport.HalfWidth, cfg.Width, cfg.Height); ok {
			cfg.Viewport.HalfHeight = hh
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// logger builds the slog logger selected by --log-level and --log-file. When
// no log file is given, logs go to fallback. The returned closer releases
// the file.
func (o *rootOptions) logger(fallback io.Writer) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(o.logLevel))); err != nil {
		return nil, nil, fmt.Errorf("invalid --log-level %q: %w", o.logLevel, err)
	}

	w, closer := fallback, io.Closer(nopCloser{})
	if o.logFile != "" {
		f, err := os.OpenFile(o.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w, closer = f, f
	}

	l := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	return l, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
