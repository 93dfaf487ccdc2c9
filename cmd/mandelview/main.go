// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command mandelview explores the Mandelbrot set.
//
// Usage:
//
//	mandelview view  [flags]   interactive viewer in the terminal
//	mandelview serve [flags]   viewer in the browser over a websocket
//	mandelview bench [flags]   headless zoom sequence with timings
//
// Every subcommand reads an optional YAML config file (--config); flags
// override its values.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
