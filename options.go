// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mandel

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Session during creation.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	s, err := mandel.NewSession(cfg,
//	    mandel.WithLogger(logger),
//	    mandel.WithRegisterer(reg),
//	)
type Option func(*options)

// options holds optional configuration for Session creation.
type options struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
	observer   func(PassEvent)
}

// defaultOptions returns the default session options.
func defaultOptions() options {
	return options{
		logger:     nil, // Derived from Logger() if nil
		registerer: nil, // Collectors stay unregistered if nil
	}
}

// WithLogger sets the logger of the session. The session adds its id as a
// "session" attribute. By default the package logger is used.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithRegisterer registers the session metrics with reg.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	s, _ := mandel.NewSession(cfg, mandel.WithRegisterer(reg))
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithPassObserver calls fn after every pass, on the dispatcher goroutine.
// fn must return quickly; a slow observer delays the next pass.
func WithPassObserver(fn func(PassEvent)) Option {
	return func(o *options) {
		o.observer = fn
	}
}
