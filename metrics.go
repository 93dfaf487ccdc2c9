// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package mandel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pass outcomes used as the "result" label and in PassEvent.
const (
	PassCompleted = "completed"
	PassAbandoned = "abandoned"
	PassFailed    = "failed"
)

// metrics holds the per-session collectors. Every collector carries a
// constant "session" label so several sessions can share one registry.
type metrics struct {
	passes       *prometheus.CounterVec
	passDuration prometheus.Histogram
	commands     *prometheus.CounterVec
	budget       prometheus.Gauge
	generation   prometheus.Gauge
}

// newMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func newMetrics(reg prometheus.Registerer, session string) *metrics {
	f := promauto.With(reg)
	labels := prometheus.Labels{"session": session}

	return &metrics{
		passes: f.NewCounterVec(prometheus.CounterOpts{
			Name:        "mandel_passes_total",
			Help:        "Rendering passes by result",
			ConstLabels: labels,
		}, []string{"result"}),

		passDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:        "mandel_pass_duration_seconds",
			Help:        "Wall time of completed rendering passes in seconds",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}),

		commands: f.NewCounterVec(prometheus.CounterOpts{
			Name:        "mandel_commands_total",
			Help:        "Session commands by name, including ignored ones",
			ConstLabels: labels,
		}, []string{"command"}),

		budget: f.NewGauge(prometheus.GaugeOpts{
			Name:        "mandel_iteration_budget",
			Help:        "Current iteration budget",
			ConstLabels: labels,
		}),

		generation: f.NewGauge(prometheus.GaugeOpts{
			Name:        "mandel_generation",
			Help:        "Current render generation",
			ConstLabels: labels,
		}),
	}
}

func (m *metrics) command(name string) {
	m.commands.WithLabelValues(name).Inc()
}

func (m *metrics) pass(result string, seconds float64) {
	m.passes.WithLabelValues(result).Inc()
	if result == PassCompleted {
		m.passDuration.Observe(seconds)
	}
}
