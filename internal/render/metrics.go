// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package render

import "github.com/prometheus/client_golang/prometheus"

var accumulator = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "theatre_render_accumulator",
	Help: "Outstanding animations keeping the frame loop alive",
})

var framesRendered = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "theatre_render_frames_total",
	Help: "Frames rendered",
})

var hotEjects = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "theatre_render_hot_ejects_total",
	Help: "Inserts ejected because their render node went missing",
})

// RegisterMetrics registers render metrics with the given Prometheus registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(accumulator)
	reg.MustRegister(framesRendered)
	reg.MustRegister(hotEjects)
}
