// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package loader

import "github.com/prometheus/client_golang/prometheus"

const (
	resultOK    = "ok"
	resultError = "error"
)

var queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "theatre_loader_queue_depth",
	Help: "Sprite requests waiting for the shared loader",
})

var busyRetries = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "theatre_loader_busy_retries_total",
	Help: "Times the gate found the loader busy and retried later",
})

var loadsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "theatre_loader_requests_total",
		Help: "Sprite requests served by result",
	},
	[]string{"result"},
)

// RegisterMetrics registers loader metrics with the given Prometheus registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(queueDepth)
	reg.MustRegister(busyRetries)
	reg.MustRegister(loadsTotal)
}
