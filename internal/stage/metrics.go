// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package stage

import "github.com/prometheus/client_golang/prometheus"

const (
	resultApplied = "applied"
	resultNoop    = "noop"
	resultDenied  = "denied"
	resultError   = "error"
)

var operations = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "theatre_stage_operations_total",
	Help: "Scene events applied to the stage by subtype and result",
}, []string{"subtype", "result"})

var activeInserts = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "theatre_stage_inserts",
	Help: "Inserts on stage, excluding those exiting",
})

var reflowsTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "theatre_stage_reflows_total",
	Help: "Dock layout passes",
})

// RegisterMetrics registers stage metrics with the given Prometheus registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(operations)
	reg.MustRegister(activeInserts)
	reg.MustRegister(reflowsTotal)
}
