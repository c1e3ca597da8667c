// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package resync

import "github.com/prometheus/client_golang/prometheus"

var (
	requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "theatre_resync_requests_total",
		Help: "Resync requests sent, by kind.",
	}, []string{"kind"})
	responses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "theatre_resync_responses_total",
		Help: "Resync answers sent, by kind.",
	}, []string{"kind"})
	outcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "theatre_resync_outcomes_total",
		Help: "What became of resync requests and answers received.",
	}, []string{"outcome"})
	applied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "theatre_resync_applied_total",
		Help: "Snapshots fully applied to the stage.",
	})
)

// RegisterMetrics registers resync metrics with the given Prometheus registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(requests)
	reg.MustRegister(responses)
	reg.MustRegister(outcomes)
	reg.MustRegister(applied)
}
