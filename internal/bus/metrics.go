// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bus

import "github.com/prometheus/client_golang/prometheus"

var (
	published = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "theatre_bus_published_total",
		Help: "Envelopes published by this peer.",
	}, []string{"type", "subtype"})
	received = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "theatre_bus_received_total",
		Help: "Envelopes received from other peers.",
	}, []string{"type", "subtype"})
	dispatchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "theatre_bus_dispatch_failures_total",
		Help: "Received envelopes that could not be decoded or applied.",
	}, []string{"type"})
)

// RegisterMetrics registers bus metrics with the given Prometheus registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(published)
	reg.MustRegister(received)
	reg.MustRegister(dispatchFailures)
}
