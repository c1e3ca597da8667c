// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package transport

import "github.com/prometheus/client_golang/prometheus"

var (
	connectedPeers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "theatre_transport_peers",
		Help: "Peers joined to in-process hubs.",
	})
	deliveredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "theatre_transport_delivered_total",
		Help: "Envelopes delivered to a peer buffer.",
	})
	droppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "theatre_transport_dropped_total",
		Help: "Envelopes dropped because a peer buffer was full.",
	})
)

// RegisterMetrics registers transport metrics with the given Prometheus registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(connectedPeers)
	reg.MustRegister(deliveredTotal)
	reg.MustRegister(droppedTotal)
}
