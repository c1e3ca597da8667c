// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package ws

import "github.com/prometheus/client_golang/prometheus"

var (
	relayConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "theatre_relay_connections",
		Help: "Peers currently connected to the relay.",
	})
	relayRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "theatre_relay_rejected_total",
		Help: "Handshakes refused by the relay, by reason.",
	}, []string{"reason"})
	relayedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "theatre_relay_envelopes_total",
		Help: "Envelopes read by the relay, by result.",
	}, []string{"result"})
	clientReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "theatre_client_reconnects_total",
		Help: "Websocket sessions established after the first.",
	})
)

func rejected(reason string) {
	relayRejected.WithLabelValues(reason).Inc()
}

// RegisterMetrics registers websocket metrics with the given Prometheus registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(relayConnections)
	reg.MustRegister(relayRejected)
	reg.MustRegister(relayedTotal)
	reg.MustRegister(clientReconnects)
}
