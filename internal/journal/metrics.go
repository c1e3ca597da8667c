// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package journal

import "github.com/prometheus/client_golang/prometheus"

var recorded = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "theatre_journal_entries_total",
	Help: "Envelopes written to the journal, by direction.",
}, []string{"direction"})

// RegisterMetrics registers journal metrics with the given Prometheus registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(recorded)
}
