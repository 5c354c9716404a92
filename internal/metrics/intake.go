// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IntakeEnqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scootsim_intake_enqueued_total",
		Help: "Events accepted into the intake queues by queue",
	}, []string{"queue"}) // queue=admin|rental

	IntakeDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scootsim_intake_dropped_total",
		Help: "Events dropped before or during a drain by queue and reason",
	}, []string{"queue", "reason"}) // reason=malformed|unknown_type|unknown_scooter|superseded
)

// IncIntakeDrop records one dropped intake entry.
func IncIntakeDrop(queue, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	IntakeDroppedTotal.WithLabelValues(queue, reason).Inc()
}
