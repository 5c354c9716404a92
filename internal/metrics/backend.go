// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BackendWriteErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scootsim_backend_write_errors_total",
		Help: "Failed synchronous backend writes by operation",
	}, []string{"op"}) // op=status|create_rental|complete_rental

	TelemetryErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scootsim_telemetry_errors_total",
		Help: "Failed best-effort telemetry operations by operation",
	}, []string{"op"}) // op=state|coord|completed|clear|load
)
