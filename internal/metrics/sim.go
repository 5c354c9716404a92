// SPDX-License-Identifier: MIT

// Package metrics registers the simulator's Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scootsim_tick_duration_seconds",
		Help:    "Wall-clock time spent processing one simulation tick",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scootsim_ticks_total",
		Help: "Total number of simulation ticks processed",
	})

	ScootersRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scootsim_scooters_registered",
		Help: "Number of scooters registered in the simulator",
	})

	ScootersDeactivated = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scootsim_scooters_deactivated",
		Help: "Number of scooters currently held by any lock",
	})

	RentalsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scootsim_rentals_started_total",
		Help: "Total number of simulator-owned rentals started",
	})

	RentalsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scootsim_rentals_completed_total",
		Help: "Total number of simulator-owned rentals completed by end reason",
	}, []string{"reason"}) // reason=route_finished|admin_forced|outofbounds
)
