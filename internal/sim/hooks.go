// SPDX-License-Identifier: MIT
package sim

import (
	"context"
	"time"

	"github.com/velomob/scootsim/internal/geo"
	"github.com/velomob/scootsim/internal/metrics"
	"github.com/velomob/scootsim/internal/scooter"
	"github.com/velomob/scootsim/internal/zone"
)

// ScenarioHook runs once per tick after movement and rental handling. A true
// return retires the hook.
type ScenarioHook interface {
	Run(ctx context.Context, s *Simulator, sc *scooter.Scooter) bool
}

// ParkNearestZoneHook relocates a scooter to the nearest zone of the given
// type once it has finished a number of trips, then parks it there for good.
type ParkNearestZoneHook struct {
	RequiredTrips int
	Zone          zone.Type
}

// Run implements ScenarioHook.
func (h *ParkNearestZoneHook) Run(_ context.Context, s *Simulator, sc *scooter.Scooter) bool {
	if s.TripCount(sc.ID) < h.RequiredTrips {
		return false
	}

	centroids := s.City().Centroids(h.Zone)
	if len(centroids) == 0 {
		s.logger.Warn().
			Int("scooter_id", sc.ID).
			Str("zone", string(h.Zone)).
			Str("event", "sim.park_no_zone").
			Msg("no zone of requested type, parking in place")
	} else {
		here := geo.Point{Lat: sc.Lat, Lng: sc.Lng}
		nearest := centroids[0]
		best := geo.DistanceM(here, nearest)
		for _, c := range centroids[1:] {
			if d := geo.DistanceM(here, c); d < best {
				nearest, best = c, d
			}
		}
		sc.Lat, sc.Lng = nearest.Lat, nearest.Lng
	}

	st := s.state[sc.ID]
	st.hasRoute = false
	st.override = StationaryOverride()
	st.lastPos = geo.Point{Lat: sc.Lat, Lng: sc.Lng}

	sc.EndTrip(h.Zone == zone.Charging)

	s.logger.Info().
		Int("scooter_id", sc.ID).
		Str("zone", string(h.Zone)).
		Int("trips", s.TripCount(sc.ID)).
		Str("event", "sim.parked_in_zone").
		Msg("scooter parked in zone after finishing trips")
	return true
}

// BreakdownHook simulates a mechanical failure: after MaxRuntime of wall
// clock time the scooter is flagged needService and stops moving.
type BreakdownHook struct {
	MaxRuntime time.Duration

	started  bool
	deadline time.Time
}

// Run implements ScenarioHook.
func (h *BreakdownHook) Run(ctx context.Context, s *Simulator, sc *scooter.Scooter) bool {
	now := s.Clock().Now()
	if !h.started {
		h.started = true
		h.deadline = now.Add(h.MaxRuntime)
		return false
	}
	if now.Before(h.deadline) {
		return false
	}

	if err := s.deps.Backend.UpdateBikeStatus(ctx, sc.ID, string(scooter.NeedService), sc.Lat, sc.Lng); err != nil {
		s.logger.Warn().
			Err(err).
			Int("scooter_id", sc.ID).
			Str("event", "sim.breakdown_write_failed").
			Msg("breakdown status write failed, retrying next tick")
		metrics.BackendWriteErrorsTotal.WithLabelValues("status").Inc()
		return false
	}

	sc.Status = scooter.NeedService
	st := s.state[sc.ID]
	s.forceCompleteRental(ctx, sc, st, "admin_forced")
	s.addLock(sc, st, lockAdmin)

	s.logger.Info().
		Int("scooter_id", sc.ID).
		Dur("max_runtime", h.MaxRuntime).
		Str("event", "sim.breakdown").
		Msg("scooter broke down and was taken out of service")
	return true
}
