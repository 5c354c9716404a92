// SPDX-License-Identifier: MIT
package sim

import (
	"context"
	"math/rand"

	"github.com/velomob/scootsim/internal/geo"
	"github.com/velomob/scootsim/internal/scooter"
	"github.com/velomob/scootsim/internal/zone"
)

// stationaryJitterDeg is the coordinate spread applied when dropping several
// scooters on the same zone centroid, roughly three meters.
const stationaryJitterDeg = 0.000030

// SpreadFractions returns n route fractions that spread scooters evenly over
// a polyline: endpoints first, then binary subdivision, so any prefix of the
// result is itself well spread.
func SpreadFractions(n int) []float64 {
	fractions := make([]float64, 0, n)
	if n > 0 {
		fractions = append(fractions, 0)
	}
	if n > 1 {
		fractions = append(fractions, 1)
	}
	for denom := 2; len(fractions) < n; denom *= 2 {
		for num := 1; num < denom && len(fractions) < n; num += 2 {
			fractions = append(fractions, float64(num)/float64(denom))
		}
	}
	return fractions
}

// RouteEntryPoint resolves a fraction of a route's total arc length to a
// concrete position plus the waypoint index to head for next.
func RouteEntryPoint(route []geo.Point, fraction float64) (geo.Point, int) {
	if len(route) == 0 {
		return geo.Point{}, 0
	}
	if len(route) == 1 || fraction <= 0 {
		return route[0], 0
	}

	cumulative, total := geo.CumulativeDistancesM(route)
	if fraction >= 1 || total == 0 {
		return route[len(route)-1], len(route) - 1
	}

	target := fraction * total
	for i := 1; i < len(route); i++ {
		if cumulative[i] < target {
			continue
		}
		segment := cumulative[i] - cumulative[i-1]
		if segment == 0 {
			return route[i], i
		}
		along := (target - cumulative[i-1]) / segment
		return geo.Lerp(route[i-1], route[i], along), i
	}
	return route[len(route)-1], len(route) - 1
}

// SeedBatch describes a group of scooters placed along one registered route.
type SeedBatch struct {
	RouteID int
	Count   int
	Battery float64
	// Hook optionally builds a fresh scenario hook per scooter.
	Hook func() ScenarioHook
}

// SeedRouteBatch creates Count scooters spread along the batch's route,
// activates them on the backend and registers them with the simulator. IDs
// are assigned sequentially from firstID; the next free id is returned.
func (s *Simulator) SeedRouteBatch(ctx context.Context, firstID int, batch SeedBatch) int {
	route := s.routes[batch.RouteID]
	if len(route) == 0 {
		s.logger.Warn().
			Int("route_id", batch.RouteID).
			Str("event", "sim.seed_unknown_route").
			Msg("skipping batch for unknown or empty route")
		return firstID
	}

	id := firstID
	for _, fraction := range SpreadFractions(batch.Count) {
		pos, next := RouteEntryPoint(route, fraction)

		battery := batch.Battery
		if battery <= 0 {
			battery = 100
		}
		sc := scooter.New(id, pos.Lat, pos.Lng, battery, s.opts.ScooterParams)
		sc.Status = scooter.Available

		s.writeStatus(ctx, sc, scooter.Available)

		var hook ScenarioHook
		if batch.Hook != nil {
			hook = batch.Hook()
		}
		s.Register(sc, RegisterOptions{
			RouteID:       batch.RouteID,
			HasRoute:      true,
			WaypointIndex: next,
			Hook:          hook,
		})
		id++
	}

	s.logger.Info().
		Int("route_id", batch.RouteID).
		Int("count", batch.Count).
		Int("first_id", firstID).
		Str("event", "sim.batch_seeded").
		Msg("route batch seeded")
	return id
}

// SeedStationary drops count parked scooters on each centroid of the given
// zone type, round robin, with a small deterministic jitter so they do not
// stack on one coordinate. Scooters in charging zones start charging.
func (s *Simulator) SeedStationary(ctx context.Context, firstID int, zoneType zone.Type, count int, battery float64, seed int64) int {
	centroids := s.deps.City.Centroids(zoneType)
	if len(centroids) == 0 {
		s.logger.Warn().
			Str("zone", string(zoneType)).
			Str("event", "sim.seed_no_zone").
			Msg("skipping stationary seeding, no zones of requested type")
		return firstID
	}

	rng := rand.New(rand.NewSource(seed))
	id := firstID
	for i := 0; i < count; i++ {
		c := centroids[i%len(centroids)]
		lat := c.Lat + (rng.Float64()*2-1)*stationaryJitterDeg
		lng := c.Lng + (rng.Float64()*2-1)*stationaryJitterDeg

		if battery <= 0 {
			battery = 100
		}
		sc := scooter.New(id, lat, lng, battery, s.opts.ScooterParams)

		status := scooter.Available
		if zoneType == zone.Charging {
			status = scooter.Charging
		}
		sc.Status = status
		s.writeStatus(ctx, sc, status)

		s.Register(sc, RegisterOptions{Override: StationaryOverride()})
		id++
	}

	s.logger.Info().
		Str("zone", string(zoneType)).
		Int("count", count).
		Int("first_id", firstID).
		Str("event", "sim.stationary_seeded").
		Msg("stationary scooters seeded")
	return id
}
