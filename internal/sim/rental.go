// SPDX-License-Identifier: MIT
package sim

import (
	"context"
	"crypto/rand"

	"github.com/velomob/scootsim/internal/backend"
	"github.com/velomob/scootsim/internal/geo"
	"github.com/velomob/scootsim/internal/metrics"
	"github.com/velomob/scootsim/internal/scooter"
	"github.com/velomob/scootsim/internal/telemetry"
)

const rentalIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// newRentalID returns a 10-character provisional rental id. The backend's
// server-assigned id replaces it once the rental is created.
func newRentalID() string {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(err)
	}
	for i, b := range buf {
		buf[i] = rentalIDAlphabet[int(b)%len(rentalIDAlphabet)]
	}
	return string(buf)
}

// handleRentalTick drives the sim-owned rental lifecycle for one tick:
// start when the scooter begins riding, trail while it rides, complete when
// the route closes.
func (s *Simulator) handleRentalTick(ctx context.Context, sc *scooter.Scooter, st *scooterState, prev geo.Point, update MovementUpdate, inCharging bool) {
	if !st.rental.Active && !st.external.Active && st.hasRoute && sc.Status == scooter.Active {
		s.startRental(ctx, sc, st, prev)
	}

	if st.rental.Active && sc.Status == scooter.Active {
		s.logCoord(ctx, st.rental.ID, sc.Lat, sc.Lng, sc.SpeedKMH)
	}

	if update.RouteFinished {
		st.tripCount++
		if st.rental.Active {
			s.finishRental(ctx, sc, st, "route_finished", "")
			if st.pendingBatteryLock || sc.LowBattery() {
				s.applyBatteryLock(ctx, sc, st)
			} else {
				sc.EndTrip(inCharging)
				if !inCharging && st.locks == 0 && !sc.LowBattery() {
					s.writeStatus(ctx, sc, scooter.Available)
				}
			}
		}
	}
}

// startRental opens a new sim-owned rental at the scooter's pre-movement
// position. If the backend rejects the rental the scooter keeps riding
// unrented and retries next tick.
func (s *Simulator) startRental(ctx context.Context, sc *scooter.Scooter, st *scooterState, start geo.Point) {
	user, fromPool := s.users.Draw()
	if !fromPool {
		user = backend.User{ID: 1, Name: "Simulated User"}
	}

	startZone := s.deps.City.ClassifyZone(start.Lat, start.Lng)

	rentalID, err := s.deps.Backend.CreateRental(ctx, user.ID, sc.ID, backend.Point{Lat: start.Lat, Lng: start.Lng}, string(startZone))
	if err != nil {
		s.logger.Warn().
			Err(err).
			Int("scooter_id", sc.ID).
			Int("user_id", user.ID).
			Str("event", "sim.rental_create_failed").
			Msg("backend rejected rental, will retry next tick")
		metrics.BackendWriteErrorsTotal.WithLabelValues("create_rental").Inc()
		if fromPool {
			s.users.Return(user)
		}
		return
	}
	if rentalID == "" {
		rentalID = newRentalID()
	}

	if err := s.deps.Telemetry.ClearCoords(ctx, rentalID); err != nil {
		metrics.TelemetryErrorsTotal.WithLabelValues("clear").Inc()
	}
	s.logCoord(ctx, rentalID, start.Lat, start.Lng, 0)

	st.rental = rental{
		Active:    true,
		ID:        rentalID,
		UserID:    user.ID,
		UserName:  user.Name,
		FromPool:  fromPool,
		StartZone: startZone,
	}
	s.writeStatus(ctx, sc, scooter.Active)
	metrics.RentalsStartedTotal.Inc()

	s.logger.Info().
		Int("scooter_id", sc.ID).
		Str("rental_id", rentalID).
		Int("user_id", user.ID).
		Str("start_zone", string(startZone)).
		Str("event", "sim.rental_started").
		Msg("rental started")
}

// forceCompleteRental ends a sim-owned rental outside the normal
// route-finished path, for admin locks and boundary violations. The reason
// doubles as the recorded end zone so downstream consumers can tell a forced
// completion from a ridden-out trip. Callers own the scooter's status
// afterwards.
func (s *Simulator) forceCompleteRental(ctx context.Context, sc *scooter.Scooter, st *scooterState, reason string) {
	if !st.rental.Active {
		return
	}
	s.finishRental(ctx, sc, st, reason, reason)
}

// finishRental is the shared completion path: close on the backend, publish
// the completed-rental event, return the user, clear the record. Guarded by
// rental.Active so a double completion is a no-op. An empty endZone means
// "classify the current position".
func (s *Simulator) finishRental(ctx context.Context, sc *scooter.Scooter, st *scooterState, reason, endZone string) {
	if !st.rental.Active {
		return
	}
	r := st.rental
	st.rental = rental{}

	if endZone == "" {
		endZone = string(s.deps.City.ClassifyZone(sc.Lat, sc.Lng))
	}

	coords, err := s.deps.Telemetry.LoadCoords(ctx, r.ID)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("rental_id", r.ID).
			Str("event", "sim.rental_coords_failed").
			Msg("could not load rental trail")
		metrics.TelemetryErrorsTotal.WithLabelValues("load").Inc()
	}
	if len(coords) == 0 {
		coords = []telemetry.Coord{{Lat: sc.Lat, Lng: sc.Lng, Speed: 0}}
	}
	// The trail ends standing still regardless of how the rental ended.
	coords[len(coords)-1].Speed = 0

	endPoint := backend.Point{Lat: sc.Lat, Lng: sc.Lng}
	if err := s.deps.Backend.CompleteRental(ctx, r.ID, endPoint, endZone, coords); err != nil {
		s.logger.Warn().
			Err(err).
			Str("rental_id", r.ID).
			Str("event", "sim.rental_complete_failed").
			Msg("backend rental completion failed")
		metrics.BackendWriteErrorsTotal.WithLabelValues("complete_rental").Inc()
	}

	if err := s.deps.Telemetry.PublishCompleted(ctx, telemetry.CompletedRental{
		RentalID:  r.ID,
		ScooterID: sc.ID,
		Coords:    coords,
		UserID:    r.UserID,
		UserName:  r.UserName,
		StartZone: string(r.StartZone),
		EndZone:   endZone,
	}); err != nil {
		s.logger.Warn().
			Err(err).
			Str("rental_id", r.ID).
			Str("event", "sim.rental_publish_failed").
			Msg("completed rental publish failed")
		metrics.TelemetryErrorsTotal.WithLabelValues("completed").Inc()
	}

	if r.FromPool {
		s.users.Return(backend.User{ID: r.UserID, Name: r.UserName})
	}

	metrics.RentalsCompletedTotal.WithLabelValues(reason).Inc()
	s.logger.Info().
		Int("scooter_id", sc.ID).
		Str("rental_id", r.ID).
		Str("end_zone", endZone).
		Str("reason", reason).
		Str("event", "sim.rental_completed").
		Msg("rental completed")
}
