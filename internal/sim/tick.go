// SPDX-License-Identifier: MIT
package sim

import (
	"context"
	"math"

	"github.com/velomob/scootsim/internal/geo"
	"github.com/velomob/scootsim/internal/metrics"
	"github.com/velomob/scootsim/internal/scooter"
	"github.com/velomob/scootsim/internal/telemetry"
	"github.com/velomob/scootsim/internal/zone"
)

// Tick advances the whole fleet by one step. Queued admin overrides are
// applied first, then external rental events, then every scooter in
// registration order.
func (s *Simulator) Tick(ctx context.Context) {
	started := s.clock.Now()

	for _, update := range s.intake.DrainAdmin() {
		s.applyAdminUpdate(ctx, update)
	}
	for _, event := range s.intake.DrainRental() {
		s.applyRentalEvent(ctx, event)
	}

	for _, id := range s.order {
		s.tickScooter(ctx, s.scooters[id], s.state[id])
	}

	metrics.TicksTotal.Inc()
	metrics.TickDuration.Observe(s.clock.Since(started).Seconds())
}

// applyAdminUpdate applies one drained admin status override.
func (s *Simulator) applyAdminUpdate(ctx context.Context, update AdminUpdate) {
	sc, ok := s.scooters[update.ScooterID]
	if !ok {
		s.logger.Warn().
			Int("scooter_id", update.ScooterID).
			Str("event", "sim.admin_unknown_scooter").
			Msg("dropping admin update for unknown scooter")
		metrics.IncIntakeDrop("admin", "unknown_scooter")
		return
	}
	st := s.state[update.ScooterID]

	logger := s.logger.With().
		Int("scooter_id", sc.ID).
		Str("new_status", string(update.Status)).
		Logger()

	// An admin cannot free a scooter that is mid-rental; the premature
	// backend write is rolled back with the previous status.
	if update.Status == scooter.Available && (st.rental.Active || st.external.Active) {
		logger.Warn().
			Str("event", "sim.admin_available_rejected").
			Msg("rejecting available while a rental is active, rolling back")
		s.writeStatus(ctx, sc, sc.Status)
		return
	}

	s.writeStatus(ctx, sc, update.Status)

	switch update.Status {
	case scooter.Deactivated, scooter.NeedService, scooter.OnService:
		sc.Status = update.Status
		s.forceCompleteRental(ctx, sc, st, "admin_forced")
		s.addLock(sc, st, lockAdmin)
		logger.Info().Str("event", "sim.admin_locked").Msg("scooter locked by admin")

	case scooter.Available:
		sc.Status = scooter.Available
		s.clearLocks(st)
		st.pendingBatteryLock = false
		st.chargingMemo = ""
		logger.Info().Str("event", "sim.admin_released").Msg("scooter released by admin")

	default:
		sc.Status = update.Status
		s.removeLock(st, lockAdmin)
	}
}

// applyRentalEvent applies one drained external rental lifecycle event.
func (s *Simulator) applyRentalEvent(ctx context.Context, event RentalEvent) {
	sc, ok := s.scooters[event.ScooterID]
	if !ok {
		s.logger.Warn().
			Int("scooter_id", event.ScooterID).
			Str("event", "sim.rental_unknown_scooter").
			Msg("dropping rental event for unknown scooter")
		metrics.IncIntakeDrop("rental", "unknown_scooter")
		return
	}
	st := s.state[event.ScooterID]

	logger := s.logger.With().
		Int("scooter_id", sc.ID).
		Str("rental_id", event.RentalID).
		Logger()

	switch event.Type {
	case RentalEventStarted:
		// A scooter never carries a sim rental and an external rental at
		// once; the backend cannot rent out a bike that is already rented.
		if st.rental.Active {
			logger.Warn().
				Str("event", "sim.external_rental_conflict").
				Msg("dropping external rental start, sim rental is active")
			metrics.IncIntakeDrop("rental", "conflict")
			return
		}

		st.external = externalRental{
			Active:   true,
			ID:       event.RentalID,
			UserID:   event.UserID,
			UserName: event.UserName,
		}

		// Start the trail clean.
		if err := s.deps.Telemetry.ClearCoords(ctx, event.RentalID); err != nil {
			metrics.TelemetryErrorsTotal.WithLabelValues("clear").Inc()
		}
		s.logCoord(ctx, event.RentalID, sc.Lat, sc.Lng, 0)

		if sc.Status.Rentable() && st.locks == 0 {
			sc.Status = scooter.Active
		}
		logger.Info().Str("event", "sim.external_rental_started").Msg("external rental started")

	case RentalEventEnded:
		if st.external.ID != "" && st.external.ID != event.RentalID {
			logger.Warn().
				Str("expected_rental_id", st.external.ID).
				Str("event", "sim.external_rental_mismatch").
				Msg("external rental ended with mismatched id, ending anyway")
		}
		st.external = externalRental{}

		if st.pendingBatteryLock || sc.LowBattery() {
			s.applyBatteryLock(ctx, sc, st)
		} else if st.locks == 0 && sc.Status.Rentable() {
			sc.Status = scooter.Available
		}
		logger.Info().Str("event", "sim.external_rental_ended").Msg("external rental ended")

	default:
		logger.Warn().
			Str("type", event.Type).
			Str("event", "sim.rental_unknown_type").
			Msg("dropping rental event of unknown type")
		metrics.IncIntakeDrop("rental", "unknown_type")
	}
}

// tickScooter runs the full per-scooter pipeline for one tick.
func (s *Simulator) tickScooter(ctx context.Context, sc *scooter.Scooter, st *scooterState) {
	// Battery pre-check: a drained scooter locks in place unless a rental
	// is underway, in which case the lock is deferred to the rental's end.
	if sc.LowBattery() && st.locks == 0 {
		if st.rental.Active || st.external.Active || sc.Status == scooter.Active {
			st.pendingBatteryLock = true
		} else {
			s.applyBatteryLock(ctx, sc, st)
		}
	}

	// External rentals park the simulated movement entirely: the real rider
	// moves the bike, the simulator just records and publishes.
	if st.external.Active {
		inCharging := s.deps.City.IsInside(sc.Lat, sc.Lng, zone.Charging)
		s.syncChargingStatus(ctx, sc, st, inCharging)
		sc.Tick(scooter.Active, 0, inCharging, s.opts.UpdateInterval)
		s.logCoord(ctx, st.external.ID, sc.Lat, sc.Lng, sc.SpeedKMH)
		st.lastPos.Lat, st.lastPos.Lng = sc.Lat, sc.Lng
		s.publishState(ctx, sc, inCharging)
		return
	}

	prev := st.lastPos

	update := s.resolveMovement(sc, st)
	sc.Lat, sc.Lng = update.Lat, update.Lng

	z := s.deps.City.ClassifyZone(sc.Lat, sc.Lng)

	// Leaving every polygon deactivates the scooter, once.
	if z == zone.OutOfBounds {
		sc.Status = scooter.Deactivated
		if !st.locks.has(lockOutOfBounds) {
			s.writeStatus(ctx, sc, scooter.Deactivated)
			s.forceCompleteRental(ctx, sc, st, "outofbounds")
			s.addLock(sc, st, lockOutOfBounds)
			s.logger.Warn().
				Int("scooter_id", sc.ID).
				Str("event", "sim.outofbounds_locked").
				Msg("scooter left the city zones and was deactivated")
		}
	}

	// A lock acquired above (or earlier) always wins over movement.
	if st.locks != 0 {
		update = s.lockMovement(sc, st)
		sc.Lat, sc.Lng = update.Lat, update.Lng
	}

	// Zone speed policy.
	if z == zone.Slow || z == zone.Parking || z == zone.Charging {
		limit, ok := s.deps.City.SpeedLimit(z)
		if !ok {
			limit = s.opts.DefaultZoneSpeedKMH
		}
		update.SpeedKMH = math.Min(update.SpeedKMH, limit)
	}
	if z == zone.Slow && st.locks == 0 {
		update.Activity = scooter.Reduced
	}

	inCharging := z == zone.Charging
	s.syncChargingStatus(ctx, sc, st, inCharging)

	activity := update.Activity
	if activity == "" {
		activity = scooter.Idle
	}
	sc.Tick(activity, update.SpeedKMH, inCharging, s.opts.UpdateInterval)

	s.handleRentalTick(ctx, sc, st, prev, update, inCharging)

	if st.hook != nil {
		if done := st.hook.Run(ctx, s, sc); done {
			st.hook = nil
		}
	}

	st.lastPos = geo.Point{Lat: sc.Lat, Lng: sc.Lng}
	s.publishState(ctx, sc, inCharging)
}

// writeStatus pushes a status plus current position to the backend. Failures
// are logged, counted, and otherwise ignored; local state is the truth the
// simulation keeps advancing.
func (s *Simulator) writeStatus(ctx context.Context, sc *scooter.Scooter, status scooter.Status) {
	if err := s.deps.Backend.UpdateBikeStatus(ctx, sc.ID, string(status), sc.Lat, sc.Lng); err != nil {
		s.logger.Warn().
			Err(err).
			Int("scooter_id", sc.ID).
			Str("status", string(status)).
			Str("event", "sim.status_write_failed").
			Msg("backend status write failed")
		metrics.BackendWriteErrorsTotal.WithLabelValues("status").Inc()
	}
}

func (s *Simulator) logCoord(ctx context.Context, rentalID string, lat, lng, speed float64) {
	if err := s.deps.Telemetry.LogCoord(ctx, rentalID, lat, lng, speed); err != nil {
		metrics.TelemetryErrorsTotal.WithLabelValues("coord").Inc()
	}
}

// publishState emits the per-tick state payload, exactly once per scooter
// per tick. Coordinates are trimmed to 7 decimals, battery to 1.
func (s *Simulator) publishState(ctx context.Context, sc *scooter.Scooter, inCharging bool) {
	payload := telemetry.StatePayload{
		ID:             sc.ID,
		Lat:            round7(sc.Lat),
		Lng:            round7(sc.Lng),
		Battery:        math.Round(sc.Battery*10) / 10,
		Status:         string(sc.Status),
		Speed:          sc.SpeedKMH,
		InChargingZone: inCharging,
	}
	if err := s.deps.Telemetry.BroadcastState(ctx, payload); err != nil {
		s.logger.Warn().
			Err(err).
			Int("scooter_id", sc.ID).
			Str("event", "sim.broadcast_failed").
			Msg("state broadcast failed")
		metrics.TelemetryErrorsTotal.WithLabelValues("state").Inc()
	}
}

func round7(v float64) float64 {
	return math.Round(v*1e7) / 1e7
}
