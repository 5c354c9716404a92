// SPDX-License-Identifier: MIT
package sim

import (
	"context"

	"github.com/velomob/scootsim/internal/geo"
	"github.com/velomob/scootsim/internal/metrics"
	"github.com/velomob/scootsim/internal/scooter"
)

// lockSet is a bitmask of reasons a scooter is held in place. Reasons are
// independent tags, not alternatives: a scooter can be admin-locked and
// battery-locked at once. A scooter is "deactivated" whenever any bit is set.
type lockSet uint8

const (
	lockAdmin lockSet = 1 << iota
	lockBattery
	lockOutOfBounds
)

func (l lockSet) has(reason lockSet) bool { return l&reason != 0 }

// addLock sets a lock reason and freezes the scooter at its current
// position if it was not already held.
func (s *Simulator) addLock(sc *scooter.Scooter, st *scooterState, reason lockSet) {
	if st.locks == 0 {
		st.lockPos = geo.Point{Lat: sc.Lat, Lng: sc.Lng}
	}
	st.locks |= reason
	s.updateDeactivatedGauge()
}

// removeLock clears one lock reason; the scooter stays frozen while any
// other reason remains.
func (s *Simulator) removeLock(st *scooterState, reason lockSet) {
	st.locks &^= reason
	s.updateDeactivatedGauge()
}

// clearLocks releases every lock on the scooter. Only an admin "available"
// does this.
func (s *Simulator) clearLocks(st *scooterState) {
	st.locks = 0
	s.updateDeactivatedGauge()
}

// applyBatteryLock immobilizes a drained scooter: frozen in place, flagged
// needCharging both locally and on the backend.
func (s *Simulator) applyBatteryLock(ctx context.Context, sc *scooter.Scooter, st *scooterState) {
	st.pendingBatteryLock = false
	if st.locks.has(lockBattery) {
		return
	}

	s.addLock(sc, st, lockBattery)

	if err := s.deps.Backend.UpdateBikeStatus(ctx, sc.ID, string(scooter.NeedCharging), sc.Lat, sc.Lng); err != nil {
		s.logger.Warn().
			Err(err).
			Int("scooter_id", sc.ID).
			Str("event", "sim.battery_lock_write_failed").
			Msg("failed to write needCharging to backend")
		metrics.BackendWriteErrorsTotal.WithLabelValues("status").Inc()
	}
	sc.Status = scooter.NeedCharging

	s.logger.Info().
		Int("scooter_id", sc.ID).
		Float64("battery", sc.Battery).
		Str("event", "sim.battery_locked").
		Msg("scooter immobilized on low battery")
}

func (s *Simulator) updateDeactivatedGauge() {
	deactivated := 0
	for _, st := range s.state {
		if st.locks != 0 {
			deactivated++
		}
	}
	metrics.ScootersDeactivated.Set(float64(deactivated))
}
