// SPDX-License-Identifier: MIT
package sim

import (
	"context"

	"github.com/velomob/scootsim/internal/scooter"
)

// syncChargingStatus keeps the backend's view of a charging scooter in step
// with zone membership, memoized so dwelling in a charging zone costs one
// backend write per transition instead of one per tick.
//
// Riding and hard locks suppress the sync entirely: a rented scooter passing
// through a charging zone is still "active", and admin or out-of-bounds
// statuses must not be overwritten by zone dwell.
func (s *Simulator) syncChargingStatus(ctx context.Context, sc *scooter.Scooter, st *scooterState, inCharging bool) {
	if sc.Status == scooter.Active || st.locks.has(lockAdmin) || st.locks.has(lockOutOfBounds) {
		st.chargingMemo = ""
		return
	}

	if inCharging {
		desired := scooter.Charging
		if sc.LowBattery() {
			desired = scooter.ChargingLow
		}
		if st.chargingMemo == desired {
			return
		}
		s.writeStatus(ctx, sc, desired)
		sc.Status = desired
		st.chargingMemo = desired
		s.logger.Debug().
			Int("scooter_id", sc.ID).
			Str("status", string(desired)).
			Str("event", "sim.charging_entered").
			Msg("charging status synced")
		return
	}

	if st.chargingMemo == "" {
		return
	}

	// Leaving the zone mid-charge: restore a plain status matching the
	// battery level and reset the memo.
	restored := scooter.Available
	if sc.LowBattery() {
		restored = scooter.NeedCharging
	}
	s.writeStatus(ctx, sc, restored)
	sc.Status = restored
	st.chargingMemo = ""
	s.logger.Debug().
		Int("scooter_id", sc.ID).
		Str("status", string(restored)).
		Str("event", "sim.charging_left").
		Msg("charging zone left, status restored")
}
