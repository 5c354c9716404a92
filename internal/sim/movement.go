// SPDX-License-Identifier: MIT
package sim

import (
	"math"
	"time"

	"github.com/samber/lo"

	"github.com/velomob/scootsim/internal/geo"
	"github.com/velomob/scootsim/internal/scooter"
)

// MovementUpdate is the outcome of resolving one tick of movement for a
// scooter. An empty Activity means "no opinion" and lets charging detection
// apply downstream.
type MovementUpdate struct {
	Lat           float64
	Lng           float64
	SpeedKMH      float64
	Activity      scooter.Status
	RouteFinished bool
}

// Override replaces route-following movement for one scooter. A nil return
// means "no override this tick" and movement resolution falls through.
type Override interface {
	Move(sc *scooter.Scooter, elapsed time.Duration) *MovementUpdate
}

// OverrideFunc adapts a plain function to the Override interface.
type OverrideFunc func(sc *scooter.Scooter, elapsed time.Duration) *MovementUpdate

// Move implements Override.
func (f OverrideFunc) Move(sc *scooter.Scooter, elapsed time.Duration) *MovementUpdate {
	return f(sc, elapsed)
}

// StationaryOverride keeps a scooter parked where it is, never finishing a
// route. It returns no activity so a parked scooter can charge.
func StationaryOverride() Override {
	return OverrideFunc(func(sc *scooter.Scooter, _ time.Duration) *MovementUpdate {
		return &MovementUpdate{Lat: sc.Lat, Lng: sc.Lng}
	})
}

// resolveMovement picks this tick's movement with fixed precedence:
// lock override > scenario override > route integrator > stand-still.
func (s *Simulator) resolveMovement(sc *scooter.Scooter, st *scooterState) MovementUpdate {
	if st.locks != 0 {
		return s.lockMovement(sc, st)
	}

	if st.override != nil {
		if update := st.override.Move(sc, s.opts.UpdateInterval); update != nil {
			return *update
		}
	}

	if st.hasRoute {
		return s.integrateRoute(sc, st)
	}

	return MovementUpdate{Lat: sc.Lat, Lng: sc.Lng, Activity: scooter.Idle}
}

// lockMovement is the permanent-lock output: position frozen, speed zero.
// Admin and out-of-bounds locks own the status outright; a battery lock
// leaves the label neutral so the scooter can still charge in place.
func (s *Simulator) lockMovement(sc *scooter.Scooter, st *scooterState) MovementUpdate {
	update := MovementUpdate{Lat: st.lockPos.Lat, Lng: st.lockPos.Lng}
	if st.locks.has(lockAdmin) || st.locks.has(lockOutOfBounds) {
		update.Activity = sc.Status
	}
	return update
}

// routeForTrip returns the scooter's route in this trip's direction:
// forward on even completed-trip counts, reversed on odd.
func (s *Simulator) routeForTrip(st *scooterState) []geo.Point {
	base := s.routes[st.routeID]
	if st.tripCount%2 == 0 {
		return base
	}
	return lo.Reverse(append([]geo.Point(nil), base...))
}

// integrateRoute moves the scooter along its route at nominal speed,
// detecting route completion and slowing through corners. The per-tick step
// budget carries across waypoints, so a scooter sitting exactly on one, or
// crossing a short segment, keeps moving within the same tick.
func (s *Simulator) integrateRoute(sc *scooter.Scooter, st *scooterState) MovementUpdate {
	route := s.routeForTrip(st)
	if len(route) == 0 {
		return MovementUpdate{Lat: sc.Lat, Lng: sc.Lng, Activity: scooter.Idle}
	}

	interval := s.opts.UpdateInterval.Seconds()
	step := s.opts.NominalMaxSpeedMPS * interval

	if st.nextWaypoint >= len(route) {
		st.nextWaypoint = 0
	}

	start := geo.Point{Lat: sc.Lat, Lng: sc.Lng}
	pos := start
	remaining := step
	finished := false

	for remaining > 0 && !finished {
		target := route[st.nextWaypoint]
		d := geo.DistanceM(pos, target)
		if d > remaining {
			pos = geo.Lerp(pos, target, remaining/d)
			remaining = 0
			break
		}
		pos = target
		remaining -= d
		st.nextWaypoint++
		if st.nextWaypoint >= len(route) {
			finished = true
			st.nextWaypoint = 0
		}
	}

	rawSpeed := (step - remaining) / interval * 3.6

	if pos != start {
		heading := geo.Heading(start, pos)
		if st.hasHeading {
			turn := geo.TurnDelta(st.lastHeading, heading)
			rawSpeed *= 1 - math.Min(turn/math.Pi, 0.4)
		}
		st.lastHeading = heading
		st.hasHeading = true
	}

	speed := math.Round(rawSpeed*100) / 100
	activity := scooter.Idle
	if speed > 0 {
		activity = scooter.Active
	}

	return MovementUpdate{
		Lat:           pos.Lat,
		Lng:           pos.Lng,
		SpeedKMH:      speed,
		Activity:      activity,
		RouteFinished: finished,
	}
}
