// SPDX-License-Identifier: MIT

// Package scooter models the physical scooter only: position, speed, battery
// and operational status. It knows nothing about routes, zones or rentals;
// the simulator drives it through Tick and EndTrip.
package scooter

import "time"

// Params holds the battery model constants.
type Params struct {
	MinBattery          float64
	LowBatteryThreshold float64
	BatteryFull         float64
	// Drain values are subtracted once per tick, not scaled by elapsed time.
	BatteryDrainIdle   float64
	BatteryDrainActive float64
	ChargeRatePerMin   float64
}

// DefaultParams is the stock battery calibration.
func DefaultParams() Params {
	return Params{
		MinBattery:          5,
		LowBatteryThreshold: 20,
		BatteryFull:         100,
		BatteryDrainIdle:    0.01,
		BatteryDrainActive:  0.025,
		ChargeRatePerMin:    3.0,
	}
}

// Scooter is the physical state of one scooter.
type Scooter struct {
	ID       int
	Lat      float64
	Lng      float64
	SpeedKMH float64
	Battery  float64
	Status   Status

	params Params
}

// New creates a scooter at the given position and battery level.
func New(id int, lat, lng, battery float64, params Params) *Scooter {
	return &Scooter{
		ID:      id,
		Lat:     lat,
		Lng:     lng,
		Battery: battery,
		Status:  Idle,
		params:  params,
	}
}

// Params returns the battery model constants this scooter runs with.
func (s *Scooter) Params() Params { return s.params }

// LowBattery reports whether the battery is strictly below the low threshold.
// A battery exactly at the threshold still rents.
func (s *Scooter) LowBattery() bool {
	return s.Battery < s.params.LowBatteryThreshold
}

// Tick advances the scooter by one simulation step. The derived status takes
// precedence over the activity label: a non-moving scooter in a charging zone
// charges, a drained one needs charging, anything else keeps its activity.
// Service states passed as the activity are pinned outright.
func (s *Scooter) Tick(activity Status, speedKMH float64, inChargingZone bool, elapsed time.Duration) {
	switch {
	case activity.IsServiceState():
		s.Status = activity
	case inChargingZone && activity != Active:
		if s.LowBattery() {
			s.Status = ChargingLow
		} else {
			s.Status = Charging
		}
	case s.LowBattery():
		s.Status = NeedCharging
	default:
		s.Status = activity
	}

	s.SpeedKMH = speedKMH
	s.updateBattery(elapsed)
}

func (s *Scooter) updateBattery(elapsed time.Duration) {
	switch {
	case s.Status.IsCharging():
		chargePerSec := s.params.ChargeRatePerMin / 60
		s.Battery = min(s.params.BatteryFull, s.Battery+chargePerSec*elapsed.Seconds())
	case s.Status == Idle || s.Status == NeedCharging:
		s.Battery = max(s.params.MinBattery, s.Battery-s.params.BatteryDrainIdle)
	case s.Status == Active:
		s.Battery = max(s.params.MinBattery, s.Battery-s.params.BatteryDrainActive)
	}
}

// EndTrip resets the scooter at the end of a trip: movement stops and the
// status settles into charging, needCharging or idle.
func (s *Scooter) EndTrip(inChargingZone bool) {
	s.SpeedKMH = 0
	switch {
	case inChargingZone:
		if s.LowBattery() {
			s.Status = ChargingLow
		} else {
			s.Status = Charging
		}
	case s.LowBattery():
		s.Status = NeedCharging
	default:
		s.Status = Idle
	}
}
