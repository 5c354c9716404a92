// SPDX-License-Identifier: MIT
package scooter

// Status is the single operational state of a scooter.
type Status string

const (
	Idle         Status = "idle"
	Active       Status = "active"
	Reduced      Status = "reduced"
	Charging     Status = "charging"
	ChargingLow  Status = "chargingLow"
	NeedCharging Status = "needCharging"
	NeedService  Status = "needService"
	Deactivated  Status = "deactivated"
	OnService    Status = "onService"
	Available    Status = "available"
)

// nonRentable are the statuses that disqualify a scooter from starting a
// rental.
var nonRentable = map[Status]struct{}{
	NeedService:  {},
	Deactivated:  {},
	OnService:    {},
	NeedCharging: {},
	ChargingLow:  {},
	Reduced:      {},
}

// Rentable reports whether a scooter in this status may start a rental.
func (s Status) Rentable() bool {
	_, blocked := nonRentable[s]
	return !blocked
}

// serviceStates are statuses imposed by an operator or a boundary violation.
// Zone dwell and battery dynamics never overwrite them.
var serviceStates = map[Status]struct{}{
	NeedService: {},
	Deactivated: {},
	OnService:   {},
}

// IsServiceState reports whether the status is operator-imposed.
func (s Status) IsServiceState() bool {
	_, ok := serviceStates[s]
	return ok
}

// IsCharging reports whether the status is one of the charging states.
func (s Status) IsCharging() bool {
	return s == Charging || s == ChargingLow
}

var known = map[Status]struct{}{
	Idle: {}, Active: {}, Reduced: {}, Charging: {}, ChargingLow: {},
	NeedCharging: {}, NeedService: {}, Deactivated: {}, OnService: {}, Available: {},
}

// ParseStatus maps a wire string to a defined status. ok is false for
// anything unknown.
func ParseStatus(raw string) (Status, bool) {
	s := Status(raw)
	_, ok := known[s]
	return s, ok
}
