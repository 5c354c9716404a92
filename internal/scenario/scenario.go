// SPDX-License-Identifier: MIT

// Package scenario loads the simulation scenario file: which city to run,
// which routes exist, how many scooters ride each route and which ones are
// scripted to park or break down.
package scenario

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/velomob/scootsim/internal/geo"
	"github.com/velomob/scootsim/internal/zone"
)

// Duration parses "30m"-style scenario values.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts back to a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Waypoint is a [lat, lng] pair as written in scenario files.
type Waypoint [2]float64

// Point converts a waypoint to a geo point.
func (w Waypoint) Point() geo.Point { return geo.Point{Lat: w[0], Lng: w[1]} }

// Route is one named polyline scooters can ride.
type Route struct {
	ID        int        `yaml:"id"`
	Waypoints []Waypoint `yaml:"waypoints"`
}

// Points returns the route as geo points.
func (r Route) Points() []geo.Point {
	points := make([]geo.Point, len(r.Waypoints))
	for i, w := range r.Waypoints {
		points[i] = w.Point()
	}
	return points
}

// Batch is a group of scooters seeded onto one route.
type Batch struct {
	RouteID int     `yaml:"route_id"`
	Count   int     `yaml:"count"`
	Battery float64 `yaml:"battery"`

	// ParkAfterTrips scripts the batch to relocate into ParkZone once each
	// scooter finishes that many trips. Zero disables the script.
	ParkAfterTrips int       `yaml:"park_after_trips"`
	ParkZone       zone.Type `yaml:"park_zone"`

	// BreakdownAfter scripts a mechanical failure after the given runtime.
	BreakdownAfter Duration `yaml:"breakdown_after"`
}

// Stationary is a group of parked scooters dropped into a zone type.
type Stationary struct {
	Zone    zone.Type `yaml:"zone"`
	Count   int       `yaml:"count"`
	Battery float64   `yaml:"battery"`
}

// Users bounds which backend customers join the rental pool.
type Users struct {
	MinID    int `yaml:"min_id"`
	MaxID    int `yaml:"max_id"`
	MaxUsers int `yaml:"max_users"`
}

// Scenario is the full simulation script.
type Scenario struct {
	City       string       `yaml:"city"`
	Seed       int64        `yaml:"seed"`
	Users      Users        `yaml:"users"`
	Routes     []Route      `yaml:"routes"`
	Batches    []Batch      `yaml:"batches"`
	Stationary []Stationary `yaml:"stationary"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var s Scenario
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &s, nil
}

// Validate checks the scenario for internal consistency.
func (s *Scenario) Validate() error {
	if s.City == "" {
		return fmt.Errorf("city is required")
	}

	routes := make(map[int]int, len(s.Routes))
	for _, r := range s.Routes {
		if len(r.Waypoints) == 0 {
			return fmt.Errorf("route %d has no waypoints", r.ID)
		}
		if _, dup := routes[r.ID]; dup {
			return fmt.Errorf("duplicate route id %d", r.ID)
		}
		routes[r.ID] = len(r.Waypoints)
	}

	for i, b := range s.Batches {
		if _, ok := routes[b.RouteID]; !ok {
			return fmt.Errorf("batch %d references unknown route %d", i, b.RouteID)
		}
		if b.Count <= 0 {
			return fmt.Errorf("batch %d has non-positive count", i)
		}
		if b.ParkAfterTrips > 0 && b.ParkZone == "" {
			return fmt.Errorf("batch %d sets park_after_trips without park_zone", i)
		}
	}

	for i, st := range s.Stationary {
		if st.Zone == "" {
			return fmt.Errorf("stationary group %d has no zone", i)
		}
		if st.Count <= 0 {
			return fmt.Errorf("stationary group %d has non-positive count", i)
		}
	}

	return nil
}
