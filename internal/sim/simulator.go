// SPDX-License-Identifier: MIT

// Package sim is the core simulation engine: a tick-driven, single-writer
// state machine advancing every scooter through movement, zone enforcement,
// battery dynamics and rental lifecycle, while draining externally produced
// admin and rental events at tick boundaries.
package sim

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"k8s.io/utils/clock"

	"github.com/velomob/scootsim/internal/backend"
	"github.com/velomob/scootsim/internal/geo"
	"github.com/velomob/scootsim/internal/metrics"
	"github.com/velomob/scootsim/internal/scooter"
	"github.com/velomob/scootsim/internal/telemetry"
	"github.com/velomob/scootsim/internal/zone"
)

// Deps are the simulator's external collaborators.
type Deps struct {
	City      *zone.CityModel
	Telemetry *telemetry.Broadcaster
	Backend   *backend.Client
	Logger    zerolog.Logger
	Clock     clock.WithTicker // defaults to the real clock
}

// Options are the movement and timing knobs.
type Options struct {
	UpdateInterval     time.Duration
	NominalMaxSpeedMPS float64
	// DefaultZoneSpeedKMH caps speed in slow/parking/charging zones that
	// carry no explicit limit.
	DefaultZoneSpeedKMH float64
	ScooterParams       scooter.Params
}

// DefaultOptions are the stock movement and timing constants.
func DefaultOptions() Options {
	return Options{
		UpdateInterval:      5 * time.Second,
		NominalMaxSpeedMPS:  5.42,
		DefaultZoneSpeedKMH: 5,
		ScooterParams:       scooter.DefaultParams(),
	}
}

// rental is the simulator-owned rental record for one scooter. Active is
// authoritative; RentalID alone says nothing about liveness.
type rental struct {
	Active    bool
	ID        string
	UserID    int
	UserName  string
	FromPool  bool
	StartZone zone.Type
}

// externalRental tracks a rental opened by the upstream system. While it is
// active the simulator neither starts nor ends rentals for the scooter.
type externalRental struct {
	Active   bool
	ID       string
	UserID   int
	UserName string
}

// scooterState is the per-scooter simulator bookkeeping, owned exclusively
// by the simulation loop.
type scooterState struct {
	routeID      int
	hasRoute     bool
	nextWaypoint int
	tripCount    int

	lastPos     geo.Point
	lastHeading float64
	hasHeading  bool

	override Override     // scenario movement override slot
	hook     ScenarioHook // per-tick scenario hook

	rental   rental
	external externalRental

	locks              lockSet
	lockPos            geo.Point
	pendingBatteryLock bool

	// chargingMemo remembers the last charging-class status written to the
	// backend, so zone dwell produces one write per transition, not per tick.
	chargingMemo scooter.Status
}

// Simulator advances a fleet of scooters tick by tick. All scooter and
// simulator state is owned by the goroutine calling Tick; the intake queues
// are the only cross-thread ingress.
type Simulator struct {
	deps   Deps
	opts   Options
	logger zerolog.Logger
	clock  clock.WithTicker

	intake *Intake

	order    []int // registration order drives tick iteration
	scooters map[int]*scooter.Scooter
	state    map[int]*scooterState
	routes   map[int][]geo.Point

	users *UserPool
}

// New creates a simulator with no scooters registered.
func New(deps Deps, opts Options) *Simulator {
	c := deps.Clock
	if c == nil {
		c = clock.RealClock{}
	}
	if opts.UpdateInterval <= 0 {
		opts.UpdateInterval = DefaultOptions().UpdateInterval
	}
	if opts.NominalMaxSpeedMPS <= 0 {
		opts.NominalMaxSpeedMPS = DefaultOptions().NominalMaxSpeedMPS
	}
	if opts.DefaultZoneSpeedKMH <= 0 {
		opts.DefaultZoneSpeedKMH = DefaultOptions().DefaultZoneSpeedKMH
	}
	if opts.ScooterParams == (scooter.Params{}) {
		opts.ScooterParams = scooter.DefaultParams()
	}

	return &Simulator{
		deps:     deps,
		opts:     opts,
		logger:   deps.Logger,
		clock:    c,
		intake:   NewIntake(),
		scooters: make(map[int]*scooter.Scooter),
		state:    make(map[int]*scooterState),
		routes:   make(map[int][]geo.Point),
		users:    NewUserPool(nil, time.Now().UnixNano()),
	}
}

// Intake exposes the cross-thread event queues for the listeners.
func (s *Simulator) Intake() *Intake { return s.intake }

// City returns the zone model the simulator enforces.
func (s *Simulator) City() *zone.CityModel { return s.deps.City }

// Clock returns the simulator's time source.
func (s *Simulator) Clock() clock.WithTicker { return s.clock }

// SetUserPool replaces the rental user pool.
func (s *Simulator) SetUserPool(pool *UserPool) { s.users = pool }

// AddRoute registers a route polyline under an id.
func (s *Simulator) AddRoute(id int, waypoints []geo.Point) {
	s.routes[id] = append([]geo.Point(nil), waypoints...)
}

// RegisterOptions control how a scooter joins the simulation.
type RegisterOptions struct {
	RouteID       int
	HasRoute      bool
	WaypointIndex int
	TripCount     int
	Override      Override
	Hook          ScenarioHook
}

// Register adds a scooter to the simulation. Scooters are never removed;
// tick order follows registration order.
func (s *Simulator) Register(sc *scooter.Scooter, opts RegisterOptions) {
	s.order = append(s.order, sc.ID)
	s.scooters[sc.ID] = sc
	s.state[sc.ID] = &scooterState{
		routeID:      opts.RouteID,
		hasRoute:     opts.HasRoute,
		nextWaypoint: opts.WaypointIndex,
		tripCount:    opts.TripCount,
		lastPos:      geo.Point{Lat: sc.Lat, Lng: sc.Lng},
		override:     opts.Override,
		hook:         opts.Hook,
	}
	metrics.ScootersRegistered.Set(float64(len(s.order)))
}

// SetOverride installs (or clears) the scenario movement override slot.
func (s *Simulator) SetOverride(scooterID int, override Override) {
	if st, ok := s.state[scooterID]; ok {
		st.override = override
	}
}

// SetHook installs (or clears) the per-tick scenario hook.
func (s *Simulator) SetHook(scooterID int, hook ScenarioHook) {
	if st, ok := s.state[scooterID]; ok {
		st.hook = hook
	}
}

// TripCount returns the number of completed trips for a scooter.
func (s *Simulator) TripCount(scooterID int) int {
	if st, ok := s.state[scooterID]; ok {
		return st.tripCount
	}
	return 0
}

// Deactivated reports whether any lock currently holds the scooter.
func (s *Simulator) Deactivated(scooterID int) bool {
	st, ok := s.state[scooterID]
	return ok && st.locks != 0
}

// Run drives the tick loop until the context is cancelled. Cancellation is
// only observed between ticks; backend calls within a tick run to completion.
func (s *Simulator) Run(ctx context.Context) error {
	s.logger.Info().
		Str("event", "sim.run_started").
		Int("scooters", len(s.order)).
		Dur("update_interval", s.opts.UpdateInterval).
		Msg("simulation loop started")

	ticker := s.clock.NewTicker(s.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		s.Tick(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info().Str("event", "sim.run_stopped").Msg("simulation loop stopped")
			return nil
		case <-ticker.C():
		}
	}
}
