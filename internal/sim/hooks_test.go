// SPDX-License-Identifier: MIT
package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/velomob/scootsim/internal/scooter"
	"github.com/velomob/scootsim/internal/zone"
)

func TestParkNearestZoneHookWaitsForTrips(t *testing.T) {
	h := newHarness(t)
	sc := h.addRouteScooter(1, shortTestRoute(), 100)
	hook := &ParkNearestZoneHook{RequiredTrips: 1, Zone: zone.Charging}
	h.sim.SetHook(1, hook)

	require.False(t, hook.Run(context.Background(), h.sim, sc), "no trips finished yet")

	var parked bool
	for i := 0; i < 40 && !parked; i++ {
		h.tick()
		parked = h.sim.state[1].hook == nil
	}
	require.True(t, parked, "hook never fired")

	require.True(t, h.sim.City().IsInside(sc.Lat, sc.Lng, zone.Charging))
	require.True(t, sc.Status.IsCharging())
	require.False(t, h.sim.state[1].hasRoute)

	held := position(sc)
	h.tick()
	h.tick()
	require.Equal(t, held, position(sc), "parked scooter must not resume its route")
}

func TestParkNearestZoneHookWithoutZoneParksInPlace(t *testing.T) {
	h := newHarness(t)
	sc := h.addRouteScooter(1, shortTestRoute(), 100)
	st := h.sim.state[1]
	st.tripCount = 2

	hook := &ParkNearestZoneHook{RequiredTrips: 2, Zone: zone.Slow}
	before := position(sc)
	require.True(t, hook.Run(context.Background(), h.sim, sc))
	require.Equal(t, before, position(sc))
	require.False(t, st.hasRoute)
}

func TestBreakdownHookFiresAfterRuntime(t *testing.T) {
	h := newHarness(t)
	sc := h.addRouteScooter(1, shortTestRoute(), 100)
	h.sim.SetHook(1, &BreakdownHook{MaxRuntime: time.Minute})

	h.tick() // arms the hook
	require.NotNil(t, h.sim.state[1].hook)
	require.Equal(t, scooter.Active, sc.Status)

	h.tick()
	require.NotNil(t, h.sim.state[1].hook, "runtime not reached yet")

	h.clock.Step(2 * time.Minute)
	h.tick()
	require.Nil(t, h.sim.state[1].hook, "hook retires after firing")
	require.Equal(t, scooter.NeedService, sc.Status)
	require.Contains(t, h.be.statusWrites(1), string(scooter.NeedService))
	require.True(t, h.sim.Deactivated(1))

	events := h.completedEvents(t)
	require.Len(t, events, 1)
	require.Equal(t, "admin_forced", events[0].EndZone)

	frozen := position(sc)
	h.tick()
	require.Equal(t, frozen, position(sc))
	require.Equal(t, scooter.NeedService, sc.Status)
}
