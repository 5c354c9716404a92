// SPDX-License-Identifier: MIT
package scenario

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/velomob/scootsim/internal/zone"
)

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFullScenario(t *testing.T) {
	path := writeScenario(t, `
city: malmo
seed: 42
users:
  min_id: 1
  max_id: 1000
  max_users: 200
routes:
  - id: 1
    waypoints:
      - [55.600, 12.990]
      - [55.601, 12.991]
batches:
  - route_id: 1
    count: 10
    battery: 95
  - route_id: 1
    count: 2
    battery: 25
    park_after_trips: 3
    park_zone: charging
  - route_id: 1
    count: 1
    breakdown_after: 30m
stationary:
  - zone: parking
    count: 5
    battery: 60
`)

	s, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "malmo", s.City)
	require.EqualValues(t, 42, s.Seed)
	require.Equal(t, 200, s.Users.MaxUsers)

	require.Len(t, s.Routes, 1)
	points := s.Routes[0].Points()
	require.Len(t, points, 2)
	require.Equal(t, 55.600, points[0].Lat)
	require.Equal(t, 12.990, points[0].Lng)

	require.Len(t, s.Batches, 3)
	require.Equal(t, zone.Charging, s.Batches[1].ParkZone)
	require.Equal(t, 30*time.Minute, s.Batches[2].BreakdownAfter.Std())

	require.Len(t, s.Stationary, 1)
	require.Equal(t, zone.Parking, s.Stationary[0].Zone)
}

func TestLoadRejectsMissingCity(t *testing.T) {
	path := writeScenario(t, "routes: []\n")
	_, err := Load(path)
	require.ErrorContains(t, err, "city is required")
}

func TestLoadRejectsBatchWithUnknownRoute(t *testing.T) {
	path := writeScenario(t, `
city: malmo
routes:
  - id: 1
    waypoints: [[55.6, 12.99]]
batches:
  - route_id: 7
    count: 1
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "unknown route 7")
}

func TestLoadRejectsParkWithoutZone(t *testing.T) {
	path := writeScenario(t, `
city: malmo
routes:
  - id: 1
    waypoints: [[55.6, 12.99]]
batches:
  - route_id: 1
    count: 1
    park_after_trips: 2
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "park_after_trips without park_zone")
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeScenario(t, `
city: malmo
routes:
  - id: 1
    waypoints: [[55.6, 12.99]]
batches:
  - route_id: 1
    count: 1
    breakdown_after: sometime
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "invalid duration")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
