// SPDX-License-Identifier: MIT
package sim

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/velomob/scootsim/internal/backend"
	"github.com/velomob/scootsim/internal/geo"
	"github.com/velomob/scootsim/internal/scooter"
	"github.com/velomob/scootsim/internal/telemetry"
	"github.com/velomob/scootsim/internal/zone"
)

type statusWrite struct {
	BikeID int
	Status string
}

type completionWrite struct {
	RentalID string
	EndZone  string
}

// testBackend records every write the simulator makes against a fake fleet
// API.
type testBackend struct {
	mu sync.Mutex

	statuses    []statusWrite
	completions []completionWrite
	created     int

	rejectRentals bool
}

func (b *testBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/customers", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	})

	mux.HandleFunc("/rentals", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		b.mu.Lock()
		reject := b.rejectRentals
		if !reject {
			b.created++
		}
		id := b.created
		b.mu.Unlock()

		if reject {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"rental_id": "r-" + strconv.Itoa(id)})
	})

	mux.HandleFunc("/rentals/", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			EndZone string `json:"end_zone"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.completions = append(b.completions, completionWrite{
			RentalID: strings.TrimPrefix(r.URL.Path, "/rentals/"),
			EndZone:  body.EndZone,
		})
		b.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/bikes/", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Status string `json:"status"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		id, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/bikes/"))
		b.mu.Lock()
		b.statuses = append(b.statuses, statusWrite{BikeID: id, Status: body.Status})
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func (b *testBackend) statusWrites(bikeID int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, s := range b.statuses {
		if s.BikeID == bikeID {
			out = append(out, s.Status)
		}
	}
	return out
}

func (b *testBackend) completed() []completionWrite {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]completionWrite(nil), b.completions...)
}

// Test city: a rectangle with one charging and one parking zone inside it.
// WKT rings are lng lat pairs.
func testCityDefs() []zone.Def {
	parkingLimit := 6.0
	return []zone.Def{
		{ZoneType: "city", WKT: "POLYGON((12.98 55.59, 13.02 55.59, 13.02 55.62, 12.98 55.62, 12.98 55.59))"},
		{ZoneType: "charging", WKT: "POLYGON((12.990 55.6000, 12.992 55.6000, 12.992 55.6010, 12.990 55.6010, 12.990 55.6000))"},
		{ZoneType: "parking", WKT: "POLYGON((13.010 55.6000, 13.015 55.6000, 13.015 55.6050, 13.010 55.6050, 13.010 55.6000))", SpeedLimit: &parkingLimit},
	}
}

type harness struct {
	sim   *Simulator
	be    *testBackend
	mr    *miniredis.Miniredis
	rdb   *redis.Client
	clock *clocktesting.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	be := &testBackend{}
	srv := httptest.NewServer(be.handler())
	t.Cleanup(srv.Close)

	fc := clocktesting.NewFakeClock(time.Unix(1_700_000_000, 0))
	city := zone.NewCity("testville", testCityDefs(), zerolog.Nop())

	s := New(Deps{
		City:      city,
		Telemetry: telemetry.NewBroadcaster(rdb, zerolog.Nop()),
		Backend:   backend.New(srv.URL, zerolog.Nop()),
		Logger:    zerolog.Nop(),
		Clock:     fc,
	}, DefaultOptions())
	s.SetUserPool(NewUserPool([]backend.User{{ID: 42, Name: "Rider"}}, 1))

	return &harness{sim: s, be: be, mr: mr, rdb: rdb, clock: fc}
}

func (h *harness) tick() {
	h.sim.Tick(context.Background())
}

func (h *harness) addRouteScooter(id int, route []geo.Point, battery float64) *scooter.Scooter {
	h.sim.AddRoute(id, route)
	sc := scooter.New(id, route[0].Lat, route[0].Lng, battery, scooter.DefaultParams())
	sc.Status = scooter.Available
	h.sim.Register(sc, RegisterOptions{RouteID: id, HasRoute: true})
	return sc
}

func (h *harness) completedEvents(t *testing.T) []telemetry.CompletedRental {
	t.Helper()
	raw, err := h.rdb.LRange(context.Background(), telemetry.CompletedList, 0, -1).Result()
	require.NoError(t, err)

	events := make([]telemetry.CompletedRental, 0, len(raw))
	for _, entry := range raw {
		var ev telemetry.CompletedRental
		require.NoError(t, json.Unmarshal([]byte(entry), &ev))
		events = append(events, ev)
	}
	return events
}

// shortTestRoute runs ~128 m northeast through the plain city interior,
// five ticks at nominal speed.
func shortTestRoute() []geo.Point {
	return []geo.Point{{Lat: 55.605, Lng: 12.995}, {Lat: 55.606, Lng: 12.996}}
}

func position(sc *scooter.Scooter) geo.Point {
	return geo.Point{Lat: sc.Lat, Lng: sc.Lng}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.sim.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run loop did not stop on cancellation")
	}
}

func TestTickOnEmptyFleetIsNoOp(t *testing.T) {
	h := newHarness(t)
	h.tick()
	h.tick()
	require.Empty(t, h.be.completed())
	require.Empty(t, h.be.statusWrites(1))
}

func TestBatteryStaysWithinBounds(t *testing.T) {
	h := newHarness(t)
	sc := h.addRouteScooter(1, shortTestRoute(), 5.5)

	for i := 0; i < 50; i++ {
		h.tick()
		params := sc.Params()
		require.GreaterOrEqual(t, sc.Battery, params.MinBattery)
		require.LessOrEqual(t, sc.Battery, params.BatteryFull)
	}
}

func TestStatePublishedEveryTick(t *testing.T) {
	h := newHarness(t)
	sc := h.addRouteScooter(1, shortTestRoute(), 100)

	for i := 0; i < 3; i++ {
		h.tick()

		raw, err := h.rdb.Get(context.Background(), "scooter:1").Result()
		require.NoError(t, err)

		var payload telemetry.StatePayload
		require.NoError(t, json.Unmarshal([]byte(raw), &payload))
		require.Equal(t, 1, payload.ID)
		require.InDelta(t, sc.Lat, payload.Lat, 1e-7)
		require.InDelta(t, sc.Lng, payload.Lng, 1e-7)
		require.Equal(t, string(sc.Status), payload.Status)

		// Fresh key next tick.
		require.NoError(t, h.rdb.Del(context.Background(), "scooter:1").Err())
	}
}
