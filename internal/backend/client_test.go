// SPDX-License-Identifier: MIT
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velomob/scootsim/internal/telemetry"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL, zerolog.Nop())
}

func TestFetchUsers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/customers", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"customer_id": 1, "name": "Alice"},
			{"customer_id": 2, "email": "bob@example.com"},
		})
	})

	users := c.FetchUsers(context.Background())
	require.Len(t, users, 2)
	assert.Equal(t, User{ID: 1, Name: "Alice"}, users[0])
	assert.Equal(t, User{ID: 2, Name: "bob@example.com"}, users[1])
}

func TestFetchUsersFallback(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	users := c.FetchUsers(context.Background())
	require.Len(t, users, 20)
	assert.Equal(t, User{ID: 1, Name: "JohnDoe1"}, users[0])
	assert.Equal(t, User{ID: 20, Name: "JohnDoe20"}, users[19])
}

func TestFetchZones(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cities/malmoe/zones", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"zone_type": "city", "coordinates_wkt": "POLYGON((0 0, 1 0, 1 1, 0 1, 0 0))"},
			{"zone_type": "slow", "coordinates_wkt": "POLYGON((0 0, 1 0, 1 1, 0 1, 0 0))", "speed_limit": 8},
		})
	})

	defs, err := c.FetchZones(context.Background(), "malmoe")
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "city", defs[0].ZoneType)
	assert.Nil(t, defs[0].SpeedLimit)
	require.NotNil(t, defs[1].SpeedLimit)
	assert.Equal(t, float64(8), *defs[1].SpeedLimit)
}

func TestFetchZonesNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.FetchZones(context.Background(), "atlantis")
	assert.ErrorIs(t, err, ErrCityNotFound)
}

func TestFetchZonesServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.FetchZones(context.Background(), "malmoe")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCityNotFound))
}

func TestCreateRental(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rentals", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(12), body["customer_id"])
		assert.Equal(t, float64(3), body["bike_id"])
		assert.Equal(t, "free", body["start_zone"])

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"rental_id": 991})
	})

	id, err := c.CreateRental(context.Background(), 12, 3, Point{Lat: 55.6, Lng: 13.0}, "free")
	require.NoError(t, err)
	assert.Equal(t, "991", id)
}

func TestCreateRentalStringID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"rental_id": "srv-42"})
	})

	id, err := c.CreateRental(context.Background(), 1, 1, Point{}, "free")
	require.NoError(t, err)
	assert.Equal(t, "srv-42", id)
}

func TestCreateRentalRejectsNon201(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"rental_id": "x"})
	})

	_, err := c.CreateRental(context.Background(), 1, 1, Point{}, "free")
	assert.Error(t, err)
}

func TestCreateRentalMissingID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	_, err := c.CreateRental(context.Background(), 1, 1, Point{}, "free")
	assert.Error(t, err)
}

func TestCompleteRental(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodPut, r.Method)

		var body struct {
			EndZone string           `json:"end_zone"`
			Route   []telemetry.Coord `json:"route"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "parking", body.EndZone)
		assert.Len(t, body.Route, 2)

		w.WriteHeader(http.StatusNoContent)
	})

	route := []telemetry.Coord{{Lat: 55.60, Lng: 12.99}, {Lat: 55.61, Lng: 13.00}}
	err := c.CompleteRental(context.Background(), "991", Point{Lat: 55.61, Lng: 13.00}, "parking", route)
	require.NoError(t, err)
	assert.Equal(t, "/rentals/991", gotPath)
}

func TestCompleteRentalEmptyRoute(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	err := c.CompleteRental(context.Background(), "991", Point{}, "free", nil)
	assert.Error(t, err)
	assert.False(t, called, "empty route must not reach the backend")
}

func TestUpdateBikeStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/bikes/3", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "available", body["status"])

		w.WriteHeader(http.StatusOK)
	})

	err := c.UpdateBikeStatus(context.Background(), 3, "available", 55.6, 13.0)
	assert.NoError(t, err)
}

func TestUpdateBikeStatusFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := c.UpdateBikeStatus(context.Background(), 3, "available", 55.6, 13.0)
	assert.Error(t, err)
}

func TestWaitReady(t *testing.T) {
	attempts := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	err := c.WaitReady(context.Background(), 2*time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, attempts, 3)
}

func TestWaitReadyTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := c.WaitReady(context.Background(), 30*time.Millisecond, 10*time.Millisecond)
	assert.Error(t, err)
}
