// SPDX-License-Identifier: MIT

// Package backend is the simulator's client for the fleet backend API. All
// calls are synchronous with short timeouts; the simulation never blocks on a
// retry loop, it logs and moves on.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/velomob/scootsim/internal/telemetry"
	"github.com/velomob/scootsim/internal/zone"
)

// ErrCityNotFound marks a zone fetch for a city the backend does not know.
var ErrCityNotFound = errors.New("city not found")

// User is a rentable customer identity.
type User struct {
	ID   int    `json:"user_id"`
	Name string `json:"user_name"`
}

// Point is a coordinate pair in API payloads.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Client talks to the fleet backend.
type Client struct {
	base   string
	http   *http.Client
	logger zerolog.Logger
}

// New creates a backend client rooted at the given base URL
// (e.g. "http://system:3000/api/v1").
func New(base string, logger zerolog.Logger) *Client {
	return &Client{
		base:   strings.TrimRight(base, "/"),
		http:   &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

// FetchUsers returns all customers known to the backend. On any failure it
// returns a deterministic fallback list of 20 synthetic users so a simulation
// can always rent.
func (c *Client) FetchUsers(ctx context.Context) []User {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/customers", nil)
	res, err := c.http.Do(req)
	if err == nil {
		defer res.Body.Close()
		if res.StatusCode == http.StatusOK {
			var customers []struct {
				CustomerID int    `json:"customer_id"`
				Name       string `json:"name"`
				Email      string `json:"email"`
			}
			if err := json.NewDecoder(res.Body).Decode(&customers); err == nil {
				users := make([]User, 0, len(customers))
				for _, customer := range customers {
					name := customer.Name
					if name == "" {
						name = customer.Email
					}
					users = append(users, User{ID: customer.CustomerID, Name: name})
				}
				return users
			}
			err = fmt.Errorf("decode customers: %w", err)
		} else {
			err = fmt.Errorf("unexpected status %d", res.StatusCode)
		}
		c.logger.Warn().Err(err).Str("event", "backend.fetch_users_failed").Msg("using fallback user list")
	} else {
		c.logger.Warn().Err(err).Str("event", "backend.fetch_users_failed").Msg("using fallback user list")
	}

	fallback := make([]User, 0, 20)
	for id := 1; id <= 20; id++ {
		fallback = append(fallback, User{ID: id, Name: fmt.Sprintf("JohnDoe%d", id)})
	}
	return fallback
}

// FetchZones loads the zone definitions for a city. A 404 is reported as
// ErrCityNotFound; transport and other API errors are reported as-is.
func (c *Client) FetchZones(ctx context.Context, city string) ([]zone.Def, error) {
	url := fmt.Sprintf("%s/cities/%s/zones", c.base, city)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch zones for %q: %w", city, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("fetch zones for %q: %w", city, ErrCityNotFound)
	}
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("fetch zones for %q: status %d: %s", city, res.StatusCode, body)
	}

	var rows []struct {
		ZoneType       string   `json:"zone_type"`
		CoordinatesWKT string   `json:"coordinates_wkt"`
		SpeedLimit     *float64 `json:"speed_limit"`
	}
	if err := json.NewDecoder(res.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode zones for %q: %w", city, err)
	}

	defs := make([]zone.Def, 0, len(rows))
	for _, row := range rows {
		defs = append(defs, zone.Def{
			ZoneType:   row.ZoneType,
			WKT:        row.CoordinatesWKT,
			SpeedLimit: row.SpeedLimit,
		})
	}
	return defs, nil
}

// CreateRental opens a rental on the backend. It succeeds only on HTTP 201
// with a rental_id in the response, and returns the server-assigned id.
func (c *Client) CreateRental(ctx context.Context, customerID, bikeID int, startPoint Point, startZone string) (string, error) {
	body, _ := json.Marshal(map[string]any{
		"customer_id": customerID,
		"bike_id":     bikeID,
		"start_point": startPoint,
		"start_zone":  startZone,
	})
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/rentals", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("create rental: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create rental: status %d", res.StatusCode)
	}

	// The id column type has changed across backend revisions; accept both
	// string and numeric ids.
	decoder := json.NewDecoder(res.Body)
	decoder.UseNumber()
	var payload map[string]any
	if err := decoder.Decode(&payload); err != nil {
		return "", fmt.Errorf("create rental: decode response: %w", err)
	}
	switch id := payload["rental_id"].(type) {
	case string:
		if id != "" {
			return id, nil
		}
	case json.Number:
		return id.String(), nil
	}
	return "", errors.New("create rental: response missing rental_id")
}

// CompleteRental closes a rental on the backend with its end point, end zone
// and the full traveled route. An empty route is treated as failure without
// touching the backend.
func (c *Client) CompleteRental(ctx context.Context, rentalID string, endPoint Point, endZone string, route []telemetry.Coord) error {
	if len(route) == 0 {
		return fmt.Errorf("complete rental %s: empty route", rentalID)
	}

	body, _ := json.Marshal(map[string]any{
		"end_point": endPoint,
		"end_zone":  endZone,
		"route":     route,
	})
	req, _ := http.NewRequestWithContext(ctx, http.MethodPut, c.base+"/rentals/"+rentalID, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("complete rental %s: %w", rentalID, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusNoContent {
		return fmt.Errorf("complete rental %s: status %d", rentalID, res.StatusCode)
	}
	return nil
}

// UpdateBikeStatus writes a scooter's status and position to the backend.
func (c *Client) UpdateBikeStatus(ctx context.Context, bikeID int, status string, lat, lng float64) error {
	body, _ := json.Marshal(map[string]any{
		"status": status,
		"lat":    lat,
		"lng":    lng,
	})
	req, _ := http.NewRequestWithContext(ctx, http.MethodPut, fmt.Sprintf("%s/bikes/%d", c.base, bikeID), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("update bike %d: %w", bikeID, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("update bike %d: status %d", bikeID, res.StatusCode)
	}
	return nil
}

// WaitReady polls the customers endpoint until the backend answers, or the
// timeout elapses. Used once at startup before seeding.
func (c *Client) WaitReady(ctx context.Context, timeout, interval time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/customers", nil)
		res, err := c.http.Do(req)
		if err == nil {
			res.Body.Close()
			if res.StatusCode == http.StatusOK {
				return nil
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("backend not ready after %s", timeout)
		}

		c.logger.Info().Str("event", "backend.waiting").Msg("waiting for backend")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
