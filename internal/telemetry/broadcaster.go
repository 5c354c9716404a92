// SPDX-License-Identifier: MIT

// Package telemetry emits live scooter state over Redis, the way a real
// scooter's onboard module would push to the cloud: latest-known state per
// scooter, a breadcrumb trail per rental, and completed-rental events.
//
// Per-tick state goes out on the "scooter:delta" channel. Everything here is
// best-effort observability; failures are surfaced to the caller but never
// retried.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// StateChannel carries the per-tick scooter state payloads.
	StateChannel = "scooter:delta"
	// CompletedChannel carries completed-rental events.
	CompletedChannel = "rental:completed"
	// CompletedList is the LPUSH backlog of completed rentals.
	CompletedList = "completed_rentals"

	opTimeout = 3 * time.Second
)

// StatePayload is the per-tick state snapshot for one scooter.
type StatePayload struct {
	ID             int     `json:"id"`
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	Battery        float64 `json:"bat"`
	Status         string  `json:"st"`
	Speed          float64 `json:"spd"`
	InChargingZone bool    `json:"inChargingZone"`
}

// Coord is one breadcrumb of a rental trail.
type Coord struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Speed float64 `json:"spd"`
}

// CompletedRental is the event published when a rental finishes.
type CompletedRental struct {
	Type      string  `json:"type"` // always "completed_rental"
	RentalID  string  `json:"rental_id"`
	ScooterID int     `json:"scooter_id"`
	Coords    []Coord `json:"coords"`
	UserID    int     `json:"user_id"`
	UserName  string  `json:"user_name"`
	StartZone string  `json:"start_zone"`
	EndZone   string  `json:"end_zone"`
}

// Broadcaster publishes scooter telemetry over a Redis bus.
type Broadcaster struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewBroadcaster wraps an existing Redis client.
func NewBroadcaster(client *redis.Client, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{client: client, logger: logger}
}

func stateKey(scooterID int) string { return fmt.Sprintf("scooter:%d", scooterID) }

func coordsKey(rentalID string) string { return fmt.Sprintf("rental:%s:coords", rentalID) }

// BroadcastState stores the latest-known state for the scooter and pushes it
// to live subscribers.
func (b *Broadcaster) BroadcastState(ctx context.Context, payload StatePayload) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	// Latest-known retention for late-joining clients.
	if err := b.client.Set(ctx, stateKey(payload.ID), encoded, 0).Err(); err != nil {
		return fmt.Errorf("set state: %w", err)
	}
	if err := b.client.Publish(ctx, StateChannel, encoded).Err(); err != nil {
		return fmt.Errorf("publish state: %w", err)
	}
	return nil
}

// ClearCoords deletes any leftover trail before a new rental begins.
func (b *Broadcaster) ClearCoords(ctx context.Context, rentalID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := b.client.Del(ctx, coordsKey(rentalID)).Err(); err != nil {
		return fmt.Errorf("clear coords: %w", err)
	}
	return nil
}

// LogCoord appends one breadcrumb to the rental's trail.
func (b *Broadcaster) LogCoord(ctx context.Context, rentalID string, lat, lng, speed float64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	encoded, err := json.Marshal(Coord{Lat: lat, Lng: lng, Speed: speed})
	if err != nil {
		return fmt.Errorf("marshal coord: %w", err)
	}
	if err := b.client.RPush(ctx, coordsKey(rentalID), encoded).Err(); err != nil {
		return fmt.Errorf("log coord: %w", err)
	}
	return nil
}

// LoadCoords returns the complete trail of a rental, oldest first.
func (b *Broadcaster) LoadCoords(ctx context.Context, rentalID string) ([]Coord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := b.client.LRange(ctx, coordsKey(rentalID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load coords: %w", err)
	}

	coords := make([]Coord, 0, len(raw))
	for _, entry := range raw {
		var c Coord
		if err := json.Unmarshal([]byte(entry), &c); err != nil {
			b.logger.Warn().
				Err(err).
				Str("event", "telemetry.bad_coord").
				Str("rental_id", rentalID).
				Msg("dropping unparseable trail entry")
			continue
		}
		coords = append(coords, c)
	}
	return coords, nil
}

// PublishCompleted records a finished rental on the backlog list and notifies
// live subscribers.
func (b *Broadcaster) PublishCompleted(ctx context.Context, rental CompletedRental) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rental.Type = "completed_rental"
	encoded, err := json.Marshal(rental)
	if err != nil {
		return fmt.Errorf("marshal completed rental: %w", err)
	}

	if err := b.client.LPush(ctx, CompletedList, encoded).Err(); err != nil {
		return fmt.Errorf("push completed rental: %w", err)
	}
	if err := b.client.Publish(ctx, CompletedChannel, encoded).Err(); err != nil {
		return fmt.Errorf("publish completed rental: %w", err)
	}
	return nil
}
