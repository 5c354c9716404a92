// SPDX-License-Identifier: MIT

// Package listener bridges Redis pub/sub control channels into the
// simulator's intake queues. Each listener owns one subscription, decodes
// and validates messages, and enqueues the valid ones; malformed traffic is
// logged and dropped so a bad publisher can never stall the simulation.
package listener

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/velomob/scootsim/internal/metrics"
	"github.com/velomob/scootsim/internal/scooter"
	"github.com/velomob/scootsim/internal/sim"
)

const (
	// AdminChannel carries admin status overrides.
	AdminChannel = "admin:scooter_status_update"
	// RentalChannel carries external rental lifecycle events.
	RentalChannel = "rental:lifecycle"
)

// AdminListener feeds admin status overrides into the simulation.
type AdminListener struct {
	client *redis.Client
	intake *sim.Intake
	logger zerolog.Logger
}

// NewAdminListener wires a Redis client to the intake's admin queue.
func NewAdminListener(client *redis.Client, intake *sim.Intake, logger zerolog.Logger) *AdminListener {
	return &AdminListener{client: client, intake: intake, logger: logger}
}

// Run consumes the admin channel until the context is cancelled.
func (l *AdminListener) Run(ctx context.Context) error {
	sub := l.client.Subscribe(ctx, AdminChannel)
	defer sub.Close()

	l.logger.Info().
		Str("channel", AdminChannel).
		Str("event", "listener.started").
		Msg("admin listener started")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Str("event", "listener.stopped").Msg("admin listener stopped")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			l.handle(msg.Payload)
		}
	}
}

func (l *AdminListener) handle(payload string) {
	var wire struct {
		ID     int    `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		l.logger.Warn().
			Err(err).
			Str("payload", payload).
			Str("event", "listener.admin_malformed").
			Msg("dropping malformed admin message")
		metrics.IncIntakeDrop("admin", "malformed")
		return
	}

	status, ok := scooter.ParseStatus(wire.Status)
	if !ok || wire.ID <= 0 {
		l.logger.Warn().
			Int("scooter_id", wire.ID).
			Str("status", wire.Status).
			Str("event", "listener.admin_invalid").
			Msg("dropping invalid admin message")
		metrics.IncIntakeDrop("admin", "invalid")
		return
	}

	l.intake.EnqueueAdminUpdate(sim.AdminUpdate{ScooterID: wire.ID, Status: status})
}

// RentalListener feeds external rental lifecycle events into the simulation.
type RentalListener struct {
	client *redis.Client
	intake *sim.Intake
	logger zerolog.Logger
}

// NewRentalListener wires a Redis client to the intake's rental queue.
func NewRentalListener(client *redis.Client, intake *sim.Intake, logger zerolog.Logger) *RentalListener {
	return &RentalListener{client: client, intake: intake, logger: logger}
}

// Run consumes the rental channel until the context is cancelled.
func (l *RentalListener) Run(ctx context.Context) error {
	sub := l.client.Subscribe(ctx, RentalChannel)
	defer sub.Close()

	l.logger.Info().
		Str("channel", RentalChannel).
		Str("event", "listener.started").
		Msg("rental listener started")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Str("event", "listener.stopped").Msg("rental listener stopped")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			l.handle(msg.Payload)
		}
	}
}

func (l *RentalListener) handle(payload string) {
	var wire struct {
		Type      string `json:"type"`
		ScooterID int    `json:"scooter_id"`
		RentalID  string `json:"rental_id"`
		UserID    int    `json:"user_id"`
		UserName  string `json:"user_name"`
	}
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		l.logger.Warn().
			Err(err).
			Str("payload", payload).
			Str("event", "listener.rental_malformed").
			Msg("dropping malformed rental message")
		metrics.IncIntakeDrop("rental", "malformed")
		return
	}

	if (wire.Type != sim.RentalEventStarted && wire.Type != sim.RentalEventEnded) ||
		wire.ScooterID <= 0 || wire.RentalID == "" {
		l.logger.Warn().
			Str("type", wire.Type).
			Int("scooter_id", wire.ScooterID).
			Str("rental_id", wire.RentalID).
			Str("event", "listener.rental_invalid").
			Msg("dropping invalid rental message")
		metrics.IncIntakeDrop("rental", "invalid")
		return
	}

	l.intake.EnqueueRentalEvent(sim.RentalEvent{
		Type:      wire.Type,
		ScooterID: wire.ScooterID,
		RentalID:  wire.RentalID,
		UserID:    wire.UserID,
		UserName:  wire.UserName,
	})
}
