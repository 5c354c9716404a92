// SPDX-License-Identifier: MIT
package sim

import (
	"sync"

	"github.com/velomob/scootsim/internal/metrics"
	"github.com/velomob/scootsim/internal/scooter"
)

// AdminUpdate is a queued admin status override for one scooter.
type AdminUpdate struct {
	ScooterID int
	Status    scooter.Status
}

// RentalEventStarted and RentalEventEnded are the two known rental
// lifecycle event types.
const (
	RentalEventStarted = "rental_started"
	RentalEventEnded   = "rental_ended"
)

// RentalEvent is a queued external rental lifecycle event.
type RentalEvent struct {
	Type      string
	ScooterID int
	RentalID  string
	UserID    int
	UserName  string
}

// Intake is the only cross-thread ingress into the simulation: two FIFO
// queues, each behind its own mutex. Listener goroutines append; the
// simulation loop drains both at the top of every tick.
type Intake struct {
	adminMu sync.Mutex
	admin   []AdminUpdate

	rentalMu sync.Mutex
	rental   []RentalEvent
}

// NewIntake creates empty intake queues.
func NewIntake() *Intake {
	return &Intake{}
}

// EnqueueAdminUpdate appends an admin status override.
func (q *Intake) EnqueueAdminUpdate(u AdminUpdate) {
	q.adminMu.Lock()
	q.admin = append(q.admin, u)
	q.adminMu.Unlock()
	metrics.IntakeEnqueuedTotal.WithLabelValues("admin").Inc()
}

// EnqueueRentalEvent appends an external rental lifecycle event.
func (q *Intake) EnqueueRentalEvent(e RentalEvent) {
	q.rentalMu.Lock()
	q.rental = append(q.rental, e)
	q.rentalMu.Unlock()
	metrics.IntakeEnqueuedTotal.WithLabelValues("rental").Inc()
}

// DrainAdmin empties the admin queue and returns at most one update per
// scooter: the last one enqueued wins, in the order the winners arrived.
func (q *Intake) DrainAdmin() []AdminUpdate {
	q.adminMu.Lock()
	pending := q.admin
	q.admin = nil
	q.adminMu.Unlock()

	return dedupeLastWins(pending, func(u AdminUpdate) int { return u.ScooterID }, "admin")
}

// DrainRental empties the rental queue with the same last-write-wins rule.
func (q *Intake) DrainRental() []RentalEvent {
	q.rentalMu.Lock()
	pending := q.rental
	q.rental = nil
	q.rentalMu.Unlock()

	return dedupeLastWins(pending, func(e RentalEvent) int { return e.ScooterID }, "rental")
}

// dedupeLastWins keeps only the final entry per key, ordered by the position
// of that final entry in the original queue.
func dedupeLastWins[T any](entries []T, key func(T) int, queue string) []T {
	if len(entries) <= 1 {
		return entries
	}

	lastIndex := make(map[int]int, len(entries))
	for i, e := range entries {
		lastIndex[key(e)] = i
	}

	out := make([]T, 0, len(lastIndex))
	for i, e := range entries {
		if lastIndex[key(e)] == i {
			out = append(out, e)
		} else {
			metrics.IncIntakeDrop(queue, "superseded")
		}
	}
	return out
}
