// SPDX-License-Identifier: MIT
package sim

import (
	"math/rand"

	"github.com/velomob/scootsim/internal/backend"
)

// UserPool is the multiset of customers available for simulated rentals.
// Users are drawn uniformly at random on rental start and returned on any
// rental termination. Only the simulation loop touches it.
type UserPool struct {
	users []backend.User
	rng   *rand.Rand
}

// NewUserPool creates a pool seeded for deterministic draws in tests.
func NewUserPool(users []backend.User, seed int64) *UserPool {
	return &UserPool{
		users: append([]backend.User(nil), users...),
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Draw removes and returns a uniformly random user. ok is false when the
// pool is empty.
func (p *UserPool) Draw() (user backend.User, ok bool) {
	if len(p.users) == 0 {
		return backend.User{}, false
	}
	i := p.rng.Intn(len(p.users))
	user = p.users[i]
	p.users[i] = p.users[len(p.users)-1]
	p.users = p.users[:len(p.users)-1]
	return user, true
}

// Return puts a user back into the pool.
func (p *UserPool) Return(user backend.User) {
	p.users = append(p.users, user)
}

// Len returns the number of users currently available.
func (p *UserPool) Len() int { return len(p.users) }
