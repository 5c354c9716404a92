// SPDX-License-Identifier: MIT
package sim

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velomob/scootsim/internal/backend"
)

func TestUserPoolDrawAndReturn(t *testing.T) {
	users := []backend.User{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}, {ID: 3, Name: "c"}}
	p := NewUserPool(users, 7)

	seen := map[int]bool{}
	for i := 0; i < 3; i++ {
		u, ok := p.Draw()
		require.True(t, ok)
		require.False(t, seen[u.ID], "a drawn user must not be drawn again")
		seen[u.ID] = true
	}

	_, ok := p.Draw()
	require.False(t, ok, "empty pool refuses to draw")

	p.Return(backend.User{ID: 2, Name: "b"})
	u, ok := p.Draw()
	require.True(t, ok)
	require.Equal(t, 2, u.ID)
}

func TestUserPoolIsDeterministicPerSeed(t *testing.T) {
	users := []backend.User{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}}

	a := NewUserPool(users, 99)
	b := NewUserPool(users, 99)
	for i := 0; i < 4; i++ {
		ua, _ := a.Draw()
		ub, _ := b.Draw()
		require.Equal(t, ua, ub)
	}
}

func TestUserPoolCopiesInput(t *testing.T) {
	users := []backend.User{{ID: 1}}
	p := NewUserPool(users, 1)
	users[0].ID = 999

	u, ok := p.Draw()
	require.True(t, ok)
	require.Equal(t, 1, u.ID)
}
