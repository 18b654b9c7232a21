// Package unit contains unit tests for individual components of the Aganor
// relay server.
//
// These tests exercise specific functions and methods in isolation, without
// real network connections. Connection handles passed to the Registry are
// plain pointers used only as map keys, so clients built around nil websocket
// connections are sufficient.
package unit

import (
	"sync"
	"testing"

	"github.com/agare87900/aganor/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(hub *server.Hub) *server.Client {
	return server.NewClient(nil, hub, "127.0.0.1:12345")
}

func TestRegisterAppliesDefaults(t *testing.T) {
	registry := server.NewRegistry()
	hub := server.NewHub()

	state, roster := registry.Register(newTestClient(hub), "", "")

	assert.Equal(t, 1, state.ID)
	assert.Equal(t, "Player1", state.Name)
	assert.Equal(t, "red", state.Team)
	assert.Equal(t, float64(0), state.X)
	assert.Equal(t, float64(70), state.Y)
	assert.Equal(t, float64(0), state.Z)
	assert.Equal(t, float64(0), state.Yaw)

	require.Len(t, roster, 1)
	assert.Equal(t, state, roster[0])
}

func TestRegisterKeepsProvidedIdentity(t *testing.T) {
	registry := server.NewRegistry()
	hub := server.NewHub()

	state, _ := registry.Register(newTestClient(hub), "steve", "blue")

	assert.Equal(t, "steve", state.Name)
	assert.Equal(t, "blue", state.Team)
}

func TestRegisterAssignsMonotonicIDs(t *testing.T) {
	registry := server.NewRegistry()
	hub := server.NewHub()

	first := newTestClient(hub)
	second := newTestClient(hub)

	firstState, _ := registry.Register(first, "", "")
	secondState, _ := registry.Register(second, "", "")

	assert.Equal(t, 1, firstState.ID)
	assert.Equal(t, 2, secondState.ID)

	// An id is never reused, even after its owner leaves.
	_, ok := registry.Unregister(first)
	require.True(t, ok)

	thirdState, _ := registry.Register(newTestClient(hub), "", "")
	assert.Equal(t, 3, thirdState.ID)
	assert.Equal(t, "Player3", thirdState.Name)
}

func TestRegisterRosterIncludesNewPlayer(t *testing.T) {
	registry := server.NewRegistry()
	hub := server.NewHub()

	registry.Register(newTestClient(hub), "alice", "")
	registry.Register(newTestClient(hub), "bob", "")
	state, roster := registry.Register(newTestClient(hub), "carol", "")

	require.Len(t, roster, 3)
	assert.Equal(t, "alice", roster[0].Name)
	assert.Equal(t, "bob", roster[1].Name)
	assert.Equal(t, "carol", roster[2].Name)
	assert.Equal(t, state, roster[2])
}

func TestUpdateTransform(t *testing.T) {
	registry := server.NewRegistry()
	hub := server.NewHub()
	client := newTestClient(hub)

	registry.Register(client, "", "")

	updated, ok := registry.UpdateTransform(client, 1.5, 64, -3, 0.25)
	require.True(t, ok)
	assert.Equal(t, 1.5, updated.X)
	assert.Equal(t, float64(64), updated.Y)
	assert.Equal(t, float64(-3), updated.Z)
	assert.Equal(t, 0.25, updated.Yaw)

	// The cached state reflects the update for later roster snapshots.
	looked, ok := registry.Lookup(client)
	require.True(t, ok)
	assert.Equal(t, updated, looked)
}

func TestUpdateTransformUnknownClient(t *testing.T) {
	registry := server.NewRegistry()
	hub := server.NewHub()

	_, ok := registry.UpdateTransform(newTestClient(hub), 1, 2, 3, 0)
	assert.False(t, ok)
}

func TestUnregister(t *testing.T) {
	registry := server.NewRegistry()
	hub := server.NewHub()
	client := newTestClient(hub)

	registered, _ := registry.Register(client, "dave", "blue")

	removed, ok := registry.Unregister(client)
	require.True(t, ok)
	assert.Equal(t, registered, removed)
	assert.Equal(t, 0, registry.Count())

	// A second unregister of the same connection is a no-op.
	_, ok = registry.Unregister(client)
	assert.False(t, ok)
}

func TestLookupUnknownClient(t *testing.T) {
	registry := server.NewRegistry()
	hub := server.NewHub()

	_, ok := registry.Lookup(newTestClient(hub))
	assert.False(t, ok)
}

func TestSnapshotSortedByID(t *testing.T) {
	registry := server.NewRegistry()
	hub := server.NewHub()

	for i := 0; i < 5; i++ {
		registry.Register(newTestClient(hub), "", "")
	}

	roster := registry.Snapshot()
	require.Len(t, roster, 5)
	for i, state := range roster {
		assert.Equal(t, i+1, state.ID)
	}
}

func TestConcurrentRegistrationsGetUniqueIDs(t *testing.T) {
	registry := server.NewRegistry()
	hub := server.NewHub()

	const numClients = 50

	var wg sync.WaitGroup
	ids := make(chan int, numClients)

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state, _ := registry.Register(newTestClient(hub), "", "")
			ids <- state.ID
		}()
	}

	wg.Wait()
	close(ids)

	seen := make(map[int]bool)
	for id := range ids {
		assert.False(t, seen[id], "id %d assigned twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, numClients)
	assert.Equal(t, numClients, registry.Count())
}
