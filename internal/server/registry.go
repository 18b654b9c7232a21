// Package server tracks the authenticated session for each live connection
// through the Registry type, which owns identity allocation and roster
// snapshots.
package server

import (
	"fmt"
	"sort"
	"sync"
)

// Default spawn transform assigned to every newly registered player.
const (
	spawnX   = 0
	spawnY   = 70
	spawnZ   = 0
	spawnYaw = 0
)

// defaultTeam is used when a hello message carries no team.
const defaultTeam = "red"

// Registry maps each live connection to its authenticated player state and
// allocates monotonic player ids. A connection is present exactly when it has
// completed the hello handshake and has not yet disconnected. All access is
// serialized by a single mutex so a welcome roster can never race another
// registration.
type Registry struct {
	mu      sync.Mutex
	players map[*Client]*PlayerState
	nextID  int
}

// NewRegistry creates an empty Registry. Ids start at 1 and are never reused
// within the process lifetime.
func NewRegistry() *Registry {
	return &Registry{
		players: make(map[*Client]*PlayerState),
		nextID:  1,
	}
}

// Register allocates the next player id, builds the player's state with
// defaults applied, inserts it, marks the connection eligible for broadcasts,
// and snapshots the roster in one critical section. The returned roster
// therefore always contains the new player's own state, and any registration
// that runs later fans its join out to this connection: a player can never
// appear in someone's welcome roster while still being skipped by the fan-out.
func (r *Registry) Register(client *Client, name, team string) (PlayerState, []PlayerState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++

	if name == "" {
		name = fmt.Sprintf("Player%d", id)
	}
	if team == "" {
		team = defaultTeam
	}

	state := &PlayerState{
		ID:   id,
		Name: name,
		Team: team,
		X:    spawnX,
		Y:    spawnY,
		Z:    spawnZ,
		Yaw:  spawnYaw,
	}
	r.players[client] = state
	client.authenticated.Store(true)

	return *state, r.snapshotLocked()
}

// Lookup returns a copy of the state owned by the given connection, or false
// if the connection never authenticated or has already been removed.
func (r *Registry) Lookup(client *Client) (PlayerState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.players[client]
	if !ok {
		return PlayerState{}, false
	}
	return *state, true
}

// UpdateTransform overwrites the position and heading of the player owned by
// the given connection and returns the updated state. It returns false if the
// connection is not registered; the update is then dropped.
func (r *Registry) UpdateTransform(client *Client, x, y, z, yaw float64) (PlayerState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.players[client]
	if !ok {
		return PlayerState{}, false
	}
	state.X = x
	state.Y = y
	state.Z = z
	state.Yaw = yaw
	return *state, true
}

// Unregister removes the given connection and returns its prior state. It
// returns false if the connection was never registered, in which case no
// leave notice should be sent.
func (r *Registry) Unregister(client *Client) (PlayerState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.players[client]
	if !ok {
		return PlayerState{}, false
	}
	delete(r.players, client)
	return *state, true
}

// Snapshot returns a copy of every currently registered player's state,
// sorted by id.
func (r *Registry) Snapshot() []PlayerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.snapshotLocked()
}

// Count returns the number of currently registered players.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.players)
}

func (r *Registry) snapshotLocked() []PlayerState {
	roster := make([]PlayerState, 0, len(r.players))
	for _, state := range r.players {
		roster = append(roster, *state)
	}
	sort.Slice(roster, func(i, j int) bool {
		return roster[i].ID < roster[j].ID
	})
	return roster
}
