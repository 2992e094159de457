// Package registry owns the set of live connections and the username and
// room each one joined with.
//
// Every read returns a copy taken under the lock, so callers may fan out to
// the result without holding registry state.
package registry

import (
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/Tyrowin/hangout/internal/platform/errors"
)

// Entry is the identity recorded for a connection at join time.
type Entry struct {
	Username string
	Room     string
}

// Registry maps connections to the (username, room) they joined with. K is
// the connection handle; pointer identity is the usual choice.
type Registry[K comparable] struct {
	mu      sync.RWMutex
	entries map[K]Entry
}

// New returns an empty registry.
func New[K comparable]() *Registry[K] {
	return &Registry[K]{entries: make(map[K]Entry)}
}

// Register records conn as username in room. A connection may register once;
// a second attempt is a protocol error and leaves the first entry intact.
func (r *Registry[K]) Register(conn K, username, room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[conn]; ok {
		return apperrors.New(apperrors.CodeProtocol,
			fmt.Sprintf("connection already joined room %q as %q", existing.Room, existing.Username))
	}
	r.entries[conn] = Entry{Username: username, Room: room}
	return nil
}

// Remove deletes conn and returns the entry it held. Removing an unknown
// connection is a no-op reported by ok == false.
func (r *Registry[K]) Remove(conn K) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[conn]
	if ok {
		delete(r.entries, conn)
	}
	return entry, ok
}

// Lookup returns the entry recorded for conn.
func (r *Registry[K]) Lookup(conn K) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[conn]
	return entry, ok
}

// ListByRoom returns the sorted, distinct usernames connected to room.
func (r *Registry[K]) ListByRoom(room string) []string {
	r.mu.RLock()
	seen := make(map[string]struct{})
	for _, entry := range r.entries {
		if entry.Room == room {
			seen[entry.Username] = struct{}{}
		}
	}
	r.mu.RUnlock()

	users := make([]string, 0, len(seen))
	for username := range seen {
		users = append(users, username)
	}
	sort.Strings(users)
	return users
}

// CountByRoom returns the number of distinct usernames connected to room.
func (r *Registry[K]) CountByRoom(room string) int {
	return len(r.ListByRoom(room))
}

// ConnectionsInRoom returns a snapshot of the connections joined to room.
func (r *Registry[K]) ConnectionsInRoom(room string) []K {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]K, 0)
	for conn, entry := range r.entries {
		if entry.Room == room {
			conns = append(conns, conn)
		}
	}
	return conns
}

// All returns a snapshot of every registered connection.
func (r *Registry[K]) All() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]K, 0, len(r.entries))
	for conn := range r.entries {
		conns = append(conns, conn)
	}
	return conns
}

// Len returns the number of registered connections.
func (r *Registry[K]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
