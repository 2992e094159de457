// Package presence derives per-room online lists from the connection registry
// and keeps short-lived typing flags that expire on their own.
package presence

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/Tyrowin/hangout/internal/protocol"
	"github.com/Tyrowin/hangout/internal/registry"
)

// DefaultTypingTTL is how long a typing flag survives without a new signal.
const DefaultTypingTTL = 3 * time.Second

// Broadcaster delivers an event to every connection currently in a room.
type Broadcaster interface {
	ToRoom(room string, event protocol.Event)
}

type typingKey struct {
	room     string
	username string
}

type typingFlag struct {
	generation uint64
	timer      *time.Timer
}

// Tracker owns the connection registry on behalf of the hub and publishes
// presence and typing changes through a Broadcaster.
type Tracker[K comparable] struct {
	conns *registry.Registry[K]
	out   Broadcaster
	ttl   time.Duration

	mu         sync.Mutex
	typing     map[typingKey]*typingFlag
	generation uint64

	// publishMu spans computing a list and handing it to the broadcaster,
	// so the last event a room sees always reflects the latest state.
	publishMu sync.Mutex
}

// NewTracker builds a tracker. A non-positive ttl selects DefaultTypingTTL.
func NewTracker[K comparable](conns *registry.Registry[K], out Broadcaster, ttl time.Duration) *Tracker[K] {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &Tracker[K]{
		conns:  conns,
		out:    out,
		ttl:    ttl,
		typing: make(map[typingKey]*typingFlag),
	}
}

// Registry exposes the underlying connection registry for read-only queries.
func (t *Tracker[K]) Registry() *registry.Registry[K] {
	return t.conns
}

// Join records the connection and announces the room's new online list.
func (t *Tracker[K]) Join(conn K, username, room string) error {
	if err := t.conns.Register(conn, username, room); err != nil {
		return err
	}
	t.publishPresence(room)
	return nil
}

// Leave forgets the connection, drops the user's typing flag in the room it
// had joined, and rebroadcasts both lists. Unknown connections are ignored.
func (t *Tracker[K]) Leave(conn K) (registry.Entry, bool) {
	entry, ok := t.conns.Remove(conn)
	if !ok {
		return registry.Entry{}, false
	}

	t.mu.Lock()
	t.clearLocked(typingKey{room: entry.Room, username: entry.Username})
	t.mu.Unlock()

	t.publishPresence(entry.Room)
	t.publishTyping(entry.Room)
	return entry, true
}

// Typing sets or refreshes the flag and re-arms its expiry.
func (t *Tracker[K]) Typing(username, room string) {
	key := typingKey{room: room, username: username}

	t.mu.Lock()
	t.generation++
	generation := t.generation
	if flag, ok := t.typing[key]; ok {
		flag.timer.Stop()
	}
	t.typing[key] = &typingFlag{
		generation: generation,
		timer: time.AfterFunc(t.ttl, func() {
			t.expire(key, generation)
		}),
	}
	t.mu.Unlock()

	t.publishTyping(room)
}

// StopTyping clears the flag immediately.
func (t *Tracker[K]) StopTyping(username, room string) {
	t.mu.Lock()
	t.clearLocked(typingKey{room: room, username: username})
	t.mu.Unlock()

	t.publishTyping(room)
}

// TypingUsers returns the sorted usernames currently flagged in room.
func (t *Tracker[K]) TypingUsers(room string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typingUsersLocked(room)
}

// ReplyTyping hands room's typing list to reply, ordered with the room's
// broadcasts so a joiner never sees it after a newer list.
func (t *Tracker[K]) ReplyTyping(room string, reply func(protocol.Event)) {
	t.publishMu.Lock()
	defer t.publishMu.Unlock()
	reply(protocol.TypingList(room, t.TypingUsers(room)))
}

// Close stops every pending expiry timer.
func (t *Tracker[K]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, flag := range t.typing {
		flag.timer.Stop()
		delete(t.typing, key)
	}
}

func (t *Tracker[K]) expire(key typingKey, generation uint64) {
	t.mu.Lock()
	flag, ok := t.typing[key]
	if !ok || flag.generation != generation {
		// Re-armed or already cleared.
		t.mu.Unlock()
		return
	}
	delete(t.typing, key)
	t.mu.Unlock()

	log.Printf("Typing flag for %s in room %q expired", key.username, key.room)
	t.publishTyping(key.room)
}

func (t *Tracker[K]) clearLocked(key typingKey) {
	if flag, ok := t.typing[key]; ok {
		flag.timer.Stop()
		delete(t.typing, key)
	}
}

func (t *Tracker[K]) typingUsersLocked(room string) []string {
	users := make([]string, 0)
	for key := range t.typing {
		if key.room == room {
			users = append(users, key.username)
		}
	}
	sort.Strings(users)
	return users
}

// The broadcaster only enqueues, so holding publishMu never waits on a peer.
func (t *Tracker[K]) publishPresence(room string) {
	t.publishMu.Lock()
	defer t.publishMu.Unlock()
	t.out.ToRoom(room, protocol.PresenceList(room, t.conns.ListByRoom(room)))
}

func (t *Tracker[K]) publishTyping(room string) {
	t.publishMu.Lock()
	defer t.publishMu.Unlock()
	t.out.ToRoom(room, protocol.TypingList(room, t.TypingUsers(room)))
}
