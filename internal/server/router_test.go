package server

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Tyrowin/hangout/internal/protocol"
	"github.com/Tyrowin/hangout/internal/rooms"
	"github.com/Tyrowin/hangout/internal/storage"
)

func newIdleHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(*NewConfig(), rooms.NewDirectory(nil))
	t.Cleanup(hub.tracker.Close)
	return hub
}

func joinIdle(t *testing.T, hub *Hub, username, room string) *Client {
	t.Helper()
	c := NewClient(nil, hub, username+"-addr")
	if err := hub.tracker.Join(c, username, room); err != nil {
		t.Fatalf("Failed to join %s: %v", username, err)
	}
	return c
}

// queued drains every frame waiting in the client's send buffer.
func queued(t *testing.T, c *Client) []protocol.Event {
	t.Helper()
	var events []protocol.Event
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return events
			}
			var event protocol.Event
			if err := json.Unmarshal(data, &event); err != nil {
				t.Fatalf("Failed to decode queued event: %v", err)
			}
			events = append(events, event)
		default:
			return events
		}
	}
}

func TestToRoomDeliversOnlyToRoom(t *testing.T) {
	hub := newIdleHub(t)
	alice := joinIdle(t, hub, "alice", "main")
	bob := joinIdle(t, hub, "bob", "main")
	carol := joinIdle(t, hub, "carol", "side")
	queued(t, alice)
	queued(t, bob)
	queued(t, carol)

	hub.ToRoom("main", protocol.Effect(protocol.EventConfetti, false))

	for _, c := range []*Client{alice, bob} {
		events := queued(t, c)
		if len(events) != 1 || events[0].Type != protocol.EventConfetti {
			t.Errorf("Expected one confetti event, got %+v", events)
		}
	}
	if events := queued(t, carol); len(events) != 0 {
		t.Errorf("Expected nothing for another room, got %+v", events)
	}
}

func TestToAllSkipsUnjoinedClients(t *testing.T) {
	hub := newIdleHub(t)
	alice := joinIdle(t, hub, "alice", "main")
	carol := joinIdle(t, hub, "carol", "side")
	lurker := NewClient(nil, hub, "lurker-addr")
	queued(t, alice)
	queued(t, carol)

	hub.ToAll(protocol.Effect(protocol.EventJumpscare, true))

	for _, c := range []*Client{alice, carol} {
		events := queued(t, c)
		if len(events) != 1 || !events[0].Global {
			t.Errorf("Expected one global jumpscare, got %+v", events)
		}
	}
	if events := queued(t, lurker); len(events) != 0 {
		t.Errorf("Expected nothing for an unjoined client, got %+v", events)
	}
}

// TestFullBufferDropsForThatClientOnly checks that a slow consumer neither
// blocks the broadcast nor starves its room mates.
func TestFullBufferDropsForThatClientOnly(t *testing.T) {
	hub := newIdleHub(t)
	slow := joinIdle(t, hub, "slow", "main")
	fast := joinIdle(t, hub, "fast", "main")
	queued(t, fast)
	for slow.enqueue([]byte(`{"type":"filler"}`)) {
	}

	done := make(chan struct{})
	go func() {
		hub.ToRoom("main", protocol.Effect(protocol.EventConfetti, false))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a full send buffer")
	}

	if events := queued(t, fast); len(events) != 1 {
		t.Errorf("Expected the fast client to receive the event, got %+v", events)
	}
	if len(slow.send) != sendBufferSize {
		t.Errorf("Expected the slow buffer to stay full, got %d", len(slow.send))
	}
}

func TestEnqueueAfterCloseIsRejected(t *testing.T) {
	hub := newIdleHub(t)
	c := NewClient(nil, hub, "addr")

	c.closeSend()
	c.closeSend()
	if c.enqueue([]byte("x")) {
		t.Error("Expected enqueue on a closed client to fail")
	}
}

// TestReleaseRebroadcastsPresence checks the leave path without a socket.
func TestReleaseRebroadcastsPresence(t *testing.T) {
	hub := newIdleHub(t)
	alice := joinIdle(t, hub, "alice", "main")
	bob := joinIdle(t, hub, "bob", "main")
	hub.clients[bob] = struct{}{}
	queued(t, alice)

	hub.release(bob)

	var presence *protocol.Event
	for _, event := range queued(t, alice) {
		if event.Type == protocol.EventPresenceList {
			presence = &event
		}
	}
	if presence == nil || len(presence.Users) != 1 || presence.Users[0] != "alice" {
		t.Errorf("Expected presence [alice], got %+v", presence)
	}
	if bob.enqueue([]byte("x")) {
		t.Error("Expected the released client's send buffer to be closed")
	}
}

type purgeRecorder struct {
	storage.MessageStore
	cutoffs []time.Time
	err     error
}

func (p *purgeRecorder) PurgeMessagesOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	p.cutoffs = append(p.cutoffs, cutoff)
	return 3, p.err
}

func TestPurgeOnceUsesRetentionCutoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &purgeRecorder{}

	purgeOnce(context.Background(), store, 24*time.Hour, func() time.Time { return now })

	if len(store.cutoffs) != 1 || !store.cutoffs[0].Equal(now.Add(-24*time.Hour)) {
		t.Errorf("Unexpected cutoffs %v", store.cutoffs)
	}

	store.err = errors.New("disk full")
	purgeOnce(context.Background(), store, time.Hour, func() time.Time { return now })
	if len(store.cutoffs) != 2 {
		t.Errorf("Expected a second purge attempt, got %d", len(store.cutoffs))
	}
}

func TestPurgeLoopStopsOnCancel(t *testing.T) {
	store := &purgeRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		purgeLoop(ctx, store, time.Hour, time.Hour, time.Now)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("purgeLoop did not stop after cancellation")
	}
}
