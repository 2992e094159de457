package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/hangout/internal/client"
	"github.com/Tyrowin/hangout/internal/protocol"
)

// TestJoinBroadcastsPresenceToRoomOnly checks that presence lists reach the
// joined room and nobody else.
func TestJoinBroadcastsPresenceToRoomOnly(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createRoom(t, "side", "", "carol")

	carol := env.join(t, "carol", "side", "")
	alice := env.join(t, "alice", "", "")
	bob := env.join(t, "bob", "main", "")

	event := waitForUsers(t, alice, protocol.EventPresenceList, usersEqual("alice", "bob"))
	if event.Room != "main" {
		t.Errorf("Expected room main, got %q", event.Room)
	}
	if event.Count == nil || *event.Count != 2 {
		t.Errorf("Expected count 2, got %v", event.Count)
	}
	waitForUsers(t, bob, protocol.EventPresenceList, usersEqual("alice", "bob"))
	expectNoEvent(t, carol, protocol.EventPresenceList, 200*time.Millisecond)
}

// TestJoinRepliesWithCurrentTypingList checks that a late joiner learns who
// is already typing.
func TestJoinRepliesWithCurrentTypingList(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.TypingTTL = 5 * time.Second })

	alice := env.join(t, "alice", "main", "")
	if err := alice.Typing(); err != nil {
		t.Fatalf("Failed to send typing: %v", err)
	}
	waitForUsers(t, alice, protocol.EventTypingList, usersEqual("alice"))

	bob := env.join(t, "bob", "main", "")
	waitForUsers(t, bob, protocol.EventTypingList, usersEqual("alice"))
}

// TestTypingExpiresAfterTTL checks the broadcast when typing starts and the
// empty list once the TTL lapses.
func TestTypingExpiresAfterTTL(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.TypingTTL = 200 * time.Millisecond })

	alice := env.join(t, "alice", "main", "")
	bob := env.join(t, "bob", "main", "")

	if err := alice.Typing(); err != nil {
		t.Fatalf("Failed to send typing: %v", err)
	}
	waitForUsers(t, bob, protocol.EventTypingList, usersEqual("alice"))
	start := time.Now()
	waitForUsers(t, bob, protocol.EventTypingList, usersEqual())
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("Typing cleared after %s, before the TTL", elapsed)
	}
}

// TestStopTypingClearsImmediately checks an explicit stopTyping.
func TestStopTypingClearsImmediately(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.TypingTTL = time.Minute })

	alice := env.join(t, "alice", "main", "")
	bob := env.join(t, "bob", "main", "")

	if err := alice.Typing(); err != nil {
		t.Fatalf("Failed to send typing: %v", err)
	}
	waitForUsers(t, bob, protocol.EventTypingList, usersEqual("alice"))
	if err := alice.StopTyping(); err != nil {
		t.Fatalf("Failed to send stopTyping: %v", err)
	}
	waitForUsers(t, bob, protocol.EventTypingList, usersEqual())
}

// TestTypingWithForeignUsernameIsRejected checks that a connection cannot
// type on behalf of someone else.
func TestTypingWithForeignUsernameIsRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.join(t, "alice", "main", "")

	if err := alice.Send(protocol.Inbound{Action: protocol.ActionTyping, Username: "mallory"}); err != nil {
		t.Fatalf("Failed to send typing: %v", err)
	}
	event := nextEvent(t, alice, protocol.EventError)
	if event.Code != "PROTOCOL" {
		t.Errorf("Expected PROTOCOL error, got %q", event.Code)
	}
}

// TestLeaveBroadcastsPresenceAndTyping checks that a disconnect removes the
// user from both lists.
func TestLeaveBroadcastsPresenceAndTyping(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.TypingTTL = time.Minute })

	alice := env.join(t, "alice", "main", "")
	bob := env.join(t, "bob", "main", "")
	waitForUsers(t, alice, protocol.EventPresenceList, usersEqual("alice", "bob"))

	if err := bob.Typing(); err != nil {
		t.Fatalf("Failed to send typing: %v", err)
	}
	waitForUsers(t, alice, protocol.EventTypingList, usersEqual("bob"))

	if err := bob.Close(); err != nil {
		t.Fatalf("Failed to close connection: %v", err)
	}
	waitForUsers(t, alice, protocol.EventPresenceList, usersEqual("alice"))
	waitForUsers(t, alice, protocol.EventTypingList, usersEqual())
}

// TestActionBeforeJoinIsRejected checks that the connection survives a
// protocol error and can still join.
func TestActionBeforeJoinIsRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t)

	if err := conn.Effect(protocol.ActionConfetti); err != nil {
		t.Fatalf("Failed to send effect: %v", err)
	}
	event := nextEvent(t, conn, protocol.EventError)
	if event.Code != "PROTOCOL" {
		t.Errorf("Expected PROTOCOL error, got %q", event.Code)
	}

	if err := conn.Join("alice", "main", ""); err != nil {
		t.Fatalf("Failed to send join: %v", err)
	}
	waitForUsers(t, conn, protocol.EventPresenceList, usersEqual("alice"))
}

// TestMalformedFrameIsRejected checks non-JSON input.
func TestMalformedFrameIsRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t)

	if err := conn.SendRaw([]byte("not json")); err != nil {
		t.Fatalf("Failed to send frame: %v", err)
	}
	event := nextEvent(t, conn, protocol.EventError)
	if event.Code != "PROTOCOL" {
		t.Errorf("Expected PROTOCOL error, got %q", event.Code)
	}
}

// TestJoinSecretRoom covers unknown rooms, wrong secrets and a successful
// retry on the same connection.
func TestJoinSecretRoom(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createRoom(t, "vault", "hunter2", "alice")
	conn := env.dial(t)

	cases := []struct {
		room, secret, code string
	}{
		{"nowhere", "", "NOT_FOUND"},
		{"vault", "", "FORBIDDEN"},
		{"vault", "wrong", "FORBIDDEN"},
	}
	for _, tc := range cases {
		if err := conn.Join("bob", tc.room, tc.secret); err != nil {
			t.Fatalf("Failed to send join: %v", err)
		}
		event := nextEvent(t, conn, protocol.EventError)
		if event.Code != tc.code {
			t.Errorf("join %q with %q: expected %s, got %q", tc.room, tc.secret, tc.code, event.Code)
		}
	}

	if err := conn.Join("bob", "vault", "hunter2"); err != nil {
		t.Fatalf("Failed to send join: %v", err)
	}
	event := waitForUsers(t, conn, protocol.EventPresenceList, usersEqual("bob"))
	if event.Room != "vault" {
		t.Errorf("Expected room vault, got %q", event.Room)
	}
}

// TestSecondJoinIsRejected checks that a connection stays in its first room.
func TestSecondJoinIsRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.join(t, "alice", "main", "")

	if err := alice.Join("alice2", "main", ""); err != nil {
		t.Fatalf("Failed to send join: %v", err)
	}
	event := nextEvent(t, alice, protocol.EventError)
	if event.Code != "PROTOCOL" {
		t.Errorf("Expected PROTOCOL error, got %q", event.Code)
	}
}

// TestEffectsStayInRoom checks that confetti reaches the sender's room,
// sender included, and no other room.
func TestEffectsStayInRoom(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createRoom(t, "side", "", "carol")

	alice := env.join(t, "alice", "main", "")
	bob := env.join(t, "bob", "main", "")
	carol := env.join(t, "carol", "side", "")

	if err := alice.Effect(protocol.ActionConfetti); err != nil {
		t.Fatalf("Failed to send effect: %v", err)
	}
	for _, conn := range []*client.Client{alice, bob} {
		event := nextEvent(t, conn, protocol.EventConfetti)
		if event.Global {
			t.Error("Room effect must not be marked global")
		}
	}
	expectNoEvent(t, carol, protocol.EventConfetti, 200*time.Millisecond)
}

// TestGameRelay checks payload passthrough and rejection of invalid JSON.
func TestGameRelay(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createRoom(t, "side", "", "carol")

	alice := env.join(t, "alice", "main", "")
	bob := env.join(t, "bob", "main", "")
	carol := env.join(t, "carol", "side", "")

	payload := json.RawMessage(`{"type":"snake","kind":"intent","username":"alice","direction":"UP"}`)
	if err := alice.Game(payload); err != nil {
		t.Fatalf("Failed to send game payload: %v", err)
	}
	for _, conn := range []*client.Client{alice, bob} {
		event := nextEvent(t, conn, protocol.EventGame)
		var got, want map[string]any
		if err := json.Unmarshal(event.Payload, &got); err != nil {
			t.Fatalf("Failed to decode relayed payload: %v", err)
		}
		_ = json.Unmarshal(payload, &want)
		if got["kind"] != want["kind"] || got["direction"] != want["direction"] {
			t.Errorf("Expected payload %v, got %v", want, got)
		}
	}
	expectNoEvent(t, carol, protocol.EventGame, 200*time.Millisecond)

	if err := alice.SendRaw([]byte(`{"action":"game"}`)); err != nil {
		t.Fatalf("Failed to send frame: %v", err)
	}
	event := nextEvent(t, alice, protocol.EventError)
	if event.Code != "PROTOCOL" {
		t.Errorf("Expected PROTOCOL error, got %q", event.Code)
	}
}

// TestOriginIsEnforced checks that the upgrade fails for foreign origins.
func TestOriginIsEnforced(t *testing.T) {
	env := newTestEnv(t, nil)

	header := http.Header{}
	header.Set("Origin", "http://evil.test")
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	_, resp, err := websocket.DefaultDialer.DialContext(ctx, env.wsURL, header)
	if err == nil {
		t.Fatal("Expected the handshake to fail for a foreign origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 handshake response, got %v", resp)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
}

// TestHubShutdownClosesClients checks that Shutdown disconnects peers and
// that a stopped hub refuses new registrations.
func TestHubShutdownClosesClients(t *testing.T) {
	cfg := NewConfig()
	cfg.AllowedOrigins = []string{"*"}
	srv, err := New(context.Background(), *cfg, nil)
	if err != nil {
		t.Fatalf("Failed to build server: %v", err)
	}
	srv.StartHub()
	ts := newHTTPTestServer(t, srv)

	header := http.Header{}
	header.Set("Origin", "http://anything.test")
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	conn, err := client.Dial(ctx, ts, header)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	defer conn.Close()
	if err := conn.Join("alice", "", ""); err != nil {
		t.Fatalf("Failed to send join: %v", err)
	}
	waitForUsers(t, conn, protocol.EventPresenceList, usersEqual("alice"))

	if err := srv.Hub().Shutdown(2 * time.Second); err != nil {
		t.Fatalf("Hub shutdown failed: %v", err)
	}

	select {
	case _, ok := <-drain(conn):
		if ok {
			t.Fatal("Expected the event stream to end")
		}
	case <-time.After(eventTimeout):
		t.Fatal("Connection was not closed by shutdown")
	}

	if srv.Hub().Register(NewClient(nil, srv.Hub(), "test")) {
		t.Error("Expected Register to fail after shutdown")
	}
	if srv.Hub().ClientCount() != 0 {
		t.Errorf("Expected no clients after shutdown, got %d", srv.Hub().ClientCount())
	}
}

// drain discards events until the stream closes.
func drain(conn *client.Client) <-chan protocol.Event {
	out := make(chan protocol.Event)
	go func() {
		for range conn.Events() {
		}
		close(out)
	}()
	return out
}
