package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/hangout/internal/client"
	"github.com/Tyrowin/hangout/internal/protocol"
	"github.com/Tyrowin/hangout/internal/rooms"
	"github.com/Tyrowin/hangout/internal/storage/sqlite"
)

const (
	testOrigin      = "http://hangout.test"
	testAdminSecret = "test-admin-secret"
	eventTimeout    = 2 * time.Second
)

type testEnv struct {
	srv   *Server
	http  *httptest.Server
	wsURL string
}

// newTestEnv starts a full server backed by a temporary SQLite file.
func newTestEnv(t *testing.T, customize func(cfg *Config)) *testEnv {
	t.Helper()

	cfg := NewConfig()
	cfg.AllowedOrigins = []string{testOrigin}
	cfg.AdminSecret = testAdminSecret
	cfg.TypingTTL = 300 * time.Millisecond
	cfg.DBPath = filepath.Join(t.TempDir(), "hangout.db")
	if customize != nil {
		customize(cfg)
	}

	store, err := sqlite.Open(context.Background(), cfg.DBPath)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	srv, err := New(context.Background(), *cfg, store, WithDirectoryOptions(rooms.WithHashCost(bcrypt.MinCost)))
	if err != nil {
		t.Fatalf("Failed to build server: %v", err)
	}
	srv.StartHub()
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		if err := srv.Hub().Shutdown(2 * time.Second); err != nil {
			t.Errorf("Hub shutdown: %v", err)
		}
		ts.Close()
		_ = store.Close()
	})

	return &testEnv{
		srv:   srv,
		http:  ts,
		wsURL: "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
	}
}

// newHTTPTestServer serves srv and returns its WebSocket URL.
func newHTTPTestServer(t *testing.T, srv *Server) string {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func (e *testEnv) dial(t *testing.T) *client.Client {
	t.Helper()
	header := http.Header{}
	header.Set("Origin", testOrigin)
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	conn, err := client.Dial(ctx, e.wsURL, header)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// join dials, joins room and waits for the joiner's own presence event.
func (e *testEnv) join(t *testing.T, username, room, secret string) *client.Client {
	t.Helper()
	conn := e.dial(t)
	if err := conn.Join(username, room, secret); err != nil {
		t.Fatalf("Failed to send join: %v", err)
	}
	waitForUsers(t, conn, protocol.EventPresenceList, func(users []string) bool {
		for _, u := range users {
			if u == username {
				return true
			}
		}
		return false
	})
	return conn
}

func (e *testEnv) createRoom(t *testing.T, name, secret, owner string) {
	t.Helper()
	if _, err := e.srv.Rooms().Create(context.Background(), name, secret, owner); err != nil {
		t.Fatalf("Failed to create room %q: %v", name, err)
	}
}

// waitForUsers reads events of eventType until match accepts the user list.
func waitForUsers(t *testing.T, conn *client.Client, eventType string, match func([]string) bool) protocol.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	for {
		event, err := conn.Next(ctx, eventType)
		if err != nil {
			t.Fatalf("Timed out waiting for %s: %v", eventType, err)
		}
		if match(event.Users) {
			return event
		}
	}
}

func usersEqual(want ...string) func([]string) bool {
	if want == nil {
		want = []string{}
	}
	return func(users []string) bool {
		if users == nil {
			users = []string{}
		}
		return reflect.DeepEqual(users, want)
	}
}

func nextEvent(t *testing.T, conn *client.Client, eventType string) protocol.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	event, err := conn.Next(ctx, eventType)
	if err != nil {
		t.Fatalf("Timed out waiting for %s: %v", eventType, err)
	}
	return event
}

func expectNoEvent(t *testing.T, conn *client.Client, eventType string, wait time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	event, err := conn.Next(ctx, eventType)
	if err == nil {
		t.Fatalf("Expected no %s event, got %+v", eventType, event)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Unexpected error while waiting for absence of %s: %v", eventType, err)
	}
}

func doJSON(t *testing.T, method, url string, body any, header http.Header) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		var body errorBody
		_ = json.NewDecoder(resp.Body).Decode(&body)
		t.Fatalf("Expected status code %d, got %d (%+v)", expected, resp.StatusCode, body)
	}
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}
