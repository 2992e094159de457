package registry

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"reflect"
	"sort"
	"sync"
	"testing"

	apperrors "github.com/Tyrowin/hangout/internal/platform/errors"
)

type conn struct{ id int }

func TestRegisterAndList(t *testing.T) {
	reg := New[*conn]()
	a, b, c := &conn{1}, &conn{2}, &conn{3}

	mustRegister(t, reg, a, "alice", "x")
	mustRegister(t, reg, b, "bob", "x")
	mustRegister(t, reg, c, "carol", "y")

	if got := reg.ListByRoom("x"); !reflect.DeepEqual(got, []string{"alice", "bob"}) {
		t.Fatalf("ListByRoom(x) = %v", got)
	}
	if got := reg.ListByRoom("y"); !reflect.DeepEqual(got, []string{"carol"}) {
		t.Fatalf("ListByRoom(y) = %v", got)
	}
	if got := reg.ListByRoom("empty"); len(got) != 0 {
		t.Fatalf("ListByRoom(empty) = %v", got)
	}
	if got := len(reg.ConnectionsInRoom("x")); got != 2 {
		t.Fatalf("ConnectionsInRoom(x) has %d entries", got)
	}
	if got := len(reg.All()); got != 3 {
		t.Fatalf("All() has %d entries", got)
	}
}

func TestRegisterTwiceIsProtocolError(t *testing.T) {
	reg := New[*conn]()
	a := &conn{1}
	mustRegister(t, reg, a, "alice", "x")

	err := reg.Register(a, "alice", "y")
	if !errors.Is(err, apperrors.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	entry, ok := reg.Lookup(a)
	if !ok || entry.Room != "x" {
		t.Fatalf("first registration should survive, got %+v ok=%v", entry, ok)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	reg := New[*conn]()
	a := &conn{1}
	mustRegister(t, reg, a, "alice", "x")

	entry, ok := reg.Remove(a)
	if !ok || entry != (Entry{Username: "alice", Room: "x"}) {
		t.Fatalf("Remove returned %+v ok=%v", entry, ok)
	}
	if _, ok := reg.Remove(a); ok {
		t.Fatal("second remove should be a no-op")
	}
	if got := reg.ListByRoom("x"); len(got) != 0 {
		t.Fatalf("expected empty room, got %v", got)
	}
}

func TestDuplicateUsernamesListedOnce(t *testing.T) {
	reg := New[*conn]()
	mustRegister(t, reg, &conn{1}, "alice", "x")
	mustRegister(t, reg, &conn{2}, "alice", "x")

	if got := reg.ListByRoom("x"); !reflect.DeepEqual(got, []string{"alice"}) {
		t.Fatalf("ListByRoom(x) = %v", got)
	}
	if got := reg.CountByRoom("x"); got != 1 {
		t.Fatalf("CountByRoom(x) = %d", got)
	}
	if got := reg.Len(); got != 2 {
		t.Fatalf("Len() = %d", got)
	}
}

// TestListNeverDrifts applies random register/remove sequences and checks
// every listing against a plain model of the live set.
func TestListNeverDrifts(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	reg := New[*conn]()
	model := make(map[*conn]Entry)
	pool := make([]*conn, 40)
	for i := range pool {
		pool[i] = &conn{i}
	}
	rooms := []string{"main", "x", "y"}

	for step := 0; step < 2000; step++ {
		c := pool[rng.IntN(len(pool))]
		if _, live := model[c]; live && rng.IntN(2) == 0 {
			reg.Remove(c)
			delete(model, c)
		} else if !live {
			entry := Entry{Username: fmt.Sprintf("u%d", rng.IntN(10)), Room: rooms[rng.IntN(len(rooms))]}
			mustRegister(t, reg, c, entry.Username, entry.Room)
			model[c] = entry
		}

		for _, room := range rooms {
			want := expectedUsers(model, room)
			if got := reg.ListByRoom(room); !reflect.DeepEqual(got, want) {
				t.Fatalf("step %d room %s: got %v want %v", step, room, got, want)
			}
		}
	}
}

func TestConcurrentRegisterRemove(t *testing.T) {
	reg := New[*conn]()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		c := &conn{i}
		go func() {
			defer wg.Done()
			_ = reg.Register(c, fmt.Sprintf("user%d", c.id), "main")
			reg.Remove(c)
		}()
		go func() {
			defer wg.Done()
			for _, username := range reg.ListByRoom("main") {
				if username == "" {
					t.Error("listing contained an empty username")
				}
			}
		}()
	}
	wg.Wait()

	if got := reg.Len(); got != 0 {
		t.Fatalf("expected all connections removed, %d left", got)
	}
}

func mustRegister(t *testing.T, reg *Registry[*conn], c *conn, username, room string) {
	t.Helper()
	if err := reg.Register(c, username, room); err != nil {
		t.Fatalf("register %s in %s: %v", username, room, err)
	}
}

func expectedUsers(model map[*conn]Entry, room string) []string {
	seen := make(map[string]struct{})
	for _, entry := range model {
		if entry.Room == room {
			seen[entry.Username] = struct{}{}
		}
	}
	users := make([]string, 0, len(seen))
	for username := range seen {
		users = append(users, username)
	}
	sort.Strings(users)
	return users
}
