// Package rooms implements the room directory: named rooms with an optional
// access secret, an owner, and a creation time.
//
// The directory is pure metadata. Live membership is never stored here; the
// user count in listings is read from a Counter, normally the connection
// registry.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/hangout/internal/names"
	apperrors "github.com/Tyrowin/hangout/internal/platform/errors"
	"github.com/Tyrowin/hangout/internal/storage"
)

// Counter reports how many users are live in a room.
type Counter interface {
	CountByRoom(room string) int
}

// Room is one directory entry.
type Room struct {
	Name       string
	Owner      string
	CreatedAt  time.Time
	secretHash []byte
}

// HasSecret reports whether joining requires a secret.
func (r Room) HasSecret() bool {
	return len(r.secretHash) > 0
}

// Summary is the public listing view of a room.
type Summary struct {
	Name      string    `json:"name"`
	HasSecret bool      `json:"hasSecret"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"createdAt"`
	Users     int       `json:"users"`
}

// Directory is the process-wide room table. A nil store keeps rooms in
// memory only.
type Directory struct {
	mu    sync.RWMutex
	rooms map[string]Room
	store storage.RoomStore
	now   func() time.Time
	cost  int
}

// Option configures a Directory.
type Option func(*Directory)

// WithClock overrides the creation-time source.
func WithClock(now func() time.Time) Option {
	return func(d *Directory) { d.now = now }
}

// WithHashCost overrides the bcrypt cost used for secrets.
func WithHashCost(cost int) Option {
	return func(d *Directory) { d.cost = cost }
}

// NewDirectory returns an empty directory persisting to store.
func NewDirectory(store storage.RoomStore, opts ...Option) *Directory {
	d := &Directory{
		rooms: make(map[string]Room),
		store: store,
		now:   time.Now,
		cost:  bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Load replaces the in-memory table with the rooms held by the store.
func (d *Directory) Load(ctx context.Context) error {
	if d.store == nil {
		return nil
	}
	records, err := d.store.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("load rooms: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.rooms = make(map[string]Room, len(records))
	for _, rec := range records {
		room := Room{Name: rec.Name, Owner: rec.Owner, CreatedAt: rec.CreatedAt}
		if rec.SecretHash != "" {
			room.secretHash = []byte(rec.SecretHash)
		}
		d.rooms[rec.Name] = room
	}
	log.Printf("Loaded %d rooms from storage", len(records))
	return nil
}

// Create adds a room named name owned by owner. An empty secret makes the
// room public. Creating an existing name fails with a conflict.
func (d *Directory) Create(ctx context.Context, name, secret, owner string) (Room, error) {
	name = names.Normalize(name)
	if err := ValidateName(name); err != nil {
		return Room{}, err
	}

	room := Room{Name: name, Owner: names.Normalize(strings.TrimSpace(owner)), CreatedAt: d.now().UTC()}
	if secret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), d.cost)
		if err != nil {
			return Room{}, apperrors.Invalid("secret", "secret cannot be used: "+err.Error())
		}
		room.secretHash = hash
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.rooms[name]; exists {
		return Room{}, apperrors.New(apperrors.CodeConflict, fmt.Sprintf("room %q already exists", name))
	}
	if d.store != nil {
		err := d.store.CreateRoom(ctx, storage.RoomRecord{
			Name:       room.Name,
			SecretHash: string(room.secretHash),
			Owner:      room.Owner,
			CreatedAt:  room.CreatedAt,
		})
		if errors.Is(err, storage.ErrAlreadyExists) {
			return Room{}, apperrors.New(apperrors.CodeConflict, fmt.Sprintf("room %q already exists", name))
		}
		if err != nil {
			return Room{}, apperrors.Wrap(apperrors.CodeUnavailable, "persist room", err)
		}
	}
	d.rooms[name] = room
	log.Printf("Room %q created by %q (secret=%t)", name, room.Owner, room.HasSecret())
	return room, nil
}

// Ensure creates name as a public room when it does not exist yet.
func (d *Directory) Ensure(ctx context.Context, name, owner string) error {
	if _, ok := d.Get(name); ok {
		return nil
	}
	_, err := d.Create(ctx, name, "", owner)
	if errors.Is(err, apperrors.ErrConflict) {
		return nil
	}
	return err
}

// Verify checks that name exists and that secret opens it. Rooms without a
// secret accept any secret, including none.
func (d *Directory) Verify(name, secret string) error {
	room, ok := d.Get(name)
	if !ok {
		return apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("room %q not found", name))
	}
	if !room.HasSecret() {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword(room.secretHash, []byte(secret)); err != nil {
		return apperrors.New(apperrors.CodeForbidden, fmt.Sprintf("wrong secret for room %q", name))
	}
	return nil
}

// Get returns the room named name.
func (d *Directory) Get(name string) (Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	room, ok := d.rooms[names.Normalize(name)]
	return room, ok
}

// Owner returns the owner of name, or "" when the room is unknown.
func (d *Directory) Owner(name string) string {
	room, _ := d.Get(name)
	return room.Owner
}

// List returns every room sorted by name with its live user count.
func (d *Directory) List(counter Counter) []Summary {
	d.mu.RLock()
	summaries := make([]Summary, 0, len(d.rooms))
	for _, room := range d.rooms {
		summaries = append(summaries, Summary{
			Name:      room.Name,
			HasSecret: room.HasSecret(),
			Owner:     room.Owner,
			CreatedAt: room.CreatedAt,
		})
	}
	d.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
	if counter != nil {
		for i := range summaries {
			summaries[i].Users = counter.CountByRoom(summaries[i].Name)
		}
	}
	return summaries
}

// ValidateName rejects empty, padded, or oversized room names.
func ValidateName(name string) error {
	return names.Validate("name", name)
}
