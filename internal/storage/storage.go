// Package storage defines the persistence contracts the hub consumes: chat
// history, user profiles, and the room directory's durable copy.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness constraint was violated.
	ErrAlreadyExists = errors.New("record already exists")
)

// Message kinds accepted by the message store.
const (
	MessageText  = "text"
	MessageImage = "image"
	MessageGIF   = "gif"
)

// Message is one persisted chat line.
type Message struct {
	ID        int64     `json:"id"`
	Room      string    `json:"room"`
	Username  string    `json:"username"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Profile is a user's public profile.
type Profile struct {
	Username  string    `json:"username"`
	AvatarRef string    `json:"avatar"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RoomRecord is the durable form of a room directory entry. The secret is
// stored as a hash; an empty hash means the room is public.
type RoomRecord struct {
	Name       string
	SecretHash string
	Owner      string
	CreatedAt  time.Time
}

// MessageStore persists chat history.
type MessageStore interface {
	ListMessages(ctx context.Context, room string, limit int) ([]Message, error)
	GetMessage(ctx context.Context, id int64) (Message, error)
	CreateMessage(ctx context.Context, msg Message) (Message, error)
	DeleteMessage(ctx context.Context, id int64) error
	PurgeMessagesOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ProfileStore persists user profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, username string) (Profile, error)
	UpsertProfile(ctx context.Context, profile Profile) (Profile, error)
}

// RoomStore persists room metadata independently of live connections.
type RoomStore interface {
	CreateRoom(ctx context.Context, room RoomRecord) error
	ListRooms(ctx context.Context) ([]RoomRecord, error)
}
