// Package sqlite provides the SQLite-backed message, profile, and room
// stores.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/Tyrowin/hangout/internal/platform/storage/sqlitemigrate"
	"github.com/Tyrowin/hangout/internal/storage"
	"github.com/Tyrowin/hangout/internal/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists hangout state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var (
	_ storage.MessageStore = (*Store)(nil)
	_ storage.ProfileStore = (*Store)(nil)
	_ storage.RoomStore    = (*Store)(nil)
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store at path and applies embedded migrations. The
// parent directory is created when missing.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// ListMessages returns up to limit of the newest messages in room, oldest
// first.
func (s *Store) ListMessages(ctx context.Context, room string, limit int) ([]storage.Message, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, room, username, type, content, created_at
		   FROM messages
		  WHERE room = ?
		  ORDER BY created_at DESC, id DESC
		  LIMIT ?`,
		room, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []storage.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// GetMessage returns one message by id.
func (s *Store) GetMessage(ctx context.Context, id int64) (storage.Message, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Message{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, room, username, type, content, created_at FROM messages WHERE id = ?`, id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Message{}, storage.ErrNotFound
		}
		return storage.Message{}, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

// CreateMessage inserts msg and returns it with its id and timestamp set.
func (s *Store) CreateMessage(ctx context.Context, msg storage.Message) (storage.Message, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Message{}, err
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.CreatedAt = fromMillis(toMillis(msg.CreatedAt))

	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO messages (room, username, type, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.Room, msg.Username, msg.Type, msg.Content, toMillis(msg.CreatedAt),
	)
	if err != nil {
		return storage.Message{}, fmt.Errorf("create message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return storage.Message{}, fmt.Errorf("create message id: %w", err)
	}
	msg.ID = id
	return msg, nil
}

// DeleteMessage removes one message by id.
func (s *Store) DeleteMessage(ctx context.Context, id int64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete message rows: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// PurgeMessagesOlderThan deletes messages created before cutoff and returns
// how many were removed.
func (s *Store) PurgeMessagesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM messages WHERE created_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge messages: %w", err)
	}
	return res.RowsAffected()
}

// GetProfile returns the profile for username.
func (s *Store) GetProfile(ctx context.Context, username string) (storage.Profile, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Profile{}, err
	}
	var profile storage.Profile
	var updatedAt int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT username, avatar_ref, updated_at FROM profiles WHERE username = ?`, username,
	).Scan(&profile.Username, &profile.AvatarRef, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Profile{}, storage.ErrNotFound
		}
		return storage.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	profile.UpdatedAt = fromMillis(updatedAt)
	return profile, nil
}

// UpsertProfile creates or replaces the profile for profile.Username.
func (s *Store) UpsertProfile(ctx context.Context, profile storage.Profile) (storage.Profile, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Profile{}, err
	}
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = time.Now().UTC()
	}
	profile.UpdatedAt = fromMillis(toMillis(profile.UpdatedAt))

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO profiles (username, avatar_ref, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(username) DO UPDATE SET
		   avatar_ref = excluded.avatar_ref,
		   updated_at = excluded.updated_at`,
		profile.Username, profile.AvatarRef, toMillis(profile.UpdatedAt),
	)
	if err != nil {
		return storage.Profile{}, fmt.Errorf("upsert profile: %w", err)
	}
	return profile, nil
}

// CreateRoom inserts one room record.
func (s *Store) CreateRoom(ctx context.Context, room storage.RoomRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO rooms (name, secret_hash, owner, created_at) VALUES (?, ?, ?, ?)`,
		room.Name, room.SecretHash, room.Owner, toMillis(room.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

// ListRooms returns every room record ordered by creation time.
func (s *Store) ListRooms(ctx context.Context) ([]storage.RoomRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT name, secret_hash, owner, created_at FROM rooms ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []storage.RoomRecord
	for rows.Next() {
		var room storage.RoomRecord
		var createdAt int64
		if err := rows.Scan(&room.Name, &room.SecretHash, &room.Owner, &createdAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		room.CreatedAt = fromMillis(createdAt)
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	return rooms, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (storage.Message, error) {
	var msg storage.Message
	var createdAt int64
	if err := row.Scan(&msg.ID, &msg.Room, &msg.Username, &msg.Type, &msg.Content, &createdAt); err != nil {
		return storage.Message{}, err
	}
	msg.CreatedAt = fromMillis(createdAt)
	return msg, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
