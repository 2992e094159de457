package server

import (
	"strings"

	"github.com/Tyrowin/hangout/internal/presence"
	"github.com/Tyrowin/hangout/internal/storage"
)

// Store is the persistence the HTTP API needs. The SQLite store satisfies it.
type Store interface {
	storage.MessageStore
	storage.ProfileStore
	storage.RoomStore
}

// roomTracker is the presence tracker specialised to hub clients.
type roomTracker = presence.Tracker[*Client]

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
