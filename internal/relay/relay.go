// Package relay forwards screen effects and opaque game payloads to rooms.
// Payloads are never decoded here; the game protocol lives in the peers.
package relay

import (
	"encoding/json"
	"fmt"
	"log"

	apperrors "github.com/Tyrowin/hangout/internal/platform/errors"
	"github.com/Tyrowin/hangout/internal/protocol"
)

// Router fans events out to a room or to every connection.
type Router interface {
	ToRoom(room string, event protocol.Event)
	ToAll(event protocol.Event)
}

// Relay validates effect kinds and game envelopes before handing them to a
// Router.
type Relay struct {
	router Router
}

// New returns a relay that delivers through router.
func New(router Router) *Relay {
	return &Relay{router: router}
}

// IsEffect reports whether kind names a supported screen effect.
func IsEffect(kind string) bool {
	return kind == protocol.EventConfetti || kind == protocol.EventJumpscare
}

// Effect plays a screen effect for everyone in room, sender included.
func (r *Relay) Effect(room, kind string) error {
	if !IsEffect(kind) {
		return apperrors.New(apperrors.CodeProtocol, fmt.Sprintf("unknown effect %q", kind))
	}
	r.router.ToRoom(room, protocol.Effect(kind, false))
	return nil
}

// GlobalEffect plays a screen effect on every connected client.
func (r *Relay) GlobalEffect(kind string) error {
	if !IsEffect(kind) {
		return apperrors.New(apperrors.CodeProtocol, fmt.Sprintf("unknown effect %q", kind))
	}
	log.Printf("Broadcasting global %s", kind)
	r.router.ToAll(protocol.Effect(kind, true))
	return nil
}

// Game relays payload verbatim to room. The payload must be a JSON value.
func (r *Relay) Game(room string, payload json.RawMessage) error {
	if len(payload) == 0 || string(payload) == "null" {
		return apperrors.New(apperrors.CodeProtocol, "game envelope has no payload")
	}
	if !json.Valid(payload) {
		return apperrors.New(apperrors.CodeProtocol, "game payload is not valid JSON")
	}
	r.router.ToRoom(room, protocol.Game(payload))
	return nil
}
