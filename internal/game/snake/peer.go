package snake

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
)

// GameType tags every snake payload inside the hub's game envelope.
const GameType = "snake"

// Payload kinds.
const (
	KindSnapshot = "snapshot"
	KindIntent   = "intent"
	KindJoin     = "join"
)

var (
	// ErrNotSnake is returned by Decode for payloads of other games.
	ErrNotSnake = errors.New("payload is not a snake message")
	// ErrNoSession is returned when joining before any snapshot was seen.
	ErrNoSession = errors.New("no snake session running")
	// ErrAlreadyPlaying is returned when joining twice.
	ErrAlreadyPlaying = errors.New("already in the session")
)

// Payload is the JSON body carried in the hub's game envelope.
type Payload struct {
	Type       string            `json:"type"`
	Kind       string            `json:"kind"`
	Players    map[string]Player `json:"players,omitempty"`
	Food       *Point            `json:"food,omitempty"`
	Started    bool              `json:"started,omitempty"`
	Controller string            `json:"controller,omitempty"`
	Username   string            `json:"username,omitempty"`
	Direction  Direction         `json:"direction,omitempty"`
	Player     *Player           `json:"player,omitempty"`
}

// Encode marshals p for the game envelope.
func (p Payload) Encode() (json.RawMessage, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal snake %s: %w", p.Kind, err)
	}
	return data, nil
}

// Decode parses a game payload. Payloads of other games yield ErrNotSnake.
func Decode(raw json.RawMessage) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("unmarshal game payload: %w", err)
	}
	if p.Type != GameType {
		return Payload{}, ErrNotSnake
	}
	switch p.Kind {
	case KindSnapshot, KindIntent, KindJoin:
		return p, nil
	default:
		return Payload{}, fmt.Errorf("unknown snake payload kind %q", p.Kind)
	}
}

func snapshotOf(s State) Payload {
	food := s.Food
	return Payload{
		Type:       GameType,
		Kind:       KindSnapshot,
		Players:    s.Clone().Players,
		Food:       &food,
		Started:    s.Started,
		Controller: s.Controller,
	}
}

// Peer holds one participant's view of a session.
type Peer struct {
	username string

	mu    sync.Mutex
	state State
	rng   *rand.Rand
}

// NewPeer builds a peer for username. rng drives spawn and food placement;
// nil selects a randomly seeded source.
func NewPeer(username string, rng *rand.Rand) *Peer {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Peer{
		username: username,
		state:    State{Players: map[string]Player{}},
		rng:      rng,
	}
}

// Username returns the peer's identity.
func (p *Peer) Username() string {
	return p.username
}

// IsController reports whether the current view names this peer as
// controller.
func (p *Peer) IsController() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isControllerLocked()
}

func (p *Peer) isControllerLocked() bool {
	return p.state.Controller != "" && p.state.Controller == p.username
}

// State returns a copy of the current view.
func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Clone()
}

// Start begins a new session with this peer as controller and returns the
// initial snapshot to broadcast.
func (p *Peer) Start() Payload {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = State{
		Players:    map[string]Player{p.username: NewPlayer(p.username, SpawnPoint)},
		Food:       InitialFood,
		Started:    true,
		Controller: p.username,
	}
	return snapshotOf(p.state)
}

// Join adds this peer to a running session at a random cell and returns the
// join event to broadcast. Only the new player travels on the wire.
func (p *Peer) Join() (Payload, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.state.Started {
		return Payload{}, ErrNoSession
	}
	if _, ok := p.state.Players[p.username]; ok {
		return Payload{}, ErrAlreadyPlaying
	}
	player := NewPlayer(p.username, RandomPoint(p.rng))
	p.state.Players[p.username] = player

	joined := player.clone()
	return Payload{Type: GameType, Kind: KindJoin, Player: &joined}, nil
}

// SetDirection records a local input. It returns the intent delta to
// broadcast, or false when the input is invalid, a reversal, unchanged, or
// this peer is not playing.
func (p *Peer) SetDirection(dir Direction) (Payload, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !dir.Valid() {
		return Payload{}, false
	}
	player, ok := p.state.Players[p.username]
	if !ok || !player.Alive {
		return Payload{}, false
	}
	if dir == player.Direction || dir == player.Direction.Opposite() {
		return Payload{}, false
	}
	player.Direction = dir
	p.state.Players[p.username] = player
	return Payload{Type: GameType, Kind: KindIntent, Username: p.username, Direction: dir}, true
}

// Receive applies a payload relayed by the hub and reports whether the local
// view changed. The controller ignores snapshots carrying its own tag, so
// its echo never rolls back a newer local state. Receive never produces
// outgoing traffic.
func (p *Peer) Receive(payload Payload) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch payload.Kind {
	case KindSnapshot:
		if payload.Controller == p.username {
			return false
		}
		next := State{
			Players:    make(map[string]Player, len(payload.Players)),
			Started:    payload.Started,
			Controller: payload.Controller,
		}
		for name, player := range payload.Players {
			next.Players[name] = player.clone()
		}
		if payload.Food != nil {
			next.Food = *payload.Food
		}
		p.state = next
		return true

	case KindIntent:
		// Our own inputs were applied when they were made; the echo is stale.
		if payload.Username == p.username || !payload.Direction.Valid() {
			return false
		}
		player, ok := p.state.Players[payload.Username]
		if !ok || player.Direction == payload.Direction {
			return false
		}
		player.Direction = payload.Direction
		p.state.Players[payload.Username] = player
		return true

	case KindJoin:
		if payload.Player == nil || payload.Player.Username == "" || payload.Player.Username == p.username {
			return false
		}
		if _, ok := p.state.Players[payload.Player.Username]; ok {
			return false
		}
		p.state.Players[payload.Player.Username] = payload.Player.clone()
		return true
	}
	return false
}

// Tick advances the simulation when this peer is the controller of a
// running session and returns the snapshot to broadcast.
func (p *Peer) Tick() (Payload, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isControllerLocked() || !p.state.Started {
		return Payload{}, false
	}
	p.state = Step(p.state, p.rng)
	p.state.Controller = p.username
	return snapshotOf(p.state), true
}
