// Package snake implements the peer side of the multiplayer snake protocol.
//
// The hub relays snake payloads verbatim. One peer, the controller, owns the
// simulation: it advances the board every TickInterval and broadcasts a full
// snapshot tagged with its username. Every other peer replaces its view with
// each snapshot, and reports only its own direction changes as intent deltas.
package snake

import (
	"math/rand/v2"
	"sort"
	"time"
)

const (
	// GridSize is the board width and height in cells.
	GridSize = 20
	// TickInterval is the controller's simulation period.
	TickInterval = 150 * time.Millisecond
)

var (
	// SpawnPoint is where the session starter's snake begins.
	SpawnPoint = Point{X: 10, Y: 10}
	// InitialFood is the food position of a fresh session.
	InitialFood = Point{X: 15, Y: 15}
)

// Direction is a heading on the grid.
type Direction string

const (
	Up    Direction = "UP"
	Down  Direction = "DOWN"
	Left  Direction = "LEFT"
	Right Direction = "RIGHT"
)

// Valid reports whether d is one of the four headings.
func (d Direction) Valid() bool {
	switch d {
	case Up, Down, Left, Right:
		return true
	}
	return false
}

// Opposite returns the reverse heading.
func (d Direction) Opposite() Direction {
	switch d {
	case Up:
		return Down
	case Down:
		return Up
	case Left:
		return Right
	case Right:
		return Left
	}
	return d
}

func (d Direction) delta() (dx, dy int, ok bool) {
	switch d {
	case Up:
		return 0, -1, true
	case Down:
		return 0, 1, true
	case Left:
		return -1, 0, true
	case Right:
		return 1, 0, true
	}
	return 0, 0, false
}

// Point is a grid cell.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// InBounds reports whether p lies on the board.
func (p Point) InBounds() bool {
	return p.X >= 0 && p.X < GridSize && p.Y >= 0 && p.Y < GridSize
}

// Player is one participant's snake. Snake[0] is the head.
type Player struct {
	Username  string    `json:"username"`
	Snake     []Point   `json:"snake"`
	Direction Direction `json:"direction"`
	Alive     bool      `json:"alive"`
	Score     int       `json:"score"`
}

// Head returns the first segment.
func (p Player) Head() (Point, bool) {
	if len(p.Snake) == 0 {
		return Point{}, false
	}
	return p.Snake[0], true
}

func (p Player) occupies(pt Point) bool {
	for _, seg := range p.Snake {
		if seg == pt {
			return true
		}
	}
	return false
}

func (p Player) clone() Player {
	p.Snake = append([]Point(nil), p.Snake...)
	return p
}

// State is a peer's view of the session.
type State struct {
	Players    map[string]Player
	Food       Point
	Started    bool
	Controller string
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	players := make(map[string]Player, len(s.Players))
	for name, player := range s.Players {
		players[name] = player.clone()
	}
	s.Players = players
	return s
}

// NewPlayer builds a live single-segment snake heading right.
func NewPlayer(username string, at Point) Player {
	return Player{
		Username:  username,
		Snake:     []Point{at},
		Direction: Right,
		Alive:     true,
	}
}

// RandomPoint draws a cell uniformly over the board.
func RandomPoint(rng *rand.Rand) Point {
	return Point{X: rng.IntN(GridSize), Y: rng.IntN(GridSize)}
}

// Step advances the board by one tick and returns the new state; s is not
// modified. Players move in username order so that a fixed rng yields a
// fixed result. A player whose next head leaves the grid or lands on its
// own pre-move body dies in place. A player landing on the food grows by
// one segment and scores; the food then moves to a cell drawn from rng.
func Step(s State, rng *rand.Rand) State {
	next := s.Clone()
	if !s.Started {
		return next
	}

	names := make([]string, 0, len(s.Players))
	for name := range s.Players {
		names = append(names, name)
	}
	sort.Strings(names)

	eaten := false
	for _, name := range names {
		player := s.Players[name]
		if !player.Alive {
			continue
		}
		head, ok := player.Head()
		if !ok {
			continue
		}
		dx, dy, ok := player.Direction.delta()
		if !ok {
			continue
		}
		newHead := Point{X: head.X + dx, Y: head.Y + dy}

		moved := next.Players[name]
		if !newHead.InBounds() || player.occupies(newHead) {
			moved.Alive = false
			next.Players[name] = moved
			continue
		}

		body := make([]Point, 0, len(player.Snake)+1)
		body = append(body, newHead)
		body = append(body, player.Snake...)
		if newHead == s.Food {
			moved.Score++
			eaten = true
		} else {
			body = body[:len(body)-1]
		}
		moved.Snake = body
		next.Players[name] = moved
	}

	if eaten {
		next.Food = RandomPoint(rng)
	}
	return next
}
