// Package client is a Go peer for the hub's WebSocket protocol. It is used by
// the terminal client and by the server's end-to-end tests.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/hangout/internal/protocol"
)

const (
	writeWait       = 10 * time.Second
	eventBufferSize = 256
)

// ErrClosed is returned when sending on a closed client.
var ErrClosed = errors.New("client closed")

// Client is one WebSocket connection to the hub.
type Client struct {
	conn   *websocket.Conn
	events chan protocol.Event

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}

	errMu   sync.Mutex
	readErr error
}

// Dial connects to a hub WebSocket URL such as ws://localhost:8080/ws.
// header usually carries an Origin accepted by the server.
func Dial(ctx context.Context, url string, header http.Header) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Client{
		conn:   conn,
		events: make(chan protocol.Event, eventBufferSize),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events streams hub events. The channel closes when the connection ends.
func (c *Client) Events() <-chan protocol.Event {
	return c.events
}

// Err returns the error that ended the read loop, if any.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.readErr
}

// Send writes a raw client frame.
func (c *Client) Send(in protocol.Inbound) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", in.Action, err)
	}
	return c.SendRaw(data)
}

// SendRaw writes bytes as a single text frame.
func (c *Client) SendRaw(data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Join enters room as username. secret may be empty for public rooms.
func (c *Client) Join(username, room, secret string) error {
	return c.Send(protocol.Inbound{Action: protocol.ActionJoin, Username: username, Room: room, Secret: secret})
}

// Typing signals that the user is typing.
func (c *Client) Typing() error {
	return c.Send(protocol.Inbound{Action: protocol.ActionTyping})
}

// StopTyping clears the typing signal.
func (c *Client) StopTyping() error {
	return c.Send(protocol.Inbound{Action: protocol.ActionStopTyping})
}

// Effect plays confetti or jumpscare for the room.
func (c *Client) Effect(kind string) error {
	return c.Send(protocol.Inbound{Action: kind})
}

// Game relays an opaque game payload to the room.
func (c *Client) Game(payload json.RawMessage) error {
	return c.Send(protocol.Inbound{Action: protocol.ActionGame, Payload: payload})
}

// Next waits for the next event of eventType, discarding others.
func (c *Client) Next(ctx context.Context, eventType string) (protocol.Event, error) {
	for {
		select {
		case <-ctx.Done():
			return protocol.Event{}, ctx.Err()
		case event, ok := <-c.events:
			if !ok {
				if err := c.Err(); err != nil {
					return protocol.Event{}, err
				}
				return protocol.Event{}, ErrClosed
			}
			if event.Type == eventType {
				return event, nil
			}
		}
	}
}

// Close sends a close frame and tears the connection down.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case <-c.done:
				default:
					c.errMu.Lock()
					c.readErr = err
					c.errMu.Unlock()
				}
			}
			return
		}
		// The hub may batch several events into one frame, one per line.
		for _, line := range bytes.Split(data, []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var event protocol.Event
			if err := json.Unmarshal(line, &event); err != nil {
				log.Printf("Discarding undecodable event: %v", err)
				continue
			}
			select {
			case c.events <- event:
			case <-c.done:
				return
			}
		}
	}
}
