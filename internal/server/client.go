package server

import (
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/hangout/internal/names"
	apperrors "github.com/Tyrowin/hangout/internal/platform/errors"
	"github.com/Tyrowin/hangout/internal/protocol"
)

const (
	sendBufferSize = 256
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	writeWait      = 10 * time.Second
)

// Client is one WebSocket connection. Its username and room are recorded in
// the hub's registry on join and never change afterwards; switching rooms
// means opening a new connection.
type Client struct {
	id          string
	conn        *websocket.Conn
	send        chan []byte
	hub         *Hub
	addr        string
	rateLimiter *rateLimiter
	rateLimit   RateLimitConfig

	mu     sync.Mutex
	closed bool
}

// NewClient wraps conn for hub. The send buffer is bounded; events for a
// client whose buffer is full are dropped for that client only.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	if conn != nil {
		conn.SetReadLimit(hub.cfg.MaxMessageSize)
	}
	return &Client{
		id:          uuid.NewString(),
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		hub:         hub,
		addr:        addr,
		rateLimiter: newRateLimiter(hub.cfg.RateLimit, nil),
		rateLimit:   hub.cfg.RateLimit,
	}
}

// ID returns the connection identity used in logs.
func (c *Client) ID() string {
	return c.id
}

// enqueue hands data to the write pump without blocking.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend stops the write pump. Safe to call more than once.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) reply(event protocol.Event) {
	data, err := protocol.Encode(event)
	if err != nil {
		log.Printf("Error encoding reply for %s: %v", c.addr, err)
		return
	}
	if !c.enqueue(data) {
		log.Printf("Dropped %s reply for %s: send buffer full", event.Type, c.addr)
	}
}

// replyError sends a direct error event. The connection stays open.
func (c *Client) replyError(err error) {
	code := apperrors.CodeOf(err)
	if code == apperrors.CodeUnknown {
		code = apperrors.CodeProtocol
	}
	message := err.Error()
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	log.Printf("Rejected frame from %s: %v", c.addr, err)
	c.reply(protocol.Error(string(code), message))
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("Error setting initial read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// logReadError records why the read loop ended.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Printf("Message from %s exceeded maximum size of %d bytes", c.addr, c.hub.cfg.MaxMessageSize)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		log.Printf("Client %s disconnected: %v", c.addr, err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		log.Printf("Client %s connection closed: %v", c.addr, err)
	default:
		log.Printf("WebSocket read error from %s: %v", c.addr, err)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection in readPump: %v", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.rateLimiter.allow() {
			log.Printf("Rate limit exceeded for %s (%d messages per %s); discarding message", c.addr, c.rateLimit.Burst, c.rateLimit.RefillInterval)
			continue
		}

		if err := c.dispatch(raw); err != nil {
			c.replyError(err)
		}
	}
}

// dispatch handles one inbound frame on the connection's read goroutine.
func (c *Client) dispatch(raw []byte) error {
	in, err := protocol.Decode(raw)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeProtocol, "malformed frame", err)
	}

	if in.Action == protocol.ActionJoin {
		return c.join(in)
	}

	entry, joined := c.hub.tracker.Registry().Lookup(c)
	if !joined {
		return apperrors.New(apperrors.CodeProtocol, in.Action+" before join")
	}

	switch in.Action {
	case protocol.ActionTyping, protocol.ActionStopTyping:
		if in.Username != "" && names.Normalize(in.Username) != entry.Username {
			return apperrors.New(apperrors.CodeProtocol, "typing username does not match joined user")
		}
		if in.Action == protocol.ActionTyping {
			c.hub.tracker.Typing(entry.Username, entry.Room)
		} else {
			c.hub.tracker.StopTyping(entry.Username, entry.Room)
		}
		return nil
	case protocol.ActionConfetti, protocol.ActionJumpscare:
		return c.hub.relay.Effect(entry.Room, in.Action)
	case protocol.ActionGame:
		return c.hub.relay.Game(entry.Room, in.Payload)
	default:
		return apperrors.New(apperrors.CodeProtocol, "unknown action "+in.Action)
	}
}

func (c *Client) join(in protocol.Inbound) error {
	username := names.Normalize(in.Username)
	if err := names.Validate("username", username); err != nil {
		return err
	}
	room := names.Normalize(in.Room)
	if room == "" {
		room = c.hub.cfg.DefaultRoom
	}
	if err := c.hub.rooms.Verify(room, in.Secret); err != nil {
		return err
	}
	if err := c.hub.tracker.Join(c, username, room); err != nil {
		return err
	}
	log.Printf("Client %s joined room %q as %q", c.addr, room, username)
	c.hub.tracker.ReplyTyping(room, c.reply)
	return nil
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection in writePump: %v", err)
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.write(message, ok) {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("Error writing ping message to %s: %v", c.addr, err)
				return
			}
		}
	}
}

// write sends message plus anything already queued in one frame, one event
// per line. It returns false once the pump should stop.
func (c *Client) write(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Error setting write deadline for %s: %v", c.addr, err)
		return false
	}
	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error writing close message to %s: %v", c.addr, err)
		}
		return false
	}

	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		log.Printf("Error creating writer for %s: %v", c.addr, err)
		return false
	}
	if _, err := w.Write(message); err != nil {
		log.Printf("Error writing message to %s: %v", c.addr, err)
		return false
	}
	for n := len(c.send); n > 0; n-- {
		queued, ok := <-c.send
		if !ok {
			break
		}
		if _, err := w.Write([]byte{'\n'}); err != nil {
			return false
		}
		if _, err := w.Write(queued); err != nil {
			log.Printf("Error writing queued message to %s: %v", c.addr, err)
			return false
		}
	}
	if err := w.Close(); err != nil {
		log.Printf("Error closing writer for %s: %v", c.addr, err)
		return false
	}
	return true
}
