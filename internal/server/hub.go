package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Tyrowin/hangout/internal/presence"
	"github.com/Tyrowin/hangout/internal/registry"
	"github.com/Tyrowin/hangout/internal/relay"
	"github.com/Tyrowin/hangout/internal/rooms"
)

// Hub owns every live connection. Connections are accepted and released on
// the Run goroutine; room membership lives in the presence tracker's
// registry and is only populated once a client joins.
type Hub struct {
	cfg     Config
	rooms   *rooms.Directory
	tracker *roomTracker
	relay   *relay.Relay

	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a hub that admits joins to rooms in directory.
func NewHub(cfg Config, directory *rooms.Directory) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		cfg:        cfg.sanitized(),
		rooms:      directory,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	h.tracker = presence.NewTracker(registry.New[*Client](), h, h.cfg.TypingTTL)
	h.relay = relay.New(h)
	return h
}

// Relay returns the effect and game relay bound to this hub.
func (h *Hub) Relay() *relay.Relay {
	return h.relay
}

// Registry exposes the live connection table, e.g. as a rooms.Counter.
func (h *Hub) Registry() *registry.Registry[*Client] {
	return h.tracker.Registry()
}

// ClientCount returns the number of open connections, joined or not.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Register hands a freshly upgraded client to the hub. It reports false when
// the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister releases a client. After shutdown the release happens inline.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
		h.release(client)
	}
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. This method should be called in a separate goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			h.clients[client] = struct{}{}
			clientCount := len(h.clients)
			h.mutex.Unlock()
			log.Printf("Client %s registered from %s. Total clients: %d", client.id, client.addr, clientCount)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.release(client)
		}
	}
}

// release drops the client from the hub and its room, then stops its write
// pump. Releasing an unknown client does nothing.
func (h *Hub) release(client *Client) {
	h.mutex.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	clientCount := len(h.clients)
	h.mutex.Unlock()
	if !ok {
		return
	}

	if entry, joined := h.tracker.Leave(client); joined {
		log.Printf("%q left room %q", entry.Username, entry.Room)
	}
	client.closeSend()
	log.Printf("Client %s unregistered from %s. Total clients: %d", client.id, client.addr, clientCount)
}

// shutdownClients closes every connection; the pumps then unwind on their own.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	for _, client := range clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing client connection from %s: %v", client.addr, err)
		}
	}
	h.tracker.Close()

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown stops the hub and waits for every client goroutine to finish, or
// until timeout elapses.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
