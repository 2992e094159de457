package server

import (
	"log"

	"github.com/Tyrowin/hangout/internal/protocol"
)

// ToRoom delivers event to every connection joined to room. Recipients are
// snapshotted first so no lock is held while enqueueing.
func (h *Hub) ToRoom(room string, event protocol.Event) {
	h.deliver(h.tracker.Registry().ConnectionsInRoom(room), event)
}

// ToAll delivers event to every joined connection.
func (h *Hub) ToAll(event protocol.Event) {
	h.deliver(h.tracker.Registry().All(), event)
}

// NotifyMessage tells a room that its message history changed.
func (h *Hub) NotifyMessage(kind, room string, id int64) {
	h.ToRoom(room, protocol.MessageNotice(kind, room, id))
}

func (h *Hub) deliver(recipients []*Client, event protocol.Event) {
	if len(recipients) == 0 {
		return
	}
	data, err := protocol.Encode(event)
	if err != nil {
		log.Printf("Error encoding %s event: %v", event.Type, err)
		return
	}
	dropped := 0
	for _, client := range recipients {
		if !client.enqueue(data) {
			dropped++
		}
	}
	if dropped > 0 {
		log.Printf("Dropped %s event for %d of %d clients with full or closed send buffers", event.Type, dropped, len(recipients))
	}
}
