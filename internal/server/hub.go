package server

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/omochice/termchat/pkg/protocol"
)

// Hub tracks which peers are in which room and fans out lines to them.
type Hub struct {
	rooms  map[string][]*peer
	mu     sync.RWMutex
	logger zerolog.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string][]*peer),
		logger: logger,
	}
}

// join adds p to its room and returns the room members, p included, in join order.
func (h *Hub) join(p *peer) []protocol.User {
	_, _, room := p.identity()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.rooms[room] = append(h.rooms[room], p)

	users := make([]protocol.User, 0, len(h.rooms[room]))
	for _, member := range h.rooms[room] {
		id, name, _ := member.identity()
		users = append(users, protocol.User{ID: id, UserName: name})
	}
	return users
}

// leave removes p from its room and reports whether it was there.
func (h *Hub) leave(p *peer) bool {
	_, _, room := p.identity()

	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[room]
	for i, member := range members {
		if member == p {
			members = append(members[:i], members[i+1:]...)
			if len(members) == 0 {
				delete(h.rooms, room)
			} else {
				h.rooms[room] = members
			}
			return true
		}
	}
	return false
}

// broadcast queues data for every member of room except skip, which may be nil.
func (h *Hub) broadcast(room string, data []byte, skip *peer) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, member := range h.rooms[room] {
		if member == skip {
			continue
		}
		select {
		case member.outgoing <- data:
		default:
			h.logger.Warn().Str("peer", member.id).Msg("Client channel full, skipping")
		}
	}
}

// RoomCount returns number of rooms with at least one member.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// MemberCount returns number of peers in room.
func (h *Hub) MemberCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
