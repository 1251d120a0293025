// Package session implements the real-time session plane (C8): a
// room-based websocket fan-out generalizing the teacher's single-room
// ride hub into the multi-room plane §4.8 describes.
package session

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Conn is one live session: a websocket connection plus the rooms it has
// joined. Frames to a single Conn are written from one goroutine only, so
// Hub serializes writes through send rather than calling WriteJSON
// directly from multiple goroutines.
type Conn struct {
	ws     *websocket.Conn
	send   chan []byte
	UserID string
	Role   string
	Type   string

	mu    sync.Mutex
	rooms map[string]bool
}

func newConn(ws *websocket.Conn, userID, role, userType string) *Conn {
	return &Conn{
		ws:     ws,
		send:   make(chan []byte, 32),
		UserID: userID,
		Role:   role,
		Type:   userType,
		rooms:  make(map[string]bool),
	}
}

// Hub is the room registry and fan-out point for every live session.
// Rooms are created lazily on join and garbage collected when empty.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Conn]bool

	unregister chan *Conn
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Conn]bool),
		unregister: make(chan *Conn, 64),
	}
}

// Run processes unregistration events as connections drop or fall behind
// on their send buffer. It must be started once, in its own goroutine,
// before any connection is served.
func (h *Hub) Run() {
	for c := range h.unregister {
		h.leaveAll(c)
	}
}

// Join adds a connection to a room.
func (h *Hub) Join(c *Conn, room string) {
	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Conn]bool)
	}
	h.rooms[room][c] = true
	h.mu.Unlock()

	c.mu.Lock()
	c.rooms[room] = true
	c.mu.Unlock()
}

// Leave removes a connection from a single room.
func (h *Hub) Leave(c *Conn, room string) {
	h.mu.Lock()
	if set, ok := h.rooms[room]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()

	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

func (h *Hub) leaveAll(c *Conn) {
	c.mu.Lock()
	rooms := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		rooms = append(rooms, r)
	}
	c.mu.Unlock()

	for _, r := range rooms {
		h.Leave(c, r)
	}
	close(c.send)
}

// Broadcast sends payload to every connection in room, best-effort: a
// connection whose send buffer is full is dropped rather than blocking
// the broadcaster, matching the teacher's non-blocking fan-out.
func (h *Hub) Broadcast(room string, payload []byte) {
	h.mu.RLock()
	conns := h.rooms[room]
	targets := make([]*Conn, 0, len(conns))
	for c := range conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- payload:
		default:
			h.unregister <- c
		}
	}
}

// NewConn wraps an upgraded websocket connection for this hub.
func NewConn(ws *websocket.Conn, userID, role, userType string) *Conn {
	return newConn(ws, userID, role, userType)
}

// Unregister tears a connection down and leaves every room it was in.
func (h *Hub) Unregister(c *Conn) {
	h.unregister <- c
}
