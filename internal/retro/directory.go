package retro

import (
	"log/slog"
	"sync"

	"retro/api/internal/auth"
)

// Conn is one live client connection.
type Conn interface {
	ID() string
	Send(Event) error
	Close() error
}

type member struct {
	conn     Conn
	identity auth.Identity
}

// Directory maps sessions to the connections attached to them. It holds no
// durable state and is rebuilt empty on restart.
type Directory struct {
	mu      sync.RWMutex
	rooms   map[string]map[string]Conn
	members map[string]member
	logger  *slog.Logger
}

func NewDirectory(logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Directory{
		rooms:   make(map[string]map[string]Conn),
		members: make(map[string]member),
		logger:  logger,
	}
}

// Attach registers conn in the room of identity.SessionID. A connection that
// was already attached elsewhere leaves its previous room.
func (d *Directory) Attach(identity auth.Identity, conn Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if previous, ok := d.members[conn.ID()]; ok {
		d.removeLocked(previous.identity.SessionID, conn.ID())
	}
	room, ok := d.rooms[identity.SessionID]
	if !ok {
		room = make(map[string]Conn)
		d.rooms[identity.SessionID] = room
	}
	room[conn.ID()] = conn
	d.members[conn.ID()] = member{conn: conn, identity: identity}
}

// Detach removes conn from its room and returns the identity it carried.
func (d *Directory) Detach(conn Conn) (auth.Identity, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.members[conn.ID()]
	if !ok {
		return auth.Identity{}, false
	}
	delete(d.members, conn.ID())
	d.removeLocked(m.identity.SessionID, conn.ID())
	return m.identity, true
}

func (d *Directory) removeLocked(sessionID, connID string) {
	room, ok := d.rooms[sessionID]
	if !ok {
		return
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(d.rooms, sessionID)
	}
}

func (d *Directory) Identity(conn Conn) (auth.Identity, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.members[conn.ID()]
	return m.identity, ok
}

func (d *Directory) RoomSize(sessionID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms[sessionID])
}

func (d *Directory) Rooms() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}

func (d *Directory) peers(sessionID string) []Conn {
	d.mu.RLock()
	defer d.mu.RUnlock()
	room := d.rooms[sessionID]
	out := make([]Conn, 0, len(room))
	for _, conn := range room {
		out = append(out, conn)
	}
	return out
}

// Broadcast sends event to every connection in the session room and returns
// how many accepted it. A failed send is logged; the reader of that
// connection notices the broken socket and detaches it.
func (d *Directory) Broadcast(sessionID string, event Event) int {
	delivered := 0
	for _, conn := range d.peers(sessionID) {
		if err := conn.Send(event); err != nil {
			d.logger.Warn("broadcast failed",
				"session_id", sessionID,
				"conn_id", conn.ID(),
				"event", event.EventName(),
				"error", err,
			)
			continue
		}
		delivered++
	}
	return delivered
}

// CloseRoom detaches and closes every connection of a session.
func (d *Directory) CloseRoom(sessionID string) int {
	d.mu.Lock()
	room := d.rooms[sessionID]
	delete(d.rooms, sessionID)
	conns := make([]Conn, 0, len(room))
	for id, conn := range room {
		delete(d.members, id)
		conns = append(conns, conn)
	}
	d.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
	return len(conns)
}

// CloseAll closes every attached connection. Used on shutdown.
func (d *Directory) CloseAll() int {
	d.mu.RLock()
	ids := make([]string, 0, len(d.rooms))
	for id := range d.rooms {
		ids = append(ids, id)
	}
	d.mu.RUnlock()

	closed := 0
	for _, id := range ids {
		closed += d.CloseRoom(id)
	}
	return closed
}
