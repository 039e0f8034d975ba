package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"retro/api/internal/retro"
)

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// wsPeer is the retro.Conn for one socket. Writes are serialised because the
// engine broadcasts from whichever goroutine handled the intent.
type wsPeer struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu        sync.Mutex
	requestID string
}

func newWSPeer(id string, conn *websocket.Conn, writeTimeout time.Duration) *wsPeer {
	return &wsPeer{id: id, conn: conn, writeTimeout: writeTimeout}
}

func (p *wsPeer) ID() string { return p.id }

func (p *wsPeer) Send(event retro.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	frame := wsFrame{Type: event.EventName(), Payload: payload}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := event.(retro.ErrorEvent); ok {
		frame.RequestID = p.requestID
	}
	return p.writeLocked(frame)
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeLocked(frame)
}

func (p *wsPeer) writeLocked(frame wsFrame) error {
	if p.writeTimeout > 0 {
		_ = p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
	}
	return websocket.JSON.Send(p.conn, frame)
}

// handling marks the request whose errors should echo its id.
func (p *wsPeer) handling(requestID string) {
	p.mu.Lock()
	p.requestID = requestID
	p.mu.Unlock()
}

func (p *wsPeer) Close() error {
	return p.conn.Close()
}
