package hub

import (
	"time"

	"github.com/gorilla/websocket"
)

// connState is the per-connection lifecycle.
type connState int

const (
	stateConnecting connState = iota
	stateOpen
	stateClosing
	stateClosed
)

// Conn is the subset of *websocket.Conn the hub uses. Tests substitute
// in-memory fakes.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

const (
	// sendBuffer bounds per-client outbound queueing; a client that
	// cannot drain this many messages is dropped rather than allowed to
	// stall the broadcaster.
	sendBuffer = 64

	writeWait = 10 * time.Second
)

// client is one dashboard connection. Owned by the Hub; all map mutation
// happens under the Hub's lock.
type client struct {
	id   string
	conn Conn

	send chan []byte
	done chan struct{}

	// Guarded by the hub mutex.
	state        connState
	subs         map[string]bool
	filters      *Filters
	lastPongAt   time.Time
	awaitingPong bool
}

// subscribedTo reports whether the client's subscription set covers the
// topic. Callers hold the hub lock.
func (c *client) subscribedTo(topic string) bool {
	return c.subs[TopicAll] || c.subs[topic]
}

// enqueue hands a marshaled message to the write pump without blocking.
// Returns false when the client's buffer is full.
func (c *client) enqueue(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// writePump serializes all writes to the connection. It exits when the
// send channel is closed (hub-initiated close) or a write fails.
func (c *client) writePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}

	// Channel closed: deterministic shutdown, flush a close frame.
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

// ping sends a control ping. WriteControl is safe to call concurrently
// with the write pump's data frames.
func (c *client) ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}
