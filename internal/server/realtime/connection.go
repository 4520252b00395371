// Package realtime is the server side of the live channel: websocket
// connections grouped into per-conversation rooms with typed event fan-out.
package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/wire"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// ErrConnectionClosed is returned by Send once the socket is shut down.
var ErrConnectionClosed = errors.New("realtime: connection closed")

// Connection wraps one user's websocket. Outbound frames go through a
// buffered channel drained by a single write loop; the channel is never
// closed, so Send stays safe against a concurrent Close — shutdown is
// signaled through done and the write loop exits on it.
type Connection struct {
	ID     string
	UserID string

	ws       *websocket.Conn
	outbound chan []byte
	once     sync.Once
	done     chan struct{}
}

// NewConnection constructs a Connection for the given user.
func NewConnection(userID string, ws *websocket.Conn) *Connection {
	return &Connection{
		ID:       uuid.NewString(),
		UserID:   userID,
		ws:       ws,
		outbound: make(chan []byte, 128),
		done:     make(chan struct{}),
	}
}

// Start launches the write loop. Call exactly once per connection.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Send enqueues an encoded frame for delivery. A client that cannot keep up
// is closed to keep backpressure bounded.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case <-c.done:
		return ErrConnectionClosed
	case c.outbound <- payload:
		return nil
	default:
		c.Close(websocket.CloseGoingAway, "send buffer full")
		return errors.New("realtime: send buffer exceeded")
	}
}

// SendFrame encodes and enqueues a wire frame.
func (c *Connection) SendFrame(f wire.Frame) error {
	payload, err := f.Encode()
	if err != nil {
		return err
	}
	return c.Send(payload)
}

// Close terminates the connection and stops the write loop. Idempotent.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.outbound:
			if err := c.writeMessage(payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.writePing(); err != nil {
				return
			}
		}
	}
}

func (c *Connection) writeMessage(payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *Connection) writePing() error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}
