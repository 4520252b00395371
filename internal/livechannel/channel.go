// Package livechannel implements chat.LiveChannel over a websocket
// connection to the chat hub. Reconnection and backoff are deliberately the
// embedder's concern; the adapter only reports link state.
package livechannel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/chat"
	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/wire"
)

const (
	writeWait   = 10 * time.Second
	pingPeriod  = 30 * time.Second
	readTimeout = 60 * time.Second
	eventBuffer = 128
)

// Channel is a client-side live channel over one websocket.
type Channel struct {
	url string
	log zerolog.Logger

	connected atomic.Bool

	writeMu sync.Mutex
	conn    *websocket.Conn

	events     chan chat.Event
	eventsOnce sync.Once
	closeOnce  sync.Once
	done       chan struct{}
}

var _ chat.LiveChannel = (*Channel)(nil)

// New constructs an unconnected channel for the given websocket URL.
func New(url string, logger zerolog.Logger) *Channel {
	return &Channel{
		url:    url,
		log:    logger.With().Str("component", "livechannel").Logger(),
		events: make(chan chat.Event, eventBuffer),
		done:   make(chan struct{}),
	}
}

// Dial connects and starts the read and keepalive loops. Call once; if the
// link later drops, Connected flips to false and the embedder decides
// whether to build a fresh Channel.
func (c *Channel) Dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: dial: %v", chat.ErrChannel, err)
	}

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
	c.connected.Store(true)

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go c.readLoop(conn)
	go c.pingLoop(conn)
	return nil
}

// Join subscribes this connection to a conversation room.
func (c *Channel) Join(roomID string) error {
	return c.writeFrame(wire.Frame{Type: wire.TypeJoin, ConversationID: roomID})
}

// Leave unsubscribes from a conversation room.
func (c *Channel) Leave(roomID string) error {
	return c.writeFrame(wire.Frame{Type: wire.TypeLeave, ConversationID: roomID})
}

// EmitTyping signals local typing presence into the room.
func (c *Channel) EmitTyping(roomID string, role chat.SenderRole, name string, active bool) error {
	t := wire.TypeTypingStopped
	if active {
		t = wire.TypeTypingStarted
	}
	return c.writeFrame(wire.Frame{Type: t, ConversationID: roomID, Role: role, Name: name})
}

// Events yields decoded inbound events. Closed when the channel shuts down.
func (c *Channel) Events() <-chan chat.Event {
	return c.events
}

// Connected reports current link state.
func (c *Channel) Connected() bool {
	return c.connected.Load()
}

// Close tears the connection down. The event stream is closed once the read
// loop has drained, so consumers ranging over Events terminate cleanly.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		close(c.done)
		c.writeMu.Lock()
		conn := c.conn
		if conn != nil {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closed"),
				time.Now().Add(writeWait))
			_ = conn.Close()
		}
		c.writeMu.Unlock()
		if conn == nil {
			// Never dialed, so no read loop owns the stream.
			c.closeEvents()
		}
	})
	return nil
}

// closeEvents is only called by the goroutine that owns event delivery.
func (c *Channel) closeEvents() {
	c.eventsOnce.Do(func() { close(c.events) })
}

func (c *Channel) writeFrame(f wire.Frame) error {
	payload, err := f.Encode()
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", chat.ErrChannel, f.Type, err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil || !c.connected.Load() {
		return fmt.Errorf("%w: not connected", chat.ErrChannel)
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("%w: %v", chat.ErrChannel, err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.connected.Store(false)
		return fmt.Errorf("%w: write %s: %v", chat.ErrChannel, f.Type, err)
	}
	return nil
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	defer c.closeEvents()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.connected.Store(false)
			select {
			case <-c.done:
			default:
				c.log.Warn().Err(err).Msg("live channel read failed")
				c.deliver(chat.Event{Type: chat.EventChannelError, Err: fmt.Errorf("%w: %v", chat.ErrChannel, err)})
			}
			return
		}
		frame, err := wire.Decode(data)
		if err != nil {
			c.log.Debug().Err(err).Msg("dropping malformed frame")
			continue
		}
		if ev, ok := frame.ToEvent(); ok {
			c.deliver(ev)
		}
	}
}

// deliver never blocks the read loop; if the consumer lags past the buffer,
// the event is dropped and the reconciliation pass repairs any drift.
func (c *Channel) deliver(ev chat.Event) {
	select {
	case <-c.done:
	case c.events <- ev:
	default:
		c.log.Warn().Str("type", string(ev.Type)).Msg("event buffer full, dropping")
	}
}

func (c *Channel) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				c.connected.Store(false)
				return
			}
		}
	}
}
