package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/server/realtime"
	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/wire"
)

const socketReadTimeout = 60 * time.Second

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Authentication lives in front of this subsystem; the gateway
		// decides which origins reach us.
		return true
	},
}

// Socket upgrades HTTP connections to the live channel and processes
// join/leave/typing frames until the client disconnects. Message delivery
// and read receipts only ever flow server→client; durable writes come in
// through the REST surface.
func (h *Handlers) Socket(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the response.
		return
	}

	conn := realtime.NewConnection(userID, ws)
	h.hub.Attach(conn)
	defer func() {
		h.hub.Detach(conn)
		conn.Close(websocket.CloseNormalClosure, "session closed")
	}()

	ws.SetReadLimit(1 << 20)
	_ = ws.SetReadDeadline(time.Now().Add(socketReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(socketReadTimeout))
	})

	_ = conn.SendFrame(wire.Frame{Type: wire.TypeConnected})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
				errors.Is(err, websocket.ErrCloseSent) {
				return
			}
			h.replyError(conn, "read_error", err.Error())
			return
		}

		frame, err := wire.Decode(data)
		if err != nil {
			h.replyError(conn, "bad_request", "invalid payload")
			continue
		}

		switch frame.Type {
		case wire.TypeJoin:
			h.handleJoin(conn, frame)
		case wire.TypeLeave:
			h.handleLeave(conn, frame)
		case wire.TypeTypingStarted, wire.TypeTypingStopped:
			h.handleTyping(conn, frame)
		default:
			h.replyError(conn, "unsupported_type", "unknown frame type")
		}
	}
}

func (h *Handlers) handleJoin(conn *realtime.Connection, frame wire.Frame) {
	if frame.ConversationID == "" {
		h.replyError(conn, "bad_request", "conversation_id is required")
		return
	}
	h.hub.Join(frame.ConversationID, conn)
	h.ack(conn, wire.TypeJoined, frame.ConversationID)
}

func (h *Handlers) handleLeave(conn *realtime.Connection, frame wire.Frame) {
	if frame.ConversationID == "" {
		h.replyError(conn, "bad_request", "conversation_id is required")
		return
	}
	h.hub.Leave(frame.ConversationID, conn)
	h.ack(conn, wire.TypeLeft, frame.ConversationID)
}

func (h *Handlers) handleTyping(conn *realtime.Connection, frame wire.Frame) {
	if frame.ConversationID == "" || frame.Role == "" {
		return // typing is advisory, drop silently
	}
	active := frame.Type == wire.TypeTypingStarted
	h.hub.BroadcastTyping(frame.ConversationID, frame.Role, frame.Name, active, conn.UserID)

	if h.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		var err error
		if active {
			err = h.presence.SetTyping(ctx, frame.ConversationID, frame.Role, frame.Name)
		} else {
			err = h.presence.ClearTyping(ctx, frame.ConversationID, frame.Role)
		}
		if err != nil {
			h.log.Debug().Err(err).Msg("typing presence cache update failed")
		}
	}
}

func (h *Handlers) ack(conn *realtime.Connection, frameType, conversationID string) {
	_ = conn.SendFrame(wire.Frame{Type: frameType, ConversationID: conversationID})
}

func (h *Handlers) replyError(conn *realtime.Connection, code, message string) {
	_ = conn.SendFrame(wire.Frame{Type: wire.TypeError, Code: code, Error: message})
}
