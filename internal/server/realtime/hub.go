package realtime

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/chat"
	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/wire"
)

// Hub coordinates websocket sessions and conversation rooms. One active
// connection per user; joining and leaving rooms is additive, and the
// message echo is always delivered back to its sender's room membership.
type Hub struct {
	log zerolog.Logger

	mu           sync.RWMutex
	sessions     map[string]*Connection            // sessionID -> connection
	userSessions map[string]string                 // userID -> sessionID
	rooms        map[string]map[string]*Connection // conversationID -> sessionID -> connection
	sessionRooms map[string]map[string]struct{}    // sessionID -> set of conversationIDs
}

// NewHub constructs an initialized Hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		log:          logger.With().Str("component", "hub").Logger(),
		sessions:     make(map[string]*Connection),
		userSessions: make(map[string]string),
		rooms:        make(map[string]map[string]*Connection),
		sessionRooms: make(map[string]map[string]struct{}),
	}
}

// Attach registers a connection for the given user, replacing and closing
// any previous session so there is one active socket per user.
func (h *Hub) Attach(conn *Connection) {
	var previous *Connection

	h.mu.Lock()
	if existingID, ok := h.userSessions[conn.UserID]; ok {
		if existing := h.sessions[existingID]; existing != nil {
			previous = existing
			h.detachLocked(existingID)
		}
	}
	h.sessions[conn.ID] = conn
	h.userSessions[conn.UserID] = conn.ID
	h.sessionRooms[conn.ID] = make(map[string]struct{})
	h.mu.Unlock()

	conn.Start()

	if previous != nil {
		previous.Close(4001, "session replaced")
	}
}

// Detach removes a connection if it is still tracked.
func (h *Hub) Detach(conn *Connection) {
	h.mu.Lock()
	h.detachLocked(conn.ID)
	h.mu.Unlock()
}

// Join adds the connection to the conversation room.
func (h *Hub) Join(conversationID string, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[conn.ID]; !ok {
		return
	}
	room := h.rooms[conversationID]
	if room == nil {
		room = make(map[string]*Connection)
		h.rooms[conversationID] = room
	}
	room[conn.ID] = conn

	memberships := h.sessionRooms[conn.ID]
	if memberships == nil {
		memberships = make(map[string]struct{})
		h.sessionRooms[conn.ID] = memberships
	}
	memberships[conversationID] = struct{}{}
}

// Leave removes the connection from the conversation room.
func (h *Hub) Leave(conversationID string, conn *Connection) {
	h.mu.Lock()
	h.leaveLocked(conversationID, conn.ID)
	h.mu.Unlock()
}

// BroadcastMessage echoes a freshly stored message into its room, the sender
// included: the sender's client waits for exactly this echo before giving up
// on its fallback timer.
func (h *Hub) BroadcastMessage(m chat.Message) int {
	return h.broadcast(m.ConversationID, wire.Frame{Type: wire.TypeMessage, Message: &m}, "")
}

// BroadcastRead fans a read receipt into the room.
func (h *Hub) BroadcastRead(conversationID, messageID string) int {
	return h.broadcast(conversationID, wire.Frame{
		Type:           wire.TypeMessageRead,
		ConversationID: conversationID,
		MessageID:      messageID,
	}, "")
}

// BroadcastTyping relays typing presence to everyone but its author.
func (h *Hub) BroadcastTyping(conversationID string, role chat.SenderRole, name string, active bool, excludeUserID string) int {
	t := wire.TypeTypingStopped
	if active {
		t = wire.TypeTypingStarted
	}
	return h.broadcast(conversationID, wire.Frame{
		Type:           t,
		ConversationID: conversationID,
		Role:           role,
		Name:           name,
	}, excludeUserID)
}

func (h *Hub) broadcast(conversationID string, frame wire.Frame, excludeUserID string) int {
	payload, err := frame.Encode()
	if err != nil {
		h.log.Error().Err(err).Str("type", frame.Type).Msg("encode broadcast frame")
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	room := h.rooms[conversationID]
	delivered := 0
	for _, conn := range room {
		if excludeUserID != "" && conn.UserID == excludeUserID {
			continue
		}
		if err := conn.Send(payload); err == nil {
			delivered++
		}
	}
	return delivered
}

// NotifyUser delivers payload to the current connection of the given user.
func (h *Hub) NotifyUser(userID string, frame wire.Frame) bool {
	payload, err := frame.Encode()
	if err != nil {
		return false
	}
	h.mu.RLock()
	sessionID, ok := h.userSessions[userID]
	conn := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok || conn == nil {
		return false
	}
	return conn.Send(payload) == nil
}

// RoomSize reports current membership, used by tests and the health surface.
func (h *Hub) RoomSize(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// Close terminates all tracked connections and clears hub state.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := make([]*Connection, 0, len(h.sessions))
	for _, conn := range h.sessions {
		sessions = append(sessions, conn)
	}
	h.sessions = make(map[string]*Connection)
	h.userSessions = make(map[string]string)
	h.rooms = make(map[string]map[string]*Connection)
	h.sessionRooms = make(map[string]map[string]struct{})
	h.mu.Unlock()

	for _, conn := range sessions {
		conn.Close(1001, "hub shutdown")
	}
}

func (h *Hub) detachLocked(sessionID string) {
	conn, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	delete(h.sessions, sessionID)

	if current, ok := h.userSessions[conn.UserID]; ok && current == sessionID {
		delete(h.userSessions, conn.UserID)
	}
	for roomID := range h.sessionRooms[sessionID] {
		h.leaveLocked(roomID, sessionID)
	}
	delete(h.sessionRooms, sessionID)
}

func (h *Hub) leaveLocked(conversationID string, sessionID string) {
	room := h.rooms[conversationID]
	if room == nil {
		return
	}
	delete(room, sessionID)
	if len(room) == 0 {
		delete(h.rooms, conversationID)
	}
	if memberships, ok := h.sessionRooms[sessionID]; ok {
		delete(memberships, conversationID)
	}
}
