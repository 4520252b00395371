// Package wire defines the JSON frames exchanged over the live channel
// websocket. Both the server hub and the client adapter decode from this
// single schema so the two sides cannot drift.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/chat"
)

// Frame type identifiers. Client → server: join, leave, typing_started,
// typing_stopped. Server → client: connected, joined, left, message,
// message_read, typing_started, typing_stopped, error.
const (
	TypeJoin          = "join"
	TypeLeave         = "leave"
	TypeTypingStarted = "typing_started"
	TypeTypingStopped = "typing_stopped"

	TypeConnected   = "connected"
	TypeJoined      = "joined"
	TypeLeft        = "left"
	TypeMessage     = "message"
	TypeMessageRead = "message_read"
	TypeError       = "error"
)

// Frame is the envelope for every websocket payload. Only the fields relevant
// to the given Type are set.
type Frame struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Role           chat.SenderRole `json:"role,omitempty"`
	Name           string          `json:"name,omitempty"`
	MessageID      string          `json:"message_id,omitempty"`
	Message        *chat.Message   `json:"message,omitempty"`
	Code           string          `json:"code,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// Encode marshals the frame for the socket.
func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// Decode parses a raw websocket payload into a Frame.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("wire: decode frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("wire: frame missing type")
	}
	return f, nil
}

// ToEvent maps a server frame onto the core event model. Frames that carry no
// core meaning (acks, connected) return ok=false.
func (f Frame) ToEvent() (chat.Event, bool) {
	switch f.Type {
	case TypeMessage:
		if f.Message == nil {
			return chat.Event{}, false
		}
		return chat.Event{
			Type:           chat.EventMessageDelivered,
			ConversationID: f.Message.ConversationID,
			Message:        *f.Message,
		}, true
	case TypeMessageRead:
		return chat.Event{
			Type:           chat.EventMessageRead,
			ConversationID: f.ConversationID,
			MessageID:      f.MessageID,
		}, true
	case TypeTypingStarted:
		return chat.Event{
			Type:           chat.EventTypingStarted,
			ConversationID: f.ConversationID,
			Role:           f.Role,
			Name:           f.Name,
		}, true
	case TypeTypingStopped:
		return chat.Event{
			Type:           chat.EventTypingStopped,
			ConversationID: f.ConversationID,
			Role:           f.Role,
			Name:           f.Name,
		}, true
	case TypeError:
		return chat.Event{
			Type:           chat.EventChannelError,
			ConversationID: f.ConversationID,
			Err:            fmt.Errorf("%w: %s: %s", chat.ErrChannel, f.Code, f.Error),
		}, true
	default:
		return chat.Event{}, false
	}
}
