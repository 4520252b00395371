package chat

import "context"

// MessageStore is the request/response boundary to the durable conversation
// log. Implementations must be safe for concurrent use; every call is
// context-aware so callers own timeouts and cancellation.
type MessageStore interface {
	// FetchMessages returns the full conversation log ordered by CreatedAt
	// ascending.
	FetchMessages(ctx context.Context, conversationID string) ([]Message, error)

	// SendText durably appends a text message and returns the stored message
	// with its store-assigned ID and timestamp.
	SendText(ctx context.Context, in SendTextInput) (Message, error)

	// SendAudio durably appends a voice message carrying an opaque binary
	// payload and its MIME type.
	SendAudio(ctx context.Context, in SendAudioInput) (Message, error)

	// MarkRead acknowledges a single message as read by the recipient.
	MarkRead(ctx context.Context, messageID string) error
}

// SendTextInput carries the fields of a durable text write.
type SendTextInput struct {
	ConversationID string
	SenderRole     SenderRole
	SenderID       string
	SenderName     string
	Body           string
}

// SendAudioInput carries the fields of a durable audio write.
type SendAudioInput struct {
	ConversationID string
	SenderRole     SenderRole
	SenderID       string
	SenderName     string
	Payload        []byte
	MimeType       string
}

// LiveChannel is the room-scoped push channel. The core depends on this
// contract only; transport, reconnection and backoff belong to the adapter.
type LiveChannel interface {
	Join(roomID string) error
	Leave(roomID string) error

	// EmitTyping signals local typing presence into a room. active=true maps
	// to typing-started, active=false to typing-stopped.
	EmitTyping(roomID string, role SenderRole, name string, active bool) error

	// Events yields inbound events across all joined rooms. The channel is
	// closed when the connection is torn down for good.
	Events() <-chan Event

	// Connected reports the current link state. A false value is a hint that
	// the echo wait should be skipped, not a promise that events are lost.
	Connected() bool
}

// EventType enumerates inbound live-channel events.
type EventType string

const (
	EventMessageDelivered EventType = "message-delivered"
	EventMessageRead      EventType = "message-read"
	EventTypingStarted    EventType = "typing-started"
	EventTypingStopped    EventType = "typing-stopped"
	EventChannelError     EventType = "channel-error"
)

// Event is one inbound live-channel event. Only the fields relevant to the
// given Type are populated.
type Event struct {
	Type           EventType
	ConversationID string

	// EventMessageDelivered
	Message Message

	// EventMessageRead
	MessageID string

	// Typing events
	Role SenderRole
	Name string

	// EventChannelError
	Err error
}
