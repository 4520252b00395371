package chat

import (
	"errors"
	"strings"
	"time"
)

// SenderRole identifies which side of an application thread authored a message.
type SenderRole string

const (
	RoleApplicant SenderRole = "applicant"
	RoleRecruiter SenderRole = "recruiter"
)

// Other returns the opposite role in a two-party conversation.
func (r SenderRole) Other() SenderRole {
	if r == RoleApplicant {
		return RoleRecruiter
	}
	return RoleApplicant
}

// MessageKind distinguishes text messages from voice notes.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindAudio MessageKind = "audio"
)

// Message is one immutable entry in a conversation log. The ID is assigned by
// the durable store, never by a client, and is the de-duplication key for the
// echo/fallback merge.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderRole     SenderRole  `json:"sender_role"`
	SenderID       string      `json:"sender_id"`
	SenderName     string      `json:"sender_name"`
	Kind           MessageKind `json:"kind"`
	Body           string      `json:"body,omitempty"`
	AudioURL       string      `json:"audio_url,omitempty"`
	MimeType       string      `json:"mime_type,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	Read           bool        `json:"read"`
}

// Validate checks the invariants a stored message must satisfy.
func (m Message) Validate() error {
	if m.ConversationID == "" || m.SenderID == "" {
		return errors.New("chat: conversation_id and sender_id are required")
	}
	switch m.Kind {
	case KindText:
		if strings.TrimSpace(m.Body) == "" {
			return ErrEmptyBody
		}
	case KindAudio:
		if m.AudioURL == "" {
			return errors.New("chat: audio message requires an audio_url")
		}
	default:
		return errors.New("chat: unknown message kind")
	}
	return nil
}
