package chat

import "errors"

// Error taxonomy shared by the session, the aggregator and the adapters.
var (
	// ErrLoad means a conversation snapshot fetch failed; the session stays
	// unopened and the caller should offer a retry path.
	ErrLoad = errors.New("chat: conversation load failed")

	// ErrSend means a durable write failed; the message was not inserted
	// optimistically and the compose input should be preserved.
	ErrSend = errors.New("chat: send failed")

	// ErrEmptyBody rejects empty or whitespace-only text sends.
	ErrEmptyBody = errors.New("chat: empty message body")

	// ErrNoConversation is returned by operations that need an open session.
	ErrNoConversation = errors.New("chat: no conversation open")

	// ErrPermission means the user denied access to the capture device.
	ErrPermission = errors.New("chat: capture permission denied")

	// ErrUnsupported means the platform offers no capture capability.
	ErrUnsupported = errors.New("chat: capture not supported")

	// ErrChannel wraps errors surfaced by the live channel itself.
	ErrChannel = errors.New("chat: live channel error")
)
