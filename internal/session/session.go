// Package session owns the authoritative in-memory message list for one open
// conversation. It merges live-channel events with durable-store responses
// through a single de-duplication gate, runs the optimistic echo-fallback
// timer, and drives typing-presence debounce.
package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/chat"
)

const (
	defaultEchoFallbackWindow = 4 * time.Second
	defaultTypingIdleWindow   = 2 * time.Second
	ackTimeout                = 5 * time.Second
)

// Config carries the local identity and the session tunables.
type Config struct {
	Role     chat.SenderRole
	UserID   string
	UserName string

	// EchoFallbackWindow bounds how long a successful send waits for its
	// live-channel echo before the store response is inserted locally.
	EchoFallbackWindow time.Duration

	// TypingIdleWindow is the inactivity window after the last keystroke
	// before typing-stopped is emitted.
	TypingIdleWindow time.Duration

	// OnViewed, when set, is invoked after a conversation has been opened and
	// its backlog acknowledged. The unread aggregator hooks in here.
	OnViewed func(conversationID string)
}

// Peer is one remote party currently signaling typing.
type Peer struct {
	Role chat.SenderRole
	Name string
}

// Session orchestrates one open conversation. All state is guarded by a
// single mutex; timers re-check the session epoch so a timer armed for a
// conversation that has since been closed is a no-op.
type Session struct {
	cfg     Config
	store   chat.MessageStore
	channel chat.LiveChannel
	log     zerolog.Logger

	mu             sync.Mutex
	conversationID string
	active         bool
	epoch          uint64
	messages       []chat.Message
	seen           map[string]struct{}
	acked          map[string]struct{}
	typingPeers    map[Peer]struct{}
	fallbacks      map[string]*time.Timer
	typingTimer    *time.Timer
	typingActive   bool

	// sendMu serializes durable writes for this conversation. Concurrent
	// sends queue behind it, they are not rejected.
	sendMu sync.Mutex
}

// New constructs an idle session bound to the local user identity.
func New(store chat.MessageStore, channel chat.LiveChannel, cfg Config, logger zerolog.Logger) *Session {
	if cfg.EchoFallbackWindow <= 0 {
		cfg.EchoFallbackWindow = defaultEchoFallbackWindow
	}
	if cfg.TypingIdleWindow <= 0 {
		cfg.TypingIdleWindow = defaultTypingIdleWindow
	}
	return &Session{
		cfg:         cfg,
		store:       store,
		channel:     channel,
		log:         logger.With().Str("component", "session").Logger(),
		seen:        make(map[string]struct{}),
		acked:       make(map[string]struct{}),
		typingPeers: make(map[Peer]struct{}),
		fallbacks:   make(map[string]*time.Timer),
	}
}

// Open loads the conversation snapshot, replaces the message list wholesale
// and joins the live-channel room. On fetch failure the session state is left
// untouched so the caller can retry. Opening while another conversation is
// open closes it first.
func (s *Session) Open(ctx context.Context, conversationID string) error {
	snapshot, err := s.store.FetchMessages(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("%w: %v", chat.ErrLoad, err)
	}
	sort.SliceStable(snapshot, func(i, j int) bool {
		return snapshot[i].CreatedAt.Before(snapshot[j].CreatedAt)
	})

	s.mu.Lock()
	if s.conversationID != "" {
		s.closeLocked()
	}
	s.epoch++
	s.conversationID = conversationID
	s.active = true
	s.messages = snapshot
	s.seen = make(map[string]struct{}, len(snapshot))
	s.acked = make(map[string]struct{})
	s.typingPeers = make(map[Peer]struct{})
	var backlog []string
	for _, m := range snapshot {
		s.seen[m.ID] = struct{}{}
		if m.SenderRole != s.cfg.Role && !m.Read {
			backlog = append(backlog, m.ID)
			s.acked[m.ID] = struct{}{}
		}
	}
	s.mu.Unlock()

	if err := s.channel.Join(conversationID); err != nil {
		// Degraded open: the fallback path and the reconciliation pass cover
		// for missing live events, so the session stays usable.
		s.log.Warn().Err(err).Str("conversation", conversationID).Msg("join room failed, running without live events")
	}

	// Acknowledge the unread backlog now that the conversation is on screen.
	for _, id := range backlog {
		s.ackRead(id)
	}
	if s.cfg.OnViewed != nil {
		s.cfg.OnViewed(conversationID)
	}

	s.log.Debug().Str("conversation", conversationID).Int("messages", len(snapshot)).Msg("conversation opened")
	return nil
}

// Close leaves the room and clears all per-conversation state. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Session) closeLocked() {
	if s.conversationID == "" {
		return
	}
	s.stopTypingLocked(true)
	for id, t := range s.fallbacks {
		t.Stop()
		delete(s.fallbacks, id)
	}
	if err := s.channel.Leave(s.conversationID); err != nil {
		s.log.Warn().Err(err).Msg("leave room failed")
	}
	s.epoch++
	s.conversationID = ""
	s.active = false
	s.messages = nil
	s.seen = make(map[string]struct{})
	s.acked = make(map[string]struct{})
	s.typingPeers = make(map[Peer]struct{})
}

// SendText durably writes a text message, then waits for the live-channel
// echo. If the echo does not arrive inside the fallback window, or the
// channel is disconnected, the store response is inserted directly; either
// way the de-duplication gate guarantees a single entry.
func (s *Session) SendText(ctx context.Context, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return chat.ErrEmptyBody
	}

	s.mu.Lock()
	conversationID := s.conversationID
	if conversationID == "" {
		s.mu.Unlock()
		return chat.ErrNoConversation
	}
	s.stopTypingLocked(true)
	s.mu.Unlock()

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	msg, err := s.store.SendText(ctx, chat.SendTextInput{
		ConversationID: conversationID,
		SenderRole:     s.cfg.Role,
		SenderID:       s.cfg.UserID,
		SenderName:     s.cfg.UserName,
		Body:           body,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", chat.ErrSend, err)
	}
	s.settleSend(msg)
	return nil
}

// SendAudio has the same contract as SendText with a sealed recording payload.
func (s *Session) SendAudio(ctx context.Context, payload []byte, mimeType string) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty audio payload", chat.ErrSend)
	}

	s.mu.Lock()
	conversationID := s.conversationID
	if conversationID == "" {
		s.mu.Unlock()
		return chat.ErrNoConversation
	}
	s.stopTypingLocked(true)
	s.mu.Unlock()

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	msg, err := s.store.SendAudio(ctx, chat.SendAudioInput{
		ConversationID: conversationID,
		SenderRole:     s.cfg.Role,
		SenderID:       s.cfg.UserID,
		SenderName:     s.cfg.UserName,
		Payload:        payload,
		MimeType:       mimeType,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", chat.ErrSend, err)
	}
	s.settleSend(msg)
	return nil
}

// settleSend decides between waiting for the echo and inserting right away.
func (s *Session) settleSend(msg chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversationID != msg.ConversationID {
		// Conversation was closed while the write was in flight. The message
		// is durable; the snapshot reload will carry it on the next open.
		return
	}
	if !s.channel.Connected() {
		s.insertLocked(msg)
		return
	}
	epoch := s.epoch
	s.fallbacks[msg.ID] = time.AfterFunc(s.cfg.EchoFallbackWindow, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch != epoch {
			return
		}
		delete(s.fallbacks, msg.ID)
		if s.insertLocked(msg) {
			s.log.Debug().Str("message", msg.ID).Msg("echo missed, inserted store response")
		}
	})
}

// Ingest is the single gate for all inbound live-channel events. Events for
// other conversations are ignored here; the unread aggregator listens to the
// channel independently.
func (s *Session) Ingest(ev chat.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversationID == "" || ev.ConversationID != s.conversationID {
		return
	}

	switch ev.Type {
	case chat.EventMessageDelivered:
		if t, ok := s.fallbacks[ev.Message.ID]; ok {
			t.Stop()
			delete(s.fallbacks, ev.Message.ID)
		}
		s.insertLocked(ev.Message)
		if ev.Message.SenderRole != s.cfg.Role && s.active {
			if _, done := s.acked[ev.Message.ID]; !done {
				s.acked[ev.Message.ID] = struct{}{}
				go s.ackRead(ev.Message.ID)
			}
		}
	case chat.EventTypingStarted:
		if ev.Role == s.cfg.Role {
			return
		}
		s.typingPeers[Peer{Role: ev.Role, Name: ev.Name}] = struct{}{}
	case chat.EventTypingStopped:
		if ev.Role == s.cfg.Role {
			return
		}
		delete(s.typingPeers, Peer{Role: ev.Role, Name: ev.Name})
	case chat.EventMessageRead:
		for i := range s.messages {
			if s.messages[i].ID == ev.MessageID {
				s.messages[i].Read = true
				break
			}
		}
	case chat.EventChannelError:
		s.log.Warn().Err(ev.Err).Msg("live channel error")
		s.typingPeers = make(map[Peer]struct{})
	}
}

// insertLocked adds the message iff no entry shares its ID, keeping the list
// ordered by CreatedAt ascending. Returns whether an insert happened.
func (s *Session) insertLocked(m chat.Message) bool {
	if _, dup := s.seen[m.ID]; dup {
		return false
	}
	s.seen[m.ID] = struct{}{}
	i := sort.Search(len(s.messages), func(i int) bool {
		return s.messages[i].CreatedAt.After(m.CreatedAt)
	})
	s.messages = append(s.messages, chat.Message{})
	copy(s.messages[i+1:], s.messages[i:])
	s.messages[i] = m
	return true
}

// ackRead issues a best-effort read acknowledgement. Failures only affect
// unread-count accuracy and are corrected by the reconciliation pass, so the
// error is logged and swallowed.
func (s *Session) ackRead(messageID string) {
	ctx, cancel := context.WithTimeout(context.Background(), ackTimeout)
	defer cancel()
	if err := s.store.MarkRead(ctx, messageID); err != nil {
		s.log.Warn().Err(err).Str("message", messageID).Msg("read acknowledgement failed")
	}
}

// Messages returns a copy of the ordered message list.
func (s *Session) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// TypingPeers returns the remote parties currently signaling typing.
func (s *Session) TypingPeers() []Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Peer, 0, len(s.typingPeers))
	for p := range s.typingPeers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ConversationID returns the open conversation, or "" when none is open.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// SetActive marks whether the loaded conversation is actually on screen.
// While inactive the session keeps its state but stops issuing read
// acknowledgements, so a backgrounded UI does not over-acknowledge.
func (s *Session) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

// ActiveConversation returns the conversation currently on screen, or "".
// The unread aggregator uses this as its exclusion rule.
func (s *Session) ActiveConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return ""
	}
	return s.conversationID
}
