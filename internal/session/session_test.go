package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/chat"
)

type fakeStore struct {
	mu        sync.Mutex
	snapshot  []chat.Message
	fetchErr  error
	sendErr   error
	nextID    int
	readIDs   []string
	readErr   error
	sendDelay time.Duration
}

func (f *fakeStore) FetchMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make([]chat.Message, len(f.snapshot))
	copy(out, f.snapshot)
	return out, nil
}

func (f *fakeStore) SendText(ctx context.Context, in chat.SendTextInput) (chat.Message, error) {
	if f.sendDelay > 0 {
		time.Sleep(f.sendDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return chat.Message{}, f.sendErr
	}
	f.nextID++
	return chat.Message{
		ID:             fmt.Sprintf("m%d", f.nextID),
		ConversationID: in.ConversationID,
		SenderRole:     in.SenderRole,
		SenderID:       in.SenderID,
		Kind:           chat.KindText,
		Body:           in.Body,
		CreatedAt:      time.Now(),
	}, nil
}

func (f *fakeStore) SendAudio(ctx context.Context, in chat.SendAudioInput) (chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return chat.Message{}, f.sendErr
	}
	f.nextID++
	return chat.Message{
		ID:             fmt.Sprintf("m%d", f.nextID),
		ConversationID: in.ConversationID,
		SenderRole:     in.SenderRole,
		Kind:           chat.KindAudio,
		AudioURL:       "/audio/" + fmt.Sprintf("m%d", f.nextID),
		MimeType:       in.MimeType,
		CreatedAt:      time.Now(),
	}, nil
}

func (f *fakeStore) MarkRead(ctx context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return f.readErr
	}
	f.readIDs = append(f.readIDs, messageID)
	return nil
}

func (f *fakeStore) reads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.readIDs))
	copy(out, f.readIDs)
	return out
}

type typingEmit struct {
	room   string
	active bool
}

type fakeChannel struct {
	mu        sync.Mutex
	joined    []string
	left      []string
	typing    []typingEmit
	connected bool
}

func newFakeChannel() *fakeChannel { return &fakeChannel{connected: true} }

func (f *fakeChannel) Join(roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, roomID)
	return nil
}

func (f *fakeChannel) Leave(roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = append(f.left, roomID)
	return nil
}

func (f *fakeChannel) EmitTyping(roomID string, role chat.SenderRole, name string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, typingEmit{room: roomID, active: active})
	return nil
}

func (f *fakeChannel) Events() <-chan chat.Event { return nil }

func (f *fakeChannel) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeChannel) setConnected(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = v
}

func (f *fakeChannel) emits() []typingEmit {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]typingEmit, len(f.typing))
	copy(out, f.typing)
	return out
}

func newTestSession(store *fakeStore, channel *fakeChannel) *Session {
	return New(store, channel, Config{
		Role:               chat.RoleApplicant,
		UserID:             "user-1",
		UserName:           "Alice",
		EchoFallbackWindow: 30 * time.Millisecond,
		TypingIdleWindow:   40 * time.Millisecond,
	}, zerolog.Nop())
}

func peerMessage(id, conversationID string, at time.Time) chat.Message {
	return chat.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderRole:     chat.RoleRecruiter,
		SenderID:       "rec-1",
		Kind:           chat.KindText,
		Body:           "hello",
		CreatedAt:      at,
	}
}

func TestOpenLoadsSnapshotAndJoinsRoom(t *testing.T) {
	base := time.Now()
	store := &fakeStore{snapshot: []chat.Message{
		peerMessage("b", "conv-1", base.Add(time.Second)),
		peerMessage("a", "conv-1", base),
	}}
	channel := newFakeChannel()
	s := newTestSession(store, channel)

	require.NoError(t, s.Open(context.Background(), "conv-1"))

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[0].ID, "snapshot must be sorted ascending")
	assert.Equal(t, "b", msgs[1].ID)
	assert.Equal(t, []string{"conv-1"}, channel.joined)
	assert.Equal(t, "conv-1", s.ConversationID())
}

func TestOpenFailureLeavesSessionUnopened(t *testing.T) {
	store := &fakeStore{fetchErr: errors.New("store down")}
	s := newTestSession(store, newFakeChannel())

	err := s.Open(context.Background(), "conv-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, chat.ErrLoad)
	assert.Empty(t, s.ConversationID())
	assert.Empty(t, s.Messages())
}

func TestOpenAcksUnreadBacklog(t *testing.T) {
	base := time.Now()
	unread := peerMessage("u1", "conv-1", base)
	read := peerMessage("r1", "conv-1", base.Add(time.Second))
	read.Read = true
	store := &fakeStore{snapshot: []chat.Message{unread, read}}
	s := newTestSession(store, newFakeChannel())

	require.NoError(t, s.Open(context.Background(), "conv-1"))
	assert.Equal(t, []string{"u1"}, store.reads())
}

func TestSendTextRejectsEmptyBody(t *testing.T) {
	s := newTestSession(&fakeStore{}, newFakeChannel())
	require.NoError(t, s.Open(context.Background(), "conv-1"))

	assert.ErrorIs(t, s.SendText(context.Background(), "   \n\t"), chat.ErrEmptyBody)
}

func TestSendTextWithoutOpenConversation(t *testing.T) {
	s := newTestSession(&fakeStore{}, newFakeChannel())
	assert.ErrorIs(t, s.SendText(context.Background(), "hi"), chat.ErrNoConversation)
}

func TestSendTextFallbackInsertsExactlyOnce(t *testing.T) {
	store := &fakeStore{}
	s := newTestSession(store, newFakeChannel())
	require.NoError(t, s.Open(context.Background(), "conv-1"))

	require.NoError(t, s.SendText(context.Background(), "Hi"))
	assert.Empty(t, s.Messages(), "message must not appear before the fallback window")

	time.Sleep(80 * time.Millisecond)
	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)

	// A late echo for the same ID is a no-op.
	s.Ingest(chat.Event{Type: chat.EventMessageDelivered, ConversationID: "conv-1", Message: msgs[0]})
	assert.Len(t, s.Messages(), 1)
}

func TestSendTextEchoBeatsFallback(t *testing.T) {
	store := &fakeStore{}
	s := newTestSession(store, newFakeChannel())
	require.NoError(t, s.Open(context.Background(), "conv-1"))

	require.NoError(t, s.SendText(context.Background(), "Hi"))

	echo := chat.Message{
		ID:             "m1",
		ConversationID: "conv-1",
		SenderRole:     chat.RoleApplicant,
		Kind:           chat.KindText,
		Body:           "Hi",
		CreatedAt:      time.Now(),
	}
	s.Ingest(chat.Event{Type: chat.EventMessageDelivered, ConversationID: "conv-1", Message: echo})
	require.Len(t, s.Messages(), 1)

	// The fallback window elapses after the echo already landed.
	time.Sleep(80 * time.Millisecond)
	assert.Len(t, s.Messages(), 1)
}

func TestSendTextDisconnectedSkipsEchoWait(t *testing.T) {
	store := &fakeStore{}
	channel := newFakeChannel()
	channel.setConnected(false)
	s := newTestSession(store, channel)
	require.NoError(t, s.Open(context.Background(), "conv-1"))

	require.NoError(t, s.SendText(context.Background(), "Hi"))
	assert.Len(t, s.Messages(), 1, "disconnected channel must insert immediately")
}

func TestSendTextFailureSurfacesSendError(t *testing.T) {
	store := &fakeStore{sendErr: errors.New("boom")}
	s := newTestSession(store, newFakeChannel())
	require.NoError(t, s.Open(context.Background(), "conv-1"))

	err := s.SendText(context.Background(), "Hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, chat.ErrSend)
	assert.Empty(t, s.Messages())
}

func TestConcurrentSendsAreQueuedNotRejected(t *testing.T) {
	store := &fakeStore{sendDelay: 30 * time.Millisecond}
	channel := newFakeChannel()
	channel.setConnected(false)
	s := newTestSession(store, channel)
	require.NoError(t, s.Open(context.Background(), "conv-1"))

	bodies := []string{"first", "second"}
	errs := make([]error, len(bodies))
	var wg sync.WaitGroup
	for i := range bodies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.SendText(context.Background(), bodies[i])
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, bodies[i])
	}
	msgs := s.Messages()
	require.Len(t, msgs, 2, "both queued sends must land exactly once")
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)
	assert.ElementsMatch(t, bodies, []string{msgs[0].Body, msgs[1].Body})
	assert.False(t, msgs[1].CreatedAt.Before(msgs[0].CreatedAt), "serialized writes stay ordered")
}

func TestSendAudioFallsBackLikeText(t *testing.T) {
	store := &fakeStore{}
	channel := newFakeChannel()
	channel.setConnected(false)
	s := newTestSession(store, channel)
	require.NoError(t, s.Open(context.Background(), "conv-1"))

	require.NoError(t, s.SendAudio(context.Background(), []byte{1, 2, 3}, "audio/webm"))
	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, chat.KindAudio, msgs[0].Kind)
}

func TestIngestIdempotentMergeIsOrderIndependent(t *testing.T) {
	base := time.Now()
	m1 := peerMessage("m1", "conv-1", base)
	m2 := peerMessage("m2", "conv-1", base.Add(time.Second))

	for name, order := range map[string][]chat.Message{
		"forward":    {m1, m2, m1, m2},
		"reverse":    {m2, m1, m2, m1},
		"duplicates": {m1, m1, m2, m2, m1},
	} {
		s := newTestSession(&fakeStore{}, newFakeChannel())
		require.NoError(t, s.Open(context.Background(), "conv-1"))
		for _, m := range order {
			s.Ingest(chat.Event{Type: chat.EventMessageDelivered, ConversationID: "conv-1", Message: m})
		}
		msgs := s.Messages()
		require.Len(t, msgs, 2, name)
		assert.Equal(t, "m1", msgs[0].ID, name)
		assert.Equal(t, "m2", msgs[1].ID, name)
	}
}

func TestIngestIgnoresOtherConversations(t *testing.T) {
	s := newTestSession(&fakeStore{}, newFakeChannel())
	require.NoError(t, s.Open(context.Background(), "conv-1"))

	s.Ingest(chat.Event{
		Type:           chat.EventMessageDelivered,
		ConversationID: "conv-2",
		Message:        peerMessage("x", "conv-2", time.Now()),
	})
	assert.Empty(t, s.Messages())
}

func TestIngestPeerMessageAcksWhileActive(t *testing.T) {
	store := &fakeStore{}
	s := newTestSession(store, newFakeChannel())
	require.NoError(t, s.Open(context.Background(), "conv-1"))

	m := peerMessage("m9", "conv-1", time.Now())
	s.Ingest(chat.Event{Type: chat.EventMessageDelivered, ConversationID: "conv-1", Message: m})
	// Renewed delivery of the same message must not ack twice.
	s.Ingest(chat.Event{Type: chat.EventMessageDelivered, ConversationID: "conv-1", Message: m})

	time.Sleep(20 * time.Millisecond) // ack runs on its own goroutine
	assert.Equal(t, []string{"m9"}, store.reads())
}

func TestIngestPeerMessageNotAckedWhenInactive(t *testing.T) {
	store := &fakeStore{}
	s := newTestSession(store, newFakeChannel())
	require.NoError(t, s.Open(context.Background(), "conv-1"))
	s.SetActive(false)

	s.Ingest(chat.Event{
		Type:           chat.EventMessageDelivered,
		ConversationID: "conv-1",
		Message:        peerMessage("m9", "conv-1", time.Now()),
	})
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, store.reads())
	assert.Empty(t, s.ActiveConversation())
}

func TestIngestMessageReadSetsFlag(t *testing.T) {
	base := time.Now()
	store := &fakeStore{snapshot: []chat.Message{{
		ID: "m1", ConversationID: "conv-1", SenderRole: chat.RoleApplicant,
		Kind: chat.KindText, Body: "hi", CreatedAt: base,
	}}}
	s := newTestSession(store, newFakeChannel())
	require.NoError(t, s.Open(context.Background(), "conv-1"))

	s.Ingest(chat.Event{Type: chat.EventMessageRead, ConversationID: "conv-1", MessageID: "m1"})
	require.True(t, s.Messages()[0].Read)

	// Unknown IDs are a no-op.
	s.Ingest(chat.Event{Type: chat.EventMessageRead, ConversationID: "conv-1", MessageID: "nope"})
	assert.Len(t, s.Messages(), 1)
}

func TestIngestTypingTracksPeersAndSuppressesSelf(t *testing.T) {
	s := newTestSession(&fakeStore{}, newFakeChannel())
	require.NoError(t, s.Open(context.Background(), "conv-1"))

	s.Ingest(chat.Event{Type: chat.EventTypingStarted, ConversationID: "conv-1", Role: chat.RoleRecruiter, Name: "Bob"})
	s.Ingest(chat.Event{Type: chat.EventTypingStarted, ConversationID: "conv-1", Role: chat.RoleApplicant, Name: "Alice"})
	require.Len(t, s.TypingPeers(), 1)
	assert.Equal(t, "Bob", s.TypingPeers()[0].Name)

	s.Ingest(chat.Event{Type: chat.EventTypingStopped, ConversationID: "conv-1", Role: chat.RoleRecruiter, Name: "Bob"})
	assert.Empty(t, s.TypingPeers())
}

func TestTypingDebounce(t *testing.T) {
	channel := newFakeChannel()
	s := newTestSession(&fakeStore{}, channel)
	require.NoError(t, s.Open(context.Background(), "conv-1"))

	// Keystrokes faster than the idle window keep typing-stopped at bay.
	for i := 0; i < 4; i++ {
		s.NotifyTyping()
		time.Sleep(15 * time.Millisecond)
	}
	emits := channel.emits()
	require.Len(t, emits, 1)
	assert.True(t, emits[0].active)

	// Going idle past the window fires exactly one typing-stopped.
	time.Sleep(100 * time.Millisecond)
	emits = channel.emits()
	require.Len(t, emits, 2)
	assert.False(t, emits[1].active)
}

func TestSendEmitsTypingStoppedImmediately(t *testing.T) {
	channel := newFakeChannel()
	channel.setConnected(false)
	s := newTestSession(&fakeStore{}, channel)
	require.NoError(t, s.Open(context.Background(), "conv-1"))

	s.NotifyTyping()
	require.NoError(t, s.SendText(context.Background(), "Hi"))

	emits := channel.emits()
	require.Len(t, emits, 2)
	assert.True(t, emits[0].active)
	assert.False(t, emits[1].active)

	// The cancelled debounce timer must not fire a second stop.
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, channel.emits(), 2)
}

func TestCloseClearsStateAndIsIdempotent(t *testing.T) {
	channel := newFakeChannel()
	s := newTestSession(&fakeStore{snapshot: []chat.Message{
		peerMessage("m1", "conv-1", time.Now()),
	}}, channel)
	require.NoError(t, s.Open(context.Background(), "conv-1"))

	s.Close()
	s.Close()

	assert.Empty(t, s.ConversationID())
	assert.Empty(t, s.Messages())
	assert.Equal(t, []string{"conv-1"}, channel.left)
}

func TestCloseCancelsPendingFallback(t *testing.T) {
	store := &fakeStore{}
	s := newTestSession(store, newFakeChannel())
	require.NoError(t, s.Open(context.Background(), "conv-1"))
	require.NoError(t, s.SendText(context.Background(), "Hi"))

	s.Close()
	time.Sleep(80 * time.Millisecond)

	// Reopening reloads from the store snapshot; the stale timer must not
	// have resurrected anything locally.
	require.NoError(t, s.Open(context.Background(), "conv-1"))
	assert.Empty(t, s.Messages())
}

func TestOnViewedHookFires(t *testing.T) {
	var viewed []string
	store := &fakeStore{}
	s := New(store, newFakeChannel(), Config{
		Role:     chat.RoleApplicant,
		UserID:   "user-1",
		OnViewed: func(id string) { viewed = append(viewed, id) },
	}, zerolog.Nop())

	require.NoError(t, s.Open(context.Background(), "conv-7"))
	assert.Equal(t, []string{"conv-7"}, viewed)
}
