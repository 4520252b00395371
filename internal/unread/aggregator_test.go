package unread

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/chat"
)

type fakeStore struct {
	mu       sync.Mutex
	messages map[string][]chat.Message
	fetchErr map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		messages: make(map[string][]chat.Message),
		fetchErr: make(map[string]error),
	}
}

func (f *fakeStore) FetchMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErr[conversationID]; err != nil {
		return nil, err
	}
	out := make([]chat.Message, len(f.messages[conversationID]))
	copy(out, f.messages[conversationID])
	return out, nil
}

func (f *fakeStore) SendText(ctx context.Context, in chat.SendTextInput) (chat.Message, error) {
	return chat.Message{}, errors.New("not used")
}

func (f *fakeStore) SendAudio(ctx context.Context, in chat.SendAudioInput) (chat.Message, error) {
	return chat.Message{}, errors.New("not used")
}

func (f *fakeStore) MarkRead(ctx context.Context, messageID string) error { return nil }

func (f *fakeStore) setUnread(conversationID string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := make([]chat.Message, n)
	for i := range msgs {
		msgs[i] = chat.Message{
			ID:             conversationID + "-m" + string(rune('a'+i)),
			ConversationID: conversationID,
			SenderRole:     chat.RoleRecruiter,
			Kind:           chat.KindText,
			Body:           "hi",
			CreatedAt:      time.Now(),
		}
	}
	f.messages[conversationID] = msgs
}

func delivered(conversationID string, role chat.SenderRole) chat.Event {
	return chat.Event{
		Type:           chat.EventMessageDelivered,
		ConversationID: conversationID,
		Message: chat.Message{
			ID:             conversationID + "-live",
			ConversationID: conversationID,
			SenderRole:     role,
			Kind:           chat.KindText,
			Body:           "hi",
			CreatedAt:      time.Now(),
		},
	}
}

func TestApplyCountsPeerMessages(t *testing.T) {
	a := New(newFakeStore(), chat.RoleApplicant, zerolog.Nop())

	a.Apply(delivered("conv-1", chat.RoleRecruiter))
	a.Apply(delivered("conv-1", chat.RoleRecruiter))
	a.Apply(delivered("conv-2", chat.RoleRecruiter))

	assert.Equal(t, 2, a.Count("conv-1"))
	assert.Equal(t, 1, a.Count("conv-2"))
	assert.Equal(t, 3, a.Total())
}

func TestApplyIgnoresOwnMessagesAndNonDelivery(t *testing.T) {
	a := New(newFakeStore(), chat.RoleApplicant, zerolog.Nop())

	a.Apply(delivered("conv-1", chat.RoleApplicant))
	a.Apply(chat.Event{Type: chat.EventTypingStarted, ConversationID: "conv-1", Role: chat.RoleRecruiter})
	a.Apply(chat.Event{Type: chat.EventMessageRead, ConversationID: "conv-1", MessageID: "x"})

	assert.Zero(t, a.Total())
}

func TestApplySkipsActivelyViewedConversation(t *testing.T) {
	a := New(newFakeStore(), chat.RoleApplicant, zerolog.Nop())
	a.ActiveFunc = func() string { return "conv-1" }

	a.Apply(delivered("conv-1", chat.RoleRecruiter))
	a.Apply(delivered("conv-2", chat.RoleRecruiter))

	assert.Zero(t, a.Count("conv-1"), "viewed conversation must not accrue unread")
	assert.Equal(t, 1, a.Count("conv-2"))
	assert.Equal(t, 1, a.Total())
}

func TestMarkViewedZeroesAndAdjustsTotal(t *testing.T) {
	a := New(newFakeStore(), chat.RoleApplicant, zerolog.Nop())
	a.Apply(delivered("conv-1", chat.RoleRecruiter))
	a.Apply(delivered("conv-1", chat.RoleRecruiter))
	a.Apply(delivered("conv-2", chat.RoleRecruiter))

	a.MarkViewed("conv-1")
	a.MarkViewed("conv-1") // idempotent

	assert.Zero(t, a.Count("conv-1"))
	assert.Equal(t, 1, a.Total())
}

func TestReconcileReplacesFastPathWholesale(t *testing.T) {
	store := newFakeStore()
	a := New(store, chat.RoleApplicant, zerolog.Nop())

	// Fast path over-counted conv-1 and never heard about conv-2.
	a.Track("conv-1", "conv-2")
	a.Apply(delivered("conv-1", chat.RoleRecruiter))
	a.Apply(delivered("conv-1", chat.RoleRecruiter))
	store.setUnread("conv-1", 1)
	store.setUnread("conv-2", 3)

	a.Reconcile(context.Background())

	assert.Equal(t, 1, a.Count("conv-1"), "over-count corrected down")
	assert.Equal(t, 3, a.Count("conv-2"), "missed events corrected up")
	assert.Equal(t, 4, a.Total())
}

func TestReconcileTreatsActiveConversationAsRead(t *testing.T) {
	store := newFakeStore()
	store.setUnread("conv-1", 5)
	a := New(store, chat.RoleApplicant, zerolog.Nop())
	a.ActiveFunc = func() string { return "conv-1" }
	a.Track("conv-1")

	a.Reconcile(context.Background())

	assert.Zero(t, a.Count("conv-1"))
	assert.Zero(t, a.Total())
}

func TestReconcileSkipsFailingConversations(t *testing.T) {
	store := newFakeStore()
	store.setUnread("conv-2", 2)
	store.fetchErr["conv-1"] = errors.New("store down")
	a := New(store, chat.RoleApplicant, zerolog.Nop())
	a.Track("conv-1", "conv-2")
	a.Apply(delivered("conv-1", chat.RoleRecruiter))

	a.Reconcile(context.Background())

	assert.Equal(t, 1, a.Count("conv-1"), "failed fetch keeps previous value")
	assert.Equal(t, 2, a.Count("conv-2"))
	assert.Equal(t, 3, a.Total())
}

func TestTotalAlwaysEqualsSumOfCounts(t *testing.T) {
	store := newFakeStore()
	store.setUnread("conv-2", 2)
	a := New(store, chat.RoleApplicant, zerolog.Nop())
	a.Track("conv-1", "conv-2", "conv-3")

	a.Apply(delivered("conv-1", chat.RoleRecruiter))
	a.Apply(delivered("conv-3", chat.RoleRecruiter))
	a.MarkViewed("conv-3")
	a.Reconcile(context.Background())

	sum := 0
	for _, n := range a.Counts() {
		sum += n
	}
	require.Equal(t, sum, a.Total())
}
