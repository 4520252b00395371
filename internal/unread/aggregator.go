// Package unread maintains per-conversation unread counters across all of a
// user's conversations, independent of any open session. Live events are the
// fast path; a periodic reconciliation pass against the durable store is the
// one authoritative recompute that corrects drift from missed events.
package unread

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/chat"
)

const defaultReconcileInterval = 30 * time.Second

// Aggregator tracks unread counts for every conversation the user
// participates in and exposes their sum for the global badge.
type Aggregator struct {
	store chat.MessageStore
	role  chat.SenderRole
	log   zerolog.Logger

	// ActiveFunc reports the conversation currently on screen, or "". The
	// increment path and the session's read-ack path are mutually exclusive
	// per event; "viewed" wins.
	ActiveFunc func() string

	// ReconcileInterval bounds worst-case staleness after missed events.
	ReconcileInterval time.Duration

	mu     sync.Mutex
	counts map[string]int
	total  int
}

// New constructs an aggregator for the given local role.
func New(store chat.MessageStore, role chat.SenderRole, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		store:             store,
		role:              role,
		log:               logger.With().Str("component", "unread").Logger(),
		ReconcileInterval: defaultReconcileInterval,
		counts:            make(map[string]int),
	}
}

// Track registers a conversation so the reconciliation pass covers it even
// before any live event arrives. The conversation listing that feeds this
// lives outside the subsystem.
func (a *Aggregator) Track(conversationIDs ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range conversationIDs {
		if _, ok := a.counts[id]; !ok {
			a.counts[id] = 0
		}
	}
}

// Apply feeds one inbound live-channel event through the fast path. Only
// message-delivered events from the other party mutate counters, and only
// when their conversation is not the one actively viewed.
func (a *Aggregator) Apply(ev chat.Event) {
	if ev.Type != chat.EventMessageDelivered {
		return
	}
	if ev.Message.SenderRole == a.role {
		return
	}
	if a.ActiveFunc != nil && a.ActiveFunc() == ev.ConversationID {
		return
	}
	a.mu.Lock()
	a.counts[ev.ConversationID]++
	a.total++
	a.mu.Unlock()
}

// MarkViewed zeroes the entry for a conversation whose unread backlog has
// been acknowledged. Wired to the session's OnViewed hook.
func (a *Aggregator) MarkViewed(conversationID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n, ok := a.counts[conversationID]; ok && n > 0 {
		a.counts[conversationID] = 0
		a.total -= n
	} else if !ok {
		a.counts[conversationID] = 0
	}
}

// Count returns the unread count for one conversation.
func (a *Aggregator) Count(conversationID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counts[conversationID]
}

// Counts returns a copy of the whole unread index.
func (a *Aggregator) Counts() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int, len(a.counts))
	for id, n := range a.counts {
		out[id] = n
	}
	return out
}

// Total returns the global badge value, always equal to the sum of entries.
func (a *Aggregator) Total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

// Run drives the periodic reconciliation pass until the context is canceled.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Reconcile(ctx)
		}
	}
}

// Reconcile recomputes every tracked entry from durable state, replacing the
// fast-path value wholesale. This corrects both under- and over-counting.
// Transient fetch failures leave the previous entry in place and are retried
// on the next pass.
func (a *Aggregator) Reconcile(ctx context.Context) {
	a.mu.Lock()
	ids := make([]string, 0, len(a.counts))
	for id := range a.counts {
		ids = append(ids, id)
	}
	a.mu.Unlock()

	active := ""
	if a.ActiveFunc != nil {
		active = a.ActiveFunc()
	}

	for _, id := range ids {
		msgs, err := a.store.FetchMessages(ctx, id)
		if err != nil {
			a.log.Warn().Err(err).Str("conversation", id).Msg("reconcile fetch failed")
			continue
		}
		n := 0
		if id != active {
			for _, m := range msgs {
				if m.SenderRole != a.role && !m.Read {
					n++
				}
			}
		}
		a.mu.Lock()
		a.total += n - a.counts[id]
		a.counts[id] = n
		a.mu.Unlock()
	}
}
