package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchFansEventsIntoAllSinks(t *testing.T) {
	events := make(chan Event, 4)
	var first, second []EventType
	done := make(chan struct{})

	go func() {
		defer close(done)
		Dispatch(context.Background(), events,
			func(ev Event) { first = append(first, ev.Type) },
			func(ev Event) { second = append(second, ev.Type) },
		)
	}()

	events <- Event{Type: EventMessageDelivered, ConversationID: "conv-1"}
	events <- Event{Type: EventTypingStarted, ConversationID: "conv-1"}
	close(events)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not stop on a closed stream")
	}
	want := []EventType{EventMessageDelivered, EventTypingStarted}
	require.Equal(t, want, first)
	assert.Equal(t, want, second, "every sink sees every event, in order")
}

func TestDispatchStopsOnContextCancel(t *testing.T) {
	events := make(chan Event)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		Dispatch(ctx, events, func(Event) {})
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not stop on context cancel")
	}
}
