package chat

import "context"

// EventSink consumes one inbound live-channel event. The conversation
// session's Ingest and the unread aggregator's Apply both satisfy it.
type EventSink func(Event)

// Dispatch fans every event from the live channel into the given sinks, in
// order, until the stream closes or the context ends. Run it in one goroutine
// per channel; it is the single event-processing timeline the session and the
// aggregator share, so their "actively viewed" checks observe a consistent
// state per event.
//
//	go chat.Dispatch(ctx, channel.Events(), session.Ingest, aggregator.Apply)
func Dispatch(ctx context.Context, events <-chan Event, sinks ...EventSink) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			for _, sink := range sinks {
				sink(ev)
			}
		}
	}
}
