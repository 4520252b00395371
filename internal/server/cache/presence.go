// Package cache keeps transient chat state in Redis: typing presence with a
// TTL and per-conversation unread hint counters. The hints bootstrap a cold
// client badge; clients still reconcile against the durable store, so a
// drifted counter here is only ever a brief cosmetic glitch.
package cache

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/chat"
)

const typingTTL = 5 * time.Second

// Presence is the Redis adapter.
type Presence struct {
	client *redis.Client
}

// NewFromURL constructs a Presence from a redis:// URL and verifies it with
// a ping.
func NewFromURL(ctx context.Context, url string) (*Presence, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &Presence{client: c}, nil
}

func typingKey(conversationID string, role chat.SenderRole) string {
	return fmt.Sprintf("chat:typing:%s:%s", conversationID, role)
}

func unreadKey(conversationID string, reader chat.SenderRole) string {
	return fmt.Sprintf("chat:unread:%s:%s", conversationID, reader)
}

// SetTyping refreshes the typing marker for a role in a conversation. The
// TTL makes stale markers self-expire when a typing-stopped frame is lost.
func (p *Presence) SetTyping(ctx context.Context, conversationID string, role chat.SenderRole, name string) error {
	return p.client.Set(ctx, typingKey(conversationID, role), name, typingTTL).Err()
}

// ClearTyping drops the typing marker eagerly.
func (p *Presence) ClearTyping(ctx context.Context, conversationID string, role chat.SenderRole) error {
	return p.client.Del(ctx, typingKey(conversationID, role)).Err()
}

// IncrUnread bumps the unread hint for the reader opposite the sender.
func (p *Presence) IncrUnread(ctx context.Context, conversationID string, sender chat.SenderRole) error {
	return p.client.Incr(ctx, unreadKey(conversationID, sender.Other())).Err()
}

// ResetUnread zeroes the reader's hint for a conversation.
func (p *Presence) ResetUnread(ctx context.Context, conversationID string, reader chat.SenderRole) error {
	return p.client.Del(ctx, unreadKey(conversationID, reader)).Err()
}

// UnreadHint reads the counter; a missing key reads as zero.
func (p *Presence) UnreadHint(ctx context.Context, conversationID string, reader chat.SenderRole) (int64, error) {
	n, err := p.client.Get(ctx, unreadKey(conversationID, reader)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// Close releases the underlying client.
func (p *Presence) Close() error {
	return p.client.Close()
}
