// Package repository persists conversation messages in Postgres.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/chat"
)

// ErrMessageNotFound is returned when a referenced message does not exist.
var ErrMessageNotFound = errors.New("repository: message not found")

// MessageRepository stores and reads the append-only conversation log.
// The message ID and CreatedAt are assigned by the database, never by a
// client.
type MessageRepository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// Insert appends a message and returns it with its assigned ID and timestamp.
func (r *MessageRepository) Insert(ctx context.Context, m chat.Message) (chat.Message, error) {
	if r == nil || r.pool == nil {
		return chat.Message{}, errors.New("repository: nil pool")
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO chat_message (
			conversation_id, sender_role, sender_id, sender_name, kind, body, audio_url, mime_type
		) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''))
		RETURNING id::text, created_at
	`, m.ConversationID, m.SenderRole, m.SenderID, m.SenderName, m.Kind, m.Body, m.AudioURL, m.MimeType).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return chat.Message{}, err
	}
	return m, nil
}

// ListByConversation returns the full log ordered by created_at ascending.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]chat.Message, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("repository: nil pool")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, conversation_id, sender_role, sender_id, sender_name,
		       kind, COALESCE(body, ''), COALESCE(audio_url, ''), COALESCE(mime_type, ''),
		       created_at, read
		FROM chat_message
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var m chat.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderRole, &m.SenderID, &m.SenderName,
			&m.Kind, &m.Body, &m.AudioURL, &m.MimeType, &m.CreatedAt, &m.Read); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return msgs, nil
}

// MarkRead flags one message as read by its recipient and returns the
// conversation it belongs to, for broadcast.
func (r *MessageRepository) MarkRead(ctx context.Context, messageID string) (string, error) {
	if r == nil || r.pool == nil {
		return "", errors.New("repository: nil pool")
	}
	var conversationID string
	err := r.pool.QueryRow(ctx, `
		UPDATE chat_message SET read = TRUE
		WHERE id = $1::uuid
		RETURNING conversation_id
	`, messageID).Scan(&conversationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrMessageNotFound
	}
	return conversationID, err
}

// UnreadCount counts messages a reader with the given role has not read yet,
// i.e. unread messages authored by the opposite role.
func (r *MessageRepository) UnreadCount(ctx context.Context, conversationID string, reader chat.SenderRole) (int, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New("repository: nil pool")
	}
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM chat_message
		WHERE conversation_id = $1 AND sender_role <> $2 AND read = FALSE
	`, conversationID, reader).Scan(&n)
	return n, err
}

// SetAudioMeta records server-side enrichment for a stored voice message.
func (r *MessageRepository) SetAudioMeta(ctx context.Context, messageID string, meta []byte) error {
	if r == nil || r.pool == nil {
		return errors.New("repository: nil pool")
	}
	ct, err := r.pool.Exec(ctx, `
		UPDATE chat_message SET audio_meta = $2::jsonb WHERE id = $1::uuid
	`, messageID, string(meta))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrMessageNotFound
	}
	return nil
}
