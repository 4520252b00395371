// Package api exposes the durable message store as a REST surface and the
// live channel as a websocket endpoint.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/chat"
	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/server/cache"
	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/server/queue"
	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/server/realtime"
	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/server/repository"
)

const requestTimeout = 5 * time.Second

// Handlers wires the store, the hub and the optional transient-state
// collaborators into gin endpoints.
type Handlers struct {
	repo     *repository.MessageRepository
	hub      *realtime.Hub
	presence *cache.Presence // optional
	queue    *queue.Client   // optional
	audioDir string
	log      zerolog.Logger
}

// New constructs the handler set. presence and queueClient may be nil in
// development setups without Redis.
func New(repo *repository.MessageRepository, hub *realtime.Hub, presence *cache.Presence, queueClient *queue.Client, audioDir string, logger zerolog.Logger) *Handlers {
	return &Handlers{
		repo:     repo,
		hub:      hub,
		presence: presence,
		queue:    queueClient,
		audioDir: audioDir,
		log:      logger.With().Str("component", "api").Logger(),
	}
}

type sendTextRequest struct {
	SenderRole chat.SenderRole `json:"sender_role" binding:"required"`
	SenderID   string          `json:"sender_id" binding:"required"`
	SenderName string          `json:"sender_name"`
	Body       string          `json:"body" binding:"required"`
}

// ListMessages returns the full conversation log, ascending.
func (h *Handlers) ListMessages(c *gin.Context) {
	conversationID := c.Param("conversationId")
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	msgs, err := h.repo.ListByConversation(ctx, conversationID)
	if err != nil {
		h.log.Error().Err(err).Str("conversation", conversationID).Msg("list messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "count": len(msgs)})
}

// SendText durably appends a text message, echoes it into the room and
// returns the stored message with its assigned ID and timestamp.
func (h *Handlers) SendText(c *gin.Context) {
	conversationID := c.Param("conversationId")

	var req sendTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg := chat.Message{
		ConversationID: conversationID,
		SenderRole:     req.SenderRole,
		SenderID:       req.SenderID,
		SenderName:     req.SenderName,
		Kind:           chat.KindText,
		Body:           req.Body,
	}
	if err := msg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	stored, err := h.repo.Insert(ctx, msg)
	if err != nil {
		h.log.Error().Err(err).Msg("insert text message")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	h.afterInsert(ctx, stored)
	c.JSON(http.StatusCreated, stored)
}

// SendAudio accepts a multipart voice note, persists the blob and the
// message synchronously, then queues metadata enrichment.
func (h *Handlers) SendAudio(c *gin.Context) {
	conversationID := c.Param("conversationId")

	role := chat.SenderRole(c.PostForm("sender_role"))
	senderID := c.PostForm("sender_id")
	senderName := c.PostForm("sender_name")
	mimeType := c.PostForm("mime_type")
	if senderID == "" || (role != chat.RoleApplicant && role != chat.RoleRecruiter) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sender_id and a valid sender_role are required"})
		return
	}

	file, _, err := c.Request.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio file is required"})
		return
	}
	defer file.Close()

	name := uuid.NewString() + extensionFor(mimeType)
	path := filepath.Join(h.audioDir, name)
	if err := h.saveUpload(file, path); err != nil {
		h.log.Error().Err(err).Msg("persist audio blob")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store audio"})
		return
	}

	msg := chat.Message{
		ConversationID: conversationID,
		SenderRole:     role,
		SenderID:       senderID,
		SenderName:     senderName,
		Kind:           chat.KindAudio,
		AudioURL:       "/audio/" + name,
		MimeType:       mimeType,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	stored, err := h.repo.Insert(ctx, msg)
	if err != nil {
		h.log.Error().Err(err).Msg("insert audio message")
		_ = os.Remove(path)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	if h.queue != nil {
		if err := h.queue.EnqueueAudioMeta(ctx, queue.AudioMetaPayload{
			MessageID: stored.ID,
			Path:      path,
			MimeType:  mimeType,
		}); err != nil {
			h.log.Warn().Err(err).Str("message", stored.ID).Msg("enqueue audio meta")
		}
	}

	h.afterInsert(ctx, stored)
	c.JSON(http.StatusCreated, stored)
}

// MarkRead flags one message read and fans the receipt into the room.
func (h *Handlers) MarkRead(c *gin.Context) {
	messageID := c.Param("messageId")
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	conversationID, err := h.repo.MarkRead(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		h.log.Error().Err(err).Str("message", messageID).Msg("mark read")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark read"})
		return
	}

	h.hub.BroadcastRead(conversationID, messageID)
	c.Status(http.StatusNoContent)
}

// UnreadHint serves the Redis-backed fast counter for cold badge bootstrap.
func (h *Handlers) UnreadHint(c *gin.Context) {
	conversationID := c.Param("conversationId")
	reader := chat.SenderRole(c.Query("role"))
	if reader != chat.RoleApplicant && reader != chat.RoleRecruiter {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role query parameter is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if h.presence != nil {
		if n, err := h.presence.UnreadHint(ctx, conversationID, reader); err == nil {
			c.JSON(http.StatusOK, gin.H{"conversation_id": conversationID, "unread": n, "source": "cache"})
			return
		}
	}
	n, err := h.repo.UnreadCount(ctx, conversationID, reader)
	if err != nil {
		h.log.Error().Err(err).Msg("unread count")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count unread"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": conversationID, "unread": n, "source": "store"})
}

// afterInsert runs the post-write fan-out shared by text and audio sends.
func (h *Handlers) afterInsert(ctx context.Context, stored chat.Message) {
	h.hub.BroadcastMessage(stored)
	if h.presence != nil {
		if err := h.presence.IncrUnread(ctx, stored.ConversationID, stored.SenderRole); err != nil {
			h.log.Warn().Err(err).Msg("unread hint increment failed")
		}
	}
}

func (h *Handlers) saveUpload(src io.Reader, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

func extensionFor(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "webm"):
		return ".webm"
	case strings.Contains(mimeType, "ogg"):
		return ".ogg"
	case strings.Contains(mimeType, "mp4"):
		return ".m4a"
	case strings.Contains(mimeType, "wav"):
		return ".wav"
	default:
		return ".bin"
	}
}
