// Package queue runs background processing for stored voice messages over
// asynq.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/server/repository"
)

// TaskAudioMeta enriches a stored voice message with file metadata after the
// synchronous insert has already returned the message to the sender.
const TaskAudioMeta = "chat:audio_meta"

// AudioMetaPayload is the queue payload for TaskAudioMeta.
type AudioMetaPayload struct {
	MessageID string `json:"message_id"`
	Path      string `json:"path"`
	MimeType  string `json:"mime_type"`
}

// Client enqueues audio post-processing tasks.
type Client struct {
	client *asynq.Client
}

// NewClient builds an asynq client from a redis URL.
func NewClient(redisURL string) (*Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	return &Client{client: asynq.NewClient(opt)}, nil
}

// EnqueueAudioMeta schedules metadata extraction for a stored voice message.
func (c *Client) EnqueueAudioMeta(ctx context.Context, p AudioMetaPayload) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("asynq: encode payload: %w", err)
	}
	task := asynq.NewTask(TaskAudioMeta, b)
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue("chat"), asynq.MaxRetry(5))
	return err
}

func (c *Client) Close() error { return c.client.Close() }

// Server consumes the chat queue.
type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewServer builds the worker side with handlers bound to the repository.
func NewServer(redisURL string, repo *repository.MessageRepository, logger zerolog.Logger) (*Server, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	log := logger.With().Str("component", "queue").Logger()

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: 4,
		Queues:      map[string]int{"chat": 1, "default": 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Warn().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskAudioMeta, func(ctx context.Context, t *asynq.Task) error {
		var p AudioMetaPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			// Malformed payloads never become valid; drop instead of retrying.
			log.Error().Err(err).Msg("malformed audio meta payload")
			return nil
		}

		info, err := os.Stat(p.Path)
		if err != nil {
			return fmt.Errorf("stat audio file: %w", err)
		}
		meta, err := json.Marshal(map[string]interface{}{
			"size_bytes": info.Size(),
			"mime_type":  p.MimeType,
			"stored_at":  info.ModTime().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := repo.SetAudioMeta(ctx, p.MessageID, meta); err != nil {
			return fmt.Errorf("persist audio meta: %w", err)
		}
		log.Debug().Str("message", p.MessageID).Msg("audio metadata recorded")
		return nil
	})

	return &Server{server: srv, mux: mux}, nil
}

// Run starts the worker and blocks until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Start(s.mux); err != nil {
		return err
	}
	<-ctx.Done()
	s.server.Shutdown()
	return nil
}
