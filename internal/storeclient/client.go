// Package storeclient implements chat.MessageStore over the durable store's
// REST API.
package storeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/chat"
	"github.com/thisisalphakamara/Jobmarkit-sub002/internal/retry"
)

const defaultTimeout = 10 * time.Second

// Client talks to the message store over HTTP. Reads and read-acks are
// retried with backoff; sends are never auto-retried, because a repeated
// durable write would mint a second message ID that the echo/fallback
// de-duplication cannot collapse. Send retry stays a user decision.
type Client struct {
	baseURL string
	http    *http.Client
	retry   retry.Config
	log     zerolog.Logger
}

var _ chat.MessageStore = (*Client)(nil)

// New constructs a client for the given base URL, e.g. "http://localhost:8080".
func New(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		retry:   retry.DefaultConfig(),
		log:     logger.With().Str("component", "storeclient").Logger(),
	}
}

type messagesResponse struct {
	Messages []chat.Message `json:"messages"`
}

func (c *Client) FetchMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	var out messagesResponse
	url := fmt.Sprintf("%s/api/v1/conversations/%s/messages", c.baseURL, conversationID)
	err := retry.Do(ctx, c.retry, c.log, func() error {
		return c.getJSON(ctx, url, &out)
	})
	if err != nil {
		return nil, err
	}
	return out.Messages, nil
}

type sendTextRequest struct {
	SenderRole chat.SenderRole `json:"sender_role"`
	SenderID   string          `json:"sender_id"`
	SenderName string          `json:"sender_name"`
	Body       string          `json:"body"`
}

func (c *Client) SendText(ctx context.Context, in chat.SendTextInput) (chat.Message, error) {
	payload, err := json.Marshal(sendTextRequest{
		SenderRole: in.SenderRole,
		SenderID:   in.SenderID,
		SenderName: in.SenderName,
		Body:       in.Body,
	})
	if err != nil {
		return chat.Message{}, fmt.Errorf("storeclient: encode send: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/conversations/%s/messages", c.baseURL, in.ConversationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return chat.Message{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doMessage(req)
}

func (c *Client) SendAudio(ctx context.Context, in chat.SendAudioInput) (chat.Message, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("sender_role", string(in.SenderRole))
	_ = mw.WriteField("sender_id", in.SenderID)
	_ = mw.WriteField("sender_name", in.SenderName)
	_ = mw.WriteField("mime_type", in.MimeType)
	part, err := mw.CreateFormFile("audio", "voice-message")
	if err != nil {
		return chat.Message{}, fmt.Errorf("storeclient: build multipart: %w", err)
	}
	if _, err := part.Write(in.Payload); err != nil {
		return chat.Message{}, fmt.Errorf("storeclient: build multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return chat.Message{}, fmt.Errorf("storeclient: build multipart: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/conversations/%s/audio", c.baseURL, in.ConversationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return chat.Message{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.doMessage(req)
}

func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	url := fmt.Sprintf("%s/api/v1/messages/%s/read", c.baseURL, messageID)
	return retry.Do(ctx, c.retry, c.log, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return httpError(resp)
		}
		return nil
	})
}

// doMessage executes a send request exactly once and decodes the stored
// message from the response.
func (c *Client) doMessage(req *http.Request) (chat.Message, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return chat.Message{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return chat.Message{}, httpError(resp)
	}
	var msg chat.Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return chat.Message{}, fmt.Errorf("storeclient: decode message: %w", err)
	}
	return msg, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return httpError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func httpError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return fmt.Errorf("storeclient: %s %s: status %d: %s",
		resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, strings.TrimSpace(string(snippet)))
}
