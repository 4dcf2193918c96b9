// Package api is the HTTP client for the ragchat backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"ragchat/internal/models"
)

// StatusError is returned when the backend answers with a non-2xx status
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: backend returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.StatusCode, e.Body)
}

// TransportError is returned when the request never got an answer from
// the backend: connection refused, DNS failure, timeout or cancellation.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is a network failure rather than an
// answer from the backend. Malformed responses are neither.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// maxErrorBody bounds how much of an error response is kept
const maxErrorBody = 512

// Client talks to the conversation endpoints of the backend
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the request logger
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates a client for the backend at baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "api").Logger()
	return c
}

// ListChats returns the conversation summaries, most recent first
func (c *Client) ListChats(ctx context.Context) ([]models.Summary, error) {
	var chats []models.Summary
	if err := c.do(ctx, "list chats", http.MethodGet, "/chats", nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// GetMessages returns the transcript of a conversation
func (c *Client) GetMessages(ctx context.Context, id string) ([]models.Message, error) {
	var msgs []models.Message
	if err := c.do(ctx, "get messages", http.MethodGet, "/chats/"+url.PathEscape(id), nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// PostMessage posts a user message and returns the AI reply
func (c *Client) PostMessage(ctx context.Context, id, text string) (*models.Reply, error) {
	body := models.PostRequest{Sender: models.SenderUser, Message: text}
	var reply models.Reply
	if err := c.do(ctx, "post message", http.MethodPost, "/chats/"+url.PathEscape(id), body, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// DeleteChat deletes a conversation
func (c *Client) DeleteChat(ctx context.Context, id string) error {
	return c.do(ctx, "delete chat", http.MethodDelete, "/chats/"+url.PathEscape(id), nil, nil)
}

// RenameChat sets the title of a conversation
func (c *Client) RenameChat(ctx context.Context, id, title string) error {
	path := "/chats/" + url.PathEscape(id) + "/" + url.PathEscape(title)
	return c.do(ctx, "rename chat", http.MethodPut, path, nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrapf(err, "%s: encoding request", op)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrapf(err, "%s: building request", op)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug().Str("method", method).Str("path", path).Msg("request")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(excerpt))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "%s: decoding response", op)
	}
	return nil
}
