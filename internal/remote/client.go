// Package remote is the HTTP client for the rental portal's messaging API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/matheus3301/rentchat/internal/chat"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the default HTTP timeout used by the client.
	DefaultTimeout = 10 * time.Second

	maxResponseSize = 10 * 1024 * 1024
)

// Client implements chat.Remote over REST/JSON.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

var _ chat.Remote = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithRateLimit caps outgoing requests at rps per second with the given
// burst. Callers wait for a token; rps <= 0 disables the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger for malformed responses.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for baseURL. A zero timeout uses DefaultTimeout.
func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote: http %d", e.StatusCode)
	}
	return fmt.Sprintf("remote: http %d: %s", e.StatusCode, e.Body)
}

// Is maps status codes onto the chat error taxonomy.
func (e *APIError) Is(target error) bool {
	switch target {
	case chat.ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case chat.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// StatusCode extracts the HTTP status of a failed call, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// ListConversations fetches the user's conversation summaries.
func (c *Client) ListConversations(ctx context.Context, s chat.Session) ([]chat.Conversation, error) {
	var resp conversationList
	if err := c.get(ctx, s, "/v1/conversations", &resp); err != nil {
		return nil, err
	}
	out := make([]chat.Conversation, 0, len(resp.Conversations))
	for _, w := range resp.Conversations {
		out = append(out, w.domain())
	}
	return out, nil
}

// ListMessages fetches a conversation's message log. Entries carrying
// neither an id nor a correlation id cannot be matched on the next poll and
// are dropped.
func (c *Client) ListMessages(ctx context.Context, s chat.Session, conversationID string) ([]chat.Message, error) {
	var resp messageList
	if err := c.get(ctx, s, "/v1/conversations/"+url.PathEscape(conversationID)+"/messages", &resp); err != nil {
		return nil, err
	}
	out := make([]chat.Message, 0, len(resp.Messages))
	for _, w := range resp.Messages {
		m := w.domain()
		if m.ID == "" && m.CorrelationID == "" {
			c.logger.Warn("dropping message without id",
				zap.String("conversation_id", conversationID), zap.Time("sent_at", m.SentAt))
			continue
		}
		if m.ConversationID == "" {
			m.ConversationID = conversationID
		}
		out = append(out, m)
	}
	return out, nil
}

// SendMessage posts a message. The correlation id is sent along so the
// service can echo it back in later polls.
func (c *Client) SendMessage(ctx context.Context, s chat.Session, conversationID, content, correlationID string) (chat.Message, error) {
	req := sendRequest{Content: content, CorrelationID: correlationID}
	var resp wireMessage
	if err := c.post(ctx, s, "/v1/conversations/"+url.PathEscape(conversationID)+"/messages", req, &resp); err != nil {
		return chat.Message{}, err
	}
	m := resp.domain()
	if m.ConversationID == "" {
		m.ConversationID = conversationID
	}
	if m.CorrelationID == "" {
		m.CorrelationID = correlationID
	}
	return m, nil
}

// MarkRead marks every message of the conversation read for the session user.
func (c *Client) MarkRead(ctx context.Context, s chat.Session, conversationID string) error {
	return c.post(ctx, s, "/v1/conversations/"+url.PathEscape(conversationID)+"/read", nil, nil)
}

// CreateConversation opens a new conversation and returns its id.
func (c *Client) CreateConversation(ctx context.Context, s chat.Session, subject, initialMessage string) (string, error) {
	req := createRequest{Subject: subject, InitialMessage: initialMessage}
	var resp createResponse
	if err := c.post(ctx, s, "/v1/conversations", req, &resp); err != nil {
		return "", err
	}
	return string(resp.ID), nil
}

func (c *Client) get(ctx context.Context, s chat.Session, path string, out any) error {
	return c.do(ctx, s, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, s chat.Session, path string, in any, out any) error {
	return c.do(ctx, s, http.MethodPost, path, in, out)
}

func (c *Client) do(ctx context.Context, s chat.Session, method, path string, in any, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
