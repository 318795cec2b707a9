// Package backend is an HTTP client for the chat backend's persistence side
// channel: message registration, preferences, session history, the model
// catalogue and user registration.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/typhoon/pkg/chat"
)

const (
	registerMessagePath = "/api/messages/register/v1"
	preferencePath      = "/api/messages/preference/v1"
	modelParamsPath     = "/api/llm/params/v1"
	registerUserPath    = "/api/users/register/v1"

	// ChatPath is the backend's streaming chat endpoint.
	ChatPath = "/api/llm/chat/v1"

	defaultTimeout = 30 * time.Second
	maxErrorBody   = 16 * 1024
)

// HTTPError is returned when the backend answers with a non-2xx status.
type HTTPError struct {
	Code   int
	Detail string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Detail)
}

// Client talks to the persistence side channel of a chat backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// New creates a Client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend root the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RegisterMessage records one turn. The response carries the session the turn
// was filed under and the turn's message id.
func (c *Client) RegisterMessage(ctx context.Context, req chat.RegisterMessageRequest) (chat.RegisterMessageResponse, error) {
	var resp chat.RegisterMessageResponse
	err := c.do(ctx, http.MethodPost, registerMessagePath, req, &resp)
	return resp, err
}

// SetPreference updates the rating of a persisted message.
func (c *Client) SetPreference(ctx context.Context, messageID int64, pref chat.Preference) error {
	req := chat.PreferenceRequest{MessageID: messageID, Preference: pref.Wire()}
	return c.do(ctx, http.MethodPatch, preferencePath, req, nil)
}

// SessionMessages returns the ordered messages of a session.
func (c *Client) SessionMessages(ctx context.Context, sessionID int64) ([]chat.PersistedMessage, error) {
	var msgs []chat.PersistedMessage
	path := "/api/chat_sessions/" + strconv.FormatInt(sessionID, 10) + "/messages/v1"
	err := c.do(ctx, http.MethodGet, path, nil, &msgs)
	return msgs, err
}

// UserSessions returns the session summaries of a user.
func (c *Client) UserSessions(ctx context.Context, email string) ([]chat.SessionSummary, error) {
	var sessions []chat.SessionSummary
	path := "/api/users/" + url.PathEscape(email) + "/chat_sessions/v1"
	err := c.do(ctx, http.MethodGet, path, nil, &sessions)
	return sessions, err
}

// ModelParams returns the model catalogue.
func (c *Client) ModelParams(ctx context.Context) ([]chat.ModelDescriptor, error) {
	var models []chat.ModelDescriptor
	err := c.do(ctx, http.MethodGet, modelParamsPath, nil, &models)
	return models, err
}

// RegisterUser creates (or returns) the user for an email.
func (c *Client) RegisterUser(ctx context.Context, email string) (chat.RegisterUserResponse, error) {
	var resp chat.RegisterUserResponse
	err := c.do(ctx, http.MethodPost, registerUserPath, chat.RegisterUserRequest{Email: email}, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		herr := &HTTPError{Code: resp.StatusCode, Detail: errorDetail(raw)}
		c.logger.Debug("backend request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("detail", herr.Detail),
		)
		return herr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}

// errorDetail extracts the "detail" field error bodies carry, falling back to
// the raw body.
func errorDetail(raw []byte) string {
	var body struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Detail != nil {
		if s, ok := body.Detail.(string); ok {
			return s
		}
		b, _ := json.Marshal(body.Detail)
		return string(b)
	}
	return strings.TrimSpace(string(raw))
}
