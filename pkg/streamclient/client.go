// Package streamclient opens outbound text/event-stream connections and yields
// their events one at a time.
package streamclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const maxErrorBody = 4 * 1024

// Client opens event streams.
type Client struct {
	httpClient *http.Client
	header     http.Header
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client used for requests. Streams are long lived,
// so the client should not carry a whole-request timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(cl *Client) {
		cl.header.Add(key, value)
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		header:     http.Header{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open POSTs payload as JSON to url and returns the resulting event stream.
func (c *Client) Open(ctx context.Context, url string, payload any) (*Stream, error) {
	return c.OpenWithHeader(ctx, url, nil, payload)
}

// OpenWithHeader is Open with extra request headers for this stream only.
// They are applied after the client's own headers.
func (c *Client) OpenWithHeader(ctx context.Context, url string, header http.Header, payload any) (*Stream, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling stream request: %w", err)
	}
	return c.open(ctx, http.MethodPost, url, header, bytes.NewReader(body))
}

// OpenGet opens an event stream with a GET request.
func (c *Client) OpenGet(ctx context.Context, url string) (*Stream, error) {
	return c.open(ctx, http.MethodGet, url, nil, nil)
}

func (c *Client) open(ctx context.Context, method, url string, header http.Header, body io.Reader) (*Stream, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(streamCtx, method, url, body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, vs := range header {
		req.Header[k] = append([]string(nil), vs...)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "text/event-stream")

	c.logger.Debug("opening event stream",
		zap.String("method", method),
		zap.String("url", url),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer cancel()
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	return newStream(resp.Body, resp.Header, cancel, c.logger), nil
}
