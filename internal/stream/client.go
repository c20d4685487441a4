// ABOUTME: HTTP client that opens a cancellable streaming agent request
// ABOUTME: POSTs the task and returns a Stream over the SSE response body

package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// DefaultExecutePath is the agent-execution endpoint relative to the base URL.
const DefaultExecutePath = "/api/agent/execute"

// Request is the JSON body of a streaming agent request.
type Request struct {
	Task        string `json:"task"`
	Agent       string `json:"agent_type,omitempty"`
	Language    string `json:"language"`
	FileContext string `json:"file_context,omitempty"`
}

// Stream is a pull-based sequence of events from one request.
// Next returns io.EOF when the stream is exhausted.
type Stream interface {
	Next() (Event, error)
	Close() error
}

// Opener starts streaming requests. The returned Stream stops yielding
// events once ctx is cancelled.
type Opener interface {
	Open(ctx context.Context, req *Request) (Stream, error)
}

// TokenSource supplies the bearer token attached to each request.
// An empty token means no Authorization header.
type TokenSource interface {
	Token() (string, error)
}

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("agent backend returned status %d", e.Code)
	}
	return fmt.Sprintf("agent backend error (%d): %s", e.Code, e.Message)
}

// Client talks to the agent-execution endpoint.
type Client struct {
	baseURL string
	path    string
	client  *http.Client
	tokens  TokenSource
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithTokenSource attaches bearer tokens to requests.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithPath overrides the execute endpoint path.
func WithPath(path string) Option {
	return func(c *Client) { c.path = path }
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		path:    DefaultExecutePath,
		client:  &http.Client{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "stream_client")
	return c
}

// Open sends req and returns the response as a Stream.
func (c *Client) Open(ctx context.Context, req *Request) (Stream, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("loading token: %w", err)
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}

	c.logger.Debug("stream opened", "agent", req.Agent, "status", resp.StatusCode)

	return &httpStream{
		Reader: NewReader(resp.Body, c.logger),
		body:   resp.Body,
	}, nil
}

// statusError extracts an error message from a non-2xx response.
func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var errResp struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		if json.Unmarshal(data, &errResp) == nil {
			if errResp.Error != "" {
				return &StatusError{Code: resp.StatusCode, Message: errResp.Error}
			}
			if errResp.Detail != "" {
				return &StatusError{Code: resp.StatusCode, Message: errResp.Detail}
			}
		}
	}

	return &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(data))}
}

type httpStream struct {
	*Reader
	body io.ReadCloser
}

func (s *httpStream) Close() error {
	return s.body.Close()
}
