// ABOUTME: HTTP client for the backend's per-agent credential API
// ABOUTME: Checks whether an agent has credentials and submits new ones

package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// ErrRejected is returned when the backend refuses submitted credentials.
var ErrRejected = errors.New("credentials rejected")

// Field is one input the backend wants for an agent, e.g. an API key.
type Field struct {
	Name   string `json:"name"`
	Label  string `json:"label"`
	Secret bool   `json:"secret"`
}

// Status describes the credential state of one agent.
type Status struct {
	Agent      string  `json:"agent_type"`
	Configured bool    `json:"configured"`
	Fields     []Field `json:"fields"`
}

// TokenSource supplies the bearer token for credential calls.
type TokenSource interface {
	Token() (string, error)
}

// Client talks to the credential endpoints:
//
//	GET  /api/credentials/{agent}               -> Status
//	POST /api/credentials/{agent}  {"values"}   -> 204, or 400/422 when rejected
type Client struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
	logger  *slog.Logger
}

// NewClient creates a credential client. tokens and logger may be nil.
func NewClient(baseURL string, hc *http.Client, tokens TokenSource, logger *slog.Logger) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  hc,
		tokens:  tokens,
		logger:  logger.With("component", "credentials"),
	}
}

// Check reports whether agent has usable credentials and which fields it needs.
func (c *Client) Check(ctx context.Context, agent string) (*Status, error) {
	resp, err := c.do(ctx, http.MethodGet, agent, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("decoding credential status: %w", err)
	}
	if st.Agent == "" {
		st.Agent = agent
	}
	return &st, nil
}

// Submit stores credential values for agent.
func (c *Client) Submit(ctx context.Context, agent string, values map[string]string) error {
	body, err := json.Marshal(map[string]any{"values": values})
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, agent, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %v", ErrRejected, responseError(resp))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return responseError(resp)
	}

	c.logger.Info("credentials stored", "agent", agent, "fields", len(values))
	return nil
}

func (c *Client) do(ctx context.Context, method, agent string, body []byte) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/credentials/"+url.PathEscape(agent), rdr)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("loading token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	return resp, nil
}

func responseError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
		return fmt.Errorf("credential service returned %d: %s", resp.StatusCode, errResp.Error)
	}
	return fmt.Errorf("credential service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}
