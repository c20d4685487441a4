// ABOUTME: Client for the backend's content-extraction API (files and URLs)
// ABOUTME: Merge concatenates labelled extracts into a submission's file context

package filectx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// MaxFileSize is the largest file ExtractFile will upload.
const MaxFileSize = 10 << 20

// ErrTooLarge is returned for files over MaxFileSize.
var ErrTooLarge = errors.New("file too large")

// Extract is the text content pulled from one file or URL.
type Extract struct {
	Label   string `json:"label"`
	Content string `json:"content"`
}

// TokenSource supplies the bearer token for extraction calls.
type TokenSource interface {
	Token() (string, error)
}

// Client talks to the extraction endpoints:
//
//	POST /api/extract/file  multipart "file"  -> {"content"}
//	POST /api/extract/url   {"url"}           -> {"content","title"}
type Client struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
	logger  *slog.Logger
}

// NewClient creates an extraction client. tokens and logger may be nil.
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
		logger:  logger.With("component", "filectx"),
	}
}

// ExtractFile uploads the file at path and returns its text content.
func (c *Client) ExtractFile(ctx context.Context, path string) (*Extract, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, path, info.Size())
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("creating form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing form: %w", err)
	}

	var out struct {
		Content string `json:"content"`
	}
	if err := c.post(ctx, "/api/extract/file", mw.FormDataContentType(), &body, &out); err != nil {
		return nil, fmt.Errorf("extracting %s: %w", filepath.Base(path), err)
	}

	c.logger.Debug("extracted file", "path", path, "chars", len(out.Content))
	return &Extract{Label: filepath.Base(path), Content: out.Content}, nil
}

// ExtractURL asks the backend to fetch rawURL and return its text content.
func (c *Client) ExtractURL(ctx context.Context, rawURL string) (*Extract, error) {
	data, err := json.Marshal(map[string]string{"url": rawURL})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	var out struct {
		Content string `json:"content"`
		Title   string `json:"title"`
	}
	if err := c.post(ctx, "/api/extract/url", "application/json", bytes.NewReader(data), &out); err != nil {
		return nil, fmt.Errorf("extracting %s: %w", rawURL, err)
	}

	label := rawURL
	if out.Title != "" {
		label = out.Title + " (" + rawURL + ")"
	}
	c.logger.Debug("extracted url", "url", rawURL, "chars", len(out.Content))
	return &Extract{Label: label, Content: out.Content}, nil
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return fmt.Errorf("loading token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("extraction service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Merge joins extracts into one file context, each under its label.
// Extracts with blank content are skipped.
func Merge(extracts ...*Extract) string {
	var b strings.Builder
	for _, e := range extracts {
		if e == nil || strings.TrimSpace(e.Content) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- %s ---\n%s", e.Label, strings.TrimSpace(e.Content))
	}
	return b.String()
}

// IsURL reports whether ref should be extracted as a URL rather than a file.
func IsURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
