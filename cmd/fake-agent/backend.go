// ABOUTME: Scripted agent behaviour for the development backend
// ABOUTME: Streams per-agent chunk scripts and serves in-memory credentials and extraction

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/2389/agentdesk/internal/stream"
)

// maxExtract bounds the text returned by the extraction endpoints
const maxExtract = 64 << 10

// agentsNeedingLogin require stored credentials before they answer
var agentsNeedingLogin = map[string]bool{"ims": true}

type backend struct {
	delay  time.Duration
	client *http.Client
	logger *slog.Logger

	mu          sync.Mutex
	credentials map[string]map[string]string
}

func newBackend(delay time.Duration, logger *slog.Logger) *backend {
	return &backend{
		delay:       delay,
		client:      &http.Client{Timeout: 15 * time.Second},
		logger:      logger.With("component", "fake_agent"),
		credentials: make(map[string]map[string]string),
	}
}

// RegisterRoutes registers the agent, credential and extraction routes.
func (b *backend) RegisterRoutes(r chi.Router) {
	r.Post(stream.DefaultExecutePath, b.execute)
	r.Get("/api/credentials/{agent}", b.credentialStatus)
	r.Post("/api/credentials/{agent}", b.storeCredentials)
	r.Post("/api/extract/file", b.extractFile)
	r.Post("/api/extract/url", b.extractURL)
}

func (b *backend) execute(w http.ResponseWriter, r *http.Request) {
	var req stream.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Task) == "" {
		writeError(w, http.StatusBadRequest, "task required")
		return
	}

	events := b.script(req)
	b.logger.Info("executing task", "agent", req.Agent, "chunks", len(events))

	sw := stream.NewWriter(w)
	for _, ev := range events {
		select {
		case <-r.Context().Done():
			b.logger.Info("client went away", "agent", req.Agent)
			return
		case <-time.After(b.delay):
		}
		if err := sw.Write(ev); err != nil {
			b.logger.Warn("write failed", "error", err)
			return
		}
	}
	_ = sw.Close()
}

// script picks the chunk sequence for a request.
func (b *backend) script(req stream.Request) []stream.Event {
	task := strings.ToLower(req.Task)

	if agentsNeedingLogin[req.Agent] && !b.hasCredentials(req.Agent) {
		return []stream.Event{
			stream.Thinking{Text: "Checking issue tracker access..."},
			stream.Status{Status: stream.StatusCredentialsRequired, Message: "issue tracker login required"},
		}
	}
	if strings.Contains(task, "fail") {
		return []stream.Event{
			stream.Thinking{Text: "Trying..."},
			stream.Error{Message: "the agent could not complete this request"},
		}
	}

	events := []stream.Event{
		stream.Thinking{Text: fmt.Sprintf("Planning how to answer with the %s agent...", agentLabel(req.Agent))},
		stream.Status{Status: "progress", Message: "searching"},
		stream.ToolCall{Name: "search", Input: map[string]any{"query": req.Task}},
		stream.ToolResult{Name: "search", Output: "3 results"},
	}
	if req.FileContext != "" {
		events = append(events,
			stream.ToolCall{Name: "read_context", Input: map[string]any{"chars": len(req.FileContext)}},
			stream.ToolResult{Name: "read_context", Output: "ok"},
		)
	}

	for _, chunk := range chunkWords(answer(req), 3) {
		events = append(events, stream.Text{Text: chunk})
	}

	switch req.Agent {
	case "kb", "ims":
		events = append(events, stream.Sources{Sources: []stream.Source{
			{Content: "Runbook: restarting the ingest pipeline", OriginRef: "kb://runbooks/ingest", RelevanceScore: 0.92},
			{Content: "Postmortem 2026-02-11", OriginRef: "kb://postmortems/2026-02-11", RelevanceScore: 0.71},
		}})
	case "code":
		events = append(events, stream.Artifact{
			ID: "snippet-1", Type: "code", Title: "example.go", Language: "go",
			Content: "package main\n\nfunc main() {}\n",
		})
	}
	return append(events, stream.Done{})
}

func answer(req stream.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You asked the **%s** agent: %q.\n\n", agentLabel(req.Agent), req.Task)
	if req.FileContext != "" {
		fmt.Fprintf(&b, "I read %d characters of attached context. ", utf8.RuneCountInString(req.FileContext))
	}
	b.WriteString("This is a scripted reply from the development backend.")
	return b.String()
}

func agentLabel(agent string) string {
	if agent == "" {
		return "general"
	}
	return agent
}

// chunkWords splits s into pieces of n words, keeping the separators so the
// pieces concatenate back to s.
func chunkWords(s string, n int) []string {
	var chunks []string
	words := 0
	start := 0
	for i, r := range s {
		if r == ' ' {
			words++
			if words == n {
				chunks = append(chunks, s[start:i+1])
				start = i + 1
				words = 0
			}
		}
	}
	if start < len(s) {
		chunks = append(chunks, s[start:])
	}
	return chunks
}

func (b *backend) hasCredentials(agent string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.credentials[agent]
	return ok
}

func (b *backend) credentialStatus(w http.ResponseWriter, r *http.Request) {
	agent := chi.URLParam(r, "agent")
	writeJSON(w, http.StatusOK, map[string]any{
		"agent_type": agent,
		"configured": !agentsNeedingLogin[agent] || b.hasCredentials(agent),
		"fields":     []map[string]any{{"name": "api_key", "label": "API key", "secret": true}},
	})
}

func (b *backend) storeCredentials(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Values map[string]string `json:"values"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Values["api_key"]) == "" {
		writeError(w, http.StatusUnprocessableEntity, "api_key required")
		return
	}

	agent := chi.URLParam(r, "agent")
	b.mu.Lock()
	b.credentials[agent] = req.Values
	b.mu.Unlock()

	b.logger.Info("credentials stored", "agent", agent)
	w.WriteHeader(http.StatusNoContent)
}

func (b *backend) extractFile(w http.ResponseWriter, r *http.Request) {
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field \"file\" required")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxExtract))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading upload failed")
		return
	}
	if !utf8.Valid(data) {
		writeError(w, http.StatusUnprocessableEntity, "only text files are supported")
		return
	}

	b.logger.Debug("extracted file", "name", hdr.Filename, "bytes", len(data))
	writeJSON(w, http.StatusOK, map[string]string{"content": string(data)})
}

var (
	titlePattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	tagPattern   = regexp.MustCompile(`(?s)<script.*?</script>|<style.*?</style>|<[^>]+>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

func (b *backend) extractURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}

	httpReq, err := http.NewRequestWithContext(r.Context(), http.MethodGet, req.URL, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid url")
		return
	}
	resp, err := b.client.Do(httpReq)
	if err != nil {
		writeError(w, http.StatusBadGateway, "fetching url failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("upstream returned %d", resp.StatusCode))
		return
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxExtract))
	page := string(data)

	title := ""
	if m := titlePattern.FindStringSubmatch(page); m != nil {
		title = strings.TrimSpace(m[1])
	}
	text := strings.TrimSpace(spacePattern.ReplaceAllString(tagPattern.ReplaceAllString(page, " "), " "))

	writeJSON(w, http.StatusOK, map[string]string{"content": text, "title": title})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
