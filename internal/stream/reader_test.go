// ABOUTME: Tests for the SSE chunk reader and the chunk codec
// ABOUTME: Covers ordering, [DONE] handling, malformed chunk skipping and round trips

package stream

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	var events []Event
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func TestReader_DecodesEventsInOrder(t *testing.T) {
	body := strings.Join([]string{
		`data: {"chunk_type":"thinking","content":"searching"}`,
		``,
		`data: {"chunk_type":"tool_call","tool_name":"search","tool_input":{"query":"X"}}`,
		``,
		`data: {"chunk_type":"tool_result","tool_name":"search","tool_output":"3 results"}`,
		`data: {"chunk_type":"text","content":"a"}`,
		`data: {"chunk_type":"text","content":"b"}`,
		`data: {"chunk_type":"done"}`,
		`data: [DONE]`,
		``,
	}, "\n")

	events := readAll(t, NewReader(strings.NewReader(body), nil))
	require.Len(t, events, 6)

	assert.Equal(t, Thinking{Text: "searching"}, events[0])
	assert.Equal(t, ToolCall{Name: "search", Input: map[string]any{"query": "X"}}, events[1])
	assert.Equal(t, ToolResult{Name: "search", Output: "3 results"}, events[2])
	assert.Equal(t, Text{Text: "a"}, events[3])
	assert.Equal(t, Text{Text: "b"}, events[4])
	assert.Equal(t, Done{}, events[5])
}

func TestReader_StopsAtDoneMarker(t *testing.T) {
	body := "data: {\"chunk_type\":\"text\",\"content\":\"x\"}\n" +
		"data: [DONE]\n" +
		"data: {\"chunk_type\":\"text\",\"content\":\"never\"}\n"

	r := NewReader(strings.NewReader(body), nil)
	events := readAll(t, r)
	assert.Equal(t, []Event{Text{Text: "x"}}, events)

	// Further calls keep returning EOF
	_, err := r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_SkipsMalformedChunks(t *testing.T) {
	body := strings.Join([]string{
		`data: {"chunk_type":"text","content":"one"}`,
		`data: {not json`,
		`data: {"chunk_type":"mystery"}`,
		`data: {"chunk_type":"text","content":"two"}`,
	}, "\n")

	r := NewReader(strings.NewReader(body), nil)
	events := readAll(t, r)

	assert.Equal(t, []Event{Text{Text: "one"}, Text{Text: "two"}}, events)
	assert.Equal(t, 2, r.Skipped())
}

func TestReader_SkipsOversizedChunk(t *testing.T) {
	huge := `data: {"chunk_type":"text","content":"` + strings.Repeat("x", maxLineSize+100_000) + `"}`
	body := strings.Join([]string{
		`data: {"chunk_type":"text","content":"before"}`,
		huge,
		`data: {"chunk_type":"text","content":"after"}`,
		`data: [DONE]`,
		``,
	}, "\n")

	r := NewReader(strings.NewReader(body), nil)
	events := readAll(t, r)

	assert.Equal(t, []Event{Text{Text: "before"}, Text{Text: "after"}}, events)
	assert.Equal(t, 1, r.Skipped())
}

func TestReader_OversizedFinalLineWithoutNewline(t *testing.T) {
	body := "data: {\"chunk_type\":\"text\",\"content\":\"ok\"}\n" +
		"data: " + strings.Repeat("y", maxLineSize+1)

	r := NewReader(strings.NewReader(body), nil)
	events := readAll(t, r)

	assert.Equal(t, []Event{Text{Text: "ok"}}, events)
	assert.Equal(t, 1, r.Skipped())
}

func TestReader_LineJustUnderLimit(t *testing.T) {
	prefix := `data: {"chunk_type":"text","content":"`
	suffix := `"}`
	content := strings.Repeat("z", maxLineSize-len(prefix)-len(suffix)-1)
	body := prefix + content + suffix + "\n"

	r := NewReader(strings.NewReader(body), nil)
	events := readAll(t, r)

	require.Len(t, events, 1)
	assert.Equal(t, Text{Text: content}, events[0])
	assert.Zero(t, r.Skipped())
}

func TestReader_IgnoresNonDataLines(t *testing.T) {
	body := ": keepalive\nevent: message\nid: 7\ndata:\ndata: {\"chunk_type\":\"done\"}\n"

	events := readAll(t, NewReader(strings.NewReader(body), nil))
	assert.Equal(t, []Event{Done{}}, events)
}

func TestReader_EmptyBody(t *testing.T) {
	events := readAll(t, NewReader(strings.NewReader(""), nil))
	assert.Empty(t, events)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestReader_PropagatesReadErrors(t *testing.T) {
	_, err := NewReader(failingReader{}, nil).Next()
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestDecode_ErrorFallsBackToContent(t *testing.T) {
	ev, err := Decode([]byte(`{"chunk_type":"error","content":"boom"}`))
	require.NoError(t, err)
	assert.Equal(t, Error{Message: "boom"}, ev)
}

func TestDecode_StatusCarriesMessage(t *testing.T) {
	ev, err := Decode([]byte(`{"chunk_type":"status","status":"credentials_required","content":"login to Jira"}`))
	require.NoError(t, err)
	assert.Equal(t, Status{Status: StatusCredentialsRequired, Message: "login to Jira"}, ev)
}

func TestDecode_UnknownChunk(t *testing.T) {
	_, err := Decode([]byte(`{"chunk_type":"telemetry"}`))
	assert.ErrorIs(t, err, ErrUnknownChunk)
}

func TestArtifact_Complete(t *testing.T) {
	assert.True(t, Artifact{ID: "a1", Type: "code", Content: "x"}.Complete())
	assert.False(t, Artifact{ID: "a1", Type: "code"}.Complete())
	assert.False(t, Artifact{Type: "code", Content: "x"}.Complete())
}

func TestWriter_OutputIsReadable(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	sent := []Event{
		Thinking{Text: "looking"},
		Sources{Sources: []Source{{Content: "c", OriginRef: "doc1", RelevanceScore: 0.9}}},
		Artifact{ID: "a1", Type: "code", Title: "main.go", Language: "go", Content: "package main"},
		Status{Status: "searching", Message: "Searching Jira"},
		Error{Message: "quota exceeded"},
		Done{},
	}
	for _, ev := range sent {
		require.NoError(t, w.Write(ev))
	}
	require.NoError(t, w.Close())

	got := readAll(t, NewReader(&buf, nil))
	assert.Equal(t, sent, got)
}
