// ABOUTME: StreamEvent sum type and its chunk_type JSON wire encoding
// ABOUTME: One Go type per chunk kind, each carrying only the fields relevant to it

package stream

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownChunk is returned when a chunk carries a chunk_type we do not know.
var ErrUnknownChunk = errors.New("unknown chunk type")

// Kind identifies a stream event variant on the wire (the chunk_type field).
type Kind string

const (
	KindThinking   Kind = "thinking"
	KindToolCall   Kind = "tool_call"
	KindToolResult Kind = "tool_result"
	KindText       Kind = "text"
	KindSources    Kind = "sources"
	KindArtifact   Kind = "artifact"
	KindStatus     Kind = "status"
	KindError      Kind = "error"
	KindDone       Kind = "done"
)

// StatusCredentialsRequired is the status payload an agent sends when it
// cannot proceed without out-of-band credentials.
const StatusCredentialsRequired = "credentials_required"

// Event is one incremental unit of a streaming agent response.
// The set of implementations is closed; switch on the concrete type.
type Event interface {
	Kind() Kind
	isEvent()
}

// Thinking carries the agent's narrative of what it is doing.
type Thinking struct {
	Text string
}

// ToolCall announces a tool invocation.
type ToolCall struct {
	Name  string
	Input map[string]any
}

// ToolResult carries the output of a previously announced tool call.
type ToolResult struct {
	Name   string
	Output string
}

// Text is a chunk of the visible answer. Chunks are concatenated.
type Text struct {
	Text string
}

// Source is one retrieved document backing an answer.
type Source struct {
	Content        string  `json:"content"`
	OriginRef      string  `json:"origin_ref"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Sources replaces the full source list of the current turn.
type Sources struct {
	Sources []Source
}

// Artifact is a side document (code, diagram, table) produced alongside a turn.
type Artifact struct {
	ID       string
	Type     string
	Title    string
	Language string
	Content  string
}

// Complete reports whether the artifact has everything needed to be shown.
func (a Artifact) Complete() bool {
	return a.ID != "" && a.Type != "" && a.Content != ""
}

// Status is an out-of-band progress or control signal.
type Status struct {
	Status  string
	Message string
}

// Error reports that the agent gave up on the request.
type Error struct {
	Message string
}

// Done marks the logical end of the response.
type Done struct{}

func (Thinking) Kind() Kind   { return KindThinking }
func (ToolCall) Kind() Kind   { return KindToolCall }
func (ToolResult) Kind() Kind { return KindToolResult }
func (Text) Kind() Kind       { return KindText }
func (Sources) Kind() Kind    { return KindSources }
func (Artifact) Kind() Kind   { return KindArtifact }
func (Status) Kind() Kind     { return KindStatus }
func (Error) Kind() Kind      { return KindError }
func (Done) Kind() Kind       { return KindDone }

func (Thinking) isEvent()   {}
func (ToolCall) isEvent()   {}
func (ToolResult) isEvent() {}
func (Text) isEvent()       {}
func (Sources) isEvent()    {}
func (Artifact) isEvent()   {}
func (Status) isEvent()     {}
func (Error) isEvent()      {}
func (Done) isEvent()       {}

// chunk is the flat JSON shape used on the wire.
type chunk struct {
	ChunkType  Kind           `json:"chunk_type"`
	Content    string         `json:"content,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	ToolInput  map[string]any `json:"tool_input,omitempty"`
	ToolOutput string         `json:"tool_output,omitempty"`
	Sources    []Source       `json:"sources,omitempty"`
	Artifact   *wireArtifact  `json:"artifact,omitempty"`
	Status     string         `json:"status,omitempty"`
	Error      string         `json:"error,omitempty"`
}

type wireArtifact struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title,omitempty"`
	Language string `json:"language,omitempty"`
	Content  string `json:"content"`
}

// Decode parses one JSON chunk into its Event variant.
func Decode(data []byte) (Event, error) {
	var c chunk
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding chunk: %w", err)
	}

	switch c.ChunkType {
	case KindThinking:
		return Thinking{Text: c.Content}, nil
	case KindToolCall:
		return ToolCall{Name: c.ToolName, Input: c.ToolInput}, nil
	case KindToolResult:
		return ToolResult{Name: c.ToolName, Output: c.ToolOutput}, nil
	case KindText:
		return Text{Text: c.Content}, nil
	case KindSources:
		return Sources{Sources: c.Sources}, nil
	case KindArtifact:
		if c.Artifact == nil {
			return Artifact{}, nil
		}
		return Artifact{
			ID:       c.Artifact.ID,
			Type:     c.Artifact.Type,
			Title:    c.Artifact.Title,
			Language: c.Artifact.Language,
			Content:  c.Artifact.Content,
		}, nil
	case KindStatus:
		return Status{Status: c.Status, Message: c.Content}, nil
	case KindError:
		msg := c.Error
		if msg == "" {
			msg = c.Content
		}
		return Error{Message: msg}, nil
	case KindDone:
		return Done{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownChunk, c.ChunkType)
	}
}

// Encode renders an Event as a JSON chunk. Used by servers and tests.
func Encode(ev Event) ([]byte, error) {
	c := chunk{ChunkType: ev.Kind()}

	switch e := ev.(type) {
	case Thinking:
		c.Content = e.Text
	case ToolCall:
		c.ToolName = e.Name
		c.ToolInput = e.Input
	case ToolResult:
		c.ToolName = e.Name
		c.ToolOutput = e.Output
	case Text:
		c.Content = e.Text
	case Sources:
		c.Sources = e.Sources
	case Artifact:
		c.Artifact = &wireArtifact{
			ID:       e.ID,
			Type:     e.Type,
			Title:    e.Title,
			Language: e.Language,
			Content:  e.Content,
		}
	case Status:
		c.Status = e.Status
		c.Content = e.Message
	case Error:
		c.Error = e.Message
	case Done:
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownChunk, ev)
	}

	return json.Marshal(c)
}
