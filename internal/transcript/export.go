// ABOUTME: Renders a stored conversation as a standalone HTML or Markdown transcript
// ABOUTME: Message bodies are Markdown converted with goldmark; raw HTML is not passed through

package transcript

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/agentdesk/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

var page = template.Must(template.ParseFS(templateFS, "templates/transcript.html"))

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

const timeFormat = "2006-01-02 15:04"

type turnView struct {
	Role string
	Time string
	HTML template.HTML
}

type pageView struct {
	Title   string
	Agent   string
	Created string
	Turns   []turnView
}

// HTML writes conv and its messages to w as a self-contained HTML page.
func HTML(w io.Writer, conv *store.Conversation, msgs []*store.Message) error {
	view := pageView{
		Title:   titleOf(conv),
		Agent:   conv.Agent,
		Created: conv.CreatedAt.Local().Format(timeFormat),
		Turns:   make([]turnView, 0, len(msgs)),
	}

	for _, m := range msgs {
		var buf bytes.Buffer
		if err := markdown.Convert([]byte(m.Content), &buf); err != nil {
			return fmt.Errorf("rendering message %s: %w", m.ID, err)
		}
		view.Turns = append(view.Turns, turnView{
			Role: m.Role,
			Time: m.CreatedAt.Local().Format(timeFormat),
			HTML: template.HTML(buf.String()),
		})
	}

	if err := page.Execute(w, view); err != nil {
		return fmt.Errorf("executing transcript template: %w", err)
	}
	return nil
}

// Markdown writes conv and its messages to w as a Markdown document.
func Markdown(w io.Writer, conv *store.Conversation, msgs []*store.Message) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n_%s · %s_\n", titleOf(conv), conv.Agent, conv.CreatedAt.Local().Format(timeFormat))
	for _, m := range msgs {
		fmt.Fprintf(&b, "\n## %s (%s)\n\n%s\n", roleTitle(m.Role), m.CreatedAt.Local().Format(timeFormat), strings.TrimSpace(m.Content))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Format picks a renderer by name: "html" or "md"/"markdown".
func Format(name string) (func(io.Writer, *store.Conversation, []*store.Message) error, error) {
	switch strings.ToLower(name) {
	case "html":
		return HTML, nil
	case "md", "markdown":
		return Markdown, nil
	default:
		return nil, fmt.Errorf("unknown transcript format %q", name)
	}
}

func titleOf(conv *store.Conversation) string {
	if strings.TrimSpace(conv.Title) == "" {
		return "Conversation " + conv.ID
	}
	return conv.Title
}

func roleTitle(role string) string {
	if role == "" {
		return role
	}
	return strings.ToUpper(role[:1]) + role[1:]
}
