// ABOUTME: Rendering for the chat screen: agent tabs, transcript viewport and input footer
// ABOUTME: Only the selected agent's snapshot is ever drawn

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/2389/agentdesk/internal/session"
)

const (
	headerLines = 2
	footerLines = 4
)

// refresh rebuilds the viewport content from the current snapshot.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	width := max(m.viewport.Width, 20)

	var b strings.Builder
	for _, t := range m.snap.Turns {
		b.WriteString(m.renderTurn(t, width))
		b.WriteString("\n")
	}
	if m.snap.InFlight != nil {
		b.WriteString(m.renderInFlight(*m.snap.InFlight, width))
		b.WriteString("\n")
	}

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m Model) renderTurn(t session.ChatTurn, width int) string {
	wrap := lipgloss.NewStyle().Width(width)
	switch t.Role {
	case session.RoleUser:
		return wrap.Render(m.styles.User.Render("You: ") + t.Content)
	case session.RoleStatus:
		return m.styles.Status.Render("  " + t.Content)
	}

	var b strings.Builder
	for _, tc := range t.ToolCalls {
		b.WriteString(m.renderTool(tc))
		b.WriteString("\n")
	}
	if t.Error != "" {
		b.WriteString(wrap.Render(m.styles.Error.Render(t.Content)))
		b.WriteString("\n")
		b.WriteString(m.styles.Error.Render("  " + t.Error))
	} else {
		b.WriteString(wrap.Render(m.styles.Assistant.Render(t.Content)))
	}
	if len(t.Sources) > 0 {
		b.WriteString("\n")
		b.WriteString(m.renderSources(t.Sources))
	}
	return b.String()
}

func (m Model) renderInFlight(t session.ChatTurn, width int) string {
	var b strings.Builder
	for _, tc := range t.ToolCalls {
		b.WriteString(m.renderTool(tc))
		b.WriteString("\n")
	}
	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	b.WriteString(lipgloss.NewStyle().Width(max(width-2, 10)).Render(t.Content))
	return b.String()
}

func (m Model) renderTool(tc session.ToolCallRecord) string {
	switch tc.Status {
	case session.ToolError:
		return m.styles.ToolFailed.Render(fmt.Sprintf("  [tool] %s failed", tc.Name))
	case session.ToolSuccess:
		return m.styles.Tool.Render(fmt.Sprintf("  [tool] %s done", tc.Name))
	default:
		return m.styles.Tool.Render(fmt.Sprintf("  [tool] %s...", tc.Name))
	}
}

func (m Model) renderSources(sources []session.SourceRecord) string {
	refs := make([]string, 0, len(sources))
	for _, s := range sources {
		if s.OriginRef != "" {
			refs = append(refs, s.OriginRef)
		}
	}
	line := fmt.Sprintf("  sources (%d)", len(sources))
	if len(refs) > 0 {
		line += ": " + strings.Join(refs, ", ")
	}
	return m.styles.Sources.Render(line)
}

func (m Model) renderTabs() string {
	tabs := make([]string, 0, len(m.agents))
	for _, a := range m.agents {
		label := string(a)
		if m.busy[a] {
			label += " " + m.styles.BusyMark.Render("*")
		}
		if a == m.selected {
			tabs = append(tabs, m.styles.ActiveTab.Render(label))
		} else {
			tabs = append(tabs, m.styles.Tab.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

// View renders the screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Starting..."
	}

	var b strings.Builder
	b.WriteString(m.renderTabs())
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	status := m.notice
	if n := len(m.attachments[m.selected]); n > 0 {
		status = strings.TrimSpace(fmt.Sprintf("%s  %s", status, m.styles.Attachments.Render(fmt.Sprintf("[%d attached]", n))))
	}
	b.WriteString(m.styles.Notice.Render(status))
	b.WriteString("\n")

	b.WriteString(m.styles.Prompt.Render(string(m.selected) + "> "))
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.styles.Help.Render("enter send | tab switch agent | ctrl+x cancel | pgup/pgdn scroll | ctrl+c quit"))

	return m.styles.App.Render(b.String())
}
