// ABOUTME: lipgloss styles for the chat TUI
// ABOUTME: One Styles value is built at startup and shared by all render helpers

package tui

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles used by the chat view.
type Styles struct {
	App         lipgloss.Style
	Tab         lipgloss.Style
	ActiveTab   lipgloss.Style
	BusyMark    lipgloss.Style
	User        lipgloss.Style
	Assistant   lipgloss.Style
	Status      lipgloss.Style
	Tool        lipgloss.Style
	ToolFailed  lipgloss.Style
	Sources     lipgloss.Style
	Error       lipgloss.Style
	Notice      lipgloss.Style
	Prompt      lipgloss.Style
	Help        lipgloss.Style
	Attachments lipgloss.Style
}

// DefaultStyles returns the default palette.
func DefaultStyles() Styles {
	return Styles{
		App:         lipgloss.NewStyle().Padding(0, 1),
		Tab:         lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("245")),
		ActiveTab:   lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(lipgloss.Color("#F9FAFB")).Background(lipgloss.Color("#7C3AED")),
		BusyMark:    lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
		User:        lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4")).Bold(true),
		Assistant:   lipgloss.NewStyle().Foreground(lipgloss.Color("#F9FAFB")),
		Status:      lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Italic(true),
		Tool:        lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
		ToolFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")),
		Sources:     lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")),
		Error:       lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")),
		Notice:      lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Prompt:      lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true),
		Help:        lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Attachments: lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")),
	}
}
