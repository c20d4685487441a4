// ABOUTME: Bubble Tea model for the multi-agent chat screen
// ABOUTME: Renders the selected agent's projected snapshot and drives submit, switch and cancel

package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389/agentdesk/internal/filectx"
	"github.com/2389/agentdesk/internal/session"
)

// Engine is the part of the session registry the TUI drives.
type Engine interface {
	Submit(ctx context.Context, agent session.Agent, task session.Task) (<-chan session.Outcome, bool)
	Cancel(agent session.Agent) bool
	Select(agent session.Agent)
	Selected() session.Agent
	Session(agent session.Agent) session.Snapshot
	ResolveCredentials(agent session.Agent, supplied bool)
}

// Extractor pulls text out of files and URLs for /attach.
type Extractor interface {
	ExtractFile(ctx context.Context, path string) (*filectx.Extract, error)
	ExtractURL(ctx context.Context, rawURL string) (*filectx.Extract, error)
}

// CredentialStore saves credentials collected after an interrupt.
type CredentialStore interface {
	Submit(ctx context.Context, agent string, values map[string]string) error
}

// Options configures the chat model.
type Options struct {
	Engine      Engine
	Snapshots   <-chan session.Snapshot
	Agents      []session.Agent
	Extractor   Extractor       // optional
	Credentials CredentialStore // optional
	Logger      *slog.Logger
}

// CredentialPromptMsg asks the model to collect credentials. Send it with
// tea.Program.Send from the registry's credential handler.
type CredentialPromptMsg session.CredentialPrompt

type snapshotMsg session.Snapshot

type outcomeMsg session.Outcome

type attachedMsg struct {
	agent   session.Agent
	ref     string
	extract *filectx.Extract
	err     error
}

type credentialsSavedMsg struct {
	prompt session.CredentialPrompt
	err    error
}

// Model is the chat screen.
type Model struct {
	ctx         context.Context
	engine      Engine
	snapshots   <-chan session.Snapshot
	agents      []session.Agent
	extractor   Extractor
	credentials CredentialStore
	logger      *slog.Logger

	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model
	styles   Styles

	selected    session.Agent
	snap        session.Snapshot
	busy        map[session.Agent]bool
	attachments map[session.Agent][]*filectx.Extract
	prompt      *session.CredentialPrompt
	notice      string

	width    int
	height   int
	ready    bool
	quitting bool
}

// New creates the chat model. Agents defaults to every known agent.
func New(ctx context.Context, opts Options) Model {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	agents := opts.Agents
	if len(agents) == 0 {
		agents = session.Agents
	}

	ti := textinput.New()
	ti.Placeholder = "Ask the agent... (/help for commands)"
	ti.Focus()
	ti.CharLimit = 4000
	ti.Width = 80

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = DefaultStyles().BusyMark

	// Letters belong to the input; only paging keys scroll the transcript
	vp := viewport.New(0, 0)
	vp.KeyMap = viewport.KeyMap{
		PageDown: key.NewBinding(key.WithKeys("pgdown")),
		PageUp:   key.NewBinding(key.WithKeys("pgup")),
	}

	selected := opts.Engine.Selected()
	return Model{
		ctx:         ctx,
		engine:      opts.Engine,
		snapshots:   opts.Snapshots,
		agents:      agents,
		extractor:   opts.Extractor,
		credentials: opts.Credentials,
		logger:      logger.With("component", "tui"),
		input:       ti,
		spinner:     s,
		viewport:    vp,
		styles:      DefaultStyles(),
		selected:    selected,
		snap:        opts.Engine.Session(selected),
		busy:        make(map[session.Agent]bool),
		attachments: make(map[session.Agent][]*filectx.Extract),
	}
}

// Init starts the cursor blink, the spinner and the snapshot subscription.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForSnapshot(m.snapshots))
}

func waitForSnapshot(ch <-chan session.Snapshot) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg(snap)
	}
}

func waitForOutcome(ch <-chan session.Outcome) tea.Cmd {
	return func() tea.Msg {
		o, ok := <-ch
		if !ok {
			return nil
		}
		return outcomeMsg(o)
	}
}

// Update handles input and engine messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "tab":
			return m.switchAgent(1), nil
		case "shift+tab":
			return m.switchAgent(-1), nil
		case "ctrl+x":
			if m.engine.Cancel(m.selected) {
				m.notice = fmt.Sprintf("cancelled %s", m.selected)
			}
			return m, nil
		case "esc":
			if m.prompt != nil {
				m.engine.ResolveCredentials(m.prompt.Agent, false)
				m.notice = fmt.Sprintf("skipped credentials for %s", m.prompt.Agent)
				m.endPrompt()
			}
			return m, nil
		case "enter":
			return m.submit()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(msg.Width-8, 10)
		m.viewport.Width = msg.Width - 2
		m.viewport.Height = max(msg.Height-headerLines-footerLines, 1)
		m.ready = true
		m.refresh()

	case snapshotMsg:
		// A publish for the previous agent can race a switch
		if msg.Agent == m.selected {
			m.snap = session.Snapshot(msg)
			m.busy[msg.Agent] = msg.Busy
			m.refresh()
		}
		return m, waitForSnapshot(m.snapshots)

	case outcomeMsg:
		m.busy[msg.Agent] = false
		switch msg.Phase {
		case session.PhaseFailed:
			if msg.Err != nil {
				m.notice = fmt.Sprintf("%s failed: %v", msg.Agent, msg.Err)
			} else {
				m.notice = fmt.Sprintf("%s failed", msg.Agent)
			}
		case session.PhaseCompleted:
			if msg.Agent != m.selected {
				m.notice = fmt.Sprintf("%s finished (tab to view)", msg.Agent)
			}
		}
		return m, nil

	case CredentialPromptMsg:
		return m.beginPrompt(session.CredentialPrompt(msg)), nil

	case credentialsSavedMsg:
		return m.credentialsSaved(msg)

	case attachedMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("attach %s: %v", msg.ref, msg.err)
			return m, nil
		}
		m.attachments[msg.agent] = append(m.attachments[msg.agent], msg.extract)
		m.notice = fmt.Sprintf("attached %s to %s", msg.extract.Label, msg.agent)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
		if m.snap.InFlight != nil {
			m.refresh()
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) switchAgent(delta int) Model {
	idx := 0
	for i, a := range m.agents {
		if a == m.selected {
			idx = i
			break
		}
	}
	idx = (idx + delta + len(m.agents)) % len(m.agents)

	m.selected = m.agents[idx]
	m.engine.Select(m.selected)
	m.snap = m.engine.Session(m.selected)
	m.notice = ""
	m.refresh()
	return m
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if m.prompt != nil {
		return m.submitCredentials(text)
	}
	if strings.HasPrefix(text, "/") {
		return m.command(text)
	}

	agent := m.selected
	task := session.Task{Text: text, FileContext: filectx.Merge(m.attachments[agent]...)}
	ch, ok := m.engine.Submit(m.ctx, agent, task)
	if !ok {
		m.notice = fmt.Sprintf("%s is still working, ctrl+x cancels", agent)
		return m, nil
	}

	m.input.SetValue("")
	delete(m.attachments, agent)
	m.busy[agent] = true
	m.notice = ""
	return m, waitForOutcome(ch)
}

func (m Model) command(text string) (tea.Model, tea.Cmd) {
	name, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)
	m.input.SetValue("")

	switch name {
	case "/quit", "/exit", "/q":
		m.quitting = true
		return m, tea.Quit
	case "/attach":
		if arg == "" {
			m.notice = "usage: /attach <file or url>"
			return m, nil
		}
		if m.extractor == nil {
			m.notice = "attachments are not available"
			return m, nil
		}
		m.notice = "extracting " + arg + "..."
		return m, m.attach(m.selected, arg)
	case "/detach":
		delete(m.attachments, m.selected)
		m.notice = "attachments cleared"
		return m, nil
	case "/help":
		m.notice = "/attach <file|url>  /detach  /quit   tab switches agent, ctrl+x cancels"
		return m, nil
	default:
		m.notice = "unknown command " + name
		return m, nil
	}
}

func (m Model) attach(agent session.Agent, ref string) tea.Cmd {
	ctx, ex := m.ctx, m.extractor
	return func() tea.Msg {
		var (
			ext *filectx.Extract
			err error
		)
		if filectx.IsURL(ref) {
			ext, err = ex.ExtractURL(ctx, ref)
		} else {
			ext, err = ex.ExtractFile(ctx, ref)
		}
		return attachedMsg{agent: agent, ref: ref, extract: ext, err: err}
	}
}

func (m Model) beginPrompt(p session.CredentialPrompt) Model {
	if m.credentials == nil {
		m.engine.ResolveCredentials(p.Agent, false)
		m.notice = fmt.Sprintf("%s needs credentials: %s", p.Agent, p.Message)
		return m
	}
	m.prompt = &p
	m.input.SetValue("")
	m.input.EchoMode = textinput.EchoPassword
	m.input.Placeholder = fmt.Sprintf("API key for %s (esc to skip)", p.Agent)
	m.notice = fmt.Sprintf("%s needs credentials: %s", p.Agent, p.Message)
	return m
}

func (m *Model) endPrompt() {
	m.prompt = nil
	m.input.SetValue("")
	m.input.EchoMode = textinput.EchoNormal
	m.input.Placeholder = "Ask the agent... (/help for commands)"
}

func (m Model) submitCredentials(value string) (tea.Model, tea.Cmd) {
	prompt := *m.prompt
	m.endPrompt()
	m.notice = "saving credentials..."

	ctx, store := m.ctx, m.credentials
	return m, func() tea.Msg {
		err := store.Submit(ctx, string(prompt.Agent), map[string]string{"api_key": value})
		return credentialsSavedMsg{prompt: prompt, err: err}
	}
}

func (m Model) credentialsSaved(msg credentialsSavedMsg) (tea.Model, tea.Cmd) {
	agent := msg.prompt.Agent
	if msg.err != nil {
		m.engine.ResolveCredentials(agent, false)
		m.notice = fmt.Sprintf("saving credentials for %s: %v", agent, msg.err)
		m.logger.Warn("credential submit failed", "agent", agent, "error", msg.err)
		return m, nil
	}

	m.engine.ResolveCredentials(agent, true)
	ch, ok := m.engine.Submit(m.ctx, agent, session.Task{Text: msg.prompt.Task, FileContext: msg.prompt.FileContext})
	if !ok {
		m.notice = fmt.Sprintf("credentials saved, %s is busy", agent)
		return m, nil
	}
	m.busy[agent] = true
	m.notice = fmt.Sprintf("credentials saved, retrying on %s", agent)
	return m, waitForOutcome(ch)
}
