// ABOUTME: chat subcommand: full-screen multi-agent chat
// ABOUTME: Runs the Bubble Tea UI on top of the session registry's projector

package main

import (
	"errors"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/2389/agentdesk/internal/session"
	"github.com/2389/agentdesk/internal/tui"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive multi-agent chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *opts.cfg
			if cfg.Logging.File == "" {
				cfg.Logging.File = defaultLogFile()
			}

			a, err := newApp(&cfg, appOptions{logOut: io.Discard})
			if err != nil {
				return err
			}

			agents, err := a.enabledAgents()
			if err != nil {
				_ = a.shutdown()
				return err
			}

			ctx := cmd.Context()
			snapshots, _ := a.registry.Projector().Subscribe(ctx)
			model := tui.New(ctx, tui.Options{
				Engine:      a.registry,
				Snapshots:   snapshots,
				Agents:      agents,
				Extractor:   a.extractor,
				Credentials: a.credentials,
				Logger:      a.logger,
			})

			p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
			a.prompts.set(func(prompt session.CredentialPrompt) {
				// Called from a stream goroutine; Send blocks until the UI reads it
				go p.Send(tui.CredentialPromptMsg(prompt))
			})

			_, runErr := p.Run()
			shutdownErr := a.shutdown()
			if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
				return runErr
			}
			return shutdownErr
		},
	}
}
