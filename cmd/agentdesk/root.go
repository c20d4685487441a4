// ABOUTME: Root cobra command with the flags shared by every subcommand
// ABOUTME: Loads .env files and the YAML/TOML config before any subcommand runs

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/agentdesk/internal/config"
)

type rootOptions struct {
	configPath string
	backendURL string
	envFiles   []string
	verbose    bool
	noColor    bool

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "agentdesk",
		Short: "Chat with multiple reasoning agents from the terminal",
		Long: `agentdesk talks to a multi-agent reasoning backend. Each agent keeps its
own conversation; switch between them while they keep streaming.

  agentdesk chat                       interactive multi-agent chat
  agentdesk ask -a kb "how do I..."    one-shot question
  agentdesk history                    list recorded conversations
  agentdesk export <id> -o out.html    export a transcript`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $AGENTDESK_CONFIG or ~/.config/agentdesk/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.backendURL, "backend", "", "agent backend URL (overrides backend.url)")
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, ".env files to load (default ./.env)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	cmd.AddCommand(
		newChatCmd(opts),
		newAskCmd(opts),
		newHistoryCmd(opts),
		newExportCmd(opts),
		newCredentialsCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func (o *rootOptions) load() error {
	if o.noColor {
		color.NoColor = true
	}

	if err := config.LoadEnvFiles(o.envFiles...); err != nil {
		return err
	}

	path, explicit := config.ResolvePath(o.configPath)
	cfg, err := config.LoadOrDefault(path, explicit)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if o.backendURL != "" {
		cfg.Backend.URL = o.backendURL
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("--backend: %w", err)
		}
	}
	if o.verbose {
		cfg.Logging.Level = "debug"
	}

	o.cfg = cfg
	return nil
}
