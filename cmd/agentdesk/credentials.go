// ABOUTME: credentials subcommand: shows or sets an agent's backend credentials
// ABOUTME: Values are read line by line from stdin

package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/agentdesk/internal/auth"
	"github.com/2389/agentdesk/internal/credentials"
	"github.com/2389/agentdesk/internal/logging"
	"github.com/2389/agentdesk/internal/session"
)

func newCredentialsCmd(opts *rootOptions) *cobra.Command {
	var set bool

	cmd := &cobra.Command{
		Use:   "credentials <agent>",
		Short: "Show or set the credentials an agent needs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, err := session.ParseAgent(args[0])
			if err != nil {
				return err
			}

			cfg := opts.cfg
			logger, closeLog, err := logging.Open(cfg.Logging, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLog()

			tokens := auth.NewSource(cfg.Backend.Token, cfg.Backend.TokenFile, logger)
			client := credentials.NewClient(cfg.Backend.URL, nil, tokens, logger)

			ctx := cmd.Context()
			st, err := client.Check(ctx, string(agent))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !set {
				if st.Configured {
					color.New(color.FgGreen).Fprintf(out, "%s: configured\n", agent)
				} else {
					color.New(color.FgYellow).Fprintf(out, "%s: not configured\n", agent)
				}
				for _, f := range st.Fields {
					fmt.Fprintf(out, "  %s (%s)\n", f.Label, f.Name)
				}
				return nil
			}

			values, err := readCredentialValues(st.Fields, cmd.InOrStdin(), out)
			if err != nil {
				return err
			}
			if err := client.Submit(ctx, string(agent), values); err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(out, "Credentials for %s saved\n", agent)
			return nil
		},
	}

	cmd.Flags().BoolVar(&set, "set", false, "prompt for and store new values")
	return cmd
}

func readCredentialValues(fields []credentials.Field, in io.Reader, out io.Writer) (map[string]string, error) {
	if len(fields) == 0 {
		fields = []credentials.Field{{Name: "api_key", Label: "API key", Secret: true}}
	}

	scanner := bufio.NewScanner(in)
	values := make(map[string]string, len(fields))
	for _, f := range fields {
		label := f.Label
		if label == "" {
			label = f.Name
		}
		fmt.Fprintf(out, "%s: ", label)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, fmt.Errorf("reading %s: %w", f.Name, err)
			}
			return nil, fmt.Errorf("no value for %s", f.Name)
		}
		values[f.Name] = strings.TrimSpace(scanner.Text())
	}
	return values, nil
}
