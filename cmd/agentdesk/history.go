// ABOUTME: history subcommand: lists recorded conversations or prints one
// ABOUTME: Reads straight from the configured conversation store

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/agentdesk/internal/auth"
	"github.com/2389/agentdesk/internal/config"
	"github.com/2389/agentdesk/internal/logging"
	"github.com/2389/agentdesk/internal/store"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		agent string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history [conversation-id]",
		Short: "List recorded conversations, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, done, err := openHistoryStore(opts.cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer done()

			if len(args) == 1 {
				return showConversation(cmd.Context(), st, args[0], limit, cmd.OutOrStdout())
			}
			return listConversations(cmd.Context(), st, agent, limit, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&agent, "agent", "a", "", "only conversations with this agent")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum rows to show")
	return cmd
}

// openHistoryStore opens the conversation store without starting the engine.
func openHistoryStore(cfg *config.Config, logOut io.Writer) (store.Store, func(), error) {
	if cfg.Persistence.Backend == config.PersistenceNone {
		return nil, nil, errors.New("conversation history is disabled (persistence.backend is none)")
	}

	logger, closeLog, err := logging.Open(cfg.Logging, logOut)
	if err != nil {
		return nil, nil, err
	}
	tokens := auth.NewSource(cfg.Backend.Token, cfg.Backend.TokenFile, logger)

	st, err := openStore(cfg, tokens)
	if err != nil {
		_ = closeLog()
		return nil, nil, err
	}
	return st, func() {
		_ = st.Close()
		_ = closeLog()
	}, nil
}

func listConversations(ctx context.Context, st store.Store, agent string, limit int, w io.Writer) error {
	convs, err := st.ListConversations(ctx, agent, limit)
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		fmt.Fprintln(w, "No conversations recorded")
		return nil
	}

	cyan := color.New(color.FgCyan)
	dim := color.New(color.Faint)
	for _, c := range convs {
		fmt.Fprintf(w, "%s  %-8s %-50s %s\n",
			cyan.Sprint(c.ID),
			c.Agent,
			truncate(c.Title, 50),
			dim.Sprintf("%d msgs, %s", c.MessageCount, c.UpdatedAt.Local().Format("2006-01-02 15:04")))
	}
	return nil
}

func showConversation(ctx context.Context, st store.Store, id string, limit int, w io.Writer) error {
	conv, err := st.GetConversation(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("conversation %s not found", id)
	}
	if err != nil {
		return err
	}
	msgs, err := st.GetMessages(ctx, id, limit)
	if err != nil {
		return err
	}

	color.New(color.Bold).Fprintf(w, "%s\n", conv.Title)
	color.New(color.Faint).Fprintf(w, "%s · %s · %d messages\n", conv.Agent, conv.CreatedAt.Local().Format("2006-01-02 15:04"), conv.MessageCount)
	fmt.Fprintln(w, strings.Repeat("-", 60))

	blue := color.New(color.FgBlue)
	green := color.New(color.FgGreen)
	for _, m := range msgs {
		if m.Role == store.RoleUser {
			blue.Fprint(w, "→ ")
		} else {
			green.Fprint(w, "← ")
		}
		fmt.Fprintln(w, strings.TrimSpace(m.Content))
	}
	fmt.Fprintln(w, strings.Repeat("-", 60))
	return nil
}
