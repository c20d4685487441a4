// ABOUTME: export subcommand: writes a recorded conversation as HTML or Markdown
// ABOUTME: Format follows --format, or the output file's extension

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389/agentdesk/internal/store"
	"github.com/2389/agentdesk/internal/transcript"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export <conversation-id>",
		Short: "Export a conversation transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			render, err := transcript.Format(exportFormat(format, output))
			if err != nil {
				return err
			}

			st, done, err := openHistoryStore(opts.cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer done()

			ctx := cmd.Context()
			conv, err := st.GetConversation(ctx, args[0])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("conversation %s not found", args[0])
			}
			if err != nil {
				return err
			}
			msgs, err := st.GetMessages(ctx, conv.ID, 0)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}
			return render(w, conv, msgs)
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "html or md (default from --output extension, else md)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func exportFormat(format, output string) string {
	if format != "" {
		return format
	}
	switch strings.ToLower(filepath.Ext(output)) {
	case ".html", ".htm":
		return "html"
	default:
		return "md"
	}
}
