// ABOUTME: version subcommand
// ABOUTME: Prints build metadata set through -ldflags

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			label := color.New(color.FgHiBlack)
			out := cmd.OutOrStdout()
			color.New(color.FgMagenta, color.Bold).Fprintln(out, "agentdesk")
			fmt.Fprintf(out, "%s %s\n", label.Sprint("Version:"), version)
			fmt.Fprintf(out, "%s %s\n", label.Sprint("Commit: "), gitCommit)
			fmt.Fprintf(out, "%s %s\n", label.Sprint("Built:  "), buildDate)
		},
	}
}
