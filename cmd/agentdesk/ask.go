// ABOUTME: ask subcommand: one-shot question to a single agent
// ABOUTME: Prints tool activity to stderr while streaming and the final answer to stdout

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/agentdesk/internal/filectx"
	"github.com/2389/agentdesk/internal/session"
	"github.com/2389/agentdesk/internal/stream"
)

func newAskCmd(opts *rootOptions) *cobra.Command {
	var (
		agentName      string
		files          []string
		conversationID string
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one agent a single question",
		Long: `Ask one agent a single question and print its answer.

Use "-" as the question to read it from stdin. Attach files or web pages
with --file; they are extracted by the backend and sent as context.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question, err := readQuestion(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			if agentName == "" {
				agentName = opts.cfg.Agents.Default
			}
			agent, err := session.ParseAgent(agentName)
			if err != nil {
				return err
			}

			sink := &artifactCollector{}
			a, err := newApp(opts.cfg, appOptions{logOut: cmd.ErrOrStderr(), artifacts: sink})
			if err != nil {
				return err
			}
			defer func() { _ = a.shutdown() }()

			return ask(cmd.Context(), a, askRequest{
				agent:          agent,
				question:       question,
				files:          files,
				conversationID: conversationID,
			}, sink, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&agentName, "agent", "a", "", "agent to ask (default agents.default)")
	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "file or URL to attach (repeatable)")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "append to an existing conversation")
	return cmd
}

type askRequest struct {
	agent          session.Agent
	question       string
	files          []string
	conversationID string
}

func ask(ctx context.Context, a *app, req askRequest, sink *artifactCollector, stdout, stderr io.Writer) error {
	prompts := make(chan session.CredentialPrompt, 1)
	a.prompts.set(func(p session.CredentialPrompt) {
		select {
		case prompts <- p:
		default:
		}
	})

	fileContext, err := extractAll(ctx, a.extractor, req.files)
	if err != nil {
		return err
	}

	if req.conversationID != "" {
		a.registry.Mutate(req.agent, func(s *session.Session) {
			s.ConversationID = req.conversationID
		})
	}
	a.registry.Select(req.agent)

	snapshots, subID := a.registry.Projector().Subscribe(ctx)
	defer a.registry.Projector().Unsubscribe(subID)

	outcomes, ok := a.registry.Submit(ctx, req.agent, session.Task{Text: req.question, FileContext: fileContext})
	if !ok {
		return fmt.Errorf("agent %s did not accept the task", req.agent)
	}

	progress := newProgressPrinter(stderr)
	var outcome session.Outcome
wait:
	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				snapshots = nil
				continue
			}
			progress.show(snap)
		case outcome = <-outcomes:
			break wait
		}
	}

	switch outcome.Phase {
	case session.PhaseCompleted:
		fmt.Fprintln(stdout, strings.TrimSpace(outcome.Turn.Content))
		printSources(stderr, outcome.Turn.Sources)
		sink.print(stdout)
		if id := a.registry.Session(req.agent).ConversationID; id != "" {
			color.New(color.Faint).Fprintf(stderr, "conversation %s\n", id)
		}
		return nil
	case session.PhaseFailed:
		color.New(color.FgRed).Fprintln(stderr, outcome.Turn.Content)
		if outcome.Err != nil {
			return outcome.Err
		}
		return errors.New(outcome.Turn.Error)
	case session.PhaseCredentialsRequired:
		msg := ""
		select {
		case p := <-prompts:
			msg = p.Message
		default:
		}
		return fmt.Errorf("%s needs credentials (%s); run: agentdesk credentials %s --set", req.agent, msg, req.agent)
	default:
		return context.Canceled
	}
}

func readQuestion(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading question: %w", err)
		}
		args = []string{string(data)}
	}
	q := strings.TrimSpace(strings.Join(args, " "))
	if q == "" {
		return "", errors.New("question is empty")
	}
	return q, nil
}

type extractor interface {
	ExtractFile(ctx context.Context, path string) (*filectx.Extract, error)
	ExtractURL(ctx context.Context, rawURL string) (*filectx.Extract, error)
}

func extractAll(ctx context.Context, ex extractor, refs []string) (string, error) {
	extracts := make([]*filectx.Extract, 0, len(refs))
	for _, ref := range refs {
		var (
			ext *filectx.Extract
			err error
		)
		if filectx.IsURL(ref) {
			ext, err = ex.ExtractURL(ctx, ref)
		} else {
			ext, err = ex.ExtractFile(ctx, ref)
		}
		if err != nil {
			return "", err
		}
		extracts = append(extracts, ext)
	}
	return filectx.Merge(extracts...), nil
}

// progressPrinter echoes tool calls and status lines as snapshots arrive.
// Snapshots coalesce, so short-lived status lines can be skipped.
type progressPrinter struct {
	out    io.Writer
	tools  int
	seen   map[string]bool
	dim    *color.Color
	yellow *color.Color
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{
		out:    out,
		seen:   make(map[string]bool),
		dim:    color.New(color.Faint, color.Italic),
		yellow: color.New(color.FgYellow),
	}
}

func (p *progressPrinter) show(snap session.Snapshot) {
	for _, t := range snap.Turns {
		if t.Role == session.RoleStatus && !p.seen[t.ID] {
			p.seen[t.ID] = true
			p.dim.Fprintf(p.out, "%s\n", t.Content)
		}
	}
	if snap.InFlight == nil {
		return
	}
	for ; p.tools < len(snap.InFlight.ToolCalls); p.tools++ {
		p.yellow.Fprintf(p.out, "[tool: %s]\n", snap.InFlight.ToolCalls[p.tools].Name)
	}
}

func printSources(w io.Writer, sources []session.SourceRecord) {
	if len(sources) == 0 {
		return
	}
	green := color.New(color.FgGreen)
	green.Fprintf(w, "\nSources:\n")
	for _, s := range sources {
		ref := s.OriginRef
		if ref == "" {
			ref = truncate(s.Content, 60)
		}
		fmt.Fprintf(w, "  - %s (%.2f)\n", ref, s.RelevanceScore)
	}
}

// artifactCollector keeps artifacts produced during ask for printing after
// the answer.
type artifactCollector struct {
	mu        sync.Mutex
	artifacts []stream.Artifact
}

// PutArtifact implements session.ArtifactSink.
func (c *artifactCollector) PutArtifact(_ string, artifact stream.Artifact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.artifacts = append(c.artifacts, artifact)
}

func (c *artifactCollector) print(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cyan := color.New(color.FgCyan)
	for _, art := range c.artifacts {
		title := art.Title
		if title == "" {
			title = art.ID
		}
		cyan.Fprintf(w, "\n[%s] %s\n", art.Type, title)
		fmt.Fprintf(w, "```%s\n%s\n```\n", art.Language, strings.TrimRight(art.Content, "\n"))
	}
}

// truncate shortens a string to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= maxLen {
		return string(r)
	}
	return string(r[:maxLen-3]) + "..."
}
