package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/agent"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/conversation"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/domain"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/workout"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			MarginBottom(1)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true)

	contentStyle = lipgloss.NewStyle().
			PaddingLeft(2)

	stepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			PaddingLeft(2)

	artifactStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			PaddingLeft(2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

func newReplayCmd() *cobra.Command {
	var format, prompt string

	cmd := &cobra.Command{
		Use:   "replay <events.jsonl>",
		Short: "Replay a recorded agent event log through the conversation",
		Long: `Sends one user message and answers it with the events in the file, one
JSON envelope per line, then prints the resulting session state.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err != nil {
				return fmt.Errorf("failed to open event log: %w", err)
			}

			conv := conversation.New(agent.ReplaySource(args[0]), conversation.Options{Logger: slog.Default()})
			defer conv.Close()

			if err := conv.Send(cmd.Context(), prompt); err != nil {
				return fmt.Errorf("failed to start replay: %w", err)
			}
			conv.Wait()

			return writeState(cmd.OutOrStdout(), format, conv.Snapshot())
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text, json, yaml)")
	cmd.Flags().StringVar(&prompt, "prompt", "(replayed turn)", "User message the log answers")
	return cmd
}

func writeState(w io.Writer, format string, st domain.SessionState) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(st); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return enc.Close()
	case "text":
		_, err := io.WriteString(w, renderState(st))
		return err
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json, yaml)", format)
	}
}

func renderState(st domain.SessionState) string {
	var b strings.Builder
	session := st.SessionID
	if session == "" {
		session = "(none)"
	}
	b.WriteString(headerStyle.Render(fmt.Sprintf("Session %s [%s]", session, st.Phase)))
	b.WriteString("\n")

	for _, m := range st.Messages {
		if m.Role == domain.RoleUser {
			b.WriteString(userStyle.Render("You"))
		} else {
			b.WriteString(assistantStyle.Render("Trainer"))
		}
		b.WriteString("\n")

		for _, s := range m.Steps {
			line := fmt.Sprintf("[%s] %s", s.Status, s.Tool)
			if s.Details != "" {
				line += ": " + s.Details
			}
			b.WriteString(stepStyle.Render(line))
			b.WriteString("\n")
		}
		if m.Content != "" {
			b.WriteString(contentStyle.Render(m.Content))
			b.WriteString("\n")
		}
		if m.Question != nil {
			b.WriteString(contentStyle.Render(m.Question.Text))
			b.WriteString("\n")
			for i, opt := range m.Question.Options {
				b.WriteString(contentStyle.Render(fmt.Sprintf("%d. %s", i+1, opt)))
				b.WriteString("\n")
			}
		}
		if m.Artifact != nil {
			b.WriteString(renderArtifact(*m.Artifact))
		}
		b.WriteString("\n")
	}

	if st.ErrorMessage != "" {
		b.WriteString(errorStyle.Render("Error: " + st.ErrorMessage))
		b.WriteString("\n")
	}
	return b.String()
}

func renderArtifact(a workout.Artifact) string {
	var b strings.Builder
	title := "Workout"
	if a.Summary != nil && a.Summary.Title != "" {
		title = a.Summary.Title
	}
	b.WriteString(artifactStyle.Render(fmt.Sprintf("%s (%d exercises, artifact %s)", title, len(a.Exercises), a.ArtifactID)))
	b.WriteString("\n")
	for _, ex := range a.Exercises {
		b.WriteString(artifactStyle.Render(fmt.Sprintf("  %s: %s", ex.Base().Name, workout.Describe(ex))))
		b.WriteString("\n")
	}
	return b.String()
}
