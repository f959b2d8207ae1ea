package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/stream"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/workout"
)

var validStyle = artifactStyle.UnsetPaddingLeft().Bold(true)

func newValidateCmd() *cobra.Command {
	var event string
	cmd := &cobra.Command{
		Use:   "validate <workout.json>",
		Short: "Validate a workout payload",
		Long: `Checks a WorkoutResponse document and lists every issue found. Use - to read stdin.

With --event, a valid document is printed as the messageWithArtifact stream
event the agent would send, carrying the given message text.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if cmd.Flags().Changed("event") {
				ev, err := stream.NewArtifactEvent(event, raw)
				if err != nil {
					return reportInvalid(out, err)
				}
				data, err := stream.Encode(ev)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			}

			resp, err := workout.Validate(raw)
			if err == nil {
				err = workout.ConformsToSchema(raw)
			}
			if err != nil {
				return reportInvalid(out, err)
			}

			fmt.Fprintln(out, validStyle.Render(fmt.Sprintf("valid: %d exercise(s)", len(resp.Exercises))))
			for _, ex := range resp.Exercises {
				fmt.Fprintln(out, contentStyle.Render(fmt.Sprintf("%d. %s: %s", ex.Base().Order, ex.Base().Name, workout.Describe(ex))))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&event, "event", "", "print the payload as a messageWithArtifact event with this message text")
	return cmd
}

// reportInvalid lists validation issues, or the schema mismatch, and returns
// the command error.
func reportInvalid(out io.Writer, err error) error {
	switch {
	case errors.Is(err, workout.ErrInvalidWorkout):
		issues := workout.Issues(err)
		fmt.Fprintln(out, errorStyle.Render(fmt.Sprintf("%d issue(s) found", len(issues))))
		for _, is := range issues {
			fmt.Fprintln(out, stepStyle.Render(is.String()))
		}
	case errors.Is(err, workout.ErrSchemaMismatch):
		fmt.Fprintln(out, errorStyle.Render(err.Error()))
	default:
		return err
	}
	return errors.New("workout is invalid")
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the workout JSON schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write(workout.JSONSchema())
			return err
		},
	}
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return raw, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return raw, nil
}
