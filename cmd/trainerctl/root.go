package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "trainerctl",
		Short: "Inspect trainer conversations and workouts",
		Long: `Operator tooling for the personal trainer service.

  trainerctl replay turn.jsonl           # Fold a recorded event log into session state
  trainerctl validate workout.json       # Check a workout payload
  trainerctl schema                      # Print the workout JSON schema`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(newReplayCmd(), newValidateCmd(), newSchemaCmd())
	return root
}
