package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jordanhubbard/gauntlet/internal/gauntlet"
	"github.com/jordanhubbard/gauntlet/pkg/models"
)

// Exit codes for the synchronous pipeline errors.
const (
	exitError             = 1
	exitUsage             = 2
	exitConcurrent        = 3
	exitPersistenceFailed = 4
)

func exitCode(err error) int {
	switch {
	case errors.Is(err, gauntlet.ErrUnknownCategory), errors.Is(err, gauntlet.ErrInsufficientParticipants):
		return exitUsage
	case errors.Is(err, gauntlet.ErrConcurrentExecution):
		return exitConcurrent
	case errors.Is(err, gauntlet.ErrPersistenceFailure):
		return exitPersistenceFailed
	default:
		return exitError
	}
}

func newRunCommand() *cobra.Command {
	var (
		category string
		agents   []string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one test for one agent or a group",
		Example: `  gauntlet run --category coding --agent alice
  gauntlet run --category collaboration --agent alice --agent bob`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.engine.GenerateAndRun(cmd.Context(), models.Category(category), agents)
			if summary != nil {
				if perr := printJSON(cmd.OutOrStdout(), summary); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&category, "category", string(models.CategoryCoding), "Test category")
	cmd.Flags().StringSliceVarP(&agents, "agent", "a", nil, "Agent id (repeat for group tests)")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func newProfileCommand() *cobra.Command {
	var records int
	cmd := &cobra.Command{
		Use:   "profile <agent_id>",
		Short: "Show an agent's learning profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.engine.GetProfile(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("agent %s: %w", args[0], err)
			}
			if records <= 0 {
				return printJSON(cmd.OutOrStdout(), p)
			}
			recs, err := a.engine.Records(cmd.Context(), args[0], records)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"profile": p,
				"records": recs,
			})
		},
	}
	cmd.Flags().IntVar(&records, "records", 0, "Also show the newest N archived executions")
	return cmd
}

func newAnalyticsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "analytics",
		Short: "Summarize every agent's progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.engine.Analytics(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}
