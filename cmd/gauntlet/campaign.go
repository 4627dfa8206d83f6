package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jordanhubbard/gauntlet/internal/logging"
	"github.com/jordanhubbard/gauntlet/internal/temporal"
	"github.com/jordanhubbard/gauntlet/internal/temporal/workflows"
	"github.com/jordanhubbard/gauntlet/pkg/config"
)

func newCampaignCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaign",
		Short: "Manage test campaigns (requires Temporal and a running 'gauntlet serve')",
	}
	cmd.AddCommand(newCampaignStartCommand())
	cmd.AddCommand(newCampaignStatusCommand())
	cmd.AddCommand(newCampaignCancelCommand())
	return cmd
}

// openManager connects to Temporal without registering a worker.
func openManager(cmd *cobra.Command) (*temporal.Manager, *config.Config, func(), error) {
	explicit := cmd.Flags().Changed("config")
	cfg, err := loadConfig(configPath, explicit)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, nil, err
	}
	mgr, err := temporal.NewManager(cmd.Context(), cfg.Temporal, nil, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return mgr, cfg, func() {
		mgr.Stop()
		_ = logger.Sync()
	}, nil
}

func newCampaignStartCommand() *cobra.Command {
	var (
		id         string
		cohorts    []string
		categories []string
		rounds     int
		interval   time.Duration
		timeout    time.Duration
		wait       bool
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a campaign",
		Example: `  gauntlet campaign start --cohort alice --cohort bob,carol --rounds 5 --interval 1h
  gauntlet campaign start --cohort alice --category security --category debugging --wait`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			input := workflows.CampaignInput{
				Categories:  categories,
				Rounds:      rounds,
				Interval:    interval,
				TestTimeout: timeout,
			}
			for _, c := range cohorts {
				var ids []string
				for _, id := range strings.Split(c, ",") {
					if id = strings.TrimSpace(id); id != "" {
						ids = append(ids, id)
					}
				}
				if len(ids) > 0 {
					input.Cohorts = append(input.Cohorts, ids)
				}
			}
			if len(input.Cohorts) == 0 {
				return fmt.Errorf("at least one --cohort is required")
			}

			mgr, cfg, done, err := openManager(cmd)
			if err != nil {
				return err
			}
			defer done()
			input.BudgetScale = cfg.Engine.BudgetScale

			workflowID, err := mgr.StartCampaign(cmd.Context(), id, input)
			if err != nil {
				return err
			}
			if !wait {
				return printJSON(cmd.OutOrStdout(), map[string]string{"workflow_id": workflowID})
			}
			progress, err := mgr.WaitCampaign(cmd.Context(), workflowID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), progress)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Campaign id (generated when empty)")
	cmd.Flags().StringArrayVar(&cohorts, "cohort", nil, "Comma-separated agent ids tested together (repeatable)")
	cmd.Flags().StringSliceVar(&categories, "category", nil, "Categories to rotate through (default all)")
	cmd.Flags().IntVar(&rounds, "rounds", 1, "Number of rounds")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Pause between rounds")
	cmd.Flags().DurationVar(&timeout, "test-timeout", 0, "Upper bound for one test (default: largest scenario budget plus 30m)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the campaign to finish and print its result")
	return cmd
}

func newCampaignStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <workflow_id>",
		Short: "Show the progress of a running campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _, done, err := openManager(cmd)
			if err != nil {
				return err
			}
			defer done()

			progress, err := mgr.CampaignProgress(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), progress)
		},
	}
}

func newCampaignCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <workflow_id>",
		Short: "Cancel a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _, done, err := openManager(cmd)
			if err != nil {
				return err
			}
			defer done()
			return mgr.CancelCampaign(cmd.Context(), args[0])
		},
	}
}
