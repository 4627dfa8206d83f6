package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/jordanhubbard/gauntlet/internal/provider"
)

func newProvidersCommand() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Check that every configured provider serves its model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			providers, err := provider.NewRegistryFromConfig(cfg.Providers)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return printJSON(cmd.OutOrStdout(), providers.Check(ctx))
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall time allowed for the check")
	return cmd
}
