package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jordanhubbard/gauntlet/internal/telemetry"
)

const version = "0.1.0"

var configPath string

func main() {
	telemetry.Version = version

	rootCmd := &cobra.Command{
		Use:   "gauntlet",
		Short: "Gauntlet - adaptive skill tests for autonomous agents",
		Long: `gauntlet picks a difficulty for each agent, generates a scenario, dispatches it,
scores the answers and records what the agent learned.
All output is structured JSON (pipe through jq for human-readable formatting).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to configuration file")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newProfileCommand())
	rootCmd.AddCommand(newAnalyticsCommand())
	rootCmd.AddCommand(newCampaignCommand())
	rootCmd.AddCommand(newAgentCommand())
	rootCmd.AddCommand(newEventsCommand())
	rootCmd.AddCommand(newProvidersCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(exitCode(err))
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("GAUNTLET_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

// openApp loads the config named by --config and wires the engine.
func openApp(cmd *cobra.Command) (*app, error) {
	explicit := cmd.Flags().Changed("config") || os.Getenv("GAUNTLET_CONFIG") != ""
	cfg, err := loadConfig(configPath, explicit)
	if err != nil {
		return nil, err
	}
	return newApp(cmd.Context(), cfg)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
