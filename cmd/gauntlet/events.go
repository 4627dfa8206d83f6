package main

import (
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/jordanhubbard/gauntlet/internal/logging"
	"github.com/jordanhubbard/gauntlet/internal/messagebus"
	"github.com/jordanhubbard/gauntlet/pkg/messages"
)

// newEventsCommand tails tier advances, level ups and finished executions
// from the JetStream stream, one JSON object per line.
func newEventsCommand() *cobra.Command {
	var eventType string
	cmd := &cobra.Command{
		Use:     "events",
		Short:   "Stream engine events from NATS",
		Example: "  gauntlet events --type agent.advanced | jq .",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			if !cfg.NATS.Enabled {
				return errors.New("nats.enabled must be true to stream events")
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			bus, err := messagebus.NewNatsMessageBus(messagebus.ConfigFrom(cfg.NATS, logger))
			if err != nil {
				return err
			}
			defer bus.Close()

			if err := bus.SubscribeEvents(eventType, eventPrinter(cmd.OutOrStdout())); err != nil {
				return err
			}
			<-cmd.Context().Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&eventType, "type", "*", "Event type to follow, e.g. agent.advanced")
	return cmd
}

func eventPrinter(w io.Writer) func(*messages.EventMessage) {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	return func(ev *messages.EventMessage) {
		mu.Lock()
		defer mu.Unlock()
		_ = enc.Encode(ev)
	}
}
