package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jordanhubbard/gauntlet/internal/dispatch"
	"github.com/jordanhubbard/gauntlet/internal/logging"
	"github.com/jordanhubbard/gauntlet/internal/messagebus"
	"github.com/jordanhubbard/gauntlet/internal/provider"
	"github.com/jordanhubbard/gauntlet/pkg/messages"
	"github.com/jordanhubbard/gauntlet/pkg/models"
)

// newAgentCommand runs a remote agent that answers prompts over NATS. It is
// the counterpart of the "nats" responder kind.
func newAgentCommand() *cobra.Command {
	var (
		reply      string
		providerID string
	)
	cmd := &cobra.Command{
		Use:   "agent <agent_id>",
		Short: "Answer test prompts for an agent over NATS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			if !cfg.NATS.Enabled {
				return errors.New("nats.enabled must be true to serve an agent")
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			var resp dispatch.Responder = dispatch.StaticResponder{Reply: reply}
			if providerID != "" {
				providers, err := provider.NewRegistryFromConfig(cfg.Providers)
				if err != nil {
					return err
				}
				p, err := providers.Get(providerID)
				if err != nil {
					return err
				}
				resp = dispatch.NewProviderResponder(p)
			}

			bus, err := messagebus.NewNatsMessageBus(messagebus.ConfigFrom(cfg.NATS, logger))
			if err != nil {
				return err
			}
			defer bus.Close()

			agentID := args[0]
			sub, err := messagebus.ServeAgent(bus.Conn(), agentID, agentHandler(agentID, resp), logger)
			if err != nil {
				return fmt.Errorf("failed to serve agent %s: %w", agentID, err)
			}
			defer func() { _ = sub.Unsubscribe() }()

			logger.Info("agent serving", zap.String("agent_id", agentID), zap.String("subject", messagebus.AgentSubject(agentID)))
			<-cmd.Context().Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&reply, "reply", "acknowledged", "Fixed answer when no provider is set")
	cmd.Flags().StringVar(&providerID, "provider", "", "Answer through this configured provider")
	return cmd
}

func agentHandler(agentID string, resp dispatch.Responder) messagebus.AgentHandler {
	return func(ctx context.Context, req *messages.RespondRequest) (string, error) {
		return resp.Respond(ctx, agentID, req.Prompt, dispatch.RespondContext{
			ScenarioID:  req.ScenarioID,
			ExecutionID: req.ExecutionID,
			Category:    models.Category(req.Category),
			Tier:        models.Tier(req.Tier),
			Multiplier:  models.Multiplier(req.Multiplier),
			Phase:       models.Phase(req.Phase),
			Peers:       req.Peers,
			Deadline:    req.Deadline,
		})
	}
}
