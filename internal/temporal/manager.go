// Package temporal runs long test campaigns as Temporal workflows.
package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/jordanhubbard/gauntlet/internal/temporal/activities"
	temporalclient "github.com/jordanhubbard/gauntlet/internal/temporal/client"
	"github.com/jordanhubbard/gauntlet/internal/temporal/workflows"
	"github.com/jordanhubbard/gauntlet/pkg/config"
)

// ErrCampaignRunning is returned when a campaign with the same id is already running.
var ErrCampaignRunning = errors.New("campaign already running")

// Manager manages Temporal integration for the gauntlet
type Manager struct {
	client *temporalclient.Client
	worker worker.Worker
	config config.TemporalConfig
	logger *zap.Logger
}

// NewManager connects to Temporal and registers the campaign workflow. When
// runner is nil no activities are registered and the manager can only start
// and inspect campaigns.
func NewManager(ctx context.Context, cfg config.TemporalConfig, runner activities.Runner, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := temporalclient.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporal client: %w", err)
	}

	m := &Manager{client: c, config: cfg, logger: logger}
	if runner != nil {
		w := worker.New(c.GetClient(), c.GetTaskQueue(), worker.Options{})
		w.RegisterWorkflow(workflows.CampaignWorkflow)
		w.RegisterActivity(activities.NewActivities(runner))
		m.worker = w
		logger.Info("temporal worker registered", zap.String("task_queue", cfg.TaskQueue))
	}
	return m, nil
}

// Start starts the worker. It is a no-op for a manager without a runner.
func (m *Manager) Start() error {
	if m.worker == nil {
		return nil
	}
	if err := m.worker.Start(); err != nil {
		return fmt.Errorf("failed to start temporal worker: %w", err)
	}
	m.logger.Info("temporal worker started")
	return nil
}

// Stop stops the worker and closes the client.
func (m *Manager) Stop() {
	if m.worker != nil {
		m.worker.Stop()
	}
	if m.client != nil {
		m.client.Close()
	}
	m.logger.Info("temporal manager stopped")
}

// StartCampaign starts a campaign workflow and returns its workflow id.
// An empty id gets a generated one. The workflow timeout is the configured
// one or the campaign's MaxDuration, whichever is longer.
func (m *Manager) StartCampaign(ctx context.Context, id string, input workflows.CampaignInput) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	workflowID := "campaign-" + id
	opts := client.StartWorkflowOptions{
		ID:                       workflowID,
		TaskQueue:                m.client.GetTaskQueue(),
		WorkflowExecutionTimeout: campaignTimeout(m.config.WorkflowExecutionTimeout, input),
	}

	run, err := m.client.ExecuteWorkflow(ctx, opts, workflows.CampaignWorkflow, input)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return workflowID, fmt.Errorf("%w: %s", ErrCampaignRunning, workflowID)
		}
		return "", fmt.Errorf("failed to start campaign workflow: %w", err)
	}

	m.logger.Info("campaign started",
		zap.String("workflow_id", run.GetID()),
		zap.String("run_id", run.GetRunID()),
		zap.Int("cohorts", len(input.Cohorts)),
		zap.Int("rounds", input.Rounds))
	return run.GetID(), nil
}

func campaignTimeout(configured time.Duration, input workflows.CampaignInput) time.Duration {
	return max(configured, input.MaxDuration())
}

// CampaignProgress queries a running campaign.
func (m *Manager) CampaignProgress(ctx context.Context, workflowID string) (*workflows.CampaignProgress, error) {
	v, err := m.client.QueryWorkflow(ctx, workflowID, "", workflows.QueryProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaign %s: %w", workflowID, err)
	}
	var p workflows.CampaignProgress
	if err := v.Get(&p); err != nil {
		return nil, fmt.Errorf("failed to decode campaign progress: %w", err)
	}
	return &p, nil
}

// WaitCampaign blocks until the campaign finishes and returns its final progress.
func (m *Manager) WaitCampaign(ctx context.Context, workflowID string) (*workflows.CampaignProgress, error) {
	var p workflows.CampaignProgress
	if err := m.client.GetWorkflow(ctx, workflowID, "").Get(ctx, &p); err != nil {
		return nil, fmt.Errorf("campaign %s: %w", workflowID, err)
	}
	return &p, nil
}

// CancelCampaign requests cancellation of a campaign.
func (m *Manager) CancelCampaign(ctx context.Context, workflowID string) error {
	if err := m.client.CancelWorkflow(ctx, workflowID, ""); err != nil {
		return fmt.Errorf("failed to cancel campaign %s: %w", workflowID, err)
	}
	return nil
}
