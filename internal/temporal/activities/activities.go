package activities

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/jordanhubbard/gauntlet/internal/gauntlet"
	"github.com/jordanhubbard/gauntlet/pkg/models"
)

// Application error types reported by RunTestActivity.
const (
	ErrTypeUnknownCategory    = "UnknownCategory"
	ErrTypeInsufficient       = "InsufficientParticipants"
	ErrTypePersistenceFailure = "PersistenceFailure"
	ErrTypePipeline           = "PipelineError"
)

// Runner is the part of the engine the activities drive.
type Runner interface {
	GenerateAndRun(ctx context.Context, category models.Category, agentIDs []string) (*gauntlet.Summary, error)
}

// Activities provides Temporal activities for gauntlet campaigns
type Activities struct {
	runner Runner
}

// NewActivities creates a new activities instance
func NewActivities(runner Runner) *Activities {
	return &Activities{runner: runner}
}

// RunTestInput selects one test.
type RunTestInput struct {
	Category string
	AgentIDs []string
}

// AgentOutcome is one participant's result in RunTestOutput.
type AgentOutcome struct {
	AgentID       string
	Score         float64
	Passed        bool
	LowConfidence bool
}

// RunTestOutput is the serializable part of a gauntlet.Summary.
type RunTestOutput struct {
	ScenarioID  string
	ExecutionID string
	Category    string
	Tier        string
	Multiplier  int
	Status      string
	Outcomes    []AgentOutcome
	Advanced    []string
}

// RunTestActivity runs one test through the engine. A busy participant is
// retried by Temporal; every other pipeline error is final.
func (a *Activities) RunTestActivity(ctx context.Context, input RunTestInput) (*RunTestOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Running test", "category", input.Category, "agents", input.AgentIDs)

	summary, err := a.runner.GenerateAndRun(ctx, models.Category(input.Category), input.AgentIDs)
	if err != nil {
		return nil, classify(err)
	}
	return outputOf(summary), nil
}

// classify marks pipeline errors non-retryable, except for a participant
// that is still busy with another test.
func classify(err error) error {
	switch {
	case errors.Is(err, gauntlet.ErrConcurrentExecution):
		return err
	case errors.Is(err, gauntlet.ErrUnknownCategory):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeUnknownCategory, err)
	case errors.Is(err, gauntlet.ErrInsufficientParticipants):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInsufficient, err)
	case errors.Is(err, gauntlet.ErrPersistenceFailure):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypePersistenceFailure, err)
	default:
		return temporal.NewNonRetryableApplicationError(fmt.Sprintf("test run failed: %v", err), ErrTypePipeline, err)
	}
}

func outputOf(s *gauntlet.Summary) *RunTestOutput {
	out := &RunTestOutput{
		ScenarioID:  s.Scenario.ID,
		ExecutionID: s.Execution.ID,
		Category:    string(s.Scenario.Category),
		Tier:        string(s.Scenario.Tier),
		Multiplier:  int(s.Scenario.Multiplier),
		Status:      string(s.Execution.Status),
		Advanced:    s.Advanced,
	}
	for _, r := range s.Results {
		out.Outcomes = append(out.Outcomes, AgentOutcome{
			AgentID:       r.AgentID,
			Score:         r.AggregateScore,
			Passed:        r.Passed,
			LowConfidence: r.LowConfidence,
		})
	}
	return out
}
