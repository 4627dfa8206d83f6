package workflows

import (
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/jordanhubbard/gauntlet/internal/scenario"
	"github.com/jordanhubbard/gauntlet/internal/temporal/activities"
	"github.com/jordanhubbard/gauntlet/pkg/models"
)

// QueryProgress returns the CampaignProgress of a running campaign.
const QueryProgress = "progress"

const (
	// testTimeoutMargin covers generation, evaluation and persistence on
	// top of the dispatch budget.
	testTimeoutMargin = 30 * time.Minute
	// retrySlack bounds the backoff between attempts of one test.
	retrySlack = 30 * time.Minute

	// startToCloseTimeout is the failure type Temporal reports when an
	// activity outlives StartToCloseTimeout.
	startToCloseTimeout = "TemporalTimeout:StartToClose"
)

// CampaignInput describes a campaign: every cohort takes one test per round.
type CampaignInput struct {
	// Cohorts are the agent groups tested together.
	Cohorts [][]string
	// Categories rotate per round and cohort. Empty means every category.
	Categories []string
	Rounds     int
	Interval   time.Duration
	// TestTimeout bounds one attempt of a test. Zero sizes it from the
	// largest scenario budget times BudgetScale.
	TestTimeout time.Duration
	// BudgetScale is the engine's budget scale. Zero means 1.
	BudgetScale float64
}

// EffectiveTestTimeout is the StartToClose timeout of every test.
func (in CampaignInput) EffectiveTestTimeout() time.Duration {
	if in.TestTimeout > 0 {
		return in.TestTimeout
	}
	scale := in.BudgetScale
	if scale <= 0 {
		scale = 1
	}
	return time.Duration(float64(scenario.MaxTimeBudget())*scale) + testTimeoutMargin
}

// MaxDuration is an upper bound on how long the campaign can run.
func (in CampaignInput) MaxDuration() time.Duration {
	rounds := max(in.Rounds, 1)
	tests := time.Duration(rounds * len(in.Cohorts))
	return tests*(in.EffectiveTestTimeout()+retrySlack) + time.Duration(rounds-1)*in.Interval
}

// activityOptions runs each test once per attempt. Only a busy cohort is
// retried; a test that outlives its timeout has already been recorded.
func activityOptions(in CampaignInput) workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: in.EffectiveTestTimeout(),
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        10 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        5 * time.Minute,
			MaximumAttempts:        5,
			NonRetryableErrorTypes: []string{startToCloseTimeout},
		},
	}
}

// CampaignRun is one test of a campaign.
type CampaignRun struct {
	Round    int
	Cohort   []string
	Category string
	Output   *activities.RunTestOutput `json:",omitempty"`
	Error    string                    `json:",omitempty"`
}

// CampaignProgress is the campaign state exposed by QueryProgress and
// returned when the workflow completes.
type CampaignProgress struct {
	Round     int
	Completed int
	Failed    int
	Passed    int
	Runs      []CampaignRun
}

// CampaignWorkflow tests every cohort once per round, rotating categories,
// and sleeps Interval between rounds. A failed test is recorded and the
// campaign moves on.
func CampaignWorkflow(ctx workflow.Context, input CampaignInput) (*CampaignProgress, error) {
	logger := workflow.GetLogger(ctx)
	if len(input.Cohorts) == 0 {
		return nil, temporal.NewNonRetryableApplicationError("campaign has no cohorts", "InvalidCampaign", nil)
	}
	rounds := input.Rounds
	if rounds <= 0 {
		rounds = 1
	}
	categories := input.Categories
	if len(categories) == 0 {
		for _, c := range models.Categories {
			categories = append(categories, string(c))
		}
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions(input))

	progress := &CampaignProgress{}
	if err := workflow.SetQueryHandler(ctx, QueryProgress, func() (*CampaignProgress, error) {
		return progress, nil
	}); err != nil {
		return nil, fmt.Errorf("failed to register query handler: %w", err)
	}

	logger.Info("Campaign started", "cohorts", len(input.Cohorts), "rounds", rounds)

	var a *activities.Activities
	for round := 0; round < rounds; round++ {
		progress.Round = round + 1
		for i, cohort := range input.Cohorts {
			category := categoryFor(categories, round, i, len(cohort))
			run := CampaignRun{Round: round + 1, Cohort: cohort, Category: category}

			var out activities.RunTestOutput
			err := workflow.ExecuteActivity(ctx, a.RunTestActivity, activities.RunTestInput{
				Category: category,
				AgentIDs: cohort,
			}).Get(ctx, &out)
			if err != nil {
				var canceled *temporal.CanceledError
				if errors.As(err, &canceled) {
					return progress, err
				}
				logger.Warn("Campaign test failed", "round", round+1, "cohort", cohort, "error", err)
				run.Error = err.Error()
				progress.Failed++
			} else {
				run.Output = &out
				progress.Completed++
				for _, o := range out.Outcomes {
					if o.Passed {
						progress.Passed++
					}
				}
			}
			progress.Runs = append(progress.Runs, run)
		}

		if round < rounds-1 && input.Interval > 0 {
			if err := workflow.Sleep(ctx, input.Interval); err != nil {
				return progress, err
			}
		}
	}

	logger.Info("Campaign completed", "completed", progress.Completed, "failed", progress.Failed)
	return progress, nil
}

// categoryFor rotates through categories by round and cohort index, skipping
// group-only categories for cohorts of one.
func categoryFor(categories []string, round, cohort, size int) string {
	n := len(categories)
	for k := 0; k < n; k++ {
		c := categories[(round+cohort+k)%n]
		if size < 2 && models.NormalizeCategory(c).RequiresGroup() {
			continue
		}
		return c
	}
	return categories[(round+cohort)%n]
}
