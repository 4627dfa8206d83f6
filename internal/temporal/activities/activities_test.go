package activities

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/jordanhubbard/gauntlet/internal/dispatch"
	"github.com/jordanhubbard/gauntlet/internal/gauntlet"
	"github.com/jordanhubbard/gauntlet/internal/learning"
	"github.com/jordanhubbard/gauntlet/pkg/models"
)

type runnerFunc func(ctx context.Context, category models.Category, agentIDs []string) (*gauntlet.Summary, error)

func (f runnerFunc) GenerateAndRun(ctx context.Context, category models.Category, agentIDs []string) (*gauntlet.Summary, error) {
	return f(ctx, category, agentIDs)
}

func TestRunTestActivity(t *testing.T) {
	engine := gauntlet.New(learning.NewMemoryStore(), dispatch.Responders{
		"a": dispatch.StaticResponder{Reply: "error handling, tests and documentation"},
	})

	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()
	env.RegisterActivity(NewActivities(engine))

	val, err := env.ExecuteActivity((&Activities{}).RunTestActivity, RunTestInput{Category: "coding", AgentIDs: []string{"a"}})
	require.NoError(t, err)

	var out RunTestOutput
	require.NoError(t, val.Get(&out))
	assert.Equal(t, "coding", out.Category)
	assert.Equal(t, "basic", out.Tier)
	assert.Equal(t, "completed", out.Status)
	require.Len(t, out.Outcomes, 1)
	assert.Equal(t, "a", out.Outcomes[0].AgentID)
	assert.True(t, out.Outcomes[0].LowConfidence, "heuristic-only engine")
}

func TestRunTestActivity_PipelineErrorIsFinal(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, c models.Category, ids []string) (*gauntlet.Summary, error) {
		return nil, fmt.Errorf("%w: %q", gauntlet.ErrUnknownCategory, c)
	})

	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()
	env.RegisterActivity(NewActivities(runner))

	_, err := env.ExecuteActivity((&Activities{}).RunTestActivity, RunTestInput{Category: "juggling", AgentIDs: []string{"a"}})
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.NonRetryable())
	assert.Equal(t, ErrTypeUnknownCategory, appErr.Type())
}

func TestClassify(t *testing.T) {
	busy := &dispatch.ConcurrentExecutionError{AgentIDs: []string{"a"}}
	assert.Same(t, error(busy), classify(busy), "busy agents are retried")

	cases := map[error]string{
		fmt.Errorf("%w: x", gauntlet.ErrInsufficientParticipants): ErrTypeInsufficient,
		fmt.Errorf("%w: x", gauntlet.ErrPersistenceFailure):       ErrTypePersistenceFailure,
		errors.New("dispatch: lease does not cover participants"):  ErrTypePipeline,
	}
	for in, typ := range cases {
		var appErr *temporal.ApplicationError
		require.ErrorAs(t, classify(in), &appErr, in.Error())
		assert.True(t, appErr.NonRetryable())
		assert.Equal(t, typ, appErr.Type())
		assert.ErrorIs(t, appErr, in)
	}
}
