package evaluation

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jordanhubbard/gauntlet/internal/provider"
	"github.com/jordanhubbard/gauntlet/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = RetryPolicy{MaxRetries: 2, InitialBackoff: time.Millisecond, Multiplier: 4, CallTimeout: time.Second}

func testScenario(agents ...string) *models.TestScenario {
	return &models.TestScenario{
		ID:             "sc-1",
		Category:       models.CategoryCoding,
		Tier:           models.TierBasic,
		Multiplier:     models.MultiplierX1,
		ParticipantIDs: agents,
		SuccessCriteria: []string{
			"Code includes error handling for every failure path",
			"Functions are small and documented",
			"Tests cover the main behaviour",
		},
	}
}

func executionWith(sc *models.TestScenario, texts map[string]string) *models.TestExecution {
	ex := models.NewTestExecution("ex-1", sc)
	for _, r := range ex.Responses {
		r.Text = texts[r.AgentID]
	}
	return ex
}

func fixedEvaluator(score float64) EvaluatorFunc {
	return func(ctx context.Context, req ScoreRequest) (float64, string, error) {
		return score, "ok", nil
	}
}

func historyOf(passed ...bool) *models.AgentProfile {
	p := models.NewAgentProfile("a")
	for i, ok := range passed {
		p.History = append(p.History, models.HistoryEntry{ScenarioID: string(rune('a' + i)), Passed: ok})
	}
	return p
}

func TestEvaluate_UsesEvaluator(t *testing.T) {
	sc := testScenario("a")
	ex := executionWith(sc, map[string]string{"a": "an answer"})

	res := NewPipeline(fixedEvaluator(80)).Evaluate(context.Background(), sc, ex, ex.Responses[0], nil)

	assert.Equal(t, "a", res.AgentID)
	assert.Equal(t, "ex-1", res.ExecutionID)
	require.Len(t, res.Criteria, 3)
	assert.InDelta(t, 80, res.AggregateScore, 0.001)
	assert.Equal(t, 70.0, res.Threshold)
	assert.True(t, res.Passed)
	assert.False(t, res.LowConfidence)
	assert.Empty(t, res.ImprovementAreas)
	assert.False(t, res.EvaluatedAt.IsZero())
}

func TestEvaluate_EvaluatorAlwaysFailsFallsBackToHeuristic(t *testing.T) {
	var calls atomic.Int32
	ev := EvaluatorFunc(func(ctx context.Context, req ScoreRequest) (float64, string, error) {
		calls.Add(1)
		return 0, "", errors.New("judge down")
	})
	sc := testScenario("a")
	ex := executionWith(sc, map[string]string{"a": "code with error handling on each failure path"})

	res := NewPipeline(ev, WithRetryPolicy(fastRetry)).Evaluate(context.Background(), sc, ex, ex.Responses[0], nil)

	assert.True(t, res.LowConfidence)
	assert.Equal(t, int32(9), calls.Load(), "one attempt plus two retries per criterion")
	for _, c := range res.Criteria {
		assert.True(t, c.Heuristic)
		assert.GreaterOrEqual(t, c.Score, 0.0)
		assert.LessOrEqual(t, c.Score, 100.0)
	}
	assert.GreaterOrEqual(t, res.AggregateScore, 0.0)
	assert.LessOrEqual(t, res.AggregateScore, 100.0)
}

func TestEvaluate_RetrySucceeds(t *testing.T) {
	var calls atomic.Int32
	ev := EvaluatorFunc(func(ctx context.Context, req ScoreRequest) (float64, string, error) {
		if calls.Add(1)%2 == 1 {
			return 0, "", errors.New("transient")
		}
		return 90, "good", nil
	})
	sc := testScenario("a")
	sc.SuccessCriteria = sc.SuccessCriteria[:1]
	ex := executionWith(sc, map[string]string{"a": "answer"})

	res := NewPipeline(ev, WithRetryPolicy(fastRetry)).Evaluate(context.Background(), sc, ex, ex.Responses[0], nil)
	assert.False(t, res.LowConfidence)
	assert.Equal(t, 90.0, res.Criteria[0].Score)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEvaluate_NonRetryableStatusSkipsRetries(t *testing.T) {
	var calls atomic.Int32
	ev := EvaluatorFunc(func(ctx context.Context, req ScoreRequest) (float64, string, error) {
		calls.Add(1)
		return 0, "", &provider.StatusError{StatusCode: http.StatusUnauthorized, Body: "bad key"}
	})
	sc := testScenario("a")
	sc.SuccessCriteria = sc.SuccessCriteria[:1]
	ex := executionWith(sc, map[string]string{"a": "answer"})

	res := NewPipeline(ev, WithRetryPolicy(fastRetry)).Evaluate(context.Background(), sc, ex, ex.Responses[0], nil)
	assert.True(t, res.LowConfidence)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEvaluate_EmptyResponseScoresZero(t *testing.T) {
	var calls atomic.Int32
	ev := EvaluatorFunc(func(ctx context.Context, req ScoreRequest) (float64, string, error) {
		calls.Add(1)
		return 100, "", nil
	})
	sc := testScenario("a")
	ex := executionWith(sc, nil)
	ex.Responses[0].TimedOut = true

	res := NewPipeline(ev).Evaluate(context.Background(), sc, ex, ex.Responses[0], nil)

	assert.Zero(t, calls.Load())
	assert.Zero(t, res.AggregateScore)
	assert.False(t, res.Passed)
	assert.False(t, res.LowConfidence)
	assert.Len(t, res.ImprovementAreas, 3)
	assert.Contains(t, res.Criteria[0].Feedback, "deadline")
}

func TestEvaluate_EmptyResponseEarnsNoLearningBonus(t *testing.T) {
	sc := testScenario("a")
	ex := executionWith(sc, nil)
	ex.Responses[0].TimedOut = true

	profile := models.NewAgentProfile("a")
	profile.History = []models.HistoryEntry{
		{ScenarioID: "old", Passed: false, ImprovementAreas: sc.SuccessCriteria},
	}
	require.Positive(t, LearningBonus(sc.SuccessCriteria, profile))

	res := NewPipeline(fixedEvaluator(100)).Evaluate(context.Background(), sc, ex, ex.Responses[0], profile)

	assert.Zero(t, res.LearningBonus)
	assert.Zero(t, res.AggregateScore)
	assert.False(t, res.Passed)
}

func TestEvaluate_AnsweredResponseKeepsLearningBonus(t *testing.T) {
	sc := testScenario("a")
	ex := executionWith(sc, map[string]string{"a": "an answer"})

	profile := models.NewAgentProfile("a")
	profile.History = []models.HistoryEntry{
		{ScenarioID: "old", Passed: false, ImprovementAreas: sc.SuccessCriteria},
	}

	res := NewPipeline(fixedEvaluator(50)).Evaluate(context.Background(), sc, ex, ex.Responses[0], profile)

	assert.Equal(t, 15.0, res.LearningBonus)
	assert.InDelta(t, 65.0, res.AggregateScore, 1e-9)
}

func TestEvaluate_AggregateClamped(t *testing.T) {
	sc := testScenario("a")
	ex := executionWith(sc, map[string]string{"a": "answer"})
	profile := models.NewAgentProfile("a")
	profile.History = []models.HistoryEntry{{ScenarioID: "old", Passed: false, ImprovementAreas: sc.SuccessCriteria}}

	res := NewPipeline(fixedEvaluator(100)).Evaluate(context.Background(), sc, ex, ex.Responses[0], profile)
	assert.Equal(t, 15.0, res.LearningBonus)
	assert.Equal(t, 100.0, res.AggregateScore)
}

func TestEvaluate_ImprovementAreas(t *testing.T) {
	ev := EvaluatorFunc(func(ctx context.Context, req ScoreRequest) (float64, string, error) {
		if req.Criterion == "Functions are small and documented" {
			return 40, "too long", nil
		}
		return 75, "", nil
	})
	sc := testScenario("a")
	ex := executionWith(sc, map[string]string{"a": "answer"})

	res := NewPipeline(ev).Evaluate(context.Background(), sc, ex, ex.Responses[0], nil)
	require.Len(t, res.ImprovementAreas, 1)
	area := res.ImprovementAreas[0]
	assert.Equal(t, "Functions are small and documented", area.Criterion)
	assert.Equal(t, 40.0, area.Score)
	assert.Contains(t, area.Suggestion, "error handling")
	assert.Equal(t, []string{"Functions are small and documented"}, res.ImprovementCriteria())
}

func TestEvaluateAll_OneResultPerParticipant(t *testing.T) {
	sc := testScenario("a", "b", "c")
	ex := executionWith(sc, map[string]string{"a": "x", "c": "z"})

	results := NewPipeline(fixedEvaluator(65)).EvaluateAll(context.Background(), sc, ex, map[string]*models.AgentProfile{
		"a": historyOf(true, true, true, true, true),
	})
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].AgentID)
	assert.True(t, results[0].Passed, "threshold drops to 60 after five passes")
	assert.Equal(t, "b", results[1].AgentID)
	assert.Zero(t, results[1].AggregateScore)
	assert.False(t, results[2].Passed, "new agents need 70")
}

func TestThreshold(t *testing.T) {
	tests := []struct {
		name    string
		profile *models.AgentProfile
		want    float64
	}{
		{"no history", historyOf(), 70},
		{"all failed", historyOf(false, false, false, false, false), 70},
		{"three of five", historyOf(true, false, true, false, true), 64},
		{"all passed", historyOf(true, true, true, true, true), 60},
		{"only last five count", historyOf(false, false, false, true, true, true, true, true), 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Threshold(tt.profile)
			assert.InDelta(t, tt.want, got, 0.0001)
			assert.GreaterOrEqual(t, got, 60.0)
			assert.LessOrEqual(t, got, 70.0)
		})
	}
}

func TestLearningBonus(t *testing.T) {
	profile := models.NewAgentProfile("a")
	profile.History = []models.HistoryEntry{
		{ScenarioID: "1", Passed: false, ImprovementAreas: []string{"Code includes error handling for every failure path"}},
		{ScenarioID: "2", Passed: true, ImprovementAreas: []string{"Documentation is complete and professional"}},
	}

	criteria := []string{
		"code includes ERROR handling for every failure path",
		"Error handling covers the failure modes",
		"Documentation is complete and professional",
		"Unrelated criterion about docs",
	}
	assert.Equal(t, 10.0, LearningBonus(criteria, profile))
	assert.Zero(t, LearningBonus(criteria, models.NewAgentProfile("b")))

	many := []string{
		"Error handling one", "Error handling two", "Error handling three", "Error handling four",
	}
	assert.Equal(t, 15.0, LearningBonus(many, profile))
}
