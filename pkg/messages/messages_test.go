package messages

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jordanhubbard/gauntlet/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestResult(t *testing.T) {
	sc := &models.TestScenario{ID: "sc-1", Category: models.CategorySecurity, Tier: models.TierExpert, Multiplier: models.MultiplierX3, ParticipantIDs: []string{"a"}}
	ex := models.NewTestExecution("ex-1", sc)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ex.Start(start)
	require.NoError(t, ex.Finish(models.ExecutionCompleted, "", start.Add(1500*time.Millisecond)))
	res := &models.EvaluationResult{
		AgentID:          "a",
		AggregateScore:   55,
		Threshold:        70,
		ImprovementAreas: []models.ImprovementArea{{Criterion: "Threat model"}},
	}

	msg := TestResult(sc, ex, res)
	assert.Equal(t, TypeTestFailed, msg.Type)
	assert.Equal(t, "ex-1", msg.CorrelationID)
	assert.Equal(t, "security", msg.Result.Category)
	assert.Equal(t, "expert", msg.Result.Tier)
	assert.Equal(t, 3, msg.Result.Multiplier)
	assert.Equal(t, "completed", msg.Result.Status)
	assert.Equal(t, int64(1500), msg.Result.Duration)
	assert.Equal(t, []string{"Threat model"}, msg.Result.ImprovementAreas)

	res.Passed = true
	assert.Equal(t, TypeTestPassed, TestResult(sc, ex, res).Type)
}

func TestEventConstructors(t *testing.T) {
	adv := AgentAdvanced("a", "basic", "intermediate", "engine")
	assert.Equal(t, "agent.advanced", adv.Type)
	assert.Equal(t, "intermediate", adv.Event.Data["to"])

	lvl := AgentLeveled("a", 1, 2, "engine")
	assert.Equal(t, 2, lvl.Event.Data["to"])

	fin := ExecutionFinished("ex-1", "sc-1", "timed_out", "engine")
	assert.Equal(t, "ex-1", fin.CorrelationID)
	assert.Equal(t, "timed_out", fin.Event.Data["status"])

	sysErr := SystemError("engine", "persistence failed", nil)
	assert.Equal(t, "system", sysErr.Event.Category)
}

func TestRespondRequestJSON(t *testing.T) {
	req := RespondRequest{RequestID: "r1", AgentID: "a", Prompt: "do it", Peers: []string{"b"}}
	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"prompt":"do it"`)
	assert.NotContains(t, string(data), `"phase"`)
}
