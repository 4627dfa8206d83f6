package messages

import (
	"time"

	"github.com/jordanhubbard/gauntlet/pkg/models"
)

// Result message types.
const (
	TypeTestPassed = "test.passed"
	TypeTestFailed = "test.failed"
)

// ResultMessage is published once per recorded evaluation result.
type ResultMessage struct {
	Type          string                 `json:"type"` // "test.passed", "test.failed"
	ScenarioID    string                 `json:"scenario_id"`
	ExecutionID   string                 `json:"execution_id"`
	AgentID       string                 `json:"agent_id"`
	Result        ResultData             `json:"result"`
	CorrelationID string                 `json:"correlation_id"`
	Timestamp     time.Time              `json:"timestamp"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// ResultData contains the scored outcome.
type ResultData struct {
	Category         string   `json:"category"`
	Tier             string   `json:"tier"`
	Multiplier       int      `json:"multiplier"`
	Status           string   `json:"status"` // execution status: "completed", "failed", "timed_out"
	Score            float64  `json:"score"`
	Threshold        float64  `json:"threshold"`
	Passed           bool     `json:"passed"`
	LowConfidence    bool     `json:"low_confidence,omitempty"`
	LearningBonus    float64  `json:"learning_bonus,omitempty"`
	ImprovementAreas []string `json:"improvement_areas,omitempty"`
	Duration         int64    `json:"duration,omitempty"` // execution time in ms
}

// TestResult builds the message for one participant's result.
func TestResult(sc *models.TestScenario, ex *models.TestExecution, res *models.EvaluationResult) *ResultMessage {
	msgType := TypeTestFailed
	if res.Passed {
		msgType = TypeTestPassed
	}
	return &ResultMessage{
		Type:        msgType,
		ScenarioID:  sc.ID,
		ExecutionID: ex.ID,
		AgentID:     res.AgentID,
		Result: ResultData{
			Category:         string(sc.Category),
			Tier:             string(sc.Tier),
			Multiplier:       int(sc.Multiplier),
			Status:           string(ex.Status),
			Score:            res.AggregateScore,
			Threshold:        res.Threshold,
			Passed:           res.Passed,
			LowConfidence:    res.LowConfidence,
			LearningBonus:    res.LearningBonus,
			ImprovementAreas: res.ImprovementCriteria(),
			Duration:         ex.Duration().Milliseconds(),
		},
		CorrelationID: ex.ID,
		Timestamp:     time.Now(),
	}
}
