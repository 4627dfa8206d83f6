package models

import (
	"time"
)

// CriterionScore is the score of one success criterion.
type CriterionScore struct {
	Criterion string  `json:"criterion"`
	Score     float64 `json:"score"`
	Feedback  string  `json:"feedback"`
	Heuristic bool    `json:"heuristic,omitempty"`
}

// ImprovementArea is a criterion the response fell short on.
type ImprovementArea struct {
	Criterion  string  `json:"criterion"`
	Score      float64 `json:"score"`
	Suggestion string  `json:"suggestion"`
}

// EvaluationResult is the scored outcome of one participant's response.
type EvaluationResult struct {
	AgentID          string            `json:"agent_id"`
	ScenarioID       string            `json:"scenario_id"`
	ExecutionID      string            `json:"execution_id"`
	Criteria         []CriterionScore  `json:"criteria"`
	AggregateScore   float64           `json:"aggregate_score"`
	Threshold        float64           `json:"threshold"`
	Passed           bool              `json:"passed"`
	ImprovementAreas []ImprovementArea `json:"improvement_areas"`
	LearningBonus    float64           `json:"learning_bonus"`
	LowConfidence    bool              `json:"low_confidence"`
	EvaluatedAt      time.Time         `json:"evaluated_at"`
}

// ImprovementCriteria returns the criterion texts of the improvement areas.
func (r *EvaluationResult) ImprovementCriteria() []string {
	if len(r.ImprovementAreas) == 0 {
		return nil
	}
	out := make([]string, 0, len(r.ImprovementAreas))
	for _, a := range r.ImprovementAreas {
		out = append(out, a.Criterion)
	}
	return out
}

// ExecutionRecord is the archived audit record of one participant's test.
type ExecutionRecord struct {
	ScenarioID string            `json:"scenario_id"`
	AgentID    string            `json:"agent_id"`
	Scenario   *TestScenario     `json:"scenario"`
	Execution  *TestExecution    `json:"execution"`
	Result     *EvaluationResult `json:"result"`
	RecordedAt time.Time         `json:"recorded_at"`
}
